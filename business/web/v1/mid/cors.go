package mid

import (
	"context"
	"net/http"

	"github.com/ardanlabs/idchain/foundation/web"
)

// corsMaxAge is how long, in seconds, a browser may cache a preflight answer.
const corsMaxAge = "86400"

// Cors sets the Cross-Origin Resource Sharing headers for the origin. A
// wildcard origin allows every caller.
func Cors(origin string) web.Middleware {
	m := func(handler web.Handler) web.Handler {
		h := func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
			hdr := w.Header()
			hdr.Set("Access-Control-Allow-Origin", origin)
			if origin != "*" {
				hdr.Add("Vary", "Origin")
			}

			if r.Method == http.MethodOptions {
				hdr.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
				hdr.Set("Access-Control-Allow-Headers", "Origin, Accept, Content-Type, Content-Length, Accept-Encoding")
				hdr.Set("Access-Control-Max-Age", corsMaxAge)
			}

			return handler(ctx, w, r)
		}

		return h
	}

	return m
}
