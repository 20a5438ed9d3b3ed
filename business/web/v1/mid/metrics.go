package mid

import (
	"context"
	"net/http"
	"time"

	"github.com/ardanlabs/idchain/business/sys/metrics"
	"github.com/ardanlabs/idchain/foundation/web"
)

// Metrics updates program counters.
func Metrics(m *metrics.Metrics) web.Middleware {

	// This is the actual middleware function to be executed.
	mw := func(handler web.Handler) web.Handler {

		// Create the handler that will be attached in the middleware chain.
		h := func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {

			// Call the next handler.
			err := handler(ctx, w, r)

			v, verr := web.GetValues(ctx)
			if verr != nil {
				return web.NewShutdownError("web value missing from context")
			}

			// Errors responds after this runs so a failed request has no
			// status code yet.
			status := v.StatusCode
			if err != nil {
				status = http.StatusInternalServerError
				m.AddError()
			}
			m.AddRequest(v.Route, r.Method, status, time.Since(v.Now).Seconds())

			// Return the error so it can be handled further up the chain.
			return err
		}

		return h
	}

	return mw
}
