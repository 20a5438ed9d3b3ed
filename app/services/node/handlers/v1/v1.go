// Package v1 contains the full set of handler functions and routes
// supported by the v1 web api.
package v1

import (
	"net/http"

	"github.com/ardanlabs/idchain/app/services/node/handlers/v1/private"
	"github.com/ardanlabs/idchain/app/services/node/handlers/v1/public"
	"github.com/ardanlabs/idchain/foundation/blockchain/state"
	"github.com/ardanlabs/idchain/foundation/events"
	"github.com/ardanlabs/idchain/foundation/nameservice"
	"github.com/ardanlabs/idchain/foundation/web"
	"go.uber.org/zap"
)

const version = "v1"

// Config contains all the mandatory systems required by handlers.
type Config struct {
	Log   *zap.SugaredLogger
	State *state.State
	NS    *nameservice.NameService
	Evts  *events.Events
}

// PublicRoutes binds all the version 1 public routes.
func PublicRoutes(app *web.App, cfg Config) {
	pbl := public.Handlers{
		Log:   cfg.Log,
		State: cfg.State,
		NS:    cfg.NS,
		Evts:  cfg.Evts,
	}

	app.Handle(http.MethodGet, version, "/events", pbl.Events)
	app.Handle(http.MethodGet, version, "/status", pbl.Status)
	app.Handle(http.MethodGet, version, "/balance/:account", pbl.Balance)
	app.Handle(http.MethodGet, version, "/identity/:name", pbl.Identity)
	app.Handle(http.MethodGet, version, "/blocks/:from/:to", pbl.BlocksByNumber)
	app.Handle(http.MethodGet, version, "/tx/proof/:block/:tx", pbl.TxProof)
	app.Handle(http.MethodGet, version, "/tx/list", pbl.Mempool)
	app.Handle(http.MethodPost, version, "/tx/submit", pbl.SubmitTransaction)
	app.Handle(http.MethodGet, version, "/mining/start", pbl.StartMining)
	app.Handle(http.MethodGet, version, "/mining/stop", pbl.StopMining)
}

// PrivateRoutes binds all the version 1 private routes.
func PrivateRoutes(app *web.App, cfg Config) {
	prv := private.Handlers{
		Log:   cfg.Log,
		State: cfg.State,
	}

	app.Handle(http.MethodPost, version, "/node/peers", prv.SubmitPeer)
	app.Handle(http.MethodGet, version, "/node/status", prv.Status)
	app.Handle(http.MethodPost, version, "/node/status", prv.SubmitStatus)
	app.Handle(http.MethodGet, version, "/node/trace", prv.Trace)
	app.Handle(http.MethodGet, version, "/node/blocks/:before/:max", prv.BlocksAfter)
	app.Handle(http.MethodPost, version, "/node/block/submit", prv.SubmitBlock)
	app.Handle(http.MethodPost, version, "/node/tx/submit", prv.SubmitTransaction)
	app.Handle(http.MethodGet, version, "/node/tx/list", prv.Mempool)
}
