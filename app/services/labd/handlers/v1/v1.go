// Package v1 contains the full set of handler functions and routes
// supported by the v1 web api.
package v1

import (
	"net/http"

	"github.com/ardanlabs/bytecodelab/app/services/labd/handlers/v1/labgrp"
	"github.com/ardanlabs/bytecodelab/business/core/jobs"
	"github.com/ardanlabs/bytecodelab/foundation/events"
	"github.com/ardanlabs/bytecodelab/foundation/web"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const version = "v1"

// Config contains all the mandatory systems required by handlers.
type Config struct {
	Log  *zap.SugaredLogger
	Slot *jobs.Slot
	Lab  labgrp.Lab
	Evts *events.Events
}

// Routes binds all the version 1 routes.
func Routes(app *web.App, cfg Config) {
	lgh := labgrp.Handlers{
		Log:  cfg.Log,
		Slot: cfg.Slot,
		Lab:  cfg.Lab,
		Evts: cfg.Evts,
		WS:   websocket.Upgrader{},
	}

	app.Handle(http.MethodGet, version, "/events", lgh.Events)
	app.Handle(http.MethodGet, version, "/reports/:name", lgh.Report)
	app.Handle(http.MethodGet, version, "/jobs", lgh.Jobs)
	app.Handle(http.MethodPost, version, "/jobs/:kind", lgh.StartJob)
	app.Handle(http.MethodDelete, version, "/jobs/current", lgh.CancelJob)
}
