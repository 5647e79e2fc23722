// Package labgrp maintains the group of handlers for lab reports and jobs.
package labgrp

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ardanlabs/bytecodelab/business/core/bench"
	"github.com/ardanlabs/bytecodelab/business/core/grouping"
	"github.com/ardanlabs/bytecodelab/business/core/jobs"
	"github.com/ardanlabs/bytecodelab/business/web/errs"
	"github.com/ardanlabs/bytecodelab/foundation/contract/artifact"
	"github.com/ardanlabs/bytecodelab/foundation/contract/chainenv"
	"github.com/ardanlabs/bytecodelab/foundation/contract/equivalence"
	"github.com/ardanlabs/bytecodelab/foundation/events"
	"github.com/ardanlabs/bytecodelab/foundation/validate"
	"github.com/ardanlabs/bytecodelab/foundation/web"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// KindGroup names the grouping job. Benchmark jobs are named by experiment.
const KindGroup = "group"

// GroupsReport is the report name the grouping job writes.
const GroupsReport = "contract_groups"

// Lab holds what the jobs need to run.
type Lab struct {
	Store            *artifact.Disk
	Target           chainenv.Target
	Deployer         *ecdsa.PrivateKey
	Auditor          *ecdsa.PrivateKey
	Plan             bench.Plan
	Datasets         []grouping.Dataset
	ReportsPath      string
	IterationTimeout time.Duration
	Workers          int
}

// Handlers manages the set of lab endpoints.
type Handlers struct {
	Log  *zap.SugaredLogger
	Slot *jobs.Slot
	Lab  Lab
	Evts *events.Events
	WS   websocket.Upgrader
}

// JobRequest holds the optional settings of a grouping job.
type JobRequest struct {
	Source string `json:"source" validate:"omitempty,oneof=deployed stored"`
	Hash   string `json:"hash" validate:"omitempty,oneof=raw stripped"`
}

// JobsResponse reports the running job and the finished ones.
type JobsResponse struct {
	Current *jobs.Status  `json:"current"`
	History []jobs.Status `json:"history"`
}

// Report returns a stored report by name.
func (h Handlers) Report(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	name := web.Param(r, "name")
	if name == "" || strings.ContainsAny(name, `./\`) {
		return errs.BadRequest(fmt.Errorf("invalid report name %q", name))
	}

	data, err := os.ReadFile(filepath.Join(h.Lab.ReportsPath, name+".json"))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return errs.NotFound(fmt.Errorf("report %q not found", name))
		}
		return fmt.Errorf("reading report: %w", err)
	}

	return web.RespondRaw(ctx, w, data, http.StatusOK)
}

// StartJob starts a grouping or benchmark job in the job slot.
func (h Handlers) StartJob(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	kind := web.Param(r, "kind")

	var req JobRequest
	if r.ContentLength > 0 {
		if err := web.Decode(r, &req); err != nil {
			return errs.BadRequest(err)
		}
		if err := validate.Check(req); err != nil {
			return err
		}
	}

	fn, err := h.job(kind, req)
	if err != nil {
		return errs.BadRequest(err)
	}

	st, err := h.Slot.Start(kind, fn)
	if err != nil {
		if errors.Is(err, jobs.ErrBusy) {
			return errs.Conflict(fmt.Errorf("%w: %s run %s", err, st.Kind, st.RunID))
		}
		return err
	}

	h.Log.Infow("start job", "traceid", web.GetTraceID(ctx), "kind", kind, "run", st.RunID)

	return web.Respond(ctx, w, st, http.StatusAccepted)
}

// Jobs reports the running job and the recent history.
func (h Handlers) Jobs(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	resp := JobsResponse{
		History: h.Slot.History(),
	}

	if st, running := h.Slot.Current(); running {
		resp.Current = &st
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// CancelJob cancels the running job.
func (h Handlers) CancelJob(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	if !h.Slot.Cancel() {
		return errs.NotFound(errors.New("no job is running"))
	}

	return web.Respond(ctx, w, nil, http.StatusNoContent)
}

// Events handles a web socket to provide job progress events to a client.
func (h Handlers) Events(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	h.WS.CheckOrigin = func(r *http.Request) bool { return true }

	c, err := h.WS.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	defer c.Close()

	ch := h.Evts.Acquire(v.TraceID)
	defer h.Evts.Release(v.TraceID)

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case msg, wd := <-ch:
			if !wd {
				return nil
			}

			if err := c.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
				return nil
			}

		case <-ticker.C:
			if err := c.WriteMessage(websocket.PingMessage, []byte("ping")); err != nil {
				return nil
			}
		}
	}
}

// =============================================================================

// job returns the work for the job kind.
func (h Handlers) job(kind string, req JobRequest) (jobs.Func, error) {
	switch kind {
	case KindGroup:
		return h.groupJob(req)

	case bench.ExperimentAudit, bench.ExperimentCodeHash, bench.ExperimentValidate:
		return h.benchJob(kind), nil
	}

	return nil, fmt.Errorf("unknown job kind %q", kind)
}

func (h Handlers) groupJob(req JobRequest) (jobs.Func, error) {
	source := grouping.Deployed
	if req.Source != "" {
		var err error
		if source, err = grouping.ParseSource(req.Source); err != nil {
			return nil, err
		}
	}

	hash := equivalence.Raw
	if req.Hash != "" {
		var err error
		if hash, err = equivalence.ParseHashChoice(req.Hash); err != nil {
			return nil, err
		}
	}

	fn := func(ctx context.Context, runID string) error {
		cfg := grouping.Config{
			Store:     h.Lab.Store,
			Source:    source,
			Hash:      hash,
			Workers:   h.Lab.Workers,
			EvHandler: h.evHandler(KindGroup, runID),
		}

		if source == grouping.Deployed {
			sess, err := chainenv.Open(ctx, h.Lab.Target, h.Lab.Deployer)
			if err != nil {
				return err
			}
			defer sess.Close()
			cfg.Session = sess
		}

		job, err := grouping.New(cfg)
		if err != nil {
			return err
		}

		_, err = job.RunReport(ctx, h.Lab.Datasets, h.reportPath(GroupsReport))
		return err
	}

	return fn, nil
}

func (h Handlers) benchJob(kind string) jobs.Func {
	fn := func(ctx context.Context, runID string) error {
		op, subjects, comparisons, err := h.Lab.Plan.Experiment(kind, h.Lab.Auditor)
		if err != nil {
			return err
		}

		sess, err := chainenv.Open(ctx, h.Lab.Target, h.Lab.Deployer)
		if err != nil {
			return err
		}
		defer sess.Close()

		runner, err := bench.New(bench.Config{
			Session:          sess,
			Store:            h.Lab.Store,
			Results:          bench.NewResults(h.reportPath(kind + "_results")),
			IterationTimeout: h.Lab.IterationTimeout,
			EvHandler:        h.evHandler(kind, runID),
		})
		if err != nil {
			return err
		}

		_, err = runner.RunMatrix(ctx, subjects, comparisons, op)
		return err
	}

	return fn
}

// evHandler logs job progress and publishes it to the websocket clients.
func (h Handlers) evHandler(kind string, runID string) func(v string, args ...any) {
	publish := h.Evts.Handler(kind, runID)

	return func(v string, args ...any) {
		h.Log.Infow(fmt.Sprintf(v, args...), "kind", kind, "run", runID)
		publish(v, args...)
	}
}

func (h Handlers) reportPath(name string) string {
	return filepath.Join(h.Lab.ReportsPath, name+".json")
}
