// Package sweep drives a compiler across the optimizer parameter matrix and
// persists one artifact set per combination. The shared compiler
// configuration is captured before the first iteration and restored on every
// exit path.
package sweep

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/ardanlabs/bytecodelab/business/sys/compiler"
	"github.com/ardanlabs/bytecodelab/foundation/contract/artifact"
	"github.com/google/uuid"
)

// RunValues is the number of optimizer runs values swept per metadata mode.
const RunValues = 32

// EventHandler defines a function that is called when events
// occur during a sweep.
type EventHandler func(v string, args ...any)

// Space returns the full parameter matrix: for each metadata mode the runs
// values 2^31-1 down to 2^0-1 followed by the optimizer disabled variant.
func Space() []artifact.Settings {
	space := make([]artifact.Settings, 0, len(artifact.Modes)*(RunValues+1))

	for _, mode := range artifact.Modes {
		for i := range RunValues {
			runs := uint32(1)<<(31-i) - 1
			space = append(space, artifact.Optimized(mode, runs))
		}
		space = append(space, artifact.Unoptimized(mode))
	}

	return space
}

// =============================================================================

// Config represents the collaborators of an orchestrator.
type Config struct {
	Compiler       compiler.Compiler
	Resource       Resource
	Store          artifact.Saver
	CompileTimeout time.Duration
	EvHandler      EventHandler
}

// Orchestrator runs sweeps. Iterations share the configuration resource so
// a sweep is strictly sequential.
type Orchestrator struct {
	compiler       compiler.Compiler
	resource       Resource
	store          artifact.Saver
	compileTimeout time.Duration
	evHandler      EventHandler
}

// New constructs an orchestrator.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.Compiler == nil {
		return nil, errors.New("compiler is required")
	}
	if cfg.Resource == nil {
		return nil, errors.New("configuration resource is required")
	}
	if cfg.Store == nil {
		return nil, errors.New("artifact store is required")
	}

	ev := func(v string, args ...any) {
		if cfg.EvHandler != nil {
			cfg.EvHandler(v, args...)
		}
	}

	o := Orchestrator{
		compiler:       cfg.Compiler,
		resource:       cfg.Resource,
		store:          cfg.Store,
		compileTimeout: cfg.CompileTimeout,
		evHandler:      ev,
	}

	return &o, nil
}

// Run compiles and persists every settings value in the space. A failed
// compile or persist is recorded in the report and the sweep continues. A
// configuration I/O failure or a cancelled context ends the sweep. In every
// case the configuration resource is restored to its content before the
// sweep, and a restore failure is joined into the returned error.
func (o *Orchestrator) Run(ctx context.Context, space []artifact.Settings) (rep Report, err error) {
	rep = Report{
		RunID:   uuid.NewString(),
		Started: time.Now().UTC(),
		Total:   len(space),
	}

	snap, err := Acquire(o.resource)
	if err != nil {
		return rep, err
	}

	o.evHandler("sweep: Run: started: run[%s]: variants[%d]", rep.RunID, len(space))

	defer func() {
		if rerr := snap.Release(); rerr != nil {
			o.evHandler("sweep: Run: restore: ERROR: %s", rerr)
			err = errors.Join(err, rerr)
		} else {
			o.evHandler("sweep: Run: restored configuration")
		}

		rep.Finished = time.Now().UTC()

		if root, merr := manifestRoot(rep.Manifest); merr == nil {
			rep.ManifestRoot = root
		}

		o.evHandler("sweep: Run: completed: persisted[%d]: failed[%d]", len(rep.Persisted), len(rep.Failed))
	}()

	for _, s := range space {
		if err := ctx.Err(); err != nil {
			return rep, err
		}

		arts, err := o.iteration(ctx, s)
		if err != nil {
			if IsConfigIOError(err) {
				o.evHandler("sweep: Run: prefix[%s]: FATAL: %s", s.Prefix(), err)
				return rep, err
			}

			o.evHandler("sweep: Run: prefix[%s]: SKIPPED: %s", s.Prefix(), err)
			rep.Failed = append(rep.Failed, Failure{Prefix: s.Prefix(), Reason: err.Error()})
			continue
		}

		rep.Persisted = append(rep.Persisted, s.Prefix())
		rep.Manifest = append(rep.Manifest, arts...)

		o.evHandler("sweep: Run: prefix[%s]: persisted[%d]", s.Prefix(), len(arts))
	}

	return rep, nil
}

// iteration writes the configuration for the settings, compiles and persists
// every contract under the settings prefix.
func (o *Orchestrator) iteration(ctx context.Context, s artifact.Settings) ([]Entry, error) {
	content, err := o.compiler.Config(s)
	if err != nil {
		return nil, fmt.Errorf("rendering config: %w", err)
	}

	if err := o.resource.Write(content); err != nil {
		return nil, &ConfigIOError{Op: "write", Err: err}
	}

	if o.compileTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.compileTimeout)
		defer cancel()
	}

	o.evHandler("sweep: Run: prefix[%s]: compiling", s.Prefix())

	arts, err := o.compiler.Compile(ctx, s)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(arts))
	for name := range arts {
		names = append(names, name)
	}
	sort.Strings(names)

	entries := make([]Entry, 0, len(names))
	for _, name := range names {
		a := arts[name]
		a.Contract = name
		a.Settings = s

		if err := o.store.Save(s.Prefix(), a); err != nil {
			err = fmt.Errorf("persisting %s: %w", name, err)
			return nil, errors.Join(err, o.discard(s.Prefix(), entries))
		}

		entries = append(entries, newEntry(s.Prefix(), a))
	}

	return entries, nil
}

// discard removes the contracts already saved under a prefix whose
// iteration failed, so the store never holds a partial artifact set.
func (o *Orchestrator) discard(prefix string, entries []Entry) error {
	var errs []error
	for _, e := range entries {
		if err := o.store.Remove(prefix, e.Contract); err != nil {
			errs = append(errs, fmt.Errorf("discarding %s: %w", e.Contract, err))
		}
	}

	o.evHandler("sweep: Run: prefix[%s]: discarded[%d]", prefix, len(entries)-len(errs))

	return errors.Join(errs...)
}
