// Package bench deploys stored artifacts into an isolated chain and records
// the gas cost of fingerprint and attestation operations. Every iteration
// starts from a reset chain so no state leaks between measurements.
package bench

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ardanlabs/bytecodelab/foundation/contract/artifact"
	"github.com/ardanlabs/bytecodelab/foundation/contract/chainenv"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// EventHandler defines a function that is called when events
// occur during a benchmark run.
type EventHandler func(v string, args ...any)

// Session is the chain behavior required to run measurements.
type Session interface {
	Reset(ctx context.Context) error
	Deploy(ctx context.Context, code []byte) (chainenv.Receipt, error)
	Transact(ctx context.Context, to common.Address, data []byte) (chainenv.Receipt, error)
	Call(ctx context.Context, to common.Address, data []byte) ([]byte, error)
	EstimateGas(ctx context.Context, to common.Address, data []byte) (uint64, error)
	Code(ctx context.Context, address common.Address) ([]byte, error)
}

// Pair identifies one iteration of a matrix. Comparison is empty for a
// single prefix sweep.
type Pair struct {
	Subject    string
	Comparison string
}

// Operation is the behavior required to measure one iteration on a freshly
// reset chain.
type Operation interface {
	Name() string
	Measure(ctx context.Context, sess Session, store artifact.Loader, p Pair) ([]Measurement, error)
}

// Orderer is implemented by operations whose results are stored in a
// specific order.
type Orderer interface {
	Order(ms []Measurement)
}

// Measurement is one recorded gas cost. Gas is written as a decimal string.
type Measurement struct {
	RunID      string `json:"run_id"`
	Subject    string `json:"subject"`
	Comparison string `json:"comparison,omitempty"`
	Operation  string `json:"operation"`
	GasUsed    uint64 `json:"gas_used,string"`
}

// =============================================================================

// EnvResetError is returned when the chain cannot be reset. Every later
// measurement would observe stale state so the run stops.
type EnvResetError struct {
	Pair Pair
	Err  error
}

// Error implements the error interface.
func (ere *EnvResetError) Error() string {
	return fmt.Sprintf("reset before %s/%s: %s", ere.Pair.Subject, ere.Pair.Comparison, ere.Err)
}

// Unwrap provides access to the underlying error.
func (ere *EnvResetError) Unwrap() error {
	return ere.Err
}

// IsEnvResetError checks if an error of type EnvResetError exists.
func IsEnvResetError(err error) bool {
	var ere *EnvResetError
	return errors.As(err, &ere)
}

// =============================================================================

// Config represents the collaborators of a runner.
type Config struct {
	Session          Session
	Store            artifact.Loader
	Results          *Results
	IterationTimeout time.Duration
	EvHandler        EventHandler
}

// Runner executes operations over a matrix of prefixes. A runner owns its
// session, so runs are strictly sequential.
type Runner struct {
	sess             Session
	store            artifact.Loader
	results          *Results
	iterationTimeout time.Duration
	evHandler        EventHandler
}

// New constructs a runner.
func New(cfg Config) (*Runner, error) {
	if cfg.Session == nil {
		return nil, errors.New("session is required")
	}
	if cfg.Store == nil {
		return nil, errors.New("artifact store is required")
	}

	results := cfg.Results
	if results == nil {
		results = NewResults("")
	}

	ev := func(v string, args ...any) {
		if cfg.EvHandler != nil {
			cfg.EvHandler(v, args...)
		}
	}

	r := Runner{
		sess:             cfg.Session,
		store:            cfg.Store,
		results:          results,
		iterationTimeout: cfg.IterationTimeout,
		evHandler:        ev,
	}

	return &r, nil
}

// Results returns the collection measurements are appended to.
func (r *Runner) Results() *Results {
	return r.results
}

// Pairs builds the iteration order: every subject for each comparison, or
// every subject alone when there are no comparisons.
func Pairs(subjects []string, comparisons []string) []Pair {
	if len(comparisons) == 0 {
		pairs := make([]Pair, len(subjects))
		for i, s := range subjects {
			pairs[i] = Pair{Subject: s}
		}
		return pairs
	}

	pairs := make([]Pair, 0, len(subjects)*len(comparisons))
	for _, c := range comparisons {
		for _, s := range subjects {
			pairs = append(pairs, Pair{Subject: s, Comparison: c})
		}
	}
	return pairs
}

// RunMatrix measures the operation for every pair. A failed iteration is
// logged and skipped. A failed reset or a cancelled context stops the run.
// The results are flushed when the run ends for any reason; a flush failure
// is only returned when the run itself succeeded.
func (r *Runner) RunMatrix(ctx context.Context, subjects []string, comparisons []string, op Operation) (ms []Measurement, err error) {
	runID := uuid.NewString()
	pairs := Pairs(subjects, comparisons)

	r.evHandler("bench: RunMatrix: started: run[%s]: op[%s]: iterations[%d]", runID, op.Name(), len(pairs))

	defer func() {
		if o, ok := op.(Orderer); ok {
			r.results.Order(o.Order)
			o.Order(ms)
		}

		if ferr := r.results.Flush(); ferr != nil {
			r.evHandler("bench: RunMatrix: flush: ERROR: %s", ferr)
			if err == nil {
				err = ferr
			}
		}

		r.evHandler("bench: RunMatrix: completed: run[%s]: measurements[%d]", runID, len(ms))
	}()

	for _, p := range pairs {
		if err := ctx.Err(); err != nil {
			return ms, err
		}

		if err := r.sess.Reset(ctx); err != nil {
			r.evHandler("bench: RunMatrix: subject[%s]: comparison[%s]: FATAL: reset: %s", p.Subject, p.Comparison, err)
			return ms, &EnvResetError{Pair: p, Err: err}
		}

		got, err := r.measure(ctx, op, p)
		if err != nil {
			r.evHandler("bench: RunMatrix: subject[%s]: comparison[%s]: SKIPPED: %s", p.Subject, p.Comparison, err)
			continue
		}

		for i := range got {
			got[i].RunID = runID
			r.evHandler("bench: RunMatrix: subject[%s]: comparison[%s]: %s: gas[%d]", got[i].Subject, got[i].Comparison, got[i].Operation, got[i].GasUsed)
		}

		r.results.Append(got...)
		ms = append(ms, got...)
	}

	return ms, nil
}

func (r *Runner) measure(ctx context.Context, op Operation, p Pair) ([]Measurement, error) {
	if r.iterationTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.iterationTimeout)
		defer cancel()
	}

	return op.Measure(ctx, r.sess, r.store, p)
}
