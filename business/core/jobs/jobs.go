// Package jobs runs long lived lab jobs one at a time. Grouping and
// benchmark jobs share one chain session so a second job is refused while
// one is running.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrBusy is returned when a job is started while another is running.
var ErrBusy = errors.New("a job is already running")

// Set of job states.
const (
	StateRunning   = "running"
	StateSucceeded = "succeeded"
	StateFailed    = "failed"
	StateCancelled = "cancelled"
)

// historySize is the number of finished jobs kept for status reporting.
const historySize = 20

// Func is the work of a job. It must return when the context is cancelled.
type Func func(ctx context.Context, runID string) error

// EventHandler defines a function that is called when events
// occur in the slot.
type EventHandler func(v string, args ...any)

// Status describes one job.
type Status struct {
	RunID    string    `json:"run_id"`
	Kind     string    `json:"kind"`
	State    string    `json:"state"`
	Started  time.Time `json:"started"`
	Finished time.Time `json:"finished,omitzero"`
	Error    string    `json:"error,omitempty"`
}

// Slot runs at most one job at a time.
type Slot struct {
	evHandler EventHandler
	ctx       context.Context
	cancelAll context.CancelFunc

	mu      sync.Mutex
	current *Status
	cancel  context.CancelFunc
	history []Status
	wg      sync.WaitGroup
}

// NewSlot constructs an idle slot.
func NewSlot(evHandler EventHandler) *Slot {
	ev := func(v string, args ...any) {
		if evHandler != nil {
			evHandler(v, args...)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Slot{
		evHandler: ev,
		ctx:       ctx,
		cancelAll: cancel,
	}
}

// Start runs the job in its own goroutine and returns its status. ErrBusy
// is returned when a job is already running.
func (s *Slot) Start(kind string, fn Func) (Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current != nil {
		return *s.current, ErrBusy
	}

	if err := s.ctx.Err(); err != nil {
		return Status{}, fmt.Errorf("slot is shut down: %w", err)
	}

	st := Status{
		RunID:   uuid.NewString(),
		Kind:    kind,
		State:   StateRunning,
		Started: time.Now().UTC(),
	}

	ctx, cancel := context.WithCancel(s.ctx)
	s.current = &st
	s.cancel = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer cancel()

		s.evHandler("jobs: Start: run[%s]: kind[%s]: started", st.RunID, kind)
		err := s.run(ctx, st.RunID, fn)
		s.finish(err)
	}()

	return st, nil
}

// Cancel stops the running job. It reports false when the slot is idle.
func (s *Slot) Cancel() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil {
		return false
	}

	s.cancel()
	return true
}

// Current returns the running job.
func (s *Slot) Current() (Status, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil {
		return Status{}, false
	}
	return *s.current, true
}

// History returns the finished jobs, most recent first.
func (s *Slot) History() []Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Status, len(s.history))
	for i, st := range s.history {
		out[len(s.history)-1-i] = st
	}
	return out
}

// Shutdown cancels any running job and waits for it to return or for the
// context to expire.
func (s *Slot) Shutdown(ctx context.Context) error {
	s.cancelAll()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// =============================================================================

// run executes the job converting a panic into an error so the slot is
// always released.
func (s *Slot) run(ctx context.Context, runID string, fn Func) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("PANIC [%v]", rec)
		}
	}()

	return fn(ctx, runID)
}

func (s *Slot) finish(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := *s.current
	st.Finished = time.Now().UTC()

	switch {
	case err == nil:
		st.State = StateSucceeded
	case errors.Is(err, context.Canceled):
		st.State = StateCancelled
		st.Error = err.Error()
	default:
		st.State = StateFailed
		st.Error = err.Error()
	}

	s.evHandler("jobs: Start: run[%s]: kind[%s]: %s", st.RunID, st.Kind, st.State)

	s.history = append(s.history, st)
	if len(s.history) > historySize {
		s.history = s.history[len(s.history)-historySize:]
	}

	s.current = nil
	s.cancel = nil
}
