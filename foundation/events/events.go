// Package events allows for the registering and receiving of progress events
// produced by long running jobs.
package events

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// Event represents one progress notification from a job.
type Event struct {
	Job     string    `json:"job"`
	RunID   string    `json:"run_id,omitempty"`
	Message string    `json:"message"`
	Time    time.Time `json:"time"`
}

// Events maintains a mapping of unique id and channels so goroutines
// can register and receive events.
type Events struct {
	m  map[string]chan string
	mu sync.RWMutex
}

// New constructs an events for registering and receiving events.
func New() *Events {
	return &Events{
		m: make(map[string]chan string),
	}
}

// Shutdown closes and removes all channels that were provided by
// the call to Acquire.
func (evt *Events) Shutdown() {
	evt.mu.Lock()
	defer evt.mu.Unlock()

	for id, ch := range evt.m {
		delete(evt.m, id)
		close(ch)
	}
}

// Acquire takes a unique id and returns a channel that can be used
// to receive events.
func (evt *Events) Acquire(id string) chan string {
	evt.mu.Lock()
	defer evt.mu.Unlock()

	ch, exists := evt.m[id]
	if exists {
		return ch
	}

	// A message is dropped when the receiver is not ready, so the buffer
	// gives a slow websocket writer room.
	const messageBuffer = 100

	evt.m[id] = make(chan string, messageBuffer)
	return evt.m[id]
}

// Release closes and removes the channel that was provided by
// the call to Acquire.
func (evt *Events) Release(id string) error {
	evt.mu.Lock()
	defer evt.mu.Unlock()

	ch, exists := evt.m[id]
	if !exists {
		return fmt.Errorf("id %q does not exist", id)
	}

	delete(evt.m, id)
	close(ch)
	return nil
}

// Subscribers returns the number of registered channels.
func (evt *Events) Subscribers() int {
	evt.mu.RLock()
	defer evt.mu.RUnlock()

	return len(evt.m)
}

// Send signals a message to every registered channel. Send will not block
// waiting for a receiver on any given channel.
func (evt *Events) Send(s string) {
	evt.mu.RLock()
	defer evt.mu.RUnlock()

	for _, ch := range evt.m {
		select {
		case ch <- s:
		default:
		}
	}
}

// Publish encodes the event as JSON and sends it to every registered channel.
func (evt *Events) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now().UTC()
	}

	data, err := json.Marshal(e)
	if err != nil {
		return
	}

	evt.Send(string(data))
}

// Handler returns a function matching the progress handler signature used by
// the jobs that publishes each formatted message for the named job.
func (evt *Events) Handler(job string, runID string) func(v string, args ...any) {
	return func(v string, args ...any) {
		evt.Publish(Event{
			Job:     job,
			RunID:   runID,
			Message: fmt.Sprintf(v, args...),
		})
	}
}
