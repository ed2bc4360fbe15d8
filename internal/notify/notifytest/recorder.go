// Package notifytest provides a notify.Sink recording messages for tests.
package notifytest

import (
	"context"
	"slices"
	"sync"
)

// Recorder is a notify.Sink keeping every message in memory.
type Recorder struct {
	mu       sync.Mutex
	messages []string
	// undeliverable counts messages handed over on a done context, which a
	// real sink could not send.
	undeliverable int
}

// Notify implements notify.Sink.
func (r *Recorder) Notify(ctx context.Context, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.messages = append(r.messages, message)

	if ctx.Err() != nil {
		r.undeliverable++
	}
}

// Messages returns a copy of the recorded messages.
func (r *Recorder) Messages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	return slices.Clone(r.messages)
}

// Count returns the number of recorded messages.
func (r *Recorder) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.messages)
}

// Undeliverable returns how many messages arrived with a cancelled or expired context.
func (r *Recorder) Undeliverable() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.undeliverable
}
