package events

import (
	"context"
	"sync"
)

// Recorder keeps every emitted event in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Emit(_ context.Context, e Event) error {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
	return nil
}

func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Closed returns the recorded DecisionClosed events.
func (r *Recorder) Closed() []DecisionClosed {
	var out []DecisionClosed
	for _, e := range r.Events() {
		if c, ok := e.(DecisionClosed); ok {
			out = append(out, c)
		}
	}
	return out
}

// AutoClosed returns the recorded batch events.
func (r *Recorder) AutoClosed() []DecisionsAutoClosed {
	var out []DecisionsAutoClosed
	for _, e := range r.Events() {
		if c, ok := e.(DecisionsAutoClosed); ok {
			out = append(out, c)
		}
	}
	return out
}

func (r *Recorder) Reset() {
	r.mu.Lock()
	r.events = nil
	r.mu.Unlock()
}
