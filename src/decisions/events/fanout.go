package events

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
)

// Fanout delivers each event to every sink in order.
type Fanout struct {
	mu    sync.RWMutex
	sinks []namedSink
}

type namedSink struct {
	name string
	sink Emitter
}

func NewFanout() *Fanout {
	return &Fanout{}
}

// Add registers a sink under a name used in logs.
func (f *Fanout) Add(name string, sink Emitter) {
	if sink == nil {
		return
	}
	f.mu.Lock()
	f.sinks = append(f.sinks, namedSink{name: name, sink: sink})
	f.mu.Unlock()
}

// Len reports how many sinks are registered.
func (f *Fanout) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.sinks)
}

func (f *Fanout) Emit(ctx context.Context, e Event) error {
	f.mu.RLock()
	sinks := append([]namedSink(nil), f.sinks...)
	f.mu.RUnlock()

	var errs []error
	for _, s := range sinks {
		if err := s.sink.Emit(ctx, e); err != nil {
			log.Printf("events: %s sink failed for %s %s: %v", s.name, e.Meta().Type, e.Meta().ID, err)
			errs = append(errs, fmt.Errorf("%s: %w", s.name, err))
		}
	}
	return errors.Join(errs...)
}

// Log writes every event to the standard logger.
type Log struct{}

func (Log) Emit(_ context.Context, e Event) error {
	switch ev := e.(type) {
	case DecisionClosed:
		log.Printf("events: decision %d in %s closed as %s (%s)", ev.DecisionID, ev.ChannelID, ev.Status, ev.Reason)
	case DecisionsAutoClosed:
		log.Printf("events: %d decisions auto-closed (%s) %v", len(ev.DecisionIDs), ev.Reason, ev.DecisionIDs)
	default:
		log.Printf("events: %s %s", e.Meta().Type, e.Meta().ID)
	}
	return nil
}
