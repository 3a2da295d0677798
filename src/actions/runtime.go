package actions

import (
	"log"

	"github.com/stake-plus/govdecisions/src/actions/core"
	"github.com/stake-plus/govdecisions/src/decisions"
	"github.com/stake-plus/govdecisions/src/metrics"
)

type (
	// Manager re-exports the core.Manager for consumers outside the actions package.
	Manager = core.Manager
	// Module re-exports the core.Module interface.
	Module = core.Module
)

// NewManager is a helper that forwards to core.NewManager.
func NewManager(mods ...Module) *Manager {
	return core.NewManager(mods...)
}

// Runtime is the assembled service: the engine, its modules and the
// client connections opened for them.
type Runtime struct {
	Manager *Manager
	Service *decisions.Service
	Metrics *metrics.Metrics

	closers []namedCloser
}

type namedCloser struct {
	name string
	fn   func() error
}

func (r *Runtime) onClose(name string, fn func() error) {
	r.closers = append(r.closers, namedCloser{name: name, fn: fn})
}

// Close releases client connections in reverse order of opening. Modules
// must already be stopped.
func (r *Runtime) Close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		c := r.closers[i]
		if err := c.fn(); err != nil {
			log.Printf("actions: close %s: %v", c.name, err)
		}
	}
	r.closers = nil
}
