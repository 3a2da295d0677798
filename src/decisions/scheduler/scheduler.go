// Package scheduler drives the periodic lifecycle passes.
package scheduler

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/stake-plus/govdecisions/src/decisions"
	"github.com/stake-plus/govdecisions/src/decisions/oracle"
)

// DefaultInterval is used when Config.Interval is unset.
const DefaultInterval = time.Minute

// Sweeper closes expired decisions.
type Sweeper interface {
	SweepExpirations(ctx context.Context, now time.Time) (*decisions.SweepReport, error)
}

// Reconciler re-checks every channel with pending decisions against its
// live membership.
type Reconciler interface {
	MemberLeftEverywhere(ctx context.Context) ([]*decisions.SweepReport, error)
}

type Config struct {
	Interval time.Duration
	// PassTimeout bounds a whole tick. Zero means the interval.
	PassTimeout time.Duration
}

// Module runs an expiry sweep immediately and then on every tick, plus a
// membership reconcile when a Reconciler is set.
type Module struct {
	cfg        Config
	sweeper    Sweeper
	reconciler Reconciler
	clock      oracle.Clock

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	passes int
}

func New(cfg Config, sweeper Sweeper, reconciler Reconciler, clock oracle.Clock) *Module {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.PassTimeout <= 0 {
		cfg.PassTimeout = cfg.Interval
	}
	if clock == nil {
		clock = oracle.SystemClock{}
	}
	return &Module{cfg: cfg, sweeper: sweeper, reconciler: reconciler, clock: clock}
}

func (m *Module) Name() string { return "scheduler" }

func (m *Module) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancel != nil {
		return errors.New("scheduler: already running")
	}
	if m.sweeper == nil {
		return errors.New("scheduler: no sweeper configured")
	}

	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.done = make(chan struct{})
	go m.loop(runCtx, m.done)

	log.Printf("scheduler: started (interval %s)", m.cfg.Interval)
	return nil
}

func (m *Module) Stop(ctx context.Context) {
	m.mu.Lock()
	cancel, done := m.cancel, m.done
	m.cancel, m.done = nil, nil
	m.mu.Unlock()
	if cancel == nil {
		return
	}

	cancel()
	select {
	case <-done:
		log.Printf("scheduler: stopped")
	case <-ctx.Done():
		log.Printf("scheduler: stop timed out: %v", ctx.Err())
	}
}

// Passes reports how many ticks have completed.
func (m *Module) Passes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.passes
}

func (m *Module) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	m.RunOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.RunOnce(ctx)
		}
	}
}

// RunOnce performs a single tick synchronously.
func (m *Module) RunOnce(ctx context.Context) {
	passCtx, cancel := context.WithTimeout(ctx, m.cfg.PassTimeout)
	defer cancel()

	if _, err := m.sweeper.SweepExpirations(passCtx, m.clock.Now()); err != nil && ctx.Err() == nil {
		log.Printf("scheduler: expiry sweep: %v", err)
	}
	if m.reconciler != nil {
		if _, err := m.reconciler.MemberLeftEverywhere(passCtx); err != nil && ctx.Err() == nil {
			log.Printf("scheduler: membership reconcile: %v", err)
		}
	}

	m.mu.Lock()
	m.passes++
	m.mu.Unlock()
}
