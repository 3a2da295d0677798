package decisions

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/stake-plus/govdecisions/src/decisions/events"
	"github.com/stake-plus/govdecisions/src/decisions/threshold"
	"github.com/stake-plus/govdecisions/src/shared/gov"
	"golang.org/x/sync/errgroup"
)

// Pass kinds, used in reports, logs and metrics.
const (
	KindExpiry     = "expiry"
	KindMemberLeft = "member_left"
)

// SweepReport summarises one lifecycle pass.
type SweepReport struct {
	RunID     string   `json:"runId"`
	Kind      string   `json:"kind"`
	ChannelID string   `json:"channelId,omitempty"`
	Scanned   int      `json:"scanned"`
	Closed    int      `json:"closed"`
	Failed    int      `json:"failed"`
	ClosedIDs []uint64 `json:"closedIds"`
	FailedIDs []uint64 `json:"failedIds,omitempty"`
}

// outcome is the result of evaluating one decision in a pass.
type outcome struct {
	id     uint64
	closed bool
	err    error
}

// SweepExpirations closes every pending decision whose auto-close window
// ended at or before now. Failures on one decision do not stop the pass.
func (e *Engine) SweepExpirations(ctx context.Context, now time.Time) (*SweepReport, error) {
	pending, err := e.store.List(ctx, "", gov.StatusPending, 0, 0)
	if err != nil {
		return nil, err
	}

	var due []uint64
	for i := range pending {
		if !now.Before(pending[i].ExpiresAt()) {
			due = append(due, pending[i].ID)
		}
	}

	expired := func(d *gov.Decision) bool { return !now.Before(d.ExpiresAt()) }
	return e.runPass(ctx, KindExpiry, "", len(pending), due, gov.StatusExpired, expired, events.ReasonExpired, now)
}

// OnMemberLeft closes the channel's pending decisions that currentMembers
// can no longer approve. Snapshots are compared, never rewritten.
func (e *Engine) OnMemberLeft(ctx context.Context, channelID string, currentMembers int) (*SweepReport, error) {
	if currentMembers < 0 {
		return nil, fmt.Errorf("decisions: negative member count %d", currentMembers)
	}
	pending, err := e.store.List(ctx, channelID, gov.StatusPending, 0, 0)
	if err != nil {
		return nil, err
	}

	unreachable := func(d *gov.Decision) bool {
		return d.ChannelID == channelID && threshold.FromDecision(d).IsUnreachable(currentMembers)
	}
	var doomed []uint64
	for i := range pending {
		if unreachable(&pending[i]) {
			doomed = append(doomed, pending[i].ID)
		}
	}
	return e.runPass(ctx, KindMemberLeft, channelID, len(pending), doomed, gov.StatusExpiredUnreachable, unreachable, events.ReasonUnreachable, e.clock.Now())
}

// runPass closes ids as status, stamping closed_at with now.
func (e *Engine) runPass(ctx context.Context, kind, channelID string, scanned int, ids []uint64, status gov.Status, ok guard, reason events.Reason, now time.Time) (*SweepReport, error) {
	start := time.Now()
	outcomes := e.evaluate(ctx, ids, func(ctx context.Context, id uint64) (bool, error) {
		_, moved, err := e.transition(ctx, id, status, ok, now)
		return moved, err
	})
	report := aggregate(kind, channelID, scanned, outcomes)
	e.metrics.Sweep(kind, report.Failed, time.Since(start))

	for range report.ClosedIDs {
		e.metrics.Closed(string(status))
	}
	if report.Closed > 0 {
		e.emit(ctx, events.NewDecisionsAutoClosed(report.ClosedIDs, channelID, reason, now))
	}
	if report.Closed > 0 || report.Failed > 0 {
		log.Printf("decisions: %s pass %s closed %d of %d pending (%d failed)", kind, report.RunID, report.Closed, report.Scanned, report.Failed)
	}
	return report, ctx.Err()
}

// evaluate applies fn to every id with bounded parallelism. Each call
// gets its own timeout; an error is recorded, never propagated.
func (e *Engine) evaluate(ctx context.Context, ids []uint64, fn func(context.Context, uint64) (bool, error)) []outcome {
	outcomes := make([]outcome, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			itemCtx, cancel := context.WithTimeout(gctx, e.itemTimeout)
			defer cancel()
			closed, err := fn(itemCtx, id)
			if err != nil && !errors.Is(err, ErrNotFound) {
				log.Printf("decisions: evaluate #%d: %v", id, err)
			}
			outcomes[i] = outcome{id: id, closed: closed, err: err}
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}

// aggregate folds per-decision outcomes into a report.
func aggregate(kind, channelID string, scanned int, outcomes []outcome) *SweepReport {
	r := &SweepReport{
		RunID:     uuid.NewString(),
		Kind:      kind,
		ChannelID: channelID,
		Scanned:   scanned,
		ClosedIDs: []uint64{},
	}
	for _, o := range outcomes {
		switch {
		case o.err != nil:
			r.FailedIDs = append(r.FailedIDs, o.id)
		case o.closed:
			r.ClosedIDs = append(r.ClosedIDs, o.id)
		}
	}
	sort.Slice(r.ClosedIDs, func(i, j int) bool { return r.ClosedIDs[i] < r.ClosedIDs[j] })
	sort.Slice(r.FailedIDs, func(i, j int) bool { return r.FailedIDs[i] < r.FailedIDs[j] })
	r.Closed = len(r.ClosedIDs)
	r.Failed = len(r.FailedIDs)
	return r
}
