package decisions

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/stake-plus/govdecisions/src/decisions/events"
	"github.com/stake-plus/govdecisions/src/shared/gov"
	"gorm.io/gorm"
)

// CloseResult reports an explicit close. Transitioned is false when the
// decision was already terminal, in which case Decision holds that state.
type CloseResult struct {
	Decision     *gov.Decision `json:"decision"`
	Transitioned bool          `json:"transitioned"`
}

// guard decides, under the decision's lock, whether a pending decision
// may move to the target status.
type guard func(d *gov.Decision) bool

// Close moves a pending decision to a terminal status. Closing an already
// closed decision changes nothing.
func (e *Engine) Close(ctx context.Context, id uint64, status gov.Status) (*CloseResult, error) {
	if !status.Terminal() {
		return nil, fmt.Errorf("%w: %q is not terminal", ErrInvalidStatus, status)
	}

	d, moved, err := e.transition(ctx, id, status, nil, e.clock.Now())
	if err != nil {
		return nil, err
	}
	if moved {
		e.metrics.Closed(string(status))
		log.Printf("decisions: #%d closed as %s", d.ID, d.Status)
		e.emit(ctx, events.NewDecisionClosed(d, events.ReasonManual, e.clock.Now()))
	}
	return &CloseResult{Decision: d, Transitioned: moved}, nil
}

// transition closes decision id as status at the given instant when it is
// pending and ok (if set) holds. It never emits; callers decide what to
// announce.
func (e *Engine) transition(ctx context.Context, id uint64, status gov.Status, ok guard, at time.Time) (*gov.Decision, bool, error) {
	var moved bool
	d, err := e.store.Mutate(ctx, id, func(_ *gorm.DB, d *gov.Decision) (bool, error) {
		moved = false
		if d.Status != gov.StatusPending {
			return false, nil
		}
		if ok != nil && !ok(d) {
			return false, nil
		}
		closedAt := at
		d.Status = status
		d.ClosedAt = &closedAt
		moved = true
		return true, nil
	})
	if err != nil {
		e.noteConflict(err)
		return nil, false, err
	}
	return d, moved, nil
}
