package decisions

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/stake-plus/govdecisions/src/decisions/events"
	"github.com/stake-plus/govdecisions/src/decisions/ledger"
	"github.com/stake-plus/govdecisions/src/decisions/threshold"
	"github.com/stake-plus/govdecisions/src/shared/gov"
	"gorm.io/gorm"
)

// VoteRequest is one voter's ballot on a decision.
type VoteRequest struct {
	DecisionID uint64
	VoterID    string
	VoterName  string
	Choice     gov.Choice
	Anonymous  bool
}

// VoteResult is the tally after a vote. It is also returned alongside
// ErrDecisionNotVotable so callers can show the final state.
type VoteResult struct {
	DecisionID     uint64      `json:"decisionId"`
	ApprovalCount  int         `json:"approvalCount"`
	RejectionCount int         `json:"rejectionCount"`
	Required       int         `json:"required"`
	Remaining      int         `json:"remaining"`
	Status         gov.Status  `json:"status"`
	Changed        bool        `json:"changed"`
	Previous       *gov.Choice `json:"previous,omitempty"`
	// Closed is true when this vote moved the decision to a terminal state.
	Closed bool `json:"closed"`
}

func resultFrom(d *gov.Decision) VoteResult {
	return VoteResult{
		DecisionID:     d.ID,
		ApprovalCount:  d.ApprovalCount,
		RejectionCount: d.RejectionCount,
		Required:       d.ApprovalThreshold,
		Remaining:      threshold.FromDecision(d).Remaining(),
		Status:         d.Status,
	}
}

// CastVote records a vote and closes the decision in the same transaction
// when the vote satisfies the approval or rejection rule.
func (e *Engine) CastVote(ctx context.Context, req VoteRequest) (*VoteResult, error) {
	if !req.Choice.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidChoice, req.Choice)
	}
	if strings.TrimSpace(req.VoterID) == "" {
		return nil, ErrInvalidVoter
	}

	var res VoteResult
	d, err := e.store.Mutate(ctx, req.DecisionID, func(tx *gorm.DB, d *gov.Decision) (bool, error) {
		res = resultFrom(d)
		if d.IsClosed() {
			return false, ErrDecisionNotVotable
		}

		now := e.clock.Now()
		entry, err := ledger.Apply(tx, d, ledger.Ballot{
			VoterID:   req.VoterID,
			VoterName: req.VoterName,
			Choice:    req.Choice,
			Anonymous: req.Anonymous,
		}, now)
		if err != nil {
			return false, err
		}
		res.Previous = entry.Previous
		if !entry.Changed {
			return false, nil
		}
		res.Changed = true

		if outcome := threshold.FromDecision(d).Verdict(); outcome != threshold.Open {
			d.Status = outcome.Status()
			d.ClosedAt = &now
			res.Closed = true
		}
		return true, nil
	})
	if err != nil {
		if errors.Is(err, ErrDecisionNotVotable) {
			return &res, fmt.Errorf("decision %d is %s: %w", req.DecisionID, res.Status, ErrDecisionNotVotable)
		}
		e.noteConflict(err)
		return nil, err
	}

	out := resultFrom(d)
	out.Changed = res.Changed
	out.Previous = res.Previous
	out.Closed = res.Closed
	e.metrics.Vote(string(req.Choice), out.Changed)

	if out.Closed {
		e.metrics.Closed(string(d.Status))
		log.Printf("decisions: #%d %s by vote (%d approve, %d reject)", d.ID, d.Status, d.ApprovalCount, d.RejectionCount)
		e.emit(ctx, events.NewDecisionClosed(d, events.ReasonFor(d.Status), e.clock.Now()))
	}
	return &out, nil
}
