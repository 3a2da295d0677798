// Package ledger records live votes and keeps decision counters in step
// with them. Callers hold the decision's lock and pass its transaction.
package ledger

import (
	"errors"
	"fmt"
	"time"

	"github.com/stake-plus/govdecisions/src/shared/gov"
	"gorm.io/gorm"
)

// Ballot is one vote to apply.
type Ballot struct {
	VoterID   string
	VoterName string
	Choice    gov.Choice
	Anonymous bool
}

// Entry describes what Apply did.
type Entry struct {
	// Changed is false when the voter repeated their live choice.
	Changed bool
	// Previous is the replaced choice, nil on a first vote.
	Previous *gov.Choice
	Vote     gov.Vote
}

// Apply inserts or updates the voter's live vote on d and adjusts d's
// counters in memory. d must be pending; the caller persists d.
func Apply(tx *gorm.DB, d *gov.Decision, b Ballot, now time.Time) (*Entry, error) {
	if !b.Choice.Valid() {
		return nil, fmt.Errorf("ledger: invalid choice %q", b.Choice)
	}

	var existing gov.Vote
	err := tx.Where("decision_id = ? AND voter_id = ?", d.ID, b.VoterID).Take(&existing).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		v := gov.Vote{
			DecisionID:  d.ID,
			VoterID:     b.VoterID,
			VoterName:   nameOr(b.VoterName, b.VoterID),
			Choice:      b.Choice,
			IsAnonymous: b.Anonymous,
			VotedAt:     now,
		}
		if err := tx.Create(&v).Error; err != nil {
			return nil, fmt.Errorf("ledger: insert vote: %w", err)
		}
		bump(d, b.Choice, 1)
		return &Entry{Changed: true, Vote: v}, nil
	case err != nil:
		return nil, fmt.Errorf("ledger: read vote: %w", err)
	}

	if existing.Choice == b.Choice {
		return &Entry{Vote: existing}, nil
	}

	prev := existing.Choice
	existing.Choice = b.Choice
	existing.IsAnonymous = b.Anonymous
	existing.VotedAt = now
	if b.VoterName != "" {
		existing.VoterName = b.VoterName
	}
	err = tx.Model(&gov.Vote{}).Where("id = ?", existing.ID).Updates(map[string]interface{}{
		"choice":       existing.Choice,
		"is_anonymous": existing.IsAnonymous,
		"voter_name":   existing.VoterName,
		"voted_at":     existing.VotedAt,
	}).Error
	if err != nil {
		return nil, fmt.Errorf("ledger: update vote: %w", err)
	}
	bump(d, prev, -1)
	bump(d, b.Choice, 1)
	return &Entry{Changed: true, Previous: &prev, Vote: existing}, nil
}

func bump(d *gov.Decision, c gov.Choice, delta int) {
	switch c {
	case gov.ChoiceApprove:
		d.ApprovalCount += delta
	case gov.ChoiceReject:
		d.RejectionCount += delta
	}
}

func nameOr(name, fallback string) string {
	if name != "" {
		return name
	}
	return fallback
}
