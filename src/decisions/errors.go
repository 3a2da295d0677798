package decisions

import (
	"errors"

	"github.com/stake-plus/govdecisions/src/decisions/store"
)

var (
	// ErrNotFound is returned when no decision has the requested id.
	ErrNotFound = store.ErrNotFound
	// ErrDecisionNotVotable is returned for votes on a closed decision.
	ErrDecisionNotVotable = errors.New("decisions: decision is not open for voting")
	// ErrOracleUnavailable is returned when the membership oracle fails.
	ErrOracleUnavailable = errors.New("decisions: membership oracle unavailable")
	// ErrConcurrentModification is returned when a write kept losing races.
	ErrConcurrentModification = store.ErrConcurrentModification
	ErrInvalidChoice          = errors.New("decisions: choice must be approve or reject")
	ErrInvalidProposal        = errors.New("decisions: proposal text must be 10 to 500 characters")
	ErrInvalidStatus          = errors.New("decisions: invalid status")
	ErrInvalidVoter           = errors.New("decisions: voter id is required")
)
