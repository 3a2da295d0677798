// Package threshold evaluates decision outcomes from snapshotted group size
// and live vote counts. Nothing here performs I/O or mutates its inputs.
package threshold

import "github.com/stake-plus/govdecisions/src/shared/gov"

// Outcome is the evaluator's verdict for a pending decision.
type Outcome int

const (
	Open Outcome = iota
	Approved
	Rejected
)

func (o Outcome) String() string {
	switch o {
	case Approved:
		return "approved"
	case Rejected:
		return "rejected"
	default:
		return "open"
	}
}

// Status maps a closing outcome to its terminal decision status.
func (o Outcome) Status() gov.Status {
	switch o {
	case Approved:
		return gov.StatusApproved
	case Rejected:
		return gov.StatusRejected
	default:
		return gov.StatusPending
	}
}

// Snapshot is the subset of a decision the evaluator reads.
type Snapshot struct {
	GroupSize          int
	ApprovalPercentage int
	Approvals          int
	Rejections         int
}

// FromDecision builds a snapshot from a stored decision.
func FromDecision(d *gov.Decision) Snapshot {
	return Snapshot{
		GroupSize:          d.GroupSizeAtCreation,
		ApprovalPercentage: d.ApprovalPercentage,
		Approvals:          d.ApprovalCount,
		Rejections:         d.RejectionCount,
	}
}

// RequiredApprovals is ceil(groupSize * percentage / 100), never below 1.
func RequiredApprovals(groupSize, percentage int) int {
	if groupSize < 0 {
		groupSize = 0
	}
	if percentage < 0 {
		percentage = 0
	}
	required := (groupSize*percentage + 99) / 100
	if required < 1 {
		return 1
	}
	return required
}

// Required returns the approvals needed for this snapshot.
func (s Snapshot) Required() int {
	return RequiredApprovals(s.GroupSize, s.ApprovalPercentage)
}

// IsApproved reports whether approvals reached the threshold.
func (s Snapshot) IsApproved() bool {
	return s.Approvals >= s.Required()
}

// IsRejected reports whether rejections reached the same threshold that
// approvals need.
func (s Snapshot) IsRejected() bool {
	return s.Rejections >= s.Required()
}

// IsUnreachable reports whether currentMembers, all approving, could no
// longer close the gap to the threshold.
func (s Snapshot) IsUnreachable(currentMembers int) bool {
	return currentMembers < s.Required()-s.Approvals
}

// Verdict evaluates the vote-driven guards. Approval wins when both hold.
func (s Snapshot) Verdict() Outcome {
	if s.IsApproved() {
		return Approved
	}
	if s.IsRejected() {
		return Rejected
	}
	return Open
}

// Remaining is how many more approvals the decision needs.
func (s Snapshot) Remaining() int {
	if r := s.Required() - s.Approvals; r > 0 {
		return r
	}
	return 0
}
