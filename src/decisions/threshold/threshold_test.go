package threshold

import (
	"testing"

	"github.com/stake-plus/govdecisions/src/shared/gov"
	"github.com/stretchr/testify/assert"
)

func TestRequiredApprovals(t *testing.T) {
	tests := []struct {
		name       string
		groupSize  int
		percentage int
		want       int
	}{
		{"sixty percent of ten", 10, 60, 6},
		{"rounds up", 5, 60, 3},
		{"rounds up small fraction", 7, 51, 4},
		{"unanimous", 4, 100, 4},
		{"minimum one", 1, 1, 1},
		{"empty group still needs one", 0, 60, 1},
		{"negative inputs clamp", -3, -10, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, RequiredApprovals(tt.groupSize, tt.percentage))
		})
	}
}

func TestVerdict(t *testing.T) {
	base := Snapshot{GroupSize: 10, ApprovalPercentage: 60}

	open := base
	open.Approvals, open.Rejections = 5, 4
	assert.Equal(t, Open, open.Verdict())

	approved := base
	approved.Approvals = 6
	assert.Equal(t, Approved, approved.Verdict())
	assert.Equal(t, gov.StatusApproved, approved.Verdict().Status())

	almost := base
	almost.Rejections = 5
	assert.False(t, almost.IsRejected())
	assert.Equal(t, Open, almost.Verdict())

	rejected := base
	rejected.Rejections = 6
	assert.True(t, rejected.IsRejected())
	assert.Equal(t, Rejected, rejected.Verdict())

	both := base
	both.Approvals, both.Rejections = 6, 6
	assert.Equal(t, Approved, both.Verdict())
}

func TestRejectionUsesApprovalThreshold(t *testing.T) {
	tests := []struct {
		name       string
		groupSize  int
		percentage int
		rejectAt   int
	}{
		{"sixty percent of ten", 10, 60, 6},
		{"thirty percent of ten", 10, 30, 3},
		{"unanimous", 4, 100, 4},
		{"single member", 1, 60, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Snapshot{GroupSize: tt.groupSize, ApprovalPercentage: tt.percentage}
			s.Rejections = tt.rejectAt - 1
			assert.False(t, s.IsRejected())
			s.Rejections = tt.rejectAt
			assert.True(t, s.IsRejected())
		})
	}
}

func TestIsUnreachable(t *testing.T) {
	s := Snapshot{GroupSize: 10, ApprovalPercentage: 60, Approvals: 2}
	assert.True(t, s.IsUnreachable(3))
	assert.False(t, s.IsUnreachable(4))
	assert.Equal(t, 4, s.Remaining())

	done := Snapshot{GroupSize: 10, ApprovalPercentage: 60, Approvals: 7}
	assert.False(t, done.IsUnreachable(0))
	assert.Equal(t, 0, done.Remaining())
}

func TestRequiredIgnoresLiveMembership(t *testing.T) {
	d := &gov.Decision{GroupSizeAtCreation: 10, ApprovalPercentage: 60, ApprovalCount: 2}
	s := FromDecision(d)
	before := s.Required()
	for _, members := range []int{20, 3, 0} {
		_ = s.IsUnreachable(members)
		assert.Equal(t, before, s.Required())
	}
}
