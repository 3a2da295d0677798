package ledger

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stake-plus/govdecisions/src/data"
	"github.com/stake-plus/govdecisions/src/shared/gov"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setup(t *testing.T) (*gorm.DB, *gov.Decision) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ledger.db")
	db, err := data.Connect(data.DriverSQLite, "file:"+path, data.Options{LogLevel: logger.Silent})
	require.NoError(t, err)
	t.Cleanup(func() { _ = data.Close(db) })
	require.NoError(t, data.Migrate(db))

	d := &gov.Decision{
		Text: "Move standup to 10am", Status: gov.StatusPending, ProposerID: "u1", ProposerName: "Alice",
		ChannelID: "C1", GroupSizeAtCreation: 5, ApprovalPercentage: 60, ApprovalThreshold: 3, AutoCloseHours: 48,
	}
	require.NoError(t, db.Create(d).Error)
	return db, d
}

func TestApplyFirstVote(t *testing.T) {
	db, d := setup(t)
	now := time.Now().UTC()

	e, err := Apply(db, d, Ballot{VoterID: "v1", VoterName: "Bob", Choice: gov.ChoiceApprove, Anonymous: true}, now)
	require.NoError(t, err)
	assert.True(t, e.Changed)
	assert.Nil(t, e.Previous)
	assert.True(t, e.Vote.IsAnonymous)
	assert.Equal(t, 1, d.ApprovalCount)
	assert.Equal(t, 0, d.RejectionCount)
}

func TestApplySameChoiceIsNoop(t *testing.T) {
	db, d := setup(t)
	now := time.Now().UTC()

	_, err := Apply(db, d, Ballot{VoterID: "v1", Choice: gov.ChoiceReject}, now)
	require.NoError(t, err)

	e, err := Apply(db, d, Ballot{VoterID: "v1", Choice: gov.ChoiceReject, Anonymous: true}, now.Add(time.Minute))
	require.NoError(t, err)
	assert.False(t, e.Changed)
	assert.False(t, e.Vote.IsAnonymous)
	assert.Equal(t, 1, d.RejectionCount)

	var count int64
	require.NoError(t, db.Model(&gov.Vote{}).Where("decision_id = ?", d.ID).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestApplySwapsBuckets(t *testing.T) {
	db, d := setup(t)
	now := time.Now().UTC()

	_, err := Apply(db, d, Ballot{VoterID: "v1", Choice: gov.ChoiceApprove}, now)
	require.NoError(t, err)
	_, err = Apply(db, d, Ballot{VoterID: "v2", Choice: gov.ChoiceApprove}, now)
	require.NoError(t, err)

	e, err := Apply(db, d, Ballot{VoterID: "v1", Choice: gov.ChoiceReject}, now)
	require.NoError(t, err)
	require.NotNil(t, e.Previous)
	assert.Equal(t, gov.ChoiceApprove, *e.Previous)
	assert.Equal(t, 1, d.ApprovalCount)
	assert.Equal(t, 1, d.RejectionCount)

	var approvals, rejections int64
	require.NoError(t, db.Model(&gov.Vote{}).Where("decision_id = ? AND choice = ?", d.ID, gov.ChoiceApprove).Count(&approvals).Error)
	require.NoError(t, db.Model(&gov.Vote{}).Where("decision_id = ? AND choice = ?", d.ID, gov.ChoiceReject).Count(&rejections).Error)
	assert.EqualValues(t, d.ApprovalCount, approvals)
	assert.EqualValues(t, d.RejectionCount, rejections)
}

func TestApplyRejectsUnknownChoice(t *testing.T) {
	db, d := setup(t)
	_, err := Apply(db, d, Ballot{VoterID: "v1", Choice: "abstain"}, time.Now())
	assert.Error(t, err)
	assert.Equal(t, 0, d.ApprovalCount+d.RejectionCount)
}

func TestApplyDefaultsVoterName(t *testing.T) {
	db, d := setup(t)
	e, err := Apply(db, d, Ballot{VoterID: "v9", Choice: gov.ChoiceApprove}, time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, "v9", e.Vote.VoterName)
}
