package decisions

import (
	"context"
	"fmt"
	"math/rand"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stake-plus/govdecisions/src/data"
	"github.com/stake-plus/govdecisions/src/decisions/events"
	"github.com/stake-plus/govdecisions/src/decisions/oracle"
	"github.com/stake-plus/govdecisions/src/decisions/store"
	"github.com/stake-plus/govdecisions/src/shared/gov"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm/logger"
)

var epoch = time.Date(2026, 2, 2, 9, 0, 0, 0, time.UTC)

type harness struct {
	engine *Engine
	store  *store.Store
	clock  *oracle.FixedClock
	events *events.Recorder
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	path := filepath.Join(t.TempDir(), "decisions.db")
	db, err := data.Connect(data.DriverSQLite, "file:"+path, data.Options{LogLevel: logger.Silent})
	require.NoError(t, err)
	t.Cleanup(func() { _ = data.Close(db) })
	require.NoError(t, data.Migrate(db))

	h := &harness{
		store:  store.New(db, store.WithBackoff(time.Millisecond)),
		clock:  oracle.NewFixedClock(epoch),
		events: &events.Recorder{},
	}
	h.engine = New(h.store, WithClock(h.clock), WithEmitter(h.events), WithSweepItemTimeout(5*time.Second))
	return h
}

func (h *harness) propose(t *testing.T, channel string, groupSize, pct, hours int) *gov.Decision {
	t.Helper()
	d, err := h.engine.Propose(context.Background(), ProposeRequest{
		Text:         "Switch the team retro to Thursdays",
		ProposerID:   "p1",
		ProposerName: "Pat",
		ChannelID:    channel,
		Config:       gov.ChannelConfig{ApprovalPercentage: pct, AutoCloseHours: hours},
		GroupSize:    groupSize,
	})
	require.NoError(t, err)
	return d
}

func (h *harness) vote(t *testing.T, id uint64, voter string, c gov.Choice) *VoteResult {
	t.Helper()
	res, err := h.engine.CastVote(context.Background(), VoteRequest{DecisionID: id, VoterID: voter, Choice: c})
	require.NoError(t, err)
	return res
}

func TestProposeSnapshotsThreshold(t *testing.T) {
	h := newHarness(t)
	d := h.propose(t, "C1", 10, 60, 48)

	assert.Equal(t, gov.StatusPending, d.Status)
	assert.Equal(t, 6, d.ApprovalThreshold)
	assert.Equal(t, 10, d.GroupSizeAtCreation)
	assert.Equal(t, 48, d.AutoCloseHours)
	assert.Nil(t, d.ClosedAt)
	assert.True(t, d.CreatedAt.Equal(epoch))
}

func TestProposeDefaultsAndClamps(t *testing.T) {
	h := newHarness(t)
	d, err := h.engine.Propose(context.Background(), ProposeRequest{
		Text: "  Order pizza for the launch  ", ProposerID: "p1", ChannelID: "C1",
	})
	require.NoError(t, err)
	assert.Equal(t, "Order pizza for the launch", d.Text)
	assert.Equal(t, DefaultApprovalPercentage, d.ApprovalPercentage)
	assert.Equal(t, DefaultAutoCloseHours, d.AutoCloseHours)
	assert.Equal(t, 1, d.GroupSizeAtCreation)
	assert.Equal(t, 1, d.ApprovalThreshold)
	assert.Equal(t, "p1", d.ProposerName)
}

func TestProposeValidation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	base := ProposeRequest{ProposerID: "p1", ChannelID: "C1", GroupSize: 4}

	cases := map[string]ProposeRequest{
		"too short":        {Text: "tiny"},
		"markup only":      {Text: "<b></b><script>alert('x')</script>"},
		"too long":         {Text: strings.Repeat("a", MaxTextLength+1)},
		"bad percentage":   {Text: "A perfectly fine proposal", Config: gov.ChannelConfig{ApprovalPercentage: 101}},
		"bad hours":        {Text: "A perfectly fine proposal", Config: gov.ChannelConfig{AutoCloseHours: -1}},
		"missing channel":  {Text: "A perfectly fine proposal", ChannelID: "-"},
		"missing proposer": {Text: "A perfectly fine proposal", ProposerID: "-"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			req := base
			req.Text = tc.Text
			req.Config = tc.Config
			if tc.ChannelID == "-" {
				req.ChannelID = ""
			}
			if tc.ProposerID == "-" {
				req.ProposerID = ""
			}
			_, err := h.engine.Propose(ctx, req)
			assert.ErrorIs(t, err, ErrInvalidProposal)
		})
	}

	d, err := h.engine.Propose(ctx, ProposeRequest{Text: "Fund <b>R&D</b> sprint", ProposerID: "p1", ChannelID: "C1"})
	require.NoError(t, err)
	assert.Equal(t, "Fund R&D sprint", d.Text)
}

func TestScenarioAApprovalClosesAndFreezes(t *testing.T) {
	h := newHarness(t)
	d := h.propose(t, "C1", 10, 60, 48)

	for i := 1; i <= 5; i++ {
		res := h.vote(t, d.ID, fmt.Sprintf("v%d", i), gov.ChoiceApprove)
		assert.Equal(t, gov.StatusPending, res.Status)
		assert.False(t, res.Closed)
		assert.Equal(t, 6-i, res.Remaining)
	}
	res := h.vote(t, d.ID, "v6", gov.ChoiceApprove)
	assert.Equal(t, gov.StatusApproved, res.Status)
	assert.True(t, res.Closed)
	assert.Equal(t, 6, res.ApprovalCount)
	assert.Equal(t, 0, res.Remaining)

	late, err := h.engine.CastVote(context.Background(), VoteRequest{DecisionID: d.ID, VoterID: "v7", Choice: gov.ChoiceReject})
	assert.ErrorIs(t, err, ErrDecisionNotVotable)
	require.NotNil(t, late)
	assert.Equal(t, gov.StatusApproved, late.Status)
	assert.Equal(t, 6, late.ApprovalCount)
	assert.Equal(t, 0, late.RejectionCount)

	stored, err := h.engine.Get(context.Background(), d.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.ClosedAt)

	closed := h.events.Closed()
	require.Len(t, closed, 1)
	assert.Equal(t, d.ID, closed[0].DecisionID)
	assert.Equal(t, events.ReasonApproved, closed[0].Reason)
}

func TestRejectionAtThreshold(t *testing.T) {
	h := newHarness(t)
	// 10 members at 60% need 6 approvals, and 6 rejections reject.
	d := h.propose(t, "C1", 10, 60, 48)

	var res *VoteResult
	for i := 1; i <= 5; i++ {
		res = h.vote(t, d.ID, fmt.Sprintf("r%d", i), gov.ChoiceReject)
		assert.Equal(t, gov.StatusPending, res.Status)
	}

	res = h.vote(t, d.ID, "r6", gov.ChoiceReject)
	assert.Equal(t, gov.StatusRejected, res.Status)
	assert.Equal(t, 6, res.RejectionCount)
	assert.True(t, res.Closed)
	require.Len(t, h.events.Closed(), 1)
	assert.Equal(t, events.ReasonRejected, h.events.Closed()[0].Reason)
}

func TestScenarioBExpirySweep(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	d := h.propose(t, "C1", 10, 60, 48)
	h.vote(t, d.ID, "v1", gov.ChoiceApprove)
	h.vote(t, d.ID, "v2", gov.ChoiceReject)

	early, err := h.engine.SweepExpirations(ctx, epoch.Add(47*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, early.Scanned)
	assert.Equal(t, 0, early.Closed)
	assert.Empty(t, h.events.AutoClosed())

	sweepAt := epoch.Add(49 * time.Hour)
	h.clock.Set(sweepAt)
	report, err := h.engine.SweepExpirations(ctx, sweepAt)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Closed)
	assert.Equal(t, []uint64{d.ID}, report.ClosedIDs)

	stored, err := h.engine.Get(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, gov.StatusExpired, stored.Status)
	require.NotNil(t, stored.ClosedAt)
	assert.True(t, stored.ClosedAt.Equal(sweepAt))
	assert.Equal(t, 1, stored.ApprovalCount)
	assert.Equal(t, 1, stored.RejectionCount)

	votes, err := h.engine.Votes(ctx, d.ID)
	require.NoError(t, err)
	assert.Len(t, votes, 2)

	batches := h.events.AutoClosed()
	require.Len(t, batches, 1)
	assert.Equal(t, events.ReasonExpired, batches[0].Reason)
	assert.Equal(t, []uint64{d.ID}, batches[0].DecisionIDs)

	again, err := h.engine.SweepExpirations(ctx, sweepAt.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 0, again.Scanned)
	assert.Len(t, h.events.AutoClosed(), 1)
}

func TestSweepBatchesOneEventPerPass(t *testing.T) {
	h := newHarness(t)
	a := h.propose(t, "C1", 10, 60, 1)
	b := h.propose(t, "C2", 10, 60, 2)
	h.propose(t, "C1", 10, 60, 72)

	report, err := h.engine.SweepExpirations(context.Background(), epoch.Add(3*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 3, report.Scanned)
	assert.Equal(t, []uint64{a.ID, b.ID}, report.ClosedIDs)
	require.Len(t, h.events.AutoClosed(), 1)
	assert.Equal(t, []uint64{a.ID, b.ID}, h.events.AutoClosed()[0].DecisionIDs)
}

func TestScenarioCMemberLeftUnreachable(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	d := h.propose(t, "C1", 10, 60, 48)
	h.vote(t, d.ID, "v1", gov.ChoiceApprove)
	h.vote(t, d.ID, "v2", gov.ChoiceApprove)
	other := h.propose(t, "C2", 10, 60, 48)

	still, err := h.engine.OnMemberLeft(ctx, "C1", 4)
	require.NoError(t, err)
	assert.Equal(t, 0, still.Closed)

	report, err := h.engine.OnMemberLeft(ctx, "C1", 3)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Scanned)
	assert.Equal(t, []uint64{d.ID}, report.ClosedIDs)

	stored, err := h.engine.Get(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, gov.StatusExpiredUnreachable, stored.Status)
	assert.Equal(t, 6, stored.ApprovalThreshold)
	assert.Equal(t, 10, stored.GroupSizeAtCreation)

	untouched, err := h.engine.Get(ctx, other.ID)
	require.NoError(t, err)
	assert.Equal(t, gov.StatusPending, untouched.Status)

	batches := h.events.AutoClosed()
	require.Len(t, batches, 1)
	assert.Equal(t, "C1", batches[0].ChannelID)
	assert.Equal(t, events.ReasonUnreachable, batches[0].Reason)

	_, err = h.engine.OnMemberLeft(ctx, "C1", -1)
	assert.Error(t, err)
}

func TestScenarioDRevoteKeepsOneLiveVote(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	d := h.propose(t, "C1", 10, 60, 48)

	first := h.vote(t, d.ID, "v1", gov.ChoiceApprove)
	assert.Nil(t, first.Previous)
	swapped := h.vote(t, d.ID, "v1", gov.ChoiceReject)
	require.NotNil(t, swapped.Previous)
	assert.Equal(t, gov.ChoiceApprove, *swapped.Previous)
	assert.Equal(t, 0, swapped.ApprovalCount)
	assert.Equal(t, 1, swapped.RejectionCount)
	final := h.vote(t, d.ID, "v1", gov.ChoiceApprove)
	assert.Equal(t, 1, final.ApprovalCount)
	assert.Equal(t, 0, final.RejectionCount)

	votes, err := h.engine.Votes(ctx, d.ID)
	require.NoError(t, err)
	require.Len(t, votes, 1)
	assert.Equal(t, gov.ChoiceApprove, votes[0].Choice)

	repeat := h.vote(t, d.ID, "v1", gov.ChoiceApprove)
	assert.False(t, repeat.Changed)
	assert.Equal(t, 1, repeat.ApprovalCount)
}

func TestCountersReconcileWithLiveVotes(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	d := h.propose(t, "C1", 1000, 50, 48)
	rng := rand.New(rand.NewSource(7))
	choices := []gov.Choice{gov.ChoiceApprove, gov.ChoiceReject}

	voters := map[string]bool{}
	for i := 0; i < 120; i++ {
		voter := fmt.Sprintf("v%d", rng.Intn(25))
		voters[voter] = true
		before, err := h.engine.Get(ctx, d.ID)
		require.NoError(t, err)

		res := h.vote(t, d.ID, voter, choices[rng.Intn(2)])
		total := res.ApprovalCount + res.RejectionCount
		assert.Equal(t, len(voters), total)
		assert.LessOrEqual(t, total-(before.ApprovalCount+before.RejectionCount), 1)
	}

	votes, err := h.engine.Votes(ctx, d.ID)
	require.NoError(t, err)
	approvals, rejections := 0, 0
	for _, v := range votes {
		if v.Choice == gov.ChoiceApprove {
			approvals++
		} else {
			rejections++
		}
	}
	assert.Len(t, votes, len(voters))
	stored, err := h.engine.Get(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, approvals, stored.ApprovalCount)
	assert.Equal(t, rejections, stored.RejectionCount)
}

func TestTerminalDecisionIsFrozen(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	d := h.propose(t, "C1", 2, 50, 1)
	h.vote(t, d.ID, "v1", gov.ChoiceApprove)

	closed, err := h.engine.Get(ctx, d.ID)
	require.NoError(t, err)
	require.Equal(t, gov.StatusApproved, closed.Status)

	_, err = h.engine.SweepExpirations(ctx, epoch.Add(100*time.Hour))
	require.NoError(t, err)
	_, err = h.engine.OnMemberLeft(ctx, "C1", 0)
	require.NoError(t, err)
	_, err = h.engine.CastVote(ctx, VoteRequest{DecisionID: d.ID, VoterID: "v1", Choice: gov.ChoiceReject})
	assert.ErrorIs(t, err, ErrDecisionNotVotable)

	after, err := h.engine.Get(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, closed.Status, after.Status)
	assert.Equal(t, closed.ApprovalCount, after.ApprovalCount)
	assert.Equal(t, closed.RejectionCount, after.RejectionCount)
	assert.Equal(t, closed.Version, after.Version)
	assert.True(t, closed.ClosedAt.Equal(*after.ClosedAt))
}

func TestCloseIsIdempotent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	d := h.propose(t, "C1", 10, 60, 48)

	first, err := h.engine.Close(ctx, d.ID, gov.StatusRejected)
	require.NoError(t, err)
	assert.True(t, first.Transitioned)

	h.clock.Advance(time.Hour)
	second, err := h.engine.Close(ctx, d.ID, gov.StatusApproved)
	require.NoError(t, err)
	assert.False(t, second.Transitioned)
	assert.Equal(t, gov.StatusRejected, second.Decision.Status)
	assert.True(t, first.Decision.ClosedAt.Equal(*second.Decision.ClosedAt))
	require.Len(t, h.events.Closed(), 1)
	assert.Equal(t, events.ReasonManual, h.events.Closed()[0].Reason)

	_, err = h.engine.Close(ctx, d.ID, gov.StatusPending)
	assert.ErrorIs(t, err, ErrInvalidStatus)
	_, err = h.engine.Close(ctx, 9999, gov.StatusExpired)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCastVoteErrors(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	d := h.propose(t, "C1", 10, 60, 48)

	_, err := h.engine.CastVote(ctx, VoteRequest{DecisionID: 9999, VoterID: "v1", Choice: gov.ChoiceApprove})
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = h.engine.CastVote(ctx, VoteRequest{DecisionID: d.ID, VoterID: "v1", Choice: "maybe"})
	assert.ErrorIs(t, err, ErrInvalidChoice)
	_, err = h.engine.CastVote(ctx, VoteRequest{DecisionID: d.ID, Choice: gov.ChoiceApprove})
	assert.ErrorIs(t, err, ErrInvalidVoter)
}

func TestConcurrentVotesOnOneDecision(t *testing.T) {
	h := newHarness(t)
	d := h.propose(t, "C1", 100, 60, 48)

	var wg sync.WaitGroup
	for i := 0; i < 30; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c := gov.ChoiceApprove
			if i%3 == 0 {
				c = gov.ChoiceReject
			}
			_, err := h.engine.CastVote(context.Background(), VoteRequest{DecisionID: d.ID, VoterID: fmt.Sprintf("v%d", i), Choice: c})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	stored, err := h.engine.Get(context.Background(), d.ID)
	require.NoError(t, err)
	assert.Equal(t, 20, stored.ApprovalCount)
	assert.Equal(t, 10, stored.RejectionCount)
}

func TestPassIsolatesFailures(t *testing.T) {
	h := newHarness(t)
	d := h.propose(t, "C1", 10, 60, 1)

	report, err := h.engine.runPass(context.Background(), KindExpiry, "", 2, []uint64{d.ID, 424242},
		gov.StatusExpired, nil, events.ReasonExpired, epoch.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, []uint64{d.ID}, report.ClosedIDs)
	assert.Equal(t, []uint64{424242}, report.FailedIDs)
	assert.Equal(t, 1, report.Failed)
	require.Len(t, h.events.AutoClosed(), 1)
}

func TestSweepStampsPassTime(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	d := h.propose(t, "C1", 10, 60, 48)

	// The engine clock stays at creation time; the pass time wins.
	sweepAt := epoch.Add(49 * time.Hour)
	report, err := h.engine.SweepExpirations(ctx, sweepAt)
	require.NoError(t, err)
	assert.Equal(t, []uint64{d.ID}, report.ClosedIDs)

	stored, err := h.engine.Get(ctx, d.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.ClosedAt)
	assert.True(t, stored.ClosedAt.Equal(sweepAt), "closed_at %s", stored.ClosedAt)
	assert.False(t, stored.ClosedAt.Before(stored.ExpiresAt()))

	require.Len(t, h.events.AutoClosed(), 1)
	assert.True(t, h.events.AutoClosed()[0].EmittedAt.Equal(sweepAt))
}

func TestStuckDecisionDoesNotStallSweep(t *testing.T) {
	h := newHarness(t)
	h.engine = New(h.store, WithClock(h.clock), WithEmitter(h.events), WithSweepItemTimeout(100*time.Millisecond))
	ctx := context.Background()

	stuck := h.propose(t, "C1", 10, 60, 1)
	release, err := h.store.Lock(ctx, stuck.ID)
	require.NoError(t, err)

	// Find a decision whose lock stripe is not the held one.
	var free *gov.Decision
	for i := 0; i < 16 && free == nil; i++ {
		d := h.propose(t, "C1", 10, 60, 1)
		tryCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
		unlock, err := h.store.Lock(tryCtx, d.ID)
		cancel()
		if err == nil {
			unlock()
			free = d
		}
	}
	require.NotNil(t, free)

	start := time.Now()
	report, err := h.engine.SweepExpirations(ctx, epoch.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Contains(t, report.FailedIDs, stuck.ID)
	assert.Contains(t, report.ClosedIDs, free.ID)
	assert.NotContains(t, report.ClosedIDs, stuck.ID)

	stored, err := h.engine.Get(ctx, stuck.ID)
	require.NoError(t, err)
	assert.Equal(t, gov.StatusPending, stored.Status)

	release()
	again, err := h.engine.SweepExpirations(ctx, epoch.Add(3*time.Hour))
	require.NoError(t, err)
	assert.Contains(t, again.ClosedIDs, stuck.ID)
	assert.Empty(t, again.FailedIDs)
}

func TestAggregate(t *testing.T) {
	r := aggregate(KindMemberLeft, "C1", 4, []outcome{
		{id: 9, closed: true},
		{id: 3, closed: true},
		{id: 5},
		{id: 7, err: assert.AnError},
	})
	assert.Equal(t, []uint64{3, 9}, r.ClosedIDs)
	assert.Equal(t, []uint64{7}, r.FailedIDs)
	assert.Equal(t, 2, r.Closed)
	assert.Equal(t, 4, r.Scanned)
	assert.NotEmpty(t, r.RunID)
}

func TestListSearchSummary(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a := h.propose(t, "C1", 10, 60, 48)
	h.clock.Advance(time.Minute)
	b := h.propose(t, "C1", 10, 60, 48)
	_, err := h.engine.Close(ctx, a.ID, gov.StatusExpired)
	require.NoError(t, err)

	list, err := h.engine.List(ctx, "C1", ListOptions{})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, b.ID, list[0].ID)

	_, err = h.engine.List(ctx, "C1", ListOptions{Status: "weird"})
	assert.ErrorIs(t, err, ErrInvalidStatus)

	found, err := h.engine.Search(ctx, "C1", "retro", 0)
	require.NoError(t, err)
	assert.Len(t, found, 2)

	sum, err := h.engine.Summary(ctx, "C1")
	require.NoError(t, err)
	assert.EqualValues(t, 2, sum.Total)
	assert.EqualValues(t, 1, sum.ByStatus[gov.StatusExpired])
	assert.EqualValues(t, 1, sum.ByStatus[gov.StatusPending])

	channels, err := h.engine.PendingChannels(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"C1"}, channels)
}

func TestRedactVotes(t *testing.T) {
	votes := []gov.Vote{
		{VoterID: "a", VoterName: "Ann", IsAnonymous: true},
		{VoterID: "b", VoterName: "Ben"},
	}
	forOther := RedactVotes(votes, "b")
	assert.Empty(t, forOther[0].VoterID)
	assert.Equal(t, "Ben", forOther[1].VoterName)

	forSelf := RedactVotes(votes, "a")
	assert.Equal(t, "Ann", forSelf[0].VoterName)
	assert.Equal(t, "a", votes[0].VoterID)
}
