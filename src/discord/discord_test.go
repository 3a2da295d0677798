package discord

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/stake-plus/govdecisions/src/decisions"
	"github.com/stake-plus/govdecisions/src/decisions/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeGuild struct {
	members []*discordgo.Member
	err     error
	calls   int
}

func (f *fakeGuild) GuildMembers(_ string, after string, limit int, _ ...discordgo.RequestOption) ([]*discordgo.Member, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	start := 0
	if after != "" {
		for i, m := range f.members {
			if m != nil && m.User != nil && m.User.ID == after {
				start = i + 1
			}
		}
	}
	end := start + limit
	if end > len(f.members) {
		end = len(f.members)
	}
	return f.members[start:end], nil
}

func member(id string, bot bool, roles ...string) *discordgo.Member {
	return &discordgo.Member{User: &discordgo.User{ID: id, Bot: bot}, Roles: roles}
}

func TestMembershipCountsVotersAcrossPages(t *testing.T) {
	g := &fakeGuild{}
	for i := 0; i < membersPageSize+5; i++ {
		roles := []string{}
		if i%2 == 0 {
			roles = append(roles, "voter")
		}
		g.members = append(g.members, member(fmt.Sprintf("%05d", i), false, roles...))
	}
	g.members = append(g.members, member("bot", true, "voter"))

	n, err := NewMembership(g, "G1", "voter").MemberCount(context.Background(), "C1")
	require.NoError(t, err)
	assert.Equal(t, (membersPageSize+5+1)/2, n)
	assert.Equal(t, 2, g.calls)

	all, err := NewMembership(&fakeGuild{members: g.members}, "G1", "").MemberCount(context.Background(), "C1")
	require.NoError(t, err)
	assert.Equal(t, membersPageSize+5, all)
}

func TestMembershipSkipsMembersWithoutUser(t *testing.T) {
	g := &fakeGuild{}
	for i := 0; i < membersPageSize-1; i++ {
		g.members = append(g.members, member(fmt.Sprintf("%05d", i), false))
	}
	g.members = append(g.members, &discordgo.Member{})
	for i := 0; i < 3; i++ {
		g.members = append(g.members, member(fmt.Sprintf("x%d", i), false))
	}

	n, err := NewMembership(g, "G1", "").MemberCount(context.Background(), "C1")
	require.NoError(t, err)
	assert.Equal(t, membersPageSize-1+3, n)
	assert.Equal(t, 2, g.calls)

	empty := &fakeGuild{}
	for i := 0; i < membersPageSize; i++ {
		empty.members = append(empty.members, &discordgo.Member{})
	}
	_, err = NewMembership(empty, "G1", "").MemberCount(context.Background(), "C1")
	assert.Error(t, err)
}

func TestMembershipError(t *testing.T) {
	_, err := NewMembership(&fakeGuild{err: errors.New("HTTP 429")}, "G1", "").MemberCount(context.Background(), "C1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limited")
}

type fakeLeaver struct {
	mu    sync.Mutex
	calls int
}

func (f *fakeLeaver) MemberLeftEverywhere(context.Context) ([]*decisions.SweepReport, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return []*decisions.SweepReport{{ChannelID: "C1", Closed: 1}}, nil
}

func (f *fakeLeaver) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func TestListenerTriggers(t *testing.T) {
	leaver := &fakeLeaver{}
	l := NewListener("G1", "voter", leaver)
	ctx, cancel := context.WithCancel(context.Background())
	l.Run(ctx)

	l.onMemberRemove(nil, &discordgo.GuildMemberRemove{Member: &discordgo.Member{GuildID: "other", User: &discordgo.User{ID: "u"}}})
	l.onMemberRemove(nil, &discordgo.GuildMemberRemove{Member: &discordgo.Member{GuildID: "G1", User: &discordgo.User{ID: "u"}}})
	assert.Eventually(t, func() bool { return leaver.count() == 1 }, time.Second, 5*time.Millisecond)

	kept := &discordgo.GuildMemberUpdate{
		Member:       &discordgo.Member{GuildID: "G1", User: &discordgo.User{ID: "u"}, Roles: []string{"voter"}},
		BeforeUpdate: &discordgo.Member{Roles: []string{"voter"}},
	}
	l.onMemberUpdate(nil, kept)
	lost := &discordgo.GuildMemberUpdate{
		Member:       &discordgo.Member{GuildID: "G1", User: &discordgo.User{ID: "u"}},
		BeforeUpdate: &discordgo.Member{Roles: []string{"voter"}},
	}
	l.onMemberUpdate(nil, lost)
	assert.Eventually(t, func() bool { return leaver.count() == 2 }, time.Second, 5*time.Millisecond)

	cancel()
	l.Wait()
}

type fakeSender struct {
	sent []string
}

func (f *fakeSender) ChannelMessageSend(channelID, content string, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.sent = append(f.sent, channelID+": "+content)
	return &discordgo.Message{}, nil
}

func TestNotifier(t *testing.T) {
	s := &fakeSender{}
	n := NewNotifier(s, "N1")
	now := time.Now()

	require.NoError(t, n.Emit(context.Background(), events.NewDecisionsAutoClosed([]uint64{3, 4}, "", events.ReasonExpired, now)))
	assert.Equal(t, []string{"N1: 2 decisions auto-closed (expired): #3, #4"}, s.sent)
}
