package discord

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"
	"github.com/stake-plus/govdecisions/src/logging"
)

const membersPageSize = 1000

type memberLister interface {
	GuildMembers(guildID, after string, limit int, options ...discordgo.RequestOption) ([]*discordgo.Member, error)
}

// Membership counts guild members eligible to vote: humans holding the
// voter role, or every human when no role is configured. Every channel
// of the guild shares the same electorate.
type Membership struct {
	api     memberLister
	guildID string
	roleID  string
}

func NewMembership(api memberLister, guildID, roleID string) *Membership {
	return &Membership{api: api, guildID: guildID, roleID: roleID}
}

func (m *Membership) MemberCount(ctx context.Context, _ string) (int, error) {
	count := 0
	after := ""
	for {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		page, err := m.api.GuildMembers(m.guildID, after, membersPageSize, discordgo.WithContext(ctx))
		if err != nil {
			return 0, fmt.Errorf("discord: list members (%s): %w", logging.Describe(err), err)
		}
		next := ""
		for _, member := range page {
			if m.eligible(member) {
				count++
			}
			if member != nil && member.User != nil {
				next = member.User.ID
			}
		}
		if len(page) < membersPageSize {
			return count, nil
		}
		if next == "" || next == after {
			return 0, fmt.Errorf("discord: list members: page after %q has no member ids", after)
		}
		after = next
	}
}

func (m *Membership) eligible(member *discordgo.Member) bool {
	if member == nil || member.User == nil || member.User.Bot {
		return false
	}
	return m.roleID == "" || hasRole(member.Roles, m.roleID)
}

func hasRole(roles []string, roleID string) bool {
	for _, r := range roles {
		if r == roleID {
			return true
		}
	}
	return false
}
