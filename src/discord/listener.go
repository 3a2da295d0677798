package discord

import (
	"context"
	"log"
	"sync"

	"github.com/bwmarrin/discordgo"
	"github.com/stake-plus/govdecisions/src/decisions"
)

type memberLeaver interface {
	MemberLeftEverywhere(ctx context.Context) ([]*decisions.SweepReport, error)
}

// Listener turns departures and voter-role removals into member-left
// passes. Bursts of events collapse into a single follow-up pass.
type Listener struct {
	guildID string
	roleID  string
	leaver  memberLeaver

	kick chan struct{}
	wg   sync.WaitGroup
}

func NewListener(guildID, roleID string, leaver memberLeaver) *Listener {
	return &Listener{guildID: guildID, roleID: roleID, leaver: leaver, kick: make(chan struct{}, 1)}
}

// Run processes triggers until ctx is done.
func (l *Listener) Run(ctx context.Context) {
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case <-l.kick:
				reports, err := l.leaver.MemberLeftEverywhere(ctx)
				if err != nil && ctx.Err() == nil {
					log.Printf("discord: member-left pass: %v", err)
				}
				for _, r := range reports {
					if r.Closed > 0 {
						log.Printf("discord: %s closed %d decisions as unreachable", r.ChannelID, r.Closed)
					}
				}
			}
		}
	}()
}

// Wait blocks until Run's goroutine exits.
func (l *Listener) Wait() { l.wg.Wait() }

func (l *Listener) trigger() {
	select {
	case l.kick <- struct{}{}:
	default:
	}
}

func (l *Listener) onMemberRemove(_ *discordgo.Session, ev *discordgo.GuildMemberRemove) {
	if ev == nil || ev.Member == nil || ev.GuildID != l.guildID {
		return
	}
	if ev.User != nil && ev.User.Bot {
		return
	}
	l.trigger()
}

func (l *Listener) onMemberUpdate(_ *discordgo.Session, ev *discordgo.GuildMemberUpdate) {
	if ev == nil || ev.Member == nil || ev.GuildID != l.guildID || l.roleID == "" {
		return
	}
	// BeforeUpdate is only populated from the state cache.
	if ev.BeforeUpdate == nil {
		return
	}
	if hasRole(ev.BeforeUpdate.Roles, l.roleID) && !hasRole(ev.Roles, l.roleID) {
		l.trigger()
	}
}
