// Package discord connects the decision engine to a Discord guild:
// membership counts, departure events and close notices.
package discord

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/bwmarrin/discordgo"
	"github.com/stake-plus/govdecisions/src/actions/core"
	"github.com/stake-plus/govdecisions/src/config"
)

var _ core.Module = (*Bot)(nil)

// Bot owns the gateway session.
type Bot struct {
	cfg      config.Discord
	session  *discordgo.Session
	listener *Listener
	cancel   context.CancelFunc
}

// NewSession creates an unopened bot session. REST calls work before Start.
func NewSession(cfg config.Discord) (*discordgo.Session, error) {
	if cfg.Token == "" {
		return nil, errors.New("discord: token is required")
	}
	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to create Discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildMembers
	session.StateEnabled = true
	return session, nil
}

func NewBot(cfg config.Discord, session *discordgo.Session, leaver memberLeaver) *Bot {
	b := &Bot{cfg: cfg, session: session}
	if leaver != nil {
		b.listener = NewListener(cfg.GuildID, cfg.VoterRoleID, leaver)
		session.AddHandler(b.listener.onMemberRemove)
		session.AddHandler(b.listener.onMemberUpdate)
	}
	session.AddHandler(b.onReady)
	return b
}

// Name implements actions.Module.
func (b *Bot) Name() string { return "discord" }

func (b *Bot) onReady(s *discordgo.Session, r *discordgo.Ready) {
	log.Printf("discord: logged in as %s", r.User.Username)
}

func (b *Bot) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	b.cancel = cancel
	if b.listener != nil {
		b.listener.Run(runCtx)
	}
	if err := b.session.Open(); err != nil {
		cancel()
		return fmt.Errorf("failed to open Discord connection: %w", err)
	}
	return nil
}

func (b *Bot) Stop(ctx context.Context) {
	if b.cancel != nil {
		b.cancel()
	}
	if b.listener != nil {
		b.listener.Wait()
	}
	if err := b.session.Close(); err != nil {
		log.Printf("discord: close session: %v", err)
	}
}
