package discord

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/stake-plus/govdecisions/src/decisions/events"
)

type messageSender interface {
	ChannelMessageSend(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// Notifier posts a one-line notice for every event to a fixed channel.
type Notifier struct {
	api       messageSender
	channelID string
}

func NewNotifier(api messageSender, channelID string) *Notifier {
	return &Notifier{api: api, channelID: channelID}
}

func (n *Notifier) Emit(ctx context.Context, e events.Event) error {
	line := notice(e)
	if line == "" {
		return nil
	}
	if _, err := n.api.ChannelMessageSend(n.channelID, line, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("discord: notify: %w", err)
	}
	return nil
}

func notice(e events.Event) string {
	switch ev := e.(type) {
	case events.DecisionClosed:
		return fmt.Sprintf("Decision #%d closed: %s", ev.DecisionID, ev.Status)
	case events.DecisionsAutoClosed:
		ids := make([]string, len(ev.DecisionIDs))
		for i, id := range ev.DecisionIDs {
			ids[i] = fmt.Sprintf("#%d", id)
		}
		return fmt.Sprintf("%d decisions auto-closed (%s): %s", len(ids), ev.Reason, strings.Join(ids, ", "))
	}
	return ""
}
