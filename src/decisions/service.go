package decisions

import (
	"context"
	"fmt"
	"log"

	"github.com/stake-plus/govdecisions/src/decisions/oracle"
	"github.com/stake-plus/govdecisions/src/shared/gov"
)

// ConfigSource reads a channel's voting configuration.
type ConfigSource interface {
	Settings(ctx context.Context, channelID string) (gov.ChannelConfig, error)
}

// Service resolves channel configuration and membership before calling
// into the Engine.
type Service struct {
	engine  *Engine
	configs ConfigSource
	members oracle.Membership
}

// NewService wires the engine to its collaborators. members may be nil,
// in which case the configured group size is always used.
func NewService(engine *Engine, configs ConfigSource, members oracle.Membership) *Service {
	return &Service{engine: engine, configs: configs, members: members}
}

func (s *Service) Engine() *Engine { return s.engine }

// Propose snapshots the channel configuration and live group size onto a
// new decision. When the oracle fails the configured group size is used.
func (s *Service) Propose(ctx context.Context, text, proposerID, proposerName, channelID string) (*gov.Decision, error) {
	cfg, err := s.configs.Settings(ctx, channelID)
	if err != nil {
		return nil, fmt.Errorf("channel %s settings: %w", channelID, err)
	}

	size, err := s.groupSize(ctx, channelID, cfg)
	if err != nil {
		return nil, err
	}

	return s.engine.Propose(ctx, ProposeRequest{
		Text:         text,
		ProposerID:   proposerID,
		ProposerName: proposerName,
		ChannelID:    channelID,
		Config:       cfg,
		GroupSize:    size,
	})
}

func (s *Service) groupSize(ctx context.Context, channelID string, cfg gov.ChannelConfig) (int, error) {
	if s.members == nil {
		if cfg.GroupSize > 0 {
			return cfg.GroupSize, nil
		}
		return 0, fmt.Errorf("%w: no oracle and no configured group size for %s", ErrOracleUnavailable, channelID)
	}

	n, err := s.members.MemberCount(ctx, channelID)
	if err == nil && n > 0 {
		return n, nil
	}
	if cfg.GroupSize > 0 {
		log.Printf("decisions: membership for %s unavailable (%v), using configured size %d", channelID, err, cfg.GroupSize)
		return cfg.GroupSize, nil
	}
	if err == nil {
		err = fmt.Errorf("member count is %d", n)
	}
	return 0, fmt.Errorf("%w: %s: %v", ErrOracleUnavailable, channelID, err)
}

// MemberLeft re-reads the channel's live member count and closes pending
// decisions it can no longer approve. On oracle failure nothing changes.
func (s *Service) MemberLeft(ctx context.Context, channelID string) (*SweepReport, error) {
	if s.members == nil {
		return nil, fmt.Errorf("%w: no membership oracle", ErrOracleUnavailable)
	}
	if inv, ok := s.members.(oracle.Invalidator); ok {
		if err := inv.Invalidate(ctx, channelID); err != nil {
			log.Printf("decisions: %v", err)
		}
	}

	n, err := s.members.MemberCount(ctx, channelID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOracleUnavailable, err)
	}
	return s.engine.OnMemberLeft(ctx, channelID, n)
}

// MemberLeftEverywhere runs MemberLeft for every channel holding pending
// decisions. Channels whose membership cannot be read are skipped.
func (s *Service) MemberLeftEverywhere(ctx context.Context) ([]*SweepReport, error) {
	channels, err := s.engine.PendingChannels(ctx)
	if err != nil {
		return nil, err
	}
	reports := make([]*SweepReport, 0, len(channels))
	for _, ch := range channels {
		r, err := s.MemberLeft(ctx, ch)
		if err != nil {
			log.Printf("decisions: member-left for %s: %v", ch, err)
			continue
		}
		reports = append(reports, r)
	}
	return reports, ctx.Err()
}
