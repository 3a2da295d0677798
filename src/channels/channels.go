// Package channels stores per-channel voting configuration and its audit
// trail.
package channels

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/stake-plus/govdecisions/src/shared/gov"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Setting names recorded in the change log.
const (
	SettingApprovalPercentage = "approval_percentage"
	SettingAutoCloseHours     = "auto_close_hours"
	SettingGroupSize          = "group_size"
)

var ErrInvalidConfig = errors.New("channels: invalid configuration")

// Defaults apply to channels without a stored row.
type Defaults struct {
	ApprovalPercentage int
	AutoCloseHours     int
}

// Changes lists the settings to update; nil fields are left alone.
type Changes struct {
	ApprovalPercentage *int `json:"approvalPercentage,omitempty"`
	AutoCloseHours     *int `json:"autoCloseHours,omitempty"`
	GroupSize          *int `json:"groupSize,omitempty"`
}

// Empty reports whether no setting was supplied.
func (c Changes) Empty() bool {
	return c.ApprovalPercentage == nil && c.AutoCloseHours == nil && c.GroupSize == nil
}

// Validate checks the supplied values.
func (c Changes) Validate() error {
	if c.ApprovalPercentage != nil && (*c.ApprovalPercentage < 1 || *c.ApprovalPercentage > 100) {
		return fmt.Errorf("%w: approval percentage must be 1-100", ErrInvalidConfig)
	}
	if c.AutoCloseHours != nil && *c.AutoCloseHours < 1 {
		return fmt.Errorf("%w: auto-close hours must be at least 1", ErrInvalidConfig)
	}
	if c.GroupSize != nil && *c.GroupSize < 0 {
		return fmt.Errorf("%w: group size must not be negative", ErrInvalidConfig)
	}
	return nil
}

type Store struct {
	db       *gorm.DB
	defaults Defaults
}

func NewStore(db *gorm.DB, defaults Defaults) *Store {
	if defaults.ApprovalPercentage < 1 || defaults.ApprovalPercentage > 100 {
		defaults.ApprovalPercentage = 60
	}
	if defaults.AutoCloseHours < 1 {
		defaults.AutoCloseHours = 48
	}
	return &Store{db: db, defaults: defaults}
}

func (s *Store) fallback(channelID string) gov.ChannelConfig {
	return gov.ChannelConfig{
		ChannelID:          channelID,
		ApprovalPercentage: s.defaults.ApprovalPercentage,
		AutoCloseHours:     s.defaults.AutoCloseHours,
	}
}

// Settings returns the channel's stored configuration, or the defaults
// when none is stored or the read fails.
func (s *Store) Settings(ctx context.Context, channelID string) (gov.ChannelConfig, error) {
	var cfg gov.ChannelConfig
	err := s.db.WithContext(ctx).Where("channel_id = ?", channelID).Take(&cfg).Error
	if err == nil {
		return cfg, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		log.Printf("channels: settings for %s: %v (using defaults)", channelID, err)
	}
	return s.fallback(channelID), nil
}

// Update applies changes and logs one audit row per changed setting, all
// in one transaction.
func (s *Store) Update(ctx context.Context, channelID, by, byName string, changes Changes) (gov.ChannelConfig, error) {
	if channelID == "" || by == "" {
		return gov.ChannelConfig{}, fmt.Errorf("%w: channel and author are required", ErrInvalidConfig)
	}
	if err := changes.Validate(); err != nil {
		return gov.ChannelConfig{}, err
	}
	if byName == "" {
		byName = by
	}

	var out gov.ChannelConfig
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		cfg := s.fallback(channelID)
		exists := true
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("channel_id = ?", channelID).Take(&cfg).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			exists = false
		} else if err != nil {
			return fmt.Errorf("channels: read %s: %w", channelID, err)
		}

		now := time.Now().UTC()
		var logs []gov.ConfigChangeLog
		apply := func(name string, field *int, value *int) {
			if value == nil || *field == *value {
				return
			}
			logs = append(logs, gov.ConfigChangeLog{
				ChannelID: channelID, SettingName: name, OldValue: *field, NewValue: *value,
				ChangedBy: by, ChangedByName: byName, ChangedAt: now,
			})
			*field = *value
		}
		apply(SettingApprovalPercentage, &cfg.ApprovalPercentage, changes.ApprovalPercentage)
		apply(SettingAutoCloseHours, &cfg.AutoCloseHours, changes.AutoCloseHours)
		apply(SettingGroupSize, &cfg.GroupSize, changes.GroupSize)

		if len(logs) == 0 && exists {
			out = cfg
			return nil
		}

		cfg.UpdatedBy = by
		cfg.UpdatedAt = now
		if exists {
			err = tx.Model(&gov.ChannelConfig{}).Where("channel_id = ?", channelID).Updates(map[string]interface{}{
				"approval_percentage": cfg.ApprovalPercentage,
				"auto_close_hours":    cfg.AutoCloseHours,
				"group_size":          cfg.GroupSize,
				"updated_by":          cfg.UpdatedBy,
				"updated_at":          cfg.UpdatedAt,
			}).Error
		} else {
			err = tx.Create(&cfg).Error
		}
		if err != nil {
			return fmt.Errorf("channels: write %s: %w", channelID, err)
		}
		if len(logs) > 0 {
			if err := tx.Create(&logs).Error; err != nil {
				return fmt.Errorf("channels: log changes for %s: %w", channelID, err)
			}
		}
		out = cfg
		return nil
	})
	if err != nil {
		return gov.ChannelConfig{}, err
	}
	log.Printf("channels: %s updated by %s", channelID, by)
	return out, nil
}

// History returns the channel's change log, newest first.
func (s *Store) History(ctx context.Context, channelID string, limit int) ([]gov.ConfigChangeLog, error) {
	q := s.db.WithContext(ctx).Where("channel_id = ?", channelID).Order("changed_at desc").Order("id desc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var out []gov.ConfigChangeLog
	if err := q.Find(&out).Error; err != nil {
		return nil, fmt.Errorf("channels: history for %s: %w", channelID, err)
	}
	return out, nil
}
