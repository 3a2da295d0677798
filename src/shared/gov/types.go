package gov

import "time"

// Setting represents a configuration setting stored in the database
type Setting struct {
	ID     uint16 `gorm:"primaryKey"`
	Name   string `gorm:"size:64;uniqueIndex;not null"`
	Value  string `gorm:"type:text;not null"`
	Active uint8  `gorm:"not null;default:1"`
}

// Decision is a proposal put to a channel vote. Threshold inputs are
// snapshotted at creation and never re-derived.
type Decision struct {
	ID                  uint64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Text                string     `gorm:"type:text;not null" json:"text"`
	Status              Status     `gorm:"size:32;not null;index:idx_decision_channel_status" json:"status"`
	ProposerID          string     `gorm:"size:64;not null;index" json:"proposerId"`
	ProposerName        string     `gorm:"size:128;not null" json:"proposerName"`
	ChannelID           string     `gorm:"size:64;not null;index:idx_decision_channel_status" json:"channelId"`
	GroupSizeAtCreation int        `gorm:"not null" json:"groupSizeAtCreation"`
	ApprovalPercentage  int        `gorm:"not null" json:"approvalPercentage"`
	ApprovalThreshold   int        `gorm:"not null" json:"approvalThreshold"`
	AutoCloseHours      int        `gorm:"not null" json:"autoCloseHours"`
	ApprovalCount       int        `gorm:"not null;default:0" json:"approvalCount"`
	RejectionCount      int        `gorm:"not null;default:0" json:"rejectionCount"`
	Version             uint64     `gorm:"not null;default:0" json:"-"`
	CreatedAt           time.Time  `gorm:"index" json:"createdAt"`
	UpdatedAt           time.Time  `json:"updatedAt"`
	ClosedAt            *time.Time `json:"closedAt,omitempty"`
}

// ExpiresAt is the instant the sweep may close the decision as expired.
func (d *Decision) ExpiresAt() time.Time {
	return d.CreatedAt.Add(time.Duration(d.AutoCloseHours) * time.Hour)
}

// IsClosed reports whether the decision reached a terminal state.
func (d *Decision) IsClosed() bool {
	return d.Status.Terminal()
}

// Vote is the live vote of one voter on one decision. The voter is always
// stored; IsAnonymous only controls display.
type Vote struct {
	ID          uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	DecisionID  uint64    `gorm:"not null;uniqueIndex:idx_vote_decision_voter" json:"decisionId"`
	VoterID     string    `gorm:"size:64;not null;uniqueIndex:idx_vote_decision_voter" json:"voterId,omitempty"`
	VoterName   string    `gorm:"size:128;not null" json:"voterName,omitempty"`
	Choice      Choice    `gorm:"size:16;not null" json:"choice"`
	IsAnonymous bool      `gorm:"not null;default:false" json:"isAnonymous"`
	VotedAt     time.Time `gorm:"not null" json:"votedAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// ChannelConfig holds per-channel voting settings
type ChannelConfig struct {
	ChannelID          string    `gorm:"primaryKey;size:64" json:"channelId"`
	ApprovalPercentage int       `gorm:"not null;default:60" json:"approvalPercentage"`
	AutoCloseHours     int       `gorm:"not null;default:48" json:"autoCloseHours"`
	GroupSize          int       `gorm:"not null;default:0" json:"groupSize"`
	UpdatedBy          string    `gorm:"size:64" json:"updatedBy,omitempty"`
	UpdatedAt          time.Time `json:"updatedAt"`
}

// ConfigChangeLog is the audit trail of channel setting changes
type ConfigChangeLog struct {
	ID            uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	ChannelID     string    `gorm:"size:64;not null;index" json:"channelId"`
	SettingName   string    `gorm:"size:64;not null" json:"settingName"`
	OldValue      int       `gorm:"not null" json:"oldValue"`
	NewValue      int       `gorm:"not null" json:"newValue"`
	ChangedBy     string    `gorm:"size:64;not null" json:"changedBy"`
	ChangedByName string    `gorm:"size:128;not null" json:"changedByName"`
	ChangedAt     time.Time `gorm:"not null;index" json:"changedAt"`
}

// AllModels lists every table managed by migrations.
var AllModels = []interface{}{
	&Setting{},
	&Decision{},
	&Vote{},
	&ChannelConfig{},
	&ConfigChangeLog{},
}
