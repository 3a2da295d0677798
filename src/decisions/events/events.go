// Package events defines the notifications emitted after a decision
// transition commits, plus the sinks that deliver them.
package events

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
	"github.com/stake-plus/govdecisions/src/shared/gov"
	"golang.org/x/crypto/blake2b"
)

// Type names an event kind. Sinks use it for routing.
type Type string

const (
	TypeDecisionClosed      Type = "decision.closed"
	TypeDecisionsAutoClosed Type = "decisions.auto_closed"
)

// Reason explains why a decision closed.
type Reason string

const (
	ReasonApproved    Reason = "approved"
	ReasonRejected    Reason = "rejected"
	ReasonExpired     Reason = "expired"
	ReasonUnreachable Reason = "unreachable"
	ReasonManual      Reason = "manual"
)

// ReasonFor maps a terminal status to the reason reported for it.
func ReasonFor(status gov.Status) Reason {
	switch status {
	case gov.StatusApproved:
		return ReasonApproved
	case gov.StatusRejected:
		return ReasonRejected
	case gov.StatusExpired:
		return ReasonExpired
	case gov.StatusExpiredUnreachable:
		return ReasonUnreachable
	default:
		return ReasonManual
	}
}

// Envelope is shared by every event. Digest is stable for the same
// logical event, so consumers can drop redeliveries.
type Envelope struct {
	ID        string    `json:"id"`
	Type      Type      `json:"type"`
	EmittedAt time.Time `json:"emittedAt"`
	Digest    string    `json:"digest"`
}

// Event is anything an Emitter can deliver.
type Event interface {
	Meta() Envelope
}

// DecisionClosed reports a single decision reaching a terminal state.
type DecisionClosed struct {
	Envelope
	DecisionID uint64     `json:"decisionId"`
	ChannelID  string     `json:"channelId"`
	Status     gov.Status `json:"status"`
	Reason     Reason     `json:"reason"`
}

func (e DecisionClosed) Meta() Envelope { return e.Envelope }

// DecisionsAutoClosed summarises one sweep or member-left pass.
type DecisionsAutoClosed struct {
	Envelope
	DecisionIDs []uint64 `json:"decisionIds"`
	ChannelID   string   `json:"channelId,omitempty"`
	Reason      Reason   `json:"reason"`
}

func (e DecisionsAutoClosed) Meta() Envelope { return e.Envelope }

// NewDecisionClosed stamps a DecisionClosed event.
func NewDecisionClosed(d *gov.Decision, reason Reason, now time.Time) DecisionClosed {
	return DecisionClosed{
		Envelope:   envelope(TypeDecisionClosed, reason, string(d.Status), []uint64{d.ID}, now),
		DecisionID: d.ID,
		ChannelID:  d.ChannelID,
		Status:     d.Status,
		Reason:     reason,
	}
}

// NewDecisionsAutoClosed stamps a batch event. ids are copied.
func NewDecisionsAutoClosed(ids []uint64, channelID string, reason Reason, now time.Time) DecisionsAutoClosed {
	cp := make([]uint64, len(ids))
	copy(cp, ids)
	return DecisionsAutoClosed{
		Envelope:    envelope(TypeDecisionsAutoClosed, reason, channelID, cp, now),
		DecisionIDs: cp,
		ChannelID:   channelID,
		Reason:      reason,
	}
}

func envelope(t Type, reason Reason, extra string, ids []uint64, now time.Time) Envelope {
	return Envelope{
		ID:        uuid.NewString(),
		Type:      t,
		EmittedAt: now.UTC(),
		Digest:    Digest(t, reason, extra, ids),
	}
}

// Digest hashes the identifying fields of an event with blake2b-256.
func Digest(t Type, reason Reason, extra string, ids []uint64) string {
	h, _ := blake2b.New256(nil)
	h.Write([]byte(t))
	h.Write([]byte{0})
	h.Write([]byte(reason))
	h.Write([]byte{0})
	h.Write([]byte(extra))
	h.Write([]byte{0})
	var buf [8]byte
	for _, id := range ids {
		binary.BigEndian.PutUint64(buf[:], id)
		h.Write(buf[:])
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Emitter delivers events. Errors are reported to the caller, who logs
// them; a failed delivery never undoes a committed transition.
type Emitter interface {
	Emit(ctx context.Context, e Event) error
}
