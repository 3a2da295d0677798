package gov

import "strings"

// Status is the lifecycle state of a decision.
type Status string

const (
	StatusPending            Status = "pending"
	StatusApproved           Status = "approved"
	StatusRejected           Status = "rejected"
	StatusExpired            Status = "expired"
	StatusExpiredUnreachable Status = "expired_unreachable"
)

// AllStatuses in display order.
var AllStatuses = []Status{
	StatusPending,
	StatusApproved,
	StatusRejected,
	StatusExpired,
	StatusExpiredUnreachable,
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected, StatusExpired, StatusExpiredUnreachable:
		return true
	}
	return false
}

// Terminal reports whether no transition can leave s.
func (s Status) Terminal() bool {
	return s.Valid() && s != StatusPending
}

// ParseStatus accepts a status name case-insensitively. An empty string
// yields an empty status (no filter).
func ParseStatus(raw string) (Status, bool) {
	s := Status(strings.ToLower(strings.TrimSpace(raw)))
	if s == "" {
		return "", true
	}
	return s, s.Valid()
}

// Choice is a voter's position on a decision.
type Choice string

const (
	ChoiceApprove Choice = "approve"
	ChoiceReject  Choice = "reject"
)

// Valid reports whether c is approve or reject.
func (c Choice) Valid() bool {
	return c == ChoiceApprove || c == ChoiceReject
}

// ParseChoice accepts a choice name case-insensitively.
func ParseChoice(raw string) (Choice, bool) {
	c := Choice(strings.ToLower(strings.TrimSpace(raw)))
	return c, c.Valid()
}
