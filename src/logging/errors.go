package logging

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/bwmarrin/discordgo"
)

// IsRateLimit reports whether err looks like an upstream 429.
func IsRateLimit(err error) bool {
	if err == nil {
		return false
	}
	var rest *discordgo.RESTError
	if errors.As(err, &rest) && rest.Response != nil && rest.Response.StatusCode == 429 {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "rate_limit") || strings.Contains(msg, "429")
}

// IsTimeout reports deadline and network timeouts.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// Describe gives a short label for log lines.
func Describe(err error) string {
	switch {
	case err == nil:
		return "ok"
	case IsRateLimit(err):
		return "rate limited"
	case IsTimeout(err):
		return "timed out"
	default:
		return "failed"
	}
}
