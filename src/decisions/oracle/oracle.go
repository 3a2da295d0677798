// Package oracle supplies the engine's view of time and channel membership.
package oracle

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock in UTC.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

// FixedClock is a settable clock for tests and replays.
type FixedClock struct {
	mu  sync.Mutex
	now time.Time
}

func NewFixedClock(t time.Time) *FixedClock {
	return &FixedClock{now: t.UTC()}
}

func (c *FixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *FixedClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t.UTC()
	c.mu.Unlock()
}

func (c *FixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// Membership counts the members currently able to vote in a channel.
type Membership interface {
	MemberCount(ctx context.Context, channelID string) (int, error)
}

// Invalidator drops any cached count for a channel.
type Invalidator interface {
	Invalidate(ctx context.Context, channelID string) error
}

// Static serves fixed counts. Unknown channels fail.
type Static struct {
	mu     sync.RWMutex
	counts map[string]int
	err    error
}

func NewStatic(counts map[string]int) *Static {
	s := &Static{counts: make(map[string]int, len(counts))}
	for k, v := range counts {
		s.counts[k] = v
	}
	return s
}

func (s *Static) MemberCount(_ context.Context, channelID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.err != nil {
		return 0, s.err
	}
	n, ok := s.counts[channelID]
	if !ok {
		return 0, fmt.Errorf("oracle: no membership for channel %s", channelID)
	}
	return n, nil
}

// Set updates a channel's count.
func (s *Static) Set(channelID string, n int) {
	s.mu.Lock()
	s.counts[channelID] = n
	s.mu.Unlock()
}

// Fail makes every lookup return err until cleared with nil.
func (s *Static) Fail(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}
