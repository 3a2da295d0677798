// Package store persists decisions and votes and serialises every
// mutation of a single decision.
package store

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/stake-plus/govdecisions/src/shared/gov"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrNotFound               = errors.New("decisions: decision not found")
	ErrConcurrentModification = errors.New("decisions: concurrent modification")
)

// DefaultMaxRetries bounds conflict retries in Mutate.
const DefaultMaxRetries = 3

// MutateFunc changes d inside the decision's transaction. It returns true
// when d must be written back. Vote rows must be written through tx.
type MutateFunc func(tx *gorm.DB, d *gov.Decision) (bool, error)

// Store wraps the gorm handle with the per-decision lock table.
type Store struct {
	db         *gorm.DB
	locks      *Locks
	maxRetries int
	backoff    time.Duration
}

// Option customises a Store.
type Option func(*Store)

// WithMaxRetries sets how often a conflicting write is retried.
func WithMaxRetries(n int) Option {
	return func(s *Store) {
		if n >= 0 {
			s.maxRetries = n
		}
	}
}

// WithStripes sizes the lock table.
func WithStripes(n int) Option {
	return func(s *Store) { s.locks = NewLocks(n) }
}

// WithBackoff sets the base delay between retries.
func WithBackoff(d time.Duration) Option {
	return func(s *Store) { s.backoff = d }
}

func New(db *gorm.DB, opts ...Option) *Store {
	s := &Store{
		db:         db,
		locks:      NewLocks(DefaultStripes),
		maxRetries: DefaultMaxRetries,
		backoff:    10 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DB exposes the underlying handle.
func (s *Store) DB() *gorm.DB { return s.db }

func (s *Store) Create(ctx context.Context, d *gov.Decision) error {
	if err := s.db.WithContext(ctx).Create(d).Error; err != nil {
		return fmt.Errorf("create decision: %w", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id uint64) (*gov.Decision, error) {
	var d gov.Decision
	err := s.db.WithContext(ctx).First(&d, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get decision %d: %w", id, err)
	}
	return &d, nil
}

// List returns decisions newest first. An empty channel or status matches
// every value; limit <= 0 means no limit.
func (s *Store) List(ctx context.Context, channelID string, status gov.Status, limit, offset int) ([]gov.Decision, error) {
	q := s.db.WithContext(ctx)
	if channelID != "" {
		q = q.Where("channel_id = ?", channelID)
	}
	if status != "" {
		q = q.Where("status = ?", status)
	}
	q = q.Order("created_at desc").Order("id desc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if offset > 0 {
		q = q.Offset(offset)
	}

	var out []gov.Decision
	if err := q.Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list decisions: %w", err)
	}
	return out, nil
}

// Search matches decision text case-insensitively within a channel.
func (s *Store) Search(ctx context.Context, channelID, term string, limit int) ([]gov.Decision, error) {
	pattern := "%" + strings.ToLower(strings.TrimSpace(term)) + "%"
	q := s.db.WithContext(ctx).
		Where("channel_id = ? AND LOWER(text) LIKE ?", channelID, pattern).
		Order("created_at desc").Order("id desc")
	if limit > 0 {
		q = q.Limit(limit)
	}

	var out []gov.Decision
	if err := q.Find(&out).Error; err != nil {
		return nil, fmt.Errorf("search decisions: %w", err)
	}
	return out, nil
}

// CountByStatus returns per-status decision counts for a channel.
func (s *Store) CountByStatus(ctx context.Context, channelID string) (map[gov.Status]int64, error) {
	var rows []struct {
		Status gov.Status
		Total  int64
	}
	err := s.db.WithContext(ctx).Model(&gov.Decision{}).
		Select("status, COUNT(*) AS total").
		Where("channel_id = ?", channelID).
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("count decisions: %w", err)
	}

	out := make(map[gov.Status]int64, len(gov.AllStatuses))
	for _, st := range gov.AllStatuses {
		out[st] = 0
	}
	for _, r := range rows {
		out[r.Status] = r.Total
	}
	return out, nil
}

// PendingChannels lists channels holding at least one pending decision.
func (s *Store) PendingChannels(ctx context.Context) ([]string, error) {
	var channels []string
	err := s.db.WithContext(ctx).Model(&gov.Decision{}).
		Where("status = ?", gov.StatusPending).
		Distinct("channel_id").
		Order("channel_id").
		Pluck("channel_id", &channels).Error
	if err != nil {
		return nil, fmt.Errorf("pending channels: %w", err)
	}
	return channels, nil
}

// Votes returns a decision's live votes in casting order.
func (s *Store) Votes(ctx context.Context, decisionID uint64) ([]gov.Vote, error) {
	var votes []gov.Vote
	err := s.db.WithContext(ctx).
		Where("decision_id = ?", decisionID).
		Order("voted_at").Order("id").
		Find(&votes).Error
	if err != nil {
		return nil, fmt.Errorf("votes for %d: %w", decisionID, err)
	}
	return votes, nil
}

// VoteOf returns one voter's live vote, or nil when they have not voted.
func (s *Store) VoteOf(ctx context.Context, decisionID uint64, voterID string) (*gov.Vote, error) {
	var v gov.Vote
	err := s.db.WithContext(ctx).
		Where("decision_id = ? AND voter_id = ?", decisionID, voterID).
		Take(&v).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("vote of %s on %d: %w", voterID, decisionID, err)
	}
	return &v, nil
}

// Lock takes the in-process lock Mutate holds for decision id.
func (s *Store) Lock(ctx context.Context, id uint64) (func(), error) {
	return s.locks.Acquire(ctx, id)
}

// Mutate runs fn against the locked row of decision id and writes the
// result back with an optimistic version check. Conflicts are retried.
// The returned decision reflects the committed state.
func (s *Store) Mutate(ctx context.Context, id uint64, fn MutateFunc) (*gov.Decision, error) {
	release, err := s.Lock(ctx, id)
	if err != nil {
		return nil, err
	}
	defer release()

	var lastErr error
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(s.backoff * time.Duration(attempt)):
			}
		}

		d, err := s.mutateOnce(ctx, id, fn)
		if err == nil {
			return d, nil
		}
		if !isConflict(err) {
			return nil, err
		}
		lastErr = err
		log.Printf("decisions: conflict on decision %d (attempt %d): %v", id, attempt+1, err)
	}
	return nil, fmt.Errorf("decision %d: %w (last: %v)", id, ErrConcurrentModification, lastErr)
}

func (s *Store) mutateOnce(ctx context.Context, id uint64, fn MutateFunc) (*gov.Decision, error) {
	var out gov.Decision
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var d gov.Decision
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&d, id).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("lock decision %d: %w", id, err)
		}

		dirty, err := fn(tx, &d)
		if err != nil {
			return err
		}
		if !dirty {
			out = d
			return nil
		}

		now := time.Now().UTC()
		res := tx.Model(&gov.Decision{}).
			Where("id = ? AND version = ?", d.ID, d.Version).
			Updates(map[string]interface{}{
				"status":          d.Status,
				"approval_count":  d.ApprovalCount,
				"rejection_count": d.RejectionCount,
				"closed_at":       d.ClosedAt,
				"version":         d.Version + 1,
				"updated_at":      now,
			})
		if res.Error != nil {
			return fmt.Errorf("write decision %d: %w", id, res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrConcurrentModification
		}
		d.Version++
		d.UpdatedAt = now
		out = d
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func isConflict(err error) bool {
	return errors.Is(err, ErrConcurrentModification) || errors.Is(err, gorm.ErrDuplicatedKey)
}
