// Package decisions runs the decision lifecycle: proposals, votes,
// threshold closes, expiry and unreachability sweeps.
package decisions

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
	"github.com/stake-plus/govdecisions/src/decisions/events"
	"github.com/stake-plus/govdecisions/src/decisions/oracle"
	"github.com/stake-plus/govdecisions/src/decisions/store"
	"github.com/stake-plus/govdecisions/src/decisions/threshold"
	"github.com/stake-plus/govdecisions/src/metrics"
	"github.com/stake-plus/govdecisions/src/shared/gov"
)

const (
	MinTextLength = 10
	MaxTextLength = 500

	DefaultApprovalPercentage = 60
	DefaultAutoCloseHours     = 48
	DefaultSweepWorkers       = 4
	DefaultSweepItemTimeout   = 10 * time.Second
)

// Engine owns every state transition of a decision.
type Engine struct {
	store       *store.Store
	clock       oracle.Clock
	emitter     events.Emitter
	metrics     *metrics.Metrics
	policy      *bluemonday.Policy
	workers     int
	itemTimeout time.Duration
}

// Option configures an Engine.
type Option func(*Engine)

func WithClock(c oracle.Clock) Option {
	return func(e *Engine) {
		if c != nil {
			e.clock = c
		}
	}
}

func WithEmitter(em events.Emitter) Option {
	return func(e *Engine) {
		if em != nil {
			e.emitter = em
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithSweepWorkers bounds how many decisions a pass evaluates at once.
func WithSweepWorkers(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.workers = n
		}
	}
}

// WithSweepItemTimeout bounds the work on a single decision in a pass,
// including the wait for its lock.
func WithSweepItemTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.itemTimeout = d
		}
	}
}

func New(st *store.Store, opts ...Option) *Engine {
	e := &Engine{
		store:       st,
		clock:       oracle.SystemClock{},
		emitter:     events.Log{},
		policy:      bluemonday.StrictPolicy(),
		workers:     DefaultSweepWorkers,
		itemTimeout: DefaultSweepItemTimeout,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Store exposes the underlying repository.
func (e *Engine) Store() *store.Store { return e.store }

// ProposeRequest carries a new proposal plus the channel configuration
// and group size to snapshot.
type ProposeRequest struct {
	Text         string
	ProposerID   string
	ProposerName string
	ChannelID    string
	Config       gov.ChannelConfig
	GroupSize    int
}

// Propose validates and stores a new pending decision. The threshold is
// fixed here and never recomputed.
func (e *Engine) Propose(ctx context.Context, req ProposeRequest) (*gov.Decision, error) {
	text, err := e.normalizeText(req.Text)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.ProposerID) == "" || strings.TrimSpace(req.ChannelID) == "" {
		return nil, fmt.Errorf("%w: proposer and channel are required", ErrInvalidProposal)
	}

	pct := req.Config.ApprovalPercentage
	if pct == 0 {
		pct = DefaultApprovalPercentage
	}
	if pct < 1 || pct > 100 {
		return nil, fmt.Errorf("%w: approval percentage %d out of range", ErrInvalidProposal, pct)
	}
	hours := req.Config.AutoCloseHours
	if hours == 0 {
		hours = DefaultAutoCloseHours
	}
	if hours < 1 {
		return nil, fmt.Errorf("%w: auto-close hours %d out of range", ErrInvalidProposal, hours)
	}
	size := req.GroupSize
	if size < 1 {
		size = 1
	}

	name := req.ProposerName
	if name == "" {
		name = req.ProposerID
	}
	d := &gov.Decision{
		Text:                text,
		Status:              gov.StatusPending,
		ProposerID:          req.ProposerID,
		ProposerName:        name,
		ChannelID:           req.ChannelID,
		GroupSizeAtCreation: size,
		ApprovalPercentage:  pct,
		ApprovalThreshold:   threshold.RequiredApprovals(size, pct),
		AutoCloseHours:      hours,
		CreatedAt:           e.clock.Now(),
	}
	if err := e.store.Create(ctx, d); err != nil {
		return nil, err
	}
	e.metrics.Proposed()
	log.Printf("decisions: #%d proposed in %s by %s (needs %d of %d)", d.ID, d.ChannelID, d.ProposerID, d.ApprovalThreshold, size)
	return d, nil
}

func (e *Engine) normalizeText(raw string) (string, error) {
	text := strings.TrimSpace(html.UnescapeString(e.policy.Sanitize(raw)))
	n := utf8.RuneCountInString(text)
	if n < MinTextLength || n > MaxTextLength {
		return "", fmt.Errorf("%w (got %d)", ErrInvalidProposal, n)
	}
	return text, nil
}

func (e *Engine) Get(ctx context.Context, id uint64) (*gov.Decision, error) {
	return e.store.Get(ctx, id)
}

// ListOptions filters and pages List.
type ListOptions struct {
	Status gov.Status
	Limit  int
	Offset int
}

// List returns a channel's decisions, newest first.
func (e *Engine) List(ctx context.Context, channelID string, opts ListOptions) ([]gov.Decision, error) {
	if opts.Status != "" && !opts.Status.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, opts.Status)
	}
	if opts.Limit < 0 || opts.Offset < 0 {
		return nil, errors.New("decisions: limit and offset must not be negative")
	}
	return e.store.List(ctx, channelID, opts.Status, opts.Limit, opts.Offset)
}

// Search finds decisions whose text contains term.
func (e *Engine) Search(ctx context.Context, channelID, term string, limit int) ([]gov.Decision, error) {
	if strings.TrimSpace(term) == "" {
		return nil, errors.New("decisions: search term is required")
	}
	return e.store.Search(ctx, channelID, term, limit)
}

// Summary counts a channel's decisions per status.
type Summary struct {
	ChannelID string               `json:"channelId"`
	Total     int64                `json:"total"`
	ByStatus  map[gov.Status]int64 `json:"byStatus"`
}

func (e *Engine) Summary(ctx context.Context, channelID string) (*Summary, error) {
	counts, err := e.store.CountByStatus(ctx, channelID)
	if err != nil {
		return nil, err
	}
	s := &Summary{ChannelID: channelID, ByStatus: counts}
	for _, n := range counts {
		s.Total += n
	}
	return s, nil
}

// Votes returns every live vote on a decision, voter identities included.
func (e *Engine) Votes(ctx context.Context, id uint64) ([]gov.Vote, error) {
	if _, err := e.store.Get(ctx, id); err != nil {
		return nil, err
	}
	return e.store.Votes(ctx, id)
}

// VoteOf returns the voter's live vote or nil.
func (e *Engine) VoteOf(ctx context.Context, id uint64, voterID string) (*gov.Vote, error) {
	if _, err := e.store.Get(ctx, id); err != nil {
		return nil, err
	}
	return e.store.VoteOf(ctx, id, voterID)
}

// PendingChannels lists channels with at least one pending decision.
func (e *Engine) PendingChannels(ctx context.Context) ([]string, error) {
	return e.store.PendingChannels(ctx)
}

// RedactVotes hides anonymous voters from everyone but themselves.
func RedactVotes(votes []gov.Vote, viewerID string) []gov.Vote {
	out := make([]gov.Vote, len(votes))
	for i, v := range votes {
		if v.IsAnonymous && v.VoterID != viewerID {
			v.VoterID = ""
			v.VoterName = ""
		}
		out[i] = v
	}
	return out
}

func (e *Engine) emit(ctx context.Context, ev events.Event) {
	if err := e.emitter.Emit(context.WithoutCancel(ctx), ev); err != nil {
		e.metrics.EmitFailed()
		log.Printf("decisions: emit %s %s: %v", ev.Meta().Type, ev.Meta().ID, err)
	}
}

func (e *Engine) noteConflict(err error) {
	if errors.Is(err, store.ErrConcurrentModification) {
		e.metrics.Conflict()
	}
}
