// Package engine implements campaign eligibility, assignment and redemption
// on top of an abstract Store.
package engine

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/kkkkikiki/campaign/internal/cache"
	"github.com/kkkkikiki/campaign/internal/model"
	"github.com/kkkkikiki/campaign/internal/rules"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrAlreadyUsed        = errors.New("campaign already used")
	ErrTokenExpired       = errors.New("redemption token expired")
	ErrBusinessNotAllowed = errors.New("campaign not valid at this business")
	ErrCampaignInactive   = errors.New("campaign is not active")
	ErrConflict           = errors.New("conflicting write")
	ErrForbidden          = errors.New("permission denied")
)

// tokenBytes is the entropy of a redemption token before encoding.
const tokenBytes = 12

var tracer = otel.Tracer("github.com/kkkkikiki/campaign/internal/engine")

// Store is the persistence the engine runs on. Methods that find a single
// row return ErrNotFound when it is absent.
type Store interface {
	UserMetrics(ctx context.Context, userID int64) (rules.Metrics, error)
	IsAdmin(ctx context.Context, userID int64) (bool, error)
	BusinessForOwner(ctx context.Context, userID int64) (int64, error)
	ActiveDynamicCampaigns(ctx context.Context) ([]model.Campaign, error)
	CreateCampaign(ctx context.Context, c *model.Campaign) error

	FindAssignment(ctx context.Context, userID, campaignID int64) (*model.Assignment, error)
	// CreateAssignment inserts a unless the (user, campaign) pair already has
	// an assignment, and reports whether it did.
	CreateAssignment(ctx context.Context, a *model.Assignment) (bool, error)
	AssignmentForUser(ctx context.Context, id, userID int64) (*model.ActiveCampaign, error)
	AssignmentByToken(ctx context.Context, token string) (*model.ActiveCampaign, error)
	UnusedAssignments(ctx context.Context, userID int64) ([]model.ActiveCampaign, error)
	// SwapToken stores token only if the current token equals prev ("" for
	// none) and reports whether it did.
	SwapToken(ctx context.Context, id, userID int64, prev, token string, expiresAt time.Time) (bool, error)
	// MarkRedeemed clears token from an unused assignment still holding it and
	// sets is_used to markUsed. It reports whether the row matched.
	MarkRedeemed(ctx context.Context, id int64, token string, markUsed bool) (bool, error)

	AppendRuleLog(ctx context.Context, entry *model.RuleEvaluationLog) error
	AppendUsage(ctx context.Context, usage *model.Usage) error
	ListUsages(ctx context.Context, userID int64) ([]model.Usage, error)
	LogActivity(ctx context.Context, activity model.Activity) error

	// Atomic runs fn against a Store whose writes commit together, or not at
	// all when fn returns an error.
	Atomic(ctx context.Context, fn func(Store) error) error
}

// Clock returns the current time.
type Clock func() time.Time

// Engine evaluates, assigns and redeems campaigns.
type Engine struct {
	store    Store
	now      Clock
	entropy  io.Reader
	cache    cache.Cache
	cacheTTL time.Duration
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock replaces the wall clock.
func WithClock(clock Clock) Option {
	return func(e *Engine) { e.now = clock }
}

// WithEntropy replaces the token randomness source.
func WithEntropy(r io.Reader) Option {
	return func(e *Engine) { e.entropy = r }
}

// WithCache caches active campaign listings for ttl. Writes drop the user's
// entry after they commit, but a listing that read the store before the commit
// can still store its older set afterwards. Such an entry is served until ttl
// expires, so ttl bounds how stale a listing can be.
func WithCache(c cache.Cache, ttl time.Duration) Option {
	return func(e *Engine) {
		e.cache = c
		e.cacheTTL = ttl
	}
}

// New creates an Engine over store.
func New(store Store, opts ...Option) *Engine {
	e := &Engine{
		store:   store,
		now:     time.Now,
		entropy: rand.Reader,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Now returns the engine's current time.
func (e *Engine) Now() time.Time {
	return e.now()
}

func (e *Engine) newToken() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := io.ReadFull(e.entropy, buf); err != nil {
		return "", fmt.Errorf("failed to read token entropy: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func listingKey(userID int64) string {
	return "campaign:unused:" + strconv.FormatInt(userID, 10)
}

// invalidate drops the cached listing of a user. Failures only cost freshness
// until the entry expires, so they are logged.
func (e *Engine) invalidate(ctx context.Context, userID int64) {
	if e.cache == nil {
		return
	}
	if err := e.cache.Delete(ctx, listingKey(userID)); err != nil {
		log.Printf("engine: failed to invalidate listing cache for user %d: %v", userID, err)
	}
}
