package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"connectrpc.com/connect"
	"golang.org/x/time/rate"

	"github.com/kkkkikiki/campaign/internal/metrics"
)

// UserIDHeader carries the authenticated user ID, set by the upstream
// gateway.
const UserIDHeader = "X-User-ID"

type userKey struct{}

var errNoUser = errors.New("missing or invalid " + UserIDHeader + " header")

// NewAuthInterceptor rejects requests without a positive user ID header and
// stores the ID in the request context.
func NewAuthInterceptor() connect.UnaryInterceptorFunc {
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			if req.Spec().IsClient {
				return next(ctx, req)
			}

			userID, err := strconv.ParseInt(req.Header().Get(UserIDHeader), 10, 64)
			if err != nil || userID <= 0 {
				metrics.RecordRejection(req.Spec().Procedure, "unauthenticated")
				return nil, connect.NewError(connect.CodeUnauthenticated, errNoUser)
			}
			return next(context.WithValue(ctx, userKey{}, userID), req)
		}
	}
}

func userFromContext(ctx context.Context) (int64, error) {
	userID, ok := ctx.Value(userKey{}).(int64)
	if !ok {
		return 0, connect.NewError(connect.CodeUnauthenticated, errNoUser)
	}
	return userID, nil
}

// RateLimiter keeps one token bucket per user for a set of procedures.
type RateLimiter struct {
	mu          sync.Mutex
	users       map[int64]*userLimiter
	limit       rate.Limit
	burst       int
	procedures  map[string]bool
	cleanupTick *time.Ticker
	stopCleanup chan struct{}
}

type userLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// idleLimiterTTL is how long an unused bucket is kept.
const idleLimiterTTL = time.Hour

// NewRateLimiter allows each user perSec requests per second with the given
// burst on each of procedures. Stop must be called to release the cleanup
// goroutine.
func NewRateLimiter(perSec float64, burst int, procedures ...string) *RateLimiter {
	rl := &RateLimiter{
		users:       make(map[int64]*userLimiter),
		limit:       rate.Limit(perSec),
		burst:       burst,
		procedures:  make(map[string]bool, len(procedures)),
		cleanupTick: time.NewTicker(5 * time.Minute),
		stopCleanup: make(chan struct{}),
	}
	for _, p := range procedures {
		rl.procedures[p] = true
	}

	go rl.cleanup()

	return rl
}

func (rl *RateLimiter) cleanup() {
	for {
		select {
		case <-rl.cleanupTick.C:
			rl.prune(time.Now())
		case <-rl.stopCleanup:
			return
		}
	}
}

func (rl *RateLimiter) prune(now time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for id, u := range rl.users {
		if now.Sub(u.lastSeen) > idleLimiterTTL {
			delete(rl.users, id)
		}
	}
}

// Stop stops the cleanup goroutine.
func (rl *RateLimiter) Stop() {
	rl.cleanupTick.Stop()
	close(rl.stopCleanup)
}

// Allow reports whether userID may make another request now.
func (rl *RateLimiter) Allow(userID int64) bool {
	now := time.Now()

	rl.mu.Lock()
	u, ok := rl.users[userID]
	if !ok {
		u = &userLimiter{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.users[userID] = u
	}
	u.lastSeen = now
	rl.mu.Unlock()

	return u.limiter.AllowN(now, 1)
}

// Interceptor enforces the limit. It must run inside NewAuthInterceptor.
func (rl *RateLimiter) Interceptor() connect.UnaryInterceptorFunc {
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			procedure := req.Spec().Procedure
			if req.Spec().IsClient || !rl.procedures[procedure] {
				return next(ctx, req)
			}

			userID, err := userFromContext(ctx)
			if err != nil {
				return nil, err
			}
			if !rl.Allow(userID) {
				metrics.RecordRejection(procedure, "rate_limited")
				return nil, connect.NewError(connect.CodeResourceExhausted,
					fmt.Errorf("too many requests for user %d", userID))
			}
			return next(ctx, req)
		}
	}
}
