package ratelimit

import (
	"context"
	"strings"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/loyalty/internal/clock"
	"github.com/smallbiznis/loyalty/internal/config"
	obsmetrics "github.com/smallbiznis/loyalty/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	keyClaimUser   = "loyalty:claim:user:"
	claimEndpoint  = "claim"
	visitorIdleTTL = 10 * time.Minute
	sweepEvery     = 256
)

// ClaimLimiter throttles claim attempts per user. It only protects the
// endpoint from bursts; the daily claim cap lives in the claim service.
type ClaimLimiter struct {
	enabled bool
	rate    float64
	burst   int

	bucket  *TokenBucket
	log     *zap.Logger
	clock   clock.Clock
	metrics *obsmetrics.Metrics

	mu       sync.Mutex
	visitors map[string]*visitor
	calls    int
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

type ClaimLimiterParams struct {
	fx.In

	Config     config.Config
	Log        *zap.Logger
	Clock      clock.Clock
	Redis      *redis.Client       `optional:"true"`
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

func NewClaimLimiter(p ClaimLimiterParams) *ClaimLimiter {
	cfg := p.Config.RateLimit
	l := &ClaimLimiter{
		enabled:  cfg.Enabled && cfg.ClaimRatePerSec > 0 && cfg.ClaimBurst > 0,
		rate:     cfg.ClaimRatePerSec,
		burst:    cfg.ClaimBurst,
		bucket:   NewTokenBucket(p.Redis),
		log:      p.Log.Named("ratelimit.claim"),
		clock:    p.Clock,
		metrics:  p.ObsMetrics,
		visitors: make(map[string]*visitor),
	}
	if l.clock == nil {
		l.clock = clock.SystemClock{}
	}
	return l
}

func (l *ClaimLimiter) Enabled() bool {
	return l != nil && l.enabled
}

// Allow reports whether userID may attempt a claim now. Redis failures fall
// back to the in-process bucket rather than rejecting the request.
func (l *ClaimLimiter) Allow(ctx context.Context, userID string) (Result, error) {
	if !l.Enabled() {
		return Result{Allowed: true}, nil
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return Result{}, ErrEmptyKey
	}

	var (
		res Result
		err error
	)
	if l.bucket != nil {
		res, err = l.bucket.Allow(ctx, keyClaimUser+userID, l.rate, l.burst)
		if err != nil {
			l.log.Warn("redis claim bucket failed, using local bucket", zap.String("user_id", userID), zap.Error(err))
			res = l.allowLocal(userID)
		}
	} else {
		res = l.allowLocal(userID)
	}

	if res.Allowed {
		l.metrics.RecordRateLimitAllowed(ctx, claimEndpoint)
	} else {
		l.metrics.RecordRateLimitDenied(ctx, claimEndpoint, "claim_rate")
	}
	return res, nil
}

func (l *ClaimLimiter) allowLocal(userID string) Result {
	now := l.clock.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	l.calls++
	if l.calls%sweepEvery == 0 {
		l.sweep(now)
	}

	v, ok := l.visitors[userID]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(rate.Limit(l.rate), l.burst)}
		l.visitors[userID] = v
	}
	v.lastSeen = now

	res := Result{Limit: l.burst}
	r := v.limiter.ReserveN(now, 1)
	if !r.OK() {
		return res
	}
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		res.RetryAfter = delay
		return res
	}
	res.Allowed = true
	res.Remaining = int(v.limiter.TokensAt(now))
	return res
}

func (l *ClaimLimiter) sweep(now time.Time) {
	for id, v := range l.visitors {
		if now.Sub(v.lastSeen) > visitorIdleTTL {
			delete(l.visitors, id)
		}
	}
}
