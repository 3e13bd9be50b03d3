package quota

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Prometheus metrics for quota tracking.
var (
	quotaRemaining = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "searchagg_quota_remaining",
		Help: "Number of upstream calls remaining in the current quota day",
	})

	quotaBlocksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "searchagg_quota_blocks_total",
		Help: "Total number of upstream calls blocked by the quota tracker",
	})

	quotaThrottlesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "searchagg_quota_throttles_total",
		Help: "Total number of upstream calls throttled due to low remaining quota",
	})

	quotaCooldownsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "searchagg_quota_cooldowns_total",
		Help: "Total number of cooldowns entered after upstream 429 responses",
	})
)

// usageKeyTTL keeps spent counters around long enough for inspection after
// the quota day rolls over.
const usageKeyTTL = 48 * time.Hour

// Tracker monitors daily upstream quota usage and gates calls.
type Tracker struct {
	redis      *redis.Client
	dailyLimit int
	logger     zerolog.Logger
}

// NewTracker creates a new quota tracker. A dailyLimit <= 0 falls back to
// DefaultDailyLimit.
func NewTracker(redisClient *redis.Client, dailyLimit int, logger zerolog.Logger) *Tracker {
	if dailyLimit <= 0 {
		dailyLimit = DefaultDailyLimit
	}
	return &Tracker{
		redis:      redisClient,
		dailyLimit: dailyLimit,
		logger:     logger,
	}
}

// quotaDay returns the current UTC quota day.
func quotaDay() string {
	return time.Now().UTC().Format("2006-01-02")
}

// GetState retrieves the current quota state from Redis.
// Returns a fresh zero-usage state if no data exists for the current day.
func (t *Tracker) GetState(ctx context.Context) (*State, error) {
	day := quotaDay()

	used, err := t.redis.Get(ctx, RedisKeyUsedPrefix+day).Int()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("get quota usage: %w", err)
	}

	cooldownUnix, err := t.redis.Get(ctx, RedisKeyCooldownTime).Int64()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("get cooldown: %w", err)
	}

	state := &State{
		Day:        day,
		Used:       used,
		DailyLimit: t.dailyLimit,
	}
	if cooldownUnix > 0 {
		state.CooldownUntil = time.Unix(cooldownUnix, 0)
	}

	return state, nil
}

// Allow checks whether an upstream call may proceed. Returns false when the
// daily budget is spent or a 429 cooldown is active. Callers in the
// low-budget band are throttled with a short sleep instead of blocked.
func (t *Tracker) Allow(ctx context.Context) (bool, error) {
	state, err := t.GetState(ctx)
	if err != nil {
		return false, fmt.Errorf("get quota state: %w", err)
	}

	quotaRemaining.Set(float64(state.Remaining()))

	if state.InCooldown() {
		t.logger.Warn().
			Dur("cooldown_remaining", state.CooldownRemaining()).
			Msg("Upstream cooldown active - blocking call")
		quotaBlocksTotal.Inc()
		return false, nil
	}

	if state.Exhausted() {
		t.logger.Error().
			Int("used", state.Used).
			Int("daily_limit", state.DailyLimit).
			Msg("Daily quota exhausted - blocking call")
		quotaBlocksTotal.Inc()
		return false, nil
	}

	if state.NeedsThrottling() {
		t.logger.Warn().
			Int("remaining", state.Remaining()).
			Msg("Quota low - throttling call")
		quotaThrottlesTotal.Inc()

		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(1 * time.Second):
		}
	}

	return true, nil
}

// RecordCall increments the usage counter for the current quota day.
// Every call that reached the upstream counts, regardless of its outcome.
func (t *Tracker) RecordCall(ctx context.Context) error {
	day := quotaDay()
	key := RedisKeyUsedPrefix + day

	pipe := t.redis.Pipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, usageKeyTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("record quota usage: %w", err)
	}

	used := int(incr.Val())
	quotaRemaining.Set(float64(t.dailyLimit - used))

	t.logger.Debug().
		Str("day", day).
		Int("used", used).
		Int("daily_limit", t.dailyLimit).
		Msg("Recorded upstream call")

	return nil
}

// RecordRateLimited enters a cooldown after an upstream 429. A cooldown <= 0
// falls back to DefaultCooldown.
func (t *Tracker) RecordRateLimited(ctx context.Context, cooldown time.Duration) error {
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	until := time.Now().Add(cooldown)

	if err := t.redis.Set(ctx, RedisKeyCooldownTime, until.Unix(), cooldown).Err(); err != nil {
		return fmt.Errorf("record cooldown: %w", err)
	}

	quotaCooldownsTotal.Inc()
	t.logger.Warn().
		Time("cooldown_until", until).
		Msg("Upstream rate limited - entering cooldown")

	return nil
}
