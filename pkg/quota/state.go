// Package quota tracks upstream search API usage against the provider's
// daily query quota and 429 cooldowns. State lives in Redis so that all
// replicas of the service share one view of the remaining budget.
package quota

import (
	"time"
)

// Redis keys for quota state storage. The usage counter is per calendar day
// (UTC), matching the provider's quota window.
const (
	RedisKeyUsedPrefix   = "searchagg:quota:used:"
	RedisKeyCooldownTime = "searchagg:quota:cooldown_until"
)

// Default limits.
const (
	// DefaultDailyLimit matches the provider's free-tier daily query quota.
	DefaultDailyLimit = 100

	// DefaultCooldown is applied after an upstream 429 when the provider
	// gives no explicit retry hint.
	DefaultCooldown = 60 * time.Second
)

// State represents the current quota state for one quota day.
type State struct {
	// Day is the UTC quota day this state describes (YYYY-MM-DD).
	Day string `json:"day"`

	// Used is the number of upstream calls recorded for Day.
	Used int `json:"used"`

	// DailyLimit is the configured daily call budget.
	DailyLimit int `json:"daily_limit"`

	// CooldownUntil is set after an upstream 429; calls are blocked until
	// this instant passes. Zero when no cooldown is active.
	CooldownUntil time.Time `json:"cooldown_until"`
}

// Remaining returns the number of calls left in the daily budget.
// Never negative.
func (s *State) Remaining() int {
	remaining := s.DailyLimit - s.Used
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Exhausted returns true once the daily budget is spent.
func (s *State) Exhausted() bool {
	return s.Used >= s.DailyLimit
}

// InCooldown returns true while a 429 cooldown is active.
func (s *State) InCooldown() bool {
	return time.Now().Before(s.CooldownUntil)
}

// NeedsThrottling returns true when the remaining budget is low (below 10%
// of the daily limit) but not yet exhausted. Throttled callers are slowed
// down, not blocked.
func (s *State) NeedsThrottling() bool {
	if s.Exhausted() {
		return false
	}
	return s.Remaining() <= s.DailyLimit/10
}

// CooldownRemaining returns the duration until the cooldown lifts.
// Returns 0 if no cooldown is active.
func (s *State) CooldownRemaining() time.Duration {
	d := time.Until(s.CooldownUntil)
	if d < 0 {
		return 0
	}
	return d
}
