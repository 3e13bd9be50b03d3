// Package session holds per-(caller, prompt, day) aggregation state and the
// bounded process-wide store that owns it.
package session

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/leadgrid/searchagg/pkg/search"
)

// Session is the aggregation state for one (caller, prompt, day) triple.
//
// The embedded mutex serializes aggregation passes: at most one caller may
// read cursors, call upstream, and mutate the pool at a time. Callers must
// hold the lock (via Lock/Unlock) around every compound operation; the
// field accessors below do not lock on their own.
type Session struct {
	mu sync.Mutex

	// ID is derived deterministically from (caller, prompt, day).
	ID string

	// OriginalPrompt is immutable, set at creation.
	OriginalPrompt string

	// Queries is the fixed, ordered set of generated query strings.
	Queries []string

	// Results is the append-only merged pool, in arrival order. No two
	// entries share a link.
	Results []search.Result

	// QueryCursors maps each query to the next upstream offset to request.
	QueryCursors map[string]int

	// Exhausted is set once a full aggregation pass adds zero new items.
	// Sticky: never cleared.
	Exhausted bool

	// LastServedOffset is the exclusive upper bound of the most recent
	// sequential read.
	LastServedOffset int

	// TotalAPICalls counts upstream calls made on behalf of this session.
	TotalAPICalls int

	CreatedAt    time.Time
	LastAccessed time.Time
}

// New creates a session with zeroed cursors for every query.
func New(id, prompt string, queries []string) *Session {
	cursors := make(map[string]int, len(queries))
	for _, q := range queries {
		cursors[q] = 0
	}
	now := time.Now()
	return &Session{
		ID:             id,
		OriginalPrompt: prompt,
		Queries:        queries,
		QueryCursors:   cursors,
		CreatedAt:      now,
		LastAccessed:   now,
	}
}

// DeriveID computes the deterministic session id for a (caller, prompt, day)
// triple. The same triple always maps to the same id within a calendar day,
// which is what keeps pagination continuous across repeated identical
// requests. Collisions are accepted, not cryptographically guarded.
func DeriveID(userID, prompt string, day time.Time) string {
	base := fmt.Sprintf("%s_%s_%s", userID, prompt, day.Format("2006-01-02"))
	sum := md5.Sum([]byte(base))
	return hex.EncodeToString(sum[:])
}

// Lock acquires the per-session mutex.
func (s *Session) Lock() {
	s.mu.Lock()
}

// Unlock releases the per-session mutex.
func (s *Session) Unlock() {
	s.mu.Unlock()
}

// AddResults appends a deduplicated batch to the pool and advances the
// query's cursor by the raw fetched count. Advancing by the raw count (not
// the deduplicated one) prevents re-requesting offsets whose items were
// filtered as duplicates. Caller must hold the lock.
func (s *Session) AddResults(batch []search.Result, query string, fetched int) {
	s.Results = append(s.Results, batch...)
	s.QueryCursors[query] += fetched
	s.TotalAPICalls++
	s.LastAccessed = time.Now()
}

// Window returns a copy of the pool slice [offset, offset+limit), clamped to
// the pool bounds. Caller must hold the lock.
func (s *Session) Window(offset, limit int) []search.Result {
	s.LastAccessed = time.Now()

	if offset < 0 || offset >= len(s.Results) || limit <= 0 {
		return nil
	}
	end := offset + limit
	if end > len(s.Results) {
		end = len(s.Results)
	}

	window := make([]search.Result, end-offset)
	copy(window, s.Results[offset:end])
	return window
}

// NeedsMore reports whether the pool is short of required and more data
// could still exist upstream. Caller must hold the lock.
func (s *Session) NeedsMore(required int) bool {
	return len(s.Results) < required && !s.Exhausted
}

// CursorSnapshot returns a copy of the query cursors for response envelopes.
// Caller must hold the lock.
func (s *Session) CursorSnapshot() map[string]int {
	snapshot := make(map[string]int, len(s.QueryCursors))
	for q, pos := range s.QueryCursors {
		snapshot[q] = pos
	}
	return snapshot
}
