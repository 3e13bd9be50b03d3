package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ErrNotFound indicates the requested session id is unknown or expired.
var ErrNotFound = errors.New("session not found")

// Prometheus metrics for session store operations.
var (
	sessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "searchagg_sessions_active",
		Help: "Current number of sessions held by the store",
	})

	sessionsCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "searchagg_sessions_created_total",
		Help: "Total number of sessions created",
	})

	sessionEvictionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "searchagg_session_evictions_total",
		Help: "Total number of sessions evicted by reason",
	}, []string{"reason"}) // "ttl", "capacity"
)

// StoreConfig holds session store configuration.
type StoreConfig struct {
	// TTL evicts sessions untouched for this long. <= 0 uses the default.
	TTL time.Duration

	// MaxSessions bounds the store; the least recently accessed session is
	// evicted when a new one would exceed it. <= 0 uses the default.
	MaxSessions int
}

// DefaultStoreConfig returns a safe default store configuration.
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{
		TTL:         30 * time.Minute,
		MaxSessions: 10000,
	}
}

// Store is the process-wide session map, bounded by TTL and capacity.
// Expiry is evaluated lazily on access and by an optional periodic sweep.
//
// The store tracks access times itself (under its own mutex) rather than
// reading Session.LastAccessed, because session fields are guarded by the
// per-session lock which may be held across upstream I/O.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*Session
	access   map[string]time.Time
	config   StoreConfig
	logger   zerolog.Logger
}

// NewStore creates an empty session store.
func NewStore(cfg StoreConfig) *Store {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultStoreConfig().TTL
	}
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = DefaultStoreConfig().MaxSessions
	}
	return &Store{
		sessions: make(map[string]*Session),
		access:   make(map[string]time.Time),
		config:   cfg,
		logger:   log.With().Str("component", "session-store").Logger(),
	}
}

// Get returns the session for id, or ErrNotFound if unknown or expired.
func (st *Store) Get(id string) (*Session, error) {
	st.mu.Lock()
	defer st.mu.Unlock()

	sess, ok := st.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}

	if time.Since(st.access[id]) > st.config.TTL {
		st.evictLocked(id, "ttl")
		return nil, ErrNotFound
	}

	st.access[id] = time.Now()
	return sess, nil
}

// GetOrCreate returns the existing session for id, or registers the one
// built by factory. The factory is invoked while the store lock is held,
// so creation is atomic per id: concurrent first accesses observe exactly
// one session. Returns true when a new session was created.
func (st *Store) GetOrCreate(id string, factory func() *Session) (*Session, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()

	if sess, ok := st.sessions[id]; ok {
		if time.Since(st.access[id]) <= st.config.TTL {
			st.access[id] = time.Now()
			return sess, false
		}
		st.evictLocked(id, "ttl")
	}

	if len(st.sessions) >= st.config.MaxSessions {
		st.evictOldestLocked()
	}

	sess := factory()
	st.sessions[id] = sess
	st.access[id] = time.Now()

	sessionsCreatedTotal.Inc()
	sessionsActive.Set(float64(len(st.sessions)))
	st.logger.Debug().Str("session_id", id).Msg("Session created")

	return sess, true
}

// Len returns the number of sessions currently held.
func (st *Store) Len() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.sessions)
}

// StartSweeper launches a background goroutine that evicts expired sessions
// every interval until ctx is cancelled.
func (st *Store) StartSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				st.logger.Debug().Msg("Session sweeper stopping")
				return
			case <-ticker.C:
				st.sweep()
			}
		}
	}()
}

// sweep evicts every expired session.
func (st *Store) sweep() {
	st.mu.Lock()
	defer st.mu.Unlock()

	evicted := 0
	for id, last := range st.access {
		if time.Since(last) > st.config.TTL {
			st.evictLocked(id, "ttl")
			evicted++
		}
	}

	if evicted > 0 {
		st.logger.Info().
			Int("evicted", evicted).
			Int("remaining", len(st.sessions)).
			Msg("Session sweep complete")
	}
}

// evictOldestLocked removes the least recently accessed session to make room
// for a new one. Caller must hold the store lock.
func (st *Store) evictOldestLocked() {
	var oldestID string
	var oldest time.Time
	for id, last := range st.access {
		if oldestID == "" || last.Before(oldest) {
			oldestID = id
			oldest = last
		}
	}
	if oldestID != "" {
		st.evictLocked(oldestID, "capacity")
	}
}

// evictLocked removes one session. Caller must hold the store lock.
func (st *Store) evictLocked(id, reason string) {
	delete(st.sessions, id)
	delete(st.access, id)
	sessionEvictionsTotal.WithLabelValues(reason).Inc()
	sessionsActive.Set(float64(len(st.sessions)))
	st.logger.Debug().Str("session_id", id).Str("reason", reason).Msg("Session evicted")
}
