// Package paginate exposes the two public pagination operations over the
// session-based aggregation cache: fetch-at-offset and fetch-next.
package paginate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/leadgrid/searchagg/pkg/aggregate"
	"github.com/leadgrid/searchagg/pkg/search"
	"github.com/leadgrid/searchagg/pkg/session"
)

// ErrSessionNotFound is returned by FetchNext for an unknown or expired
// session id. The caller must restart via SearchWithOffset.
var ErrSessionNotFound = errors.New("session not found or expired")

// readAheadPadding is added to every aggregation target so the next
// pagination call usually finds its window already pooled.
const readAheadPadding = 10

// maxQueries caps the generated query set per session.
const maxQueries = 5

// Prometheus metrics for pagination operations.
var paginationRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "searchagg_pagination_requests_total",
	Help: "Total pagination requests by operation and status",
}, []string{"operation", "status"}) // operation: "offset", "next"

// QueryGenerator turns a natural-language prompt into 1-5 distinct,
// non-empty query strings. Invoked once per session.
type QueryGenerator interface {
	Generate(ctx context.Context, prompt string) ([]string, error)
}

// Service combines session lookup, on-demand aggregation, and window
// slicing behind the two pagination operations.
type Service struct {
	store  *session.Store
	agg    *aggregate.Aggregator
	gen    QueryGenerator
	logger zerolog.Logger

	// now is swappable for tests; session ids are day-scoped.
	now func() time.Time
}

// NewService wires the pagination facade.
func NewService(store *session.Store, agg *aggregate.Aggregator, gen QueryGenerator) *Service {
	return &Service{
		store:  store,
		agg:    agg,
		gen:    gen,
		logger: log.With().Str("component", "paginate").Logger(),
		now:    time.Now,
	}
}

// SearchWithOffset serves the window [offset, offset+limit) of the logical
// result stream for (prompt, userID). First access for the day generates the
// session's queries and primes the pool with offset+limit+padding items.
func (s *Service) SearchWithOffset(ctx context.Context, prompt, userID string, offset, limit int) (*Response, error) {
	if offset < 0 {
		return nil, fmt.Errorf("offset must be >= 0, got %d", offset)
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be > 0, got %d", limit)
	}

	id := session.DeriveID(userID, prompt, s.now())

	sess, err := s.store.Get(id)
	created := false
	if errors.Is(err, session.ErrNotFound) {
		queries, gerr := s.generateQueries(ctx, prompt)
		if gerr != nil {
			// No partial session is stored on generation failure.
			paginationRequestsTotal.WithLabelValues("offset", "error").Inc()
			return nil, gerr
		}
		sess, created = s.store.GetOrCreate(id, func() *session.Session {
			return session.New(id, prompt, queries)
		})
	}

	sess.Lock()
	defer sess.Unlock()

	if created {
		s.logger.Info().
			Str("session_id", id).
			Str("prompt", prompt).
			Strs("queries", sess.Queries).
			Msg("Session created - priming result pool")

		if err := s.agg.Ensure(ctx, sess, offset+limit+readAheadPadding); err != nil {
			paginationRequestsTotal.WithLabelValues("offset", "error").Inc()
			return nil, err
		}
	}

	required := offset + limit
	if sess.NeedsMore(required) {
		if err := s.agg.Ensure(ctx, sess, required+readAheadPadding); err != nil {
			paginationRequestsTotal.WithLabelValues("offset", "error").Inc()
			return nil, err
		}
	}

	results := sess.Window(offset, limit)
	sess.LastServedOffset = offset + len(results)

	hasMore := offset+len(results) < len(sess.Results) || !sess.Exhausted

	paginationRequestsTotal.WithLabelValues("offset", "ok").Inc()
	return s.envelope(sess, results, offset, hasMore), nil
}

// FetchNext serves the next window after the session's last sequential read.
func (s *Service) FetchNext(ctx context.Context, sessionID string, limit int) (*Response, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be > 0, got %d", limit)
	}

	sess, err := s.store.Get(sessionID)
	if err != nil {
		paginationRequestsTotal.WithLabelValues("next", "not_found").Inc()
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}

	sess.Lock()
	defer sess.Unlock()

	offset := sess.LastServedOffset
	required := offset + limit
	if sess.NeedsMore(required) {
		if err := s.agg.Ensure(ctx, sess, required+readAheadPadding); err != nil {
			paginationRequestsTotal.WithLabelValues("next", "error").Inc()
			return nil, err
		}
	}

	results := sess.Window(offset, limit)
	sess.LastServedOffset = offset + len(results)

	hasMore := sess.LastServedOffset < len(sess.Results) || !sess.Exhausted

	paginationRequestsTotal.WithLabelValues("next", "ok").Inc()
	return s.envelope(sess, results, offset, hasMore), nil
}

// generateQueries invokes the collaborator and normalizes its output:
// trimmed, non-empty, distinct, capped at maxQueries.
func (s *Service) generateQueries(ctx context.Context, prompt string) ([]string, error) {
	raw, err := s.gen.Generate(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("generate queries: %w", err)
	}

	seen := make(map[string]struct{}, len(raw))
	queries := make([]string, 0, len(raw))
	for _, q := range raw {
		q = strings.TrimSpace(q)
		if q == "" {
			continue
		}
		if _, dup := seen[q]; dup {
			continue
		}
		seen[q] = struct{}{}
		queries = append(queries, q)
		if len(queries) == maxQueries {
			break
		}
	}

	if len(queries) == 0 {
		return nil, fmt.Errorf("generate queries: generator returned no usable queries")
	}

	return queries, nil
}

// envelope builds the response. Caller must hold the session lock.
func (s *Service) envelope(sess *session.Session, results []search.Result, offset int, hasMore bool) *Response {
	if results == nil {
		results = []search.Result{}
	}

	resp := &Response{
		Results: results,
		Pagination: Pagination{
			Offset:                offset,
			ResultsReturned:       len(results),
			TotalResultsAvailable: len(sess.Results),
			HasMore:               hasMore,
		},
		SessionInfo: SessionInfo{
			SessionID:          sess.ID,
			TotalResults:       len(sess.Results),
			TotalResultsServed: sess.LastServedOffset,
			CreatedAt:          sess.CreatedAt,
			LastAccessed:       sess.LastAccessed,
			IsExhausted:        sess.Exhausted,
		},
		QueryInfo: QueryInfo{
			OriginalPrompt:   sess.OriginalPrompt,
			GeneratedQueries: sess.Queries,
			QueryPositions:   sess.CursorSnapshot(),
		},
	}

	if hasMore {
		next := offset + len(results)
		resp.Pagination.NextOffset = &next
	}

	return resp
}
