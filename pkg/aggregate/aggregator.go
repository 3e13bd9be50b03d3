// Package aggregate merges paginated results from a session's queries into
// its single ordered pool, minimizing upstream calls.
package aggregate

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/leadgrid/searchagg/pkg/search"
	"github.com/leadgrid/searchagg/pkg/session"
)

// Provider limits mirrored here so the aggregator has no dependency on the
// concrete client.
const (
	// maxBatchSize is the upstream per-call item cap.
	maxBatchSize = 10

	// maxQueryOffset permanently retires a query once its cursor reaches it.
	maxQueryOffset = 100
)

// Prometheus metrics for aggregation passes.
var (
	aggregationPassesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "searchagg_aggregation_passes_total",
		Help: "Total aggregation passes by outcome",
	}, []string{"outcome"}) // "satisfied", "exhausted", "failed", "noop"

	duplicatesFilteredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "searchagg_duplicates_filtered_total",
		Help: "Total results dropped by cross-query link deduplication",
	})
)

// Searcher fetches one page of results for a query. Implemented by
// provider.Client; faked in tests.
type Searcher interface {
	SearchPage(ctx context.Context, query string, start, count int) ([]search.Result, error)
}

// Aggregator advances a session's queries to grow its result pool.
type Aggregator struct {
	searcher Searcher
	logger   zerolog.Logger
}

// New creates an aggregator on top of a page searcher.
func New(searcher Searcher) *Aggregator {
	return &Aggregator{
		searcher: searcher,
		logger:   log.With().Str("component", "aggregator").Logger(),
	}
}

// Ensure guarantees that after return either the session pool holds at least
// target items or the session is exhausted. It performs at most one
// round-robin pass over the session's queries, in their fixed order.
//
// Per query: a capped cursor skips the query permanently; an empty batch
// leaves the cursor in place (the next pass retries the same offset); a
// non-empty batch advances the cursor by its raw size while only
// link-deduplicated items join the pool. A failed fetch aborts the pass,
// keeping batches committed earlier in the same pass and leaving the failing
// query's cursor unchanged, so a later call retries the same (query, offset).
//
// Caller must hold the session lock.
func (a *Aggregator) Ensure(ctx context.Context, sess *session.Session, target int) error {
	entrySize := len(sess.Results)
	if entrySize >= target || sess.Exhausted {
		aggregationPassesTotal.WithLabelValues("noop").Inc()
		return nil
	}

	needed := target - entrySize

	seen := make(map[string]struct{}, entrySize)
	for _, r := range sess.Results {
		seen[r.Link] = struct{}{}
	}

	for _, query := range sess.Queries {
		if needed <= 0 {
			break
		}

		cursor := sess.QueryCursors[query]
		if cursor >= maxQueryOffset {
			continue
		}

		batchSize := needed
		if batchSize > maxBatchSize {
			batchSize = maxBatchSize
		}

		batch, err := a.searcher.SearchPage(ctx, query, cursor, batchSize)
		if err != nil {
			aggregationPassesTotal.WithLabelValues("failed").Inc()
			return fmt.Errorf("fetch %q at offset %d: %w", query, cursor, err)
		}

		if len(batch) == 0 {
			continue
		}

		fresh := make([]search.Result, 0, len(batch))
		for _, r := range batch {
			if _, dup := seen[r.Link]; dup {
				duplicatesFilteredTotal.Inc()
				continue
			}
			seen[r.Link] = struct{}{}
			fresh = append(fresh, r)
		}

		sess.AddResults(fresh, query, len(batch))
		needed -= len(fresh)

		a.logger.Debug().
			Str("session_id", sess.ID).
			Str("query", query).
			Int("fetched", len(batch)).
			Int("added", len(fresh)).
			Int("cursor", sess.QueryCursors[query]).
			Msg("Merged upstream batch")
	}

	if len(sess.Results) == entrySize {
		sess.Exhausted = true
		aggregationPassesTotal.WithLabelValues("exhausted").Inc()
		a.logger.Info().
			Str("session_id", sess.ID).
			Int("pool_size", len(sess.Results)).
			Msg("Session exhausted - full pass added no new results")
		return nil
	}

	aggregationPassesTotal.WithLabelValues("satisfied").Inc()
	return nil
}
