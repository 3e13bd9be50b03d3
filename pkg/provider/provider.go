// Package provider implements the upstream search client for the Google
// Custom Search JSON API with query augmentation, quota gating, retries,
// and error classification.
package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/leadgrid/searchagg/pkg/quota"
	"github.com/leadgrid/searchagg/pkg/search"
)

// Provider limits.
const (
	// DefaultBaseURL is the Google Custom Search JSON API endpoint.
	DefaultBaseURL = "https://www.googleapis.com/customsearch/v1"

	// MaxBatchSize is the provider's per-call item cap.
	MaxBatchSize = 10

	// MaxStartOffset is the exclusive upper bound for start positions.
	// The provider refuses to explore past the first 100 positions.
	MaxStartOffset = 100
)

// Prometheus metrics for upstream search operations.
var (
	searchRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "searchagg_upstream_requests_total",
		Help: "Total upstream search requests by HTTP status",
	}, []string{"status"})

	searchRequestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "searchagg_upstream_request_duration_seconds",
		Help:    "Upstream search request duration in seconds",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10},
	})

	searchErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "searchagg_upstream_errors_total",
		Help: "Total upstream search errors by kind",
	}, []string{"kind"})
)

// Config holds the provider client configuration.
type Config struct {
	// APIKey is the Google API key (required).
	APIKey string

	// EngineID is the custom search engine id, the "cx" parameter (required).
	EngineID string

	// BaseURL overrides the upstream endpoint (tests).
	BaseURL string

	// Quota gates calls against the shared daily budget. Optional:
	// nil disables gating.
	Quota *quota.Tracker

	// Timeout applies independently to every upstream call.
	Timeout time.Duration

	// Retry controls backoff for retryable failures.
	Retry RetryConfig
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig(apiKey, engineID string) Config {
	return Config{
		APIKey:   apiKey,
		EngineID: engineID,
		BaseURL:  DefaultBaseURL,
		Timeout:  10 * time.Second,
		Retry:    DefaultRetryConfig(),
	}
}

// Client is the upstream search client.
type Client struct {
	httpClient *http.Client
	config     Config
	logger     zerolog.Logger
}

// New creates a new upstream search client.
func New(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("api key is required")
	}
	if cfg.EngineID == "" {
		return nil, fmt.Errorf("engine id is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry = DefaultRetryConfig()
	}

	logger := log.With().Str("component", "search-provider").Logger()

	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		config: cfg,
		logger: logger,
	}, nil
}

// searchResponse is the subset of the upstream success envelope we consume.
// A missing "items" field is a valid empty result, not an error.
type searchResponse struct {
	Items []searchItem `json:"items"`
}

type searchItem struct {
	Title       string `json:"title"`
	Link        string `json:"link"`
	Snippet     string `json:"snippet"`
	DisplayLink string `json:"displayLink"`
}

// SearchPage fetches one page of results for a query starting at the given
// offset. count is clamped to [1, MaxBatchSize]. An empty page is a valid
// success; failures are returned as *SearchError with a taxonomy kind.
func (c *Client) SearchPage(ctx context.Context, query string, start, count int) ([]search.Result, error) {
	if start < 0 || start >= MaxStartOffset {
		return nil, fmt.Errorf("start offset %d outside provider range [0, %d)", start, MaxStartOffset)
	}

	if count < 1 {
		count = 1
	} else if count > MaxBatchSize {
		count = MaxBatchSize
	}

	// Gate once per page fetch; a blocked call never reaches the retry loop.
	if c.config.Quota != nil {
		allowed, err := c.config.Quota.Allow(ctx)
		if err != nil {
			return nil, fmt.Errorf("quota check: %w", err)
		}
		if !allowed {
			searchErrorsTotal.WithLabelValues(string(KindRateLimited)).Inc()
			return nil, &SearchError{
				Query:   query,
				Kind:    KindRateLimited,
				Message: "blocked by quota tracker",
				Err:     ErrQuotaExceeded,
			}
		}
	}

	var results []search.Result

	err := retryWithBackoff(ctx, c.config.Retry, c.logger, func() error {
		page, err := c.fetchPage(ctx, query, start, count)
		if err != nil {
			return err
		}
		results = page
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.logger.Debug().
		Str("query", query).
		Int("start", start).
		Int("count", count).
		Int("returned", len(results)).
		Msg("Fetched upstream page")

	return results, nil
}

// fetchPage performs a single upstream attempt.
func (c *Client) fetchPage(ctx context.Context, query string, start, count int) ([]search.Result, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, c.config.BaseURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	q := req.URL.Query()
	q.Set("q", BuildQuery(query))
	q.Set("key", c.config.APIKey)
	q.Set("cx", c.config.EngineID)
	q.Set("start", strconv.Itoa(start))
	q.Set("num", strconv.Itoa(count))
	req.URL.RawQuery = q.Encode()
	req.Header.Set("Accept", "application/json")

	startTime := time.Now()
	resp, err := c.httpClient.Do(req)
	searchRequestDuration.Observe(time.Since(startTime).Seconds())

	if err != nil {
		searchErrorsTotal.WithLabelValues(string(KindTransport)).Inc()
		searchRequestsTotal.WithLabelValues("network_error").Inc()
		return nil, &SearchError{
			Query:   query,
			Kind:    KindTransport,
			Message: "upstream request failed",
			Err:     err,
		}
	}
	defer resp.Body.Close()

	// The upstream counts the query against the daily budget regardless of
	// its outcome, so record every call that produced a response.
	if c.config.Quota != nil {
		if qerr := c.config.Quota.RecordCall(ctx); qerr != nil {
			c.logger.Warn().Err(qerr).Msg("Failed to record quota usage")
		}
	}

	searchRequestsTotal.WithLabelValues(strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode != http.StatusOK {
		kind := classifyStatus(resp.StatusCode)
		searchErrorsTotal.WithLabelValues(string(kind)).Inc()

		if kind == KindRateLimited && c.config.Quota != nil {
			if qerr := c.config.Quota.RecordRateLimited(ctx, 0); qerr != nil {
				c.logger.Warn().Err(qerr).Msg("Failed to record cooldown")
			}
		}

		c.logger.Warn().
			Str("query", query).
			Int("status", resp.StatusCode).
			Str("kind", string(kind)).
			Msg("Upstream search error")

		return nil, &SearchError{
			Query:      query,
			StatusCode: resp.StatusCode,
			Kind:       kind,
			Message:    resp.Status,
		}
	}

	var payload searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		searchErrorsTotal.WithLabelValues(string(KindMalformedResponse)).Inc()
		return nil, &SearchError{
			Query:      query,
			StatusCode: resp.StatusCode,
			Kind:       KindMalformedResponse,
			Message:    "decode upstream response",
			Err:        err,
		}
	}

	if len(payload.Items) == 0 {
		c.logger.Info().Str("query", query).Int("start", start).Msg("No search results for query")
		return nil, nil
	}

	results := make([]search.Result, 0, len(payload.Items))
	for i, item := range payload.Items {
		results = append(results, search.Result{
			Title:   item.Title,
			Link:    item.Link,
			Snippet: item.Snippet,
			Source:  item.DisplayLink,
			Rank:    start + i + 1,
		})
	}

	return results, nil
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}
