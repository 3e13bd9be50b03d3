package paginate

import (
	"time"

	"github.com/leadgrid/searchagg/pkg/search"
)

// Response is the envelope returned by both pagination operations.
type Response struct {
	Results     []search.Result `json:"results"`
	Pagination  Pagination      `json:"pagination"`
	SessionInfo SessionInfo     `json:"session_info"`
	QueryInfo   QueryInfo       `json:"query_info"`
}

// Pagination describes the served window and whether more may exist.
type Pagination struct {
	Offset          int `json:"offset"`
	ResultsReturned int `json:"results_returned"`

	// TotalResultsAvailable is the current pool size, not an upstream
	// estimate.
	TotalResultsAvailable int `json:"total_results_available"`

	// HasMore is conservative: true whenever unserved pool items remain OR
	// the session is not yet exhausted, even if the pool already satisfied
	// this request.
	HasMore bool `json:"has_more"`

	// NextOffset is present only when HasMore.
	NextOffset *int `json:"next_offset,omitempty"`
}

// SessionInfo describes the serving session.
type SessionInfo struct {
	SessionID          string    `json:"session_id"`
	TotalResults       int       `json:"total_results"`
	TotalResultsServed int       `json:"total_results_served"`
	CreatedAt          time.Time `json:"created_at"`
	LastAccessed       time.Time `json:"last_accessed"`
	IsExhausted        bool      `json:"is_exhausted"`
}

// QueryInfo exposes the generated queries and their fetch positions.
type QueryInfo struct {
	OriginalPrompt   string         `json:"original_prompt"`
	GeneratedQueries []string       `json:"generated_queries"`
	QueryPositions   map[string]int `json:"query_positions"`
}
