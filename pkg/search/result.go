// Package search defines the shared result types exchanged between the
// upstream provider, the session pool, and the pagination facade.
package search

// Result is a single search hit as served to callers.
type Result struct {
	// Title is the document title reported by the provider.
	Title string `json:"title"`

	// Link is the canonical URL. Links are unique within a session's
	// result pool (cross-query deduplication key).
	Link string `json:"link"`

	// Snippet is the provider's text excerpt.
	Snippet string `json:"snippet"`

	// Source is the display host of the link (e.g. "example.com").
	Source string `json:"source"`

	// Rank is the 1-based position within the originating query's
	// result stream at fetch time, not a global rank.
	Rank int `json:"rank"`
}
