// Package testutil provides testing utilities for the search aggregation
// service.
package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
)

// Item mirrors one entry of the upstream "items" array.
type Item struct {
	Title       string `json:"title"`
	Link        string `json:"link"`
	Snippet     string `json:"snippet"`
	DisplayLink string `json:"displayLink"`
}

// MockCSE is a configurable mock Custom Search server for testing. Pages are
// keyed by (raw query, start offset); unkeyed requests get an empty result
// envelope, which is how the real provider signals "nothing here".
type MockCSE struct {
	server *httptest.Server
	mu     sync.RWMutex

	pages        map[string][]Item
	forcedStatus int
	rawBody      string

	// Tracking
	requestCount int
	requests     []url.Values
}

// NewMockCSE creates a new mock search server.
func NewMockCSE() *MockCSE {
	mock := &MockCSE{
		pages: make(map[string][]Item),
	}
	mock.server = httptest.NewServer(http.HandlerFunc(mock.handle))
	return mock
}

// URL returns the mock server URL.
func (m *MockCSE) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockCSE) Close() {
	m.server.Close()
}

// SetPage configures the items returned for a raw query at a start offset.
func (m *MockCSE) SetPage(query string, start int, items []Item) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pages[pageKey(query, start)] = items
}

// SetStatus forces every subsequent request to fail with the given HTTP
// status. Pass 0 to restore normal behavior.
func (m *MockCSE) SetStatus(status int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.forcedStatus = status
}

// SetRawBody forces every subsequent 200 response to carry the given body
// verbatim (malformed-payload tests). Pass "" to restore normal behavior.
func (m *MockCSE) SetRawBody(body string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rawBody = body
}

// RequestCount returns the number of requests received.
func (m *MockCSE) RequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.requestCount
}

// Requests returns the recorded query parameters of every request, in order.
func (m *MockCSE) Requests() []url.Values {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]url.Values, len(m.requests))
	copy(out, m.requests)
	return out
}

// Reset clears tracking counters and configured pages.
func (m *MockCSE) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pages = make(map[string][]Item)
	m.forcedStatus = 0
	m.rawBody = ""
	m.requestCount = 0
	m.requests = nil
}

func (m *MockCSE) handle(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()

	m.mu.Lock()
	m.requestCount++
	m.requests = append(m.requests, params)
	status := m.forcedStatus
	raw := m.rawBody
	m.mu.Unlock()

	w.Header().Set("Content-Type", "application/json; charset=utf-8")

	if status != 0 {
		w.WriteHeader(status)
		w.Write([]byte(`{"error": {"message": "forced error"}}`))
		return
	}

	if raw != "" {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(raw))
		return
	}

	query := RawQuery(params.Get("q"))
	start, _ := strconv.Atoi(params.Get("start"))
	num, _ := strconv.Atoi(params.Get("num"))

	m.mu.RLock()
	items := m.pages[pageKey(query, start)]
	m.mu.RUnlock()

	if num > 0 && len(items) > num {
		items = items[:num]
	}

	w.WriteHeader(http.StatusOK)
	if len(items) == 0 {
		// No "items" field at all, like the real API.
		w.Write([]byte(`{"kind": "customsearch#search"}`))
		return
	}

	json.NewEncoder(w).Encode(map[string]interface{}{
		"kind":  "customsearch#search",
		"items": items,
	})
}

// RawQuery strips the site-exclusion clause the provider appends, recovering
// the raw query string.
func RawQuery(augmented string) string {
	if i := strings.Index(augmented, " -site:"); i >= 0 {
		return augmented[:i]
	}
	return augmented
}

// GenerateItems builds n sequential items for a query, with links unique to
// (prefix, position).
func GenerateItems(prefix string, start, n int) []Item {
	items := make([]Item, 0, n)
	for i := 0; i < n; i++ {
		pos := start + i
		items = append(items, Item{
			Title:       prefix + " result " + strconv.Itoa(pos),
			Link:        "https://" + prefix + ".example.com/page-" + strconv.Itoa(pos),
			Snippet:     "snippet for " + prefix + " " + strconv.Itoa(pos),
			DisplayLink: prefix + ".example.com",
		})
	}
	return items
}

func pageKey(query string, start int) string {
	return query + "|" + strconv.Itoa(start)
}
