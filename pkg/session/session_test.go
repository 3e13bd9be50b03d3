package session

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leadgrid/searchagg/pkg/search"
)

func makeResults(prefix string, start, n int) []search.Result {
	results := make([]search.Result, 0, n)
	for i := 0; i < n; i++ {
		pos := start + i
		results = append(results, search.Result{
			Title: fmt.Sprintf("%s result %d", prefix, pos),
			Link:  fmt.Sprintf("https://%s.example.com/page-%d", prefix, pos),
			Rank:  pos + 1,
		})
	}
	return results
}

func TestDeriveID_Deterministic(t *testing.T) {
	day := time.Date(2026, 8, 29, 14, 30, 0, 0, time.UTC)

	first := DeriveID("user-1", "plumbers in Pune", day)
	second := DeriveID("user-1", "plumbers in Pune", day)

	assert.Equal(t, first, second)
	assert.Len(t, first, 32, "id should be a hex md5 digest")
}

func TestDeriveID_TimeOfDayIrrelevant(t *testing.T) {
	morning := time.Date(2026, 8, 29, 1, 0, 0, 0, time.UTC)
	evening := time.Date(2026, 8, 29, 23, 59, 0, 0, time.UTC)

	assert.Equal(t,
		DeriveID("user-1", "prompt", morning),
		DeriveID("user-1", "prompt", evening),
		"same calendar day must map to the same session")
}

func TestDeriveID_DistinctInputs(t *testing.T) {
	day := time.Date(2026, 8, 29, 0, 0, 0, 0, time.UTC)
	nextDay := day.AddDate(0, 0, 1)

	base := DeriveID("user-1", "prompt", day)

	assert.NotEqual(t, base, DeriveID("user-2", "prompt", day), "different caller")
	assert.NotEqual(t, base, DeriveID("user-1", "other prompt", day), "different prompt")
	assert.NotEqual(t, base, DeriveID("user-1", "prompt", nextDay), "different day")
}

func TestNew_InitializesCursors(t *testing.T) {
	queries := []string{"query a", "query b", "query c"}
	sess := New("id-1", "the prompt", queries)

	assert.Equal(t, "id-1", sess.ID)
	assert.Equal(t, "the prompt", sess.OriginalPrompt)
	assert.Equal(t, queries, sess.Queries)
	assert.Empty(t, sess.Results)
	assert.False(t, sess.Exhausted)
	assert.Zero(t, sess.LastServedOffset)
	assert.Zero(t, sess.TotalAPICalls)

	require.Len(t, sess.QueryCursors, 3)
	for _, q := range queries {
		assert.Zero(t, sess.QueryCursors[q])
	}
}

func TestAddResults_AdvancesCursorByRawCount(t *testing.T) {
	sess := New("id-1", "prompt", []string{"query a"})
	sess.Lock()
	defer sess.Unlock()

	// 10 items fetched upstream, 6 survived deduplication.
	sess.AddResults(makeResults("a", 0, 6), "query a", 10)

	assert.Len(t, sess.Results, 6)
	assert.Equal(t, 10, sess.QueryCursors["query a"],
		"cursor advances by the raw fetched count so filtered offsets are not re-requested")
	assert.Equal(t, 1, sess.TotalAPICalls)
}

func TestAddResults_Appends(t *testing.T) {
	sess := New("id-1", "prompt", []string{"query a", "query b"})
	sess.Lock()
	defer sess.Unlock()

	sess.AddResults(makeResults("a", 0, 3), "query a", 3)
	sess.AddResults(makeResults("b", 0, 2), "query b", 2)

	require.Len(t, sess.Results, 5)
	assert.Equal(t, "https://a.example.com/page-0", sess.Results[0].Link)
	assert.Equal(t, "https://b.example.com/page-1", sess.Results[4].Link)
	assert.Equal(t, 3, sess.QueryCursors["query a"])
	assert.Equal(t, 2, sess.QueryCursors["query b"])
	assert.Equal(t, 2, sess.TotalAPICalls)
}

func TestWindow_Clamping(t *testing.T) {
	sess := New("id-1", "prompt", []string{"query a"})
	sess.Lock()
	defer sess.Unlock()
	sess.AddResults(makeResults("a", 0, 10), "query a", 10)

	tests := []struct {
		name    string
		offset  int
		limit   int
		wantLen int
	}{
		{"full window", 0, 10, 10},
		{"middle window", 3, 4, 4},
		{"tail clamp", 8, 5, 2},
		{"offset at end", 10, 5, 0},
		{"offset past end", 25, 5, 0},
		{"negative offset", -1, 5, 0},
		{"zero limit", 0, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			window := sess.Window(tt.offset, tt.limit)
			assert.Len(t, window, tt.wantLen)
			if tt.wantLen > 0 {
				assert.Equal(t, sess.Results[tt.offset].Link, window[0].Link)
			}
		})
	}
}

func TestWindow_ReturnsCopy(t *testing.T) {
	sess := New("id-1", "prompt", []string{"query a"})
	sess.Lock()
	defer sess.Unlock()
	sess.AddResults(makeResults("a", 0, 3), "query a", 3)

	window := sess.Window(0, 3)
	window[0].Title = "mutated"

	assert.NotEqual(t, "mutated", sess.Results[0].Title)
}

func TestNeedsMore(t *testing.T) {
	sess := New("id-1", "prompt", []string{"query a"})
	sess.Lock()
	defer sess.Unlock()
	sess.AddResults(makeResults("a", 0, 5), "query a", 5)

	assert.True(t, sess.NeedsMore(10), "pool short of target")
	assert.False(t, sess.NeedsMore(5), "pool meets target")
	assert.False(t, sess.NeedsMore(3), "pool exceeds target")

	sess.Exhausted = true
	assert.False(t, sess.NeedsMore(10), "exhausted sessions never need more")
}

func TestCursorSnapshot_IsCopy(t *testing.T) {
	sess := New("id-1", "prompt", []string{"query a"})
	sess.Lock()
	defer sess.Unlock()
	sess.AddResults(makeResults("a", 0, 4), "query a", 4)

	snapshot := sess.CursorSnapshot()
	snapshot["query a"] = 99

	assert.Equal(t, 4, sess.QueryCursors["query a"])
}

func TestSession_LockSerializesMutation(t *testing.T) {
	sess := New("id-1", "prompt", []string{"query a"})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			sess.Lock()
			defer sess.Unlock()
			sess.AddResults(makeResults("a", n*5, 5), "query a", 5)
		}(i)
	}
	wg.Wait()

	sess.Lock()
	defer sess.Unlock()
	assert.Len(t, sess.Results, 100)
	assert.Equal(t, 100, sess.QueryCursors["query a"])
	assert.Equal(t, 20, sess.TotalAPICalls)
}
