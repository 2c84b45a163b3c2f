package capability

import (
	"context"
	"testing"
	"time"

	"github.com/stagelinehq/stageline/internal/providers"
	"github.com/stagelinehq/stageline/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSearcher struct {
	results map[string][]providers.SearchResult
	fallbackResults []providers.SearchResult
	err     error
	queries []string
}

func (f *fakeSearcher) Search(ctx context.Context, query string, opts providers.SearchOptions) ([]providers.SearchResult, error) {
	f.queries = append(f.queries, query)
	if f.err != nil {
		return nil, f.err
	}
	if r, ok := f.results[query]; ok {
		return r, nil
	}
	return f.fallbackResults, nil
}

func fixedTime() time.Time {
	return time.Date(2026, 8, 23, 12, 0, 0, 0, time.UTC)
}

func TestTrendsScout_ScoresAndSorts(t *testing.T) {
	search := &fakeSearcher{fallbackResults: []providers.SearchResult{
		{Title: "Some article", Snippet: "nothing special"},
		{Title: "fitness memes are viral in 2026", Snippet: "everyone is sharing them, millions of views"},
		{Title: "trending now", Snippet: "a trending thing"},
	}}

	scout := NewTrendsScout(search)
	scout.now = fixedTime

	out, err := scout.Invoke(context.Background(), Input{
		Params: map[string]any{"niche": "fitness memes", "limit": 3},
	})
	require.NoError(t, err)

	value := out.Value.(map[string]any)
	topics := value["topics"].([]map[string]any)
	require.Len(t, topics, 3)

	// Title with niche + viral keywords + current year scores highest.
	assert.Equal(t, "fitness memes are viral in 2026", topics[0]["title"])
	selected := value["selected"].(map[string]any)
	assert.Equal(t, topics[0]["title"], selected["title"])

	// base 5.0 + niche 2.0 + viral/everyone is/millions 1.5 + year 1.0 = 9.5
	assert.InDelta(t, 9.5, topics[0]["relevance_score"].(float64), 0.01)
	assert.InDelta(t, 5.0, topics[len(topics)-1]["relevance_score"].(float64), 0.01)
}

func TestTrendsScout_ScoreCappedAtTen(t *testing.T) {
	search := &fakeSearcher{fallbackResults: []providers.SearchResult{
		{
			Title:   "fitness viral trending 2026",
			Snippet: "blowing up, everyone is watching, millions of views, fitness",
		},
	}}

	scout := NewTrendsScout(search)
	scout.now = fixedTime

	out, err := scout.Invoke(context.Background(), Input{Params: map[string]any{"niche": "fitness"}})
	require.NoError(t, err)

	topics := out.Value.(map[string]any)["topics"].([]map[string]any)
	assert.Equal(t, 10.0, topics[0]["relevance_score"])
}

func TestTrendsScout_QueryIncludesNicheAndYears(t *testing.T) {
	search := &fakeSearcher{fallbackResults: []providers.SearchResult{{Title: "t"}}}

	scout := NewTrendsScout(search)
	scout.now = fixedTime

	_, err := scout.Invoke(context.Background(), Input{Params: map[string]any{"niche": "gaming"}})
	require.NoError(t, err)

	require.Len(t, search.queries, 1)
	assert.Equal(t, "gaming viral trending 2026 2027", search.queries[0])
}

func TestTrendsScout_MissingNiche(t *testing.T) {
	scout := NewTrendsScout(&fakeSearcher{})

	_, err := scout.Invoke(context.Background(), Input{Params: map[string]any{}})
	require.Error(t, err)

	var serr *schema.Error
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, schema.ErrCodeInvalidInput, serr.Code)
}

func TestTrendsScout_NicheFromContext(t *testing.T) {
	search := &fakeSearcher{fallbackResults: []providers.SearchResult{{Title: "t"}}}
	scout := NewTrendsScout(search)
	scout.now = fixedTime

	_, err := scout.Invoke(context.Background(), Input{
		Params:  map[string]any{},
		Context: map[string]any{"niche": "cooking"},
	})
	require.NoError(t, err)
	assert.Contains(t, search.queries[0], "cooking")
}

func TestTrendsScout_EmptyResults(t *testing.T) {
	scout := NewTrendsScout(&fakeSearcher{})
	scout.now = fixedTime

	_, err := scout.Invoke(context.Background(), Input{Params: map[string]any{"niche": "fitness"}})
	require.Error(t, err)

	var serr *schema.Error
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, schema.ErrCodeUpstreamRejected, serr.Code)
}

func TestTrendsScout_ProviderErrorPropagates(t *testing.T) {
	scout := NewTrendsScout(&fakeSearcher{
		err: schema.NewError(schema.ErrCodeUpstreamUnavailable, "search down"),
	})
	scout.now = fixedTime

	_, err := scout.Invoke(context.Background(), Input{Params: map[string]any{"niche": "fitness"}})
	require.Error(t, err)

	var serr *schema.Error
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, schema.ErrCodeUpstreamUnavailable, serr.Code)
}

func TestTrendsScout_LimitApplied(t *testing.T) {
	results := make([]providers.SearchResult, 8)
	for i := range results {
		results[i] = providers.SearchResult{Title: "t", Snippet: "s"}
	}
	scout := NewTrendsScout(&fakeSearcher{fallbackResults: results})
	scout.now = fixedTime

	out, err := scout.Invoke(context.Background(), Input{
		Params: map[string]any{"niche": "fitness", "limit": 2},
	})
	require.NoError(t, err)
	assert.Len(t, out.Value.(map[string]any)["topics"].([]map[string]any), 2)
}
