package capability

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/stagelinehq/stageline/internal/providers"
	"github.com/stagelinehq/stageline/pkg/schema"
)

// trendSearcher is the slice of the search client the scout needs.
type trendSearcher interface {
	Search(ctx context.Context, query string, opts providers.SearchOptions) ([]providers.SearchResult, error)
}

// TrendsScout discovers trending topics for a niche: web search restricted to
// the past week, relevance-scored, sorted, top-N returned with the best topic
// pre-selected for downstream stages.
type TrendsScout struct {
	search trendSearcher
	now    func() time.Time
}

// NewTrendsScout creates the trends.scout capability.
func NewTrendsScout(search trendSearcher) *TrendsScout {
	return &TrendsScout{search: search, now: time.Now}
}

func (t *TrendsScout) Name() string { return "trends.scout" }

func (t *TrendsScout) Spec() Spec {
	return Spec{
		Description: "Discover trending topics for a creator niche, scored by relevance.",
		InputSchema: json.RawMessage(`{
  "type": "object",
  "properties": {
    "niche": {"type": "string"},
    "limit": {"type": "integer", "default": 5}
  },
  "required": ["niche"]
}`),
		OutputSchema: json.RawMessage(`{
  "type": "object",
  "properties": {
    "niche": {"type": "string"},
    "topics": {"type": "array"},
    "selected": {"type": "object"}
  }
}`),
	}
}

func (t *TrendsScout) Invoke(ctx context.Context, input Input) (*Output, error) {
	niche := lookupString(input, "niche")
	if niche == "" {
		return nil, schema.NewError(schema.ErrCodeInvalidInput, "trends.scout: missing required field 'niche'")
	}
	limit := intParam(input.Params, "limit", 5)

	year := t.now().Year()
	query := fmt.Sprintf("%s viral trending %d %d", niche, year, year+1)

	results, err := t.search.Search(ctx, query, providers.SearchOptions{
		Num:     limit * 2,
		Recency: "qdr:w", // past week only
	})
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, schema.NewErrorf(schema.ErrCodeUpstreamRejected,
			"trends.scout: no trends found for niche %q", niche)
	}

	topics := make([]map[string]any, 0, len(results))
	for _, r := range results {
		topics = append(topics, map[string]any{
			"title":           r.Title,
			"snippet":         r.Snippet,
			"link":            r.Link,
			"relevance_score": t.relevance(r, niche),
			"source":          "search",
		})
	}

	sort.SliceStable(topics, func(i, j int) bool {
		return topics[i]["relevance_score"].(float64) > topics[j]["relevance_score"].(float64)
	})
	if len(topics) > limit {
		topics = topics[:limit]
	}

	return &Output{Value: map[string]any{
		"niche":    niche,
		"topics":   topics,
		"selected": topics[0],
	}}, nil
}

// relevance scores a trend 0-10: base 5.0, +2.0 for a niche match, +0.5 per
// viral indicator, +1.0 when the current year appears.
func (t *TrendsScout) relevance(r providers.SearchResult, niche string) float64 {
	score := 5.0

	text := strings.ToLower(r.Title + " " + r.Snippet)

	if strings.Contains(text, strings.ToLower(niche)) {
		score += 2.0
	}

	viralKeywords := []string{"viral", "trending", "blowing up", "everyone is", "millions"}
	for _, kw := range viralKeywords {
		if strings.Contains(text, kw) {
			score += 0.5
		}
	}

	if strings.Contains(text, strconv.Itoa(t.now().Year())) {
		score += 1.0
	}

	if score > 10.0 {
		score = 10.0
	}
	return score
}

var _ Capability = (*TrendsScout)(nil)
