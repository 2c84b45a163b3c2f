package capability

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/stagelinehq/stageline/internal/providers"
	"github.com/stagelinehq/stageline/pkg/schema"
)

var emailPattern = regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)

// categoryKeywords maps a business category to the snippet keywords that
// signal it.
var categoryKeywords = map[string][]string{
	"Tech":      {"technology", "software", "app", "saas", "digital", "ai", "tech"},
	"Fitness":   {"fitness", "health", "wellness", "workout", "gym", "nutrition"},
	"Beauty":    {"beauty", "cosmetic", "skincare", "makeup", "personal care"},
	"Fashion":   {"fashion", "clothing", "apparel", "style", "wear"},
	"Food":      {"food", "restaurant", "meal", "snack", "beverage", "drink"},
	"Gaming":    {"gaming", "game", "esports", "stream", "player"},
	"Education": {"education", "learning", "course", "tutorial", "training"},
	"Finance":   {"finance", "investing", "money", "banking", "payment"},
}

// SponsorsHunt finds brands relevant to a niche that actively sponsor
// creators: brand names extracted from search titles, categorized, scored for
// partnership relevance, with a contact email discovered per brand.
type SponsorsHunt struct {
	search trendSearcher
}

// NewSponsorsHunt creates the sponsors.hunt capability.
func NewSponsorsHunt(search trendSearcher) *SponsorsHunt {
	return &SponsorsHunt{search: search}
}

func (s *SponsorsHunt) Name() string { return "sponsors.hunt" }

func (s *SponsorsHunt) Spec() Spec {
	return Spec{
		Description: "Find sponsor brands for a niche with contact emails.",
		InputSchema: json.RawMessage(`{
  "type": "object",
  "properties": {
    "niche": {"type": "string"},
    "count": {"type": "integer", "default": 3}
  },
  "required": ["niche"]
}`),
		OutputSchema: json.RawMessage(`{
  "type": "object",
  "properties": {
    "niche": {"type": "string"},
    "brands": {"type": "array"}
  }
}`),
	}
}

func (s *SponsorsHunt) Invoke(ctx context.Context, input Input) (*Output, error) {
	niche := lookupString(input, "niche")
	if niche == "" {
		return nil, schema.NewError(schema.ErrCodeInvalidInput, "sponsors.hunt: missing required field 'niche'")
	}
	count := intParam(input.Params, "count", 3)

	query := fmt.Sprintf("%s brand sponsor influencer partnership collaboration", niche)

	results, err := s.search.Search(ctx, query, providers.SearchOptions{
		Num: count * 3, // extra results for filtering
	})
	if err != nil {
		return nil, err
	}

	brands := make([]map[string]any, 0, len(results))
	for _, r := range results {
		name := extractBrandName(r.Title)
		if name == "" || r.Link == "" {
			continue
		}

		email := s.findBrandEmail(ctx, name, r.Link)

		brands = append(brands, map[string]any{
			"name":        name,
			"website":     r.Link,
			"description": r.Snippet,
			"category":    extractCategory(r.Snippet, niche),
			"email":       email,
			"relevance":   brandRelevance(r, niche),
		})
	}

	if len(brands) == 0 {
		return nil, schema.NewErrorf(schema.ErrCodeUpstreamRejected,
			"sponsors.hunt: no sponsor brands found for niche %q", niche)
	}

	sort.SliceStable(brands, func(i, j int) bool {
		return brands[i]["relevance"].(float64) > brands[j]["relevance"].(float64)
	})
	if len(brands) > count {
		brands = brands[:count]
	}

	return &Output{Value: map[string]any{
		"niche":  niche,
		"brands": brands,
	}}, nil
}

// extractBrandName pulls the brand name out of a search result title,
// dropping common "| Site" and "- tagline" suffixes. Long remainders are
// unlikely to be brand names.
func extractBrandName(title string) string {
	name := strings.TrimSpace(strings.Split(strings.Split(title, "|")[0], "-")[0])
	if name == "" || len(name) >= 50 {
		return ""
	}
	return name
}

// brandRelevance scores 0-10: base 5.0, +2.0 for a niche match, +1.0 per
// partnership keyword.
func brandRelevance(r providers.SearchResult, niche string) float64 {
	score := 5.0

	text := strings.ToLower(r.Title + " " + r.Snippet)

	if strings.Contains(text, strings.ToLower(niche)) {
		score += 2.0
	}

	partnershipKeywords := []string{"sponsor", "partnership", "influencer", "brand deal", "collaboration"}
	for _, kw := range partnershipKeywords {
		if strings.Contains(text, kw) {
			score += 1.0
		}
	}

	if score > 10.0 {
		score = 10.0
	}
	return score
}

// extractCategory picks a business category from snippet keywords, falling
// back to the first word of the niche.
func extractCategory(snippet, niche string) string {
	lower := strings.ToLower(snippet)

	for category, keywords := range categoryKeywords {
		for _, kw := range keywords {
			if strings.Contains(lower, kw) {
				return category
			}
		}
	}

	fields := strings.Fields(niche)
	if len(fields) == 0 {
		return ""
	}
	return strings.ToUpper(fields[0][:1]) + fields[0][1:]
}

// findBrandEmail searches for a contact address, preferring partnership and
// marketing inboxes, and falls back to partnerships@<domain>.
func (s *SponsorsHunt) findBrandEmail(ctx context.Context, brand, website string) string {
	fallback := "partnerships@" + domainOf(website)

	results, err := s.search.Search(ctx,
		fmt.Sprintf("%s partnerships email contact sponsorship", brand),
		providers.SearchOptions{Num: 5})
	if err != nil {
		// Email discovery is best effort; the brand result stands without it.
		return fallback
	}

	var first string
	for _, r := range results {
		for _, email := range emailPattern.FindAllString(r.Snippet, -1) {
			lower := strings.ToLower(email)
			for _, kw := range []string{"partner", "sponsor", "marketing", "collab", "business"} {
				if strings.Contains(lower, kw) {
					return email
				}
			}
			if first == "" {
				first = email
			}
		}
	}

	if first != "" {
		return first
	}
	return fallback
}

func domainOf(website string) string {
	d := strings.TrimPrefix(website, "https://")
	d = strings.TrimPrefix(d, "http://")
	d = strings.TrimPrefix(d, "www.")
	if i := strings.IndexByte(d, '/'); i >= 0 {
		d = d[:i]
	}
	return d
}

var _ Capability = (*SponsorsHunt)(nil)
