package providers

import (
	"context"
	"strings"
)

// SearchClient talks to a Serper-style web search API.
type SearchClient struct {
	caller
	baseURL string
	apiKey  string
}

// NewSearchClient creates a web search client.
func NewSearchClient(cfg Config, breakers *BreakerRegistry) *SearchClient {
	return &SearchClient{
		caller:  newCaller("search", cfg, breakers),
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
	}
}

// SearchResult is one organic result from the search API.
type SearchResult struct {
	Title   string `json:"title"`
	Link    string `json:"link"`
	Snippet string `json:"snippet"`
}

// SearchOptions narrows a search query.
type SearchOptions struct {
	// Num is the number of results to request.
	Num int
	// Recency restricts results by age using the API's tbs syntax
	// (e.g. "qdr:w" for the past week). Empty means no restriction.
	Recency string
}

type searchRequest struct {
	Q   string `json:"q"`
	Num int    `json:"num,omitempty"`
	GL  string `json:"gl,omitempty"`
	HL  string `json:"hl,omitempty"`
	TBS string `json:"tbs,omitempty"`
}

type searchResponse struct {
	Organic []SearchResult `json:"organic"`
}

// Search runs a query and returns the organic results.
func (c *SearchClient) Search(ctx context.Context, query string, opts SearchOptions) ([]SearchResult, error) {
	num := opts.Num
	if num <= 0 {
		num = 10
	}

	req := searchRequest{
		Q:   query,
		Num: num,
		GL:  "us",
		HL:  "en",
		TBS: opts.Recency,
	}

	var resp searchResponse
	err := c.postJSON(ctx, c.baseURL+"/search", map[string]string{
		"X-API-KEY": c.apiKey,
	}, req, &resp)
	if err != nil {
		return nil, err
	}

	if len(resp.Organic) > num {
		resp.Organic = resp.Organic[:num]
	}
	return resp.Organic, nil
}
