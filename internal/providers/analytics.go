package providers

import (
	"context"
	"strings"

	"github.com/stagelinehq/stageline/pkg/schema"
)

// AnalyticsClient talks to a social platform metrics API.
type AnalyticsClient struct {
	caller
	baseURL string
	apiKey  string
}

// NewAnalyticsClient creates a platform metrics client.
func NewAnalyticsClient(cfg Config, breakers *BreakerRegistry) *AnalyticsClient {
	return &AnalyticsClient{
		caller:  newCaller("analytics", cfg, breakers),
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
	}
}

// AccountMetrics is a point-in-time snapshot of a creator account.
type AccountMetrics struct {
	Platform       string  `json:"platform"`
	Followers      int64   `json:"followers"`
	Following      int64   `json:"following"`
	Posts          int64   `json:"posts"`
	EngagementRate float64 `json:"engagement_rate"`
}

// PostMetrics is the performance of a single post.
type PostMetrics struct {
	Likes       int64 `json:"likes"`
	Shares      int64 `json:"shares"`
	Replies     int64 `json:"replies"`
	Impressions int64 `json:"impressions"`
}

type metricsRequest struct {
	Platform string `json:"platform"`
	Handle   string `json:"handle"`
}

// AccountSnapshot fetches the current account metrics for a handle.
func (c *AnalyticsClient) AccountSnapshot(ctx context.Context, platform, handle string) (*AccountMetrics, error) {
	if handle == "" {
		return nil, schema.NewError(schema.ErrCodeInvalidInput, "analytics: handle is empty")
	}

	var out AccountMetrics
	err := c.postJSON(ctx, c.baseURL+"/metrics/account", map[string]string{
		"Authorization": "Bearer " + c.apiKey,
	}, metricsRequest{Platform: platform, Handle: handle}, &out)
	if err != nil {
		return nil, err
	}
	if out.Platform == "" {
		out.Platform = platform
	}
	return &out, nil
}

// PostSnapshot fetches the performance of a single post.
func (c *AnalyticsClient) PostSnapshot(ctx context.Context, platform, postID string) (*PostMetrics, error) {
	if postID == "" {
		return nil, schema.NewError(schema.ErrCodeInvalidInput, "analytics: post id is empty")
	}

	var out PostMetrics
	err := c.postJSON(ctx, c.baseURL+"/metrics/post", map[string]string{
		"Authorization": "Bearer " + c.apiKey,
	}, map[string]string{"platform": platform, "post_id": postID}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}
