package capability

import (
	"context"
	"encoding/json"

	"github.com/stagelinehq/stageline/internal/providers"
	"github.com/stagelinehq/stageline/pkg/schema"
)

// metricsFetcher is the slice of the analytics client the pulse capability needs.
type metricsFetcher interface {
	AccountSnapshot(ctx context.Context, platform, handle string) (*providers.AccountMetrics, error)
	PostSnapshot(ctx context.Context, platform, postID string) (*providers.PostMetrics, error)
}

// AnalyticsPulse snapshots a creator account's platform metrics, optionally
// including the performance of a single post.
type AnalyticsPulse struct {
	analytics metricsFetcher
}

// NewAnalyticsPulse creates the analytics.pulse capability.
func NewAnalyticsPulse(analytics metricsFetcher) *AnalyticsPulse {
	return &AnalyticsPulse{analytics: analytics}
}

func (a *AnalyticsPulse) Name() string { return "analytics.pulse" }

func (a *AnalyticsPulse) Spec() Spec {
	return Spec{
		Description: "Snapshot platform metrics for a creator account.",
		InputSchema: json.RawMessage(`{
  "type": "object",
  "properties": {
    "platform": {"type": "string", "default": "twitter"},
    "handle": {"type": "string"},
    "post_id": {"type": "string"}
  },
  "required": ["handle"]
}`),
		OutputSchema: json.RawMessage(`{
  "type": "object",
  "properties": {
    "account": {"type": "object"},
    "post": {"type": "object"}
  }
}`),
	}
}

func (a *AnalyticsPulse) Invoke(ctx context.Context, input Input) (*Output, error) {
	handle := lookupString(input, "handle")
	if handle == "" {
		return nil, schema.NewError(schema.ErrCodeInvalidInput, "analytics.pulse: missing required field 'handle'")
	}
	platform := lookupString(input, "platform")
	if platform == "" {
		platform = "twitter"
	}

	account, err := a.analytics.AccountSnapshot(ctx, platform, handle)
	if err != nil {
		return nil, err
	}

	value := map[string]any{
		"account": map[string]any{
			"platform":        account.Platform,
			"followers":       account.Followers,
			"following":       account.Following,
			"posts":           account.Posts,
			"engagement_rate": account.EngagementRate,
		},
	}

	if postID := lookupString(input, "post_id"); postID != "" {
		post, err := a.analytics.PostSnapshot(ctx, platform, postID)
		if err != nil {
			return nil, err
		}
		value["post"] = map[string]any{
			"likes":       post.Likes,
			"shares":      post.Shares,
			"replies":     post.Replies,
			"impressions": post.Impressions,
		}
	}

	return &Output{Value: value}, nil
}

var _ Capability = (*AnalyticsPulse)(nil)
