package capability

import (
	"context"
	"encoding/json"

	"github.com/stagelinehq/stageline/internal/providers"
	"github.com/stagelinehq/stageline/pkg/schema"
)

// clipper is the slice of the media client the clips capability needs.
type clipper interface {
	ProcessVideo(ctx context.Context, req providers.ClipRequest) ([]providers.Clip, error)
}

// ClipsForge submits a source video to the clipping service and returns the
// derived short-form clips.
type ClipsForge struct {
	media clipper
}

// NewClipsForge creates the clips.forge capability.
func NewClipsForge(media clipper) *ClipsForge {
	return &ClipsForge{media: media}
}

func (c *ClipsForge) Name() string { return "clips.forge" }

func (c *ClipsForge) Spec() Spec {
	return Spec{
		Description: "Cut a source video into short-form clips.",
		InputSchema: json.RawMessage(`{
  "type": "object",
  "properties": {
    "video_url": {"type": "string"},
    "max_clips": {"type": "integer", "default": 3},
    "niche": {"type": "string"}
  },
  "required": ["video_url"]
}`),
		OutputSchema: json.RawMessage(`{
  "type": "object",
  "properties": {
    "clips": {"type": "array"},
    "count": {"type": "integer"}
  }
}`),
	}
}

func (c *ClipsForge) Invoke(ctx context.Context, input Input) (*Output, error) {
	videoURL := lookupString(input, "video_url")
	if videoURL == "" {
		return nil, schema.NewError(schema.ErrCodeInvalidInput, "clips.forge: missing required field 'video_url'")
	}

	clips, err := c.media.ProcessVideo(ctx, providers.ClipRequest{
		VideoURL: videoURL,
		MaxClips: intParam(input.Params, "max_clips", 3),
		Niche:    lookupString(input, "niche"),
	})
	if err != nil {
		return nil, err
	}

	out := make([]map[string]any, 0, len(clips))
	for _, clip := range clips {
		out = append(out, map[string]any{
			"url":              clip.URL,
			"title":            clip.Title,
			"duration_seconds": clip.Duration,
			"virality_score":   clip.Score,
		})
	}

	return &Output{Value: map[string]any{
		"clips": out,
		"count": len(out),
	}}, nil
}

var _ Capability = (*ClipsForge)(nil)
