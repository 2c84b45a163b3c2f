package providers

import (
	"context"
	"strings"
	"time"

	"github.com/stagelinehq/stageline/pkg/schema"
)

// MediaClient talks to a video clipping service: submit a source video,
// poll until the derived short clips are ready.
type MediaClient struct {
	caller
	baseURL      string
	apiKey       string
	pollInterval time.Duration
}

// NewMediaClient creates a clipping service client.
func NewMediaClient(cfg Config, breakers *BreakerRegistry) *MediaClient {
	return &MediaClient{
		caller:       newCaller("media", cfg, breakers),
		baseURL:      strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:       cfg.APIKey,
		pollInterval: 2 * time.Second,
	}
}

// ClipRequest describes a clipping job.
type ClipRequest struct {
	VideoURL string `json:"video_url"`
	MaxClips int    `json:"max_clips,omitempty"`
	Niche    string `json:"niche,omitempty"`
}

// Clip is one derived short-form clip.
type Clip struct {
	URL      string  `json:"url"`
	Title    string  `json:"title,omitempty"`
	Duration float64 `json:"duration_seconds,omitempty"`
	Score    float64 `json:"virality_score,omitempty"`
}

// ClipJob is the state of a submitted clipping job.
type ClipJob struct {
	ID     string `json:"id"`
	Status string `json:"status"` // "queued", "processing", "done", "failed"
	Clips  []Clip `json:"clips,omitempty"`
	Error  string `json:"error,omitempty"`
}

// Submit starts a clipping job for the given source video.
func (c *MediaClient) Submit(ctx context.Context, req ClipRequest) (*ClipJob, error) {
	if req.VideoURL == "" {
		return nil, schema.NewError(schema.ErrCodeInvalidInput, "media: video_url is empty")
	}

	var job ClipJob
	err := c.postJSON(ctx, c.baseURL+"/clips", c.authHeaders(), req, &job)
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// Poll fetches the current state of a clipping job.
func (c *MediaClient) Poll(ctx context.Context, jobID string) (*ClipJob, error) {
	var job ClipJob
	err := c.postJSON(ctx, c.baseURL+"/clips/"+jobID+"/status", c.authHeaders(), map[string]any{}, &job)
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// ProcessVideo submits a job and polls until it completes or the context
// expires. Terminal job failure is an upstream rejection; ctx expiry during
// the wait surfaces as TIMEOUT through the transport classification.
func (c *MediaClient) ProcessVideo(ctx context.Context, req ClipRequest) ([]Clip, error) {
	job, err := c.Submit(ctx, req)
	if err != nil {
		return nil, err
	}

	if job.Status == "done" {
		return job.Clips, nil
	}

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, classifyTransportError("media", ctx.Err())
		case <-ticker.C:
		}

		job, err = c.Poll(ctx, job.ID)
		if err != nil {
			return nil, err
		}

		switch job.Status {
		case "done":
			return job.Clips, nil
		case "failed":
			return nil, schema.NewErrorf(schema.ErrCodeUpstreamRejected,
				"media: clipping job %s failed: %s", job.ID, job.Error).
				WithDetails(map[string]any{"job_id": job.ID})
		}
	}
}

func (c *MediaClient) authHeaders() map[string]string {
	return map[string]string{"Authorization": "Bearer " + c.apiKey}
}
