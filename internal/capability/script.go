package capability

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/stagelinehq/stageline/pkg/schema"
)

// jsonCompleter is the slice of the LLM client the generation capabilities need.
type jsonCompleter interface {
	CompleteJSON(ctx context.Context, system, user string) (map[string]any, error)
}

const scriptSystemPrompt = `You are a short-form content scriptwriter. You write punchy,
authentic scripts for creators: hook in the first line, camera directions in
[brackets], a clear payoff, and a call to action. You always answer with a
single JSON object and nothing else.`

const scriptUserPrompt = `Write a short-form video script for a %s creator with a %s vibe.

Topic: %s
%s

Respond with a JSON object with exactly these fields:
{
  "title": "video title",
  "hook": "attention-grabbing first line",
  "full_script": "complete script as one paragraph, including [camera directions]",
  "caption": "social media caption, 100-150 characters",
  "hashtags": ["10 relevant hashtags without the # sign"],
  "thumbnail_prompt": "detailed prompt for AI thumbnail generation"
}`

// ScriptForge turns the selected trend into a platform-ready script via the
// LLM: title, hook, full script, caption, hashtags, and a thumbnail prompt.
type ScriptForge struct {
	llm jsonCompleter
}

// NewScriptForge creates the script.forge capability.
func NewScriptForge(llm jsonCompleter) *ScriptForge {
	return &ScriptForge{llm: llm}
}

func (s *ScriptForge) Name() string { return "script.forge" }

func (s *ScriptForge) Spec() Spec {
	return Spec{
		Description: "Generate a short-form video script from a trending topic.",
		InputSchema: json.RawMessage(`{
  "type": "object",
  "properties": {
    "niche": {"type": "string"},
    "vibe": {"type": "string", "default": "casual"},
    "topic": {"type": "string"}
  },
  "required": ["niche"]
}`),
		OutputSchema: json.RawMessage(`{
  "type": "object",
  "properties": {
    "title": {"type": "string"},
    "hook": {"type": "string"},
    "full_script": {"type": "string"},
    "caption": {"type": "string"},
    "hashtags": {"type": "array", "items": {"type": "string"}},
    "thumbnail_prompt": {"type": "string"}
  }
}`),
	}
}

func (s *ScriptForge) Invoke(ctx context.Context, input Input) (*Output, error) {
	niche := lookupString(input, "niche")
	if niche == "" {
		return nil, schema.NewError(schema.ErrCodeInvalidInput, "script.forge: missing required field 'niche'")
	}
	vibe := lookupString(input, "vibe")
	if vibe == "" {
		vibe = "casual"
	}

	topic, trendContext := s.resolveTopic(input)
	if topic == "" {
		return nil, schema.NewError(schema.ErrCodeInvalidInput,
			"script.forge: no topic given and no trends available in context")
	}

	user := fmt.Sprintf(scriptUserPrompt, niche, vibe, topic, trendContext)

	script, err := s.llm.CompleteJSON(ctx, scriptSystemPrompt, user)
	if err != nil {
		return nil, err
	}

	for _, field := range []string{"hook", "full_script", "caption"} {
		if v, ok := script[field].(string); !ok || strings.TrimSpace(v) == "" {
			return nil, schema.NewErrorf(schema.ErrCodeUpstreamRejected,
				"script.forge: completion missing required field %q", field)
		}
	}

	script["topic"] = topic
	script["niche"] = niche
	return &Output{Value: script}, nil
}

// resolveTopic picks an explicit topic param when given, otherwise the
// selected trend from an upstream trends stage.
func (s *ScriptForge) resolveTopic(input Input) (topic, trendContext string) {
	if t := stringParam(input.Params, "topic", ""); t != "" {
		return t, ""
	}

	trends, ok := input.Context["trends"].(map[string]any)
	if !ok {
		return "", ""
	}

	selected, ok := trends["selected"].(map[string]any)
	if !ok {
		return "", ""
	}

	topic = stringParam(selected, "title", "")
	if snippet := stringParam(selected, "snippet", ""); snippet != "" {
		trendContext = "Trend context: " + snippet
	}
	return topic, trendContext
}

var _ Capability = (*ScriptForge)(nil)
