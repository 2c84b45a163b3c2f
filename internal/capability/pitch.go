package capability

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/stagelinehq/stageline/internal/providers"
	"github.com/stagelinehq/stageline/pkg/schema"
)

// pitchSender is the slice of the mailer client the outreach capability needs.
type pitchSender interface {
	Send(ctx context.Context, email providers.Email) (*providers.SendReceipt, error)
}

const pitchSystemPrompt = `You write sponsor pitch emails for content creators. The emails are
short, specific, and sound like a real person: reference the creator's actual
content, name why the brand fits, and end with a concrete ask for a short
call. You always answer with a single JSON object and nothing else.`

const pitchUserPrompt = `Write a sponsorship pitch email from a %s creator to the brand below.

Brand: %s (%s)
Brand description: %s
%s

Respond with a JSON object with exactly these fields:
{
  "subject": "email subject line",
  "body": "full email body, plain text"
}`

// PitchOutreach drafts a personalized pitch email per sponsor brand via the
// LLM and optionally sends each through the mailer.
type PitchOutreach struct {
	llm    jsonCompleter
	mailer pitchSender
}

// NewPitchOutreach creates the pitch.outreach capability.
func NewPitchOutreach(llm jsonCompleter, mailer pitchSender) *PitchOutreach {
	return &PitchOutreach{llm: llm, mailer: mailer}
}

func (p *PitchOutreach) Name() string { return "pitch.outreach" }

func (p *PitchOutreach) Spec() Spec {
	return Spec{
		Description: "Draft and optionally send sponsor pitch emails.",
		InputSchema: json.RawMessage(`{
  "type": "object",
  "properties": {
    "niche": {"type": "string"},
    "send": {"type": "boolean", "default": false}
  },
  "required": ["niche"]
}`),
		OutputSchema: json.RawMessage(`{
  "type": "object",
  "properties": {
    "pitches": {"type": "array"},
    "sent_count": {"type": "integer"}
  }
}`),
	}
}

func (p *PitchOutreach) Invoke(ctx context.Context, input Input) (*Output, error) {
	niche := lookupString(input, "niche")
	if niche == "" {
		return nil, schema.NewError(schema.ErrCodeInvalidInput, "pitch.outreach: missing required field 'niche'")
	}

	brands := p.brandsFromContext(input)
	if len(brands) == 0 {
		return nil, schema.NewError(schema.ErrCodeInvalidInput,
			"pitch.outreach: no sponsor brands available in context")
	}

	send := boolParam(input.Params, "send", false)
	scriptSample := p.scriptSample(input)

	pitches := make([]map[string]any, 0, len(brands))
	sentCount := 0

	for _, brand := range brands {
		name := stringParam(brand, "name", "")
		email := stringParam(brand, "email", "")

		user := fmt.Sprintf(pitchUserPrompt,
			niche, name, stringParam(brand, "category", ""),
			stringParam(brand, "description", ""), scriptSample)

		draft, err := p.llm.CompleteJSON(ctx, pitchSystemPrompt, user)
		if err != nil {
			return nil, err
		}

		subject := stringParam(draft, "subject", "")
		body := stringParam(draft, "body", "")
		if subject == "" || body == "" {
			return nil, schema.NewErrorf(schema.ErrCodeUpstreamRejected,
				"pitch.outreach: completion for brand %q missing subject or body", name)
		}

		pitch := map[string]any{
			"brand":   name,
			"email":   email,
			"subject": subject,
			"body":    body,
			"sent":    false,
		}

		if send && email != "" {
			receipt, err := p.mailer.Send(ctx, providers.Email{
				To:      email,
				Subject: subject,
				Body:    body,
			})
			if err != nil {
				return nil, err
			}
			pitch["sent"] = true
			pitch["message_id"] = receipt.MessageID
			sentCount++
		}

		pitches = append(pitches, pitch)
	}

	return &Output{Value: map[string]any{
		"pitches":    pitches,
		"sent_count": sentCount,
	}}, nil
}

func (p *PitchOutreach) brandsFromContext(input Input) []map[string]any {
	sponsors, ok := input.Context["sponsors"].(map[string]any)
	if !ok {
		return nil
	}
	raw, ok := sponsors["brands"].([]any)
	if !ok {
		return nil
	}

	brands := make([]map[string]any, 0, len(raw))
	for _, b := range raw {
		if m, ok := b.(map[string]any); ok {
			brands = append(brands, m)
		}
	}
	return brands
}

// scriptSample quotes the opening of an upstream script so the pitch can
// reference real content.
func (p *PitchOutreach) scriptSample(input Input) string {
	script, ok := input.Context["script"].(map[string]any)
	if !ok {
		return ""
	}
	full := stringParam(script, "full_script", "")
	if full == "" {
		return ""
	}
	if len(full) > 150 {
		full = full[:150] + "..."
	}
	return "Creator's latest script opens with: " + strings.TrimSpace(full)
}

var _ Capability = (*PitchOutreach)(nil)
