package capability

import (
	"context"
	"testing"

	"github.com/stagelinehq/stageline/internal/providers"
	"github.com/stagelinehq/stageline/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSender struct {
	sent []providers.Email
	err  error
}

func (f *fakeSender) Send(ctx context.Context, email providers.Email) (*providers.SendReceipt, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.sent = append(f.sent, email)
	return &providers.SendReceipt{MessageID: "msg-1", To: email.To}, nil
}

func sponsorsContext() map[string]any {
	return map[string]any{
		"sponsors": map[string]any{
			"brands": []any{
				map[string]any{
					"name":        "GymBrand",
					"email":       "sponsor@gymbrand.com",
					"category":    "Fitness",
					"description": "fitness gear brand",
				},
				map[string]any{
					"name":        "ShakeCo",
					"email":       "partnerships@shakeco.com",
					"category":    "Food",
					"description": "protein shakes",
				},
			},
		},
	}
}

func TestPitchOutreach_DraftsPerBrand(t *testing.T) {
	llm := &fakeCompleter{response: map[string]any{
		"subject": "Partnership opportunity",
		"body":    "Hey team, let's work together.",
	}}
	mailer := &fakeSender{}
	outreach := NewPitchOutreach(llm, mailer)

	out, err := outreach.Invoke(context.Background(), Input{
		Params:  map[string]any{"niche": "fitness"},
		Context: sponsorsContext(),
	})
	require.NoError(t, err)

	value := out.Value.(map[string]any)
	pitches := value["pitches"].([]map[string]any)
	require.Len(t, pitches, 2)
	assert.Equal(t, "GymBrand", pitches[0]["brand"])
	assert.Equal(t, false, pitches[0]["sent"])
	assert.Equal(t, 0, value["sent_count"])
	assert.Empty(t, mailer.sent, "drafts only unless send=true")
}

func TestPitchOutreach_SendsWhenRequested(t *testing.T) {
	llm := &fakeCompleter{response: map[string]any{
		"subject": "Partnership opportunity",
		"body":    "Hey team, let's work together.",
	}}
	mailer := &fakeSender{}
	outreach := NewPitchOutreach(llm, mailer)

	out, err := outreach.Invoke(context.Background(), Input{
		Params:  map[string]any{"niche": "fitness", "send": true},
		Context: sponsorsContext(),
	})
	require.NoError(t, err)

	value := out.Value.(map[string]any)
	assert.Equal(t, 2, value["sent_count"])
	require.Len(t, mailer.sent, 2)
	assert.Equal(t, "sponsor@gymbrand.com", mailer.sent[0].To)

	pitches := value["pitches"].([]map[string]any)
	assert.Equal(t, true, pitches[0]["sent"])
	assert.Equal(t, "msg-1", pitches[0]["message_id"])
}

func TestPitchOutreach_QuotesScriptSample(t *testing.T) {
	llm := &fakeCompleter{response: map[string]any{"subject": "s", "body": "b"}}
	outreach := NewPitchOutreach(llm, &fakeSender{})

	ctxMap := sponsorsContext()
	ctxMap["script"] = map[string]any{"full_script": "Wait, I spent $500 on THIS?!"}

	_, err := outreach.Invoke(context.Background(), Input{
		Params:  map[string]any{"niche": "tech"},
		Context: ctxMap,
	})
	require.NoError(t, err)
	assert.Contains(t, llm.prompts[0], "Wait, I spent $500 on THIS?!")
}

func TestPitchOutreach_NoSponsorsInContext(t *testing.T) {
	outreach := NewPitchOutreach(&fakeCompleter{}, &fakeSender{})

	_, err := outreach.Invoke(context.Background(), Input{
		Params: map[string]any{"niche": "fitness"},
	})
	require.Error(t, err)

	var serr *schema.Error
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, schema.ErrCodeInvalidInput, serr.Code)
}

func TestPitchOutreach_MailerErrorPropagates(t *testing.T) {
	llm := &fakeCompleter{response: map[string]any{"subject": "s", "body": "b"}}
	outreach := NewPitchOutreach(llm, &fakeSender{
		err: schema.NewError(schema.ErrCodeUpstreamUnavailable, "mailer down"),
	})

	_, err := outreach.Invoke(context.Background(), Input{
		Params:  map[string]any{"niche": "fitness", "send": true},
		Context: sponsorsContext(),
	})
	require.Error(t, err)

	var serr *schema.Error
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, schema.ErrCodeUpstreamUnavailable, serr.Code)
}

func TestPitchOutreach_IncompleteDraft(t *testing.T) {
	llm := &fakeCompleter{response: map[string]any{"subject": "only subject"}}
	outreach := NewPitchOutreach(llm, &fakeSender{})

	_, err := outreach.Invoke(context.Background(), Input{
		Params:  map[string]any{"niche": "fitness"},
		Context: sponsorsContext(),
	})
	require.Error(t, err)

	var serr *schema.Error
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, schema.ErrCodeUpstreamRejected, serr.Code)
}
