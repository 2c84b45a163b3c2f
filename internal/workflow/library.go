package workflow

import (
	"encoding/json"
	"sort"
	"sync"

	"github.com/stagelinehq/stageline/pkg/schema"
)

// Library holds the compiled workflow definitions, keyed by name.
// Populated once at startup and read-only afterwards.
type Library struct {
	mu   sync.RWMutex
	defs map[string]*Definition
}

// NewLibrary creates an empty Library.
func NewLibrary() *Library {
	return &Library{defs: make(map[string]*Definition)}
}

// Add registers a compiled definition. Returns an error on duplicate name.
func (l *Library) Add(def *Definition) error {
	if def == nil {
		return schema.NewError(schema.ErrCodeInvalidInput, "definition is nil")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.defs[def.Name()]; exists {
		return schema.NewErrorf(schema.ErrCodeInvalidInput, "workflow %q already registered", def.Name())
	}
	l.defs[def.Name()] = def
	return nil
}

// Get retrieves a definition by name.
func (l *Library) Get(name string) (*Definition, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	def, ok := l.defs[name]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "workflow %q not found", name)
	}
	return def, nil
}

// List returns all definitions sorted by name.
func (l *Library) List() []*Definition {
	l.mu.RLock()
	defer l.mu.RUnlock()

	defs := make([]*Definition, 0, len(l.defs))
	for _, d := range l.defs {
		defs = append(defs, d)
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name() < defs[j].Name() })
	return defs
}

// Count returns the number of registered workflows.
func (l *Library) Count() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.defs)
}

// LoadBuiltins compiles every built-in workflow and adds it to the library.
// A built-in that fails to compile is a fatal startup error.
func LoadBuiltins(b *Builder, lib *Library) error {
	for _, raw := range Builtins() {
		def, err := b.Build(raw)
		if err != nil {
			return err
		}
		if err := lib.Add(def); err != nil {
			return err
		}
	}
	return nil
}

// Builtins returns the raw definitions of the shipped workflows.
func Builtins() []*schema.WorkflowDefinition {
	return []*schema.WorkflowDefinition{
		contentPipeline(),
		scriptOnly(),
		videoPhase(),
		sponsorOutreach(),
		analyticsReport(),
	}
}

// contentPipeline is the full creator pipeline: discover trends, write the
// script, hunt sponsors, draft (and optionally send) pitches. Sponsors run
// after the script so a pitch can quote it.
func contentPipeline() *schema.WorkflowDefinition {
	return &schema.WorkflowDefinition{
		Name:        "content-pipeline",
		Description: "Trend discovery, script generation, sponsor matching, and pitch outreach for a creator niche.",
		Inputs: []schema.InputField{
			{Name: "niche", Required: true, Description: "creator niche, e.g. fitness memes"},
			{Name: "vibe", Default: "entertaining", Description: "tone of the generated script"},
			{Name: "send", Default: false, Description: "send pitch emails instead of drafting only"},
		},
		Stages: []schema.StageDescriptor{
			{
				Name:       "trends",
				Capability: "trends.scout",
				Output:     "trends",
				Params:     json.RawMessage(`{"niche": "${{ inputs.niche }}", "limit": 5}`),
				Timeout:    "30s",
			},
			{
				Name:       "script",
				Capability: "script.forge",
				Needs:      []string{"trends"},
				Output:     "script",
				Params:     json.RawMessage(`{"niche": "${{ inputs.niche }}", "vibe": "${{ inputs.vibe }}"}`),
				Timeout:    "60s",
			},
			{
				Name:       "sponsors",
				Capability: "sponsors.hunt",
				Needs:      []string{"script"},
				Output:     "sponsors",
				Params:     json.RawMessage(`{"niche": "${{ inputs.niche }}", "count": 3}`),
				Timeout:    "45s",
			},
			{
				Name:       "pitch",
				Capability: "pitch.outreach",
				Needs:      []string{"sponsors", "script"},
				Output:     "pitches",
				Params:     json.RawMessage(`{"niche": "${{ inputs.niche }}", "send": "${{ inputs.send }}"}`),
				Timeout:    "90s",
			},
		},
		Merge: []schema.MergeRule{
			{Field: "script", From: "script", Attach: map[string]string{"sponsors": "sponsors", "pitches": "pitches"}, Required: true},
			{Field: "trends", From: "trends"},
			{Field: "pitch_count", Compute: "pitches != nil ? len(pitches.pitches) : 0"},
		},
		Timeout: "5m",
	}
}

// scriptOnly is the phase-1 entry point: trends plus a script, no outreach.
// An explicit topic input bypasses the selected trend.
func scriptOnly() *schema.WorkflowDefinition {
	return &schema.WorkflowDefinition{
		Name:        "script-only",
		Description: "Trend discovery and script generation without sponsor outreach.",
		Inputs: []schema.InputField{
			{Name: "niche", Required: true},
			{Name: "topic", Default: "", Description: "explicit topic; overrides the selected trend"},
			{Name: "vibe", Default: "entertaining"},
		},
		Stages: []schema.StageDescriptor{
			{
				Name:       "trends",
				Capability: "trends.scout",
				Output:     "trends",
				Params:     json.RawMessage(`{"niche": "${{ inputs.niche }}", "limit": 5}`),
				Timeout:    "30s",
			},
			{
				Name:       "script",
				Capability: "script.forge",
				Needs:      []string{"trends"},
				Output:     "script",
				Params:     json.RawMessage(`{"niche": "${{ inputs.niche }}", "topic": "${{ inputs.topic }}", "vibe": "${{ inputs.vibe }}"}`),
				Timeout:    "60s",
			},
		},
		Merge: []schema.MergeRule{
			{Field: "script", From: "script", Required: true},
			{Field: "trends", From: "trends"},
		},
		Timeout: "3m",
	}
}

// videoPhase processes an uploaded video into shorts, with an optional
// analytics snapshot when a handle is provided.
func videoPhase() *schema.WorkflowDefinition {
	return &schema.WorkflowDefinition{
		Name:        "video-phase",
		Description: "Clip an uploaded video into shorts and snapshot account analytics.",
		Inputs: []schema.InputField{
			{Name: "video_url", Required: true},
			{Name: "niche", Default: ""},
			{Name: "max_clips", Default: 3},
			{Name: "handle", Description: "account handle for the analytics snapshot"},
			{Name: "platform", Default: "twitter"},
		},
		Stages: []schema.StageDescriptor{
			{
				Name:       "clips",
				Capability: "clips.forge",
				Output:     "clips",
				Params:     json.RawMessage(`{"video_url": "${{ inputs.video_url }}", "max_clips": "${{ inputs.max_clips }}", "niche": "${{ inputs.niche }}"}`),
				Timeout:    "4m",
			},
			{
				Name:       "analytics",
				Capability: "analytics.pulse",
				Output:     "analytics",
				Condition:  `"handle" in inputs`,
				Params:     json.RawMessage(`{"handle": "${{ inputs.handle }}", "platform": "${{ inputs.platform }}"}`),
				Timeout:    "30s",
			},
		},
		Merge: []schema.MergeRule{
			{Field: "clips", From: "clips", Required: true},
			{Field: "analytics", From: "analytics"},
			{Field: "clip_count", Compute: "clips != nil ? clips.count : 0"},
		},
		Timeout: "6m",
	}
}

// sponsorOutreach runs sponsor matching and pitch outreach standalone.
func sponsorOutreach() *schema.WorkflowDefinition {
	return &schema.WorkflowDefinition{
		Name:        "sponsor-outreach",
		Description: "Sponsor matching and pitch outreach for a creator niche.",
		Inputs: []schema.InputField{
			{Name: "niche", Required: true},
			{Name: "count", Default: 3},
			{Name: "send", Default: false},
		},
		Stages: []schema.StageDescriptor{
			{
				Name:       "sponsors",
				Capability: "sponsors.hunt",
				Output:     "sponsors",
				Params:     json.RawMessage(`{"niche": "${{ inputs.niche }}", "count": "${{ inputs.count }}"}`),
				Timeout:    "45s",
			},
			{
				Name:       "pitch",
				Capability: "pitch.outreach",
				Needs:      []string{"sponsors"},
				Output:     "pitches",
				Params:     json.RawMessage(`{"niche": "${{ inputs.niche }}", "send": "${{ inputs.send }}"}`),
				Timeout:    "90s",
			},
		},
		Merge: []schema.MergeRule{
			{Field: "sponsors", From: "sponsors", Attach: map[string]string{"pitches": "pitches"}, Required: true},
			{Field: "sent_count", Compute: "pitches != nil ? pitches.sent_count : 0"},
		},
		Timeout: "3m",
	}
}

// analyticsReport snapshots account metrics; the default config schedules it
// daily.
func analyticsReport() *schema.WorkflowDefinition {
	return &schema.WorkflowDefinition{
		Name:        "analytics-report",
		Description: "Account metrics snapshot for a platform handle.",
		Inputs: []schema.InputField{
			{Name: "handle", Required: true},
			{Name: "platform", Default: "twitter"},
			{Name: "post_id", Default: "", Description: "include metrics for one post"},
		},
		Stages: []schema.StageDescriptor{
			{
				Name:       "analytics",
				Capability: "analytics.pulse",
				Output:     "analytics",
				Params:     json.RawMessage(`{"handle": "${{ inputs.handle }}", "platform": "${{ inputs.platform }}", "post_id": "${{ inputs.post_id }}"}`),
				Timeout:    "30s",
			},
		},
		Merge: []schema.MergeRule{
			{Field: "analytics", From: "analytics", Required: true},
			{Field: "engagement_rate", Expr: ".analytics.account.engagement_rate"},
		},
		Timeout: "1m",
	}
}
