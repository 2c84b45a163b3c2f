package capability

import "github.com/stagelinehq/stageline/internal/providers"

// BuiltinDeps holds the provider clients behind the stock capabilities.
type BuiltinDeps struct {
	Search    *providers.SearchClient
	LLM       *providers.LLMClient
	Mailer    *providers.MailerClient
	Media     *providers.MediaClient
	Analytics *providers.AnalyticsClient
}

// RegisterBuiltins wires the stock capabilities into the registry.
func RegisterBuiltins(r *Registry, deps BuiltinDeps) error {
	builtins := []Capability{
		NewTrendsScout(deps.Search),
		NewScriptForge(deps.LLM),
		NewSponsorsHunt(deps.Search),
		NewPitchOutreach(deps.LLM, deps.Mailer),
		NewClipsForge(deps.Media),
		NewAnalyticsPulse(deps.Analytics),
	}

	for _, c := range builtins {
		if err := r.Register(c); err != nil {
			return err
		}
	}
	return nil
}
