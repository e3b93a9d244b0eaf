package ai

// Default models when the environment does not override them.
const (
	DefaultVisionModel = "gpt-4o"
	DefaultTextModel   = "gpt-4o-mini"
)

// ModelConfig holds the ordered candidate model lists per stage. Order is
// the fallback policy: the first candidate that answers wins. Different
// deployments override these through the environment to match their model
// availability and quotas.
type ModelConfig struct {
	Vision   []string
	Cluster  []string
	Persona  []string
	Creative []string
	Fallback []string
}

// BuildModelList deduplicates candidates while preserving order, dropping
// empty entries. Used to merge env overrides with built-in defaults.
func BuildModelList(candidates ...string) []string {
	var deduped []string
	for _, candidate := range candidates {
		if candidate == "" {
			continue
		}
		seen := false
		for _, existing := range deduped {
			if existing == candidate {
				seen = true
				break
			}
		}
		if !seen {
			deduped = append(deduped, candidate)
		}
	}
	return deduped
}

// DefaultModelConfig mirrors the production defaults: the vision model for
// per-image analysis and the cheaper text model as the terminal fallback of
// every text stage.
func DefaultModelConfig() ModelConfig {
	return ModelConfig{
		Vision:   BuildModelList(DefaultVisionModel),
		Cluster:  BuildModelList(DefaultTextModel),
		Persona:  BuildModelList("gpt-5-mini", DefaultTextModel),
		Creative: BuildModelList("gpt-5-mini", DefaultTextModel),
		Fallback: BuildModelList(DefaultTextModel),
	}
}
