package models

// AppConfig is the structured merge target for tenant app configuration.
// Each named sub-object is shallow-merged independently; see MergeConfig.
type AppConfig struct {
	Branding     map[string]any `json:"branding,omitempty"`
	Features     map[string]any `json:"features,omitempty"`
	UIOverrides  map[string]any `json:"ui_overrides,omitempty"`
	Integrations map[string]any `json:"integrations,omitempty"`
	Limits       map[string]any `json:"limits,omitempty"`
}

// MergeConfig computes the effective config from defaults and overrides.
// Each of the five named sub-objects is shallow-merged on its own: override
// values win key-by-key, keys present only in defaults survive, and a
// sub-object absent from overrides falls back entirely to the defaults.
// The inputs are not mutated.
func MergeConfig(defaults, overrides AppConfig) AppConfig {
	return AppConfig{
		Branding:     mergeSection(defaults.Branding, overrides.Branding),
		Features:     mergeSection(defaults.Features, overrides.Features),
		UIOverrides:  mergeSection(defaults.UIOverrides, overrides.UIOverrides),
		Integrations: mergeSection(defaults.Integrations, overrides.Integrations),
		Limits:       mergeSection(defaults.Limits, overrides.Limits),
	}
}

// mergeSection shallow-merges one named sub-object.
func mergeSection(defaults, overrides map[string]any) map[string]any {
	if overrides == nil {
		if defaults == nil {
			return nil
		}
		out := make(map[string]any, len(defaults))
		for k, v := range defaults {
			out[k] = v
		}
		return out
	}

	out := make(map[string]any, len(defaults)+len(overrides))
	for k, v := range defaults {
		out[k] = v
	}
	for k, v := range overrides {
		out[k] = v
	}
	return out
}

// IsFeatureEnabled reports whether the named feature flag is strictly boolean
// true. Truthy strings and numbers do not count as enabled.
func IsFeatureEnabled(cfg AppConfig, key string) bool {
	v, ok := cfg.Features[key]
	if !ok {
		return false
	}
	b, isBool := v.(bool)
	return isBool && b
}

// GetFeatureValue returns the stored feature value when it is defined,
// including false and zero, and the fallback otherwise.
func GetFeatureValue(cfg AppConfig, key string, fallback any) any {
	if v, ok := cfg.Features[key]; ok {
		return v
	}
	return fallback
}
