package models

import (
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/forvalt-io/forvalt-engine/pkg/jsonutil"
)

// AppManifest is the declarative description of an app submitted for
// registration. Manifests are YAML or JSON documents; validation happens in
// the manifest service before anything is persisted.
type AppManifest struct {
	Key             string           `json:"key" yaml:"key"`
	Name            string           `json:"name" yaml:"name"`
	Version         string           `json:"version" yaml:"version"`
	AppType         string           `json:"app_type" yaml:"app_type"`
	Description     string           `json:"description,omitempty" yaml:"description"`
	Routes          []string         `json:"routes,omitempty" yaml:"routes"`
	Modules         []string         `json:"modules,omitempty" yaml:"modules"`
	ExtensionPoints map[string]any   `json:"extension_points,omitempty" yaml:"extension_points"`
	DomainTables    []string         `json:"domain_tables" yaml:"domain_tables"`
	Migrations      []string         `json:"migrations,omitempty" yaml:"migrations"`
	BreakingChanges bool             `json:"breaking_changes,omitempty" yaml:"breaking_changes"`
	Changelog       string           `json:"changelog,omitempty" yaml:"changelog"`
	ManifestURL     string           `json:"manifest_url,omitempty" yaml:"manifest_url"`
	SchemaVersion   int              `json:"schema_version,omitempty" yaml:"schema_version"`
	Actions         []ManifestAction `json:"actions,omitempty" yaml:"actions"`
}

// ManifestAction declares one MCP action exposed by an app. Actions are
// registered as MCP tools when the app is installed for a tenant.
type ManifestAction struct {
	Name        string         `json:"name" yaml:"name"`
	Description string         `json:"description,omitempty" yaml:"description"`
	InputSchema map[string]any `json:"input_schema,omitempty" yaml:"input_schema"`
}

// ValidationResult collects manifest validation problems so callers can show
// all of them at once. It is a value, not an error - a failed validation is an
// expected outcome, not an exceptional one.
type ValidationResult struct {
	OK     bool     `json:"ok"`
	Errors []string `json:"errors"`
}

// manifestStringFields are coerced to strings before strict decoding. YAML
// authors commonly write `version: 1.0` unquoted, which parses as a number.
var manifestStringFields = []string{"key", "name", "version", "app_type", "changelog", "manifest_url"}

// ParseManifest decodes a manifest document. YAML is a superset of JSON, so
// both formats go through the same path.
func ParseManifest(data []byte) (*AppManifest, error) {
	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}

	encoded, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to normalize manifest: %w", err)
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(encoded, &fields); err != nil {
		return nil, fmt.Errorf("failed to normalize manifest: %w", err)
	}

	for _, field := range manifestStringFields {
		raw, ok := fields[field]
		if !ok {
			continue
		}
		quoted, err := json.Marshal(jsonutil.FlexibleStringValue(raw))
		if err != nil {
			return nil, fmt.Errorf("failed to coerce manifest field %q: %w", field, err)
		}
		fields[field] = quoted
	}

	merged, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("failed to normalize manifest: %w", err)
	}

	var manifest AppManifest
	if err := json.Unmarshal(merged, &manifest); err != nil {
		return nil, fmt.Errorf("failed to decode manifest: %w", err)
	}

	return &manifest, nil
}
