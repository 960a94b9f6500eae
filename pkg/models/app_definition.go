package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// App types for AppDefinition.AppType.
const (
	AppTypeCore   = "core"
	AppTypeAddon  = "addon"
	AppTypeCustom = "custom"
)

// KnownAppTypes is the set of valid app type values.
var KnownAppTypes = map[string]bool{
	AppTypeCore:   true,
	AppTypeAddon:  true,
	AppTypeCustom: true,
}

// AppDefinition is a platform-level catalog entry for an installable app.
// Definitions are owned by the platform, not tenant-scoped, and are never
// physically deleted - deactivation flips IsActive.
type AppDefinition struct {
	ID              uuid.UUID      `json:"id"`
	Key             string         `json:"key"`
	Name            string         `json:"name"`
	AppType         string         `json:"app_type"`
	Description     string         `json:"description,omitempty"`
	Routes          []string       `json:"routes"`
	Modules         []string       `json:"modules"`
	ExtensionPoints map[string]any `json:"extension_points"`
	DomainTables    []string       `json:"domain_tables"`
	SchemaVersion   int            `json:"schema_version"`
	IsActive        bool           `json:"is_active"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

// DefaultConfig extracts the app's default configuration from the
// "default_config" extension point. Missing or malformed defaults yield an
// empty config rather than an error - a definition without defaults is valid.
func (d *AppDefinition) DefaultConfig() AppConfig {
	raw, ok := d.ExtensionPoints["default_config"]
	if !ok {
		return AppConfig{}
	}

	data, err := json.Marshal(raw)
	if err != nil {
		return AppConfig{}
	}

	var cfg AppConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return AppConfig{}
	}
	return cfg
}

// DeclaredActions extracts MCP action declarations from the "mcp_actions"
// extension point. Returns nil when the definition declares none.
func (d *AppDefinition) DeclaredActions() []ManifestAction {
	raw, ok := d.ExtensionPoints["mcp_actions"]
	if !ok {
		return nil
	}

	data, err := json.Marshal(raw)
	if err != nil {
		return nil
	}

	var actions []ManifestAction
	if err := json.Unmarshal(data, &actions); err != nil {
		return nil
	}
	return actions
}
