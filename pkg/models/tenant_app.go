package models

import (
	"time"

	"github.com/google/uuid"
)

// Deployment channels for TenantAppInstall.Channel.
const (
	ChannelStable = "stable"
	ChannelCanary = "canary"
	ChannelPinned = "pinned"
)

// KnownChannels is the set of valid channel values.
var KnownChannels = map[string]bool{
	ChannelStable: true,
	ChannelCanary: true,
	ChannelPinned: true,
}

// Install statuses for TenantAppInstall.InstallStatus.
const (
	InstallStatusActive     = "active"
	InstallStatusInstalling = "installing"
	InstallStatusUpdating   = "updating"
	InstallStatusFailed     = "failed"
	InstallStatusDisabled   = "disabled"
)

// TenantAppInstall is a tenant's installation of an AppDefinition.
// At most one install row exists per (tenant_id, key); uninstall soft-disables
// the row instead of deleting it.
type TenantAppInstall struct {
	ID               uuid.UUID    `json:"id"`
	TenantID         string       `json:"tenant_id"`
	AppDefinitionID  uuid.UUID    `json:"app_definition_id"`
	Key              string       `json:"key"`
	InstalledVersion string       `json:"installed_version"`
	Channel          string       `json:"channel"`
	InstallStatus    string       `json:"install_status"`
	Config           AppConfig    `json:"config"`
	Overrides        AppOverrides `json:"overrides"`
	IsActive         bool         `json:"is_active"`
	InstalledAt      time.Time    `json:"installed_at"`
	LastUpdatedAt    time.Time    `json:"last_updated_at"`
	UpdatedBy        string       `json:"updated_by,omitempty"`
}

// InstalledApp joins a tenant install with its definition metadata for reads.
type InstalledApp struct {
	Install    TenantAppInstall `json:"install"`
	Definition AppDefinition    `json:"definition"`
}

// AppOverrides holds tenant customizations to forms, score models, UI layouts
// and workflows. The per-domain schema objects are opaque to the engine - they
// are tenant-owned state, stored and returned as-is, never merged.
type AppOverrides struct {
	Forms       []map[string]any `json:"forms,omitempty"`
	ScoreModels []map[string]any `json:"score_models,omitempty"`
	UILayouts   []map[string]any `json:"ui_layouts,omitempty"`
	Workflows   []map[string]any `json:"workflows,omitempty"`
}

// AppContext is the effective runtime state for one tenant app instance:
// definition, install row, merged config, overrides and active extensions.
type AppContext struct {
	Definition AppDefinition        `json:"definition"`
	Install    TenantAppInstall     `json:"install"`
	Config     AppConfig            `json:"config"`
	Overrides  AppOverrides         `json:"overrides"`
	Extensions []TenantAppExtension `json:"extensions"`
}
