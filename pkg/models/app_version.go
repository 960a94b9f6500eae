package models

import (
	"time"

	"github.com/google/uuid"
)

// AppVersion is one published release of an AppDefinition.
// Versions are unique by (app_definition_id, version); the latest version is
// the one with the newest released_at.
type AppVersion struct {
	ID              uuid.UUID  `json:"id"`
	AppDefinitionID uuid.UUID  `json:"app_definition_id"`
	Version         string     `json:"version"`
	ManifestURL     string     `json:"manifest_url,omitempty"`
	Changelog       string     `json:"changelog,omitempty"`
	Migrations      []string   `json:"migrations"`
	DomainTables    []string   `json:"domain_tables"`
	BreakingChanges bool       `json:"breaking_changes"`
	ReleasedAt      time.Time  `json:"released_at"`
	DeprecatedAt    *time.Time `json:"deprecated_at,omitempty"`
	EndOfLifeAt     *time.Time `json:"end_of_life_at,omitempty"`
}

// VersionManifest carries the publish-time metadata for a new AppVersion.
type VersionManifest struct {
	Changelog       string   `json:"changelog,omitempty"`
	Migrations      []string `json:"migrations,omitempty"`
	DomainTables    []string `json:"domain_tables,omitempty"`
	BreakingChanges bool     `json:"breaking_changes,omitempty"`
	ManifestURL     string   `json:"manifest_url,omitempty"`
}
