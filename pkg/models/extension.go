package models

import (
	"time"

	"github.com/google/uuid"
)

// TenantAppExtension is a dynamically-resolved, tenant-scoped add-on module
// associated with an app definition. Its lifecycle is independent of the
// install row; extensions are looked up when the runtime context is built.
type TenantAppExtension struct {
	ID                uuid.UUID      `json:"id"`
	TenantID          string         `json:"tenant_id"`
	AppDefinitionID   uuid.UUID      `json:"app_definition_id"`
	ExtensionKey      string         `json:"extension_key"`
	ImplementationURL string         `json:"implementation_url"`
	Config            map[string]any `json:"config"`
	IsActive          bool           `json:"is_active"`
	CreatedAt         time.Time      `json:"created_at"`
}
