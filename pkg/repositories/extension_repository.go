package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/forvalt-io/forvalt-engine/pkg/database"
	"github.com/forvalt-io/forvalt-engine/pkg/models"
)

// ExtensionRepository defines data access for tenant app extensions. Extension
// rows are tenant-scoped and looked up at runtime-context-build time.
type ExtensionRepository interface {
	// ListActive returns all active extensions for a tenant and definition.
	ListActive(ctx context.Context, tenantID string, defID uuid.UUID) ([]*models.TenantAppExtension, error)

	// GetActive returns one active extension by key (nil if absent).
	GetActive(ctx context.Context, tenantID string, defID uuid.UUID, key string) (*models.TenantAppExtension, error)
}

// extensionRepository implements ExtensionRepository using PostgreSQL.
type extensionRepository struct{}

// NewExtensionRepository creates a new extension repository.
func NewExtensionRepository() ExtensionRepository {
	return &extensionRepository{}
}

const extensionColumns = `id, tenant_id, app_definition_id, extension_key, implementation_url, config, is_active, created_at`

// ListActive returns all active extensions for a tenant and definition.
func (r *extensionRepository) ListActive(ctx context.Context, tenantID string, defID uuid.UUID) ([]*models.TenantAppExtension, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no tenant scope in context")
	}

	query := `
		SELECT ` + extensionColumns + `
		FROM tenant_app_extensions
		WHERE tenant_id = $1 AND app_definition_id = $2 AND is_active = true
		ORDER BY extension_key ASC`

	rows, err := scope.Conn.Query(ctx, query, tenantID, defID)
	if err != nil {
		return nil, fmt.Errorf("failed to list extensions: %w", err)
	}
	defer rows.Close()

	var extensions []*models.TenantAppExtension
	for rows.Next() {
		ext, err := scanExtension(rows)
		if err != nil {
			return nil, err
		}
		extensions = append(extensions, ext)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating extensions: %w", err)
	}

	return extensions, nil
}

// GetActive returns one active extension by key (nil if absent).
func (r *extensionRepository) GetActive(ctx context.Context, tenantID string, defID uuid.UUID, key string) (*models.TenantAppExtension, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no tenant scope in context")
	}

	query := `
		SELECT ` + extensionColumns + `
		FROM tenant_app_extensions
		WHERE tenant_id = $1 AND app_definition_id = $2 AND extension_key = $3 AND is_active = true`

	ext, err := scanExtension(scope.Conn.QueryRow(ctx, query, tenantID, defID, key))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get extension: %w", err)
	}

	return ext, nil
}

// scanExtension scans an extension row from either pgx.Row or pgx.Rows.
func scanExtension(row pgx.Row) (*models.TenantAppExtension, error) {
	var ext models.TenantAppExtension
	var configJSON []byte

	err := row.Scan(
		&ext.ID,
		&ext.TenantID,
		&ext.AppDefinitionID,
		&ext.ExtensionKey,
		&ext.ImplementationURL,
		&configJSON,
		&ext.IsActive,
		&ext.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(configJSON, &ext.Config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal extension config: %w", err)
	}

	return &ext, nil
}

// Ensure extensionRepository implements ExtensionRepository at compile time.
var _ ExtensionRepository = (*extensionRepository)(nil)
