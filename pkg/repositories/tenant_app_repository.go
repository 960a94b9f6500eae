package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/forvalt-io/forvalt-engine/pkg/apperrors"
	"github.com/forvalt-io/forvalt-engine/pkg/database"
	"github.com/forvalt-io/forvalt-engine/pkg/models"
)

// TenantAppRepository defines data access for tenant app installs. All methods
// run on the tenant-scoped connection from context; RLS keeps each tenant
// inside its own rows.
type TenantAppRepository interface {
	// List returns active installs joined with definition metadata,
	// ordered by key.
	List(ctx context.Context, tenantID string) ([]*models.InstalledApp, error)

	// Get returns the install row for an app key (nil if no row exists).
	Get(ctx context.Context, tenantID, key string) (*models.TenantAppInstall, error)

	// GetWithDefinition returns the install joined with its definition
	// (nil if no row exists).
	GetWithDefinition(ctx context.Context, tenantID, key string) (*models.InstalledApp, error)

	// ListActive returns all active installs for the tenant, used by the
	// compatibility checker to test cross-app incompatibilities.
	ListActive(ctx context.Context, tenantID string) ([]*models.TenantAppInstall, error)

	// Insert creates a new install row. A disabled row left behind by a
	// previous uninstall is reactivated in place, keeping its ID.
	// Returns apperrors.ErrAlreadyInstalled when an active install exists.
	Insert(ctx context.Context, install *models.TenantAppInstall) error

	// UpdateVersion mutates installed_version and install_status, stamping
	// last_updated_at and updated_by.
	UpdateVersion(ctx context.Context, tenantID, key, version, status, updatedBy string) error

	// UpdateConfig replaces the stored config.
	UpdateConfig(ctx context.Context, tenantID, key string, config models.AppConfig) error

	// UpdateOverrides replaces the stored overrides.
	UpdateOverrides(ctx context.Context, tenantID, key string, overrides models.AppOverrides) error

	// UpdateChannel changes the deployment channel.
	UpdateChannel(ctx context.Context, tenantID, key, channel string) error

	// Disable soft-uninstalls: is_active=false, install_status=disabled.
	Disable(ctx context.Context, tenantID, key string) error
}

// tenantAppRepository implements TenantAppRepository using PostgreSQL.
type tenantAppRepository struct{}

// NewTenantAppRepository creates a new tenant app repository.
func NewTenantAppRepository() TenantAppRepository {
	return &tenantAppRepository{}
}

const installColumns = `id, tenant_id, app_definition_id, key, installed_version, channel, install_status, config, overrides, is_active, installed_at, last_updated_at, updated_by`

// List returns active installs joined with definition metadata, ordered by key.
func (r *tenantAppRepository) List(ctx context.Context, tenantID string) ([]*models.InstalledApp, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no tenant scope in context")
	}

	query := `
		SELECT a.id, a.tenant_id, a.app_definition_id, a.key, a.installed_version, a.channel, a.install_status, a.config, a.overrides, a.is_active, a.installed_at, a.last_updated_at, a.updated_by,
		       d.id, d.key, d.name, d.app_type, d.description, d.routes, d.modules, d.extension_points, d.domain_tables, d.schema_version, d.is_active, d.created_at, d.updated_at
		FROM applications a
		JOIN app_definitions d ON d.id = a.app_definition_id
		WHERE a.tenant_id = $1 AND a.is_active = true
		ORDER BY a.key ASC`

	rows, err := scope.Conn.Query(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list installed apps: %w", err)
	}
	defer rows.Close()

	var apps []*models.InstalledApp
	for rows.Next() {
		app, err := scanInstalledApp(rows)
		if err != nil {
			return nil, err
		}
		apps = append(apps, app)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating installed apps: %w", err)
	}

	return apps, nil
}

// Get returns the install row for an app key (nil if no row exists).
func (r *tenantAppRepository) Get(ctx context.Context, tenantID, key string) (*models.TenantAppInstall, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no tenant scope in context")
	}

	query := `SELECT ` + installColumns + ` FROM applications WHERE tenant_id = $1 AND key = $2`

	install, err := scanInstall(scope.Conn.QueryRow(ctx, query, tenantID, key))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get installed app: %w", err)
	}

	return install, nil
}

// GetWithDefinition returns the install joined with its definition.
func (r *tenantAppRepository) GetWithDefinition(ctx context.Context, tenantID, key string) (*models.InstalledApp, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no tenant scope in context")
	}

	query := `
		SELECT a.id, a.tenant_id, a.app_definition_id, a.key, a.installed_version, a.channel, a.install_status, a.config, a.overrides, a.is_active, a.installed_at, a.last_updated_at, a.updated_by,
		       d.id, d.key, d.name, d.app_type, d.description, d.routes, d.modules, d.extension_points, d.domain_tables, d.schema_version, d.is_active, d.created_at, d.updated_at
		FROM applications a
		JOIN app_definitions d ON d.id = a.app_definition_id
		WHERE a.tenant_id = $1 AND a.key = $2`

	app, err := scanInstalledApp(scope.Conn.QueryRow(ctx, query, tenantID, key))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get installed app: %w", err)
	}

	return app, nil
}

// ListActive returns all active installs for the tenant.
func (r *tenantAppRepository) ListActive(ctx context.Context, tenantID string) ([]*models.TenantAppInstall, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no tenant scope in context")
	}

	query := `SELECT ` + installColumns + ` FROM applications WHERE tenant_id = $1 AND is_active = true`

	rows, err := scope.Conn.Query(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list active installs: %w", err)
	}
	defer rows.Close()

	var installs []*models.TenantAppInstall
	for rows.Next() {
		install, err := scanInstall(rows)
		if err != nil {
			return nil, err
		}
		installs = append(installs, install)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating active installs: %w", err)
	}

	return installs, nil
}

// Insert creates a new install row. A reinstall after uninstall reuses the
// disabled row: the conflict branch reactivates it in place (keeping its ID),
// and deliberately skips rows that are still active so those surface as
// ErrAlreadyInstalled via the zero-row result.
func (r *tenantAppRepository) Insert(ctx context.Context, install *models.TenantAppInstall) error {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return fmt.Errorf("no tenant scope in context")
	}

	configJSON, err := json.Marshal(install.Config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	overridesJSON, err := json.Marshal(install.Overrides)
	if err != nil {
		return fmt.Errorf("failed to marshal overrides: %w", err)
	}

	query := `
		INSERT INTO applications (id, tenant_id, app_definition_id, key, installed_version, channel, install_status, config, overrides, is_active, installed_at, last_updated_at, updated_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (tenant_id, key) DO UPDATE SET
			app_definition_id = EXCLUDED.app_definition_id,
			installed_version = EXCLUDED.installed_version,
			channel = EXCLUDED.channel,
			install_status = EXCLUDED.install_status,
			config = EXCLUDED.config,
			overrides = EXCLUDED.overrides,
			is_active = EXCLUDED.is_active,
			installed_at = EXCLUDED.installed_at,
			last_updated_at = EXCLUDED.last_updated_at,
			updated_by = EXCLUDED.updated_by
		WHERE applications.is_active = false`

	result, err := scope.Conn.Exec(ctx, query,
		install.ID,
		install.TenantID,
		install.AppDefinitionID,
		install.Key,
		install.InstalledVersion,
		install.Channel,
		install.InstallStatus,
		configJSON,
		overridesJSON,
		install.IsActive,
		install.InstalledAt,
		install.LastUpdatedAt,
		install.UpdatedBy,
	)
	if err != nil {
		return fmt.Errorf("failed to insert install: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrAlreadyInstalled
	}

	return nil
}

// UpdateVersion mutates installed_version and install_status.
func (r *tenantAppRepository) UpdateVersion(ctx context.Context, tenantID, key, version, status, updatedBy string) error {
	query := `
		UPDATE applications
		SET installed_version = $3, install_status = $4, last_updated_at = NOW(), updated_by = $5
		WHERE tenant_id = $1 AND key = $2 AND is_active = true`

	return r.execOnInstall(ctx, query, tenantID, key, version, status, updatedBy)
}

// UpdateConfig replaces the stored config.
func (r *tenantAppRepository) UpdateConfig(ctx context.Context, tenantID, key string, config models.AppConfig) error {
	configJSON, err := json.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	query := `
		UPDATE applications
		SET config = $3, last_updated_at = NOW()
		WHERE tenant_id = $1 AND key = $2 AND is_active = true`

	return r.execOnInstall(ctx, query, tenantID, key, configJSON)
}

// UpdateOverrides replaces the stored overrides.
func (r *tenantAppRepository) UpdateOverrides(ctx context.Context, tenantID, key string, overrides models.AppOverrides) error {
	overridesJSON, err := json.Marshal(overrides)
	if err != nil {
		return fmt.Errorf("failed to marshal overrides: %w", err)
	}

	query := `
		UPDATE applications
		SET overrides = $3, last_updated_at = NOW()
		WHERE tenant_id = $1 AND key = $2 AND is_active = true`

	return r.execOnInstall(ctx, query, tenantID, key, overridesJSON)
}

// UpdateChannel changes the deployment channel.
func (r *tenantAppRepository) UpdateChannel(ctx context.Context, tenantID, key, channel string) error {
	query := `
		UPDATE applications
		SET channel = $3, last_updated_at = NOW()
		WHERE tenant_id = $1 AND key = $2 AND is_active = true`

	return r.execOnInstall(ctx, query, tenantID, key, channel)
}

// Disable soft-uninstalls the app.
func (r *tenantAppRepository) Disable(ctx context.Context, tenantID, key string) error {
	query := `
		UPDATE applications
		SET is_active = false, install_status = $3, last_updated_at = NOW()
		WHERE tenant_id = $1 AND key = $2 AND is_active = true`

	return r.execOnInstall(ctx, query, tenantID, key, models.InstallStatusDisabled)
}

// execOnInstall runs a single-row update against the tenant scope and maps a
// zero-row result to ErrNotInstalled.
func (r *tenantAppRepository) execOnInstall(ctx context.Context, query, tenantID, key string, extraArgs ...any) error {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return fmt.Errorf("no tenant scope in context")
	}

	args := append([]any{tenantID, key}, extraArgs...)
	result, err := scope.Conn.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update install: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrNotInstalled
	}

	return nil
}

// scanInstall scans an install row from either pgx.Row or pgx.Rows.
func scanInstall(row pgx.Row) (*models.TenantAppInstall, error) {
	var install models.TenantAppInstall
	var updatedBy *string
	var configJSON, overridesJSON []byte

	err := row.Scan(
		&install.ID,
		&install.TenantID,
		&install.AppDefinitionID,
		&install.Key,
		&install.InstalledVersion,
		&install.Channel,
		&install.InstallStatus,
		&configJSON,
		&overridesJSON,
		&install.IsActive,
		&install.InstalledAt,
		&install.LastUpdatedAt,
		&updatedBy,
	)
	if err != nil {
		return nil, err
	}

	if updatedBy != nil {
		install.UpdatedBy = *updatedBy
	}
	if err := json.Unmarshal(configJSON, &install.Config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := json.Unmarshal(overridesJSON, &install.Overrides); err != nil {
		return nil, fmt.Errorf("failed to unmarshal overrides: %w", err)
	}

	return &install, nil
}

// scanInstalledApp scans an install row joined with its definition.
func scanInstalledApp(row pgx.Row) (*models.InstalledApp, error) {
	var app models.InstalledApp
	var updatedBy, description *string
	var configJSON, overridesJSON, extensionPoints []byte

	err := row.Scan(
		&app.Install.ID,
		&app.Install.TenantID,
		&app.Install.AppDefinitionID,
		&app.Install.Key,
		&app.Install.InstalledVersion,
		&app.Install.Channel,
		&app.Install.InstallStatus,
		&configJSON,
		&overridesJSON,
		&app.Install.IsActive,
		&app.Install.InstalledAt,
		&app.Install.LastUpdatedAt,
		&updatedBy,
		&app.Definition.ID,
		&app.Definition.Key,
		&app.Definition.Name,
		&app.Definition.AppType,
		&description,
		&app.Definition.Routes,
		&app.Definition.Modules,
		&extensionPoints,
		&app.Definition.DomainTables,
		&app.Definition.SchemaVersion,
		&app.Definition.IsActive,
		&app.Definition.CreatedAt,
		&app.Definition.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if updatedBy != nil {
		app.Install.UpdatedBy = *updatedBy
	}
	if description != nil {
		app.Definition.Description = *description
	}
	if err := json.Unmarshal(configJSON, &app.Install.Config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := json.Unmarshal(overridesJSON, &app.Install.Overrides); err != nil {
		return nil, fmt.Errorf("failed to unmarshal overrides: %w", err)
	}
	if err := json.Unmarshal(extensionPoints, &app.Definition.ExtensionPoints); err != nil {
		return nil, fmt.Errorf("failed to unmarshal extension points: %w", err)
	}

	return &app, nil
}

// Ensure tenantAppRepository implements TenantAppRepository at compile time.
var _ TenantAppRepository = (*tenantAppRepository)(nil)
