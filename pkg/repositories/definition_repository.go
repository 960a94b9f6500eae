package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/forvalt-io/forvalt-engine/pkg/apperrors"
	"github.com/forvalt-io/forvalt-engine/pkg/database"
	"github.com/forvalt-io/forvalt-engine/pkg/models"
)

// DefinitionFilter narrows List results.
type DefinitionFilter struct {
	AppType  string
	IsActive *bool
}

// DefinitionRepository defines data access for app definitions and their
// compatibility matrices. Definitions are platform-owned, so this repository
// queries the pool directly rather than a tenant scope.
type DefinitionRepository interface {
	// List returns definitions matching the filter, ordered by name.
	List(ctx context.Context, filter DefinitionFilter) ([]*models.AppDefinition, error)

	// GetByKey returns the definition with the given key.
	// Returns apperrors.ErrNotFound if absent.
	GetByKey(ctx context.Context, key string) (*models.AppDefinition, error)

	// Upsert inserts the definition or updates it in place when the key exists.
	Upsert(ctx context.Context, def *models.AppDefinition) error

	// Deactivate soft-deletes a definition by flipping is_active.
	Deactivate(ctx context.Context, key string) error

	// GetCompatibilityMatrix returns the matrix for a definition
	// (nil if none is recorded).
	GetCompatibilityMatrix(ctx context.Context, defID uuid.UUID) (*models.CompatibilityMatrix, error)

	// TableExists probes whether a relation with the given name exists.
	// Used by manifest validation; "exists but empty" counts as existing.
	TableExists(ctx context.Context, name string) (bool, error)
}

// definitionRepository implements DefinitionRepository using PostgreSQL.
type definitionRepository struct {
	db *database.DB
}

// NewDefinitionRepository creates a new definition repository.
func NewDefinitionRepository(db *database.DB) DefinitionRepository {
	return &definitionRepository{db: db}
}

const definitionColumns = `id, key, name, app_type, description, routes, modules, extension_points, domain_tables, schema_version, is_active, created_at, updated_at`

// List returns definitions matching the filter, ordered by name.
func (r *definitionRepository) List(ctx context.Context, filter DefinitionFilter) ([]*models.AppDefinition, error) {
	query := `SELECT ` + definitionColumns + ` FROM app_definitions WHERE 1=1`
	args := []any{}

	if filter.AppType != "" {
		args = append(args, filter.AppType)
		query += fmt.Sprintf(" AND app_type = $%d", len(args))
	}
	if filter.IsActive != nil {
		args = append(args, *filter.IsActive)
		query += fmt.Sprintf(" AND is_active = $%d", len(args))
	}
	query += " ORDER BY name ASC"

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list app definitions: %w", err)
	}
	defer rows.Close()

	var defs []*models.AppDefinition
	for rows.Next() {
		def, err := scanDefinition(rows)
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating app definitions: %w", err)
	}

	return defs, nil
}

// GetByKey returns the definition with the given key.
func (r *definitionRepository) GetByKey(ctx context.Context, key string) (*models.AppDefinition, error) {
	query := `SELECT ` + definitionColumns + ` FROM app_definitions WHERE key = $1`

	def, err := scanDefinition(r.db.QueryRow(ctx, query, key))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("app definition %q: %w", key, apperrors.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get app definition: %w", err)
	}

	return def, nil
}

// Upsert inserts the definition or updates it in place when the key exists.
func (r *definitionRepository) Upsert(ctx context.Context, def *models.AppDefinition) error {
	extensionPoints, err := json.Marshal(def.ExtensionPoints)
	if err != nil {
		return fmt.Errorf("failed to marshal extension points: %w", err)
	}

	query := `
		INSERT INTO app_definitions (id, key, name, app_type, description, routes, modules, extension_points, domain_tables, schema_version, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW(), NOW())
		ON CONFLICT (key) DO UPDATE SET
			name = EXCLUDED.name,
			app_type = EXCLUDED.app_type,
			description = EXCLUDED.description,
			routes = EXCLUDED.routes,
			modules = EXCLUDED.modules,
			extension_points = EXCLUDED.extension_points,
			domain_tables = EXCLUDED.domain_tables,
			schema_version = EXCLUDED.schema_version,
			is_active = EXCLUDED.is_active,
			updated_at = NOW()`

	_, err = r.db.Exec(ctx, query,
		def.ID,
		def.Key,
		def.Name,
		def.AppType,
		def.Description,
		def.Routes,
		def.Modules,
		extensionPoints,
		def.DomainTables,
		def.SchemaVersion,
		def.IsActive,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert app definition: %w", err)
	}

	return nil
}

// Deactivate soft-deletes a definition by flipping is_active.
func (r *definitionRepository) Deactivate(ctx context.Context, key string) error {
	query := `UPDATE app_definitions SET is_active = false, updated_at = NOW() WHERE key = $1`

	result, err := r.db.Exec(ctx, query, key)
	if err != nil {
		return fmt.Errorf("failed to deactivate app definition: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("app definition %q: %w", key, apperrors.ErrNotFound)
	}

	return nil
}

// GetCompatibilityMatrix returns the matrix for a definition (nil if none).
func (r *definitionRepository) GetCompatibilityMatrix(ctx context.Context, defID uuid.UUID) (*models.CompatibilityMatrix, error) {
	query := `SELECT app_definition_id, incompatible_with FROM app_compatibility WHERE app_definition_id = $1`

	var matrix models.CompatibilityMatrix
	err := r.db.QueryRow(ctx, query, defID).Scan(&matrix.AppDefinitionID, &matrix.IncompatibleWith)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get compatibility matrix: %w", err)
	}

	return &matrix, nil
}

// TableExists probes whether a relation with the given name exists.
func (r *definitionRepository) TableExists(ctx context.Context, name string) (bool, error) {
	var regclass *string
	err := r.db.QueryRow(ctx, `SELECT to_regclass($1)::text`, name).Scan(&regclass)
	if err != nil {
		return false, fmt.Errorf("failed to probe table %q: %w", name, err)
	}
	return regclass != nil, nil
}

// scanDefinition scans a definition row from either pgx.Row or pgx.Rows.
func scanDefinition(row pgx.Row) (*models.AppDefinition, error) {
	var def models.AppDefinition
	var description *string
	var extensionPoints []byte

	err := row.Scan(
		&def.ID,
		&def.Key,
		&def.Name,
		&def.AppType,
		&description,
		&def.Routes,
		&def.Modules,
		&extensionPoints,
		&def.DomainTables,
		&def.SchemaVersion,
		&def.IsActive,
		&def.CreatedAt,
		&def.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if description != nil {
		def.Description = *description
	}
	if err := json.Unmarshal(extensionPoints, &def.ExtensionPoints); err != nil {
		return nil, fmt.Errorf("failed to unmarshal extension points: %w", err)
	}

	return &def, nil
}

// Ensure definitionRepository implements DefinitionRepository at compile time.
var _ DefinitionRepository = (*definitionRepository)(nil)
