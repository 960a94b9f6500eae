package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/forvalt-io/forvalt-engine/pkg/apperrors"
	"github.com/forvalt-io/forvalt-engine/pkg/database"
	"github.com/forvalt-io/forvalt-engine/pkg/models"
)

// VersionRepository defines data access for published app versions.
type VersionRepository interface {
	// Publish inserts a new version row.
	// Returns apperrors.ErrConflict when (app_definition_id, version) already exists.
	Publish(ctx context.Context, v *models.AppVersion) error

	// ListByDefinition returns all versions for a definition ordered by
	// released_at descending, so index 0 is the latest.
	ListByDefinition(ctx context.Context, defID uuid.UUID) ([]*models.AppVersion, error)

	// GetByVersion returns an exact version (nil if not published).
	GetByVersion(ctx context.Context, defID uuid.UUID, version string) (*models.AppVersion, error)
}

// versionRepository implements VersionRepository using PostgreSQL.
type versionRepository struct {
	db *database.DB
}

// NewVersionRepository creates a new version repository.
func NewVersionRepository(db *database.DB) VersionRepository {
	return &versionRepository{db: db}
}

const versionColumns = `id, app_definition_id, version, manifest_url, changelog, migrations, domain_tables, breaking_changes, released_at, deprecated_at, end_of_life_at`

// Publish inserts a new version row.
func (r *versionRepository) Publish(ctx context.Context, v *models.AppVersion) error {
	query := `
		INSERT INTO app_versions (id, app_definition_id, version, manifest_url, changelog, migrations, domain_tables, breaking_changes, released_at, deprecated_at, end_of_life_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := r.db.Exec(ctx, query,
		v.ID,
		v.AppDefinitionID,
		v.Version,
		v.ManifestURL,
		v.Changelog,
		v.Migrations,
		v.DomainTables,
		v.BreakingChanges,
		v.ReleasedAt,
		v.DeprecatedAt,
		v.EndOfLifeAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("version %s already published: %w", v.Version, apperrors.ErrConflict)
		}
		return fmt.Errorf("failed to publish version: %w", err)
	}

	return nil
}

// ListByDefinition returns all versions ordered by released_at descending.
func (r *versionRepository) ListByDefinition(ctx context.Context, defID uuid.UUID) ([]*models.AppVersion, error) {
	query := `SELECT ` + versionColumns + ` FROM app_versions WHERE app_definition_id = $1 ORDER BY released_at DESC`

	rows, err := r.db.Query(ctx, query, defID)
	if err != nil {
		return nil, fmt.Errorf("failed to list versions: %w", err)
	}
	defer rows.Close()

	var versions []*models.AppVersion
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating versions: %w", err)
	}

	return versions, nil
}

// GetByVersion returns an exact version (nil if not published).
func (r *versionRepository) GetByVersion(ctx context.Context, defID uuid.UUID, version string) (*models.AppVersion, error) {
	query := `SELECT ` + versionColumns + ` FROM app_versions WHERE app_definition_id = $1 AND version = $2`

	v, err := scanVersion(r.db.QueryRow(ctx, query, defID, version))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get version: %w", err)
	}

	return v, nil
}

// scanVersion scans a version row from either pgx.Row or pgx.Rows.
func scanVersion(row pgx.Row) (*models.AppVersion, error) {
	var v models.AppVersion
	var manifestURL, changelog *string

	err := row.Scan(
		&v.ID,
		&v.AppDefinitionID,
		&v.Version,
		&manifestURL,
		&changelog,
		&v.Migrations,
		&v.DomainTables,
		&v.BreakingChanges,
		&v.ReleasedAt,
		&v.DeprecatedAt,
		&v.EndOfLifeAt,
	)
	if err != nil {
		return nil, err
	}

	if manifestURL != nil {
		v.ManifestURL = *manifestURL
	}
	if changelog != nil {
		v.Changelog = *changelog
	}

	return &v, nil
}

// Ensure versionRepository implements VersionRepository at compile time.
var _ VersionRepository = (*versionRepository)(nil)
