package repositories

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/forvalt-io/forvalt-engine/pkg/database"
	"github.com/forvalt-io/forvalt-engine/pkg/models"
)

// PromotionBlockedError is returned when a promotion is refused because the
// canary cohort contains failed installs. No rows are mutated in that case.
type PromotionBlockedError struct {
	FailedCount int
}

func (e *PromotionBlockedError) Error() string {
	return fmt.Sprintf("promotion blocked: %d canary install(s) in failed state", e.FailedCount)
}

// DeploymentRepository performs cross-tenant bulk mutations on install rows.
// Its methods run on the pool with a platform role, not a tenant scope, and
// each multi-step flow executes inside a single transaction so concurrent
// installs and promotions cannot observe half-applied state.
type DeploymentRepository interface {
	// PromoteStable promotes a canary version to stable for one definition.
	// Inside one transaction it locks the affected rows, refuses with
	// *PromotionBlockedError when any canary install of the version is in
	// failed state, then flips the healthy canary cohort to the stable
	// channel and force-migrates every active stable-channel install to the
	// version. Returns the number of rows updated.
	PromoteStable(ctx context.Context, defID uuid.UUID, version string) (int64, error)

	// Rollback sets installed_version on matching active installs, optionally
	// filtered by channel and/or an explicit tenant subset. Returns the
	// affected row count.
	Rollback(ctx context.Context, defID uuid.UUID, version, channel string, tenantIDs []string) (int64, error)

	// DeployCanary moves the given tenants onto the canary channel at the
	// given version with install_status=updating, all in one transaction.
	// A tenant without an active install aborts the whole deployment.
	DeployCanary(ctx context.Context, defID uuid.UUID, version string, tenantIDs []string) (int64, error)

	// StatusCounts aggregates active installs of a definition by channel,
	// version and status.
	StatusCounts(ctx context.Context, defID uuid.UUID, appKey string) (*models.DeploymentStatus, error)
}

// deploymentRepository implements DeploymentRepository using PostgreSQL.
type deploymentRepository struct {
	db *database.DB
}

// NewDeploymentRepository creates a new deployment repository.
func NewDeploymentRepository(db *database.DB) DeploymentRepository {
	return &deploymentRepository{db: db}
}

// PromoteStable promotes a canary version to stable for one definition.
func (r *deploymentRepository) PromoteStable(ctx context.Context, defID uuid.UUID, version string) (int64, error) {
	var affected int64

	err := pgx.BeginFunc(ctx, r.db.Pool, func(tx pgx.Tx) error {
		// Lock the rows the promotion will touch so a concurrent deploy
		// cannot change the cohort under us.
		rows, err := tx.Query(ctx, `
			SELECT channel, install_status
			FROM applications
			WHERE app_definition_id = $1
			  AND is_active = true
			  AND (channel = 'stable' OR (channel = 'canary' AND installed_version = $2))
			FOR UPDATE`,
			defID, version)
		if err != nil {
			return fmt.Errorf("failed to lock installs: %w", err)
		}

		failedCanary := 0
		for rows.Next() {
			var channel, installStatus string
			if err := rows.Scan(&channel, &installStatus); err != nil {
				rows.Close()
				return fmt.Errorf("failed to scan install row: %w", err)
			}
			if channel == models.ChannelCanary && installStatus == models.InstallStatusFailed {
				failedCanary++
			}
		}
		if err := rows.Err(); err != nil {
			return fmt.Errorf("error iterating installs: %w", err)
		}

		if failedCanary > 0 {
			return &PromotionBlockedError{FailedCount: failedCanary}
		}

		// Flip the healthy canary cohort to stable.
		canaryResult, err := tx.Exec(ctx, `
			UPDATE applications
			SET channel = 'stable', install_status = 'active', last_updated_at = NOW()
			WHERE app_definition_id = $1
			  AND channel = 'canary'
			  AND installed_version = $2
			  AND is_active = true`,
			defID, version)
		if err != nil {
			return fmt.Errorf("failed to promote canary cohort: %w", err)
		}

		// Force-migrate existing stable-channel installs to the version.
		stableResult, err := tx.Exec(ctx, `
			UPDATE applications
			SET installed_version = $2, install_status = 'active', last_updated_at = NOW()
			WHERE app_definition_id = $1
			  AND channel = 'stable'
			  AND is_active = true
			  AND installed_version <> $2`,
			defID, version)
		if err != nil {
			return fmt.Errorf("failed to update stable installs: %w", err)
		}

		affected = canaryResult.RowsAffected() + stableResult.RowsAffected()
		return nil
	})
	if err != nil {
		return 0, err
	}

	return affected, nil
}

// Rollback sets installed_version on matching active installs.
func (r *deploymentRepository) Rollback(ctx context.Context, defID uuid.UUID, version, channel string, tenantIDs []string) (int64, error) {
	query := `
		UPDATE applications
		SET installed_version = $2, install_status = 'active', last_updated_at = NOW()
		WHERE app_definition_id = $1 AND is_active = true`
	args := []any{defID, version}

	if channel != "" {
		args = append(args, channel)
		query += fmt.Sprintf(" AND channel = $%d", len(args))
	}
	if len(tenantIDs) > 0 {
		args = append(args, tenantIDs)
		query += fmt.Sprintf(" AND tenant_id = ANY($%d)", len(args))
	}

	result, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to roll back installs: %w", err)
	}

	return result.RowsAffected(), nil
}

// DeployCanary moves the given tenants onto the canary channel.
func (r *deploymentRepository) DeployCanary(ctx context.Context, defID uuid.UUID, version string, tenantIDs []string) (int64, error) {
	var affected int64

	err := pgx.BeginFunc(ctx, r.db.Pool, func(tx pgx.Tx) error {
		for _, tenantID := range tenantIDs {
			result, err := tx.Exec(ctx, `
				UPDATE applications
				SET channel = 'canary', installed_version = $3, install_status = 'updating', last_updated_at = NOW()
				WHERE app_definition_id = $1 AND tenant_id = $2 AND is_active = true`,
				defID, tenantID, version)
			if err != nil {
				return fmt.Errorf("failed to deploy canary for tenant %s: %w", tenantID, err)
			}
			if result.RowsAffected() == 0 {
				return fmt.Errorf("tenant %s has no active install of this app", tenantID)
			}
			affected += result.RowsAffected()
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	return affected, nil
}

// StatusCounts aggregates active installs by channel, version and status.
func (r *deploymentRepository) StatusCounts(ctx context.Context, defID uuid.UUID, appKey string) (*models.DeploymentStatus, error) {
	rows, err := r.db.Query(ctx, `
		SELECT channel, installed_version, install_status
		FROM applications
		WHERE app_definition_id = $1 AND is_active = true`,
		defID)
	if err != nil {
		return nil, fmt.Errorf("failed to load deployment status: %w", err)
	}
	defer rows.Close()

	status := &models.DeploymentStatus{
		AppKey:    appKey,
		ByChannel: make(map[string]int),
		ByVersion: make(map[string]int),
		ByStatus:  make(map[string]int),
	}

	for rows.Next() {
		var channel, version, installStatus string
		if err := rows.Scan(&channel, &version, &installStatus); err != nil {
			return nil, fmt.Errorf("failed to scan install row: %w", err)
		}
		status.Total++
		status.ByChannel[channel]++
		status.ByVersion[version]++
		status.ByStatus[installStatus]++
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating installs: %w", err)
	}

	return status, nil
}

// Ensure deploymentRepository implements DeploymentRepository at compile time.
var _ DeploymentRepository = (*deploymentRepository)(nil)
