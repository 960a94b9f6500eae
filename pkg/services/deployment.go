package services

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/forvalt-io/forvalt-engine/pkg/metrics"
	"github.com/forvalt-io/forvalt-engine/pkg/models"
	"github.com/forvalt-io/forvalt-engine/pkg/repositories"
)

// DeploymentService manages bulk channel transitions across tenants:
// canary rollout, promotion to stable and rollback. It operates independently
// of any single tenant's install flow.
type DeploymentService interface {
	// PromoteToStable promotes a canary version to stable. The promotion is
	// all-or-nothing: any failed canary install of the version rejects the
	// whole operation with no mutation. On success every active
	// stable-channel install is force-migrated to the version and the canary
	// cohort joins the stable channel.
	PromoteToStable(ctx context.Context, appKey, version string) (int64, error)

	// Rollback moves matching installs back to targetVersion. Returns the
	// affected row count.
	Rollback(ctx context.Context, appKey, targetVersion string, opts RollbackOptions) (int64, error)

	// DeployToCanary puts the given tenants on the canary channel at the
	// version, transactionally across the whole set.
	DeployToCanary(ctx context.Context, appKey, version string, tenantIDs []string) (int64, error)

	// GetDeploymentStatus aggregates active installs by channel, version and
	// status. Pure read.
	GetDeploymentStatus(ctx context.Context, appKey string) (*models.DeploymentStatus, error)
}

type deploymentService struct {
	definitions repositories.DefinitionRepository
	deployments repositories.DeploymentRepository
	logger      *zap.Logger
}

// NewDeploymentService creates a new deployment service.
func NewDeploymentService(
	definitions repositories.DefinitionRepository,
	deployments repositories.DeploymentRepository,
	logger *zap.Logger,
) DeploymentService {
	return &deploymentService{
		definitions: definitions,
		deployments: deployments,
		logger:      logger,
	}
}

// PromoteToStable promotes a canary version to stable.
func (s *deploymentService) PromoteToStable(ctx context.Context, appKey, version string) (int64, error) {
	def, err := s.definitions.GetByKey(ctx, appKey)
	if err != nil {
		metrics.PromotionsTotal.WithLabelValues("error").Inc()
		return 0, err
	}

	affected, err := s.deployments.PromoteStable(ctx, def.ID, version)
	if err != nil {
		var blocked *repositories.PromotionBlockedError
		if errors.As(err, &blocked) {
			metrics.PromotionsTotal.WithLabelValues("blocked").Inc()
			return 0, fmt.Errorf("refusing to promote %s %s: %d canary install(s) failed", appKey, version, blocked.FailedCount)
		}
		metrics.PromotionsTotal.WithLabelValues("error").Inc()
		return 0, err
	}

	metrics.PromotionsTotal.WithLabelValues("success").Inc()
	s.logger.Info("Promoted version to stable",
		zap.String("app_key", appKey),
		zap.String("version", version),
		zap.Int64("installs_updated", affected))

	return affected, nil
}

// Rollback moves matching installs back to targetVersion.
func (s *deploymentService) Rollback(ctx context.Context, appKey, targetVersion string, opts RollbackOptions) (int64, error) {
	def, err := s.definitions.GetByKey(ctx, appKey)
	if err != nil {
		return 0, err
	}
	if opts.Channel != "" && !models.KnownChannels[opts.Channel] {
		return 0, fmt.Errorf("unknown channel %q", opts.Channel)
	}

	affected, err := s.deployments.Rollback(ctx, def.ID, targetVersion, opts.Channel, opts.TenantIDs)
	if err != nil {
		return 0, err
	}

	metrics.RollbacksTotal.Inc()
	s.logger.Info("Rolled back installs",
		zap.String("app_key", appKey),
		zap.String("version", targetVersion),
		zap.String("channel", opts.Channel),
		zap.Int("tenant_filter", len(opts.TenantIDs)),
		zap.Int64("installs_updated", affected))

	return affected, nil
}

// DeployToCanary puts the given tenants on the canary channel.
func (s *deploymentService) DeployToCanary(ctx context.Context, appKey, version string, tenantIDs []string) (int64, error) {
	if len(tenantIDs) == 0 {
		return 0, fmt.Errorf("no tenant IDs given for canary deployment")
	}

	def, err := s.definitions.GetByKey(ctx, appKey)
	if err != nil {
		return 0, err
	}

	affected, err := s.deployments.DeployCanary(ctx, def.ID, version, tenantIDs)
	if err != nil {
		return 0, err
	}

	metrics.CanaryDeploymentsTotal.Inc()
	s.logger.Info("Deployed version to canary cohort",
		zap.String("app_key", appKey),
		zap.String("version", version),
		zap.Int("tenants", len(tenantIDs)))

	return affected, nil
}

// GetDeploymentStatus aggregates active installs of the definition.
func (s *deploymentService) GetDeploymentStatus(ctx context.Context, appKey string) (*models.DeploymentStatus, error) {
	def, err := s.definitions.GetByKey(ctx, appKey)
	if err != nil {
		return nil, err
	}
	return s.deployments.StatusCounts(ctx, def.ID, appKey)
}

// Ensure deploymentService implements DeploymentService at compile time.
var _ DeploymentService = (*deploymentService)(nil)
