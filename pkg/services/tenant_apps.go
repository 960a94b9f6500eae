package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/forvalt-io/forvalt-engine/pkg/apperrors"
	"github.com/forvalt-io/forvalt-engine/pkg/metrics"
	"github.com/forvalt-io/forvalt-engine/pkg/models"
	"github.com/forvalt-io/forvalt-engine/pkg/repositories"
)

// InstallOptions carries optional install parameters. A zero Version installs
// the latest published version; a zero Channel defaults to stable.
type InstallOptions struct {
	Version string
	Channel string
	Config  *models.AppConfig
}

// RollbackOptions narrows a rollback to a channel and/or tenant subset.
type RollbackOptions struct {
	Channel   string
	TenantIDs []string
}

// TenantAppService orchestrates per-tenant app installs. Installs and updates
// are gated on a passing compatibility preflight; MCP action registration is
// best-effort and never blocks the primary operation.
type TenantAppService interface {
	// Install installs an app for a tenant after a passing preflight.
	Install(ctx context.Context, tenantID, appKey string, opts InstallOptions, userID string) (*models.TenantAppInstall, error)

	// Update moves an existing install to targetVersion after a passing preflight.
	Update(ctx context.Context, tenantID, appKey, targetVersion, userID string) error

	// SetConfig replaces the stored config. Config changes are not version
	// changes, so no compatibility gate applies.
	SetConfig(ctx context.Context, tenantID, appKey string, config models.AppConfig) error

	// SetOverrides replaces the tenant's overrides.
	SetOverrides(ctx context.Context, tenantID, appKey string, overrides models.AppOverrides) error

	// SetChannel changes the deployment channel.
	SetChannel(ctx context.Context, tenantID, appKey, channel string) error

	// ListInstalled returns the tenant's active installs with definitions.
	ListInstalled(ctx context.Context, tenantID string) ([]*models.InstalledApp, error)

	// GetInstalled returns one install with its definition.
	GetInstalled(ctx context.Context, tenantID, appKey string) (*models.InstalledApp, error)

	// Uninstall soft-disables the install and best-effort disables its MCP actions.
	Uninstall(ctx context.Context, tenantID, appKey string) error
}

type tenantAppService struct {
	definitions     repositories.DefinitionRepository
	versions        repositories.VersionRepository
	tenantApps      repositories.TenantAppRepository
	compatibility   CompatibilityService
	actions         ActionRegistry
	fallbackVersion string
	logger          *zap.Logger
}

// NewTenantAppService creates a new tenant app service. fallbackVersion is
// installed when a definition has no published versions at all.
func NewTenantAppService(
	definitions repositories.DefinitionRepository,
	versions repositories.VersionRepository,
	tenantApps repositories.TenantAppRepository,
	compatibility CompatibilityService,
	actions ActionRegistry,
	fallbackVersion string,
	logger *zap.Logger,
) TenantAppService {
	return &tenantAppService{
		definitions:     definitions,
		versions:        versions,
		tenantApps:      tenantApps,
		compatibility:   compatibility,
		actions:         actions,
		fallbackVersion: fallbackVersion,
		logger:          logger,
	}
}

// Install installs an app for a tenant after a passing preflight.
func (s *tenantAppService) Install(ctx context.Context, tenantID, appKey string, opts InstallOptions, userID string) (*models.TenantAppInstall, error) {
	def, err := s.definitions.GetByKey(ctx, appKey)
	if err != nil {
		metrics.InstallsTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	target := opts.Version
	if target == "" {
		target = VersionLatest
	}

	check := s.compatibility.Preflight(ctx, tenantID, appKey, target)
	if !check.OK {
		metrics.InstallsTotal.WithLabelValues("blocked").Inc()
		return nil, fmt.Errorf("install blocked: %s", strings.Join(check.Reasons, ", "))
	}

	version, err := s.resolveInstallVersion(ctx, def, opts.Version)
	if err != nil {
		metrics.InstallsTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	channel := opts.Channel
	if channel == "" {
		channel = models.ChannelStable
	}
	if !models.KnownChannels[channel] {
		metrics.InstallsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("unknown channel %q", channel)
	}

	config := models.AppConfig{}
	if opts.Config != nil {
		config = *opts.Config
	}

	now := time.Now()
	install := &models.TenantAppInstall{
		ID:               uuid.New(),
		TenantID:         tenantID,
		AppDefinitionID:  def.ID,
		Key:              appKey,
		InstalledVersion: version,
		Channel:          channel,
		InstallStatus:    models.InstallStatusActive,
		Config:           config,
		IsActive:         true,
		InstalledAt:      now,
		LastUpdatedAt:    now,
		UpdatedBy:        userID,
	}

	if err := s.tenantApps.Insert(ctx, install); err != nil {
		metrics.InstallsTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	s.registerActionsBestEffort(tenantID, def)
	metrics.InstallsTotal.WithLabelValues("success").Inc()

	s.logger.Info("App installed",
		zap.String("tenant_id", tenantID),
		zap.String("app_key", appKey),
		zap.String("version", version),
		zap.String("channel", channel),
		zap.String("installed_by", userID))

	return install, nil
}

// Update moves an existing install to targetVersion after a passing preflight.
func (s *tenantAppService) Update(ctx context.Context, tenantID, appKey, targetVersion, userID string) error {
	def, err := s.definitions.GetByKey(ctx, appKey)
	if err != nil {
		metrics.UpdatesTotal.WithLabelValues("error").Inc()
		return err
	}

	check := s.compatibility.Preflight(ctx, tenantID, appKey, targetVersion)
	if !check.OK {
		metrics.UpdatesTotal.WithLabelValues("blocked").Inc()
		return fmt.Errorf("update blocked: %s", strings.Join(check.Reasons, ", "))
	}

	version, err := s.resolveInstallVersion(ctx, def, targetVersion)
	if err != nil {
		metrics.UpdatesTotal.WithLabelValues("error").Inc()
		return err
	}

	if err := s.tenantApps.UpdateVersion(ctx, tenantID, appKey, version, models.InstallStatusActive, userID); err != nil {
		metrics.UpdatesTotal.WithLabelValues("error").Inc()
		return err
	}

	s.registerActionsBestEffort(tenantID, def)
	metrics.UpdatesTotal.WithLabelValues("success").Inc()

	s.logger.Info("App updated",
		zap.String("tenant_id", tenantID),
		zap.String("app_key", appKey),
		zap.String("version", version),
		zap.String("updated_by", userID))

	return nil
}

// SetConfig replaces the stored config.
func (s *tenantAppService) SetConfig(ctx context.Context, tenantID, appKey string, config models.AppConfig) error {
	return s.tenantApps.UpdateConfig(ctx, tenantID, appKey, config)
}

// SetOverrides replaces the tenant's overrides.
func (s *tenantAppService) SetOverrides(ctx context.Context, tenantID, appKey string, overrides models.AppOverrides) error {
	return s.tenantApps.UpdateOverrides(ctx, tenantID, appKey, overrides)
}

// SetChannel changes the deployment channel.
func (s *tenantAppService) SetChannel(ctx context.Context, tenantID, appKey, channel string) error {
	if !models.KnownChannels[channel] {
		return fmt.Errorf("unknown channel %q", channel)
	}
	return s.tenantApps.UpdateChannel(ctx, tenantID, appKey, channel)
}

// ListInstalled returns the tenant's active installs with definitions.
func (s *tenantAppService) ListInstalled(ctx context.Context, tenantID string) ([]*models.InstalledApp, error) {
	return s.tenantApps.List(ctx, tenantID)
}

// GetInstalled returns one install with its definition.
func (s *tenantAppService) GetInstalled(ctx context.Context, tenantID, appKey string) (*models.InstalledApp, error) {
	app, err := s.tenantApps.GetWithDefinition(ctx, tenantID, appKey)
	if err != nil {
		return nil, err
	}
	if app == nil {
		return nil, apperrors.ErrNotInstalled
	}
	return app, nil
}

// Uninstall soft-disables the install and best-effort disables its MCP actions.
func (s *tenantAppService) Uninstall(ctx context.Context, tenantID, appKey string) error {
	if err := s.tenantApps.Disable(ctx, tenantID, appKey); err != nil {
		return err
	}

	s.bestEffort("disable mcp actions", tenantID, appKey, func() error {
		s.actions.DisableAppActions(tenantID, appKey)
		return nil
	})
	metrics.UninstallsTotal.Inc()

	s.logger.Info("App uninstalled",
		zap.String("tenant_id", tenantID),
		zap.String("app_key", appKey))

	return nil
}

// resolveInstallVersion picks the concrete version string to store: the
// explicit request, else the latest published version, else the fallback
// literal when nothing has been published.
func (s *tenantAppService) resolveInstallVersion(ctx context.Context, def *models.AppDefinition, requested string) (string, error) {
	if requested != "" && requested != VersionLatest {
		return requested, nil
	}

	versions, err := s.versions.ListByDefinition(ctx, def.ID)
	if err != nil {
		return "", err
	}
	if len(versions) == 0 {
		return s.fallbackVersion, nil
	}
	return versions[0].Version, nil
}

// registerActionsBestEffort registers the definition's declared MCP actions
// for the tenant. Registration failures never fail the primary operation.
func (s *tenantAppService) registerActionsBestEffort(tenantID string, def *models.AppDefinition) {
	s.bestEffort("register mcp actions", tenantID, def.Key, func() error {
		return s.actions.RegisterAppActions(tenantID, def)
	})
}

// bestEffort runs a side effect and downgrades any failure to a warning log.
func (s *tenantAppService) bestEffort(op, tenantID, appKey string, fn func() error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Warn("Best-effort side effect panicked",
				zap.String("op", op),
				zap.String("tenant_id", tenantID),
				zap.String("app_key", appKey),
				zap.Any("panic", r))
		}
	}()

	if err := fn(); err != nil {
		s.logger.Warn("Best-effort side effect failed",
			zap.String("op", op),
			zap.String("tenant_id", tenantID),
			zap.String("app_key", appKey),
			zap.Error(err))
	}
}

// Ensure tenantAppService implements TenantAppService at compile time.
var _ TenantAppService = (*tenantAppService)(nil)
