package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/forvalt-io/forvalt-engine/pkg/apperrors"
	"github.com/forvalt-io/forvalt-engine/pkg/models"
	"github.com/forvalt-io/forvalt-engine/pkg/repositories"
)

// RuntimeService assembles the effective runtime state a running tenant app
// instance consumes: definition, install, merged config, overrides and
// extensions. This is the one place install_status is enforced as a gate
// outside the install/update path.
type RuntimeService interface {
	// LoadAppContext loads and assembles the runtime context for one app.
	// Fails when no install exists or the install is not in active status.
	LoadAppContext(ctx context.Context, tenantID, appKey string) (*models.AppContext, error)

	// LoadExtension resolves one active extension, failing closed when its
	// implementation path is outside the trusted prefix.
	LoadExtension(ctx context.Context, tenantID string, defID uuid.UUID, key string) (*models.TenantAppExtension, error)
}

type runtimeService struct {
	tenantApps    repositories.TenantAppRepository
	extensions    repositories.ExtensionRepository
	trustedPrefix string
	logger        *zap.Logger
}

// NewRuntimeService creates a new runtime context loader. trustedPrefix is the
// only path prefix extension implementations may be loaded from.
func NewRuntimeService(
	tenantApps repositories.TenantAppRepository,
	extensions repositories.ExtensionRepository,
	trustedPrefix string,
	logger *zap.Logger,
) RuntimeService {
	return &runtimeService{
		tenantApps:    tenantApps,
		extensions:    extensions,
		trustedPrefix: trustedPrefix,
		logger:        logger,
	}
}

// LoadAppContext loads and assembles the runtime context for one app.
func (s *runtimeService) LoadAppContext(ctx context.Context, tenantID, appKey string) (*models.AppContext, error) {
	app, err := s.tenantApps.GetWithDefinition(ctx, tenantID, appKey)
	if err != nil {
		return nil, err
	}
	if app == nil {
		return nil, fmt.Errorf("app %q: %w", appKey, apperrors.ErrNotInstalled)
	}
	if !app.Install.IsActive || app.Install.InstallStatus != models.InstallStatusActive {
		return nil, fmt.Errorf("app %q has status %q: %w", appKey, app.Install.InstallStatus, apperrors.ErrInstallNotActive)
	}

	extensions, err := s.extensions.ListActive(ctx, tenantID, app.Definition.ID)
	if err != nil {
		return nil, err
	}

	appCtx := &models.AppContext{
		Definition: app.Definition,
		Install:    app.Install,
		Config:     models.MergeConfig(app.Definition.DefaultConfig(), app.Install.Config),
		Overrides:  app.Install.Overrides,
		Extensions: make([]models.TenantAppExtension, 0, len(extensions)),
	}
	for _, ext := range extensions {
		appCtx.Extensions = append(appCtx.Extensions, *ext)
	}

	return appCtx, nil
}

// LoadExtension resolves one active extension by key. The implementation URL
// must sit under the trusted prefix; anything else fails closed so a stored
// row can never point the loader at an arbitrary code path.
func (s *runtimeService) LoadExtension(ctx context.Context, tenantID string, defID uuid.UUID, key string) (*models.TenantAppExtension, error) {
	ext, err := s.extensions.GetActive(ctx, tenantID, defID, key)
	if err != nil {
		return nil, err
	}
	if ext == nil {
		return nil, fmt.Errorf("extension %q: %w", key, apperrors.ErrNotFound)
	}

	if !strings.HasPrefix(ext.ImplementationURL, s.trustedPrefix) {
		s.logger.Warn("Refused extension outside trusted prefix",
			zap.String("tenant_id", tenantID),
			zap.String("extension_key", key),
			zap.String("implementation_url", ext.ImplementationURL))
		return nil, fmt.Errorf("extension %q: %w", key, apperrors.ErrUntrustedExtension)
	}

	return ext, nil
}

// Ensure runtimeService implements RuntimeService at compile time.
var _ RuntimeService = (*runtimeService)(nil)
