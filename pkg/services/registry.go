package services

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/forvalt-io/forvalt-engine/pkg/models"
	"github.com/forvalt-io/forvalt-engine/pkg/repositories"
)

// RegistryService is the catalog surface over app definitions and versions.
// Every read hits the store fresh; callers cache at their own layer if latency
// matters.
type RegistryService interface {
	// ListDefinitions returns catalog entries matching the filter, by name.
	ListDefinitions(ctx context.Context, filter repositories.DefinitionFilter) ([]*models.AppDefinition, error)

	// GetDefinitionByKey returns one definition or apperrors.ErrNotFound.
	GetDefinitionByKey(ctx context.Context, key string) (*models.AppDefinition, error)

	// PublishVersion inserts a new version for an existing definition.
	PublishVersion(ctx context.Context, appKey, version string, manifest models.VersionManifest) (*models.AppVersion, error)

	// ListVersions returns versions newest-first, so index 0 is latest.
	ListVersions(ctx context.Context, appKey string) ([]*models.AppVersion, error)

	// DeactivateDefinition soft-deletes a catalog entry.
	DeactivateDefinition(ctx context.Context, key string) error
}

type registryService struct {
	definitions repositories.DefinitionRepository
	versions    repositories.VersionRepository
	logger      *zap.Logger
}

// NewRegistryService creates a new registry service.
func NewRegistryService(
	definitions repositories.DefinitionRepository,
	versions repositories.VersionRepository,
	logger *zap.Logger,
) RegistryService {
	return &registryService{
		definitions: definitions,
		versions:    versions,
		logger:      logger,
	}
}

// ListDefinitions returns catalog entries matching the filter.
func (s *registryService) ListDefinitions(ctx context.Context, filter repositories.DefinitionFilter) ([]*models.AppDefinition, error) {
	return s.definitions.List(ctx, filter)
}

// GetDefinitionByKey returns one definition or apperrors.ErrNotFound.
func (s *registryService) GetDefinitionByKey(ctx context.Context, key string) (*models.AppDefinition, error) {
	return s.definitions.GetByKey(ctx, key)
}

// PublishVersion inserts a new version for an existing definition.
func (s *registryService) PublishVersion(ctx context.Context, appKey, version string, manifest models.VersionManifest) (*models.AppVersion, error) {
	def, err := s.definitions.GetByKey(ctx, appKey)
	if err != nil {
		return nil, err
	}

	if _, err := semver.StrictNewVersion(version); err != nil {
		return nil, fmt.Errorf("invalid semver %q: %w", version, err)
	}

	v := &models.AppVersion{
		ID:              uuid.New(),
		AppDefinitionID: def.ID,
		Version:         version,
		ManifestURL:     manifest.ManifestURL,
		Changelog:       manifest.Changelog,
		Migrations:      manifest.Migrations,
		DomainTables:    manifest.DomainTables,
		BreakingChanges: manifest.BreakingChanges,
		ReleasedAt:      time.Now(),
	}
	if v.DomainTables == nil {
		v.DomainTables = def.DomainTables
	}

	if err := s.versions.Publish(ctx, v); err != nil {
		return nil, err
	}

	s.logger.Info("Published app version",
		zap.String("app_key", appKey),
		zap.String("version", version),
		zap.Bool("breaking_changes", v.BreakingChanges))

	return v, nil
}

// ListVersions returns versions newest-first.
func (s *registryService) ListVersions(ctx context.Context, appKey string) ([]*models.AppVersion, error) {
	def, err := s.definitions.GetByKey(ctx, appKey)
	if err != nil {
		return nil, err
	}
	return s.versions.ListByDefinition(ctx, def.ID)
}

// DeactivateDefinition soft-deletes a catalog entry.
func (s *registryService) DeactivateDefinition(ctx context.Context, key string) error {
	if err := s.definitions.Deactivate(ctx, key); err != nil {
		return err
	}
	s.logger.Info("Deactivated app definition", zap.String("app_key", key))
	return nil
}

// Ensure registryService implements RegistryService at compile time.
var _ RegistryService = (*registryService)(nil)
