package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/forvalt-io/forvalt-engine/pkg/apperrors"
	"github.com/forvalt-io/forvalt-engine/pkg/models"
	"github.com/forvalt-io/forvalt-engine/pkg/repositories"
)

// keyPattern matches kebab-case app keys: lowercase alphanumeric segments
// separated by single hyphens.
var keyPattern = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)

// ManifestService validates declarative app manifests and registers them into
// the catalog.
type ManifestService interface {
	// ValidateManifest checks manifest shape and probes every declared domain
	// table for existence. Problems are collected into the result, not
	// raised; only storage failures during probing return an error.
	ValidateManifest(ctx context.Context, manifest *models.AppManifest) (*models.ValidationResult, error)

	// RegisterFromManifest validates, then upserts the definition by key and
	// publishes the manifest's version when it is not yet published. A failed
	// validation is returned in the result with a nil definition.
	RegisterFromManifest(ctx context.Context, manifest *models.AppManifest) (*models.AppDefinition, *models.ValidationResult, error)

	// CheckMigrationNeeded compares the domain-table set of the tenant's
	// installed version with the target version's; any difference means a
	// migration is needed.
	CheckMigrationNeeded(ctx context.Context, tenantID, appKey, targetVersion string) (bool, error)
}

type manifestService struct {
	definitions repositories.DefinitionRepository
	versions    repositories.VersionRepository
	tenantApps  repositories.TenantAppRepository
	logger      *zap.Logger
}

// NewManifestService creates a new manifest service.
func NewManifestService(
	definitions repositories.DefinitionRepository,
	versions repositories.VersionRepository,
	tenantApps repositories.TenantAppRepository,
	logger *zap.Logger,
) ManifestService {
	return &manifestService{
		definitions: definitions,
		versions:    versions,
		tenantApps:  tenantApps,
		logger:      logger,
	}
}

// ValidateManifest checks manifest shape and referential integrity.
func (s *manifestService) ValidateManifest(ctx context.Context, manifest *models.AppManifest) (*models.ValidationResult, error) {
	result := &models.ValidationResult{OK: true, Errors: []string{}}
	fail := func(format string, args ...any) {
		result.OK = false
		result.Errors = append(result.Errors, fmt.Sprintf(format, args...))
	}

	if manifest.Key == "" {
		fail("key is required")
	} else if !keyPattern.MatchString(manifest.Key) {
		fail("key %q must be kebab-case", manifest.Key)
	}
	if manifest.Name == "" {
		fail("name is required")
	}
	if manifest.Version == "" {
		fail("version is required")
	} else if _, err := semver.StrictNewVersion(manifest.Version); err != nil {
		fail("version %q is not strict semver: %v", manifest.Version, err)
	}
	if manifest.AppType != "" && !models.KnownAppTypes[manifest.AppType] {
		fail("unknown app_type %q", manifest.AppType)
	}
	if len(manifest.DomainTables) == 0 {
		fail("domain_tables must not be empty")
	}

	// Referential check: every declared domain table must exist. An existing
	// but empty table is fine; only a missing relation fails validation.
	for _, table := range manifest.DomainTables {
		exists, err := s.definitions.TableExists(ctx, table)
		if err != nil {
			return nil, fmt.Errorf("failed to probe domain table %q: %w", table, err)
		}
		if !exists {
			fail("domain table %q does not exist", table)
		}
	}

	for _, action := range manifest.Actions {
		if action.Name == "" {
			fail("action name is required")
		}
	}

	return result, nil
}

// RegisterFromManifest validates, then upserts the definition by key.
func (s *manifestService) RegisterFromManifest(ctx context.Context, manifest *models.AppManifest) (*models.AppDefinition, *models.ValidationResult, error) {
	result, err := s.ValidateManifest(ctx, manifest)
	if err != nil {
		return nil, nil, err
	}
	if !result.OK {
		return nil, result, nil
	}

	def := &models.AppDefinition{
		ID:              uuid.New(),
		Key:             manifest.Key,
		Name:            manifest.Name,
		AppType:         manifest.AppType,
		Description:     manifest.Description,
		Routes:          manifest.Routes,
		Modules:         manifest.Modules,
		ExtensionPoints: manifest.ExtensionPoints,
		DomainTables:    manifest.DomainTables,
		SchemaVersion:   manifest.SchemaVersion,
		IsActive:        true,
	}
	if def.AppType == "" {
		def.AppType = models.AppTypeAddon
	}
	if len(manifest.Actions) > 0 {
		if def.ExtensionPoints == nil {
			def.ExtensionPoints = map[string]any{}
		}
		def.ExtensionPoints["mcp_actions"] = manifest.Actions
	}

	// Update in place when the key exists so the definition keeps its
	// identity and existing installs stay linked.
	existing, err := s.definitions.GetByKey(ctx, manifest.Key)
	if err != nil && !errors.Is(err, apperrors.ErrNotFound) {
		return nil, nil, err
	}
	if existing != nil {
		def.ID = existing.ID
	}

	if err := s.definitions.Upsert(ctx, def); err != nil {
		return nil, nil, err
	}

	// Publish the manifest's version unless it is already on record.
	published, err := s.versions.GetByVersion(ctx, def.ID, manifest.Version)
	if err != nil {
		return nil, nil, err
	}
	if published == nil {
		v := &models.AppVersion{
			ID:              uuid.New(),
			AppDefinitionID: def.ID,
			Version:         manifest.Version,
			ManifestURL:     manifest.ManifestURL,
			Changelog:       manifest.Changelog,
			Migrations:      manifest.Migrations,
			DomainTables:    manifest.DomainTables,
			BreakingChanges: manifest.BreakingChanges,
			ReleasedAt:      time.Now(),
		}
		if err := s.versions.Publish(ctx, v); err != nil {
			return nil, nil, err
		}
	}

	s.logger.Info("Registered app from manifest",
		zap.String("app_key", def.Key),
		zap.String("version", manifest.Version),
		zap.Bool("updated_existing", existing != nil))

	return def, result, nil
}

// CheckMigrationNeeded compares installed vs target domain-table sets.
func (s *manifestService) CheckMigrationNeeded(ctx context.Context, tenantID, appKey, targetVersion string) (bool, error) {
	def, err := s.definitions.GetByKey(ctx, appKey)
	if err != nil {
		return false, err
	}

	install, err := s.tenantApps.Get(ctx, tenantID, appKey)
	if err != nil {
		return false, err
	}
	if install == nil {
		return false, fmt.Errorf("app %q: %w", appKey, apperrors.ErrNotInstalled)
	}

	fromTables := def.DomainTables
	if from, err := s.versions.GetByVersion(ctx, def.ID, install.InstalledVersion); err != nil {
		return false, err
	} else if from != nil {
		fromTables = from.DomainTables
	}

	toTables := def.DomainTables
	if targetVersion != "" && targetVersion != VersionLatest {
		to, err := s.versions.GetByVersion(ctx, def.ID, targetVersion)
		if err != nil {
			return false, err
		}
		if to == nil {
			return false, fmt.Errorf("version %q of app %q: %w", targetVersion, appKey, apperrors.ErrNotFound)
		}
		toTables = to.DomainTables
	} else {
		versions, err := s.versions.ListByDefinition(ctx, def.ID)
		if err != nil {
			return false, err
		}
		if len(versions) > 0 {
			toTables = versions[0].DomainTables
		}
	}

	return !sameTableSet(fromTables, toTables), nil
}

// sameTableSet compares two domain-table lists order-independently.
func sameTableSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	set := make(map[string]bool, len(a))
	for _, t := range a {
		set[t] = true
	}
	for _, t := range b {
		if !set[t] {
			return false
		}
	}
	return true
}

// Ensure manifestService implements ManifestService at compile time.
var _ ManifestService = (*manifestService)(nil)
