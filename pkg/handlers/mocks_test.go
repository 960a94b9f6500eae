package handlers

import (
	"context"

	"github.com/google/uuid"

	"github.com/forvalt-io/forvalt-engine/pkg/models"
	"github.com/forvalt-io/forvalt-engine/pkg/repositories"
	"github.com/forvalt-io/forvalt-engine/pkg/services"
)

// mockRegistryService implements services.RegistryService for testing.
type mockRegistryService struct {
	defs          []*models.AppDefinition
	versions      []*models.AppVersion
	published     *models.AppVersion
	listErr       error
	getErr        error
	publishErr    error
	deactivateErr error
}

func (m *mockRegistryService) ListDefinitions(_ context.Context, _ repositories.DefinitionFilter) ([]*models.AppDefinition, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	return m.defs, nil
}

func (m *mockRegistryService) GetDefinitionByKey(_ context.Context, key string) (*models.AppDefinition, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	for _, d := range m.defs {
		if d.Key == key {
			return d, nil
		}
	}
	return nil, m.getErr
}

func (m *mockRegistryService) PublishVersion(_ context.Context, appKey, version string, _ models.VersionManifest) (*models.AppVersion, error) {
	if m.publishErr != nil {
		return nil, m.publishErr
	}
	m.published = &models.AppVersion{ID: uuid.New(), Version: version}
	return m.published, nil
}

func (m *mockRegistryService) ListVersions(_ context.Context, _ string) ([]*models.AppVersion, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	return m.versions, nil
}

func (m *mockRegistryService) DeactivateDefinition(_ context.Context, _ string) error {
	return m.deactivateErr
}

// mockManifestService implements services.ManifestService for testing.
type mockManifestService struct {
	def             *models.AppDefinition
	result          *models.ValidationResult
	migrationNeeded bool
	validateErr     error
	registerErr     error
	migrationErr    error
	lastManifest    *models.AppManifest
}

func (m *mockManifestService) ValidateManifest(_ context.Context, manifest *models.AppManifest) (*models.ValidationResult, error) {
	if m.validateErr != nil {
		return nil, m.validateErr
	}
	m.lastManifest = manifest
	return m.result, nil
}

func (m *mockManifestService) RegisterFromManifest(_ context.Context, manifest *models.AppManifest) (*models.AppDefinition, *models.ValidationResult, error) {
	if m.registerErr != nil {
		return nil, nil, m.registerErr
	}
	m.lastManifest = manifest
	if !m.result.OK {
		return nil, m.result, nil
	}
	return m.def, m.result, nil
}

func (m *mockManifestService) CheckMigrationNeeded(_ context.Context, _, _, _ string) (bool, error) {
	if m.migrationErr != nil {
		return false, m.migrationErr
	}
	return m.migrationNeeded, nil
}

// mockTenantAppService implements services.TenantAppService for testing.
type mockTenantAppService struct {
	apps         []*models.InstalledApp
	install      *models.TenantAppInstall
	installErr   error
	updateErr    error
	configErr    error
	channelErr   error
	listErr      error
	getErr       error
	uninstallErr error
	lastOpts     services.InstallOptions
}

func (m *mockTenantAppService) Install(_ context.Context, _, _ string, opts services.InstallOptions, _ string) (*models.TenantAppInstall, error) {
	if m.installErr != nil {
		return nil, m.installErr
	}
	m.lastOpts = opts
	return m.install, nil
}

func (m *mockTenantAppService) Update(_ context.Context, _, _, _, _ string) error {
	return m.updateErr
}

func (m *mockTenantAppService) SetConfig(_ context.Context, _, _ string, _ models.AppConfig) error {
	return m.configErr
}

func (m *mockTenantAppService) SetOverrides(_ context.Context, _, _ string, _ models.AppOverrides) error {
	return m.configErr
}

func (m *mockTenantAppService) SetChannel(_ context.Context, _, _, _ string) error {
	return m.channelErr
}

func (m *mockTenantAppService) ListInstalled(_ context.Context, _ string) ([]*models.InstalledApp, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	return m.apps, nil
}

func (m *mockTenantAppService) GetInstalled(_ context.Context, _, _ string) (*models.InstalledApp, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	if len(m.apps) > 0 {
		return m.apps[0], nil
	}
	return nil, nil
}

func (m *mockTenantAppService) Uninstall(_ context.Context, _, _ string) error {
	return m.uninstallErr
}

// mockCompatibilityService implements services.CompatibilityService for testing.
type mockCompatibilityService struct {
	check          *models.CompatibilityCheck
	canUpgradeUsed bool
}

func (m *mockCompatibilityService) Preflight(_ context.Context, _, _, _ string) *models.CompatibilityCheck {
	return m.check
}

func (m *mockCompatibilityService) CanUpgrade(_ context.Context, _, _, _, _ string) *models.CompatibilityCheck {
	m.canUpgradeUsed = true
	return m.check
}

// mockDeploymentService implements services.DeploymentService for testing.
type mockDeploymentService struct {
	affected   int64
	status     *models.DeploymentStatus
	promoteErr error
	rollbackEr error
	canaryErr  error
	statusErr  error
}

func (m *mockDeploymentService) PromoteToStable(_ context.Context, _, _ string) (int64, error) {
	if m.promoteErr != nil {
		return 0, m.promoteErr
	}
	return m.affected, nil
}

func (m *mockDeploymentService) Rollback(_ context.Context, _, _ string, _ services.RollbackOptions) (int64, error) {
	if m.rollbackEr != nil {
		return 0, m.rollbackEr
	}
	return m.affected, nil
}

func (m *mockDeploymentService) DeployToCanary(_ context.Context, _, _ string, _ []string) (int64, error) {
	if m.canaryErr != nil {
		return 0, m.canaryErr
	}
	return m.affected, nil
}

func (m *mockDeploymentService) GetDeploymentStatus(_ context.Context, _ string) (*models.DeploymentStatus, error) {
	if m.statusErr != nil {
		return nil, m.statusErr
	}
	return m.status, nil
}

// mockRuntimeService implements services.RuntimeService for testing.
type mockRuntimeService struct {
	appCtx *models.AppContext
	ext    *models.TenantAppExtension
	ctxErr error
	extErr error
}

func (m *mockRuntimeService) LoadAppContext(_ context.Context, _, _ string) (*models.AppContext, error) {
	if m.ctxErr != nil {
		return nil, m.ctxErr
	}
	return m.appCtx, nil
}

func (m *mockRuntimeService) LoadExtension(_ context.Context, _ string, _ uuid.UUID, _ string) (*models.TenantAppExtension, error) {
	if m.extErr != nil {
		return nil, m.extErr
	}
	return m.ext, nil
}

// mockActionService implements services.McpActionService for testing.
type mockActionService struct {
	result *services.ActionResult
	err    error
}

func (m *mockActionService) Execute(_ context.Context, _, _ string, _ map[string]any, _ string) (*services.ActionResult, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.result, nil
}

var (
	_ services.RegistryService      = (*mockRegistryService)(nil)
	_ services.ManifestService      = (*mockManifestService)(nil)
	_ services.TenantAppService     = (*mockTenantAppService)(nil)
	_ services.CompatibilityService = (*mockCompatibilityService)(nil)
	_ services.DeploymentService    = (*mockDeploymentService)(nil)
	_ services.RuntimeService       = (*mockRuntimeService)(nil)
	_ services.McpActionService     = (*mockActionService)(nil)
)
