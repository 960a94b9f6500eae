package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/forvalt-io/forvalt-engine/pkg/apperrors"
	"github.com/forvalt-io/forvalt-engine/pkg/models"
	"github.com/forvalt-io/forvalt-engine/pkg/repositories"
)

// mockDefinitionRepo implements repositories.DefinitionRepository for testing.
type mockDefinitionRepo struct {
	defs      []*models.AppDefinition
	matrices  map[uuid.UUID]*models.CompatibilityMatrix
	tables    map[string]bool
	upserts   []*models.AppDefinition
	getErr    error
	listErr   error
	upsertErr error
	matrixErr error
	tableErr  error
}

func (m *mockDefinitionRepo) List(_ context.Context, filter repositories.DefinitionFilter) ([]*models.AppDefinition, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}

	var result []*models.AppDefinition
	for _, d := range m.defs {
		if filter.AppType != "" && d.AppType != filter.AppType {
			continue
		}
		if filter.IsActive != nil && d.IsActive != *filter.IsActive {
			continue
		}
		result = append(result, d)
	}
	return result, nil
}

func (m *mockDefinitionRepo) GetByKey(_ context.Context, key string) (*models.AppDefinition, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	for _, d := range m.defs {
		if d.Key == key {
			return d, nil
		}
	}
	return nil, fmt.Errorf("app definition %q: %w", key, apperrors.ErrNotFound)
}

func (m *mockDefinitionRepo) Upsert(_ context.Context, def *models.AppDefinition) error {
	if m.upsertErr != nil {
		return m.upsertErr
	}
	m.upserts = append(m.upserts, def)
	for i, d := range m.defs {
		if d.Key == def.Key {
			m.defs[i] = def
			return nil
		}
	}
	m.defs = append(m.defs, def)
	return nil
}

func (m *mockDefinitionRepo) Deactivate(_ context.Context, key string) error {
	for _, d := range m.defs {
		if d.Key == key {
			d.IsActive = false
			return nil
		}
	}
	return fmt.Errorf("app definition %q: %w", key, apperrors.ErrNotFound)
}

func (m *mockDefinitionRepo) GetCompatibilityMatrix(_ context.Context, defID uuid.UUID) (*models.CompatibilityMatrix, error) {
	if m.matrixErr != nil {
		return nil, m.matrixErr
	}
	return m.matrices[defID], nil
}

func (m *mockDefinitionRepo) TableExists(_ context.Context, name string) (bool, error) {
	if m.tableErr != nil {
		return false, m.tableErr
	}
	return m.tables[name], nil
}

// mockVersionRepo implements repositories.VersionRepository for testing.
// Versions are held newest-first, matching the repository's ordering contract.
type mockVersionRepo struct {
	versions   []*models.AppVersion
	publishErr error
	listErr    error
	getErr     error
}

func (m *mockVersionRepo) Publish(_ context.Context, v *models.AppVersion) error {
	if m.publishErr != nil {
		return m.publishErr
	}
	for _, existing := range m.versions {
		if existing.AppDefinitionID == v.AppDefinitionID && existing.Version == v.Version {
			return fmt.Errorf("version %s already published: %w", v.Version, apperrors.ErrConflict)
		}
	}
	m.versions = append([]*models.AppVersion{v}, m.versions...)
	return nil
}

func (m *mockVersionRepo) ListByDefinition(_ context.Context, defID uuid.UUID) ([]*models.AppVersion, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	var result []*models.AppVersion
	for _, v := range m.versions {
		if v.AppDefinitionID == defID {
			result = append(result, v)
		}
	}
	return result, nil
}

func (m *mockVersionRepo) GetByVersion(_ context.Context, defID uuid.UUID, version string) (*models.AppVersion, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	for _, v := range m.versions {
		if v.AppDefinitionID == defID && v.Version == version {
			return v, nil
		}
	}
	return nil, nil
}

// mockTenantAppRepo implements repositories.TenantAppRepository for testing.
type mockTenantAppRepo struct {
	installs    []*models.TenantAppInstall
	definitions map[uuid.UUID]*models.AppDefinition
	insertErr   error
	updateErr   error
	listErr     error
	getErr      error
}

func (m *mockTenantAppRepo) find(tenantID, key string) *models.TenantAppInstall {
	for _, i := range m.installs {
		if i.TenantID == tenantID && i.Key == key {
			return i
		}
	}
	return nil
}

func (m *mockTenantAppRepo) List(_ context.Context, tenantID string) ([]*models.InstalledApp, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	var result []*models.InstalledApp
	for _, i := range m.installs {
		if i.TenantID != tenantID || !i.IsActive {
			continue
		}
		app := &models.InstalledApp{Install: *i}
		if def := m.definitions[i.AppDefinitionID]; def != nil {
			app.Definition = *def
		}
		result = append(result, app)
	}
	return result, nil
}

func (m *mockTenantAppRepo) Get(_ context.Context, tenantID, key string) (*models.TenantAppInstall, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	install := m.find(tenantID, key)
	if install == nil {
		return nil, nil
	}
	return install, nil
}

func (m *mockTenantAppRepo) GetWithDefinition(_ context.Context, tenantID, key string) (*models.InstalledApp, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	install := m.find(tenantID, key)
	if install == nil {
		return nil, nil
	}
	app := &models.InstalledApp{Install: *install}
	if def := m.definitions[install.AppDefinitionID]; def != nil {
		app.Definition = *def
	}
	return app, nil
}

func (m *mockTenantAppRepo) ListActive(_ context.Context, tenantID string) ([]*models.TenantAppInstall, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	var result []*models.TenantAppInstall
	for _, i := range m.installs {
		if i.TenantID == tenantID && i.IsActive {
			result = append(result, i)
		}
	}
	return result, nil
}

func (m *mockTenantAppRepo) Insert(_ context.Context, install *models.TenantAppInstall) error {
	if m.insertErr != nil {
		return m.insertErr
	}
	if existing := m.find(install.TenantID, install.Key); existing != nil {
		if existing.IsActive {
			return apperrors.ErrAlreadyInstalled
		}
		// Reactivate the disabled row in place, keeping its ID.
		id := existing.ID
		*existing = *install
		existing.ID = id
		return nil
	}
	m.installs = append(m.installs, install)
	return nil
}

func (m *mockTenantAppRepo) UpdateVersion(_ context.Context, tenantID, key, version, status, updatedBy string) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	install := m.find(tenantID, key)
	if install == nil || !install.IsActive {
		return apperrors.ErrNotInstalled
	}
	install.InstalledVersion = version
	install.InstallStatus = status
	install.UpdatedBy = updatedBy
	return nil
}

func (m *mockTenantAppRepo) UpdateConfig(_ context.Context, tenantID, key string, config models.AppConfig) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	install := m.find(tenantID, key)
	if install == nil || !install.IsActive {
		return apperrors.ErrNotInstalled
	}
	install.Config = config
	return nil
}

func (m *mockTenantAppRepo) UpdateOverrides(_ context.Context, tenantID, key string, overrides models.AppOverrides) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	install := m.find(tenantID, key)
	if install == nil || !install.IsActive {
		return apperrors.ErrNotInstalled
	}
	install.Overrides = overrides
	return nil
}

func (m *mockTenantAppRepo) UpdateChannel(_ context.Context, tenantID, key, channel string) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	install := m.find(tenantID, key)
	if install == nil || !install.IsActive {
		return apperrors.ErrNotInstalled
	}
	install.Channel = channel
	return nil
}

func (m *mockTenantAppRepo) Disable(_ context.Context, tenantID, key string) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	install := m.find(tenantID, key)
	if install == nil || !install.IsActive {
		return apperrors.ErrNotInstalled
	}
	install.IsActive = false
	install.InstallStatus = models.InstallStatusDisabled
	return nil
}

// mockDeploymentRepo implements repositories.DeploymentRepository for testing.
type mockDeploymentRepo struct {
	promoteAffected int64
	promoteErr      error
	rollbackCalls   []rollbackCall
	rollbackErr     error
	canaryCalls     []canaryCall
	canaryErr       error
	status          *models.DeploymentStatus
	statusErr       error
}

type rollbackCall struct {
	defID     uuid.UUID
	version   string
	channel   string
	tenantIDs []string
}

type canaryCall struct {
	defID     uuid.UUID
	version   string
	tenantIDs []string
}

func (m *mockDeploymentRepo) PromoteStable(_ context.Context, defID uuid.UUID, version string) (int64, error) {
	if m.promoteErr != nil {
		return 0, m.promoteErr
	}
	return m.promoteAffected, nil
}

func (m *mockDeploymentRepo) Rollback(_ context.Context, defID uuid.UUID, version, channel string, tenantIDs []string) (int64, error) {
	if m.rollbackErr != nil {
		return 0, m.rollbackErr
	}
	m.rollbackCalls = append(m.rollbackCalls, rollbackCall{defID, version, channel, tenantIDs})
	return int64(len(tenantIDs)), nil
}

func (m *mockDeploymentRepo) DeployCanary(_ context.Context, defID uuid.UUID, version string, tenantIDs []string) (int64, error) {
	if m.canaryErr != nil {
		return 0, m.canaryErr
	}
	m.canaryCalls = append(m.canaryCalls, canaryCall{defID, version, tenantIDs})
	return int64(len(tenantIDs)), nil
}

func (m *mockDeploymentRepo) StatusCounts(_ context.Context, defID uuid.UUID, appKey string) (*models.DeploymentStatus, error) {
	if m.statusErr != nil {
		return nil, m.statusErr
	}
	return m.status, nil
}

// mockExtensionRepo implements repositories.ExtensionRepository for testing.
type mockExtensionRepo struct {
	extensions []*models.TenantAppExtension
	listErr    error
	getErr     error
}

func (m *mockExtensionRepo) ListActive(_ context.Context, tenantID string, defID uuid.UUID) ([]*models.TenantAppExtension, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	var result []*models.TenantAppExtension
	for _, e := range m.extensions {
		if e.TenantID == tenantID && e.AppDefinitionID == defID && e.IsActive {
			result = append(result, e)
		}
	}
	return result, nil
}

func (m *mockExtensionRepo) GetActive(_ context.Context, tenantID string, defID uuid.UUID, key string) (*models.TenantAppExtension, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	for _, e := range m.extensions {
		if e.TenantID == tenantID && e.AppDefinitionID == defID && e.ExtensionKey == key && e.IsActive {
			return e, nil
		}
	}
	return nil, nil
}

// mockActionRegistry implements ActionRegistry for testing.
type mockActionRegistry struct {
	registered  []string
	disabled    []string
	actions     map[string]*RegisteredAction
	registerErr error
	panics      bool
}

func (m *mockActionRegistry) RegisterAppActions(tenantID string, def *models.AppDefinition) error {
	if m.panics {
		panic("registry unavailable")
	}
	if m.registerErr != nil {
		return m.registerErr
	}
	m.registered = append(m.registered, tenantID+"/"+def.Key)
	return nil
}

func (m *mockActionRegistry) DisableAppActions(tenantID, appKey string) {
	m.disabled = append(m.disabled, tenantID+"/"+appKey)
}

func (m *mockActionRegistry) Lookup(tenantID, actionName string) (*RegisteredAction, bool) {
	action, ok := m.actions[tenantID+"/"+actionName]
	return action, ok
}

// stubCompatibility implements CompatibilityService with a fixed verdict.
type stubCompatibility struct {
	check *models.CompatibilityCheck
}

func (s *stubCompatibility) Preflight(_ context.Context, _, _, _ string) *models.CompatibilityCheck {
	return s.check
}

func (s *stubCompatibility) CanUpgrade(_ context.Context, _, _, _, _ string) *models.CompatibilityCheck {
	return s.check
}

var (
	_ repositories.DefinitionRepository = (*mockDefinitionRepo)(nil)
	_ repositories.VersionRepository    = (*mockVersionRepo)(nil)
	_ repositories.TenantAppRepository  = (*mockTenantAppRepo)(nil)
	_ repositories.DeploymentRepository = (*mockDeploymentRepo)(nil)
	_ repositories.ExtensionRepository  = (*mockExtensionRepo)(nil)
	_ ActionRegistry                    = (*mockActionRegistry)(nil)
	_ CompatibilityService              = (*stubCompatibility)(nil)
)
