package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/forvalt-io/forvalt-engine/pkg/apperrors"
	"github.com/forvalt-io/forvalt-engine/pkg/models"
)

func validManifest() *models.AppManifest {
	return &models.AppManifest{
		Key:          "billing-suite",
		Name:         "Billing Suite",
		Version:      "1.0.0",
		AppType:      models.AppTypeAddon,
		DomainTables: []string{"invoices", "payments"},
	}
}

func newManifestSvc(defs *mockDefinitionRepo, versions *mockVersionRepo, tenantApps *mockTenantAppRepo) ManifestService {
	return NewManifestService(defs, versions, tenantApps, zap.NewNop())
}

func allTables() map[string]bool {
	return map[string]bool{"invoices": true, "payments": true}
}

func TestValidateManifest_Valid(t *testing.T) {
	defs := &mockDefinitionRepo{tables: allTables()}
	svc := newManifestSvc(defs, &mockVersionRepo{}, &mockTenantAppRepo{})

	result, err := svc.ValidateManifest(context.Background(), validManifest())
	require.NoError(t, err)
	assert.True(t, result.OK)
	assert.Empty(t, result.Errors)
}

func TestValidateManifest_CollectsAllProblems(t *testing.T) {
	defs := &mockDefinitionRepo{tables: map[string]bool{}}
	svc := newManifestSvc(defs, &mockVersionRepo{}, &mockTenantAppRepo{})

	manifest := &models.AppManifest{
		Key:          "Billing Suite", // not kebab-case
		Version:      "1.0",           // not strict semver
		AppType:      "plugin",
		DomainTables: []string{"missing_table"},
		Actions:      []models.ManifestAction{{Name: ""}},
	}

	result, err := svc.ValidateManifest(context.Background(), manifest)
	require.NoError(t, err)
	require.False(t, result.OK)

	joined := ""
	for _, e := range result.Errors {
		joined += e + "\n"
	}
	assert.Contains(t, joined, "kebab-case")
	assert.Contains(t, joined, "name is required")
	assert.Contains(t, joined, "not strict semver")
	assert.Contains(t, joined, `unknown app_type "plugin"`)
	assert.Contains(t, joined, `domain table "missing_table" does not exist`)
	assert.Contains(t, joined, "action name is required")
}

func TestValidateManifest_EmptyDomainTables(t *testing.T) {
	svc := newManifestSvc(&mockDefinitionRepo{}, &mockVersionRepo{}, &mockTenantAppRepo{})

	manifest := validManifest()
	manifest.DomainTables = nil

	result, err := svc.ValidateManifest(context.Background(), manifest)
	require.NoError(t, err)
	require.False(t, result.OK)
	assert.Contains(t, result.Errors[0], "domain_tables must not be empty")
}

func TestValidateManifest_TableProbeFailure(t *testing.T) {
	defs := &mockDefinitionRepo{tableErr: errors.New("connection refused")}
	svc := newManifestSvc(defs, &mockVersionRepo{}, &mockTenantAppRepo{})

	_, err := svc.ValidateManifest(context.Background(), validManifest())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to probe domain table")
}

func TestRegisterFromManifest_CreatesDefinitionAndVersion(t *testing.T) {
	defs := &mockDefinitionRepo{tables: allTables()}
	versions := &mockVersionRepo{}
	svc := newManifestSvc(defs, versions, &mockTenantAppRepo{})

	manifest := validManifest()
	manifest.Actions = []models.ManifestAction{{Name: "billing_invoice_create"}}

	def, result, err := svc.RegisterFromManifest(context.Background(), manifest)
	require.NoError(t, err)
	require.True(t, result.OK)
	require.NotNil(t, def)

	assert.Equal(t, "billing-suite", def.Key)
	assert.True(t, def.IsActive)
	assert.Contains(t, def.ExtensionPoints, "mcp_actions")
	require.Len(t, versions.versions, 1)
	assert.Equal(t, "1.0.0", versions.versions[0].Version)
}

func TestRegisterFromManifest_UpsertKeepsIdentity(t *testing.T) {
	existing := activeDefinition("billing-suite")
	defs := &mockDefinitionRepo{defs: []*models.AppDefinition{existing}, tables: allTables()}
	versions := &mockVersionRepo{}
	svc := newManifestSvc(defs, versions, &mockTenantAppRepo{})

	def, result, err := svc.RegisterFromManifest(context.Background(), validManifest())
	require.NoError(t, err)
	require.True(t, result.OK)
	assert.Equal(t, existing.ID, def.ID, "re-registration must keep the definition's identity")
}

func TestRegisterFromManifest_ValidationFailureWritesNothing(t *testing.T) {
	defs := &mockDefinitionRepo{tables: map[string]bool{}}
	versions := &mockVersionRepo{}
	svc := newManifestSvc(defs, versions, &mockTenantAppRepo{})

	def, result, err := svc.RegisterFromManifest(context.Background(), validManifest())
	require.NoError(t, err)
	assert.Nil(t, def)
	assert.False(t, result.OK)
	assert.Empty(t, defs.upserts)
	assert.Empty(t, versions.versions)
}

func TestRegisterFromManifest_VersionAlreadyPublished(t *testing.T) {
	existing := activeDefinition("billing-suite")
	defs := &mockDefinitionRepo{defs: []*models.AppDefinition{existing}, tables: allTables()}
	versions := &mockVersionRepo{versions: []*models.AppVersion{
		publishedVersion(existing.ID, "1.0.0", time.Now()),
	}}
	svc := newManifestSvc(defs, versions, &mockTenantAppRepo{})

	_, result, err := svc.RegisterFromManifest(context.Background(), validManifest())
	require.NoError(t, err)
	require.True(t, result.OK)
	assert.Len(t, versions.versions, 1, "an already-published version must not be re-published")
}

func TestRegisterFromManifest_DefaultsAppType(t *testing.T) {
	defs := &mockDefinitionRepo{tables: allTables()}
	svc := newManifestSvc(defs, &mockVersionRepo{}, &mockTenantAppRepo{})

	manifest := validManifest()
	manifest.AppType = ""

	def, _, err := svc.RegisterFromManifest(context.Background(), manifest)
	require.NoError(t, err)
	assert.Equal(t, models.AppTypeAddon, def.AppType)
}

func TestCheckMigrationNeeded(t *testing.T) {
	def := activeDefinition("billing-suite")
	def.DomainTables = []string{"invoices"}
	defs := &mockDefinitionRepo{defs: []*models.AppDefinition{def}}

	installed := publishedVersion(def.ID, "1.0.0", time.Now().Add(-time.Hour))
	installed.DomainTables = []string{"invoices"}
	target := publishedVersion(def.ID, "2.0.0", time.Now())
	target.DomainTables = []string{"invoices", "payments"}
	versions := &mockVersionRepo{versions: []*models.AppVersion{target, installed}}

	tenantApps := &mockTenantAppRepo{installs: []*models.TenantAppInstall{
		{TenantID: "tenant-1", Key: "billing-suite", InstalledVersion: "1.0.0", IsActive: true},
	}}
	svc := newManifestSvc(defs, versions, tenantApps)

	t.Run("table set changed", func(t *testing.T) {
		needed, err := svc.CheckMigrationNeeded(context.Background(), "tenant-1", "billing-suite", "2.0.0")
		require.NoError(t, err)
		assert.True(t, needed)
	})

	t.Run("same table set", func(t *testing.T) {
		needed, err := svc.CheckMigrationNeeded(context.Background(), "tenant-1", "billing-suite", "1.0.0")
		require.NoError(t, err)
		assert.False(t, needed)
	})

	t.Run("latest resolves newest version", func(t *testing.T) {
		needed, err := svc.CheckMigrationNeeded(context.Background(), "tenant-1", "billing-suite", "latest")
		require.NoError(t, err)
		assert.True(t, needed)
	})

	t.Run("unknown target version", func(t *testing.T) {
		_, err := svc.CheckMigrationNeeded(context.Background(), "tenant-1", "billing-suite", "9.9.9")
		assert.ErrorIs(t, err, apperrors.ErrNotFound)
	})

	t.Run("not installed", func(t *testing.T) {
		_, err := svc.CheckMigrationNeeded(context.Background(), "tenant-2", "billing-suite", "2.0.0")
		assert.ErrorIs(t, err, apperrors.ErrNotInstalled)
	})
}

func TestSameTableSet_OrderIndependent(t *testing.T) {
	assert.True(t, sameTableSet([]string{"a", "b"}, []string{"b", "a"}))
	assert.False(t, sameTableSet([]string{"a"}, []string{"a", "b"}))
	assert.False(t, sameTableSet([]string{"a", "b"}, []string{"a", "c"}))
	assert.True(t, sameTableSet(nil, nil))
}
