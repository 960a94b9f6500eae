package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/forvalt-io/forvalt-engine/pkg/apperrors"
	"github.com/forvalt-io/forvalt-engine/pkg/models"
)

func newTenantAppHandler(tenantApps *mockTenantAppService, compat *mockCompatibilityService, manifest *mockManifestService) *TenantAppHandler {
	if compat == nil {
		compat = &mockCompatibilityService{check: models.NewCompatibilityCheck()}
	}
	if manifest == nil {
		manifest = &mockManifestService{}
	}
	return NewTenantAppHandler(tenantApps, compat, manifest, zap.NewNop())
}

func tenantRequest(method, path, body string) *http.Request {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	req.SetPathValue("tid", "tenant-1")
	req.SetPathValue("key", "billing-suite")
	return req
}

func TestTenantAppHandler_Install_EmptyBody(t *testing.T) {
	tenantApps := &mockTenantAppService{install: &models.TenantAppInstall{
		ID:               uuid.New(),
		TenantID:         "tenant-1",
		Key:              "billing-suite",
		InstalledVersion: "2.0.0",
	}}
	handler := newTenantAppHandler(tenantApps, nil, nil)

	rec := httptest.NewRecorder()
	handler.Install(rec, tenantRequest(http.MethodPost, "/api/tenants/tenant-1/apps/billing-suite", ""))

	assert.Equal(t, http.StatusCreated, rec.Code)
	// An empty body means "install latest on stable".
	assert.Empty(t, tenantApps.lastOpts.Version)
	assert.Empty(t, tenantApps.lastOpts.Channel)
}

func TestTenantAppHandler_Install_WithOptions(t *testing.T) {
	tenantApps := &mockTenantAppService{install: &models.TenantAppInstall{ID: uuid.New()}}
	handler := newTenantAppHandler(tenantApps, nil, nil)

	body := `{"version":"1.5.0","channel":"canary","config":{"features":{"invoicing":true}}}`
	rec := httptest.NewRecorder()
	handler.Install(rec, tenantRequest(http.MethodPost, "/api/tenants/tenant-1/apps/billing-suite", body))

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "1.5.0", tenantApps.lastOpts.Version)
	assert.Equal(t, "canary", tenantApps.lastOpts.Channel)
	require.NotNil(t, tenantApps.lastOpts.Config)
	assert.Equal(t, true, tenantApps.lastOpts.Config.Features["invoicing"])
}

func TestTenantAppHandler_Install_AlreadyInstalled(t *testing.T) {
	tenantApps := &mockTenantAppService{installErr: apperrors.ErrAlreadyInstalled}
	handler := newTenantAppHandler(tenantApps, nil, nil)

	rec := httptest.NewRecorder()
	handler.Install(rec, tenantRequest(http.MethodPost, "/api/tenants/tenant-1/apps/billing-suite", ""))

	assert.Equal(t, http.StatusConflict, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "already_installed", body["error"])
}

func TestTenantAppHandler_Get_NotInstalled(t *testing.T) {
	tenantApps := &mockTenantAppService{getErr: apperrors.ErrNotInstalled}
	handler := newTenantAppHandler(tenantApps, nil, nil)

	rec := httptest.NewRecorder()
	handler.Get(rec, tenantRequest(http.MethodGet, "/api/tenants/tenant-1/apps/billing-suite", ""))

	assert.Equal(t, http.StatusNotFound, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "not_installed", body["error"])
}

func TestTenantAppHandler_UpdateVersion_MissingVersion(t *testing.T) {
	handler := newTenantAppHandler(&mockTenantAppService{}, nil, nil)

	rec := httptest.NewRecorder()
	handler.UpdateVersion(rec, tenantRequest(http.MethodPut, "/api/tenants/tenant-1/apps/billing-suite/version", `{}`))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTenantAppHandler_UpdateVersion(t *testing.T) {
	handler := newTenantAppHandler(&mockTenantAppService{}, nil, nil)

	rec := httptest.NewRecorder()
	handler.UpdateVersion(rec, tenantRequest(http.MethodPut, "/api/tenants/tenant-1/apps/billing-suite/version", `{"version":"2.0.0"}`))

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestTenantAppHandler_SetChannel_MissingChannel(t *testing.T) {
	handler := newTenantAppHandler(&mockTenantAppService{}, nil, nil)

	rec := httptest.NewRecorder()
	handler.SetChannel(rec, tenantRequest(http.MethodPut, "/api/tenants/tenant-1/apps/billing-suite/channel", `{}`))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTenantAppHandler_Uninstall(t *testing.T) {
	handler := newTenantAppHandler(&mockTenantAppService{}, nil, nil)

	rec := httptest.NewRecorder()
	handler.Uninstall(rec, tenantRequest(http.MethodDelete, "/api/tenants/tenant-1/apps/billing-suite", ""))

	assert.Equal(t, http.StatusOK, rec.Code)

	var resp ApiResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	data := resp.Data.(map[string]any)
	assert.Equal(t, "uninstalled", data["status"])
}

func TestTenantAppHandler_Preflight_FailingCheckIs200(t *testing.T) {
	check := models.NewCompatibilityCheck()
	check.AddReason("incompatible with installed app legacy-billing@3.1.0")
	compat := &mockCompatibilityService{check: check}
	handler := newTenantAppHandler(&mockTenantAppService{}, compat, nil)

	rec := httptest.NewRecorder()
	handler.Preflight(rec, tenantRequest(http.MethodPost, "/api/tenants/tenant-1/apps/billing-suite/preflight", `{"version":"2.0.0"}`))

	assert.Equal(t, http.StatusOK, rec.Code)

	var resp ApiResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	data := resp.Data.(map[string]any)
	assert.Equal(t, false, data["ok"])
	assert.False(t, compat.canUpgradeUsed)
}

func TestTenantAppHandler_Preflight_FromVersionUsesUpgradePath(t *testing.T) {
	compat := &mockCompatibilityService{check: models.NewCompatibilityCheck()}
	handler := newTenantAppHandler(&mockTenantAppService{}, compat, nil)

	rec := httptest.NewRecorder()
	handler.Preflight(rec, tenantRequest(http.MethodPost, "/api/tenants/tenant-1/apps/billing-suite/preflight",
		`{"version":"2.0.0","from_version":"1.0.0"}`))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, compat.canUpgradeUsed)
}

func TestTenantAppHandler_MigrationCheck(t *testing.T) {
	manifest := &mockManifestService{migrationNeeded: true}
	handler := newTenantAppHandler(&mockTenantAppService{}, nil, manifest)

	rec := httptest.NewRecorder()
	handler.MigrationCheck(rec, tenantRequest(http.MethodGet, "/api/tenants/tenant-1/apps/billing-suite/migration-check?version=2.0.0", ""))

	assert.Equal(t, http.StatusOK, rec.Code)

	var resp ApiResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	data := resp.Data.(map[string]any)
	assert.Equal(t, true, data["migration_needed"])
}

func TestTenantAppHandler_MissingPathParams(t *testing.T) {
	handler := newTenantAppHandler(&mockTenantAppService{}, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/tenants//apps/", nil)
	rec := httptest.NewRecorder()
	handler.Get(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
