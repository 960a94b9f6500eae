package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/forvalt-io/forvalt-engine/pkg/apperrors"
	"github.com/forvalt-io/forvalt-engine/pkg/services"
)

func actionRequest(body string) *http.Request {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(http.MethodPost, "/api/tenants/tenant-1/actions/billing_invoice_create", nil)
	} else {
		req = httptest.NewRequest(http.MethodPost, "/api/tenants/tenant-1/actions/billing_invoice_create", strings.NewReader(body))
	}
	req.SetPathValue("tid", "tenant-1")
	req.SetPathValue("action", "billing_invoice_create")
	return req
}

func TestActionHandler_Execute(t *testing.T) {
	svc := &mockActionService{result: &services.ActionResult{
		Action:     "billing_invoice_create",
		AppKey:     "billing-suite",
		TenantID:   "tenant-1",
		Status:     "accepted",
		ExecutedAt: time.Now(),
	}}
	handler := NewActionHandler(svc, zap.NewNop())

	rec := httptest.NewRecorder()
	handler.Execute(rec, actionRequest(`{"payload":{"amount":125.5}}`))

	assert.Equal(t, http.StatusOK, rec.Code)

	var resp ApiResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	data := resp.Data.(map[string]any)
	assert.Equal(t, "accepted", data["status"])
	assert.Equal(t, "billing-suite", data["app_key"])
}

func TestActionHandler_Execute_UnknownAction(t *testing.T) {
	svc := &mockActionService{err: apperrors.ErrNotFound}
	handler := NewActionHandler(svc, zap.NewNop())

	rec := httptest.NewRecorder()
	handler.Execute(rec, actionRequest(""))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestActionHandler_Execute_InstallNotActive(t *testing.T) {
	svc := &mockActionService{err: apperrors.ErrInstallNotActive}
	handler := NewActionHandler(svc, zap.NewNop())

	rec := httptest.NewRecorder()
	handler.Execute(rec, actionRequest(""))

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestActionHandler_Execute_InvalidBody(t *testing.T) {
	handler := NewActionHandler(&mockActionService{}, zap.NewNop())

	rec := httptest.NewRecorder()
	handler.Execute(rec, actionRequest(`{not json`))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
