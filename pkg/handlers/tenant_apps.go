package handlers

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/forvalt-io/forvalt-engine/pkg/auth"
	"github.com/forvalt-io/forvalt-engine/pkg/models"
	"github.com/forvalt-io/forvalt-engine/pkg/services"
)

// TenantAppHandler handles the tenant install lifecycle over HTTP. Every
// route validates the path tenant ID against the token and runs under a
// tenant-scoped database connection.
type TenantAppHandler struct {
	tenantApps    services.TenantAppService
	compatibility services.CompatibilityService
	manifest      services.ManifestService
	logger        *zap.Logger
}

// NewTenantAppHandler creates a new tenant app handler.
func NewTenantAppHandler(
	tenantApps services.TenantAppService,
	compatibility services.CompatibilityService,
	manifest services.ManifestService,
	logger *zap.Logger,
) *TenantAppHandler {
	return &TenantAppHandler{
		tenantApps:    tenantApps,
		compatibility: compatibility,
		manifest:      manifest,
		logger:        logger,
	}
}

// RegisterRoutes registers the tenant app handler's routes on the given mux.
func (h *TenantAppHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware, tenantMiddleware TenantMiddleware) {
	base := "/api/tenants/{tid}/apps"
	guard := func(next http.HandlerFunc) http.HandlerFunc {
		return authMiddleware.RequireAuthWithPathValidation("tid")(tenantMiddleware(next))
	}

	mux.HandleFunc("GET "+base, guard(h.List))
	mux.HandleFunc("GET "+base+"/{key}", guard(h.Get))
	mux.HandleFunc("POST "+base+"/{key}", guard(h.Install))
	mux.HandleFunc("PUT "+base+"/{key}/version", guard(h.UpdateVersion))
	mux.HandleFunc("PUT "+base+"/{key}/config", guard(h.SetConfig))
	mux.HandleFunc("PUT "+base+"/{key}/overrides", guard(h.SetOverrides))
	mux.HandleFunc("PUT "+base+"/{key}/channel", guard(h.SetChannel))
	mux.HandleFunc("DELETE "+base+"/{key}", guard(h.Uninstall))
	mux.HandleFunc("POST "+base+"/{key}/preflight", guard(h.Preflight))
	mux.HandleFunc("GET "+base+"/{key}/migration-check", guard(h.MigrationCheck))
}

// parseTenantAndKey extracts the tenant ID and app key path parameters.
func (h *TenantAppHandler) parseTenantAndKey(w http.ResponseWriter, r *http.Request) (string, string, bool) {
	tenantID := r.PathValue("tid")
	key := r.PathValue("key")
	if tenantID == "" || key == "" {
		if err := ErrorResponse(w, http.StatusBadRequest, "missing_parameters", "Tenant ID and app key are required"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return "", "", false
	}
	return tenantID, key, true
}

// List handles GET /api/tenants/{tid}/apps
func (h *TenantAppHandler) List(w http.ResponseWriter, r *http.Request) {
	tenantID := r.PathValue("tid")

	apps, err := h.tenantApps.ListInstalled(r.Context(), tenantID)
	if err != nil {
		h.logger.Error("Failed to list installed apps",
			zap.String("tenant_id", tenantID),
			zap.Error(err))
		ServiceError(w, h.logger, err, "Failed to list installed apps")
		return
	}

	response := ApiResponse{Success: true, Data: map[string]any{"apps": apps}}
	if err := WriteJSON(w, http.StatusOK, response); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Get handles GET /api/tenants/{tid}/apps/{key}
func (h *TenantAppHandler) Get(w http.ResponseWriter, r *http.Request) {
	tenantID, key, ok := h.parseTenantAndKey(w, r)
	if !ok {
		return
	}

	app, err := h.tenantApps.GetInstalled(r.Context(), tenantID, key)
	if err != nil {
		h.logger.Error("Failed to get installed app",
			zap.String("tenant_id", tenantID),
			zap.String("app_key", key),
			zap.Error(err))
		ServiceError(w, h.logger, err, "Failed to get installed app")
		return
	}

	response := ApiResponse{Success: true, Data: app}
	if err := WriteJSON(w, http.StatusOK, response); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// InstallRequest is the request body for POST /api/tenants/{tid}/apps/{key}.
type InstallRequest struct {
	Version string            `json:"version,omitempty"`
	Channel string            `json:"channel,omitempty"`
	Config  *models.AppConfig `json:"config,omitempty"`
}

// Install handles POST /api/tenants/{tid}/apps/{key}
func (h *TenantAppHandler) Install(w http.ResponseWriter, r *http.Request) {
	tenantID, key, ok := h.parseTenantAndKey(w, r)
	if !ok {
		return
	}

	var req InstallRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			if err := ErrorResponse(w, http.StatusBadRequest, "invalid_request", "Invalid request body"); err != nil {
				h.logger.Error("Failed to write error response", zap.Error(err))
			}
			return
		}
	}

	userID := auth.GetUserIDFromContext(r.Context())

	install, err := h.tenantApps.Install(r.Context(), tenantID, key, services.InstallOptions{
		Version: req.Version,
		Channel: req.Channel,
		Config:  req.Config,
	}, userID)
	if err != nil {
		h.logger.Error("Failed to install app",
			zap.String("tenant_id", tenantID),
			zap.String("app_key", key),
			zap.Error(err))
		ServiceError(w, h.logger, err, "Failed to install app")
		return
	}

	response := ApiResponse{Success: true, Data: install}
	if err := WriteJSON(w, http.StatusCreated, response); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// UpdateVersionRequest is the request body for PUT .../apps/{key}/version.
type UpdateVersionRequest struct {
	Version string `json:"version"`
}

// UpdateVersion handles PUT /api/tenants/{tid}/apps/{key}/version
func (h *TenantAppHandler) UpdateVersion(w http.ResponseWriter, r *http.Request) {
	tenantID, key, ok := h.parseTenantAndKey(w, r)
	if !ok {
		return
	}

	var req UpdateVersionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Version == "" {
		if err := ErrorResponse(w, http.StatusBadRequest, "missing_version", "version field is required"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	userID := auth.GetUserIDFromContext(r.Context())

	if err := h.tenantApps.Update(r.Context(), tenantID, key, req.Version, userID); err != nil {
		h.logger.Error("Failed to update app",
			zap.String("tenant_id", tenantID),
			zap.String("app_key", key),
			zap.String("version", req.Version),
			zap.Error(err))
		ServiceError(w, h.logger, err, "Failed to update app")
		return
	}

	response := ApiResponse{Success: true, Data: map[string]string{"status": "updated", "version": req.Version}}
	if err := WriteJSON(w, http.StatusOK, response); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// SetConfigRequest is the request body for PUT .../apps/{key}/config.
type SetConfigRequest struct {
	Config models.AppConfig `json:"config"`
}

// SetConfig handles PUT /api/tenants/{tid}/apps/{key}/config
func (h *TenantAppHandler) SetConfig(w http.ResponseWriter, r *http.Request) {
	tenantID, key, ok := h.parseTenantAndKey(w, r)
	if !ok {
		return
	}

	var req SetConfigRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_request", "Invalid request body"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	if err := h.tenantApps.SetConfig(r.Context(), tenantID, key, req.Config); err != nil {
		h.logger.Error("Failed to set app config",
			zap.String("tenant_id", tenantID),
			zap.String("app_key", key),
			zap.Error(err))
		ServiceError(w, h.logger, err, "Failed to set app config")
		return
	}

	response := ApiResponse{Success: true, Data: map[string]string{"status": "updated"}}
	if err := WriteJSON(w, http.StatusOK, response); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// SetOverridesRequest is the request body for PUT .../apps/{key}/overrides.
type SetOverridesRequest struct {
	Overrides models.AppOverrides `json:"overrides"`
}

// SetOverrides handles PUT /api/tenants/{tid}/apps/{key}/overrides
func (h *TenantAppHandler) SetOverrides(w http.ResponseWriter, r *http.Request) {
	tenantID, key, ok := h.parseTenantAndKey(w, r)
	if !ok {
		return
	}

	var req SetOverridesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_request", "Invalid request body"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	if err := h.tenantApps.SetOverrides(r.Context(), tenantID, key, req.Overrides); err != nil {
		h.logger.Error("Failed to set app overrides",
			zap.String("tenant_id", tenantID),
			zap.String("app_key", key),
			zap.Error(err))
		ServiceError(w, h.logger, err, "Failed to set app overrides")
		return
	}

	response := ApiResponse{Success: true, Data: map[string]string{"status": "updated"}}
	if err := WriteJSON(w, http.StatusOK, response); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// SetChannelRequest is the request body for PUT .../apps/{key}/channel.
type SetChannelRequest struct {
	Channel string `json:"channel"`
}

// SetChannel handles PUT /api/tenants/{tid}/apps/{key}/channel
func (h *TenantAppHandler) SetChannel(w http.ResponseWriter, r *http.Request) {
	tenantID, key, ok := h.parseTenantAndKey(w, r)
	if !ok {
		return
	}

	var req SetChannelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Channel == "" {
		if err := ErrorResponse(w, http.StatusBadRequest, "missing_channel", "channel field is required"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	if err := h.tenantApps.SetChannel(r.Context(), tenantID, key, req.Channel); err != nil {
		h.logger.Error("Failed to set app channel",
			zap.String("tenant_id", tenantID),
			zap.String("app_key", key),
			zap.String("channel", req.Channel),
			zap.Error(err))
		ServiceError(w, h.logger, err, "Failed to set app channel")
		return
	}

	response := ApiResponse{Success: true, Data: map[string]string{"status": "updated", "channel": req.Channel}}
	if err := WriteJSON(w, http.StatusOK, response); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Uninstall handles DELETE /api/tenants/{tid}/apps/{key}
func (h *TenantAppHandler) Uninstall(w http.ResponseWriter, r *http.Request) {
	tenantID, key, ok := h.parseTenantAndKey(w, r)
	if !ok {
		return
	}

	if err := h.tenantApps.Uninstall(r.Context(), tenantID, key); err != nil {
		h.logger.Error("Failed to uninstall app",
			zap.String("tenant_id", tenantID),
			zap.String("app_key", key),
			zap.Error(err))
		ServiceError(w, h.logger, err, "Failed to uninstall app")
		return
	}

	response := ApiResponse{Success: true, Data: map[string]string{"status": "uninstalled"}}
	if err := WriteJSON(w, http.StatusOK, response); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// PreflightRequest is the request body for POST .../apps/{key}/preflight.
// FromVersion switches the check to upgrade-path mode.
type PreflightRequest struct {
	Version     string `json:"version,omitempty"`
	FromVersion string `json:"from_version,omitempty"`
}

// Preflight handles POST /api/tenants/{tid}/apps/{key}/preflight
// Always returns 200 with a verdict; a failing check is a result, not an error.
func (h *TenantAppHandler) Preflight(w http.ResponseWriter, r *http.Request) {
	tenantID, key, ok := h.parseTenantAndKey(w, r)
	if !ok {
		return
	}

	var req PreflightRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			if err := ErrorResponse(w, http.StatusBadRequest, "invalid_request", "Invalid request body"); err != nil {
				h.logger.Error("Failed to write error response", zap.Error(err))
			}
			return
		}
	}

	var check *models.CompatibilityCheck
	if req.FromVersion != "" {
		check = h.compatibility.CanUpgrade(r.Context(), tenantID, key, req.FromVersion, req.Version)
	} else {
		check = h.compatibility.Preflight(r.Context(), tenantID, key, req.Version)
	}

	response := ApiResponse{Success: true, Data: check}
	if err := WriteJSON(w, http.StatusOK, response); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// MigrationCheck handles GET /api/tenants/{tid}/apps/{key}/migration-check
// Query parameter: version (optional, defaults to latest).
func (h *TenantAppHandler) MigrationCheck(w http.ResponseWriter, r *http.Request) {
	tenantID, key, ok := h.parseTenantAndKey(w, r)
	if !ok {
		return
	}

	targetVersion := r.URL.Query().Get("version")

	needed, err := h.manifest.CheckMigrationNeeded(r.Context(), tenantID, key, targetVersion)
	if err != nil {
		h.logger.Error("Failed to check migration need",
			zap.String("tenant_id", tenantID),
			zap.String("app_key", key),
			zap.String("version", targetVersion),
			zap.Error(err))
		ServiceError(w, h.logger, err, "Failed to check migration need")
		return
	}

	response := ApiResponse{Success: true, Data: map[string]any{"migration_needed": needed}}
	if err := WriteJSON(w, http.StatusOK, response); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}
