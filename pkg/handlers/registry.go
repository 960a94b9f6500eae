package handlers

import (
	"encoding/json"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/forvalt-io/forvalt-engine/pkg/auth"
	"github.com/forvalt-io/forvalt-engine/pkg/models"
	"github.com/forvalt-io/forvalt-engine/pkg/repositories"
	"github.com/forvalt-io/forvalt-engine/pkg/services"
)

// RegistryHandler exposes the platform app catalog over HTTP: definition
// reads, version publishing and manifest registration. Reads are open to any
// authenticated user; writes require the platform-admin role.
type RegistryHandler struct {
	registry services.RegistryService
	manifest services.ManifestService
	logger   *zap.Logger
}

// NewRegistryHandler creates a new registry handler.
func NewRegistryHandler(registry services.RegistryService, manifest services.ManifestService, logger *zap.Logger) *RegistryHandler {
	return &RegistryHandler{
		registry: registry,
		manifest: manifest,
		logger:   logger,
	}
}

// RegisterRoutes registers the registry handler's routes on the given mux.
func (h *RegistryHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware) {
	mux.HandleFunc("GET /api/apps", authMiddleware.RequireAuth(h.List))
	mux.HandleFunc("GET /api/apps/{key}", authMiddleware.RequireAuth(h.Get))
	mux.HandleFunc("GET /api/apps/{key}/versions", authMiddleware.RequireAuth(h.ListVersions))

	mux.HandleFunc("POST /api/apps/{key}/versions", authMiddleware.RequirePlatformAdmin(h.PublishVersion))
	mux.HandleFunc("POST /api/apps/register", authMiddleware.RequirePlatformAdmin(h.Register))
	mux.HandleFunc("POST /api/apps/validate", authMiddleware.RequirePlatformAdmin(h.Validate))
	mux.HandleFunc("DELETE /api/apps/{key}", authMiddleware.RequirePlatformAdmin(h.Deactivate))
}

// List handles GET /api/apps
// Query parameters: app_type filters by type; include_inactive=true includes
// deactivated definitions.
func (h *RegistryHandler) List(w http.ResponseWriter, r *http.Request) {
	filter := repositories.DefinitionFilter{
		AppType: r.URL.Query().Get("app_type"),
	}
	if r.URL.Query().Get("include_inactive") != "true" {
		active := true
		filter.IsActive = &active
	}

	defs, err := h.registry.ListDefinitions(r.Context(), filter)
	if err != nil {
		h.logger.Error("Failed to list app definitions", zap.Error(err))
		ServiceError(w, h.logger, err, "Failed to list app definitions")
		return
	}

	response := ApiResponse{Success: true, Data: map[string]any{"apps": defs}}
	if err := WriteJSON(w, http.StatusOK, response); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Get handles GET /api/apps/{key}
func (h *RegistryHandler) Get(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")

	def, err := h.registry.GetDefinitionByKey(r.Context(), key)
	if err != nil {
		h.logger.Error("Failed to get app definition",
			zap.String("app_key", key),
			zap.Error(err))
		ServiceError(w, h.logger, err, "Failed to get app definition")
		return
	}

	response := ApiResponse{Success: true, Data: def}
	if err := WriteJSON(w, http.StatusOK, response); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// ListVersions handles GET /api/apps/{key}/versions
func (h *RegistryHandler) ListVersions(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")

	versions, err := h.registry.ListVersions(r.Context(), key)
	if err != nil {
		h.logger.Error("Failed to list app versions",
			zap.String("app_key", key),
			zap.Error(err))
		ServiceError(w, h.logger, err, "Failed to list app versions")
		return
	}

	response := ApiResponse{Success: true, Data: map[string]any{"versions": versions}}
	if err := WriteJSON(w, http.StatusOK, response); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// readManifest decodes a manifest request body, YAML or JSON.
func (h *RegistryHandler) readManifest(w http.ResponseWriter, r *http.Request) (*models.AppManifest, bool) {
	body, err := io.ReadAll(r.Body)
	if err != nil || len(body) == 0 {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_request", "Manifest body is required"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return nil, false
	}

	manifest, err := models.ParseManifest(body)
	if err != nil {
		h.logger.Warn("Rejected unparseable manifest", zap.Error(err))
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_manifest", "Invalid manifest body"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return nil, false
	}

	return manifest, true
}

// PublishVersionRequest is the request body for POST /api/apps/{key}/versions.
type PublishVersionRequest struct {
	Version  string                 `json:"version"`
	Manifest models.VersionManifest `json:"manifest"`
}

// PublishVersion handles POST /api/apps/{key}/versions
func (h *RegistryHandler) PublishVersion(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")

	var req PublishVersionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_request", "Invalid request body"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}
	if req.Version == "" {
		if err := ErrorResponse(w, http.StatusBadRequest, "missing_version", "version field is required"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	version, err := h.registry.PublishVersion(r.Context(), key, req.Version, req.Manifest)
	if err != nil {
		h.logger.Error("Failed to publish app version",
			zap.String("app_key", key),
			zap.String("version", req.Version),
			zap.Error(err))
		ServiceError(w, h.logger, err, "Failed to publish app version")
		return
	}

	response := ApiResponse{Success: true, Data: version}
	if err := WriteJSON(w, http.StatusCreated, response); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Register handles POST /api/apps/register
// Accepts a YAML or JSON app manifest, validates it and upserts the definition.
func (h *RegistryHandler) Register(w http.ResponseWriter, r *http.Request) {
	manifest, ok := h.readManifest(w, r)
	if !ok {
		return
	}

	def, result, err := h.manifest.RegisterFromManifest(r.Context(), manifest)
	if err != nil {
		h.logger.Error("Failed to register app from manifest",
			zap.String("app_key", manifest.Key),
			zap.Error(err))
		ServiceError(w, h.logger, err, "Failed to register app")
		return
	}
	if !result.OK {
		response := ApiResponse{Success: false, Data: map[string]any{"validation": result}}
		if err := WriteJSON(w, http.StatusUnprocessableEntity, response); err != nil {
			h.logger.Error("Failed to write response", zap.Error(err))
		}
		return
	}

	response := ApiResponse{Success: true, Data: map[string]any{"app": def, "validation": result}}
	if err := WriteJSON(w, http.StatusCreated, response); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Validate handles POST /api/apps/validate
// Dry-run manifest validation; nothing is written.
func (h *RegistryHandler) Validate(w http.ResponseWriter, r *http.Request) {
	manifest, ok := h.readManifest(w, r)
	if !ok {
		return
	}

	result, err := h.manifest.ValidateManifest(r.Context(), manifest)
	if err != nil {
		h.logger.Error("Failed to validate manifest",
			zap.String("app_key", manifest.Key),
			zap.Error(err))
		ServiceError(w, h.logger, err, "Failed to validate manifest")
		return
	}

	response := ApiResponse{Success: true, Data: map[string]any{"validation": result}}
	if err := WriteJSON(w, http.StatusOK, response); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Deactivate handles DELETE /api/apps/{key}
// Soft-deactivation only; definitions are never physically deleted.
func (h *RegistryHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")

	if err := h.registry.DeactivateDefinition(r.Context(), key); err != nil {
		h.logger.Error("Failed to deactivate app definition",
			zap.String("app_key", key),
			zap.Error(err))
		ServiceError(w, h.logger, err, "Failed to deactivate app definition")
		return
	}

	response := ApiResponse{Success: true, Data: map[string]string{"status": "deactivated"}}
	if err := WriteJSON(w, http.StatusOK, response); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}
