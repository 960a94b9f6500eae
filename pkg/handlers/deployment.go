package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/forvalt-io/forvalt-engine/pkg/auth"
	"github.com/forvalt-io/forvalt-engine/pkg/services"
)

// DeploymentHandler exposes bulk channel transitions: canary rollout,
// promotion and rollback. All routes require the platform-admin role since
// they mutate installs across tenants.
type DeploymentHandler struct {
	deployments services.DeploymentService
	logger      *zap.Logger
}

// NewDeploymentHandler creates a new deployment handler.
func NewDeploymentHandler(deployments services.DeploymentService, logger *zap.Logger) *DeploymentHandler {
	return &DeploymentHandler{deployments: deployments, logger: logger}
}

// RegisterRoutes registers the deployment handler's routes on the given mux.
func (h *DeploymentHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware) {
	base := "/api/deployments/{key}"

	mux.HandleFunc("POST "+base+"/promote", authMiddleware.RequirePlatformAdmin(h.Promote))
	mux.HandleFunc("POST "+base+"/rollback", authMiddleware.RequirePlatformAdmin(h.Rollback))
	mux.HandleFunc("POST "+base+"/canary", authMiddleware.RequirePlatformAdmin(h.Canary))
	mux.HandleFunc("GET "+base+"/status", authMiddleware.RequirePlatformAdmin(h.Status))
}

// PromoteRequest is the request body for POST /api/deployments/{key}/promote.
type PromoteRequest struct {
	Version string `json:"version"`
}

// Promote handles POST /api/deployments/{key}/promote
func (h *DeploymentHandler) Promote(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")

	var req PromoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Version == "" {
		if err := ErrorResponse(w, http.StatusBadRequest, "missing_version", "version field is required"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	affected, err := h.deployments.PromoteToStable(r.Context(), key, req.Version)
	if err != nil {
		h.logger.Error("Failed to promote version",
			zap.String("app_key", key),
			zap.String("version", req.Version),
			zap.Error(err))

		// A health-gate rejection is a client-visible conflict, not a server fault.
		if strings.HasPrefix(err.Error(), "refusing to promote") {
			if err := ErrorResponse(w, http.StatusConflict, "promotion_blocked", err.Error()); err != nil {
				h.logger.Error("Failed to write error response", zap.Error(err))
			}
			return
		}
		ServiceError(w, h.logger, err, "Failed to promote version")
		return
	}

	response := ApiResponse{Success: true, Data: map[string]any{"installs_updated": affected}}
	if err := WriteJSON(w, http.StatusOK, response); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// RollbackRequest is the request body for POST /api/deployments/{key}/rollback.
type RollbackRequest struct {
	Version   string   `json:"version"`
	Channel   string   `json:"channel,omitempty"`
	TenantIDs []string `json:"tenant_ids,omitempty"`
}

// Rollback handles POST /api/deployments/{key}/rollback
func (h *DeploymentHandler) Rollback(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")

	var req RollbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Version == "" {
		if err := ErrorResponse(w, http.StatusBadRequest, "missing_version", "version field is required"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	affected, err := h.deployments.Rollback(r.Context(), key, req.Version, services.RollbackOptions{
		Channel:   req.Channel,
		TenantIDs: req.TenantIDs,
	})
	if err != nil {
		h.logger.Error("Failed to roll back installs",
			zap.String("app_key", key),
			zap.String("version", req.Version),
			zap.Error(err))
		ServiceError(w, h.logger, err, "Failed to roll back installs")
		return
	}

	response := ApiResponse{Success: true, Data: map[string]any{"installs_updated": affected}}
	if err := WriteJSON(w, http.StatusOK, response); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// CanaryRequest is the request body for POST /api/deployments/{key}/canary.
type CanaryRequest struct {
	Version   string   `json:"version"`
	TenantIDs []string `json:"tenant_ids"`
}

// Canary handles POST /api/deployments/{key}/canary
func (h *DeploymentHandler) Canary(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")

	var req CanaryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Version == "" {
		if err := ErrorResponse(w, http.StatusBadRequest, "missing_version", "version field is required"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}
	if len(req.TenantIDs) == 0 {
		if err := ErrorResponse(w, http.StatusBadRequest, "missing_tenant_ids", "tenant_ids field is required"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	affected, err := h.deployments.DeployToCanary(r.Context(), key, req.Version, req.TenantIDs)
	if err != nil {
		h.logger.Error("Failed to deploy canary",
			zap.String("app_key", key),
			zap.String("version", req.Version),
			zap.Error(err))
		ServiceError(w, h.logger, err, "Failed to deploy canary")
		return
	}

	response := ApiResponse{Success: true, Data: map[string]any{"installs_updated": affected}}
	if err := WriteJSON(w, http.StatusOK, response); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Status handles GET /api/deployments/{key}/status
func (h *DeploymentHandler) Status(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")

	status, err := h.deployments.GetDeploymentStatus(r.Context(), key)
	if err != nil {
		h.logger.Error("Failed to get deployment status",
			zap.String("app_key", key),
			zap.Error(err))
		ServiceError(w, h.logger, err, "Failed to get deployment status")
		return
	}

	response := ApiResponse{Success: true, Data: status}
	if err := WriteJSON(w, http.StatusOK, response); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}
