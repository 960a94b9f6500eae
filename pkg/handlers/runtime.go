package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/forvalt-io/forvalt-engine/pkg/auth"
	"github.com/forvalt-io/forvalt-engine/pkg/services"
)

// RuntimeHandler serves the assembled runtime context a tenant app instance
// boots from.
type RuntimeHandler struct {
	runtime services.RuntimeService
	logger  *zap.Logger
}

// NewRuntimeHandler creates a new runtime handler.
func NewRuntimeHandler(runtime services.RuntimeService, logger *zap.Logger) *RuntimeHandler {
	return &RuntimeHandler{runtime: runtime, logger: logger}
}

// RegisterRoutes registers the runtime handler's routes on the given mux.
func (h *RuntimeHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware, tenantMiddleware TenantMiddleware) {
	mux.HandleFunc("GET /api/tenants/{tid}/apps/{key}/context",
		authMiddleware.RequireAuthWithPathValidation("tid")(tenantMiddleware(h.GetContext)))
}

// GetContext handles GET /api/tenants/{tid}/apps/{key}/context
func (h *RuntimeHandler) GetContext(w http.ResponseWriter, r *http.Request) {
	tenantID := r.PathValue("tid")
	key := r.PathValue("key")

	appCtx, err := h.runtime.LoadAppContext(r.Context(), tenantID, key)
	if err != nil {
		h.logger.Error("Failed to load app context",
			zap.String("tenant_id", tenantID),
			zap.String("app_key", key),
			zap.Error(err))
		ServiceError(w, h.logger, err, "Failed to load app context")
		return
	}

	response := ApiResponse{Success: true, Data: appCtx}
	if err := WriteJSON(w, http.StatusOK, response); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}
