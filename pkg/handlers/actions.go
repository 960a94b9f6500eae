package handlers

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/forvalt-io/forvalt-engine/pkg/auth"
	"github.com/forvalt-io/forvalt-engine/pkg/services"
)

// ActionHandler executes registered app actions over plain HTTP. The same
// actions are reachable as MCP tools; this endpoint serves the CLI and
// server-to-server callers.
type ActionHandler struct {
	actions services.McpActionService
	logger  *zap.Logger
}

// NewActionHandler creates a new action handler.
func NewActionHandler(actions services.McpActionService, logger *zap.Logger) *ActionHandler {
	return &ActionHandler{actions: actions, logger: logger}
}

// RegisterRoutes registers the action handler's routes on the given mux.
func (h *ActionHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware, tenantMiddleware TenantMiddleware) {
	mux.HandleFunc("POST /api/tenants/{tid}/actions/{action}",
		authMiddleware.RequireAuthWithPathValidation("tid")(tenantMiddleware(h.Execute)))
}

// ExecuteRequest is the request body for POST /api/tenants/{tid}/actions/{action}.
type ExecuteRequest struct {
	Payload map[string]any `json:"payload,omitempty"`
}

// Execute handles POST /api/tenants/{tid}/actions/{action}
func (h *ActionHandler) Execute(w http.ResponseWriter, r *http.Request) {
	tenantID := r.PathValue("tid")
	actionName := r.PathValue("action")
	if actionName == "" {
		if err := ErrorResponse(w, http.StatusBadRequest, "missing_action", "Action name is required"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	var req ExecuteRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			if err := ErrorResponse(w, http.StatusBadRequest, "invalid_request", "Invalid request body"); err != nil {
				h.logger.Error("Failed to write error response", zap.Error(err))
			}
			return
		}
	}

	userID := auth.GetUserIDFromContext(r.Context())

	result, err := h.actions.Execute(r.Context(), tenantID, actionName, req.Payload, userID)
	if err != nil {
		h.logger.Error("Failed to execute action",
			zap.String("tenant_id", tenantID),
			zap.String("action", actionName),
			zap.Error(err))
		ServiceError(w, h.logger, err, "Failed to execute action")
		return
	}

	response := ApiResponse{Success: true, Data: result}
	if err := WriteJSON(w, http.StatusOK, response); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}
