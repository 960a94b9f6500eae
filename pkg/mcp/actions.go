package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
	"go.uber.org/zap"

	"github.com/forvalt-io/forvalt-engine/pkg/auth"
	"github.com/forvalt-io/forvalt-engine/pkg/database"
	"github.com/forvalt-io/forvalt-engine/pkg/models"
	"github.com/forvalt-io/forvalt-engine/pkg/services"
)

// ActionRegistry implements services.ActionRegistry on top of the MCP server.
// Actions declared by an app manifest become MCP tools when the app is
// installed for a tenant; enablement is tracked per tenant so one tenant's
// uninstall never removes the tool from another.
type ActionRegistry struct {
	srv    *Server
	scopes *database.TenantScopeProvider
	logger *zap.Logger

	mu        sync.RWMutex
	executor  services.McpActionService
	byTenant  map[string]map[string]*services.RegisteredAction
	toolNames map[string]bool
}

// NewActionRegistry creates a registry bound to the given MCP server.
func NewActionRegistry(srv *Server, scopes *database.TenantScopeProvider, logger *zap.Logger) *ActionRegistry {
	return &ActionRegistry{
		srv:       srv,
		scopes:    scopes,
		logger:    logger,
		byTenant:  make(map[string]map[string]*services.RegisteredAction),
		toolNames: make(map[string]bool),
	}
}

// SetExecutor wires the action execution service. Set once at startup; the
// registry and the executor reference each other, so the cycle is closed here
// rather than in a constructor.
func (r *ActionRegistry) SetExecutor(executor services.McpActionService) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.executor = executor
}

// RegisterAppActions enables the definition's declared actions for the tenant
// and mounts any tool not yet present on the MCP server.
func (r *ActionRegistry) RegisterAppActions(tenantID string, def *models.AppDefinition) error {
	actions := def.DeclaredActions()
	if len(actions) == 0 {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	tenant, ok := r.byTenant[tenantID]
	if !ok {
		tenant = make(map[string]*services.RegisteredAction)
		r.byTenant[tenantID] = tenant
	}

	for _, action := range actions {
		if action.Name == "" {
			return fmt.Errorf("app %q declares an action without a name", def.Key)
		}
		tenant[action.Name] = &services.RegisteredAction{
			AppKey: def.Key,
			Action: action,
		}

		if !r.toolNames[action.Name] {
			tool := mcp.NewTool(action.Name,
				mcp.WithDescription(action.Description),
			)
			r.srv.RegisterTool(tool, r.toolHandler(action.Name))
			r.toolNames[action.Name] = true
		}
	}

	r.logger.Debug("Registered app actions",
		zap.String("tenant_id", tenantID),
		zap.String("app_key", def.Key),
		zap.Int("actions", len(actions)))

	return nil
}

// DisableAppActions removes all of one app's actions for the tenant. The MCP
// tools stay mounted; Lookup gates per-tenant enablement.
func (r *ActionRegistry) DisableAppActions(tenantID, appKey string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	tenant, ok := r.byTenant[tenantID]
	if !ok {
		return
	}
	for name, registered := range tenant {
		if registered.AppKey == appKey {
			delete(tenant, name)
		}
	}
}

// Lookup resolves an enabled action by name for the tenant.
func (r *ActionRegistry) Lookup(tenantID, actionName string) (*services.RegisteredAction, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tenant, ok := r.byTenant[tenantID]
	if !ok {
		return nil, false
	}
	registered, ok := tenant[actionName]
	return registered, ok
}

// toolHandler dispatches an MCP tool call to the action executor under the
// caller's tenant scope.
func (r *ActionRegistry) toolHandler(actionName string) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		claims, ok := auth.GetClaims(ctx)
		if !ok || claims.TenantID == "" {
			return mcp.NewToolResultError("authentication required"), nil
		}

		r.mu.RLock()
		executor := r.executor
		r.mu.RUnlock()
		if executor == nil {
			return mcp.NewToolResultError("action executor not configured"), nil
		}

		tenantCtx, cleanup, err := r.scopes.WithTenantScope(ctx, claims.TenantID)
		if err != nil {
			r.logger.Error("Failed to acquire tenant scope for action",
				zap.String("tenant_id", claims.TenantID),
				zap.String("action", actionName),
				zap.Error(err))
			return mcp.NewToolResultError("database connection error"), nil
		}
		defer cleanup()

		result, err := executor.Execute(tenantCtx, claims.TenantID, actionName, req.GetArguments(), claims.Subject)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		data, err := json.Marshal(result)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal action result: %w", err)
		}
		return mcp.NewToolResultText(string(data)), nil
	}
}

// Ensure ActionRegistry implements services.ActionRegistry at compile time.
var _ services.ActionRegistry = (*ActionRegistry)(nil)
