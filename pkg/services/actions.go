package services

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/forvalt-io/forvalt-engine/pkg/apperrors"
	"github.com/forvalt-io/forvalt-engine/pkg/models"
	"github.com/forvalt-io/forvalt-engine/pkg/repositories"
)

// RegisteredAction is one MCP action enabled for a tenant, resolved from the
// owning app's manifest declaration.
type RegisteredAction struct {
	AppKey string
	Action models.ManifestAction
}

// ActionRegistry tracks which MCP actions are enabled per tenant. The MCP
// server package implements it; the tenant app service drives it best-effort
// during install, update and uninstall.
type ActionRegistry interface {
	// RegisterAppActions enables the definition's declared actions for the tenant.
	RegisterAppActions(tenantID string, def *models.AppDefinition) error

	// DisableAppActions removes all of one app's actions for the tenant.
	DisableAppActions(tenantID, appKey string)

	// Lookup resolves an enabled action by name for the tenant.
	Lookup(tenantID, actionName string) (*RegisteredAction, bool)
}

// ActionResult is the outcome envelope of one action execution.
type ActionResult struct {
	Action     string         `json:"action"`
	AppKey     string         `json:"app_key"`
	TenantID   string         `json:"tenant_id"`
	Status     string         `json:"status"`
	ExecutedBy string         `json:"executed_by,omitempty"`
	ExecutedAt time.Time      `json:"executed_at"`
	Payload    map[string]any `json:"payload,omitempty"`
}

// McpActionService executes registered MCP actions on behalf of a tenant.
// Fulfilment of the action itself belongs to the owning app's backend; the
// engine validates the action is enabled and the app still active, then
// acknowledges with an execution envelope.
type McpActionService interface {
	Execute(ctx context.Context, tenantID, actionName string, payload map[string]any, userID string) (*ActionResult, error)
}

type mcpActionService struct {
	registry   ActionRegistry
	tenantApps repositories.TenantAppRepository
	logger     *zap.Logger
}

// NewMcpActionService creates a new action execution service.
func NewMcpActionService(
	registry ActionRegistry,
	tenantApps repositories.TenantAppRepository,
	logger *zap.Logger,
) McpActionService {
	return &mcpActionService{
		registry:   registry,
		tenantApps: tenantApps,
		logger:     logger,
	}
}

// Execute validates and acknowledges one action invocation.
func (s *mcpActionService) Execute(ctx context.Context, tenantID, actionName string, payload map[string]any, userID string) (*ActionResult, error) {
	registered, ok := s.registry.Lookup(tenantID, actionName)
	if !ok {
		return nil, fmt.Errorf("action %q: %w", actionName, apperrors.ErrNotFound)
	}

	install, err := s.tenantApps.Get(ctx, tenantID, registered.AppKey)
	if err != nil {
		return nil, err
	}
	if install == nil || !install.IsActive {
		return nil, fmt.Errorf("app %q: %w", registered.AppKey, apperrors.ErrNotInstalled)
	}
	if install.InstallStatus != models.InstallStatusActive {
		return nil, fmt.Errorf("app %q has status %q: %w", registered.AppKey, install.InstallStatus, apperrors.ErrInstallNotActive)
	}

	s.logger.Info("Executed app action",
		zap.String("tenant_id", tenantID),
		zap.String("app_key", registered.AppKey),
		zap.String("action", actionName),
		zap.String("executed_by", userID))

	return &ActionResult{
		Action:     actionName,
		AppKey:     registered.AppKey,
		TenantID:   tenantID,
		Status:     "accepted",
		ExecutedBy: userID,
		ExecutedAt: time.Now(),
		Payload:    payload,
	}, nil
}

// Ensure mcpActionService implements McpActionService at compile time.
var _ McpActionService = (*mcpActionService)(nil)
