package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/forvalt-io/forvalt-engine/pkg/auth"
	"github.com/forvalt-io/forvalt-engine/pkg/config"
	"github.com/forvalt-io/forvalt-engine/pkg/database"
	"github.com/forvalt-io/forvalt-engine/pkg/handlers"
	"github.com/forvalt-io/forvalt-engine/pkg/logging"
	"github.com/forvalt-io/forvalt-engine/pkg/mcp"
	"github.com/forvalt-io/forvalt-engine/pkg/middleware"
	"github.com/forvalt-io/forvalt-engine/pkg/repositories"
	"github.com/forvalt-io/forvalt-engine/pkg/retry"
	"github.com/forvalt-io/forvalt-engine/pkg/services"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	// Load configuration
	cfg, err := config.Load(Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.Env)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Configuration loaded",
		zap.String("environment", cfg.Env),
		zap.String("base_url", cfg.BaseURL),
		zap.Bool("auth_verification", cfg.Auth.EnableVerification),
		zap.String("database_host", cfg.Database.Host),
		zap.String("database_name", cfg.Database.Database))

	ctx := context.Background()

	// Run migrations over database/sql; the pgx pool is opened separately.
	migrationDB, err := sql.Open("pgx", cfg.Database.ConnectionString())
	if err != nil {
		logger.Fatal("Failed to open migration connection", zap.Error(err))
	}
	if err := database.RunMigrations(migrationDB, cfg.Database.MigrationsPath, logger); err != nil {
		logger.Fatal("Failed to run migrations", zap.Error(err))
	}
	_ = migrationDB.Close()

	// The database may still be coming up when the engine starts; retry with
	// backoff instead of crash-looping.
	db, err := retry.DoWithResult(ctx, retry.DefaultConfig(), func() (*database.DB, error) {
		return database.NewConnection(ctx, &database.Config{
			URL:            cfg.Database.ConnectionString(),
			MaxConnections: cfg.Database.MaxConnections,
		})
	})
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	// Repositories. Definition, version and deployment repositories are
	// platform-scoped; tenant app and extension repositories read the tenant
	// scope from context.
	definitionRepo := repositories.NewDefinitionRepository(db)
	versionRepo := repositories.NewVersionRepository(db)
	deploymentRepo := repositories.NewDeploymentRepository(db)
	tenantAppRepo := repositories.NewTenantAppRepository()
	extensionRepo := repositories.NewExtensionRepository()

	// MCP server and action registry.
	mcpServer := mcp.NewServer(cfg.MCP.ServerName, cfg.Version, logger)
	mcpServer.RegisterHealthTool(cfg.Version)
	scopeProvider := database.NewTenantScopeProvider(db)
	actionRegistry := mcp.NewActionRegistry(mcpServer, scopeProvider, logger)

	// Services.
	registryService := services.NewRegistryService(definitionRepo, versionRepo, logger)
	compatibilityService := services.NewCompatibilityService(definitionRepo, versionRepo, tenantAppRepo, logger)
	tenantAppService := services.NewTenantAppService(
		definitionRepo, versionRepo, tenantAppRepo,
		compatibilityService, actionRegistry,
		cfg.Registry.FallbackVersion, logger)
	deploymentService := services.NewDeploymentService(definitionRepo, deploymentRepo, logger)
	runtimeService := services.NewRuntimeService(tenantAppRepo, extensionRepo, cfg.Registry.TrustedExtensionPrefix, logger)
	manifestService := services.NewManifestService(definitionRepo, versionRepo, tenantAppRepo, logger)
	actionService := services.NewMcpActionService(actionRegistry, tenantAppRepo, logger)
	actionRegistry.SetExecutor(actionService)

	// Middleware.
	authService := auth.NewAuthService(cfg.Auth.Secret, cfg.Auth.EnableVerification)
	authMiddleware := auth.NewMiddleware(authService, logger)
	tenantMiddleware := handlers.TenantMiddleware(database.WithTenantContext(db, logger))

	mux := http.NewServeMux()

	// Handlers.
	healthHandler := handlers.NewHealthHandler(cfg, logger)
	healthHandler.RegisterRoutes(mux)

	registryHandler := handlers.NewRegistryHandler(registryService, manifestService, logger)
	registryHandler.RegisterRoutes(mux, authMiddleware)

	tenantAppHandler := handlers.NewTenantAppHandler(tenantAppService, compatibilityService, manifestService, logger)
	tenantAppHandler.RegisterRoutes(mux, authMiddleware, tenantMiddleware)

	runtimeHandler := handlers.NewRuntimeHandler(runtimeService, logger)
	runtimeHandler.RegisterRoutes(mux, authMiddleware, tenantMiddleware)

	deploymentHandler := handlers.NewDeploymentHandler(deploymentService, logger)
	deploymentHandler.RegisterRoutes(mux, authMiddleware)

	actionHandler := handlers.NewActionHandler(actionService, logger)
	actionHandler.RegisterRoutes(mux, authMiddleware, tenantMiddleware)

	// MCP transport. Auth runs outside the MCP handler so tool handlers can
	// read claims from context.
	mcpHTTP := middleware.MCPRequestLogger(logger)(mcpServer.NewStreamableHTTPServer())
	mux.Handle("/mcp", authMiddleware.RequireAuth(mcpHTTP.ServeHTTP))

	// Prometheus metrics.
	mux.Handle("/metrics", promhttp.Handler())

	handler := middleware.RequestLogger(logger)(mux)

	addr := cfg.BindAddr + ":" + cfg.Port
	logger.Info("Starting forvalt-engine",
		zap.String("addr", addr),
		zap.String("version", cfg.Version))
	if err := http.ListenAndServe(addr, handler); err != nil {
		logger.Fatal("Server failed", zap.Error(err))
	}
}
