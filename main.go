package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/forgelab-io/forge-engine/pkg/agent"
	"github.com/forgelab-io/forge-engine/pkg/audit"
	"github.com/forgelab-io/forge-engine/pkg/auth"
	"github.com/forgelab-io/forge-engine/pkg/config"
	"github.com/forgelab-io/forge-engine/pkg/database"
	"github.com/forgelab-io/forge-engine/pkg/handlers"
	"github.com/forgelab-io/forge-engine/pkg/llm"
	"github.com/forgelab-io/forge-engine/pkg/logging"
	"github.com/forgelab-io/forge-engine/pkg/middleware"
	"github.com/forgelab-io/forge-engine/pkg/repositories"
	"github.com/forgelab-io/forge-engine/pkg/services"
	"github.com/forgelab-io/forge-engine/pkg/workspace"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	cfg, err := config.Load(Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := newLogger(cfg.Env)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Configuration loaded",
		zap.String("env", cfg.Env),
		zap.String("version", cfg.Version),
		zap.String("database", logging.SanitizeConnectionString(cfg.Database.ConnectionString())),
		zap.String("workspace_base_dir", cfg.Workspace.BaseDir))

	ctx := context.Background()

	dbConfig := &database.Config{
		URL:            cfg.Database.ConnectionString(),
		MaxConnections: cfg.Database.MaxConnections,
	}

	if err := database.Migrate(ctx, dbConfig, cfg.Database.MigrationsPath, logger); err != nil {
		logger.Fatal("Failed to run migrations", zap.String("error", logging.SanitizeError(err)))
	}

	db, err := database.NewConnection(ctx, dbConfig)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.String("error", logging.SanitizeError(err)))
	}
	defer db.Close()

	appRepo := repositories.NewAppRepository(db)
	userRepo := repositories.NewUserRepository(db)

	resolver, err := workspace.NewResolver(cfg.Workspace.BaseDir)
	if err != nil {
		logger.Fatal("Failed to create workspace resolver", zap.Error(err))
	}
	trail := audit.NewTrail(logger)

	keys := services.NewDeployKeyGenerator(cfg.Deploy.KeyLength)
	lifecycle := services.NewLifecycleService(appRepo, keys, cfg.Deploy.MaxKeyAttempts, logger)
	sessions := services.NewSessionOrchestrator(resolver, appRepo, trail, logger)

	llmClient := llm.NewAnthropicClient(cfg.Agent.AnthropicAPIKey, cfg.Agent.Model, cfg.Agent.MaxTokens)
	generator := agent.New(llmClient, logger)

	appService := services.NewAppService(appRepo, lifecycle, sessions, generator, logger)
	userService := services.NewUserService(userRepo, logger)

	tokens := auth.NewTokenService(cfg.Auth.SigningKey, time.Duration(cfg.Auth.TokenTTLMinutes)*time.Minute, logger)
	authMiddleware := auth.NewMiddleware(tokens, logger)

	mux := http.NewServeMux()
	handlers.NewHealthHandler(cfg, logger).RegisterRoutes(mux)
	handlers.NewAuthHandler(userService, tokens, logger).RegisterRoutes(mux, authMiddleware)
	handlers.NewUserHandler(userService, logger).RegisterRoutes(mux, authMiddleware)
	handlers.NewAppHandler(appService, userService, logger).RegisterRoutes(mux, authMiddleware)

	handler := middleware.RequestLogger(logger)(mux)

	addr := cfg.BindAddr + ":" + cfg.Port
	logger.Info("Starting forge-engine",
		zap.String("addr", addr),
		zap.String("version", cfg.Version))
	if err := http.ListenAndServe(addr, handler); err != nil {
		logger.Fatal("Server failed", zap.Error(err))
	}
}

// newLogger builds a production logger outside local development.
func newLogger(env string) (*zap.Logger, error) {
	if env == "local" || env == "dev" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
