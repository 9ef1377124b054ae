package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	internalhttp "github.com/fleetops/botpanel/internal/api/http"
	"github.com/fleetops/botpanel/internal/auth"
	"github.com/fleetops/botpanel/internal/bundle"
	"github.com/fleetops/botpanel/internal/db"
	"github.com/fleetops/botpanel/internal/identity"
	"github.com/fleetops/botpanel/internal/n8n"
	"github.com/fleetops/botpanel/internal/slack"
	"github.com/fleetops/botpanel/internal/users"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/ssh/knownhosts"
)

var AppVersion string

func main() {
	InitConfig()

	slog.Info("Bot Panel Server", "version", AppVersion)

	ctx := context.Background()

	if err := db.RunMigrations(config.Db.Url, config.Db.Schema); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		os.Exit(1)
	}

	pool, err := db.InitDB(ctx, config.Db.Url, config.Db.Schema)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	identClient, err := buildIdentityClient(config.Identity)
	if err != nil {
		slog.Error("Failed to build identity client", "error", err)
		os.Exit(1)
	}

	template, err := n8n.LoadTemplate(config.N8n.TemplatePath)
	if err != nil {
		slog.Error("Failed to load workflow template", "error", err)
		os.Exit(1)
	}

	bundleService := bundle.NewService(
		bundle.Config{
			IdentityPrefix:  config.Identity.Prefix,
			ChannelPrefix:   config.Identity.ChannelPrefix,
			WorkflowBaseURL: config.N8n.WorkflowBaseUrl,
		},
		bundle.NewPGStore(pool),
		identity.NewValidator(ParseCommaSeparated(config.Identity.ExtraReserved)),
		identClient,
		slack.NewClient(config.Slack.BaseUrl),
		n8n.NewClient(config.N8n.BaseUrl, config.N8n.ApiKey, n8n.DefaultPolicy()),
		template,
	)
	for tool, path := range config.N8n.ToolTemplates {
		tpl, err := n8n.LoadTemplate(path)
		if err != nil {
			slog.Error("Failed to load tool template", "tool", tool, "path", path, "error", err)
			os.Exit(1)
		}
		bundleService.RegisterTemplate(tool, tpl)
	}

	authService := auth.NewService(users.NewStore(pool), auth.JWTConfig{
		Secret: config.Auth.JwtSecret,
	})

	services := &internalhttp.Services{
		Auth:        authService,
		Bundles:     bundleService,
		JWTSecret:   config.Auth.JwtSecret,
		AdminAPIKey: config.Http.AdminAPIKey,
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"PUT", "PATCH", "GET", "POST", "DELETE"},
		AllowHeaders:     []string{"Origin", "Content-Length", "Content-Type", "Authorization", "X-API-Key"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	engine.Use(gin.Recovery())
	internalhttp.SetupRoute(engine, services)

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", config.Http.Port),
		Handler: engine,
	}

	errChan := make(chan error, 1)
	go func() {
		slog.Info("Starting HTTP server", "address", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errChan:
		slog.Error("Server error", "error", err)
	case sig := <-sigChan:
		slog.Info("Received shutdown signal", "signal", sig)
	}

	slog.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	} else {
		slog.Info("HTTP server stopped")
	}

	slog.Info("Shutdown complete")
}

func buildIdentityClient(cfg IdentityConfig) (identity.Client, error) {
	switch cfg.Mode {
	case "", "local":
		return identity.NewHostClient(identity.LocalRunner{}), nil
	case "ssh":
		keyPEM, err := os.ReadFile(cfg.SshKeyFile)
		if err != nil {
			return nil, fmt.Errorf("read SSH key %s: %w", cfg.SshKeyFile, err)
		}
		hostKeys, err := knownhosts.New(cfg.KnownHostsFile)
		if err != nil {
			return nil, fmt.Errorf("load known hosts %s: %w", cfg.KnownHostsFile, err)
		}
		runner, err := identity.NewSSHRunner(cfg.SshAddr, cfg.SshUser, keyPEM, hostKeys)
		if err != nil {
			return nil, err
		}
		return identity.NewHostClient(runner), nil
	default:
		return nil, fmt.Errorf("unknown identity mode %q", cfg.Mode)
	}
}
