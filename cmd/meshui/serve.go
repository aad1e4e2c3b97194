package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/fmteixeira/mesh-ui/internal/audit"
	"github.com/fmteixeira/mesh-ui/internal/auth"
	"github.com/fmteixeira/mesh-ui/internal/binary"
	"github.com/fmteixeira/mesh-ui/internal/config"
	"github.com/fmteixeira/mesh-ui/internal/database"
	"github.com/fmteixeira/mesh-ui/internal/node"
	"github.com/fmteixeira/mesh-ui/internal/schema"
	"github.com/fmteixeira/mesh-ui/internal/schemaapi"
	"github.com/fmteixeira/mesh-ui/internal/server"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			setupLogging(cfg)
			return serve(cfg)
		},
	}
}

func serve(cfg *config.Config) error {
	slog.Info("starting mesh-ui",
		"port", cfg.Port,
		"schema_dir", cfg.SchemaDir,
		"binary_dir", cfg.BinaryDir,
		"languages", cfg.Languages(),
		"dev_mode", cfg.DevMode,
	)

	if cfg.DatabaseURL == "" {
		return errors.New("MESH_DATABASE_URL is required")
	}
	if cfg.JWTSecret == "" {
		return errors.New("MESH_JWT_SECRET is required")
	}

	// --- Connect to database ---
	dbCtx, dbCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer dbCancel()

	db, err := database.New(dbCtx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer db.Close()
	slog.Info("database connected")

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	slog.Info("migrations applied")

	// --- Seed schemas ---
	schemas, err := schema.LoadSchemas(cfg.SchemaDir)
	if err != nil {
		return err
	}
	if err := schema.ValidateSchemas(schemas); err != nil {
		return err
	}
	slog.Info("schemas loaded", "count", len(schemas))

	schemaStore := schema.NewStore(db, cfg.DevMode)

	applyCtx, applyCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer applyCancel()
	if err := schemaStore.Apply(applyCtx, schemas); err != nil {
		return fmt.Errorf("applying schemas: %w", err)
	}

	// --- Authentication ---
	authService := auth.NewService(auth.NewRepository(db), cfg.JWTSecret)
	if cfg.EditorEmail != "" && cfg.EditorPassword != "" {
		editorCtx, editorCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer editorCancel()
		if err := authService.EnsureEditor(editorCtx, cfg.EditorEmail, cfg.EditorPassword); err != nil {
			return fmt.Errorf("ensuring initial editor: %w", err)
		}
	}

	// --- Audit log ---
	auditService := audit.NewService(audit.NewRepository(db))
	auditService.Start()
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		auditService.Shutdown(ctx)
	}()

	// --- Domain services ---
	nodeService := node.NewService(node.NewRepository(db), schemaStore, cfg.Languages(), auditService)

	storage, err := binary.NewLocalStorage(cfg.BinaryDir)
	if err != nil {
		return fmt.Errorf("preparing binary storage: %w", err)
	}
	binaryService := binary.NewService(storage, nodeService)

	router := server.NewRouter(server.Dependencies{
		DB:             db,
		DevMode:        cfg.DevMode,
		RequestTimeout: cfg.RequestTimeout,
		AuthHandler:    auth.NewHandler(authService, auditService),
		AuthMiddleware: auth.Middleware(cfg.JWTSecret),
		Admin: []server.Mounter{
			schemaapi.NewHandler(schemaStore, schemaapi.NewSessions(), auditService),
			node.NewHandler(nodeService),
			binary.NewHandler(binaryService),
			audit.NewHandler(auditService),
		},
		Public: []server.Mounter{
			binary.NewFiles(storage),
		},
	})

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := server.New(addr, router, cfg.RequestTimeout)

	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "addr", addr)
		errCh <- srv.Start()
	}()

	// --- Graceful shutdown on SIGINT/SIGTERM ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		slog.Info("received shutdown signal", "signal", sig.String())
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	slog.Info("shutting down server (30s timeout)...")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	slog.Info("mesh-ui stopped")
	return nil
}
