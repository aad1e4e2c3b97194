// Package main is the entrypoint for the mesh-ui server.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/fmteixeira/mesh-ui/internal/config"
	"github.com/fmteixeira/mesh-ui/internal/database"
	"github.com/fmteixeira/mesh-ui/internal/schema"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "meshui",
		Short:        "Schema and content administration server",
		SilenceUsage: true,
	}
	root.AddCommand(newServeCmd(), newMigrateCmd(), newSchemaCmd())
	return root
}

// setupLogging installs the JSON slog handler as the default logger.
func setupLogging(cfg *config.Config) {
	level := slog.LevelInfo
	if cfg.DevMode {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})))
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			setupLogging(cfg)
			if cfg.DatabaseURL == "" {
				return fmt.Errorf("MESH_DATABASE_URL is required")
			}
			if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
				return fmt.Errorf("running migrations: %w", err)
			}
			slog.Info("migrations applied")
			return nil
		},
	}
}

func newSchemaCmd() *cobra.Command {
	schemaCmd := &cobra.Command{
		Use:   "schema",
		Short: "Work with schema documents",
	}
	schemaCmd.AddCommand(&cobra.Command{
		Use:   "check [dir]",
		Short: "Validate the schema documents in a directory",
		Long:  "Loads every *.yaml, *.yml and *.json schema document in dir (default MESH_SCHEMA_DIR) and reports validation problems.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := config.Load().SchemaDir
			if len(args) == 1 {
				dir = args[0]
			}
			return checkSchemas(cmd, dir)
		},
	})
	return schemaCmd
}

func checkSchemas(cmd *cobra.Command, dir string) error {
	schemas, err := schema.LoadSchemas(dir)
	if err != nil {
		return err
	}
	if err := schema.ValidateSchemas(schemas); err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	for _, s := range schemas {
		fmt.Fprintf(out, "%s\t%d fields\t%s\n", s.Name, len(s.Fields), s.Hash)
	}
	fmt.Fprintf(out, "%d schema(s) valid\n", len(schemas))
	return nil
}
