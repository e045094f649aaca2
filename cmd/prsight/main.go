package main

import (
	"log"

	"github.com/spf13/cobra"
	"prsight.dev/cmd/prsight/app"
	"prsight.dev/internal/config"
	"prsight.dev/internal/database"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}

var (
	rootCmd = &cobra.Command{
		Use:   "prsight",
		Short: "PR review-effort feature cache and scoring utilities",
	}
	extractCmd = &cobra.Command{
		Use:   "extract",
		Short: "Sync the PR cache, refresh features, and export the dataset",
		RunE:  runExtract,
	}
	scoreCmd = &cobra.Command{
		Use:   "score",
		Short: "Score an exported dataset with the model artifact",
		RunE:  runScore,
	}
	migrateCmd = &cobra.Command{
		Use:   "migrate",
		Short: "Database migrations",
	}
	upCmd = &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE:  runMigrateUp,
	}
	downCmd = &cobra.Command{
		Use:   "down",
		Short: "Revert all applied migrations",
		RunE:  runMigrateDown,
	}
)

func init() {
	migrateCmd.AddCommand(upCmd, downCmd)
	rootCmd.AddCommand(extractCmd, scoreCmd, migrateCmd)
}

func runExtract(cmd *cobra.Command, args []string) error {
	cfg := config.New()
	config.SetupLog(cfg)

	ctx := cmd.Context()
	shutdown, err := config.SetupTelemetry(ctx, cfg)
	if err != nil {
		return err
	}
	defer shutdown()
	go cfg.Watch(ctx)

	p, err := app.NewPipeline(cfg)
	if err != nil {
		return err
	}
	defer p.Close()

	return p.Extract(ctx)
}

func runScore(cmd *cobra.Command, args []string) error {
	cfg := config.New()
	config.SetupLog(cfg)
	return app.Score(cmd.Context(), cfg)
}

func runMigrateUp(cmd *cobra.Command, args []string) error {
	mg, err := newMigrator()
	if err != nil {
		return err
	}
	return mg.Up()
}

func runMigrateDown(cmd *cobra.Command, args []string) error {
	mg, err := newMigrator()
	if err != nil {
		return err
	}
	return mg.Down()
}

func newMigrator() (*database.Migrator, error) {
	cfg := config.New()
	config.SetupLog(cfg)
	return database.NewMigratorForConfig(cfg)
}
