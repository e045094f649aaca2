package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"prsight.dev/internal/config"
	"prsight.dev/internal/database"
	"prsight.dev/internal/export"
	"prsight.dev/internal/features"
	gh "prsight.dev/internal/gateway/github"
	"prsight.dev/internal/scoring"
	"prsight.dev/internal/syncer"
)

// Pipeline wires the store, the gateway, and the extractors for one run.
type Pipeline struct {
	cfg *config.Config
	db  *database.Database
	gw  *gh.Client
}

// NewPipeline builds a pipeline from the environment configuration.
func NewPipeline(cfg *config.Config) (*Pipeline, error) {
	repo := cfg.GetRepo()
	if repo == "" {
		return nil, fmt.Errorf("GITHUB_REPO is not set")
	}

	var opts []gh.ClientOption
	if token := cfg.GetGitHubToken(); token != "" {
		opts = append(opts, gh.WithToken(token))
	}
	gw, err := gh.NewClient(repo, opts...)
	if err != nil {
		return nil, err
	}

	db, err := database.NewForConfig(cfg)
	if err != nil {
		return nil, err
	}
	return &Pipeline{cfg: cfg, db: db, gw: gw}, nil
}

// Close releases the pipeline's database pool.
func (p *Pipeline) Close() error {
	return p.db.Close()
}

// Extract runs the full refresh: migrate (or reset) the schema, sync the PR
// table, compute features, and write the dataset.
func (p *Pipeline) Extract(ctx context.Context) error {
	start := time.Now()

	mg, err := database.NewMigratorForConfig(p.cfg)
	if err != nil {
		return err
	}
	if p.cfg.GetResetCache() {
		slog.InfoContext(ctx, "Resetting cache schema")
		err = mg.Reset()
	} else {
		err = mg.Up()
	}
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	s := syncer.New(p.db, p.gw, p.cfg.GetBulkWorkers())
	prs, err := s.Sync(ctx)
	if err != nil {
		return err
	}

	ex := features.NewExtractor(p.db, p.gw,
		features.WithHistoryWindow(p.cfg.GetHistoryWindow()),
		features.WithCacheTTL(p.cfg.GetCacheTTL()),
	)
	if err := ex.Run(ctx, prs); err != nil {
		return err
	}

	records, err := export.BuildDataset(ctx, p.db, p.gw.Repo())
	if err != nil {
		return err
	}
	if err := export.WriteJSON(records, p.cfg.GetExportPath()); err != nil {
		return err
	}
	slog.InfoContext(ctx, "Extract done",
		"repo", p.gw.Repo(),
		"prs", len(records),
		"export", p.cfg.GetExportPath(),
		"elapsed", time.Since(start))
	return nil
}

// Score reads a previously written dataset, scores it with the configured
// model artifact, and prints the results as JSON on stdout.
func Score(ctx context.Context, cfg *config.Config) error {
	records, err := export.ReadJSON(cfg.GetExportPath())
	if err != nil {
		return err
	}
	inputs := make([]*scoring.Input, 0, len(records))
	for _, r := range records {
		inputs = append(inputs, r.ScoringInput())
	}
	analyzer := scoring.NewAnalyzer(ctx, cfg.GetModelPath())
	results := analyzer.Analyze(inputs)

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(results)
}
