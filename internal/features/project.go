package features

import (
	"context"
	"log/slog"
	"time"

	"prsight.dev/internal/database"
)

// ProjectFeatures refreshes the repository velocity aggregate over the
// trailing history window ending now. An expired row is replaced wholesale,
// never patched in place.
func (e *Extractor) ProjectFeatures(ctx context.Context) error {
	start := time.Now()
	repo := e.gw.Repo()

	cached, err := e.store.GetProject(ctx, repo)
	if err != nil {
		return err
	}
	if cached != nil && e.policy.Fresh(cached.LastUpdate, e.now) {
		slog.DebugContext(ctx, "Project aggregate fresh; skip recompute", "repo", repo, "last_update", cached.LastUpdate)
		return nil
	}

	from := e.now.Add(-e.window)
	stats, err := e.store.GetProjectWindowStats(ctx, from, e.now)
	if err != nil {
		return err
	}
	p := ProjectAggregate(repo, stats, e.window)
	if err := e.store.ReplaceProject(ctx, p); err != nil {
		return err
	}
	slog.InfoContext(ctx, "Project features done", "repo", repo, "closed", stats.Closed, "elapsed", time.Since(start))
	return nil
}

// ProjectAggregate derives the velocity aggregate from window stats. All
// three metrics default when no PR closed inside the window.
func ProjectAggregate(repo string, stats *database.ProjectWindowStats, window time.Duration) *database.Project {
	p := &database.Project{Name: repo, MergeRatio: DefaultMergeRatio}
	if stats.Closed == 0 {
		return p
	}
	windowDays := window.Hours() / 24
	p.ChangesPerWeek = float64(stats.Closed) * 7 / windowDays
	p.ChangesPerAuthor = float64(stats.Closed) / float64(stats.DistinctAuthors)
	p.MergeRatio = float64(stats.Merged) / float64(stats.Closed)
	return p
}
