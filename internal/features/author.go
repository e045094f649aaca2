package features

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"prsight.dev/internal/database"
	gh "prsight.dev/internal/gateway/github"
)

// AuthorFeatures refreshes the per-PR author snapshots. Snapshots are keyed
// by PR and anchored to the PR's creation date, so a long-lived PR keeps the
// author profile it was opened against. The imputation pass runs once after
// the whole batch so private users receive medians over the final public
// population.
func (e *Extractor) AuthorFeatures(ctx context.Context, prs []*gh.PullRequest) error {
	start := time.Now()
	for _, pr := range prs {
		if err := e.authorFeature(ctx, pr); err != nil {
			return fmt.Errorf("author features for #%d: %w", pr.Number, err)
		}
	}
	if err := e.ImputePrivateUsers(ctx); err != nil {
		return err
	}
	slog.InfoContext(ctx, "Author features done", "prs", len(prs), "elapsed", time.Since(start))
	return nil
}

// authorStats is the resolved historical profile of one author, before it is
// written to the users table and the PR snapshot.
type authorStats struct {
	class        string
	total        *float64
	reviews      *float64
	cpw          *float64
	globalRatio  float64
	projectRatio float64
}

func (e *Extractor) authorFeature(ctx context.Context, pr *gh.PullRequest) error {
	snap, err := e.store.GetAuthorSnapshot(ctx, pr.Number)
	if err != nil {
		return err
	}
	if snap != nil && e.policy.Fresh(snap.LastUpdate, e.now) {
		return nil
	}

	day := dateOf(pr.CreatedAt)

	// Two PRs by the same author on the same day share one profile; copy
	// the sibling snapshot instead of resolving twice.
	sibling, err := e.store.GetAuthorSnapshotByDay(ctx, pr.Author, day)
	if err != nil {
		return err
	}
	if sibling != nil && sibling.PrNum != pr.Number && e.policy.Fresh(sibling.LastUpdate, e.now) {
		copied := *sibling
		copied.PrNum = pr.Number
		return e.store.UpsertAuthorSnapshot(ctx, &copied)
	}

	profile, err := e.gw.GetUser(ctx, pr.Author)
	if err != nil {
		return err
	}
	exp := e.experience(pr.CreatedAt, profile.CreatedAt)

	prior, err := e.store.GetUser(ctx, pr.Author)
	if err != nil {
		return err
	}
	class := database.ClassUnknown
	if prior != nil {
		class = prior.Classification
	}

	var stats authorStats
	switch {
	case class == database.ClassBot || profile.Bot || IsBotName(pr.Author, e.gw.RepoShortName()):
		stats, err = e.botAuthorStats(ctx, pr)
	case class == database.ClassPrivate:
		stats, err = e.privateAuthorStats(ctx, pr)
	default:
		stats, err = e.publicAuthorStats(ctx, pr)
	}
	if err != nil {
		return err
	}

	if err := e.store.UpsertUser(ctx, &database.User{
		Username:          pr.Author,
		Classification:    stats.class,
		Experience:        exp,
		TotalChangeNumber: stats.total,
		ReviewNumber:      stats.reviews,
		ChangesPerWeek:    stats.cpw,
		GlobalMergeRatio:  stats.globalRatio,
		ProjectMergeRatio: stats.projectRatio,
		LastUpdate:        e.now,
	}); err != nil {
		return err
	}
	return e.store.UpsertAuthorSnapshot(ctx, &database.AuthorSnapshot{
		PrNum:             pr.Number,
		Username:          pr.Author,
		Classification:    stats.class,
		PrDate:            day,
		Experience:        exp,
		TotalChangeNumber: stats.total,
		ReviewNumber:      stats.reviews,
		ChangesPerWeek:    stats.cpw,
		GlobalMergeRatio:  stats.globalRatio,
		ProjectMergeRatio: stats.projectRatio,
		LastUpdate:        e.now,
	})
}

// publicAuthorStats resolves an author through the search API, anchored at
// the PR's creation date. The first denied response reroutes the author
// through the private path.
func (e *Extractor) publicAuthorStats(ctx context.Context, pr *gh.PullRequest) (authorStats, error) {
	from := pr.CreatedAt.Add(-e.window)
	span := fmt.Sprintf("%s..%s", from.Format(time.DateOnly), pr.CreatedAt.Format(time.DateOnly))

	total, err := e.gw.SearchIssueCount(ctx, fmt.Sprintf("is:pr author:%s", pr.Author))
	if err != nil {
		return authorStats{}, err
	}
	if total.Denied {
		return e.privateAuthorStats(ctx, pr)
	}
	closed, err := e.gw.SearchIssueCount(ctx, fmt.Sprintf("author:%s type:pr is:closed closed:%s", pr.Author, span))
	if err != nil {
		return authorStats{}, err
	}
	if closed.Denied {
		return e.privateAuthorStats(ctx, pr)
	}
	merged, err := e.gw.SearchIssueCount(ctx, fmt.Sprintf("author:%s type:pr is:merged merged:%s", pr.Author, span))
	if err != nil {
		return authorStats{}, err
	}
	if merged.Denied {
		return e.privateAuthorStats(ctx, pr)
	}
	reviews, denied, err := e.searchReviewCount(ctx, pr.Author, from, pr.CreatedAt)
	if err != nil {
		return authorStats{}, err
	}
	if denied {
		return e.privateAuthorStats(ctx, pr)
	}

	projectRatio, err := e.projectMergeRatio(ctx, pr.Author, from, pr.CreatedAt)
	if err != nil {
		return authorStats{}, err
	}

	totalF := float64(total.Count)
	cpw := float64(closed.Count) * 7 / e.windowDays()
	globalRatio := DefaultMergeRatio
	if closed.Count > 0 {
		globalRatio = float64(merged.Count) / float64(closed.Count)
	}
	return authorStats{
		class:        database.ClassPublic,
		total:        &totalF,
		reviews:      &reviews,
		cpw:          &cpw,
		globalRatio:  globalRatio,
		projectRatio: projectRatio,
	}, nil
}

// privateAuthorStats covers authors whose history the search API refuses to
// aggregate. Global fields stay unresolved for the imputation pass; the
// in-project ratio still comes from the local history, which is visible
// regardless of profile privacy.
func (e *Extractor) privateAuthorStats(ctx context.Context, pr *gh.PullRequest) (authorStats, error) {
	from := pr.CreatedAt.Add(-e.window)
	projectRatio, err := e.projectMergeRatio(ctx, pr.Author, from, pr.CreatedAt)
	if err != nil {
		return authorStats{}, err
	}
	return authorStats{
		class:        database.ClassPrivate,
		globalRatio:  DefaultMergeRatio,
		projectRatio: projectRatio,
	}, nil
}

// botAuthorStats resolves a bot author entirely from the cached history;
// searching for a service account's global activity is not meaningful.
func (e *Extractor) botAuthorStats(ctx context.Context, pr *gh.PullRequest) (authorStats, error) {
	from := pr.CreatedAt.Add(-e.window)
	authored, err := e.store.CountAuthoredPullRequests(ctx, pr.Author)
	if err != nil {
		return authorStats{}, err
	}
	reviews, err := e.localReviewCount(ctx, pr.Author, from, pr.CreatedAt)
	if err != nil {
		return authorStats{}, err
	}
	window, err := e.store.GetAuthorWindowStats(ctx, pr.Author, from, pr.CreatedAt)
	if err != nil {
		return authorStats{}, err
	}
	total := float64(authored)
	cpw := float64(window.Closed) * 7 / e.windowDays()
	ratio := DefaultMergeRatio
	if window.Closed > 0 {
		ratio = float64(window.Merged) / float64(window.Closed)
	}
	// A bot has no global history worth searching; its in-project ratio
	// stands in for both.
	return authorStats{
		class:        database.ClassBot,
		total:        &total,
		reviews:      &reviews,
		cpw:          &cpw,
		globalRatio:  ratio,
		projectRatio: ratio,
	}, nil
}

// projectMergeRatio is the author's merge ratio over closed PRs of this
// repository inside the window, defaulting to 0.5 when nothing closed.
func (e *Extractor) projectMergeRatio(ctx context.Context, author string, from, to time.Time) (float64, error) {
	stats, err := e.store.GetAuthorWindowStats(ctx, author, from, to)
	if err != nil {
		return 0, err
	}
	if stats.Closed == 0 {
		return DefaultMergeRatio, nil
	}
	return float64(stats.Merged) / float64(stats.Closed), nil
}

func (e *Extractor) windowDays() float64 {
	return e.window.Hours() / 24
}

func dateOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
