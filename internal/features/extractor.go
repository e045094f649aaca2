package features

import (
	"context"
	"log/slog"
	"time"

	"prsight.dev/internal/database"
	gh "prsight.dev/internal/gateway/github"
)

const (
	// DaysPerYear converts day spans to fractional years of experience.
	DaysPerYear = 365.25

	// DefaultMergeRatio is reported whenever the underlying closed count is 0.
	DefaultMergeRatio = 0.5
)

// Store is the feature-store handle passed into every extractor call. No
// extractor keeps state of its own between invocations.
type Store interface {
	GetProject(ctx context.Context, name string) (*database.Project, error)
	ReplaceProject(ctx context.Context, p *database.Project) error

	GetUser(ctx context.Context, username string) (*database.User, error)
	UpsertUser(ctx context.Context, u *database.User) error
	ListUsersByClassification(ctx context.Context, class string) ([]*database.User, error)
	ImputePrivateUsers(ctx context.Context, m database.ImputedMedians) error

	GetProjectWindowStats(ctx context.Context, from, to time.Time) (*database.ProjectWindowStats, error)
	GetAuthorWindowStats(ctx context.Context, author string, from, to time.Time) (*database.AuthorWindowStats, error)
	CountAuthoredPullRequests(ctx context.Context, author string) (int, error)
	ListClosedNumbersInWindow(ctx context.Context, from, to time.Time) ([]int, error)

	GetAuthorSnapshot(ctx context.Context, prNum int) (*database.AuthorSnapshot, error)
	GetAuthorSnapshotByDay(ctx context.Context, username string, day time.Time) (*database.AuthorSnapshot, error)
	UpsertAuthorSnapshot(ctx context.Context, s *database.AuthorSnapshot) error

	UpsertReviewerFeature(ctx context.Context, f *database.ReviewerFeature) error
	UpsertTextFeature(ctx context.Context, f *database.TextFeature) error
	GetCodeFeature(ctx context.Context, prNum int) (*database.CodeFeature, error)
	UpsertCodeFeature(ctx context.Context, f *database.CodeFeature) error
}

// Gateway is the remote capability surface the extractors consume.
type Gateway interface {
	Repo() string
	RepoShortName() string
	GetPullRequest(ctx context.Context, number int) (*gh.PullRequest, error)
	ListChangedFiles(ctx context.Context, number int) ([]*gh.ChangedFile, error)
	ListReviewers(ctx context.Context, number int) ([]string, error)
	GetUser(ctx context.Context, login string) (*gh.User, error)
	SearchIssueCount(ctx context.Context, query string) (gh.SearchResult, error)
}

// Extractor computes and refreshes the per-PR and per-user feature rows,
// consulting the store for cache hits and the gateway for live data.
type Extractor struct {
	store  Store
	gw     Gateway
	policy Policy
	window time.Duration
	now    time.Time
}

// ExtractorOptions configures the extractor.
type ExtractorOptions struct {
	window time.Duration
	ttl    time.Duration
	now    time.Time
}

// ExtractorOption applies a configuration to ExtractorOptions.
type ExtractorOption func(*ExtractorOptions)

// WithHistoryWindow sets the trailing window for historical aggregates.
func WithHistoryWindow(d time.Duration) ExtractorOption {
	return func(o *ExtractorOptions) { o.window = d }
}

// WithCacheTTL sets the staleness TTL for project and user aggregates.
func WithCacheTTL(d time.Duration) ExtractorOption {
	return func(o *ExtractorOptions) { o.ttl = d }
}

// WithNow pins the extractor's time reference; all staleness checks and
// trailing windows of one run share it.
func WithNow(t time.Time) ExtractorOption {
	return func(o *ExtractorOptions) { o.now = t }
}

// NewExtractor constructs an Extractor bound to a store handle and gateway.
func NewExtractor(store Store, gw Gateway, opts ...ExtractorOption) *Extractor {
	o := ExtractorOptions{
		window: 60 * 24 * time.Hour,
		ttl:    24 * time.Hour,
		now:    time.Now().UTC(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return &Extractor{
		store:  store,
		gw:     gw,
		policy: Policy{TTL: o.ttl},
		window: o.window,
		now:    o.now,
	}
}

// Run refreshes every feature category for the given open PR set. Author
// features run last so the deferred imputation pass sees the whole batch.
func (e *Extractor) Run(ctx context.Context, prs []*gh.PullRequest) error {
	start := time.Now()
	if err := e.ProjectFeatures(ctx); err != nil {
		return err
	}
	if err := e.TextFeatures(ctx, prs); err != nil {
		return err
	}
	if err := e.CodeFeatures(ctx, prs); err != nil {
		return err
	}
	if err := e.ReviewerFeatures(ctx, prs); err != nil {
		return err
	}
	if err := e.AuthorFeatures(ctx, prs); err != nil {
		return err
	}
	slog.InfoContext(ctx, "Feature extraction done", "prs", len(prs), "elapsed", time.Since(start))
	return nil
}
