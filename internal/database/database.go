package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"prsight.dev/internal/config"
	dbpgx "prsight.dev/internal/database/pgx"
)

// Database is the feature store. Every method runs in its own implicit
// transaction; no transaction is held open across calls, so cache locks are
// never held across remote fetches. All writes are idempotent upserts that
// stamp last_update with the current time.
type Database struct {
	pg *pgxpool.Pool
}

// NewForConfig constructs a Database using the provided config.
func NewForConfig(cfg *config.Config) (*Database, error) {
	pg, err := dbpgx.NewClientForConfig(cfg)
	if err != nil {
		return nil, err
	}
	return NewClient(pg), nil
}

// NewClient constructs a Database using the provided pgx pool.
func NewClient(pg *pgxpool.Pool) *Database { return &Database{pg: pg} }

// Ping verifies the database connection is available
func (db *Database) Ping(ctx context.Context) error {
	tracer := otel.Tracer("prsight/database")
	ctx, span := tracer.Start(ctx, "Database.Ping")
	defer span.End()
	if db.pg == nil {
		return fmt.Errorf("database connection not available")
	}
	return db.pg.Ping(ctx)
}

func (db *Database) Close() error {
	if db.pg == nil {
		return nil
	}
	db.pg.Close()
	return nil
}

// GetProject retrieves the cached project aggregate, nil when absent.
func (db *Database) GetProject(ctx context.Context, name string) (*Project, error) {
	tracer := otel.Tracer("prsight/database")
	ctx, span := tracer.Start(ctx, "Database.GetProject")
	span.SetAttributes(attribute.String("project", name))
	defer span.End()
	if db.pg == nil {
		return nil, fmt.Errorf("database connection not available")
	}
	var p Project
	err := db.pg.QueryRow(ctx, ProjectByNameQuery, name).
		Scan(&p.Name, &p.ChangesPerWeek, &p.ChangesPerAuthor, &p.MergeRatio, &p.LastUpdate)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("query project failed: %w", err)
	}
	return &p, nil
}

// ReplaceProject swaps the project aggregate wholesale; the expired row is
// never patched in place.
func (db *Database) ReplaceProject(ctx context.Context, p *Project) error {
	tracer := otel.Tracer("prsight/database")
	ctx, span := tracer.Start(ctx, "Database.ReplaceProject")
	span.SetAttributes(attribute.String("project", p.Name))
	defer span.End()
	if db.pg == nil {
		return fmt.Errorf("database connection not available")
	}
	slog.DebugContext(ctx, "replace project", "name", p.Name, "merge_ratio", p.MergeRatio)
	b := &pgx.Batch{}
	b.Queue(DeleteProjectQuery, p.Name)
	b.Queue(UpsertProjectQuery, p.Name, p.ChangesPerWeek, p.ChangesPerAuthor, p.MergeRatio)
	br := db.pg.SendBatch(ctx, b)
	defer br.Close()
	for range 2 {
		if _, err := br.Exec(); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return fmt.Errorf("replace project failed: %w", err)
		}
	}
	return nil
}

// GetUser retrieves a user aggregate row, nil when absent.
func (db *Database) GetUser(ctx context.Context, username string) (*User, error) {
	tracer := otel.Tracer("prsight/database")
	ctx, span := tracer.Start(ctx, "Database.GetUser")
	span.SetAttributes(attribute.String("username", username))
	defer span.End()
	if db.pg == nil {
		return nil, fmt.Errorf("database connection not available")
	}
	var u User
	err := db.pg.QueryRow(ctx, UserByNameQuery, username).
		Scan(&u.Username, &u.Classification, &u.Experience, &u.TotalChangeNumber,
			&u.ReviewNumber, &u.ChangesPerWeek, &u.GlobalMergeRatio, &u.ProjectMergeRatio, &u.LastUpdate)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("query user failed: %w", err)
	}
	return &u, nil
}

// UpsertUser stores a user aggregate row keyed by username.
func (db *Database) UpsertUser(ctx context.Context, u *User) error {
	tracer := otel.Tracer("prsight/database")
	ctx, span := tracer.Start(ctx, "Database.UpsertUser")
	span.SetAttributes(attribute.String("username", u.Username), attribute.String("classification", u.Classification))
	defer span.End()
	if db.pg == nil {
		return fmt.Errorf("database connection not available")
	}
	slog.DebugContext(ctx, "upsert user", "username", u.Username, "classification", u.Classification)
	_, err := db.pg.Exec(ctx, UpsertUserQuery, u.Username, u.Classification, u.Experience,
		u.TotalChangeNumber, u.ReviewNumber, u.ChangesPerWeek, u.GlobalMergeRatio, u.ProjectMergeRatio)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("upsert user failed: %w", err)
	}
	return nil
}

// ListUsersByClassification returns all users with the given classification.
func (db *Database) ListUsersByClassification(ctx context.Context, class string) ([]*User, error) {
	tracer := otel.Tracer("prsight/database")
	ctx, span := tracer.Start(ctx, "Database.ListUsersByClassification")
	span.SetAttributes(attribute.String("classification", class))
	defer span.End()
	if db.pg == nil {
		return nil, fmt.Errorf("database connection not available")
	}
	rows, err := db.pg.Query(ctx, UsersByClassificationQuery, class)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("list users query failed: %w", err)
	}
	defer rows.Close()
	var out []*User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.Username, &u.Classification, &u.Experience, &u.TotalChangeNumber,
			&u.ReviewNumber, &u.ChangesPerWeek, &u.GlobalMergeRatio, &u.ProjectMergeRatio, &u.LastUpdate); err != nil {
			return nil, err
		}
		out = append(out, &u)
	}
	return out, rows.Err()
}

// ImputePrivateUsers backfills the aggregate-only fields of every private
// user and private author snapshot that is still unresolved.
func (db *Database) ImputePrivateUsers(ctx context.Context, m ImputedMedians) error {
	tracer := otel.Tracer("prsight/database")
	ctx, span := tracer.Start(ctx, "Database.ImputePrivateUsers")
	defer span.End()
	if db.pg == nil {
		return fmt.Errorf("database connection not available")
	}
	slog.DebugContext(ctx, "impute private users",
		"total_change_number", m.TotalChangeNumber,
		"review_number", m.ReviewNumber,
		"changes_per_week", m.ChangesPerWeek)
	b := &pgx.Batch{}
	b.Queue(ImputePrivateUsersQuery, m.TotalChangeNumber, m.ReviewNumber, m.ChangesPerWeek)
	b.Queue(ImputePrivateSnapshotsQuery, m.TotalChangeNumber, m.ReviewNumber, m.ChangesPerWeek)
	br := db.pg.SendBatch(ctx, b)
	defer br.Close()
	for range 2 {
		if _, err := br.Exec(); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return fmt.Errorf("impute private users failed: %w", err)
		}
	}
	return nil
}

// UpsertPullRequests stores a batch of PR rows keyed by number.
func (db *Database) UpsertPullRequests(ctx context.Context, prs []*PullRequest) error {
	tracer := otel.Tracer("prsight/database")
	ctx, span := tracer.Start(ctx, "Database.UpsertPullRequests")
	span.SetAttributes(attribute.Int("prs_len", len(prs)))
	defer span.End()
	if db.pg == nil {
		return fmt.Errorf("database connection not available")
	}
	if len(prs) == 0 {
		return nil
	}
	b := &pgx.Batch{}
	for _, pr := range prs {
		b.Queue(UpsertPullRequestQuery, pr.Number, pr.Title, pr.State, pr.Merged, pr.Author, pr.Created, pr.Closed)
	}
	slog.DebugContext(ctx, "upsert pull requests queued", "count", len(prs))
	br := db.pg.SendBatch(ctx, b)
	defer br.Close()
	for range prs {
		if _, err := br.Exec(); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return fmt.Errorf("upsert pull request failed: %w", err)
		}
	}
	return nil
}

// CountPullRequests returns the row count of the PR table.
func (db *Database) CountPullRequests(ctx context.Context) (int, error) {
	if db.pg == nil {
		return 0, fmt.Errorf("database connection not available")
	}
	var n int
	if err := db.pg.QueryRow(ctx, PullRequestCountQuery).Scan(&n); err != nil {
		return 0, fmt.Errorf("count pull requests failed: %w", err)
	}
	return n, nil
}

// GetPullRequest retrieves one PR row, nil when absent.
func (db *Database) GetPullRequest(ctx context.Context, number int) (*PullRequest, error) {
	if db.pg == nil {
		return nil, fmt.Errorf("database connection not available")
	}
	var pr PullRequest
	err := db.pg.QueryRow(ctx, PullRequestByNumberQuery, number).
		Scan(&pr.Number, &pr.Title, &pr.State, &pr.Merged, &pr.Author, &pr.Created, &pr.Closed, &pr.LastUpdate)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("query pull request failed: %w", err)
	}
	return &pr, nil
}

// ListOpenPullRequests returns the currently cached open PR set.
func (db *Database) ListOpenPullRequests(ctx context.Context) ([]*PullRequest, error) {
	tracer := otel.Tracer("prsight/database")
	ctx, span := tracer.Start(ctx, "Database.ListOpenPullRequests")
	defer span.End()
	if db.pg == nil {
		return nil, fmt.Errorf("database connection not available")
	}
	rows, err := db.pg.Query(ctx, OpenPullRequestsQuery)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("list open pull requests failed: %w", err)
	}
	defer rows.Close()
	var out []*PullRequest
	for rows.Next() {
		var pr PullRequest
		if err := rows.Scan(&pr.Number, &pr.Title, &pr.State, &pr.Merged, &pr.Author, &pr.Created, &pr.Closed, &pr.LastUpdate); err != nil {
			return nil, err
		}
		out = append(out, &pr)
	}
	return out, rows.Err()
}

// GetProjectWindowStats aggregates closed-PR history over [from, to].
func (db *Database) GetProjectWindowStats(ctx context.Context, from, to time.Time) (*ProjectWindowStats, error) {
	if db.pg == nil {
		return nil, fmt.Errorf("database connection not available")
	}
	var s ProjectWindowStats
	if err := db.pg.QueryRow(ctx, ProjectWindowStatsQuery, from, to).
		Scan(&s.Closed, &s.Merged, &s.DistinctAuthors); err != nil {
		return nil, fmt.Errorf("project window stats failed: %w", err)
	}
	return &s, nil
}

// GetAuthorWindowStats aggregates one author's closed-PR history over [from, to].
func (db *Database) GetAuthorWindowStats(ctx context.Context, author string, from, to time.Time) (*AuthorWindowStats, error) {
	if db.pg == nil {
		return nil, fmt.Errorf("database connection not available")
	}
	var s AuthorWindowStats
	if err := db.pg.QueryRow(ctx, AuthorWindowStatsQuery, author, from, to).
		Scan(&s.Closed, &s.Merged); err != nil {
		return nil, fmt.Errorf("author window stats failed: %w", err)
	}
	return &s, nil
}

// CountAuthoredPullRequests counts every cached PR authored by username.
func (db *Database) CountAuthoredPullRequests(ctx context.Context, author string) (int, error) {
	if db.pg == nil {
		return 0, fmt.Errorf("database connection not available")
	}
	var n int
	if err := db.pg.QueryRow(ctx, AuthoredCountQuery, author).Scan(&n); err != nil {
		return 0, fmt.Errorf("count authored pull requests failed: %w", err)
	}
	return n, nil
}

// ListClosedNumbersInWindow returns closed PR numbers in [from, to], newest first.
func (db *Database) ListClosedNumbersInWindow(ctx context.Context, from, to time.Time) ([]int, error) {
	if db.pg == nil {
		return nil, fmt.Errorf("database connection not available")
	}
	rows, err := db.pg.Query(ctx, ClosedNumbersInWindowQuery, from, to)
	if err != nil {
		return nil, fmt.Errorf("closed numbers in window failed: %w", err)
	}
	defer rows.Close()
	return pgx.CollectRows(rows, pgx.RowTo[int])
}

// GetWatermark returns the synchronization watermark for repo, nil before the
// first bulk load commits.
func (db *Database) GetWatermark(ctx context.Context, repo string) (*time.Time, error) {
	if db.pg == nil {
		return nil, fmt.Errorf("database connection not available")
	}
	var wm time.Time
	err := db.pg.QueryRow(ctx, WatermarkQuery, repo).Scan(&wm)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("query watermark failed: %w", err)
	}
	return &wm, nil
}

// SetWatermark advances the synchronization watermark for repo.
func (db *Database) SetWatermark(ctx context.Context, repo string, wm time.Time) error {
	tracer := otel.Tracer("prsight/database")
	ctx, span := tracer.Start(ctx, "Database.SetWatermark")
	span.SetAttributes(attribute.String("repo", repo))
	defer span.End()
	if db.pg == nil {
		return fmt.Errorf("database connection not available")
	}
	slog.DebugContext(ctx, "set watermark", "repo", repo, "watermark", wm)
	if _, err := db.pg.Exec(ctx, UpsertWatermarkQuery, repo, wm); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("set watermark failed: %w", err)
	}
	return nil
}

// GetAuthorSnapshot retrieves the author snapshot for one PR, nil when absent.
func (db *Database) GetAuthorSnapshot(ctx context.Context, prNum int) (*AuthorSnapshot, error) {
	if db.pg == nil {
		return nil, fmt.Errorf("database connection not available")
	}
	return db.scanAuthorSnapshot(db.pg.QueryRow(ctx, AuthorSnapshotByPrQuery, prNum))
}

// GetAuthorSnapshotByDay retrieves the freshest snapshot for (username, day),
// enabling same-day reuse across PRs by the same author.
func (db *Database) GetAuthorSnapshotByDay(ctx context.Context, username string, day time.Time) (*AuthorSnapshot, error) {
	if db.pg == nil {
		return nil, fmt.Errorf("database connection not available")
	}
	return db.scanAuthorSnapshot(db.pg.QueryRow(ctx, AuthorSnapshotByDayQuery, username, day))
}

func (db *Database) scanAuthorSnapshot(row pgx.Row) (*AuthorSnapshot, error) {
	var s AuthorSnapshot
	err := row.Scan(&s.PrNum, &s.Username, &s.Classification, &s.PrDate, &s.Experience,
		&s.TotalChangeNumber, &s.ReviewNumber, &s.ChangesPerWeek,
		&s.GlobalMergeRatio, &s.ProjectMergeRatio, &s.LastUpdate)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("query author snapshot failed: %w", err)
	}
	return &s, nil
}

// UpsertAuthorSnapshot stores an author snapshot keyed by PR number.
func (db *Database) UpsertAuthorSnapshot(ctx context.Context, s *AuthorSnapshot) error {
	tracer := otel.Tracer("prsight/database")
	ctx, span := tracer.Start(ctx, "Database.UpsertAuthorSnapshot")
	span.SetAttributes(attribute.Int("pr_num", s.PrNum), attribute.String("username", s.Username))
	defer span.End()
	if db.pg == nil {
		return fmt.Errorf("database connection not available")
	}
	slog.DebugContext(ctx, "upsert author snapshot", "pr_num", s.PrNum, "username", s.Username)
	_, err := db.pg.Exec(ctx, UpsertAuthorSnapshotQuery, s.PrNum, s.Username, s.Classification,
		s.PrDate, s.Experience, s.TotalChangeNumber, s.ReviewNumber, s.ChangesPerWeek,
		s.GlobalMergeRatio, s.ProjectMergeRatio)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("upsert author snapshot failed: %w", err)
	}
	return nil
}

// UpsertReviewerFeature stores a reviewer feature row keyed by PR number.
func (db *Database) UpsertReviewerFeature(ctx context.Context, f *ReviewerFeature) error {
	if db.pg == nil {
		return fmt.Errorf("database connection not available")
	}
	_, err := db.pg.Exec(ctx, UpsertReviewerFeatureQuery, f.PrNum, f.Humans, f.Bots, f.AvgExperience, f.AvgReviews)
	if err != nil {
		return fmt.Errorf("upsert reviewer feature failed: %w", err)
	}
	return nil
}

// UpsertTextFeature stores a text feature row keyed by PR number.
func (db *Database) UpsertTextFeature(ctx context.Context, f *TextFeature) error {
	if db.pg == nil {
		return fmt.Errorf("database connection not available")
	}
	_, err := db.pg.Exec(ctx, UpsertTextFeatureQuery, f.PrNum, f.DescriptionLen, f.IsDocumentation, f.IsBugFixing, f.IsFeature)
	if err != nil {
		return fmt.Errorf("upsert text feature failed: %w", err)
	}
	return nil
}

// GetCodeFeature retrieves the code feature row for one PR, nil when absent.
func (db *Database) GetCodeFeature(ctx context.Context, prNum int) (*CodeFeature, error) {
	if db.pg == nil {
		return nil, fmt.Errorf("database connection not available")
	}
	var f CodeFeature
	err := db.pg.QueryRow(ctx, CodeFeatureByPrQuery, prNum).
		Scan(&f.PrNum, &f.NumOfDirectory, &f.ModifyEntropy, &f.LinesAdded, &f.LinesDeleted,
			&f.FilesAdded, &f.FilesDeleted, &f.FilesModified, &f.SubsystemNum, &f.LastUpdate)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("query code feature failed: %w", err)
	}
	return &f, nil
}

// UpsertCodeFeature stores a code feature row keyed by PR number.
func (db *Database) UpsertCodeFeature(ctx context.Context, f *CodeFeature) error {
	if db.pg == nil {
		return fmt.Errorf("database connection not available")
	}
	_, err := db.pg.Exec(ctx, UpsertCodeFeatureQuery, f.PrNum, f.NumOfDirectory, f.ModifyEntropy,
		f.LinesAdded, f.LinesDeleted, f.FilesAdded, f.FilesDeleted, f.FilesModified, f.SubsystemNum)
	if err != nil {
		return fmt.Errorf("upsert code feature failed: %w", err)
	}
	return nil
}

// CleanupFeatureRows drops the per-PR feature rows that must not survive a
// sync cycle: reviewer and text rows always, code and author rows for PRs
// that left the active open set.
func (db *Database) CleanupFeatureRows(ctx context.Context, activeOpen []int) error {
	tracer := otel.Tracer("prsight/database")
	ctx, span := tracer.Start(ctx, "Database.CleanupFeatureRows")
	span.SetAttributes(attribute.Int("active_open_len", len(activeOpen)))
	defer span.End()
	if db.pg == nil {
		return fmt.Errorf("database connection not available")
	}
	if activeOpen == nil {
		activeOpen = []int{}
	}
	slog.DebugContext(ctx, "cleanup feature rows", "active_open", len(activeOpen))
	b := &pgx.Batch{}
	b.Queue(DeleteReviewerFeaturesQuery)
	b.Queue(DeleteTextFeaturesQuery)
	b.Queue(DeleteCodeFeaturesExceptQuery, activeOpen)
	b.Queue(DeleteAuthorSnapshotsExceptQuery, activeOpen)
	br := db.pg.SendBatch(ctx, b)
	defer br.Close()
	for range 4 {
		if _, err := br.Exec(); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return fmt.Errorf("cleanup feature rows failed: %w", err)
		}
	}
	return nil
}

// ListOpenFeatureRows joins the per-PR feature tables for every open PR whose
// feature set is complete.
func (db *Database) ListOpenFeatureRows(ctx context.Context) ([]*FeatureRow, error) {
	tracer := otel.Tracer("prsight/database")
	ctx, span := tracer.Start(ctx, "Database.ListOpenFeatureRows")
	defer span.End()
	if db.pg == nil {
		return nil, fmt.Errorf("database connection not available")
	}
	rows, err := db.pg.Query(ctx, OpenFeatureRowsQuery)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("list open feature rows failed: %w", err)
	}
	defer rows.Close()
	var out []*FeatureRow
	for rows.Next() {
		var r FeatureRow
		var totalChange, reviewNum, changesPerWeek *float64
		if err := rows.Scan(&r.Number, &r.Title, &r.Merged,
			&r.AuthorExperience, &totalChange, &reviewNum, &changesPerWeek,
			&r.AuthorMergeRatio, &r.AuthorProjectMergeRatio,
			&r.NumOfReviewers, &r.NumOfBotReviewers, &r.AvgReviewerExperience, &r.AvgReviewerReviewCount,
			&r.DescriptionLength, &r.IsDocumentation, &r.IsBugFixing, &r.IsFeature,
			&r.NumOfDirectory, &r.ModifyEntropy, &r.LinesAdded, &r.LinesDeleted,
			&r.FilesAdded, &r.FilesDeleted, &r.FilesModified, &r.SubsystemNum); err != nil {
			return nil, err
		}
		// Unresolved nulls only remain if the imputation pass never ran.
		if totalChange != nil {
			r.TotalChangeNum = *totalChange
		}
		if reviewNum != nil {
			r.AuthorReviewNum = *reviewNum
		}
		if changesPerWeek != nil {
			r.AuthorChangesPerWeek = *changesPerWeek
		}
		out = append(out, &r)
	}
	slog.DebugContext(ctx, "list open feature rows done", "count", len(out))
	return out, rows.Err()
}
