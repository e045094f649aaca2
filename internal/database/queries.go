package database

import "time"

const (
	UpsertProjectQuery = `
INSERT INTO projects (name, changes_per_week, changes_per_author, merge_ratio, last_update)
VALUES ($1, $2, $3, $4, now())
ON CONFLICT (name) DO UPDATE SET
	changes_per_week = EXCLUDED.changes_per_week,
	changes_per_author = EXCLUDED.changes_per_author,
	merge_ratio = EXCLUDED.merge_ratio,
	last_update = now()`

	ProjectByNameQuery = `
SELECT name, changes_per_week, changes_per_author, merge_ratio, last_update
FROM projects WHERE name = $1`

	DeleteProjectQuery = `DELETE FROM projects WHERE name = $1`

	UpsertUserQuery = `
INSERT INTO users (username, classification, experience, total_change_number,
	review_number, changes_per_week, global_merge_ratio, project_merge_ratio, last_update)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())
ON CONFLICT (username) DO UPDATE SET
	classification = EXCLUDED.classification,
	experience = EXCLUDED.experience,
	total_change_number = EXCLUDED.total_change_number,
	review_number = EXCLUDED.review_number,
	changes_per_week = EXCLUDED.changes_per_week,
	global_merge_ratio = EXCLUDED.global_merge_ratio,
	project_merge_ratio = EXCLUDED.project_merge_ratio,
	last_update = now()`

	UserByNameQuery = `
SELECT username, classification, experience, total_change_number,
	review_number, changes_per_week, global_merge_ratio, project_merge_ratio, last_update
FROM users WHERE username = $1`

	UsersByClassificationQuery = `
SELECT username, classification, experience, total_change_number,
	review_number, changes_per_week, global_merge_ratio, project_merge_ratio, last_update
FROM users WHERE classification = $1`

	ImputePrivateUsersQuery = `
UPDATE users SET
	total_change_number = COALESCE(total_change_number, $1),
	review_number = COALESCE(review_number, $2),
	changes_per_week = COALESCE(changes_per_week, $3),
	last_update = now()
WHERE classification = 'private'`

	UpsertPullRequestQuery = `
INSERT INTO pull_requests (number, title, state, merged, author, created, closed, last_update)
VALUES ($1, $2, $3, $4, $5, $6, $7, now())
ON CONFLICT (number) DO UPDATE SET
	title = EXCLUDED.title,
	state = EXCLUDED.state,
	merged = EXCLUDED.merged,
	closed = EXCLUDED.closed,
	last_update = now()`

	PullRequestCountQuery = `SELECT count(*) FROM pull_requests`

	OpenPullRequestsQuery = `
SELECT number, title, state, merged, author, created, closed, last_update
FROM pull_requests WHERE state = 'open' ORDER BY number`

	PullRequestByNumberQuery = `
SELECT number, title, state, merged, author, created, closed, last_update
FROM pull_requests WHERE number = $1`

	ProjectWindowStatsQuery = `
SELECT count(*), count(*) FILTER (WHERE merged), count(DISTINCT author)
FROM pull_requests
WHERE state = 'closed' AND closed >= $1 AND closed <= $2`

	AuthorWindowStatsQuery = `
SELECT count(*), count(*) FILTER (WHERE merged)
FROM pull_requests
WHERE author = $1 AND state = 'closed' AND closed >= $2 AND closed <= $3`

	AuthoredCountQuery = `SELECT count(*) FROM pull_requests WHERE author = $1`

	ClosedNumbersInWindowQuery = `
SELECT number FROM pull_requests
WHERE state = 'closed' AND closed >= $1 AND closed <= $2
ORDER BY closed DESC`

	WatermarkQuery       = `SELECT watermark FROM sync_state WHERE repo = $1`
	UpsertWatermarkQuery = `
INSERT INTO sync_state (repo, watermark) VALUES ($1, $2)
ON CONFLICT (repo) DO UPDATE SET watermark = EXCLUDED.watermark`

	UpsertAuthorSnapshotQuery = `
INSERT INTO pr_authors (pr_num, username, classification, pr_date, experience,
	total_change_number, review_number, changes_per_week,
	global_merge_ratio, project_merge_ratio, last_update)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now())
ON CONFLICT (pr_num) DO UPDATE SET
	username = EXCLUDED.username,
	classification = EXCLUDED.classification,
	pr_date = EXCLUDED.pr_date,
	experience = EXCLUDED.experience,
	total_change_number = EXCLUDED.total_change_number,
	review_number = EXCLUDED.review_number,
	changes_per_week = EXCLUDED.changes_per_week,
	global_merge_ratio = EXCLUDED.global_merge_ratio,
	project_merge_ratio = EXCLUDED.project_merge_ratio,
	last_update = now()`

	AuthorSnapshotByPrQuery = `
SELECT pr_num, username, classification, pr_date, experience, total_change_number,
	review_number, changes_per_week, global_merge_ratio, project_merge_ratio, last_update
FROM pr_authors WHERE pr_num = $1`

	AuthorSnapshotByDayQuery = `
SELECT pr_num, username, classification, pr_date, experience, total_change_number,
	review_number, changes_per_week, global_merge_ratio, project_merge_ratio, last_update
FROM pr_authors WHERE username = $1 AND pr_date = $2
ORDER BY last_update DESC LIMIT 1`

	DeleteAuthorSnapshotsExceptQuery = `DELETE FROM pr_authors WHERE NOT (pr_num = ANY($1))`

	ImputePrivateSnapshotsQuery = `
UPDATE pr_authors SET
	total_change_number = COALESCE(total_change_number, $1),
	review_number = COALESCE(review_number, $2),
	changes_per_week = COALESCE(changes_per_week, $3),
	last_update = now()
WHERE classification = 'private'`

	UpsertReviewerFeatureQuery = `
INSERT INTO pr_reviewers (pr_num, humans, bots, avg_experience, avg_reviews, last_update)
VALUES ($1, $2, $3, $4, $5, now())
ON CONFLICT (pr_num) DO UPDATE SET
	humans = EXCLUDED.humans,
	bots = EXCLUDED.bots,
	avg_experience = EXCLUDED.avg_experience,
	avg_reviews = EXCLUDED.avg_reviews,
	last_update = now()`

	DeleteReviewerFeaturesQuery = `DELETE FROM pr_reviewers`

	UpsertTextFeatureQuery = `
INSERT INTO pr_text (pr_num, description_len, is_documentation, is_bug_fixing, is_feature, last_update)
VALUES ($1, $2, $3, $4, $5, now())
ON CONFLICT (pr_num) DO UPDATE SET
	description_len = EXCLUDED.description_len,
	is_documentation = EXCLUDED.is_documentation,
	is_bug_fixing = EXCLUDED.is_bug_fixing,
	is_feature = EXCLUDED.is_feature,
	last_update = now()`

	DeleteTextFeaturesQuery = `DELETE FROM pr_text`

	UpsertCodeFeatureQuery = `
INSERT INTO pr_code (pr_num, num_of_directory, modify_entropy, lines_added, lines_deleted,
	files_added, files_deleted, files_modified, subsystem_num, last_update)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now())
ON CONFLICT (pr_num) DO UPDATE SET
	num_of_directory = EXCLUDED.num_of_directory,
	modify_entropy = EXCLUDED.modify_entropy,
	lines_added = EXCLUDED.lines_added,
	lines_deleted = EXCLUDED.lines_deleted,
	files_added = EXCLUDED.files_added,
	files_deleted = EXCLUDED.files_deleted,
	files_modified = EXCLUDED.files_modified,
	subsystem_num = EXCLUDED.subsystem_num,
	last_update = now()`

	CodeFeatureByPrQuery = `
SELECT pr_num, num_of_directory, modify_entropy, lines_added, lines_deleted,
	files_added, files_deleted, files_modified, subsystem_num, last_update
FROM pr_code WHERE pr_num = $1`

	DeleteCodeFeaturesExceptQuery = `DELETE FROM pr_code WHERE NOT (pr_num = ANY($1))`

	OpenFeatureRowsQuery = `
SELECT pr.number, pr.title, pr.merged,
	a.experience, a.total_change_number, a.review_number, a.changes_per_week,
	a.global_merge_ratio, a.project_merge_ratio,
	r.humans, r.bots, r.avg_experience, r.avg_reviews,
	t.description_len, t.is_documentation, t.is_bug_fixing, t.is_feature,
	c.num_of_directory, c.modify_entropy, c.lines_added, c.lines_deleted,
	c.files_added, c.files_deleted, c.files_modified, c.subsystem_num
FROM pull_requests pr
JOIN pr_authors a ON a.pr_num = pr.number
JOIN pr_reviewers r ON r.pr_num = pr.number
JOIN pr_text t ON t.pr_num = pr.number
JOIN pr_code c ON c.pr_num = pr.number
WHERE pr.state = 'open'
ORDER BY pr.number`
)

type Project struct {
	Name             string
	ChangesPerWeek   float64
	ChangesPerAuthor float64
	MergeRatio       float64
	LastUpdate       time.Time
}

// User classifications. A user starts as unknown and settles into exactly
// one of the other three during a refresh cycle.
const (
	ClassUnknown = "unknown"
	ClassPublic  = "public"
	ClassPrivate = "private"
	ClassBot     = "bot"
)

type User struct {
	Username          string
	Classification    string
	Experience        float64
	TotalChangeNumber *float64
	ReviewNumber      *float64
	ChangesPerWeek    *float64
	GlobalMergeRatio  float64
	ProjectMergeRatio float64
	LastUpdate        time.Time
}

type PullRequest struct {
	Number     int
	Title      string
	State      string
	Merged     bool
	Author     string
	Created    time.Time
	Closed     *time.Time
	LastUpdate time.Time
}

// AuthorSnapshot is the per-PR author feature row, frozen at the PR's
// creation date. Nullable fields mirror User and are only null for private
// authors awaiting imputation.
type AuthorSnapshot struct {
	PrNum             int
	Username          string
	Classification    string
	PrDate            time.Time
	Experience        float64
	TotalChangeNumber *float64
	ReviewNumber      *float64
	ChangesPerWeek    *float64
	GlobalMergeRatio  float64
	ProjectMergeRatio float64
	LastUpdate        time.Time
}

type ReviewerFeature struct {
	PrNum         int
	Humans        int
	Bots          int
	AvgExperience float64
	AvgReviews    float64
	LastUpdate    time.Time
}

type TextFeature struct {
	PrNum           int
	DescriptionLen  int
	IsDocumentation int
	IsBugFixing     int
	IsFeature       int
	LastUpdate      time.Time
}

type CodeFeature struct {
	PrNum          int
	NumOfDirectory int
	ModifyEntropy  float64
	LinesAdded     int
	LinesDeleted   int
	FilesAdded     int
	FilesDeleted   int
	FilesModified  int
	SubsystemNum   int
	LastUpdate     time.Time
}

type ProjectWindowStats struct {
	Closed          int
	Merged          int
	DistinctAuthors int
}

type AuthorWindowStats struct {
	Closed int
	Merged int
}

// ImputedMedians carries the population medians assigned to private users
// after a batch completes.
type ImputedMedians struct {
	TotalChangeNumber float64
	ReviewNumber      float64
	ChangesPerWeek    float64
}

// FeatureRow is one assembled feature vector joined across the per-PR
// feature tables, ready for export and scoring.
type FeatureRow struct {
	Number int
	Title  string
	Merged bool

	AuthorExperience        float64
	TotalChangeNum          float64
	AuthorReviewNum         float64
	AuthorChangesPerWeek    float64
	AuthorMergeRatio        float64
	AuthorProjectMergeRatio float64

	NumOfReviewers         int
	NumOfBotReviewers      int
	AvgReviewerExperience  float64
	AvgReviewerReviewCount float64

	DescriptionLength int
	IsDocumentation   int
	IsBugFixing       int
	IsFeature         int

	NumOfDirectory int
	ModifyEntropy  float64
	LinesAdded     int
	LinesDeleted   int
	FilesAdded     int
	FilesDeleted   int
	FilesModified  int
	SubsystemNum   int
}
