package github

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/go-github/v75/github"
	"golang.org/x/time/rate"
	"k8s.io/utils/ptr"
)

// NewGitHubLimiter returns a rate limiter tuned for authenticated or unauthenticated GitHub API usage.
func NewGitHubLimiter(authenticated bool) *rate.Limiter {
	var limiter *rate.Limiter
	if authenticated {
		limiter = rate.NewLimiter(rate.Every(time.Hour), 5000)
		slog.Info(
			"Created authenticated GitHub rate limiter",
			"rate",
			"5000 requests/hour",
			"burst",
			10,
		)
	} else {
		limiter = rate.NewLimiter(rate.Every(time.Hour), 60)
		slog.Info("Created unauthenticated GitHub rate limiter", "rate", "60 requests/hour", "burst", 1)
	}
	return limiter
}

// PullRequest is the raw PR summary consumed by the sync engine and extractors.
type PullRequest struct {
	Number             int
	Title              string
	Body               string
	State              string
	Author             string
	Draft              bool
	Merged             bool
	CreatedAt          time.Time
	UpdatedAt          time.Time
	ClosedAt           *time.Time
	Additions          int
	Deletions          int
	RequestedReviewers []string
}

// ChangedFile is one entry of a PR's changed-file list.
type ChangedFile struct {
	Filename string
	Status   string
	Changes  int
}

// User is a platform profile: registration date plus the account type when
// the platform exposes it.
type User struct {
	Login     string
	CreatedAt time.Time
	Bot       bool
}

// SearchResult is the outcome of an aggregate search query. Denied marks the
// platform's access-restricted response for private profiles; it is a branch
// condition for the resolution strategy, not an error.
type SearchResult struct {
	Count  int
	Denied bool
}

// Client wraps the GitHub API client with rate limiting and retrying scoped
// to one repository.
type Client struct {
	c     *github.Client
	l     *rate.Limiter
	owner string
	repo  string
}

// ClientOptions configures the GitHub client.
type ClientOptions struct {
	token   string
	limiter *rate.Limiter
}

// ClientOption applies a configuration to ClientOptions.
type ClientOption func(*ClientOptions)

// WithToken sets the personal access token for authenticated requests.
func WithToken(token string) ClientOption {
	return func(o *ClientOptions) { o.token = token }
}

// WithLimiter sets the rate limiter used for API calls.
func WithLimiter(l *rate.Limiter) ClientOption {
	return func(o *ClientOptions) { o.limiter = l }
}

// NewClient constructs a gateway Client for the "owner/name" repository.
func NewClient(repo string, opts ...ClientOption) (*Client, error) {
	var o ClientOptions
	for _, opt := range opts {
		opt(&o)
	}
	owner, name, ok := strings.Cut(repo, "/")
	if ok {
		ok = owner != "" && name != ""
	}
	if !ok {
		return nil, fmt.Errorf("invalid repository %q: expected owner/name", repo)
	}
	if o.limiter == nil {
		o.limiter = NewGitHubLimiter(o.token != "")
	}
	if o.token != "" {
		slog.Info("Using authenticated GitHub client")
		return &Client{c: github.NewClient(nil).WithAuthToken(o.token), l: o.limiter, owner: owner, repo: name}, nil
	}
	slog.Warn("Using unauthenticated GitHub client (rate limited)")
	return &Client{c: github.NewClient(nil), l: o.limiter, owner: owner, repo: name}, nil
}

// Repo returns the tracked repository in "owner/name" form.
func (c *Client) Repo() string { return c.owner + "/" + c.repo }

// RepoShortName returns the repository name without the owner, used by the
// bot tag set.
func (c *Client) RepoShortName() string { return c.repo }

// ListPullRequestsPage fetches one page of the repository's PR list. It
// returns the page's PR summaries and the index of the last available page
// (0 when pagination info is absent).
func (c *Client) ListPullRequestsPage(
	ctx context.Context,
	state, sort, direction string,
	page, perPage int,
) ([]*PullRequest, int, error) {
	opts := &github.PullRequestListOptions{
		State:       state,
		Sort:        sort,
		Direction:   direction,
		ListOptions: github.ListOptions{Page: page, PerPage: perPage},
	}
	var prs []*github.PullRequest
	var lastPage int
	err := c.call(ctx, "list pull requests", func() error {
		var resp *github.Response
		var err error
		prs, resp, err = c.c.PullRequests.List(ctx, c.owner, c.repo, opts)
		if err != nil {
			return err
		}
		lastPage = resp.LastPage
		return nil
	})
	if err != nil {
		return nil, 0, fmt.Errorf("list pull requests %s/%s page %d: %w", c.owner, c.repo, page, err)
	}
	out := make([]*PullRequest, 0, len(prs))
	for _, pr := range prs {
		out = append(out, fromGitHubPR(pr))
	}
	return out, lastPage, nil
}

// GetPullRequest fetches one PR in full, including the PR-level addition and
// deletion totals the list endpoint omits.
func (c *Client) GetPullRequest(ctx context.Context, number int) (*PullRequest, error) {
	var pr *github.PullRequest
	err := c.call(ctx, "get pull request", func() error {
		var err error
		pr, _, err = c.c.PullRequests.Get(ctx, c.owner, c.repo, number)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("get pull request %s/%s#%d: %w", c.owner, c.repo, number, err)
	}
	return fromGitHubPR(pr), nil
}

// ListChangedFiles fetches the full changed-file list of a PR.
func (c *Client) ListChangedFiles(ctx context.Context, number int) ([]*ChangedFile, error) {
	var out []*ChangedFile
	opts := &github.ListOptions{PerPage: 100}
	for {
		var files []*github.CommitFile
		var resp *github.Response
		err := c.call(ctx, "list changed files", func() error {
			var err error
			files, resp, err = c.c.PullRequests.ListFiles(ctx, c.owner, c.repo, number, opts)
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("list files %s/%s#%d: %w", c.owner, c.repo, number, err)
		}
		for _, f := range files {
			out = append(out, &ChangedFile{
				Filename: ptr.Deref(f.Filename, ""),
				Status:   ptr.Deref(f.Status, ""),
				Changes:  ptr.Deref(f.Changes, 0),
			})
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return out, nil
}

// ListReviewers fetches the logins of users who posted a review on a PR.
func (c *Client) ListReviewers(ctx context.Context, number int) ([]string, error) {
	var out []string
	opts := &github.ListOptions{PerPage: 100}
	for {
		var reviews []*github.PullRequestReview
		var resp *github.Response
		err := c.call(ctx, "list reviews", func() error {
			var err error
			reviews, resp, err = c.c.PullRequests.ListReviews(ctx, c.owner, c.repo, number, opts)
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("list reviews %s/%s#%d: %w", c.owner, c.repo, number, err)
		}
		for _, r := range reviews {
			if r.User != nil && r.User.Login != nil {
				out = append(out, *r.User.Login)
			}
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return out, nil
}

// GetUser fetches a user profile.
func (c *Client) GetUser(ctx context.Context, login string) (*User, error) {
	var u *github.User
	err := c.call(ctx, "get user", func() error {
		var err error
		u, _, err = c.c.Users.Get(ctx, login)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("get user %s: %w", login, err)
	}
	out := &User{Login: ptr.Deref(u.Login, login), Bot: ptr.Deref(u.Type, "") == "Bot"}
	if u.CreatedAt != nil {
		out.CreatedAt = u.CreatedAt.Time
	}
	return out, nil
}

// SearchIssueCount runs an aggregate issue search and returns the total hit
// count. A 422 response marks a restricted-visibility profile and is
// reported as Denied rather than an error.
func (c *Client) SearchIssueCount(ctx context.Context, query string) (SearchResult, error) {
	var res SearchResult
	err := c.call(ctx, "search issues", func() error {
		sr, _, err := c.c.Search.Issues(ctx, query, &github.SearchOptions{ListOptions: github.ListOptions{PerPage: 1}})
		if err != nil {
			if isAccessDenied(err) {
				res = SearchResult{Denied: true}
				return nil
			}
			return err
		}
		res = SearchResult{Count: ptr.Deref(sr.Total, 0)}
		return nil
	})
	if err != nil {
		return SearchResult{}, fmt.Errorf("search %q: %w", query, err)
	}
	return res, nil
}

func isAccessDenied(err error) bool {
	var ghErr *github.ErrorResponse
	if errors.As(err, &ghErr) && ghErr.Response != nil {
		return ghErr.Response.StatusCode == http.StatusUnprocessableEntity
	}
	return false
}

func fromGitHubPR(pr *github.PullRequest) *PullRequest {
	out := &PullRequest{
		Number:    ptr.Deref(pr.Number, 0),
		Title:     ptr.Deref(pr.Title, ""),
		Body:      ptr.Deref(pr.Body, ""),
		State:     ptr.Deref(pr.State, ""),
		Draft:     ptr.Deref(pr.Draft, false),
		Merged:    pr.MergedAt != nil,
		Additions: ptr.Deref(pr.Additions, 0),
		Deletions: ptr.Deref(pr.Deletions, 0),
	}
	if pr.User != nil {
		out.Author = ptr.Deref(pr.User.Login, "")
	}
	if pr.CreatedAt != nil {
		out.CreatedAt = pr.CreatedAt.Time
	}
	if pr.UpdatedAt != nil {
		out.UpdatedAt = pr.UpdatedAt.Time
	}
	if pr.ClosedAt != nil {
		out.ClosedAt = ptr.To(pr.ClosedAt.Time)
	}
	for _, r := range pr.RequestedReviewers {
		if r.Login != nil {
			out.RequestedReviewers = append(out.RequestedReviewers, *r.Login)
		}
	}
	return out
}
