package syncer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
	"prsight.dev/internal/database"
	gh "prsight.dev/internal/gateway/github"
)

// scanCutoff bounds the incremental walk: a PR updated more than this long
// before the watermark is assumed unchanged. The boundary is inclusive, a PR
// updated exactly at watermark-cutoff is still visited.
const scanCutoff = 24 * time.Hour

const pageSize = 100

// Store is the slice of the feature store the sync engine reconciles.
type Store interface {
	GetWatermark(ctx context.Context, repo string) (*time.Time, error)
	SetWatermark(ctx context.Context, repo string, wm time.Time) error
	UpsertPullRequests(ctx context.Context, prs []*database.PullRequest) error
	GetPullRequest(ctx context.Context, number int) (*database.PullRequest, error)
	CleanupFeatureRows(ctx context.Context, activeOpen []int) error
}

// Gateway is the remote PR listing surface consumed by the sync engine.
type Gateway interface {
	Repo() string
	ListPullRequestsPage(ctx context.Context, state, sort, direction string, page, perPage int) ([]*gh.PullRequest, int, error)
}

// Syncer reconciles the cached PR table against the gateway's live PR list:
// bulk load on first run, bounded incremental deltas afterward.
type Syncer struct {
	store   Store
	gw      Gateway
	workers int
}

func New(store Store, gw Gateway, workers int) *Syncer {
	if workers <= 0 {
		workers = 2
	}
	return &Syncer{store: store, gw: gw, workers: workers}
}

// Sync brings the PR table up to date and garbage-collects feature rows for
// PRs that left the active open set. It returns the live open, non-draft PR
// summaries for the extractors.
func (s *Syncer) Sync(ctx context.Context) ([]*gh.PullRequest, error) {
	start := time.Now()
	wm, err := s.store.GetWatermark(ctx, s.gw.Repo())
	if err != nil {
		return nil, err
	}
	if wm == nil {
		if err := s.bulkLoad(ctx); err != nil {
			return nil, fmt.Errorf("bulk load: %w", err)
		}
	} else if err := s.incremental(ctx, *wm); err != nil {
		return nil, fmt.Errorf("incremental sync: %w", err)
	}

	open, err := s.listAllPages(ctx, "open", "created", "desc")
	if err != nil {
		return nil, err
	}
	active := make([]*gh.PullRequest, 0, len(open))
	nums := make([]int, 0, len(open))
	for _, pr := range open {
		if pr.Draft {
			continue
		}
		active = append(active, pr)
		nums = append(nums, pr.Number)
	}
	if err := s.store.CleanupFeatureRows(ctx, nums); err != nil {
		return nil, err
	}
	slog.InfoContext(ctx, "PR table synchronized", "repo", s.gw.Repo(), "open", len(active), "elapsed", time.Since(start))
	return active, nil
}

// bulkLoad fills an empty PR table with the repository's full open and
// closed history. Pages are fetched by a bounded worker pool; a collector
// inserts completed batches so memory stays bounded. The watermark is only
// written after the load commits, an interrupted run restarts from scratch.
func (s *Syncer) bulkLoad(ctx context.Context) error {
	start := time.Now()
	slog.InfoContext(ctx, "PR table empty; bulk loading", "repo", s.gw.Repo(), "workers", s.workers)

	var newestClosed time.Time
	for _, state := range []string{"open", "closed"} {
		newest, err := s.loadState(ctx, state)
		if err != nil {
			return err
		}
		if newest.After(newestClosed) {
			newestClosed = newest
		}
	}
	if newestClosed.IsZero() {
		// No closed history yet; anchor the watermark at the load itself.
		newestClosed = time.Now().UTC()
	}
	if err := s.store.SetWatermark(ctx, s.gw.Repo(), newestClosed); err != nil {
		return err
	}
	slog.InfoContext(ctx, "Bulk load committed", "repo", s.gw.Repo(), "watermark", newestClosed, "elapsed", time.Since(start))
	return nil
}

func (s *Syncer) loadState(ctx context.Context, state string) (time.Time, error) {
	first, lastPage, err := s.gw.ListPullRequestsPage(ctx, state, "created", "desc", 1, pageSize)
	if err != nil {
		return time.Time{}, err
	}

	batches := make(chan []*gh.PullRequest, s.workers)
	var newestClosed time.Time
	var total int

	// Collector: inserts completed batches as workers hand them over. On a
	// store failure it keeps draining so no worker blocks on send.
	collectErr := make(chan error, 1)
	go func() {
		var failed error
		for batch := range batches {
			if failed != nil {
				continue
			}
			rows := make([]*database.PullRequest, 0, len(batch))
			for _, pr := range batch {
				if pr.State == "open" && pr.Draft {
					continue
				}
				rows = append(rows, toRow(pr))
				if pr.ClosedAt != nil && pr.ClosedAt.After(newestClosed) {
					newestClosed = *pr.ClosedAt
				}
			}
			if err := s.store.UpsertPullRequests(ctx, rows); err != nil {
				failed = err
				continue
			}
			total += len(rows)
		}
		collectErr <- failed
	}()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	batches <- first
	for page := 2; page <= lastPage; page++ {
		g.Go(func() error {
			prs, _, err := s.gw.ListPullRequestsPage(gctx, state, "created", "desc", page, pageSize)
			if err != nil {
				return err
			}
			batches <- prs
			return nil
		})
	}
	err = g.Wait()
	close(batches)
	if cerr := <-collectErr; cerr != nil && err == nil {
		err = cerr
	}
	if err != nil {
		return time.Time{}, err
	}
	slog.InfoContext(ctx, "Bulk load state done", "state", state, "prs", total, "pages", max(lastPage, 1))
	return newestClosed, nil
}

// incremental walks the PR list in strictly descending update order and
// stops at the first PR older than watermark-cutoff. The ordering bounds the
// scan without missing updates and must not be parallelized.
func (s *Syncer) incremental(ctx context.Context, wm time.Time) error {
	start := time.Now()
	cutoff := wm.Add(-scanCutoff)
	maxClosed := wm
	visited := 0

	page := 1
scan:
	for {
		prs, lastPage, err := s.gw.ListPullRequestsPage(ctx, "all", "updated", "desc", page, pageSize)
		if err != nil {
			return err
		}
		for _, pr := range prs {
			if pr.UpdatedAt.Before(cutoff) {
				break scan
			}
			if err := s.applyDelta(ctx, pr); err != nil {
				return err
			}
			if pr.ClosedAt != nil && pr.ClosedAt.After(maxClosed) {
				maxClosed = *pr.ClosedAt
			}
			visited++
		}
		if lastPage == 0 || page >= lastPage {
			break
		}
		page++
	}

	if maxClosed.After(wm) {
		if err := s.store.SetWatermark(ctx, s.gw.Repo(), maxClosed); err != nil {
			return err
		}
	}
	slog.InfoContext(ctx, "Incremental sync done", "repo", s.gw.Repo(), "visited", visited, "watermark", maxClosed, "elapsed", time.Since(start))
	return nil
}

// applyDelta overwrites the mutable fields of a known PR, or inserts an
// unseen one unless it is an open draft.
func (s *Syncer) applyDelta(ctx context.Context, pr *gh.PullRequest) error {
	existing, err := s.store.GetPullRequest(ctx, pr.Number)
	if err != nil {
		return err
	}
	if existing == nil && pr.State == "open" && pr.Draft {
		return nil
	}
	return s.store.UpsertPullRequests(ctx, []*database.PullRequest{toRow(pr)})
}

func (s *Syncer) listAllPages(ctx context.Context, state, sort, direction string) ([]*gh.PullRequest, error) {
	var out []*gh.PullRequest
	page := 1
	for {
		prs, lastPage, err := s.gw.ListPullRequestsPage(ctx, state, sort, direction, page, pageSize)
		if err != nil {
			return nil, err
		}
		out = append(out, prs...)
		if lastPage == 0 || page >= lastPage {
			return out, nil
		}
		page++
	}
}

func toRow(pr *gh.PullRequest) *database.PullRequest {
	return &database.PullRequest{
		Number:  pr.Number,
		Title:   pr.Title,
		State:   pr.State,
		Merged:  pr.Merged,
		Author:  pr.Author,
		Created: pr.CreatedAt,
		Closed:  pr.ClosedAt,
	}
}
