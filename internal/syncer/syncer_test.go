package syncer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"prsight.dev/internal/database"
	gh "prsight.dev/internal/gateway/github"
)

var baseTime = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

type fakeStore struct {
	watermark *time.Time
	rows      map[int]*database.PullRequest
	cleanup   []int
}

func newFakeStore() *fakeStore {
	return &fakeStore{rows: map[int]*database.PullRequest{}}
}

func (s *fakeStore) GetWatermark(ctx context.Context, repo string) (*time.Time, error) {
	return s.watermark, nil
}

func (s *fakeStore) SetWatermark(ctx context.Context, repo string, wm time.Time) error {
	s.watermark = &wm
	return nil
}

func (s *fakeStore) UpsertPullRequests(ctx context.Context, prs []*database.PullRequest) error {
	for _, pr := range prs {
		s.rows[pr.Number] = pr
	}
	return nil
}

func (s *fakeStore) GetPullRequest(ctx context.Context, number int) (*database.PullRequest, error) {
	return s.rows[number], nil
}

func (s *fakeStore) CleanupFeatureRows(ctx context.Context, activeOpen []int) error {
	s.cleanup = activeOpen
	return nil
}

// fakeGateway serves canned pages per list state.
type fakeGateway struct {
	pages map[string][][]*gh.PullRequest
}

func (g *fakeGateway) Repo() string { return "acme/widgets" }

func (g *fakeGateway) ListPullRequestsPage(ctx context.Context, state, sort, direction string, page, perPage int) ([]*gh.PullRequest, int, error) {
	pages := g.pages[state]
	if page > len(pages) {
		return nil, len(pages), nil
	}
	return pages[page-1], len(pages), nil
}

func closedPR(num int, closed time.Time, merged bool) *gh.PullRequest {
	return &gh.PullRequest{
		Number:    num,
		State:     "closed",
		Merged:    merged,
		CreatedAt: closed.Add(-72 * time.Hour),
		UpdatedAt: closed,
		ClosedAt:  &closed,
	}
}

func openPR(num int, updated time.Time, draft bool) *gh.PullRequest {
	return &gh.PullRequest{
		Number:    num,
		State:     "open",
		Draft:     draft,
		CreatedAt: updated.Add(-24 * time.Hour),
		UpdatedAt: updated,
	}
}

func TestSyncBulkLoad(t *testing.T) {
	store := newFakeStore()
	gw := &fakeGateway{pages: map[string][][]*gh.PullRequest{
		"open": {{
			openPR(10, baseTime, false),
			openPR(11, baseTime, true),
		}},
		"closed": {
			{closedPR(1, baseTime.Add(-time.Hour), true)},
			{closedPR(2, baseTime.Add(-48*time.Hour), false)},
		},
	}}

	active, err := New(store, gw, 2).Sync(context.Background())
	require.NoError(t, err)

	// The draft never enters the cache or the active set.
	require.Len(t, active, 1)
	require.Equal(t, 10, active[0].Number)
	require.Contains(t, store.rows, 10)
	require.NotContains(t, store.rows, 11)
	require.Contains(t, store.rows, 1)
	require.Contains(t, store.rows, 2)

	// Watermark lands on the newest closed timestamp.
	require.NotNil(t, store.watermark)
	require.True(t, store.watermark.Equal(baseTime.Add(-time.Hour)))

	require.Equal(t, []int{10}, store.cleanup)
}

func TestSyncBulkLoadNoClosedHistory(t *testing.T) {
	store := newFakeStore()
	gw := &fakeGateway{pages: map[string][][]*gh.PullRequest{
		"open": {{openPR(10, baseTime, false)}},
	}}

	_, err := New(store, gw, 2).Sync(context.Background())
	require.NoError(t, err)
	// With nothing closed the watermark anchors at the load itself.
	require.NotNil(t, store.watermark)
	require.False(t, store.watermark.IsZero())
}

func TestSyncIncrementalStopsAtCutoff(t *testing.T) {
	wm := baseTime
	store := newFakeStore()
	store.watermark = &wm
	store.rows[3] = &database.PullRequest{Number: 3, State: "open"}

	recentClose := baseTime.Add(6 * time.Hour)
	gw := &fakeGateway{pages: map[string][][]*gh.PullRequest{
		"all": {{
			closedPR(3, recentClose, true),
			openPR(4, baseTime.Add(-12*time.Hour), false),
			// Older than watermark-24h: the scan must stop here and
			// never touch the PR behind it.
			closedPR(1, baseTime.Add(-30*time.Hour), true),
			closedPR(99, baseTime.Add(-40*time.Hour), false),
		}},
		"open": {{openPR(4, baseTime.Add(-12*time.Hour), false)}},
	}}

	active, err := New(store, gw, 2).Sync(context.Background())
	require.NoError(t, err)

	require.Len(t, active, 1)
	require.Equal(t, "closed", store.rows[3].State)
	require.Contains(t, store.rows, 4)
	require.NotContains(t, store.rows, 1)
	require.NotContains(t, store.rows, 99)

	// Watermark advances to the newest closed timestamp seen.
	require.True(t, store.watermark.Equal(recentClose))
}

func TestIncrementalVisitsCutoffBoundary(t *testing.T) {
	wm := baseTime
	store := newFakeStore()
	store.watermark = &wm

	// The cutoff is inclusive: a PR updated exactly at watermark-cutoff is
	// still visited, one second older ends the scan.
	atBoundary := openPR(5, wm.Add(-scanCutoff), false)
	pastBoundary := openPR(6, wm.Add(-scanCutoff).Add(-time.Second), false)
	gw := &fakeGateway{pages: map[string][][]*gh.PullRequest{
		"all":  {{atBoundary, pastBoundary}},
		"open": {{}},
	}}

	_, err := New(store, gw, 2).Sync(context.Background())
	require.NoError(t, err)
	require.Contains(t, store.rows, 5)
	require.NotContains(t, store.rows, 6)
}

func TestIncrementalVisitsWatermarkItself(t *testing.T) {
	wm := baseTime
	store := newFakeStore()
	store.watermark = &wm
	store.rows[3] = &database.PullRequest{Number: 3, State: "open", Title: "old"}

	atWatermark := closedPR(3, wm, true)
	atWatermark.Title = "new"
	gw := &fakeGateway{pages: map[string][][]*gh.PullRequest{
		"all":  {{atWatermark}},
		"open": {{}},
	}}

	_, err := New(store, gw, 2).Sync(context.Background())
	require.NoError(t, err)
	require.Equal(t, "new", store.rows[3].Title)
	require.Equal(t, "closed", store.rows[3].State)
}

func TestIncrementalSkipsUnknownOpenDraft(t *testing.T) {
	wm := baseTime
	store := newFakeStore()
	store.watermark = &wm

	gw := &fakeGateway{pages: map[string][][]*gh.PullRequest{
		"all":  {{openPR(7, baseTime.Add(time.Hour), true)}},
		"open": {{}},
	}}

	_, err := New(store, gw, 2).Sync(context.Background())
	require.NoError(t, err)
	require.NotContains(t, store.rows, 7)
}

func TestIncrementalUpdatesKnownDraft(t *testing.T) {
	wm := baseTime
	store := newFakeStore()
	store.watermark = &wm
	store.rows[7] = &database.PullRequest{Number: 7, State: "open"}

	closed := baseTime.Add(2 * time.Hour)
	pr := closedPR(7, closed, false)
	pr.Draft = true
	gw := &fakeGateway{pages: map[string][][]*gh.PullRequest{
		"all":  {{pr}},
		"open": {{}},
	}}

	_, err := New(store, gw, 2).Sync(context.Background())
	require.NoError(t, err)
	require.Equal(t, "closed", store.rows[7].State)
}
