package features

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"prsight.dev/internal/database"
	gh "prsight.dev/internal/gateway/github"
)

// ReviewerFeatures refreshes the reviewer rows for the given pull requests.
// Reviewer rows are derived state and rebuilt on every run; the per-user
// profile lookups underneath are TTL-cached in the users table.
func (e *Extractor) ReviewerFeatures(ctx context.Context, prs []*gh.PullRequest) error {
	start := time.Now()
	for _, pr := range prs {
		if err := e.reviewerFeature(ctx, pr); err != nil {
			return fmt.Errorf("reviewer features for #%d: %w", pr.Number, err)
		}
	}
	slog.InfoContext(ctx, "Reviewer features done", "prs", len(prs), "elapsed", time.Since(start))
	return nil
}

func (e *Extractor) reviewerFeature(ctx context.Context, pr *gh.PullRequest) error {
	posted, err := e.gw.ListReviewers(ctx, pr.Number)
	if err != nil {
		return err
	}
	names := slices.Clone(pr.RequestedReviewers)
	for _, login := range posted {
		if !slices.Contains(names, login) {
			names = append(names, login)
		}
	}

	var humans, bots int
	var sumExp, sumRev float64
	for _, name := range names {
		if IsBotName(name, e.gw.RepoShortName()) {
			bots++
			continue
		}
		exp, revs, isBot, err := e.reviewerStats(ctx, pr, name)
		if err != nil {
			return err
		}
		if isBot {
			bots++
			continue
		}
		humans++
		sumExp += exp
		sumRev += revs
	}

	f := &database.ReviewerFeature{
		PrNum:      pr.Number,
		Humans:     humans,
		Bots:       bots,
		LastUpdate: e.now,
	}
	if humans > 0 {
		f.AvgExperience = sumExp / float64(humans)
		f.AvgReviews = sumRev / float64(humans)
	}
	return e.store.UpsertReviewerFeature(ctx, f)
}

// reviewerStats resolves one reviewer's experience and review count, reusing
// the cached users row while it is fresh.
func (e *Extractor) reviewerStats(ctx context.Context, pr *gh.PullRequest, username string) (exp, revs float64, isBot bool, err error) {
	u, err := e.store.GetUser(ctx, username)
	if err != nil {
		return 0, 0, false, err
	}
	if u != nil && u.Classification != database.ClassUnknown && e.policy.Fresh(u.LastUpdate, e.now) {
		if u.Classification == database.ClassBot {
			return 0, 0, true, nil
		}
		if u.ReviewNumber != nil {
			revs = *u.ReviewNumber
		}
		return u.Experience, revs, false, nil
	}

	profile, err := e.gw.GetUser(ctx, username)
	if err != nil {
		return 0, 0, false, err
	}
	exp = e.experience(pr.CreatedAt, profile.CreatedAt)
	if profile.Bot {
		err = e.store.UpsertUser(ctx, &database.User{
			Username:          username,
			Classification:    database.ClassBot,
			Experience:        exp,
			GlobalMergeRatio:  DefaultMergeRatio,
			ProjectMergeRatio: DefaultMergeRatio,
			LastUpdate:        e.now,
		})
		return 0, 0, true, err
	}

	from := pr.CreatedAt.Add(-e.window)
	revs, denied, err := e.searchReviewCount(ctx, username, from, pr.CreatedAt)
	if err != nil {
		return 0, 0, false, err
	}
	class := database.ClassPublic
	if denied {
		class = database.ClassPrivate
		revs, err = e.localReviewCount(ctx, username, from, pr.CreatedAt)
		if err != nil {
			return 0, 0, false, err
		}
	}
	err = e.store.UpsertUser(ctx, &database.User{
		Username:          username,
		Classification:    class,
		Experience:        exp,
		ReviewNumber:      &revs,
		GlobalMergeRatio:  DefaultMergeRatio,
		ProjectMergeRatio: DefaultMergeRatio,
		LastUpdate:        e.now,
	})
	return exp, revs, false, err
}

// experience is the account age at the PR's creation date, in fractional
// years. Accounts registered after the anchor clamp to 0.
func (e *Extractor) experience(anchor, registered time.Time) float64 {
	exp := anchor.Sub(registered).Hours() / 24 / DaysPerYear
	if exp < 0 {
		return 0
	}
	return exp
}

// searchReviewCount counts reviews attributed to a user in the window, both
// posted reviews and outstanding requests. A denied search marks the profile
// as private.
func (e *Extractor) searchReviewCount(ctx context.Context, username string, from, to time.Time) (float64, bool, error) {
	span := fmt.Sprintf("%s..%s", from.Format(time.DateOnly), to.Format(time.DateOnly))
	reviewed, err := e.gw.SearchIssueCount(ctx, fmt.Sprintf("type:pr reviewed-by:%s closed:%s", username, span))
	if err != nil {
		return 0, false, err
	}
	if reviewed.Denied {
		return 0, true, nil
	}
	requested, err := e.gw.SearchIssueCount(ctx, fmt.Sprintf("type:pr review-requested:%s closed:%s", username, span))
	if err != nil {
		return 0, false, err
	}
	if requested.Denied {
		return 0, true, nil
	}
	return float64(reviewed.Count) + float64(requested.Count), false, nil
}

// localReviewCount falls back to the cached history when search is denied,
// counting closed pull requests in the window where the user appears as a
// reviewer.
func (e *Extractor) localReviewCount(ctx context.Context, username string, from, to time.Time) (float64, error) {
	nums, err := e.store.ListClosedNumbersInWindow(ctx, from, to)
	if err != nil {
		return 0, err
	}
	var n float64
	for _, num := range nums {
		ok, err := e.isReviewerOf(ctx, num, username)
		if err != nil {
			return 0, err
		}
		if ok {
			n++
		}
	}
	return n, nil
}

func (e *Extractor) isReviewerOf(ctx context.Context, num int, username string) (bool, error) {
	detail, err := e.gw.GetPullRequest(ctx, num)
	if err != nil {
		return false, err
	}
	if slices.Contains(detail.RequestedReviewers, username) {
		return true, nil
	}
	posted, err := e.gw.ListReviewers(ctx, num)
	if err != nil {
		return false, err
	}
	return slices.Contains(posted, username), nil
}
