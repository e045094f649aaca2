package features

import (
	"context"
	"log/slog"
	"regexp"
	"sort"
	"time"

	"prsight.dev/internal/database"
)

// botTags are the username fragments that mark an account as automation. The
// repository short name joins the set at match time: project-named accounts
// are invariably service accounts.
var botTags = compileBotTags("do not use", "bot", "chatbot", "ci", "jenkins")

func compileBotTags(tags ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(tags))
	for _, tag := range tags {
		out = append(out, botTagPattern(tag))
	}
	return out
}

func botTagPattern(tag string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(tag) + `\b`)
}

// IsBotName reports whether a username matches the bot tag set,
// case-insensitive with word boundaries.
func IsBotName(username, repoShortName string) bool {
	for _, re := range botTags {
		if re.MatchString(username) {
			return true
		}
	}
	if repoShortName == "" {
		return false
	}
	return botTagPattern(repoShortName).MatchString(username)
}

// Median returns the middle value of vals, averaging the two middle values
// for even lengths. It returns 0 for an empty slice.
func Median(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	s := append([]float64{}, vals...)
	sort.Float64s(s)
	mid := len(s) / 2
	if len(s)%2 == 1 {
		return s[mid]
	}
	return (s[mid-1] + s[mid]) / 2
}

// ImputePrivateUsers is the deferred second phase of private-profile
// resolution: once the whole batch is resolved, every private user's
// unresolved fields receive the median of the public population. Running it
// once at the end keeps the statistic from drifting as users resolve
// mid-batch. With no public users the fields default to 0; merge ratios keep
// their own 0.5 default and are never imputed.
func (e *Extractor) ImputePrivateUsers(ctx context.Context) error {
	start := time.Now()
	publics, err := e.store.ListUsersByClassification(ctx, database.ClassPublic)
	if err != nil {
		return err
	}
	m := PublicMedians(publics)
	if err := e.store.ImputePrivateUsers(ctx, m); err != nil {
		return err
	}
	slog.InfoContext(ctx, "Private user imputation done", "public_users", len(publics), "elapsed", time.Since(start))
	return nil
}

// PublicMedians computes the per-field medians over the resolved values of
// the public population.
func PublicMedians(publics []*database.User) database.ImputedMedians {
	var totals, reviews, cpw []float64
	for _, u := range publics {
		if u.TotalChangeNumber != nil {
			totals = append(totals, *u.TotalChangeNumber)
		}
		if u.ReviewNumber != nil {
			reviews = append(reviews, *u.ReviewNumber)
		}
		if u.ChangesPerWeek != nil {
			cpw = append(cpw, *u.ChangesPerWeek)
		}
	}
	return database.ImputedMedians{
		TotalChangeNumber: Median(totals),
		ReviewNumber:      Median(reviews),
		ChangesPerWeek:    Median(cpw),
	}
}
