package features

import (
	"context"
	"log/slog"
	"regexp"
	"time"

	"prsight.dev/internal/database"
	gh "prsight.dev/internal/gateway/github"
)

var wordToken = regexp.MustCompile(`\w+`)

const (
	classDocumentation = "documentation"
	classBugFixing     = "bug-fixing"
)

// keywordMatcher pairs a classification keyword with its compiled
// word-boundary pattern. The slice order is significant: the first matching
// keyword decides the class.
type keywordMatcher struct {
	class string
	re    *regexp.Regexp
}

var textKeywords = compileKeywords([]struct{ word, class string }{
	{"doc", classDocumentation},
	{"docs", classDocumentation},
	{"documentation", classDocumentation},
	{"readme", classDocumentation},
	{"license", classDocumentation},
	{"copyright", classDocumentation},
	{"bug", classBugFixing},
	{"fix", classBugFixing},
	{"repair", classBugFixing},
	{"defect", classBugFixing},
})

func compileKeywords(words []struct{ word, class string }) []keywordMatcher {
	out := make([]keywordMatcher, 0, len(words))
	for _, w := range words {
		out = append(out, keywordMatcher{
			class: w.class,
			re:    regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(w.word) + `\b`),
		})
	}
	return out
}

// TextFeatures recomputes the text feature row of every PR in the batch.
func (e *Extractor) TextFeatures(ctx context.Context, prs []*gh.PullRequest) error {
	start := time.Now()
	for _, pr := range prs {
		if err := e.store.UpsertTextFeature(ctx, ExtractTextFeature(pr)); err != nil {
			return err
		}
	}
	slog.InfoContext(ctx, "Text features done", "prs", len(prs), "elapsed", time.Since(start))
	return nil
}

// ExtractTextFeature derives the text feature row from a PR's description:
// the word-token count plus a single-class tag over {documentation,
// bug-fixing, feature}, feature being the default.
func ExtractTextFeature(pr *gh.PullRequest) *database.TextFeature {
	f := &database.TextFeature{PrNum: pr.Number}
	f.DescriptionLen = len(wordToken.FindAllString(pr.Body, -1))
	switch classifyText(pr.Body) {
	case classDocumentation:
		f.IsDocumentation = 1
	case classBugFixing:
		f.IsBugFixing = 1
	default:
		f.IsFeature = 1
	}
	return f
}

func classifyText(text string) string {
	for _, kw := range textKeywords {
		if kw.re.MatchString(text) {
			return kw.class
		}
	}
	return ""
}
