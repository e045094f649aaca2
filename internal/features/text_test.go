package features

import (
	"testing"

	"github.com/stretchr/testify/require"
	gh "prsight.dev/internal/gateway/github"
)

func TestExtractTextFeature(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		length  int
		doc     int
		bug     int
		feature int
	}{
		{
			name:    "documentation keyword",
			body:    "Update the README with install steps",
			length:  6,
			doc:     1,
			feature: 0,
		},
		{
			name:   "bug fixing keyword",
			body:   "Fix the crash on empty payloads",
			length: 6,
			bug:    1,
		},
		{
			name:    "no keyword defaults to feature",
			body:    "Add pagination to the listing endpoint",
			length:  6,
			feature: 1,
		},
		{
			name:    "empty body",
			body:    "",
			length:  0,
			feature: 1,
		},
		{
			name:   "documentation wins over bug fixing by keyword order",
			body:   "fix typos in docs",
			length: 4,
			doc:    1,
		},
		{
			name:    "keyword inside word does not match",
			body:    "Prefix handling for documents",
			length:  4,
			feature: 1,
		},
		{
			name:   "case insensitive",
			body:   "BUG in the scheduler",
			length: 4,
			bug:    1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := ExtractTextFeature(&gh.PullRequest{Number: 7, Body: tt.body})
			require.Equal(t, 7, f.PrNum)
			require.Equal(t, tt.length, f.DescriptionLen)
			require.Equal(t, tt.doc, f.IsDocumentation)
			require.Equal(t, tt.bug, f.IsBugFixing)
			require.Equal(t, tt.feature, f.IsFeature)
		})
	}
}

func TestClassifyTextFirstMatchWins(t *testing.T) {
	// "doc" precedes "bug" in the keyword order, so a body containing both
	// classifies as documentation regardless of word positions.
	require.Equal(t, classDocumentation, classifyText("bug in the doc"))
	require.Equal(t, classBugFixing, classifyText("repair the parser"))
	require.Equal(t, "", classifyText("nothing relevant here"))
}
