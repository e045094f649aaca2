package features

import (
	"testing"

	"github.com/stretchr/testify/require"
	gh "prsight.dev/internal/gateway/github"
)

func TestExtractCodeFeature(t *testing.T) {
	pr := &gh.PullRequest{Number: 42, Additions: 7, Deletions: 3}
	files := []*gh.ChangedFile{
		{Filename: "internal/server/handler.go", Status: "modified", Changes: 8},
		{Filename: "internal/server/routes.go", Status: "added", Changes: 2},
		{Filename: "docs/api.md", Status: "removed", Changes: 0},
		{Filename: "README.md", Status: "modified", Changes: 0},
	}

	f := ExtractCodeFeature(pr, files)
	require.Equal(t, 42, f.PrNum)
	require.Equal(t, 7, f.LinesAdded)
	require.Equal(t, 3, f.LinesDeleted)
	require.Equal(t, 2, f.FilesModified)
	require.Equal(t, 1, f.FilesAdded)
	require.Equal(t, 1, f.FilesDeleted)

	// internal and docs; README.md sits at the root and carries no signal.
	require.Equal(t, 2, f.SubsystemNum)
	// internal/server and docs.
	require.Equal(t, 2, f.NumOfDirectory)

	// Changes 8 and 2 over 10 modified lines normalize to 0.8/0.2.
	require.InDelta(t, 0.7219, f.ModifyEntropy, 1e-4)
}

func TestExtractCodeFeatureNoMeasurableChanges(t *testing.T) {
	pr := &gh.PullRequest{Number: 1}
	files := []*gh.ChangedFile{
		{Filename: "a/b/c.go", Status: "renamed", Changes: 0},
	}
	f := ExtractCodeFeature(pr, files)
	require.Zero(t, f.ModifyEntropy)
	require.Equal(t, 1, f.FilesModified)
	require.Equal(t, 1, f.SubsystemNum)
	require.Equal(t, 1, f.NumOfDirectory)
}

func TestSplitDirs(t *testing.T) {
	tests := []struct {
		path   string
		top    string
		parent string
		ok     bool
	}{
		{"internal/server/handler.go", "internal", "internal/server", true},
		{"docs/api.md", "docs", "docs", true},
		{"main.go", "", "", false},
	}
	for _, tt := range tests {
		top, parent, ok := splitDirs(tt.path)
		require.Equal(t, tt.ok, ok, tt.path)
		require.Equal(t, tt.top, top, tt.path)
		require.Equal(t, tt.parent, parent, tt.path)
	}
}

func TestShannonEntropy(t *testing.T) {
	// Uniform two-way split is exactly one bit.
	require.InDelta(t, 1.0, shannonEntropy([]float64{0.5, 0.5}), 1e-9)
	// Single file carries no information.
	require.Zero(t, shannonEntropy([]float64{1.0}))
	require.Zero(t, shannonEntropy(nil))
	// Unnormalized weights are normalized before measuring.
	require.InDelta(t, 1.0, shannonEntropy([]float64{3, 3}), 1e-9)
}
