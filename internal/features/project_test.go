package features

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"prsight.dev/internal/database"
)

func TestProjectAggregate(t *testing.T) {
	window := 60 * 24 * time.Hour
	stats := &database.ProjectWindowStats{Closed: 12, Merged: 10, DistinctAuthors: 5}

	p := ProjectAggregate("acme/widgets", stats, window)
	require.Equal(t, "acme/widgets", p.Name)
	require.InDelta(t, 1.4, p.ChangesPerWeek, 1e-9)
	require.InDelta(t, 2.4, p.ChangesPerAuthor, 1e-9)
	require.InDelta(t, 10.0/12.0, p.MergeRatio, 1e-9)
}

func TestProjectAggregateEmptyWindow(t *testing.T) {
	p := ProjectAggregate("acme/widgets", &database.ProjectWindowStats{}, 60*24*time.Hour)
	require.Zero(t, p.ChangesPerWeek)
	require.Zero(t, p.ChangesPerAuthor)
	require.Equal(t, DefaultMergeRatio, p.MergeRatio)
}
