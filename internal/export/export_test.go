package export

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"prsight.dev/internal/database"
)

type fakeStore struct {
	project *database.Project
	rows    []*database.FeatureRow
}

func (s *fakeStore) GetProject(ctx context.Context, name string) (*database.Project, error) {
	return s.project, nil
}

func (s *fakeStore) ListOpenFeatureRows(ctx context.Context) ([]*database.FeatureRow, error) {
	return s.rows, nil
}

func TestBuildDataset(t *testing.T) {
	store := &fakeStore{
		project: &database.Project{
			Name:             "acme/widgets",
			ChangesPerWeek:   1.4,
			ChangesPerAuthor: 2.4,
			MergeRatio:       0.8,
		},
		rows: []*database.FeatureRow{
			{
				Number:                  5,
				Title:                   "Add pagination",
				AuthorExperience:        3.5,
				NumOfReviewers:          2,
				DescriptionLength:       12,
				IsFeature:               1,
				ModifyEntropy:           0.72,
				LinesAdded:              40,
				AuthorProjectMergeRatio: 0.9,
			},
		},
	}

	records, err := BuildDataset(context.Background(), store, "acme/widgets")
	require.NoError(t, err)
	require.Len(t, records, 1)

	r := records[0]
	require.Equal(t, 5, r.Number)
	require.Equal(t, "Add pagination", r.Title)
	require.Equal(t, 3.5, r.Features.AuthorExperience)
	require.Equal(t, 0.9, r.Features.AuthorMergeRatioInProject)

	// Project velocity merges into every record.
	require.Equal(t, 1.4, r.Features.ProjectChangesPerWeek)
	require.Equal(t, 2.4, r.Features.ChangesPerAuthor)
	require.Equal(t, 0.8, r.Features.ProjectMergeRatio)
}

func TestBuildDatasetNoProject(t *testing.T) {
	_, err := BuildDataset(context.Background(), &fakeStore{}, "acme/widgets")
	require.Error(t, err)
}

func TestWriteReadJSONRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "features.json")
	records := []*Record{{Number: 1, Title: "t", Features: Features{LinesAdded: 3}}}
	require.NoError(t, WriteJSON(records, path))

	loaded, err := ReadJSON(path)
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	require.Equal(t, 3, loaded[0].Features.LinesAdded)
}

func TestScoringInputCoversModelFields(t *testing.T) {
	r := &Record{
		Number: 9,
		Features: Features{
			AuthorExperience:  2.5,
			NumOfReviewers:    3,
			IsBugFixing:       1,
			ModifyEntropy:     0.5,
			DescriptionLength: 20,
		},
	}
	in := r.ScoringInput()
	require.Equal(t, 9, in.Number)
	require.Equal(t, 2.5, in.Features["author_experience"])
	require.Equal(t, 3.0, in.Features["num_of_reviewers"])
	require.Equal(t, 1.0, in.Features["is_bug_fixing"])
	require.Equal(t, 20.0, in.Features["description_length"])
	require.Len(t, in.Features, 25)
}
