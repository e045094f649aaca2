// Package export assembles the per-PR feature vectors cached in the store
// into flat records, writes them as a JSON dataset, and hands them to the
// scoring engine.
package export

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"prsight.dev/internal/database"
	"prsight.dev/internal/scoring"
)

// Store is the feature-store surface the exporter reads from.
type Store interface {
	GetProject(ctx context.Context, name string) (*database.Project, error)
	ListOpenFeatureRows(ctx context.Context) ([]*database.FeatureRow, error)
}

// Features is one PR's flat feature record. The field names are the
// versioned dataset schema the model was trained against.
type Features struct {
	AuthorExperience          float64 `json:"author_experience"`
	TotalChangeNum            float64 `json:"total_change_num"`
	AuthorReviewNum           float64 `json:"author_review_num"`
	AuthorChangesPerWeek      float64 `json:"author_changes_per_week"`
	AuthorMergeRatio          float64 `json:"author_merge_ratio"`
	AuthorMergeRatioInProject float64 `json:"author_merge_ratio_in_project"`
	NumOfReviewers            int     `json:"num_of_reviewers"`
	NumOfBotReviewers         int     `json:"num_of_bot_reviewers"`
	AvgReviewerExperience     float64 `json:"avg_reviewer_experience"`
	AvgReviewerReviewCount    float64 `json:"avg_reviewer_review_count"`
	ProjectChangesPerWeek     float64 `json:"project_changes_per_week"`
	ChangesPerAuthor          float64 `json:"changes_per_author"`
	ProjectMergeRatio         float64 `json:"project_merge_ratio"`
	DescriptionLength         int     `json:"description_length"`
	IsDocumentation           int     `json:"is_documentation"`
	IsBugFixing               int     `json:"is_bug_fixing"`
	IsFeature                 int     `json:"is_feature"`
	NumOfDirectory            int     `json:"num_of_directory"`
	ModifyEntropy             float64 `json:"modify_entropy"`
	LinesAdded                int     `json:"lines_added"`
	LinesDeleted              int     `json:"lines_deleted"`
	FilesModified             int     `json:"files_modified"`
	FilesAdded                int     `json:"files_added"`
	FilesDeleted              int     `json:"files_deleted"`
	SubsystemNum              int     `json:"subsystem_num"`
}

// Record is one dataset entry for an open PR.
type Record struct {
	Title    string   `json:"title"`
	Number   int      `json:"number"`
	Merged   bool     `json:"merged"`
	Features Features `json:"features"`
}

// BuildDataset assembles a record per open PR, merging the project-level
// features into each one.
func BuildDataset(ctx context.Context, store Store, repo string) ([]*Record, error) {
	start := time.Now()
	project, err := store.GetProject(ctx, repo)
	if err != nil {
		return nil, err
	}
	if project == nil {
		return nil, fmt.Errorf("no project features cached for %s", repo)
	}
	rows, err := store.ListOpenFeatureRows(ctx)
	if err != nil {
		return nil, err
	}
	records := make([]*Record, 0, len(rows))
	for _, row := range rows {
		records = append(records, buildRecord(row, project))
	}
	slog.InfoContext(ctx, "Dataset generation done", "prs", len(records), "elapsed", time.Since(start))
	return records, nil
}

func buildRecord(row *database.FeatureRow, project *database.Project) *Record {
	return &Record{
		Title:  row.Title,
		Number: row.Number,
		Merged: row.Merged,
		Features: Features{
			AuthorExperience:          row.AuthorExperience,
			TotalChangeNum:            row.TotalChangeNum,
			AuthorReviewNum:           row.AuthorReviewNum,
			AuthorChangesPerWeek:      row.AuthorChangesPerWeek,
			AuthorMergeRatio:          row.AuthorMergeRatio,
			AuthorMergeRatioInProject: row.AuthorProjectMergeRatio,
			NumOfReviewers:            row.NumOfReviewers,
			NumOfBotReviewers:         row.NumOfBotReviewers,
			AvgReviewerExperience:     row.AvgReviewerExperience,
			AvgReviewerReviewCount:    row.AvgReviewerReviewCount,
			ProjectChangesPerWeek:     project.ChangesPerWeek,
			ChangesPerAuthor:          project.ChangesPerAuthor,
			ProjectMergeRatio:         project.MergeRatio,
			DescriptionLength:         row.DescriptionLength,
			IsDocumentation:           row.IsDocumentation,
			IsBugFixing:               row.IsBugFixing,
			IsFeature:                 row.IsFeature,
			NumOfDirectory:            row.NumOfDirectory,
			ModifyEntropy:             row.ModifyEntropy,
			LinesAdded:                row.LinesAdded,
			LinesDeleted:              row.LinesDeleted,
			FilesModified:             row.FilesModified,
			FilesAdded:                row.FilesAdded,
			FilesDeleted:              row.FilesDeleted,
			SubsystemNum:              row.SubsystemNum,
		},
	}
}

// WriteJSON writes the dataset to path, indented for inspection.
func WriteJSON(records []*Record, path string) error {
	raw, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, raw, 0o644)
}

// ReadJSON loads a previously written dataset.
func ReadJSON(path string) ([]*Record, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var records []*Record
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, fmt.Errorf("decode dataset %s: %w", path, err)
	}
	return records, nil
}

// ScoringInput converts a record into the scoring engine's keyed vector.
func (r *Record) ScoringInput() *scoring.Input {
	f := r.Features
	return &scoring.Input{
		Number: r.Number,
		Title:  r.Title,
		Features: map[string]float64{
			"author_experience":             f.AuthorExperience,
			"total_change_num":              f.TotalChangeNum,
			"author_review_num":             f.AuthorReviewNum,
			"author_changes_per_week":       f.AuthorChangesPerWeek,
			"author_merge_ratio":            f.AuthorMergeRatio,
			"author_merge_ratio_in_project": f.AuthorMergeRatioInProject,
			"num_of_reviewers":              float64(f.NumOfReviewers),
			"num_of_bot_reviewers":          float64(f.NumOfBotReviewers),
			"avg_reviewer_experience":       f.AvgReviewerExperience,
			"avg_reviewer_review_count":     f.AvgReviewerReviewCount,
			"project_changes_per_week":      f.ProjectChangesPerWeek,
			"changes_per_author":            f.ChangesPerAuthor,
			"project_merge_ratio":           f.ProjectMergeRatio,
			"description_length":            float64(f.DescriptionLength),
			"is_documentation":              float64(f.IsDocumentation),
			"is_bug_fixing":                 float64(f.IsBugFixing),
			"is_feature":                    float64(f.IsFeature),
			"num_of_directory":              float64(f.NumOfDirectory),
			"modify_entropy":                f.ModifyEntropy,
			"lines_added":                   float64(f.LinesAdded),
			"lines_deleted":                 float64(f.LinesDeleted),
			"files_modified":                float64(f.FilesModified),
			"files_added":                   float64(f.FilesAdded),
			"files_deleted":                 float64(f.FilesDeleted),
			"subsystem_num":                 float64(f.SubsystemNum),
		},
	}
}
