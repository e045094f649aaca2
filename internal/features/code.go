package features

import (
	"context"
	"log/slog"
	"math"
	"strings"
	"time"

	"prsight.dev/internal/database"
	gh "prsight.dev/internal/gateway/github"
)

// CodeFeatures computes the code feature row for every PR in the batch,
// skipping rows the staleness policy still considers valid.
func (e *Extractor) CodeFeatures(ctx context.Context, prs []*gh.PullRequest) error {
	start := time.Now()
	computed := 0
	for _, pr := range prs {
		cached, err := e.store.GetCodeFeature(ctx, pr.Number)
		if err != nil {
			return err
		}
		if cached != nil && e.policy.DerivedFresh(pr.State == "closed", pr.UpdatedAt, cached.LastUpdate) {
			continue
		}
		if err := e.codeFeature(ctx, pr); err != nil {
			return err
		}
		computed++
	}
	slog.InfoContext(ctx, "Code features done", "prs", len(prs), "computed", computed, "elapsed", time.Since(start))
	return nil
}

func (e *Extractor) codeFeature(ctx context.Context, pr *gh.PullRequest) error {
	// Line totals come from the PR itself; the list endpoint omits them.
	detail := pr
	if pr.Additions == 0 && pr.Deletions == 0 {
		var err error
		detail, err = e.gw.GetPullRequest(ctx, pr.Number)
		if err != nil {
			return err
		}
	}
	files, err := e.gw.ListChangedFiles(ctx, pr.Number)
	if err != nil {
		return err
	}
	f := ExtractCodeFeature(detail, files)
	return e.store.UpsertCodeFeature(ctx, f)
}

// ExtractCodeFeature derives the code-shape feature row from a single scan
// of the changed-file list plus the PR-level line totals.
func ExtractCodeFeature(pr *gh.PullRequest, files []*gh.ChangedFile) *database.CodeFeature {
	f := &database.CodeFeature{
		PrNum:        pr.Number,
		LinesAdded:   pr.Additions,
		LinesDeleted: pr.Deletions,
	}
	totalModified := pr.Additions + pr.Deletions

	topDirs := map[string]struct{}{}
	parentDirs := map[string]struct{}{}
	var pks []float64

	for _, file := range files {
		if top, parent, ok := splitDirs(file.Filename); ok {
			topDirs[top] = struct{}{}
			parentDirs[parent] = struct{}{}
		}
		if totalModified > 0 && file.Changes > 0 {
			pks = append(pks, float64(file.Changes)/float64(totalModified))
		}
		switch file.Status {
		case "added":
			f.FilesAdded++
		case "removed":
			f.FilesDeleted++
		case "modified", "renamed", "changed":
			f.FilesModified++
		}
	}

	f.SubsystemNum = len(topDirs)
	f.NumOfDirectory = len(parentDirs)
	f.ModifyEntropy = shannonEntropy(pks)
	return f
}

// splitDirs returns the top-level and the immediate parent directory of a
// changed path. Root-level files carry no directory signal.
func splitDirs(path string) (top, parent string, ok bool) {
	i := strings.Index(path, "/")
	if i < 0 {
		return "", "", false
	}
	top = path[:i]
	parent = path[:strings.LastIndex(path, "/")]
	return top, parent, true
}

// shannonEntropy computes the base-2 entropy of the change-size
// distribution. The weights are normalized first, so a degenerate
// distribution (one file, or no measurable changes) yields 0.
func shannonEntropy(pks []float64) float64 {
	var sum float64
	for _, p := range pks {
		sum += p
	}
	if sum == 0 {
		return 0
	}
	var h float64
	for _, p := range pks {
		p /= sum
		if p > 0 {
			h -= p * math.Log2(p)
		}
	}
	return h
}
