package scoring

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
)

// Features is the model's input field order. The weight vector and the
// scaler parameters are versioned against this order, so it must not change
// without retraining.
var Features = []string{
	"author_experience", "author_merge_ratio", "author_changes_per_week",
	"author_merge_ratio_in_project", "total_change_num",
	"author_review_num", "description_length", "is_documentation",
	"is_bug_fixing", "is_feature", "project_changes_per_week",
	"project_merge_ratio", "changes_per_author", "num_of_reviewers",
	"num_of_bot_reviewers", "avg_reviewer_experience",
	"avg_reviewer_review_count", "lines_added", "lines_deleted",
	"files_added", "files_deleted", "files_modified", "num_of_directory",
	"modify_entropy", "subsystem_num",
}

// NumericalFeatures is the subset of Features subject to standardization.
// The boolean classification flags stay 0/1.
var NumericalFeatures = []string{
	"author_experience", "author_merge_ratio", "author_changes_per_week",
	"author_merge_ratio_in_project", "total_change_num",
	"author_review_num", "description_length", "project_changes_per_week",
	"project_merge_ratio", "changes_per_author", "num_of_reviewers",
	"num_of_bot_reviewers", "avg_reviewer_experience",
	"avg_reviewer_review_count", "lines_added", "lines_deleted",
	"files_added", "files_deleted", "files_modified", "num_of_directory",
	"modify_entropy", "subsystem_num",
}

// Artifact is the serialized model: scaler parameters, named threshold
// rules, and the weight vector for [1 | features | rule outputs].
type Artifact struct {
	Scaler  ScalerParams `json:"scaler"`
	Rules   []Rule       `json:"rules"`
	Weights []float64    `json:"weights"`
}

// ScalerParams holds the persisted per-field standardization parameters.
// Empty maps mean no scaler has been fitted yet; the analyzer then fits one
// from its first batch and reuses it.
type ScalerParams struct {
	Features []string           `json:"features"`
	Mean     map[string]float64 `json:"mean"`
	Scale    map[string]float64 `json:"scale"`
}

// Fitted reports whether standardization parameters are present.
func (p ScalerParams) Fitted() bool {
	return len(p.Mean) > 0 && len(p.Scale) > 0
}

// Rule is one named conjunctive threshold rule, e.g.
// "author_review_num > -0.63 & num_of_reviewers <= 1.05". Thresholds apply
// to standardized values.
type Rule struct {
	Name string `json:"name"`
	Expr string `json:"expr"`
}

type literal struct {
	feature string
	op      string
	value   float64
}

type compiledRule struct {
	name     string
	literals []literal
}

// Eval returns 1 when every literal of the rule holds over row, else 0.
func (r compiledRule) Eval(row map[string]float64) float64 {
	for _, l := range r.literals {
		v := row[l.feature]
		var ok bool
		switch l.op {
		case "<=":
			ok = v <= l.value
		case ">":
			ok = v > l.value
		}
		if !ok {
			return 0
		}
	}
	return 1
}

func compileRule(r Rule) (compiledRule, error) {
	c := compiledRule{name: r.Name}
	for _, part := range strings.Split(r.Expr, " & ") {
		fields := strings.Fields(part)
		if len(fields) != 3 {
			return compiledRule{}, fmt.Errorf("rule %q: malformed literal %q", r.Name, part)
		}
		op := fields[1]
		if op != "<=" && op != ">" {
			return compiledRule{}, fmt.Errorf("rule %q: unsupported operator %q", r.Name, op)
		}
		v, err := strconv.ParseFloat(fields[2], 64)
		if err != nil {
			return compiledRule{}, fmt.Errorf("rule %q: threshold %q: %w", r.Name, fields[2], err)
		}
		c.literals = append(c.literals, literal{feature: fields[0], op: op, value: v})
	}
	return c, nil
}

// loadArtifact reads and validates a model artifact from disk.
func loadArtifact(path string) (*Artifact, []compiledRule, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}
	var a Artifact
	if err := json.Unmarshal(raw, &a); err != nil {
		return nil, nil, fmt.Errorf("decode model artifact: %w", err)
	}
	if want := 1 + len(Features) + len(a.Rules); len(a.Weights) != want {
		return nil, nil, fmt.Errorf("model artifact: %d weights, want %d", len(a.Weights), want)
	}
	rules := make([]compiledRule, 0, len(a.Rules))
	for _, r := range a.Rules {
		c, err := compileRule(r)
		if err != nil {
			return nil, nil, err
		}
		rules = append(rules, c)
	}
	return &a, rules, nil
}

func logistic(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}
