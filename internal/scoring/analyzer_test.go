package scoring

import (
	"context"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeArtifact(t *testing.T, a Artifact) string {
	t.Helper()
	raw, err := json.Marshal(a)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "model.json")
	require.NoError(t, os.WriteFile(path, raw, 0o644))
	return path
}

func fittedScaler() ScalerParams {
	p := ScalerParams{
		Features: NumericalFeatures,
		Mean:     map[string]float64{},
		Scale:    map[string]float64{},
	}
	for _, f := range NumericalFeatures {
		p.Mean[f] = 0
		p.Scale[f] = 1
	}
	return p
}

func TestCompileRuleEval(t *testing.T) {
	rule, err := compileRule(Rule{
		Name: "rule_0",
		Expr: "lines_added <= 2.5 & modify_entropy > 0.5",
	})
	require.NoError(t, err)

	require.Equal(t, 1.0, rule.Eval(map[string]float64{"lines_added": 2.5, "modify_entropy": 0.6}))
	require.Equal(t, 0.0, rule.Eval(map[string]float64{"lines_added": 3, "modify_entropy": 0.6}))
	require.Equal(t, 0.0, rule.Eval(map[string]float64{"lines_added": 1, "modify_entropy": 0.5}))
}

func TestCompileRuleRejectsMalformed(t *testing.T) {
	_, err := compileRule(Rule{Name: "bad", Expr: "lines_added < 1"})
	require.Error(t, err)
	_, err = compileRule(Rule{Name: "bad", Expr: "lines_added <="})
	require.Error(t, err)
	_, err = compileRule(Rule{Name: "bad", Expr: "lines_added <= high"})
	require.Error(t, err)
}

func TestAnalyzerBiasOnlyModel(t *testing.T) {
	weights := make([]float64, 1+len(Features))
	path := writeArtifact(t, Artifact{Scaler: fittedScaler(), Weights: weights})

	a := NewAnalyzer(context.Background(), path)
	require.False(t, a.Stub())

	results := a.Analyze([]*Input{{Number: 1, Title: "t", Features: map[string]float64{}}})
	require.Len(t, results, 1)
	// Zero weights leave only the bias term 0, logistic(0) = 0.5.
	require.InDelta(t, 0.5, results[0].Probability, 1e-9)
}

func TestAnalyzerRuleWeight(t *testing.T) {
	weights := make([]float64, 1+len(Features)+1)
	weights[len(weights)-1] = 2
	path := writeArtifact(t, Artifact{
		Scaler:  fittedScaler(),
		Rules:   []Rule{{Name: "rule_0", Expr: "lines_added > 0.5"}},
		Weights: weights,
	})

	a := NewAnalyzer(context.Background(), path)
	require.False(t, a.Stub())

	hit := a.Analyze([]*Input{{Number: 1, Features: map[string]float64{"lines_added": 1}}})
	miss := a.Analyze([]*Input{{Number: 2, Features: map[string]float64{"lines_added": 0}}})
	require.InDelta(t, 1/(1+math.Exp(-2)), hit[0].Probability, 1e-9)
	require.InDelta(t, 0.5, miss[0].Probability, 1e-9)
}

func TestAnalyzerStubMode(t *testing.T) {
	tests := []struct {
		name string
		path func(t *testing.T) string
	}{
		{"no path", func(t *testing.T) string { return "" }},
		{"missing file", func(t *testing.T) string { return filepath.Join(t.TempDir(), "absent.json") }},
		{"malformed artifact", func(t *testing.T) string {
			path := filepath.Join(t.TempDir(), "model.json")
			require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))
			return path
		}},
		{"weight length mismatch", func(t *testing.T) string {
			return writeArtifact(t, Artifact{Weights: []float64{1, 2, 3}})
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := NewAnalyzer(context.Background(), tt.path(t), WithRandom(func() float64 { return 0.42 }))
			require.True(t, a.Stub())

			results := a.Analyze([]*Input{{Number: 1}, {Number: 2}})
			require.Len(t, results, 2)
			for _, r := range results {
				require.Equal(t, 0.42, r.Probability)
			}
		})
	}
}

func TestFitScaler(t *testing.T) {
	inputs := []*Input{
		{Features: map[string]float64{"lines_added": 2}},
		{Features: map[string]float64{"lines_added": 4}},
	}
	p := fitScaler(inputs)
	require.Equal(t, 3.0, p.Mean["lines_added"])
	require.Equal(t, 1.0, p.Scale["lines_added"])
	// Constant fields scale by 1 so they standardize to 0.
	require.Equal(t, 1.0, p.Scale["modify_entropy"])
	require.Zero(t, p.Mean["modify_entropy"])
}

func TestAnalyzerFitsScalerOnce(t *testing.T) {
	weights := make([]float64, 1+len(Features))
	path := writeArtifact(t, Artifact{Weights: weights})

	a := NewAnalyzer(context.Background(), path)
	require.False(t, a.artifact.Scaler.Fitted())

	a.Analyze([]*Input{{Number: 1, Features: map[string]float64{"lines_added": 3}}})
	require.True(t, a.artifact.Scaler.Fitted())
	first := a.artifact.Scaler.Mean["lines_added"]

	a.Analyze([]*Input{{Number: 2, Features: map[string]float64{"lines_added": 9}}})
	require.Equal(t, first, a.artifact.Scaler.Mean["lines_added"])
}
