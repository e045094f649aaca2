package scoring

import (
	"context"
	"log/slog"
	"math"
	"math/rand/v2"
)

// Input is one PR's assembled feature vector, keyed by model field name.
type Input struct {
	Number   int
	Title    string
	Features map[string]float64
}

// Result is the scored outcome for one PR.
type Result struct {
	Number      int     `json:"number"`
	Title       string  `json:"title"`
	Probability float64 `json:"probability"`
}

// Analyzer scores feature vectors with the loaded model. Without a usable
// artifact it degrades to stub mode and reports uniform-random
// probabilities; a missing model never fails the pipeline.
type Analyzer struct {
	artifact *Artifact
	rules    []compiledRule
	random   func() float64
}

// AnalyzerOptions configures the analyzer.
type AnalyzerOptions struct {
	random func() float64
}

// AnalyzerOption applies a configuration to AnalyzerOptions.
type AnalyzerOption func(*AnalyzerOptions)

// WithRandom overrides the stub-mode probability source.
func WithRandom(f func() float64) AnalyzerOption {
	return func(o *AnalyzerOptions) { o.random = f }
}

// NewAnalyzer loads the model artifact at path. An empty path or a
// malformed artifact yields a stub analyzer.
func NewAnalyzer(ctx context.Context, path string, opts ...AnalyzerOption) *Analyzer {
	o := AnalyzerOptions{random: rand.Float64}
	for _, opt := range opts {
		opt(&o)
	}
	a := &Analyzer{random: o.random}
	if path == "" {
		slog.WarnContext(ctx, "No model artifact configured, scoring in stub mode")
		return a
	}
	artifact, rules, err := loadArtifact(path)
	if err != nil {
		slog.WarnContext(ctx, "Unable to load model artifact, scoring in stub mode", "path", path, "error", err)
		return a
	}
	a.artifact = artifact
	a.rules = rules
	return a
}

// Stub reports whether the analyzer runs without a model.
func (a *Analyzer) Stub() bool {
	return a.artifact == nil
}

// Analyze scores the batch. When the artifact carries no scaler parameters,
// they are fitted from this batch and reused for subsequent calls.
func (a *Analyzer) Analyze(inputs []*Input) []*Result {
	results := make([]*Result, 0, len(inputs))
	if a.Stub() {
		for _, in := range inputs {
			results = append(results, &Result{Number: in.Number, Title: in.Title, Probability: a.random()})
		}
		return results
	}
	if !a.artifact.Scaler.Fitted() {
		a.artifact.Scaler = fitScaler(inputs)
	}
	for _, in := range inputs {
		results = append(results, &Result{
			Number:      in.Number,
			Title:       in.Title,
			Probability: a.score(in.Features),
		})
	}
	return results
}

func (a *Analyzer) score(features map[string]float64) float64 {
	std := a.standardize(features)
	vec := make([]float64, 0, 1+len(Features)+len(a.rules))
	vec = append(vec, 1)
	for _, f := range Features {
		vec = append(vec, std[f])
	}
	for _, r := range a.rules {
		vec = append(vec, r.Eval(std))
	}
	var dot float64
	for i, w := range a.artifact.Weights {
		dot += w * vec[i]
	}
	return logistic(dot)
}

func (a *Analyzer) standardize(features map[string]float64) map[string]float64 {
	fields := a.artifact.Scaler.Features
	if len(fields) == 0 {
		fields = NumericalFeatures
	}
	std := make(map[string]float64, len(features))
	for k, v := range features {
		std[k] = v
	}
	for _, f := range fields {
		scale := a.artifact.Scaler.Scale[f]
		if scale == 0 {
			scale = 1
		}
		std[f] = (features[f] - a.artifact.Scaler.Mean[f]) / scale
	}
	return std
}

// fitScaler computes per-field mean and population standard deviation over
// the batch. Constant fields scale by 1 so standardization maps them to 0.
func fitScaler(inputs []*Input) ScalerParams {
	p := ScalerParams{
		Features: NumericalFeatures,
		Mean:     make(map[string]float64, len(NumericalFeatures)),
		Scale:    make(map[string]float64, len(NumericalFeatures)),
	}
	n := float64(len(inputs))
	if n == 0 {
		return p
	}
	for _, f := range NumericalFeatures {
		var sum float64
		for _, in := range inputs {
			sum += in.Features[f]
		}
		mean := sum / n
		var variance float64
		for _, in := range inputs {
			d := in.Features[f] - mean
			variance += d * d
		}
		scale := math.Sqrt(variance / n)
		if scale == 0 {
			scale = 1
		}
		p.Mean[f] = mean
		p.Scale[f] = scale
	}
	return p
}
