// Package matcher scores the similarity of two feature sets. It is pure
// computation: symmetric for identical inputs, tolerant of differing
// component lengths, and free of I/O.
package matcher

import (
	"math"

	"veriprint/internal/feature"
)

// Weights for the four component similarities. They sum to 1.
const (
	weightVector   = 0.4
	weightMinutiae = 0.3
	weightRidge    = 0.2
	weightTexture  = 0.1
)

const (
	minutiaPositionTolerance = 0.1
	minutiaStrengthTolerance = 10
)

// Breakdown exposes the per-component similarities of one comparison.
type Breakdown struct {
	Vector   float64
	Minutiae float64
	Ridge    float64
	Texture  float64
}

// Score is the outcome of comparing two feature sets.
type Score struct {
	// Similarity is the quality-adjusted combined score in [0,100].
	Similarity int
	// Verified reports Similarity >= the configured threshold.
	Verified bool
	// Confidence scales Similarity by the average input quality.
	Confidence int
	Breakdown  Breakdown
}

// Matcher applies a configurable acceptance threshold. The threshold is
// deployment policy (strict attendance vs. low-friction matching), not a
// property of the algorithm.
type Matcher struct {
	threshold int
}

func New(threshold int) *Matcher {
	return &Matcher{threshold: threshold}
}

// Threshold returns the configured acceptance threshold.
func (m *Matcher) Threshold() int { return m.threshold }

// Match combines vector, minutiae, ridge, and texture similarities with
// fixed weights, then applies a quality adjustment. A combined score of 100
// (identical inputs) stays 100 regardless of quality, so self-matches are
// always perfect.
func (m *Matcher) Match(a, b *feature.FeatureSet) Score {
	br := Breakdown{
		Vector:   vectorSimilarity(a.Vector, b.Vector),
		Minutiae: minutiaeSimilarity(a.MinutiaePoints, b.MinutiaePoints),
		Ridge:    ridgeSimilarity(a.RidgePatterns, b.RidgePatterns),
		Texture:  textureSimilarity(a.TextureSamples, b.TextureSamples),
	}

	combined := weightVector*br.Vector +
		weightMinutiae*br.Minutiae +
		weightRidge*br.Ridge +
		weightTexture*br.Texture

	avgQuality := (a.QualityScore + b.QualityScore) / 2

	final := combined
	if combined < 100-1e-9 {
		final = math.Round(combined * (0.5 + 0.5*avgQuality/100))
	}
	similarity := int(math.Round(final))

	return Score{
		Similarity: similarity,
		Verified:   similarity >= m.threshold,
		Confidence: int(math.Round(float64(similarity) * avgQuality / 100)),
		Breakdown:  br,
	}
}

// vectorSimilarity averages elementwise max(0, 1-|a_i-b_i|) over the
// shared-length prefix.
func vectorSimilarity(a, b []float64) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	if n == 0 {
		return bothEmpty(len(a) == 0, len(b) == 0)
	}
	sum := 0.0
	for i := 0; i < n; i++ {
		sum += math.Max(0, 1-math.Abs(a[i]-b[i]))
	}
	return sum / float64(n) * 100
}

// minutiaeSimilarity counts points in a that have a positional, type, and
// strength match in b, over max(|a|,|b|). Each point in b matches at most
// once.
func minutiaeSimilarity(a, b []feature.MinutiaPoint) float64 {
	if len(a) == 0 || len(b) == 0 {
		return bothEmpty(len(a) == 0, len(b) == 0)
	}

	used := make([]bool, len(b))
	matched := 0
	for _, pa := range a {
		for j, pb := range b {
			if used[j] || pa.Type != pb.Type {
				continue
			}
			if math.Abs(pa.Position-pb.Position) <= minutiaPositionTolerance &&
				math.Abs(pa.Strength-pb.Strength) <= minutiaStrengthTolerance {
				used[j] = true
				matched++
				break
			}
		}
	}

	denom := len(a)
	if len(b) > denom {
		denom = len(b)
	}
	return float64(matched) / float64(denom) * 100
}

// ridgeSimilarity compares strength, frequency, and type pairwise over the
// shared-length prefix.
func ridgeSimilarity(a, b []feature.RidgePattern) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	if n == 0 {
		return bothEmpty(len(a) == 0, len(b) == 0)
	}

	sum := 0.0
	for i := 0; i < n; i++ {
		strength := 1 - math.Min(1, math.Abs(a[i].Strength-b[i].Strength)/255)
		freq := 1 - math.Min(1, math.Abs(a[i].Frequency-b[i].Frequency))
		typ := 0.0
		if a[i].Type == b[i].Type {
			typ = 1
		}
		sum += 0.4*strength + 0.4*freq + 0.2*typ
	}
	return sum / float64(n) * 100
}

// textureSimilarity compares value and gradient pairwise over the
// shared-length prefix.
func textureSimilarity(a, b []feature.TextureSample) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	if n == 0 {
		return bothEmpty(len(a) == 0, len(b) == 0)
	}

	sum := 0.0
	for i := 0; i < n; i++ {
		value := 1 - math.Min(1, math.Abs(a[i].Value-b[i].Value))
		gradient := 1 - math.Min(1, math.Abs(a[i].Gradient-b[i].Gradient)/2)
		sum += 0.6*value + 0.4*gradient
	}
	return sum / float64(n) * 100
}

// bothEmpty resolves the degenerate comparisons: two empty components are
// identical (100); one empty against one populated shares nothing (0).
func bothEmpty(aEmpty, bEmpty bool) float64 {
	if aEmpty && bEmpty {
		return 100
	}
	return 0
}
