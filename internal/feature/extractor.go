// Package feature turns raw capture bytes into comparable feature sets.
//
// The extractor is a pluggable strategy: the heuristic here is reproducible
// and format-agnostic, and a real biometric SDK can replace it behind the
// Extractor interface without touching the surrounding contracts.
package feature

import (
	"math"

	"github.com/samber/lo"

	"veriprint/internal/template/models"
	dErrors "veriprint/pkg/domain-errors"
)

// Extractor converts a capture (or decrypted template payload) into a
// FeatureSet plus a quality score.
type Extractor interface {
	Extract(data []byte, format models.CaptureFormat) (*FeatureSet, error)
}

const (
	minutiaWindow  = 10
	ridgeWindow    = 16
	minSampleLen   = ridgeWindow
	maxMinutiae    = 50
	maxMinutiaScan = 1000
	maxRidges      = 20
	maxTexture     = 100
	transitionJump = 30 // byte delta counted as a large transition
	vectorMinutiae = 10
	vectorRidges   = 10
	vectorTexture  = 20
)

// HeuristicExtractor is the default Extractor implementation.
type HeuristicExtractor struct{}

func NewExtractor() *HeuristicExtractor { return &HeuristicExtractor{} }

// Extract validates the format against the allow-list and runs the full
// pipeline: quality scoring, minutiae, ridge patterns, texture sampling,
// and fixed-shape vector assembly.
func (e *HeuristicExtractor) Extract(data []byte, format models.CaptureFormat) (*FeatureSet, error) {
	if !format.IsValid() {
		return nil, dErrors.Newf(dErrors.CodeValidation, "unsupported capture format %q", format)
	}
	if len(data) < minSampleLen {
		return nil, dErrors.Newf(dErrors.CodeExtraction, "sample too short: %d bytes, need %d", len(data), minSampleLen)
	}

	fs := &FeatureSet{
		QualityScore:   qualityScore(data),
		MinutiaePoints: extractMinutiae(data),
		RidgePatterns:  extractRidges(data),
		TextureSamples: sampleTexture(data),
	}
	fs.Vector = assembleVector(fs)
	return fs, nil
}

// qualityScore combines byte diversity (<=50), local structure (<=30) and
// Shannon entropy (<=20), clamped to [0,100].
func qualityScore(data []byte) float64 {
	var hist [256]int
	for _, b := range data {
		hist[b]++
	}

	unique := 0
	for _, n := range hist {
		if n > 0 {
			unique++
		}
	}
	diversity := float64(unique) / 256 * 50

	structure := structureScore(data)

	entropy := 0.0
	total := float64(len(data))
	for _, n := range hist {
		if n == 0 {
			continue
		}
		p := float64(n) / total
		entropy -= p * math.Log2(p)
	}
	entropyPts := entropy / 8 * 20

	return clamp(diversity+structure+entropyPts, 0, 100)
}

// structureScore measures repeated 8-byte windows. A plausible fingerprint
// sample repeats some local structure; all-unique (noise) and heavily
// repeated (flat) inputs both score low.
func structureScore(data []byte) float64 {
	const window = 8
	if len(data) < window {
		return 0
	}
	seen := make(map[string]int)
	windows := 0
	for i := 0; i+window <= len(data); i += window {
		seen[string(data[i:i+window])]++
		windows++
	}
	if windows == 0 {
		return 0
	}
	repeated := 0
	for _, n := range seen {
		if n > 1 {
			repeated += n
		}
	}
	ratio := float64(repeated) / float64(windows)
	// Plausible repetition sits between 2% and 60%. Pure noise and flat
	// inputs fall outside and earn proportionally less.
	switch {
	case ratio >= 0.02 && ratio <= 0.6:
		return 30
	case ratio < 0.02:
		return ratio / 0.02 * 30
	default:
		return (1 - ratio) / 0.4 * 30
	}
}

// extractMinutiae slides a small window at a stride chosen so at most
// maxMinutiaScan candidates are examined. Windows with three or more large
// transitions and strong mean difference classify as bifurcations; one or
// two transitions with moderate strength classify as endings.
func extractMinutiae(data []byte) []MinutiaPoint {
	// Ceiling division keeps the candidate count at or under maxMinutiaScan
	// for lengths that are not exact multiples.
	stride := ceilDiv(len(data), maxMinutiaScan)
	length := float64(len(data))

	var points []MinutiaPoint
	for i := 0; i+minutiaWindow <= len(data) && len(points) < maxMinutiae; i += stride {
		win := data[i : i+minutiaWindow]
		transitions, strength := windowStats(win)

		var mt MinutiaType
		switch {
		case transitions >= 3 && strength > 12:
			mt = MinutiaBifurcation
		case transitions >= 1 && transitions <= 2 && strength > 8:
			mt = MinutiaEnding
		default:
			continue
		}
		points = append(points, MinutiaPoint{
			Position: float64(i) / length,
			Type:     mt,
			Strength: strength,
		})
	}
	return points
}

// extractRidges slides a 16-byte window at half-window stride, recording
// strength (mean absolute difference) and frequency (fraction of large
// transitions). Only windows with strength above 5 are kept.
func extractRidges(data []byte) []RidgePattern {
	length := float64(len(data))

	var ridges []RidgePattern
	for i := 0; i+ridgeWindow <= len(data) && len(ridges) < maxRidges; i += ridgeWindow / 2 {
		win := data[i : i+ridgeWindow]
		transitions, strength := windowStats(win)
		if strength <= 5 {
			continue
		}
		freq := float64(transitions) / float64(len(win)-1)
		rt := RidgeWeak
		if freq > 0.25 {
			rt = RidgeStrong
		}
		ridges = append(ridges, RidgePattern{
			Position:  float64(i) / length,
			Strength:  strength,
			Frequency: freq,
			Type:      rt,
		})
	}
	return ridges
}

// sampleTexture probes up to maxTexture evenly spaced positions, recording
// the normalized byte value and a 3-point central gradient.
func sampleTexture(data []byte) []TextureSample {
	n := maxTexture
	if len(data) < n {
		n = len(data)
	}
	// Ceiling division spreads the samples across the whole capture instead
	// of bunching them at the front when len is not a multiple of n.
	step := ceilDiv(len(data), n)
	length := float64(len(data))

	samples := make([]TextureSample, 0, n)
	for i := 0; i < len(data) && len(samples) < n; i += step {
		gradient := 0.0
		if i > 0 && i < len(data)-1 {
			gradient = (float64(data[i+1]) - float64(data[i-1])) / 2 / 255
		}
		samples = append(samples, TextureSample{
			Position: float64(i) / length,
			Value:    float64(data[i]) / 255,
			Gradient: gradient,
		})
	}
	return samples
}

// assembleVector concatenates, in fixed order, the normalized quality score,
// up to 10 minutiae triples, up to 10 ridge triples, and a 20-point texture
// subsample as value/gradient pairs. Missing entries pad with zeros so the
// vector shape is constant: 1 + 30 + 30 + 40 = 101 elements, all in [0,1].
func assembleVector(fs *FeatureSet) []float64 {
	vec := make([]float64, 0, 1+vectorMinutiae*3+vectorRidges*3+vectorTexture*2)
	vec = append(vec, fs.QualityScore/100)

	for i := 0; i < vectorMinutiae; i++ {
		if i < len(fs.MinutiaePoints) {
			p := fs.MinutiaePoints[i]
			bif := 0.0
			if p.Type == MinutiaBifurcation {
				bif = 1
			}
			vec = append(vec, p.Position, p.Strength/255, bif)
		} else {
			vec = append(vec, 0, 0, 0)
		}
	}

	for i := 0; i < vectorRidges; i++ {
		if i < len(fs.RidgePatterns) {
			r := fs.RidgePatterns[i]
			strong := 0.0
			if r.Type == RidgeStrong {
				strong = 1
			}
			vec = append(vec, r.Strength/255, r.Frequency, strong)
		} else {
			vec = append(vec, 0, 0, 0)
		}
	}

	texture := lo.Subset(fs.TextureSamples, 0, uint(vectorTexture))
	for i := 0; i < vectorTexture; i++ {
		if i < len(texture) {
			vec = append(vec, texture[i].Value, (texture[i].Gradient+1)/2)
		} else {
			vec = append(vec, 0, 0)
		}
	}
	return vec
}

// windowStats returns the count of large byte-to-byte transitions and the
// mean absolute difference across a window.
func windowStats(win []byte) (transitions int, strength float64) {
	if len(win) < 2 {
		return 0, 0
	}
	sum := 0.0
	for i := 1; i < len(win); i++ {
		d := math.Abs(float64(win[i]) - float64(win[i-1]))
		sum += d
		if d > transitionJump {
			transitions++
		}
	}
	return transitions, sum / float64(len(win)-1)
}

func ceilDiv(a, b int) int {
	d := (a + b - 1) / b
	if d < 1 {
		return 1
	}
	return d
}

func clamp(v, lower, upper float64) float64 {
	if v < lower {
		return lower
	}
	if v > upper {
		return upper
	}
	return v
}
