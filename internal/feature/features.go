package feature

// MinutiaType classifies a ridge discontinuity.
type MinutiaType string

const (
	MinutiaEnding      MinutiaType = "ending"
	MinutiaBifurcation MinutiaType = "bifurcation"
)

// RidgeType classifies a ridge pattern window by transition frequency.
type RidgeType string

const (
	RidgeWeak   RidgeType = "weak"
	RidgeStrong RidgeType = "strong"
)

// MinutiaPoint is a comparison landmark. Position is normalized to [0,1]
// over the sample length; Strength is the window's mean absolute
// byte-to-byte difference.
type MinutiaPoint struct {
	Position float64
	Type     MinutiaType
	Strength float64
}

// RidgePattern summarizes one ridge analysis window.
type RidgePattern struct {
	Position  float64
	Strength  float64
	Frequency float64
	Type      RidgeType
}

// TextureSample is one evenly spaced probe of the sample surface.
type TextureSample struct {
	Position float64
	Value    float64 // byte value normalized to [0,1]
	Gradient float64 // 3-point central gradient, normalized
}

// FeatureSet is the extracted, comparable representation of a capture or a
// decrypted template. Vector is fixed-shape for fast coarse comparison;
// the structured components back the fine-grained similarities.
type FeatureSet struct {
	QualityScore   float64
	MinutiaePoints []MinutiaPoint
	RidgePatterns  []RidgePattern
	TextureSamples []TextureSample
	Vector         []float64
}
