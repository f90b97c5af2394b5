package detection

import "math"

const (
	// MinCoverageSqm keeps a spray instruction from ever targeting zero area.
	MinCoverageSqm = 0.1
	// DefaultReferenceAreaSqm is the placeholder leaf area used until geometry is derived from the image.
	DefaultReferenceAreaSqm = 1.0
)

// CoverageEstimator turns an affected-area percentage into a treatment area.
type CoverageEstimator interface {
	EstimateSqm(infectedAreaPct float64) float64
}

// ReferenceAreaEstimator scales the percentage against a fixed reference area.
type ReferenceAreaEstimator struct {
	ReferenceAreaSqm float64
}

func (e ReferenceAreaEstimator) EstimateSqm(infectedAreaPct float64) float64 {
	ref := e.ReferenceAreaSqm
	if ref <= 0 {
		ref = DefaultReferenceAreaSqm
	}
	return math.Max(MinCoverageSqm, infectedAreaPct/100*ref)
}
