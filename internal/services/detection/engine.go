package detection

import "github.com/LeonardoBeccarini/agrispray/internal/model/entities"

// Outcome is everything the rules decide for one signal.
type Outcome struct {
	Level          entities.InfectionLevel
	Plan           entities.DosagePlan
	CoverageEstSqm float64
	ReviewRequired bool
	ProfileID      string
}

// Engine runs the pure decision steps: classify, plan, estimate coverage, gate.
type Engine struct {
	Planner  *Planner
	Coverage CoverageEstimator
}

// NewEngine returns an engine with the baseline table and the 1 sqm reference estimator when arguments are nil.
func NewEngine(planner *Planner, coverage CoverageEstimator) Engine {
	if planner == nil {
		planner = NewPlanner(nil, ProfileFallback)
	}
	if coverage == nil {
		coverage = ReferenceAreaEstimator{ReferenceAreaSqm: DefaultReferenceAreaSqm}
	}
	return Engine{Planner: planner, Coverage: coverage}
}

// Evaluate fails only when the profile policy rejects the signal's profile.
func (e Engine) Evaluate(sig entities.DetectionSignal) (Outcome, error) {
	level := Classify(sig.InfectedAreaPct, sig.PresenceConfidence, sig.Infected)
	plan, profile, err := e.Planner.Plan(level, sig.PesticideProfileID)
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{
		Level:          level,
		Plan:           plan,
		CoverageEstSqm: e.Coverage.EstimateSqm(sig.InfectedAreaPct),
		ReviewRequired: ReviewRequired(sig.PresenceConfidence, sig.SeverityConfidence, sig.InfectedAreaPct),
		ProfileID:      profile,
	}, nil
}
