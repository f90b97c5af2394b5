package detection

import "github.com/LeonardoBeccarini/agrispray/internal/model/entities"

const (
	// PresenceThreshold is the minimum presence confidence for a conclusive signal.
	PresenceThreshold = 0.60
	// PreventiveBelowPct is the exclusive upper bound of the Preventive band.
	PreventiveBelowPct = 5.0
	// TargetedUpToPct is the inclusive upper bound of the Targeted band.
	TargetedUpToPct = 25.0
)

// Classify maps an affected-area percentage and presence confidence to an infection level.
// Inconclusive signals (low presence confidence) are None whatever the area.
func Classify(infectedAreaPct, presenceConfidence float64, infected bool) entities.InfectionLevel {
	switch {
	case presenceConfidence < PresenceThreshold:
		return entities.LevelNone
	case !infected:
		return entities.LevelNone
	case infectedAreaPct < PreventiveBelowPct:
		return entities.LevelPreventive
	case infectedAreaPct <= TargetedUpToPct:
		return entities.LevelTargeted
	default:
		return entities.LevelIntensive
	}
}
