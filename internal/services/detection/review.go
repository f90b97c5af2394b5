package detection

// SeverityReviewThreshold is the severity confidence below which a human must look.
const SeverityReviewThreshold = 0.75

// boundaryWindows are open intervals around the classification cut points.
var boundaryWindows = [...]struct{ lo, hi float64 }{
	{4, 6},
	{24, 26},
}

// ReviewRequired reports whether a detection must be routed to a reviewer.
// It never blocks record creation.
func ReviewRequired(presenceConfidence, severityConfidence, infectedAreaPct float64) bool {
	if presenceConfidence < PresenceThreshold {
		return true
	}
	if severityConfidence < SeverityReviewThreshold {
		return true
	}
	for _, w := range boundaryWindows {
		if infectedAreaPct > w.lo && infectedAreaPct < w.hi {
			return true
		}
	}
	return false
}
