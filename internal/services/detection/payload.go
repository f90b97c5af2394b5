package detection

import (
	"time"

	"github.com/LeonardoBeccarini/agrispray/internal/model/entities"
	"github.com/LeonardoBeccarini/agrispray/internal/model/messages"
)

// DefaultCommandTTL is how long an actuator may act on a command.
const DefaultCommandTTL = 300 * time.Second

// BuildSprayerCommand returns nil when nothing should be sprayed.
func BuildSprayerCommand(rec entities.DetectionRecord, checks messages.SafetyChecks, ttl time.Duration) *messages.SprayerCommand {
	if rec.InfectionLevel == entities.LevelNone {
		return nil
	}
	if ttl <= 0 {
		ttl = DefaultCommandTTL
	}
	return &messages.SprayerCommand{
		DetectionID: rec.DetectionID,
		SprayInstruction: messages.SprayInstruction{
			Mode:           rec.RecommendedSpray.Mode,
			DosageMlPerSqm: rec.RecommendedSpray.DosageMlPerSqm,
			CoverageEstSqm: rec.RecommendedSpray.CoverageEstSqm,
			AreaPolygon:    rec.AreaPolygon,
			TTLSeconds:     int(ttl / time.Second),
		},
		SafetyChecks: checks,
	}
}
