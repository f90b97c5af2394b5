package detection

import (
	"strings"
	"time"

	"github.com/LeonardoBeccarini/agrispray/internal/model/entities"
)

const (
	DefaultModelVersion = "leafscan-v1"
	PipelineVersion     = "rules-v2"
)

// RecordBuilder assembles detection records. It performs no I/O.
type RecordBuilder struct {
	IDs          IDGenerator
	ModelVersion string
	Now          func() time.Time
}

// Build always returns a complete record; low confidence only shows up in level and review flag.
func (b RecordBuilder) Build(sig entities.DetectionSignal, out Outcome) entities.DetectionRecord {
	ids := b.IDs
	if ids == nil {
		ids = RandomIDs{}
	}
	now := time.Now
	if b.Now != nil {
		now = b.Now
	}
	model := strings.TrimSpace(b.ModelVersion)
	if model == "" {
		model = DefaultModelVersion
	}
	profile := out.ProfileID
	if profile == "" {
		profile = sig.PesticideProfileID
	}

	return entities.DetectionRecord{
		DetectionID:        ids.NewID(sig),
		DeviceID:           sig.DeviceID,
		Timestamp:          sig.Timestamp,
		GPS:                sig.GPS,
		CropType:           sig.CropType,
		SensorContext:      sig.SensorContext,
		ImageURL:           sig.ImageURL,
		PesticideProfileID: profile,
		AreaPolygon:        sig.AreaPolygon,
		Infected:           sig.Infected,
		DiseaseTag:         sig.DiseaseTag,
		InfectedAreaPct:    sig.InfectedAreaPct,
		PresenceConfidence: sig.PresenceConfidence,
		SeverityConfidence: sig.SeverityConfidence,
		InfectionLevel:     out.Level,
		RecommendedSpray: entities.RecommendedSpray{
			DosagePlan:     out.Plan,
			CoverageEstSqm: out.CoverageEstSqm,
		},
		ReviewRequired:  out.ReviewRequired,
		Tags:            []string{sig.DiseaseTag},
		ModelVersion:    model,
		PipelineVersion: PipelineVersion,
		CreatedAt:       now().UTC(),
	}
}
