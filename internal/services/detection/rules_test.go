package detection

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LeonardoBeccarini/agrispray/internal/model/entities"
	"github.com/LeonardoBeccarini/agrispray/internal/model/messages"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		area     float64
		presence float64
		infected bool
		want     entities.InfectionLevel
	}{
		{"small lesion", 3, 0.9, true, entities.LevelPreventive},
		{"just below preventive cut", 4.99, 0.9, true, entities.LevelPreventive},
		{"preventive cut", 5, 0.9, true, entities.LevelTargeted},
		{"targeted upper bound", 25, 0.9, true, entities.LevelTargeted},
		{"just above targeted", 25.01, 0.9, true, entities.LevelIntensive},
		{"large", 30, 0.98, true, entities.LevelIntensive},
		{"low presence", 40, 0.5, true, entities.LevelNone},
		{"presence threshold", 10, 0.60, true, entities.LevelTargeted},
		{"not infected", 40, 0.99, false, entities.LevelNone},
		{"zero area infected", 0, 0.9, true, entities.LevelPreventive},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.area, tt.presence, tt.infected))
		})
	}
}

func TestReviewRequired(t *testing.T) {
	tests := []struct {
		name                     string
		presence, severity, area float64
		want                     bool
	}{
		{"confident, far from cuts", 0.9, 0.9, 3, false},
		{"near preventive cut", 0.9, 0.9, 4.5, true},
		{"window is open at 4", 0.9, 0.9, 4, false},
		{"window is open at 6", 0.9, 0.9, 6, false},
		{"near targeted cut", 0.9, 0.9, 25, true},
		{"window is open at 26", 0.9, 0.9, 26, false},
		{"low presence", 0.5, 0.9, 10, true},
		{"low severity", 0.9, 0.74, 10, true},
		{"severity at threshold", 0.9, 0.75, 10, false},
		{"intensive confident", 0.98, 0.92, 30, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ReviewRequired(tt.presence, tt.severity, tt.area))
		})
	}
}

func TestBaselinePlanTable(t *testing.T) {
	want := map[entities.InfectionLevel]entities.DosagePlan{
		entities.LevelNone:       {Mode: entities.LevelNone, DosageMlPerSqm: 0, Pattern: "none"},
		entities.LevelPreventive: {Mode: entities.LevelPreventive, DosageMlPerSqm: 5, Pattern: "spot/low"},
		entities.LevelTargeted:   {Mode: entities.LevelTargeted, DosageMlPerSqm: 15, Pattern: "localized/focused"},
		entities.LevelIntensive:  {Mode: entities.LevelIntensive, DosageMlPerSqm: 40, Pattern: "full-coverage/high"},
	}
	for _, l := range entities.Levels {
		assert.Equal(t, want[l], BaselinePlan(l), l.String())
	}
	assert.Equal(t, want[entities.LevelNone], BaselinePlan(entities.InfectionLevel(42)), "unknown levels fail closed")
}

func TestCoverageEstimate(t *testing.T) {
	e := ReferenceAreaEstimator{ReferenceAreaSqm: 1}
	assert.InDelta(t, 0.3, e.EstimateSqm(30), 1e-9)
	assert.Equal(t, MinCoverageSqm, e.EstimateSqm(3))
	assert.Equal(t, MinCoverageSqm, e.EstimateSqm(0))
	assert.InDelta(t, 2.5, ReferenceAreaEstimator{ReferenceAreaSqm: 10}.EstimateSqm(25), 1e-9)
	assert.InDelta(t, 0.5, ReferenceAreaEstimator{}.EstimateSqm(50), 1e-9, "zero reference falls back to 1 sqm")
}

func signal(area, presence, severity float64) entities.DetectionSignal {
	return entities.DetectionSignal{
		InfectedAreaPct:    area,
		PresenceConfidence: presence,
		SeverityConfidence: severity,
		Infected:           true,
		DiseaseTag:         "late_blight",
		DeviceID:           "sprayer-1",
		Timestamp:          time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC),
		GPS:                entities.GPS{Lat: 45.07, Lon: 7.68},
		CropType:           "tomato",
		PesticideProfileID: DefaultProfileID,
	}
}

func TestEngineExamples(t *testing.T) {
	e := NewEngine(nil, nil)
	tests := []struct {
		name     string
		sig      entities.DetectionSignal
		level    entities.InfectionLevel
		dosage   float64
		review   bool
		coverage float64
	}{
		{"preventive", signal(3, 0.9, 0.9), entities.LevelPreventive, 5, false, 0.1},
		{"preventive near cut", signal(4.5, 0.9, 0.9), entities.LevelPreventive, 5, true, 0.1},
		{"inconclusive", signal(40, 0.5, 0.5), entities.LevelNone, 0, true, 0.4},
		{"intensive", signal(30, 0.98, 0.92), entities.LevelIntensive, 40, false, 0.3},
		{"targeted edge", signal(25, 0.9, 0.9), entities.LevelTargeted, 15, true, 0.25},
		{"intensive edge", signal(25.01, 0.9, 0.9), entities.LevelIntensive, 40, true, 0.2501},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := e.Evaluate(tt.sig)
			require.NoError(t, err)
			assert.Equal(t, tt.level, out.Level)
			assert.Equal(t, tt.level, out.Plan.Mode)
			assert.Equal(t, tt.dosage, out.Plan.DosageMlPerSqm)
			assert.Equal(t, tt.review, out.ReviewRequired)
			assert.InDelta(t, tt.coverage, out.CoverageEstSqm, 1e-9)
			assert.Equal(t, DefaultProfileID, out.ProfileID)
		})
	}
}

func TestEngineIsPure(t *testing.T) {
	e := NewEngine(nil, nil)
	for _, area := range []float64{0, 2, 4.5, 5, 12, 25, 25.01, 60, 100} {
		for _, p := range []float64{0, 0.59, 0.6, 0.8, 1} {
			sig := signal(area, p, p)
			a, err := e.Evaluate(sig)
			require.NoError(t, err)
			b, err := e.Evaluate(sig)
			require.NoError(t, err)
			assert.Equal(t, a, b)

			if a.Level != entities.LevelNone {
				assert.GreaterOrEqual(t, a.CoverageEstSqm, MinCoverageSqm)
			} else {
				assert.Zero(t, a.Plan.DosageMlPerSqm)
			}
		}
	}
}

func TestRecordBuilder(t *testing.T) {
	created := time.Date(2024, 6, 1, 9, 0, 1, 0, time.UTC)
	b := RecordBuilder{IDs: DeterministicIDs{}, Now: func() time.Time { return created }}
	sig := signal(30, 0.98, 0.92)
	sig.AreaPolygon = []entities.GPS{{Lat: 1, Lon: 2}, {Lat: 1, Lon: 3}, {Lat: 2, Lon: 3}}

	out, err := NewEngine(nil, nil).Evaluate(sig)
	require.NoError(t, err)
	rec := b.Build(sig, out)

	assert.Regexp(t, `^det_[0-9a-f-]{36}$`, rec.DetectionID)
	assert.Equal(t, []string{"late_blight"}, rec.Tags)
	assert.Equal(t, DefaultModelVersion, rec.ModelVersion)
	assert.Equal(t, PipelineVersion, rec.PipelineVersion)
	assert.Equal(t, created, rec.CreatedAt)
	assert.Equal(t, entities.LevelIntensive, rec.InfectionLevel)
	assert.Equal(t, BaselinePlan(rec.InfectionLevel), rec.RecommendedSpray.Plan(), "recommendation round-trips to the table row")
	assert.Equal(t, sig.AreaPolygon, rec.AreaPolygon)
	assert.Equal(t, rec, b.Build(sig, out), "deterministic ids make the build repeatable")
}

func TestBuildSprayerCommand(t *testing.T) {
	checks := messages.SafetyChecks{WeatherSafe: true, RecentSprayAvoidance: false, OperatorOverride: true}
	b := RecordBuilder{}
	e := NewEngine(nil, nil)

	for _, l := range []struct {
		area, presence float64
	}{{3, 0.9}, {12, 0.9}, {60, 0.9}, {60, 0.2}} {
		sig := signal(l.area, l.presence, l.presence)
		out, err := e.Evaluate(sig)
		require.NoError(t, err)
		rec := b.Build(sig, out)
		cmd := BuildSprayerCommand(rec, checks, 0)

		if rec.InfectionLevel == entities.LevelNone {
			assert.Nil(t, cmd)
			continue
		}
		require.NotNil(t, cmd)
		assert.Equal(t, rec.DetectionID, cmd.DetectionID)
		assert.Equal(t, rec.InfectionLevel, cmd.SprayInstruction.Mode)
		assert.Equal(t, rec.RecommendedSpray.DosageMlPerSqm, cmd.SprayInstruction.DosageMlPerSqm)
		assert.Equal(t, rec.RecommendedSpray.CoverageEstSqm, cmd.SprayInstruction.CoverageEstSqm)
		assert.Equal(t, 300, cmd.SprayInstruction.TTLSeconds)
		assert.Equal(t, checks, cmd.SafetyChecks)
	}

	rec := b.Build(signal(30, 0.9, 0.9), Outcome{Level: entities.LevelIntensive, Plan: BaselinePlan(entities.LevelIntensive), CoverageEstSqm: 0.3})
	assert.Equal(t, 90, BuildSprayerCommand(rec, checks, 90*time.Second).SprayInstruction.TTLSeconds)
}

func TestCoverageNeverNaN(t *testing.T) {
	v := ReferenceAreaEstimator{ReferenceAreaSqm: 1}.EstimateSqm(100)
	assert.False(t, math.IsNaN(v))
	assert.Equal(t, 1.0, v)
}
