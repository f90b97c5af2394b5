package detection

import (
	"context"
	"time"

	"github.com/LeonardoBeccarini/agrispray/internal/model/entities"
	"github.com/LeonardoBeccarini/agrispray/internal/model/messages"
)

// ImageStore uploads raw images and returns the URL they can be fetched from.
type ImageStore interface {
	Put(ctx context.Context, data []byte, contentType string) (string, error)
}

// DetectionStore persists records. Save is idempotent per detection id:
// created is false when a record with that id was already stored, which is left untouched.
type DetectionStore interface {
	Save(ctx context.Context, rec entities.DetectionRecord) (storageID string, created bool, err error)
	Get(ctx context.Context, id string) (entities.DetectionRecord, error)
	Close() error
}

// SafetyQuery is what the safety checker needs to know about a spray.
type SafetyQuery struct {
	DeviceID string
	GPS      entities.GPS
	At       time.Time
}

// SafetyChecker answers the weather and recent-spray checks. OperatorOverride is filled by the caller.
type SafetyChecker interface {
	Check(ctx context.Context, q SafetyQuery) (messages.SafetyChecks, error)
}

// CommandPublisher delivers a sprayer command to a device.
type CommandPublisher interface {
	Publish(ctx context.Context, deviceID string, cmd *messages.SprayerCommand) error
}

// SprayRecorder remembers when a device was last told to spray.
type SprayRecorder interface {
	RecordSpray(ctx context.Context, deviceID string, at time.Time) error
}

// EventSink receives every record for time-series storage. Record must not block.
type EventSink interface {
	Record(rec entities.DetectionRecord)
}

// RawScores is what an image model returns for one leaf image.
type RawScores struct {
	InfectedAreaPct    float64 `json:"infected_area_pct"`
	PresenceConfidence float64 `json:"presence_confidence"`
	SeverityConfidence float64 `json:"severity_confidence"`
	Infected           bool    `json:"infected"`
	DiseaseTag         string  `json:"disease_tag"`
}

// SignalProvider turns an image into raw scores.
type SignalProvider interface {
	Infer(ctx context.Context, image []byte, contentType string) (RawScores, error)
}
