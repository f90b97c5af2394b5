package entities

import "time"

// GPS is a WGS84 position reported by the device.
type GPS struct {
	Lat float64 `json:"lat" bson:"lat"`
	Lon float64 `json:"lon" bson:"lon"`
}

// SensorContext carries optional field readings taken with the image.
type SensorContext struct {
	TemperatureC    *float64 `json:"temperatureC,omitempty" bson:"temperatureC,omitempty"`
	HumidityPct     *float64 `json:"humidityPct,omitempty" bson:"humidityPct,omitempty"`
	SoilMoisturePct *float64 `json:"soilMoisturePct,omitempty" bson:"soilMoisturePct,omitempty"`
}

// DetectionSignal is a validated inference result with its device context.
type DetectionSignal struct {
	InfectedAreaPct    float64
	PresenceConfidence float64
	SeverityConfidence float64
	Infected           bool
	DiseaseTag         string

	DeviceID           string
	Timestamp          time.Time
	GPS                GPS
	CropType           string
	SensorContext      *SensorContext
	PesticideProfileID string
	ImageURL           string
	AreaPolygon        []GPS
	OperatorOverride   bool

	// TimestampDefaulted marks a receive-time Timestamp; ImageDigest is the
	// sha256 of an inline image. Both only feed deterministic ids.
	TimestampDefaulted bool
	ImageDigest        string
}

// DetectionRecord is the durable, append-only result of one detection.
type DetectionRecord struct {
	DetectionID string `json:"detectionId" bson:"_id"`

	DeviceID           string         `json:"deviceId" bson:"deviceId"`
	Timestamp          time.Time      `json:"timestamp" bson:"timestamp"`
	GPS                GPS            `json:"gps" bson:"gps"`
	CropType           string         `json:"cropType" bson:"cropType"`
	SensorContext      *SensorContext `json:"sensorContext,omitempty" bson:"sensorContext,omitempty"`
	ImageURL           string         `json:"imageUrl,omitempty" bson:"imageUrl,omitempty"`
	PesticideProfileID string         `json:"pesticideProfileId" bson:"pesticideProfileId"`
	AreaPolygon        []GPS          `json:"areaPolygon,omitempty" bson:"areaPolygon,omitempty"`

	Infected           bool           `json:"infected" bson:"infected"`
	DiseaseTag         string         `json:"diseaseTag" bson:"diseaseTag"`
	InfectedAreaPct    float64        `json:"infectedAreaPct" bson:"infectedAreaPct"`
	PresenceConfidence float64        `json:"presenceConfidence" bson:"presenceConfidence"`
	SeverityConfidence float64        `json:"severityConfidence" bson:"severityConfidence"`
	InfectionLevel     InfectionLevel `json:"infectionLevel" bson:"infectionLevel"`

	RecommendedSpray RecommendedSpray `json:"recommendedSpray" bson:"recommendedSpray"`
	ReviewRequired   bool             `json:"reviewRequired" bson:"reviewRequired"`
	Tags             []string         `json:"tags" bson:"tags"`

	ModelVersion    string    `json:"modelVersion" bson:"modelVersion"`
	PipelineVersion string    `json:"pipelineVersion" bson:"pipelineVersion"`
	CreatedAt       time.Time `json:"createdAt" bson:"createdAt"`
}
