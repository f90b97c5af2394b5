package messages

import "github.com/LeonardoBeccarini/agrispray/internal/model/entities"

// SprayInstruction tells the actuator what to apply and for how long the order stays valid.
type SprayInstruction struct {
	Mode           entities.InfectionLevel `json:"mode"`
	DosageMlPerSqm float64                 `json:"dosageMlPerSqm"`
	CoverageEstSqm float64                 `json:"coverageEstSqm"`
	AreaPolygon    []entities.GPS          `json:"areaPolygon,omitempty"`
	TTLSeconds     int                     `json:"ttlSeconds"`
}

// SafetyChecks are collaborator verdicts attached to a command; true means the check allows spraying.
type SafetyChecks struct {
	RecentSprayAvoidance bool `json:"recentSprayAvoidance"`
	WeatherSafe          bool `json:"weatherSafe"`
	OperatorOverride     bool `json:"operatorOverride"`
}

// SprayerCommand is published to the spraying device. The actuator must drop it after TTLSeconds.
type SprayerCommand struct {
	DetectionID      string           `json:"detectionId"`
	SprayInstruction SprayInstruction `json:"sprayInstruction"`
	SafetyChecks     SafetyChecks     `json:"safetyChecks"`
}
