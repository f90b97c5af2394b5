package event

import (
	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/LeonardoBeccarini/agrispray/internal/model/entities"
)

// Measurement is the Influx measurement holding one point per detection.
const Measurement = "detection"

// RecordToPoint turns a detection record into an Influx point stamped with the signal time.
func RecordToPoint(rec entities.DetectionRecord) *write.Point {
	tags := map[string]string{
		"infection_level": rec.InfectionLevel.String(),
		"disease_tag":     rec.DiseaseTag,
		"profile":         rec.PesticideProfileID,
	}
	if rec.DeviceID != "" {
		tags["device_id"] = rec.DeviceID
	}
	if rec.CropType != "" {
		tags["crop_type"] = rec.CropType
	}

	fields := map[string]interface{}{
		"detection_id":        rec.DetectionID,
		"infected_area_pct":   rec.InfectedAreaPct,
		"presence_confidence": rec.PresenceConfidence,
		"severity_confidence": rec.SeverityConfidence,
		"dosage_ml_per_sqm":   rec.RecommendedSpray.DosageMlPerSqm,
		"coverage_est_sqm":    rec.RecommendedSpray.CoverageEstSqm,
		"review_required":     rec.ReviewRequired,
		"lat":                 rec.GPS.Lat,
		"lon":                 rec.GPS.Lon,
	}
	if sc := rec.SensorContext; sc != nil {
		if sc.TemperatureC != nil {
			fields["temperature_c"] = *sc.TemperatureC
		}
		if sc.HumidityPct != nil {
			fields["humidity_pct"] = *sc.HumidityPct
		}
		if sc.SoilMoisturePct != nil {
			fields["soil_moisture_pct"] = *sc.SoilMoisturePct
		}
	}

	return influxdb2.NewPoint(Measurement, tags, fields, rec.Timestamp)
}
