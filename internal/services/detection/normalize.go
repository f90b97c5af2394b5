package detection

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"math"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/LeonardoBeccarini/agrispray/internal/model/entities"
)

// Number accepts JSON numbers and numeric strings ("12.5", "12,5").
type Number float64

func (n *Number) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch x := v.(type) {
	case float64:
		*n = Number(x)
	case string:
		f, err := strconv.ParseFloat(strings.ReplaceAll(strings.TrimSpace(x), ",", "."), 64)
		if err != nil {
			return &InputError{Field: "number", Reason: "not numeric: " + x}
		}
		*n = Number(f)
	default:
		return &InputError{Field: "number", Reason: "expected number"}
	}
	return nil
}

// RequestMetadata is the device context of a request.
type RequestMetadata struct {
	DeviceID  string       `json:"deviceId"`
	Timestamp string       `json:"timestamp"`
	GPS       entities.GPS `json:"gps"`
	CropType  string       `json:"cropType"`
}

// DetectRequest is the body of POST /detect and of MQTT signal messages.
type DetectRequest struct {
	Image              string                  `json:"image,omitempty"`
	ImageURL           string                  `json:"imageUrl,omitempty"`
	Metadata           RequestMetadata         `json:"metadata"`
	Sensors            *entities.SensorContext `json:"sensors,omitempty"`
	InfectedAreaPct    *Number                 `json:"infected_area_pct"`
	PresenceConfidence *Number                 `json:"presence_confidence"`
	SeverityConfidence *Number                 `json:"severity_confidence,omitempty"`
	Infected           *bool                   `json:"infected,omitempty"`
	DiseaseTag         string                  `json:"disease_tag,omitempty"`
	PesticideProfileID string                  `json:"pesticideProfileId,omitempty"`
	AreaPolygon        []entities.GPS          `json:"areaPolygon,omitempty"`
	OperatorOverride   bool                    `json:"operator_override,omitempty"`
}

// ImagePayload is a decoded data URI waiting to be stored.
type ImagePayload struct {
	ContentType string
	Data        []byte
}

// Normalized is a validated signal plus the image still to be uploaded, if any.
type Normalized struct {
	Signal entities.DetectionSignal
	Image  *ImagePayload
}

const unknownDisease = "unknown"

// Normalize validates and coerces a request. now stamps signals that carry no timestamp.
func Normalize(req DetectRequest, now time.Time) (Normalized, error) {
	if req.InfectedAreaPct == nil {
		return Normalized{}, invalid("infected_area_pct", "required")
	}
	if req.PresenceConfidence == nil {
		return Normalized{}, invalid("presence_confidence", "required")
	}

	area, err := bounded("infected_area_pct", float64(*req.InfectedAreaPct), 0, 100)
	if err != nil {
		return Normalized{}, err
	}
	presence, err := bounded("presence_confidence", float64(*req.PresenceConfidence), 0, 1)
	if err != nil {
		return Normalized{}, err
	}
	severity := presence
	if req.SeverityConfidence != nil {
		if severity, err = bounded("severity_confidence", float64(*req.SeverityConfidence), 0, 1); err != nil {
			return Normalized{}, err
		}
	}

	ts := now.UTC()
	if s := strings.TrimSpace(req.Metadata.Timestamp); s != "" {
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return Normalized{}, invalid("metadata.timestamp", "not RFC3339: %q", s)
		}
		ts = t.UTC()
	}

	infected := true
	if req.Infected != nil {
		infected = *req.Infected
	}
	disease := strings.TrimSpace(req.DiseaseTag)
	if disease == "" {
		disease = unknownDisease
	}
	profile := strings.TrimSpace(req.PesticideProfileID)
	if profile == "" {
		profile = DefaultProfileID
	}

	out := Normalized{Signal: entities.DetectionSignal{
		InfectedAreaPct:    area,
		PresenceConfidence: presence,
		SeverityConfidence: severity,
		Infected:           infected,
		DiseaseTag:         disease,
		DeviceID:           strings.TrimSpace(req.Metadata.DeviceID),
		Timestamp:          ts,
		GPS:                req.Metadata.GPS,
		CropType:           strings.TrimSpace(req.Metadata.CropType),
		SensorContext:      req.Sensors,
		PesticideProfileID: profile,
		ImageURL:           strings.TrimSpace(req.ImageURL),
		AreaPolygon:        req.AreaPolygon,
		OperatorOverride:   req.OperatorOverride,
		TimestampDefaulted: strings.TrimSpace(req.Metadata.Timestamp) == "",
	}}

	if img := strings.TrimSpace(req.Image); img != "" {
		if strings.HasPrefix(img, "data:") {
			payload, err := ParseDataURI(img)
			if err != nil {
				return Normalized{}, err
			}
			out.Image = payload
			sum := sha256.Sum256(payload.Data)
			out.Signal.ImageDigest = hex.EncodeToString(sum[:])
		} else {
			if !isHTTPURL(img) {
				return Normalized{}, invalid("image", "expected a data URI or an http(s) URL")
			}
			out.Signal.ImageURL = img
		}
	}
	return out, nil
}

// ParseDataURI decodes data:<mime>;base64,<payload>.
func ParseDataURI(s string) (*ImagePayload, error) {
	rest, ok := strings.CutPrefix(s, "data:")
	if !ok {
		return nil, invalid("image", "missing data: prefix")
	}
	header, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return nil, invalid("image", "missing payload separator")
	}
	mime, ok := strings.CutSuffix(header, ";base64")
	if !ok {
		return nil, invalid("image", "only base64 data URIs are accepted")
	}
	typ, sub, ok := strings.Cut(mime, "/")
	if !ok || typ == "" || sub == "" || strings.ContainsAny(mime, " ;") {
		return nil, invalid("image", "malformed mime type %q", mime)
	}
	if payload == "" {
		return nil, invalid("image", "empty payload")
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, invalid("image", "payload is not base64")
	}
	return &ImagePayload{ContentType: mime, Data: data}, nil
}

func bounded(field string, v, lo, hi float64) (float64, error) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, invalid(field, "not a finite number")
	}
	return math.Min(hi, math.Max(lo, v)), nil
}

func isHTTPURL(s string) bool {
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
