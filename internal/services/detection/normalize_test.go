package detection

import (
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var receivedAt = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func num(v float64) *Number { n := Number(v); return &n }

func TestNormalizeDefaults(t *testing.T) {
	n, err := Normalize(DetectRequest{
		InfectedAreaPct:    num(12),
		PresenceConfidence: num(0.8),
	}, receivedAt)
	require.NoError(t, err)

	sig := n.Signal
	assert.Equal(t, 0.8, sig.SeverityConfidence, "severity defaults to presence")
	assert.True(t, sig.Infected)
	assert.Equal(t, "unknown", sig.DiseaseTag)
	assert.Equal(t, DefaultProfileID, sig.PesticideProfileID)
	assert.Equal(t, receivedAt, sig.Timestamp)
	assert.True(t, sig.TimestampDefaulted)
	assert.Nil(t, n.Image)
}

func TestNormalizeClamps(t *testing.T) {
	n, err := Normalize(DetectRequest{
		InfectedAreaPct:    num(140),
		PresenceConfidence: num(-0.2),
		SeverityConfidence: num(3),
	}, receivedAt)
	require.NoError(t, err)
	assert.Equal(t, 100.0, n.Signal.InfectedAreaPct)
	assert.Equal(t, 0.0, n.Signal.PresenceConfidence)
	assert.Equal(t, 1.0, n.Signal.SeverityConfidence)
}

func TestNormalizeRejects(t *testing.T) {
	tests := []struct {
		name  string
		req   DetectRequest
		field string
	}{
		{"missing area", DetectRequest{PresenceConfidence: num(0.9)}, "infected_area_pct"},
		{"missing presence", DetectRequest{InfectedAreaPct: num(3)}, "presence_confidence"},
		{"NaN area", DetectRequest{InfectedAreaPct: num(math.NaN()), PresenceConfidence: num(0.9)}, "infected_area_pct"},
		{"Inf presence", DetectRequest{InfectedAreaPct: num(3), PresenceConfidence: num(math.Inf(1))}, "presence_confidence"},
		{"bad timestamp", DetectRequest{InfectedAreaPct: num(3), PresenceConfidence: num(0.9), Metadata: RequestMetadata{Timestamp: "yesterday"}}, "metadata.timestamp"},
		{"bad data uri", DetectRequest{InfectedAreaPct: num(3), PresenceConfidence: num(0.9), Image: "data:image/png,AAAA"}, "image"},
		{"bad base64", DetectRequest{InfectedAreaPct: num(3), PresenceConfidence: num(0.9), Image: "data:image/png;base64,@@@"}, "image"},
		{"not a url", DetectRequest{InfectedAreaPct: num(3), PresenceConfidence: num(0.9), Image: "leaf.png"}, "image"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Normalize(tt.req, receivedAt)
			require.ErrorIs(t, err, ErrInvalidInput)
			var ie *InputError
			require.True(t, errors.As(err, &ie))
			assert.Equal(t, tt.field, ie.Field)
		})
	}
}

func TestNormalizeImages(t *testing.T) {
	n, err := Normalize(DetectRequest{
		InfectedAreaPct:    num(3),
		PresenceConfidence: num(0.9),
		Image:              "data:image/png;base64,iVBORw==",
	}, receivedAt)
	require.NoError(t, err)
	require.NotNil(t, n.Image)
	assert.Equal(t, "image/png", n.Image.ContentType)
	assert.Equal(t, []byte{0x89, 0x50, 0x4e, 0x47}, n.Image.Data)
	assert.Len(t, n.Signal.ImageDigest, 64)

	n, err = Normalize(DetectRequest{
		InfectedAreaPct:    num(3),
		PresenceConfidence: num(0.9),
		Image:              "https://cdn.example.org/leaf.jpg",
	}, receivedAt)
	require.NoError(t, err)
	assert.Nil(t, n.Image)
	assert.Equal(t, "https://cdn.example.org/leaf.jpg", n.Signal.ImageURL)
}

func TestDetectRequestAcceptsNumericStrings(t *testing.T) {
	body := `{
		"metadata": {"deviceId": "sprayer-2", "timestamp": "2024-06-01T10:15:00+02:00", "gps": {"lat": 45.1, "lon": 7.6}, "cropType": "vine"},
		"sensors": {"humidityPct": 80},
		"infected_area_pct": "12,5",
		"presence_confidence": 0.91,
		"infected": false,
		"disease_tag": "downy_mildew",
		"operator_override": true
	}`
	var req DetectRequest
	require.NoError(t, json.Unmarshal([]byte(body), &req))

	n, err := Normalize(req, receivedAt)
	require.NoError(t, err)
	sig := n.Signal
	assert.Equal(t, 12.5, sig.InfectedAreaPct)
	assert.False(t, sig.Infected)
	assert.True(t, sig.OperatorOverride)
	assert.Equal(t, "sprayer-2", sig.DeviceID)
	assert.True(t, time.Date(2024, 6, 1, 8, 15, 0, 0, time.UTC).Equal(sig.Timestamp))
	assert.Equal(t, time.UTC, sig.Timestamp.Location())
	require.NotNil(t, sig.SensorContext)
	assert.Equal(t, 80.0, *sig.SensorContext.HumidityPct)

	var bad DetectRequest
	assert.Error(t, json.Unmarshal([]byte(`{"infected_area_pct": "lots"}`), &bad))
	assert.Error(t, json.Unmarshal([]byte(`{"infected_area_pct": true}`), &bad))
}
