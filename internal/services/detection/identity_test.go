package detection

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRandomIDsAreUnique(t *testing.T) {
	sig := signal(3, 0.9, 0.9)
	a, b := RandomIDs{}.NewID(sig), RandomIDs{}.NewID(sig)
	assert.NotEqual(t, a, b)
	assert.Regexp(t, `^det_[0-9a-f-]{36}$`, a)
}

func TestDeterministicIDs(t *testing.T) {
	sig := signal(3, 0.9, 0.9)
	ids := DeterministicIDs{}
	assert.Equal(t, ids.NewID(sig), ids.NewID(sig))

	other := sig
	other.InfectedAreaPct = 3.5
	assert.NotEqual(t, ids.NewID(sig), ids.NewID(other))

	moved := sig
	moved.DeviceID = "sprayer-9"
	assert.NotEqual(t, ids.NewID(sig), ids.NewID(moved))
}

func TestParseIDMode(t *testing.T) {
	g, err := ParseIDMode("")
	require.NoError(t, err)
	assert.IsType(t, RandomIDs{}, g)

	g, err = ParseIDMode("Deterministic")
	require.NoError(t, err)
	assert.IsType(t, DeterministicIDs{}, g)

	_, err = ParseIDMode("sequential")
	assert.Error(t, err)
}

func TestDeterministicIDsIgnoreDefaultedTimestamp(t *testing.T) {
	ids := DeterministicIDs{}
	req := DetectRequest{
		Image:              "data:image/png;base64,iVBORw==",
		Metadata:           RequestMetadata{DeviceID: "sprayer-1"},
		InfectedAreaPct:    num(12),
		PresenceConfidence: num(0.9),
	}

	first, err := Normalize(req, receivedAt)
	require.NoError(t, err)
	again, err := Normalize(req, receivedAt.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, ids.NewID(first.Signal), ids.NewID(again.Signal), "a redelivery is received later")

	req.Image = "data:image/png;base64,AAAA"
	other, err := Normalize(req, receivedAt)
	require.NoError(t, err)
	assert.NotEqual(t, ids.NewID(first.Signal), ids.NewID(other.Signal), "another image is another detection")

	req.Metadata.Timestamp = "2024-06-01T09:00:00Z"
	stamped, err := Normalize(req, receivedAt)
	require.NoError(t, err)
	restamped := req
	restamped.Metadata.Timestamp = "2024-06-01T09:05:00Z"
	later, err := Normalize(restamped, receivedAt)
	require.NoError(t, err)
	assert.NotEqual(t, ids.NewID(stamped.Signal), ids.NewID(later.Signal))
}
