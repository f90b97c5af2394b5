package detection

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/LeonardoBeccarini/agrispray/internal/model/entities"
)

const idPrefix = "det_"

// IDGenerator assigns the detection id.
type IDGenerator interface {
	NewID(sig entities.DetectionSignal) string
}

// RandomIDs gives every call a fresh id.
type RandomIDs struct{}

func (RandomIDs) NewID(entities.DetectionSignal) string {
	return idPrefix + uuid.NewString()
}

// detectionNamespace scopes the name-based ids.
var detectionNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("urn:agrispray:detection"))

// DeterministicIDs derives the id from the signal, so a redelivered request maps to the same record.
type DeterministicIDs struct{}

func (DeterministicIDs) NewID(sig entities.DetectionSignal) string {
	return idPrefix + uuid.NewSHA1(detectionNamespace, []byte(signalKey(sig))).String()
}

// signalKey leaves out a defaulted timestamp, which would differ on every redelivery;
// such signals are told apart by their image instead.
func signalKey(sig entities.DetectionSignal) string {
	f := func(v float64) string { return strconv.FormatFloat(v, 'f', 6, 64) }
	ts := sig.Timestamp.UTC().Format(time.RFC3339Nano)
	if sig.TimestampDefaulted {
		ts = "received"
	}
	image := sig.ImageDigest
	if image == "" {
		image = sig.ImageURL
	}
	return strings.Join([]string{
		sig.DeviceID,
		ts,
		image,
		f(sig.InfectedAreaPct),
		f(sig.PresenceConfidence),
		f(sig.SeverityConfidence),
		strconv.FormatBool(sig.Infected),
		sig.DiseaseTag,
		sig.PesticideProfileID,
	}, "|")
}

// ParseIDMode maps "random" / "deterministic" to a generator.
func ParseIDMode(s string) (IDGenerator, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "random":
		return RandomIDs{}, nil
	case "deterministic":
		return DeterministicIDs{}, nil
	}
	return nil, fmt.Errorf("unknown id mode %q", s)
}
