// Package inference produces raw detection scores from a leaf image.
package inference

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/LeonardoBeccarini/agrispray/internal/services/detection"
)

var (
	_ detection.SignalProvider = StaticProvider{}
	_ detection.SignalProvider = (*HTTPProvider)(nil)
	_ detection.SignalProvider = (*GeminiProvider)(nil)
)

// StaticProvider returns the same scores for every image. Useful for demos and tests.
type StaticProvider struct {
	Scores detection.RawScores
}

func (p StaticProvider) Infer(_ context.Context, image []byte, _ string) (detection.RawScores, error) {
	if len(image) == 0 {
		return detection.RawScores{}, fmt.Errorf("empty image")
	}
	return p.Scores, nil
}

// decodeScores reads a score object, tolerating a markdown code fence around it.
func decodeScores(raw string) (detection.RawScores, error) {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	s = strings.TrimSpace(s)

	var out struct {
		detection.RawScores
		Infected *bool `json:"infected"`
	}
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return detection.RawScores{}, fmt.Errorf("decode scores: %w", err)
	}
	scores := out.RawScores
	// a model that omits the flag but reports presence means infected
	scores.Infected = out.Infected == nil || *out.Infected
	if scores.SeverityConfidence == 0 {
		scores.SeverityConfidence = scores.PresenceConfidence
	}
	return scores, nil
}
