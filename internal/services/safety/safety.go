// Package safety answers the weather and recent-spray checks attached to sprayer commands.
package safety

import (
	"context"
	"fmt"
	"time"

	"github.com/LeonardoBeccarini/agrispray/internal/model/messages"
	"github.com/LeonardoBeccarini/agrispray/internal/services/detection"
)

// DefaultAvoidance is the minimum time between two sprays on the same device.
const DefaultAvoidance = 24 * time.Hour

// Weather decides whether conditions at a point allow spraying.
type Weather interface {
	SafeToSpray(ctx context.Context, lat, lon float64, at time.Time) (bool, error)
}

// History knows when a device last sprayed.
type History interface {
	LastSpray(ctx context.Context, deviceID string) (time.Time, bool, error)
}

var _ detection.SafetyChecker = (*Checker)(nil)

// Checker combines the weather and the spray history. A nil collaborator passes its check.
type Checker struct {
	Weather   Weather
	History   History
	Avoidance time.Duration
}

func (c *Checker) Check(ctx context.Context, q detection.SafetyQuery) (messages.SafetyChecks, error) {
	out := messages.SafetyChecks{WeatherSafe: true, RecentSprayAvoidance: true}

	if c.Weather != nil {
		ok, err := c.Weather.SafeToSpray(ctx, q.GPS.Lat, q.GPS.Lon, q.At)
		if err != nil {
			return messages.SafetyChecks{}, fmt.Errorf("weather: %w", err)
		}
		out.WeatherSafe = ok
	}

	if c.History != nil && q.DeviceID != "" {
		last, ok, err := c.History.LastSpray(ctx, q.DeviceID)
		if err != nil {
			return messages.SafetyChecks{}, fmt.Errorf("spray history: %w", err)
		}
		window := c.Avoidance
		if window <= 0 {
			window = DefaultAvoidance
		}
		out.RecentSprayAvoidance = !ok || !last.After(q.At.Add(-window))
	}
	return out, nil
}

// StaticWeather always returns the same verdict. Used when no weather provider is configured.
type StaticWeather struct{ Safe bool }

func (s StaticWeather) SafeToSpray(context.Context, float64, float64, time.Time) (bool, error) {
	return s.Safe, nil
}
