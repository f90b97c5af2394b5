package safety

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LeonardoBeccarini/agrispray/internal/model/entities"
	"github.com/LeonardoBeccarini/agrispray/internal/services/detection"
)

type history map[string]time.Time

func (h history) LastSpray(_ context.Context, dev string) (time.Time, bool, error) {
	t, ok := h[dev]
	return t, ok, nil
}

type brokenHistory struct{}

func (brokenHistory) LastSpray(context.Context, string) (time.Time, bool, error) {
	return time.Time{}, false, errors.New("db down")
}

func TestCheckerRecentSprayAvoidance(t *testing.T) {
	at := time.Date(2024, 6, 2, 10, 0, 0, 0, time.UTC)
	c := &Checker{
		Weather: StaticWeather{Safe: true},
		History: history{
			"recent": at.Add(-2 * time.Hour),
			"old":    at.Add(-48 * time.Hour),
		},
		Avoidance: 24 * time.Hour,
	}
	tests := []struct {
		device string
		want   bool
	}{
		{"recent", false},
		{"old", true},
		{"never", true},
	}
	for _, tt := range tests {
		got, err := c.Check(context.Background(), detection.SafetyQuery{DeviceID: tt.device, At: at})
		require.NoError(t, err)
		assert.Equal(t, tt.want, got.RecentSprayAvoidance, tt.device)
		assert.True(t, got.WeatherSafe)
		assert.False(t, got.OperatorOverride)
	}
}

func TestCheckerPropagatesErrors(t *testing.T) {
	c := &Checker{History: brokenHistory{}}
	_, err := c.Check(context.Background(), detection.SafetyQuery{DeviceID: "d", At: time.Now()})
	assert.Error(t, err)
}

func TestCheckerWithoutCollaboratorsPasses(t *testing.T) {
	got, err := (&Checker{}).Check(context.Background(), detection.SafetyQuery{DeviceID: "d"})
	require.NoError(t, err)
	assert.True(t, got.WeatherSafe)
	assert.True(t, got.RecentSprayAvoidance)
}

func owmServer(t *testing.T, body string, status int, calls *int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(calls, 1)
		assert.Equal(t, "k", r.URL.Query().Get("appid"))
		w.WriteHeader(status)
		fmt.Fprint(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestOWMWeatherThresholds(t *testing.T) {
	tests := []struct {
		name string
		body string
		want bool
	}{
		{"calm and dry", `{"current":{"wind_speed":2.1,"wind_gust":3}}`, true},
		{"windy", `{"current":{"wind_speed":6.5}}`, false},
		{"gusty", `{"current":{"wind_speed":3,"wind_gust":9}}`, false},
		{"raining", `{"current":{"wind_speed":1,"rain":{"1h":1.2}}}`, false},
		{"rain next hour", `{"current":{"wind_speed":1},"hourly":[{"dt":1,"rain":{"1h":2}}]}`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls int32
			srv := owmServer(t, tt.body, http.StatusOK, &calls)
			w := NewOWMWeather("k", time.Second).WithBaseURL(srv.URL)
			got, err := w.SafeToSpray(context.Background(), 45, 9, time.Now())
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestOWMWeatherBreakerOpens(t *testing.T) {
	var calls int32
	srv := owmServer(t, "boom", http.StatusBadGateway, &calls)
	w := NewOWMWeather("k", time.Second).WithBaseURL(srv.URL)

	for i := 0; i < 3; i++ {
		_, err := w.SafeToSpray(context.Background(), 0, 0, time.Now())
		require.Error(t, err)
	}
	_, err := w.SafeToSpray(context.Background(), 0, 0, time.Now())
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.EqualValues(t, 3, atomic.LoadInt32(&calls))
}

func TestOWMWeatherMissingKey(t *testing.T) {
	_, err := NewOWMWeather("", 0).SafeToSpray(context.Background(), 0, 0, time.Now())
	assert.Error(t, err)
}

func TestCheckerWithOWM(t *testing.T) {
	var calls int32
	srv := owmServer(t, `{"current":{"wind_speed":9}}`, http.StatusOK, &calls)
	c := &Checker{Weather: NewOWMWeather("k", time.Second).WithBaseURL(srv.URL)}
	got, err := c.Check(context.Background(), detection.SafetyQuery{GPS: entities.GPS{Lat: 1, Lon: 2}, At: time.Now()})
	require.NoError(t, err)
	assert.False(t, got.WeatherSafe)
}
