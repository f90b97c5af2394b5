package safety

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker"
)

const owmOneCallURL = "https://api.openweathermap.org/data/3.0/onecall"

// Spray drift and wash-off limits.
const (
	DefaultMaxWindMS = 5.0
	DefaultMaxRainMM = 0.5
)

type owmCurrent struct {
	Dt        int64              `json:"dt"`
	WindSpeed float64            `json:"wind_speed"`
	WindGust  float64            `json:"wind_gust"`
	Rain      map[string]float64 `json:"rain"`
}

type owmHourly struct {
	Dt   int64              `json:"dt"`
	Pop  float64            `json:"pop"`
	Rain map[string]float64 `json:"rain"`
}

type owmResp struct {
	Current owmCurrent  `json:"current"`
	Hourly  []owmHourly `json:"hourly"`
}

// OWMWeather asks OpenWeather One Call for wind and rain, behind a circuit breaker.
type OWMWeather struct {
	apiKey    string
	baseURL   string
	client    *http.Client
	cb        *gobreaker.CircuitBreaker
	MaxWindMS float64
	MaxRainMM float64
}

func NewOWMWeather(apiKey string, timeout time.Duration) *OWMWeather {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &OWMWeather{
		apiKey:    apiKey,
		baseURL:   owmOneCallURL,
		client:    &http.Client{Timeout: timeout},
		cb:        NewBreaker("openweather", 3, 30*time.Second, time.Minute),
		MaxWindMS: DefaultMaxWindMS,
		MaxRainMM: DefaultMaxRainMM,
	}
}

// WithBaseURL points the client at another endpoint. Used by tests.
func (c *OWMWeather) WithBaseURL(u string) *OWMWeather {
	c.baseURL = strings.TrimRight(u, "/")
	return c
}

// NewBreaker trips after fails consecutive failures and stays open for openFor.
func NewBreaker(name string, fails uint32, openFor, interval time.Duration) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:     name,
		Interval: interval,
		Timeout:  openFor,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= fails
		},
	})
}

// SafeToSpray is false when wind or gusts exceed the limit, or rain is falling or expected in the next hour.
func (c *OWMWeather) SafeToSpray(ctx context.Context, lat, lon float64, _ time.Time) (bool, error) {
	if c.apiKey == "" {
		return false, fmt.Errorf("missing api key")
	}
	res, err := c.cb.Execute(func() (any, error) { return c.fetch(ctx, lat, lon) })
	if err != nil {
		return false, err
	}
	w := res.(*owmResp)

	if w.Current.WindSpeed > c.MaxWindMS || w.Current.WindGust > 1.5*c.MaxWindMS {
		return false, nil
	}
	if w.Current.Rain["1h"] > c.MaxRainMM {
		return false, nil
	}
	if len(w.Hourly) > 0 && w.Hourly[0].Rain["1h"] > c.MaxRainMM {
		return false, nil
	}
	return true, nil
}

func (c *OWMWeather) fetch(ctx context.Context, lat, lon float64) (*owmResp, error) {
	url := fmt.Sprintf("%s?lat=%f&lon=%f&exclude=minutely,daily,alerts&units=metric&appid=%s", c.baseURL, lat, lon, c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return nil, fmt.Errorf("owm status %d: %s", resp.StatusCode, string(b))
	}
	var out owmResp
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("owm decode: %w", err)
	}
	return &out, nil
}
