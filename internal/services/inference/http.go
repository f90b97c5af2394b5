package inference

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/LeonardoBeccarini/agrispray/internal/services/detection"
)

// HTTPProvider posts the raw image to an inference service, behind a circuit breaker.
type HTTPProvider struct {
	url    string
	client *http.Client
	cb     *gobreaker.CircuitBreaker
}

func NewHTTPProvider(url string, timeout time.Duration, cb *gobreaker.CircuitBreaker) *HTTPProvider {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if cb == nil {
		cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "inference",
			Timeout: 30 * time.Second,
			ReadyToTrip: func(c gobreaker.Counts) bool {
				return c.ConsecutiveFailures >= 3
			},
		})
	}
	return &HTTPProvider{
		url:    strings.TrimSpace(url),
		client: &http.Client{Timeout: timeout},
		cb:     cb,
	}
}

func (p *HTTPProvider) Infer(ctx context.Context, image []byte, contentType string) (detection.RawScores, error) {
	if p.url == "" {
		return detection.RawScores{}, fmt.Errorf("inference url not configured")
	}
	res, err := p.cb.Execute(func() (any, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(image))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", contentType)
		req.Header.Set("Accept", "application/json")

		resp, err := p.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("inference request error: %w", err)
		}
		defer resp.Body.Close()
		body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return nil, fmt.Errorf("inference read error: %w", err)
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, fmt.Errorf("inference upstream status %d", resp.StatusCode)
		}
		return decodeScores(string(body))
	})
	if err != nil {
		return detection.RawScores{}, err
	}
	return res.(detection.RawScores), nil
}
