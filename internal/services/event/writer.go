package event

import (
	"sync"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/LeonardoBeccarini/agrispray/internal/model/entities"
	"github.com/LeonardoBeccarini/agrispray/internal/services/detection"
)

var _ detection.EventSink = (*Writer)(nil)

// Writer feeds detection records to the async Influx WriteAPI and tracks the last write error for readiness.
type Writer struct {
	api  api.WriteAPI
	log  *zap.Logger
	stop chan struct{}
	once sync.Once

	mu      sync.RWMutex
	lastErr time.Time
	counts  map[string]int64
}

func NewWriter(w api.WriteAPI, logger *zap.Logger) *Writer {
	if logger == nil {
		logger = zap.NewNop()
	}
	ww := &Writer{
		api:     w,
		log:     logger.Named("influx"),
		stop:    make(chan struct{}),
		lastErr: time.Now().Add(-24 * time.Hour),
		counts:  make(map[string]int64),
	}
	errs := w.Errors()
	go func() {
		for {
			select {
			case <-ww.stop:
				return
			case err, ok := <-errs:
				if !ok {
					return
				}
				if err != nil {
					ww.mu.Lock()
					ww.lastErr = time.Now()
					ww.mu.Unlock()
					ww.log.Warn("influx: write error", zap.Error(err))
				}
			}
		}
	}()
	return ww
}

// Record queues the point; the WriteAPI batches and flushes in the background.
func (w *Writer) Record(rec entities.DetectionRecord) {
	if w == nil {
		return
	}
	w.api.WritePoint(RecordToPoint(rec))
	w.mu.Lock()
	w.counts[rec.InfectionLevel.String()]++
	w.mu.Unlock()
}

// LastErrorAge is the time since the last failed write.
func (w *Writer) LastErrorAge() time.Duration {
	if w == nil {
		return 99999 * time.Hour
	}
	w.mu.RLock()
	t := w.lastErr
	w.mu.RUnlock()
	return time.Since(t)
}

// Count is how many records of a level were queued.
func (w *Writer) Count(level string) int64 {
	if w == nil {
		return 0
	}
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.counts[level]
}

// Collectors export the queued point counts, one counter per infection level.
func (w *Writer) Collectors() []prometheus.Collector {
	out := make([]prometheus.Collector, 0, len(entities.Levels))
	for _, l := range entities.Levels {
		level := l.String()
		out = append(out, prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name:        "agrispray_influx_points_queued_total",
			Help:        "Detection points queued for InfluxDB, by infection level.",
			ConstLabels: prometheus.Labels{"level": level},
		}, func() float64 { return float64(w.Count(level)) }))
	}
	return out
}

// Close flushes pending points and stops the error listener.
func (w *Writer) Close() {
	if w == nil {
		return
	}
	w.once.Do(func() {
		w.api.Flush()
		close(w.stop)
	})
}
