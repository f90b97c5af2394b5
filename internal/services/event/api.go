package event

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"go.uber.org/zap"
)

// Detection is one row of the recent-detections view.
type Detection struct {
	DetectionID     string  `json:"detectionId,omitempty"`
	DeviceID        string  `json:"deviceId,omitempty"`
	InfectionLevel  string  `json:"infectionLevel,omitempty"`
	InfectedAreaPct float64 `json:"infectedAreaPct"`
	Time            string  `json:"time"`
}

type queryParams struct {
	Minutes   int
	Limit     int
	TimeoutMS int
	DeviceID  string
}

func parseQuery(r *http.Request, defMin, defLim, defTOms int) queryParams {
	q := r.URL.Query()
	get := func(k string, def, min, max int) int {
		if v := strings.TrimSpace(q.Get(k)); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				if n < min {
					return min
				}
				if max > 0 && n > max {
					return max
				}
				return n
			}
		}
		return def
	}
	return queryParams{
		Minutes:   get("minutes", defMin, 1, 7*24*60),
		Limit:     get("limit", defLim, 1, 500),
		TimeoutMS: get("timeout_ms", defTOms, 200, 5000),
		DeviceID:  strings.TrimSpace(q.Get("device")),
	}
}

func buildFlux(bucket string, p queryParams) string {
	device := ""
	if p.DeviceID != "" {
		device = fmt.Sprintf("\n  |> filter(fn: (r) => r.device_id == %q)", p.DeviceID)
	}
	return fmt.Sprintf(`
from(bucket: %q)
  |> range(start: -%dm)
  |> filter(fn: (r) => r._measurement == %q)%s
  |> filter(fn: (r) => r._field == "infected_area_pct" or r._field == "detection_id")
  |> pivot(rowKey: ["_time"], columnKey: ["_field"], valueColumn: "_value")
  |> keep(columns: ["_time","infected_area_pct","detection_id","device_id","infection_level"])
  |> sort(columns: ["_time"], desc: true)
  |> limit(n:%d)
`, bucket, p.Minutes, Measurement, device, p.Limit)
}

// NewLatestHandler serves GET /events/detections/latest?limit=20[&minutes=1440][&device=id].
// Query failures answer an empty list with an X-Error header so dashboards keep rendering.
func NewLatestHandler(influx influxdb2.Client, org, bucket string, logger *zap.Logger) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p := parseQuery(r, 1440, 20, 2000)

		ctx, cancel := context.WithTimeout(r.Context(), time.Duration(p.TimeoutMS)*time.Millisecond)
		defer cancel()

		res, err := influx.QueryAPI(org).Query(ctx, buildFlux(bucket, p))
		if err != nil {
			logger.Warn("influx: query failed", zap.Error(err))
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("X-Error", "influx-query-error")
			_, _ = w.Write([]byte("[]"))
			return
		}
		defer res.Close()

		out := make([]Detection, 0, p.Limit)
		for res.Next() {
			rec := res.Record()
			d := Detection{Time: rec.Time().UTC().Format(time.RFC3339)}
			if v, ok := rec.ValueByKey("infected_area_pct").(float64); ok {
				d.InfectedAreaPct = v
			}
			d.DetectionID = str(rec.ValueByKey("detection_id"))
			d.DeviceID = str(rec.ValueByKey("device_id"))
			d.InfectionLevel = str(rec.ValueByKey("infection_level"))
			out = append(out, d)
		}
		if res.Err() != nil {
			w.Header().Set("X-Error", "influx-iter-error")
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(out)
	})
}

func str(v interface{}) string {
	s, _ := v.(string)
	return s
}
