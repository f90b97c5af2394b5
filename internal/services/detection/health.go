package detection

import (
	"encoding/json"
	"net/http"
)

// Check reports whether one dependency is usable right now.
type Check struct {
	Name  string
	Ready func() bool
}

// Checks is the set of dependencies behind /healthz and /readyz.
type Checks []Check

func (p Checks) states() (map[string]bool, bool) {
	out := make(map[string]bool, len(p))
	all := true
	for _, pr := range p {
		ok := pr.Ready == nil || pr.Ready()
		out[pr.Name] = ok
		all = all && ok
	}
	return out, all
}

// Ready is true when every check passes.
func (p Checks) Ready() bool {
	_, all := p.states()
	return all
}

// HealthHandler always answers 200 with "ok", "degraded" or "down".
func (p Checks) HealthHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		type status struct {
			Status       string          `json:"status"`
			Dependencies map[string]bool `json:"dependencies"`
		}
		deps, all := p.states()
		st := status{Status: "ok", Dependencies: deps}
		if !all {
			st.Status = "down"
			for _, ok := range deps {
				if ok {
					st.Status = "degraded"
					break
				}
			}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(st)
	})
}

// ReadyHandler answers 200 only when all dependencies are ready.
func (p Checks) ReadyHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		ready := p.Ready()
		w.Header().Set("Content-Type", "application/json")
		if !ready {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(struct {
			Ready bool `json:"ready"`
		}{ready})
	})
}
