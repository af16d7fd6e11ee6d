package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/greensort-data/sortstream/internal/httputil"
	"github.com/greensort-data/sortstream/internal/monitoring"
)

// realtimeStatus reports the live session counters and the tuning new
// sessions will receive.
func (s *Server) realtimeStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteSuccess(w, map[string]interface{}{
		"sessions": s.registry.Count(),
		"counters": s.metrics.Snapshot(),
		"config":   s.Tuning(),
	})
}

// realtimeReset asks every live session to drop its tracker state.
func (s *Server) realtimeReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	n := s.registry.ResetAll()
	monitoring.Logf("realtime reset requested for %d sessions", n)
	httputil.WriteSuccess(w, map[string]int{"sessions_reset": n})
}

// realtimeConfig updates the tuning used by new sessions. The body uses
// the same schema as the tuning config file; omitted fields keep their
// current values.
func (s *Server) realtimeConfig(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		httputil.WriteSuccess(w, s.Tuning())
		return
	case http.MethodPost:
	default:
		httputil.MethodNotAllowed(w)
		return
	}

	// Start from a deep copy of the current config so a partial update
	// does not clear previously set fields, and so a rejected update
	// cannot leak into the live config through shared pointers.
	updated := s.Tuning().Clone()
	if err := json.NewDecoder(r.Body).Decode(updated); err != nil {
		httputil.BadRequest(w, fmt.Sprintf("invalid config JSON: %v", err))
		return
	}
	if err := updated.Validate(); err != nil {
		httputil.BadRequest(w, fmt.Sprintf("invalid configuration: %v", err))
		return
	}

	s.tuning.Store(updated)
	monitoring.Logf("tuning config updated via API")
	httputil.WriteSuccess(w, updated)
}
