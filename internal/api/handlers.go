package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/greensort-data/sortstream/internal/httputil"
	"github.com/greensort-data/sortstream/internal/version"
)

var errInvalidDays = errors.New("invalid 'days' parameter")

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSONOK(w, map[string]interface{}{
		"status":   "ok",
		"service":  "sortstream",
		"version":  version.Version,
		"git_sha":  version.GitSHA,
		"detector": s.detectorInfo,
	})
}

func (s *Server) statsSummary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	days, err := daysParam(r, 7)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	summary, err := s.db.Summary(days)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to compute summary: %v", err))
		return
	}
	httputil.WriteSuccess(w, summary)
}

func (s *Server) statsTrend(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	days, err := daysParam(r, 7)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	trend, err := s.db.TrendDaily(days)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to compute trend: %v", err))
		return
	}
	httputil.WriteSuccess(w, trend)
}

func (s *Server) binDistribution(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	days, err := daysParam(r, 7)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	dist, err := s.db.BinDistribution(days)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to compute bin distribution: %v", err))
		return
	}
	httputil.WriteSuccess(w, dist)
}

func (s *Server) classDistribution(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	days, err := daysParam(r, 7)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	topN := 10
	if v := r.URL.Query().Get("top_n"); v != "" {
		if _, err := fmt.Sscanf(v, "%d", &topN); err != nil || topN < 1 {
			httputil.BadRequest(w, "invalid 'top_n' parameter")
			return
		}
	}
	dist, err := s.db.ClassDistribution(days, topN)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to compute class distribution: %v", err))
		return
	}
	httputil.WriteSuccess(w, dist)
}
