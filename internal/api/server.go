// Package api exposes the HTTP surface: classification endpoints,
// history statistics, the realtime websocket, and operational routes.
package api

import (
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/greensort-data/sortstream/internal/config"
	"github.com/greensort-data/sortstream/internal/db"
	"github.com/greensort-data/sortstream/internal/detect"
	"github.com/greensort-data/sortstream/internal/fsutil"
	"github.com/greensort-data/sortstream/internal/metrics"
	"github.com/greensort-data/sortstream/internal/monitoring"
	"github.com/greensort-data/sortstream/internal/stream"
	"github.com/greensort-data/sortstream/internal/timeutil"
)

// ANSI escape codes for cyan and reset
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

// Options collects the server's collaborators. DB and Detector are
// required in production; tests may leave parts nil.
type Options struct {
	DB           *db.DB
	Detector     detect.Detector
	DetectorInfo detect.Info
	Tuning       *config.TuningConfig
	Metrics      *metrics.Metrics
	Clock        timeutil.Clock
	FS           fsutil.FileSystem
	ContribDir   string
	Debug        bool
}

type Server struct {
	db           *db.DB
	detector     detect.Detector
	detectorInfo detect.Info
	metrics      *metrics.Metrics
	clock        timeutil.Clock
	fs           fsutil.FileSystem
	contribDir   string
	debug        bool

	registry *stream.Registry
	// tuning is swapped wholesale by /api/realtime/config; new sessions
	// pick up the latest pointer.
	tuning atomic.Pointer[config.TuningConfig]
}

func NewServer(opts Options) *Server {
	s := &Server{
		db:           opts.DB,
		detector:     opts.Detector,
		detectorInfo: opts.DetectorInfo,
		metrics:      opts.Metrics,
		clock:        opts.Clock,
		fs:           opts.FS,
		contribDir:   opts.ContribDir,
		debug:        opts.Debug,
		registry:     stream.NewRegistry(),
	}
	if s.clock == nil {
		s.clock = timeutil.RealClock{}
	}
	if s.fs == nil {
		s.fs = fsutil.OSFileSystem{}
	}
	if s.metrics == nil {
		s.metrics = metrics.New()
	}
	tuning := opts.Tuning
	if tuning == nil {
		tuning = config.EmptyTuningConfig()
	}
	s.tuning.Store(tuning)
	return s
}

// Tuning returns the configuration new sessions will use.
func (s *Server) Tuning() *config.TuningConfig { return s.tuning.Load() }

// sessionOptions builds the per-connection wiring for the websocket
// handler.
func (s *Server) sessionOptions() stream.Options {
	var store stream.Store
	if s.db != nil {
		store = s.db
	}
	return stream.Options{
		Tuning:   s.tuning.Load(),
		Detector: s.detector,
		Store:    store,
		Metrics:  s.metrics,
		Clock:    s.clock,
	}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		monitoring.Logf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/health", s.health)
	mux.HandleFunc("/api/stats/summary", s.statsSummary)
	mux.HandleFunc("/api/stats/trend", s.statsTrend)
	mux.HandleFunc("/api/stats/distribution/bins", s.binDistribution)
	mux.HandleFunc("/api/stats/distribution/classes", s.classDistribution)
	mux.HandleFunc("/api/classify", s.classify)
	mux.HandleFunc("/api/feedback", s.feedback)
	mux.HandleFunc("/api/contrib", s.contribute)
	mux.Handle("/ws/realtime", stream.NewHandler(s.sessionOptions, s.registry))
	mux.HandleFunc("/api/realtime/status", s.realtimeStatus)
	mux.HandleFunc("/api/realtime/reset", s.realtimeReset)
	mux.HandleFunc("/api/realtime/config", s.realtimeConfig)
	mux.Handle("/metrics", s.metrics.Handler())
	if s.debug {
		s.attachChartRoutes(mux)
	}
	return mux
}

// daysParam parses the ?days= window with a default, rejecting zero and
// negatives.
func daysParam(r *http.Request, def int) (int, error) {
	d := r.URL.Query().Get("days")
	if d == "" {
		return def, nil
	}
	parsed, err := strconv.Atoi(d)
	if err != nil || parsed < 1 {
		return 0, errInvalidDays
	}
	return parsed, nil
}
