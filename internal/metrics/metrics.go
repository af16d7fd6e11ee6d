// Package metrics tracks service counters with atomics and exposes
// them through a private Prometheus registry.
package metrics

import (
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the service counters. All fields are updated with
// atomics so sessions can report without locking.
type Metrics struct {
	framesReceived    atomic.Int64
	framesProcessed   atomic.Int64
	framesSkipped     atomic.Int64 // static frames skipped by the motion gate
	detectorErrors    atomic.Int64
	detectorLatencyMS atomic.Int64 // cumulative, divided by framesProcessed for the mean
	activeSessions    atomic.Int64
	activeTracks      atomic.Int64
	stableDetections  atomic.Int64

	classifiedRecyclable atomic.Int64
	classifiedOrganic    atomic.Int64
	classifiedGeneral    atomic.Int64
	classifiedHazardous  atomic.Int64

	registry *prometheus.Registry
}

// New creates the metrics set and registers its collectors on a private
// registry.
func New() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	gauge := func(name, help string, fn func() float64) {
		m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "sortstream",
			Name:      name,
			Help:      help,
		}, fn))
	}

	gauge("frames_received_total", "Frames received over all realtime sessions", func() float64 {
		return float64(m.framesReceived.Load())
	})
	gauge("frames_processed_total", "Frames that ran the detector", func() float64 {
		return float64(m.framesProcessed.Load())
	})
	gauge("frames_skipped_static_total", "Frames skipped by the motion gate", func() float64 {
		return float64(m.framesSkipped.Load())
	})
	gauge("detector_errors_total", "Detector calls that returned an error", func() float64 {
		return float64(m.detectorErrors.Load())
	})
	gauge("detector_latency_ms_avg", "Mean detector latency in milliseconds", func() float64 {
		n := m.framesProcessed.Load()
		if n == 0 {
			return 0
		}
		return float64(m.detectorLatencyMS.Load()) / float64(n)
	})
	gauge("active_sessions", "Open realtime sessions", func() float64 {
		return float64(m.activeSessions.Load())
	})
	gauge("active_tracks", "Live tracks across all sessions", func() float64 {
		return float64(m.activeTracks.Load())
	})
	gauge("stable_detections_total", "Stable detections reported to clients", func() float64 {
		return float64(m.stableDetections.Load())
	})
	gauge("classified_recyclable_total", "Classifications recorded into the recyclable bin", func() float64 {
		return float64(m.classifiedRecyclable.Load())
	})
	gauge("classified_organic_total", "Classifications recorded into the organic bin", func() float64 {
		return float64(m.classifiedOrganic.Load())
	})
	gauge("classified_general_total", "Classifications recorded into the general bin", func() float64 {
		return float64(m.classifiedGeneral.Load())
	})
	gauge("classified_hazardous_total", "Classifications recorded into the hazardous bin", func() float64 {
		return float64(m.classifiedHazardous.Load())
	})

	return m
}

// Handler returns the promhttp handler for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) FrameReceived() { m.framesReceived.Add(1) }

func (m *Metrics) FrameProcessed(latencyMS int64) {
	m.framesProcessed.Add(1)
	m.detectorLatencyMS.Add(latencyMS)
}

func (m *Metrics) FrameSkippedStatic() { m.framesSkipped.Add(1) }
func (m *Metrics) DetectorError()      { m.detectorErrors.Add(1) }
func (m *Metrics) SessionOpened()      { m.activeSessions.Add(1) }
func (m *Metrics) SessionClosed()      { m.activeSessions.Add(-1) }

// AddActiveTracks adjusts the live-track gauge by delta (positive or
// negative).
func (m *Metrics) AddActiveTracks(delta int64) { m.activeTracks.Add(delta) }

// StableDetections counts stable detections sent to clients.
func (m *Metrics) StableDetections(n int64) { m.stableDetections.Add(n) }

// Classified bumps the per-bin counter for a recorded classification.
func (m *Metrics) Classified(bin string) {
	switch bin {
	case "recyclable":
		m.classifiedRecyclable.Add(1)
	case "organic":
		m.classifiedOrganic.Add(1)
	case "hazardous":
		m.classifiedHazardous.Add(1)
	default:
		m.classifiedGeneral.Add(1)
	}
}

// Snapshot is a point-in-time copy for the realtime status endpoint.
type Snapshot struct {
	FramesReceived   int64 `json:"frames_received"`
	FramesProcessed  int64 `json:"frames_processed"`
	FramesSkipped    int64 `json:"frames_skipped_static"`
	DetectorErrors   int64 `json:"detector_errors"`
	ActiveSessions   int64 `json:"active_sessions"`
	ActiveTracks     int64 `json:"active_tracks"`
	StableDetections int64 `json:"stable_detections"`
}

// Snapshot returns the current counter values.
func (m *Metrics) Snapshot() Snapshot {
	return Snapshot{
		FramesReceived:   m.framesReceived.Load(),
		FramesProcessed:  m.framesProcessed.Load(),
		FramesSkipped:    m.framesSkipped.Load(),
		DetectorErrors:   m.detectorErrors.Load(),
		ActiveSessions:   m.activeSessions.Load(),
		ActiveTracks:     m.activeTracks.Load(),
		StableDetections: m.stableDetections.Load(),
	}
}
