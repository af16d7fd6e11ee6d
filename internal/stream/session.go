// Package stream drives one realtime detection session per websocket
// connection: decode a frame, run the detector, stabilize through the
// tracker, reply, repeat. Strictly serial per connection.
package stream

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/greensort-data/sortstream/internal/config"
	"github.com/greensort-data/sortstream/internal/db"
	"github.com/greensort-data/sortstream/internal/detect"
	"github.com/greensort-data/sortstream/internal/metrics"
	"github.com/greensort-data/sortstream/internal/monitoring"
	"github.com/greensort-data/sortstream/internal/motion"
	"github.com/greensort-data/sortstream/internal/timeutil"
	"github.com/greensort-data/sortstream/internal/track"
	"github.com/greensort-data/sortstream/internal/waste"
)

// Store persists confirmed classifications. *db.DB satisfies it; tests
// substitute a recorder.
type Store interface {
	RecordClassification(c db.Classification) (int64, error)
}

// Mode selects how a session stabilizes results.
type Mode string

const (
	// ModeRealtime runs the temporal tracker over every frame.
	ModeRealtime Mode = "realtime"
	// ModeClassify bypasses the tracker and votes on the single best
	// detection per frame.
	ModeClassify Mode = "classify"
)

// Options wires a session's collaborators. Detector and Tuning are
// required; the rest are optional.
type Options struct {
	Tuning   *config.TuningConfig
	Detector detect.Detector
	Store    Store
	Metrics  *metrics.Metrics
	Clock    timeutil.Clock
}

// Session is the per-connection frame driver. Not safe for concurrent
// use; the websocket read loop serializes all calls.
type Session struct {
	ID string

	tuning   *config.TuningConfig
	detector detect.Detector
	store    Store
	metrics  *metrics.Metrics
	clock    timeutil.Clock

	mode     Mode
	tracker  *track.Tracker
	gate     *motion.Gate
	smoother *Smoother

	frameCount     int
	totalElapsedMS float64
	loggedIDs      map[int]struct{}
	lastData       *FrameData

	resetRequested atomic.Bool
}

// NewSession builds a session from validated tuning. Configuration
// errors are construction-time failures.
func NewSession(opts Options) (*Session, error) {
	if opts.Detector == nil {
		return nil, fmt.Errorf("session requires a detector")
	}
	if opts.Tuning == nil {
		opts.Tuning = config.EmptyTuningConfig()
	}
	if opts.Clock == nil {
		opts.Clock = timeutil.RealClock{}
	}

	tracker, err := track.NewTracker(opts.Tuning.TrackerConfig())
	if err != nil {
		return nil, err
	}

	s := &Session{
		ID:        uuid.NewString(),
		tuning:    opts.Tuning,
		detector:  opts.Detector,
		store:     opts.Store,
		metrics:   opts.Metrics,
		clock:     opts.Clock,
		mode:      ModeRealtime,
		tracker:   tracker,
		smoother:  NewSmoother(opts.Tuning.GetSmoothingWindow(), opts.Tuning.GetSmoothingStabilityRatio()),
		loggedIDs: make(map[int]struct{}),
	}
	if opts.Tuning.GetMotionGateEnabled() {
		s.gate = motion.NewGate(
			opts.Tuning.GetMotionDiffThreshold(),
			opts.Tuning.GetMotionMinArea(),
			opts.Tuning.GetFrameWidth(),
			opts.Tuning.GetFrameHeight(),
		)
	}
	return s, nil
}

// SetMode switches between realtime and classify processing.
func (s *Session) SetMode(m Mode) error {
	switch m {
	case ModeRealtime, ModeClassify:
		s.mode = m
		return nil
	default:
		return fmt.Errorf("unknown session mode %q", m)
	}
}

// Mode returns the current processing mode.
func (s *Session) Mode() Mode { return s.mode }

// FrameCount returns how many frames the session has received.
func (s *Session) FrameCount() int { return s.frameCount }

// ActiveTracks returns the tracker's live track count.
func (s *Session) ActiveTracks() int { return s.tracker.ActiveTracks() }

// RequestReset asks the session to drop its tracker state before the
// next frame. Safe to call from other goroutines.
func (s *Session) RequestReset() { s.resetRequested.Store(true) }

// reset drops temporal state but keeps counters and identity.
func (s *Session) reset() {
	prev := s.tracker.ActiveTracks()
	s.tracker.Reset()
	s.trackDelta(prev)
	s.smoother.Reset()
	if s.gate != nil {
		s.gate.Reset()
	}
	s.loggedIDs = make(map[int]struct{})
	s.lastData = nil
}

// ImageSize is the decoded frame size in the response metadata.
type ImageSize struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// FrameData is the per-frame detection payload.
type FrameData struct {
	Detections   []track.StableDetection `json:"detections"`
	Classify     *SmootherResult         `json:"classification,omitempty"`
	TotalObjects int                     `json:"total_objects"`
	FrameCount   int                     `json:"frame_count"`
	Stable       bool                    `json:"stable"`
}

// FrameMetadata carries the timing and counter metadata for one frame.
type FrameMetadata struct {
	ProcessingTimeMS        float64   `json:"processing_time_ms"`
	AverageProcessingTimeMS float64   `json:"average_processing_time_ms"`
	FPS                     float64   `json:"fps"`
	ImageSize               ImageSize `json:"image_size"`
	RawDetections           int       `json:"raw_detections"`
	TrackedObjects          int       `json:"tracked_objects"`
	SkippedStatic           bool      `json:"skipped_static,omitempty"`
}

// FrameResponse is the websocket reply envelope.
type FrameResponse struct {
	Success    bool           `json:"success"`
	Data       *FrameData     `json:"data,omitempty"`
	Metadata   *FrameMetadata `json:"metadata,omitempty"`
	Error      string         `json:"error,omitempty"`
	FrameCount int            `json:"frame_count,omitempty"`
}

// ProcessFrame handles one raw websocket message. Processing errors are
// reported in the response, never as a Go error; the connection stays
// up.
func (s *Session) ProcessFrame(ctx context.Context, payload []byte) *FrameResponse {
	if s.resetRequested.Swap(false) {
		s.reset()
	}

	s.frameCount++
	if s.metrics != nil {
		s.metrics.FrameReceived()
	}

	jpeg, err := DecodeFramePayload(payload)
	if err != nil {
		return s.fail(fmt.Sprintf("invalid frame: %v", err))
	}

	size := s.imageSize(jpeg)
	start := s.clock.Now()

	// A static scene keeps the previous answer and skips the detector.
	if s.gate != nil {
		if moved := s.observeMotion(jpeg); !moved {
			if s.metrics != nil {
				s.metrics.FrameSkippedStatic()
			}
			return s.staticResponse(size)
		}
	}

	dets, err := s.detector.Detect(ctx, jpeg)
	if err != nil {
		if s.metrics != nil {
			s.metrics.DetectorError()
		}
		monitoring.Logf("session %s: detector failed on frame %d: %v", s.ID, s.frameCount, err)
		return s.fail(fmt.Sprintf("detection failed: %v", err))
	}

	var data *FrameData
	if s.mode == ModeClassify {
		data = s.classifyFrame(dets, size)
	} else {
		data = s.trackFrame(dets)
	}

	elapsedMS := float64(s.clock.Since(start)) / float64(time.Millisecond)
	s.totalElapsedMS += elapsedMS
	if s.metrics != nil {
		s.metrics.FrameProcessed(int64(elapsedMS))
	}
	s.lastData = data

	return &FrameResponse{
		Success:  true,
		Data:     data,
		Metadata: s.metadata(elapsedMS, size, len(dets), false),
	}
}

// trackFrame runs admission and the tracker over raw detections.
func (s *Session) trackFrame(dets []detect.Detection) *FrameData {
	trackerCfg := s.tracker.Config()

	candidates := make([]track.Candidate, 0, len(dets))
	for _, d := range dets {
		candidates = append(candidates, track.Candidate{
			Box:        track.NewBox(d.Box[0], d.Box[1], d.Box[2], d.Box[3]),
			Class:      waste.Normalize(d.Class),
			Confidence: d.Confidence,
		})
	}
	admitted := trackerCfg.Filter(candidates, func(c track.Candidate, reason track.RejectReason) {
		monitoring.Debugf("session %s: rejected %s candidate (%s)", s.ID, c.Class, reason)
	})

	prevActive := s.tracker.ActiveTracks()
	stable := s.tracker.Update(s.clock.Now(), admitted)
	s.trackDelta(prevActive)

	if s.metrics != nil {
		s.metrics.StableDetections(int64(len(stable)))
	}
	s.persistStable(stable)

	return &FrameData{
		Detections:   stable,
		TotalObjects: len(stable),
		FrameCount:   s.frameCount,
		Stable:       len(stable) > 0,
	}
}

// classifyFrame feeds the best detection into the vote smoother.
func (s *Session) classifyFrame(dets []detect.Detection, size ImageSize) *FrameData {
	frameArea := float64(size.Width) * float64(size.Height)
	if best, ok := detect.SelectBest(dets, frameArea); ok {
		s.smoother.Add(waste.Normalize(best.Class), best.Confidence*100)
	}

	data := &FrameData{FrameCount: s.frameCount}
	if result, ok := s.smoother.Stable(); ok {
		data.Classify = &result
		data.TotalObjects = 1
		data.Stable = true
		s.persistClassify(result)
	}
	return data
}

// persistStable records the primary (highest confidence) stable
// detection, once per track ID, and prunes logged IDs the tracker has
// dropped.
func (s *Session) persistStable(stable []track.StableDetection) {
	if s.store == nil || len(stable) == 0 {
		return
	}

	primary := stable[0]
	if _, logged := s.loggedIDs[primary.TrackID]; !logged {
		trackID := primary.TrackID
		_, err := s.store.RecordClassification(db.Classification{
			ClassName:   primary.Class,
			ClassNameVN: primary.DisplayName,
			Confidence:  primary.Confidence,
			BinType:     primary.Bin,
			TrackID:     &trackID,
			SessionID:   s.ID,
			Source:      "realtime",
		})
		if err != nil {
			monitoring.Logf("session %s: failed to record track %d: %v", s.ID, primary.TrackID, err)
		} else {
			s.loggedIDs[primary.TrackID] = struct{}{}
			if s.metrics != nil {
				s.metrics.Classified(string(primary.Bin))
			}
		}
	}

	// Prune entries for tracks that no longer exist so a long session
	// does not grow without bound.
	live := make(map[int]struct{})
	for _, id := range s.tracker.ActiveIDs() {
		live[id] = struct{}{}
	}
	for id := range s.loggedIDs {
		if _, ok := live[id]; !ok {
			delete(s.loggedIDs, id)
		}
	}
}

// persistClassify records a newly stable smoothed classification once
// per stability run.
func (s *Session) persistClassify(result SmootherResult) {
	if s.store == nil || result.FramesStable != 1 {
		return
	}
	_, err := s.store.RecordClassification(db.Classification{
		ClassName:   result.Class,
		ClassNameVN: result.DisplayName,
		Confidence:  result.Confidence,
		BinType:     result.Bin,
		SessionID:   s.ID,
		Source:      "classify",
	})
	if err != nil {
		monitoring.Logf("session %s: failed to record classification: %v", s.ID, err)
	} else if s.metrics != nil {
		s.metrics.Classified(string(result.Bin))
	}
}

func (s *Session) trackDelta(prevActive int) {
	if s.metrics != nil {
		s.metrics.AddActiveTracks(int64(s.tracker.ActiveTracks() - prevActive))
	}
}

// observeMotion decodes the frame and runs the gate. Undecodable frames
// count as motion so the detector still sees them.
func (s *Session) observeMotion(jpeg []byte) bool {
	img, _, err := image.Decode(bytes.NewReader(jpeg))
	if err != nil {
		return true
	}
	moved, _ := s.gate.Observe(img)
	return moved
}

// staticResponse answers a gated frame with the previous stable state.
func (s *Session) staticResponse(size ImageSize) *FrameResponse {
	data := s.lastData
	if data == nil {
		data = &FrameData{FrameCount: s.frameCount}
	} else {
		copied := *data
		copied.FrameCount = s.frameCount
		data = &copied
	}
	return &FrameResponse{
		Success:  true,
		Data:     data,
		Metadata: s.metadata(0, size, 0, true),
	}
}

func (s *Session) metadata(elapsedMS float64, size ImageSize, raw int, skipped bool) *FrameMetadata {
	avg := 0.0
	fps := 0.0
	if s.frameCount > 0 && s.totalElapsedMS > 0 {
		avg = s.totalElapsedMS / float64(s.frameCount)
		fps = 1000 / avg
	}
	return &FrameMetadata{
		ProcessingTimeMS:        elapsedMS,
		AverageProcessingTimeMS: avg,
		FPS:                     fps,
		ImageSize:               size,
		RawDetections:           raw,
		TrackedObjects:          s.tracker.ActiveTracks(),
		SkippedStatic:           skipped,
	}
}

func (s *Session) imageSize(jpeg []byte) ImageSize {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(jpeg))
	if err != nil {
		return ImageSize{Width: s.tuning.GetFrameWidth(), Height: s.tuning.GetFrameHeight()}
	}
	return ImageSize{Width: cfg.Width, Height: cfg.Height}
}

func (s *Session) fail(msg string) *FrameResponse {
	return &FrameResponse{Success: false, Error: msg, FrameCount: s.frameCount}
}
