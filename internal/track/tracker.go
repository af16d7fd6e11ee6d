// Package track implements temporal stabilization of per-frame object
// detections: IoU-based greedy matching of candidates onto tracks,
// confidence-weighted box smoothing, class-consistency voting, and a
// stability gate that only reports objects persisting across frames.
package track

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/greensort-data/sortstream/internal/waste"
)

// Config holds the tuning parameters for one tracker instance. It is
// validated once at construction and never mutated mid-session.
type Config struct {
	SmoothingAlpha float64       // EMA base factor (0-1], higher = more responsive
	MinConfidence  float64       // Minimum confidence (0-1) for new tracks
	MinFrames      int           // Consecutive frames before a track is reported
	MinDuration    time.Duration // Minimum track age before it is reported
	IoUThreshold   float64       // IoU floor for candidate-to-track matching
	Staleness      time.Duration // Unseen-for window after which a track is evicted

	FrameWidth  int // Reference frame width for area ratios
	FrameHeight int // Reference frame height for area ratios

	// SensitiveClasses get their new-track threshold lowered to
	// SensitiveConfidence (classes the model under-detects).
	SensitiveClasses    map[waste.Class]bool
	SensitiveConfidence float64

	// Anti-snap guard: a matched candidate whose area exceeds
	// AreaGrowthLimit times the track's area is rerouted to the
	// unmatched pool, unless the track's class is in ExpandableClasses
	// and the candidate confidence (0-100) reaches GrowthOverrideConf.
	AreaGrowthLimit   float64
	GrowthOverrideConf float64
	ExpandableClasses map[waste.Class]bool

	// Admission filter tables (0-1 confidence scale).
	ConfidenceFloors map[waste.Class]float64
	SizeConstraints  map[waste.Class]SizeConstraint
}

// DefaultConfig returns the production tracker configuration.
func DefaultConfig() Config {
	return Config{
		SmoothingAlpha: 0.6,
		MinConfidence:  0.35,
		MinFrames:      3,
		MinDuration:    500 * time.Millisecond,
		IoUThreshold:   0.3,
		Staleness:      500 * time.Millisecond,
		FrameWidth:     640,
		FrameHeight:    480,
		SensitiveClasses: map[waste.Class]bool{
			waste.Biological: true,
			waste.Paper:      true,
		},
		SensitiveConfidence: 0.20,
		AreaGrowthLimit:     2.5,
		GrowthOverrideConf:  80,
		ExpandableClasses: map[waste.Class]bool{
			waste.Cardboard: true,
		},
		ConfidenceFloors: DefaultConfidenceFloors(),
		SizeConstraints:  DefaultSizeConstraints(),
	}
}

// Validate checks the configuration ranges. Invalid configuration is a
// construction-time error, never a mid-session failure.
func (c Config) Validate() error {
	if c.SmoothingAlpha <= 0 || c.SmoothingAlpha > 1 {
		return fmt.Errorf("smoothing alpha %v outside (0,1]", c.SmoothingAlpha)
	}
	if c.MinConfidence < 0 || c.MinConfidence > 1 {
		return fmt.Errorf("min confidence %v outside [0,1]", c.MinConfidence)
	}
	if c.IoUThreshold < 0 || c.IoUThreshold > 1 {
		return fmt.Errorf("iou threshold %v outside [0,1]", c.IoUThreshold)
	}
	if c.SensitiveConfidence < 0 || c.SensitiveConfidence > 1 {
		return fmt.Errorf("sensitive confidence %v outside [0,1]", c.SensitiveConfidence)
	}
	if c.MinFrames < 1 {
		return fmt.Errorf("min frames %d below 1", c.MinFrames)
	}
	if c.MinDuration < 0 {
		return fmt.Errorf("negative min duration %v", c.MinDuration)
	}
	if c.Staleness <= 0 {
		return fmt.Errorf("staleness window %v not positive", c.Staleness)
	}
	if c.FrameWidth <= 0 || c.FrameHeight <= 0 {
		return fmt.Errorf("reference frame %dx%d not positive", c.FrameWidth, c.FrameHeight)
	}
	if c.AreaGrowthLimit <= 1 {
		return fmt.Errorf("area growth limit %v must exceed 1", c.AreaGrowthLimit)
	}
	return nil
}

// effectiveMinConfidence returns the per-class new-track confidence
// threshold on the 0-1 scale.
func (c Config) effectiveMinConfidence(class waste.Class) float64 {
	if c.SensitiveClasses[class] {
		return math.Min(c.MinConfidence, c.SensitiveConfidence)
	}
	return c.MinConfidence
}

// Track is the tracker-owned mutable state for one object.
type Track struct {
	ID           int
	Box          Box
	Confidence   float64 // 0-100, last matched candidate's
	Class        waste.Class
	ClassHistory []waste.Class
	FrameCount   int
	FirstSeen    time.Time
	LastSeen     time.Time
}

// classHistoryWindow bounds the class-consistency vote.
const classHistoryWindow = 3

// StableDetection is the read-only projection of a track that has
// cleared the stability gate.
type StableDetection struct {
	Box         [4]int      `json:"box"`
	Confidence  float64     `json:"confidence"`
	Class       waste.Class `json:"class_name_en"`
	DisplayName string      `json:"class_name"`
	Bin         waste.Bin   `json:"bin_type"`
	TrackID     int         `json:"detection_id"`
	FrameCount  int         `json:"frame_count"`
	DurationMS  int64       `json:"duration_ms"`
}

// Tracker stabilizes detections for a single session. It is
// single-threaded by contract: one tracker per connection, all calls
// from the session's read loop. No locks, no I/O, no randomness.
type Tracker struct {
	cfg    Config
	tracks map[int]*Track
	nextID int
}

// NewTracker validates cfg and returns a ready tracker.
func NewTracker(cfg Config) (*Tracker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid tracker config: %w", err)
	}
	return &Tracker{
		cfg:    cfg,
		tracks: make(map[int]*Track),
	}, nil
}

// Config returns the tracker's immutable configuration.
func (t *Tracker) Config() Config { return t.cfg }

// ActiveTracks returns the number of live tracks, stable or not.
func (t *Tracker) ActiveTracks() int { return len(t.tracks) }

// ActiveIDs returns the live track IDs in ascending order.
func (t *Tracker) ActiveIDs() []int {
	ids := make([]int, 0, len(t.tracks))
	for id := range t.tracks {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// Reset drops all tracks. The ID counter is not rewound, so IDs stay
// unique for the life of the tracker.
func (t *Tracker) Reset() {
	t.tracks = make(map[int]*Track)
}

// Update advances the tracker by one frame. Candidates must already have
// passed admission (confidence on the 0-100 scale). Calls must be
// strictly in frame order with non-decreasing now. An empty or nil
// candidate list ages and evicts only. The returned slice holds the
// tracks that currently clear the stability gate, sorted by descending
// confidence (ties keep ascending track ID order).
func (t *Tracker) Update(now time.Time, candidates []Detection) []StableDetection {
	// Matching considers only the tracks that exist at frame start,
	// scanned in ascending ID order so ties resolve deterministically.
	ids := t.ActiveIDs()

	var unmatched []Detection
	for _, cand := range candidates {
		effectiveMin := t.cfg.effectiveMinConfidence(cand.Class)

		bestIoU := 0.0
		bestID := -1
		for _, id := range ids {
			iou := cand.Box.IoU(t.tracks[id].Box)
			if iou > bestIoU && iou >= t.cfg.IoUThreshold {
				bestIoU = iou
				bestID = id
			}
		}

		if bestID < 0 {
			unmatched = append(unmatched, cand)
			continue
		}

		tr := t.tracks[bestID]

		// Hysteresis: a tracked object survives on a lowered bar.
		if cand.Confidence < effectiveMin*0.8*100 {
			continue
		}

		// Anti-snap: a sudden large box usually means the detector
		// latched onto background, not real growth.
		if prevArea := tr.Box.Area(); prevArea > 0 {
			if cand.Box.Area()/prevArea > t.cfg.AreaGrowthLimit {
				if !t.cfg.ExpandableClasses[tr.Class] || cand.Confidence < t.cfg.GrowthOverrideConf {
					unmatched = append(unmatched, cand)
					continue
				}
			}
		}

		t.smooth(tr, cand)
		t.voteClass(tr, cand.Class)

		tr.Confidence = cand.Confidence
		tr.FrameCount++
		tr.LastSeen = now
	}

	// New tracks need the full per-class threshold, including candidates
	// rerouted here by the anti-snap guard.
	for _, cand := range unmatched {
		if cand.Confidence < t.cfg.effectiveMinConfidence(cand.Class)*100 {
			continue
		}
		id := t.nextID
		t.nextID++
		t.tracks[id] = &Track{
			ID:           id,
			Box:          cand.Box.Truncate(),
			Confidence:   cand.Confidence,
			Class:        cand.Class,
			ClassHistory: []waste.Class{cand.Class},
			FrameCount:   1,
			FirstSeen:    now,
			LastSeen:     now,
		}
	}

	// Evict stale tracks. Exactly at the window survives.
	for id, tr := range t.tracks {
		if now.Sub(tr.LastSeen) > t.cfg.Staleness {
			delete(t.tracks, id)
		}
	}

	return t.stable(now)
}

// smooth blends the candidate box into the track with a
// confidence-weighted EMA, truncating per coordinate.
func (t *Tracker) smooth(tr *Track, cand Detection) {
	trust := math.Min(1.0, cand.Confidence/100)
	alpha := t.cfg.SmoothingAlpha * (0.5 + 0.5*trust)
	blend := func(curr, prev float64) float64 {
		return math.Trunc(alpha*curr + (1-alpha)*prev)
	}
	tr.Box = Box{
		X1: blend(cand.Box.X1, tr.Box.X1),
		Y1: blend(cand.Box.Y1, tr.Box.Y1),
		X2: blend(cand.Box.X2, tr.Box.X2),
		Y2: blend(cand.Box.Y2, tr.Box.Y2),
	}
}

// voteClass appends the candidate label to the bounded history and
// adopts the majority label only when it dominates the window. With a
// window of three at most one label can reach two votes, so the
// majority is unambiguous.
func (t *Tracker) voteClass(tr *Track, class waste.Class) {
	tr.ClassHistory = append(tr.ClassHistory, class)
	if len(tr.ClassHistory) > classHistoryWindow {
		tr.ClassHistory = tr.ClassHistory[1:]
	}
	counts := make(map[waste.Class]int, len(tr.ClassHistory))
	for _, c := range tr.ClassHistory {
		counts[c]++
	}
	for c, n := range counts {
		if n >= 2 {
			tr.Class = c
			break
		}
	}
}

// stable collects the tracks that clear the stability gate, applying
// the class- and size-adaptive bars, and orders the result by
// descending confidence.
func (t *Tracker) stable(now time.Time) []StableDetection {
	frameArea := float64(t.cfg.FrameWidth) * float64(t.cfg.FrameHeight)

	var out []StableDetection
	for _, id := range t.ActiveIDs() {
		tr := t.tracks[id]
		duration := now.Sub(tr.FirstSeen)

		minFrames := t.cfg.MinFrames
		minDuration := t.cfg.MinDuration
		if t.cfg.SensitiveClasses[tr.Class] {
			// Large organic/paper items settle fast; small ones flicker
			// and need a longer look.
			if tr.Box.Area()/frameArea > 0.10 {
				minFrames, minDuration = 2, 300*time.Millisecond
			} else {
				minFrames, minDuration = 4, 700*time.Millisecond
			}
		}

		if tr.FrameCount < minFrames || duration < minDuration {
			continue
		}
		out = append(out, StableDetection{
			Box:         tr.Box.Coords(),
			Confidence:  tr.Confidence,
			Class:       tr.Class,
			DisplayName: waste.DisplayName(tr.Class),
			Bin:         waste.BinFor(tr.Class),
			TrackID:     tr.ID,
			FrameCount:  tr.FrameCount,
			DurationMS:  int64(math.Round(float64(duration) / float64(time.Millisecond))),
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Confidence > out[j].Confidence
	})
	return out
}
