// Package trackplot renders per-track confidence and size traces to PNG
// line plots. It is an offline tuning aid for the replay tool, not part
// of the serving path.
package trackplot

import (
	"bytes"
	"fmt"
	"path/filepath"
	"sort"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"github.com/greensort-data/sortstream/internal/fsutil"
	"github.com/greensort-data/sortstream/internal/security"
	"github.com/greensort-data/sortstream/internal/track"
	"github.com/greensort-data/sortstream/internal/waste"
)

// sample is one frame observation of one track.
type sample struct {
	frame      int
	confidence float64 // 0-100
	areaPct    float64 // box area as % of the reference frame
}

// Recorder accumulates per-track samples across a replay run.
type Recorder struct {
	frameArea float64
	samples   map[int][]sample
	classes   map[int]waste.Class // last reported class per track
}

// NewRecorder sizes area normalization to the reference frame.
func NewRecorder(frameWidth, frameHeight int) *Recorder {
	return &Recorder{
		frameArea: float64(frameWidth) * float64(frameHeight),
		samples:   make(map[int][]sample),
		classes:   make(map[int]waste.Class),
	}
}

// Observe records the stable detections of one frame.
func (r *Recorder) Observe(frame int, dets []track.StableDetection) {
	for _, d := range dets {
		w := float64(d.Box[2] - d.Box[0])
		h := float64(d.Box[3] - d.Box[1])
		areaPct := 0.0
		if r.frameArea > 0 && w > 0 && h > 0 {
			areaPct = w * h / r.frameArea * 100
		}
		r.samples[d.TrackID] = append(r.samples[d.TrackID], sample{
			frame:      frame,
			confidence: d.Confidence,
			areaPct:    areaPct,
		})
		r.classes[d.TrackID] = d.Class
	}
}

// TrackIDs returns the observed track IDs in ascending order.
func (r *Recorder) TrackIDs() []int {
	ids := make([]int, 0, len(r.samples))
	for id := range r.samples {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// Render writes one PNG per observed track into dir and returns the
// written paths.
func (r *Recorder) Render(fs fsutil.FileSystem, dir string) ([]string, error) {
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create plot dir: %w", err)
	}

	var paths []string
	for _, id := range r.TrackIDs() {
		// Class labels come straight from the model and may contain
		// anything; keep them filename-safe.
		name := fmt.Sprintf("track_%03d_%s.png", id, security.SanitizeFilename(string(r.classes[id])))
		path := filepath.Join(dir, name)
		if err := r.renderTrack(fs, path, id); err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func (r *Recorder) renderTrack(fs fsutil.FileSystem, path string, id int) error {
	samples := r.samples[id]

	p := plot.New()
	p.Title.Text = fmt.Sprintf("track %d (%s)", id, r.classes[id])
	p.X.Label.Text = "frame"
	p.Y.Label.Text = "%"
	p.Y.Min, p.Y.Max = 0, 100

	conf := make(plotter.XYs, len(samples))
	area := make(plotter.XYs, len(samples))
	for i, s := range samples {
		conf[i] = plotter.XY{X: float64(s.frame), Y: s.confidence}
		area[i] = plotter.XY{X: float64(s.frame), Y: s.areaPct}
	}
	if err := plotutil.AddLines(p, "confidence", conf, "area %", area); err != nil {
		return fmt.Errorf("failed to add series for track %d: %w", id, err)
	}

	wt, err := p.WriterTo(6*vg.Inch, 4*vg.Inch, "png")
	if err != nil {
		return fmt.Errorf("failed to render track %d: %w", id, err)
	}
	var buf bytes.Buffer
	if _, err := wt.WriteTo(&buf); err != nil {
		return fmt.Errorf("failed to encode track %d: %w", id, err)
	}
	return fs.WriteFile(path, buf.Bytes(), 0o644)
}
