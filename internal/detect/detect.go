// Package detect defines the boundary to the external object detector:
// the Detection wire type, the Detector interface, and its HTTP and
// scripted (dev fixtures) implementations.
package detect

import (
	"context"
)

// Detection is one raw detector result. Box is [x1, y1, x2, y2] in
// pixel coordinates; Confidence is on the 0-1 scale. Class uses the
// model's label, either canonical English or the display form.
type Detection struct {
	Box        [4]float64 `json:"box"`
	Class      string     `json:"class_name"`
	Confidence float64    `json:"confidence"`
}

// Detector runs inference on one JPEG frame. Implementations must be
// safe for use from multiple sessions.
type Detector interface {
	Detect(ctx context.Context, jpeg []byte) ([]Detection, error)
}

// Info describes a detector for the health endpoint.
type Info struct {
	Kind     string `json:"kind"`
	Endpoint string `json:"endpoint,omitempty"`
}

// SelectBest picks the single most relevant detection for the one-shot
// classify flow: confidence weighted at 0.7 and relative box area at
// 0.3, so a large slightly-less-confident object beats a tiny confident
// one. frameArea is the source image area in square pixels. Returns
// false when the list is empty.
func SelectBest(dets []Detection, frameArea float64) (Detection, bool) {
	if len(dets) == 0 {
		return Detection{}, false
	}
	best := 0
	bestScore := -1.0
	for i, d := range dets {
		area := 0.0
		if frameArea > 0 {
			w := d.Box[2] - d.Box[0]
			h := d.Box[3] - d.Box[1]
			if w > 0 && h > 0 {
				area = w * h / frameArea
			}
		}
		score := d.Confidence*0.7 + area*0.3
		if score > bestScore {
			best = i
			bestScore = score
		}
	}
	return dets[best], true
}
