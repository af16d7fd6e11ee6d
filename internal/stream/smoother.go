package stream

import (
	"github.com/greensort-data/sortstream/internal/waste"
)

// minSmootherSamples is how many predictions the smoother needs before
// it can report anything stable.
const minSmootherSamples = 3

// Smoother votes over a sliding window of single-object classification
// results to stop the reported class flickering between frames. Used by
// classify-mode sessions; realtime sessions stabilize through the
// tracker instead.
type Smoother struct {
	window    int
	threshold float64 // minimum frequency of the majority class

	classes     []waste.Class
	confidences []float64

	stableClass  waste.Class
	framesStable int
}

// SmootherResult is a stable smoothed classification.
type SmootherResult struct {
	Class        waste.Class `json:"class_name_en"`
	DisplayName  string      `json:"class_name"`
	Confidence   float64     `json:"confidence"`
	Bin          waste.Bin   `json:"bin_type"`
	Frequency    float64     `json:"frequency"`
	SampleSize   int         `json:"sample_size"`
	FramesStable int         `json:"frames_stable"`
}

// NewSmoother returns a smoother with the given window size and
// stability threshold (majority frequency in [0,1]).
func NewSmoother(window int, threshold float64) *Smoother {
	if window < 1 {
		window = 1
	}
	return &Smoother{window: window, threshold: threshold}
}

// Add appends one prediction (confidence 0-100) to the window.
func (s *Smoother) Add(class waste.Class, confidence float64) {
	s.classes = append(s.classes, class)
	s.confidences = append(s.confidences, confidence)
	if len(s.classes) > s.window {
		s.classes = s.classes[1:]
		s.confidences = s.confidences[1:]
	}
}

// Stable returns the majority-vote result once it clears the stability
// threshold, or false while the window is still churning.
func (s *Smoother) Stable() (SmootherResult, bool) {
	if len(s.classes) < minSmootherSamples {
		return SmootherResult{}, false
	}

	counts := make(map[waste.Class]int, len(s.classes))
	for _, c := range s.classes {
		counts[c]++
	}
	var top waste.Class
	topCount := 0
	for _, c := range s.classes { // window order keeps ties deterministic
		if counts[c] > topCount {
			top = c
			topCount = counts[c]
		}
	}

	freq := float64(topCount) / float64(len(s.classes))
	if freq < s.threshold {
		return SmootherResult{}, false
	}

	sum := 0.0
	for i, c := range s.classes {
		if c == top {
			sum += s.confidences[i]
		}
	}

	if s.stableClass == top {
		s.framesStable++
	} else {
		s.stableClass = top
		s.framesStable = 1
	}

	return SmootherResult{
		Class:        top,
		DisplayName:  waste.DisplayName(top),
		Confidence:   sum / float64(topCount),
		Bin:          waste.BinFor(top),
		Frequency:    freq,
		SampleSize:   len(s.classes),
		FramesStable: s.framesStable,
	}, true
}

// Reset clears the window and stability state.
func (s *Smoother) Reset() {
	s.classes = nil
	s.confidences = nil
	s.stableClass = ""
	s.framesStable = 0
}
