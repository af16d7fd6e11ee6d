package track

import (
	"math"
	"sort"

	"github.com/greensort-data/sortstream/internal/waste"
)

// Candidate is raw detector output on the 0–1 confidence scale, before
// the admission filter has run.
type Candidate struct {
	Box        Box
	Class      waste.Class
	Confidence float64 // 0–1
}

// Detection is an admitted tracker candidate on the 0–100 confidence
// scale, rounded to one decimal.
type Detection struct {
	Box        Box
	Class      waste.Class
	Confidence float64 // 0–100
}

// SizeConstraint bounds the geometry a class may plausibly occupy in the
// frame. A zero MaxAreaRatio means no ceiling; a zero aspect band means
// no band.
type SizeConstraint struct {
	MaxAreaRatio float64
	MinAspect    float64
	MaxAspect    float64
}

// RejectReason names the admission rule that dropped a candidate.
type RejectReason string

const (
	RejectNone           RejectReason = ""
	RejectDegenerateBox  RejectReason = "degenerate_box"
	RejectLowConfidence  RejectReason = "low_confidence"
	RejectAreaNoiseFloor RejectReason = "area_noise_floor"
	RejectAreaCeiling    RejectReason = "area_ceiling"
	RejectAspectBand     RejectReason = "aspect_band"
)

// Confidence overrides that let a very confident detection bypass the
// geometric sanity rules.
const (
	areaCeilingOverrideConf = 0.85
	aspectBandOverrideConf  = 0.80
)

// DefaultConfidenceFloors returns the per-class admission confidence
// floors (0–1 scale). Classes absent from the map use BaselineAdmission.
func DefaultConfidenceFloors() map[waste.Class]float64 {
	return map[waste.Class]float64{
		waste.Biological: 0.23,
		waste.Paper:      0.23,
		waste.Cardboard:  0.24,
		waste.Battery:    0.28,
	}
}

// BaselineAdmission is the admission confidence floor for classes with
// no specific entry.
const BaselineAdmission = 0.25

// DefaultSizeConstraints returns the per-class geometry table. Area
// ratios are relative to the reference frame.
func DefaultSizeConstraints() map[waste.Class]SizeConstraint {
	return map[waste.Class]SizeConstraint{
		waste.Battery:    {MaxAreaRatio: 0.15, MinAspect: 0.3, MaxAspect: 3.0},
		waste.Metal:      {MaxAreaRatio: 0.45, MinAspect: 0.2, MaxAspect: 4.0},
		waste.Biological: {MaxAreaRatio: 0.50},
		waste.Paper:      {MaxAreaRatio: 0.70},
		waste.Cardboard:  {MaxAreaRatio: 0.65, MinAspect: 0.4, MaxAspect: 2.5},
		waste.Plastic:    {MaxAreaRatio: 0.50, MinAspect: 0.2, MaxAspect: 3.0},
		waste.Glass:      {MaxAreaRatio: 0.45, MinAspect: 0.2, MaxAspect: 3.0},
		waste.Textile:    {MaxAreaRatio: 0.60},
		waste.Trash:      {MaxAreaRatio: 0.45},
	}
}

// noiseFloorRatio returns the minimum area ratio below which a candidate
// is treated as detector noise. Flat, thin materials are allowed a higher
// floor because small fragments of them are almost always misfires.
func noiseFloorRatio(class waste.Class) float64 {
	switch class {
	case waste.Paper, waste.Cardboard, waste.Textile:
		return 0.02
	default:
		return 0.01
	}
}

// admissionFloor returns the confidence floor (0–1) for a class.
func admissionFloor(floors map[waste.Class]float64, class waste.Class) float64 {
	if f, ok := floors[class]; ok {
		return f
	}
	return BaselineAdmission
}

// Admit applies the admission rules to one candidate and returns the
// first rule it fails, or RejectNone when it passes. frameArea is the
// reference frame area in square pixels.
func (c Config) Admit(cand Candidate, frameArea float64) RejectReason {
	if !cand.Box.Valid() {
		return RejectDegenerateBox
	}
	if cand.Confidence < admissionFloor(c.ConfidenceFloors, cand.Class) {
		return RejectLowConfidence
	}

	ratio := 0.0
	if frameArea > 0 {
		ratio = cand.Box.Area() / frameArea
	}
	if ratio < noiseFloorRatio(cand.Class) {
		return RejectAreaNoiseFloor
	}

	sc, ok := c.SizeConstraints[cand.Class]
	if !ok {
		return RejectNone
	}
	if sc.MaxAreaRatio > 0 && ratio > sc.MaxAreaRatio && cand.Confidence < areaCeilingOverrideConf {
		return RejectAreaCeiling
	}
	if sc.MaxAspect > 0 && cand.Confidence < aspectBandOverrideConf {
		ar := cand.Box.AspectRatio()
		if ar < sc.MinAspect || ar > sc.MaxAspect {
			return RejectAspectBand
		}
	}
	return RejectNone
}

// Filter runs admission over raw detector output and converts the
// survivors to tracker detections: confidence scaled to 0–100 and
// rounded to one decimal, sorted by descending confidence. The optional
// onReject callback receives every dropped candidate with its reason.
func (c Config) Filter(raw []Candidate, onReject func(Candidate, RejectReason)) []Detection {
	frameArea := float64(c.FrameWidth) * float64(c.FrameHeight)
	out := make([]Detection, 0, len(raw))
	for _, cand := range raw {
		if reason := c.Admit(cand, frameArea); reason != RejectNone {
			if onReject != nil {
				onReject(cand, reason)
			}
			continue
		}
		out = append(out, Detection{
			Box:        cand.Box,
			Class:      cand.Class,
			Confidence: math.Round(cand.Confidence*1000) / 10,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Confidence > out[j].Confidence
	})
	return out
}
