package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"image"
	"io"
	"math"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/greensort-data/sortstream/internal/db"
	"github.com/greensort-data/sortstream/internal/detect"
	"github.com/greensort-data/sortstream/internal/httputil"
	"github.com/greensort-data/sortstream/internal/monitoring"
	"github.com/greensort-data/sortstream/internal/security"
	"github.com/greensort-data/sortstream/internal/stream"
	"github.com/greensort-data/sortstream/internal/track"
	"github.com/greensort-data/sortstream/internal/waste"
)

// maxUploadBytes caps a classify or contribution request body.
const maxUploadBytes = 8 << 20

// classifyResult is the one-shot classification response payload.
type classifyResult struct {
	Detected         bool           `json:"detected"`
	Class            waste.Class    `json:"class_name_en,omitempty"`
	DisplayName      string         `json:"class_name,omitempty"`
	Confidence       float64        `json:"confidence,omitempty"`
	Bin              *waste.BinInfo `json:"bin,omitempty"`
	Composite        string         `json:"composite,omitempty"`
	Instruction      string         `json:"instruction,omitempty"`
	HistoryID        int64          `json:"history_id,omitempty"`
	RawDetections    int            `json:"raw_detections"`
	ProcessingTimeMS float64        `json:"processing_time_ms"`
}

func (s *Server) classify(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxUploadBytes))
	if err != nil {
		httputil.BadRequest(w, "failed to read request body")
		return
	}
	jpeg, err := stream.DecodeFramePayload(body)
	if err != nil {
		httputil.WriteFailure(w, http.StatusBadRequest, fmt.Sprintf("invalid image: %v", err))
		return
	}

	tuning := s.Tuning()
	width, height := tuning.GetFrameWidth(), tuning.GetFrameHeight()
	if cfg, _, err := image.DecodeConfig(bytes.NewReader(jpeg)); err == nil {
		width, height = cfg.Width, cfg.Height
	}

	start := s.clock.Now()
	dets, err := s.detector.Detect(r.Context(), jpeg)
	if err != nil {
		if s.metrics != nil {
			s.metrics.DetectorError()
		}
		httputil.WriteFailure(w, http.StatusBadGateway, fmt.Sprintf("detection failed: %v", err))
		return
	}
	elapsedMS := float64(s.clock.Since(start)) / float64(time.Millisecond)

	trackerCfg := tuning.TrackerConfig()
	candidates := make([]track.Candidate, 0, len(dets))
	for _, d := range dets {
		candidates = append(candidates, track.Candidate{
			Box:        track.NewBox(d.Box[0], d.Box[1], d.Box[2], d.Box[3]),
			Class:      waste.Normalize(d.Class),
			Confidence: d.Confidence,
		})
	}
	admitted := trackerCfg.Filter(candidates, nil)

	result := classifyResult{
		RawDetections:    len(dets),
		ProcessingTimeMS: elapsedMS,
	}
	if len(admitted) == 0 {
		httputil.WriteSuccess(w, result)
		return
	}

	// A multi-material item (e.g. a beverage carton) shows up as several
	// competing classes; resolve those before picking a single winner.
	scores := make([]waste.ClassScore, len(admitted))
	for i, d := range admitted {
		scores[i] = waste.ClassScore{Class: d.Class, Score: d.Confidence / 100}
	}
	if match := waste.CheckComposite(scores); match != nil {
		info := waste.InfoFor(match.Pattern.FinalBin)
		result.Detected = true
		result.Class = waste.Class(match.Pattern.DisplayEN)
		result.DisplayName = match.Pattern.DisplayVN
		result.Confidence = math.Min(match.CombinedConfidence, 1) * 100
		result.Bin = &info
		result.Composite = match.Pattern.Name
		result.Instruction = match.Pattern.Instruction
	} else {
		pool := make([]detect.Detection, len(admitted))
		for i, d := range admitted {
			pool[i] = detect.Detection{
				Box:        [4]float64{d.Box.X1, d.Box.Y1, d.Box.X2, d.Box.Y2},
				Class:      string(d.Class),
				Confidence: d.Confidence / 100,
			}
		}
		best, _ := detect.SelectBest(pool, float64(width)*float64(height))
		class := waste.Class(best.Class)
		info := waste.InfoFor(waste.BinFor(class))
		result.Detected = true
		result.Class = class
		result.DisplayName = waste.DisplayName(class)
		result.Confidence = best.Confidence * 100
		result.Bin = &info
		result.Instruction = info.Instruction
	}

	if s.db != nil {
		id, err := s.db.RecordClassification(db.Classification{
			ClassName:        result.Class,
			ClassNameVN:      result.DisplayName,
			Confidence:       result.Confidence,
			BinType:          result.Bin.Bin,
			ProcessingTimeMS: elapsedMS,
			Source:           "upload",
		})
		if err != nil {
			monitoring.Logf("classify: failed to record history: %v", err)
		} else {
			result.HistoryID = id
		}
	}
	if s.metrics != nil {
		s.metrics.Classified(string(result.Bin.Bin))
	}

	httputil.WriteSuccess(w, result)
}

type feedbackRequest struct {
	HistoryID      int64  `json:"history_id"`
	Correct        bool   `json:"correct"`
	CorrectedClass string `json:"corrected_class,omitempty"`
	Note           string `json:"note,omitempty"`
}

func (s *Server) feedback(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	var req feedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.BadRequest(w, "invalid feedback JSON")
		return
	}
	if req.HistoryID <= 0 {
		httputil.BadRequest(w, "history_id is required")
		return
	}

	corrected := waste.Normalize(req.CorrectedClass)
	if !req.Correct {
		if req.CorrectedClass == "" {
			httputil.BadRequest(w, "corrected_class is required when correct is false")
			return
		}
		if !waste.IsValid(corrected) {
			httputil.BadRequest(w, fmt.Sprintf("unknown class %q", req.CorrectedClass))
			return
		}
	}

	if err := s.db.RecordFeedback(req.HistoryID, req.Correct, corrected, req.Note); err != nil {
		if strings.Contains(err.Error(), "not found") {
			httputil.NotFound(w, err.Error())
			return
		}
		httputil.InternalServerError(w, fmt.Sprintf("failed to record feedback: %v", err))
		return
	}
	httputil.WriteSuccess(w, map[string]int64{"history_id": req.HistoryID})
}

type contributionRequest struct {
	Image string `json:"image"`
	Label string `json:"label"`
}

// contribute stores a user-labeled training image under the contrib
// directory and records it for later review.
func (s *Server) contribute(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.contribDir == "" {
		httputil.WriteFailure(w, http.StatusServiceUnavailable, "contributions are disabled")
		return
	}

	var req contributionRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxUploadBytes)).Decode(&req); err != nil {
		httputil.BadRequest(w, "invalid contribution JSON")
		return
	}
	label := waste.Normalize(req.Label)
	if !waste.IsValid(label) {
		httputil.BadRequest(w, fmt.Sprintf("unknown label %q", req.Label))
		return
	}
	jpeg, err := stream.DecodeFramePayload([]byte(req.Image))
	if err != nil {
		httputil.BadRequest(w, fmt.Sprintf("invalid image: %v", err))
		return
	}

	name := fmt.Sprintf("%s_%s.jpg", label, uuid.NewString())
	path := filepath.Join(s.contribDir, string(label), name)
	if err := security.ValidatePathWithinDirectory(path, s.contribDir); err != nil {
		httputil.BadRequest(w, fmt.Sprintf("invalid contribution path: %v", err))
		return
	}
	if err := s.fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to create contrib dir: %v", err))
		return
	}
	if err := s.fs.WriteFile(path, jpeg, 0o644); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to store image: %v", err))
		return
	}

	id, err := s.db.RecordContribution(path, label)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to record contribution: %v", err))
		return
	}
	httputil.WriteSuccess(w, map[string]interface{}{
		"contribution_id": id,
		"path":            path,
	})
}
