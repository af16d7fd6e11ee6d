package detect

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// ScriptedDetector replays canned detections from a JSONL script, one
// frame's detection list per line, cycling when it reaches the end.
// Used for development and replay tuning without an inference sidecar.
type ScriptedDetector struct {
	mu     sync.Mutex
	frames [][]Detection
	next   int
}

// NewScriptedDetector parses a JSONL script. Blank lines are skipped;
// each remaining line must be a JSON array of detections.
func NewScriptedDetector(script []byte) (*ScriptedDetector, error) {
	var frames [][]Detection
	sc := bufio.NewScanner(bytes.NewReader(script))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		var dets []Detection
		if err := json.Unmarshal(line, &dets); err != nil {
			return nil, fmt.Errorf("fixtures line %d: %w", lineNo, err)
		}
		frames = append(frames, dets)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read fixtures: %w", err)
	}
	if len(frames) == 0 {
		return nil, fmt.Errorf("fixtures script has no frames")
	}
	return &ScriptedDetector{frames: frames}, nil
}

// Info describes this detector for the health endpoint.
func (d *ScriptedDetector) Info() Info {
	return Info{Kind: "scripted"}
}

// FrameCount returns the number of scripted frames.
func (d *ScriptedDetector) FrameCount() int { return len(d.frames) }

// Detect implements Detector, ignoring the image and returning the next
// scripted frame.
func (d *ScriptedDetector) Detect(ctx context.Context, _ []byte) ([]Detection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	frame := d.frames[d.next]
	d.next = (d.next + 1) % len(d.frames)
	// Copy so callers cannot mutate the script.
	out := make([]Detection, len(frame))
	copy(out, frame)
	return out, nil
}
