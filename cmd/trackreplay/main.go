// Command trackreplay replays a JSONL script of raw detections through
// the admission filter and tracker at a fixed frame interval, printing
// what a realtime client would have seen. Used for tuning thresholds
// without a camera.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/greensort-data/sortstream/internal/config"
	"github.com/greensort-data/sortstream/internal/detect"
	"github.com/greensort-data/sortstream/internal/fsutil"
	"github.com/greensort-data/sortstream/internal/security"
	"github.com/greensort-data/sortstream/internal/timeutil"
	"github.com/greensort-data/sortstream/internal/track"
	"github.com/greensort-data/sortstream/internal/trackplot"
	"github.com/greensort-data/sortstream/internal/waste"
)

var (
	fixtures   = flag.String("fixtures", "", "JSONL file of per-frame detection arrays (required)")
	configPath = flag.String("config", "", "Path to a tuning config JSON file")
	interval   = flag.Duration("interval", 100*time.Millisecond, "Synthetic frame interval")
	plotRoot   = flag.String("plots", "", "Directory for per-track PNG plots (empty disables)")
	verbose    = flag.Bool("v", false, "Print rejected candidates as well")
)

func main() {
	flag.Parse()
	if *fixtures == "" {
		flag.Usage()
		os.Exit(2)
	}

	script, err := os.ReadFile(*fixtures)
	if err != nil {
		log.Fatalf("Failed to read fixtures file: %v", err)
	}
	detector, err := detect.NewScriptedDetector(script)
	if err != nil {
		log.Fatalf("Failed to parse fixtures: %v", err)
	}

	tuning := config.EmptyTuningConfig()
	if *configPath != "" {
		tuning, err = config.LoadTuningConfig(*configPath)
		if err != nil {
			log.Fatalf("Failed to load tuning config: %v", err)
		}
	}
	trackerCfg := tuning.TrackerConfig()
	tracker, err := track.NewTracker(trackerCfg)
	if err != nil {
		log.Fatalf("Invalid tracker config: %v", err)
	}

	clock := timeutil.NewMockClock(time.Now())
	recorder := trackplot.NewRecorder(trackerCfg.FrameWidth, trackerCfg.FrameHeight)

	fmt.Printf("replaying %d frames at %v intervals\n\n", detector.FrameCount(), *interval)

	for frame := 1; frame <= detector.FrameCount(); frame++ {
		raw, err := detector.Detect(context.Background(), nil)
		if err != nil {
			log.Fatalf("Frame %d: %v", frame, err)
		}

		candidates := make([]track.Candidate, 0, len(raw))
		for _, d := range raw {
			candidates = append(candidates, track.Candidate{
				Box:        track.NewBox(d.Box[0], d.Box[1], d.Box[2], d.Box[3]),
				Class:      waste.Normalize(d.Class),
				Confidence: d.Confidence,
			})
		}
		admitted := trackerCfg.Filter(candidates, func(c track.Candidate, reason track.RejectReason) {
			if *verbose {
				fmt.Printf("  frame %3d: rejected %s %.2f (%s)\n", frame, c.Class, c.Confidence, reason)
			}
		})

		stable := tracker.Update(clock.Now(), admitted)
		recorder.Observe(frame, stable)

		fmt.Printf("frame %3d: raw=%d admitted=%d active=%d stable=%d\n",
			frame, len(raw), len(admitted), tracker.ActiveTracks(), len(stable))
		for _, s := range stable {
			fmt.Printf("  track %d %s %.1f%% frames=%d duration=%dms box=%v\n",
				s.TrackID, s.Class, s.Confidence, s.FrameCount, s.DurationMS, s.Box)
		}

		clock.Advance(*interval)
	}

	if *plotRoot != "" {
		dir := filepath.Join(*plotRoot, time.Now().Format("20060102-150405"))
		if err := security.ValidatePathWithinDirectory(dir, *plotRoot); err != nil {
			log.Fatalf("Invalid plot directory: %v", err)
		}
		paths, err := recorder.Render(fsutil.OSFileSystem{}, dir)
		if err != nil {
			log.Fatalf("Failed to render plots: %v", err)
		}
		fmt.Printf("\nwrote %d track plots to %s\n", len(paths), dir)
	}
}
