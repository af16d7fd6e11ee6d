// Command sortstream runs the waste-classification backend: the HTTP
// API, the realtime websocket, and the sqlite history store.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/greensort-data/sortstream/internal/api"
	"github.com/greensort-data/sortstream/internal/config"
	"github.com/greensort-data/sortstream/internal/db"
	"github.com/greensort-data/sortstream/internal/detect"
	"github.com/greensort-data/sortstream/internal/metrics"
	"github.com/greensort-data/sortstream/internal/monitoring"
	"github.com/greensort-data/sortstream/internal/timeutil"
	"github.com/greensort-data/sortstream/internal/version"
)

var (
	listen      = flag.String("listen", ":8080", "Listen address")
	dbPath      = flag.String("db", "sortstream.db", "Path to the sqlite database file")
	configPath  = flag.String("config", "", "Path to a tuning config JSON file")
	detectorURL = flag.String("detector", "", "Detector sidecar URL (overrides the config file)")
	devMode     = flag.Bool("dev", false, "Run in dev mode with the scripted detector")
	fixtures    = flag.String("fixtures", "fixtures.jsonl", "Scripted detections for dev mode (JSONL)")
	contribDir  = flag.String("contrib-dir", "", "Directory for contributed training images (empty disables)")
	debug       = flag.Bool("debug", false, "Enable debug logging and debug chart routes")
)

func main() {
	flag.Parse()

	// The migrate subcommand manages the schema and exits.
	if flag.Arg(0) == "migrate" {
		db.RunMigrateCommand(flag.Args()[1:], *dbPath)
		return
	}

	if *listen == "" {
		log.Fatal("Listen address is required")
	}
	monitoring.SetDebug(*debug)
	monitoring.Logf("sortstream %s (%s) starting", version.Version, version.GitSHA)

	tuning := config.EmptyTuningConfig()
	if *configPath != "" {
		var err error
		tuning, err = config.LoadTuningConfig(*configPath)
		if err != nil {
			log.Fatalf("Failed to load tuning config: %v", err)
		}
		monitoring.Logf("loaded tuning config from %s", *configPath)
	}

	var detector detect.Detector
	var detectorInfo detect.Info
	if *devMode {
		script, err := os.ReadFile(*fixtures)
		if err != nil {
			log.Fatalf("Failed to read fixtures file: %v", err)
		}
		scripted, err := detect.NewScriptedDetector(script)
		if err != nil {
			log.Fatalf("Failed to parse fixtures: %v", err)
		}
		monitoring.Logf("dev mode: scripted detector with %d frames", scripted.FrameCount())
		detector = scripted
		detectorInfo = scripted.Info()
	} else {
		url := tuning.GetDetectorURL()
		if *detectorURL != "" {
			url = *detectorURL
		}
		httpDetector := detect.NewHTTPDetector(url, nil, tuning.GetDetectorTimeout())
		detector = httpDetector
		detectorInfo = httpDetector.Info()
	}

	if *contribDir != "" {
		if err := os.MkdirAll(*contribDir, 0o755); err != nil {
			log.Fatalf("Failed to create contrib dir: %v", err)
		}
	}

	database, err := db.NewDB(*dbPath)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	if err := database.MigrateUp(); err != nil {
		log.Fatalf("Failed to apply migrations: %v", err)
	}
	schemaVersion, _, _ := database.MigrateVersion()
	monitoring.Logf("database ready at %s (schema version %d)", *dbPath, schemaVersion)

	m := metrics.New()
	server := api.NewServer(api.Options{
		DB:           database,
		Detector:     detector,
		DetectorInfo: detectorInfo,
		Tuning:       tuning,
		Metrics:      m,
		ContribDir:   *contribDir,
		Debug:        *debug,
	})

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Periodic counter log so long-running installs leave a trace in the
	// journal even when nobody is watching /metrics.
	wg.Add(1)
	go func() {
		defer wg.Done()
		clock := timeutil.RealClock{}
		ticker := clock.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C():
				s := m.Snapshot()
				monitoring.Logf("stats: sessions=%d frames=%d skipped=%d detector_errors=%d stable=%d",
					s.ActiveSessions, s.FramesProcessed, s.FramesSkipped, s.DetectorErrors, s.StableDetections)
			case <-ctx.Done():
				return
			}
		}
	}()

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		mux := http.NewServeMux()

		// mount the admin debugging routes
		database.AttachAdminRoutes(mux)
		mux.Handle("/", server.ServeMux())

		httpServer := &http.Server{
			Addr:    *listen,
			Handler: api.LoggingMiddleware(mux),
		}

		// Start server in a goroutine so it doesn't block
		go func() {
			monitoring.Logf("listening on %s", *listen)
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		// Wait for context cancellation to shut down server
		<-ctx.Done()
		monitoring.Logf("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			monitoring.Logf("HTTP server shutdown error: %v", err)
		}

		monitoring.Logf("HTTP server routine stopped")
	}()

	wg.Wait()
	monitoring.Logf("Graceful shutdown complete")
}
