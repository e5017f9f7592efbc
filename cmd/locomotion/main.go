package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/locomotion.vr/internal/api"
	"github.com/banshee-data/locomotion.vr/internal/config"
	"github.com/banshee-data/locomotion.vr/internal/db"
	"github.com/banshee-data/locomotion.vr/internal/feed"
	"github.com/banshee-data/locomotion.vr/internal/geom"
	"github.com/banshee-data/locomotion.vr/internal/heading"
	"github.com/banshee-data/locomotion.vr/internal/locomotion"
	"github.com/banshee-data/locomotion.vr/internal/metrics"
	"github.com/banshee-data/locomotion.vr/internal/monitoring"
	"github.com/banshee-data/locomotion.vr/internal/recording"
	"github.com/banshee-data/locomotion.vr/internal/timeutil"
	"github.com/banshee-data/locomotion.vr/internal/version"
)

var (
	configPath  = flag.String("config", config.DefaultConfigPath, "Path to the locomotion tuning JSON")
	modeFlag    = flag.String("mode", "", "Heading mode override (raw-heading, predicted-heading, pose-hip-heading, hip-tracker)")
	feedKind    = flag.String("feed", "playback", "Input feed: playback or live")
	sessionPath = flag.String("recording", "", "Recorded session to play back (file or directory)")
	loop        = flag.Bool("loop", false, "Loop playback")
	dbPath      = flag.String("db", "", "SQLite database for hip metrics (disabled when empty)")
	notes       = flag.String("notes", "", "Free text stored with the session")
	listen      = flag.String("listen", "127.0.0.1:8080", "HTTP listen address for device websocket and debug routes")
	logLevel    = flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	recordDir   = flag.String("record", "", "Record the live session to this directory")
	metricsOut  = flag.String("metrics-out", "", "Write hip heading error samples to this text file")
	showVersion = flag.Bool("version", false, "Print the version and exit")
)

func main() {
	flag.Parse()
	if *showVersion {
		fmt.Println(version.String())
		return
	}
	monitoring.InitStderr(*logLevel)
	defer monitoring.Sync()
	log.Printf("locomotion %s", version.String())

	cfg, err := config.LoadLocomotionConfig(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if *modeFlag != "" {
		if _, err := heading.ParseMode(*modeFlag); err != nil {
			log.Fatalf("invalid -mode: %v", err)
		}
		cfg.Mode = modeFlag
	}

	controller, err := locomotion.New(cfg)
	if err != nil {
		log.Fatalf("failed to create controller: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	mux := http.NewServeMux()

	var source feed.Source
	switch *feedKind {
	case "playback":
		if *sessionPath == "" {
			log.Fatal("-recording is required for playback")
		}
		frames, err := recording.Load(*sessionPath)
		if err != nil {
			log.Fatalf("failed to load session: %v", err)
		}
		pb, err := feed.NewPlayback(frames, feed.PlaybackConfig{
			Loop:                *loop,
			HeadCorrection:      cfg.GetHeadCorrection(),
			LeftHandCorrection:  cfg.GetLeftHandCorrection(),
			RightHandCorrection: cfg.GetRightHandCorrection(),
		})
		if err != nil {
			log.Fatalf("failed to start playback: %v", err)
		}
		log.Printf("playing back %d frames from %s", pb.Len(), *sessionPath)
		source = pb
	case "live":
		server := feed.NewServer(feed.ServerConfig{Address: cfg.GetLandmarkListen()})
		if err := server.Listen(); err != nil {
			log.Fatalf("failed to start landmark server: %v", err)
		}
		log.Printf("waiting for pose estimator on %s", server.Addr())
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := server.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("landmark server stopped: %v", err)
			}
		}()

		hub := feed.NewDeviceHub(timeutil.RealClock{})
		mux.Handle("/devices", hub)
		source = &feed.Live{Landmarks: server, Devices: hub}
	default:
		log.Fatalf("unknown -feed %q", *feedKind)
	}

	var sinks []metrics.Sink
	if *metricsOut != "" {
		f, err := os.Create(*metricsOut)
		if err != nil {
			log.Fatalf("failed to create metrics file: %v", err)
		}
		sinks = append(sinks, metrics.NewTextSink(f))
	}
	var database *db.DB
	if *dbPath != "" {
		database, err = db.OpenDB(*dbPath)
		if err != nil {
			log.Fatalf("failed to open database: %v", err)
		}
		defer database.Close()

		session, err := database.CreateSession(string(controller.Mode()), *feedKind, *notes)
		if err != nil {
			log.Fatalf("failed to create session: %v", err)
		}
		log.Printf("recording hip metrics as session %s", session.ID)
		sinks = append(sinks, db.NewStore(database, session.ID))

		if err := database.AttachAdminRoutes(mux); err != nil {
			log.Printf("failed to attach admin routes: %v", err)
		}
	}
	monitor := metrics.NewMonitor(sinks...)

	var recorder *recording.Recorder
	if *recordDir != "" {
		if *feedKind != "live" {
			log.Fatal("-record only applies to the live feed")
		}
		recorder, err = recording.NewRecorder(*recordDir, *feedKind)
		if err != nil {
			log.Fatalf("failed to create recorder: %v", err)
		}
		defer func() {
			if err := recorder.Close(); err != nil {
				log.Printf("failed to close recording: %v", err)
			}
			log.Printf("recorded %d frames to %s", recorder.FrameCount(), recorder.Path())
		}()
	}

	var ticks atomic.Uint64
	status := func() api.Status {
		return api.Status{
			Mode:      string(controller.Mode()),
			Feed:      *feedKind,
			Connected: source.Connected(),
			Latency:   source.Latency(),
			Ticks:     ticks.Load(),
			Samples:   monitor.Count(),
		}
	}
	mux.Handle("/api/", api.NewServer(status, cfg, database).ServeMux())

	server := &http.Server{Addr: *listen, Handler: mux}
	wg.Add(1)
	go func() {
		defer wg.Done()
		go func() {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("HTTP server failed: %v", err)
			}
		}()
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
		}
	}()

	err = controller.Run(ctx, locomotion.RunConfig{
		Source:      source,
		FrameRateHz: cfg.GetFrameRateHz(),
		StaleAfter:  cfg.GetStaleAfter(),
		Bone:        locomotion.NewKinematicBone(r3.Vec{}, geom.Identity),
		Monitor:     monitor,
		Recorder:    recorder,
		OnTick: func(out locomotion.Output) {
			ticks.Add(1)
			if out.InputChangedQuickly {
				monitoring.Logf("input velocity changed quickly: %.2f m/s", r3.Norm(out.SmoothedVelocity))
			}
		},
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Printf("locomotion loop stopped: %v", err)
	}
	log.Printf("%d ticks, %d hip samples", ticks.Load(), monitor.Count())

	stop()
	wg.Wait()
	log.Printf("Graceful shutdown complete")
}
