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
	"syscall"
	"time"

	"github.com/banshee-data/cone.pilot/internal/api"
	"github.com/banshee-data/cone.pilot/internal/config"
	"github.com/banshee-data/cone.pilot/internal/db"
	"github.com/banshee-data/cone.pilot/internal/imu"
	"github.com/banshee-data/cone.pilot/internal/navigation"
	"github.com/banshee-data/cone.pilot/internal/pipeline"
	"github.com/banshee-data/cone.pilot/internal/replay"
	"github.com/banshee-data/cone.pilot/internal/serialmux"
	"github.com/banshee-data/cone.pilot/internal/version"
)

// mockStatusLine is what the simulated robot controller reports in dev mode.
const mockStatusLine = `{"battery_v":7.4,"mode":"dev"}` + "\n"

type options struct {
	configPath  string
	port        string
	listen      string
	dbPath      string
	devMode     bool
	fixtures    string
	loop        bool
	disableLink bool
	note        string
}

func parseFlags(args []string) (options, error) {
	var o options
	fs := flag.NewFlagSet("conepilot", flag.ContinueOnError)
	fs.StringVar(&o.configPath, "config", config.GetEnv("CONFIG", ""), "Path to tuning config JSON (defaults to config/tuning.defaults.json)")
	fs.StringVar(&o.port, "port", config.GetEnv("PORT", ""), "Serial device of the drive link (overrides link_device; ignored in dev mode)")
	fs.StringVar(&o.listen, "listen", config.GetEnv("LISTEN", ":8080"), "HTTP listen address")
	fs.StringVar(&o.dbPath, "db", config.GetEnv("DB", "conepilot.db"), "Telemetry database path")
	fs.BoolVar(&o.devMode, "dev", config.GetEnvAsBool("DEV", false), "Use a simulated drive link")
	fs.StringVar(&o.fixtures, "fixtures", config.GetEnv("FIXTURES", ""), "Replay detector output from a JSONL file instead of waiting for POST /api/frames")
	fs.BoolVar(&o.loop, "loop", config.GetEnvAsBool("LOOP", false), "Restart the replay at the end of the fixtures")
	fs.BoolVar(&o.disableLink, "disable-link", config.GetEnvAsBool("DISABLE_LINK", false), "Run without a drive link; commands are dropped")
	fs.StringVar(&o.note, "note", config.GetEnv("NOTE", ""), "Free-form note stored with the telemetry run")
	versionFlag := fs.Bool("version", false, "Print version and exit")
	if err := fs.Parse(args); err != nil {
		return o, err
	}
	if *versionFlag {
		fmt.Printf("conepilot %s (%s, built %s)\n", version.Version, version.GitSHA, version.BuildTime)
		os.Exit(0)
	}
	if o.listen == "" {
		return o, errors.New("listen address is required")
	}
	return o, nil
}

func main() {
	if err := config.LoadEnvFile(".env"); err != nil {
		log.Fatalf("failed to load .env: %v", err)
	}

	if len(os.Args) > 1 && os.Args[1] == "migrate" {
		dbPath := config.GetEnv("DB", "conepilot.db")
		if err := db.RunMigrateCommand(os.Args[2:], dbPath, os.Stdout); err != nil {
			log.Fatalf("migrate: %v", err)
		}
		return
	}

	opts, err := parseFlags(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		log.Fatal(err)
	}

	cfg := config.MustLoadDefaultConfig()
	if opts.configPath != "" {
		cfg, err = config.LoadTuningConfig(opts.configPath)
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}
	}

	link, err := openLink(opts, cfg)
	if err != nil {
		log.Fatalf("failed to create drive link: %v", err)
	}
	defer link.Close()

	var telemetry *db.DB
	var runID string
	if cfg.GetTelemetryEnabled() {
		telemetry, err = db.NewDB(opts.dbPath)
		if err != nil {
			log.Fatalf("failed to open telemetry database: %v", err)
		}
		defer telemetry.Close()
		run, err := telemetry.StartRun(opts.note)
		if err != nil {
			log.Fatalf("failed to start run: %v", err)
		}
		runID = run.ID
		log.Printf("telemetry run %s -> %s", runID, opts.dbPath)
	}

	gyro := &imu.Gyro{}
	lines := serialmux.NewLineHandler(gyro)
	commands := serialmux.NewCommandChannel(link)
	controller := pipeline.NewController(pipeline.ControllerConfig{
		FOVRad:      cfg.GetCameraFOVRad(),
		GatePx:      cfg.GetAssociationGatePx(),
		DeadZoneRad: cfg.GetDeadZoneRad(),
		Gains: &navigation.DriveGains{
			Kp:               cfg.GetKpAngular(),
			SearchSteering:   cfg.GetSearchSteering(),
			SearchThrottle:   cfg.GetSearchThrottle(),
			AlignThrottle:    cfg.GetAlignThrottle(),
			ApproachThrottle: cfg.GetApproachThrottle(),
		},
		Commands: commands,
	})
	slot := pipeline.NewLatestFrame()
	worker := &pipeline.Worker{
		Slot:       slot,
		Detector:   pipeline.TensorDetector{MinScore: float32(cfg.GetMinDetectionScore())},
		Gyro:       gyro,
		Controller: controller,
	}

	server := api.NewServer(api.Config{
		DB:          telemetry,
		RunID:       runID,
		Link:        link,
		Lines:       lines,
		Commands:    commands,
		Slot:        slot,
		Gyro:        gyro,
		WorkerStats: worker.Stats,
	})
	worker.Sinks = append(worker.Sinks, server)

	var recorder *db.Recorder
	if telemetry != nil {
		recorder = db.NewRecorder(telemetry, runID)
		worker.Sinks = append(worker.Sinks, recorder)
	}

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// connect once, then pump lines until shutdown; the worker only ever
	// sees the connected flag
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := connectLink(ctx, link); err != nil {
			log.Printf("drive link handshake failed, commands will be dropped: %v", err)
			return
		}
		if !link.IsConnected() {
			return
		}
		log.Printf("drive link connected: %v", link)
		if err := link.Monitor(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("failed to monitor drive link: %v", err)
		}
		log.Print("monitor routine terminated")
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		lines.Run(ctx, link)
		log.Print("line handler terminated")
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		server.Run(ctx)
	}()

	if recorder != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			recorder.Run(ctx)
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := worker.Run(ctx); err != nil {
			log.Printf("frame worker stopped: %v", err)
			stop()
		}
		st := worker.Stats()
		log.Printf("frame worker terminated: %d processed, %d dropped upstream", st.Processed, st.Dropped)
	}()

	if opts.fixtures != "" {
		records, err := replay.LoadFile(opts.fixtures)
		if err != nil {
			log.Fatalf("failed to load fixtures: %v", err)
		}
		src := &replay.Source{
			Records:  records,
			Interval: cfg.GetReplayFrameInterval(),
			Loop:     opts.loop,
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := src.Run(ctx, gyro, slot); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("replay stopped: %v", err)
				return
			}
			log.Printf("replay of %d frames finished", len(records))
		}()
	}

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		mux := server.ServeMux()
		link.AttachAdminRoutes(mux)
		if telemetry != nil {
			if err := telemetry.AttachAdminRoutes(mux); err != nil {
				log.Printf("failed to attach db admin routes: %v", err)
			}
		}

		httpServer := &http.Server{
			Addr:    opts.listen,
			Handler: api.LoggingMiddleware(mux),
		}

		go func() {
			log.Printf("listening on %s", opts.listen)
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
		}
		log.Printf("HTTP server routine stopped")
	}()

	wg.Wait()
	log.Printf("graceful shutdown complete")
}

// connectLink runs the one-shot handshake. A disabled link is not an error.
func connectLink(ctx context.Context, link serialmux.SerialMuxInterface) error {
	err := link.Connect(ctx)
	if errors.Is(err, serialmux.ErrNotConnected) {
		log.Print("drive link disabled, commands will be dropped")
		return nil
	}
	return err
}

// openLink picks the drive link implementation for the run mode.
func openLink(opts options, cfg *config.TuningConfig) (serialmux.SerialMuxInterface, error) {
	switch {
	case opts.disableLink:
		return serialmux.NewDisabledSerialMux(), nil
	case opts.devMode:
		return serialmux.NewMockSerialMux([]byte(mockStatusLine), time.Second), nil
	}
	device := opts.port
	if device == "" {
		device = cfg.GetLinkDevice()
	}
	return serialmux.NewRealSerialMux(device, serialmux.PortOptions{
		BaudRate: cfg.GetLinkBaudRate(),
		DataBits: cfg.GetLinkDataBits(),
		StopBits: cfg.GetLinkStopBits(),
		Parity:   cfg.GetLinkParity(),
	})
}
