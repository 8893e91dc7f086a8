package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"tailscale.com/tsweb"

	"github.com/banshee-data/rigcam/internal/acquisition"
	"github.com/banshee-data/rigcam/internal/capture"
	"github.com/banshee-data/rigcam/internal/config"
	"github.com/banshee-data/rigcam/internal/monitoring"
	"github.com/banshee-data/rigcam/internal/retarget"
	"github.com/banshee-data/rigcam/internal/scheduler"
	"github.com/banshee-data/rigcam/internal/sessiondb"
	"github.com/banshee-data/rigcam/internal/skeleton"
	"github.com/banshee-data/rigcam/internal/version"
)

var (
	listen       = flag.String("listen", ":8080", "Debug HTTP listen address")
	configPath   = flag.String("config", "", "Tuning config JSON (default: "+config.DefaultConfigPath+" if present, else built-in defaults)")
	skeletonPath = flag.String("skeleton", "", "Avatar skeleton descriptor JSON")
	modeFlag     = flag.String("mode", "camera", "Acquisition mode: camera or video")
	recording    = flag.String("recording", "", "Landmark recording (.jsonl) played in video mode")
	udpAddr      = flag.String("udp", "127.0.0.1:4243", "Address the tracking sidecar sends results to")
	udpRcvBuf    = flag.Int("udp-rcvbuf", 1<<20, "UDP receive buffer size in bytes")
	dbPath       = flag.String("db", "rigcam.db", "Session database path")
	retain       = flag.Duration("retain", 30*24*time.Hour, "Prune sessions older than this at startup (0 keeps all)")
	debugLogs    = flag.Bool("debug", false, "Enable diagnostic logs")
	traceLogs    = flag.Bool("trace-log", false, "Enable per-frame trace logs (very verbose)")
	tui          = flag.Bool("tui", false, "Show a live terminal monitor; logs go to -log-file")
	logFile      = flag.String("log-file", "rigcam.log", "Log file used with -tui")
	showVersion  = flag.Bool("version", false, "Print version and exit")
)

func loadConfig(path string) (*config.TuningConfig, error) {
	var (
		cfg *config.TuningConfig
		err error
	)
	if path == "" {
		cfg, err = config.LoadDefaultConfig()
	} else {
		cfg, err = config.LoadTuningConfig(path)
	}
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid tuning config: %w", err)
	}
	return cfg, nil
}

// setupLogs routes the ops, diag and trace streams. With the monitor up,
// everything goes to the log file so the terminal stays clean.
func setupLogs() (io.Closer, error) {
	var out io.Writer = os.Stdout
	var closer io.Closer
	if *tui {
		f, err := tea.LogToFile(*logFile, "rigcam")
		if err != nil {
			return nil, err
		}
		out, closer = f, f
	}
	var diag, trace io.Writer
	if *debugLogs {
		diag = out
	}
	if *traceLogs {
		trace = out
	}
	monitoring.SetLogWriters(out, diag, trace)
	return closer, nil
}

// currentPlayback holds the recording of the active video session, if any.
type currentPlayback struct {
	p atomic.Pointer[capture.Recording]
}

func (c *currentPlayback) observe(src acquisition.Source) {
	if r, ok := src.(*capture.Recording); ok {
		c.p.Store(r)
	}
}

func (c *currentPlayback) get() playback {
	if r := c.p.Load(); r != nil {
		return r
	}
	return nil
}

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}
	if *listen == "" {
		log.Fatal("Listen address is required")
	}
	mode, err := acquisition.ParseMode(*modeFlag)
	if err != nil {
		log.Fatal(err)
	}

	closer, err := setupLogs()
	if err != nil {
		log.Fatalf("failed to open log file: %v", err)
	}
	if closer != nil {
		defer closer.Close()
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("failed to load tuning config: %v", err)
	}

	trace := retarget.NewTrace(cfg.GetTraceChannel(), cfg.GetTraceCapacity())
	sched := scheduler.New(scheduler.Options{
		Retarget: retarget.Options{
			Smoothing:   cfg.GetSmoothing(),
			MirrorBlink: cfg.GetMirrorBlink(),
			Trace:       trace,
		},
		FPS: cfg.GetRenderFPS(),
	})
	if *skeletonPath != "" {
		sk, err := skeleton.Load(*skeletonPath)
		if err != nil {
			log.Fatalf("failed to load skeleton: %v", err)
		}
		if err := sched.SetSkeleton(sk); err != nil {
			log.Fatalf("failed to bind skeleton: %v", err)
		}
		log.Printf("loaded skeleton %s (%d joints)", sk.Source, len(sk.Joints()))
	} else {
		log.Print("no -skeleton given; frames are tracked but not applied")
	}

	db, err := sessiondb.Open(*dbPath)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *retain > 0 {
		n, err := db.Prune(ctx, time.Now().Add(-*retain))
		if err != nil {
			log.Printf("failed to prune sessions: %v", err)
		} else if n > 0 {
			log.Printf("pruned %d sessions older than %s", n, *retain)
		}
	}

	var playing currentPlayback
	mgr, err := acquisition.NewManager(acquisition.Config{
		Holistic:             cfg.GetHolistic(),
		PollInterval:         cfg.GetReadyPollInterval(),
		ReadyTimeoutFace:     cfg.GetReadyTimeoutFace(),
		ReadyTimeoutHolistic: cfg.GetReadyTimeoutHolistic(),
		RetryBackoff:         cfg.GetRetryBackoff(),
		MaxRetries:           cfg.GetMaxRetries(),
	}, acquisition.Deps{
		Sources: capture.Sources(capture.Options{
			UDP:           capture.UDPConfig{Address: *udpAddr, RcvBuf: *udpRcvBuf},
			RecordingPath: *recording,
		}, playing.observe),
		Estimators: capture.Estimators(),
		Sink:       sched,
		Recorder:   db,
	})
	if err != nil {
		log.Fatalf("failed to create acquisition manager: %v", err)
	}
	skel := newSkeletonSwitcher(mgr, sched, *skeletonPath)

	mux := http.NewServeMux()
	tsweb.Debugger(mux).KV("version", version.String())
	sched.AttachAdminRoutes(mux)
	mgr.AttachAdminRoutes(mux)
	skel.AttachAdminRoutes(mux)
	if err := db.AttachAdminRoutes(mux); err != nil {
		log.Fatalf("failed to attach session db routes: %v", err)
	}

	var wg sync.WaitGroup

	// render loop
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := sched.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("scheduler stopped: %v", err)
		}
		log.Print("render loop terminated")
	}()

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		server := &http.Server{
			Addr:    *listen,
			Handler: mux,
		}

		go func() {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
			if err := server.Close(); err != nil {
				log.Printf("HTTP server force close error: %v", err)
			}
		}

		log.Printf("HTTP server routine stopped")
	}()

	if err := mgr.Start(mode); err != nil {
		log.Fatalf("failed to start acquisition: %v", err)
	}
	log.Printf("acquiring from %s (holistic %v, ready timeout %v)", mode, cfg.GetHolistic(), cfg.GetReadyTimeout())

	if *tui {
		wg.Add(1)
		go func() {
			defer wg.Done()
			// quitting the monitor shuts the service down
			defer stop()
			if err := runMonitor(ctx, mgr, sched, playing.get, skel); err != nil {
				log.Printf("monitor: %v", err)
			}
		}()
	}

	<-ctx.Done()
	if err := mgr.Close(); err != nil {
		log.Printf("acquisition close: %v", err)
	}

	wg.Wait()
	log.Printf("Graceful shutdown complete")
}
