package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"tailscale.com/tsnet"

	"github.com/claude/formreps/internal/analysis"
	"github.com/claude/formreps/internal/camera/cv"
	"github.com/claude/formreps/internal/config"
	"github.com/claude/formreps/internal/events"
	"github.com/claude/formreps/internal/export"
	formmcp "github.com/claude/formreps/internal/mcp"
	"github.com/claude/formreps/internal/pose"
	"github.com/claude/formreps/internal/server"
	"github.com/claude/formreps/internal/session"
	"github.com/claude/formreps/internal/storage"
)

// Version is set at build time via -ldflags.
var Version = "dev"

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	migrateOnly := flag.Bool("migrate-only", false, "run migrations and exit")
	logLevel := flag.String("log-level", "info", "log level (debug, info, warn, error)")
	flag.Parse()

	var level slog.Level
	if err := level.UnmarshalText([]byte(*logLevel)); err != nil {
		fmt.Fprintf(os.Stderr, "invalid -log-level %q: %v\n", *logLevel, err)
		os.Exit(2)
	}
	log := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	log.Info("FormReps starting", "version", Version)

	// Load config
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Connect database and run migrations
	ctx := context.Background()
	db, err := storage.Open(ctx, cfg.Database.Driver, cfg.Database.Source(), log)
	if err != nil {
		log.Error("failed to open database", "driver", cfg.Database.Driver, "error", err)
		os.Exit(1)
	}
	defer db.Close()
	if err := db.Migrate(); err != nil {
		log.Error("migration failed", "error", err)
		os.Exit(1)
	}
	log.Info("migrations applied", "driver", db.Driver())

	if *migrateOnly {
		log.Info("migrate-only: exiting")
		return
	}

	// Pose worker
	worker, err := pose.NewWorker(pose.WorkerConfig{
		Command: cfg.Pose.Command,
		Args:    cfg.Pose.Args,
		Timeout: cfg.Pose.Timeout,
	}, log)
	if err != nil {
		log.Error("invalid pose worker config", "error", err)
		os.Exit(1)
	}
	workerCtx, stopWorker := context.WithCancel(ctx)
	defer stopWorker()
	if err := worker.Start(workerCtx); err != nil {
		log.Error("pose worker start failed", "error", err)
		os.Exit(1)
	}
	defer worker.Close()

	// Camera backend
	opener := cv.NewOpener(cv.Options{
		Mirror: cfg.Camera.Mirror,
		Width:  cfg.Camera.Width,
		Height: cfg.Camera.Height,
	}, log)
	fallback, err := cv.ErrorFrame("ERROR: Camara no disponible")
	if err != nil {
		log.Warn("could not render fallback frame", "error", err)
	}

	// Observers: session history always, MQTT when a broker is configured
	observers := []session.Observer{storage.NewRecorder(db, log)}
	debugVars := map[string]func() any{
		"Pose worker": func() any { return worker.Stats() },
	}
	if cfg.MQTT.Broker != "" {
		pub, err := events.DialMQTT(events.MQTTConfig{
			Broker:   cfg.MQTT.Broker,
			ClientID: cfg.MQTT.ClientID,
		}, log)
		if err != nil {
			log.Warn("mqtt unavailable, events disabled", "broker", cfg.MQTT.Broker, "error", err)
		} else {
			defer pub.Close()
			emitter := events.NewEmitter(pub, cfg.MQTT.TopicPrefix, log)
			observers = append(observers, emitter)
			debugVars["MQTT events"] = func() any { return emitter.Stats() }
		}
	}

	exports := export.NewCSVRecorder(cfg.Export.Dir)
	mgr := session.NewManager(session.Options{
		Config: session.Config{
			Tick:       cfg.Session.Tick,
			DrainDelay: cfg.Session.DrainDelay,
		},
		Opener:    opener,
		Extractor: pose.WithMinVisibility(worker, cfg.Pose.MinVisibility),
		Recorder:  exports,
		Observers: observers,
	}, log)
	debugVars["Frame slot"] = func() any { f, _ := mgr.Surface().Stats(); return f }
	debugVars["Metrics slot"] = func() any { _, m := mgr.Surface().Stats(); return m }

	mcpSrv := formmcp.New(&formmcp.Local{Sessions: mgr, Store: db}, Version, log)

	// Create server
	srv := server.New(server.Options{
		Sessions:       mgr,
		Store:          db,
		Analyzer:       analysis.NewRunner(log),
		Exports:        exports,
		ModelDir:       cfg.Analysis.ModelDir,
		Seed:           cfg.Analysis.Seed,
		TestRatio:      cfg.Analysis.TestRatio,
		CameraID:       cfg.Camera.Device,
		Fallback:       fallback,
		StreamWait:     cfg.Session.StreamWait,
		StreamPoll:     cfg.Session.StreamPoll,
		StreamInterval: cfg.Session.StreamInterval,
		APIKey:         cfg.Server.APIKey,
		MCP:            mcpserver.NewStreamableHTTPServer(mcpSrv),
		DebugVars:      debugVars,
	}, log)

	// Start server: tsnet or plain HTTP
	var listener net.Listener
	if cfg.Tailscale.Enabled {
		tsServer := &tsnet.Server{
			Hostname: cfg.Tailscale.Hostname,
			Dir:      cfg.Tailscale.StateDir,
		}
		if err := tsServer.Start(); err != nil {
			log.Error("tsnet start failed", "error", err)
			os.Exit(1)
		}
		defer tsServer.Close()

		listener, err = tsServer.Listen("tcp", ":80")
		if err != nil {
			log.Error("tsnet listen failed", "error", err)
			os.Exit(1)
		}
		log.Info("tsnet server starting", "hostname", cfg.Tailscale.Hostname)
	} else {
		addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		listener, err = net.Listen("tcp", addr)
		if err != nil {
			log.Error("listen failed", "addr", addr, "error", err)
			os.Exit(1)
		}
		log.Info("server starting", "addr", addr, "mode", "plain http")
	}

	httpSrv := &http.Server{Handler: srv}

	go func() {
		if err := httpSrv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	log.Info("shutting down", "signal", sig)

	// Ending the session first lets open video streams return.
	mgr.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown error", "error", err)
	}
	log.Info("server stopped")
}
