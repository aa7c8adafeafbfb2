// Command hephaestus runs the bone animation engine: it loads model
// descriptors, ticks views at a fixed cadence and streams pose updates to
// viewers over WebSocket. Host commands are read from stdin.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/hephaestus-engine/hephaestus/internal/adapter"
	"github.com/hephaestus-engine/hephaestus/internal/api"
	"github.com/hephaestus-engine/hephaestus/internal/config"
	"github.com/hephaestus-engine/hephaestus/internal/dispatcher"
	"github.com/hephaestus-engine/hephaestus/internal/engine"
	"github.com/hephaestus-engine/hephaestus/internal/handlers"
	"github.com/hephaestus-engine/hephaestus/internal/influx"
	"github.com/hephaestus-engine/hephaestus/internal/loader"
	"github.com/hephaestus-engine/hephaestus/internal/logging"
	"github.com/hephaestus-engine/hephaestus/internal/monitor"
	intOtel "github.com/hephaestus-engine/hephaestus/internal/otel"
	"github.com/hephaestus-engine/hephaestus/internal/registry"
	"github.com/hephaestus-engine/hephaestus/internal/storage"
	"github.com/hephaestus-engine/hephaestus/internal/transport"
	"github.com/hephaestus-engine/hephaestus/pkg/core"
)

// module defs - BuildDate can be set at build time via ldflags
var (
	Version   = "0.0.1"
	BuildDate = "unknown"

	AppName = "hephaestus"
)

const shutdownTimeout = 10 * time.Second

type options struct {
	configDir string
	modelsDir string
	listen    string
	logLevel  string
	console   bool
	version   bool
}

func parseFlags(args []string) (options, error) {
	var o options
	fs := pflag.NewFlagSet(AppName, pflag.ContinueOnError)
	fs.StringVarP(&o.configDir, "config", "c", ".", "directory containing "+config.FileName)
	fs.StringVarP(&o.modelsDir, "models", "m", "", "model descriptor directory (overrides models.dir)")
	fs.StringVarP(&o.listen, "listen", "l", "", "viewer listen address (overrides server.listen)")
	fs.StringVar(&o.logLevel, "log-level", "", "log level (overrides logLevel)")
	fs.BoolVar(&o.console, "console", true, "read host commands from stdin")
	fs.BoolVarP(&o.version, "version", "v", false, "print version and exit")
	if err := fs.Parse(args); err != nil {
		return o, err
	}
	return o, nil
}

func main() {
	opts, err := parseFlags(os.Args[1:])
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if opts.version {
		fmt.Printf("%s %s (built %s)\n", AppName, Version, BuildDate)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, opts); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// applyOverrides copies non-empty flag values over the loaded configuration.
func applyOverrides(opts options) {
	if opts.modelsDir != "" {
		viper.Set("models.dir", opts.modelsDir)
	}
	if opts.listen != "" {
		viper.Set("server.listen", opts.listen)
	}
	if opts.logLevel != "" {
		viper.Set("logLevel", opts.logLevel)
	}
}

func run(ctx context.Context, opts options) error {
	sessionStart := time.Now()

	configErr := config.Load(opts.configDir)
	if configErr != nil {
		config.LoadDefaults()
	}
	applyOverrides(opts)

	// Logging is set up before the engine exists.
	var live atomic.Pointer[engine.Engine]
	currentTick := func() uint64 {
		if e := live.Load(); e != nil {
			return e.CurrentTick()
		}
		return 0
	}

	logPath := logging.LogFilePath(viper.GetString("logsDir"), AppName, sessionStart)
	logFile, err := logging.OpenLogFile(logPath)
	if err != nil {
		return err
	}
	defer logFile.Close()

	slogManager := logging.NewSlogManager()
	defer slogManager.Close()
	logOpts := logging.Options{
		File:    logFile,
		Level:   viper.GetString("logLevel"),
		Context: logging.TickProvider(currentTick),
	}
	if viper.GetBool("graylog.enabled") {
		logOpts.GraylogAddr = viper.GetString("graylog.address")
	}
	if err := slogManager.Setup(logOpts); err != nil {
		slogManager.Logger().Warn("Graylog unavailable, logging locally only", "error", err)
	}
	logger := slogManager.Logger()
	logger.Info("Starting up...", "version", Version, "buildDate", BuildDate, "logFile", logPath)
	if configErr != nil {
		logger.Warn("Failed to load config, using defaults!", "error", configErr)
	} else {
		logger.Info("Loaded config", "dir", opts.configDir)
	}

	zl := logging.NewZerolog(viper.GetString("logLevel"), logFile, func(e *zerolog.Event) {
		e.Uint64("tick", currentTick())
	})

	otelCfg := config.GetOTelConfig()
	otelProvider, err := intOtel.New(intOtel.Config{
		Enabled:        otelCfg.Enabled,
		ServiceName:    otelCfg.ServiceName,
		ExportInterval: otelCfg.ExportInterval,
		Writer:         logFile,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize OTel provider: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := otelProvider.Shutdown(sctx); err != nil {
			logger.Error("Failed to shut down OTel provider", "error", err)
		}
	}()

	reg := registry.New()
	loadModels(reg, viper.GetString("models.dir"), logger)

	engineCfg := config.GetEngineConfig()
	serverCfg := config.GetServerConfig()

	backend, err := initStorage(engineCfg, serverCfg, zl, logger, sessionStart)
	if err != nil {
		return err
	}
	defer closeStorage(backend, serverCfg.Protocol, sessionStart, currentTick, logger)

	hub := transport.NewHub(serverCfg.Protocol, logger)
	defer hub.Close()
	a, err := adapter.New(serverCfg.Protocol, hub)
	if err != nil {
		return err
	}
	eng, err := engine.New(engine.Config{Workers: engineCfg.Workers, Epsilon: engineCfg.Epsilon}, reg, a, backend, logger)
	if err != nil {
		return fmt.Errorf("failed to create engine: %w", err)
	}
	defer func() {
		if err := eng.Close(); err != nil {
			logger.Warn("Failed to close engine", "error", err)
		}
	}()
	live.Store(eng)
	hub.SetController(eng)

	d, err := dispatcher.New(logging.NewDispatcherLogger(zl))
	if err != nil {
		return fmt.Errorf("failed to create dispatcher: %w", err)
	}
	defer d.Close()
	handlers.NewService(eng, logger).Register(d)
	logger.Info("Command handlers registered", "commands", d.Commands())

	mon, closeInflux := startMonitor(ctx, eng, serverCfg.Protocol, zl, logger)
	defer closeInflux()
	defer mon.Stop()

	mux := http.NewServeMux()
	mux.Handle(serverCfg.Path, hub)
	srv := &http.Server{
		Addr:              serverCfg.Listen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	if opts.console {
		go runConsole(ctx, os.Stdin, os.Stdout, d, logger)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Accepting viewers", "listen", serverCfg.Listen, "path", serverCfg.Path, "protocol", serverCfg.Protocol)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("viewer server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(sctx)
	})
	if engineCfg.TickInterval > 0 {
		g.Go(func() error {
			logger.Info("Tick loop started", "interval", engineCfg.TickInterval)
			return eng.Run(gctx, engineCfg.TickInterval)
		})
	} else {
		logger.Info("Tick loop disabled, views advance on :TICK: only")
	}

	err = g.Wait()
	logger.Info("Shutting down...", "tick", eng.CurrentTick())
	return err
}

func loadModels(reg *registry.Registry, dir string, logger *slog.Logger) {
	models, err := loader.LoadDir(dir)
	if err != nil {
		logger.Warn("Some models failed to load", "dir", dir, "error", err)
	}
	for _, m := range models {
		if err := reg.RegisterModel(m.Name(), m); err != nil {
			logger.Warn("Skipping model", "model", m.Name(), "error", err)
			continue
		}
		logger.Info("Loaded model", "model", m.Name(), "bones", m.Len(), "animations", len(m.Animations()))
	}
}

func initStorage(engineCfg config.EngineConfig, serverCfg config.ServerConfig, zl zerolog.Logger, logger *slog.Logger, start time.Time) (storage.Backend, error) {
	storageCfg := config.GetStorageConfig()
	backend, err := storage.New(storageCfg, config.GetDBConfig(), logger, zl)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage backend: %w", err)
	}
	if err := backend.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize storage backend: %w", err)
	}
	err = backend.StartSession(&core.Session{
		StartedAt:       start.UTC(),
		ProtocolVersion: serverCfg.Protocol,
		TickInterval:    engineCfg.TickInterval,
	})
	if err != nil {
		_ = backend.Close()
		return nil, fmt.Errorf("failed to start session: %w", err)
	}
	logger.Info("Storage backend initialized", "type", storageCfg.Type)
	return backend, nil
}

// closeStorage closes backend and, when an archive server is configured,
// uploads the file it exported.
func closeStorage(backend storage.Backend, protocol string, start time.Time, currentTick func() uint64, logger *slog.Logger) {
	var frames int
	if c, ok := backend.(interface{ FrameCount() int }); ok {
		frames = c.FrameCount()
	}
	if err := backend.Close(); err != nil {
		logger.Error("Failed to close storage backend", "error", err)
		return
	}

	exp, ok := backend.(storage.Exporter)
	archive := config.GetArchiveConfig()
	if !ok || exp.ExportedFilePath() == "" || archive.URL == "" {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	client := api.New(archive.URL, archive.APIKey)
	if err := client.Healthcheck(ctx); err != nil {
		logger.Warn("Archive server unreachable, keeping recording locally", "path", exp.ExportedFilePath(), "error", err)
		return
	}
	err := client.Upload(ctx, exp.ExportedFilePath(), api.SessionMetadata{
		StartedAt: start,
		Protocol:  protocol,
		Ticks:     currentTick(),
		Frames:    frames,
		Tag:       archive.Tag,
	})
	if err != nil {
		logger.Error("Failed to upload recording", "path", exp.ExportedFilePath(), "error", err)
		return
	}
	logger.Info("Uploaded recording", "path", exp.ExportedFilePath(), "archive", archive.URL)
}

// startMonitor starts status reporting, writing points to InfluxDB when
// enabled. The returned func closes the InfluxDB client.
func startMonitor(ctx context.Context, eng *engine.Engine, protocol string, zl zerolog.Logger, logger *slog.Logger) (*monitor.Service, func()) {
	deps := monitor.Dependencies{
		Engine:     eng,
		Logger:     logger,
		Interval:   viper.GetDuration("monitor.interval"),
		StatusFile: viper.GetString("monitor.statusFile"),
		Protocol:   protocol,
	}

	closeInflux := func() {}
	if cfg := config.GetInfluxConfig(); cfg.Enabled {
		im := influx.NewManager(cfg, zl, viper.GetString("monitor.influxBackup"))
		if err := im.Connect(ctx); err != nil {
			logger.Warn("InfluxDB unavailable, performance points disabled", "url", im.URL(), "error", err)
		} else {
			deps.Influx = im
			closeInflux = func() {
				if err := im.Close(); err != nil {
					logger.Error("Failed to close InfluxDB client", "error", err)
				}
			}
		}
	}

	mon := monitor.NewService(deps)
	mon.Start()
	return mon, closeInflux
}
