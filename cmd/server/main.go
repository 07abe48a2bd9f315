// Command server is the VistterStream appliance daemon: it loads the
// appliance configuration, wires up every control-plane component, starts
// them, and blocks until signaled to shut down gracefully.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/vistterstream/vistterstream/internal/appliance"
	"github.com/vistterstream/vistterstream/internal/compositor"
	"github.com/vistterstream/vistterstream/internal/config"
	"github.com/vistterstream/vistterstream/internal/eventbus"
	"github.com/vistterstream/vistterstream/internal/logging"
	"github.com/vistterstream/vistterstream/internal/model"
	"github.com/vistterstream/vistterstream/internal/muxer"
	"github.com/vistterstream/vistterstream/internal/preview"
	"github.com/vistterstream/vistterstream/internal/process"
	"github.com/vistterstream/vistterstream/internal/ptz"
	"github.com/vistterstream/vistterstream/internal/relay"
	"github.com/vistterstream/vistterstream/internal/router"
	"github.com/vistterstream/vistterstream/internal/timeline"
	"github.com/vistterstream/vistterstream/internal/watchdog"
)

const shutdownTimeout = 30 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "vistterstream:", err)
		os.Exit(1)
	}
}

// components bundles every long-lived part of the appliance so startup and
// shutdown can iterate them in one declared order, the same way the
// teacher's cmd/server/main.go stops components in reverse of how it
// started them.
type components struct {
	log        *logging.Logger
	supervisor *process.Supervisor
	relayMgr   *relay.Manager
	watchdog   *watchdog.Manager
	router     *router.Router
	preview    *preview.Adapter
	registry   *appliance.Registry
	// handler is the CueHandler every timeline.Executor started in this
	// process dispatches to: the Stream Router's preview and live
	// executions (wired in via streamRouter.Wire) and the
	// VISTTER_TIMELINE_FILE execution started by startFileTimeline.
	handler   *appliance.Handler
	bus       *eventbus.Bus
	positions *eventbus.PositionStore
	// executor is non-nil only when VISTTER_TIMELINE_FILE names a timeline
	// definition to run directly, bypassing the out-of-scope REST layer.
	executor *timeline.Executor
}

func run() error {
	configPath := os.Getenv("VISTTER_CONFIG")
	if configPath == "" {
		configPath = "config/vistterstream.yaml"
	}

	mgr := config.NewManager()
	if err := mgr.Load(configPath); err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	cfg := mgr.Current()

	if err := logging.SetupLogging(logging.Config{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		FilePath:   cfg.Logging.FilePath,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
		Compress:   cfg.Logging.Compress,
	}); err != nil {
		return fmt.Errorf("setting up logging: %w", err)
	}
	log := logging.New("cmd.server")

	if os.Getenv("VISTTER_ENABLE_HOT_RELOAD") == "true" {
		mgr.WatchForChanges()
		mgr.OnChange(func(c *config.Config) {
			log.Info("configuration reloaded")
		})
	}

	if reaped, err := process.ReapOrphans(logging.New("process.reap")); err != nil {
		log.WithError(err).Warn("orphan encoder scan failed")
	} else if reaped > 0 {
		log.WithField("count", reaped).Warn("reaped orphaned encoder processes from a prior run")
	}

	c, shutdown := wire(cfg, log)

	ctx, cancel := context.WithCancel(context.Background())
	c.watchdog.Run(ctx, c.registry.Destinations)
	c.relayMgr.Run(ctx, c.registry.Cameras)

	if timelinePath := os.Getenv("VISTTER_TIMELINE_FILE"); timelinePath != "" {
		if err := startFileTimeline(ctx, c, timelinePath); err != nil {
			cancel()
			return fmt.Errorf("starting timeline from %s: %w", timelinePath, err)
		}
	}

	log.Info("vistterstream appliance started")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	log.Info("shutdown signal received")
	cancel()

	return gracefulShutdown(log, shutdown)
}

// wire constructs every component in dependency order: logging and config
// are already set up by the time this runs, so this builds the Process
// Supervisor first (nothing depends on anything but config/logging),
// then the Camera Relay Manager and PTZ Controller (depend on the
// Supervisor / nothing), then the Stream Router and Watchdog Manager
// (depend on the event bus), and finally the appliance.Handler that ties
// them to the Timeline Executor.
func wire(cfg *config.Config, log *logging.Logger) (*components, func(context.Context) error) {
	bus := eventbus.New()

	supervisor := process.New(cfg.Supervisor, logging.New("process.supervisor"), nil, bus)
	adminClient := muxer.NewAdminClient(fmt.Sprintf("http://%s:%d", cfg.Muxer.Host, cfg.Muxer.Port))
	relayMgr := relay.New(cfg.Relay, logging.New("relay.manager"), supervisor, relay.NewAdminProber(adminClient), bus)
	ptzClient := ptz.NewHTTPClient(cfg.PTZ.RequestTimeout)
	ptzController := ptz.New(ptzClient, logging.New("ptz.controller"), cfg.PTZ.SettleTime)
	streamRouter := router.New(logging.New("stream.router"), bus)
	liveChecker := watchdog.NewPlatformDispatchChecker(map[model.Platform]watchdog.RemoteLivenessChecker{
		model.PlatformYouTube: watchdog.NewYouTubeLivenessChecker(nil),
	})
	registry := appliance.NewRegistry()
	watchdogMgr := watchdog.New(cfg.Watchdog, logging.New("watchdog.manager"), bus, liveChecker, supervisor, supervisor, registry)
	previewBaseURL := fmt.Sprintf("http://%s:%d", cfg.Muxer.Host, cfg.Muxer.Port)
	previewAdapter := preview.New(previewBaseURL, cfg.Preview.PublishURL, cfg.Preview.PlaybackURL)

	handler := appliance.New(registry, ptzController, relayMgr, supervisor, streamRouter, compositor.Profile720p30, logging.New("appliance.handler"), bus, cfg.Relay.CuePrepareTimeout)
	positions := eventbus.NewPositionStore()
	streamRouter.Wire(handler, registry, positions, previewAdapter, watchdogMgr)

	c := &components{
		log:        log,
		supervisor: supervisor,
		relayMgr:   relayMgr,
		watchdog:   watchdogMgr,
		router:     streamRouter,
		preview:    previewAdapter,
		registry:   registry,
		handler:    handler,
		bus:        bus,
		positions:  positions,
	}

	shutdown := func(ctx context.Context) error {
		if c.executor != nil {
			c.executor.Stop()
		}
		c.watchdog.Stop()
		c.relayMgr.StopMonitoring()
		c.supervisor.KillAll(ctx)
		return nil
	}
	return c, shutdown
}

// startFileTimeline loads a timeline definition from disk and runs it as a
// single standing execution against destinations already present in the
// registry — the path a kiosk-style single-timeline deployment takes
// without the out-of-scope scheduling/REST layer.
func startFileTimeline(ctx context.Context, c *components, path string) error {
	tl, err := timeline.LoadFile(path)
	if err != nil {
		return err
	}

	destIDs := make([]string, 0, len(c.registry.Destinations()))
	for _, d := range c.registry.Destinations() {
		destIDs = append(destIDs, d.ID)
	}

	execution := &model.Execution{
		ID:           "exec:" + tl.ID,
		TimelineID:   tl.ID,
		Status:       model.ExecutionPending,
		Destinations: destIDs,
	}

	c.executor = timeline.New(tl, execution, c.handler, c.positions, c.bus, c.log)
	return c.executor.Start(ctx)
}

func gracefulShutdown(log *logging.Logger, shutdown func(context.Context) error) error {
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	var wg sync.WaitGroup
	errCh := make(chan error, 1)

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := shutdown(shutdownCtx); err != nil {
			errCh <- err
		}
	}()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info("all components stopped cleanly")
	case <-shutdownCtx.Done():
		log.Error("shutdown timed out, forcing exit")
		os.Exit(1)
	}

	close(errCh)
	for err := range errCh {
		if err != nil {
			log.WithError(err).Error("error during shutdown")
		}
	}
	return nil
}
