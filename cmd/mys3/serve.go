package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ridha-boughediri/mys3/pkg/api"
	"github.com/ridha-boughediri/mys3/pkg/bus"
	"github.com/ridha-boughediri/mys3/pkg/config"
	"github.com/ridha-boughediri/mys3/pkg/control"
	"github.com/ridha-boughediri/mys3/pkg/engine"
	"github.com/ridha-boughediri/mys3/pkg/ingest"
	"github.com/ridha-boughediri/mys3/pkg/listener"
	"github.com/ridha-boughediri/mys3/pkg/notify"
	"github.com/ridha-boughediri/mys3/pkg/storage"
)

func newServeCmd(load func() (*config.Config, error), stdout io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the bucket API and the notification listener",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, stdout)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config, stdout io.Writer) error {
	log := newLogger(cfg.Log, os.Stderr)
	log.Info("initializing mys3", "version", version)

	// Storage
	store, err := storage.New(cfg.Storage.Path)
	if err != nil {
		return err
	}

	// Bus and listener. The listener is installed exactly once per process.
	events := bus.NewLocalBus(log)
	defer events.Close()

	notifier, err := notify.Build(cfg.Notify.Targets, stdout)
	if err != nil {
		return fmt.Errorf("build notifiers: %w", err)
	}
	notices := listener.New(notifier, log)
	if err := notices.Install(events); err != nil {
		return fmt.Errorf("install listener: %w", err)
	}
	defer notices.Uninstall()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	var wg sync.WaitGroup

	// Relay pipeline for events reported by external request libraries
	var pipeline *engine.Pipeline
	if cfg.Ingest.Enabled {
		pipeline, err = startRelay(runCtx, &wg, cfg, events, log)
		if err != nil {
			return err
		}
	}

	// Redis bridge and control plane
	if cfg.Redis.Enabled {
		if err := startRedis(runCtx, &wg, cfg, events, notices, pipeline, stdout, log); err != nil {
			return err
		}
	}

	// HTTP API
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler: api.NewRouter(api.NewHandler(store, cfg.Storage.Region, log), events),
	}
	serveErr := make(chan error, 1)
	go func() {
		log.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case err := <-serveErr:
		if err != nil {
			cancel()
			wg.Wait()
			return fmt.Errorf("http server: %w", err)
		}
	}

	shutdownCtx, done := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer done()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown incomplete", "error", err)
	}

	cancel()
	wg.Wait()
	if pipeline != nil {
		pipeline.Wait()
	}
	log.Info("bye")
	return nil
}

func startRelay(ctx context.Context, wg *sync.WaitGroup, cfg *config.Config, events *bus.LocalBus, log *slog.Logger) (*engine.Pipeline, error) {
	buffer, err := engine.NewRingBuffer(cfg.Ingest.BufferSize)
	if err != nil {
		return nil, fmt.Errorf("create relay buffer: %w", err)
	}

	// Start with an empty chain. The control watcher replaces it.
	pipeline := engine.NewPipeline(buffer, engine.NewProcessorChain(), events, log)
	pipeline.Start(ctx)

	if cfg.Ingest.TCP {
		tcp := ingest.NewTCPIngestor(fmt.Sprintf(":%d", cfg.Server.TCPPort), buffer, log)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := tcp.Start(ctx); err != nil {
				log.Error("tcp ingestor died", "error", err)
			}
		}()
	}
	if cfg.Ingest.UDP {
		udp := ingest.NewUDPIngestor(fmt.Sprintf(":%d", cfg.Server.UDPPort), buffer, log)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := udp.Start(ctx); err != nil {
				log.Error("udp ingestor died", "error", err)
			}
		}()
	}
	return pipeline, nil
}

func startRedis(
	ctx context.Context,
	wg *sync.WaitGroup,
	cfg *config.Config,
	events *bus.LocalBus,
	notices *listener.Listener,
	pipeline *engine.Pipeline,
	stdout io.Writer,
	log *slog.Logger,
) error {
	client, err := newRedisClient(cfg.Redis)
	if err != nil {
		return err
	}
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return fmt.Errorf("connect redis: %w", err)
	}

	bridge := bus.NewRedisBridge(client, events, cfg.Redis.EventsChannel, log)
	if _, err := bridge.Forward(); err != nil {
		_ = client.Close()
		return fmt.Errorf("forward events: %w", err)
	}

	opts := control.Options{
		Key:     cfg.Redis.ControlKey,
		Channel: cfg.Redis.ControlChannel,
		Stdout:  stdout,
		Log:     log,
	}
	if pipeline != nil {
		opts.Chain = pipeline
	}
	watcher := control.NewWatcher(client, notices, opts)
	if err := watcher.Start(ctx); err != nil {
		_ = client.Close()
		return err
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer client.Close()
		if err := bridge.Run(ctx); err != nil {
			log.Error("redis bridge stopped", "error", err)
		}
	}()
	return nil
}
