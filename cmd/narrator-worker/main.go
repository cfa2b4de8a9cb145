// Narrator-worker is the reference synthesis service for narratord. It
// queues jobs, synthesizes them through Piper over the Wyoming protocol and
// reports each outcome back to the daemon.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nadzzz/narrator/internal/bus"
	"github.com/nadzzz/narrator/internal/config"
	"github.com/nadzzz/narrator/internal/telemetry"
	"github.com/nadzzz/narrator/internal/tts/piper"
	"github.com/nadzzz/narrator/internal/voices"
	"github.com/nadzzz/narrator/internal/worker"
)

var version = "dev"

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configFile := flag.String("config", "", "path to config file")
	flag.Parse()

	if *showVersion {
		fmt.Printf("narrator-worker %s\n", version)
		os.Exit(0)
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	config.SetupLogging(cfg.Logging)
	slog.Info("narrator-worker starting", "version", version)

	ctx, cancel := signal.NotifyContext(context.Background(),
		syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg); err != nil {
		slog.Error("narrator-worker failed", "error", err)
		os.Exit(1)
	}
	slog.Info("narrator-worker stopped")
}

func run(ctx context.Context, cfg *config.Config) error {
	wcfg := cfg.Worker

	telemetryCfg := cfg.Telemetry
	telemetryCfg.ServiceName += "-worker"
	telemetryCfg.Prometheus = false
	providers, err := telemetry.Setup(ctx, telemetryCfg, version)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = providers.Shutdown(shutdownCtx)
	}()

	// Without a catalog every voice is passed to Piper as is.
	var known worker.VoiceSet
	if cat, err := voices.Load(cfg.Server.VoicesPath); err != nil {
		slog.Warn("voice catalog unavailable, not checking voices", "error", err)
	} else {
		known = cat
	}

	synth := piper.New(wcfg.Piper)
	defer synth.Close()

	pipeline := worker.NewPipeline(synth, known, worker.PipelineOptions{
		DefaultVoice:  wcfg.DefaultVoice,
		MaxChunkChars: wcfg.MaxChunkChars,
		ChunkWorkers:  wcfg.ChunkWorkers,
		Format:        wcfg.Format,
		OutputDir:     wcfg.OutputDir,
	})

	var notifier worker.Notifier
	switch wcfg.Notify.Mode {
	case "nats":
		client, err := bus.Connect(cfg.Bus, "narrator-worker")
		if err != nil {
			return err
		}
		defer client.Close()
		notifier = worker.NewBusNotifier(client, cfg.Transports.NATS.Subject)
		slog.Info("notifying over nats", "subject", cfg.Transports.NATS.Subject)
	default:
		notifier = worker.NewHTTPNotifier(wcfg.Notify.URL)
		slog.Info("notifying over http", "url", wcfg.Notify.URL)
	}

	srv := worker.New(wcfg.Port, wcfg.Concurrency, pipeline, notifier)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		srv.Run(gctx)
		return nil
	})
	g.Go(func() error {
		return srv.ListenAndServe(gctx)
	})
	return g.Wait()
}
