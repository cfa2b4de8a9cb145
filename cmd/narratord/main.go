// Narratord is the narrator API daemon. It accepts text, hands synthesis
// jobs to the synthesis service and serves the finished audio to clients
// that poll for it.
//
// Usage:
//
//	narratord [flags]
//	narratord --config /path/to/narrator.yaml
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	_ "github.com/nadzzz/narrator/docs"
	"github.com/nadzzz/narrator/internal/bus"
	"github.com/nadzzz/narrator/internal/config"
	"github.com/nadzzz/narrator/internal/dispatch"
	"github.com/nadzzz/narrator/internal/health"
	"github.com/nadzzz/narrator/internal/job"
	"github.com/nadzzz/narrator/internal/telemetry"
	"github.com/nadzzz/narrator/internal/transport"
	grpctransport "github.com/nadzzz/narrator/internal/transport/grpc"
	httptransport "github.com/nadzzz/narrator/internal/transport/http"
	natstransport "github.com/nadzzz/narrator/internal/transport/nats"
	"github.com/nadzzz/narrator/internal/tts/remote"
	"github.com/nadzzz/narrator/internal/voices"
)

// version is set at build time via ldflags.
var version = "dev"

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configFile := flag.String("config", "", "path to config file (e.g. configs/narrator.yaml)")
	flag.Parse()

	if *showVersion {
		fmt.Printf("narratord %s\n", version)
		os.Exit(0)
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	config.SetupLogging(cfg.Logging)
	slog.Info("narratord starting", "version", version)

	ctx, cancel := signal.NotifyContext(context.Background(),
		syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg); err != nil {
		slog.Error("narratord failed", "error", err)
		os.Exit(1)
	}
	slog.Info("narratord stopped")
}

func run(ctx context.Context, cfg *config.Config) error {
	providers, err := telemetry.Setup(ctx, cfg.Telemetry, version)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := providers.Shutdown(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown", "error", err)
		}
	}()

	// The voice list is optional; without it GET /api/voices answers 404.
	var catalog httptransport.Catalog
	if cat, err := voices.Load(cfg.Server.VoicesPath); err != nil {
		slog.Warn("voice catalog unavailable", "path", cfg.Server.VoicesPath, "error", err)
	} else {
		catalog = cat
		slog.Info("voice catalog loaded", "voices", len(cat.All()))
	}

	store := job.NewStore(cfg.Jobs.TTL, cfg.Jobs.MaxJobs)
	dispatcher := dispatch.New(store, remote.New(cfg.Synth), dispatch.Options{
		MaxChars:        cfg.Server.MaxChars,
		DispatchTimeout: cfg.Synth.DispatchTimeout,
	})
	defer dispatcher.Close()

	healthServer := newHealthServer(cfg, store, providers.MetricsHandler)

	transports := []transport.Transport{httptransport.New(cfg.Server.Port, catalog)}

	var grpcTransport *grpctransport.Transport
	if cfg.Transports.GRPC.Enabled {
		grpcTransport = grpctransport.New(cfg.Transports.GRPC.Port)
		transports = append(transports, grpcTransport)
	}

	if cfg.Transports.NATS.Enabled {
		busCfg := cfg.Bus
		if busCfg.Embedded {
			embedded, err := bus.StartEmbedded(busCfg.Port)
			if err != nil {
				return err
			}
			defer embedded.Shutdown()
			busCfg.Servers = []string{embedded.URL()}
		}
		client, err := bus.Connect(busCfg, "narratord")
		if err != nil {
			return err
		}
		defer client.Close()

		healthServer.AddCheck("nats", func(context.Context) error {
			if !client.Healthy() {
				return errors.New("nats connection down")
			}
			return nil
		})
		transports = append(transports, natstransport.New(client.Conn(), cfg.Transports.NATS.Subject))
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return healthServer.ListenAndServe(gctx)
	})
	g.Go(func() error {
		store.Run(gctx, cfg.Jobs.SweepInterval)
		return nil
	})
	for _, t := range transports {
		g.Go(func() error {
			slog.Info("starting transport", "name", t.Name())
			if err := t.Listen(gctx, dispatcher); err != nil {
				return fmt.Errorf("%s transport: %w", t.Name(), err)
			}
			return nil
		})
	}

	healthServer.SetReady(true)
	if grpcTransport != nil {
		grpcTransport.SetServing(true)
	}
	slog.Info("narratord ready",
		"port", cfg.Server.Port,
		"transports", len(transports),
		"health_port", cfg.Server.HealthPort)

	<-gctx.Done()
	slog.Info("shutdown signal received, draining...")
	healthServer.SetReady(false)
	if grpcTransport != nil {
		grpcTransport.SetServing(false)
	}

	for _, t := range transports {
		if err := t.Close(); err != nil {
			slog.Error("transport close error", "name", t.Name(), "error", err)
		}
	}

	return g.Wait()
}

// newHealthServer reports job store occupancy on /readyz. Occupancy never
// affects readiness.
func newHealthServer(cfg *config.Config, store *job.Store, metrics http.Handler) *health.Server {
	h := health.New(cfg.Server.HealthPort, metrics)
	h.AddInfo("jobs", func() any {
		return map[string]int{"stored": store.Len(), "max": cfg.Jobs.MaxJobs}
	})
	return h
}
