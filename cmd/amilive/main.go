package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/sebas/amilive/internal/ami"
	"github.com/sebas/amilive/internal/api"
	"github.com/sebas/amilive/internal/config"
	"github.com/sebas/amilive/internal/dispatch"
	"github.com/sebas/amilive/internal/export"
	"github.com/sebas/amilive/internal/live"
	"github.com/sebas/amilive/internal/logger"
	"github.com/sebas/amilive/internal/metrics"
	"github.com/sebas/amilive/internal/store"
)

const shutdownTimeout = 5 * time.Second

func main() {
	if err := run(os.Args[1:], os.Environ()); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "amilive: %v\n", err)
		os.Exit(1)
	}
}

func run(args, environ []string) error {
	cfg, err := config.Load(args, environ)
	if err != nil {
		return err
	}

	if cfg.LogFormat == "json" {
		logger.InitJSONLogger(os.Stdout)
	} else {
		logger.InitLogger(os.Stdout)
	}
	logger.SetLevel(cfg.LogLevel)
	log := slog.Default()

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.New(promReg)

	queue := dispatch.NewQueue(dispatch.Options{
		Capacity:        cfg.QueueCapacity,
		PollInterval:    cfg.PollInterval,
		DispatchTimeout: cfg.DispatchTimeout,
		SlowListener:    cfg.SlowListener,
		SlowEvent:       cfg.SlowEvent,
		Logger:          log,
		Recorder:        collector,
	})

	client := ami.NewClient(ami.Config{
		Addr:        cfg.AMIAddr,
		Username:    cfg.AMIUsername,
		Secret:      cfg.AMISecret,
		DialTimeout: cfg.DialTimeout,
	}, cfg.ReconnectDelay, func(msg *ami.Message) { queue.Submit(msg) }, log)

	registry := live.NewRegistry(live.RegistryOptions{
		HangupGrace:   cfg.HangupGrace,
		SweepInterval: cfg.SweepInterval,
		Commander:     client,
		Archiver:      store.NewMemoryArchive[live.Snapshot](cfg.ArchiveLimit),
		Logger:        log,
	})
	defer registry.Close()
	registry.AddObserver(collector)
	metrics.RegisterChannelGauges(promReg, registry.Counts)

	queue.AddListener(live.NewTracker(registry, log))
	if cfg.NATSURL != "" {
		publisher, err := newPublisher(cfg, log)
		if err != nil {
			return err
		}
		defer func() {
			if err := publisher.Close(); err != nil {
				log.Warn("Failed to close event publisher", "error", err)
			}
		}()
		queue.AddListener(export.NewExporter(publisher, cfg.ExportKinds))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	queue.Start(ctx)
	defer queue.Stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := client.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("manager client stopped: %w", err)
		}
		return nil
	})

	if cfg.HTTPAddr != "" {
		server := api.NewServer(cfg.HTTPAddr, registry, queue, promReg, log)
		if err := server.Start(); err != nil {
			return err
		}
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return server.Stop(shutdownCtx)
		})
	}

	if cfg.GRPCAddr != "" {
		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			return fmt.Errorf("failed to listen on %s: %w", cfg.GRPCAddr, err)
		}
		health := api.NewHealth(log)
		g.Go(func() error { return health.Serve(lis) })
		g.Go(func() error {
			health.Watch(gctx, time.Second, queue.Running)
			health.Stop()
			return nil
		})
	}

	printBanner(os.Stdout, cfg)

	err = g.Wait()
	log.Info("Shutting down", "error", err)
	return err
}

// newPublisher connects to NATS and also logs each envelope at debug level.
func newPublisher(cfg *config.Config, log *slog.Logger) (export.Publisher, error) {
	enc, err := export.EncoderFor(cfg.ExportEncoding)
	if err != nil {
		return nil, err
	}
	natsCfg := export.DefaultNATSConfig()
	natsCfg.URL = cfg.NATSURL
	natsCfg.SubjectPrefix = cfg.SubjectPrefix
	natsCfg.CredsFile = cfg.NATSCredsFile
	pub, err := export.NewNATSPublisher(natsCfg, enc, log)
	if err != nil {
		return nil, err
	}
	return export.NewMultiPublisher(pub, export.NewLoggingPublisher(cfg.SubjectPrefix, log)), nil
}
