package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"google.golang.org/grpc/health"

	"github.com/alfredjeanlab/shoutboard/internal/archive"
	"github.com/alfredjeanlab/shoutboard/internal/board"
	"github.com/alfredjeanlab/shoutboard/internal/config"
	"github.com/alfredjeanlab/shoutboard/internal/events"
	"github.com/alfredjeanlab/shoutboard/internal/model"
	"github.com/alfredjeanlab/shoutboard/internal/presence"
	"github.com/alfredjeanlab/shoutboard/internal/scheduler"
	"github.com/alfredjeanlab/shoutboard/internal/server"
	"github.com/alfredjeanlab/shoutboard/internal/store"
	"github.com/alfredjeanlab/shoutboard/internal/store/backend"
)

const (
	shutdownTimeout     = 10 * time.Second
	healthCheckInterval = 5 * time.Second
)

// serveFlags maps serve's flags onto configuration keys.
var serveFlags = map[string]string{
	"http-addr":     config.KeyHTTPAddr,
	"grpc-addr":     config.KeyGRPCAddr,
	"database-url":  config.KeyDatabaseURL,
	"broadcast-url": config.KeyBroadcastURL,
	"max-active":    config.KeyMaxActive,
	"scheduler":     config.KeySchedulerEnabled,
	"resurface":     config.KeyResurfacePolicy,
	"instance":      config.KeyInstanceID,
	"log-level":     config.KeyLogLevel,
}

var serveCmd = &cobra.Command{
	Use:     "serve",
	Short:   "Run the board server",
	GroupID: "system",
	Long: `Run the board server: the HTTP API, the live viewer stream and the
lifecycle scheduler.

Settings come from the environment (and a .env file in development);
flags override them. Run several servers against one shared database and
broadcast bus to scale out; each runs its own scheduler.`,
	// Override PersistentPreRunE so no client is created.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	RunE: func(cmd *cobra.Command, args []string) error {
		_ = godotenv.Load()
		v := config.NewViper()
		for flag, key := range serveFlags {
			if err := v.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
				return err
			}
		}
		cfg, err := config.FromViper(v)
		if err != nil {
			return fmt.Errorf("config: %w", err)
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return serve(ctx, cfg, newLogger(cfg))
	},
}

func init() {
	f := serveCmd.Flags()
	f.String("http-addr", ":8080", "HTTP listen address")
	f.String("grpc-addr", "", "gRPC health listen address (empty disables)")
	f.String("database-url", "", "store URL: memory://, postgres://, sqlite://, redis://")
	f.String("broadcast-url", "", "event bus URL: nats:// or redis:// (empty is in-process)")
	f.Int("max-active", 10, "maximum messages displayed at once")
	f.Bool("scheduler", true, "run the lifecycle scheduler in this process")
	f.String("resurface", "random", "resurfacing policy: off, random, placeholder")
	f.String("instance", "", "instance id recorded in the display log (default hostname)")
	f.String("log-level", "info", "log level")
}

// bus is the broadcast transport between schedulers and viewer sessions.
type bus struct {
	publisher  events.Publisher
	subscriber events.Subscriber // nil when in-process
}

// openBus picks the transport from url. With no url the scheduler publishes
// straight into the hub.
func openBus(ctx context.Context, url string, hub *server.Hub) (*bus, error) {
	switch {
	case url == "":
		return &bus{publisher: hub}, nil
	case strings.HasPrefix(url, "nats://"), strings.HasPrefix(url, "tls://"):
		pub, err := events.NewNATSPublisher(url)
		if err != nil {
			return nil, err
		}
		sub, err := events.NewNATSSubscriber(url)
		if err != nil {
			pub.Close()
			return nil, err
		}
		return &bus{publisher: pub, subscriber: sub}, nil
	case strings.HasPrefix(url, "redis://"), strings.HasPrefix(url, "rediss://"):
		pub, err := events.NewRedisPublisher(ctx, url)
		if err != nil {
			return nil, err
		}
		sub, err := events.NewRedisSubscriber(ctx, url)
		if err != nil {
			pub.Close()
			return nil, err
		}
		return &bus{publisher: pub, subscriber: sub}, nil
	}
	return nil, fmt.Errorf("unsupported broadcast url scheme: %q", url)
}

func (b *bus) Close() error {
	var errs []error
	if b.subscriber != nil {
		errs = append(errs, b.subscriber.Close())
		errs = append(errs, b.publisher.Close())
	}
	return errors.Join(errs...)
}

func serve(ctx context.Context, cfg *config.Config, logger zerolog.Logger) error {
	st, err := backend.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() {
		if err := st.Close(); err != nil {
			logger.Error().Err(err).Msg("error closing store")
		}
	}()
	logger.Info().Str("backend", backend.Kind(cfg.DatabaseURL)).Msg("store connected")

	hub := server.NewHub(logger)
	b, err := openBus(ctx, cfg.BroadcastURL, hub)
	if err != nil {
		return fmt.Errorf("open broadcast bus: %w", err)
	}
	defer func() {
		if err := b.Close(); err != nil {
			logger.Error().Err(err).Msg("error closing broadcast bus")
		}
	}()

	relayCtx, stopRelay := context.WithCancel(context.Background())
	defer stopRelay()
	relayDone := make(chan struct{})
	if b.subscriber != nil {
		go func() {
			defer close(relayDone)
			if err := server.Relay(relayCtx, b.subscriber, hub, logger); err != nil {
				logger.Error().Err(err).Msg("event relay stopped")
			}
		}()
	} else {
		close(relayDone)
		logger.Info().Msg("broadcast in-process (BROADCAST_URL not set)")
	}

	var sched *scheduler.Scheduler
	if cfg.SchedulerEnabled {
		sched = scheduler.New(st, b.publisher, scheduler.Config{
			MaxActive:       cfg.MaxActive,
			DisplayDuration: cfg.DisplayDuration,
			Interval:        cfg.ReconcileInterval,
			Resurface:       cfg.ResurfacePolicy,
			Instance:        cfg.InstanceID,
		}, logger)
	}

	boardSvc := board.New(st, model.Limits{MaxBody: cfg.MaxBodyLength, MaxAuthor: cfg.MaxAuthorLength}, cfg.MaxActive)
	roster := presence.New(logger)
	srv := server.New(boardSvc, hub, roster, server.Options{
		CORSOrigins:         cfg.CORSOrigins,
		MaxBodyBytes:        server.DefaultOptions().MaxBodyBytes,
		SubmitRatePerMinute: cfg.SubmitRatePerMinute,
		SubmitBurst:         cfg.SubmitBurst,
	}, logger)
	if sched != nil {
		srv.SetNudger(sched)
	}

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           srv.NewHTTPHandler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	httpErr := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.HTTPAddr).Msg("HTTP server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			httpErr <- err
		}
	}()

	var grpcStop func()
	if cfg.GRPCAddr != "" {
		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			return fmt.Errorf("listen %s: %w", cfg.GRPCAddr, err)
		}
		hs := health.NewServer()
		grpcServer := server.NewGRPCServer(hs, logger)
		reporterCtx, stopReporter := context.WithCancel(context.Background())
		go server.NewHealthReporter(hs, boardSvc, healthCheckInterval, logger).Run(reporterCtx)
		go func() {
			logger.Info().Str("addr", cfg.GRPCAddr).Msg("gRPC health server listening")
			if err := grpcServer.Serve(lis); err != nil {
				logger.Error().Err(err).Msg("gRPC server error")
			}
		}()
		grpcStop = func() {
			stopReporter()
			grpcServer.GracefulStop()
		}
	}

	if sched != nil {
		sched.Start()
	} else {
		logger.Info().Msg("scheduler disabled on this instance")
	}

	arch, err := startArchive(ctx, cfg.Archive, st, logger)
	if err != nil {
		logger.Error().Err(err).Msg("archive disabled")
	}

	logger.Info().
		Str("http_addr", cfg.HTTPAddr).
		Str("grpc_addr", cfg.GRPCAddr).
		Int("max_active", cfg.MaxActive).
		Msg("shoutboard server started")

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info().Msg("received signal, shutting down")
	case runErr = <-httpErr:
		logger.Error().Err(runErr).Msg("HTTP server error")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if sched != nil {
		sched.Stop()
	}
	if arch != nil {
		arch.Stop(shutdownCtx)
	}

	stopRelay()
	<-relayDone
	hub.Close()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("HTTP server shutdown error")
	}
	if grpcStop != nil {
		grpcStop()
	}

	logger.Info().Msg("shutdown complete")
	return runErr
}

// startArchive schedules archive exports when configured. It returns nil
// when archiving is off.
func startArchive(ctx context.Context, cfg config.Archive, st store.Store, logger zerolog.Logger) (*archive.Scheduler, error) {
	if !cfg.Enabled() {
		return nil, nil
	}

	var dests []archive.Destination
	if cfg.S3Bucket != "" {
		s3Dest, err := archive.NewS3Destination(ctx, cfg.S3Bucket, cfg.S3Key, cfg.S3Region, cfg.S3Endpoint)
		if err != nil {
			logger.Error().Err(err).Msg("failed to create S3 archive destination")
		} else {
			dests = append(dests, s3Dest)
			logger.Info().Str("bucket", cfg.S3Bucket).Str("key", cfg.S3Key).Msg("archive S3 destination enabled")
		}
	}
	if cfg.File != "" {
		dests = append(dests, archive.NewFileDestination(cfg.File))
		logger.Info().Str("path", cfg.File).Msg("archive file destination enabled")
	}
	if len(dests) == 0 {
		return nil, errors.New("no usable archive destination")
	}

	sched, err := archive.NewScheduler(st, dests, cfg.Schedule, logger)
	if err != nil {
		return nil, err
	}
	if err := sched.Start(); err != nil {
		return nil, err
	}
	return sched, nil
}
