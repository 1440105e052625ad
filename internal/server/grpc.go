package server

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// BoardService is the service name reported by the health server.
const BoardService = "shoutboard.Board"

// Pinger is anything whose reachability decides health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// NewGRPCServer creates a gRPC server with standard interceptors and
// registers the health service and reflection.
func NewGRPCServer(hs *health.Server, logger zerolog.Logger) *grpc.Server {
	logger = logger.With().Str("component", "grpc").Logger()
	srv := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			RecoveryInterceptor(logger),
			LoggingInterceptor(logger),
		),
	)

	healthpb.RegisterHealthServer(srv, hs)
	reflection.Register(srv)

	return srv
}

// HealthReporter keeps a health server in step with store reachability.
type HealthReporter struct {
	health   *health.Server
	pinger   Pinger
	interval time.Duration
	timeout  time.Duration
	logger   zerolog.Logger
	serving  bool
}

// NewHealthReporter creates a reporter; it reports NOT_SERVING until the
// first successful ping.
func NewHealthReporter(hs *health.Server, p Pinger, interval time.Duration, logger zerolog.Logger) *HealthReporter {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	r := &HealthReporter{
		health:   hs,
		pinger:   p,
		interval: interval,
		timeout:  healthTimeout,
		logger:   logger.With().Str("component", "health").Logger(),
	}
	r.set(healthpb.HealthCheckResponse_NOT_SERVING)
	return r
}

// Run checks immediately and then every interval until ctx is done, when it
// reports NOT_SERVING.
func (r *HealthReporter) Run(ctx context.Context) {
	r.Check(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			r.health.Shutdown()
			return
		case <-ticker.C:
			r.Check(ctx)
		}
	}
}

// Check pings once and updates the reported status.
func (r *HealthReporter) Check(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	err := r.pinger.Ping(ctx)
	switch {
	case err == nil && !r.serving:
		r.logger.Info().Msg("store reachable, serving")
		r.set(healthpb.HealthCheckResponse_SERVING)
	case err != nil && r.serving:
		r.logger.Warn().Err(err).Msg("store unreachable, not serving")
		r.set(healthpb.HealthCheckResponse_NOT_SERVING)
	}
}

func (r *HealthReporter) set(st healthpb.HealthCheckResponse_ServingStatus) {
	r.serving = st == healthpb.HealthCheckResponse_SERVING
	r.health.SetServingStatus("", st)
	r.health.SetServingStatus(BoardService, st)
}
