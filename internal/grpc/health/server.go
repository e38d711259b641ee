package health

import (
	"context"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	healthv1 "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"

	"authgate/internal/lib/logger/sl"
)

// ServiceName is the service name health checks use to ask about the issuer.
const ServiceName = "authgate.issuer"

const pingTimeout = 2 * time.Second

type Pinger interface {
	Ping(ctx context.Context) error
}

type serverAPI struct {
	healthv1.UnimplementedHealthServer
	logger *slog.Logger
	db     Pinger
}

func Register(gRPC *grpc.Server, logger *slog.Logger, db Pinger) {
	healthv1.RegisterHealthServer(gRPC, &serverAPI{logger: logger, db: db})
}

// Check reports SERVING while the issuer's storage answers pings.
// Watch stays unimplemented.
func (s *serverAPI) Check(
	ctx context.Context,
	req *healthv1.HealthCheckRequest,
) (*healthv1.HealthCheckResponse, error) {
	const op = "grpc.health.Check"

	if svc := req.GetService(); svc != "" && svc != ServiceName {
		return nil, status.Errorf(codes.NotFound, "unknown service %q", svc)
	}

	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if err := s.db.Ping(ctx); err != nil {
		s.logger.Warn("storage ping failed", slog.String("op", op), sl.Err(err))

		return &healthv1.HealthCheckResponse{Status: healthv1.HealthCheckResponse_NOT_SERVING}, nil
	}

	return &healthv1.HealthCheckResponse{Status: healthv1.HealthCheckResponse_SERVING}, nil
}
