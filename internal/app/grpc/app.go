package grpcapp

import (
	"fmt"
	"log/slog"
	"net"

	"google.golang.org/grpc"

	healthgrpc "authgate/internal/grpc/health"
)

type App struct {
	logger     *slog.Logger
	gRPCServer *grpc.Server
	host       string
	port       int
}

func New(
	logger *slog.Logger,
	db healthgrpc.Pinger,
	host string,
	port int,
) *App {
	gRPCServer := grpc.NewServer()
	healthgrpc.Register(gRPCServer, logger, db)

	return &App{
		logger:     logger,
		gRPCServer: gRPCServer,
		host:       host,
		port:       port,
	}
}

func (a *App) MustRun() {
	if err := a.Run(); err != nil {
		panic(err)
	}
}

func (a *App) Run() error {
	const op = "grpcapp.Run"

	listener, err := net.Listen("tcp", net.JoinHostPort(a.host, fmt.Sprint(a.port)))
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return a.Serve(listener)
}

// Serve runs the server on an already bound listener.
func (a *App) Serve(listener net.Listener) error {
	const op = "grpcapp.Serve"

	log := a.logger.With(slog.String("op", op))
	log.Info("gRPC server is running", slog.String("address", listener.Addr().String()))

	if err := a.gRPCServer.Serve(listener); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (a *App) Stop() {
	const op = "grpcapp.Stop"

	log := a.logger.With(slog.String("op", op))
	log.Info("stopping gRPC server", slog.Int("port", a.port))

	a.gRPCServer.GracefulStop()
}
