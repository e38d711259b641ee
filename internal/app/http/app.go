package httpapp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	authhttp "authgate/internal/http/auth"
	"authgate/internal/lib/logger/sl"
)

const (
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 10 * time.Second
)

type App struct {
	logger *slog.Logger
	server *http.Server
	addr   string
}

func New(
	logger *slog.Logger,
	authService authhttp.Auth,
	secret string,
	addr string,
) *App {
	mux := http.NewServeMux()
	authhttp.Register(mux, logger, authService, secret)

	return &App{
		logger: logger,
		server: &http.Server{
			Addr:              addr,
			Handler:           logRequests(logger, mux),
			ReadHeaderTimeout: readHeaderTimeout,
		},
		addr: addr,
	}
}

// Handler exposes the routed handler so it can be mounted in tests.
func (a *App) Handler() http.Handler {
	return a.server.Handler
}

func (a *App) MustRun() {
	if err := a.Run(); err != nil {
		panic(err)
	}
}

func (a *App) Run() error {
	const op = "httpapp.Run"

	listener, err := net.Listen("tcp", a.addr)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	a.logger.Info("HTTP server is running",
		slog.String("op", op),
		slog.String("address", listener.Addr().String()),
	)

	if err := a.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (a *App) Stop() {
	const op = "httpapp.Stop"

	log := a.logger.With(slog.String("op", op))
	log.Info("stopping HTTP server", slog.String("address", a.addr))

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := a.server.Shutdown(ctx); err != nil {
		log.Error("graceful shutdown failed", sl.Err(err))
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// logRequests never logs bodies or headers, they carry credentials.
func logRequests(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		logger.Debug("request served",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", rec.status),
			slog.String("request_id", r.Header.Get("X-Request-ID")),
			slog.Duration("duration", time.Since(start)),
		)
	})
}
