package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	collogspb "go.opentelemetry.io/proto/otlp/collector/logs/v1"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"monitor.chat/stat-recorder-backend/internal/command"
	cfgpkg "monitor.chat/stat-recorder-backend/internal/config"
	"monitor.chat/stat-recorder-backend/internal/httpapi"
	"monitor.chat/stat-recorder-backend/internal/ingest"
	"monitor.chat/stat-recorder-backend/internal/orchestrator"
	otelsetup "monitor.chat/stat-recorder-backend/internal/otel"
)

const name = "monitor.chat/stat-recorder-backend"

func main() {
	if err := run(); err != nil {
		log.Fatalln(err)
	}
}

// services bundles what run serves; tests build the same graph in-process.
type services struct {
	orchestrator interface {
		orchestrator.Orchestrator
		Start(ctx context.Context)
		Close(ctx context.Context) error
	}
	grpc *grpc.Server
	http http.Handler
}

func buildServices(cfg cfgpkg.Config, logger *slog.Logger, opts ...orchestrator.Option) (*services, error) {
	svc, err := orchestrator.New(cfg, logger, opts...)
	if err != nil {
		return nil, err
	}

	grpcServer := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.MaxRecvMsgSize(cfg.MaxReceiveMessageSize),
		grpc.Creds(insecure.NewCredentials()),
	)
	collogspb.RegisterLogsServiceServer(grpcServer, ingest.NewServer(svc))

	cmds := command.New(svc, command.WithClock(svc.Clock()), command.WithLocation(svc.Location()))
	router := httpapi.NewRouter(svc, cmds,
		httpapi.WithClock(svc.Clock()),
		httpapi.WithLocation(svc.Location()),
		httpapi.WithLogger(logger),
	)

	return &services{orchestrator: svc, grpc: grpcServer, http: router}, nil
}

func run() (err error) {
	// Instance logger bridged to OTel.
	logger := otelslog.NewLogger(name)
	slog.SetDefault(logger)
	logger.Info("Starting application")

	// Set up OpenTelemetry.
	otelShutdown, err := otelsetup.Setup(context.Background(), otelsetup.Options{})
	if err != nil {
		return
	}

	defer func() { err = errors.Join(err, otelShutdown(context.Background())) }()

	// Config
	readFlags := cfgpkg.RegisterFlags()

	flag.Parse()

	cfg := readFlags()
	if cfg.ConfigFile != "" {
		if cfg, err = cfgpkg.LoadFile(cfg, cfg.ConfigFile); err != nil {
			return err
		}
	}

	// A missing template fails here, before anything listens or persists.
	svcs, err := buildServices(cfg, logger)
	if err != nil {
		return err
	}

	slog.Debug("Starting listener", slog.String("listenAddr", cfg.ListenAddr))

	listener, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		return err
	}

	// Derive a context canceled on SIGINT/SIGTERM for graceful shutdown
	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Start internal components; they will stop when sigCtx is canceled
	svcs.orchestrator.Start(sigCtx)

	slog.Debug("Starting gRPC server")

	// Serve in a goroutine so we can handle signals
	serveErr := make(chan error, 2)

	go func() { serveErr <- svcs.grpc.Serve(listener) }()

	var httpServer *http.Server
	if cfg.HTTPAddr != "" {
		httpServer = &http.Server{
			Addr:              cfg.HTTPAddr,
			Handler:           svcs.http,
			ReadHeaderTimeout: 10 * time.Second,
		}
		slog.Debug("Starting HTTP server", slog.String("httpAddr", cfg.HTTPAddr))
		go func() {
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serveErr <- err
			}
		}()
	}

	var runErr error
	select {
	case runErr = <-serveErr:
		slog.Error("server failed; shutting down", slog.String("err", runErr.Error()))
	case <-sigCtx.Done():
		slog.Info("Shutdown signal received; beginning graceful shutdown")
	}

	// Bound the shutdown with configured timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.GracefulTimeout)
	defer cancel()

	// Stop accepting new connections and allow in-flight RPCs to complete
	done := make(chan struct{})

	go func() {
		svcs.grpc.GracefulStop()
		close(done)
	}()

	select {
	case <-done:
		// graceful stop completed
	case <-shutdownCtx.Done():
		slog.Warn("Graceful stop timed out; forcing stop")
		svcs.grpc.Stop()
	}

	if httpServer != nil {
		runErr = errors.Join(runErr, httpServer.Shutdown(shutdownCtx))
	}

	// Drain the queue and stop the recorder
	return errors.Join(runErr, svcs.orchestrator.Close(shutdownCtx))
}
