package main

import (
	"context"
	"errors"
	"flag"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"companion-chat/backend/internal/grpc"
	"companion-chat/backend/internal/repository"
	"companion-chat/backend/pkg/config"
	"companion-chat/backend/pkg/di"
	"companion-chat/backend/pkg/logger"
	"companion-chat/backend/pkg/observability"
	"companion-chat/backend/pkg/router"
)

func main() {
	configPath := flag.String("config", "", "optional config file (yaml, json or toml)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.GetGlobal().LogError(err, "Failed to load configuration")
		os.Exit(1)
	}

	logConfig := logger.DefaultConfig()
	logConfig.Level = cfg.Logging.Level
	logConfig.JSON = cfg.Logging.Format != "text"

	log := logger.New(logConfig)
	logger.SetGlobal(log)

	log.Info("Starting application", "env", cfg.Server.Env, "version", os.Getenv("APP_VERSION"))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.LogError(err, "Server stopped with error")
		os.Exit(1)
	}
	log.Info("Server exited gracefully")
}

func run(ctx context.Context, cfg *config.Config, log *logger.Logger) error {
	if cfg.Observability.TracingEnabled {
		shutdownTracing, err := observability.SetupTracing(cfg.Observability.ServiceName, nil)
		if err != nil {
			return err
		}
		defer func() {
			if err := shutdownTracing(context.Background()); err != nil {
				log.LogError(err, "Failed to flush traces")
			}
		}()
	}

	db, err := config.NewDB(cfg.Database, log)
	if err != nil {
		return err
	}
	if err := repository.Migrate(db); err != nil {
		return err
	}

	container, err := di.New(ctx, cfg, db, log)
	if err != nil {
		return err
	}
	defer container.Close()

	container.Health.Start(ctx)

	r, err := router.New(container)
	if err != nil {
		return err
	}
	r.SetupRoutes()
	defer r.Close()

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           r.Engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 2)
	go func() {
		log.Info("Server starting", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var grpcServer *grpc.Server
	if cfg.Server.GRPCPort != "" {
		lis, err := net.Listen("tcp", ":"+cfg.Server.GRPCPort)
		if err != nil {
			return err
		}
		grpcServer = grpc.NewServer(container.Health, log)
		go func() {
			if err := grpcServer.Serve(ctx, lis, 15*time.Second); err != nil {
				errCh <- err
			}
		}()
	}

	select {
	case <-ctx.Done():
		log.Info("Shutting down server...")
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if grpcServer != nil {
		grpcServer.Stop()
	}
	r.Hub.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.LogError(err, "Server forced to shutdown")
		return err
	}
	return nil
}
