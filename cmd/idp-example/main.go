package main

import (
	"context"
	"errors"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/xzegga/ait-saas-sso/pkg/api"
	"github.com/xzegga/ait-saas-sso/pkg/config"
	"github.com/xzegga/ait-saas-sso/pkg/idp"
	"github.com/xzegga/ait-saas-sso/pkg/observability"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		observability.NewLogger(observability.ErrorLevel, os.Stderr).WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}
	logger := cfg.NewLogger(os.Stdout).Component("idp-example")

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	ctx := context.Background()
	provider, err := idp.NewProvider(ctx, cfg, idp.WithLogger(logger), idp.WithRegistry(registry))
	if err != nil {
		logger.WithError(err).Error("Failed to initialize identity provider")
		os.Exit(1)
	}
	if err := provider.ValidationError(); err != nil {
		logger.WithError(err).Warn("Client secret rejected; credential forms are disabled")
	}

	server, err := api.NewServer(provider, api.Options{})
	if err != nil {
		logger.WithError(err).Error("Failed to create server")
		provider.Close(ctx)
		os.Exit(1)
	}

	httpServer := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      server,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	limiterCtx, stopLimiter := context.WithCancel(ctx)
	limiterDone := server.RateLimiter().StartCleanup(limiterCtx)

	shutdown := observability.NewShutdownManager(logger, httpServer, cfg.Server.ShutdownTimeout)
	shutdown.RegisterShutdownFunc(provider.Close)
	shutdown.RegisterShutdownFunc(func(context.Context) error { return server.Close() })
	shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
		stopLimiter()
		select {
		case <-limiterDone:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})

	go func() {
		logger.WithField("addr", httpServer.Addr).Info("Starting example server")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Error("Server failed")
			os.Exit(1)
		}
	}()

	if err := shutdown.WaitForShutdown(ctx); err != nil {
		logger.WithError(err).Error("Shutdown completed with errors")
		os.Exit(1)
	}
	logger.Info("Server stopped")
}
