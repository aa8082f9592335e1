package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tideway/tideway/pkg/clients"
	"github.com/tideway/tideway/pkg/config"
	"github.com/tideway/tideway/pkg/connector/providers/generic"
	"github.com/tideway/tideway/pkg/connector/registry"
	"github.com/tideway/tideway/pkg/logger"
	"github.com/tideway/tideway/pkg/server"
)

func newServeCommand() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the webhook ingress and management endpoints",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "tideway.yaml", "path to the configuration file")
	return cmd
}

func runServe(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if err := logger.Init(logger.Config{
		Level:       cfg.Logging.Level,
		Development: cfg.Logging.Development,
		Encoding:    cfg.Logging.Encoding,
	}); err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	log := logger.Get()
	pool := clients.NewClientPool(log)
	defer pool.Close()

	reg := registry.New(log)
	for id, settings := range cfg.Providers {
		err := generic.Register(reg, pool, generic.Config{
			Provider:       id,
			Name:           settings.Name,
			ListPath:       settings.ListPath,
			HealthPath:     settings.HealthPath,
			Scopes:         settings.Scopes,
			ProviderConfig: settings.ProviderConfig(id),
			OAuth:          settings.OAuthConfig(id),
		})
		if err != nil {
			return err
		}
	}
	log.Info("connectors registered", zap.Strings("providers", reg.List()))

	srv := server.New(server.Config{
		Listen:          cfg.Server.Listen,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}, reg, log)
	srv.Handle("/metrics", promhttp.Handler())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Run() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		log.Info("shutting down")
		return srv.Shutdown()
	}
}
