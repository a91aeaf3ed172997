package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/gtriggiano/ip-lookup-service/pkg/metrics"
	"github.com/gtriggiano/ip-lookup-service/pkg/provider"
	"github.com/gtriggiano/ip-lookup-service/pkg/server"
	"github.com/gtriggiano/ip-lookup-service/pkg/snapshot"
	"github.com/gtriggiano/ip-lookup-service/pkg/store"
)

func init() {
	rootCmd.AddCommand(startCmd)
}

var startCmd = &cobra.Command{
	Use:           "start",
	Short:         "Start the IP lookup HTTP API",
	SilenceErrors: true,
	RunE: func(_ *cobra.Command, _ []string) error {
		cfg, baseLogger, err := bootstrap()
		if err != nil {
			return err
		}
		defer func() { _ = baseLogger.Sync() }()
		logger := baseLogger.With(zap.String("component", "cli"))

		runCtx, cancelRunCtx := context.WithCancel(context.Background())
		defer cancelRunCtx()

		registry, err := provider.BuildRegistry(
			baseLogger.With(zap.String("component", "provider")),
			provider.NewHTTPClient(cfg.Provider.ProviderTimeout()),
			cfg.Providers,
		)
		if err != nil {
			logger.Error("could not build provider registry", zap.Error(err))
			return err
		}
		if _, err := registry.Get(cfg.Provider.Active); err != nil {
			logger.Warn("active provider is not registered, /ip will answer 404",
				zap.String("active", cfg.Provider.Active),
				zap.Strings("registered", registry.Keys()),
			)
		}

		historyStore, err := store.New(cfg.Database, baseLogger.With(zap.String("component", "store")))
		if err != nil {
			logger.Error("could not create history store", zap.Error(err))
			return err
		}
		defer func() { _ = historyStore.Close() }()

		metricsServer := metrics.NewServer(cfg.Metrics, baseLogger.With(zap.String("component", "metrics-server")), historyStore)
		metricsServer.SetReady(false)

		api := server.NewAPI(server.Dependencies{
			Providers:       registry,
			ActiveProvider:  cfg.Provider.Active,
			Store:           historyStore,
			Snapshots:       snapshot.NewWriter(cfg.Snapshots.Directory),
			Instrumentation: metricsServer.Instrumentation(),
			Logger:          baseLogger.With(zap.String("component", "api")),
		})

		schemaCtx, cancelSchema := context.WithTimeout(runCtx, cfg.Database.DatabaseConnectionTimeout())
		if err := api.EnsureSchema(schemaCtx); err != nil {
			logger.Error("could not initialise history store, continuing in degraded mode",
				zap.String("database", historyStore.Kind()),
				zap.Error(err),
			)
		}
		cancelSchema()

		apiServer := server.NewServer(
			cfg.Server,
			api.Routes(),
			cfg.Shutdown.ShutdownTimeout(),
			baseLogger.With(zap.String("component", "http-server")),
		)

		serversGroup, serversCtx := errgroup.WithContext(runCtx)

		serversGroup.Go(func() error {
			return metricsServer.Start(serversCtx)
		})

		serversGroup.Go(func() error {
			return apiServer.Start(serversCtx, func() { metricsServer.SetReady(true) })
		})

		logger.Info("service started",
			zap.String("provider", cfg.Provider.Active),
			zap.String("database", historyStore.Kind()),
			zap.String("snapshots", cfg.Snapshots.Directory),
		)

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
		defer signal.Stop(sigCh)

		done := make(chan struct{})
		defer close(done)

		go func() {
			select {
			case <-sigCh:
				logger.Info("shutdown signal received")
				metricsServer.SetReady(false)
				cancelRunCtx()
				timeout := cfg.Shutdown.ShutdownTimeout()
				timer := time.NewTimer(timeout)
				defer timer.Stop()
				select {
				case <-done:
				case <-timer.C:
					logger.Error("shutdown timed out", zap.String("timeout", timeout.String()))
					os.Exit(1)
				}
			case <-done:
				return
			}
		}()

		// serversCtx is always cancelled once Wait returns; only a signal cancels runCtx.
		if err := serversGroup.Wait(); err != nil && runCtx.Err() == nil {
			logger.Error("server exited with error", zap.Error(err))
			return err
		}
		return nil
	},
}
