package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/example/projectcontrols/internal/config"
	"github.com/example/projectcontrols/internal/endpoint"
	"github.com/example/projectcontrols/internal/logger"
	"github.com/example/projectcontrols/internal/observability"
	"github.com/example/projectcontrols/internal/service"
	"github.com/example/projectcontrols/internal/storage/sqlite"
	grpcTransport "github.com/example/projectcontrols/internal/transport/grpc"
	"github.com/example/projectcontrols/internal/web"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "projectcontrols-server",
		Short: "Serve the project controls gRPC and HTTP APIs",
		Long: `Serve the project controls gRPC and HTTP APIs.

Configuration is read from the YAML file named by --config (or EVM_CONFIG),
then overridden by EVM_* environment variables.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			log := logger.New(logger.Config{Level: cfg.Log.Level, Pretty: cfg.Log.Pretty})
			if err := run(cfg, log); err != nil {
				log.Error().Err(err).Msg("server failed")
				return err
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&configPath, "config", os.Getenv("EVM_CONFIG"), "path to YAML config file")
	return cmd
}

func run(cfg config.Config, log zerolog.Logger) error {
	// Create metrics infrastructure
	metrics := observability.NewMetrics()

	// Initialize storage with metrics
	log.Info().Str("path", cfg.SQLitePath).Msg("initializing SQLite storage")
	store, err := sqlite.NewWithMetrics(cfg.SQLitePath, metrics)
	if err != nil {
		return fmt.Errorf("failed to create storage: %w", err)
	}
	defer store.Close()

	// Run migrations
	log.Info().Msg("running database migrations")
	if err := store.Migrate(context.Background()); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	detector, err := service.NewConflictDetector(cfg.Version.ConflictDetection)
	if err != nil {
		return err
	}

	// Create services
	opts := []service.Option{
		service.WithLogger(log),
		service.WithMetrics(metrics),
		service.WithMaxRetries(cfg.Version.MaxRetries),
		service.WithConflictDetector(detector),
	}
	versions := service.NewVersionService(store, opts...)
	branches := service.NewBranchService(store, versions, opts...)
	workflow := service.NewWorkflowService(store, branches, opts...)
	filter := service.NewFilter(store)
	composer := service.NewViewComposer(store)

	// Create gRPC server
	server := grpcTransport.NewServer(
		endpoint.MakeEndpoints(endpoint.Services{
			Filter:   filter,
			Branches: branches,
			Composer: composer,
		}),
		grpcTransport.WithLogger(logger.Component(log, "grpc")),
	)

	// Start web server
	webServer := web.NewServer(fmt.Sprintf(":%d", cfg.HTTPPort), web.Services{
		Versions: versions,
		Filter:   filter,
		Composer: composer,
		Branches: branches,
		Workflow: workflow,
	},
		web.WithMetrics(metrics),
		web.WithLogger(logger.Component(log, "http")),
	)
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Int("port", cfg.HTTPPort).Msg("starting web server")
		return webServer.Start()
	})
	g.Go(func() error {
		addr := fmt.Sprintf(":%d", cfg.GRPCPort)
		log.Info().Str("addr", addr).Msg("starting projectcontrols server")
		return server.Serve(addr)
	})

	// Handle graceful shutdown
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := webServer.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("web server shutdown")
		}
		server.GracefulStop()
		return nil
	})

	return g.Wait()
}
