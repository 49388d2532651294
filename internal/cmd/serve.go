package cmd

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/blockcheck/internal/observability"
	"github.com/3leaps/blockcheck/internal/server"
	"github.com/3leaps/blockcheck/internal/server/handlers"
	"github.com/3leaps/blockcheck/pkg/completeness"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve completeness verdicts over HTTP",
	Long: `Start an HTTP server answering completeness queries for one output root.

Routes:
  GET /health, /health/live, /health/ready, /health/startup
  GET /version
  GET /runs/{iteration}               full run report
  GET /runs/{iteration}/complete      run verdict
  GET /runs/{iteration}/jobs          discovered job ids
  GET /runs/{iteration}/jobs/{job}    one job's status

Examples:
  blockcheck serve --output-root setup01/cell/cell_it10000.n5
  blockcheck serve --output-root s3://bucket/run.n5 --port 9000`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

var (
	serveRoot string
	serveHost string
	servePort int
)

func init() {
	rootCmd.AddCommand(serveCmd)

	f := serveCmd.Flags()
	f.StringVar(&serveRoot, "output-root", "", "output N5 container (path or s3:// URI)")
	f.StringVar(&serveHost, "host", "", "listen host (default from server.host)")
	f.IntVar(&servePort, "port", 0, "listen port (default from server.port)")
	_ = serveCmd.MarkFlagRequired("output-root")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := currentConfig()
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	root, err := ParseRoot(serveRoot)
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid output root", err)
	}
	store, err := openStore(ctx, root, cfg)
	if err != nil {
		return exitError(foundry.ExitExternalServiceUnavailable, "Failed to open output root", err)
	}
	defer func() { _ = store.Close() }()

	host, port := cfg.Server.Host, cfg.Server.Port
	if serveHost != "" {
		host = serveHost
	}
	if cmd.Flags().Changed("port") {
		port = servePort
	}

	logger := observability.CLILogger
	health := handlers.InitHealthManager(versionInfo.Version)
	health.RegisterChecker("output_root", handlers.RootChecker{Store: store})

	v := completeness.New(store, completeness.Config{
		Concurrency: cfg.Check.Concurrency,
		RateLimit:   cfg.Check.RateLimit,
		MaxMissing:  cfg.Check.MaxMissing,
	}, completeness.WithLogger(logger))

	srv := server.New(host, port,
		server.WithLogger(logger),
		server.WithHealthManager(health),
		server.WithRuns(handlers.NewRunsHandler(v, root.String(), logger)),
		server.WithTimeouts(server.Timeouts{
			Read:  cfg.Server.ReadTimeout,
			Write: cfg.Server.WriteTimeout,
			Idle:  cfg.Server.IdleTimeout,
		}))

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err := <-errCh:
		if err != nil {
			return exitError(foundry.ExitExternalServiceUnavailable, "HTTP server failed", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return exitError(foundry.ExitExternalServiceUnavailable, "HTTP server shutdown failed", err)
	}
	if err := <-errCh; err != nil {
		logger.Warn("HTTP server exited with error", zap.Error(err))
	}
	logger.Info("HTTP server stopped", zap.String("root", root.String()))
	if errors.Is(parent.Err(), context.Canceled) {
		return exitError(foundry.ExitSignalInt, "serve cancelled", fmt.Errorf("parent context cancelled"))
	}
	return nil
}
