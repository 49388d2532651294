// Package cmd implements the blockcheck command line.
package cmd

import (
	"context"
	"fmt"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/3leaps/blockcheck/internal/config"
	apperrors "github.com/3leaps/blockcheck/internal/errors"
	"github.com/3leaps/blockcheck/internal/observability"
	"github.com/3leaps/blockcheck/internal/server/handlers"
)

var versionInfo = struct {
	Version   string
	Commit    string
	BuildDate string
}{
	Version:   "dev",
	Commit:    "unknown",
	BuildDate: "unknown",
}

var (
	cfgFile    string
	logLevel   string
	logProfile string
	verbose    bool

	appConfig      *config.Config
	configFileUsed string
)

var rootCmd = &cobra.Command{
	Use:   "blockcheck",
	Short: "Verify completeness of block-partitioned inference runs",
	Long: `blockcheck decides whether a distributed inference run has finished.

Each job writes a block manifest (list_gpu_<job>.json) into the output N5
container and appends finished blocks to a per-iteration progress log
(list_gpu_<job>_<iteration>_processed.txt). A run is complete when every
manifest block appears in its job's log.

Output roots are local paths or s3://bucket/prefix/container.n5 URIs.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: initConfig,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// ExecuteContext runs the root command with ctx.
func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

// SetVersionInfo records build metadata for `version` and the HTTP API.
func SetVersionInfo(version, commit, buildDate string) {
	versionInfo.Version = version
	versionInfo.Commit = commit
	versionInfo.BuildDate = buildDate
	handlers.SetVersionInfo(version, commit, buildDate)
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default: blockcheck.yaml in . or the user config dir)")
	pf.StringVar(&logLevel, "log-level", "", "log level (debug|info|warn|error)")
	pf.StringVar(&logProfile, "log-profile", "", "log profile (structured|console)")
	pf.BoolVarP(&verbose, "verbose", "v", false, "debug logging to stderr")
}

func initConfig(cmd *cobra.Command, args []string) error {
	observability.InitCLILogger(config.AppName, verbose)

	// Fresh per invocation; repeated Execute calls must not see an earlier --config.
	v := viper.New()
	if err := config.Prepare(v, cfgFile); err != nil {
		return exitError(foundry.ExitFileReadError, "Failed to read config", err)
	}
	pf := cmd.Root().PersistentFlags()
	_ = v.BindPFlag("logging.level", pf.Lookup("log-level"))
	_ = v.BindPFlag("logging.profile", pf.Lookup("log-profile"))
	if verbose {
		v.Set("logging.level", "debug")
	}
	configFileUsed = v.ConfigFileUsed()

	cfg, err := config.FromViper(v)
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid configuration", err)
	}
	appConfig = cfg

	if err := observability.Configure(config.AppName, cfg.Logging.Level, cfg.Logging.Profile); err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid logging configuration", err)
	}
	observability.CLILogger.Debug("Configuration loaded",
		zap.String("config_file", configFileUsed),
		zap.String("training_version", cfg.Setup.TrainingVersion),
		zap.Int("concurrency", cfg.Check.Concurrency))
	return nil
}

// currentConfig returns the loaded configuration, falling back to defaults
// for code paths that run without the persistent pre-run.
func currentConfig() *config.Config {
	if appConfig != nil {
		return appConfig
	}
	v := viper.New()
	config.SetDefaults(v)
	cfg, err := config.FromViper(v)
	if err != nil {
		return &config.Config{}
	}
	return cfg
}

// exitError logs msg and wraps err with a process exit code.
func exitError[C ~int](code C, msg string, err error) error {
	if err != nil {
		observability.CLILogger.Debug(msg, zap.Error(err))
	}
	return apperrors.NewExitError(code, msg, err)
}

// printVerdict writes the 1/0 verdict to stdout.
func printVerdict(cmd *cobra.Command, complete bool) {
	v := 0
	if complete {
		v = 1
	}
	_, _ = fmt.Fprintln(cmd.OutOrStdout(), v)
}
