package cmd

import (
	"context"
	"fmt"
	"runtime"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/fulmenhq/gofulmen/crucible"
	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/blockcheck/internal/config"
	"github.com/3leaps/blockcheck/internal/observability"
	"github.com/3leaps/blockcheck/pkg/cropdb"
)

var (
	doctorProvider string
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run diagnostic checks",
	Long: `Run diagnostic checks on the environment blockcheck runs in: toolchain,
configuration, setup search roots and the crop catalog.

Examples:
  blockcheck doctor                # Full environment check
  blockcheck doctor --provider s3  # Also check AWS credentials`,
	Args: cobra.NoArgs,
	RunE: runDoctor,
}

func init() {
	rootCmd.AddCommand(doctorCmd)
	doctorCmd.Flags().StringVar(&doctorProvider, "provider", "", "Run provider-specific checks (s3)")
}

// doctorCheck reports one diagnostic line.
type doctorCheck struct {
	num, total int
}

func (c *doctorCheck) ok(what, detail string, fields ...zap.Field) {
	observability.CLILogger.Info(fmt.Sprintf("[%d/%d] Checking %s... ✅ %s", c.num, c.total, what, detail), fields...)
	c.num++
}

func (c *doctorCheck) warn(what, detail string, fields ...zap.Field) {
	observability.CLILogger.Warn(fmt.Sprintf("[%d/%d] Checking %s... ⚠️  %s", c.num, c.total, what, detail), fields...)
	c.num++
}

func (c *doctorCheck) fail(what, detail string, fields ...zap.Field) {
	observability.CLILogger.Error(fmt.Sprintf("[%d/%d] Checking %s... ❌ %s", c.num, c.total, what, detail), fields...)
	c.num++
}

func runDoctor(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	cfg := currentConfig()

	observability.CLILogger.Info("=== blockcheck doctor ===")
	observability.CLILogger.Info("Running diagnostic checks...")

	check := &doctorCheck{num: 1, total: 6}
	if doctorProvider == "s3" {
		check.total = 7
	}
	allChecks := true

	goVersion := runtime.Version()
	check.ok("Go runtime", fmt.Sprintf("%s %s/%s", goVersion, runtime.GOOS, runtime.GOARCH),
		zap.String("go_version", goVersion))

	v := crucible.GetVersion()
	if v.Gofulmen != "" {
		check.ok("Gofulmen", "v"+v.Gofulmen, zap.String("gofulmen_version", v.Gofulmen), zap.String("crucible_version", v.Crucible))
	} else {
		check.warn("Gofulmen", "version unknown")
	}

	if used := configFileUsed; used != "" {
		check.ok("configuration", used, zap.String("config_file", used))
	} else {
		check.ok("configuration", "defaults and "+config.EnvPrefix+"_* environment")
	}

	r, version := newSetupResolver(cfg)
	locs, err := r.List(version)
	switch {
	case err != nil:
		check.fail("setup search roots", "cannot list setups", zap.Error(err))
		allChecks = false
	case len(locs) == 0:
		check.warn("setup search roots", fmt.Sprintf("no setups for training version %s", version),
			zap.Strings("roots", r.Roots()))
	default:
		check.ok("setup search roots", fmt.Sprintf("%d setups for training version %s", len(locs), version))
	}

	if n, err := countCrops(ctx, cfg); err != nil {
		check.fail("crop catalog", "cannot open "+cfg.Crops.DBPath, zap.Error(err))
		allChecks = false
	} else {
		check.ok("crop catalog", fmt.Sprintf("%d crops in %s", n, cfg.Crops.DBPath))
	}

	check.ok("log settings", fmt.Sprintf("%s/%s", cfg.Logging.Level, cfg.Logging.Profile))

	if doctorProvider == "s3" && !runS3Checks(ctx, check) {
		allChecks = false
	}

	if !allChecks {
		observability.CLILogger.Warn("⚠️  Some checks failed. Review the output above for details.")
		return exitError(foundry.ExitExternalServiceUnavailable, "doctor checks failed", nil)
	}
	observability.CLILogger.Info("✅ All checks passed.")
	return nil
}

func countCrops(ctx context.Context, cfg *config.Config) (int, error) {
	db, err := openCropDB(ctx, cfg)
	if err != nil {
		return 0, err
	}
	defer func() { _ = db.Close() }()
	crops, err := cropdb.ListCrops(ctx, db, "")
	if err != nil {
		return 0, err
	}
	return len(crops), nil
}

// runS3Checks verifies that AWS credentials resolve.
func runS3Checks(ctx context.Context, check *doctorCheck) bool {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		check.fail("AWS credentials", "cannot load AWS config", zap.Error(err))
		printAWSCredentialsHelp()
		return false
	}
	creds, err := cfg.Credentials.Retrieve(ctx)
	if err != nil {
		check.fail("AWS credentials", "cannot retrieve credentials", zap.Error(err))
		printAWSCredentialsHelp()
		return false
	}
	source := creds.Source
	if source == "" {
		source = "unknown"
	}
	check.ok("AWS credentials", "found via "+source,
		zap.String("access_key", maskAccessKey(creds.AccessKeyID)),
		zap.String("credential_source", source))
	return true
}

// maskAccessKey masks all but the last 4 characters of an access key.
func maskAccessKey(key string) string {
	if len(key) <= 4 {
		return "****"
	}
	return "****" + key[len(key)-4:]
}

func printAWSCredentialsHelp() {
	observability.CLILogger.Info("To configure AWS credentials:")
	observability.CLILogger.Info("  1. Set AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY, or")
	observability.CLILogger.Info("  2. Run 'aws configure' to set up a profile, or")
	observability.CLILogger.Info("  3. Use an IAM role when running on AWS infrastructure")
	observability.CLILogger.Info("For S3-compatible storage (MinIO, Wasabi), also set s3.endpoint or BLOCKCHECK_S3_ENDPOINT.")
}
