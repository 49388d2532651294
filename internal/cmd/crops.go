package cmd

import (
	"errors"
	"fmt"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/blockcheck/internal/observability"
	"github.com/3leaps/blockcheck/pkg/cropdb"
)

var cropsCmd = &cobra.Command{
	Use:   "crops",
	Short: "Manage the annotated crop catalog",
	Long: `Manage the SQLite catalog of annotated crops.

The catalog records, for each crop, its purpose (validation or training) and
the label ids present and annotated in it. setup label-crops reads it to map
a setup's labels onto validation crops.

Examples:
  blockcheck crops import crops.yaml
  blockcheck crops list --purpose validation
  blockcheck crops list --db /tmp/crops.db`,
}

var cropsImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import a YAML or JSON crop catalog",
	Args:  cobra.ExactArgs(1),
	RunE:  runCropsImport,
}

var cropsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List catalogued crops as JSON",
	Args:  cobra.NoArgs,
	RunE:  runCropsList,
}

var (
	cropsDBPath  string
	cropsPurpose string
)

func init() {
	rootCmd.AddCommand(cropsCmd)
	cropsCmd.AddCommand(cropsImportCmd, cropsListCmd)

	cropsCmd.PersistentFlags().StringVar(&cropsDBPath, "db", "", "catalog database path (default from crops.db_path)")
	cropsListCmd.Flags().StringVar(&cropsPurpose, "purpose", "", "only list crops with this purpose (validation|training)")
}

func runCropsImport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg := *currentConfig()
	if cropsDBPath != "" {
		cfg.Crops.DBPath = cropsDBPath
		cfg.Crops.URL = ""
	}

	db, err := openCropDB(ctx, &cfg)
	if err != nil {
		return exitError(foundry.ExitFileWriteError, "Failed to open crop catalog", err)
	}
	defer func() { _ = db.Close() }()

	n, err := cropdb.ImportFile(ctx, db, args[0])
	if err != nil {
		if errors.Is(err, cropdb.ErrInvalidCatalog) {
			return exitError(foundry.ExitInvalidArgument, "Invalid crop catalog", err)
		}
		return exitError(foundry.ExitFileReadError, "Failed to import crop catalog", err)
	}

	observability.CLILogger.Info("Imported crops", zap.String("file", args[0]), zap.Int("crops", n))
	_, _ = fmt.Fprintln(cmd.OutOrStdout(), n)
	return nil
}

func runCropsList(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	switch cropsPurpose {
	case "", cropdb.PurposeValidation, cropdb.PurposeTraining:
	default:
		return exitError(foundry.ExitInvalidArgument, "Invalid --purpose value",
			fmt.Errorf("purpose must be %s or %s, got %q", cropdb.PurposeValidation, cropdb.PurposeTraining, cropsPurpose))
	}

	cfg := *currentConfig()
	if cropsDBPath != "" {
		cfg.Crops.DBPath = cropsDBPath
		cfg.Crops.URL = ""
	}
	db, err := openCropDB(ctx, &cfg)
	if err != nil {
		return exitError(foundry.ExitFileReadError, "Failed to open crop catalog", err)
	}
	defer func() { _ = db.Close() }()

	crops, err := cropdb.ListCrops(ctx, db, cropsPurpose)
	if err != nil {
		return exitError(foundry.ExitFileReadError, "Failed to read crop catalog", err)
	}
	if crops == nil {
		crops = []cropdb.Crop{}
	}
	return writeJSON(cmd.OutOrStdout(), crops)
}
