package cmd

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/blockcheck/internal/config"
	"github.com/3leaps/blockcheck/internal/observability"
	"github.com/3leaps/blockcheck/pkg/cropdb"
	"github.com/3leaps/blockcheck/pkg/setup"
)

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Inspect training setups",
	Long: `Locate and inspect training setups.

A setup is found under the first search root (setup.search_roots) whose
directory holds a configuration document (setup.config_names). Roots are path
templates with {training_version} and {setup} placeholders.

Examples:
  blockcheck setup show setup01
  blockcheck setup labels setup01 --training-version v0003.2
  blockcheck setup list --root '/scratch/{training_version}/setups/{setup}'`,
}

var setupShowCmd = &cobra.Command{
	Use:   "show <setup>",
	Short: "Print a setup's location and configuration as JSON",
	Args:  cobra.ExactArgs(1),
	RunE:  runSetupShow,
}

var setupLabelsCmd = &cobra.Command{
	Use:   "labels <setup>",
	Short: "Print a setup's labels, one per line",
	Args:  cobra.ExactArgs(1),
	RunE:  runSetupLabels,
}

var setupRawDatasetsCmd = &cobra.Command{
	Use:   "raw-datasets <setup>",
	Short: "Print the raw datasets a setup predicts on",
	Args:  cobra.ExactArgs(1),
	RunE:  runSetupRawDatasets,
}

var setupIs8nmCmd = &cobra.Command{
	Use:   "is-8nm <setup>",
	Short: "Print 1 if the setup consumes 8nm input, 0 otherwise",
	Args:  cobra.ExactArgs(1),
	RunE:  runSetupIs8nm,
}

var setupListCmd = &cobra.Command{
	Use:   "list",
	Short: "List setups reachable under the search roots",
	Args:  cobra.NoArgs,
	RunE:  runSetupList,
}

var setupLabelCropsCmd = &cobra.Command{
	Use:   "label-crops <setup>",
	Short: "Map each label to the validation crops annotating it",
	Args:  cobra.ExactArgs(1),
	RunE:  runSetupLabelCrops,
}

var (
	setupTrainingVersion string
	setupRoots           []string
)

func init() {
	rootCmd.AddCommand(setupCmd)
	setupCmd.AddCommand(setupShowCmd, setupLabelsCmd, setupRawDatasetsCmd, setupIs8nmCmd, setupListCmd, setupLabelCropsCmd)

	pf := setupCmd.PersistentFlags()
	pf.StringVar(&setupTrainingVersion, "training-version", "", "training version (default from setup.training_version)")
	pf.StringSliceVar(&setupRoots, "root", nil, "search root template, repeatable (default from setup.search_roots)")
}

func newSetupResolver(cfg *config.Config) (*setup.Resolver, string) {
	roots := cfg.Setup.SearchRoots
	if len(setupRoots) > 0 {
		roots = setupRoots
	}
	version := cfg.Setup.TrainingVersion
	if setupTrainingVersion != "" {
		version = setupTrainingVersion
	}
	opts := []setup.Option{setup.WithLogger(observability.CLILogger)}
	if len(cfg.Setup.ConfigNames) > 0 {
		opts = append(opts, setup.WithConfigNames(cfg.Setup.ConfigNames...))
	}
	return setup.NewResolver(roots, opts...), version
}

// setupError maps resolver failures to exit codes.
func setupError(err error) error {
	switch {
	case errors.Is(err, setup.ErrSetupNotFound):
		return exitError(foundry.ExitFileNotFound, "Setup not found", err)
	case errors.Is(err, setup.ErrInvalidConfig):
		return exitError(foundry.ExitInvalidArgument, "Invalid setup configuration", err)
	default:
		return exitError(foundry.ExitFileReadError, "Failed to load setup", err)
	}
}

func runSetupShow(cmd *cobra.Command, args []string) error {
	r, version := newSetupResolver(currentConfig())
	loc, err := r.Find(args[0], version)
	if err != nil {
		return setupError(err)
	}
	cfg, err := r.Load(args[0], version)
	if err != nil {
		return setupError(err)
	}
	return writeJSON(cmd.OutOrStdout(), struct {
		Location    *setup.Location `json:"location"`
		Config      *setup.Config   `json:"config"`
		Is8nm       bool            `json:"is_8nm"`
		RawDatasets []string        `json:"raw_datasets"`
	}{loc, cfg, cfg.Is8nm(), cfg.RawDatasets()})
}

func runSetupLabels(cmd *cobra.Command, args []string) error {
	r, version := newSetupResolver(currentConfig())
	labels, err := r.Labels(args[0], version)
	if err != nil {
		return setupError(err)
	}
	for _, l := range labels {
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), l.Name)
	}
	return nil
}

func runSetupRawDatasets(cmd *cobra.Command, args []string) error {
	r, version := newSetupResolver(currentConfig())
	datasets, err := r.RawDatasets(args[0], version)
	if err != nil {
		return setupError(err)
	}
	for _, ds := range datasets {
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), ds)
	}
	return nil
}

func runSetupIs8nm(cmd *cobra.Command, args []string) error {
	r, version := newSetupResolver(currentConfig())
	is8nm, err := r.Is8nm(args[0], version)
	if err != nil {
		return setupError(err)
	}
	printVerdict(cmd, is8nm)
	return nil
}

func runSetupList(cmd *cobra.Command, args []string) error {
	r, version := newSetupResolver(currentConfig())
	locs, err := r.List(version)
	if err != nil {
		return exitError(foundry.ExitFileReadError, "Failed to list setups", err)
	}
	for _, loc := range locs {
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", loc.Setup, loc.Dir)
	}
	return nil
}

func runSetupLabelCrops(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg := currentConfig()
	r, version := newSetupResolver(cfg)

	labels, err := r.Labels(args[0], version)
	if err != nil {
		return setupError(err)
	}

	db, err := openCropDB(ctx, cfg)
	if err != nil {
		return exitError(foundry.ExitFileReadError, "Failed to open crop catalog", err)
	}
	defer func() { _ = db.Close() }()

	crops, err := cropdb.ValidationCrops(ctx, db)
	if err != nil {
		return exitError(foundry.ExitFileReadError, "Failed to read crop catalog", err)
	}

	mapping, unmatched := cropdb.LabelToCrops(labels, crops)
	for _, name := range unmatched {
		observability.CLILogger.Warn("Label not annotated in any validation crop", zap.String("label", name))
	}
	return writeJSON(cmd.OutOrStdout(), struct {
		Setup     string           `json:"setup"`
		Crops     map[string][]int `json:"crops"`
		Unmatched []string         `json:"unmatched"`
	}{args[0], mapping, nonNil(unmatched)})
}

func openCropDB(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	db, err := cropdb.Open(ctx, cropdb.Config{
		Path:      cfg.Crops.DBPath,
		URL:       cfg.Crops.URL,
		AuthToken: cfg.Crops.AuthToken,
	})
	if err != nil {
		return nil, err
	}
	if err := cropdb.Migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return exitError(foundry.ExitFileWriteError, "Failed to write output", err)
	}
	return nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
