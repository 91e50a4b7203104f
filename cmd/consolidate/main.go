/*
main.go - Command surface of the consolidation toolkit

PURPOSE:
  One sub-command per stage. Every stage reads its fixed inputs from the
  YAML configuration, reports a tally, and exits non-zero when any unit
  failed so that scripts can stop before the next stage.

STAGES:
  snapshot   Back up every tracked table to a timestamped JSON document
  scan       Inventory references to deprecated tables
  rewrite    Apply the rule table to the tree, then verify
  verify     Re-scan and fail on residual references
  restore    Put the latest backup of files back
  resolve    Map spreadsheet names to canonical accounts (mapping CSV)
  normalize  Parse the spreadsheet and write the SQL script + statements
  import     Write unblocked statements through the record store
  serve      Review API (mapping confirmation, reports, import plan)

GLOBAL FLAGS:
  --config   YAML configuration (defaults apply when omitted)
  --verbose  Debug logging

EXIT CODES:
  0  Every unit succeeded (skipped units are not failures)
  1  Any failure, including configuration errors

ENVIRONMENT:
  The record-store key is read from the variable named by
  store.api_key_env (SUPABASE_SERVICE_ROLE_KEY by default).

EXAMPLES:
  consolidate snapshot --config consolidate.yaml
  consolidate rewrite --dry-run
  consolidate resolve && consolidate normalize
  consolidate serve --addr :8080

SEE ALSO:
  - config/config.go: Configuration
  - stages.go: Stage implementations
  - wiring.go: Record store selection and artifact I/O
  - serve.go: Review API server
*/
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/MagicManBen/CheckLoops/config"
)

var (
	// Global flags
	configPath string
	verbose    bool

	// Loaded in PersistentPreRunE
	cfg    *config.Config
	logger *zap.Logger
)

// errStageFailed marks a stage that ran to completion with failed units.
var errStageFailed = errors.New("stage reported failures")

var rootCmd = &cobra.Command{
	Use:   "consolidate",
	Short: "Consolidate per-user tables and migrate legacy leave records",
	Long: `consolidate folds the redundant per-user tables into master_users,
rewrites every call-site in the source tree that used them, and migrates the
leave spreadsheet (identities, entitlements, weekly patterns, history) into the
canonical schema.

Stages are independent and resumable; run them in order:
  snapshot -> scan -> rewrite -> verify
  resolve -> normalize -> import`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		lc := zap.NewProductionConfig()
		if verbose {
			lc.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		if logger, err = lc.Build(); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		cfg, err = config.Load(cmd.Context(), configPath)
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Back up the canonical, deprecated and extra tables",
	RunE:  runSnapshot,
}

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Report references to deprecated tables in the source tree",
	RunE:  runScan,
}

var rewriteCmd = &cobra.Command{
	Use:   "rewrite",
	Short: "Rewrite deprecated table and column references, then verify",
	RunE:  runRewrite,
}

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Fail when the tree still references deprecated tables",
	RunE:  runVerify,
}

var restoreCmd = &cobra.Command{
	Use:   "restore [file...]",
	Short: "Restore files from their most recent backup",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runRestore,
}

var resolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Map spreadsheet names to canonical accounts",
	RunE:  runResolve,
}

var normalizeCmd = &cobra.Command{
	Use:   "normalize",
	Short: "Parse the spreadsheet and write the import script",
	RunE:  runNormalize,
}

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Write unblocked statements to the record store",
	RunE:  runImport,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the review API",
	RunE:  runServe,
}

var (
	dryRun      bool
	strict      bool
	reportOut   string
	serveAddr   string
	verifyEvery string
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML configuration file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	scanCmd.Flags().StringVarP(&reportOut, "out", "o", "", "Write the JSON report here")
	rewriteCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Report changes without writing files")
	verifyCmd.Flags().BoolVar(&strict, "strict", false, "Count descriptive references as residue")
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (overrides server.addr)")
	serveCmd.Flags().StringVar(&verifyEvery, "verify-every", "10m", "Background verification interval (0 disables)")

	rootCmd.AddCommand(
		snapshotCmd,
		scanCmd,
		rewriteCmd,
		verifyCmd,
		restoreCmd,
		resolveCmd,
		normalizeCmd,
		importCmd,
		serveCmd,
	)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
