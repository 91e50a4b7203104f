package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/viant/afs"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/MagicManBen/CheckLoops/analyzer"
	"github.com/MagicManBen/CheckLoops/codemod"
	"github.com/MagicManBen/CheckLoops/generic"
	"github.com/MagicManBen/CheckLoops/identity"
	"github.com/MagicManBen/CheckLoops/migration"
	"github.com/MagicManBen/CheckLoops/snapshot"
)

// =============================================================================
// TABLE HALF
// =============================================================================

func runSnapshot(cmd *cobra.Command, args []string) error {
	ctx := contextOf(cmd)
	store, closeStore, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	m := snapshot.NewManager(store, afs.New(), localPath(cfg.Snapshot.Dir), logger)
	snap := m.Snapshot(ctx, cfg.SnapshotTables())
	location, err := m.Save(ctx, snap)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "snapshot written to %s (%s)\n", location, snap.Tally)
	return stageResult("snapshot", snap.Tally, snap.Err)
}

// =============================================================================
// REWRITE HALF
// =============================================================================

func runScan(cmd *cobra.Command, args []string) error {
	ctx := contextOf(cmd)
	report, err := analyzer.New(afs.New(), logger).Scan(ctx, tree(), cfg.Tables.Deprecated)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	counts := report.CountByName()
	for _, name := range cfg.Tables.Deprecated {
		c := counts[name]
		if c.Hard+c.Descriptive == 0 {
			continue
		}
		fmt.Fprintf(out, "%-28s %4d hard %4d descriptive\n", name, c.Hard, c.Descriptive)
	}
	fmt.Fprintf(out, "%d file(s) reference deprecated tables, %d scanned (%s)\n", len(report.Files()), report.FilesScanned, report.Tally)
	if reportOut != "" {
		if err := writeJSON(ctx, reportOut, report); err != nil {
			return err
		}
	}
	return stageResult("scan", report.Tally, report.Err)
}

func loadRuleSet(ctx context.Context, fs afs.Service) (*codemod.RuleSet, error) {
	if cfg.Codemod.RulesFile != "" {
		return codemod.LoadRuleFile(ctx, fs, localPath(cfg.Codemod.RulesFile))
	}
	return codemod.NewRuleSet(cfg.Codemod.Version, codemod.DefaultRuleSpecs(cfg.Tables.Canonical, cfg.Tables.Deprecated))
}

func runRewrite(cmd *cobra.Command, args []string) error {
	ctx := contextOf(cmd)
	fs := afs.New()
	rs, err := loadRuleSet(ctx, fs)
	if err != nil {
		return err
	}
	files, err := tree().Files(ctx, fs)
	if err != nil {
		return &generic.FileIOError{Path: cfg.Tree.Root, Op: "walk", Err: err}
	}
	out := cmd.OutOrStdout()

	if dryRun {
		var tally generic.Tally
		for _, path := range files {
			content, err := fs.DownloadWithURL(ctx, path)
			if err != nil {
				tally.Fail()
				logger.Warn("rewrite: cannot read", zap.String("file", path), zap.Error(err))
				continue
			}
			_, changes := codemod.ApplyContent(string(content), rs)
			if len(changes) == 0 {
				tally.Skip()
				continue
			}
			tally.Succeed()
			for _, c := range changes {
				fmt.Fprintf(out, "%s: %s x%d\n", path, c.Rule, c.Count)
			}
		}
		fmt.Fprintf(out, "dry run: %s\n", tally)
		return stageResult("rewrite", tally, nil)
	}

	backups, ledger, closeState, err := openBookkeeping(fs)
	if err != nil {
		return err
	}
	defer closeState()

	result := codemod.NewEngine(fs, backups, ledger, logger).Apply(ctx, files, rs)
	fmt.Fprintf(out, "run %s: %d file(s) updated, %d change(s), %d backup(s) (%s)\n",
		result.RunID, len(result.Updated), result.TotalChanges(), result.BackupsCreated, result.Tally)
	if cfg.Codemod.Report != "" {
		if err := writeJSON(ctx, cfg.Codemod.Report, result); err != nil {
			return err
		}
	}
	if err := stageResult("rewrite", result.Tally, result.Err); err != nil {
		return err
	}
	return verify(cmd, cfg.Verify.Strict)
}

func runVerify(cmd *cobra.Command, args []string) error {
	return verify(cmd, strict || cfg.Verify.Strict)
}

func verify(cmd *cobra.Command, strict bool) error {
	ctx := contextOf(cmd)
	v, err := analyzer.New(afs.New(), logger).Verify(ctx, tree(), cfg.Tables.Deprecated, strict)
	if err != nil {
		return err
	}
	if cfg.Verify.Report != "" {
		if err := writeJSON(ctx, cfg.Verify.Report, v); err != nil {
			return err
		}
	}
	out := cmd.OutOrStdout()
	for _, ref := range v.Residual {
		fmt.Fprintf(out, "%s:%d:%d %s (%s)\n", ref.File, ref.Line, ref.Column, ref.Name, ref.Kind)
	}
	if v.Pass {
		fmt.Fprintln(out, "verification passed")
		return nil
	}
	return v.Err()
}

func runRestore(cmd *cobra.Command, args []string) error {
	ctx := contextOf(cmd)
	fs := afs.New()
	backups, ledger, closeState, err := openBookkeeping(fs)
	if err != nil {
		return err
	}
	defer closeState()

	engine := codemod.NewEngine(fs, backups, ledger, logger)
	var (
		tally generic.Tally
		errs  error
	)
	for _, arg := range args {
		record, err := engine.Restore(ctx, localPath(arg))
		if err != nil {
			tally.Fail()
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", arg, err))
			continue
		}
		tally.Succeed()
		fmt.Fprintf(cmd.OutOrStdout(), "%s restored from run %s\n", arg, record.RunID)
	}
	return stageResult("restore", tally, errs)
}

// =============================================================================
// LEAVE MIGRATION HALF
// =============================================================================

func runResolve(cmd *cobra.Command, args []string) error {
	ctx := contextOf(cmd)
	wb, err := readWorkbook(ctx)
	if err != nil {
		return err
	}
	store, closeStore, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	accounts, err := identity.LoadAccounts(ctx, store, cfg.Identity.Accounts)
	if err != nil {
		return err
	}
	mapping := identity.NewResolver(accounts).Map(wb.StaffNames(), wb.HistoryNames(), cfg.Identity.EmailDomain)

	// Confirmations made in an earlier review survive a re-run.
	if previous, err := readMapping(ctx); err == nil {
		for _, e := range previous.Entries() {
			if !e.Confirmed {
				continue
			}
			if _, err := mapping.Confirm(e.LegacyName, e.CanonicalID); err != nil {
				logger.Warn("resolve: dropping stale confirmation", zap.String("legacy_name", e.LegacyName), zap.Error(err))
			}
		}
	}
	if err := saveMapping(ctx, mapping); err != nil {
		return err
	}

	tally := mapping.Tally()
	fmt.Fprintf(cmd.OutOrStdout(), "%d name(s) resolved against %d account(s): %d pending review (%s)\n",
		len(mapping.Entries()), len(accounts), len(mapping.Pending()), cfg.Identity.MappingFile)
	return stageResult("resolve", tally, nil)
}

// plan normalizes the workbook against the saved mapping and emits statements.
func plan(ctx context.Context) (*migration.Normalized, []migration.Statement, error) {
	wb, err := readWorkbook(ctx)
	if err != nil {
		return nil, nil, err
	}
	mapping, err := readMapping(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("read mapping (run resolve first): %w", err)
	}
	normalized := orchestrator().Normalize(wb, mapping)
	return normalized, migration.NewEmitter(cfg.Migration.Targets).Emit(normalized.Entities), nil
}

func runNormalize(cmd *cobra.Command, args []string) error {
	ctx := contextOf(cmd)
	normalized, statements, err := plan(ctx)
	if err != nil {
		return err
	}
	var script bytes.Buffer
	if err := migration.WriteSQL(&script, statements, now()); err != nil {
		return err
	}
	if err := upload(ctx, cfg.Migration.Script, script.Bytes()); err != nil {
		return err
	}
	if err := writeJSON(ctx, cfg.Migration.Statements, statements); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for _, w := range normalized.Warnings {
		fmt.Fprintf(out, "line %d %s (%s): %s\n", w.Line, w.LegacyName, w.Kind, w.Message)
	}
	blocked := 0
	for _, s := range statements {
		if s.Blocked {
			blocked++
		}
	}
	fmt.Fprintf(out, "%d entities, %d statement(s), %d blocked, %d warning(s) (%s)\n",
		len(normalized.Entities), len(statements), blocked, len(normalized.Warnings), normalized.Tally)
	return stageResult("normalize", normalized.Tally, normalized.Err)
}

func runImport(cmd *cobra.Command, args []string) error {
	ctx := contextOf(cmd)
	_, statements, err := plan(ctx)
	if err != nil {
		return err
	}
	store, closeStore, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	result := migration.NewImporter(store, logger).Import(ctx, statements)
	out := cmd.OutOrStdout()
	for _, g := range result.PartialGroups {
		fmt.Fprintf(out, "PARTIAL group %s: header written, days incomplete\n", g)
	}
	fmt.Fprintf(out, "import: %s\n", result.Tally)
	return stageResult("import", result.Tally, result.Err)
}

// =============================================================================
// HELPERS
// =============================================================================

func tree() analyzer.Tree {
	t := cfg.Tree
	t.Root = localPath(t.Root)
	return t
}

func orchestrator() *migration.Orchestrator {
	parser := migration.DefaultParser()
	parser.DefaultDuration = migration.Duration{Hours: cfg.Migration.DefaultHours, Minutes: cfg.Migration.DefaultMinutes}
	parser.DefaultSession = migration.Session{Count: decimalOf(cfg.Migration.DefaultSessions)}
	return migration.NewOrchestrator(migration.NewClassifier(cfg.Migration.ClinicalRoles), parser, cfg.Migration.Year, logger)
}

// stageResult logs the tally and turns failed units into errStageFailed.
func stageResult(stage string, tally generic.Tally, errs error) error {
	logger.Info(stage+": done", zap.Stringer("tally", tally))
	if tally.OK() {
		return nil
	}
	if errs != nil {
		return fmt.Errorf("%s: %w: %w", stage, errStageFailed, errs)
	}
	return fmt.Errorf("%s: %w", stage, errStageFailed)
}

func writeJSON(ctx context.Context, location string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return upload(ctx, location, data)
}

func contextOf(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

