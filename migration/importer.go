package migration

import (
	"context"
	"fmt"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/MagicManBen/CheckLoops/generic"
)

// =============================================================================
// IMPORTER - Writes statements through the record store
// =============================================================================

// Importer writes emitted statements. A history group (header plus its
// days) is one unit: inside a transaction when the store supports it,
// otherwise header first and then days, with a partially written group
// reported as such.
type Importer struct {
	store  generic.RecordStore
	logger *zap.Logger
}

func NewImporter(store generic.RecordStore, logger *zap.Logger) *Importer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Importer{store: store, logger: logger}
}

// ImportResult tallies statements. A blocked statement is skipped.
type ImportResult struct {
	Tally         generic.Tally `json:"tally"`
	FailedGroups  []string      `json:"failed_groups,omitempty"`
	PartialGroups []string      `json:"partial_groups,omitempty"`

	// Err aggregates write failures.
	Err error `json:"-"`
}

// Import writes statements in order. A failing unit never stops the batch.
func (im *Importer) Import(ctx context.Context, statements []Statement) *ImportResult {
	result := &ImportResult{}
	for _, unit := range units(statements) {
		if unit[0].Blocked {
			for range unit {
				result.Tally.Skip()
			}
			im.logger.Warn("import: blocked", zap.String("identity", unit[0].LegacyName), zap.String("reason", unit[0].Reason))
			continue
		}
		written, err := im.writeUnit(ctx, unit)
		for i := 0; i < len(unit); i++ {
			if i < written {
				result.Tally.Succeed()
			} else {
				result.Tally.Fail()
			}
		}
		if err == nil {
			continue
		}
		group := unit[0].Group
		if group == "" {
			group = unit[0].LegacyName
		}
		if written > 0 {
			result.PartialGroups = append(result.PartialGroups, group)
		} else {
			result.FailedGroups = append(result.FailedGroups, group)
		}
		result.Err = multierr.Append(result.Err, fmt.Errorf("%s: %w", unit[0].LegacyName, err))
		im.logger.Warn("import: unit failed",
			zap.String("identity", unit[0].LegacyName),
			zap.String("group", group),
			zap.Int("written", written),
			zap.Int("statements", len(unit)),
			zap.Error(err))
	}
	im.logger.Info("import: done", zap.Stringer("tally", result.Tally))
	return result
}

// writeUnit returns how many statements of the unit are durably written.
func (im *Importer) writeUnit(ctx context.Context, unit []Statement) (int, error) {
	if tx, ok := im.store.(generic.TxRecordStore); ok && len(unit) > 1 {
		err := tx.WithTx(ctx, func(store generic.RecordStore) error {
			_, err := upsertAll(ctx, store, unit)
			return err
		})
		if err != nil {
			return 0, err
		}
		return len(unit), nil
	}
	return upsertAll(ctx, im.store, unit)
}

func upsertAll(ctx context.Context, store generic.RecordStore, unit []Statement) (int, error) {
	for i, s := range unit {
		if err := store.Upsert(ctx, s.Table, []generic.Row{s.Row}, s.ConflictKeys); err != nil {
			return i, err
		}
	}
	return len(unit), nil
}

// units splits statements into write units: each history group is one
// unit, every other statement is its own.
func units(statements []Statement) [][]Statement {
	var (
		out   [][]Statement
		index = map[string]int{}
	)
	for _, s := range statements {
		if s.Group == "" {
			out = append(out, []Statement{s})
			continue
		}
		i, ok := index[s.Group]
		if !ok {
			i = len(out)
			index[s.Group] = i
			out = append(out, nil)
		}
		out[i] = append(out[i], s)
	}
	return out
}
