// Package pipeline wires the processing stages end to end: read, row
// filtering, pivot, family tagging, merge, identity filtering, and the
// persistence and export sinks. Each entry point corresponds to one CLI
// subcommand and owns the logging around its stages.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"varpivot/internal/config"
	"varpivot/internal/family"
	"varpivot/internal/merge"
	"varpivot/internal/metrics"
	"varpivot/internal/pivot"
	"varpivot/internal/rowfilter"
	"varpivot/internal/storage"
	"varpivot/internal/table"
	"varpivot/internal/tsv"
)

// Runner carries the per-run state shared by the entry points.
type Runner struct {
	Cfg *config.Config
	Log zerolog.Logger

	// RunID tags log lines and output attributes so concurrent runs over
	// the same output directory stay distinguishable.
	RunID string
}

// New builds a Runner, validating the configuration up front.
func New(cfg *config.Config, log zerolog.Logger) (*Runner, error) {
	issues := config.Validate(cfg)
	for _, is := range issues {
		if is.Severity == config.SeverityWarning {
			log.Warn().Str("path", is.Path).Msg(is.Message)
		}
	}
	if err := config.FirstError(issues); err != nil {
		return nil, err
	}
	return &Runner{Cfg: cfg, Log: log, RunID: uuid.NewString()}, nil
}

// PivotResult is the per-file outcome of the pivot stage.
type PivotResult struct {
	Tagged      *family.Tagged
	Quarantined *table.Table
	Source      string
}

// PivotFile runs one input file through filtering and the pivot engine.
// position is the file's index in the run, used as a tagging fallback when
// the family column is absent.
func (r *Runner) PivotFile(path string, position int) (res *PivotResult, err error) {
	log := r.Log.With().Str("run_id", r.RunID).Str("file", path).Logger()
	start := time.Now()
	defer func() { metrics.RecordStage(r.RunID, "pivot", err, time.Since(start)) }()

	t, err := tsv.Read(path)
	if err != nil {
		return nil, err
	}
	log.Info().Int("rows", len(t.Rows)).Int("columns", len(t.Columns)).Msg("loaded input")
	metrics.RecordRows(r.RunID, "loaded", int64(len(t.Rows)))

	preds, err := r.Cfg.Predicates()
	if err != nil {
		return nil, err
	}
	if len(preds) > 0 {
		t, err = rowfilter.Apply(t, preds, log)
		if err != nil {
			return nil, err
		}
		log.Info().Int("rows", len(t.Rows)).Msg("row filters applied")
	}
	if len(r.Cfg.DropColumns) > 0 {
		t = t.DropColumns(r.Cfg.DropColumns)
	}

	pv, err := pivot.Pivot(t, pivot.Options{
		IdentityColumns: r.Cfg.Pivot.IdentityColumns,
		SourceName:      filepath.Base(path),
		Quarantine:      r.Cfg.Pivot.Quarantine,
		Log:             log,
	})
	if err != nil {
		return nil, err
	}
	metrics.RecordRows(r.RunID, "pivoted", int64(len(pv.Table.Rows)))

	tagged, err := family.Tag(pv.Table, position, log)
	if err != nil {
		return nil, err
	}
	log.Info().
		Str("family", tagged.ID).
		Int("rows", len(tagged.Table.Rows)).
		Dur("elapsed", time.Since(start)).
		Msg("pivot complete")

	return &PivotResult{Tagged: tagged, Quarantined: pv.Quarantined, Source: path}, nil
}

// Pivot processes every input file and writes the per-file outputs. Output
// paths derive from each input's base name under outDir.
func (r *Runner) Pivot(ctx context.Context, paths []string, outDir string) ([]*family.Tagged, error) {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("pipeline: create output dir: %w", err)
	}
	tagged := make([]*family.Tagged, 0, len(paths))
	for i, path := range paths {
		res, err := r.PivotFile(path, i)
		if err != nil {
			return nil, err
		}
		out := filepath.Join(outDir, outputName(path, "pivoted"))
		if err := r.writeTSV(out, res.Tagged.Table); err != nil {
			return nil, err
		}
		if res.Quarantined != nil {
			qout := filepath.Join(outDir, outputName(path, "quarantined"))
			if err := r.writeTSV(qout, res.Quarantined); err != nil {
				return nil, err
			}
			metrics.RecordRows(r.RunID, "quarantined", int64(len(res.Quarantined.Rows)))
			r.Log.Warn().
				Str("file", path).
				Int("rows", len(res.Quarantined.Rows)).
				Str("output", qout).
				Msg("quarantined rows written")
		}
		tagged = append(tagged, res.Tagged)
	}
	metrics.RecordFiles(r.RunID, int64(len(paths)))
	return tagged, nil
}

// Merge combines previously pivoted tables and delivers the result to the
// configured sinks. When exportPath is non-empty the merged table is also
// written as TSV.
func (r *Runner) Merge(ctx context.Context, tagged []*family.Tagged, exportPath string) (merged *table.Table, err error) {
	log := r.Log.With().Str("run_id", r.RunID).Logger()
	start := time.Now()
	defer func() { metrics.RecordStage(r.RunID, "merge", err, time.Since(start)) }()

	identity, err := r.identityFilter()
	if err != nil {
		return nil, err
	}

	merged, err = merge.Merge(ctx, tagged, merge.Options{
		Mode:           merge.Mode(r.Cfg.Merge.Mode),
		RowCountCutoff: r.Cfg.Merge.RowCountCutoff,
		Identity:       identity,
		Workers:        r.Cfg.Merge.Workers,
		Occurrence:     r.Cfg.Merge.Occurrence,
		Log:            log,
	})
	if err != nil {
		return nil, err
	}
	merged.SetAttr("run_id", r.RunID)
	metrics.RecordRows(r.RunID, "merged", int64(len(merged.Rows)))
	log.Info().Int("rows", len(merged.Rows)).Int("columns", len(merged.Columns)).Msg("merge complete")

	if exportPath != "" {
		if err := r.writeTSV(exportPath, merged); err != nil {
			return nil, err
		}
		log.Info().Str("output", exportPath).Msg("merged table exported")
	}
	if err := r.persist(ctx, merged); err != nil {
		return nil, err
	}
	return merged, nil
}

// MergeFiles is the file-based variant of Merge: it re-tags already pivoted
// TSVs and merges them.
func (r *Runner) MergeFiles(ctx context.Context, paths []string, exportPath string) (*table.Table, error) {
	tagged := make([]*family.Tagged, 0, len(paths))
	for i, path := range paths {
		t, err := tsv.Read(path)
		if err != nil {
			return nil, err
		}
		tg, err := family.Tag(t, i, r.Log)
		if err != nil {
			return nil, fmt.Errorf("pipeline: tag %s: %w", path, err)
		}
		tagged = append(tagged, tg)
	}
	return r.Merge(ctx, tagged, exportPath)
}

// Filter runs the standalone identity-filter pass over merged outputs,
// mirroring the additional_filtering configuration block.
func (r *Runner) Filter(ctx context.Context, paths []string) (err error) {
	log := r.Log.With().Str("run_id", r.RunID).Logger()
	start := time.Now()
	defer func() { metrics.RecordStage(r.RunID, "filter", err, time.Since(start)) }()

	identity, err := r.identityFilter()
	if err != nil {
		return err
	}
	if identity == nil || identity.Empty() {
		return fmt.Errorf("pipeline: no gene filter or BED file configured; nothing to filter on")
	}

	outDir := r.Cfg.Additional.OutputDir
	if outDir == "" {
		outDir = "."
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("pipeline: create output dir: %w", err)
	}

	for _, path := range paths {
		t, err := tsv.Read(path)
		if err != nil {
			return err
		}
		before := len(t.Rows)
		t = identity.Apply(t, log)
		if len(r.Cfg.Additional.DropColumns) > 0 {
			t = t.DropColumns(r.Cfg.Additional.DropColumns)
		}
		out := filepath.Join(outDir, outputName(path, "filtered"))
		if err := tsv.Write(out, t, tsv.WriteOptions{PriorityColumns: r.Cfg.Additional.ColumnOrderStart}); err != nil {
			return err
		}
		log.Info().
			Str("file", path).
			Int("rows_in", before).
			Int("rows_out", len(t.Rows)).
			Str("output", out).
			Msg("identity filter applied")
	}
	return nil
}

// identityFilter builds the inclusion filter from the configured sources,
// or returns nil when none are configured.
func (r *Runner) identityFilter() (*rowfilter.IdentityFilter, error) {
	gene := r.Cfg.Additional.GeneFilter
	bed := r.Cfg.Additional.BedFile
	if gene == "" && bed == "" {
		return nil, nil
	}
	f := &rowfilter.IdentityFilter{}
	if gene != "" {
		if err := rowfilter.LoadGeneFilter(f, gene); err != nil {
			return nil, err
		}
	}
	if bed != "" {
		if err := rowfilter.LoadBED(f, bed); err != nil {
			return nil, err
		}
	}
	r.Log.Info().
		Int("symbols", len(f.Symbols)).
		Int("rsids", len(f.RsIDs)).
		Int("regions", f.Regions()).
		Msg("identity filter loaded")
	return f, nil
}

// persist writes the table to the configured storage backend, if any.
func (r *Runner) persist(ctx context.Context, t *table.Table) error {
	sc := r.Cfg.Storage
	if sc.DSN == "" {
		return nil
	}
	name := sc.Table
	if name == "" {
		name = "merged_variants"
	}
	store, err := storage.Open(ctx, sc.Driver, sc.DSN)
	if err != nil {
		return err
	}
	defer store.Close()
	if err := store.Save(ctx, name, t); err != nil {
		return err
	}
	r.Log.Info().Str("driver", sc.Driver).Str("table", name).Int("rows", len(t.Rows)).Msg("table persisted")
	return nil
}

func (r *Runner) writeTSV(path string, t *table.Table) error {
	return tsv.Write(path, t, tsv.WriteOptions{PriorityColumns: r.Cfg.Additional.ColumnOrderStart})
}

// outputName derives "<base>_<suffix>.tsv" from an input path, stripping
// known tabular extensions.
func outputName(path, suffix string) string {
	base := filepath.Base(path)
	for _, ext := range []string{".tsv", ".csv", ".txt"} {
		if strings.HasSuffix(strings.ToLower(base), ext) {
			base = base[:len(base)-len(ext)]
			break
		}
	}
	return base + "_" + suffix + ".tsv"
}
