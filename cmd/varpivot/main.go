// Command varpivot filters, pivots, and merges per-family variant tables.
package main

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/rs/zerolog"
	cli "github.com/urfave/cli/v2"

	"varpivot/internal/config"
	"varpivot/internal/metrics"
	"varpivot/internal/metrics/datadog"
	"varpivot/internal/metrics/prompush"
	"varpivot/internal/pipeline"
	"varpivot/internal/pivot"
	"varpivot/internal/table"
)

var version = "0.3.0"

func main() {
	app := &cli.App{
		Name:            "varpivot",
		Usage:           "Pivot per-family variant tables and merge them across families",
		HideHelpCommand: false,
		Version:         version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Configuration file (YAML)",
			},
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "Enable debug logging",
			},
			&cli.BoolFlag{
				Name:  "json-log",
				Usage: "Emit structured JSON logs instead of console output",
			},
			&cli.StringFlag{
				Name:  "pushgateway",
				Usage: "Prometheus Pushgateway URL to push run metrics to",
			},
			&cli.StringFlag{
				Name:  "dogstatsd",
				Usage: "DogStatsD address (host:port) to send run metrics to",
			},
		},
		Before: func(c *cli.Context) error {
			return setupMetrics(c)
		},
		After: func(c *cli.Context) error {
			return metrics.Flush()
		},
		Commands: []*cli.Command{
			pivotCommand(),
			mergeCommand(),
			filterCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "varpivot:", err)
		os.Exit(1)
	}
}

func pivotCommand() *cli.Command {
	return &cli.Command{
		Name:      "pivot",
		Usage:     "Filter and pivot one or more input TSV files, one output per input",
		ArgsUsage: "FILE...",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "output-dir",
				Aliases: []string{"o"},
				Value:   ".",
				Usage:   "Directory for pivoted (and quarantined) outputs",
			},
			&cli.BoolFlag{
				Name:  "quarantine",
				Usage: "Divert uniqueness violations to a quarantine file instead of failing",
			},
			&cli.BoolFlag{
				Name:  "list-filters",
				Usage: "Print the configured row filters and exit",
			},
			&cli.BoolFlag{
				Name:  "list-columns",
				Usage: "Print the pivot identity columns and exit",
			},
		},
		Action: func(c *cli.Context) error {
			cfg, log, err := setup(c)
			if err != nil {
				return err
			}
			if c.Bool("quarantine") {
				cfg.Pivot.Quarantine = true
			}
			if c.Bool("list-filters") {
				return listFilters(cfg)
			}
			if c.Bool("list-columns") {
				return listColumns(cfg)
			}
			paths, err := inputPaths(c)
			if err != nil {
				return err
			}
			r, err := pipeline.New(cfg, log)
			if err != nil {
				return err
			}
			_, err = r.Pivot(c.Context, paths, c.String("output-dir"))
			return err
		},
	}
}

func mergeCommand() *cli.Command {
	return &cli.Command{
		Name:      "merge",
		Usage:     "Merge previously pivoted per-family TSV files into one table",
		ArgsUsage: "FILE...",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "export-tsv",
				Aliases: []string{"o"},
				Usage:   "Write the merged table to this TSV path (in addition to any configured storage)",
			},
			&cli.StringFlag{
				Name:  "mode",
				Usage: "Column selection mode: curated, all, or minimal (overrides config)",
			},
			&cli.IntFlag{
				Name:  "row-count-cutoff",
				Usage: "Drop variants contributed by more than this many families (overrides config)",
			},
		},
		Action: func(c *cli.Context) error {
			cfg, log, err := setup(c)
			if err != nil {
				return err
			}
			if m := c.String("mode"); m != "" {
				cfg.Merge.Mode = m
			}
			if c.IsSet("row-count-cutoff") {
				cfg.Merge.RowCountCutoff = c.Int("row-count-cutoff")
			}
			paths, err := inputPaths(c)
			if err != nil {
				return err
			}
			r, err := pipeline.New(cfg, log)
			if err != nil {
				return err
			}
			_, err = r.MergeFiles(c.Context, paths, c.String("export-tsv"))
			return err
		},
	}
}

func filterCommand() *cli.Command {
	return &cli.Command{
		Name:      "filter",
		Usage:     "Apply the gene/region identity filter to merged TSV files",
		ArgsUsage: "FILE...",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "gene-filter",
				Usage: "Gene filter spreadsheet or CSV/TSV with symbol and rsID columns (overrides config)",
			},
			&cli.StringFlag{
				Name:  "bed",
				Usage: "BED file of genomic regions to keep (overrides config)",
			},
			&cli.StringFlag{
				Name:    "output-dir",
				Aliases: []string{"o"},
				Usage:   "Directory for filtered outputs (overrides config)",
			},
		},
		Action: func(c *cli.Context) error {
			cfg, log, err := setup(c)
			if err != nil {
				return err
			}
			if g := c.String("gene-filter"); g != "" {
				cfg.Additional.GeneFilter = g
			}
			if b := c.String("bed"); b != "" {
				cfg.Additional.BedFile = b
			}
			if o := c.String("output-dir"); o != "" {
				cfg.Additional.OutputDir = o
			}
			paths, err := inputPaths(c)
			if err != nil {
				return err
			}
			r, err := pipeline.New(cfg, log)
			if err != nil {
				return err
			}
			return r.Filter(c.Context, paths)
		},
	}
}

// setupMetrics installs the configured metrics backend, if any. Without one
// the recording calls stay no-ops.
func setupMetrics(c *cli.Context) error {
	if url := c.String("pushgateway"); url != "" {
		b, err := prompush.NewBackend("varpivot", url)
		if err != nil {
			return err
		}
		metrics.SetBackend(b)
		return nil
	}
	if addr := c.String("dogstatsd"); addr != "" {
		b, err := datadog.NewBackend(datadog.Config{Addr: addr, Namespace: "varpivot."})
		if err != nil {
			return err
		}
		metrics.SetBackend(b)
	}
	return nil
}

// setup loads the configuration (an empty config when no file is given) and
// builds the root logger.
func setup(c *cli.Context) (*config.Config, zerolog.Logger, error) {
	level := zerolog.InfoLevel
	if c.Bool("verbose") {
		level = zerolog.DebugLevel
	}
	var log zerolog.Logger
	if c.Bool("json-log") {
		log = zerolog.New(os.Stderr).Level(level).With().Timestamp().Logger()
	} else {
		log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level).With().Timestamp().Logger()
	}

	cfg := &config.Config{}
	if path := c.String("config"); path != "" {
		var err error
		cfg, err = config.Load(path)
		if err != nil {
			return nil, log, err
		}
	}
	return cfg, log, nil
}

// inputPaths returns the positional arguments, expanding any argument that
// names a file of paths (one per line, "#" comments allowed) via an "@"
// prefix.
func inputPaths(c *cli.Context) ([]string, error) {
	args := c.Args().Slice()
	if len(args) == 0 {
		return nil, fmt.Errorf("no input files given")
	}
	var paths []string
	for _, a := range args {
		if !strings.HasPrefix(a, "@") {
			paths = append(paths, a)
			continue
		}
		raw, err := os.ReadFile(strings.TrimPrefix(a, "@"))
		if err != nil {
			return nil, fmt.Errorf("read file list: %w", err)
		}
		for _, line := range strings.Split(string(raw), "\n") {
			line = strings.TrimSpace(line)
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			paths = append(paths, line)
		}
	}
	return paths, nil
}

func listFilters(cfg *config.Config) error {
	if len(cfg.Filters) == 0 {
		fmt.Println("no row filters configured")
		return nil
	}
	cols := make([]string, 0, len(cfg.Filters))
	for col := range cfg.Filters {
		cols = append(cols, col)
	}
	sort.Strings(cols)
	for _, col := range cols {
		fmt.Printf("%s\t%s\n", col, cfg.Filters[col])
	}
	return nil
}

func listColumns(cfg *config.Config) error {
	cols := cfg.Pivot.IdentityColumns
	if len(cols) == 0 {
		cols = pivot.DefaultIdentityColumns
	}
	for _, col := range cols {
		fmt.Println(col)
	}
	fmt.Println("fallback:", strings.Join(table.GenomicKey, ", "))
	return nil
}
