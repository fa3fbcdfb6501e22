package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"poem-annotator/internal/annotate"
	"poem-annotator/internal/app"
	"poem-annotator/internal/config"
	"poem-annotator/internal/logger"
	"poem-annotator/internal/poem"
	"poem-annotator/internal/store"
)

const defaultOutput = "generated_poem_contents.json"

type runFlags struct {
	input  string
	output string
	format string
	save   bool
}

// buildDeps is replaced in tests.
var buildDeps = func(ctx context.Context, need app.Needs) (app.Deps, error) {
	cfg := config.Load()
	if os.Getenv("LOG_FORMAT") == "" {
		cfg.LogFormat = "text"
	}
	return app.BuildFrom(ctx, cfg, logger.NewWithWriter(os.Stderr, cfg.LogLevel, cfg.LogFormat), need)
}

func newRunCmd() *cobra.Command {
	var f runFlags
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Annotate a batch of poems and write the results",
		Long: `Annotate every poem in the input file, in order, and write the results.

Input is a JSON or YAML list of poems with id, title, author, dynasty and
content. Without --input two sample poems are annotated.

Examples:
  annotate run
  annotate run --input poems.json
  annotate run --input poems.yaml --output out.yaml --save`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runAnnotate(cmd, f)
		},
	}
	cmd.Flags().StringVarP(&f.input, "input", "i", "", "poem file (.json, .yaml or .yml)")
	cmd.Flags().StringVarP(&f.output, "output", "o", defaultOutput, "result file")
	cmd.Flags().StringVar(&f.format, "format", "", "output format: json or yaml (default: from --output extension)")
	cmd.Flags().BoolVar(&f.save, "save", false, "also persist results to the configured store")
	return cmd
}

func runAnnotate(cmd *cobra.Command, f runFlags) error {
	ctx := cmd.Context()

	format := poem.FormatFromPath(f.output)
	if f.format != "" {
		var err error
		if format, err = poem.ParseFormat(f.format); err != nil {
			return err
		}
	}

	records := poem.Samples()
	if f.input != "" {
		var err error
		if records, err = poem.Load(f.input); err != nil {
			return err
		}
	}

	deps, err := buildDeps(ctx, app.Needs{Backend: true, Store: f.save})
	if err != nil {
		return err
	}
	defer deps.Close()
	if f.save && deps.Store == nil {
		return errors.New("--save requires STORE_PROVIDER=postgres")
	}
	if f.input == "" {
		deps.Log.Info("no input file; annotating sample poems", "count", len(records))
	}

	results, report := deps.Orchestrator().Run(ctx, records)

	if err := poem.WriteFile(f.output, results, format); err != nil {
		return fmt.Errorf("write results: %w", err)
	}
	switch {
	case f.save && report.Mode == annotate.ModeMock:
		deps.Log.Warn("backend unavailable; placeholder annotations not saved")
	case f.save:
		if err := save(ctx, deps.Store, len(records), results); err != nil {
			return err
		}
	}

	printSummary(cmd.OutOrStdout(), report, f.output)
	if report.Cancelled {
		return fmt.Errorf("run interrupted: %w", context.Cause(ctx))
	}
	return nil
}

func save(ctx context.Context, st store.Store, total int, results []poem.Result) error {
	batch, err := st.CreateBatch(ctx, total)
	if err != nil {
		return fmt.Errorf("create batch: %w", err)
	}
	if err := st.SaveResults(ctx, batch.ID, results); err != nil {
		_ = st.UpdateBatchStatus(ctx, batch.ID, store.StatusFailed)
		return fmt.Errorf("save results: %w", err)
	}
	return st.UpdateBatchStatus(ctx, batch.ID, store.StatusReady)
}
