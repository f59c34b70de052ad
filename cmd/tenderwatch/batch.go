package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

var (
	analyzeOut  string
	trainLabels string
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Analyze every corpus lot and store the results",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := initAnalyzer(ctx); err != nil {
			return err
		}
		report, err := container.Analyzer.AnalyzeAll(ctx)
		if err != nil {
			return err
		}
		log.Info().
			Str("run_id", report.RunID).
			Int("analyzed", report.Analyzed).
			Int("failed", report.Failed).
			Dur("duration", report.Duration).
			Msg("Analysis run finished")

		if analyzeOut == "" {
			return printJSON(stdout(), report)
		}
		f, err := os.Create(analyzeOut)
		if err != nil {
			return fmt.Errorf("failed to create report file: %w", err)
		}
		defer f.Close()
		return printJSON(f, report)
	},
}

var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Retrain the learned scorer on the current corpus",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := initAnalyzer(ctx); err != nil {
			return err
		}
		b, err := container.Analyzer.Train(ctx)
		if err != nil {
			return err
		}
		return printJSON(stdout(), map[string]interface{}{
			"run_id":       b.RunID,
			"samples":      b.Samples,
			"positives":    b.Positives,
			"label_source": b.LabelSource,
			"synthesized":  b.Synthesized,
			"location":     container.ModelStore.Location(),
		})
	},
}

var exportTrainingCmd = &cobra.Command{
	Use:   "export-training [path]",
	Short: "Write the feature matrix and labels as CSV",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := container.Analyzer.Initialize(ctx); err != nil {
			return fmt.Errorf("initialize analyzer: %w", err)
		}
		path := defaultTrainingPath()
		if len(args) == 1 {
			path = args[0]
		}
		return exportTraining(ctx, path)
	},
}

func defaultTrainingPath() string {
	return filepath.Join(cfg.ModelsDir, "training_data.csv")
}

func exportTraining(ctx context.Context, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create export directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create export file: %w", err)
	}
	defer f.Close()

	if err := container.Analyzer.ExportTrainingSet(ctx, f); err != nil {
		return err
	}
	log.Info().Str("path", path).Msg("Training data exported")
	return nil
}

func init() {
	analyzeCmd.Flags().StringVarP(&analyzeOut, "out", "o", "", "write the report to a file instead of stdout")
	trainCmd.Flags().StringVar(&trainLabels, "labels", "", "CSV of lot_id,label overriding LABELS_PATH")
}
