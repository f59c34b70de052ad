package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/aristath/tenderwatch/internal/config"
	"github.com/aristath/tenderwatch/internal/di"
	"github.com/aristath/tenderwatch/pkg/logger"
)

var (
	// Version is set at build time.
	Version = "0.1.0"

	verbose bool

	cfg       *config.Config
	log       zerolog.Logger
	container *di.Container
)

var rootCmd = &cobra.Command{
	Use:   "tenderwatch",
	Short: "Fraud-risk scoring for goszakup procurement lots",
	Long: `tenderwatch scores public procurement lots for fraud risk.

Each lot is checked by the rule engine, compared with similar lots, scored by
the learned model and placed in the customer/supplier graph. The signals are
fused into one 0-100 score with a Russian-language explanation.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "help" || cmd.Name() == "version" {
			return nil
		}

		var err error
		cfg, err = config.Load()
		if err != nil {
			return err
		}
		if trainLabels != "" {
			cfg.LabelsPath = trainLabels
		}

		level := cfg.LogLevel
		if verbose {
			level = "debug"
		}
		log = logger.New(logger.Config{Level: level, Pretty: cfg.LogPretty})
		logger.SetGlobalLogger(log)

		container, err = di.Wire(cmd.Context(), cfg, log)
		if err != nil {
			return fmt.Errorf("wire: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if container != nil {
			if err := container.Close(); err != nil {
				log.Warn().Err(err).Msg("Failed to close databases")
			}
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	rootCmd.AddCommand(lotCmd)
	rootCmd.AddCommand(textCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(networkCmd)
	rootCmd.AddCommand(pricesCmd)
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(trainCmd)
	rootCmd.AddCommand(exportTrainingCmd)
	rootCmd.AddCommand(workerCmd)
	rootCmd.AddCommand(fetchCmd)
}

// initAnalyzer loads the corpus and prepares every signal
func initAnalyzer(ctx context.Context) error {
	if err := container.Analyzer.Initialize(ctx); err != nil {
		return fmt.Errorf("initialize analyzer: %w", err)
	}
	if cfg.ExportTrain {
		if err := exportTraining(ctx, defaultTrainingPath()); err != nil {
			log.Warn().Err(err).Msg("Failed to export training data")
		}
	}
	return nil
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

func stdout() io.Writer { return os.Stdout }
