package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aristath/tenderwatch/internal/modules/analyzer"
)

var textMeta analyzer.TextMeta

var lotCmd = &cobra.Command{
	Use:   "lot <id>",
	Short: "Analyze one corpus lot",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := initAnalyzer(ctx); err != nil {
			return err
		}
		fa, err := container.Analyzer.AnalyzeLot(ctx, args[0])
		if err != nil {
			return err
		}
		return printJSON(stdout(), fa)
	},
}

var textCmd = &cobra.Command{
	Use:   "text <description>",
	Short: "Analyze free text as a manual lot",
	Long: `Analyze a technical specification that is not in the corpus.

Examples:
  tenderwatch text "Ноутбук Apple MacBook Pro 16, без аналогов" --category 26.20.11 --budget 1500000
  tenderwatch text "Бумага А4" --participants 1 --deadline 3`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := initAnalyzer(ctx); err != nil {
			return err
		}
		fa, err := container.Analyzer.AnalyzeText(ctx, args[0], textMeta)
		if err != nil {
			return err
		}
		return printJSON(stdout(), fa)
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Dashboard statistics over analyzed lots",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := initAnalyzer(cmd.Context()); err != nil {
			return err
		}
		return printJSON(stdout(), container.Analyzer.DashboardStats())
	},
}

var networkCmd = &cobra.Command{
	Use:   "network [bin]",
	Short: "Relationship graph for a BIN, or graph statistics without one",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := initAnalyzer(cmd.Context()); err != nil {
			return err
		}
		if len(args) == 0 {
			return printJSON(stdout(), container.Analyzer.NetworkStats())
		}
		return printJSON(stdout(), container.Analyzer.NetworkAnalysis(args[0]))
	},
}

var pricesCmd = &cobra.Command{
	Use:   "prices <category_code>",
	Short: "Unit price distribution for a category",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := initAnalyzer(cmd.Context()); err != nil {
			return err
		}
		stats, ok := container.Analyzer.CategoryPriceStats(args[0])
		if !ok {
			return fmt.Errorf("no price history for category %s", args[0])
		}
		return printJSON(stdout(), stats)
	},
}

func init() {
	f := textCmd.Flags()
	f.StringVar(&textMeta.CategoryCode, "category", "", "category code")
	f.Float64Var(&textMeta.Budget, "budget", 0, "budget in KZT")
	f.IntVar(&textMeta.ParticipantsCount, "participants", 0, "number of participants")
	f.IntVar(&textMeta.DeadlineDays, "deadline", 0, "days to submit bids")
	f.StringVar(&textMeta.CustomerBIN, "customer", "", "customer BIN")
	f.StringVar(&textMeta.WinnerBIN, "winner", "", "winner BIN")
	f.StringVar(&textMeta.TradeMethod, "method", "", "trade method")
}
