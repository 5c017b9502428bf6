package cmd

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/overseerhq/overseer/internal/config"
	"github.com/overseerhq/overseer/internal/learning"
)

var recommendRecord bool

var recommendCmd = &cobra.Command{
	Use:   "recommend",
	Short: "Derive configuration recommendations from the latest completed run",
	Long: `Read the most recent completion record from the learning logs and print the
tuner's advice. Recommendations are advisory; nothing is applied
automatically.`,
	RunE: runRecommend,
}

func init() {
	recommendCmd.Flags().BoolVar(&recommendRecord, "record", false, "append the recommendations to the learning log")
	rootCmd.AddCommand(recommendCmd)
}

func runRecommend(cmd *cobra.Command, args []string) error {
	cfg := config.Get()
	log, err := buildLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = log.Close() }()

	recorder := learning.NewRecorder(cfg.LearningDir(), log)

	completion, err := recorder.LatestCompletion()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if completion == nil {
		fmt.Fprintln(out, "No completed runs recorded yet.")
		return nil
	}

	recs := learning.NewTuner().Recommendations(*completion)
	if len(recs) == 0 {
		fmt.Fprintf(out, "Run %s looks healthy; no adjustments recommended.\n", completion.RunID)
		return nil
	}

	paramStyle := lipgloss.NewStyle().Bold(true)
	fmt.Fprintf(out, "Recommendations from run %s:\n", completion.RunID)
	for _, rec := range recs {
		fmt.Fprintf(out, "  %s: %s → %s\n    %s\n",
			paramStyle.Render(rec.Parameter), rec.CurrentValue, rec.RecommendedValue, rec.Reason)
	}

	if recommendRecord {
		if !cfg.Learning.Enabled {
			fmt.Fprintln(out, "Learning capture is disabled; recommendations not recorded.")
			return nil
		}
		if err := recorder.CaptureRecommendations(completion.RunID, recs); err != nil {
			return err
		}
		fmt.Fprintln(out, "Recommendations recorded.")
	}
	return nil
}
