package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/overseerhq/overseer/internal/config"
)

var cleanupDryRun bool

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Terminate leftover helper processes",
	Long: `Find helper processes matching the configured keywords (browser automation,
MCP servers, headless Chrome) and terminate them by PID. With --dry-run the
matches are counted but nothing is killed.`,
	RunE: runCleanup,
}

func init() {
	cleanupCmd.Flags().BoolVarP(&cleanupDryRun, "dry-run", "n", false, "count matches without killing")
	rootCmd.AddCommand(cleanupCmd)
}

func runCleanup(cmd *cobra.Command, args []string) error {
	cfg := config.Get()
	log, err := buildLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = log.Close() }()

	cleaner := buildCleaner(cfg, log)

	out := cmd.OutOrStdout()

	if cleanupDryRun {
		n, err := cleaner.CountProcesses(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%d helper process(es) would be terminated.\n", n)
		return nil
	}

	result, err := cleaner.Cleanup(cmd.Context())
	fmt.Fprintf(out, "Found %d, killed %d helper process(es).\n", result.ProcessesFound, result.ProcessesKilled)
	for _, pid := range result.PIDsKilled {
		fmt.Fprintf(out, "  killed pid %d\n", pid)
	}
	for _, msg := range result.Errors {
		fmt.Fprintf(out, "  error: %s\n", msg)
	}
	return err
}
