package cmd

import (
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/overseerhq/overseer/internal/config"
	"github.com/overseerhq/overseer/internal/handoff"
)

var (
	handoffCheckOnly   bool
	handoffWorkingRoot string
)

var handoffCmd = &cobra.Command{
	Use:   "handoff <from-stage>",
	Short: "Validate a stage transition and prepare the next stage's task",
	Long: `Check that the given stage completed and produced a structurally valid
artifact. When the handoff is clean, a YAML task descriptor for the next
stage's worker is written into the run directory. Use --check to validate
without writing anything.`,
	Args: cobra.ExactArgs(1),
	RunE: runHandoff,
}

func init() {
	handoffCmd.Flags().BoolVar(&handoffCheckOnly, "check", false, "validate only, write no task file")
	handoffCmd.Flags().StringVar(&handoffWorkingRoot, "working-root", "", "working root for the next stage (default: run directory)")
	rootCmd.AddCommand(handoffCmd)
}

func runHandoff(cmd *cobra.Command, args []string) error {
	fromStage, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("from-stage must be a stage number: %w", err)
	}

	cfg := config.Get()
	log, err := buildLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = log.Close() }()

	coordinator := handoff.NewCoordinator(stateManager(cfg), log)

	result, err := coordinator.CoordinateHandoff(fromStage)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if !result.OK {
		fmt.Fprintf(out, "Handoff from stage %d blocked:\n", fromStage)
		for _, violation := range result.Errors {
			fmt.Fprintf(out, "  - %s\n", violation)
		}
		return fmt.Errorf("handoff blocked by %d violation(s)", len(result.Errors))
	}

	fmt.Fprintf(out, "Handoff from stage %d validated (artifact %s).\n", fromStage, result.Artifact)
	if handoffCheckOnly {
		return nil
	}

	workingRoot := handoffWorkingRoot
	if workingRoot == "" {
		workingRoot = cfg.State.Dir
	}

	desc := handoff.PrepareTask(handoff.TaskConfig{
		FromStage:          fromStage,
		WorkingRoot:        workingRoot,
		ArtifactPath:       result.ArtifactPath,
		MaxSessions:        cfg.Session.MaxSessions,
		MaxIterations:      cfg.Session.MaxIterations,
		CheckpointInterval: cfg.Session.CheckpointInterval,
	})

	taskPath := filepath.Join(cfg.State.Dir, cfg.Handoff.TaskFileName)
	if err := handoff.WriteTaskFile(desc, taskPath); err != nil {
		return err
	}

	fmt.Fprintf(out, "Task descriptor written to %s\n", taskPath)
	return nil
}
