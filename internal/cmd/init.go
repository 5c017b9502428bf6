package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/overseerhq/overseer/internal/config"
)

var (
	initSessionID string
	initForce     bool
)

var initCmd = &cobra.Command{
	Use:   "init <requirements...>",
	Short: "Initialize a new workflow run",
	Long: `Create the durable state document for a new run, seeded with the planning
stage in progress. Fails if a run already exists in the directory; use
--force to overwrite it.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runInit,
}

func init() {
	initCmd.Flags().StringVar(&initSessionID, "session-id", "", "explicit session ID (default: generated)")
	initCmd.Flags().BoolVar(&initForce, "force", false, "overwrite an existing run")
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	cfg := config.Get()
	requirements := strings.Join(args, " ")

	log, err := buildLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = log.Close() }()

	sm := stateManager(cfg)

	var initialize = sm.Initialize
	if initForce {
		initialize = sm.ForceInitialize
	}

	ws, err := initialize(initSessionID, requirements)
	if err != nil {
		return err
	}

	log.WithRun(ws.SessionID).Info("workflow initialized", "state_path", sm.Path())
	fmt.Fprintf(cmd.OutOrStdout(), "Initialized run %s\nState document: %s\n", ws.SessionID, sm.Path())
	return nil
}
