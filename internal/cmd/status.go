package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/overseerhq/overseer/internal/config"
	"github.com/overseerhq/overseer/internal/errors"
	"github.com/overseerhq/overseer/internal/state"
)

var statusWatch bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the current run's progress",
	Long: `Display the workflow state document as a stage tree. With --watch the
view re-renders whenever the state document changes on disk.`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().BoolVarP(&statusWatch, "watch", "w", false, "re-render on state changes")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg := config.Get()
	sm := stateManager(cfg)

	ws, err := sm.ReadState()
	if err != nil {
		if errors.Is(err, errors.ErrStateNotFound) {
			fmt.Fprintln(cmd.OutOrStdout(), "No run in this directory. Start one with 'overseer init'.")
			return nil
		}
		return err
	}

	fmt.Fprint(cmd.OutOrStdout(), renderState(ws))

	if !statusWatch {
		return nil
	}
	return watchState(cmd, sm)
}

// watchState re-renders whenever the state document is replaced. The watch
// is on the directory: atomic temp-then-rename writes produce rename events
// the file itself would miss.
func watchState(cmd *cobra.Command, sm *state.Manager) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	dir := filepath.Dir(sm.Path())
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(interrupt)

	target := filepath.Base(sm.Path())
	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			ws, err := sm.ReadState()
			if err != nil {
				// A rename mid-replace can race the read; the next event
				// renders the settled document.
				continue
			}
			fmt.Fprint(cmd.OutOrStdout(), "\n"+renderState(ws))
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("watch error: %w", err)
		case <-interrupt:
			return nil
		}
	}
}
