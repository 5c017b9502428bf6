package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/overseerhq/overseer/internal/config"
	"github.com/overseerhq/overseer/internal/errors"
	"github.com/overseerhq/overseer/internal/learning"
	"github.com/overseerhq/overseer/internal/logging"
	"github.com/overseerhq/overseer/internal/recovery"
	"github.com/overseerhq/overseer/internal/state"
)

var (
	failStage   int
	failPhase   string
	failSession string
	failErrors  []string
	failPassed  int
	failFailed  int
)

var failCmd = &cobra.Command{
	Use:   "fail",
	Short: "Report a failed phase validation or a crashed session",
	Long: `Report one failure to the error handler and print its decision: retry with
fix suggestions, or stop on an exhausted budget or a gaming violation. Workers
call this between attempts; the retry counter is durable, so the decision is
the same whether or not the worker restarted in between.`,
	RunE: runFail,
}

func init() {
	failCmd.Flags().IntVar(&failStage, "stage", state.StagePlanning, "stage the failure occurred in")
	failCmd.Flags().StringVar(&failPhase, "phase", "", "planning phase that failed validation")
	failCmd.Flags().StringVar(&failSession, "session", "", "execution session that crashed")
	failCmd.Flags().StringArrayVar(&failErrors, "error", nil, "validation error text (repeatable)")
	failCmd.Flags().IntVar(&failPassed, "passed", 0, "validations passed this attempt")
	failCmd.Flags().IntVar(&failFailed, "failed", 0, "validations failed this attempt")
	rootCmd.AddCommand(failCmd)
}

func runFail(cmd *cobra.Command, args []string) error {
	cfg := config.Get()
	log, err := buildLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = log.Close() }()

	sm := stateManager(cfg)
	handler := recovery.NewHandler(recoveryConfig(cfg), sm, buildCleaner(cfg, log), log)
	out := cmd.OutOrStdout()

	switch {
	case failSession != "":
		decision, err := handler.HandleSessionCrash(cmd.Context(), failSession)
		if err != nil {
			return err
		}
		captureSessionFailure(cfg, sm, log, failSession, decision)
		printDecision(out, fmt.Sprintf("session %q", failSession), decision)
		return nil
	case failPhase != "":
		validation := &state.ValidationResult{
			Passed:            false,
			ValidationsPassed: failPassed,
			ValidationsFailed: failFailed,
			Errors:            failErrors,
		}
		decision, err := handler.HandlePhaseValidationFailure(recovery.ErrorContext{
			Stage:      failStage,
			Phase:      failPhase,
			Validation: validation,
		})
		if err != nil {
			return err
		}
		capturePhaseFailure(cfg, sm, log, validation, decision)
		printDecision(out, fmt.Sprintf("phase %q", failPhase), decision)
		return nil
	default:
		return errors.NewValidationError("either --phase or --session is required")
	}
}

// capturePhaseFailure appends a phase metric when learning capture is on.
// Capture is best effort; a failed append never fails the command.
func capturePhaseFailure(cfg *config.Config, sm *state.Manager, log *logging.Logger, validation *state.ValidationResult, decision *recovery.Decision) {
	if !cfg.Learning.Enabled {
		return
	}
	recorder := learning.NewRecorder(cfg.LearningDir(), log)
	if err := recorder.CapturePhaseData(learning.PhaseMetrics{
		RunID:             runID(sm),
		Phase:             failPhase,
		Success:           false,
		Attempts:          decision.RetryAttempt,
		ValidationsPassed: validation.ValidationsPassed,
		ValidationsFailed: validation.ValidationsFailed,
	}); err != nil {
		log.Warn("phase metric capture failed", "error", err)
	}
}

// captureSessionFailure mirrors capturePhaseFailure for crashed sessions.
func captureSessionFailure(cfg *config.Config, sm *state.Manager, log *logging.Logger, sessionID string, decision *recovery.Decision) {
	if !cfg.Learning.Enabled {
		return
	}
	recorder := learning.NewRecorder(cfg.LearningDir(), log)
	if err := recorder.CaptureSessionData(learning.SessionMetrics{
		RunID:     runID(sm),
		SessionID: sessionID,
		Success:   false,
		Attempts:  decision.RetryAttempt,
	}); err != nil {
		log.Warn("session metric capture failed", "error", err)
	}
}

func runID(sm *state.Manager) string {
	ws, err := sm.ReadState()
	if err != nil {
		return ""
	}
	return ws.SessionID
}

func printDecision(out io.Writer, unit string, d *recovery.Decision) {
	switch d.Outcome {
	case recovery.OutcomeRetrying:
		fmt.Fprintf(out, "%s: retry attempt %d\n", unit, d.RetryAttempt)
		for _, s := range d.FixSuggestions {
			fmt.Fprintf(out, "  fix: %s\n", s)
		}
	case recovery.OutcomeEscalated:
		fmt.Fprintf(out, "%s: retry attempt %d in fresh execution context %s\n", unit, d.RetryAttempt, d.AttemptID)
	case recovery.OutcomeGamingBlocked:
		fmt.Fprintf(out, "%s: blocked, gaming score %.1f\n", unit, d.GamingScore)
	default:
		fmt.Fprintf(out, "%s: %s after attempt %d\n", unit, d.Outcome, d.RetryAttempt)
	}
	if d.Partial != nil && d.Partial.ResumeInstructions != "" {
		fmt.Fprintf(out, "  %s\n", d.Partial.ResumeInstructions)
	}
}
