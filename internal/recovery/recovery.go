// Package recovery decides what happens after a unit of work fails: retry
// with fix suggestions, stop on a gaming violation, stop on an exhausted
// budget, or hand the operator resume instructions. Retryable failures are
// resolved here and returned as decisions, never propagated as errors.
//
// Attempt counters are durable. They live in the state document's phase and
// session records and are lazily reloaded per scope, so a crash mid-sequence
// resumes the prior count instead of resetting it.
package recovery

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/overseerhq/overseer/internal/errors"
	"github.com/overseerhq/overseer/internal/logging"
	"github.com/overseerhq/overseer/internal/procclean"
	"github.com/overseerhq/overseer/internal/state"
)

// Outcome is the terminal or continuing disposition of one handled failure.
type Outcome string

const (
	OutcomeRetrying           Outcome = "retrying"
	OutcomeGamingBlocked      Outcome = "gaming_blocked"
	OutcomeMaxAttemptsReached Outcome = "max_attempts_reached"
	OutcomeEscalated          Outcome = "escalated"
	OutcomeInterrupted        Outcome = "interrupted"
)

// Config holds the retry and gaming-detection knobs. The gaming weights are
// tunable thresholds, not fixed law.
type Config struct {
	MaxRetries           int     `mapstructure:"max_retries"`
	SessionMaxRetries    int     `mapstructure:"session_max_retries"`
	IdenticalErrorWeight float64 `mapstructure:"identical_error_weight"`
	CategorySwitchWeight float64 `mapstructure:"category_switch_weight"`
	BlockThreshold       float64 `mapstructure:"block_threshold"`
}

// DefaultConfig returns the default retry and gaming policy.
func DefaultConfig() Config {
	return Config{
		MaxRetries:           3,
		SessionMaxRetries:    2,
		IdenticalErrorWeight: 0.2,
		CategorySwitchWeight: 0.1,
		BlockThreshold:       0.5,
	}
}

// ErrorContext carries one phase validation failure into the handler.
type ErrorContext struct {
	Stage      int
	Phase      string
	Err        error
	Validation *state.ValidationResult
}

// PartialCompletion reports what a stopped sequence did and did not finish,
// with instructions for resuming.
type PartialCompletion struct {
	Completed          []string `json:"completed"`
	Remaining          []string `json:"remaining"`
	ResumeInstructions string   `json:"resume_instructions"`
	Note               string   `json:"note,omitempty"`
}

// Decision is the handler's answer: whether to retry, with what guidance,
// and what remains if the sequence stops here.
type Decision struct {
	Outcome        Outcome            `json:"outcome"`
	RetryAttempt   int                `json:"retry_attempt"`
	AttemptID      string             `json:"attempt_id,omitempty"`
	FixSuggestions []string           `json:"fix_suggestions,omitempty"`
	GamingScore    float64            `json:"gaming_score,omitempty"`
	Recommendation string             `json:"recommendation,omitempty"`
	Partial        *PartialCompletion `json:"partial,omitempty"`
}

// ShouldRetry reports whether the caller may attempt the unit again.
func (d *Decision) ShouldRetry() bool {
	return d.Outcome == OutcomeRetrying || (d.Outcome == OutcomeEscalated && d.AttemptID != "")
}

// scopeKey identifies one retry sequence: a planning phase or an execution
// session.
type scopeKey struct {
	stage int
	unit  string
}

// scopeTracker is the in-memory view of one sequence. attempts mirrors the
// durable counter; the gaming fields are per-sequence only and reset with a
// fresh handler, matching a fresh top-level run.
type scopeTracker struct {
	loaded     bool
	attempts   int
	score      float64
	lastError  string
	lastCat    string
	lastPassed int
	violations int
}

// Handler is the error handler. Safe for concurrent use.
type Handler struct {
	cfg     Config
	state   *state.Manager
	cleaner *procclean.Cleaner
	log     *logging.Logger

	mu     sync.Mutex
	scopes map[scopeKey]*scopeTracker
}

// NewHandler creates a Handler over the given state manager and cleaner.
func NewHandler(cfg Config, sm *state.Manager, cleaner *procclean.Cleaner, log *logging.Logger) *Handler {
	if log == nil {
		log = logging.NopLogger()
	}
	return &Handler{
		cfg:     cfg,
		state:   sm,
		cleaner: cleaner,
		log:     log,
		scopes:  make(map[scopeKey]*scopeTracker),
	}
}

// HandlePhaseValidationFailure processes one failed validation of a planning
// phase. The durable attempt counter is incremented and persisted before the
// decision returns. Over budget the decision is MaxAttemptsReached with a
// partial-completion report and no suggestions. Within budget the gaming
// score is updated first; past the block threshold the decision is
// GamingBlocked regardless of remaining budget.
func (h *Handler) HandlePhaseValidationFailure(ec ErrorContext) (*Decision, error) {
	if ec.Phase == "" {
		return nil, errors.NewValidationError("phase is required").WithField("Phase")
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	key := scopeKey{stage: ec.Stage, unit: ec.Phase}
	tracker, err := h.loadPhaseScope(key)
	if err != nil {
		return nil, err
	}

	attempt := tracker.attempts + 1
	tracker.attempts = attempt

	if err := h.state.UpdatePhase(ec.Stage, ec.Phase, state.StatusFailed,
		state.WithAttempts(attempt), state.WithValidation(ec.Validation)); err != nil {
		return nil, err
	}

	log := h.log.WithStage(ec.Stage).WithPhase(ec.Phase)

	if attempt > h.cfg.MaxRetries {
		log.Warn("phase retry budget exhausted", "attempts", attempt, "max_retries", h.cfg.MaxRetries)
		partial, err := h.buildPartial(ec.Stage, fmt.Sprintf("phase %q stopped after %d attempts", ec.Phase, attempt))
		if err != nil {
			return nil, err
		}
		return &Decision{
			Outcome:      OutcomeMaxAttemptsReached,
			RetryAttempt: attempt,
			GamingScore:  tracker.score,
			Partial:      partial,
		}, nil
	}

	errorText, category, passed := summarizeValidation(ec.Validation)
	h.updateGamingScore(tracker, errorText, category, passed)

	if tracker.score > h.cfg.BlockThreshold {
		tracker.violations++
		violation := errors.NewGamingError(
			fmt.Sprintf("retries without genuine progress past threshold %.1f", h.cfg.BlockThreshold),
			tracker.score).WithStage(ec.Stage).WithPhase(ec.Phase)
		log.Error("gaming detected, blocking retries",
			"error", violation, "attempts", attempt)
		note := violation.Error()
		if err := h.state.UpdatePhase(ec.Stage, ec.Phase, state.StatusFailed, state.WithNote(note)); err != nil {
			return nil, err
		}
		partial, err := h.buildPartial(ec.Stage, note)
		if err != nil {
			return nil, err
		}
		return &Decision{
			Outcome:      OutcomeGamingBlocked,
			RetryAttempt: attempt,
			GamingScore:  tracker.score,
			Partial:      partial,
		}, nil
	}

	var suggestions []string
	if ec.Validation != nil {
		suggestions = suggestFixes(ec.Validation.Errors)
	}
	log.Info("phase will retry",
		"attempt", attempt, "max_retries", h.cfg.MaxRetries,
		"category", category, "gaming_score", tracker.score)
	return &Decision{
		Outcome:        OutcomeRetrying,
		RetryAttempt:   attempt,
		FixSuggestions: suggestions,
		GamingScore:    tracker.score,
	}, nil
}

// HandleSessionCrash processes a crashed execution session. Helper processes
// are cleaned up first so a retry starts from a clean slate; the session
// counter is tighter than the phase budget. A retry decision carries a fresh
// attempt ID for the new execution context.
func (h *Handler) HandleSessionCrash(ctx context.Context, sessionID string) (*Decision, error) {
	if sessionID == "" {
		return nil, errors.NewValidationError("sessionID is required").WithField("sessionID")
	}

	log := h.log.WithSession(sessionID)

	if h.cleaner != nil {
		if result, err := h.cleaner.Cleanup(ctx); err != nil {
			// Cleanup failure is non-fatal; the retry proceeds on a dirtier
			// slate rather than not at all.
			log.Warn("pre-retry cleanup incomplete", "error", err, "killed", result.ProcessesKilled)
		} else if result.ProcessesKilled > 0 {
			log.Info("cleaned up helper processes before retry", "killed", result.ProcessesKilled)
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	key := scopeKey{stage: state.StageExecution, unit: sessionID}
	tracker, err := h.loadSessionScope(key, sessionID)
	if err != nil {
		return nil, err
	}

	attempt := tracker.attempts + 1
	tracker.attempts = attempt

	if err := h.state.UpdateSession(sessionID, state.StatusFailed, state.WithAttempts(attempt)); err != nil {
		return nil, err
	}

	if attempt > h.cfg.SessionMaxRetries {
		log.Warn("session retry budget exhausted", "attempts", attempt, "max_retries", h.cfg.SessionMaxRetries)
		partial, err := h.buildPartial(state.StageExecution,
			fmt.Sprintf("session %q stopped after %d crashes", sessionID, attempt))
		if err != nil {
			return nil, err
		}
		return &Decision{
			Outcome:      OutcomeMaxAttemptsReached,
			RetryAttempt: attempt,
			Partial:      partial,
		}, nil
	}

	attemptID := uuid.NewString()
	log.Info("session will retry in a fresh execution context",
		"attempt", attempt, "attempt_id", attemptID)
	return &Decision{
		Outcome:      OutcomeEscalated,
		RetryAttempt: attempt,
		AttemptID:    attemptID,
	}, nil
}

// Progress describes where an iteration-bounded unit stood when its budget
// ran out.
type Progress struct {
	Stage     int
	Unit      string
	Completed []string
	Remaining []string
}

// HandleMaxIterations is always terminal. State is persisted before the
// decision returns; the decision recommends raising the iteration budget
// when the same unit keeps hitting it.
func (h *Handler) HandleMaxIterations(progress Progress) (*Decision, error) {
	note := fmt.Sprintf("iteration budget exhausted with %d of %d items remaining",
		len(progress.Remaining), len(progress.Completed)+len(progress.Remaining))

	if progress.Unit != "" {
		var err error
		if progress.Stage == state.StageExecution {
			err = h.state.UpdateSession(progress.Unit, state.StatusFailed, state.WithNote(note))
		} else {
			err = h.state.UpdatePhase(progress.Stage, progress.Unit, state.StatusFailed, state.WithNote(note))
		}
		if err != nil {
			return nil, err
		}
	}

	resume, err := h.resumeInstructions()
	if err != nil {
		return nil, err
	}

	h.log.WithStage(progress.Stage).Warn("iteration budget exhausted",
		"unit", progress.Unit, "completed", len(progress.Completed), "remaining", len(progress.Remaining))
	return &Decision{
		Outcome:        OutcomeMaxAttemptsReached,
		Recommendation: "raise max_iterations if this unit repeatedly exhausts its budget",
		Partial: &PartialCompletion{
			Completed:          progress.Completed,
			Remaining:          progress.Remaining,
			ResumeInstructions: resume,
			Note:               note,
		},
	}, nil
}

// HandleUserInterrupt persists state and cleans up helper processes, then
// returns resume instructions naming the exact stage and phase or session.
// It never returns an error; everything is best effort.
func (h *Handler) HandleUserInterrupt(ctx context.Context) *Decision {
	decision := &Decision{Outcome: OutcomeInterrupted}

	ws, err := h.state.ReadState()
	if err != nil {
		h.log.Warn("could not read state during interrupt", "error", err)
		decision.Partial = &PartialCompletion{
			ResumeInstructions: "state unavailable; run 'overseer status' once the state document is restored",
		}
	} else {
		stageID, phase, session := ws.ActiveScope()
		note := interruptNote(stageID, phase, session)
		switch {
		case phase != "":
			if err := h.state.UpdatePhase(stageID, phase, state.StatusFailed, state.WithNote(note)); err != nil {
				h.log.Warn("could not persist interrupt marker", "error", err)
			}
		case session != "":
			if err := h.state.UpdateSession(session, state.StatusFailed, state.WithNote(note)); err != nil {
				h.log.Warn("could not persist interrupt marker", "error", err)
			}
		}
		decision.Partial = &PartialCompletion{
			ResumeInstructions: resumeAt(stageID, phase, session),
			Note:               note,
		}
	}

	if h.cleaner != nil {
		if _, err := h.cleaner.Cleanup(ctx); err != nil {
			h.log.Warn("cleanup incomplete during interrupt", "error", err)
		}
	}

	h.log.Info("user interrupt handled")
	return decision
}

// GamingViolations returns the number of gaming blocks this handler has
// issued, for the completion record.
func (h *Handler) GamingViolations() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	total := 0
	for _, tracker := range h.scopes {
		total += tracker.violations
	}
	return total
}

// loadPhaseScope returns the tracker for a phase scope, reloading the
// durable attempt count on first touch.
func (h *Handler) loadPhaseScope(key scopeKey) (*scopeTracker, error) {
	tracker := h.scopes[key]
	if tracker == nil {
		tracker = &scopeTracker{}
		h.scopes[key] = tracker
	}
	if !tracker.loaded {
		ws, err := h.state.ReadState()
		if err != nil {
			return nil, err
		}
		if phase := ws.Phase(key.stage, key.unit); phase != nil {
			tracker.attempts = phase.Attempts
		}
		tracker.loaded = true
	}
	return tracker, nil
}

// loadSessionScope mirrors loadPhaseScope for execution sessions.
func (h *Handler) loadSessionScope(key scopeKey, sessionID string) (*scopeTracker, error) {
	tracker := h.scopes[key]
	if tracker == nil {
		tracker = &scopeTracker{}
		h.scopes[key] = tracker
	}
	if !tracker.loaded {
		ws, err := h.state.ReadState()
		if err != nil {
			return nil, err
		}
		if session := ws.Session(sessionID); session != nil {
			tracker.attempts = session.Attempts
		}
		tracker.loaded = true
	}
	return tracker, nil
}

// buildPartial derives the done/remaining report for a stage from the state
// document.
func (h *Handler) buildPartial(stageID int, note string) (*PartialCompletion, error) {
	ws, err := h.state.ReadState()
	if err != nil {
		return nil, err
	}

	partial := &PartialCompletion{Note: note}

	stage := ws.Stage(stageID)
	if stage != nil {
		switch {
		case len(stage.Phases) > 0:
			for _, name := range state.PlanningPhases {
				p := stage.Phases[name]
				if p == nil {
					continue
				}
				if p.Status == state.StatusCompleted {
					partial.Completed = append(partial.Completed, name)
				} else {
					partial.Remaining = append(partial.Remaining, name)
				}
			}
		default:
			for id, s := range stage.Sessions {
				if s.Status == state.StatusCompleted {
					partial.Completed = append(partial.Completed, id)
				} else {
					partial.Remaining = append(partial.Remaining, id)
				}
			}
			sort.Strings(partial.Completed)
			sort.Strings(partial.Remaining)
		}
	}

	stageID2, phase, session := ws.ActiveScope()
	partial.ResumeInstructions = resumeAt(stageID2, phase, session)
	return partial, nil
}

func (h *Handler) resumeInstructions() (string, error) {
	ws, err := h.state.ReadState()
	if err != nil {
		return "", err
	}
	stageID, phase, session := ws.ActiveScope()
	return resumeAt(stageID, phase, session), nil
}

func resumeAt(stageID int, phase, session string) string {
	switch {
	case phase != "":
		return fmt.Sprintf("resume at stage %d, phase %q", stageID, phase)
	case session != "":
		return fmt.Sprintf("resume at stage %d, session %q", stageID, session)
	default:
		return fmt.Sprintf("resume at stage %d", stageID)
	}
}

func interruptNote(stageID int, phase, session string) string {
	switch {
	case phase != "":
		return fmt.Sprintf("interrupted by user at stage %d, phase %q", stageID, phase)
	case session != "":
		return fmt.Sprintf("interrupted by user at stage %d, session %q", stageID, session)
	default:
		return fmt.Sprintf("interrupted by user at stage %d", stageID)
	}
}

// summarizeValidation condenses a validation result into the fields the
// gaming detector compares across attempts.
func summarizeValidation(v *state.ValidationResult) (errorText, category string, passed int) {
	if v == nil {
		return "", categoryUnknown, 0
	}
	errorText = strings.Join(v.Errors, "\n")
	category = primaryCategory(v.Errors)
	return errorText, category, v.ValidationsPassed
}
