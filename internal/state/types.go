package state

import (
	"time"
)

// TemplateVersion identifies the stage/phase template baked into new state
// documents. Readers can use it to detect documents written by an older
// template.
const TemplateVersion = "planning-v1"

// Stage identifiers. The pipeline is fixed: planning produces a validated
// feature list, autonomous execution works through it in sessions, and
// validation confirms the result.
const (
	StagePlanning   = 1
	StageExecution  = 2
	StageValidation = 3
)

// PlanningPhases is the fixed, ordered phase template for the planning stage.
// The order matters for display and for resume instructions.
var PlanningPhases = []string{
	"requirements-analysis",
	"architecture-design",
	"feature-breakdown",
	"task-sequencing",
	"validation-strategy",
	"handoff-package",
}

// Status represents the lifecycle state of a stage, phase, or session.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Valid reports whether s is one of the known status values.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusCompleted, StatusFailed:
		return true
	default:
		return false
	}
}

// Terminal reports whether s is a terminal status.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// ValidationResult captures the outcome of one validation pass over a unit
// of work, as reported by the external validator.
type ValidationResult struct {
	Passed            bool     `json:"passed"`
	ValidationsPassed int      `json:"validations_passed"`
	ValidationsFailed int      `json:"validations_failed"`
	Errors            []string `json:"errors,omitempty"`
	Warnings          []string `json:"warnings,omitempty"`
}

// PhaseState is the durable record for one planning phase. Attempts is the
// retry counter for the phase: it survives process restarts so a crash
// mid-retry-sequence resumes with the prior count.
type PhaseState struct {
	Name            string            `json:"name"`
	Status          Status            `json:"status"`
	Attempts        int               `json:"attempts,omitempty"`
	DurationSeconds float64           `json:"duration_seconds,omitempty"`
	Validation      *ValidationResult `json:"validation,omitempty"`
	Note            string            `json:"note,omitempty"`
}

// SessionState is the durable record for one autonomous execution session.
type SessionState struct {
	SessionID         string  `json:"session_id"`
	Status            Status  `json:"status"`
	Attempts          int     `json:"attempts,omitempty"`
	FeaturesCompleted int     `json:"features_completed,omitempty"`
	DurationSeconds   float64 `json:"duration_seconds,omitempty"`
	Note              string  `json:"note,omitempty"`
}

// StageState is the durable record for one pipeline stage. The planning
// stage tracks phases; the execution stage tracks sessions; the validation
// stage has neither.
type StageState struct {
	Name     string                   `json:"name"`
	Status   Status                   `json:"status"`
	Phases   map[string]*PhaseState   `json:"phases,omitempty"`
	Sessions map[string]*SessionState `json:"sessions,omitempty"`
}

// WorkflowState is the root aggregate: one document per run, one logical
// writer, persisted atomically. It is the resume checkpoint and is never
// deleted automatically.
type WorkflowState struct {
	SessionID           string              `json:"session_id"`
	Version             string              `json:"version"`
	InitialRequirements string              `json:"initial_requirements"`
	CurrentStage        int                 `json:"current_stage"`
	Stages              map[int]*StageState `json:"stages"`
	Artifacts           map[string]string   `json:"artifacts"`
	CreatedAt           time.Time           `json:"created_at"`
	UpdatedAt           time.Time           `json:"updated_at"`
}

// newWorkflowState builds a fresh state document from the fixed template:
// planning in progress with its first phase active, execution and validation
// pending.
func newWorkflowState(sessionID, requirements string, now time.Time) *WorkflowState {
	phases := make(map[string]*PhaseState, len(PlanningPhases))
	for i, name := range PlanningPhases {
		status := StatusPending
		if i == 0 {
			status = StatusInProgress
		}
		phases[name] = &PhaseState{Name: name, Status: status}
	}

	return &WorkflowState{
		SessionID:           sessionID,
		Version:             TemplateVersion,
		InitialRequirements: requirements,
		CurrentStage:        StagePlanning,
		Stages: map[int]*StageState{
			StagePlanning: {
				Name:   "planning",
				Status: StatusInProgress,
				Phases: phases,
			},
			StageExecution: {
				Name:     "autonomous-execution",
				Status:   StatusPending,
				Sessions: make(map[string]*SessionState),
			},
			StageValidation: {
				Name:   "validation",
				Status: StatusPending,
			},
		},
		Artifacts: make(map[string]string),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Stage returns the stage record for the given ID, or nil if absent.
func (w *WorkflowState) Stage(id int) *StageState {
	return w.Stages[id]
}

// Phase returns the phase record for (stageID, phaseID), or nil if absent.
func (w *WorkflowState) Phase(stageID int, phaseID string) *PhaseState {
	stage := w.Stages[stageID]
	if stage == nil {
		return nil
	}
	return stage.Phases[phaseID]
}

// Session returns the session record for sessionID, or nil if absent.
// Sessions live under the execution stage.
func (w *WorkflowState) Session(sessionID string) *SessionState {
	stage := w.Stages[StageExecution]
	if stage == nil {
		return nil
	}
	return stage.Sessions[sessionID]
}

// ActiveScope describes where a run should resume: the in-progress stage and,
// within it, the first non-completed phase (planning) or the most recent
// non-terminal session (execution).
func (w *WorkflowState) ActiveScope() (stageID int, phase string, session string) {
	stageID = w.CurrentStage
	stage := w.Stages[stageID]
	if stage == nil {
		return stageID, "", ""
	}

	if stage.Phases != nil {
		for _, name := range PlanningPhases {
			p := stage.Phases[name]
			if p != nil && p.Status != StatusCompleted {
				return stageID, name, ""
			}
		}
		return stageID, "", ""
	}

	for id, s := range stage.Sessions {
		if !s.Status.Terminal() {
			return stageID, "", id
		}
	}
	return stageID, "", ""
}
