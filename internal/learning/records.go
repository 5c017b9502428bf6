// Package learning captures run metrics in append-only JSONL topic logs and
// derives configuration recommendations from completed runs. Capture is
// fire-and-forget: a failed append never blocks or fails the workflow that
// produced the metric.
package learning

import "time"

// Topic log file names under the learning directory.
const (
	sessionsFile        = "sessions.jsonl"
	phasesFile          = "phases.jsonl"
	completionsFile     = "completions.jsonl"
	recommendationsFile = "recommendations.jsonl"
)

// SessionMetrics is one execution-stage session outcome.
type SessionMetrics struct {
	RecordID          string    `json:"record_id"`
	RunID             string    `json:"run_id"`
	SessionID         string    `json:"session_id"`
	Success           bool      `json:"success"`
	Attempts          int       `json:"attempts"`
	FeaturesCompleted int       `json:"features_completed"`
	DurationSeconds   float64   `json:"duration_seconds"`
	Timestamp         time.Time `json:"timestamp"`
}

// PhaseMetrics is one planning-phase outcome.
type PhaseMetrics struct {
	RecordID          string    `json:"record_id"`
	RunID             string    `json:"run_id"`
	Phase             string    `json:"phase"`
	Success           bool      `json:"success"`
	Attempts          int       `json:"attempts"`
	ValidationsPassed int       `json:"validations_passed"`
	ValidationsFailed int       `json:"validations_failed"`
	DurationSeconds   float64   `json:"duration_seconds"`
	Timestamp         time.Time `json:"timestamp"`
}

// CompletionMetrics summarizes a whole run. It is the input to the tuner.
type CompletionMetrics struct {
	RecordID          string    `json:"record_id"`
	RunID             string    `json:"run_id"`
	Success           bool      `json:"success"`
	SessionsUsed      int       `json:"sessions_used"`
	MaxSessions       int       `json:"max_sessions"`
	ValidationsFailed int       `json:"validations_failed"`
	GamingViolations  int       `json:"gaming_violations"`
	FeaturesCompleted int       `json:"features_completed"`
	DurationSeconds   float64   `json:"duration_seconds"`
	Timestamp         time.Time `json:"timestamp"`
}

// Recommendation is an advisory configuration adjustment. Nothing applies it
// automatically; it is surfaced to the operator.
type Recommendation struct {
	RecordID         string    `json:"record_id,omitempty"`
	RunID            string    `json:"run_id,omitempty"`
	Parameter        string    `json:"parameter"`
	CurrentValue     string    `json:"current_value"`
	RecommendedValue string    `json:"recommended_value"`
	Reason           string    `json:"reason"`
	Timestamp        time.Time `json:"timestamp,omitempty"`
}
