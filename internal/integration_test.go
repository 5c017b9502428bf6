// Package internal contains integration tests that drive the control core
// end to end: a run is initialized, planning phases fail and recover, the
// handoff gate validates the stage transition, and the learning loop turns
// the completed run into tuning advice.
package internal

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/overseerhq/overseer/internal/handoff"
	"github.com/overseerhq/overseer/internal/learning"
	"github.com/overseerhq/overseer/internal/logging"
	"github.com/overseerhq/overseer/internal/procclean"
	"github.com/overseerhq/overseer/internal/recovery"
	"github.com/overseerhq/overseer/internal/state"
)

type emptyInventory struct{}

func (emptyInventory) List(ctx context.Context) ([]procclean.Process, error) { return nil, nil }

// TestPlanningToExecutionWorkflow walks a run from initialization through a
// retried planning failure, stage completion, handoff validation, and task
// preparation.
func TestPlanningToExecutionWorkflow(t *testing.T) {
	dir := t.TempDir()
	sm := state.NewManager(filepath.Join(dir, "workflow_state.json"))

	if _, err := sm.Initialize("run-integration", "build a todo app"); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	cleaner := procclean.New(logging.NopLogger(),
		procclean.WithInventory(emptyInventory{}),
		procclean.WithKillFunc(func(int) error { return nil }))
	handler := recovery.NewHandler(recovery.DefaultConfig(), sm, cleaner, logging.NopLogger())

	// First phase fails validation once, then recovers.
	decision, err := handler.HandlePhaseValidationFailure(recovery.ErrorContext{
		Stage: state.StagePlanning,
		Phase: "requirements-analysis",
		Validation: &state.ValidationResult{
			Passed: false,
			Errors: []string{"build failed: undefined: parseRequirements"},
		},
	})
	if err != nil {
		t.Fatalf("HandlePhaseValidationFailure failed: %v", err)
	}
	if !decision.ShouldRetry() {
		t.Fatalf("first failure should retry, got %s", decision.Outcome)
	}

	// The retry succeeds; all phases complete and produce the artifact.
	for _, phase := range state.PlanningPhases {
		if err := sm.UpdatePhase(state.StagePlanning, phase, state.StatusCompleted); err != nil {
			t.Fatal(err)
		}
	}

	featureList := filepath.Join(dir, "feature_list.json")
	features := []map[string]any{
		{"name": "add todo", "priority": 1},
		{"name": "complete todo", "priority": 2},
	}
	data, err := json.Marshal(features)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(featureList, data, 0644); err != nil {
		t.Fatal(err)
	}
	if err := sm.AddArtifact("feature_list", featureList); err != nil {
		t.Fatal(err)
	}
	if err := sm.UpdateStage(state.StagePlanning, state.StatusCompleted); err != nil {
		t.Fatal(err)
	}

	// The handoff gate passes and the execution stage is already active.
	coordinator := handoff.NewCoordinator(sm, logging.NopLogger())
	result, err := coordinator.CoordinateHandoff(state.StagePlanning)
	if err != nil {
		t.Fatalf("CoordinateHandoff failed: %v", err)
	}
	if !result.OK {
		t.Fatalf("handoff blocked: %v", result.Errors)
	}

	ws, err := sm.ReadState()
	if err != nil {
		t.Fatal(err)
	}
	if ws.CurrentStage != state.StageExecution {
		t.Errorf("CurrentStage = %d, want execution after planning completes", ws.CurrentStage)
	}

	// The prepared task carries the artifact and the default budgets.
	desc := handoff.PrepareTask(handoff.TaskConfig{
		FromStage:    state.StagePlanning,
		WorkingRoot:  dir,
		ArtifactPath: result.ArtifactPath,
	})
	if desc.TaskType != "autonomous_coding" || desc.ArtifactPath != featureList {
		t.Errorf("task descriptor = %+v", desc)
	}

	taskPath := filepath.Join(dir, "task.yaml")
	if err := handoff.WriteTaskFile(desc, taskPath); err != nil {
		t.Fatalf("WriteTaskFile failed: %v", err)
	}
	if _, err := os.Stat(taskPath); err != nil {
		t.Errorf("task file not written: %v", err)
	}
}

// TestCrashRecoveryAcrossRestart simulates a process crash between retries:
// every component is rebuilt from disk and the retry budget carries over.
func TestCrashRecoveryAcrossRestart(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "workflow_state.json")

	sm1 := state.NewManager(path)
	if _, err := sm1.Initialize("run-crash", "reqs"); err != nil {
		t.Fatal(err)
	}

	cfg := recovery.DefaultConfig()
	h1 := recovery.NewHandler(cfg, sm1, nil, logging.NopLogger())
	for i := 0; i < cfg.MaxRetries; i++ {
		if _, err := h1.HandlePhaseValidationFailure(recovery.ErrorContext{
			Stage: state.StagePlanning,
			Phase: "architecture-design",
			Validation: &state.ValidationResult{
				Errors:            []string{"tests failed: TestDesign"},
				ValidationsPassed: i,
			},
		}); err != nil {
			t.Fatal(err)
		}
	}

	// Restart: fresh manager, fresh handler. The next failure is attempt
	// MaxRetries+1 and must exhaust the budget, not restart it.
	h2 := recovery.NewHandler(cfg, state.NewManager(path), nil, logging.NopLogger())
	decision, err := h2.HandlePhaseValidationFailure(recovery.ErrorContext{
		Stage: state.StagePlanning,
		Phase: "architecture-design",
		Validation: &state.ValidationResult{
			Errors: []string{"lint: unused import"},
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	if decision.Outcome != recovery.OutcomeMaxAttemptsReached {
		t.Errorf("Outcome = %s, want max_attempts_reached (budget survived restart)", decision.Outcome)
	}
	if decision.Partial == nil || decision.Partial.ResumeInstructions == "" {
		t.Error("terminal decision must carry resume instructions")
	}
}

// TestLearningLoop captures a completed run and checks the tuner reads it
// back into advice.
func TestLearningLoop(t *testing.T) {
	dir := t.TempDir()
	recorder := learning.NewRecorder(filepath.Join(dir, "learning"), logging.NopLogger())

	if err := recorder.CaptureCompletionData(learning.CompletionMetrics{
		RunID:        "run-learn",
		Success:      false,
		SessionsUsed: 47,
		MaxSessions:  50,
	}); err != nil {
		t.Fatalf("CaptureCompletionData failed: %v", err)
	}

	completion, err := recorder.LatestCompletion()
	if err != nil {
		t.Fatal(err)
	}
	if completion == nil {
		t.Fatal("no completion read back")
	}

	recs := learning.NewTuner().Recommendations(*completion)
	if len(recs) != 1 || recs[0].Parameter != "max_sessions" {
		t.Fatalf("recs = %v, want one max_sessions raise", recs)
	}

	if err := recorder.CaptureRecommendations(completion.RunID, recs); err != nil {
		t.Fatalf("CaptureRecommendations failed: %v", err)
	}
}
