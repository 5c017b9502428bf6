package handoff

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/overseerhq/overseer/internal/logging"
	"github.com/overseerhq/overseer/internal/state"
)

const validFeatureList = `[
  {"name": "user login", "priority": 1},
  {"name": "dashboard", "priority": 2}
]`

const validCompletionReport = `{"success": true, "features_completed": 2}`

// setupWorkflow initializes a workflow in dir and returns the manager and a
// helper that writes an artifact file and registers it.
func setupWorkflow(t *testing.T) (*state.Manager, string) {
	t.Helper()
	dir := t.TempDir()
	m := state.NewManager(filepath.Join(dir, "workflow_state.json"))
	if _, err := m.Initialize("run-1", "reqs"); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	return m, dir
}

func writeArtifact(t *testing.T, m *state.Manager, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name+".json")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	if err := m.AddArtifact(name, path); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestCoordinateHandoffSucceeds(t *testing.T) {
	m, dir := setupWorkflow(t)
	writeArtifact(t, m, dir, "feature_list", validFeatureList)
	if err := m.UpdateStage(state.StagePlanning, state.StatusCompleted); err != nil {
		t.Fatal(err)
	}

	c := NewCoordinator(m, logging.NopLogger())
	result, err := c.CoordinateHandoff(state.StagePlanning)
	if err != nil {
		t.Fatalf("CoordinateHandoff failed: %v", err)
	}

	if !result.OK {
		t.Errorf("OK = false, violations: %v", result.Errors)
	}
	if result.Artifact != "feature_list" {
		t.Errorf("Artifact = %q, want feature_list", result.Artifact)
	}
}

func TestCoordinateHandoffSourceNotCompleted(t *testing.T) {
	m, dir := setupWorkflow(t)
	writeArtifact(t, m, dir, "feature_list", validFeatureList)
	// Planning stays in progress.

	c := NewCoordinator(m, logging.NopLogger())
	result, err := c.CoordinateHandoff(state.StagePlanning)
	if err != nil {
		t.Fatalf("CoordinateHandoff failed: %v", err)
	}

	if result.OK {
		t.Fatal("OK = true for a non-completed source stage")
	}
	if len(result.Errors) == 0 {
		t.Fatal("expected at least one violation")
	}
	if !strings.Contains(result.Errors[0], "in_progress") {
		t.Errorf("violation %q should name the actual status", result.Errors[0])
	}
}

func TestCoordinateHandoffMissingArtifact(t *testing.T) {
	m, _ := setupWorkflow(t)
	if err := m.UpdateStage(state.StagePlanning, state.StatusCompleted); err != nil {
		t.Fatal(err)
	}

	c := NewCoordinator(m, logging.NopLogger())
	result, err := c.CoordinateHandoff(state.StagePlanning)
	if err != nil {
		t.Fatalf("CoordinateHandoff failed: %v", err)
	}

	if result.OK {
		t.Fatal("OK = true with no registered artifact")
	}
	if !strings.Contains(strings.Join(result.Errors, " "), "feature_list") {
		t.Errorf("violations %v should name the missing artifact", result.Errors)
	}
}

func TestCoordinateHandoffCollectsAllViolations(t *testing.T) {
	m, _ := setupWorkflow(t)
	// Neither completed nor artifact registered: both violations reported.

	c := NewCoordinator(m, logging.NopLogger())
	result, err := c.CoordinateHandoff(state.StagePlanning)
	if err != nil {
		t.Fatalf("CoordinateHandoff failed: %v", err)
	}

	if len(result.Errors) != 2 {
		t.Errorf("Errors = %v, want both the stage and the artifact violation", result.Errors)
	}
}

func TestCoordinateHandoffDoesNotMutateOnFailure(t *testing.T) {
	m, _ := setupWorkflow(t)

	before, err := os.ReadFile(m.Path())
	if err != nil {
		t.Fatal(err)
	}

	c := NewCoordinator(m, logging.NopLogger())
	if _, err := c.CoordinateHandoff(state.StagePlanning); err != nil {
		t.Fatal(err)
	}

	after, err := os.ReadFile(m.Path())
	if err != nil {
		t.Fatal(err)
	}
	if string(before) != string(after) {
		t.Error("state document changed across a failed handoff")
	}
}

func TestCoordinateHandoffStructuralValidation(t *testing.T) {
	tests := []struct {
		name     string
		artifact string
		content  string
		wantOK   bool
	}{
		{"valid feature list", "feature_list", validFeatureList, true},
		{"empty feature list", "feature_list", `[]`, false},
		{"feature without name", "feature_list", `[{"priority": 1}]`, false},
		{"feature list not an array", "feature_list", `{"name": "x"}`, false},
		{"feature list malformed", "feature_list", `[{"name":`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, dir := setupWorkflow(t)
			writeArtifact(t, m, dir, tt.artifact, tt.content)
			if err := m.UpdateStage(state.StagePlanning, state.StatusCompleted); err != nil {
				t.Fatal(err)
			}

			result, err := NewCoordinator(m, logging.NopLogger()).CoordinateHandoff(state.StagePlanning)
			if err != nil {
				t.Fatalf("CoordinateHandoff failed: %v", err)
			}
			if result.OK != tt.wantOK {
				t.Errorf("OK = %v, want %v (violations: %v)", result.OK, tt.wantOK, result.Errors)
			}
		})
	}
}

func TestCoordinateHandoffCompletionReport(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantOK  bool
	}{
		{"valid report", validCompletionReport, true},
		{"failed run still hands off", `{"success": false}`, true},
		{"missing success field", `{"features_completed": 2}`, false},
		{"not an object", `[1, 2]`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, dir := setupWorkflow(t)
			writeArtifact(t, m, dir, "completion_report", tt.content)
			if err := m.UpdateStage(state.StageExecution, state.StatusCompleted); err != nil {
				t.Fatal(err)
			}

			result, err := NewCoordinator(m, logging.NopLogger()).CoordinateHandoff(state.StageExecution)
			if err != nil {
				t.Fatalf("CoordinateHandoff failed: %v", err)
			}
			if result.OK != tt.wantOK {
				t.Errorf("OK = %v, want %v (violations: %v)", result.OK, tt.wantOK, result.Errors)
			}
		})
	}
}

func TestCoordinateHandoffArtifactFileDeleted(t *testing.T) {
	m, dir := setupWorkflow(t)
	path := writeArtifact(t, m, dir, "feature_list", validFeatureList)
	if err := m.UpdateStage(state.StagePlanning, state.StatusCompleted); err != nil {
		t.Fatal(err)
	}
	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}

	result, err := NewCoordinator(m, logging.NopLogger()).CoordinateHandoff(state.StagePlanning)
	if err != nil {
		t.Fatalf("CoordinateHandoff failed: %v", err)
	}
	if result.OK {
		t.Error("OK = true for an artifact whose file is gone")
	}
}

func TestCoordinateHandoffUndefinedStage(t *testing.T) {
	m, _ := setupWorkflow(t)

	_, err := NewCoordinator(m, logging.NopLogger()).CoordinateHandoff(state.StageValidation)
	if err == nil {
		t.Fatal("handoff out of the final stage should be rejected")
	}
}

func TestGetHandoffStatusSkipsContentParse(t *testing.T) {
	m, dir := setupWorkflow(t)
	// Structurally invalid content: the precheck should still pass because it
	// only verifies registration and presence.
	writeArtifact(t, m, dir, "feature_list", `[]`)
	if err := m.UpdateStage(state.StagePlanning, state.StatusCompleted); err != nil {
		t.Fatal(err)
	}

	result, err := NewCoordinator(m, logging.NopLogger()).GetHandoffStatus(state.StagePlanning)
	if err != nil {
		t.Fatalf("GetHandoffStatus failed: %v", err)
	}
	if !result.OK {
		t.Errorf("precheck OK = false, violations: %v", result.Errors)
	}
}

func TestPrepareTaskDefaults(t *testing.T) {
	desc := PrepareTask(TaskConfig{
		FromStage:    state.StagePlanning,
		WorkingRoot:  "/work/project",
		ArtifactPath: "/work/project/feature_list.json",
	})

	if desc.TaskType != "autonomous_coding" {
		t.Errorf("TaskType = %q, want autonomous_coding", desc.TaskType)
	}
	if desc.MaxSessions != DefaultMaxSessions {
		t.Errorf("MaxSessions = %d, want %d", desc.MaxSessions, DefaultMaxSessions)
	}
	if desc.MaxIterations != DefaultMaxIterations {
		t.Errorf("MaxIterations = %d, want %d", desc.MaxIterations, DefaultMaxIterations)
	}
	if desc.CheckpointInterval != DefaultCheckpointInterval {
		t.Errorf("CheckpointInterval = %d, want %d", desc.CheckpointInterval, DefaultCheckpointInterval)
	}
	if !desc.Autonomous {
		t.Error("Autonomous = false, want true")
	}
}

func TestPrepareTaskExplicitBudgets(t *testing.T) {
	desc := PrepareTask(TaskConfig{
		FromStage:          state.StageExecution,
		MaxSessions:        10,
		MaxIterations:      5,
		CheckpointInterval: 2,
		Metadata:           map[string]string{"run_id": "run-1"},
	})

	if desc.TaskType != "validation" {
		t.Errorf("TaskType = %q, want validation", desc.TaskType)
	}
	if desc.MaxSessions != 10 || desc.MaxIterations != 5 || desc.CheckpointInterval != 2 {
		t.Errorf("budgets = %d/%d/%d, explicit values must not be overridden",
			desc.MaxSessions, desc.MaxIterations, desc.CheckpointInterval)
	}
	if desc.Metadata["run_id"] != "run-1" {
		t.Error("metadata not carried through")
	}
}

func TestWriteTaskFileRoundTrip(t *testing.T) {
	desc := PrepareTask(TaskConfig{
		FromStage:    state.StagePlanning,
		WorkingRoot:  "/work/project",
		ArtifactPath: "/work/project/feature_list.json",
	})

	path := filepath.Join(t.TempDir(), "task.yaml")
	if err := WriteTaskFile(desc, path); err != nil {
		t.Fatalf("WriteTaskFile failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}

	var loaded TaskDescriptor
	if err := yaml.Unmarshal(data, &loaded); err != nil {
		t.Fatalf("task file is not valid YAML: %v", err)
	}
	if loaded.TaskType != desc.TaskType || loaded.MaxSessions != desc.MaxSessions {
		t.Errorf("round trip mismatch: got %+v, want %+v", loaded, desc)
	}
	if !strings.Contains(string(data), "task_type:") {
		t.Error("task file should use snake_case keys")
	}
}
