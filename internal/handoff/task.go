package handoff

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/overseerhq/overseer/internal/state"
)

// Default execution budgets handed to the next stage's worker.
const (
	DefaultMaxSessions        = 50
	DefaultMaxIterations      = 20
	DefaultCheckpointInterval = 5
)

// TaskDescriptor is the task handed to the next stage's worker. Field names
// follow the worker task format.
type TaskDescriptor struct {
	TaskType           string            `yaml:"task_type"`
	WorkingRoot        string            `yaml:"project_root"`
	ArtifactPath       string            `yaml:"artifact_path"`
	MaxSessions        int               `yaml:"max_sessions"`
	MaxIterations      int               `yaml:"max_iterations"`
	CheckpointInterval int               `yaml:"checkpoint_interval"`
	Autonomous         bool              `yaml:"autonomous_mode"`
	Metadata           map[string]string `yaml:"metadata,omitempty"`
}

// TaskConfig is the caller-supplied input to PrepareTask. Zero budget fields
// fall back to the defaults.
type TaskConfig struct {
	FromStage          int
	WorkingRoot        string
	ArtifactPath       string
	MaxSessions        int
	MaxIterations      int
	CheckpointInterval int
	Metadata           map[string]string
}

// taskTypes maps the source stage to the task handed to the next stage.
var taskTypes = map[int]string{
	state.StagePlanning:  "autonomous_coding",
	state.StageExecution: "validation",
}

// PrepareTask builds the descriptor for the stage after cfg.FromStage. It is
// a pure function of its input: no state reads, no filesystem access.
func PrepareTask(cfg TaskConfig) *TaskDescriptor {
	desc := &TaskDescriptor{
		TaskType:           taskTypes[cfg.FromStage],
		WorkingRoot:        cfg.WorkingRoot,
		ArtifactPath:       cfg.ArtifactPath,
		MaxSessions:        cfg.MaxSessions,
		MaxIterations:      cfg.MaxIterations,
		CheckpointInterval: cfg.CheckpointInterval,
		Autonomous:         true,
		Metadata:           cfg.Metadata,
	}
	if desc.MaxSessions <= 0 {
		desc.MaxSessions = DefaultMaxSessions
	}
	if desc.MaxIterations <= 0 {
		desc.MaxIterations = DefaultMaxIterations
	}
	if desc.CheckpointInterval <= 0 {
		desc.CheckpointInterval = DefaultCheckpointInterval
	}
	return desc
}

// WriteTaskFile marshals the descriptor to a YAML task file for the next
// stage's worker.
func WriteTaskFile(desc *TaskDescriptor, path string) error {
	data, err := yaml.Marshal(desc)
	if err != nil {
		return fmt.Errorf("failed to marshal task descriptor: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write task file: %w", err)
	}
	return nil
}
