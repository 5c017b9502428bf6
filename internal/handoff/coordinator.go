// Package handoff validates stage transitions. A handoff is the boundary
// where one stage's output becomes the next stage's input; the coordinator
// fails closed, so a transition with any violation never proceeds and never
// mutates workflow state.
package handoff

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/overseerhq/overseer/internal/errors"
	"github.com/overseerhq/overseer/internal/logging"
	"github.com/overseerhq/overseer/internal/state"
)

// requiredArtifacts maps a source stage to the artifact its handoff needs.
var requiredArtifacts = map[int]string{
	state.StagePlanning:  "feature_list",
	state.StageExecution: "completion_report",
}

// Coordinator gates transitions between stages.
type Coordinator struct {
	state *state.Manager
	log   *logging.Logger
}

// NewCoordinator creates a Coordinator over the given state manager.
func NewCoordinator(sm *state.Manager, log *logging.Logger) *Coordinator {
	if log == nil {
		log = logging.NopLogger()
	}
	return &Coordinator{state: sm, log: log}
}

// Result reports the outcome of a handoff check. OK is true only when every
// check passed; Errors carries all violations found, not just the first.
type Result struct {
	OK           bool     `json:"ok"`
	FromStage    int      `json:"from_stage"`
	Artifact     string   `json:"artifact,omitempty"`
	ArtifactPath string   `json:"artifact_path,omitempty"`
	Errors       []string `json:"errors,omitempty"`
}

// CoordinateHandoff runs the full validation for a transition out of
// fromStageID: the source stage must be completed, its required artifact must
// be registered and present on disk, and the artifact must be structurally
// valid for its declared format. All violations are collected before
// returning. Nothing is mutated on failure.
func (c *Coordinator) CoordinateHandoff(fromStageID int) (*Result, error) {
	result, ws, err := c.check(fromStageID, true)
	if err != nil {
		return nil, err
	}
	if !result.OK {
		c.log.Warn("handoff blocked", "from_stage", fromStageID, "violations", len(result.Errors))
		return result, nil
	}

	c.log.Info("handoff validated",
		"from_stage", fromStageID,
		"artifact", result.Artifact,
		"session_id", ws.SessionID)
	return result, nil
}

// GetHandoffStatus is the cheap read-only precheck: stage status and artifact
// registration only, without parsing artifact content.
func (c *Coordinator) GetHandoffStatus(fromStageID int) (*Result, error) {
	result, _, err := c.check(fromStageID, false)
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (c *Coordinator) check(fromStageID int, deep bool) (*Result, *state.WorkflowState, error) {
	artifact, ok := requiredArtifacts[fromStageID]
	if !ok {
		return nil, nil, errors.NewValidationError(
			fmt.Sprintf("no handoff is defined out of stage %d", fromStageID)).
			WithField("fromStageID").
			WithValue(fmt.Sprintf("%d", fromStageID))
	}

	ws, err := c.state.ReadState()
	if err != nil {
		return nil, nil, err
	}

	result := &Result{FromStage: fromStageID, Artifact: artifact}

	stage := ws.Stage(fromStageID)
	if stage == nil {
		result.Errors = append(result.Errors, fmt.Sprintf("stage %d not present in state document", fromStageID))
	} else if stage.Status != state.StatusCompleted {
		result.Errors = append(result.Errors,
			fmt.Sprintf("stage %d (%s) is %s, handoff requires completed", fromStageID, stage.Name, stage.Status))
	}

	path, registered := ws.Artifacts[artifact]
	if !registered || path == "" {
		result.Errors = append(result.Errors, fmt.Sprintf("required artifact %q is not registered", artifact))
	} else {
		result.ArtifactPath = path
		if deep {
			if err := validateArtifact(artifact, path); err != nil {
				result.Errors = append(result.Errors, err.Error())
			}
		} else if _, err := os.Stat(path); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("artifact %q missing at %s", artifact, path))
		}
	}

	result.OK = len(result.Errors) == 0
	return result, ws, nil
}

// validateArtifact checks the artifact's structure against its declared
// format. feature_list is a JSON array with at least one entry, each carrying
// a non-empty name; completion_report is a JSON object with a success field.
func validateArtifact(name, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("artifact %q unreadable at %s: %w", name, path, err)
	}

	switch name {
	case "feature_list":
		var features []struct {
			Name string `json:"name"`
		}
		if err := json.Unmarshal(data, &features); err != nil {
			return fmt.Errorf("artifact %q is not a JSON array: %w", name, err)
		}
		if len(features) == 0 {
			return fmt.Errorf("artifact %q is empty, at least one feature is required", name)
		}
		for i, f := range features {
			if f.Name == "" {
				return fmt.Errorf("artifact %q entry %d has no name", name, i)
			}
		}
		return nil

	case "completion_report":
		var report map[string]json.RawMessage
		if err := json.Unmarshal(data, &report); err != nil {
			return fmt.Errorf("artifact %q is not a JSON object: %w", name, err)
		}
		if _, ok := report["success"]; !ok {
			return fmt.Errorf("artifact %q has no success field", name)
		}
		return nil

	default:
		return fmt.Errorf("unknown artifact format %q", name)
	}
}
