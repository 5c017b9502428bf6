// Package state provides the durable state machine for an Overseer run.
// The whole run is one JSON document on disk, written with the
// temp-file-then-rename pattern so a killed process leaves either the
// previous or the fully updated document, never a corrupt mix. That
// property is what makes crash-resume correct.
package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/overseerhq/overseer/internal/errors"
)

// Manager owns the state document for a single run. It assumes a single
// logical writer (one orchestrator process); atomic-replace writes make
// cross-process locking unnecessary under that assumption.
//
// Reads always go to disk. There is no cache, which guarantees
// read-your-writes across process restarts.
type Manager struct {
	path string
	mu   sync.Mutex
}

// NewManager creates a Manager for the state document at path.
func NewManager(path string) *Manager {
	return &Manager{path: path}
}

// Path returns the location of the state document.
func (m *Manager) Path() string {
	return m.path
}

// Initialize creates a fresh state document seeded from the fixed template.
// If sessionID is empty a new UUID is generated. Returns
// errors.ErrAlreadyInitialized if a document already exists; overwriting an
// existing run requires ForceInitialize.
func (m *Manager) Initialize(sessionID, requirements string) (*WorkflowState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := os.Stat(m.path); err == nil {
		return nil, errors.Wrapf(errors.ErrAlreadyInitialized, "state document exists at %s", m.path)
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to check state document: %w", err)
	}

	return m.writeFresh(sessionID, requirements)
}

// ForceInitialize creates a fresh state document, discarding any existing
// one. This is the explicit overwrite path; callers must opt in.
func (m *Manager) ForceInitialize(sessionID, requirements string) (*WorkflowState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.writeFresh(sessionID, requirements)
}

func (m *Manager) writeFresh(sessionID, requirements string) (*WorkflowState, error) {
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	ws := newWorkflowState(sessionID, requirements, time.Now().UTC())
	if err := m.persist(ws); err != nil {
		return nil, err
	}
	return ws, nil
}

// ReadState loads the state document from disk. It returns
// errors.ErrStateNotFound if no document exists and errors.ErrStateCorrupt
// if the document cannot be decoded.
func (m *Manager) ReadState() (*WorkflowState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.read()
}

// UpdateOption mutates a leaf record during an update call.
type UpdateOption func(*updateData)

type updateData struct {
	attempts          *int
	durationSeconds   *float64
	validation        *ValidationResult
	note              *string
	featuresCompleted *int
}

// WithAttempts sets the durable retry counter for the unit.
func WithAttempts(n int) UpdateOption {
	return func(d *updateData) { d.attempts = &n }
}

// WithDuration records how long the unit ran.
func WithDuration(d time.Duration) UpdateOption {
	secs := d.Seconds()
	return func(u *updateData) { u.durationSeconds = &secs }
}

// WithValidation attaches the most recent validation result to the unit.
func WithValidation(v *ValidationResult) UpdateOption {
	return func(d *updateData) { d.validation = v }
}

// WithNote attaches a human-readable note (e.g. a gaming-violation summary).
func WithNote(note string) UpdateOption {
	return func(d *updateData) { d.note = &note }
}

// WithFeaturesCompleted records session progress.
func WithFeaturesCompleted(n int) UpdateOption {
	return func(d *updateData) { d.featuresCompleted = &n }
}

// UpdateStage sets the status of a stage. When the stage completes and a
// successor exists, the current-stage pointer advances and the successor is
// marked in progress in the same atomic write, preserving the
// one-stage-in-progress invariant across crashes.
func (m *Manager) UpdateStage(id int, status Status) error {
	if !status.Valid() {
		return errors.NewValidationError("unknown status").WithField("status").WithValue(string(status))
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	ws, err := m.read()
	if err != nil {
		return err
	}

	stage := ws.Stages[id]
	if stage == nil {
		return errors.Wrapf(errors.ErrStageNotFound, "stage %d", id)
	}

	stage.Status = status
	if status == StatusCompleted {
		if next := ws.Stages[id+1]; next != nil {
			ws.CurrentStage = id + 1
			next.Status = StatusInProgress
		}
	}

	return m.persist(ws)
}

// UpdatePhase upserts a phase record under the given stage. Siblings are
// never touched.
func (m *Manager) UpdatePhase(stageID int, phaseID string, status Status, opts ...UpdateOption) error {
	if !status.Valid() {
		return errors.NewValidationError("unknown status").WithField("status").WithValue(string(status))
	}
	if phaseID == "" {
		return errors.NewValidationError("phase ID cannot be empty").WithField("phaseID")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	ws, err := m.read()
	if err != nil {
		return err
	}

	stage := ws.Stages[stageID]
	if stage == nil {
		return errors.Wrapf(errors.ErrStageNotFound, "stage %d", stageID)
	}
	if stage.Phases == nil {
		stage.Phases = make(map[string]*PhaseState)
	}

	phase := stage.Phases[phaseID]
	if phase == nil {
		phase = &PhaseState{Name: phaseID}
		stage.Phases[phaseID] = phase
	}
	phase.Status = status
	applyPhaseOptions(phase, opts)

	return m.persist(ws)
}

// UpdateSession upserts a session record under the execution stage.
func (m *Manager) UpdateSession(sessionID string, status Status, opts ...UpdateOption) error {
	if !status.Valid() {
		return errors.NewValidationError("unknown status").WithField("status").WithValue(string(status))
	}
	if sessionID == "" {
		return errors.NewValidationError("session ID cannot be empty").WithField("sessionID")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	ws, err := m.read()
	if err != nil {
		return err
	}

	stage := ws.Stages[StageExecution]
	if stage == nil {
		return errors.Wrapf(errors.ErrStageNotFound, "stage %d", StageExecution)
	}
	if stage.Sessions == nil {
		stage.Sessions = make(map[string]*SessionState)
	}

	session := stage.Sessions[sessionID]
	if session == nil {
		session = &SessionState{SessionID: sessionID}
		stage.Sessions[sessionID] = session
	}
	session.Status = status
	applySessionOptions(session, opts)

	return m.persist(ws)
}

// AddArtifact upserts a named artifact path into the artifact map.
func (m *Manager) AddArtifact(name, path string) error {
	if name == "" {
		return errors.NewValidationError("artifact name cannot be empty").WithField("name")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	ws, err := m.read()
	if err != nil {
		return err
	}

	if ws.Artifacts == nil {
		ws.Artifacts = make(map[string]string)
	}
	ws.Artifacts[name] = path

	return m.persist(ws)
}

func applyPhaseOptions(phase *PhaseState, opts []UpdateOption) {
	var data updateData
	for _, opt := range opts {
		opt(&data)
	}
	if data.attempts != nil {
		phase.Attempts = *data.attempts
	}
	if data.durationSeconds != nil {
		phase.DurationSeconds = *data.durationSeconds
	}
	if data.validation != nil {
		phase.Validation = data.validation
	}
	if data.note != nil {
		phase.Note = *data.note
	}
}

func applySessionOptions(session *SessionState, opts []UpdateOption) {
	var data updateData
	for _, opt := range opts {
		opt(&data)
	}
	if data.attempts != nil {
		session.Attempts = *data.attempts
	}
	if data.durationSeconds != nil {
		session.DurationSeconds = *data.durationSeconds
	}
	if data.featuresCompleted != nil {
		session.FeaturesCompleted = *data.featuresCompleted
	}
	if data.note != nil {
		session.Note = *data.note
	}
}

// read loads and decodes the document. The caller must hold the mutex.
func (m *Manager) read() (*WorkflowState, error) {
	data, err := os.ReadFile(m.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrapf(errors.ErrStateNotFound, "no state document at %s", m.path)
		}
		return nil, fmt.Errorf("failed to read state document: %w", err)
	}

	var ws WorkflowState
	if err := json.Unmarshal(data, &ws); err != nil {
		return nil, errors.Wrapf(errors.ErrStateCorrupt, "decode %s: %v", m.path, err)
	}
	if ws.SessionID == "" {
		return nil, errors.Wrapf(errors.ErrStateCorrupt, "%s: missing session ID", m.path)
	}

	return &ws, nil
}

// persist encodes and atomically replaces the document. The caller must
// hold the mutex.
func (m *Manager) persist(ws *WorkflowState) error {
	ws.UpdatedAt = time.Now().UTC()

	data, err := json.MarshalIndent(ws, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	return atomicWriteFile(m.path, data, 0644)
}

// atomicWriteFile writes data to a file atomically by writing to a temporary
// file first, then renaming. This ensures the target file is never in a
// partially-written state.
func atomicWriteFile(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	tmpFile, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	// Clean up temp file on any error
	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}

	// Sync to disk before rename so the replacement is durable
	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}

	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Chmod(tmpPath, perm); err != nil {
		return fmt.Errorf("failed to set permissions: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	success = true
	return nil
}
