package learning

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/overseerhq/overseer/internal/logging"
)

// Recorder appends metric records to per-topic JSONL files. Writes are
// serialized via a mutex and use O_APPEND; a record is one line, never
// rewritten. Each JSONL line is small enough that O_APPEND provides
// atomicity on POSIX systems (writes under PIPE_BUF are atomic).
type Recorder struct {
	dir string
	mu  sync.Mutex
	log *logging.Logger
	now func() time.Time
}

// NewRecorder creates a Recorder rooted at dir. The directory is created
// lazily on first write.
func NewRecorder(dir string, log *logging.Logger) *Recorder {
	if log == nil {
		log = logging.NopLogger()
	}
	return &Recorder{dir: dir, log: log, now: time.Now}
}

// CaptureSessionData appends one session record. Errors are logged and
// returned but callers on the hot path are expected to ignore them.
func (r *Recorder) CaptureSessionData(m SessionMetrics) error {
	if m.RecordID == "" {
		m.RecordID = uuid.NewString()
	}
	if m.Timestamp.IsZero() {
		m.Timestamp = r.now()
	}
	return r.append(sessionsFile, m)
}

// CapturePhaseData appends one planning-phase record.
func (r *Recorder) CapturePhaseData(m PhaseMetrics) error {
	if m.RecordID == "" {
		m.RecordID = uuid.NewString()
	}
	if m.Timestamp.IsZero() {
		m.Timestamp = r.now()
	}
	return r.append(phasesFile, m)
}

// CaptureCompletionData appends one whole-run record.
func (r *Recorder) CaptureCompletionData(m CompletionMetrics) error {
	if m.RecordID == "" {
		m.RecordID = uuid.NewString()
	}
	if m.Timestamp.IsZero() {
		m.Timestamp = r.now()
	}
	return r.append(completionsFile, m)
}

// CaptureRecommendations appends each emitted recommendation to its topic
// log so tuning advice is auditable after the fact.
func (r *Recorder) CaptureRecommendations(runID string, recs []Recommendation) error {
	for _, rec := range recs {
		rec.RunID = runID
		if rec.RecordID == "" {
			rec.RecordID = uuid.NewString()
		}
		if rec.Timestamp.IsZero() {
			rec.Timestamp = r.now()
		}
		if err := r.append(recommendationsFile, rec); err != nil {
			return err
		}
	}
	return nil
}

// ReadCompletions returns every parseable completion record in append order.
// Malformed lines, including a torn trailing line from a crash mid-append,
// are skipped rather than failing the read.
func (r *Recorder) ReadCompletions() ([]CompletionMetrics, error) {
	return readTopic[CompletionMetrics](filepath.Join(r.dir, completionsFile))
}

// ReadSessions returns every parseable session record in append order.
func (r *Recorder) ReadSessions() ([]SessionMetrics, error) {
	return readTopic[SessionMetrics](filepath.Join(r.dir, sessionsFile))
}

// ReadPhases returns every parseable phase record in append order.
func (r *Recorder) ReadPhases() ([]PhaseMetrics, error) {
	return readTopic[PhaseMetrics](filepath.Join(r.dir, phasesFile))
}

// LatestCompletion returns the most recent completion record, or nil when no
// record exists yet.
func (r *Recorder) LatestCompletion() (*CompletionMetrics, error) {
	records, err := r.ReadCompletions()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	return &records[len(records)-1], nil
}

func (r *Recorder) append(file string, record any) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("learning: marshal record: %w", err)
	}
	data = append(data, '\n')

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return fmt.Errorf("learning: create directory: %w", err)
	}

	f, err := os.OpenFile(filepath.Join(r.dir, file), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("learning: open topic log: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return fmt.Errorf("learning: append to topic log: %w", err)
	}
	return f.Close()
}

// readTopic reads a JSONL topic file, returning nil (not an error) when the
// file does not exist and skipping malformed lines. Lines are read without a
// length cap so one oversized record cannot fail the whole topic.
func readTopic[T any](path string) ([]T, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("learning: open topic log: %w", err)
	}
	defer func() { _ = f.Close() }()

	var records []T
	reader := bufio.NewReader(f)
	for {
		line, readErr := reader.ReadBytes('\n')
		if len(bytes.TrimSpace(line)) > 0 {
			var record T
			if err := json.Unmarshal(line, &record); err == nil {
				records = append(records, record)
			}
		}
		if readErr == io.EOF {
			return records, nil
		}
		if readErr != nil {
			return nil, fmt.Errorf("learning: read topic log: %w", readErr)
		}
	}
}
