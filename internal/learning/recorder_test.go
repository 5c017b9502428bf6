package learning

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/overseerhq/overseer/internal/logging"
)

func newTestRecorder(t *testing.T) (*Recorder, string) {
	t.Helper()
	dir := t.TempDir()
	return NewRecorder(dir, logging.NopLogger()), dir
}

func TestCaptureSessionDataAppends(t *testing.T) {
	r, dir := newTestRecorder(t)

	for i := 0; i < 3; i++ {
		err := r.CaptureSessionData(SessionMetrics{
			RunID:     "run-1",
			SessionID: "session-0",
			Success:   i == 2,
			Attempts:  i + 1,
		})
		if err != nil {
			t.Fatalf("CaptureSessionData failed: %v", err)
		}
	}

	records, err := r.ReadSessions()
	if err != nil {
		t.Fatalf("ReadSessions failed: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("got %d records, want 3", len(records))
	}

	// Append order preserved, IDs and timestamps filled in.
	for i, rec := range records {
		if rec.Attempts != i+1 {
			t.Errorf("record %d Attempts = %d, want %d", i, rec.Attempts, i+1)
		}
		if rec.RecordID == "" {
			t.Errorf("record %d has no generated RecordID", i)
		}
		if rec.Timestamp.IsZero() {
			t.Errorf("record %d has no timestamp", i)
		}
	}

	// One line per record in the topic file.
	data, err := os.ReadFile(filepath.Join(dir, "sessions.jsonl"))
	if err != nil {
		t.Fatal(err)
	}
	if lines := strings.Count(string(data), "\n"); lines != 3 {
		t.Errorf("topic file has %d lines, want 3", lines)
	}
}

func TestTopicsAreSeparateFiles(t *testing.T) {
	r, dir := newTestRecorder(t)

	if err := r.CaptureSessionData(SessionMetrics{RunID: "run-1"}); err != nil {
		t.Fatal(err)
	}
	if err := r.CapturePhaseData(PhaseMetrics{RunID: "run-1", Phase: "feature-breakdown"}); err != nil {
		t.Fatal(err)
	}
	if err := r.CaptureCompletionData(CompletionMetrics{RunID: "run-1", Success: true}); err != nil {
		t.Fatal(err)
	}

	for _, name := range []string{"sessions.jsonl", "phases.jsonl", "completions.jsonl"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("topic file %s missing: %v", name, err)
		}
	}
}

func TestReadSkipsMalformedTrailingLine(t *testing.T) {
	r, dir := newTestRecorder(t)

	if err := r.CaptureCompletionData(CompletionMetrics{RunID: "run-1", SessionsUsed: 7}); err != nil {
		t.Fatal(err)
	}
	if err := r.CaptureCompletionData(CompletionMetrics{RunID: "run-2", SessionsUsed: 12}); err != nil {
		t.Fatal(err)
	}

	// Simulate a crash mid-append: a torn, incomplete trailing line.
	path := filepath.Join(dir, "completions.jsonl")
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.WriteString(`{"record_id": "torn`); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}

	records, err := r.ReadCompletions()
	if err != nil {
		t.Fatalf("ReadCompletions failed: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2 (torn line skipped)", len(records))
	}
	if records[0].RunID != "run-1" || records[1].RunID != "run-2" {
		t.Errorf("records out of order: %v", records)
	}

	// Appends keep working after the torn line.
	if err := r.CaptureCompletionData(CompletionMetrics{RunID: "run-3"}); err != nil {
		t.Fatalf("append after torn line failed: %v", err)
	}
}

func TestReadMissingTopicIsEmpty(t *testing.T) {
	r, _ := newTestRecorder(t)

	records, err := r.ReadCompletions()
	if err != nil {
		t.Fatalf("ReadCompletions failed: %v", err)
	}
	if records != nil {
		t.Errorf("got %v, want nil for a missing topic file", records)
	}

	latest, err := r.LatestCompletion()
	if err != nil {
		t.Fatalf("LatestCompletion failed: %v", err)
	}
	if latest != nil {
		t.Errorf("LatestCompletion = %v, want nil", latest)
	}
}

func TestLatestCompletion(t *testing.T) {
	r, _ := newTestRecorder(t)

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	for i, run := range []string{"run-1", "run-2", "run-3"} {
		err := r.CaptureCompletionData(CompletionMetrics{
			RunID:     run,
			Timestamp: base.Add(time.Duration(i) * time.Hour),
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	latest, err := r.LatestCompletion()
	if err != nil {
		t.Fatalf("LatestCompletion failed: %v", err)
	}
	if latest == nil || latest.RunID != "run-3" {
		t.Errorf("LatestCompletion = %v, want run-3", latest)
	}
}

func TestCaptureRecommendations(t *testing.T) {
	r, _ := newTestRecorder(t)

	recs := []Recommendation{
		{Parameter: "max_sessions", CurrentValue: "50", RecommendedValue: "60", Reason: "near budget"},
		{Parameter: "checkpoint_interval", CurrentValue: "current", RecommendedValue: "lower", Reason: "failures"},
	}
	if err := r.CaptureRecommendations("run-1", recs); err != nil {
		t.Fatalf("CaptureRecommendations failed: %v", err)
	}

	stored, err := readTopic[Recommendation](filepath.Join(r.dir, "recommendations.jsonl"))
	if err != nil {
		t.Fatal(err)
	}
	if len(stored) != 2 {
		t.Fatalf("got %d recommendations, want 2", len(stored))
	}
	for _, rec := range stored {
		if rec.RunID != "run-1" {
			t.Errorf("RunID = %q, want run-1", rec.RunID)
		}
		if rec.RecordID == "" {
			t.Error("recommendation has no generated RecordID")
		}
	}
}

func TestReadCompletionsOversizedRecord(t *testing.T) {
	r, _ := newTestRecorder(t)

	// A record line well past 64KB must not fail the read or hide its
	// neighbors.
	big := CompletionMetrics{RunID: strings.Repeat("r", 128*1024)}
	if err := r.CaptureCompletionData(big); err != nil {
		t.Fatal(err)
	}
	if err := r.CaptureCompletionData(CompletionMetrics{RunID: "run-after"}); err != nil {
		t.Fatal(err)
	}

	records, err := r.ReadCompletions()
	if err != nil {
		t.Fatalf("ReadCompletions failed: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}
	if len(records[0].RunID) != 128*1024 || records[1].RunID != "run-after" {
		t.Error("oversized record or its successor not read back intact")
	}
}
