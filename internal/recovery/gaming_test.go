package recovery

import (
	"reflect"
	"testing"
)

func TestCategorize(t *testing.T) {
	tests := []struct {
		errText string
		want    string
	}{
		{"build failed: undefined: helper", "build"},
		{"syntax error near line 42", "build"},
		{"tests failed: 3 of 17", "test"},
		{"FAIL: TestLogin (0.02s)", "test"},
		{"lint: exported function missing doc comment", "lint"},
		{"unused variable 'x'", "lint"},
		{"type mismatch: cannot use string as int", "type"},
		{"explicit 'any' type - use proper typing", "type"},
		{"open config.json: no such file or directory", "missing-file"},
		{"feature_list.json does not exist", "missing-file"},
		{"something entirely novel", "unknown"},
		{"", "unknown"},
	}

	for _, tt := range tests {
		if got := categorize(tt.errText); got != tt.want {
			t.Errorf("categorize(%q) = %q, want %q", tt.errText, got, tt.want)
		}
	}
}

func TestPrimaryCategory(t *testing.T) {
	if got := primaryCategory(nil); got != "unknown" {
		t.Errorf("primaryCategory(nil) = %q, want unknown", got)
	}
	errs := []string{"tests failed: TestX", "build failed"}
	if got := primaryCategory(errs); got != "test" {
		t.Errorf("primaryCategory = %q, want the first error's category", got)
	}
}

func TestSuggestFixesDeduplicatesByCategory(t *testing.T) {
	errs := []string{
		"build failed: undefined: a",
		"build failed: undefined: b",
		"tests failed: TestX",
	}

	suggestions := suggestFixes(errs)
	if len(suggestions) != 2 {
		t.Fatalf("got %d suggestions, want 2 (one per category): %v", len(suggestions), suggestions)
	}
	if suggestions[0] != fixSuggestions["build"] || suggestions[1] != fixSuggestions["test"] {
		t.Errorf("suggestions out of order: %v", suggestions)
	}

	if got := suggestFixes(nil); got != nil {
		t.Errorf("suggestFixes(nil) = %v, want nil", got)
	}
}

func TestUpdateGamingScoreIdenticalError(t *testing.T) {
	h := NewHandler(DefaultConfig(), nil, nil, nil)
	tracker := &scopeTracker{}

	h.updateGamingScore(tracker, "build failed: x", "build", 0)
	if tracker.score != 0 {
		t.Errorf("score = %v after first attempt, want 0", tracker.score)
	}

	h.updateGamingScore(tracker, "build failed: x", "build", 0)
	if tracker.score != 0.2 {
		t.Errorf("score = %v after identical repeat, want 0.2", tracker.score)
	}

	h.updateGamingScore(tracker, "build failed: x", "build", 0)
	if tracker.score != 0.4 {
		t.Errorf("score = %v, identical repeats accumulate", tracker.score)
	}
}

func TestUpdateGamingScoreEvasiveCategorySwitch(t *testing.T) {
	h := NewHandler(DefaultConfig(), nil, nil, nil)
	tracker := &scopeTracker{}

	h.updateGamingScore(tracker, "build failed: x", "build", 2)

	// Category switched and the pass count did not improve: evasive.
	h.updateGamingScore(tracker, "tests failed: y", "test", 2)
	if tracker.score != 0.1 {
		t.Errorf("score = %v after evasive switch, want 0.1", tracker.score)
	}

	// Category switched but more validations pass: corrective, no penalty.
	h.updateGamingScore(tracker, "lint: unused variable", "lint", 4)
	if tracker.score != 0.1 {
		t.Errorf("score = %v after corrective switch, want unchanged 0.1", tracker.score)
	}
}

func TestUpdateGamingScoreNeverDecreases(t *testing.T) {
	h := NewHandler(DefaultConfig(), nil, nil, nil)
	tracker := &scopeTracker{}

	inputs := []struct {
		text   string
		cat    string
		passed int
	}{
		{"a", "build", 0},
		{"a", "build", 0},
		{"b", "test", 0},
		{"b", "test", 3},
		{"c", "lint", 5},
	}

	prev := 0.0
	for _, in := range inputs {
		h.updateGamingScore(tracker, in.text, in.cat, in.passed)
		if tracker.score < prev {
			t.Fatalf("score decreased from %v to %v", prev, tracker.score)
		}
		prev = tracker.score
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	want := Config{
		MaxRetries:           3,
		SessionMaxRetries:    2,
		IdenticalErrorWeight: 0.2,
		CategorySwitchWeight: 0.1,
		BlockThreshold:       0.5,
	}
	if !reflect.DeepEqual(cfg, want) {
		t.Errorf("DefaultConfig() = %+v, want %+v", cfg, want)
	}
}
