package recovery

import "strings"

// Failure categories, matched against validation error text. Grounded in the
// checks the validators actually run: compilation, tests, linting, type
// safety, and expected-file presence.
const (
	categoryBuild       = "build"
	categoryTest        = "test"
	categoryLint        = "lint"
	categoryType        = "type"
	categoryMissingFile = "missing-file"
	categoryUnknown     = "unknown"
)

// categoryMarkers maps each category to the substrings that identify it.
// Order matters: the first category with a marker hit wins, and the more
// specific categories come first.
var categoryMarkers = []struct {
	category string
	markers  []string
}{
	{categoryMissingFile, []string{"no such file", "file not found", "missing file", "does not exist", "cannot find module"}},
	{categoryType, []string{"type error", "type mismatch", "cannot use", "incompatible type", "explicit 'any'", "type checking disabled"}},
	{categoryTest, []string{"test fail", "tests failed", "assertion", "expected ", "FAIL:"}},
	{categoryLint, []string{"lint", "unused variable", "unused import", "formatting", "style violation"}},
	{categoryBuild, []string{"build fail", "compile", "compilation", "syntax error", "undefined:", "cannot build"}},
}

// fixSuggestions maps a category to operator guidance for the next attempt.
var fixSuggestions = map[string]string{
	categoryBuild:       "fix the compilation errors before re-running validation",
	categoryTest:        "inspect the failing tests and fix the behavior they assert, not the tests",
	categoryLint:        "run the linter locally and resolve each reported finding",
	categoryType:        "resolve the type errors; do not suppress them with ignores or any-typing",
	categoryMissingFile: "create or restore the missing files the validation expects",
	categoryUnknown:     "review the validation output; no known failure pattern matched",
}

// categorize returns the failure category of a single error line.
func categorize(errText string) string {
	lower := strings.ToLower(errText)
	for _, entry := range categoryMarkers {
		for _, marker := range entry.markers {
			if strings.Contains(lower, strings.ToLower(marker)) {
				return entry.category
			}
		}
	}
	return categoryUnknown
}

// primaryCategory is the category of the first error line, the one the
// gaming detector compares across consecutive attempts.
func primaryCategory(errs []string) string {
	if len(errs) == 0 {
		return categoryUnknown
	}
	return categorize(errs[0])
}

// suggestFixes derives deduplicated suggestions from every error line's
// category, preserving first-seen order.
func suggestFixes(errs []string) []string {
	if len(errs) == 0 {
		return nil
	}

	seen := make(map[string]bool)
	var suggestions []string
	for _, e := range errs {
		cat := categorize(e)
		if seen[cat] {
			continue
		}
		seen[cat] = true
		suggestions = append(suggestions, fixSuggestions[cat])
	}
	return suggestions
}

// updateGamingScore applies the detector's two signals to the tracker and
// records this attempt's summary for the next comparison. The score only
// ever increases within a sequence.
//
// Signal one: the error text is byte-identical to the previous attempt's,
// meaning nothing real changed. Signal two: the failure category switched
// between attempts without the pass count improving, which reads as evading
// the failing check rather than correcting it.
func (h *Handler) updateGamingScore(tracker *scopeTracker, errorText, category string, passed int) {
	if tracker.lastError != "" && errorText == tracker.lastError {
		tracker.score += h.cfg.IdenticalErrorWeight
	} else if tracker.lastCat != "" && category != tracker.lastCat && passed <= tracker.lastPassed {
		tracker.score += h.cfg.CategorySwitchWeight
	}

	tracker.lastError = errorText
	tracker.lastCat = category
	tracker.lastPassed = passed
}
