package learning

import "fmt"

// Tuning thresholds. Derived from observed run envelopes: a run finishing
// well under a quarter of the default session budget can afford a lower
// ceiling, while a failed run that nearly exhausted it likely needs more.
const (
	lowSessionThreshold  = 10
	highSessionThreshold = 45
	validationFailureCap = 5
	gamingViolationCap   = 10
)

// Tuner derives configuration recommendations from completion records.
// Recommendations are advisory: the tuner never applies them.
type Tuner struct{}

// NewTuner creates a Tuner.
func NewTuner() *Tuner {
	return &Tuner{}
}

// Recommendations is a pure function of the completion record. The same
// record always yields the same advice.
func (t *Tuner) Recommendations(c CompletionMetrics) []Recommendation {
	var recs []Recommendation

	switch {
	case c.Success && c.SessionsUsed < lowSessionThreshold:
		recs = append(recs, Recommendation{
			Parameter:        "max_sessions",
			CurrentValue:     fmt.Sprintf("%d", c.MaxSessions),
			RecommendedValue: fmt.Sprintf("%d", suggestLowerSessionBudget(c)),
			Reason: fmt.Sprintf("run succeeded in %d sessions, well under the budget; a lower ceiling fails misconfigured runs faster",
				c.SessionsUsed),
		})
	case !c.Success && c.SessionsUsed >= highSessionThreshold:
		recs = append(recs, Recommendation{
			Parameter:        "max_sessions",
			CurrentValue:     fmt.Sprintf("%d", c.MaxSessions),
			RecommendedValue: fmt.Sprintf("%d", c.MaxSessions+10),
			Reason: fmt.Sprintf("run failed after using %d sessions near the budget; more headroom may let it finish",
				c.SessionsUsed),
		})
	}

	if c.ValidationsFailed > validationFailureCap {
		recs = append(recs, Recommendation{
			Parameter:        "checkpoint_interval",
			CurrentValue:     "current",
			RecommendedValue: "lower",
			Reason: fmt.Sprintf("%d validation failures in one run; validating more often catches regressions before they compound",
				c.ValidationsFailed),
		})
	}

	if c.GamingViolations > gamingViolationCap {
		recs = append(recs, Recommendation{
			Parameter:        "gaming_block_threshold",
			CurrentValue:     "current",
			RecommendedValue: "lower",
			Reason: fmt.Sprintf("%d gaming violations in one run; a lower block threshold stops unproductive retries sooner",
				c.GamingViolations),
		})
	}

	return recs
}

// suggestLowerSessionBudget proposes a ceiling of double the observed usage,
// never below the usage itself plus a margin of five.
func suggestLowerSessionBudget(c CompletionMetrics) int {
	suggested := c.SessionsUsed * 2
	if floor := c.SessionsUsed + 5; suggested < floor {
		suggested = floor
	}
	if suggested >= c.MaxSessions && c.MaxSessions > 0 {
		suggested = c.MaxSessions
	}
	return suggested
}
