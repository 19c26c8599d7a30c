package rules

import (
	"cmp"
	"slices"
)

// Prioritize orders triggered, non-blocking results: override rules first, then
// ascending priority. Nothing is dropped; lower ranked rules still need approval.
func Prioritize(results []RuleCheckResult) []RuleCheckResult {
	out := make([]RuleCheckResult, 0, len(results))
	for _, r := range results {
		if r.Triggered && !r.Blocking {
			out = append(out, r)
		}
	}

	slices.SortStableFunc(out, func(a, b RuleCheckResult) int {
		if a.IsOverride != b.IsOverride {
			if a.IsOverride {
				return -1
			}
			return 1
		}
		return cmp.Compare(a.Priority, b.Priority)
	})
	return out
}

// Authoritative returns the rule whose verdict governs when triggered rules conflict.
func Authoritative(results []RuleCheckResult) (RuleCheckResult, bool) {
	ordered := Prioritize(results)
	if len(ordered) == 0 {
		return RuleCheckResult{}, false
	}
	return ordered[0], true
}
