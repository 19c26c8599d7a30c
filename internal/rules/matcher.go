package rules

import (
	"bookingengine/internal/model"

	"github.com/google/uuid"
)

// Candidate is a booking request checked against the requester's tier rules.
type Candidate struct {
	BookingWindow
	TierID uuid.UUID
}

// RuleCheckResult is the per-rule outcome handed to callers.
type RuleCheckResult struct {
	RuleID           uuid.UUID  `json:"rule_id"`
	RuleName         string     `json:"rule_name"`
	RuleDescription  string     `json:"rule_description"`
	RuleType         string     `json:"rule_type"`
	Triggered        bool       `json:"triggered"`
	Message          string     `json:"message"`
	RequiresApproval bool       `json:"requires_approval"`
	ApprovalType     string     `json:"approval_type"`
	ApproverTierID   *uuid.UUID `json:"approver_tier_id,omitempty"`
	IsOverride       bool       `json:"is_override"`
	Priority         int        `json:"priority"`
	// Blocking marks a hard refusal: the booking must be rejected outright.
	Blocking bool `json:"blocking"`
	// ConfigError is set when the rule's conditions could not be read.
	ConfigError string `json:"config_error,omitempty"`
}

// Misconfigured reports whether the rule was skipped because of bad conditions.
func (r RuleCheckResult) Misconfigured() bool { return r.ConfigError != "" }

// MatchResult groups every evaluated rule by outcome.
type MatchResult struct {
	Evaluated []RuleCheckResult
	Blocking  []RuleCheckResult
	Triggered []RuleCheckResult // triggered and not blocking
}

// Blocked reports whether any rule refuses the booking.
func (m MatchResult) Blocked() bool { return len(m.Blocking) > 0 }

// BlockReason is the message of the first blocking rule.
func (m MatchResult) BlockReason() string {
	if len(m.Blocking) == 0 {
		return ""
	}
	return m.Blocking[0].Message
}

// Misconfigured returns the evaluated rules whose conditions were unreadable.
func (m MatchResult) Misconfigured() []RuleCheckResult {
	var out []RuleCheckResult
	for _, r := range m.Evaluated {
		if r.Misconfigured() {
			out = append(out, r)
		}
	}
	return out
}

// ApplicableRules keeps active rules of the candidate's tier that cover its asset.
func ApplicableRules(c Candidate, tierRules []model.BookingRule, links []model.RuleAsset) []model.BookingRule {
	linked := make(map[uuid.UUID]bool)
	for _, l := range links {
		if l.AssetID == c.AssetID {
			linked[l.RuleID] = true
		}
	}

	out := make([]model.BookingRule, 0, len(tierRules))
	for _, r := range tierRules {
		if !r.IsActive || r.TierID != c.TierID {
			continue
		}
		if !r.AppliesToAllAssets && !linked[r.ID] {
			continue
		}
		out = append(out, r)
	}
	return out
}

// MatchRules evaluates every applicable rule against the candidate.
func MatchRules(c Candidate, tierRules []model.BookingRule, links []model.RuleAsset, ec EvalContext) MatchResult {
	var res MatchResult
	for _, rule := range ApplicableRules(c, tierRules, links) {
		verdict, err := Evaluate(rule, c.BookingWindow, ec)

		check := RuleCheckResult{
			RuleID:           rule.ID,
			RuleName:         rule.Name,
			RuleDescription:  rule.Description,
			RuleType:         rule.RuleType,
			Triggered:        verdict.Triggered,
			Message:          verdict.Message,
			RequiresApproval: rule.RequiresApproval,
			ApprovalType:     rule.ApprovalType,
			ApproverTierID:   rule.ApproverTierID,
			IsOverride:       rule.IsOverride,
			Priority:         rule.Priority,
		}
		if err != nil {
			check.ConfigError = err.Error()
		}
		res.Evaluated = append(res.Evaluated, check)

		if !verdict.Triggered {
			continue
		}
		if !verdict.CanRequest {
			check.Blocking = true
			res.Blocking = append(res.Blocking, check)
			continue
		}
		res.Triggered = append(res.Triggered, check)
	}
	return res
}
