// Package rules evaluates booking rules against a candidate reservation and
// drives the approval workflow that triggered rules fan out to.
//
// Everything in this package is pure: callers load rules, reservations and tier
// membership, and persist whatever comes back.
package rules

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"bookingengine/internal/model"
)

var (
	ErrMissingConditions = errors.New("rule has no conditions")
	ErrUnknownRuleType   = errors.New("unknown rule type")
)

// Consecutive booking units
const (
	UnitWeekends = "weekends"
	UnitWeeks    = "weeks"
	UnitDays     = "days"
)

// Conditions is the typed parameter payload of a rule, one variant per rule type.
type Conditions interface {
	RuleType() string
}

// DateRangeConditions bounds are year-agnostic "MM-DD" values. A start after the
// end wraps over the new year.
type DateRangeConditions struct {
	StartMonthDay string `json:"startMonthDay"`
	EndMonthDay   string `json:"endMonthDay"`
}

type ConsecutiveBookingConditions struct {
	Count int    `json:"count"`
	Unit  string `json:"unit"`
}

type ConcurrentBookingConditions struct {
	MaxAssets            int `json:"maxAssets"`
	MinRequestDaysBefore int `json:"minRequestDaysBefore"`
}

type LeadTimeConditions struct {
	MinHours float64 `json:"minHours"`
}

// CustomConditions is free-form; only Description is read.
type CustomConditions struct {
	Description string `json:"description"`
}

func (DateRangeConditions) RuleType() string          { return model.RuleTypeDateRange }
func (ConsecutiveBookingConditions) RuleType() string { return model.RuleTypeConsecutiveBooking }
func (ConcurrentBookingConditions) RuleType() string  { return model.RuleTypeConcurrentBooking }
func (LeadTimeConditions) RuleType() string           { return model.RuleTypeLeadTime }
func (CustomConditions) RuleType() string             { return model.RuleTypeCustom }

// ParseConditions decodes raw into the variant for ruleType. Missing or
// malformed required fields are reported as errors.
func ParseConditions(ruleType string, raw []byte) (Conditions, error) {
	if ruleType == model.RuleTypeCustom {
		return parseCustom(raw), nil
	}

	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, ErrMissingConditions
	}

	switch ruleType {
	case model.RuleTypeDateRange:
		var p struct {
			StartMonthDay *string `json:"startMonthDay"`
			EndMonthDay   *string `json:"endMonthDay"`
		}
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("invalid date_range conditions: %w", err)
		}
		if p.StartMonthDay == nil || p.EndMonthDay == nil {
			return nil, fmt.Errorf("date_range requires startMonthDay and endMonthDay: %w", ErrMissingConditions)
		}
		start, err := normalizeMonthDay(*p.StartMonthDay)
		if err != nil {
			return nil, fmt.Errorf("invalid startMonthDay: %w", err)
		}
		end, err := normalizeMonthDay(*p.EndMonthDay)
		if err != nil {
			return nil, fmt.Errorf("invalid endMonthDay: %w", err)
		}
		return DateRangeConditions{StartMonthDay: start, EndMonthDay: end}, nil

	case model.RuleTypeConsecutiveBooking:
		var p struct {
			Count *int    `json:"count"`
			Unit  *string `json:"unit"`
		}
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("invalid consecutive_booking conditions: %w", err)
		}
		if p.Count == nil || p.Unit == nil {
			return nil, fmt.Errorf("consecutive_booking requires count and unit: %w", ErrMissingConditions)
		}
		if *p.Count < 1 {
			return nil, fmt.Errorf("consecutive_booking count must be at least 1, got %d", *p.Count)
		}
		unit := strings.ToLower(strings.TrimSpace(*p.Unit))
		switch unit {
		case UnitWeekends, UnitWeeks, UnitDays:
		default:
			return nil, fmt.Errorf("unsupported consecutive_booking unit %q", *p.Unit)
		}
		return ConsecutiveBookingConditions{Count: *p.Count, Unit: unit}, nil

	case model.RuleTypeConcurrentBooking:
		var p struct {
			MaxAssets            *int `json:"maxAssets"`
			MinRequestDaysBefore *int `json:"minRequestDaysBefore"`
		}
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("invalid concurrent_booking conditions: %w", err)
		}
		if p.MaxAssets == nil || p.MinRequestDaysBefore == nil {
			return nil, fmt.Errorf("concurrent_booking requires maxAssets and minRequestDaysBefore: %w", ErrMissingConditions)
		}
		if *p.MaxAssets < 1 || *p.MinRequestDaysBefore < 0 {
			return nil, fmt.Errorf("concurrent_booking limits out of range (maxAssets=%d, minRequestDaysBefore=%d)", *p.MaxAssets, *p.MinRequestDaysBefore)
		}
		return ConcurrentBookingConditions{MaxAssets: *p.MaxAssets, MinRequestDaysBefore: *p.MinRequestDaysBefore}, nil

	case model.RuleTypeLeadTime:
		var p struct {
			MinHours *float64 `json:"minHours"`
		}
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("invalid lead_time conditions: %w", err)
		}
		if p.MinHours == nil {
			return nil, fmt.Errorf("lead_time requires minHours: %w", ErrMissingConditions)
		}
		if *p.MinHours < 0 {
			return nil, fmt.Errorf("lead_time minHours must not be negative, got %g", *p.MinHours)
		}
		return LeadTimeConditions{MinHours: *p.MinHours}, nil
	}

	return nil, fmt.Errorf("%w: %q", ErrUnknownRuleType, ruleType)
}

func parseCustom(raw []byte) CustomConditions {
	var c CustomConditions
	if len(raw) > 0 {
		// anything that is not an object just falls back to the generic message
		_ = json.Unmarshal(raw, &c)
	}
	c.Description = strings.TrimSpace(c.Description)
	return c
}

// ValidateRule checks a rule definition before it is stored.
func ValidateRule(rule model.BookingRule) error {
	if strings.TrimSpace(rule.Name) == "" {
		return errors.New("rule name is required")
	}
	if _, err := ParseConditions(rule.RuleType, rule.Conditions); err != nil {
		return err
	}
	if !rule.RequiresApproval {
		return nil
	}
	switch rule.ApprovalType {
	case model.ApprovalTypeAnyApprover, model.ApprovalTypeAllPrincipals, model.ApprovalTypeSpecificUsers:
	case model.ApprovalTypeTierMembers:
		if rule.ApproverTierID == nil {
			return errors.New("approver_tier_id is required for tier_members approval")
		}
	default:
		return fmt.Errorf("unknown approval type %q", rule.ApprovalType)
	}
	return nil
}

// normalizeMonthDay accepts "M-D" or "MM-DD" and returns "MM-DD".
func normalizeMonthDay(v string) (string, error) {
	parts := strings.Split(strings.TrimSpace(v), "-")
	if len(parts) != 2 {
		return "", fmt.Errorf("expected MM-DD, got %q", v)
	}
	month, err := strconv.Atoi(parts[0])
	if err != nil {
		return "", fmt.Errorf("expected MM-DD, got %q", v)
	}
	day, err := strconv.Atoi(parts[1])
	if err != nil {
		return "", fmt.Errorf("expected MM-DD, got %q", v)
	}
	if month < 1 || month > 12 || day < 1 || day > daysInMonth[month-1] {
		return "", fmt.Errorf("month-day out of range: %q", v)
	}
	return fmt.Sprintf("%02d-%02d", month, day), nil
}

// February allows the 29th since bounds are year-agnostic.
var daysInMonth = [12]int{31, 29, 31, 30, 31, 30, 31, 31, 30, 31, 30, 31}
