package rules

import (
	"fmt"
	"time"

	"bookingengine/internal/model"

	"github.com/google/uuid"
)

const defaultCustomMessage = "This booking requires approval"

// BookingWindow is the candidate booking being checked.
type BookingWindow struct {
	AssetID uuid.UUID
	UserID  uuid.UUID
	Start   time.Time
	End     time.Time
}

// EvalContext carries the clock and the existing reservations evaluators look at.
type EvalContext struct {
	Now time.Time
	// AssetReservations are reservations on the candidate asset near the window (consecutive_booking).
	AssetReservations []model.Reservation
	// UserReservations are the requester's reservations overlapping the window (concurrent_booking).
	UserReservations []model.Reservation
}

// Verdict is the outcome of one evaluator. CanRequest is false only for a hard block.
type Verdict struct {
	Triggered  bool
	CanRequest bool
	Message    string
}

func notTriggered() Verdict { return Verdict{CanRequest: true} }

func triggered(format string, args ...interface{}) Verdict {
	return Verdict{Triggered: true, CanRequest: true, Message: fmt.Sprintf(format, args...)}
}

// Evaluate runs the evaluator for the rule's type. An error means the rule is
// misconfigured; the verdict is then always "not triggered".
func Evaluate(rule model.BookingRule, w BookingWindow, ec EvalContext) (Verdict, error) {
	cond, err := ParseConditions(rule.RuleType, rule.Conditions)
	if err != nil {
		return notTriggered(), err
	}
	return EvaluateConditions(cond, rule.IsActive, w, ec), nil
}

// EvaluateConditions dispatches on the condition variant.
func EvaluateConditions(cond Conditions, active bool, w BookingWindow, ec EvalContext) Verdict {
	switch c := cond.(type) {
	case DateRangeConditions:
		return evaluateDateRange(c, w)
	case ConsecutiveBookingConditions:
		return evaluateConsecutive(c, w, ec)
	case ConcurrentBookingConditions:
		return evaluateConcurrent(c, w, ec)
	case LeadTimeConditions:
		return evaluateLeadTime(c, w, ec)
	case CustomConditions:
		return evaluateCustom(c, active)
	}
	return notTriggered()
}

func evaluateDateRange(c DateRangeConditions, w BookingWindow) Verdict {
	start, end := monthDay(w.Start), monthDay(w.End)
	if inMonthDayRange(start, c.StartMonthDay, c.EndMonthDay) || inMonthDayRange(end, c.StartMonthDay, c.EndMonthDay) {
		return triggered("Booking falls within the restricted period %s to %s", c.StartMonthDay, c.EndMonthDay)
	}
	return notTriggered()
}

func evaluateConsecutive(c ConsecutiveBookingConditions, w BookingWindow, ec EvalContext) Verdict {
	if c.Unit == UnitWeekends && !touchesWeekend(w.Start, w.End) {
		return notTriggered()
	}

	occupied := map[int64]bool{periodIndex(w.Start, c.Unit): true}
	for _, r := range ec.AssetReservations {
		if r.AssetID != w.AssetID || !r.IsActive() {
			continue
		}
		if c.Unit == UnitWeekends && !touchesWeekend(r.StartTime, r.EndTime) {
			continue
		}
		occupied[periodIndex(r.StartTime, c.Unit)] = true
	}

	idx := periodIndex(w.Start, c.Unit)
	run := 1
	for i := idx - 1; occupied[i]; i-- {
		run++
	}
	for i := idx + 1; occupied[i]; i++ {
		run++
	}

	if run >= c.Count {
		return triggered("Booking would make %d consecutive %s on this asset (limit %d)", run, c.Unit, c.Count)
	}
	return notTriggered()
}

func evaluateConcurrent(c ConcurrentBookingConditions, w BookingWindow, ec EvalContext) Verdict {
	others := make(map[uuid.UUID]struct{})
	for _, r := range ec.UserReservations {
		if r.UserID != w.UserID || r.AssetID == w.AssetID || !r.IsActive() {
			continue
		}
		if w.Start.Before(r.EndTime) && w.End.After(r.StartTime) {
			others[r.AssetID] = struct{}{}
		}
	}

	// the candidate itself counts toward the limit
	total := len(others) + 1
	if total < c.MaxAssets {
		return notTriggered()
	}

	daysUntil := w.Start.Sub(ec.Now).Hours() / 24
	if daysUntil > float64(c.MinRequestDaysBefore) {
		return Verdict{
			Triggered:  true,
			CanRequest: false,
			Message: fmt.Sprintf("You already hold %d overlapping booking(s) on other assets; a concurrent booking can only be requested within %d days of its start",
				len(others), c.MinRequestDaysBefore),
		}
	}
	return triggered("Booking would give you %d concurrent assets (limit %d)", total, c.MaxAssets)
}

func evaluateLeadTime(c LeadTimeConditions, w BookingWindow, ec EvalContext) Verdict {
	hours := w.Start.Sub(ec.Now).Hours()
	if hours < c.MinHours {
		return triggered("Booking starts in %.0f hours, less than the required %g hours notice", hours, c.MinHours)
	}
	return notTriggered()
}

func evaluateCustom(c CustomConditions, active bool) Verdict {
	if !active {
		return notTriggered()
	}
	if c.Description != "" {
		return triggered("%s", c.Description)
	}
	return triggered("%s", defaultCustomMessage)
}
