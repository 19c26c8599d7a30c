package rules

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"bookingengine/internal/model"
)

var (
	ErrAlreadyResponded = errors.New("approval has already been responded to")
	ErrInvalidAction    = errors.New("action must be approve or reject")
)

// Action is an approver's decision.
type Action string

const (
	ActionApprove Action = "approve"
	ActionReject  Action = "reject"
)

func ParseAction(v string) (Action, error) {
	switch Action(strings.ToLower(strings.TrimSpace(v))) {
	case ActionApprove:
		return ActionApprove, nil
	case ActionReject:
		return ActionReject, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidAction, v)
}

// Status is the approval status the action resolves to.
func (a Action) Status() string {
	if a == ActionReject {
		return model.ApprovalStatusRejected
	}
	return model.ApprovalStatusApproved
}

// Respond moves a pending approval to its terminal status. Resolved approvals
// are never overwritten.
func Respond(a *model.RuleApproval, action Action, now time.Time) error {
	if a.Status != model.ApprovalStatusPending {
		return ErrAlreadyResponded
	}
	a.Status = action.Status()
	a.RespondedAt = &now
	return nil
}

// TokenExpired reports whether the approval's link can no longer be used.
func TokenExpired(a model.RuleApproval, now time.Time) bool {
	return a.TokenExpiresAt.Before(now)
}

// AggregateOutcome folds the approval statuses of one reservation into the
// reservation status. A single rejection vetoes; approval needs every row.
func AggregateOutcome(statuses []string) string {
	if len(statuses) == 0 {
		return model.ReservationPending
	}
	approved := 0
	for _, s := range statuses {
		switch s {
		case model.ApprovalStatusRejected:
			return model.ReservationRejected
		case model.ApprovalStatusApproved:
			approved++
		}
	}
	if approved == len(statuses) {
		return model.ReservationApproved
	}
	return model.ReservationPending
}
