package rules

import (
	"fmt"
	"time"

	"bookingengine/internal/model"

	"github.com/google/uuid"
)

// ApproverDirectory holds the approver sets resolved by the caller.
type ApproverDirectory struct {
	// PrincipalUserIDs are the members of the priority-1 tier.
	PrincipalUserIDs []uuid.UUID
	// TierMembers maps a tier id to its member ids.
	TierMembers map[uuid.UUID][]uuid.UUID
	// SpecificUsers maps a rule id to its configured approvers.
	SpecificUsers map[uuid.UUID][]uuid.UUID
}

// Resolve returns the distinct approvers of one triggered rule.
//
// any_approver and unrecognized types fall back to the principal tier. That
// conflates "anyone may approve" with "principals approve" and is kept as is.
func (d ApproverDirectory) Resolve(r RuleCheckResult) []uuid.UUID {
	var ids []uuid.UUID
	switch r.ApprovalType {
	case model.ApprovalTypeAllPrincipals:
		ids = d.PrincipalUserIDs
	case model.ApprovalTypeTierMembers:
		if r.ApproverTierID != nil {
			ids = d.TierMembers[*r.ApproverTierID]
		}
	case model.ApprovalTypeSpecificUsers:
		ids = d.SpecificUsers[r.RuleID]
	default:
		ids = d.PrincipalUserIDs
	}
	return dedupe(ids)
}

// FanoutRequest describes one reservation's approval fan-out.
type FanoutRequest struct {
	OrganizationID uuid.UUID
	ReservationID  uuid.UUID
	Triggered      []RuleCheckResult
	Directory      ApproverDirectory
	Now            time.Time
	TokenTTL       time.Duration
}

// BuildApprovals emits one pending RuleApproval per (rule, approver) pair for
// every triggered rule that requires approval. Rules without approvers emit nothing.
func BuildApprovals(req FanoutRequest) ([]model.RuleApproval, error) {
	var out []model.RuleApproval
	for _, rule := range req.Triggered {
		if !rule.Triggered || rule.Blocking || !rule.RequiresApproval {
			continue
		}
		for _, userID := range req.Directory.Resolve(rule) {
			token, hash, err := NewApprovalToken()
			if err != nil {
				return nil, fmt.Errorf("failed to generate approval token: %w", err)
			}
			out = append(out, model.RuleApproval{
				ID:             uuid.New(),
				OrganizationID: req.OrganizationID,
				ReservationID:  req.ReservationID,
				RuleID:         rule.RuleID,
				UserID:         userID,
				Status:         model.ApprovalStatusPending,
				Token:          token,
				TokenHash:      hash,
				TokenExpiresAt: req.Now.Add(req.TokenTTL),
			})
		}
	}
	return out, nil
}

// NeedsApproval reports whether any triggered rule requires approval, whether
// or not approvers could be resolved for it.
func NeedsApproval(triggered []RuleCheckResult) bool {
	for _, r := range triggered {
		if r.Triggered && !r.Blocking && r.RequiresApproval {
			return true
		}
	}
	return false
}

func dedupe(ids []uuid.UUID) []uuid.UUID {
	if len(ids) == 0 {
		return nil
	}
	seen := make(map[uuid.UUID]bool, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if id == uuid.Nil || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
