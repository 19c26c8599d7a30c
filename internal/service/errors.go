package service

import "errors"

var (
	ErrInvalidWindow       = errors.New("booking end must be after its start")
	ErrInvalidRequest      = errors.New("asset_id, user_id and tier_id are required")
	ErrTierNotFound        = errors.New("tier not found")
	ErrNotTierMember       = errors.New("user is not a member of this tier")
	ErrReservationNotFound = errors.New("reservation not found")
	ErrAssetUnavailable    = errors.New("asset already has an active reservation in this window")
	ErrApprovalNotFound    = errors.New("approval not found")
	ErrNotApprover         = errors.New("user is not the approver of this request")
	ErrNotParticipant      = errors.New("user is not a participant of this reservation")
	ErrInvalidAction       = errors.New("action must be approve or reject")
	ErrRuleNotFound        = errors.New("booking rule not found")
	ErrInvalidConditions   = errors.New("invalid rule definition")
)
