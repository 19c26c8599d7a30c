package service

import (
	"context"
	"testing"
	"time"

	"bookingengine/internal/config"
	"bookingengine/internal/model"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

// testNow is a Monday.
var testNow = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

const testTokenTTL = 168 * time.Hour

type fixture struct {
	store    *memStore
	notifier *recordingNotifier

	booking  *bookingService
	approval *approvalService
	rules    *ruleService
	audit    AuditService

	org        uuid.UUID
	principals []uuid.UUID
	principal  model.Tier
	member     model.Tier
	requester  uuid.UUID
	asset      uuid.UUID
}

// newFixture seeds one organization with a principal tier of principalCount
// users and a member tier holding the requester.
func newFixture(t *testing.T, principalCount int) *fixture {
	t.Helper()

	store := newMemStore()
	notifier := &recordingNotifier{}
	log := zap.NewNop()
	cfg := &config.Config{ApprovalTokenTTL: testTokenTTL}

	f := &fixture{
		store:     store,
		notifier:  notifier,
		org:       uuid.New(),
		requester: uuid.New(),
		asset:     uuid.New(),
	}
	for i := 0; i < principalCount; i++ {
		f.principals = append(f.principals, uuid.New())
	}
	f.principal = store.addTier(f.org, "Principals", model.PrincipalTierPriority, f.principals...)
	f.member = store.addTier(f.org, "Members", 2, f.requester)

	ruleRepo := fakeRuleRepo{store}
	tierRepo := fakeTierRepo{store}
	reservationRepo := fakeReservationRepo{store}
	approvalRepo := fakeApprovalRepo{store}
	auditRepo := fakeAuditRepo{store}
	tx := fakeTx{store}

	f.booking = NewBookingService(ruleRepo, tierRepo, reservationRepo, approvalRepo, auditRepo, tx, notifier, cfg, log).(*bookingService)
	f.booking.now = func() time.Time { return testNow }
	f.approval = NewApprovalService(approvalRepo, reservationRepo, auditRepo, tx, notifier, log).(*approvalService)
	f.approval.now = func() time.Time { return testNow.Add(time.Hour) }
	f.rules = NewRuleService(ruleRepo, tierRepo, auditRepo, tx, log).(*ruleService)
	f.audit = NewAuditService(auditRepo)
	return f
}

// addRule stores an active, all-assets rule on the member tier.
func (f *fixture) addRule(name, ruleType, conditions string, opts ...func(*model.BookingRule)) model.BookingRule {
	r := model.BookingRule{
		TierID:             f.member.ID,
		Name:               name,
		RuleType:           ruleType,
		Conditions:         datatypes.JSON(conditions),
		RequiresApproval:   true,
		ApprovalType:       model.ApprovalTypeAllPrincipals,
		AppliesToAllAssets: true,
		IsActive:           true,
	}
	for _, opt := range opts {
		opt(&r)
	}
	return f.store.addRule(r)
}

// request books f.asset for the requester, starting `ahead` after testNow.
func (f *fixture) request(ahead, length time.Duration) BookingRequest {
	start := testNow.Add(ahead)
	return BookingRequest{
		AssetID: f.asset.String(),
		UserID:  f.requester.String(),
		TierID:  f.member.ID.String(),
		Start:   start,
		End:     start.Add(length),
	}
}

// pendingReservation creates a reservation gated by one lead-time rule that
// every principal has to approve, and returns it with the issued tokens.
func (f *fixture) pendingReservation(t *testing.T) (uuid.UUID, []string) {
	t.Helper()
	f.addRule("Short notice", model.RuleTypeLeadTime, `{"minHours": 72}`)

	res, err := f.booking.CreateReservation(context.Background(), f.request(24*time.Hour, 4*time.Hour))
	if err != nil {
		t.Fatalf("CreateReservation() error = %v", err)
	}
	if res.Reservation == nil || res.Reservation.Status != model.ReservationPending {
		t.Fatalf("CreateReservation() reservation = %+v, want pending", res.Reservation)
	}
	id := uuid.MustParse(res.Reservation.ID)
	tokens := f.notifier.tokens(id)
	if len(tokens) != len(f.principals) {
		t.Fatalf("issued %d tokens, want %d", len(tokens), len(f.principals))
	}
	return id, tokens
}
