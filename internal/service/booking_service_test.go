package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"bookingengine/internal/model"
	"bookingengine/internal/rules"

	"github.com/google/uuid"
)

func TestCreateReservationWithoutRulesIsApproved(t *testing.T) {
	f := newFixture(t, 2)

	res, err := f.booking.CreateReservation(context.Background(), f.request(10*24*time.Hour, 4*time.Hour))
	if err != nil {
		t.Fatalf("CreateReservation() error = %v", err)
	}
	if res.Blocked || res.RequiresApproval {
		t.Fatalf("got blocked=%v requiresApproval=%v, want neither", res.Blocked, res.RequiresApproval)
	}
	if res.Reservation == nil || res.Reservation.Status != model.ReservationApproved {
		t.Fatalf("reservation = %+v, want approved", res.Reservation)
	}
	if res.ApprovalsCreated != 0 {
		t.Errorf("ApprovalsCreated = %d, want 0", res.ApprovalsCreated)
	}
}

func TestCreateReservationFansOutOneApprovalPerPrincipal(t *testing.T) {
	f := newFixture(t, 2)
	id, tokens := f.pendingReservation(t)

	approvals := f.store.approvalsFor(id)
	if len(approvals) != 2 {
		t.Fatalf("stored %d approvals, want 2", len(approvals))
	}
	if tokens[0] == tokens[1] {
		t.Fatal("approvers share a token")
	}

	byHash := make(map[string]model.RuleApproval)
	for _, a := range approvals {
		if a.Status != model.ApprovalStatusPending {
			t.Errorf("approval %s status = %q, want pending", a.ID, a.Status)
		}
		if a.Token != "" {
			t.Errorf("approval %s persisted its plaintext token", a.ID)
		}
		if want := testNow.Add(testTokenTTL); !a.TokenExpiresAt.Equal(want) {
			t.Errorf("TokenExpiresAt = %v, want %v", a.TokenExpiresAt, want)
		}
		byHash[a.TokenHash] = a
	}
	approvers := make(map[uuid.UUID]bool)
	for _, tok := range tokens {
		a, ok := byHash[rules.HashToken(tok)]
		if !ok {
			t.Fatalf("token %q does not match any stored hash", tok)
		}
		approvers[a.UserID] = true
	}
	for _, p := range f.principals {
		if !approvers[p] {
			t.Errorf("principal %s got no approval", p)
		}
	}

	actions := f.store.auditActions()
	if len(actions) != 2 || actions[0] != model.ActionCreateReservation || actions[1] != model.ActionRequestApprovals {
		t.Errorf("audit actions = %v, want [%s %s]", actions, model.ActionCreateReservation, model.ActionRequestApprovals)
	}
	if got := f.store.audits[1].EntityID; got != id.String() {
		t.Errorf("request approvals audit entity = %q, want %q", got, id.String())
	}
}

func TestCreateReservationWithoutApprovalsSkipsRequestAudit(t *testing.T) {
	f := newFixture(t, 1)

	if _, err := f.booking.CreateReservation(context.Background(), f.request(10*24*time.Hour, 4*time.Hour)); err != nil {
		t.Fatalf("CreateReservation() error = %v", err)
	}
	actions := f.store.auditActions()
	if len(actions) != 1 || actions[0] != model.ActionCreateReservation {
		t.Errorf("audit actions = %v, want [%s]", actions, model.ActionCreateReservation)
	}
}

func TestCreateReservationRejectsForeignTier(t *testing.T) {
	f := newFixture(t, 2)
	f.addRule("Short notice", model.RuleTypeLeadTime, `{"minHours": 72}`)

	// the requester claims the principal tier to dodge the member tier's rules
	req := f.request(24*time.Hour, 4*time.Hour)
	req.TierID = f.principal.ID.String()

	if _, err := f.booking.EvaluateBooking(context.Background(), req); !errors.Is(err, ErrNotTierMember) {
		t.Errorf("EvaluateBooking() error = %v, want ErrNotTierMember", err)
	}
	if _, err := f.booking.CreateReservation(context.Background(), req); !errors.Is(err, ErrNotTierMember) {
		t.Fatalf("CreateReservation() error = %v, want ErrNotTierMember", err)
	}
	if len(f.store.reservations) != 0 || len(f.store.approvals) != 0 || len(f.store.audits) != 0 {
		t.Errorf("rejected booking wrote reservations=%d approvals=%d audits=%d",
			len(f.store.reservations), len(f.store.approvals), len(f.store.audits))
	}
}

func TestCreateReservationConcurrentSameAsset(t *testing.T) {
	f := newFixture(t, 1)
	req := f.request(10*24*time.Hour, 4*time.Hour)

	const n = 5
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = f.booking.CreateReservation(context.Background(), req)
		}()
	}
	wg.Wait()

	created := 0
	for _, err := range errs {
		switch {
		case err == nil:
			created++
		case !errors.Is(err, ErrAssetUnavailable):
			t.Errorf("CreateReservation() error = %v, want nil or ErrAssetUnavailable", err)
		}
	}
	if created != 1 || len(f.store.reservations) != 1 {
		t.Errorf("created = %d, stored = %d; want exactly one", created, len(f.store.reservations))
	}
	if len(f.store.assetLocks) != n {
		t.Errorf("asset locked %d times, want %d", len(f.store.assetLocks), n)
	}
	for _, a := range f.store.assetLocks {
		if a.String() != req.AssetID {
			t.Errorf("locked asset %s, want %s", a, req.AssetID)
		}
	}
}

func TestCreateReservationBlockedIsNotPersisted(t *testing.T) {
	f := newFixture(t, 1)
	f.addRule("Two boats at once", model.RuleTypeConcurrentBooking, `{"maxAssets": 2, "minRequestDaysBefore": 7}`)

	req := f.request(30*24*time.Hour, 6*time.Hour)
	f.store.addReservation(model.Reservation{
		OrganizationID: f.org,
		AssetID:        uuid.New(),
		UserID:         f.requester,
		TierID:         f.member.ID,
		StartTime:      req.Start,
		EndTime:        req.End,
		Status:         model.ReservationApproved,
	})

	res, err := f.booking.CreateReservation(context.Background(), req)
	if err != nil {
		t.Fatalf("CreateReservation() error = %v", err)
	}
	if !res.Blocked || res.BlockReason == "" {
		t.Fatalf("got blocked=%v reason=%q, want a blocking refusal", res.Blocked, res.BlockReason)
	}
	if res.Reservation != nil {
		t.Errorf("blocked booking returned reservation %+v", res.Reservation)
	}
	if got := len(f.store.reservations); got != 1 {
		t.Errorf("store holds %d reservations, want only the seeded one", got)
	}
	if len(f.store.approvals) != 0 || len(f.store.audits) != 0 {
		t.Errorf("blocked booking wrote approvals=%d audits=%d", len(f.store.approvals), len(f.store.audits))
	}
}

func TestCreateReservationRollsBackWhenFanoutFails(t *testing.T) {
	f := newFixture(t, 2)
	f.addRule("Short notice", model.RuleTypeLeadTime, `{"minHours": 72}`)
	f.store.failCreateBatch = errors.New("insert rule_approvals: connection reset")

	_, err := f.booking.CreateReservation(context.Background(), f.request(24*time.Hour, 4*time.Hour))
	if !errors.Is(err, f.store.failCreateBatch) {
		t.Fatalf("CreateReservation() error = %v, want the fan-out failure", err)
	}
	if len(f.store.reservations) != 0 {
		t.Errorf("reservation survived the rollback")
	}
	if len(f.store.audits) != 0 {
		t.Errorf("audit row survived the rollback")
	}
	if len(f.notifier.requested) != 0 {
		t.Errorf("approvers were notified of a rolled back reservation")
	}
}

func TestCreateReservationRejectsTakenAsset(t *testing.T) {
	f := newFixture(t, 1)
	req := f.request(5*24*time.Hour, 4*time.Hour)
	f.store.addReservation(model.Reservation{
		OrganizationID: f.org,
		AssetID:        f.asset,
		UserID:         uuid.New(),
		TierID:         f.member.ID,
		StartTime:      req.Start.Add(time.Hour),
		EndTime:        req.End.Add(time.Hour),
		Status:         model.ReservationPending,
	})

	_, err := f.booking.CreateReservation(context.Background(), req)
	if !errors.Is(err, ErrAssetUnavailable) {
		t.Fatalf("CreateReservation() error = %v, want ErrAssetUnavailable", err)
	}
}

func TestCreateReservationResolvesApproverSets(t *testing.T) {
	f := newFixture(t, 2)
	captain := uuid.New()
	crewLead := uuid.New()
	crew := f.store.addTier(f.org, "Crew", 3, crewLead, crewLead)

	specific := f.addRule("Captain sign-off", model.RuleTypeCustom, `{"description": "Captain must sign off"}`, func(r *model.BookingRule) {
		r.ApprovalType = model.ApprovalTypeSpecificUsers
	})
	f.store.ruleApprovers = append(f.store.ruleApprovers, model.RuleApprover{RuleID: specific.ID, UserID: captain})
	f.addRule("Crew check", model.RuleTypeCustom, `{}`, func(r *model.BookingRule) {
		r.ApprovalType = model.ApprovalTypeTierMembers
		r.ApproverTierID = &crew.ID
	})

	res, err := f.booking.CreateReservation(context.Background(), f.request(10*24*time.Hour, 4*time.Hour))
	if err != nil {
		t.Fatalf("CreateReservation() error = %v", err)
	}
	if res.ApprovalsCreated != 2 {
		t.Fatalf("ApprovalsCreated = %d, want 2", res.ApprovalsCreated)
	}

	got := make(map[uuid.UUID]uuid.UUID)
	for _, a := range f.store.approvalsFor(uuid.MustParse(res.Reservation.ID)) {
		got[a.RuleID] = a.UserID
	}
	if got[specific.ID] != captain {
		t.Errorf("specific_users approver = %s, want %s", got[specific.ID], captain)
	}
	for ruleID, userID := range got {
		if ruleID != specific.ID && userID != crewLead {
			t.Errorf("tier_members approver = %s, want %s", userID, crewLead)
		}
	}
}

func TestCreateReservationWithoutApproversStaysPending(t *testing.T) {
	f := newFixture(t, 0)
	f.addRule("Needs sign-off", model.RuleTypeCustom, `{}`)

	res, err := f.booking.CreateReservation(context.Background(), f.request(10*24*time.Hour, 4*time.Hour))
	if err != nil {
		t.Fatalf("CreateReservation() error = %v", err)
	}
	if res.Reservation.Status != model.ReservationPending {
		t.Errorf("status = %q, want pending", res.Reservation.Status)
	}
	if res.ApprovalsCreated != 0 {
		t.Errorf("ApprovalsCreated = %d, want 0", res.ApprovalsCreated)
	}
}

func TestEvaluateBooking(t *testing.T) {
	tests := []struct {
		name          string
		setup         func(f *fixture)
		ahead         time.Duration
		wantTriggered []string
		wantBlocked   bool
	}{
		{
			name:  "no rules",
			setup: func(f *fixture) {},
			ahead: 10 * 24 * time.Hour,
		},
		{
			name: "misconfigured rule is skipped",
			setup: func(f *fixture) {
				f.addRule("Broken notice", model.RuleTypeLeadTime, `{}`)
			},
			ahead: time.Hour,
		},
		{
			name: "inactive rule is ignored",
			setup: func(f *fixture) {
				f.addRule("Retired", model.RuleTypeCustom, `{}`, func(r *model.BookingRule) { r.IsActive = false })
			},
			ahead: time.Hour,
		},
		{
			name: "rule linked to another asset is ignored",
			setup: func(f *fixture) {
				r := f.addRule("Other boat", model.RuleTypeCustom, `{}`, func(r *model.BookingRule) { r.AppliesToAllAssets = false })
				f.store.ruleAssets = append(f.store.ruleAssets, model.RuleAsset{RuleID: r.ID, AssetID: uuid.New()})
			},
			ahead: time.Hour,
		},
		{
			name: "override sorts ahead of lower priority numbers",
			setup: func(f *fixture) {
				f.addRule("Regular", model.RuleTypeCustom, `{}`, func(r *model.BookingRule) { r.Priority = 1 })
				f.addRule("Override", model.RuleTypeCustom, `{}`, func(r *model.BookingRule) {
					r.Priority = 5
					r.IsOverride = true
				})
			},
			ahead:         time.Hour,
			wantTriggered: []string{"Override", "Regular"},
		},
		{
			name: "back to back weekends on the asset",
			setup: func(f *fixture) {
				f.addRule("Weekend streak", model.RuleTypeConsecutiveBooking, `{"count": 2, "unit": "weekends"}`)
				// Saturday 2026-03-07, booked by someone else
				f.store.addReservation(model.Reservation{
					OrganizationID: f.org,
					AssetID:        f.asset,
					UserID:         uuid.New(),
					TierID:         f.member.ID,
					StartTime:      testNow.Add(5 * 24 * time.Hour),
					EndTime:        testNow.Add(5*24*time.Hour + 4*time.Hour),
					Status:         model.ReservationApproved,
				})
			},
			// Saturday 2026-03-14
			ahead:         12 * 24 * time.Hour,
			wantTriggered: []string{"Weekend streak"},
		},
		{
			name: "concurrent booking too far ahead blocks",
			setup: func(f *fixture) {
				f.addRule("Two boats at once", model.RuleTypeConcurrentBooking, `{"maxAssets": 2, "minRequestDaysBefore": 7}`)
				start := testNow.Add(30 * 24 * time.Hour)
				f.store.addReservation(model.Reservation{
					OrganizationID: f.org,
					AssetID:        uuid.New(),
					UserID:         f.requester,
					TierID:         f.member.ID,
					StartTime:      start,
					EndTime:        start.Add(4 * time.Hour),
					Status:         model.ReservationPending,
				})
			},
			ahead:       30 * 24 * time.Hour,
			wantBlocked: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, 1)
			tt.setup(f)

			got, err := f.booking.EvaluateBooking(context.Background(), f.request(tt.ahead, 4*time.Hour))
			if err != nil {
				t.Fatalf("EvaluateBooking() error = %v", err)
			}
			if got.Blocked != tt.wantBlocked {
				t.Errorf("Blocked = %v, want %v", got.Blocked, tt.wantBlocked)
			}

			var names []string
			for _, r := range got.TriggeredRules {
				names = append(names, r.RuleName)
			}
			if len(names) != len(tt.wantTriggered) {
				t.Fatalf("triggered = %v, want %v", names, tt.wantTriggered)
			}
			for i := range names {
				if names[i] != tt.wantTriggered[i] {
					t.Errorf("triggered[%d] = %q, want %q", i, names[i], tt.wantTriggered[i])
				}
			}
			if got.RequiresApproval != (len(tt.wantTriggered) > 0) {
				t.Errorf("RequiresApproval = %v", got.RequiresApproval)
			}
			switch {
			case len(tt.wantTriggered) == 0 && got.Governing != nil:
				t.Errorf("Governing = %q, want none", got.Governing.RuleName)
			case len(tt.wantTriggered) > 0 && (got.Governing == nil || got.Governing.RuleName != tt.wantTriggered[0]):
				t.Errorf("Governing = %+v, want %q", got.Governing, tt.wantTriggered[0])
			}
		})
	}
}

func TestEvaluateBookingRejectsBadInput(t *testing.T) {
	f := newFixture(t, 1)

	inverted := f.request(24*time.Hour, 4*time.Hour)
	inverted.Start, inverted.End = inverted.End, inverted.Start
	if _, err := f.booking.EvaluateBooking(context.Background(), inverted); !errors.Is(err, ErrInvalidWindow) {
		t.Errorf("inverted window error = %v, want ErrInvalidWindow", err)
	}

	unknownTier := f.request(24*time.Hour, 4*time.Hour)
	unknownTier.TierID = uuid.NewString()
	if _, err := f.booking.EvaluateBooking(context.Background(), unknownTier); !errors.Is(err, ErrTierNotFound) {
		t.Errorf("unknown tier error = %v, want ErrTierNotFound", err)
	}

	badAsset := f.request(24*time.Hour, 4*time.Hour)
	badAsset.AssetID = "boat-1"
	if _, err := f.booking.EvaluateBooking(context.Background(), badAsset); !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("bad asset error = %v, want ErrInvalidRequest", err)
	}
}

func TestListReservationApprovals(t *testing.T) {
	f := newFixture(t, 3)
	id, _ := f.pendingReservation(t)

	items, err := f.booking.ListReservationApprovals(context.Background(), id.String(), f.requester.String(), false)
	if err != nil {
		t.Fatalf("ListReservationApprovals() error = %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("got %d approvals, want 3", len(items))
	}
	for _, it := range items {
		if it.RuleName != "Short notice" || it.RuleType != model.RuleTypeLeadTime {
			t.Errorf("item rule = %q/%q", it.RuleName, it.RuleType)
		}
	}

	if _, err := f.booking.ListReservationApprovals(context.Background(), uuid.NewString(), f.requester.String(), true); !errors.Is(err, ErrReservationNotFound) {
		t.Errorf("unknown reservation error = %v, want ErrReservationNotFound", err)
	}
}

func TestListReservationApprovalsVisibility(t *testing.T) {
	f := newFixture(t, 2)
	id, _ := f.pendingReservation(t)

	tests := []struct {
		name       string
		viewer     string
		privileged bool
		wantErr    error
	}{
		{"owner", f.requester.String(), false, nil},
		{"approver", f.principals[1].String(), false, nil},
		{"privileged outsider", uuid.NewString(), true, nil},
		{"outsider", uuid.NewString(), false, ErrNotParticipant},
		{"anonymous", "", false, ErrNotParticipant},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			items, err := f.booking.ListReservationApprovals(context.Background(), id.String(), tt.viewer, tt.privileged)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("error = %v, want %v", err, tt.wantErr)
			}
			if tt.wantErr == nil && len(items) != 2 {
				t.Errorf("got %d approvals, want 2", len(items))
			}
			if tt.wantErr != nil && items != nil {
				t.Errorf("outsider received %d approvals", len(items))
			}
		})
	}
}
