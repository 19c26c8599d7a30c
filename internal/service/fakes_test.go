package service

import (
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"bookingengine/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// memStore backs the repository fakes. Transactions are serialized and
// rolled back from a snapshot when the callback fails.
type memStore struct {
	txMu sync.Mutex
	mu   sync.Mutex

	tiers         map[uuid.UUID]model.Tier
	members       []model.TierMember
	rules         map[uuid.UUID]model.BookingRule
	ruleAssets    []model.RuleAsset
	ruleApprovers []model.RuleApprover
	reservations  map[uuid.UUID]model.Reservation
	approvals     []model.RuleApproval
	audits        []model.AuditLog

	transitions     int
	assetLocks      []uuid.UUID
	failCreateBatch error
	clock           time.Time
}

type memSnapshot struct {
	tiers         map[uuid.UUID]model.Tier
	members       []model.TierMember
	rules         map[uuid.UUID]model.BookingRule
	ruleAssets    []model.RuleAsset
	ruleApprovers []model.RuleApprover
	reservations  map[uuid.UUID]model.Reservation
	approvals     []model.RuleApproval
	audits        []model.AuditLog
	transitions   int
}

func newMemStore() *memStore {
	return &memStore{
		tiers:        make(map[uuid.UUID]model.Tier),
		rules:        make(map[uuid.UUID]model.BookingRule),
		reservations: make(map[uuid.UUID]model.Reservation),
		clock:        testNow,
	}
}

func (s *memStore) snapshot() memSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return memSnapshot{
		tiers:         maps.Clone(s.tiers),
		members:       slices.Clone(s.members),
		rules:         maps.Clone(s.rules),
		ruleAssets:    slices.Clone(s.ruleAssets),
		ruleApprovers: slices.Clone(s.ruleApprovers),
		reservations:  maps.Clone(s.reservations),
		approvals:     slices.Clone(s.approvals),
		audits:        slices.Clone(s.audits),
		transitions:   s.transitions,
	}
}

func (s *memStore) restore(snap memSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tiers = snap.tiers
	s.members = snap.members
	s.rules = snap.rules
	s.ruleAssets = snap.ruleAssets
	s.ruleApprovers = snap.ruleApprovers
	s.reservations = snap.reservations
	s.approvals = snap.approvals
	s.audits = snap.audits
	s.transitions = snap.transitions
}

// tick returns a strictly increasing timestamp for CreatedAt columns.
func (s *memStore) tick() time.Time {
	s.clock = s.clock.Add(time.Millisecond)
	return s.clock
}

// --- seeding helpers (not part of any interface) ---

func (s *memStore) addTier(org uuid.UUID, name string, priority int, members ...uuid.UUID) model.Tier {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := model.Tier{ID: uuid.New(), OrganizationID: org, Name: name, Priority: priority, CreatedAt: s.tick()}
	s.tiers[t.ID] = t
	for _, m := range members {
		s.members = append(s.members, model.TierMember{TierID: t.ID, UserID: m})
	}
	return t
}

func (s *memStore) addRule(r model.BookingRule) model.BookingRule {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	r.CreatedAt = s.tick()
	s.rules[r.ID] = r
	return r
}

func (s *memStore) addReservation(r model.Reservation) model.Reservation {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	r.CreatedAt = s.tick()
	s.reservations[r.ID] = r
	return r
}

func (s *memStore) reservation(id uuid.UUID) model.Reservation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reservations[id]
}

func (s *memStore) approvalsFor(reservationID uuid.UUID) []model.RuleApproval {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.RuleApproval
	for _, a := range s.approvals {
		if a.ReservationID == reservationID {
			out = append(out, a)
		}
	}
	return out
}

func (s *memStore) auditActions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.audits))
	for _, a := range s.audits {
		out = append(out, a.Action)
	}
	return out
}

func (s *memStore) transitionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transitions
}

// --- TransactionManager ---

type fakeTx struct{ s *memStore }

func (t fakeTx) RunInTx(ctx context.Context, fn func(txCtx context.Context) error) error {
	t.s.txMu.Lock()
	defer t.s.txMu.Unlock()

	snap := t.s.snapshot()
	if err := fn(ctx); err != nil {
		t.s.restore(snap)
		return err
	}
	return nil
}

// --- BookingRuleRepository ---

type fakeRuleRepo struct{ s *memStore }

func (r fakeRuleRepo) Create(_ context.Context, rule *model.BookingRule) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if rule.ID == uuid.Nil {
		rule.ID = uuid.New()
	}
	rule.CreatedAt = r.s.tick()
	rule.UpdatedAt = rule.CreatedAt
	r.s.rules[rule.ID] = *rule
	return nil
}

func (r fakeRuleRepo) Update(_ context.Context, rule *model.BookingRule) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	rule.UpdatedAt = r.s.tick()
	r.s.rules[rule.ID] = *rule
	return nil
}

func (r fakeRuleRepo) FindByID(_ context.Context, id uuid.UUID) (*model.BookingRule, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	rule, ok := r.s.rules[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &rule, nil
}

func (r fakeRuleRepo) listByTier(tierID uuid.UUID, activeOnly bool) []model.BookingRule {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []model.BookingRule
	for _, rule := range r.s.rules {
		if rule.TierID == tierID && (!activeOnly || rule.IsActive) {
			out = append(out, rule)
		}
	}
	slices.SortFunc(out, func(a, b model.BookingRule) int { return a.CreatedAt.Compare(b.CreatedAt) })
	return out
}

func (r fakeRuleRepo) ListByTier(_ context.Context, tierID uuid.UUID) ([]model.BookingRule, error) {
	return r.listByTier(tierID, false), nil
}

func (r fakeRuleRepo) ListActiveByTier(_ context.Context, tierID uuid.UUID) ([]model.BookingRule, error) {
	return r.listByTier(tierID, true), nil
}

func (r fakeRuleRepo) ListAssetLinks(_ context.Context, ruleIDs []uuid.UUID) ([]model.RuleAsset, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []model.RuleAsset
	for _, l := range r.s.ruleAssets {
		if slices.Contains(ruleIDs, l.RuleID) {
			out = append(out, l)
		}
	}
	return out, nil
}

func (r fakeRuleRepo) ListSpecificApprovers(_ context.Context, ruleIDs []uuid.UUID) ([]model.RuleApprover, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []model.RuleApprover
	for _, a := range r.s.ruleApprovers {
		if slices.Contains(ruleIDs, a.RuleID) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (r fakeRuleRepo) ReplaceAssetLinks(_ context.Context, ruleID uuid.UUID, assetIDs []uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.ruleAssets = slices.DeleteFunc(r.s.ruleAssets, func(l model.RuleAsset) bool { return l.RuleID == ruleID })
	for _, id := range assetIDs {
		r.s.ruleAssets = append(r.s.ruleAssets, model.RuleAsset{RuleID: ruleID, AssetID: id})
	}
	return nil
}

func (r fakeRuleRepo) ReplaceApprovers(_ context.Context, ruleID uuid.UUID, userIDs []uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.ruleApprovers = slices.DeleteFunc(r.s.ruleApprovers, func(a model.RuleApprover) bool { return a.RuleID == ruleID })
	for _, id := range userIDs {
		r.s.ruleApprovers = append(r.s.ruleApprovers, model.RuleApprover{RuleID: ruleID, UserID: id})
	}
	return nil
}

// --- TierRepository ---

type fakeTierRepo struct{ s *memStore }

func (r fakeTierRepo) FindByID(_ context.Context, id uuid.UUID) (*model.Tier, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.tiers[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &t, nil
}

func (r fakeTierRepo) FindPrincipal(_ context.Context, organizationID uuid.UUID) (*model.Tier, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var found *model.Tier
	for _, t := range r.s.tiers {
		if t.OrganizationID != organizationID || t.Priority != model.PrincipalTierPriority {
			continue
		}
		if found == nil || t.CreatedAt.Before(found.CreatedAt) {
			found = &t
		}
	}
	if found == nil {
		return nil, gorm.ErrRecordNotFound
	}
	return found, nil
}

func (r fakeTierRepo) ListMemberIDs(_ context.Context, tierID uuid.UUID) ([]uuid.UUID, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var ids []uuid.UUID
	for _, m := range r.s.members {
		if m.TierID == tierID {
			ids = append(ids, m.UserID)
		}
	}
	return ids, nil
}

func (r fakeTierRepo) IsMember(_ context.Context, tierID, userID uuid.UUID) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return slices.Contains(r.s.members, model.TierMember{TierID: tierID, UserID: userID}), nil
}

func (r fakeTierRepo) ListMemberIDsByTiers(_ context.Context, tierIDs []uuid.UUID) (map[uuid.UUID][]uuid.UUID, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make(map[uuid.UUID][]uuid.UUID, len(tierIDs))
	for _, m := range r.s.members {
		if slices.Contains(tierIDs, m.TierID) {
			out[m.TierID] = append(out[m.TierID], m.UserID)
		}
	}
	return out, nil
}

// --- ReservationRepository ---

type fakeReservationRepo struct{ s *memStore }

func (r fakeReservationRepo) Create(_ context.Context, res *model.Reservation) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if res.ID == uuid.Nil {
		res.ID = uuid.New()
	}
	res.CreatedAt = r.s.tick()
	r.s.reservations[res.ID] = *res
	return nil
}

func (r fakeReservationRepo) FindByID(_ context.Context, id uuid.UUID) (*model.Reservation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	res, ok := r.s.reservations[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &res, nil
}

// LockByID relies on fakeTx serializing transactions.
func (r fakeReservationRepo) LockByID(ctx context.Context, id uuid.UUID) (*model.Reservation, error) {
	return r.FindByID(ctx, id)
}

func (r fakeReservationRepo) TransitionStatus(_ context.Context, id uuid.UUID, from, to string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	res, ok := r.s.reservations[id]
	if !ok || res.Status != from {
		return false, nil
	}
	res.Status = to
	r.s.reservations[id] = res
	r.s.transitions++
	return true, nil
}

func (r fakeReservationRepo) ListActiveForAsset(_ context.Context, assetID uuid.UUID, from, to time.Time) ([]model.Reservation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []model.Reservation
	for _, res := range r.s.reservations {
		if res.AssetID == assetID && res.IsActive() && !res.StartTime.Before(from) && !res.StartTime.After(to) {
			out = append(out, res)
		}
	}
	return out, nil
}

func (r fakeReservationRepo) ListActiveOverlappingForUser(_ context.Context, userID uuid.UUID, start, end time.Time) ([]model.Reservation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []model.Reservation
	for _, res := range r.s.reservations {
		if res.UserID == userID && res.IsActive() && res.StartTime.Before(end) && res.EndTime.After(start) {
			out = append(out, res)
		}
	}
	return out, nil
}

// LockAsset records the lock; fakeTx already serializes transactions.
func (r fakeReservationRepo) LockAsset(_ context.Context, assetID uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.assetLocks = append(r.s.assetLocks, assetID)
	return nil
}

func (r fakeReservationRepo) HasActiveOverlapForAsset(_ context.Context, assetID uuid.UUID, start, end time.Time) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, res := range r.s.reservations {
		if res.AssetID == assetID && res.IsActive() && res.StartTime.Before(end) && res.EndTime.After(start) {
			return true, nil
		}
	}
	return false, nil
}

// --- RuleApprovalRepository ---

type fakeApprovalRepo struct{ s *memStore }

func (r fakeApprovalRepo) CreateBatch(_ context.Context, approvals []model.RuleApproval) error {
	if len(approvals) == 0 {
		return nil
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.failCreateBatch != nil {
		return r.s.failCreateBatch
	}
	for _, a := range approvals {
		a.Token = ""
		a.CreatedAt = r.s.tick()
		r.s.approvals = append(r.s.approvals, a)
	}
	return nil
}

func (r fakeApprovalRepo) find(match func(model.RuleApproval) bool) (*model.RuleApproval, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, a := range r.s.approvals {
		if match(a) {
			return &a, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r fakeApprovalRepo) FindByID(_ context.Context, id uuid.UUID) (*model.RuleApproval, error) {
	return r.find(func(a model.RuleApproval) bool { return a.ID == id })
}

func (r fakeApprovalRepo) FindByTokenHash(_ context.Context, hash string) (*model.RuleApproval, error) {
	return r.find(func(a model.RuleApproval) bool { return a.TokenHash == hash })
}

func (r fakeApprovalRepo) withRule(a model.RuleApproval) model.RuleApproval {
	if rule, ok := r.s.rules[a.RuleID]; ok {
		a.Rule = &rule
	}
	return a
}

func (r fakeApprovalRepo) ListByReservation(_ context.Context, reservationID uuid.UUID) ([]model.RuleApproval, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []model.RuleApproval
	for _, a := range r.s.approvals {
		if a.ReservationID == reservationID {
			out = append(out, r.withRule(a))
		}
	}
	return out, nil
}

func (r fakeApprovalRepo) ListPendingForUser(_ context.Context, userID uuid.UUID, page, limit int) ([]model.RuleApproval, int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var all []model.RuleApproval
	for _, a := range r.s.approvals {
		if a.UserID == userID && a.Status == model.ApprovalStatusPending {
			all = append(all, r.withRule(a))
		}
	}
	total := int64(len(all))
	offset := (page - 1) * limit
	if offset >= len(all) {
		return []model.RuleApproval{}, total, nil
	}
	end := min(offset+limit, len(all))
	return all[offset:end], total, nil
}

func (r fakeApprovalRepo) UpdateStatusIfPending(_ context.Context, id uuid.UUID, status string, respondedAt time.Time) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for i, a := range r.s.approvals {
		if a.ID != id {
			continue
		}
		if a.Status != model.ApprovalStatusPending {
			return false, nil
		}
		at := respondedAt
		r.s.approvals[i].Status = status
		r.s.approvals[i].RespondedAt = &at
		return true, nil
	}
	return false, nil
}

// --- AuditRepository ---

type fakeAuditRepo struct{ s *memStore }

func (r fakeAuditRepo) Log(_ context.Context, entry *model.AuditLog) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	entry.ID = uuid.New()
	entry.CreatedAt = r.s.tick()
	r.s.audits = append(r.s.audits, *entry)
	return nil
}

func (r fakeAuditRepo) List(_ context.Context, entityID string, page, limit int) ([]model.AuditLog, int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var all []model.AuditLog
	for i := len(r.s.audits) - 1; i >= 0; i-- {
		if entityID == "" || r.s.audits[i].EntityID == entityID {
			all = append(all, r.s.audits[i])
		}
	}
	total := int64(len(all))
	offset := (page - 1) * limit
	if offset >= len(all) {
		return []model.AuditLog{}, total, nil
	}
	return all[offset:min(offset+limit, len(all))], total, nil
}

// --- ApprovalNotifier ---

type recordingNotifier struct {
	mu        sync.Mutex
	requested []model.RuleApproval
	decided   []model.Reservation
}

func (n *recordingNotifier) ApprovalsRequested(_ context.Context, _ model.Reservation, approvals []model.RuleApproval) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.requested = append(n.requested, approvals...)
}

func (n *recordingNotifier) ReservationDecided(_ context.Context, reservation model.Reservation) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.decided = append(n.decided, reservation)
}

// tokens returns the plaintext tokens handed out for a reservation, in fan-out order.
func (n *recordingNotifier) tokens(reservationID uuid.UUID) []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []string
	for _, a := range n.requested {
		if a.ReservationID == reservationID {
			out = append(out, a.Token)
		}
	}
	return out
}

func (n *recordingNotifier) decidedCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.decided)
}
