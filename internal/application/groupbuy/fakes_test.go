package groupbuy

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/groupbuy/backend/internal/domain/groupbuy"
	"github.com/groupbuy/backend/internal/domain/shared"
	"github.com/groupbuy/backend/internal/domain/shared/valueobject"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
)

var testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func testProduct() groupbuy.ProductSnapshot {
	return groupbuy.ProductSnapshot{
		ProductID: "sku-espresso-01",
		Name:      "Espresso Machine",
		BasePrice: dec("100"),
		Currency:  valueobject.USD,
	}
}

func testTiers() []PriceTierDTO {
	return []PriceTierDTO{
		{MinQty: 10, Price: dec("90")},
		{MinQty: 20, Price: dec("80")},
	}
}

// memoryRepo is an in-memory GroupOrderRepository. It stores copies so
// callers cannot mutate stored state without saving.
type memoryRepo struct {
	mu        sync.Mutex
	groups    map[uuid.UUID]*groupbuy.GroupOrder
	conflicts int // Save calls that fail with a version conflict before succeeding
	saves     int
	findErr   error
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{groups: make(map[uuid.UUID]*groupbuy.GroupOrder)}
}

func cloneGroup(g *groupbuy.GroupOrder) *groupbuy.GroupOrder {
	c := *g
	c.ClearDomainEvents()
	c.Participants = make([]*groupbuy.Participant, 0, len(g.Participants))
	for _, p := range g.Participants {
		cp := *p
		c.Participants = append(c.Participants, &cp)
	}
	c.RemindersSent = append([]groupbuy.ReminderWindow(nil), g.RemindersSent...)
	c.PriceTiers = append(groupbuy.PriceTiers(nil), g.PriceTiers...)
	if g.Proposal != nil {
		prop := *g.Proposal
		c.Proposal = &prop
	}
	return &c
}

// withEvents returns a copy of g carrying the events raised on src
func withEvents(g *groupbuy.GroupOrder, src *groupbuy.GroupOrder) *groupbuy.GroupOrder {
	c := cloneGroup(g)
	for _, e := range src.GetDomainEvents() {
		c.AddDomainEvent(e)
	}
	return c
}

func (r *memoryRepo) put(g *groupbuy.GroupOrder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.groups[g.ID] = cloneGroup(g)
}

func (r *memoryRepo) setFindErr(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.findErr = err
}

func (r *memoryRepo) get(id uuid.UUID) *groupbuy.GroupOrder {
	r.mu.Lock()
	defer r.mu.Unlock()
	return cloneGroup(r.groups[id])
}

func (r *memoryRepo) FindByID(_ context.Context, id uuid.UUID) (*groupbuy.GroupOrder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.findErr != nil {
		return nil, r.findErr
	}
	g, ok := r.groups[id]
	if !ok {
		return nil, shared.NewNotFoundError("group order not found")
	}
	return cloneGroup(g), nil
}

func (r *memoryRepo) FindActive(_ context.Context, q groupbuy.ActiveQuery) ([]*groupbuy.GroupOrder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*groupbuy.GroupOrder, 0)
	for _, g := range r.groups {
		if g.Status != groupbuy.StatusOpen || !g.Deadline.After(q.Now) {
			continue
		}
		if q.ExcludeProductID != "" && g.Product.ProductID == q.ExcludeProductID {
			continue
		}
		out = append(out, cloneGroup(g))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CurrentQty != out[j].CurrentQty {
			return out[i].CurrentQty > out[j].CurrentQty
		}
		return out[i].Deadline.Before(out[j].Deadline)
	})
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (r *memoryRepo) FindPendingProposals(ctx context.Context, filter shared.Filter) ([]*groupbuy.GroupOrder, int64, error) {
	return r.FindAll(ctx, filter, groupbuy.StatusPendingApproval)
}

func (r *memoryRepo) FindAll(_ context.Context, _ shared.Filter, statuses ...groupbuy.Status) ([]*groupbuy.GroupOrder, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*groupbuy.GroupOrder, 0)
	for _, g := range r.groups {
		if len(statuses) > 0 && !containsStatus(statuses, g.Status) {
			continue
		}
		out = append(out, cloneGroup(g))
	}
	return out, int64(len(out)), nil
}

func containsStatus(list []groupbuy.Status, s groupbuy.Status) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func (r *memoryRepo) FindOpenIDs(_ context.Context) ([]uuid.UUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]uuid.UUID, 0)
	for id, g := range r.groups {
		if g.Status == groupbuy.StatusOpen {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (r *memoryRepo) Create(_ context.Context, g *groupbuy.GroupOrder) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.groups[g.ID] = cloneGroup(g)
	return nil
}

func (r *memoryRepo) Save(_ context.Context, g *groupbuy.GroupOrder, _ ...*groupbuy.Participant) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saves++
	stored, ok := r.groups[g.ID]
	if !ok {
		return shared.NewNotFoundError("group order not found")
	}
	if r.conflicts > 0 {
		r.conflicts--
		stored.Version++
		return shared.ErrConcurrencyConflict
	}
	if stored.Version != g.Version {
		return shared.ErrConcurrencyConflict
	}
	g.Version++
	r.groups[g.ID] = cloneGroup(g)
	return nil
}

func (r *memoryRepo) Join(_ context.Context, cmd groupbuy.JoinCommand) (*groupbuy.LedgerChange, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.groups[cmd.GroupID]
	if !ok {
		return nil, shared.NewNotFoundError("group order not found")
	}
	work := cloneGroup(stored)
	repriced, err := work.Join(cmd.Participant, cmd.Mode, cmd.Policy, cmd.Now)
	if err != nil {
		return nil, err
	}
	work.Version++
	r.groups[work.ID] = cloneGroup(work)
	return &groupbuy.LedgerChange{Group: withEvents(work, work), Participant: cmd.Participant, Repriced: repriced}, nil
}

func (r *memoryRepo) Leave(_ context.Context, cmd groupbuy.LeaveCommand) (*groupbuy.LedgerChange, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.groups[cmd.GroupID]
	if !ok {
		return nil, shared.NewNotFoundError("group order not found")
	}
	work := cloneGroup(stored)
	removed, repriced, err := work.Leave(cmd.ParticipantID, cmd.Policy, cmd.Now)
	if err != nil {
		return nil, err
	}
	work.Version++
	r.groups[work.ID] = cloneGroup(work)
	return &groupbuy.LedgerChange{Group: withEvents(work, work), Participant: removed, Repriced: repriced}, nil
}

func (r *memoryRepo) FindParticipant(_ context.Context, groupID, participantID uuid.UUID) (*groupbuy.Participant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.groups[groupID]
	if !ok {
		return nil, shared.NewNotFoundError("group order not found")
	}
	p, ok := g.FindParticipant(participantID)
	if !ok {
		return nil, shared.NewNotFoundError("participant not found")
	}
	cp := *p
	return &cp, nil
}

// memoryReminderLog is an in-memory ReminderLog
type memoryReminderLog struct {
	mu     sync.Mutex
	claims map[string]time.Time
}

func newMemoryReminderLog() *memoryReminderLog {
	return &memoryReminderLog{claims: make(map[string]time.Time)}
}

func (l *memoryReminderLog) Claim(_ context.Context, groupID uuid.UUID, window groupbuy.ReminderWindow, at time.Time) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	key := groupID.String() + "/" + string(window)
	if _, ok := l.claims[key]; ok {
		return false, nil
	}
	l.claims[key] = at
	return true, nil
}

func (l *memoryReminderLog) Release(_ context.Context, groupID uuid.UUID, window groupbuy.ReminderWindow) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.claims, groupID.String()+"/"+string(window))
	return nil
}

func (l *memoryReminderLog) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.claims)
}

// memoryIdempotency is an in-memory IdempotencyStore
type memoryIdempotency struct {
	mu   sync.Mutex
	keys map[string]struct{}
}

func newMemoryIdempotency() *memoryIdempotency {
	return &memoryIdempotency{keys: make(map[string]struct{})}
}

func (m *memoryIdempotency) MarkProcessed(_ context.Context, key string, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.keys[key]; ok {
		return false, nil
	}
	m.keys[key] = struct{}{}
	return true, nil
}

func (m *memoryIdempotency) IsProcessed(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.keys[key]
	return ok, nil
}

func (m *memoryIdempotency) Forget(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.keys, key)
	return nil
}

func (m *memoryIdempotency) Close() error { return nil }

// Mock implementations

type mockCatalog struct {
	mock.Mock
}

func (m *mockCatalog) GetProduct(ctx context.Context, productID string) (*groupbuy.ProductSnapshot, error) {
	args := m.Called(ctx, productID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*groupbuy.ProductSnapshot), args.Error(1)
}

type mockDispatcher struct {
	mock.Mock
}

func (m *mockDispatcher) SendReminder(ctx context.Context, r groupbuy.Reminder) error {
	args := m.Called(ctx, r)
	return args.Error(0)
}

func (m *mockDispatcher) SendStatusChange(ctx context.Context, c groupbuy.StatusChange) error {
	args := m.Called(ctx, c)
	return args.Error(0)
}

// recordingPublisher collects published events
type recordingPublisher struct {
	mu     sync.Mutex
	events []shared.DomainEvent
}

func (p *recordingPublisher) Publish(_ context.Context, events ...shared.DomainEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, events...)
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.EventType())
	}
	return out
}

// countingRecorder counts metric calls
type countingRecorder struct {
	noopRecorder
	mu          sync.Mutex
	joins       int
	leaves      int
	transitions []string
	reminders   int
	expiries    int
	opened      int
	closed      int
}

func (r *countingRecorder) RecordJoin(context.Context, string, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.joins++
}

func (r *countingRecorder) RecordLeave(context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.leaves++
}

func (r *countingRecorder) RecordTransition(_ context.Context, from, to string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transitions = append(r.transitions, from+"->"+to)
}

func (r *countingRecorder) RecordReminder(context.Context, string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reminders++
}

func (r *countingRecorder) RecordExpiry(context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.expiries++
}

func (r *countingRecorder) StreamOpened(context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.opened++
}

func (r *countingRecorder) StreamClosed(context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed++
}

func (r *countingRecorder) streams() (int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.opened, r.closed
}
