package groupbuy

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/groupbuy/backend/internal/domain/groupbuy"
	"github.com/groupbuy/backend/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type serviceFixture struct {
	svc       *Service
	repo      *memoryRepo
	catalog   *mockCatalog
	events    *recordingPublisher
	metrics   *countingRecorder
	idem      *memoryIdempotency
	clockTime time.Time
}

func newServiceFixture(t *testing.T, policy groupbuy.PricingPolicy) *serviceFixture {
	t.Helper()
	f := &serviceFixture{
		repo:      newMemoryRepo(),
		catalog:   new(mockCatalog),
		events:    &recordingPublisher{},
		metrics:   &countingRecorder{},
		idem:      newMemoryIdempotency(),
		clockTime: testNow,
	}
	product := testProduct()
	f.catalog.On("GetProduct", mock.Anything, product.ProductID).Return(&product, nil).Maybe()
	f.catalog.On("GetProduct", mock.Anything, mock.Anything).
		Return(nil, shared.NewNotFoundError("product not found")).Maybe()

	f.svc = NewService(f.repo, f.catalog, f.events, f.idem, ServiceConfig{Policy: policy}, zap.NewNop())
	f.svc.SetMetrics(f.metrics)
	f.svc.SetClock(func() time.Time { return f.clockTime })
	return f
}

func (f *serviceFixture) createGroup(t *testing.T, target int, deadline time.Duration) uuid.UUID {
	t.Helper()
	resp, err := f.svc.Create(context.Background(), CreateGroupOrderRequest{
		ProductID:  "sku-espresso-01",
		PriceTiers: testTiers(),
		TargetQty:  target,
		Deadline:   testNow.Add(deadline),
	})
	require.NoError(t, err)
	return resp.ID
}

func joinReq(name string, qty int) JoinRequest {
	return JoinRequest{Name: name, Email: "buyer@example.com", Qty: qty}
}

func TestService_Create(t *testing.T) {
	f := newServiceFixture(t, groupbuy.PricingBestTierForAll)

	resp, err := f.svc.Create(context.Background(), CreateGroupOrderRequest{
		ProductID:  "sku-espresso-01",
		PriceTiers: []PriceTierDTO{{MinQty: 20, Price: dec("80")}, {MinQty: 10, Price: dec("90")}},
		MinQty:     2,
		TargetQty:  30,
		Deadline:   testNow.Add(7 * 24 * time.Hour),
	})
	require.NoError(t, err)

	assert.Equal(t, "open", resp.Status)
	assert.Equal(t, "admin", resp.Origin)
	assert.Equal(t, "Espresso Machine", resp.Product.Name)
	require.Len(t, resp.PriceTiers, 2)
	assert.Equal(t, 10, resp.PriceTiers[0].MinQty, "tiers are stored sorted")
	assert.True(t, resp.CurrentUnitPrice.Equal(dec("100")))
	require.NotNil(t, resp.NextTier)
	assert.Equal(t, 10, resp.NextTier.UnitsToUnlock)
	assert.Contains(t, f.events.types(), groupbuy.EventTypeGroupOrderCreated)
}

func TestService_Create_Errors(t *testing.T) {
	f := newServiceFixture(t, groupbuy.PricingBestTierForAll)

	_, err := f.svc.Create(context.Background(), CreateGroupOrderRequest{
		ProductID: "sku-unknown",
		TargetQty: 10,
		Deadline:  testNow.Add(time.Hour),
	})
	assert.True(t, shared.IsCode(err, shared.CodeNotFound))

	_, err = f.svc.Create(context.Background(), CreateGroupOrderRequest{
		ProductID:  "sku-espresso-01",
		PriceTiers: []PriceTierDTO{{MinQty: 10, Price: dec("120")}},
		TargetQty:  10,
		Deadline:   testNow.Add(time.Hour),
	})
	assert.True(t, shared.IsCode(err, shared.CodeValidation), "tier above base price")
}

func TestService_DraftPublish(t *testing.T) {
	f := newServiceFixture(t, groupbuy.PricingBestTierForAll)

	resp, err := f.svc.Create(context.Background(), CreateGroupOrderRequest{
		ProductID: "sku-espresso-01",
		TargetQty: 10,
		Deadline:  testNow.Add(48 * time.Hour),
		AsDraft:   true,
	})
	require.NoError(t, err)
	assert.Equal(t, "draft", resp.Status)

	_, err = f.svc.Join(context.Background(), resp.ID, joinReq("Ann Lee", 1), "")
	assert.True(t, shared.IsCode(err, shared.CodeInvalidTransition), "drafts take no participants")

	_, err = f.svc.GetPublic(context.Background(), resp.ID)
	assert.True(t, shared.IsCode(err, shared.CodeNotFound), "drafts are hidden from the public")

	published, err := f.svc.Publish(context.Background(), resp.ID)
	require.NoError(t, err)
	assert.Equal(t, "open", published.Status)
	assert.NotNil(t, published.PublishedAt)
	assert.Equal(t, []string{"draft->open"}, f.metrics.transitions)
}

func TestService_Join_BestTierForAll(t *testing.T) {
	f := newServiceFixture(t, groupbuy.PricingBestTierForAll)
	id := f.createGroup(t, 30, 7*24*time.Hour)

	first, err := f.svc.Join(context.Background(), id, joinReq("Alice Smith", 6), "")
	require.NoError(t, err)
	assert.True(t, first.Participant.UnitPrice.Equal(dec("100")))

	second, err := f.svc.Join(context.Background(), id, joinReq("Bob Jones", 6), "")
	require.NoError(t, err)
	assert.Equal(t, 12, second.Group.CurrentQty)
	assert.True(t, second.Group.CurrentUnitPrice.Equal(dec("90")))
	for _, p := range second.Group.Participants {
		assert.True(t, p.UnitPrice.Equal(dec("90")), "every participant gets the best tier")
		assert.True(t, p.TotalAmount.Equal(dec("540")))
	}

	assert.Equal(t, 2, f.metrics.joins)
	assert.Contains(t, f.events.types(), groupbuy.EventTypeParticipantJoined)
	require.NoError(t, f.repo.get(id).VerifyLedger())
}

func TestService_Join_LockAtJoin(t *testing.T) {
	f := newServiceFixture(t, groupbuy.PricingLockAtJoin)
	id := f.createGroup(t, 30, 7*24*time.Hour)

	first, err := f.svc.Join(context.Background(), id, joinReq("Alice Smith", 6), "")
	require.NoError(t, err)
	second, err := f.svc.Join(context.Background(), id, joinReq("Bob Jones", 6), "")
	require.NoError(t, err)

	assert.True(t, second.Participant.UnitPrice.Equal(dec("90")), "the joiner is priced including their own quantity")
	stored, ok := second.Group.FindParticipant(first.Participant.ID)
	require.True(t, ok)
	assert.True(t, stored.UnitPrice.Equal(dec("100")), "earlier joins keep their price")
}

func TestService_Join_FillsAndRejectsAfterwards(t *testing.T) {
	f := newServiceFixture(t, groupbuy.PricingBestTierForAll)
	id := f.createGroup(t, 20, 7*24*time.Hour)

	result, err := f.svc.Join(context.Background(), id, joinReq("Alice Smith", 20), "")
	require.NoError(t, err)
	assert.Equal(t, groupbuy.StatusFilled, result.Group.Status)
	assert.NotNil(t, result.Group.FilledAt)
	assert.Contains(t, f.events.types(), groupbuy.EventTypeGroupOrderStatusChanged)
	assert.Contains(t, f.metrics.transitions, "open->filled")

	_, err = f.svc.Join(context.Background(), id, joinReq("Late Comer", 1), "")
	assert.True(t, shared.IsCode(err, shared.CodeInvalidTransition))
}

func TestService_Join_Validation(t *testing.T) {
	f := newServiceFixture(t, groupbuy.PricingBestTierForAll)
	id := f.createGroup(t, 20, 7*24*time.Hour)

	_, err := f.svc.Join(context.Background(), id, JoinRequest{Name: "No Contact", Qty: 1}, "")
	assert.True(t, shared.IsCode(err, shared.CodeValidation))

	_, err = f.svc.Join(context.Background(), id, joinReq("Zero", 0), "")
	assert.True(t, shared.IsCode(err, shared.CodeValidation))

	_, err = f.svc.Join(context.Background(), uuid.New(), joinReq("Lost", 1), "")
	assert.True(t, shared.IsCode(err, shared.CodeNotFound))
}

func TestService_Join_IdempotencyKey(t *testing.T) {
	f := newServiceFixture(t, groupbuy.PricingBestTierForAll)
	id := f.createGroup(t, 30, 7*24*time.Hour)

	_, err := f.svc.Join(context.Background(), id, joinReq("Alice Smith", 2), "key-1")
	require.NoError(t, err)

	_, err = f.svc.Join(context.Background(), id, joinReq("Alice Smith", 2), "key-1")
	assert.True(t, shared.IsCode(err, shared.CodeDuplicateRequest))
	assert.Equal(t, 2, f.repo.get(id).CurrentQty, "the replay is not applied")

	t.Run("keys are scoped per group", func(t *testing.T) {
		other := f.createGroup(t, 30, 7*24*time.Hour)
		_, err := f.svc.Join(context.Background(), other, joinReq("Alice Smith", 2), "key-1")
		assert.NoError(t, err)
	})

	t.Run("failed joins release the key", func(t *testing.T) {
		_, err := f.svc.Join(context.Background(), id, joinReq("Zero", 0), "key-2")
		require.Error(t, err)
		processed, _ := f.idem.IsProcessed(context.Background(), "groupbuy:join:"+id.String()+":key-2")
		assert.False(t, processed)

		_, err = f.svc.Join(context.Background(), id, joinReq("Carol King", 1), "key-2")
		assert.NoError(t, err)
	})
}

func TestService_Leave(t *testing.T) {
	f := newServiceFixture(t, groupbuy.PricingBestTierForAll)
	id := f.createGroup(t, 30, 7*24*time.Hour)

	first, err := f.svc.Join(context.Background(), id, joinReq("Alice Smith", 6), "")
	require.NoError(t, err)
	_, err = f.svc.Join(context.Background(), id, joinReq("Bob Jones", 6), "")
	require.NoError(t, err)

	view, err := f.svc.Leave(context.Background(), id, first.Participant.ID)
	require.NoError(t, err)
	assert.Equal(t, 6, view.CurrentQty)
	assert.True(t, view.CurrentUnitPrice.Equal(dec("100")), "dropping below a tier restores the higher price")
	require.Len(t, view.Participants, 1)
	assert.Equal(t, "Bob J.", view.Participants[0].Name)
	assert.Equal(t, 1, f.metrics.leaves)

	_, err = f.svc.Leave(context.Background(), id, first.Participant.ID)
	assert.True(t, shared.IsCode(err, shared.CodeNotFound))
	require.NoError(t, f.repo.get(id).VerifyLedger())
}

func TestService_SeedProposal(t *testing.T) {
	f := newServiceFixture(t, groupbuy.PricingBestTierForAll)

	proposal, err := f.svc.Propose(context.Background(), ProposalRequest{
		ProductID:     "sku-espresso-01",
		DesiredQty:    25,
		Message:       "Our office wants a few",
		ProposerName:  "Dana White",
		ProposerEmail: "Dana@Example.com",
	})
	require.NoError(t, err)
	assert.Equal(t, "pending_approval", proposal.Status)

	_, err = f.svc.Join(context.Background(), proposal.ID, joinReq("Eve Adams", 1), "")
	assert.True(t, shared.IsCode(err, shared.CodeInvalidTransition), "public joins wait for approval")

	seeded, err := f.svc.Seed(context.Background(), proposal.ID, joinReq("Dana White", 5))
	require.NoError(t, err)
	assert.Equal(t, 5, seeded.Group.CurrentQty)

	pending, err := f.svc.ListPending(context.Background(), shared.DefaultFilter())
	require.NoError(t, err)
	require.Len(t, pending.Items, 1)
	require.NotNil(t, pending.Items[0].Proposal)
	assert.Equal(t, "dana@example.com", pending.Items[0].Proposal.ProposerEmail)
}

func TestService_ApproveAndReject(t *testing.T) {
	f := newServiceFixture(t, groupbuy.PricingBestTierForAll)
	propose := func() uuid.UUID {
		resp, err := f.svc.Propose(context.Background(), ProposalRequest{
			ProductID:     "sku-espresso-01",
			DesiredQty:    25,
			ProposerName:  "Dana White",
			ProposerEmail: "dana@example.com",
		})
		require.NoError(t, err)
		return resp.ID
	}

	id := propose()
	_, err := f.svc.Seed(context.Background(), id, joinReq("Dana White", 12))
	require.NoError(t, err)

	deadline := testNow.Add(10 * 24 * time.Hour)
	approved, err := f.svc.Approve(context.Background(), id, ApproveRequest{
		Deadline:   &deadline,
		PriceTiers: testTiers(),
	})
	require.NoError(t, err)
	assert.Equal(t, "open", approved.Status)
	assert.True(t, approved.Deadline.Equal(deadline))
	assert.True(t, approved.CurrentUnitPrice.Equal(dec("90")), "seeded quantity reaches the first tier")
	assert.True(t, approved.Participants[0].UnitPrice.Equal(dec("90")))

	rejected := propose()
	resp, err := f.svc.Reject(context.Background(), rejected, "not stocked")
	require.NoError(t, err)
	assert.Equal(t, "cancelled", resp.Status)
	assert.Equal(t, "not stocked", resp.CancelReason)

	_, err = f.svc.Approve(context.Background(), rejected, ApproveRequest{})
	assert.True(t, shared.IsCode(err, shared.CodeInvalidTransition))
}

func TestService_FulfilmentLifecycle(t *testing.T) {
	f := newServiceFixture(t, groupbuy.PricingBestTierForAll)
	id := f.createGroup(t, 10, 7*24*time.Hour)

	_, err := f.svc.BeginOrdering(context.Background(), id)
	assert.True(t, shared.IsCode(err, shared.CodeInvalidTransition), "an open group cannot be ordered")

	_, err = f.svc.Join(context.Background(), id, joinReq("Alice Smith", 10), "")
	require.NoError(t, err)

	steps := []func(context.Context, uuid.UUID) (*GroupOrderResponse, error){
		f.svc.BeginOrdering, f.svc.ConfirmOrdered, f.svc.Ship, f.svc.Deliver,
	}
	want := []string{"ordering", "ordered", "shipped", "delivered"}
	for i, step := range steps {
		resp, err := step(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, want[i], resp.Status)
	}

	_, err = f.svc.Cancel(context.Background(), id, "too late")
	assert.True(t, shared.IsCode(err, shared.CodeInvalidTransition), "delivered is terminal")
}

func TestService_MutateRetriesVersionConflicts(t *testing.T) {
	f := newServiceFixture(t, groupbuy.PricingBestTierForAll)
	id := f.createGroup(t, 10, 7*24*time.Hour)

	f.repo.conflicts = 2
	resp, err := f.svc.Cancel(context.Background(), id, "supplier out of stock")
	require.NoError(t, err)
	assert.Equal(t, "cancelled", resp.Status)
	assert.Equal(t, 3, f.repo.saves)

	other := f.createGroup(t, 10, 7*24*time.Hour)
	f.repo.conflicts = maxSaveAttempts
	_, err = f.svc.Cancel(context.Background(), other, "give up")
	assert.True(t, errors.Is(err, shared.ErrConcurrencyConflict))
	assert.Equal(t, groupbuy.StatusOpen, f.repo.get(other).Status)
}

func TestService_ExtendDeadlineNotesAndChat(t *testing.T) {
	f := newServiceFixture(t, groupbuy.PricingBestTierForAll)
	id := f.createGroup(t, 10, 7*24*time.Hour)

	_, err := f.svc.ExtendDeadline(context.Background(), id, testNow.Add(24*time.Hour))
	assert.True(t, shared.IsCode(err, shared.CodeValidation), "deadlines only move later")

	later := testNow.Add(10 * 24 * time.Hour)
	resp, err := f.svc.ExtendDeadline(context.Background(), id, later)
	require.NoError(t, err)
	assert.True(t, resp.Deadline.Equal(later))
	assert.Contains(t, resp.InternalNotes, "deadline extended")
	assert.Contains(t, f.events.types(), groupbuy.EventTypeGroupOrderDeadlineChanged)

	resp, err = f.svc.AddNote(context.Background(), id, "called the supplier")
	require.NoError(t, err)
	assert.Contains(t, resp.InternalNotes, "called the supplier")

	resp, err = f.svc.SetChatEnabled(context.Background(), id, false)
	require.NoError(t, err)
	assert.False(t, resp.ChatEnabled)
}

func TestService_Queries(t *testing.T) {
	f := newServiceFixture(t, groupbuy.PricingBestTierForAll)
	soon := f.createGroup(t, 10, 12*time.Hour)
	busy := f.createGroup(t, 10, 5*24*time.Hour)
	quiet := f.createGroup(t, 100, 6*24*time.Hour)

	_, err := f.svc.Join(context.Background(), busy, joinReq("Alice Smith", 8), "")
	require.NoError(t, err)
	_, err = f.svc.Join(context.Background(), soon, joinReq("Bob Jones", 1), "")
	require.NoError(t, err)

	active, err := f.svc.ListActive(context.Background(), 0, "")
	require.NoError(t, err)
	require.Len(t, active, 3)
	assert.Equal(t, busy, active[0].ID)
	assert.Equal(t, string(groupbuy.UrgencyAlmostFull), active[0].Urgency)
	assert.Equal(t, soon, active[1].ID)
	assert.Equal(t, string(groupbuy.UrgencyEndingSoon), active[1].Urgency)
	assert.Equal(t, quiet, active[2].ID)
	assert.Equal(t, string(groupbuy.UrgencyActive), active[2].Urgency)

	excluded, err := f.svc.ListActive(context.Background(), 1000, "sku-espresso-01")
	require.NoError(t, err)
	assert.Empty(t, excluded)

	public, err := f.svc.GetPublic(context.Background(), busy)
	require.NoError(t, err)
	require.Len(t, public.Participants, 1)
	assert.Equal(t, "Alice S.", public.Participants[0].Name)

	full, err := f.svc.Get(context.Background(), busy)
	require.NoError(t, err)
	assert.Equal(t, "Alice Smith", full.Participants[0].Name)
	assert.Equal(t, "buyer@example.com", full.Participants[0].Email)

	list, err := f.svc.List(context.Background(), shared.Filter{}, groupbuy.StatusOpen)
	require.NoError(t, err)
	assert.Equal(t, int64(3), list.Total)
	assert.Equal(t, 1, list.Page)
}
