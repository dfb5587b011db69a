package groupbuy

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/groupbuy/backend/internal/domain/groupbuy"
	"github.com/groupbuy/backend/internal/domain/shared"
	"github.com/groupbuy/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// maxSaveAttempts bounds the reload-and-retry loop of operator actions that
// race with joins (every join bumps the aggregate version)
const maxSaveAttempts = 3

const (
	DefaultActiveLimit = 10
	MaxActiveLimit     = 50
)

// ServiceConfig holds group-buy behaviour settings
type ServiceConfig struct {
	Policy         groupbuy.PricingPolicy
	IdempotencyTTL time.Duration
}

// Service orchestrates group order use cases
type Service struct {
	repo        groupbuy.GroupOrderRepository
	catalog     groupbuy.ProductCatalog
	events      shared.EventPublisher
	idempotency shared.IdempotencyStore
	metrics     Recorder
	cfg         ServiceConfig
	now         func() time.Time
	logger      *zap.Logger
}

// NewService creates a new group order service
func NewService(
	repo groupbuy.GroupOrderRepository,
	catalog groupbuy.ProductCatalog,
	events shared.EventPublisher,
	idempotency shared.IdempotencyStore,
	cfg ServiceConfig,
	logger *zap.Logger,
) *Service {
	if cfg.Policy == "" {
		cfg.Policy = groupbuy.DefaultPricingPolicy
	}
	if cfg.IdempotencyTTL <= 0 {
		cfg.IdempotencyTTL = 24 * time.Hour
	}
	return &Service{
		repo:        repo,
		catalog:     catalog,
		events:      events,
		idempotency: idempotency,
		metrics:     noopRecorder{},
		cfg:         cfg,
		now:         func() time.Time { return time.Now().UTC() },
		logger:      logger,
	}
}

// SetMetrics installs a metrics recorder
func (s *Service) SetMetrics(r Recorder) {
	if r != nil {
		s.metrics = r
	}
}

// SetClock overrides the time source
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// Policy returns the configured pricing policy
func (s *Service) Policy() groupbuy.PricingPolicy {
	return s.cfg.Policy
}

// Now returns the service clock
func (s *Service) Now() time.Time {
	return s.now()
}

// ==================== Creation ====================

// Create creates an operator group order from a catalog product
func (s *Service) Create(ctx context.Context, req CreateGroupOrderRequest) (*GroupOrderResponse, error) {
	product, err := s.catalog.GetProduct(ctx, req.ProductID)
	if err != nil {
		return nil, err
	}

	g, err := groupbuy.NewGroupOrder(groupbuy.CreateInput{
		Product:       *product,
		Tiers:         tiersToDomain(req.PriceTiers),
		MinQty:        req.MinQty,
		TargetQty:     req.TargetQty,
		Deadline:      req.Deadline.UTC(),
		AsDraft:       req.AsDraft,
		InternalNotes: req.InternalNotes,
	}, s.now())
	if err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, g); err != nil {
		s.logger.Error("failed to create group order", zap.String("product_id", req.ProductID), zap.Error(err))
		return nil, err
	}
	s.publish(ctx, g)

	s.logger.Info("group order created",
		zap.String("group_id", g.ID.String()),
		zap.String("product_id", product.ProductID),
		zap.String("status", g.Status.String()),
		zap.Int("target_qty", g.TargetQty))
	resp := ToGroupOrderResponse(g)
	return &resp, nil
}

// Propose records a client proposal awaiting approval
func (s *Service) Propose(ctx context.Context, req ProposalRequest) (*PublicGroupOrderResponse, error) {
	product, err := s.catalog.GetProduct(ctx, req.ProductID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	g, err := groupbuy.NewProposal(groupbuy.ProposalInput{
		Product:        *product,
		DesiredQty:     req.DesiredQty,
		Message:        req.Message,
		ProposerUserID: req.ProposerUserID,
		ProposerName:   req.ProposerName,
		ProposerEmail:  req.ProposerEmail,
	}, now)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, g); err != nil {
		s.logger.Error("failed to store proposal", zap.String("product_id", req.ProductID), zap.Error(err))
		return nil, err
	}
	s.publish(ctx, g)

	s.logger.Info("group order proposed",
		zap.String("group_id", g.ID.String()),
		zap.String("product_id", product.ProductID),
		zap.Int("desired_qty", req.DesiredQty))
	resp := ToPublicGroupOrderResponse(g, now)
	return &resp, nil
}

// ==================== Ledger ====================

// JoinResult is the committed outcome of a join
type JoinResult struct {
	Participant *groupbuy.Participant
	Group       *groupbuy.GroupOrder
}

// Join adds a participant through the public flow. A non-empty
// idempotencyKey that was already served yields DUPLICATE_REQUEST.
func (s *Service) Join(ctx context.Context, groupID uuid.UUID, req JoinRequest, idempotencyKey string) (*JoinResult, error) {
	if idempotencyKey != "" && s.idempotency != nil {
		key := fmt.Sprintf("groupbuy:join:%s:%s", groupID, idempotencyKey)
		fresh, err := s.idempotency.MarkProcessed(ctx, key, s.cfg.IdempotencyTTL)
		if err != nil {
			return nil, shared.NewUnavailableError("check idempotency key", err)
		}
		if !fresh {
			return nil, shared.NewDomainError(shared.CodeDuplicateRequest, "this join request was already processed")
		}
		result, err := s.join(ctx, groupID, req, groupbuy.JoinModePublic)
		if err != nil {
			// let the client retry a failed request with the same key
			if ferr := s.idempotency.Forget(ctx, key); ferr != nil {
				s.logger.Warn("failed to release idempotency key", zap.String("key", key), zap.Error(ferr))
			}
			return nil, err
		}
		return result, nil
	}
	return s.join(ctx, groupID, req, groupbuy.JoinModePublic)
}

// Seed adds a participant on behalf of an operator. Seeding is also allowed
// while a proposal awaits approval.
func (s *Service) Seed(ctx context.Context, groupID uuid.UUID, req JoinRequest) (*JoinResult, error) {
	return s.join(ctx, groupID, req, groupbuy.JoinModeSeeding)
}

func (s *Service) join(ctx context.Context, groupID uuid.UUID, req JoinRequest, mode groupbuy.JoinMode) (*JoinResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "group_order", "join",
		telemetry.SpanAttrGroupID, groupID, telemetry.SpanAttrQuantity, req.Qty)
	defer span.End()

	now := s.now()
	p, err := groupbuy.NewParticipant(groupID, req.toInput(), now)
	if err != nil {
		return nil, err
	}

	change, err := s.repo.Join(ctx, groupbuy.JoinCommand{
		GroupID:     groupID,
		Participant: p,
		Mode:        mode,
		Policy:      s.cfg.Policy,
		Now:         now,
	})
	if err != nil {
		telemetry.RecordError(span, err)
		if !isExpected(err) {
			s.logger.Error("join failed", zap.String("group_id", groupID.String()), zap.Error(err))
		}
		return nil, err
	}

	s.metrics.RecordJoin(ctx, string(s.cfg.Policy), change.Participant.Qty)
	if g := change.Group; g.Status == groupbuy.StatusFilled && g.FilledAt != nil && g.FilledAt.Equal(now) {
		s.metrics.RecordTransition(ctx, groupbuy.StatusOpen.String(), groupbuy.StatusFilled.String())
	}
	s.publish(ctx, change.Group)
	s.logger.Info("participant joined",
		zap.String("group_id", groupID.String()),
		zap.String("participant_id", change.Participant.ID.String()),
		zap.Int("qty", change.Participant.Qty),
		zap.Int("current_qty", change.Group.CurrentQty),
		zap.String("unit_price", change.Group.CurrentUnitPrice.String()),
		zap.String("status", change.Group.Status.String()),
		zap.Int("repriced", len(change.Repriced)))

	return &JoinResult{Participant: change.Participant, Group: change.Group}, nil
}

// Leave removes a participant from a group
func (s *Service) Leave(ctx context.Context, groupID, participantID uuid.UUID) (*PublicGroupOrderResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "group_order", "leave",
		telemetry.SpanAttrGroupID, groupID, telemetry.SpanAttrParticipantID, participantID)
	defer span.End()

	now := s.now()
	change, err := s.repo.Leave(ctx, groupbuy.LeaveCommand{
		GroupID:       groupID,
		ParticipantID: participantID,
		Policy:        s.cfg.Policy,
		Now:           now,
	})
	if err != nil {
		telemetry.RecordError(span, err)
		if !isExpected(err) {
			s.logger.Error("leave failed", zap.String("group_id", groupID.String()), zap.Error(err))
		}
		return nil, err
	}

	s.metrics.RecordLeave(ctx)
	s.publish(ctx, change.Group)
	s.logger.Info("participant left",
		zap.String("group_id", groupID.String()),
		zap.String("participant_id", participantID.String()),
		zap.Int("current_qty", change.Group.CurrentQty))

	resp := ToPublicGroupOrderResponse(change.Group, now)
	return &resp, nil
}

// ==================== Operator actions ====================

// Publish opens a draft
func (s *Service) Publish(ctx context.Context, id uuid.UUID) (*GroupOrderResponse, error) {
	return s.mutate(ctx, id, "publish", func(g *groupbuy.GroupOrder, now time.Time) ([]*groupbuy.Participant, error) {
		return nil, g.Publish(now)
	})
}

// Approve opens a client proposal with the given terms
func (s *Service) Approve(ctx context.Context, id uuid.UUID, req ApproveRequest) (*GroupOrderResponse, error) {
	in := groupbuy.ApproveInput{
		Tiers:     tiersToDomain(req.PriceTiers),
		TargetQty: req.TargetQty,
		MinQty:    req.MinQty,
	}
	if req.Deadline != nil {
		d := req.Deadline.UTC()
		in.Deadline = &d
	}
	return s.mutate(ctx, id, "approve", func(g *groupbuy.GroupOrder, now time.Time) ([]*groupbuy.Participant, error) {
		return g.Approve(in, s.cfg.Policy, now)
	})
}

// Reject declines a client proposal
func (s *Service) Reject(ctx context.Context, id uuid.UUID, reason string) (*GroupOrderResponse, error) {
	return s.mutate(ctx, id, "reject", func(g *groupbuy.GroupOrder, now time.Time) ([]*groupbuy.Participant, error) {
		return nil, g.Reject(reason, now)
	})
}

// BeginOrdering moves a filled group to ordering
func (s *Service) BeginOrdering(ctx context.Context, id uuid.UUID) (*GroupOrderResponse, error) {
	return s.mutate(ctx, id, "begin ordering", func(g *groupbuy.GroupOrder, now time.Time) ([]*groupbuy.Participant, error) {
		return nil, g.BeginOrdering(now)
	})
}

// ConfirmOrdered records that the supplier order was placed
func (s *Service) ConfirmOrdered(ctx context.Context, id uuid.UUID) (*GroupOrderResponse, error) {
	return s.mutate(ctx, id, "confirm ordered", func(g *groupbuy.GroupOrder, now time.Time) ([]*groupbuy.Participant, error) {
		return nil, g.ConfirmOrdered(now)
	})
}

// Ship records shipment
func (s *Service) Ship(ctx context.Context, id uuid.UUID) (*GroupOrderResponse, error) {
	return s.mutate(ctx, id, "ship", func(g *groupbuy.GroupOrder, now time.Time) ([]*groupbuy.Participant, error) {
		return nil, g.Ship(now)
	})
}

// Deliver records delivery
func (s *Service) Deliver(ctx context.Context, id uuid.UUID) (*GroupOrderResponse, error) {
	return s.mutate(ctx, id, "deliver", func(g *groupbuy.GroupOrder, now time.Time) ([]*groupbuy.Participant, error) {
		return nil, g.Deliver(now)
	})
}

// Cancel cancels a non-terminal group
func (s *Service) Cancel(ctx context.Context, id uuid.UUID, reason string) (*GroupOrderResponse, error) {
	return s.mutate(ctx, id, "cancel", func(g *groupbuy.GroupOrder, now time.Time) ([]*groupbuy.Participant, error) {
		return nil, g.Cancel(reason, now)
	})
}

// ExtendDeadline moves the deadline later
func (s *Service) ExtendDeadline(ctx context.Context, id uuid.UUID, deadline time.Time) (*GroupOrderResponse, error) {
	return s.mutate(ctx, id, "extend deadline", func(g *groupbuy.GroupOrder, now time.Time) ([]*groupbuy.Participant, error) {
		return nil, g.ExtendDeadline(deadline.UTC(), now)
	})
}

// AddNote appends an internal note
func (s *Service) AddNote(ctx context.Context, id uuid.UUID, note string) (*GroupOrderResponse, error) {
	return s.mutate(ctx, id, "add note", func(g *groupbuy.GroupOrder, now time.Time) ([]*groupbuy.Participant, error) {
		g.AppendNote(note, now)
		return nil, nil
	})
}

// SetChatEnabled switches the group's chat
func (s *Service) SetChatEnabled(ctx context.Context, id uuid.UUID, enabled bool) (*GroupOrderResponse, error) {
	return s.mutate(ctx, id, "toggle chat", func(g *groupbuy.GroupOrder, now time.Time) ([]*groupbuy.Participant, error) {
		g.SetChatEnabled(enabled, now)
		return nil, nil
	})
}

// expire cancels an open group past its deadline. Returns false when the
// group turned out not to be due.
func (s *Service) expire(ctx context.Context, id uuid.UUID, now time.Time) (bool, error) {
	expired := false
	_, err := s.mutateAt(ctx, id, "expire", func(g *groupbuy.GroupOrder, _ time.Time) ([]*groupbuy.Participant, error) {
		ok, err := g.Expire(now)
		expired = ok
		if err == nil && !ok {
			return nil, errNothingToDo
		}
		return nil, err
	}, func() time.Time { return now })
	if errors.Is(err, errNothingToDo) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if expired {
		s.metrics.RecordExpiry(ctx)
	}
	return expired, nil
}

var errNothingToDo = errors.New("nothing to do")

type mutation func(g *groupbuy.GroupOrder, now time.Time) ([]*groupbuy.Participant, error)

// mutate loads, applies fn and saves with optimistic locking. A version
// conflict reloads and re-applies fn; domain errors are returned as is.
func (s *Service) mutate(ctx context.Context, id uuid.UUID, action string, fn mutation) (*GroupOrderResponse, error) {
	return s.mutateAt(ctx, id, action, fn, s.now)
}

func (s *Service) mutateAt(ctx context.Context, id uuid.UUID, action string, fn mutation, clock func() time.Time) (*GroupOrderResponse, error) {
	var lastErr error
	for attempt := 1; attempt <= maxSaveAttempts; attempt++ {
		g, err := s.repo.FindByID(ctx, id)
		if err != nil {
			return nil, err
		}
		from := g.Status

		repriced, err := fn(g, clock())
		if err != nil {
			return nil, err
		}

		err = s.repo.Save(ctx, g, repriced...)
		if err == nil {
			if g.Status != from {
				s.metrics.RecordTransition(ctx, from.String(), g.Status.String())
			}
			s.publish(ctx, g)
			s.logger.Info("group order updated",
				zap.String("group_id", id.String()),
				zap.String("action", action),
				zap.String("from_status", from.String()),
				zap.String("status", g.Status.String()))
			resp := ToGroupOrderResponse(g)
			return &resp, nil
		}
		if !errors.Is(err, shared.ErrConcurrencyConflict) {
			s.logger.Error("failed to save group order",
				zap.String("group_id", id.String()),
				zap.String("action", action),
				zap.Error(err))
			return nil, err
		}
		lastErr = err
		s.logger.Debug("version conflict, retrying",
			zap.String("group_id", id.String()),
			zap.String("action", action),
			zap.Int("attempt", attempt))
	}
	return nil, lastErr
}

// ==================== Queries ====================

// Get returns the operator view of a group
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*GroupOrderResponse, error) {
	g, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	resp := ToGroupOrderResponse(g)
	return &resp, nil
}

// GetPublic returns the public view of a group. Drafts are not visible.
func (s *Service) GetPublic(ctx context.Context, id uuid.UUID) (*PublicGroupOrderResponse, error) {
	g, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if g.Status == groupbuy.StatusDraft {
		return nil, shared.NewNotFoundError("group order not found")
	}
	resp := ToPublicGroupOrderResponse(g, s.now())
	return &resp, nil
}

// ListActive returns the public listing
func (s *Service) ListActive(ctx context.Context, limit int, excludeProductID string) ([]ActiveGroupOrderResponse, error) {
	if limit <= 0 {
		limit = DefaultActiveLimit
	}
	if limit > MaxActiveLimit {
		limit = MaxActiveLimit
	}
	now := s.now()
	groups, err := s.repo.FindActive(ctx, groupbuy.ActiveQuery{
		Limit:            limit,
		ExcludeProductID: excludeProductID,
		Now:              now,
	})
	if err != nil {
		return nil, err
	}
	out := make([]ActiveGroupOrderResponse, 0, len(groups))
	for _, g := range groups {
		out = append(out, ToActiveGroupOrderResponse(g, now))
	}
	return out, nil
}

// ListPending returns client proposals awaiting review
func (s *Service) ListPending(ctx context.Context, filter shared.Filter) (*ListResponse, error) {
	filter = filter.Normalize(100)
	groups, total, err := s.repo.FindPendingProposals(ctx, filter)
	if err != nil {
		return nil, err
	}
	return toListResponse(groups, total, filter), nil
}

// List returns operator results, optionally narrowed to statuses
func (s *Service) List(ctx context.Context, filter shared.Filter, statuses ...groupbuy.Status) (*ListResponse, error) {
	filter = filter.Normalize(100)
	groups, total, err := s.repo.FindAll(ctx, filter, statuses...)
	if err != nil {
		return nil, err
	}
	return toListResponse(groups, total, filter), nil
}

func toListResponse(groups []*groupbuy.GroupOrder, total int64, filter shared.Filter) *ListResponse {
	items := make([]GroupOrderResponse, 0, len(groups))
	for _, g := range groups {
		items = append(items, ToGroupOrderResponse(g))
	}
	list := shared.NewPaginated(items, total, filter.Page, filter.PageSize)
	return &list
}

// ==================== helpers ====================

// publish hands the aggregate's pending events to the bus after commit.
// Handler failures never fail the use case.
func (s *Service) publish(ctx context.Context, g *groupbuy.GroupOrder) {
	events := g.GetDomainEvents()
	g.ClearDomainEvents()
	if s.events == nil || len(events) == 0 {
		return
	}
	if err := s.events.Publish(ctx, events...); err != nil {
		s.logger.Warn("failed to publish domain events",
			zap.String("group_id", g.ID.String()),
			zap.Int("count", len(events)),
			zap.Error(err))
	}
}

// isExpected reports whether err is a domain outcome rather than a fault
func isExpected(err error) bool {
	var de *shared.DomainError
	if !errors.As(err, &de) {
		return false
	}
	return de.Code != shared.CodeUnavailable
}
