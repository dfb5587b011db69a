package groupbuy

import (
	"context"
	"fmt"

	"github.com/groupbuy/backend/internal/domain/groupbuy"
	"github.com/groupbuy/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// StatusChangeNotifier tells participants when their group changes status
type StatusChangeNotifier struct {
	repo       groupbuy.GroupOrderRepository
	dispatcher groupbuy.Dispatcher
	logger     *zap.Logger
}

// NewStatusChangeNotifier creates a new StatusChangeNotifier
func NewStatusChangeNotifier(repo groupbuy.GroupOrderRepository, dispatcher groupbuy.Dispatcher, logger *zap.Logger) *StatusChangeNotifier {
	return &StatusChangeNotifier{repo: repo, dispatcher: dispatcher, logger: logger}
}

// EventTypes returns the event types this handler is interested in
func (h *StatusChangeNotifier) EventTypes() []string {
	return []string{groupbuy.EventTypeGroupOrderStatusChanged}
}

// Handle sends a status change notification to the group's participants
func (h *StatusChangeNotifier) Handle(ctx context.Context, event shared.DomainEvent) error {
	e, ok := event.(*groupbuy.GroupOrderStatusChangedEvent)
	if !ok {
		return fmt.Errorf("unexpected event type %T", event)
	}

	g, err := h.repo.FindByID(ctx, e.AggregateID())
	if err != nil {
		return fmt.Errorf("load group order %s: %w", e.AggregateID(), err)
	}
	recipients := groupbuy.RecipientsOf(g)
	if len(recipients) == 0 {
		h.logger.Debug("no participants to notify",
			zap.String("group_id", g.ID.String()),
			zap.String("to_status", e.ToStatus.String()))
		return nil
	}

	return h.dispatcher.SendStatusChange(ctx, groupbuy.StatusChange{
		GroupID:     g.ID,
		ProductName: e.ProductName,
		From:        e.FromStatus,
		To:          e.ToStatus,
		Reason:      e.Reason,
		Recipients:  recipients,
	})
}

var _ shared.EventHandler = (*StatusChangeNotifier)(nil)
