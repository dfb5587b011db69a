package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/metric"
)

// GroupBuyMetrics records group order and chat activity
type GroupBuyMetrics struct {
	joins       *Counter
	joinQty     *Histogram
	leaves      *Counter
	transitions *Counter
	reminders   *Counter
	expiries    *Counter
	streams     *UpDownCounter
}

// NewGroupBuyMetrics creates the group order instruments on meter
func NewGroupBuyMetrics(meter metric.Meter) (*GroupBuyMetrics, error) {
	m := &GroupBuyMetrics{}
	var err error

	if m.joins, err = NewCounter(meter, "groupbuy_joins_total",
		"Participants added to group orders", "{join}"); err != nil {
		return nil, err
	}
	if m.joinQty, err = NewHistogram(meter, HistogramOpts{
		Name:        "groupbuy_join_quantity",
		Description: "Units committed per join",
		Unit:        "{unit}",
		Boundaries:  JoinQtyBuckets,
	}); err != nil {
		return nil, err
	}
	if m.leaves, err = NewCounter(meter, "groupbuy_leaves_total",
		"Participants removed from group orders", "{leave}"); err != nil {
		return nil, err
	}
	if m.transitions, err = NewCounter(meter, "groupbuy_status_transitions_total",
		"Group order status transitions", "{transition}"); err != nil {
		return nil, err
	}
	if m.reminders, err = NewCounter(meter, "groupbuy_reminders_sent_total",
		"Deadline reminders dispatched", "{reminder}"); err != nil {
		return nil, err
	}
	if m.expiries, err = NewCounter(meter, "groupbuy_expired_total",
		"Group orders expired by the sweep", "{group}"); err != nil {
		return nil, err
	}
	if m.streams, err = NewUpDownCounter(meter, "groupbuy_chat_streams",
		"Open chat streams", "{stream}"); err != nil {
		return nil, err
	}
	return m, nil
}

// RecordJoin counts a join and its quantity
func (m *GroupBuyMetrics) RecordJoin(ctx context.Context, policy string, qty int) {
	m.joins.Inc(ctx, AttrPricingPolicy.String(policy))
	m.joinQty.Record(ctx, float64(qty), AttrPricingPolicy.String(policy))
}

// RecordLeave counts a leave
func (m *GroupBuyMetrics) RecordLeave(ctx context.Context) {
	m.leaves.Inc(ctx)
}

// RecordTransition counts a status change
func (m *GroupBuyMetrics) RecordTransition(ctx context.Context, from, to string) {
	m.transitions.Inc(ctx, AttrStatusFrom.String(from), AttrStatusTo.String(to))
}

// RecordReminder counts a dispatched reminder
func (m *GroupBuyMetrics) RecordReminder(ctx context.Context, window string) {
	m.reminders.Inc(ctx, AttrReminderWindow.String(window))
}

// RecordExpiry counts an expired group
func (m *GroupBuyMetrics) RecordExpiry(ctx context.Context) {
	m.expiries.Inc(ctx)
}

// StreamOpened increments the open stream gauge
func (m *GroupBuyMetrics) StreamOpened(ctx context.Context) {
	m.streams.Add(ctx, 1)
}

// StreamClosed decrements the open stream gauge
func (m *GroupBuyMetrics) StreamClosed(ctx context.Context) {
	m.streams.Add(ctx, -1)
}
