// Package notification renders group order notifications and hands them to
// the delivery channel.
package notification

import (
	"context"

	"github.com/groupbuy/backend/internal/domain/groupbuy"
	"go.uber.org/zap"
)

// Channel is a delivery channel
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
)

// channelFor picks email when known, then SMS. Recipients with neither are
// skipped.
func channelFor(r groupbuy.Recipient) (Channel, string, bool) {
	switch {
	case r.Email != "":
		return ChannelEmail, r.Email, true
	case r.Phone != "":
		return ChannelSMS, r.Phone, true
	default:
		return "", "", false
	}
}

// LogDispatcher writes rendered notifications to the log. Delivery is owned
// by an external mail and SMS service that tails these entries.
type LogDispatcher struct {
	renderer *Renderer
	logger   *zap.Logger
}

// NewLogDispatcher creates a dispatcher
func NewLogDispatcher(renderer *Renderer, logger *zap.Logger) *LogDispatcher {
	return &LogDispatcher{renderer: renderer, logger: logger.Named("notification")}
}

type reminderData struct {
	groupbuy.Reminder
	Recipient groupbuy.Recipient
}

type statusData struct {
	groupbuy.StatusChange
	Recipient groupbuy.Recipient
}

// SendReminder renders one message per reachable recipient
func (d *LogDispatcher) SendReminder(ctx context.Context, r groupbuy.Reminder) error {
	for _, rcpt := range r.Recipients {
		if err := ctx.Err(); err != nil {
			return err
		}
		channel, address, ok := channelFor(rcpt)
		if !ok {
			continue
		}
		body, err := render(d.renderer.reminder, reminderData{Reminder: r, Recipient: rcpt})
		if err != nil {
			return err
		}
		d.logger.Info("deadline reminder",
			zap.String("group_id", r.GroupID.String()),
			zap.String("window", string(r.Window)),
			zap.String("channel", string(channel)),
			zap.String("to", address),
			zap.String("body", body))
	}
	return nil
}

// SendStatusChange renders one message per reachable recipient
func (d *LogDispatcher) SendStatusChange(ctx context.Context, c groupbuy.StatusChange) error {
	for _, rcpt := range c.Recipients {
		if err := ctx.Err(); err != nil {
			return err
		}
		channel, address, ok := channelFor(rcpt)
		if !ok {
			continue
		}
		body, err := render(d.renderer.status, statusData{StatusChange: c, Recipient: rcpt})
		if err != nil {
			return err
		}
		d.logger.Info("status change",
			zap.String("group_id", c.GroupID.String()),
			zap.String("from", c.From.String()),
			zap.String("to_status", c.To.String()),
			zap.String("channel", string(channel)),
			zap.String("to", address),
			zap.String("body", body))
	}
	return nil
}

var _ groupbuy.Dispatcher = (*LogDispatcher)(nil)
