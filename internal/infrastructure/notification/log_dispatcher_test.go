package notification

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/groupbuy/backend/internal/domain/groupbuy"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/text/language"
)

func newTestDispatcher(t *testing.T) (*LogDispatcher, *observer.ObservedLogs) {
	t.Helper()
	renderer, err := NewRenderer(language.AmericanEnglish)
	require.NoError(t, err)
	core, logs := observer.New(zap.InfoLevel)
	return NewLogDispatcher(renderer, zap.New(core)), logs
}

func TestLogDispatcher_SendReminder(t *testing.T) {
	d, logs := newTestDispatcher(t)

	err := d.SendReminder(context.Background(), groupbuy.Reminder{
		GroupID:          uuid.New(),
		ProductName:      "Espresso Grinder",
		Window:           groupbuy.Reminder1Day,
		Deadline:         time.Date(2026, 3, 12, 18, 0, 0, 0, time.UTC),
		CurrentQty:       7,
		TargetQty:        10,
		CurrentUnitPrice: decimal.RequireFromString("89.5"),
		Currency:         "USD",
		Recipients: []groupbuy.Recipient{
			{Name: "Ada", Email: "ada@example.com", Qty: 2},
			{Name: "Lin", Phone: "+15550100", Qty: 1},
			{Name: "Anonymous", Qty: 4},
		},
	})
	require.NoError(t, err)

	entries := logs.All()
	require.Len(t, entries, 2, "recipients without a contact are skipped")

	first := entries[0].ContextMap()
	assert.Equal(t, "email", first["channel"])
	assert.Equal(t, "ada@example.com", first["to"])
	body := first["body"].(string)
	assert.Contains(t, body, "Hi Ada")
	assert.Contains(t, body, "closes in 1 day")
	assert.Contains(t, body, "Mar 12, 2026")
	assert.Contains(t, body, "7 of 10 units")
	assert.Contains(t, body, "89.50")
	assert.Contains(t, body, "You are in for 2")

	assert.Equal(t, "sms", entries[1].ContextMap()["channel"])
}

func TestLogDispatcher_SendStatusChange(t *testing.T) {
	d, logs := newTestDispatcher(t)

	err := d.SendStatusChange(context.Background(), groupbuy.StatusChange{
		GroupID:     uuid.New(),
		ProductName: "Espresso Grinder",
		From:        groupbuy.StatusOpen,
		To:          groupbuy.StatusCancelled,
		Reason:      "deadline passed",
		Recipients:  []groupbuy.Recipient{{Name: "Ada", Email: "ada@example.com"}},
	})
	require.NoError(t, err)

	require.Equal(t, 1, logs.Len())
	body := logs.All()[0].ContextMap()["body"].(string)
	assert.Contains(t, body, "is now Cancelled")
	assert.Contains(t, body, "Reason: deadline passed")
}

func TestLogDispatcher_StopsOnCancelledContext(t *testing.T) {
	d, logs := newTestDispatcher(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := d.SendStatusChange(ctx, groupbuy.StatusChange{
		To:         groupbuy.StatusShipped,
		Recipients: []groupbuy.Recipient{{Name: "Ada", Email: "ada@example.com"}},
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, logs.Len())
}

func TestRenderer_PendingApprovalTitle(t *testing.T) {
	renderer, err := NewRenderer(language.English)
	require.NoError(t, err)

	body, err := render(renderer.status, statusData{
		StatusChange: groupbuy.StatusChange{ProductName: "Kettle", To: groupbuy.StatusPendingApproval},
		Recipient:    groupbuy.Recipient{Name: "Lin"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Hi Lin, the group order for Kettle is now Pending Approval.", body)
}
