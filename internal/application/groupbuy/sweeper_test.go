package groupbuy

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/groupbuy/backend/internal/domain/groupbuy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newTestSweeper(f *serviceFixture, dispatcher groupbuy.Dispatcher) (*Sweeper, *memoryReminderLog) {
	log := newMemoryReminderLog()
	return NewSweeper(f.svc, log, dispatcher, nil, zap.NewNop()), log
}

func TestSweeper_ExpiresPastDeadline(t *testing.T) {
	f := newServiceFixture(t, groupbuy.PricingBestTierForAll)
	id := f.createGroup(t, 10, time.Hour)
	_, err := f.svc.Join(context.Background(), id, joinReq("Alice Smith", 2), "")
	require.NoError(t, err)

	dispatcher := new(mockDispatcher)
	sweeper, _ := newTestSweeper(f, dispatcher)
	f.clockTime = testNow.Add(2 * time.Hour)

	result, err := sweeper.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Scanned)
	assert.Equal(t, 1, result.Expired)
	assert.Empty(t, result.Errors)

	g := f.repo.get(id)
	assert.Equal(t, groupbuy.StatusCancelled, g.Status)
	assert.Equal(t, groupbuy.ExpiryNote, g.CancelReason)
	assert.Contains(t, g.InternalNotes, groupbuy.ExpiryNote)
	assert.Equal(t, 1, f.metrics.expiries)
	assert.Contains(t, f.metrics.transitions, "open->cancelled")

	again, err := sweeper.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, again.Scanned)
	assert.Equal(t, 0, again.Expired)
	dispatcher.AssertNotCalled(t, "SendReminder", mock.Anything, mock.Anything)
}

func TestSweeper_AtDeadlineIsNotExpired(t *testing.T) {
	f := newServiceFixture(t, groupbuy.PricingBestTierForAll)
	id := f.createGroup(t, 10, time.Hour)

	sweeper, _ := newTestSweeper(f, new(mockDispatcher))
	f.clockTime = testNow.Add(time.Hour)

	result, err := sweeper.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, result.Expired)
	assert.Equal(t, groupbuy.StatusOpen, f.repo.get(id).Status)
}

func TestSweeper_SendsEachReminderOnce(t *testing.T) {
	f := newServiceFixture(t, groupbuy.PricingBestTierForAll)
	// 71 hours left rounds up to three days
	id := f.createGroup(t, 10, 71*time.Hour)
	_, err := f.svc.Join(context.Background(), id, joinReq("Alice Smith", 2), "")
	require.NoError(t, err)

	dispatcher := new(mockDispatcher)
	dispatcher.On("SendReminder", mock.Anything, mock.MatchedBy(func(r groupbuy.Reminder) bool {
		return r.GroupID == id && r.Window == groupbuy.Reminder3Days && len(r.Recipients) == 1
	})).Return(nil).Once()

	sweeper, log := newTestSweeper(f, dispatcher)

	first, err := sweeper.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, first.RemindersSent)

	second, err := sweeper.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, second.RemindersSent)

	assert.Equal(t, 1, log.count())
	assert.Equal(t, 1, f.metrics.reminders)
	dispatcher.AssertExpectations(t)
}

func TestSweeper_FailedReminderIsRetried(t *testing.T) {
	f := newServiceFixture(t, groupbuy.PricingBestTierForAll)
	id := f.createGroup(t, 10, 20*time.Hour)

	dispatcher := new(mockDispatcher)
	dispatcher.On("SendReminder", mock.Anything, mock.Anything).Return(errors.New("smtp down")).Once()
	dispatcher.On("SendReminder", mock.Anything, mock.MatchedBy(func(r groupbuy.Reminder) bool {
		return r.Window == groupbuy.Reminder1Day
	})).Return(nil).Once()

	sweeper, log := newTestSweeper(f, dispatcher)

	failed, err := sweeper.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, failed.RemindersSent)
	require.Len(t, failed.Errors, 1)
	assert.Equal(t, id, failed.Errors[0].GroupID)
	assert.Equal(t, "remind", failed.Errors[0].Stage)
	assert.Equal(t, 0, log.count(), "the claim is released")

	retried, err := sweeper.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, retried.RemindersSent)
	dispatcher.AssertExpectations(t)
}

func TestSweeper_NothingDue(t *testing.T) {
	f := newServiceFixture(t, groupbuy.PricingBestTierForAll)
	f.createGroup(t, 10, 5*24*time.Hour)

	dispatcher := new(mockDispatcher)
	sweeper, _ := newTestSweeper(f, dispatcher)

	result, err := sweeper.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Scanned)
	assert.Equal(t, 0, result.RemindersSent)
	assert.Equal(t, 0, result.Expired)
	dispatcher.AssertNotCalled(t, "SendReminder", mock.Anything, mock.Anything)
}

func TestSweeper_LoadErrorsAreCollected(t *testing.T) {
	f := newServiceFixture(t, groupbuy.PricingBestTierForAll)
	f.createGroup(t, 10, 5*24*time.Hour)
	f.createGroup(t, 10, 6*24*time.Hour)

	sweeper, _ := newTestSweeper(f, new(mockDispatcher))
	f.repo.findErr = errors.New("connection reset")

	result, err := sweeper.Sweep(context.Background())
	require.NoError(t, err, "per-group failures never abort the sweep")
	assert.Equal(t, 2, result.Scanned)
	assert.Len(t, result.Errors, 2)
}

func TestStatusChangeNotifier(t *testing.T) {
	f := newServiceFixture(t, groupbuy.PricingBestTierForAll)
	id := f.createGroup(t, 10, 7*24*time.Hour)
	_, err := f.svc.Join(context.Background(), id, joinReq("Alice Smith", 2), "")
	require.NoError(t, err)
	_, err = f.svc.Join(context.Background(), id, joinReq("Bob Jones", 3), "")
	require.NoError(t, err)

	g := f.repo.get(id)
	require.NoError(t, g.Cancel("supplier discontinued", testNow))
	event := g.GetDomainEvents()[0]

	dispatcher := new(mockDispatcher)
	dispatcher.On("SendStatusChange", mock.Anything, mock.MatchedBy(func(c groupbuy.StatusChange) bool {
		return c.GroupID == id &&
			c.From == groupbuy.StatusOpen &&
			c.To == groupbuy.StatusCancelled &&
			c.Reason == "supplier discontinued" &&
			len(c.Recipients) == 2
	})).Return(nil).Once()

	notifier := NewStatusChangeNotifier(f.repo, dispatcher, zap.NewNop())
	assert.Equal(t, []string{groupbuy.EventTypeGroupOrderStatusChanged}, notifier.EventTypes())
	require.NoError(t, notifier.Handle(context.Background(), event))
	dispatcher.AssertExpectations(t)

	t.Run("groups without participants are skipped", func(t *testing.T) {
		empty := f.createGroup(t, 10, 7*24*time.Hour)
		eg := f.repo.get(empty)
		require.NoError(t, eg.Cancel("", testNow))
		require.NoError(t, notifier.Handle(context.Background(), eg.GetDomainEvents()[0]))
		dispatcher.AssertNumberOfCalls(t, "SendStatusChange", 1)
	})

	t.Run("other events are rejected", func(t *testing.T) {
		other := groupbuy.NewDeadlineExtendedEvent(g, testNow)
		assert.Error(t, notifier.Handle(context.Background(), other))
	})
}

func TestSweeper_OutlivesCancelledCaller(t *testing.T) {
	f := newServiceFixture(t, groupbuy.PricingBestTierForAll)
	id := f.createGroup(t, 10, time.Hour)

	sweeper, _ := newTestSweeper(f, new(mockDispatcher))
	f.clockTime = testNow.Add(2 * time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := sweeper.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Expired)
	assert.Equal(t, groupbuy.StatusCancelled, f.repo.get(id).Status)
}

func TestSweeper_TimeoutStopsPass(t *testing.T) {
	f := newServiceFixture(t, groupbuy.PricingBestTierForAll)
	f.createGroup(t, 10, 20*time.Hour)
	f.createGroup(t, 10, 21*time.Hour)

	dispatcher := new(mockDispatcher)
	dispatcher.On("SendReminder", mock.Anything, mock.Anything).
		Run(func(mock.Arguments) { time.Sleep(50 * time.Millisecond) }).
		Return(nil)

	core, recorded := observer.New(zapcore.WarnLevel)
	sweeper := NewSweeper(f.svc, newMemoryReminderLog(), dispatcher, nil, zap.New(core))
	sweeper.SetTimeout(10 * time.Millisecond)

	result, err := sweeper.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, result.Scanned)
	assert.Equal(t, 1, result.RemindersSent)

	interrupted := recorded.FilterMessage("sweep interrupted").All()
	require.Len(t, interrupted, 1)
	assert.Equal(t, int64(1), interrupted[0].ContextMap()["remaining"])
}
