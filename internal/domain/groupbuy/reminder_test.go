package groupbuy

import (
	"testing"
	"time"

	"github.com/groupbuy/backend/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDaysUntil(t *testing.T) {
	deadline := testNow.Add(72 * time.Hour)
	tests := []struct {
		name string
		now  time.Time
		want int
	}{
		{"exactly three days", testNow, 3},
		{"just under three days", testNow.Add(time.Minute), 3},
		{"just over two days", testNow.Add(23 * time.Hour), 3},
		{"exactly two days", testNow.Add(24 * time.Hour), 2},
		{"one hour left", deadline.Add(-time.Hour), 1},
		{"at deadline", deadline, 0},
		{"past deadline", deadline.Add(time.Hour), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DaysUntil(deadline, tt.now))
		})
	}
}

func TestDueReminderWindow(t *testing.T) {
	deadline := testNow.Add(72 * time.Hour)

	w, ok := DueReminderWindow(DefaultReminderWindows, deadline, testNow.Add(time.Hour))
	require.True(t, ok)
	assert.Equal(t, Reminder3Days, w)

	_, ok = DueReminderWindow(DefaultReminderWindows, deadline, testNow.Add(30*time.Hour))
	assert.False(t, ok, "two days left matches no window")

	w, ok = DueReminderWindow(DefaultReminderWindows, deadline, deadline.Add(-2*time.Hour))
	require.True(t, ok)
	assert.Equal(t, Reminder1Day, w)

	_, ok = DueReminderWindow(DefaultReminderWindows, deadline, deadline.Add(time.Minute))
	assert.False(t, ok)
}

func TestParseReminderWindow(t *testing.T) {
	w, err := ParseReminderWindow("7d")
	require.NoError(t, err)
	assert.Equal(t, 7, w.Days())

	for _, raw := range []string{"", "d", "0d", "-1d", "3h", "three"} {
		_, err := ParseReminderWindow(raw)
		assert.ErrorIs(t, err, shared.ErrValidation, raw)
	}
}

func TestGroupOrder_RemindersSent(t *testing.T) {
	g := createTestGroup(t, 50)
	assert.False(t, g.HasReminderBeenSent(Reminder3Days))
	g.MarkReminderSent(Reminder3Days)
	g.MarkReminderSent(Reminder3Days)
	assert.True(t, g.HasReminderBeenSent(Reminder3Days))
	assert.Len(t, g.RemindersSent, 1)
}
