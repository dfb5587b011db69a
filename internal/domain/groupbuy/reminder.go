package groupbuy

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/groupbuy/backend/internal/domain/shared"
)

// ReminderWindow names a deadline reminder, e.g. "3d" fires on the day that
// is three days before the deadline.
type ReminderWindow string

const (
	Reminder3Days ReminderWindow = "3d"
	Reminder1Day  ReminderWindow = "1d"
)

// DefaultReminderWindows are fired for every open group
var DefaultReminderWindows = []ReminderWindow{Reminder3Days, Reminder1Day}

// ParseReminderWindow validates a window of the form "<days>d"
func ParseReminderWindow(raw string) (ReminderWindow, error) {
	raw = strings.TrimSpace(raw)
	days, ok := strings.CutSuffix(raw, "d")
	if !ok {
		return "", shared.NewValidationError(fmt.Sprintf("reminder window %q must look like 3d", raw))
	}
	n, err := strconv.Atoi(days)
	if err != nil || n <= 0 {
		return "", shared.NewValidationError(fmt.Sprintf("reminder window %q must be a positive number of days", raw))
	}
	return ReminderWindow(raw), nil
}

// Days returns the number of days before the deadline the window fires
func (w ReminderWindow) Days() int {
	n, err := strconv.Atoi(strings.TrimSuffix(string(w), "d"))
	if err != nil {
		return 0
	}
	return n
}

// DaysUntil counts whole days left before deadline, rounding partial days
// up: 25 hours left is 2 days, 23 hours left is 1 day. Zero once passed.
func DaysUntil(deadline, now time.Time) int {
	left := deadline.Sub(now)
	if left <= 0 {
		return 0
	}
	return int(math.Ceil(left.Hours() / 24))
}

// DueReminderWindow returns the window whose day boundary now falls in
func DueReminderWindow(windows []ReminderWindow, deadline, now time.Time) (ReminderWindow, bool) {
	days := DaysUntil(deadline, now)
	if days == 0 {
		return "", false
	}
	for _, w := range windows {
		if w.Days() == days {
			return w, true
		}
	}
	return "", false
}
