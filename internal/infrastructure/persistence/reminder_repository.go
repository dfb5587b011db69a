package persistence

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/groupbuy/backend/internal/domain/groupbuy"
	"github.com/groupbuy/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormReminderLog implements groupbuy.ReminderLog on the
// group_order_reminders table
type GormReminderLog struct {
	db *gorm.DB
}

// NewGormReminderLog creates a new GormReminderLog
func NewGormReminderLog(db *gorm.DB) *GormReminderLog {
	return &GormReminderLog{db: db}
}

// Claim inserts the (group, window) row. A conflicting row means another
// sweep already claimed the window, which is reported as false.
func (r *GormReminderLog) Claim(ctx context.Context, groupID uuid.UUID, window groupbuy.ReminderWindow, at time.Time) (bool, error) {
	row := &models.GroupOrderReminderModel{
		GroupID: groupID,
		Window:  string(window),
		SentAt:  at,
	}
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "group_id"}, {Name: "reminder_window"}},
			DoNothing: true,
		}).
		Create(row)
	if result.Error != nil {
		return false, storageErr("claim reminder", result.Error)
	}
	return result.RowsAffected == 1, nil
}

// Release deletes a claim
func (r *GormReminderLog) Release(ctx context.Context, groupID uuid.UUID, window groupbuy.ReminderWindow) error {
	err := r.db.WithContext(ctx).
		Where("group_id = ? AND reminder_window = ?", groupID, string(window)).
		Delete(&models.GroupOrderReminderModel{}).Error
	if err != nil {
		return storageErr("release reminder", err)
	}
	return nil
}

var _ groupbuy.ReminderLog = (*GormReminderLog)(nil)
