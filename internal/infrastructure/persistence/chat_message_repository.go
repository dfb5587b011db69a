package persistence

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/groupbuy/backend/internal/domain/groupbuy"
	"github.com/groupbuy/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormChatMessageRepository implements groupbuy.ChatMessageRepository
type GormChatMessageRepository struct {
	db *gorm.DB
}

// NewGormChatMessageRepository creates a new GormChatMessageRepository
func NewGormChatMessageRepository(db *gorm.DB) *GormChatMessageRepository {
	return &GormChatMessageRepository{db: db}
}

// Append stores a message
func (r *GormChatMessageRepository) Append(ctx context.Context, msg *groupbuy.ChatMessage) error {
	if err := r.db.WithContext(ctx).Create(models.ChatMessageModelFromDomain(msg)).Error; err != nil {
		return storageErr("append chat message", err)
	}
	return nil
}

// ListSince returns messages created at or after since. The inclusive bound
// lets the stream cursor pick up rows that share the cursor timestamp.
func (r *GormChatMessageRepository) ListSince(ctx context.Context, groupID uuid.UUID, since time.Time, limit int) ([]groupbuy.ChatMessage, error) {
	var rows []models.ChatMessageModel
	err := r.db.WithContext(ctx).
		Where("group_id = ? AND created_at >= ?", groupID, since.UTC()).
		Order("created_at ASC, id ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, storageErr("list chat messages", err)
	}
	return chatToDomain(rows), nil
}

// ListRecent returns the newest limit messages, oldest first
func (r *GormChatMessageRepository) ListRecent(ctx context.Context, groupID uuid.UUID, limit int) ([]groupbuy.ChatMessage, error) {
	var rows []models.ChatMessageModel
	err := r.db.WithContext(ctx).
		Where("group_id = ?", groupID).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, storageErr("list recent chat messages", err)
	}
	for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
		rows[i], rows[j] = rows[j], rows[i]
	}
	return chatToDomain(rows), nil
}

func chatToDomain(rows []models.ChatMessageModel) []groupbuy.ChatMessage {
	out := make([]groupbuy.ChatMessage, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].ToDomain())
	}
	return out
}

var _ groupbuy.ChatMessageRepository = (*GormChatMessageRepository)(nil)
