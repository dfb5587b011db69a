package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/groupbuy/backend/internal/domain/groupbuy"
)

// ChatMessageModel is the persistence model for a group chat message.
// Rows are append-only.
type ChatMessageModel struct {
	ID                  string              `gorm:"type:varchar(26);primary_key"`
	GroupID             uuid.UUID           `gorm:"type:uuid;not null;index:idx_chat_group_created,priority:1"`
	AuthorType          groupbuy.AuthorType `gorm:"type:varchar(20);not null"`
	AuthorParticipantID *uuid.UUID          `gorm:"type:uuid"`
	AuthorName          string              `gorm:"type:varchar(200);not null"`
	Text                string              `gorm:"type:text;not null"`
	CreatedAt           time.Time           `gorm:"not null;index:idx_chat_group_created,priority:2"`
}

// TableName returns the table name for GORM
func (ChatMessageModel) TableName() string {
	return "group_order_chat_messages"
}

// ToDomain converts the row to a domain ChatMessage
func (m *ChatMessageModel) ToDomain() groupbuy.ChatMessage {
	return groupbuy.ChatMessage{
		ID:                  m.ID,
		GroupID:             m.GroupID,
		AuthorType:          m.AuthorType,
		AuthorParticipantID: m.AuthorParticipantID,
		AuthorName:          m.AuthorName,
		Text:                m.Text,
		CreatedAt:           m.CreatedAt.UTC(),
	}
}

// ChatMessageModelFromDomain creates a row from a domain ChatMessage
func ChatMessageModelFromDomain(msg *groupbuy.ChatMessage) *ChatMessageModel {
	return &ChatMessageModel{
		ID:                  msg.ID,
		GroupID:             msg.GroupID,
		AuthorType:          msg.AuthorType,
		AuthorParticipantID: msg.AuthorParticipantID,
		AuthorName:          msg.AuthorName,
		Text:                msg.Text,
		CreatedAt:           msg.CreatedAt,
	}
}
