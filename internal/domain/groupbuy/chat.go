package groupbuy

import (
	"crypto/rand"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/groupbuy/backend/internal/domain/shared"
	"github.com/oklog/ulid/v2"
)

// MaxChatMessageLength bounds a chat message in characters
const MaxChatMessageLength = 2000

// AuthorType identifies who wrote a chat message
type AuthorType string

const (
	AuthorOperator    AuthorType = "operator"
	AuthorParticipant AuthorType = "participant"
)

// ChatAuthor is the authenticated sender of a chat message
type ChatAuthor struct {
	Type          AuthorType
	ParticipantID *uuid.UUID
	Name          string
}

// ChatMessage is an append-only message in a group's negotiation channel
type ChatMessage struct {
	ID                  string // ULID, sortable by creation
	GroupID             uuid.UUID
	AuthorType          AuthorType
	AuthorParticipantID *uuid.UUID
	AuthorName          string
	Text                string
	CreatedAt           time.Time
}

// NewChatMessage validates and stamps a message. The creation time and id
// are always assigned here, never taken from the client.
func NewChatMessage(groupID uuid.UUID, author ChatAuthor, text string, now time.Time) (*ChatMessage, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, shared.NewValidationError("message text is required")
	}
	if utf8.RuneCountInString(text) > MaxChatMessageLength {
		return nil, shared.NewValidationError("message text is too long")
	}
	switch author.Type {
	case AuthorOperator:
		author.ParticipantID = nil
		if strings.TrimSpace(author.Name) == "" {
			author.Name = "Operator"
		}
	case AuthorParticipant:
		if author.ParticipantID == nil {
			return nil, shared.NewValidationError("participant messages must name their author")
		}
	default:
		return nil, shared.NewValidationError("unknown chat author type")
	}

	// storage keeps microseconds; stamp at that precision so cursors compare equal
	now = now.UTC().Truncate(time.Microsecond)
	return &ChatMessage{
		ID:                  NewMessageID(now),
		GroupID:             groupID,
		AuthorType:          author.Type,
		AuthorParticipantID: author.ParticipantID,
		AuthorName:          strings.TrimSpace(author.Name),
		Text:                text,
		CreatedAt:           now,
	}, nil
}

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// NewMessageID returns a ULID for t. Ids minted in the same millisecond by
// this process are strictly increasing.
func NewMessageID(t time.Time) string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}

// ChatCursor tracks what a stream has delivered: the creation time of the
// newest message sent plus the ids already sent at exactly that instant.
// Polls read created_at >= At, so messages sharing the boundary timestamp
// are fetched again and filtered out here.
type ChatCursor struct {
	At   time.Time
	seen map[string]struct{}
}

// NewChatCursor starts a cursor at t with nothing delivered
func NewChatCursor(t time.Time) *ChatCursor {
	return &ChatCursor{At: t.UTC().Truncate(time.Microsecond), seen: make(map[string]struct{})}
}

// Advance filters batch down to undelivered messages, assumed ordered by
// creation time then id, and moves the cursor past them.
func (c *ChatCursor) Advance(batch []ChatMessage) []ChatMessage {
	fresh := make([]ChatMessage, 0, len(batch))
	for _, m := range batch {
		if m.CreatedAt.Before(c.At) {
			continue
		}
		if m.CreatedAt.Equal(c.At) {
			if _, ok := c.seen[m.ID]; ok {
				continue
			}
		} else {
			c.At = m.CreatedAt
			c.seen = make(map[string]struct{})
		}
		c.seen[m.ID] = struct{}{}
		fresh = append(fresh, m)
	}
	return fresh
}

// Boundary returns how many delivered messages sit exactly at the cursor
// time. A poll must read past them to make progress.
func (c *ChatCursor) Boundary() int {
	return len(c.seen)
}
