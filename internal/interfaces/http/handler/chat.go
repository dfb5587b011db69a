package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	groupbuyapp "github.com/groupbuy/backend/internal/application/groupbuy"
	"github.com/groupbuy/backend/internal/infrastructure/logger"
	"go.uber.org/zap"
)

// SSE event names
const (
	EventReady       = "ready"
	EventChatMessage = "chat-message"
)

// ChatHandler serves a group's negotiation channel
type ChatHandler struct {
	BaseHandler
	chat *groupbuyapp.ChatService
}

// NewChatHandler creates a new ChatHandler
func NewChatHandler(chat *groupbuyapp.ChatService) *ChatHandler {
	return &ChatHandler{chat: chat}
}

// parseSince accepts RFC 3339 or epoch seconds or milliseconds. Empty
// yields the zero time.
func parseSince(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		if n < 0 {
			return time.Time{}, fmt.Errorf("since must not be negative")
		}
		// 1e12 and above is read as milliseconds
		if n >= 1e12 {
			return time.UnixMilli(n).UTC(), nil
		}
		return time.Unix(n, 0).UTC(), nil
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("since must be RFC 3339 or epoch seconds/milliseconds")
	}
	return t.UTC(), nil
}

// Stream handles GET /group-orders/:id/chat/stream
func (h *ChatHandler) Stream(c *gin.Context) {
	id, ok := h.ParseID(c, "id")
	if !ok {
		return
	}
	since, err := parseSince(c.Query("since"))
	if err != nil {
		h.BadRequest(c, err.Error())
		return
	}
	viewer, ok := viewerFrom(c)
	if !ok {
		h.Unauthorized(c, "Authentication required")
		return
	}

	ctx := c.Request.Context()
	if _, err := h.chat.Authorize(ctx, id, viewer); err != nil {
		h.HandleError(c, err)
		return
	}

	sink := &sseSink{c: c}
	err = h.chat.Stream(ctx, id, viewer, since, sink)
	if err != nil && !sink.started {
		h.HandleError(c, err)
		return
	}
	if err != nil && ctx.Err() == nil {
		logger.L(ctx).Debug("chat stream ended", zap.String("group_id", id.String()), zap.Error(err))
	}
}

// sseSink writes stream output as server-sent events
type sseSink struct {
	c       *gin.Context
	started bool
}

func (s *sseSink) Ready(cursor time.Time) error {
	h := s.c.Writer.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	s.c.Status(http.StatusOK)
	s.started = true

	data, err := json.Marshal(gin.H{"cursor": cursor.UTC().Format(time.RFC3339Nano)})
	if err != nil {
		return err
	}
	return s.write(EventReady, "", data)
}

func (s *sseSink) Messages(msgs []groupbuyapp.ChatMessageResponse) error {
	for _, m := range msgs {
		data, err := json.Marshal(m)
		if err != nil {
			return err
		}
		if err := s.write(EventChatMessage, m.ID, data); err != nil {
			return err
		}
	}
	return nil
}

func (s *sseSink) Heartbeat() error {
	if _, err := fmt.Fprint(s.c.Writer, ": ping\n\n"); err != nil {
		return err
	}
	s.c.Writer.Flush()
	return nil
}

func (s *sseSink) write(event, id string, data []byte) error {
	w := s.c.Writer
	if _, err := fmt.Fprintf(w, "event: %s\n", event); err != nil {
		return err
	}
	if id != "" {
		if _, err := fmt.Fprintf(w, "id: %s\n", id); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return err
	}
	w.Flush()
	return nil
}

// History handles GET /group-orders/:id/chat/messages
func (h *ChatHandler) History(c *gin.Context) {
	id, ok := h.ParseID(c, "id")
	if !ok {
		return
	}
	viewer, ok := viewerFrom(c)
	if !ok {
		h.Unauthorized(c, "Authentication required")
		return
	}

	var since *time.Time
	if raw := c.Query("since"); raw != "" {
		t, err := parseSince(raw)
		if err != nil {
			h.BadRequest(c, err.Error())
			return
		}
		since = &t
	}
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			h.BadRequest(c, "limit must be a positive integer")
			return
		}
		limit = n
	}

	msgs, err := h.chat.History(c.Request.Context(), id, viewer, since, limit)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, msgs)
}

// Post handles POST /group-orders/:id/chat/messages
func (h *ChatHandler) Post(c *gin.Context) {
	id, ok := h.ParseID(c, "id")
	if !ok {
		return
	}
	viewer, ok := viewerFrom(c)
	if !ok {
		h.Unauthorized(c, "Authentication required")
		return
	}
	var req groupbuyapp.PostChatMessageRequest
	if !h.BindJSON(c, &req) {
		return
	}

	msg, err := h.chat.Post(c.Request.Context(), id, viewer, req.Text)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, msg)
}
