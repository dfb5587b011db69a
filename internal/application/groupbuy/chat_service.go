package groupbuy

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/groupbuy/backend/internal/domain/groupbuy"
	"github.com/groupbuy/backend/internal/domain/shared"
	"go.uber.org/zap"
)

const (
	DefaultHistoryLimit = 50

	// accessCheckTicks is how many poll ticks pass between membership checks
	// of a participant's open stream
	accessCheckTicks = 5
)

// ChatNotifier wakes up chat streams when a message is posted. Polling stays
// the source of truth; a lost nudge only delays delivery to the next tick.
type ChatNotifier interface {
	Notify(ctx context.Context, groupID uuid.UUID) error
	// Subscribe returns a channel nudged for groupID and a function that
	// cancels the subscription
	Subscribe(groupID uuid.UUID) (<-chan struct{}, func())
}

// ChatConfig holds chat stream settings
type ChatConfig struct {
	Enabled           bool
	BatchSize         int
	PollInterval      time.Duration
	HeartbeatInterval time.Duration
	MaxClients        int
}

// Viewer is the authenticated caller of a chat operation
type Viewer struct {
	Operator      bool
	OperatorName  string
	ParticipantID uuid.UUID
}

// ChatSink receives what a stream produces. Any error ends the stream.
type ChatSink interface {
	Ready(cursor time.Time) error
	Messages(msgs []ChatMessageResponse) error
	Heartbeat() error
}

// ChatService serves the per-group negotiation channel
type ChatService struct {
	groups   groupbuy.GroupOrderRepository
	messages groupbuy.ChatMessageRepository
	notifier ChatNotifier
	cfg      ChatConfig
	clients  atomic.Int64
	metrics  Recorder
	now      func() time.Time
	logger   *zap.Logger
}

// NewChatService creates a new chat service. notifier may be nil.
func NewChatService(
	groups groupbuy.GroupOrderRepository,
	messages groupbuy.ChatMessageRepository,
	notifier ChatNotifier,
	cfg ChatConfig,
	logger *zap.Logger,
) *ChatService {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 200
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = 15 * time.Second
	}
	return &ChatService{
		groups:   groups,
		messages: messages,
		notifier: notifier,
		cfg:      cfg,
		metrics:  noopRecorder{},
		now:      func() time.Time { return time.Now().UTC() },
		logger:   logger,
	}
}

// SetMetrics installs a metrics recorder
func (s *ChatService) SetMetrics(r Recorder) {
	if r != nil {
		s.metrics = r
	}
}

// SetClock overrides the time source
func (s *ChatService) SetClock(now func() time.Time) {
	s.now = now
}

// ActiveStreams returns the number of open streams
func (s *ChatService) ActiveStreams() int64 {
	return s.clients.Load()
}

// Authorize checks that v may use the chat of groupID
func (s *ChatService) Authorize(ctx context.Context, groupID uuid.UUID, v Viewer) (*groupbuy.GroupOrder, error) {
	g, err := s.groups.FindByID(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if v.Operator {
		return g, nil
	}
	if !s.cfg.Enabled {
		return nil, shared.NewForbiddenError("chat is disabled")
	}
	if !g.ChatEnabled {
		return nil, shared.NewForbiddenError("chat is disabled for this group order")
	}
	if _, ok := g.FindParticipant(v.ParticipantID); !ok {
		return nil, shared.NewForbiddenError("only participants of this group order may use its chat")
	}
	return g, nil
}

// Post appends a message from v
func (s *ChatService) Post(ctx context.Context, groupID uuid.UUID, v Viewer, text string) (*ChatMessageResponse, error) {
	g, err := s.Authorize(ctx, groupID, v)
	if err != nil {
		return nil, err
	}

	author := groupbuy.ChatAuthor{Type: groupbuy.AuthorOperator, Name: v.OperatorName}
	if !v.Operator {
		p, _ := g.FindParticipant(v.ParticipantID)
		pid := p.ID
		author = groupbuy.ChatAuthor{Type: groupbuy.AuthorParticipant, ParticipantID: &pid, Name: p.DisplayName()}
	}

	msg, err := groupbuy.NewChatMessage(groupID, author, text, s.now())
	if err != nil {
		return nil, err
	}
	if err := s.messages.Append(ctx, msg); err != nil {
		s.logger.Error("failed to store chat message", zap.String("group_id", groupID.String()), zap.Error(err))
		return nil, err
	}
	if s.notifier != nil {
		if err := s.notifier.Notify(ctx, groupID); err != nil {
			s.logger.Warn("failed to nudge chat streams", zap.String("group_id", groupID.String()), zap.Error(err))
		}
	}

	resp := ToChatMessageResponse(*msg)
	return &resp, nil
}

// History returns messages at or after since, or the newest ones when since
// is nil
func (s *ChatService) History(ctx context.Context, groupID uuid.UUID, v Viewer, since *time.Time, limit int) ([]ChatMessageResponse, error) {
	if _, err := s.Authorize(ctx, groupID, v); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if limit > s.cfg.BatchSize {
		limit = s.cfg.BatchSize
	}

	var msgs []groupbuy.ChatMessage
	var err error
	if since != nil {
		msgs, err = s.messages.ListSince(ctx, groupID, since.UTC(), limit)
	} else {
		msgs, err = s.messages.ListRecent(ctx, groupID, limit)
	}
	if err != nil {
		return nil, err
	}
	return toChatResponses(msgs), nil
}

// Stream pushes messages of groupID created at or after since to sink until
// ctx ends. Callers authorize first; a participant's access is checked again
// every few polls and the stream ends once they leave or chat is switched
// off. Storage errors are logged and retried on the next tick; sink errors
// end the stream.
func (s *ChatService) Stream(ctx context.Context, groupID uuid.UUID, v Viewer, since time.Time, sink ChatSink) error {
	if n := s.clients.Add(1); s.cfg.MaxClients > 0 && n > int64(s.cfg.MaxClients) {
		s.clients.Add(-1)
		return shared.NewDomainError(shared.CodeUnavailable, "too many chat connections, retry later")
	}
	defer s.clients.Add(-1)

	if since.IsZero() {
		since = s.now()
	}
	cursor := groupbuy.NewChatCursor(since)
	if err := sink.Ready(cursor.At); err != nil {
		return err
	}

	s.metrics.StreamOpened(ctx)
	defer s.metrics.StreamClosed(context.WithoutCancel(ctx))

	var nudges <-chan struct{}
	if s.notifier != nil {
		ch, unsubscribe := s.notifier.Subscribe(groupID)
		defer unsubscribe()
		nudges = ch
	}

	poll := time.NewTicker(s.cfg.PollInterval)
	defer poll.Stop()
	heartbeat := time.NewTicker(s.cfg.HeartbeatInterval)
	defer heartbeat.Stop()

	if err := s.drain(ctx, groupID, cursor, sink); err != nil {
		return err
	}
	ticks := 0
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-heartbeat.C:
			if err := sink.Heartbeat(); err != nil {
				return err
			}
		case <-poll.C:
			if ticks++; !v.Operator && ticks%accessCheckTicks == 0 {
				if err := s.recheck(ctx, groupID, v); err != nil {
					return err
				}
			}
			if err := s.drain(ctx, groupID, cursor, sink); err != nil {
				return err
			}
		case <-nudges:
			if err := s.drain(ctx, groupID, cursor, sink); err != nil {
				return err
			}
		}
	}
}

// recheck returns an error when v lost access to the chat. Lookup failures
// other than a missing group leave the stream open.
func (s *ChatService) recheck(ctx context.Context, groupID uuid.UUID, v Viewer) error {
	_, err := s.Authorize(ctx, groupID, v)
	switch {
	case err == nil:
		return nil
	case shared.IsCode(err, shared.CodeForbidden), shared.IsCode(err, shared.CodeNotFound):
		s.logger.Info("chat stream access revoked",
			zap.String("group_id", groupID.String()),
			zap.String("participant_id", v.ParticipantID.String()))
		return err
	default:
		if ctx.Err() == nil {
			s.logger.Warn("chat access check failed", zap.String("group_id", groupID.String()), zap.Error(err))
		}
		return nil
	}
}

// drain reads batches until one comes back short or brings nothing new. The
// limit grows by the messages already sent at the cursor time, which every
// read returns again.
func (s *ChatService) drain(ctx context.Context, groupID uuid.UUID, cursor *groupbuy.ChatCursor, sink ChatSink) error {
	for {
		limit := s.cfg.BatchSize + cursor.Boundary()
		batch, err := s.messages.ListSince(ctx, groupID, cursor.At, limit)
		if err != nil {
			if ctx.Err() == nil {
				s.logger.Warn("chat poll failed", zap.String("group_id", groupID.String()), zap.Error(err))
			}
			return nil
		}
		fresh := cursor.Advance(batch)
		if len(fresh) > 0 {
			if err := sink.Messages(toChatResponses(fresh)); err != nil {
				return err
			}
		}
		if len(batch) < limit || len(fresh) == 0 {
			return nil
		}
	}
}

func toChatResponses(msgs []groupbuy.ChatMessage) []ChatMessageResponse {
	out := make([]ChatMessageResponse, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, ToChatMessageResponse(m))
	}
	return out
}
