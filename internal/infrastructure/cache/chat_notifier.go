package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// DefaultChatChannel is the pub/sub channel carrying chat nudges
const DefaultChatChannel = "groupbuy:chat"

const defaultCloseTimeout = 5 * time.Second

// ChatNotifier wakes chat streams of a group
type ChatNotifier interface {
	Notify(ctx context.Context, groupID uuid.UUID) error
	Subscribe(groupID uuid.UUID) (<-chan struct{}, func())
}

// LocalChatNotifier fans nudges out to streams of this process
type LocalChatNotifier struct {
	mu   sync.Mutex
	subs map[uuid.UUID]map[chan struct{}]struct{}
}

// NewLocalChatNotifier creates an in-process notifier
func NewLocalChatNotifier() *LocalChatNotifier {
	return &LocalChatNotifier{subs: make(map[uuid.UUID]map[chan struct{}]struct{})}
}

// Notify nudges every subscriber of groupID. A subscriber that has not yet
// consumed its previous nudge is skipped; it will poll anyway.
func (n *LocalChatNotifier) Notify(_ context.Context, groupID uuid.UUID) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	for ch := range n.subs[groupID] {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
	return nil
}

// Subscribe registers a stream for groupID
func (n *LocalChatNotifier) Subscribe(groupID uuid.UUID) (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)

	n.mu.Lock()
	if n.subs[groupID] == nil {
		n.subs[groupID] = make(map[chan struct{}]struct{})
	}
	n.subs[groupID][ch] = struct{}{}
	n.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			n.mu.Lock()
			defer n.mu.Unlock()
			delete(n.subs[groupID], ch)
			if len(n.subs[groupID]) == 0 {
				delete(n.subs, groupID)
			}
		})
	}
}

// Subscribers returns the number of streams subscribed to groupID
func (n *LocalChatNotifier) Subscribers(groupID uuid.UUID) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.subs[groupID])
}

// Close is a no-op
func (n *LocalChatNotifier) Close() error {
	return nil
}

// RedisChatNotifier publishes nudges on a Redis channel and delivers the
// ones it receives to local streams, so a post on any instance wakes
// streams on every instance
type RedisChatNotifier struct {
	client  *redis.Client
	channel string
	local   *LocalChatNotifier
	logger  *zap.Logger

	mu        sync.Mutex
	cancelFn  context.CancelFunc
	doneCh    chan struct{}
	doneOnce  sync.Once
	isRunning bool
}

// NewRedisChatNotifier creates a notifier on a shared client. The caller
// keeps ownership of the client.
func NewRedisChatNotifier(client *redis.Client, channel string, logger *zap.Logger) *RedisChatNotifier {
	if channel == "" {
		channel = DefaultChatChannel
	}
	return &RedisChatNotifier{
		client:  client,
		channel: channel,
		local:   NewLocalChatNotifier(),
		logger:  logger,
		doneCh:  make(chan struct{}),
	}
}

// Notify publishes groupID on the channel
func (n *RedisChatNotifier) Notify(ctx context.Context, groupID uuid.UUID) error {
	if err := n.client.Publish(ctx, n.channel, groupID.String()).Err(); err != nil {
		return fmt.Errorf("publish chat nudge: %w", err)
	}
	return nil
}

// Subscribe registers a local stream for groupID
func (n *RedisChatNotifier) Subscribe(groupID uuid.UUID) (<-chan struct{}, func()) {
	return n.local.Subscribe(groupID)
}

// Run relays channel messages to local streams until ctx ends. It blocks.
func (n *RedisChatNotifier) Run(ctx context.Context) error {
	n.mu.Lock()
	if n.isRunning {
		n.mu.Unlock()
		return errors.New("chat notifier already running")
	}
	n.isRunning = true
	subCtx, cancel := context.WithCancel(ctx)
	n.cancelFn = cancel
	n.mu.Unlock()

	defer func() {
		n.mu.Lock()
		n.isRunning = false
		n.mu.Unlock()
		n.doneOnce.Do(func() { close(n.doneCh) })
	}()

	pubsub := n.client.Subscribe(subCtx, n.channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(subCtx); err != nil {
		return fmt.Errorf("subscribe to %s: %w", n.channel, err)
	}
	n.logger.Info("subscribed to chat channel", zap.String("channel", n.channel))

	ch := pubsub.Channel()
	for {
		select {
		case <-subCtx.Done():
			n.logger.Info("chat channel subscription stopped")
			return nil
		case msg, ok := <-ch:
			if !ok {
				n.logger.Warn("chat channel closed")
				return nil
			}
			groupID, err := uuid.Parse(msg.Payload)
			if err != nil {
				n.logger.Warn("ignoring malformed chat nudge", zap.String("payload", msg.Payload))
				continue
			}
			_ = n.local.Notify(subCtx, groupID)
		}
	}
}

// Close stops Run and waits for it to return
func (n *RedisChatNotifier) Close() error {
	n.mu.Lock()
	cancelFn := n.cancelFn
	n.mu.Unlock()

	if cancelFn != nil {
		cancelFn()
		select {
		case <-n.doneCh:
		case <-time.After(defaultCloseTimeout):
			n.logger.Warn("timeout waiting for chat subscription to stop")
		}
	}
	return nil
}
