package cache

import (
	"github.com/groupbuy/backend/internal/domain/shared"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Stores groups the Redis-or-memory backed components the server needs
type Stores struct {
	Idempotency shared.IdempotencyStore
	Chat        ChatHub
}

// ChatHub is a chat notifier the server runs and closes
type ChatHub interface {
	ChatNotifier
	Close() error
}

// FactoryOption configures NewStores
type FactoryOption func(*factoryOptions)

type factoryOptions struct {
	logger      *zap.Logger
	redisNotify bool
	channel     string
}

// WithLogger sets the logger for created stores
func WithLogger(logger *zap.Logger) FactoryOption {
	return func(o *factoryOptions) { o.logger = logger }
}

// WithRedisChatNotify routes chat nudges through Redis pub/sub so streams on
// other instances wake up too
func WithRedisChatNotify(enabled bool) FactoryOption {
	return func(o *factoryOptions) { o.redisNotify = enabled }
}

// WithChatChannel overrides the pub/sub channel name
func WithChatChannel(channel string) FactoryOption {
	return func(o *factoryOptions) { o.channel = channel }
}

// NewStores builds stores on client, or in-memory ones when client is nil
func NewStores(client *redis.Client, opts ...FactoryOption) *Stores {
	o := &factoryOptions{logger: zap.NewNop(), channel: DefaultChatChannel}
	for _, opt := range opts {
		opt(o)
	}

	if client == nil {
		o.logger.Warn("Redis not configured, using in-memory idempotency and chat notification; " +
			"join replays and chat nudges are not shared across instances")
		return &Stores{
			Idempotency: NewInMemoryIdempotencyStore(),
			Chat:        NewLocalChatNotifier(),
		}
	}

	stores := &Stores{
		Idempotency: NewRedisIdempotencyStoreWithClient(client, ""),
		Chat:        NewLocalChatNotifier(),
	}
	if o.redisNotify {
		stores.Chat = NewRedisChatNotifier(client, o.channel, o.logger)
	}
	o.logger.Info("using Redis stores", zap.Bool("chat_pubsub", o.redisNotify))
	return stores
}

// Close releases every store
func (s *Stores) Close() error {
	err := s.Idempotency.Close()
	if cerr := s.Chat.Close(); err == nil {
		err = cerr
	}
	return err
}
