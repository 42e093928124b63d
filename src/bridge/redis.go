package bridge

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Envelope is the published form of an externally produced event. UserID,
// when set, routes the event as a unicast instead of a broadcast.
type Envelope struct {
	InstanceID    string         `json:"instance_id"`
	EventType     string         `json:"event_type"`
	Data          map[string]any `json:"data,omitempty"`
	UserID        string         `json:"user_id,omitempty"`
	RequiredRoles []string       `json:"required_roles,omitempty"`
}

// RedisIngest relays events published on a Redis channel into the hub. It
// lets batch producers (extraction, scraping, training jobs) raise hub
// events without linking the hub process.
type RedisIngest struct {
	client     *redis.Client
	prefix     string
	instanceID string
	sink       EventSink
	logger     zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.RWMutex
	active bool
}

// NewRedisIngest creates a Redis-backed event ingest.
func NewRedisIngest(cfg *RedisConfig, sink EventSink, logger zerolog.Logger) *RedisIngest {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	ctx, cancel := context.WithCancel(context.Background())

	return &RedisIngest{
		client:     client,
		prefix:     cfg.Prefix,
		instanceID: uuid.New().String(),
		sink:       sink,
		logger:     logger.With().Str("component", "redis-ingest").Logger(),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Start subscribes to the event channel and begins relaying.
func (b *RedisIngest) Start() error {
	if err := b.client.Ping(b.ctx).Err(); err != nil {
		return err
	}

	channel := b.prefix + "events"
	sub := b.client.Subscribe(b.ctx, channel)

	// Wait for subscription confirmation.
	if _, err := sub.Receive(b.ctx); err != nil {
		return err
	}

	b.mu.Lock()
	b.active = true
	b.mu.Unlock()

	b.wg.Add(1)
	go b.listen(sub)

	b.logger.Info().
		Str("instance_id", b.instanceID).
		Str("channel", channel).
		Msg("redis ingest started")
	return nil
}

// Publish sends an event onto the ingest channel. Producers in other
// processes use this; the hub side only consumes.
func (b *RedisIngest) Publish(env Envelope) error {
	env.InstanceID = b.instanceID
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return b.client.Publish(b.ctx, b.prefix+"events", data).Err()
}

// Stop unsubscribes and closes the Redis connection.
func (b *RedisIngest) Stop() error {
	b.mu.Lock()
	b.active = false
	b.mu.Unlock()

	b.cancel()
	b.wg.Wait()
	return b.client.Close()
}

// Available reports whether the ingest is connected.
func (b *RedisIngest) Available() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.active
}

// listen reads published envelopes and forwards them to the sink.
func (b *RedisIngest) listen(sub *redis.PubSub) {
	defer b.wg.Done()
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			b.handle(msg)
		case <-b.ctx.Done():
			return
		}
	}
}

// handle decodes an envelope and routes it as unicast or broadcast.
// Envelopes published by this instance are skipped.
func (b *RedisIngest) handle(msg *redis.Message) {
	var env Envelope
	if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
		b.logger.Error().Err(err).Msg("failed to decode event envelope")
		return
	}
	if env.InstanceID == b.instanceID {
		return
	}
	if env.EventType == "" {
		b.logger.Warn().Str("from_instance", env.InstanceID).Msg("envelope without event_type dropped")
		return
	}

	var delivered int
	if env.UserID != "" {
		delivered = b.sink.Unicast(env.UserID, env.EventType, env.Data)
	} else {
		delivered = b.sink.Broadcast(env.EventType, env.Data, env.RequiredRoles...)
	}
	b.logger.Debug().
		Str("from_instance", env.InstanceID).
		Str("type", env.EventType).
		Int("delivered", delivered).
		Msg("relayed external event")
}
