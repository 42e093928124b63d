package bridge

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockSink records events relayed into the hub.
type mockSink struct {
	mu         sync.Mutex
	broadcasts []Envelope
	unicasts   []Envelope
}

func (m *mockSink) Broadcast(eventType string, data map[string]any, requiredRoles ...string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.broadcasts = append(m.broadcasts, Envelope{EventType: eventType, Data: data, RequiredRoles: requiredRoles})
	return 1
}

func (m *mockSink) Unicast(userID, eventType string, data map[string]any) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unicasts = append(m.unicasts, Envelope{EventType: eventType, Data: data, UserID: userID})
	return 1
}

func (m *mockSink) broadcastCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.broadcasts)
}

func (m *mockSink) unicastCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.unicasts)
}

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

func TestEnvelopeRoundTrip(t *testing.T) {
	env := Envelope{
		InstanceID:    "producer-1",
		EventType:     "processing_completed",
		Data:          map[string]any{"job_id": "j-9", "pages": float64(12)},
		UserID:        "alice",
		RequiredRoles: []string{"admin"},
	}

	data, err := json.Marshal(env)
	require.NoError(t, err)

	var out Envelope
	require.NoError(t, json.Unmarshal(data, &out))

	assert.Equal(t, "producer-1", out.InstanceID)
	assert.Equal(t, "processing_completed", out.EventType)
	assert.Equal(t, "alice", out.UserID)
	assert.Equal(t, []string{"admin"}, out.RequiredRoles)
	assert.Equal(t, "j-9", out.Data["job_id"])
	assert.Equal(t, float64(12), out.Data["pages"])
}

func TestDefaultRedisConfig(t *testing.T) {
	cfg := DefaultRedisConfig()
	assert.Equal(t, "localhost:6379", cfg.Addr)
	assert.Empty(t, cfg.Password)
	assert.Equal(t, 0, cfg.DB)
	assert.Equal(t, "eventhub:", cfg.Prefix)
}

func TestRedisConfigFromEnv(t *testing.T) {
	t.Setenv("REDIS_ADDR", "redis.example.com:6380")
	t.Setenv("REDIS_PASSWORD", "secret")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("REDIS_EVENT_PREFIX", "test:")

	cfg := RedisConfigFromEnv()
	assert.Equal(t, "redis.example.com:6380", cfg.Addr)
	assert.Equal(t, "secret", cfg.Password)
	assert.Equal(t, 3, cfg.DB)
	assert.Equal(t, "test:", cfg.Prefix)
}

func TestRedisConfigFromEnvInvalidDB(t *testing.T) {
	t.Setenv("REDIS_DB", "not-a-number")

	cfg := RedisConfigFromEnv()
	assert.Equal(t, 0, cfg.DB)
}

func TestIngestAvailableFalseBeforeStart(t *testing.T) {
	in := NewRedisIngest(DefaultRedisConfig(), &mockSink{}, testLogger())
	assert.False(t, in.Available())
}

func TestIngestInstanceIDUnique(t *testing.T) {
	sink := &mockSink{}
	a := NewRedisIngest(DefaultRedisConfig(), sink, testLogger())
	b := NewRedisIngest(DefaultRedisConfig(), sink, testLogger())
	assert.NotEqual(t, a.instanceID, b.instanceID)
}

func startIngest(t *testing.T, sink EventSink) (*RedisIngest, *redis.Client, string) {
	t.Helper()
	mr := miniredis.RunT(t)
	cfg := &RedisConfig{Addr: mr.Addr(), Prefix: "test:"}

	in := NewRedisIngest(cfg, sink, testLogger())
	require.NoError(t, in.Start())
	t.Cleanup(func() { _ = in.Stop() })

	producer := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = producer.Close() })
	return in, producer, "test:events"
}

func publish(t *testing.T, producer *redis.Client, channel string, env Envelope) {
	t.Helper()
	data, err := json.Marshal(env)
	require.NoError(t, err)
	require.NoError(t, producer.Publish(context.Background(), channel, data).Err())
}

func TestIngestRelaysBroadcast(t *testing.T) {
	sink := &mockSink{}
	in, producer, channel := startIngest(t, sink)
	assert.True(t, in.Available())

	publish(t, producer, channel, Envelope{
		InstanceID: "batch-worker-1",
		EventType:  "processing_started",
		Data:       map[string]any{"job_id": "j-1"},
	})

	assert.Eventually(t, func() bool {
		return sink.broadcastCount() == 1
	}, 2*time.Second, 10*time.Millisecond)

	sink.mu.Lock()
	defer sink.mu.Unlock()
	assert.Equal(t, "processing_started", sink.broadcasts[0].EventType)
	assert.Equal(t, "j-1", sink.broadcasts[0].Data["job_id"])
}

func TestIngestRoutesUserEventsAsUnicast(t *testing.T) {
	sink := &mockSink{}
	_, producer, channel := startIngest(t, sink)

	publish(t, producer, channel, Envelope{
		InstanceID: "batch-worker-1",
		EventType:  "user_notification",
		Data:       map[string]any{"message": "done"},
		UserID:     "alice",
	})

	assert.Eventually(t, func() bool {
		return sink.unicastCount() == 1
	}, 2*time.Second, 10*time.Millisecond)

	sink.mu.Lock()
	defer sink.mu.Unlock()
	assert.Equal(t, "alice", sink.unicasts[0].UserID)
	assert.Zero(t, len(sink.broadcasts))
}

func TestIngestSkipsOwnEnvelopes(t *testing.T) {
	sink := &mockSink{}
	in, producer, channel := startIngest(t, sink)

	publish(t, producer, channel, Envelope{
		InstanceID: in.instanceID,
		EventType:  "processing_started",
	})
	publish(t, producer, channel, Envelope{
		InstanceID: "someone-else",
		EventType:  "processing_started",
	})

	assert.Eventually(t, func() bool {
		return sink.broadcastCount() == 1
	}, 2*time.Second, 10*time.Millisecond)
	// Only the foreign envelope was relayed.
	assert.Equal(t, 1, sink.broadcastCount())
}

func TestIngestDropsMalformedPayloads(t *testing.T) {
	sink := &mockSink{}
	_, producer, channel := startIngest(t, sink)

	require.NoError(t, producer.Publish(context.Background(), channel, "not-json").Err())
	publish(t, producer, channel, Envelope{InstanceID: "w1", EventType: ""})
	publish(t, producer, channel, Envelope{InstanceID: "w1", EventType: "system_alert"})

	assert.Eventually(t, func() bool {
		return sink.broadcastCount() == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, sink.broadcastCount())
}
