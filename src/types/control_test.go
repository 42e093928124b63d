package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseControlClosedSet(t *testing.T) {
	ctl := ParseControl(Message{Type: TypeHeartbeatResponse})
	assert.IsType(t, HeartbeatResponse{}, ctl)

	ctl = ParseControl(Message{
		Type: TypeSubscribe,
		Data: map[string]any{"event_types": []any{"processing_started", "system_alert"}},
	})
	sub, ok := ctl.(Subscribe)
	require.True(t, ok)
	assert.Equal(t, []string{"processing_started", "system_alert"}, sub.EventTypes)

	ctl = ParseControl(Message{
		Type: TypeUnsubscribe,
		Data: map[string]any{"event_types": []any{"system_alert"}},
	})
	unsub, ok := ctl.(Unsubscribe)
	require.True(t, ok)
	assert.Equal(t, []string{"system_alert"}, unsub.EventTypes)

	ctl = ParseControl(Message{
		Type: TypeAuthenticate,
		Data: map[string]any{"token": "abc.def.ghi"},
	})
	authn, ok := ctl.(Authenticate)
	require.True(t, ok)
	assert.Equal(t, "abc.def.ghi", authn.Token)
}

func TestParseControlUnknown(t *testing.T) {
	payload := map[string]any{"query": "status"}
	ctl := ParseControl(Message{Type: "job_query", Data: payload})

	unknown, ok := ctl.(Unknown)
	require.True(t, ok)
	assert.Equal(t, "job_query", unknown.RawType)
	assert.Equal(t, payload, unknown.Payload)
}

func TestParseControlMalformedData(t *testing.T) {
	// Non-list event_types and missing token degrade to empty values, not panics.
	sub := ParseControl(Message{Type: TypeSubscribe, Data: map[string]any{"event_types": "oops"}}).(Subscribe)
	assert.Empty(t, sub.EventTypes)

	authn := ParseControl(Message{Type: TypeAuthenticate, Data: map[string]any{}}).(Authenticate)
	assert.Empty(t, authn.Token)
}

func TestMessageWireRoundTrip(t *testing.T) {
	msg := NewMessage("processing_progress", map[string]any{
		"job_id":   "j-17",
		"progress": 0.5,
		"stage":    "ocr",
	})

	raw, err := json.Marshal(msg)
	require.NoError(t, err)

	var decoded Message
	require.NoError(t, json.Unmarshal(raw, &decoded))

	assert.Equal(t, msg.ID, decoded.ID)
	assert.Equal(t, msg.Type, decoded.Type)

	// Data survives byte-for-byte.
	want, err := json.Marshal(msg.Data)
	require.NoError(t, err)
	got, err := json.Marshal(decoded.Data)
	require.NoError(t, err)
	assert.JSONEq(t, string(want), string(got))
}

func TestRoutingHintsStayOffTheWire(t *testing.T) {
	msg := NewMessage("system_alert", map[string]any{"severity": "warn"})
	msg.TargetConnectionIDs = []string{"c1"}
	msg.RequiredRoles = []string{"admin"}

	raw, err := json.Marshal(msg)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "c1")
	assert.NotContains(t, string(raw), "admin")
}

func TestSystemTypeAllowList(t *testing.T) {
	for _, typ := range []string{
		EventConnectionEstablished,
		EventSubscriptionConfirmed,
		EventUnsubscriptionConfirmed,
		EventAuthenticationSuccess,
		EventAuthenticationError,
		EventError,
		EventHeartbeat,
	} {
		assert.True(t, IsSystemType(typ), typ)
	}
	assert.False(t, IsSystemType(EventProcessingStarted))
	assert.False(t, IsSystemType("custom_event"))
}
