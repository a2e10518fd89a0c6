package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCallEvent(t *testing.T) {
	t.Run("valid payload", func(t *testing.T) {
		ev, err := ParseCallEvent([]byte(`{
			"callId": "c1",
			"callerId": "u1",
			"recipientId": "u2",
			"type": "video",
			"status": "initiated",
			"action": "started",
			"timestamp": "2025-03-01T10:00:00Z"
		}`))
		require.NoError(t, err)
		assert.Equal(t, "c1", ev.CallID)
		assert.Equal(t, "started", ev.Action)
		assert.Equal(t, time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC), ev.Timestamp)
	})

	t.Run("malformed json", func(t *testing.T) {
		_, err := ParseCallEvent([]byte(`{not json`))
		assert.Error(t, err)
	})

	t.Run("missing ids", func(t *testing.T) {
		_, err := ParseCallEvent([]byte(`{"callId": "c1", "action": "started"}`))
		assert.Error(t, err)
	})

	t.Run("missing action", func(t *testing.T) {
		_, err := ParseCallEvent([]byte(`{"callId": "c1", "callerId": "u1", "recipientId": "u2"}`))
		assert.Error(t, err)
	})

	t.Run("unknown status", func(t *testing.T) {
		_, err := ParseCallEvent([]byte(`{"callId": "c1", "callerId": "u1", "recipientId": "u2", "action": "started", "status": "paused"}`))
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "unknown status")
	})
}

func TestParseMessageEvent(t *testing.T) {
	ev, err := ParseMessageEvent([]byte(`{"messageId": "m1", "senderId": "u1", "recipientId": "u2", "content": "hi"}`))
	require.NoError(t, err)
	assert.Equal(t, "m1", ev.MessageID)

	_, err = ParseMessageEvent([]byte(`{"messageId": "m1"}`))
	assert.Error(t, err)
}

func TestParseChannelEvent(t *testing.T) {
	ev, err := ParseChannelEvent([]byte(`{"channelId": "ch1", "serverId": "s1", "channelName": "general", "userId": "u1", "action": "created"}`))
	require.NoError(t, err)
	assert.Equal(t, "general", ev.ChannelName)

	_, err = ParseChannelEvent([]byte(`{"serverId": "s1"}`))
	assert.Error(t, err)
}

func TestParseFriendRequestEvent(t *testing.T) {
	ev, err := ParseFriendRequestEvent([]byte(`{"requestId": "r1", "senderId": "u1", "senderUsername": "alice", "recipientId": "u2"}`))
	require.NoError(t, err)
	assert.Equal(t, "alice", ev.SenderUsername)

	_, err = ParseFriendRequestEvent([]byte(`{"requestId": "r1"}`))
	assert.Error(t, err)
}

func TestCallActionForStatus(t *testing.T) {
	assert.Equal(t, CallActionStarted, CallActionForStatus(CallStatusInitiated))
	assert.Equal(t, CallActionStarted, CallActionForStatus(CallStatusRinging))
	assert.Equal(t, CallActionConnected, CallActionForStatus(CallStatusConnected))
	assert.Equal(t, CallActionEnded, CallActionForStatus(CallStatusEnded))
	assert.Equal(t, CallActionRejected, CallActionForStatus(CallStatusRejected))
	assert.Equal(t, CallActionMissed, CallActionForStatus(CallStatusMissed))
	assert.Equal(t, "unknown", CallActionForStatus(CallStatus("bogus")))
}
