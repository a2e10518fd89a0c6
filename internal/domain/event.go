package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// Event log topics. Each topic is an independent ordered stream;
// cross-topic ordering is not guaranteed.
const (
	TopicCalls          = "calls"
	TopicMessages       = "messages"
	TopicChannels       = "channels"
	TopicFriendRequests = "friend-requests"
)

// Call lifecycle actions carried on the calls topic
const (
	CallActionStarted   = "started"
	CallActionConnected = "connected"
	CallActionEnded     = "ended"
	CallActionRejected  = "rejected"
	CallActionMissed    = "missed"
)

// CallEvent is the calls-topic payload
type CallEvent struct {
	CallID      string    `json:"callId"`
	CallerID    string    `json:"callerId"`
	RecipientID string    `json:"recipientId"`
	Type        string    `json:"type"`
	Status      string    `json:"status"`
	Action      string    `json:"action"`
	ChannelID   string    `json:"channelId,omitempty"`
	ServerID    string    `json:"serverId,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// MessageEvent is the messages-topic payload
type MessageEvent struct {
	MessageID   string `json:"messageId"`
	SenderID    string `json:"senderId"`
	RecipientID string `json:"recipientId"`
	Content     string `json:"content"`
	ChannelID   string `json:"channelId,omitempty"`
	ServerID    string `json:"serverId,omitempty"`
}

// ChannelEvent is the channels-topic payload
type ChannelEvent struct {
	ChannelID   string `json:"channelId"`
	ServerID    string `json:"serverId"`
	ChannelName string `json:"channelName"`
	UserID      string `json:"userId"`
	Action      string `json:"action"`
}

// FriendRequestEvent is the friend-requests-topic payload
type FriendRequestEvent struct {
	RequestID      string `json:"requestId"`
	SenderID       string `json:"senderId"`
	SenderUsername string `json:"senderUsername"`
	RecipientID    string `json:"recipientId"`
}

// ParseCallEvent decodes and validates a calls-topic payload
func ParseCallEvent(data []byte) (*CallEvent, error) {
	var ev CallEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, fmt.Errorf("malformed call event: %w", err)
	}
	if ev.CallID == "" || ev.CallerID == "" || ev.RecipientID == "" {
		return nil, fmt.Errorf("call event missing required ids")
	}
	if ev.Action == "" {
		return nil, fmt.Errorf("call event missing action")
	}
	if ev.Status != "" && !IsValidCallStatus(CallStatus(ev.Status)) {
		return nil, fmt.Errorf("call event has unknown status %q", ev.Status)
	}
	return &ev, nil
}

// ParseMessageEvent decodes and validates a messages-topic payload
func ParseMessageEvent(data []byte) (*MessageEvent, error) {
	var ev MessageEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, fmt.Errorf("malformed message event: %w", err)
	}
	if ev.MessageID == "" || ev.SenderID == "" || ev.RecipientID == "" {
		return nil, fmt.Errorf("message event missing required ids")
	}
	return &ev, nil
}

// ParseChannelEvent decodes and validates a channels-topic payload
func ParseChannelEvent(data []byte) (*ChannelEvent, error) {
	var ev ChannelEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, fmt.Errorf("malformed channel event: %w", err)
	}
	if ev.ChannelID == "" || ev.UserID == "" {
		return nil, fmt.Errorf("channel event missing required ids")
	}
	return &ev, nil
}

// ParseFriendRequestEvent decodes and validates a friend-requests-topic payload
func ParseFriendRequestEvent(data []byte) (*FriendRequestEvent, error) {
	var ev FriendRequestEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, fmt.Errorf("malformed friend request event: %w", err)
	}
	if ev.RequestID == "" || ev.SenderID == "" || ev.RecipientID == "" {
		return nil, fmt.Errorf("friend request event missing required ids")
	}
	return &ev, nil
}

// CallActionForStatus maps a call status to the lifecycle action published
// on the calls topic
func CallActionForStatus(status CallStatus) string {
	switch status {
	case CallStatusInitiated, CallStatusRinging:
		return CallActionStarted
	case CallStatusConnected:
		return CallActionConnected
	case CallStatusEnded:
		return CallActionEnded
	case CallStatusRejected:
		return CallActionRejected
	case CallStatusMissed:
		return CallActionMissed
	default:
		return "unknown"
	}
}
