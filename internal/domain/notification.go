package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// NotificationType classifies a notification. The type is fixed at creation
// and determines the payload shape.
type NotificationType string

const (
	NotificationNewMessage     NotificationType = "new_message"
	NotificationCallStarted    NotificationType = "call_started"
	NotificationCallEnded      NotificationType = "call_ended"
	NotificationChannelCreated NotificationType = "channel_created"
	NotificationFriendRequest  NotificationType = "friend_request"
)

// Notification represents a persisted per-user notification.
// Rows are append-only: the only mutations are read-marking and deletion,
// both scoped to the owning user.
type Notification struct {
	ID        uuid.UUID        `json:"id"`
	UserID    uuid.UUID        `json:"user_id"`
	Type      NotificationType `json:"type"`
	Payload   json.RawMessage  `json:"payload"`
	IsRead    bool             `json:"is_read"`
	CreatedAt time.Time        `json:"created_at"`
}

// MessagePayload is the payload for new_message notifications
type MessagePayload struct {
	MessageID   string `json:"messageId"`
	SenderID    string `json:"senderId"`
	RecipientID string `json:"recipientId"`
	Content     string `json:"content"`
	ChannelID   string `json:"channelId,omitempty"`
	ServerID    string `json:"serverId,omitempty"`
}

// CallPayload is the payload for call_started and call_ended notifications
type CallPayload struct {
	CallID      string `json:"callId"`
	CallerID    string `json:"callerId"`
	RecipientID string `json:"recipientId"`
	Action      string `json:"action"`
	ChannelID   string `json:"channelId,omitempty"`
	ServerID    string `json:"serverId,omitempty"`
}

// ChannelPayload is the payload for channel_created notifications
type ChannelPayload struct {
	ChannelID   string `json:"channelId"`
	ServerID    string `json:"serverId"`
	ChannelName string `json:"channelName"`
	UserID      string `json:"userId"`
}

// FriendRequestPayload is the payload for friend_request notifications
type FriendRequestPayload struct {
	RequestID      string `json:"requestId"`
	SenderID       string `json:"senderId"`
	SenderUsername string `json:"senderUsername"`
	RecipientID    string `json:"recipientId"`
}

// UnreadCounts groups unread notifications for badge counts
type UnreadCounts struct {
	Total          int `json:"total"`
	Calls          int `json:"calls"`
	Messages       int `json:"messages"`
	FriendRequests int `json:"friendRequests"`
	ChannelCalls   int `json:"channelCalls"`
}

// GroupedNotifications is the shape returned by the poll endpoint
type GroupedNotifications struct {
	Calls          []Notification `json:"calls"`
	Messages       []Notification `json:"messages"`
	FriendRequests []Notification `json:"friendRequests"`
	ChannelCalls   []Notification `json:"channelCalls"`
}

// HasChannelContext reports whether a call notification carries a channel id.
// Used to split channel calls out of direct calls when grouping.
func (n *Notification) HasChannelContext() bool {
	if n.Type != NotificationCallStarted && n.Type != NotificationCallEnded {
		return false
	}
	var p CallPayload
	if err := json.Unmarshal(n.Payload, &p); err != nil {
		return false
	}
	return p.ChannelID != ""
}
