package notification

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"chatgrid-backend/internal/domain"
	"chatgrid-backend/pkg/push"
)

// Classification is the outcome of mapping an event log message to a
// notification: what kind, for whom, carrying which payload.
type Classification struct {
	Type    domain.NotificationType
	UserID  uuid.UUID
	Payload json.RawMessage
}

// ErrNotNotifiable marks events that classify cleanly but are not worth a
// notification, such as a call becoming connected
var ErrNotNotifiable = fmt.Errorf("event is not notifiable")

// Classify maps a topic and raw payload to a notification classification.
// It is a pure function: no I/O, no clock, no randomness. Unknown topics,
// unknown actions and malformed payloads return an error; such messages are
// dropped permanently, never retried.
func Classify(topic string, payload []byte) (*Classification, error) {
	switch topic {
	case domain.TopicCalls:
		return classifyCall(payload)
	case domain.TopicMessages:
		return classifyMessage(payload)
	case domain.TopicChannels:
		return classifyChannel(payload)
	case domain.TopicFriendRequests:
		return classifyFriendRequest(payload)
	default:
		return nil, fmt.Errorf("unknown topic %q", topic)
	}
}

func classifyCall(payload []byte) (*Classification, error) {
	ev, err := domain.ParseCallEvent(payload)
	if err != nil {
		return nil, err
	}

	var notifType domain.NotificationType
	switch {
	case ev.Action == domain.CallActionStarted:
		notifType = domain.NotificationCallStarted
	case domain.IsValidCallStatus(domain.CallStatus(ev.Action)) && domain.CallStatus(ev.Action).IsTerminal():
		notifType = domain.NotificationCallEnded
	case ev.Action == domain.CallActionConnected:
		// both parties are in the call already
		return nil, fmt.Errorf("%w: call connected", ErrNotNotifiable)
	default:
		return nil, fmt.Errorf("unknown call action %q", ev.Action)
	}

	userID, err := uuid.Parse(ev.RecipientID)
	if err != nil {
		return nil, fmt.Errorf("invalid recipient id: %w", err)
	}

	data, err := json.Marshal(domain.CallPayload{
		CallID:      ev.CallID,
		CallerID:    ev.CallerID,
		RecipientID: ev.RecipientID,
		Action:      ev.Action,
		ChannelID:   ev.ChannelID,
		ServerID:    ev.ServerID,
	})
	if err != nil {
		return nil, err
	}

	return &Classification{Type: notifType, UserID: userID, Payload: data}, nil
}

func classifyMessage(payload []byte) (*Classification, error) {
	ev, err := domain.ParseMessageEvent(payload)
	if err != nil {
		return nil, err
	}

	userID, err := uuid.Parse(ev.RecipientID)
	if err != nil {
		return nil, fmt.Errorf("invalid recipient id: %w", err)
	}

	data, err := json.Marshal(domain.MessagePayload{
		MessageID:   ev.MessageID,
		SenderID:    ev.SenderID,
		RecipientID: ev.RecipientID,
		Content:     ev.Content,
		ChannelID:   ev.ChannelID,
		ServerID:    ev.ServerID,
	})
	if err != nil {
		return nil, err
	}

	return &Classification{Type: domain.NotificationNewMessage, UserID: userID, Payload: data}, nil
}

func classifyChannel(payload []byte) (*Classification, error) {
	ev, err := domain.ParseChannelEvent(payload)
	if err != nil {
		return nil, err
	}

	if ev.Action != "created" {
		return nil, fmt.Errorf("unknown channel action %q", ev.Action)
	}

	userID, err := uuid.Parse(ev.UserID)
	if err != nil {
		return nil, fmt.Errorf("invalid user id: %w", err)
	}

	data, err := json.Marshal(domain.ChannelPayload{
		ChannelID:   ev.ChannelID,
		ServerID:    ev.ServerID,
		ChannelName: ev.ChannelName,
		UserID:      ev.UserID,
	})
	if err != nil {
		return nil, err
	}

	return &Classification{Type: domain.NotificationChannelCreated, UserID: userID, Payload: data}, nil
}

func classifyFriendRequest(payload []byte) (*Classification, error) {
	ev, err := domain.ParseFriendRequestEvent(payload)
	if err != nil {
		return nil, err
	}

	userID, err := uuid.Parse(ev.RecipientID)
	if err != nil {
		return nil, fmt.Errorf("invalid recipient id: %w", err)
	}

	data, err := json.Marshal(domain.FriendRequestPayload{
		RequestID:      ev.RequestID,
		SenderID:       ev.SenderID,
		SenderUsername: ev.SenderUsername,
		RecipientID:    ev.RecipientID,
	})
	if err != nil {
		return nil, err
	}

	return &Classification{Type: domain.NotificationFriendRequest, UserID: userID, Payload: data}, nil
}

// mobilePush builds the mobile push rendering for a notification type.
// Bodies stay generic; payload details ride in the data map for the client
// to render locally.
func mobilePush(n *domain.Notification) *push.Notification {
	msg := &push.Notification{
		Priority: "high",
		Sound:    "default",
		Data: map[string]string{
			"notification_id": n.ID.String(),
			"type":            string(n.Type),
		},
	}

	switch n.Type {
	case domain.NotificationNewMessage:
		msg.Title = "New message"
		msg.Body = "You have a new message"
	case domain.NotificationCallStarted:
		msg.Title = "Incoming call"
		msg.Body = "Someone is calling you"
		msg.Category = "INCOMING_CALL"
	case domain.NotificationCallEnded:
		msg.Title = "Missed call"
		msg.Body = "You have a missed call"
		msg.Priority = "normal"
	case domain.NotificationChannelCreated:
		msg.Title = "New channel"
		msg.Body = "A channel was created"
		msg.Priority = "normal"
	case domain.NotificationFriendRequest:
		msg.Title = "Friend request"
		msg.Body = "You have a new friend request"
	default:
		msg.Title = "Notification"
		msg.Body = "You have a new notification"
		msg.Priority = "normal"
	}

	return msg
}
