package notification

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"chatgrid-backend/internal/domain"
	"chatgrid-backend/internal/eventlog"
	"chatgrid-backend/internal/realtime"
	"chatgrid-backend/pkg/constants"
	"chatgrid-backend/pkg/logger"
	"chatgrid-backend/pkg/metrics"
	"chatgrid-backend/pkg/push"
)

// NotificationRepository is the storage contract the service depends on
type NotificationRepository interface {
	Create(ctx context.Context, n *domain.Notification) error
	ListByUser(ctx context.Context, userID uuid.UUID, lastID *uuid.UUID, limit int) ([]domain.Notification, error)
	GetUnread(ctx context.Context, userID uuid.UUID) ([]domain.Notification, error)
	MarkRead(ctx context.Context, userID uuid.UUID, ids []uuid.UUID) (int64, error)
	Delete(ctx context.Context, userID uuid.UUID, ids []uuid.UUID) (int64, error)
}

// RealtimePublisher pushes an event onto the user's cross-instance push
// channel; every instance's hub forwards it to the sessions it holds
type RealtimePublisher interface {
	Push(ctx context.Context, userID uuid.UUID, event string, data interface{}) error
}

// PresenceStore reports how many delivery sessions a user has open across
// all service instances
type PresenceStore interface {
	SessionCount(ctx context.Context, userID uuid.UUID) (int64, error)
}

// MobilePusher delivers a notification to a user's registered devices
type MobilePusher interface {
	SendToUser(ctx context.Context, userID uuid.UUID, notification *push.Notification) error
}

// Service is the fan-out engine: it turns event log messages into persisted
// per-user notifications and delivers them to whatever channel the user has,
// plus the notification query API behind the HTTP handlers.
type Service struct {
	repo     NotificationRepository
	realtime RealtimePublisher
	presence PresenceStore
	mobile   MobilePusher
	metrics  *metrics.Metrics
}

// NewService creates a new notification service
func NewService(repo NotificationRepository, rt RealtimePublisher, presence PresenceStore, mobile MobilePusher, m *metrics.Metrics) *Service {
	return &Service{
		repo:     repo,
		realtime: rt,
		presence: presence,
		mobile:   mobile,
		metrics:  m,
	}
}

// Ingest processes one event log message: classify, persist, deliver.
// It is the consumer group handler for all subscribed topics.
//
// Persistence is append-only and the log is at-least-once, so a redelivered
// message creates a duplicate notification rather than losing one.
// Classification failures are permanent and ack the message away; storage
// failures are transient and leave it pending for redelivery.
func (s *Service) Ingest(ctx context.Context, topic string, payload []byte) error {
	cls, err := Classify(topic, payload)
	if err != nil {
		s.metrics.RecordNotificationDropped(topic, dropReason(err))
		logger.Warn("Dropping event log message",
			zap.String("topic", topic),
			zap.Error(err))
		return fmt.Errorf("%w: %v", eventlog.ErrSkip, err)
	}

	n := &domain.Notification{
		ID:      uuid.New(),
		UserID:  cls.UserID,
		Type:    cls.Type,
		Payload: cls.Payload,
	}

	if err := s.repo.Create(ctx, n); err != nil {
		return err
	}

	s.metrics.RecordNotificationProcessed(string(n.Type))
	s.deliver(ctx, n)

	return nil
}

// deliver pushes a stored notification toward the user's live sessions,
// wherever they are connected, falling back to mobile push when presence
// shows none. Delivery is best effort; the notification is already durable.
func (s *Service) deliver(ctx context.Context, n *domain.Notification) {
	sessions, err := s.presence.SessionCount(ctx, n.UserID)
	if err != nil {
		logger.Warn("Presence lookup failed, assuming offline",
			zap.String("user_id", n.UserID.String()),
			zap.Error(err))
	}

	if sessions > 0 {
		pushErr := s.realtime.Push(ctx, n.UserID, realtime.EventNotification, n)
		if pushErr == nil {
			s.metrics.RecordNotificationPushed("websocket")
			return
		}
		logger.Warn("Realtime push failed, falling back to mobile",
			zap.String("notification_id", n.ID.String()),
			zap.String("user_id", n.UserID.String()),
			zap.Error(pushErr))
	}

	if err := s.mobile.SendToUser(ctx, n.UserID, mobilePush(n)); err != nil {
		logger.Warn("Mobile push failed",
			zap.String("notification_id", n.ID.String()),
			zap.String("user_id", n.UserID.String()),
			zap.Error(err))
		return
	}

	s.metrics.RecordNotificationPushed("mobile")
}

// List retrieves a page of the user's notifications, newest first
func (s *Service) List(ctx context.Context, userID uuid.UUID, lastID *uuid.UUID, limit int) ([]domain.Notification, error) {
	if limit <= 0 {
		limit = constants.DefaultPageSize
	}
	if limit > constants.MaxPageSize {
		limit = constants.MaxPageSize
	}

	return s.repo.ListByUser(ctx, userID, lastID, limit)
}

// Poll returns the user's unread notifications grouped for client catch-up
func (s *Service) Poll(ctx context.Context, userID uuid.UUID) (*domain.GroupedNotifications, error) {
	unread, err := s.repo.GetUnread(ctx, userID)
	if err != nil {
		return nil, err
	}
	return groupNotifications(unread), nil
}

// UnreadCounts returns unread badge counts per group
func (s *Service) UnreadCounts(ctx context.Context, userID uuid.UUID) (*domain.UnreadCounts, error) {
	unread, err := s.repo.GetUnread(ctx, userID)
	if err != nil {
		return nil, err
	}

	grouped := groupNotifications(unread)
	return &domain.UnreadCounts{
		Total:          len(unread),
		Calls:          len(grouped.Calls),
		Messages:       len(grouped.Messages),
		FriendRequests: len(grouped.FriendRequests),
		ChannelCalls:   len(grouped.ChannelCalls),
	}, nil
}

// MarkAsRead marks the given notifications read for their owner. Ids that
// belong to someone else are silently skipped.
func (s *Service) MarkAsRead(ctx context.Context, userID uuid.UUID, ids []uuid.UUID) (int64, error) {
	return s.repo.MarkRead(ctx, userID, ids)
}

// Delete removes the given notifications for their owner. Ids that belong to
// someone else are silently skipped.
func (s *Service) Delete(ctx context.Context, userID uuid.UUID, ids []uuid.UUID) (int64, error) {
	return s.repo.Delete(ctx, userID, ids)
}

// groupNotifications splits notifications into the poll groups. Call
// notifications carrying a channel context count as channel calls, as do
// channel lifecycle notifications.
func groupNotifications(items []domain.Notification) *domain.GroupedNotifications {
	grouped := &domain.GroupedNotifications{
		Calls:          []domain.Notification{},
		Messages:       []domain.Notification{},
		FriendRequests: []domain.Notification{},
		ChannelCalls:   []domain.Notification{},
	}

	for _, n := range items {
		switch n.Type {
		case domain.NotificationNewMessage:
			grouped.Messages = append(grouped.Messages, n)
		case domain.NotificationFriendRequest:
			grouped.FriendRequests = append(grouped.FriendRequests, n)
		case domain.NotificationChannelCreated:
			grouped.ChannelCalls = append(grouped.ChannelCalls, n)
		case domain.NotificationCallStarted, domain.NotificationCallEnded:
			if n.HasChannelContext() {
				grouped.ChannelCalls = append(grouped.ChannelCalls, n)
			} else {
				grouped.Calls = append(grouped.Calls, n)
			}
		}
	}

	return grouped
}

func dropReason(err error) string {
	if errors.Is(err, ErrNotNotifiable) {
		return "not_notifiable"
	}
	return "classify"
}
