package notification

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"chatgrid-backend/internal/domain"
	"chatgrid-backend/internal/eventlog"
	"chatgrid-backend/pkg/metrics"
	"chatgrid-backend/pkg/push"
)

// MockNotificationRepository is a mock implementation of NotificationRepository
type MockNotificationRepository struct {
	mock.Mock
}

func (m *MockNotificationRepository) Create(ctx context.Context, n *domain.Notification) error {
	args := m.Called(ctx, n)
	return args.Error(0)
}

func (m *MockNotificationRepository) ListByUser(ctx context.Context, userID uuid.UUID, lastID *uuid.UUID, limit int) ([]domain.Notification, error) {
	args := m.Called(ctx, userID, lastID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Notification), args.Error(1)
}

func (m *MockNotificationRepository) GetUnread(ctx context.Context, userID uuid.UUID) ([]domain.Notification, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Notification), args.Error(1)
}

func (m *MockNotificationRepository) MarkRead(ctx context.Context, userID uuid.UUID, ids []uuid.UUID) (int64, error) {
	args := m.Called(ctx, userID, ids)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockNotificationRepository) Delete(ctx context.Context, userID uuid.UUID, ids []uuid.UUID) (int64, error) {
	args := m.Called(ctx, userID, ids)
	return args.Get(0).(int64), args.Error(1)
}

// MockRealtimePublisher is a mock implementation of RealtimePublisher
type MockRealtimePublisher struct {
	mock.Mock
}

func (m *MockRealtimePublisher) Push(ctx context.Context, userID uuid.UUID, event string, data interface{}) error {
	args := m.Called(ctx, userID, event, data)
	return args.Error(0)
}

// MockPresenceStore is a mock implementation of PresenceStore
type MockPresenceStore struct {
	mock.Mock
}

func (m *MockPresenceStore) SessionCount(ctx context.Context, userID uuid.UUID) (int64, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(int64), args.Error(1)
}

// MockMobilePusher is a mock implementation of MobilePusher
type MockMobilePusher struct {
	mock.Mock
}

func (m *MockMobilePusher) SendToUser(ctx context.Context, userID uuid.UUID, notification *push.Notification) error {
	args := m.Called(ctx, userID, notification)
	return args.Error(0)
}

func newTestService() (*Service, *MockNotificationRepository, *MockRealtimePublisher, *MockPresenceStore, *MockMobilePusher) {
	repo := new(MockNotificationRepository)
	rt := new(MockRealtimePublisher)
	presence := new(MockPresenceStore)
	mobile := new(MockMobilePusher)
	svc := NewService(repo, rt, presence, mobile, metrics.NewMetrics("test"))
	return svc, repo, rt, presence, mobile
}

func callEventJSON(t *testing.T, action string, recipientID uuid.UUID, channelID string) []byte {
	t.Helper()
	data, err := json.Marshal(domain.CallEvent{
		CallID:      uuid.New().String(),
		CallerID:    uuid.New().String(),
		RecipientID: recipientID.String(),
		Type:        "video",
		Status:      "initiated",
		Action:      action,
		ChannelID:   channelID,
	})
	assert.NoError(t, err)
	return data
}

func TestClassify_CallStarted(t *testing.T) {
	recipientID := uuid.New()
	payload := callEventJSON(t, domain.CallActionStarted, recipientID, "")

	cls, err := Classify(domain.TopicCalls, payload)

	assert.NoError(t, err)
	assert.Equal(t, domain.NotificationCallStarted, cls.Type)
	assert.Equal(t, recipientID, cls.UserID)

	var p domain.CallPayload
	assert.NoError(t, json.Unmarshal(cls.Payload, &p))
	assert.Equal(t, domain.CallActionStarted, p.Action)
}

func TestClassify_CallTerminalActions(t *testing.T) {
	recipientID := uuid.New()

	for _, action := range []string{domain.CallActionEnded, domain.CallActionRejected, domain.CallActionMissed} {
		cls, err := Classify(domain.TopicCalls, callEventJSON(t, action, recipientID, ""))
		assert.NoError(t, err, action)
		assert.Equal(t, domain.NotificationCallEnded, cls.Type, action)
	}
}

func TestClassify_CallConnectedNotNotifiable(t *testing.T) {
	payload := callEventJSON(t, domain.CallActionConnected, uuid.New(), "")

	_, err := Classify(domain.TopicCalls, payload)

	assert.Error(t, err)
	assert.ErrorIs(t, err, ErrNotNotifiable)
}

func TestClassify_UnknownTopic(t *testing.T) {
	_, err := Classify("presence", []byte(`{}`))
	assert.Error(t, err)
}

func TestClassify_MalformedPayload(t *testing.T) {
	_, err := Classify(domain.TopicCalls, []byte(`{"callId": 42`))
	assert.Error(t, err)
}

func TestClassify_MissingRequiredFields(t *testing.T) {
	_, err := Classify(domain.TopicMessages, []byte(`{"messageId":"m1","content":"hi"}`))
	assert.Error(t, err)
}

func TestClassify_IsPure(t *testing.T) {
	payload := callEventJSON(t, domain.CallActionStarted, uuid.New(), "")

	first, err1 := Classify(domain.TopicCalls, payload)
	second, err2 := Classify(domain.TopicCalls, payload)

	assert.NoError(t, err1)
	assert.NoError(t, err2)
	assert.Equal(t, first, second)
}

func TestIngest_PersistsAndPushesWhenSessionsLive(t *testing.T) {
	svc, repo, rt, presence, mobile := newTestService()

	recipientID := uuid.New()
	payload := callEventJSON(t, domain.CallActionStarted, recipientID, "")

	repo.On("Create", mock.Anything, mock.MatchedBy(func(n *domain.Notification) bool {
		return n.UserID == recipientID && n.Type == domain.NotificationCallStarted && n.ID != uuid.Nil
	})).Return(nil)
	presence.On("SessionCount", mock.Anything, recipientID).Return(int64(2), nil)
	rt.On("Push", mock.Anything, recipientID, "notification", mock.Anything).Return(nil)

	err := svc.Ingest(context.Background(), domain.TopicCalls, payload)

	assert.NoError(t, err)
	repo.AssertExpectations(t)
	rt.AssertExpectations(t)
	mobile.AssertNotCalled(t, "SendToUser")
}

func TestIngest_RemoteSessionsSuppressMobileFallback(t *testing.T) {
	svc, repo, rt, presence, mobile := newTestService()

	recipientID := uuid.New()
	payload := callEventJSON(t, domain.CallActionStarted, recipientID, "")

	// the only live session is on another instance; delivery still rides the
	// push channel instead of waking the user's phone
	repo.On("Create", mock.Anything, mock.Anything).Return(nil)
	presence.On("SessionCount", mock.Anything, recipientID).Return(int64(1), nil)
	rt.On("Push", mock.Anything, recipientID, "notification", mock.Anything).Return(nil)

	err := svc.Ingest(context.Background(), domain.TopicCalls, payload)

	assert.NoError(t, err)
	rt.AssertExpectations(t)
	mobile.AssertNotCalled(t, "SendToUser")
}

func TestIngest_FallsBackToMobilePush(t *testing.T) {
	svc, repo, rt, presence, mobile := newTestService()

	recipientID := uuid.New()
	payload := callEventJSON(t, domain.CallActionStarted, recipientID, "")

	repo.On("Create", mock.Anything, mock.Anything).Return(nil)
	presence.On("SessionCount", mock.Anything, recipientID).Return(int64(0), nil)
	mobile.On("SendToUser", mock.Anything, recipientID, mock.MatchedBy(func(p *push.Notification) bool {
		return p.Category == "INCOMING_CALL" && p.Priority == "high"
	})).Return(nil)

	err := svc.Ingest(context.Background(), domain.TopicCalls, payload)

	assert.NoError(t, err)
	mobile.AssertExpectations(t)
	rt.AssertNotCalled(t, "Push")
}

func TestIngest_PresenceFailureFallsBackToMobile(t *testing.T) {
	svc, repo, rt, presence, mobile := newTestService()

	recipientID := uuid.New()
	payload := callEventJSON(t, domain.CallActionStarted, recipientID, "")

	repo.On("Create", mock.Anything, mock.Anything).Return(nil)
	presence.On("SessionCount", mock.Anything, recipientID).Return(int64(0), errors.New("redis down"))
	mobile.On("SendToUser", mock.Anything, recipientID, mock.Anything).Return(nil)

	err := svc.Ingest(context.Background(), domain.TopicCalls, payload)

	assert.NoError(t, err)
	mobile.AssertExpectations(t)
	rt.AssertNotCalled(t, "Push")
}

func TestIngest_ClassifyFailureIsSkipped(t *testing.T) {
	svc, repo, _, _, _ := newTestService()

	err := svc.Ingest(context.Background(), domain.TopicCalls, []byte(`not json`))

	assert.Error(t, err)
	assert.ErrorIs(t, err, eventlog.ErrSkip)
	repo.AssertNotCalled(t, "Create")
}

func TestIngest_StorageFailureIsTransient(t *testing.T) {
	svc, repo, rt, _, _ := newTestService()

	payload := callEventJSON(t, domain.CallActionStarted, uuid.New(), "")

	repo.On("Create", mock.Anything, mock.Anything).Return(errors.New("connection refused"))

	err := svc.Ingest(context.Background(), domain.TopicCalls, payload)

	assert.Error(t, err)
	assert.False(t, errors.Is(err, eventlog.ErrSkip))
	rt.AssertNotCalled(t, "Push")
}

func TestIngest_MobilePushFailureDoesNotFail(t *testing.T) {
	svc, repo, _, presence, mobile := newTestService()

	recipientID := uuid.New()
	payload := callEventJSON(t, domain.CallActionStarted, recipientID, "")

	repo.On("Create", mock.Anything, mock.Anything).Return(nil)
	presence.On("SessionCount", mock.Anything, recipientID).Return(int64(0), nil)
	mobile.On("SendToUser", mock.Anything, recipientID, mock.Anything).Return(errors.New("fcm unavailable"))

	err := svc.Ingest(context.Background(), domain.TopicCalls, payload)

	assert.NoError(t, err)
}

func TestPoll_GroupsUnread(t *testing.T) {
	svc, repo, _, _, _ := newTestService()

	userID := uuid.New()
	channelCall, _ := json.Marshal(domain.CallPayload{
		CallID: "c1", CallerID: "u1", RecipientID: userID.String(),
		Action: "started", ChannelID: "ch1",
	})
	directCall, _ := json.Marshal(domain.CallPayload{
		CallID: "c2", CallerID: "u1", RecipientID: userID.String(), Action: "started",
	})

	unread := []domain.Notification{
		{ID: uuid.New(), UserID: userID, Type: domain.NotificationCallStarted, Payload: channelCall},
		{ID: uuid.New(), UserID: userID, Type: domain.NotificationCallStarted, Payload: directCall},
		{ID: uuid.New(), UserID: userID, Type: domain.NotificationNewMessage, Payload: []byte(`{}`)},
		{ID: uuid.New(), UserID: userID, Type: domain.NotificationFriendRequest, Payload: []byte(`{}`)},
		{ID: uuid.New(), UserID: userID, Type: domain.NotificationChannelCreated, Payload: []byte(`{}`)},
	}

	repo.On("GetUnread", mock.Anything, userID).Return(unread, nil)

	grouped, err := svc.Poll(context.Background(), userID)

	assert.NoError(t, err)
	assert.Len(t, grouped.Calls, 1)
	assert.Len(t, grouped.Messages, 1)
	assert.Len(t, grouped.FriendRequests, 1)
	assert.Len(t, grouped.ChannelCalls, 2)
}

func TestUnreadCounts(t *testing.T) {
	svc, repo, _, _, _ := newTestService()

	userID := uuid.New()
	unread := []domain.Notification{
		{ID: uuid.New(), UserID: userID, Type: domain.NotificationNewMessage, Payload: []byte(`{}`)},
		{ID: uuid.New(), UserID: userID, Type: domain.NotificationNewMessage, Payload: []byte(`{}`)},
		{ID: uuid.New(), UserID: userID, Type: domain.NotificationFriendRequest, Payload: []byte(`{}`)},
	}

	repo.On("GetUnread", mock.Anything, userID).Return(unread, nil)

	counts, err := svc.UnreadCounts(context.Background(), userID)

	assert.NoError(t, err)
	assert.Equal(t, 3, counts.Total)
	assert.Equal(t, 2, counts.Messages)
	assert.Equal(t, 1, counts.FriendRequests)
	assert.Equal(t, 0, counts.Calls)
}

func TestMarkAsRead_ScopedToOwner(t *testing.T) {
	svc, repo, _, _, _ := newTestService()

	userID := uuid.New()
	ids := []uuid.UUID{uuid.New(), uuid.New()}

	// one of the ids belongs to another user; the repository skips it
	repo.On("MarkRead", mock.Anything, userID, ids).Return(int64(1), nil)

	updated, err := svc.MarkAsRead(context.Background(), userID, ids)

	assert.NoError(t, err)
	assert.Equal(t, int64(1), updated)
	repo.AssertExpectations(t)
}

func TestList_DefaultsLimit(t *testing.T) {
	svc, repo, _, _, _ := newTestService()

	userID := uuid.New()

	repo.On("ListByUser", mock.Anything, userID, (*uuid.UUID)(nil), 20).
		Return([]domain.Notification{}, nil)

	_, err := svc.List(context.Background(), userID, nil, 0)

	assert.NoError(t, err)
	repo.AssertExpectations(t)
}
