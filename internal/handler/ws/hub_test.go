package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"chatgrid-backend/internal/realtime"
	"chatgrid-backend/pkg/constants"
	"chatgrid-backend/pkg/jwt"
	"chatgrid-backend/pkg/metrics"
)

// fakePresence records session counts in memory
type fakePresence struct {
	mu        sync.Mutex
	counts    map[uuid.UUID]int64
	refreshed map[uuid.UUID]int
}

func newFakePresence() *fakePresence {
	return &fakePresence{
		counts:    make(map[uuid.UUID]int64),
		refreshed: make(map[uuid.UUID]int),
	}
}

func (p *fakePresence) SessionConnected(_ context.Context, userID uuid.UUID) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.counts[userID]++
	return nil
}

func (p *fakePresence) SessionDisconnected(_ context.Context, userID uuid.UUID) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.counts[userID]--
	if p.counts[userID] <= 0 {
		delete(p.counts, userID)
	}
	return nil
}

func (p *fakePresence) RefreshPresence(_ context.Context, userID uuid.UUID) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.refreshed[userID]++
	return nil
}

func (p *fakePresence) count(userID uuid.UUID) int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.counts[userID]
}

func newTestHub() (*Hub, *fakePresence) {
	manager := jwt.NewJWTManager("test-secret", constants.AccessTokenExpiry, constants.RefreshTokenExpiry)
	presence := newFakePresence()
	return NewHub(manager, presence, metrics.NewMetrics("test")), presence
}

func attachSession(hub *Hub, userID uuid.UUID) *Session {
	session := newSession(hub, nil)
	session.userID = userID
	session.authenticated = true
	hub.add(session)
	return session
}

func drain(session *Session) [][]byte {
	var frames [][]byte
	for {
		select {
		case frame := <-session.send:
			frames = append(frames, frame)
		default:
			return frames
		}
	}
}

func TestPushToUser_FansOutToAllSessions(t *testing.T) {
	hub, _ := newTestHub()
	userID := uuid.New()

	first := attachSession(hub, userID)
	second := attachSession(hub, userID)
	other := attachSession(hub, uuid.New())

	delivered := hub.PushToUser(userID, realtime.EventNotification, map[string]string{"k": "v"})

	assert.Equal(t, 2, delivered)
	assert.Len(t, drain(first), 1)
	assert.Len(t, drain(second), 1)
	assert.Empty(t, drain(other))
}

func TestPushToUser_NoSessionsIsNoOp(t *testing.T) {
	hub, _ := newTestHub()

	delivered := hub.PushToUser(uuid.New(), realtime.EventNotification, "data")

	assert.Zero(t, delivered)
}

func TestPushToUser_EnvelopeShape(t *testing.T) {
	hub, _ := newTestHub()
	userID := uuid.New()
	session := attachSession(hub, userID)

	hub.PushToUser(userID, realtime.EventIncomingCall, map[string]string{"callId": "abc"})

	frames := drain(session)
	assert.Len(t, frames, 1)

	var envelope realtime.Envelope
	assert.NoError(t, json.Unmarshal(frames[0], &envelope))
	assert.Equal(t, realtime.EventIncomingCall, envelope.Event)
}

func TestRemove_DropsSessionFromRegistry(t *testing.T) {
	hub, presence := newTestHub()
	userID := uuid.New()

	session := attachSession(hub, userID)
	assert.Equal(t, 1, hub.SessionCount(userID))
	assert.Equal(t, int64(1), presence.count(userID))

	hub.remove(session)
	assert.Zero(t, hub.SessionCount(userID))
	assert.Zero(t, presence.count(userID))
	assert.Zero(t, hub.PushToUser(userID, realtime.EventNotification, "data"))
}

func TestRemove_UnauthenticatedSessionIsIgnored(t *testing.T) {
	hub, _ := newTestHub()

	// never authenticated, never added
	session := newSession(hub, nil)
	hub.remove(session)

	assert.Zero(t, hub.SessionCount(uuid.Nil))
}

func TestEnqueue_DropsOldestWhenFull(t *testing.T) {
	hub, _ := newTestHub()
	session := attachSession(hub, uuid.New())

	for i := 0; i < constants.SessionSendQueueSize+5; i++ {
		session.enqueue([]byte(fmt.Sprintf("frame-%d", i)))
	}

	frames := drain(session)
	assert.Len(t, frames, constants.SessionSendQueueSize)

	// the oldest five were dropped; the newest frame survived
	assert.Equal(t, "frame-5", string(frames[0]))
	assert.Equal(t, fmt.Sprintf("frame-%d", constants.SessionSendQueueSize+4), string(frames[len(frames)-1]))
}

func TestEnqueue_AfterCloseIsNoOp(t *testing.T) {
	hub, _ := newTestHub()
	session := attachSession(hub, uuid.New())

	session.close()
	session.enqueue([]byte("late"))
}

func TestCloseAll_EmptiesRegistry(t *testing.T) {
	hub, presence := newTestHub()
	first := uuid.New()
	second := uuid.New()
	attachSession(hub, first)
	attachSession(hub, second)

	hub.CloseAll()

	assert.Zero(t, hub.SessionCount(first))
	assert.Zero(t, hub.SessionCount(second))
	assert.Zero(t, presence.count(first))
	assert.Zero(t, presence.count(second))
}

func TestPresence_CountsSessionsPerUser(t *testing.T) {
	hub, presence := newTestHub()
	userID := uuid.New()

	first := attachSession(hub, userID)
	second := attachSession(hub, userID)
	assert.Equal(t, int64(2), presence.count(userID))

	hub.remove(first)
	assert.Equal(t, int64(1), presence.count(userID))

	hub.remove(second)
	assert.Zero(t, presence.count(userID))
}

func TestTouchPresence_RefreshesHeartbeat(t *testing.T) {
	hub, presence := newTestHub()
	userID := uuid.New()
	attachSession(hub, userID)

	hub.touchPresence(userID)
	hub.touchPresence(userID)

	assert.Equal(t, 2, presence.refreshed[userID])
}
