package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"chatgrid-backend/internal/domain"
	"chatgrid-backend/internal/realtime"
	"chatgrid-backend/pkg/jwt"
	"chatgrid-backend/pkg/logger"
	"chatgrid-backend/pkg/metrics"
)

// NotificationAPI is the slice of the notification service the hub needs:
// unread catch-up on authenticate and inbound read receipts
type NotificationAPI interface {
	Poll(ctx context.Context, userID uuid.UUID) (*domain.GroupedNotifications, error)
	MarkAsRead(ctx context.Context, userID uuid.UUID, ids []uuid.UUID) (int64, error)
}

// Presence records which users have live sessions, shared across instances
// so delivery decisions see sessions on other processes too
type Presence interface {
	SessionConnected(ctx context.Context, userID uuid.UUID) error
	SessionDisconnected(ctx context.Context, userID uuid.UUID) error
	RefreshPresence(ctx context.Context, userID uuid.UUID) error
}

// Hub is the delivery session registry: every authenticated WebSocket
// session is indexed by user, and pushes fan out to all of a user's
// sessions. Pushing to a user with no sessions is a no-op.
type Hub struct {
	mu    sync.RWMutex
	users map[uuid.UUID]map[*Session]bool

	jwtManager    *jwt.JWTManager
	notifications NotificationAPI
	presence      Presence
	metrics       *metrics.Metrics

	maxConnections int
	semaphore      chan struct{}
}

// GetAllowedOrigins returns allowed WebSocket origins from environment or
// development defaults
func GetAllowedOrigins() map[string]bool {
	allowed := map[string]bool{
		"http://localhost:3000": true,
		"http://localhost:8080": true,
		"http://127.0.0.1:3000": true,
		"http://127.0.0.1:8080": true,
	}

	if origins := os.Getenv("CORS_ALLOWED_ORIGINS"); origins != "" {
		for _, origin := range strings.Split(origins, ",") {
			allowed[strings.TrimSpace(origin)] = true
		}
	}

	return allowed
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return false
		}
		return GetAllowedOrigins()[origin]
	},
}

// NewHub creates a new delivery session hub
func NewHub(jwtManager *jwt.JWTManager, presence Presence, m *metrics.Metrics) *Hub {
	maxConns := 1000
	if val := os.Getenv("WS_MAX_CONNECTIONS"); val != "" {
		if n, err := strconv.Atoi(val); err == nil && n > 0 {
			maxConns = n
		}
	}

	return &Hub{
		users:          make(map[uuid.UUID]map[*Session]bool),
		jwtManager:     jwtManager,
		presence:       presence,
		metrics:        m,
		maxConnections: maxConns,
		semaphore:      make(chan struct{}, maxConns),
	}
}

// SetNotifications wires the notification service in after construction.
// The service also depends on the hub for delivery, so one side has to be
// connected late.
func (h *Hub) SetNotifications(api NotificationAPI) {
	h.notifications = api
}

// PushToUser delivers an event to all of the user's sessions and returns how
// many sessions received it
func (h *Hub) PushToUser(userID uuid.UUID, event string, data interface{}) int {
	frame, err := json.Marshal(realtime.Envelope{Event: event, Data: data})
	if err != nil {
		logger.Error("Failed to marshal session push",
			zap.String("event", event),
			zap.Error(err))
		return 0
	}

	h.mu.RLock()
	sessions := make([]*Session, 0, len(h.users[userID]))
	for session := range h.users[userID] {
		sessions = append(sessions, session)
	}
	h.mu.RUnlock()

	for _, session := range sessions {
		session.enqueue(frame)
	}

	if len(sessions) > 0 {
		h.metrics.RecordWebSocketMessage("outbound", event)
	}

	return len(sessions)
}

// Run consumes the cross-service push channels until the context is
// cancelled. Call and other services publish user-targeted events over Redis
// Pub/Sub; this loop forwards them to whatever sessions live in this process.
func (h *Hub) Run(ctx context.Context, subscriber realtime.Subscriber) {
	ch, err := subscriber.Subscribe(ctx)
	if err != nil {
		logger.Error("Failed to subscribe to push channels", zap.Error(err))
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}

			userID, err := realtime.UserIDFromChannel(msg.Channel)
			if err != nil {
				logger.Warn("Ignoring push on unexpected channel",
					zap.String("channel", msg.Channel))
				continue
			}

			var envelope realtime.Envelope
			if err := json.Unmarshal([]byte(msg.Payload), &envelope); err != nil {
				logger.Warn("Malformed push payload",
					zap.String("channel", msg.Channel),
					zap.Error(err))
				continue
			}

			h.PushToUser(userID, envelope.Event, envelope.Data)
		}
	}
}

// CloseAll tears down every session, used during graceful shutdown
func (h *Hub) CloseAll() {
	h.mu.Lock()
	sessions := make([]*Session, 0)
	for _, userSessions := range h.users {
		for session := range userSessions {
			sessions = append(sessions, session)
		}
	}
	h.users = make(map[uuid.UUID]map[*Session]bool)
	h.mu.Unlock()

	for _, session := range sessions {
		session.close()

		if err := h.presence.SessionDisconnected(context.Background(), session.userID); err != nil {
			logger.Warn("Failed to clear session presence",
				zap.String("user_id", session.userID.String()),
				zap.Error(err))
		}
	}
}

// SessionCount returns the number of live sessions for a user
func (h *Hub) SessionCount(userID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.users[userID])
}

// add registers an authenticated session under its user and records the
// user's presence for delivery decisions on other instances
func (h *Hub) add(session *Session) {
	h.mu.Lock()
	if h.users[session.userID] == nil {
		h.users[session.userID] = make(map[*Session]bool)
	}
	h.users[session.userID][session] = true
	h.mu.Unlock()

	h.metrics.IncrementWebSocketConnections()

	if err := h.presence.SessionConnected(context.Background(), session.userID); err != nil {
		logger.Warn("Failed to record session presence",
			zap.String("user_id", session.userID.String()),
			zap.Error(err))
	}
}

// remove drops a session from the registry. Safe to call for sessions that
// never authenticated.
func (h *Hub) remove(session *Session) {
	h.mu.Lock()
	registered := false
	if sessions, ok := h.users[session.userID]; ok {
		if sessions[session] {
			registered = true
			delete(sessions, session)
			if len(sessions) == 0 {
				delete(h.users, session.userID)
			}
		}
	}
	h.mu.Unlock()

	if registered {
		h.metrics.DecrementWebSocketConnections()

		if err := h.presence.SessionDisconnected(context.Background(), session.userID); err != nil {
			logger.Warn("Failed to clear session presence",
				zap.String("user_id", session.userID.String()),
				zap.Error(err))
		}
	}
}

// touchPresence extends the user's presence heartbeat; called on every pong
func (h *Hub) touchPresence(userID uuid.UUID) {
	if err := h.presence.RefreshPresence(context.Background(), userID); err != nil {
		logger.Warn("Failed to refresh session presence",
			zap.String("user_id", userID.String()),
			zap.Error(err))
	}
}

// ServeWS upgrades an HTTP request to a delivery session. The socket starts
// unauthenticated; the client must send an authenticate event before
// anything is delivered.
func (h *Hub) ServeWS(c *gin.Context) {
	select {
	case h.semaphore <- struct{}{}:
	default:
		logger.Warn("WebSocket connection rejected: max connections reached",
			zap.Int("max_connections", h.maxConnections))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "server at capacity, please try again later"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		<-h.semaphore
		logger.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}

	session := newSession(h, conn)

	go session.writePump()
	go session.readPump(func() { <-h.semaphore })
}
