package ws

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"chatgrid-backend/internal/realtime"
	"chatgrid-backend/pkg/constants"
	"chatgrid-backend/pkg/jwt"
	"chatgrid-backend/pkg/logger"
)

// Inbound event names
const (
	eventAuthenticate = "authenticate"
	eventMarkAsRead   = "mark_as_read"
)

// inboundMessage is the frame clients send
type inboundMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type authenticateData struct {
	Token string `json:"token"`
}

// markAsReadData accepts either a batch of ids or the singular
// notificationId older clients send
type markAsReadData struct {
	IDs            []uuid.UUID `json:"ids"`
	NotificationID *uuid.UUID  `json:"notificationId"`
}

func (d *markAsReadData) ids() []uuid.UUID {
	ids := d.IDs
	if d.NotificationID != nil {
		ids = append(ids, *d.NotificationID)
	}
	return ids
}

// Session is one WebSocket connection in the delivery registry. It is born
// unauthenticated; until the client proves its identity nothing is delivered
// and nothing but authenticate is accepted.
type Session struct {
	hub  *Hub
	conn *websocket.Conn

	// mu guards send against enqueue racing close
	mu     sync.Mutex
	send   chan []byte
	closed bool

	userID        uuid.UUID
	authenticated bool
}

func newSession(hub *Hub, conn *websocket.Conn) *Session {
	return &Session{
		hub:  hub,
		conn: conn,
		send: make(chan []byte, constants.SessionSendQueueSize),
	}
}

// enqueue puts a frame on the session's bounded send queue. When the queue
// is full the oldest pending frame is dropped so a slow consumer lags but
// never blocks delivery to anyone else.
func (s *Session) enqueue(frame []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}

	for {
		select {
		case s.send <- frame:
			return
		default:
		}
		select {
		case <-s.send:
			logger.Debug("Dropping oldest frame for slow session",
				zap.String("user_id", s.userID.String()))
		default:
		}
	}
}

// close tears the session down; safe to call more than once
func (s *Session) close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.closed {
		s.closed = true
		close(s.send)
	}
}

// readPump consumes inbound frames for the life of the connection
func (s *Session) readPump(release func()) {
	defer func() {
		s.hub.remove(s)
		s.close()
		s.conn.Close()
		release()
	}()

	// the client gets a short window to authenticate
	s.conn.SetReadDeadline(time.Now().Add(constants.WebSocketAuthTimeout))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(constants.WebSocketPingInterval))
		if s.authenticated {
			s.hub.touchPresence(s.userID)
		}
		return nil
	})

	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Debug("Delivery session closed",
					zap.String("user_id", s.userID.String()),
					zap.Error(err))
			}
			return
		}

		var msg inboundMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			logger.Warn("Invalid frame on delivery session", zap.Error(err))
			continue
		}

		if !s.authenticated {
			if msg.Event != eventAuthenticate || !s.handleAuthenticate(msg.Data) {
				return
			}
			s.conn.SetReadDeadline(time.Now().Add(constants.WebSocketPingInterval))
			continue
		}

		s.hub.metrics.RecordWebSocketMessage("inbound", msg.Event)

		switch msg.Event {
		case eventMarkAsRead:
			s.handleMarkAsRead(msg.Data)
		case eventAuthenticate:
			// already authenticated, ignore
		default:
			logger.Debug("Ignoring unknown session event",
				zap.String("event", msg.Event),
				zap.String("user_id", s.userID.String()))
		}
	}
}

// handleAuthenticate validates the presented token, registers the session
// and sends the unread catch-up. Returns false when the session must close;
// failures are fail-closed.
func (s *Session) handleAuthenticate(data json.RawMessage) bool {
	var auth authenticateData
	if err := json.Unmarshal(data, &auth); err != nil || auth.Token == "" {
		s.sendAuthError("authentication payload is invalid")
		return false
	}

	claims, err := s.hub.jwtManager.ValidateToken(auth.Token)
	if err != nil {
		logger.Warn("Delivery session authentication failed", zap.Error(err))
		s.sendAuthError("invalid or expired token")
		return false
	}

	if !claims.HasAudience(jwt.APIAudience) {
		logger.Warn("Delivery session token has wrong audience",
			zap.String("user_id", claims.UserID.String()))
		s.sendAuthError("invalid token audience")
		return false
	}

	s.userID = claims.UserID
	s.authenticated = true
	s.hub.add(s)

	logger.Debug("Delivery session authenticated",
		zap.String("user_id", s.userID.String()))

	s.sendUnreadCatchUp()
	return true
}

// sendUnreadCatchUp pushes everything the user missed while offline
func (s *Session) sendUnreadCatchUp() {
	ctx, cancel := context.WithTimeout(context.Background(), constants.DefaultTimeout)
	defer cancel()

	grouped, err := s.hub.notifications.Poll(ctx, s.userID)
	if err != nil {
		logger.Warn("Failed to load unread catch-up",
			zap.String("user_id", s.userID.String()),
			zap.Error(err))
		return
	}

	frame, err := json.Marshal(realtime.Envelope{
		Event: realtime.EventUnreadNotifications,
		Data:  grouped,
	})
	if err != nil {
		return
	}

	s.enqueue(frame)
	s.hub.metrics.RecordWebSocketMessage("outbound", realtime.EventUnreadNotifications)
}

func (s *Session) handleMarkAsRead(data json.RawMessage) {
	var req markAsReadData
	if err := json.Unmarshal(data, &req); err != nil {
		logger.Warn("Invalid mark_as_read payload",
			zap.String("user_id", s.userID.String()))
		return
	}

	ids := req.ids()
	if len(ids) == 0 {
		logger.Warn("Empty mark_as_read payload",
			zap.String("user_id", s.userID.String()))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), constants.DefaultTimeout)
	defer cancel()

	if _, err := s.hub.notifications.MarkAsRead(ctx, s.userID, ids); err != nil {
		logger.Warn("Failed to mark notifications read",
			zap.String("user_id", s.userID.String()),
			zap.Error(err))
	}
}

// sendAuthError writes the failure frame directly; the session is about to
// close and the send queue may never drain
func (s *Session) sendAuthError(reason string) {
	frame, err := json.Marshal(realtime.Envelope{
		Event: realtime.EventAuthError,
		Data:  map[string]string{"message": reason},
	})
	if err != nil {
		return
	}

	s.conn.SetWriteDeadline(time.Now().Add(constants.WebSocketWriteTimeout))
	s.conn.WriteMessage(websocket.TextMessage, frame)
}

// writePump writes queued frames and keepalive pings until the session ends
func (s *Session) writePump() {
	ticker := time.NewTicker(constants.WebSocketPingInterval * 9 / 10)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(constants.WebSocketWriteTimeout))
			if !ok {
				s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := s.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}

		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(constants.WebSocketWriteTimeout))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
