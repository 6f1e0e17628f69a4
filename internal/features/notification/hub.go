package notification

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// Conn is the slice of the websocket connection the hub needs; the fiber
// contrib connection satisfies it, tests substitute a fake.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Session is one connected client of one user. The seen set suppresses
// duplicate live pushes of the same notification id within this session;
// it has no effect on persistence or unread counts, and it dies with the
// connection.
type Session struct {
	ID     string
	UserID primitive.ObjectID

	conn Conn
	send chan []byte
	done chan struct{}

	mu   sync.Mutex
	seen map[string]struct{}
}

// markSeen records the notification id and reports whether it was new to
// this session.
func (s *Session) markSeen(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.seen[id]; ok {
		return false
	}
	s.seen[id] = struct{}{}
	return true
}

func (s *Session) writePump() {
	for {
		select {
		case msg := <-s.send:
			if err := s.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-s.done:
			return
		}
	}
}

// Hub tracks connected sessions per user and performs best-effort live
// delivery.
type Hub struct {
	mu          sync.RWMutex
	sessions    map[primitive.ObjectID]map[*Session]struct{}
	pushTimeout time.Duration
	logger      *zap.Logger
}

func NewHub(pushTimeout time.Duration, logger *zap.Logger) *Hub {
	return &Hub{
		sessions:    make(map[primitive.ObjectID]map[*Session]struct{}),
		pushTimeout: pushTimeout,
		logger:      logger,
	}
}

// Register adds a connection as a new session for the user and starts its
// write pump. The caller owns the read loop and must Unregister on exit.
func (h *Hub) Register(userID primitive.ObjectID, conn Conn) *Session {
	s := &Session{
		ID:     uuid.NewString(),
		UserID: userID,
		conn:   conn,
		send:   make(chan []byte, 32),
		done:   make(chan struct{}),
		seen:   make(map[string]struct{}),
	}

	h.mu.Lock()
	if h.sessions[userID] == nil {
		h.sessions[userID] = make(map[*Session]struct{})
	}
	h.sessions[userID][s] = struct{}{}
	h.mu.Unlock()

	go s.writePump()
	return s
}

// Unregister removes the session and closes its connection. The send
// channel is never closed; the done channel tells the write pump and any
// in-flight Push to stand down, so a concurrent Push can only ever see a
// send that blocks, never one that panics.
func (h *Hub) Unregister(s *Session) {
	h.mu.Lock()
	if set, ok := h.sessions[s.UserID]; ok {
		if _, member := set[s]; member {
			delete(set, s)
			close(s.done)
		}
		if len(set) == 0 {
			delete(h.sessions, s.UserID)
		}
	}
	h.mu.Unlock()
	s.conn.Close()
}

// Push delivers the notification to every live session of the recipient.
// Delivery to a slow session is abandoned after the push timeout; the
// notification is already persisted, so the client catches up from the
// inbox on its next fetch.
func (h *Hub) Push(userID primitive.ObjectID, n *Notification) {
	payload, err := json.Marshal(n)
	if err != nil {
		h.logger.Error("failed to encode notification", zap.Error(err))
		return
	}

	h.mu.RLock()
	targets := make([]*Session, 0, len(h.sessions[userID]))
	for s := range h.sessions[userID] {
		targets = append(targets, s)
	}
	h.mu.RUnlock()

	id := n.ID.Hex()
	for _, s := range targets {
		if !s.markSeen(id) {
			continue
		}
		select {
		case s.send <- payload:
		case <-s.done:
		case <-time.After(h.pushTimeout):
			h.logger.Warn("notification push timed out",
				zap.String("session_id", s.ID),
				zap.String("user_id", userID.Hex()),
			)
		}
	}
}

// SessionCount reports the number of live sessions for a user.
func (h *Hub) SessionCount(userID primitive.ObjectID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions[userID])
}
