package relay

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mirokugang/mukon/internal/address"
	"github.com/mirokugang/mukon/internal/identity"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// Session is one websocket connection. Its events are handled sequentially
// by the reader goroutine; outbound events go through a bounded queue drained
// by the writer goroutine.
type Session struct {
	id     string
	conn   *websocket.Conn
	server *Server
	send   chan []byte
	done   chan struct{}

	closeOnce sync.Once

	mu            sync.Mutex
	authenticated bool
	identity      identity.Identity
	challenge     string
	failures      int
	closeReason   string

	// joined is owned by the reader goroutine.
	joined map[address.Handle]struct{}
}

func newSession(id string, conn *websocket.Conn, srv *Server) *Session {
	return &Session{
		id:     id,
		conn:   conn,
		server: srv,
		send:   make(chan []byte, srv.opts.SendQueue),
		done:   make(chan struct{}),
		joined: make(map[address.Handle]struct{}),
	}
}

func (s *Session) ID() string {
	return s.id
}

// Identity reports the authenticated identity, if any.
func (s *Session) Identity() (identity.Identity, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.identity, s.authenticated
}

// Deliver queues ev without blocking. A session whose queue is full is too
// slow to keep up and is disconnected.
func (s *Session) Deliver(ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	select {
	case <-s.done:
	case s.send <- data:
	default:
		s.server.logger.Warn(context.Background(), "send queue full, disconnecting", "conn", s.id)
		s.Close()
	}
}

// Close tears the connection down immediately.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
	})
}

// closeAfterFlush lets queued events reach the client before closing.
func (s *Session) closeAfterFlush(reason string) {
	s.mu.Lock()
	s.closeReason = reason
	s.mu.Unlock()

	select {
	case s.send <- nil:
	default:
		s.Close()
	}
}

func (s *Session) joinedHandles() []address.Handle {
	hs := make([]address.Handle, 0, len(s.joined))
	for h := range s.joined {
		hs = append(hs, h)
	}
	return hs
}

func (s *Session) readPump(ctx context.Context) {
	s.conn.SetReadLimit(s.server.opts.MaxMessageSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.server.logger.Warn(ctx, "read failed", "error", err)
			}
			return
		}

		var ev Event
		if err := json.Unmarshal(data, &ev); err != nil {
			s.Deliver(errorEvent("", ErrBadRequest))
			continue
		}
		s.server.dispatch(ctx, s, ev)
	}
}

func (s *Session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = s.conn.Close()
	}()

	for {
		select {
		case msg := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if msg == nil {
				s.mu.Lock()
				reason := s.closeReason
				s.mu.Unlock()
				_ = s.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason))
				s.Close()
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				s.Close()
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.Close()
				return
			}
		case <-s.done:
			return
		}
	}
}

func errorEvent(ref string, err error) Event {
	return Event{Type: TypeError, Ref: ref, Code: codeOf(err), Message: err.Error()}
}
