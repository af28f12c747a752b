package relay

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/mirokugang/mukon/internal/address"
	"github.com/mirokugang/mukon/internal/identity"
	"github.com/mirokugang/mukon/internal/logging"
)

// Options tunes a relay Server.
type Options struct {
	// Secret signs challenges. Instances sharing a Redis broker need not
	// share it: a challenge is only ever checked by the instance issuing it.
	Secret          []byte
	AuthTimeout     time.Duration
	MaxAuthFailures int
	SendQueue       int
	MaxMessageSize  int64
}

func DefaultOptions() Options {
	return Options{
		AuthTimeout:     10 * time.Second,
		MaxAuthFailures: 3,
		SendQueue:       256,
		MaxMessageSize:  64 << 10,
	}
}

type Server struct {
	opts       Options
	hub        *Hub
	challenger *Challenger
	authorizer Authorizer
	broker     Broker
	logger     logging.Logger
	upgrader   websocket.Upgrader
}

func NewServer(opts Options, a Authorizer, b Broker, l logging.Logger) *Server {
	if b == nil {
		b = LocalBroker{}
	}
	return &Server{
		opts:       opts,
		hub:        NewHub(),
		challenger: NewChallenger(opts.Secret, opts.AuthTimeout),
		authorizer: a,
		broker:     b,
		logger:     l.With("module", "relay"),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Hub exposes the routing table, mostly for health reporting.
func (s *Server) Hub() *Hub {
	return s.hub
}

func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/ws", s.serveWS)
	r.HandleFunc("/health", s.serveHealth).Methods(http.MethodGet)
	return r
}

// Run serves on addr and consumes the broker until ctx is cancelled.
func (s *Server) Run(ctx context.Context, addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, lis)
}

func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	srv := &http.Server{Handler: s.Handler(), ReadHeaderTimeout: 10 * time.Second}

	go func() {
		if err := s.broker.Subscribe(ctx, s.deliverRemote); err != nil {
			s.logger.Error(ctx, "broker subscription ended", "error", err)
		}
	}()

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping relay...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info(ctx, "Starting relay", "address", lis.Addr().String())

	if err := srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) serveHealth(w http.ResponseWriter, r *http.Request) {
	sessions, conversations := s.hub.Stats()
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(Health{Status: "ok", Sessions: sessions, Conversations: conversations})
}

func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn(r.Context(), "upgrade failed", "error", err)
		return
	}

	sess := newSession(uuid.NewString(), conn, s)
	ctx, cancel := context.WithCancel(logging.ContextWith(context.Background(), "conn", sess.id))
	defer cancel()

	s.hub.Attach(sess)
	go sess.writePump()

	challenge, err := s.challenger.Issue(sess.id)
	if err != nil {
		s.logger.Error(ctx, "issuing challenge", "error", err)
		sess.Close()
		s.hub.Detach(sess, nil)
		return
	}
	sess.mu.Lock()
	sess.challenge = challenge
	sess.mu.Unlock()
	sess.Deliver(Event{Type: TypeChallenge, Challenge: challenge})

	timer := time.AfterFunc(s.opts.AuthTimeout, func() {
		if _, ok := sess.Identity(); !ok {
			s.logger.Info(ctx, "authentication timeout")
			sess.closeAfterFlush("authentication timeout")
		}
	})

	s.logger.Info(ctx, "connected", "remote", r.RemoteAddr)

	sess.readPump(ctx)

	timer.Stop()
	sess.Close()
	s.hub.Detach(sess, sess.joinedHandles())
	s.logger.Info(ctx, "disconnected")
}

func (s *Server) dispatch(ctx context.Context, sess *Session, ev Event) {
	var reply Event
	var err error
	var drop bool

	switch ev.Type {
	case TypeAuthenticate:
		drop, err = s.authenticate(ctx, sess, ev)
		reply = Event{Type: TypeOK}
	case TypeJoin:
		reply, err = s.join(ctx, sess, ev)
	case TypeSend:
		reply, err = s.sendMessage(ctx, sess, ev)
	case TypeLeave:
		reply, err = s.leave(sess, ev)
	case TypeHealth:
		sessions, conversations := s.hub.Stats()
		reply = Event{Type: TypeHealth, Health: &Health{Status: "ok", Sessions: sessions, Conversations: conversations}}
	default:
		err = ErrBadRequest
	}

	if err != nil {
		sess.Deliver(errorEvent(ev.Ref, err))
		if drop {
			sess.closeAfterFlush("too many authentication failures")
		}
		return
	}
	reply.Ref = ev.Ref
	sess.Deliver(reply)
}

// authenticate reports every failure cause as the same AuthFailed error.
// drop is set once the session has used up its attempts.
func (s *Server) authenticate(ctx context.Context, sess *Session, ev Event) (drop bool, err error) {
	sess.mu.Lock()
	defer sess.mu.Unlock()

	id, ok := s.verifyAuth(sess, ev)
	if !ok {
		sess.failures++
		if sess.failures >= s.opts.MaxAuthFailures {
			s.logger.Info(ctx, "too many authentication failures")
			return true, ErrAuthFailed
		}
		return false, ErrAuthFailed
	}

	sess.authenticated = true
	sess.identity = id
	sess.challenge = ""
	s.logger.Info(ctx, "authenticated", "identity", id.String())
	return false, nil
}

// verifyAuth runs under sess.mu.
func (s *Server) verifyAuth(sess *Session, ev Event) (identity.Identity, bool) {
	if sess.authenticated || sess.challenge == "" || ev.Challenge != sess.challenge {
		return identity.Identity{}, false
	}
	if err := s.challenger.Verify(ev.Challenge, sess.id); err != nil {
		return identity.Identity{}, false
	}
	id, err := identity.Parse(ev.Identity)
	if err != nil {
		return identity.Identity{}, false
	}
	if !identity.Verify(id, AuthMessage(ev.Challenge), ev.Signature) {
		return identity.Identity{}, false
	}
	return id, true
}

func (s *Server) join(ctx context.Context, sess *Session, ev Event) (Event, error) {
	self, ok := sess.Identity()
	if !ok {
		return Event{}, ErrUnauthenticated
	}
	handle, err := address.Parse(ev.Handle)
	if err != nil {
		return Event{}, ErrBadRequest
	}
	var peer *identity.Identity
	if ev.Peer != "" {
		p, err := identity.Parse(ev.Peer)
		if err != nil {
			return Event{}, ErrBadRequest
		}
		peer = &p
	}

	if err := s.authorizer.Authorize(ctx, handle, self, peer); err != nil {
		s.logger.Info(ctx, "join refused", "handle", ev.Handle, "error", err)
		return Event{}, err
	}

	sess.joined[handle] = struct{}{}
	s.hub.Join(handle, sess)
	return Event{Type: TypeOK, Handle: ev.Handle}, nil
}

func (s *Server) sendMessage(ctx context.Context, sess *Session, ev Event) (Event, error) {
	self, ok := sess.Identity()
	if !ok {
		return Event{}, ErrUnauthenticated
	}
	handle, err := address.Parse(ev.Handle)
	if err != nil {
		return Event{}, ErrBadRequest
	}
	if _, ok := sess.joined[handle]; !ok {
		return Event{}, ErrNotJoined
	}

	from := self.String()
	s.hub.Broadcast(handle, sess.id, Event{Type: TypeMessage, Handle: ev.Handle, From: from, Payload: ev.Payload})

	if err := s.broker.Publish(ctx, Delivery{Handle: handle, From: from, Payload: ev.Payload}); err != nil {
		s.logger.Warn(ctx, "broker publish failed", "handle", ev.Handle, "error", err)
	}
	return Event{Type: TypeOK, Handle: ev.Handle}, nil
}

func (s *Server) leave(sess *Session, ev Event) (Event, error) {
	if _, ok := sess.Identity(); !ok {
		return Event{}, ErrUnauthenticated
	}
	handle, err := address.Parse(ev.Handle)
	if err != nil {
		return Event{}, ErrBadRequest
	}
	if _, ok := sess.joined[handle]; !ok {
		return Event{}, ErrNotJoined
	}
	delete(sess.joined, handle)
	s.hub.Leave(handle, sess)
	return Event{Type: TypeOK, Handle: ev.Handle}, nil
}

func (s *Server) deliverRemote(d Delivery) {
	s.hub.Broadcast(d.Handle, "", Event{Type: TypeMessage, Handle: d.Handle.String(), From: d.From, Payload: d.Payload})
}
