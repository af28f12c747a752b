package relay

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"
	"github.com/mirokugang/mukon/internal/address"
	"github.com/mirokugang/mukon/internal/identity"
)

var ErrClosed = errors.New("relay connection closed")

// Conn is a client connection to a relay. Requests wait for the reply
// carrying their ref; message events are delivered on Messages.
type Conn struct {
	ws *websocket.Conn

	writeMu sync.Mutex
	seq     atomic.Uint64

	mu      sync.Mutex
	pending map[string]chan Event

	messages  chan Event
	closing   chan struct{}
	closeOnce sync.Once
	done      chan struct{}
	err       error
}

// Dial connects to the relay websocket at url and authenticates as kp.
func Dial(ctx context.Context, url string, kp *identity.KeyPair) (*Conn, error) {
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial relay: %w", err)
	}

	var first Event
	if err := ws.ReadJSON(&first); err != nil {
		_ = ws.Close()
		return nil, fmt.Errorf("read challenge: %w", err)
	}
	if first.Type != TypeChallenge {
		_ = ws.Close()
		return nil, fmt.Errorf("expected challenge, got %q", first.Type)
	}

	c := &Conn{
		ws:       ws,
		pending:  make(map[string]chan Event),
		messages: make(chan Event, 64),
		closing:  make(chan struct{}),
		done:     make(chan struct{}),
	}
	go c.readLoop()

	if _, err := c.request(ctx, SignChallenge(kp, first.Challenge)); err != nil {
		_ = c.Close()
		return nil, err
	}
	return c, nil
}

// Messages yields message events from joined conversations. It is closed
// when the connection ends.
func (c *Conn) Messages() <-chan Event {
	return c.messages
}

func (c *Conn) Join(ctx context.Context, handle address.Handle, peer *identity.Identity) error {
	ev := Event{Type: TypeJoin, Handle: handle.String()}
	if peer != nil {
		ev.Peer = peer.String()
	}
	_, err := c.request(ctx, ev)
	return err
}

func (c *Conn) Send(ctx context.Context, handle address.Handle, payload []byte) error {
	_, err := c.request(ctx, Event{Type: TypeSend, Handle: handle.String(), Payload: payload})
	return err
}

func (c *Conn) Leave(ctx context.Context, handle address.Handle) error {
	_, err := c.request(ctx, Event{Type: TypeLeave, Handle: handle.String()})
	return err
}

func (c *Conn) Health(ctx context.Context) (Event, error) {
	return c.request(ctx, Event{Type: TypeHealth})
}

func (c *Conn) Close() error {
	c.closeOnce.Do(func() { close(c.closing) })
	c.writeMu.Lock()
	_ = c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.writeMu.Unlock()
	err := c.ws.Close()
	<-c.done
	return err
}

// request sends ev and waits for its reply. Error replies come back as *Error.
func (c *Conn) request(ctx context.Context, ev Event) (Event, error) {
	ev.Ref = strconv.FormatUint(c.seq.Add(1), 10)
	reply := make(chan Event, 1)

	c.mu.Lock()
	if c.pending == nil {
		c.mu.Unlock()
		return Event{}, c.closedErr()
	}
	c.pending[ev.Ref] = reply
	c.mu.Unlock()

	c.writeMu.Lock()
	err := c.ws.WriteJSON(ev)
	c.writeMu.Unlock()
	if err != nil {
		c.forget(ev.Ref)
		return Event{}, fmt.Errorf("write %s: %w", ev.Type, err)
	}

	select {
	case <-ctx.Done():
		c.forget(ev.Ref)
		return Event{}, ctx.Err()
	case r, ok := <-reply:
		if !ok {
			return Event{}, c.closedErr()
		}
		if r.Type == TypeError {
			return r, &Error{Code: r.Code, msg: r.Message}
		}
		return r, nil
	}
}

func (c *Conn) forget(ref string) {
	c.mu.Lock()
	delete(c.pending, ref)
	c.mu.Unlock()
}

func (c *Conn) closedErr() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return fmt.Errorf("%w: %v", ErrClosed, c.err)
	}
	return ErrClosed
}

func (c *Conn) readLoop() {
	defer close(c.done)
	defer close(c.messages)

	for {
		var ev Event
		if err := c.ws.ReadJSON(&ev); err != nil {
			c.mu.Lock()
			c.err = err
			for _, ch := range c.pending {
				close(ch)
			}
			c.pending = nil
			c.mu.Unlock()
			return
		}

		if ev.Type == TypeMessage {
			select {
			case c.messages <- ev:
			case <-c.closing:
			}
			continue
		}

		c.mu.Lock()
		ch, ok := c.pending[ev.Ref]
		delete(c.pending, ev.Ref)
		c.mu.Unlock()
		if ok {
			ch <- ev
		}
	}
}
