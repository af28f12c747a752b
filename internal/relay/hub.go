package relay

import (
	"sync"

	"github.com/mirokugang/mukon/internal/address"
)

// member is what the hub needs from a session.
type member interface {
	ID() string
	Deliver(ev Event)
}

// room holds the sessions joined to one handle. Broadcasts take the read lock
// so they run concurrently; join and leave take the write lock.
type room struct {
	mu      sync.RWMutex
	members map[string]member
}

// Hub is the routing table from handles to joined sessions.
type Hub struct {
	mu       sync.RWMutex
	rooms    map[address.Handle]*room
	sessions map[string]member
}

func NewHub() *Hub {
	return &Hub{
		rooms:    make(map[address.Handle]*room),
		sessions: make(map[string]member),
	}
}

func (h *Hub) Attach(m member) {
	h.mu.Lock()
	h.sessions[m.ID()] = m
	h.mu.Unlock()
}

// Detach removes m from the hub and from every room in handles.
func (h *Hub) Detach(m member, handles []address.Handle) {
	for _, handle := range handles {
		h.Leave(handle, m)
	}
	h.mu.Lock()
	delete(h.sessions, m.ID())
	h.mu.Unlock()
}

func (h *Hub) Join(handle address.Handle, m member) {
	h.mu.Lock()
	r, ok := h.rooms[handle]
	if !ok {
		r = &room{members: make(map[string]member)}
		h.rooms[handle] = r
	}
	// the room lock is taken under the table lock so an emptied room cannot
	// be dropped between lookup and insert
	r.mu.Lock()
	r.members[m.ID()] = m
	r.mu.Unlock()
	h.mu.Unlock()
}

func (h *Hub) Leave(handle address.Handle, m member) {
	h.mu.Lock()
	defer h.mu.Unlock()

	r, ok := h.rooms[handle]
	if !ok {
		return
	}
	r.mu.Lock()
	delete(r.members, m.ID())
	empty := len(r.members) == 0
	r.mu.Unlock()
	if empty {
		delete(h.rooms, handle)
	}
}

// Broadcast delivers ev to every member of handle except the one with id
// exceptID, and reports how many received it.
func (h *Hub) Broadcast(handle address.Handle, exceptID string, ev Event) int {
	h.mu.RLock()
	r, ok := h.rooms[handle]
	h.mu.RUnlock()
	if !ok {
		return 0
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for id, m := range r.members {
		if id == exceptID {
			continue
		}
		m.Deliver(ev)
		n++
	}
	return n
}

// Stats reports connected sessions and conversations with at least one
// joined member.
func (h *Hub) Stats() (sessions, conversations int) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions), len(h.rooms)
}
