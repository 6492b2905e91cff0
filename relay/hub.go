package relay

import (
	"sync"
	"time"
)

// Directory mirrors connection assignments into persistent storage so other
// parts of the portal can tell who is online. A nil Directory disables it.
type Directory interface {
	SetConnectionID(userID, connID string) error
	ClearConnectionID(connID string) error
}

// call tracks a signaling exchange between two connections. Until accepted
// the ringTimer is armed; it fires when the callee never answers.
type call struct {
	caller    string
	callee    string
	accepted  bool
	ringTimer *time.Timer
}

// Hub is the connection registry. It owns the conn and room maps; all
// mutation goes through it under the mutex.
type Hub struct {
	mu    sync.RWMutex
	conns map[string]*Conn
	rooms map[string]map[string]*Conn
	calls map[string]*call // keyed by both parties' conn ids
}

func NewHub() *Hub {
	return &Hub{
		conns: make(map[string]*Conn),
		rooms: make(map[string]map[string]*Conn),
		calls: make(map[string]*call),
	}
}

func (h *Hub) add(c *Conn) {
	h.mu.Lock()
	h.conns[c.id] = c
	h.mu.Unlock()
}

// remove unregisters the connection and tears down its call, if any.
// It returns the conn id of the abandoned call peer, or "".
func (h *Hub) remove(c *Conn) (peerID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	delete(h.conns, c.id)
	for name, room := range h.rooms {
		delete(room, c.id)
		if len(room) == 0 {
			delete(h.rooms, name)
		}
	}
	return h.dropCallLocked(c.id)
}

func (h *Hub) conn(id string) *Conn {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.conns[id]
}

func (h *Hub) subscribe(c *Conn, roomNames ...string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, name := range roomNames {
		room, ok := h.rooms[name]
		if !ok {
			room = make(map[string]*Conn)
			h.rooms[name] = room
		}
		room[c.id] = c
	}
}

// broadcastRoom queues env on every member of the room.
func (h *Hub) broadcastRoom(name string, env Envelope) {
	h.mu.RLock()
	members := make([]*Conn, 0, len(h.rooms[name]))
	for _, c := range h.rooms[name] {
		members = append(members, c)
	}
	h.mu.RUnlock()

	for _, c := range members {
		c.enqueue(env)
	}
}

// startCall registers a ringing call. It fails when either party is already
// engaged, so there is no call waiting.
func (h *Hub) startCall(caller, callee string, ringTimeout time.Duration, onTimeout func(caller, callee string)) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, busy := h.calls[caller]; busy {
		return false
	}
	if _, busy := h.calls[callee]; busy {
		return false
	}
	cl := &call{caller: caller, callee: callee}
	cl.ringTimer = time.AfterFunc(ringTimeout, func() { onTimeout(caller, callee) })
	h.calls[caller] = cl
	h.calls[callee] = cl
	return true
}

// acceptCall marks the ringing call between callee and caller as live and
// disarms the ring timer. It reports whether such a call existed.
func (h *Hub) acceptCall(callee, caller string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	cl, ok := h.calls[callee]
	if !ok || cl.callee != callee || cl.caller != caller || cl.accepted {
		return false
	}
	cl.accepted = true
	cl.ringTimer.Stop()
	return true
}

// endCall drops the call involving connID and returns the other party's
// conn id, or "" when there was no call.
func (h *Hub) endCall(connID string) (peerID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.dropCallLocked(connID)
}

// endRinging drops the call only if it is still unanswered between the given
// parties. Used by the ring timer, which may race an accept.
func (h *Hub) endRinging(caller, callee string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	cl, ok := h.calls[caller]
	if !ok || cl.accepted || cl.callee != callee {
		return false
	}
	delete(h.calls, cl.caller)
	delete(h.calls, cl.callee)
	return true
}

func (h *Hub) dropCallLocked(connID string) (peerID string) {
	cl, ok := h.calls[connID]
	if !ok {
		return ""
	}
	cl.ringTimer.Stop()
	delete(h.calls, cl.caller)
	delete(h.calls, cl.callee)
	if cl.caller == connID {
		return cl.callee
	}
	return cl.caller
}
