package collab

import (
	"context"
	"errors"
	"sync"
)

// ErrHubClosed is returned on reads and writes after a hub connection
// or the hub itself has closed.
var ErrHubClosed = errors.New("hub closed")

// Hub is an in-process relay: every message a member writes is fanned
// out to the other members of the same room. It backs multi-session
// tests and single-process setups without a network server.
type Hub struct {
	mu     sync.Mutex
	rooms  map[string][]*hubConn
	closed bool
}

// NewHub returns an empty hub.
func NewHub() *Hub {
	return &Hub{rooms: make(map[string][]*hubConn)}
}

// Join adds a member to a room and returns its connection.
func (h *Hub) Join(room, peer string) (Conn, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, ErrHubClosed
	}
	c := &hubConn{
		hub:    h,
		room:   room,
		peer:   peer,
		inbox:  make(chan Message, 256),
		closed: make(chan struct{}),
	}
	h.rooms[room] = append(h.rooms[room], c)
	return c, nil
}

// Close shuts the hub down, closing every member connection.
func (h *Hub) Close() {
	h.mu.Lock()
	conns := make([]*hubConn, 0)
	for _, members := range h.rooms {
		conns = append(conns, members...)
	}
	h.rooms = make(map[string][]*hubConn)
	h.closed = true
	h.mu.Unlock()

	for _, c := range conns {
		c.closeOnce()
	}
}

// broadcast fans a message out to the room, skipping the sender.
func (h *Hub) broadcast(from *hubConn, msg Message) {
	h.mu.Lock()
	members := append([]*hubConn(nil), h.rooms[from.room]...)
	h.mu.Unlock()

	for _, c := range members {
		if c == from {
			continue
		}
		select {
		case c.inbox <- msg:
		case <-c.closed:
		}
	}
}

func (h *Hub) leave(c *hubConn) {
	h.mu.Lock()
	members := h.rooms[c.room]
	for i, m := range members {
		if m == c {
			h.rooms[c.room] = append(members[:i], members[i+1:]...)
			break
		}
	}
	if len(h.rooms[c.room]) == 0 {
		delete(h.rooms, c.room)
	}
	h.mu.Unlock()
}

type hubConn struct {
	hub   *Hub
	room  string
	peer  string
	inbox chan Message

	closeMu sync.Mutex
	closed  chan struct{}
	done    bool
}

func (c *hubConn) Read() (Message, error) {
	select {
	case msg := <-c.inbox:
		return msg, nil
	case <-c.closed:
		// Drain anything delivered before the close won the race.
		select {
		case msg := <-c.inbox:
			return msg, nil
		default:
			return Message{}, ErrHubClosed
		}
	}
}

func (c *hubConn) Write(msg Message) error {
	select {
	case <-c.closed:
		return ErrHubClosed
	default:
	}
	c.hub.broadcast(c, msg)
	return nil
}

func (c *hubConn) Close() error {
	c.hub.leave(c)
	c.closeOnce()
	return nil
}

func (c *hubConn) closeOnce() {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()
	if !c.done {
		c.done = true
		close(c.closed)
	}
}

// HubDialer adapts a Hub to the Dialer interface; the server URL is
// ignored.
type HubDialer struct {
	Hub *Hub
}

// Dial implements Dialer.
func (d HubDialer) Dial(_ context.Context, _, room, peer string) (Conn, error) {
	return d.Hub.Join(room, peer)
}
