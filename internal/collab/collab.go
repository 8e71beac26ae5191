// Package collab synchronizes a document with remote peers. A replica
// of the document's flat text lives in a character CRDT; local edits
// replay onto the replica and broadcast as operations, remote
// operations merge into the replica and dispatch back onto the
// document. Presence rides the same connection.
package collab

import (
	"context"
	"net/url"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/tmarten/inkwell/internal/crdt"
	"github.com/tmarten/inkwell/internal/presence"
)

// State is the connection lifecycle.
type State int32

const (
	// StateDisabled means collaboration is off; the document is local.
	StateDisabled State = iota
	// StateConnecting means a dial or redial is in progress.
	StateConnecting
	// StateConnected means the session is live.
	StateConnected
	// StateDisconnected means the connection dropped; a redial is
	// scheduled.
	StateDisconnected
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case StateDisabled:
		return "disabled"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Message types on the wire.
const (
	MsgOp       = "op"
	MsgState    = "state"
	MsgPresence = "presence"
	MsgLeave    = "leave"
)

// Message is the wire envelope. Exactly one payload field is set,
// matching Type.
type Message struct {
	Type     string          `json:"type"`
	Room     string          `json:"room,omitempty"`
	Peer     string          `json:"peer"`
	Op       *crdt.Op        `json:"op,omitempty"`
	State    []crdt.Op       `json:"state,omitempty"`
	Presence *presence.State `json:"presence,omitempty"`
}

// Conn is one bidirectional message stream to the relay.
type Conn interface {
	Read() (Message, error)
	Write(Message) error
	Close() error
}

// Dialer opens connections to a relay. The session redials through the
// same dialer after a drop.
type Dialer interface {
	Dial(ctx context.Context, serverURL, room, peer string) (Conn, error)
}

// WebSocketDialer dials a relay speaking JSON messages over websocket.
// Room and peer travel as query parameters.
type WebSocketDialer struct{}

// Dial implements Dialer.
func (WebSocketDialer) Dial(ctx context.Context, serverURL, room, peer string) (Conn, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("room", room)
	q.Set("peer", peer)
	u.RawQuery = q.Encode()

	ws, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, err
	}
	return &wsConn{ws: ws}, nil
}

// wsConn wraps a websocket connection. Gorilla allows one concurrent
// writer, so writes serialize on a mutex.
type wsConn struct {
	ws      *websocket.Conn
	writeMu sync.Mutex
}

func (c *wsConn) Read() (Message, error) {
	var msg Message
	if err := c.ws.ReadJSON(&msg); err != nil {
		return Message{}, err
	}
	return msg, nil
}

func (c *wsConn) Write(msg Message) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.ws.WriteJSON(msg)
}

func (c *wsConn) Close() error {
	return c.ws.Close()
}
