package collab

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/tmarten/inkwell/internal/crdt"
	"github.com/tmarten/inkwell/internal/document"
	"github.com/tmarten/inkwell/internal/event"
	"github.com/tmarten/inkwell/internal/logging"
	"github.com/tmarten/inkwell/internal/presence"
)

// Options configures a session.
type Options struct {
	ServerURL string
	Room      string
	Identity  presence.Identity

	// Dialer defaults to WebSocketDialer.
	Dialer Dialer
}

// Session keeps one document synchronized with a room while enabled.
// The session is created once and toggled with Enable and Disable; the
// document is always authoritative locally, so toggling never loses
// content.
type Session struct {
	doc     *document.Doc
	tracker *presence.Tracker
	bus     *event.Bus
	log     *logging.Logger
	dialer  Dialer

	serverURL string
	room      string
	peer      string
	identity  presence.Identity

	state  atomic.Int32
	outbox chan Message

	mu      sync.Mutex // guards replica/doc sync and lifecycle fields
	enabled bool
	replica *crdt.Doc
	conn    Conn // live connection, nil between dials
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewSession wires a session to the document. Collaboration starts
// disabled.
func NewSession(doc *document.Doc, tracker *presence.Tracker, bus *event.Bus, log *logging.Logger, opts Options) *Session {
	if opts.Dialer == nil {
		opts.Dialer = WebSocketDialer{}
	}
	if log == nil {
		log = logging.Null()
	}
	s := &Session{
		doc:       doc,
		tracker:   tracker,
		bus:       bus,
		log:       log.WithComponent("collab"),
		dialer:    opts.Dialer,
		serverURL: opts.ServerURL,
		room:      opts.Room,
		peer:      uuid.NewString(),
		identity:  opts.Identity,
		outbox:    make(chan Message, 1024),
	}
	doc.OnTransaction(s.onTransaction)
	doc.OnSelection(s.onSelection)
	return s
}

// Peer returns the session's peer id.
func (s *Session) Peer() string { return s.peer }

// State returns the current connection state.
func (s *Session) State() State { return State(s.state.Load()) }

// Enabled reports whether collaboration is on, regardless of
// connection health.
func (s *Session) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enabled
}

// Enable turns collaboration on: the replica binds synchronously to
// the current document text, then connection management starts in the
// background. Enabling an enabled session is a no-op.
//
// The first enable seeds a replica from the document; later enables
// reuse the replica retained by Disable, replaying edits made while
// off. Reusing it keeps character identities stable, so peers that
// already hold this session's content never see it again as new
// inserts.
func (s *Session) Enable(ctx context.Context) {
	s.mu.Lock()
	if s.enabled {
		s.mu.Unlock()
		return
	}
	if s.replica == nil {
		s.replica = crdt.Seed(crdt.PeerID(s.peer), s.doc.Text())
	} else {
		s.reconcileReplica()
	}
	s.enabled = true

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run(runCtx)
	}()
	s.mu.Unlock()

	s.log.Info("collaboration enabled: room=%s peer=%s", s.room, s.peer)
}

// Disable turns collaboration off, announcing the departure
// best-effort and waiting for background work to settle. The document
// keeps its full content. Disabling a disabled session is a no-op.
func (s *Session) Disable() {
	s.mu.Lock()
	if !s.enabled {
		s.mu.Unlock()
		return
	}
	cancel := s.cancel
	conn := s.conn
	s.enabled = false
	// The replica stays behind, frozen, as the baseline for the next
	// Enable; the document alone is authoritative until then.
	s.cancel = nil
	s.mu.Unlock()

	if conn != nil {
		// Best-effort departure announcement on the live connection.
		_ = conn.Write(Message{Type: MsgLeave, Room: s.room, Peer: s.peer})
	}

	cancel()
	s.wg.Wait()
	s.drainOutbox()
	s.tracker.Clear()
	s.setState(StateDisabled)
	s.log.Info("collaboration disabled: room=%s", s.room)
}

// run owns the connection for one enabled period, redialing with
// exponential backoff until the context is cancelled.
func (s *Session) run(ctx context.Context) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 250 * time.Millisecond
	bo.MaxInterval = 15 * time.Second
	bo.MaxElapsedTime = 0

	for {
		s.setState(StateConnecting)
		conn, err := s.dialer.Dial(ctx, s.serverURL, s.room, s.peer)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.setState(StateDisconnected)
			s.log.Warn("dial failed: %v", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(bo.NextBackOff()):
			}
			continue
		}

		bo.Reset()
		s.setState(StateConnected)
		s.enqueue(s.presenceMessage())
		s.enqueue(s.stateMessage())
		s.serve(ctx, conn)
		conn.Close()

		if ctx.Err() != nil {
			return
		}
		s.setState(StateDisconnected)
	}
}

// serve pumps one connection: a writer goroutine drains the outbox
// while the caller's goroutine reads until the connection fails.
func (s *Session) serve(ctx context.Context, conn Conn) {
	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.conn = nil
		s.mu.Unlock()
	}()

	done := make(chan struct{})
	var once sync.Once
	stop := func() {
		once.Do(func() {
			close(done)
			conn.Close()
		})
	}
	defer stop()

	go func() {
		for {
			select {
			case <-ctx.Done():
				stop()
				return
			case <-done:
				return
			case msg := <-s.outbox:
				if err := conn.Write(msg); err != nil {
					s.log.Warn("write failed: %v", err)
					stop()
					return
				}
			}
		}
	}()

	for {
		msg, err := conn.Read()
		if err != nil {
			if ctx.Err() == nil {
				s.log.Warn("read failed: %v", err)
			}
			return
		}
		s.handle(ctx, msg)
	}
}

func (s *Session) handle(ctx context.Context, msg Message) {
	if msg.Peer == s.peer {
		// Relays may echo; our own operations are already applied.
		return
	}

	switch msg.Type {
	case MsgOp:
		if msg.Op != nil {
			s.applyRemote(*msg.Op)
		}
	case MsgState:
		// A peer announced its full replica; merging it converges us
		// onto whatever we missed while apart. If we hold operations
		// the snapshot lacks, answer with our own state so the other
		// side converges too. The reply condition bounds the exchange:
		// once a snapshot carries everything we hold, it gets no
		// answer.
		known := make(map[opKey]bool, len(msg.State))
		for _, op := range msg.State {
			known[opKey{op.Action, op.Char.ID}] = true
			s.applyRemote(op)
		}
		if s.holdsMissing(known) {
			s.enqueue(s.stateMessage())
		}
	case MsgPresence:
		if msg.Presence != nil {
			s.tracker.Observe(msg.Peer, *msg.Presence)
			s.bus.Publish(ctx, event.TopicPresence, msg.Peer)
		}
	case MsgLeave:
		s.tracker.Remove(msg.Peer)
		s.bus.Publish(ctx, event.TopicPresence, msg.Peer)
	}
}

// reconcileReplica replays document edits made while collaboration was
// off onto the retained replica, called under s.mu before re-enabling.
// The edits become this peer's own operations and travel to the room in
// the next state snapshot.
func (s *Session) reconcileReplica() {
	have := []rune(s.replica.Text())
	want := []rune(s.doc.Text())

	p := 0
	for p < len(have) && p < len(want) && have[p] == want[p] {
		p++
	}
	sfx := 0
	for sfx < len(have)-p && sfx < len(want)-p && have[len(have)-1-sfx] == want[len(want)-1-sfx] {
		sfx++
	}

	for i := len(have) - sfx; i > p; i-- {
		s.replica.LocalDelete(p)
	}
	for i, r := range want[p : len(want)-sfx] {
		s.replica.LocalInsert(p+i, r)
	}
}

// opKey identifies one snapshot operation.
type opKey struct {
	action crdt.Action
	id     crdt.ID
}

// holdsMissing reports whether the replica holds operations absent from
// a peer's snapshot.
func (s *Session) holdsMissing(known map[opKey]bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.enabled || s.replica == nil {
		return false
	}
	for _, op := range s.replica.Ops() {
		if !known[opKey{op.Action, op.Char.ID}] {
			return true
		}
	}
	return false
}

// applyRemote merges one remote operation into the replica and, if it
// changed visible text, dispatches the equivalent edit onto the
// document. The replica and document update under one lock so local
// edits cannot interleave between them.
func (s *Session) applyRemote(op crdt.Op) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.enabled || s.replica == nil {
		return
	}

	index, applied := s.replica.Apply(op)
	if !applied {
		return
	}

	var docOp document.Op
	switch op.Action {
	case crdt.ActionInsert:
		docOp = document.InsertText{
			At:   document.Offset(index),
			Text: string(op.Char.Rune),
		}
	case crdt.ActionDelete:
		docOp = document.DeleteRange{
			Range: document.Span{
				Start: document.Offset(index),
				End:   document.Offset(index) + 1,
			},
		}
	default:
		return
	}

	// Dispatch re-enters our transaction listener on this goroutine;
	// the remote origin check there returns before touching s.mu.
	if _, err := s.doc.Dispatch(document.Transaction{
		Origin: document.OriginRemote,
		Ops:    []document.Op{docOp},
	}); err != nil {
		s.log.Error("remote apply failed: %v", err)
	}
}

// onTransaction replays committed local edits onto the replica and
// broadcasts the resulting operations.
func (s *Session) onTransaction(res document.Result) {
	if res.Origin == document.OriginRemote {
		return
	}

	s.mu.Lock()
	if !s.enabled || s.replica == nil {
		s.mu.Unlock()
		return
	}
	var ops []crdt.Op
	for _, ch := range res.Changes {
		at := int(ch.At)
		for range []rune(ch.Deleted) {
			if op, ok := s.replica.LocalDelete(at); ok {
				ops = append(ops, op)
			}
		}
		for i, r := range []rune(ch.Inserted) {
			ops = append(ops, s.replica.LocalInsert(at+i, r))
		}
	}
	s.mu.Unlock()

	for _, op := range ops {
		op := op
		s.enqueue(Message{Type: MsgOp, Room: s.room, Peer: s.peer, Op: &op})
	}
}

// onSelection broadcasts the local cursor whenever it moves.
func (s *Session) onSelection(document.Selection) {
	if s.State() == StateDisabled {
		return
	}
	s.enqueue(s.presenceMessage())
}

// stateMessage snapshots the replica for new or rejoining peers.
func (s *Session) stateMessage() Message {
	s.mu.Lock()
	var ops []crdt.Op
	if s.replica != nil {
		ops = s.replica.Ops()
	}
	s.mu.Unlock()
	return Message{Type: MsgState, Room: s.room, Peer: s.peer, State: ops}
}

func (s *Session) presenceMessage() Message {
	st := presence.State{Identity: s.identity, Selection: s.doc.Selection()}
	return Message{Type: MsgPresence, Room: s.room, Peer: s.peer, Presence: &st}
}

// enqueue buffers a message for the writer. The buffer absorbs
// disconnected periods; when it fills, the oldest intent is the least
// valuable, so the new message is dropped with a warning instead of
// blocking the editing path.
func (s *Session) enqueue(msg Message) {
	select {
	case s.outbox <- msg:
	default:
		s.log.Warn("outbox full, dropping %s message", msg.Type)
	}
}

func (s *Session) drainOutbox() {
	for {
		select {
		case <-s.outbox:
		default:
			return
		}
	}
}

func (s *Session) setState(st State) {
	old := State(s.state.Swap(int32(st)))
	if old == st {
		return
	}
	s.log.Info("state: %s -> %s", old, st)
	s.bus.Publish(context.Background(), event.TopicCollabStatus, st)
}
