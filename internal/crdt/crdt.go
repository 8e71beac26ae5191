// Package crdt implements a Logoot replicated character sequence: the
// shared replica behind collaborative editing. Concurrent inserts and
// deletes from any number of peers merge commutatively, so every replica
// converges to the same text regardless of delivery order.
//
// Characters carry dense position identifiers ordered lexicographically;
// deletes leave tombstones keyed by the character's identity, which makes
// every operation idempotent.
package crdt

import (
	"sort"
	"strings"
	"sync"
)

// PeerID identifies a replica. One id per collaborative session.
type PeerID string

// maxPos bounds the identifier digit space at each tree level.
const maxPos = 1<<31 - 1

// Ident is one digit of a position identifier.
type Ident struct {
	Pos  uint32 `json:"pos"`
	Peer PeerID `json:"peer"`
}

// Position is a dense identifier: a list of idents compared
// lexicographically, with a strict prefix ordering before any extension.
type Position []Ident

// Compare returns -1, 0 or 1 ordering p against q.
func (p Position) Compare(q Position) int {
	for i := 0; i < len(p) && i < len(q); i++ {
		if p[i].Pos != q[i].Pos {
			if p[i].Pos < q[i].Pos {
				return -1
			}
			return 1
		}
		if p[i].Peer != q[i].Peer {
			return strings.Compare(string(p[i].Peer), string(q[i].Peer))
		}
	}
	switch {
	case len(p) < len(q):
		return -1
	case len(p) > len(q):
		return 1
	default:
		return 0
	}
}

func (p Position) clone() Position {
	return append(Position(nil), p...)
}

// ID is a character's immutable identity: the peer that created it and
// that peer's logical clock at creation time.
type ID struct {
	Peer  PeerID `json:"peer"`
	Clock uint64 `json:"clock"`
}

// Char is one replicated character.
type Char struct {
	ID       ID       `json:"id"`
	Rune     rune     `json:"rune"`
	Position Position `json:"position"`
}

// Action discriminates operation types.
type Action string

const (
	// ActionInsert adds a character.
	ActionInsert Action = "insert"
	// ActionDelete tombstones a character.
	ActionDelete Action = "delete"
)

// Op is a broadcastable operation. Applying the same op twice is a no-op.
type Op struct {
	Action Action `json:"action"`
	Char   Char   `json:"char"`
}

type entry struct {
	Char
	deleted bool
}

// Doc is one replica of the shared sequence. Safe for concurrent use.
type Doc struct {
	mu    sync.Mutex
	peer  PeerID
	clock uint64

	chars []entry      // ordered by Position, tombstones included
	byID  map[ID]int   // identity -> index in chars
	pre   map[ID]bool  // deletes that arrived before their insert
}

// New creates an empty replica owned by the given peer.
func New(peer PeerID) *Doc {
	return &Doc{
		peer: peer,
		byID: make(map[ID]int),
		pre:  make(map[ID]bool),
	}
}

// SeedPeer owns seeded characters. Seeding is deterministic, so
// replicas seeded from identical text hold identical characters and
// converge without a state transfer.
const SeedPeer PeerID = "!seed"

// Seed creates a replica pre-populated with text.
func Seed(peer PeerID, text string) *Doc {
	d := New(SeedPeer)
	for _, r := range text {
		d.LocalInsert(d.Len(), r)
	}
	d.peer = peer
	return d
}

// Ops snapshots the replica as a replayable op sequence: an insert per
// character (tombstones included) followed by the deletes. Apply is
// idempotent, so replaying a snapshot onto any replica converges it.
func (d *Doc) Ops() []Op {
	d.mu.Lock()
	defer d.mu.Unlock()
	ops := make([]Op, 0, len(d.chars))
	for _, e := range d.chars {
		ops = append(ops, Op{Action: ActionInsert, Char: e.Char})
	}
	for _, e := range d.chars {
		if e.deleted {
			ops = append(ops, Op{Action: ActionDelete, Char: e.Char})
		}
	}
	return ops
}

// Peer returns the owning peer id.
func (d *Doc) Peer() PeerID { return d.peer }

// Len returns the number of visible characters.
func (d *Doc) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, e := range d.chars {
		if !e.deleted {
			n++
		}
	}
	return n
}

// Text linearizes the visible characters.
func (d *Doc) Text() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	var sb strings.Builder
	for _, e := range d.chars {
		if !e.deleted {
			sb.WriteRune(e.Rune)
		}
	}
	return sb.String()
}

// LocalInsert inserts a rune at the visible index, applies it locally
// and returns the op to broadcast. Out-of-range indexes clamp to the
// sequence ends.
func (d *Doc) LocalInsert(index int, r rune) Op {
	d.mu.Lock()
	defer d.mu.Unlock()

	left, right := d.neighborPositions(index)
	d.clock++
	ch := Char{
		ID:       ID{Peer: d.peer, Clock: d.clock},
		Rune:     r,
		Position: d.posBetween(left, right),
	}
	d.insertChar(ch)
	return Op{Action: ActionInsert, Char: ch}
}

// LocalDelete tombstones the character at the visible index and returns
// the op to broadcast. ok is false when the index is out of range.
func (d *Doc) LocalDelete(index int) (Op, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	i, ok := d.visibleIndex(index)
	if !ok {
		return Op{}, false
	}
	d.chars[i].deleted = true
	return Op{Action: ActionDelete, Char: d.chars[i].Char}, true
}

// Apply merges a (typically remote) op. It returns the visible index
// the op took effect at and whether it changed the sequence; duplicate
// ops report applied == false. Apply is commutative with concurrent
// applies on other replicas and idempotent on this one.
func (d *Doc) Apply(op Op) (index int, applied bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if op.Char.ID.Clock > d.clock {
		d.clock = op.Char.ID.Clock
	}

	switch op.Action {
	case ActionInsert:
		if _, exists := d.byID[op.Char.ID]; exists {
			return 0, false
		}
		i := d.insertChar(op.Char)
		if d.pre[op.Char.ID] {
			delete(d.pre, op.Char.ID)
			d.chars[i].deleted = true
			return 0, false
		}
		return d.visibleBefore(i), true

	case ActionDelete:
		i, exists := d.byID[op.Char.ID]
		if !exists {
			// Delete raced ahead of its insert; remember it.
			d.pre[op.Char.ID] = true
			return 0, false
		}
		if d.chars[i].deleted {
			return 0, false
		}
		idx := d.visibleBefore(i)
		d.chars[i].deleted = true
		return idx, true

	default:
		return 0, false
	}
}

// insertChar places a char at its position-ordered index and returns it.
func (d *Doc) insertChar(ch Char) int {
	i := sort.Search(len(d.chars), func(i int) bool {
		return d.chars[i].Position.Compare(ch.Position) >= 0
	})
	d.chars = append(d.chars, entry{})
	copy(d.chars[i+1:], d.chars[i:])
	d.chars[i] = entry{Char: ch}
	for j := i; j < len(d.chars); j++ {
		d.byID[d.chars[j].ID] = j
	}
	return i
}

// visibleIndex maps a visible index to a chars index.
func (d *Doc) visibleIndex(index int) (int, bool) {
	if index < 0 {
		return 0, false
	}
	seen := 0
	for i, e := range d.chars {
		if e.deleted {
			continue
		}
		if seen == index {
			return i, true
		}
		seen++
	}
	return 0, false
}

// visibleBefore counts visible characters before a chars index.
func (d *Doc) visibleBefore(i int) int {
	n := 0
	for j := 0; j < i; j++ {
		if !d.chars[j].deleted {
			n++
		}
	}
	return n
}

// neighborPositions returns the positions bracketing a visible insertion
// index. Nil positions stand for the virtual sequence ends.
func (d *Doc) neighborPositions(index int) (left, right Position) {
	if index < 0 {
		index = 0
	}
	seen := 0
	for _, e := range d.chars {
		if e.deleted {
			continue
		}
		if seen == index {
			right = e.Position
			break
		}
		left = e.Position
		seen++
	}
	if seen < index {
		// Clamp past-the-end inserts to the end.
		right = nil
	}
	return left, right
}

// posBetween allocates a position strictly between p and q. Nil bounds
// stand for the virtual minimum and maximum.
func (d *Doc) posBetween(p, q Position) Position {
	var out Position
	onQ := true
	for depth := 0; ; depth++ {
		lo := Ident{}
		if depth < len(p) {
			lo = p[depth]
		}
		hi := Ident{Pos: maxPos}
		if onQ && depth < len(q) {
			hi = q[depth]
		}

		if hi.Pos-lo.Pos > 1 {
			mid := lo.Pos + (hi.Pos-lo.Pos)/2
			return append(out, Ident{Pos: mid, Peer: d.peer})
		}

		// No room at this level; extend below the lower bound's subtree.
		out = append(out, lo)
		onQ = onQ && depth < len(q) && lo == q[depth]
	}
}
