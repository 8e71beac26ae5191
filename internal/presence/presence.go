// Package presence tracks remote collaborator identities and cursor
// state and turns them into drawable indicators. Each collaborator
// carries a display name and a color; remote selections render as a
// tinted range with a labeled caret.
package presence

import (
	"fmt"
	"hash/fnv"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lucasb-eyer/go-colorful"

	"github.com/tmarten/inkwell/internal/document"
)

// Palette is the default identity palette. ColorFor picks from it by
// name hash so a collaborator keeps the same color across sessions.
var Palette = []string{"#ef4444", "#22c55e", "#3b82f6", "#a855f7", "#f59e0b"}

// Identity is who a collaborator appears as.
type Identity struct {
	Name  string `json:"name"`
	Color string `json:"color"`
}

// NewIdentity builds an identity, filling in defaults: a blank name
// becomes "anonymous-" plus a short random suffix, and a missing or
// unparseable color is picked from the palette by name hash.
func NewIdentity(name, color string) Identity {
	if name == "" {
		name = "anonymous-" + uuid.NewString()[:8]
	}
	if _, err := colorful.Hex(color); err != nil {
		color = ColorFor(name)
	}
	return Identity{Name: name, Color: color}
}

// ColorFor deterministically picks a palette color for a name.
func ColorFor(name string) string {
	h := fnv.New32a()
	h.Write([]byte(name))
	return Palette[int(h.Sum32())%len(Palette)]
}

// SelectionTint returns the identity color lightened and desaturated
// for use as a selection highlight behind text.
func SelectionTint(hex string) string {
	c, err := colorful.Hex(hex)
	if err != nil {
		c, _ = colorful.Hex(Palette[0])
	}
	h, s, l := c.Hsl()
	return colorful.Hsl(h, s*0.6, l+(1-l)*0.7).Hex()
}

// State is one collaborator's broadcast presence: identity plus current
// selection in flat document offsets.
type State struct {
	Identity  Identity           `json:"identity"`
	Selection document.Selection `json:"selection"`
}

// Entry is a tracked remote collaborator.
type Entry struct {
	Peer     string
	State    State
	LastSeen time.Time
}

// Indicator is a drawable remote cursor: a caret rectangle, an optional
// tinted selection span, and the label to draw beside the caret.
type Indicator struct {
	Peer      string
	Name      string
	Color     string
	Tint      string
	Caret     document.Rect
	Selection document.Span
	HasRange  bool
}

// GraceWindow is how long a silent peer stays visible before pruning.
const GraceWindow = 30 * time.Second

// Tracker holds the remote presence table. Local presence is never
// tracked here; the collab session broadcasts it directly.
type Tracker struct {
	mu      sync.RWMutex
	entries map[string]*Entry
	now     func() time.Time
	grace   time.Duration
}

// NewTracker returns an empty tracker with the default grace window.
func NewTracker() *Tracker {
	return &Tracker{
		entries: make(map[string]*Entry),
		now:     time.Now,
		grace:   GraceWindow,
	}
}

// Observe records a presence update from a peer, refreshing its
// last-seen time.
func (t *Tracker) Observe(peer string, st State) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries[peer] = &Entry{Peer: peer, State: st, LastSeen: t.now()}
}

// Remove drops a peer immediately (clean disconnect).
func (t *Tracker) Remove(peer string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.entries, peer)
}

// Clear drops every peer (collaboration disabled).
func (t *Tracker) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = make(map[string]*Entry)
}

// Prune drops peers silent for longer than the grace window and returns
// how many were removed.
func (t *Tracker) Prune() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	cutoff := t.now().Add(-t.grace)
	removed := 0
	for peer, e := range t.entries {
		if e.LastSeen.Before(cutoff) {
			delete(t.entries, peer)
			removed++
		}
	}
	return removed
}

// Entries returns the tracked peers ordered by peer id. Peers silent
// past the grace window are pruned first, so a peer that vanished
// without a leave message drops out of every read path.
func (t *Tracker) Entries() []Entry {
	t.Prune()
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Entry, 0, len(t.entries))
	for _, e := range t.entries {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Peer < out[j].Peer })
	return out
}

// Count returns the number of tracked peers.
func (t *Tracker) Count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

// Indicators maps the tracked peers onto the document as drawable
// cursors. Offsets beyond the current document clamp to the end, so a
// stale remote selection still draws somewhere sensible.
func (t *Tracker) Indicators(d *document.Doc, mapper document.CaretMapper) []Indicator {
	entries := t.Entries()
	out := make([]Indicator, 0, len(entries))
	end := d.Len()
	for _, e := range entries {
		sel := e.State.Selection
		if sel.Anchor > end {
			sel.Anchor = end
		}
		if sel.Head > end {
			sel.Head = end
		}
		rect, ok := mapper.CaretRect(d, sel.Head)
		if !ok {
			continue
		}
		ind := Indicator{
			Peer:  e.Peer,
			Name:  e.State.Identity.Name,
			Color: e.State.Identity.Color,
			Tint:  SelectionTint(e.State.Identity.Color),
			Caret: rect,
		}
		if !sel.IsCaret() {
			ind.Selection = sel.Span()
			ind.HasRange = true
		}
		out = append(out, ind)
	}
	return out
}

// String implements fmt.Stringer for logging.
func (e Entry) String() string {
	return fmt.Sprintf("%s(%s)", e.State.Identity.Name, e.Peer)
}
