// Package suggest implements the trigger-driven suggestion state
// machine behind the slash menu and emoji picker: a trigger character
// typed at a valid position opens a session, further typing grows the
// query and re-filters candidates, and a small keyboard alphabet
// navigates and consumes the list.
//
// The machine is an explicit two-state FSM (idle, active) with entry and
// exit hooks. Every engine instance owns its session state, so several
// instances with distinct triggers coexist on one document without
// interference.
package suggest

import (
	"strings"
	"sync"

	"github.com/tmarten/inkwell/internal/document"
)

// Item is one suggestion candidate.
type Item struct {
	ID          string
	Title       string
	Description string
	Keywords    []string

	// Run consumes the item: it receives the trigger span (trigger
	// character through cursor) and performs the item's action.
	Run func(span document.Span)
}

// Source produces the ordered candidate list for a query. Sources
// typically filter a fixed catalog with FilterItems.
type Source func(query string) []Item

// Key is the keyboard alphabet the engine handles.
type Key int

const (
	// KeyOther is any key the engine does not handle.
	KeyOther Key = iota
	// KeyEscape dismisses the session.
	KeyEscape
	// KeyArrowUp moves the selection up, wrapping.
	KeyArrowUp
	// KeyArrowDown moves the selection down, wrapping.
	KeyArrowDown
	// KeyEnter consumes the selected item.
	KeyEnter
)

// Placement is where the host should draw the popup.
type Placement struct {
	Rect    document.Rect
	Visible bool
}

// Session is a read-only snapshot of an active suggestion session.
type Session struct {
	Trigger   rune
	Anchor    document.Offset // flat offset of the trigger character
	Query     string
	Items     []Item
	Selected  int
	Placement Placement
}

// Span returns the trigger span: trigger character through the end of
// the query.
func (s Session) Span() document.Span {
	return document.Span{
		Start: s.Anchor,
		End:   s.Anchor + 1 + document.Offset(len([]rune(s.Query))),
	}
}

// Config configures one engine instance.
type Config struct {
	// Name identifies the instance (logging, debugging).
	Name string

	// Char is the trigger character.
	Char rune

	// StartOfLine restricts triggering to the first position of a block.
	StartOfLine bool

	// AllowSpaces lets the query contain spaces.
	AllowSpaces bool

	// Source produces candidates for a query.
	Source Source

	// Mapper positions the popup; nil leaves placement invisible.
	Mapper document.CaretMapper

	// OnOpen, OnUpdate and OnClose are the FSM's entry, update and
	// exit actions; the host popup renders from them.
	OnOpen   func(Session)
	OnUpdate func(Session)
	OnClose  func()
}

// Engine is one configured suggestion instance bound to a document.
type Engine struct {
	mu      sync.Mutex
	cfg     Config
	doc     *document.Doc
	session *Session // nil while idle
}

// New creates an engine for the document. Call Update on every
// transaction and selection change so the engine can open, refresh or
// close its session.
func New(doc *document.Doc, cfg Config) *Engine {
	return &Engine{cfg: cfg, doc: doc}
}

// Name returns the configured instance name.
func (e *Engine) Name() string { return e.cfg.Name }

// Active reports whether a session is open.
func (e *Engine) Active() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session != nil
}

// Session returns a snapshot of the active session.
func (e *Engine) Session() (Session, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session == nil {
		return Session{}, false
	}
	return e.snapshotLocked(), true
}

func (e *Engine) snapshotLocked() Session {
	s := *e.session
	s.Items = append([]Item(nil), s.Items...)
	return s
}

// Update re-derives the session from the document state. A valid
// trigger context at the cursor opens or refreshes the session; anything
// else (cursor left the trigger span, range selection, trigger text
// edited away) closes it.
func (e *Engine) Update() {
	e.mu.Lock()

	match, ok := e.findMatch()
	if !ok {
		e.closeLocked()
		e.mu.Unlock()
		return
	}

	switch {
	case e.session == nil:
		e.session = &Session{
			Trigger:  e.cfg.Char,
			Anchor:   match.anchor,
			Query:    match.query,
			Items:    e.items(match.query),
			Selected: 0,
		}
		e.session.Placement = e.placement()
		snap := e.snapshotLocked()
		onOpen := e.cfg.OnOpen
		e.mu.Unlock()
		if onOpen != nil {
			onOpen(snap)
		}

	case e.session.Anchor != match.anchor:
		// A different trigger context; restart the session.
		e.closeLocked()
		e.mu.Unlock()
		e.Update()

	default:
		if e.session.Query != match.query {
			e.session.Query = match.query
			e.session.Items = e.items(match.query)
			e.session.Selected = 0
		}
		e.session.Placement = e.placement()
		snap := e.snapshotLocked()
		onUpdate := e.cfg.OnUpdate
		e.mu.Unlock()
		if onUpdate != nil {
			onUpdate(snap)
		}
	}
}

// HandleKey processes one key. It reports whether the engine consumed
// the key; unconsumed keys fall through to normal text input.
func (e *Engine) HandleKey(k Key) bool {
	e.mu.Lock()

	if e.session == nil {
		e.mu.Unlock()
		return false
	}

	switch k {
	case KeyEscape:
		e.closeLocked()
		e.mu.Unlock()
		return true

	case KeyArrowUp, KeyArrowDown:
		n := len(e.session.Items)
		if n == 0 {
			e.mu.Unlock()
			return false
		}
		delta := 1
		if k == KeyArrowUp {
			delta = -1
		}
		e.session.Selected = (e.session.Selected + delta + n) % n
		snap := e.snapshotLocked()
		onUpdate := e.cfg.OnUpdate
		e.mu.Unlock()
		if onUpdate != nil {
			onUpdate(snap)
		}
		return true

	case KeyEnter:
		if len(e.session.Items) == 0 {
			// Swallow Enter while the (empty) popup is open.
			e.mu.Unlock()
			return true
		}
		item := e.session.Items[e.session.Selected]
		span := e.session.Span()
		e.closeLocked()
		e.mu.Unlock()
		if item.Run != nil {
			item.Run(span)
		}
		return true

	default:
		e.mu.Unlock()
		return false
	}
}

// Dismiss closes any active session.
func (e *Engine) Dismiss() {
	e.mu.Lock()
	e.closeLocked()
	e.mu.Unlock()
}

// closeLocked is the FSM exit action. Caller holds e.mu; the OnClose
// hook runs inline because hosts only tear down popup state there.
func (e *Engine) closeLocked() {
	if e.session == nil {
		return
	}
	e.session = nil
	if e.cfg.OnClose != nil {
		e.cfg.OnClose()
	}
}

func (e *Engine) items(query string) []Item {
	if e.cfg.Source == nil {
		return nil
	}
	return e.cfg.Source(query)
}

func (e *Engine) placement() Placement {
	if e.cfg.Mapper == nil {
		return Placement{}
	}
	rect, ok := e.cfg.Mapper.CaretRect(e.doc, e.doc.Selection().Head)
	if !ok {
		return Placement{}
	}
	return Placement{Rect: rect, Visible: true}
}

// match describes a trigger context found at the cursor.
type match struct {
	anchor document.Offset
	query  string
}

// findMatch scans the cursor's block for a trigger character whose
// positional constraints hold and whose query runs unbroken to the
// cursor.
func (e *Engine) findMatch() (match, bool) {
	sel := e.doc.Selection()
	if !sel.IsCaret() {
		return match{}, false
	}

	block, ok := e.doc.BlockAt(sel.Head)
	if !ok || !block.Kind.Textual() || block.Kind == document.KindCodeBlock {
		return match{}, false
	}
	span, ok := e.doc.BlockSpan(block.ID)
	if !ok || !span.Contains(sel.Head) {
		return match{}, false
	}

	text := []rune(block.Text)
	cursor := int(sel.Head - span.Start)
	if cursor > len(text) {
		return match{}, false
	}

	// The trigger is the nearest preceding trigger character with an
	// unbroken query run up to the cursor.
	for i := cursor - 1; i >= 0; i-- {
		r := text[i]
		if r == e.cfg.Char {
			if e.cfg.StartOfLine && i != 0 {
				return match{}, false
			}
			if i > 0 && !isSpace(text[i-1]) {
				// Mid-word trigger characters don't fire.
				return match{}, false
			}
			return match{
				anchor: span.Start + document.Offset(i),
				query:  string(text[i+1 : cursor]),
			}, true
		}
		if isSpace(r) && !e.cfg.AllowSpaces {
			return match{}, false
		}
		if r == '\n' {
			return match{}, false
		}
	}
	return match{}, false
}

// FilterItems returns the items whose combined searchable text contains
// the query, case-insensitively, preserving input order. An empty query
// returns the input unchanged.
func FilterItems(items []Item, query string) []Item {
	q := NormalizeQuery(query)
	if q == "" {
		return items
	}

	out := make([]Item, 0, len(items))
	for _, item := range items {
		parts := append([]string{item.Title, item.Description}, item.Keywords...)
		haystack := strings.ToLower(strings.Join(parts, " "))
		if strings.Contains(haystack, q) {
			out = append(out, item)
		}
	}
	return out
}

// NormalizeQuery trims and lowercases a query.
func NormalizeQuery(query string) string {
	return strings.ToLower(strings.TrimSpace(query))
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\t'
}
