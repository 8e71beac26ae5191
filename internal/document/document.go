// Package document implements the editing session's document: a list of
// typed blocks mutated exclusively through atomic transactions applied
// at a single dispatch point. The flat text view (textual block contents
// joined by single separators) is the space replication, selections and
// suggestion triggers operate in.
package document

import (
	"errors"
	"sync"
)

// Errors returned by document operations.
var (
	ErrOffsetOutOfRange = errors.New("offset out of range")
	ErrRangeInvalid     = errors.New("invalid range")
	ErrBlockNotFound    = errors.New("block not found")
	ErrKindNotTextual   = errors.New("kind is not textual")
	ErrKindTextual      = errors.New("kind is textual")
	ErrEmptyTransaction = errors.New("empty transaction")
)

// Origin identifies what produced a transaction.
type Origin int

const (
	// OriginLocal is a user edit on this replica.
	OriginLocal Origin = iota
	// OriginRemote is a merge from a remote peer.
	OriginRemote
	// OriginPipeline is a commit from the async mutation pipeline.
	OriginPipeline
)

// String returns a human-readable origin name.
func (o Origin) String() string {
	switch o {
	case OriginLocal:
		return "local"
	case OriginRemote:
		return "remote"
	case OriginPipeline:
		return "pipeline"
	default:
		return "unknown"
	}
}

// Transaction is an atomic batch of ops. Either every op applies or the
// document is untouched.
type Transaction struct {
	Origin Origin
	Ops    []Op
}

// Result describes a committed transaction.
type Result struct {
	Origin   Origin
	Changes  []TextChange
	Revision uint64

	SelectionBefore Selection
	SelectionAfter  Selection
}

// TransactionListener observes committed transactions.
type TransactionListener func(Result)

// SelectionListener observes selection changes, both explicit ones and
// those produced by transactions remapping the selection.
type SelectionListener func(Selection)

// Doc is the editing session's document. All methods are safe for
// concurrent use; mutation happens only through Dispatch.
type Doc struct {
	mu        sync.RWMutex
	blocks    []Block
	nextID    NodeID
	revision  uint64
	selection Selection

	txListeners  []TransactionListener
	selListeners []SelectionListener
}

// New creates a document holding a single empty paragraph.
func New() *Doc {
	return &Doc{
		blocks: []Block{{ID: 1, Kind: KindParagraph}},
		nextID: 2,
	}
}

// NewFromText creates a document from plain text. Newlines become
// paragraph boundaries.
func NewFromText(text string) *Doc {
	d := New()
	if text == "" {
		return d
	}
	if _, err := d.Dispatch(Transaction{Origin: OriginLocal, Ops: []Op{
		InsertText{At: 0, Text: text},
	}}); err != nil {
		// A fresh document accepts any insert at offset 0.
		panic(err)
	}
	return d
}

// Dispatch applies a transaction atomically. On success the revision
// advances, the selection is remapped across the text changes, and
// transaction listeners run. On failure the document is unchanged.
func (d *Doc) Dispatch(tx Transaction) (Result, error) {
	if len(tx.Ops) == 0 {
		return Result{}, ErrEmptyTransaction
	}

	d.mu.Lock()
	st := &txState{blocks: cloneBlocks(d.blocks), nextID: d.nextID}
	for _, op := range tx.Ops {
		if err := op.apply(st); err != nil {
			d.mu.Unlock()
			return Result{}, err
		}
	}

	before := d.selection
	after := remapSelection(before, st.changes)

	d.blocks = st.blocks
	d.nextID = st.nextID
	d.revision++
	d.selection = after

	res := Result{
		Origin:          tx.Origin,
		Changes:         st.changes,
		Revision:        d.revision,
		SelectionBefore: before,
		SelectionAfter:  after,
	}
	txListeners := append([]TransactionListener(nil), d.txListeners...)
	selListeners := append([]SelectionListener(nil), d.selListeners...)
	d.mu.Unlock()

	for _, fn := range txListeners {
		fn(res)
	}
	if after != before {
		for _, fn := range selListeners {
			fn(after)
		}
	}
	return res, nil
}

// SetSelection moves the selection without a transaction (cursor motion,
// mouse click). Out-of-range offsets clamp to the document.
func (d *Doc) SetSelection(sel Selection) {
	d.mu.Lock()
	max := Offset(runeLen(flatten(d.blocks)))
	sel.Anchor = clampOffset(sel.Anchor, max)
	sel.Head = clampOffset(sel.Head, max)
	changed := sel != d.selection
	d.selection = sel
	listeners := append([]SelectionListener(nil), d.selListeners...)
	d.mu.Unlock()

	if !changed {
		return
	}
	for _, fn := range listeners {
		fn(sel)
	}
}

// Selection returns the current selection.
func (d *Doc) Selection() Selection {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.selection
}

// Revision returns the current revision counter.
func (d *Doc) Revision() uint64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.revision
}

// Text returns the flat text: textual block contents joined by single
// newline separators. This is also the plain-text serialization used
// for AI context gathering.
func (d *Doc) Text() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return flatten(d.blocks)
}

// TextRange returns the flat text within the span.
func (d *Doc) TextRange(span Span) (string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	flat := []rune(flatten(d.blocks))
	if span.Start < 0 || span.Start > span.End || int(span.End) > len(flat) {
		return "", ErrRangeInvalid
	}
	return string(flat[span.Start:span.End]), nil
}

// Blocks returns a copy of the block list.
func (d *Doc) Blocks() []Block {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return cloneBlocks(d.blocks)
}

// BlockByID returns the block with the given id.
func (d *Doc) BlockByID(id NodeID) (Block, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, b := range d.blocks {
		if b.ID == id {
			return b.clone(), true
		}
	}
	return Block{}, false
}

// BlockAt returns the block containing the flat offset.
func (d *Doc) BlockAt(off Offset) (Block, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	loc, ok := d.locate(off)
	if !ok {
		return Block{}, false
	}
	return d.blocks[loc.block].clone(), true
}

// BlockSpan returns the flat span covered by a textual block's content.
func (d *Doc) BlockSpan(id NodeID) (Span, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	cum := 0
	seen := false
	for _, b := range d.blocks {
		if !b.Kind.Textual() {
			continue
		}
		if seen {
			cum++
		}
		n := runeLen(b.Text)
		if b.ID == id {
			return Span{Start: Offset(cum), End: Offset(cum + n)}, true
		}
		cum += n
		seen = true
	}
	return Span{}, false
}

// OnTransaction registers a transaction listener. Listeners run after
// commit, outside the document lock, in registration order.
func (d *Doc) OnTransaction(fn TransactionListener) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.txListeners = append(d.txListeners, fn)
}

// OnSelection registers a selection listener.
func (d *Doc) OnSelection(fn SelectionListener) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.selListeners = append(d.selListeners, fn)
}

// remapSelection maps a selection through a sequence of text changes.
func remapSelection(sel Selection, changes []TextChange) Selection {
	for _, ch := range changes {
		sel.Anchor = remapOffset(sel.Anchor, ch)
		sel.Head = remapOffset(sel.Head, ch)
	}
	return sel
}

// remapOffset maps one offset through one change. Offsets inside a
// deleted range collapse to its start; offsets at or after an insertion
// point shift right.
func remapOffset(off Offset, ch TextChange) Offset {
	delLen := Offset(runeLen(ch.Deleted))
	insLen := Offset(runeLen(ch.Inserted))

	if delLen > 0 {
		end := ch.At + delLen
		switch {
		case off >= end:
			off -= delLen
		case off > ch.At:
			off = ch.At
		}
	}
	if insLen > 0 && off >= ch.At {
		off += insLen
	}
	return off
}

func clampOffset(off, max Offset) Offset {
	if off < 0 {
		return 0
	}
	if off > max {
		return max
	}
	return off
}
