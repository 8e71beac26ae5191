package document

import (
	"fmt"
	"strings"
)

// TextChange describes one contiguous flat-text mutation. Offsets are
// relative to the document state immediately before this change, so a
// transaction's changes replay sequentially.
type TextChange struct {
	At       Offset
	Deleted  string
	Inserted string
}

// Op is a single document mutation. Ops are applied in order within a
// transaction; each op addresses the state produced by the ops before it.
type Op interface {
	apply(st *txState) error
}

// txState is the working state a transaction mutates. The document
// commits it atomically after every op succeeds.
type txState struct {
	blocks  []Block
	nextID  NodeID
	changes []TextChange
}

func (st *txState) newID() NodeID {
	id := st.nextID
	st.nextID++
	return id
}

// InsertText inserts text at a flat offset. A newline splits the target
// block, except inside code blocks where it becomes literal content.
type InsertText struct {
	At   Offset
	Text string
}

func (op InsertText) apply(st *txState) error {
	if op.Text == "" {
		return nil
	}
	if err := insertFlat(st, op.At, op.Text); err != nil {
		return err
	}
	st.changes = append(st.changes, TextChange{At: op.At, Inserted: op.Text})
	return nil
}

// DeleteRange removes the flat text in Range. Deleting across a block
// boundary merges the surrounding blocks; the first block's kind wins.
// An empty range is a no-op.
type DeleteRange struct {
	Range Span
}

func (op DeleteRange) apply(st *txState) error {
	if op.Range.IsEmpty() {
		return nil
	}
	deleted, err := deleteFlat(st, op.Range)
	if err != nil {
		return err
	}
	st.changes = append(st.changes, TextChange{At: op.Range.Start, Deleted: deleted})
	return nil
}

// ReplaceRange atomically replaces the flat text in Range with Text.
type ReplaceRange struct {
	Range Span
	Text  string
}

func (op ReplaceRange) apply(st *txState) error {
	deleted := ""
	if !op.Range.IsEmpty() {
		var err error
		deleted, err = deleteFlat(st, op.Range)
		if err != nil {
			return err
		}
	}
	if op.Text != "" {
		if err := insertFlat(st, op.Range.Start, op.Text); err != nil {
			return err
		}
	}
	if deleted == "" && op.Text == "" {
		return nil
	}
	st.changes = append(st.changes, TextChange{At: op.Range.Start, Deleted: deleted, Inserted: op.Text})
	return nil
}

// SetBlockType converts the block containing At to the given textual
// kind, replacing its attributes. Converting away from a code block
// splits its internal newlines into separate blocks, which leaves the
// flat text untouched.
type SetBlockType struct {
	At    Offset
	Kind  BlockKind
	Attrs map[string]any
}

func (op SetBlockType) apply(st *txState) error {
	if !op.Kind.Textual() {
		return fmt.Errorf("%w: %s", ErrKindNotTextual, op.Kind)
	}
	loc, ok := locateIn(st.blocks, op.At)
	if !ok {
		return ErrOffsetOutOfRange
	}

	b := &st.blocks[loc.block]
	b.Kind = op.Kind
	b.Attrs = cloneAttrs(op.Attrs)

	if op.Kind != KindCodeBlock && strings.ContainsRune(b.Text, '\n') {
		lines := strings.Split(b.Text, "\n")
		b.Text = lines[0]
		extra := make([]Block, 0, len(lines)-1)
		for _, line := range lines[1:] {
			extra = append(extra, Block{
				ID:    st.newID(),
				Kind:  op.Kind,
				Text:  line,
				Attrs: cloneAttrs(op.Attrs),
			})
		}
		st.blocks = spliceBlocks(st.blocks, loc.block+1, 0, extra...)
	}
	return nil
}

// InsertObject places a non-textual block (divider, image, table) after
// the block containing At. Non-textual blocks have zero flat width, so
// this is invisible to replication.
type InsertObject struct {
	At    Offset
	Kind  BlockKind
	Attrs map[string]any
}

func (op InsertObject) apply(st *txState) error {
	if op.Kind.Textual() {
		return fmt.Errorf("%w: %s", ErrKindTextual, op.Kind)
	}
	loc, ok := locateIn(st.blocks, op.At)
	if !ok {
		return ErrOffsetOutOfRange
	}
	obj := Block{ID: st.newID(), Kind: op.Kind, Attrs: cloneAttrs(op.Attrs)}
	st.blocks = spliceBlocks(st.blocks, loc.block+1, 0, obj)
	return nil
}

// SetAttr sets one attribute on a block. A nil value removes the key.
type SetAttr struct {
	Block NodeID
	Key   string
	Value any
}

func (op SetAttr) apply(st *txState) error {
	for i := range st.blocks {
		if st.blocks[i].ID != op.Block {
			continue
		}
		if op.Value == nil {
			delete(st.blocks[i].Attrs, op.Key)
			return nil
		}
		if st.blocks[i].Attrs == nil {
			st.blocks[i].Attrs = make(map[string]any, 1)
		}
		st.blocks[i].Attrs[op.Key] = op.Value
		return nil
	}
	return ErrBlockNotFound
}

// RemoveBlock deletes a block. Removing a textual block also removes its
// flat text and one adjacent separator; the last remaining textual block
// is cleared to an empty paragraph instead, keeping the document
// editable.
type RemoveBlock struct {
	Block NodeID
}

func (op RemoveBlock) apply(st *txState) error {
	idx := -1
	for i := range st.blocks {
		if st.blocks[i].ID == op.Block {
			idx = i
			break
		}
	}
	if idx < 0 {
		return ErrBlockNotFound
	}

	b := st.blocks[idx]
	if !b.Kind.Textual() {
		st.blocks = spliceBlocks(st.blocks, idx, 1)
		return nil
	}

	span, only := textualSpan(st.blocks, idx)
	if only {
		if b.Text == "" {
			st.blocks[idx].Kind = KindParagraph
			st.blocks[idx].Attrs = nil
			return nil
		}
		deleted, err := deleteFlat(st, span)
		if err != nil {
			return err
		}
		st.blocks[idx].Kind = KindParagraph
		st.blocks[idx].Attrs = nil
		st.changes = append(st.changes, TextChange{At: span.Start, Deleted: deleted})
		return nil
	}

	deleted, err := deleteFlat(st, span)
	if err != nil {
		return err
	}
	st.changes = append(st.changes, TextChange{At: span.Start, Deleted: deleted})
	return nil
}

// textualSpan returns the flat span covering a textual block plus one
// adjacent separator: the following one normally, the preceding one for
// the final textual block. only reports that no other textual block
// exists, in which case the span covers just the block's text.
func textualSpan(blocks []Block, idx int) (Span, bool) {
	start := 0
	seen := false
	for i := 0; i < idx; i++ {
		if !blocks[i].Kind.Textual() {
			continue
		}
		if seen {
			start++
		}
		start += runeLen(blocks[i].Text)
		seen = true
	}
	if seen {
		start++ // separator before this block
	}
	n := runeLen(blocks[idx].Text)

	after := false
	for i := idx + 1; i < len(blocks); i++ {
		if blocks[i].Kind.Textual() {
			after = true
			break
		}
	}

	switch {
	case after:
		return Span{Start: Offset(start), End: Offset(start + n + 1)}, false
	case seen:
		return Span{Start: Offset(start - 1), End: Offset(start + n)}, false
	default:
		return Span{Start: Offset(start), End: Offset(start + n)}, true
	}
}

// locateIn resolves a flat offset against a block slice. See Doc.locate.
func locateIn(blocks []Block, off Offset) (location, bool) {
	if off < 0 {
		return location{}, false
	}
	cum := 0
	seen := false
	for i, b := range blocks {
		if !b.Kind.Textual() {
			continue
		}
		if seen {
			cum++
		}
		n := runeLen(b.Text)
		if int(off) >= cum && int(off) <= cum+n {
			return location{block: i, off: int(off) - cum}, true
		}
		cum += n
		seen = true
	}
	return location{}, false
}

// insertFlat splices text into the working state at a flat offset.
func insertFlat(st *txState, at Offset, text string) error {
	loc, ok := locateIn(st.blocks, at)
	if !ok {
		return ErrOffsetOutOfRange
	}

	b := &st.blocks[loc.block]
	cur := []rune(b.Text)
	head := string(cur[:loc.off])
	tail := string(cur[loc.off:])

	if b.Kind == KindCodeBlock || !strings.ContainsRune(text, '\n') {
		b.Text = head + text + tail
		return nil
	}

	segs := strings.Split(text, "\n")
	b.Text = head + segs[0]

	src := *b
	extra := make([]Block, 0, len(segs)-1)
	for i, seg := range segs[1:] {
		last := i == len(segs)-2
		body := seg
		if last {
			body += tail
		}
		extra = append(extra, Block{
			ID:    st.newID(),
			Kind:  continuationKind(src, body),
			Text:  body,
			Attrs: continuationAttrs(src, body),
		})
	}
	st.blocks = spliceBlocks(st.blocks, loc.block+1, 0, extra...)
	return nil
}

// continuationKind decides the kind of a block produced by a split.
// List items continue their kind; other kinds continue only when the new
// block carries text, matching the usual editor behavior of Enter at the
// end of a heading producing a paragraph.
func continuationKind(src Block, body string) BlockKind {
	if src.Kind.continuesOnSplit() {
		return src.Kind
	}
	if body == "" {
		return KindParagraph
	}
	return src.Kind
}

func continuationAttrs(src Block, body string) map[string]any {
	if continuationKind(src, body) == src.Kind {
		attrs := cloneAttrs(src.Attrs)
		// A continued task item starts unchecked.
		if src.Kind == KindTaskItem && attrs != nil {
			delete(attrs, "checked")
		}
		return attrs
	}
	return nil
}

// deleteFlat removes a flat span from the working state and returns the
// deleted text. Cross-block deletes merge the first and last blocks and
// drop everything between, including anchored non-textual blocks.
func deleteFlat(st *txState, span Span) (string, error) {
	if span.Start < 0 || span.Start > span.End {
		return "", ErrRangeInvalid
	}
	start, ok := locateIn(st.blocks, span.Start)
	if !ok {
		return "", ErrRangeInvalid
	}
	end, ok := locateIn(st.blocks, span.End)
	if !ok {
		return "", ErrRangeInvalid
	}

	flat := []rune(flatten(st.blocks))
	deleted := string(flat[span.Start:span.End])

	if start.block == end.block {
		cur := []rune(st.blocks[start.block].Text)
		st.blocks[start.block].Text = string(cur[:start.off]) + string(cur[end.off:])
		return deleted, nil
	}

	first := []rune(st.blocks[start.block].Text)
	last := []rune(st.blocks[end.block].Text)
	st.blocks[start.block].Text = string(first[:start.off]) + string(last[end.off:])
	st.blocks = spliceBlocks(st.blocks, start.block+1, end.block-start.block)
	return deleted, nil
}

func spliceBlocks(blocks []Block, at, del int, insert ...Block) []Block {
	out := make([]Block, 0, len(blocks)-del+len(insert))
	out = append(out, blocks[:at]...)
	out = append(out, insert...)
	out = append(out, blocks[at+del:]...)
	return out
}
