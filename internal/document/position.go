package document

import "github.com/rivo/uniseg"

// Offset is a rune offset into the document's flat text.
type Offset int

// Span is a half-open [Start, End) range in flat text space.
type Span struct {
	Start Offset
	End   Offset
}

// Len returns the span length in runes.
func (s Span) Len() int { return int(s.End - s.Start) }

// IsEmpty reports whether the span covers no text.
func (s Span) IsEmpty() bool { return s.Start >= s.End }

// Contains reports whether the offset falls inside the span, treating
// both endpoints as inside. Trigger tracking uses the closed form so a
// cursor sitting right after the last query rune still counts.
func (s Span) Contains(off Offset) bool { return off >= s.Start && off <= s.End }

// Selection is an anchor/head pair in flat text space. Anchor is where
// the selection started; Head is where the cursor is.
type Selection struct {
	Anchor Offset
	Head   Offset
}

// Caret returns a collapsed selection at the given offset.
func Caret(off Offset) Selection { return Selection{Anchor: off, Head: off} }

// Span returns the normalized extent of the selection.
func (s Selection) Span() Span {
	if s.Anchor <= s.Head {
		return Span{Start: s.Anchor, End: s.Head}
	}
	return Span{Start: s.Head, End: s.Anchor}
}

// IsCaret reports whether the selection is collapsed.
func (s Selection) IsCaret() bool { return s.Anchor == s.Head }

// location identifies a rune position within a specific block.
type location struct {
	block int // index into d.blocks
	off   int // rune offset within the block's text
}

// locate resolves a flat offset to a block and in-block offset.
// Only textual blocks occupy flat space; a single separator sits between
// consecutive textual blocks. An offset equal to a block's end resolves
// to that block, not the start of the next.
func (d *Doc) locate(off Offset) (location, bool) {
	if off < 0 {
		return location{}, false
	}
	cum := 0
	lastTextual := -1
	for i, b := range d.blocks {
		if !b.Kind.Textual() {
			continue
		}
		if lastTextual >= 0 {
			cum++ // separator
		}
		n := runeLen(b.Text)
		if int(off) <= cum+n && int(off) >= cum {
			return location{block: i, off: int(off) - cum}, true
		}
		cum += n
		lastTextual = i
	}
	return location{}, false
}

// Len returns the length of the flat text in runes.
func (d *Doc) Len() Offset {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return Offset(runeLen(flatten(d.blocks)))
}

// LineColumn converts a flat offset to a zero-based visual line and a
// grapheme-cluster column. Each textual block starts a new line; code
// block newlines start further lines within the block.
func (d *Doc) LineColumn(off Offset) (line, col int, ok bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	loc, ok := d.locate(off)
	if !ok {
		return 0, 0, false
	}

	for i := 0; i < loc.block; i++ {
		b := d.blocks[i]
		if !b.Kind.Textual() {
			line++ // non-textual blocks occupy one visual line
			continue
		}
		line += 1 + countRune(b.Text, '\n')
	}

	text := []rune(d.blocks[loc.block].Text)
	lineStart := 0
	for i := 0; i < loc.off; i++ {
		if text[i] == '\n' {
			line++
			lineStart = i + 1
		}
	}

	col = uniseg.GraphemeClusterCount(string(text[lineStart:loc.off]))
	return line, col, true
}

// Rect is a screen rectangle in the host's coordinate space.
type Rect struct {
	X      float64
	Y      float64
	Width  float64
	Height float64
}

// CaretMapper maps a flat offset to the screen rectangle of the caret at
// that position. The host rendering layer provides the real mapping;
// GridMapper serves headless hosts and tests.
type CaretMapper interface {
	CaretRect(d *Doc, off Offset) (Rect, bool)
}

// GridMapper maps positions onto a fixed character grid. Columns are
// grapheme clusters, so multi-rune emoji occupy one cell.
type GridMapper struct {
	OriginX    float64
	OriginY    float64
	CellWidth  float64
	LineHeight float64
}

// DefaultGridMapper returns a mapper with a conventional cell size.
func DefaultGridMapper() GridMapper {
	return GridMapper{CellWidth: 8, LineHeight: 16}
}

// CaretRect implements CaretMapper.
func (m GridMapper) CaretRect(d *Doc, off Offset) (Rect, bool) {
	line, col, ok := d.LineColumn(off)
	if !ok {
		return Rect{}, false
	}
	return Rect{
		X:      m.OriginX + float64(col)*m.CellWidth,
		Y:      m.OriginY + float64(line)*m.LineHeight,
		Width:  m.CellWidth,
		Height: m.LineHeight,
	}, true
}

func runeLen(s string) int {
	n := 0
	for range s {
		n++
	}
	return n
}

func countRune(s string, r rune) int {
	n := 0
	for _, c := range s {
		if c == r {
			n++
		}
	}
	return n
}

// flatten joins the textual blocks with single separators.
func flatten(blocks []Block) string {
	out := ""
	first := true
	for _, b := range blocks {
		if !b.Kind.Textual() {
			continue
		}
		if !first {
			out += "\n"
		}
		out += b.Text
		first = false
	}
	return out
}
