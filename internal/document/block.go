package document

// NodeID uniquely identifies a block within a document.
// IDs are never reused for the lifetime of the document.
type NodeID uint64

// BlockKind identifies the semantic type of a block.
type BlockKind int

const (
	// KindParagraph is plain body text.
	KindParagraph BlockKind = iota
	// KindHeading is a heading; the level lives in the "level" attribute.
	KindHeading
	// KindBulletItem is an unordered list item.
	KindBulletItem
	// KindOrderedItem is an ordered list item.
	KindOrderedItem
	// KindTaskItem is a to-do item; the "checked" attribute holds its state.
	KindTaskItem
	// KindBlockquote is quoted text.
	KindBlockquote
	// KindCodeBlock is preformatted code; "language", "theme" and
	// "collapsed" attributes configure it. Code blocks may contain
	// newlines in their text.
	KindCodeBlock
	// KindDivider is a horizontal rule. Non-textual.
	KindDivider
	// KindImage is an embedded image; the "src" attribute holds the URL.
	// Non-textual.
	KindImage
	// KindTable is a table; "rows", "cols" and "header" attributes
	// describe its shape. Non-textual.
	KindTable
)

// String returns a human-readable kind name.
func (k BlockKind) String() string {
	switch k {
	case KindParagraph:
		return "paragraph"
	case KindHeading:
		return "heading"
	case KindBulletItem:
		return "bulletItem"
	case KindOrderedItem:
		return "orderedItem"
	case KindTaskItem:
		return "taskItem"
	case KindBlockquote:
		return "blockquote"
	case KindCodeBlock:
		return "codeBlock"
	case KindDivider:
		return "divider"
	case KindImage:
		return "image"
	case KindTable:
		return "table"
	default:
		return "unknown"
	}
}

// Textual reports whether blocks of this kind carry editable text and
// therefore occupy space in the document's flat text.
func (k BlockKind) Textual() bool {
	switch k {
	case KindDivider, KindImage, KindTable:
		return false
	default:
		return true
	}
}

// continuesOnSplit reports whether splitting a block of this kind
// produces another block of the same kind (list items) or falls back
// to a paragraph.
func (k BlockKind) continuesOnSplit() bool {
	switch k {
	case KindBulletItem, KindOrderedItem, KindTaskItem:
		return true
	default:
		return false
	}
}

// Block is a single node in the document tree. Non-textual blocks have
// empty Text and zero width in the flat text; they anchor between the
// surrounding textual blocks.
type Block struct {
	ID    NodeID
	Kind  BlockKind
	Text  string
	Attrs map[string]any
}

// Attr returns the named attribute, or nil when absent.
func (b Block) Attr(key string) any {
	if b.Attrs == nil {
		return nil
	}
	return b.Attrs[key]
}

// cloneAttrs copies an attribute map. Nil stays nil.
func cloneAttrs(attrs map[string]any) map[string]any {
	if attrs == nil {
		return nil
	}
	out := make(map[string]any, len(attrs))
	for k, v := range attrs {
		out[k] = v
	}
	return out
}

// clone returns a deep copy of the block.
func (b Block) clone() Block {
	b.Attrs = cloneAttrs(b.Attrs)
	return b
}

func cloneBlocks(blocks []Block) []Block {
	out := make([]Block, len(blocks))
	for i, b := range blocks {
		out[i] = b.clone()
	}
	return out
}
