package command

import "github.com/tmarten/inkwell/internal/document"

// Deps carries the session callbacks built-in commands close over.
// Dynamic flags (collaboration on/off) are read at display/execute time,
// never cached in the catalog.
type Deps struct {
	// AskAI opens the AI dialog.
	AskAI func()

	// ToggleCollab flips collaborative editing on or off.
	ToggleCollab func()

	// CollabEnabled reports whether collaboration is currently on.
	CollabEnabled func() bool

	// PromptInput asks the host UI for a string (image URL). ok is
	// false when the user cancels.
	PromptInput func(label string) (string, bool)
}

// Builtin returns the standard slash-menu catalog in menu order.
func Builtin(deps Deps) []*Command {
	return []*Command{
		{
			ID:          "text",
			Title:       "Text",
			Description: "Plain paragraph text",
			Keywords:    []string{"paragraph", "plain"},
			Run:         setBlock(document.KindParagraph, nil),
		},
		{
			ID:          "h1",
			Title:       "Heading 1",
			Description: "Large section heading",
			Keywords:    []string{"heading", "title", "big", "h1"},
			Run:         setBlock(document.KindHeading, map[string]any{"level": 1}),
		},
		{
			ID:          "h2",
			Title:       "Heading 2",
			Description: "Medium section heading",
			Keywords:    []string{"heading", "subtitle", "h2"},
			Run:         setBlock(document.KindHeading, map[string]any{"level": 2}),
		},
		{
			ID:          "h3",
			Title:       "Heading 3",
			Description: "Small section heading",
			Keywords:    []string{"heading", "h3"},
			Run:         setBlock(document.KindHeading, map[string]any{"level": 3}),
		},
		{
			ID:          "bullet",
			Title:       "Bullet List",
			Description: "Unordered list",
			Keywords:    []string{"list", "unordered"},
			Run:         toggleBlock(document.KindBulletItem, nil),
		},
		{
			ID:          "ordered",
			Title:       "Numbered List",
			Description: "Ordered list",
			Keywords:    []string{"list", "numbered"},
			Run:         toggleBlock(document.KindOrderedItem, nil),
		},
		{
			ID:          "todo",
			Title:       "To-do List",
			Description: "Task list with checkboxes",
			Keywords:    []string{"task", "checkbox", "check"},
			Run:         toggleBlock(document.KindTaskItem, nil),
		},
		{
			ID:          "quote",
			Title:       "Quote",
			Description: "Block quotation",
			Keywords:    []string{"blockquote", "citation"},
			Run:         toggleBlock(document.KindBlockquote, nil),
		},
		{
			ID:          "codeblock",
			Title:       "Code Block",
			Description: "Preformatted code",
			Keywords:    []string{"code", "snippet", "pre"},
			Run:         toggleBlock(document.KindCodeBlock, nil),
		},
		{
			ID:          "divider",
			Title:       "Divider",
			Description: "Horizontal rule",
			Keywords:    []string{"rule", "separator", "hr"},
			Run: func(ed Editor, span document.Span) error {
				return ed.Apply(
					document.DeleteRange{Range: span},
					document.InsertObject{At: span.Start, Kind: document.KindDivider},
				)
			},
		},
		{
			ID:          "image",
			Title:       "Image",
			Description: "Insert an image by URL",
			Keywords:    []string{"picture", "photo", "url"},
			Run: func(ed Editor, span document.Span) error {
				if deps.PromptInput == nil {
					return nil
				}
				url, ok := deps.PromptInput("Image URL")
				if !ok || url == "" {
					return nil
				}
				return ed.Apply(
					document.DeleteRange{Range: span},
					document.InsertObject{At: span.Start, Kind: document.KindImage, Attrs: map[string]any{"src": url}},
				)
			},
		},
		{
			ID:          "table",
			Title:       "Table",
			Description: "Insert a 3x3 table",
			Keywords:    []string{"grid", "rows", "columns"},
			Run: func(ed Editor, span document.Span) error {
				return ed.Apply(
					document.DeleteRange{Range: span},
					document.InsertObject{At: span.Start, Kind: document.KindTable, Attrs: map[string]any{
						"rows": 3, "cols": 3, "header": true,
					}},
				)
			},
		},
		{
			ID:          "ai",
			Title:       "Ask AI",
			Description: "Generate text with AI assistance",
			Keywords:    []string{"assistant", "generate", "write"},
			Run: func(ed Editor, span document.Span) error {
				if err := ed.Apply(document.DeleteRange{Range: span}); err != nil {
					return err
				}
				if deps.AskAI != nil {
					deps.AskAI()
				}
				return nil
			},
		},
		{
			ID:    "collab",
			Title: "Collaboration",
			TitleFunc: func() string {
				if deps.CollabEnabled != nil && deps.CollabEnabled() {
					return "Collaboration: On"
				}
				return "Collaboration: Off"
			},
			Description: "Toggle collaborative editing",
			Keywords:    []string{"sync", "share", "together"},
			Run: func(ed Editor, span document.Span) error {
				if err := ed.Apply(document.DeleteRange{Range: span}); err != nil {
					return err
				}
				if deps.ToggleCollab != nil {
					deps.ToggleCollab()
				}
				return nil
			},
		},
	}
}

// setBlock builds an executor that consumes the trigger range and
// converts the surrounding block unconditionally.
func setBlock(kind document.BlockKind, attrs map[string]any) func(Editor, document.Span) error {
	return func(ed Editor, span document.Span) error {
		return ed.Apply(
			document.DeleteRange{Range: span},
			document.SetBlockType{At: span.Start, Kind: kind, Attrs: attrs},
		)
	}
}

// toggleBlock builds an executor that converts the surrounding block to
// the kind, or back to a paragraph when it already is that kind.
func toggleBlock(kind document.BlockKind, attrs map[string]any) func(Editor, document.Span) error {
	return func(ed Editor, span document.Span) error {
		target := kind
		targetAttrs := attrs
		if b, ok := ed.BlockAt(span.Start); ok && b.Kind == kind {
			target = document.KindParagraph
			targetAttrs = nil
		}
		return ed.Apply(
			document.DeleteRange{Range: span},
			document.SetBlockType{At: span.Start, Kind: target, Attrs: targetAttrs},
		)
	}
}
