package command

import (
	"testing"

	"github.com/tmarten/inkwell/internal/document"
)

// docEditor adapts a bare document to the Editor interface for tests.
type docEditor struct {
	doc *document.Doc
}

func (e *docEditor) Apply(ops ...document.Op) error {
	_, err := e.doc.Dispatch(document.Transaction{Origin: document.OriginLocal, Ops: ops})
	return err
}

func (e *docEditor) Selection() document.Selection {
	return e.doc.Selection()
}

func (e *docEditor) BlockAt(off document.Offset) (document.Block, bool) {
	return e.doc.BlockAt(off)
}

func newEditor(text string) *docEditor {
	return &docEditor{doc: document.NewFromText(text)}
}

func TestRegistryOrder(t *testing.T) {
	r := NewRegistry()
	ids := []string{"charlie", "alpha", "bravo"}
	for _, id := range ids {
		if err := r.Register(&Command{ID: id, Title: id, Run: func(Editor, document.Span) error { return nil }}); err != nil {
			t.Fatal(err)
		}
	}

	all := r.All()
	if len(all) != 3 {
		t.Fatalf("count %d", len(all))
	}
	for i, cmd := range all {
		if cmd.ID != ids[i] {
			t.Errorf("position %d: got %s, want %s", i, cmd.ID, ids[i])
		}
	}

	// Re-registering keeps the original position.
	if err := r.Register(&Command{ID: "alpha", Title: "Alpha v2", Run: func(Editor, document.Span) error { return nil }}); err != nil {
		t.Fatal(err)
	}
	all = r.All()
	if all[1].ID != "alpha" || all[1].Title != "Alpha v2" {
		t.Errorf("re-register moved or lost the command: %+v", all[1])
	}
	if r.Count() != 3 {
		t.Errorf("count %d after re-register", r.Count())
	}
}

func TestRegisterValidation(t *testing.T) {
	r := NewRegistry()
	run := func(Editor, document.Span) error { return nil }

	tests := []struct {
		name string
		cmd  *Command
	}{
		{"nil command", nil},
		{"missing id", &Command{Title: "x", Run: run}},
		{"missing title", &Command{ID: "x", Run: run}},
		{"missing run", &Command{ID: "x", Title: "x"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := r.Register(tt.cmd); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestExecuteUnknown(t *testing.T) {
	r := NewRegistry()
	if err := r.Execute("missing", newEditor(""), document.Span{}); err == nil {
		t.Error("expected error for unknown command")
	}
}

func TestBuiltinCatalog(t *testing.T) {
	cmds := Builtin(Deps{})
	if len(cmds) != 14 {
		t.Fatalf("expected 14 builtin commands, got %d", len(cmds))
	}
	r := NewRegistry()
	if err := r.RegisterAll(cmds); err != nil {
		t.Fatal(err)
	}
}

func TestHeadingCommand(t *testing.T) {
	r := NewRegistry()
	if err := r.RegisterAll(Builtin(Deps{})); err != nil {
		t.Fatal(err)
	}

	// "/h1" typed at the start of "Chapter": the trigger span covers
	// the slash text, which the command consumes before converting.
	ed := newEditor("/h1Chapter")
	if err := r.Execute("h1", ed, document.Span{Start: 0, End: 3}); err != nil {
		t.Fatal(err)
	}

	if got := ed.doc.Text(); got != "Chapter" {
		t.Errorf("trigger text survived: %q", got)
	}
	b, _ := ed.doc.BlockAt(0)
	if b.Kind != document.KindHeading {
		t.Errorf("kind %s", b.Kind)
	}
	if lvl, _ := b.Attr("level").(int); lvl != 1 {
		t.Errorf("level %v", b.Attr("level"))
	}
}

func TestToggleCommand(t *testing.T) {
	r := NewRegistry()
	if err := r.RegisterAll(Builtin(Deps{})); err != nil {
		t.Fatal(err)
	}
	ed := newEditor("item")

	if err := r.Execute("bullet", ed, document.Span{}); err != nil {
		t.Fatal(err)
	}
	b, _ := ed.doc.BlockAt(0)
	if b.Kind != document.KindBulletItem {
		t.Fatalf("kind %s", b.Kind)
	}

	// Running it again toggles back to a paragraph.
	if err := r.Execute("bullet", ed, document.Span{}); err != nil {
		t.Fatal(err)
	}
	b, _ = ed.doc.BlockAt(0)
	if b.Kind != document.KindParagraph {
		t.Errorf("kind %s after toggle", b.Kind)
	}
}

func TestDividerCommand(t *testing.T) {
	r := NewRegistry()
	if err := r.RegisterAll(Builtin(Deps{})); err != nil {
		t.Fatal(err)
	}
	ed := newEditor("/divider")

	if err := r.Execute("divider", ed, document.Span{Start: 0, End: 8}); err != nil {
		t.Fatal(err)
	}
	if got := ed.doc.Text(); got != "" {
		t.Errorf("flat text %q", got)
	}
	blocks := ed.doc.Blocks()
	if len(blocks) != 2 || blocks[1].Kind != document.KindDivider {
		t.Errorf("blocks %+v", blocks)
	}
}

func TestImageCommand(t *testing.T) {
	t.Run("cancel keeps trigger text", func(t *testing.T) {
		r := NewRegistry()
		deps := Deps{PromptInput: func(string) (string, bool) { return "", false }}
		if err := r.RegisterAll(Builtin(deps)); err != nil {
			t.Fatal(err)
		}
		ed := newEditor("/image")
		if err := r.Execute("image", ed, document.Span{Start: 0, End: 6}); err != nil {
			t.Fatal(err)
		}
		if got := ed.doc.Text(); got != "/image" {
			t.Errorf("cancel should leave the document alone, got %q", got)
		}
	})

	t.Run("url inserts image block", func(t *testing.T) {
		r := NewRegistry()
		deps := Deps{PromptInput: func(string) (string, bool) { return "https://example.com/a.png", true }}
		if err := r.RegisterAll(Builtin(deps)); err != nil {
			t.Fatal(err)
		}
		ed := newEditor("/image")
		if err := r.Execute("image", ed, document.Span{Start: 0, End: 6}); err != nil {
			t.Fatal(err)
		}
		var img *document.Block
		for _, b := range ed.doc.Blocks() {
			if b.Kind == document.KindImage {
				b := b
				img = &b
			}
		}
		if img == nil {
			t.Fatal("no image block")
		}
		if src, _ := img.Attr("src").(string); src != "https://example.com/a.png" {
			t.Errorf("src %v", img.Attr("src"))
		}
	})
}

func TestCollabCommandTitle(t *testing.T) {
	enabled := false
	cmds := Builtin(Deps{CollabEnabled: func() bool { return enabled }})

	var collab *Command
	for _, c := range cmds {
		if c.ID == "collab" {
			collab = c
		}
	}
	if collab == nil {
		t.Fatal("collab command missing")
	}

	if got := collab.DisplayTitle(); got != "Collaboration: Off" {
		t.Errorf("got %q", got)
	}
	enabled = true
	if got := collab.DisplayTitle(); got != "Collaboration: On" {
		t.Errorf("got %q", got)
	}
}

func TestAICommandDeletesTrigger(t *testing.T) {
	called := false
	cmds := Builtin(Deps{AskAI: func() { called = true }})
	r := NewRegistry()
	if err := r.RegisterAll(cmds); err != nil {
		t.Fatal(err)
	}

	ed := newEditor("/ai")
	if err := r.Execute("ai", ed, document.Span{Start: 0, End: 3}); err != nil {
		t.Fatal(err)
	}
	if !called {
		t.Error("AskAI not invoked")
	}
	if got := ed.doc.Text(); got != "" {
		t.Errorf("trigger text survived: %q", got)
	}
}
