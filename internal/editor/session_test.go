package editor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tmarten/inkwell/internal/ai"
	"github.com/tmarten/inkwell/internal/collab"
	"github.com/tmarten/inkwell/internal/config"
	"github.com/tmarten/inkwell/internal/document"
	"github.com/tmarten/inkwell/internal/format"
	"github.com/tmarten/inkwell/internal/suggest"
)

type fakeProvider struct {
	text string
	err  error
}

func (p *fakeProvider) Name() string { return "fake" }

func (p *fakeProvider) Generate(context.Context, ai.Request) (string, error) {
	return p.text, p.err
}

func newTestSession(t *testing.T, opts Options) *Session {
	t.Helper()
	if opts.Provider == nil {
		opts.Provider = &fakeProvider{text: "generated"}
	}
	if opts.Formatter == nil {
		opts.Formatter = format.Func(func(_ context.Context, code string, _ format.Language) (string, error) {
			return code, nil
		})
	}
	if opts.Dialer == nil {
		opts.Dialer = collab.HubDialer{Hub: collab.NewHub()}
	}
	cfg := config.Default()
	cfg.Collab.Room = "test"
	opts.Config = cfg
	s := NewSession(opts)
	t.Cleanup(s.Close)
	return s
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestTypingAndDeleting(t *testing.T) {
	s := newTestSession(t, Options{})

	if err := s.InsertText("hello"); err != nil {
		t.Fatal(err)
	}
	if got := s.Doc().Text(); got != "hello" {
		t.Errorf("got %q", got)
	}
	if got := s.Selection(); got.Head != 5 {
		t.Errorf("caret %+v", got)
	}

	if err := s.DeleteBackward(); err != nil {
		t.Fatal(err)
	}
	if got := s.Doc().Text(); got != "hell" {
		t.Errorf("got %q", got)
	}

	// Range selection replaced on typing.
	s.Doc().SetSelection(document.Selection{Anchor: 0, Head: 4})
	if err := s.InsertText("y"); err != nil {
		t.Fatal(err)
	}
	if got := s.Doc().Text(); got != "y" {
		t.Errorf("got %q", got)
	}
}

func TestDeleteBackwardAtStart(t *testing.T) {
	s := newTestSession(t, Options{})
	if err := s.DeleteBackward(); err != nil {
		t.Fatal(err)
	}
	if got := s.Doc().Text(); got != "" {
		t.Errorf("got %q", got)
	}
}

func TestSlashCommandFlow(t *testing.T) {
	s := newTestSession(t, Options{})

	// Typing "/h1" at the start of a block opens the slash menu.
	if err := s.InsertText("/h1"); err != nil {
		t.Fatal(err)
	}
	sess, ok := s.Slash().Session()
	if !ok {
		t.Fatal("slash menu should be open")
	}
	if sess.Query != "h1" {
		t.Errorf("query %q", sess.Query)
	}
	if len(sess.Items) == 0 || sess.Items[0].ID != "h1" {
		t.Fatalf("items %+v", sess.Items)
	}

	// Enter consumes the trigger text and converts the block.
	if !s.HandleKey(suggest.KeyEnter) {
		t.Fatal("enter not handled")
	}
	if got := s.Doc().Text(); got != "" {
		t.Errorf("trigger text survived: %q", got)
	}
	b, _ := s.Doc().BlockAt(0)
	if b.Kind != document.KindHeading {
		t.Errorf("kind %s", b.Kind)
	}
	if s.Slash().Active() {
		t.Error("menu should close after execution")
	}

	// The converted block accepts normal typing.
	if err := s.InsertText("Chapter"); err != nil {
		t.Fatal(err)
	}
	if got := s.Doc().Text(); got != "Chapter" {
		t.Errorf("got %q", got)
	}
}

func TestEmojiFlow(t *testing.T) {
	s := newTestSession(t, Options{})

	if err := s.InsertText("great :fir"); err != nil {
		t.Fatal(err)
	}
	sess, ok := s.Emoji().Session()
	if !ok {
		t.Fatal("emoji picker should be open")
	}
	if len(sess.Items) != 1 || sess.Items[0].ID != "fire" {
		t.Fatalf("items %+v", sess.Items)
	}

	if !s.HandleKey(suggest.KeyEnter) {
		t.Fatal("enter not handled")
	}
	if got := s.Doc().Text(); got != "great 🔥" {
		t.Errorf("got %q", got)
	}
}

func TestSuggestionKeyPriority(t *testing.T) {
	s := newTestSession(t, Options{})

	// No session open: keys fall through.
	if s.HandleKey(suggest.KeyArrowDown) {
		t.Error("key should fall through with no open menu")
	}

	if err := s.InsertText("/"); err != nil {
		t.Fatal(err)
	}
	if !s.HandleKey(suggest.KeyEscape) {
		t.Error("escape should be consumed by the slash menu")
	}
}

func TestAIDialogFlow(t *testing.T) {
	s := newTestSession(t, Options{Provider: &fakeProvider{text: "Once upon a time."}})

	// "/ai" + Enter deletes the trigger and opens the dialog. The
	// filter is substring-based, so navigate to the ai item first.
	if err := s.InsertText("/ai"); err != nil {
		t.Fatal(err)
	}
	sess, ok := s.Slash().Session()
	if !ok {
		t.Fatal("slash menu should be open")
	}
	target := -1
	for i, item := range sess.Items {
		if item.ID == "ai" {
			target = i
		}
	}
	if target < 0 {
		t.Fatalf("ai command not listed: %+v", sess.Items)
	}
	for i := 0; i < target; i++ {
		s.HandleKey(suggest.KeyArrowDown)
	}
	if !s.HandleKey(suggest.KeyEnter) {
		t.Fatal("enter not handled")
	}
	if got := s.Doc().Text(); got != "" {
		t.Errorf("trigger text survived: %q", got)
	}
	if s.Dialog().State != DialogPrompting {
		t.Fatalf("state %s", s.Dialog().State)
	}

	s.SubmitAIPrompt(context.Background(), "write an opening line")
	waitFor(t, "generation", func() bool { return s.Dialog().State == DialogResult })
	if s.Dialog().Result != "Once upon a time." {
		t.Errorf("result %q", s.Dialog().Result)
	}

	if err := s.InsertAIResult(); err != nil {
		t.Fatal(err)
	}
	if got := s.Doc().Text(); got != "Once upon a time." {
		t.Errorf("got %q", got)
	}
	if s.Dialog().State != DialogIdle {
		t.Errorf("dialog should close after insert: %s", s.Dialog().State)
	}
}

func TestAIDialogEmptyPrompt(t *testing.T) {
	s := newTestSession(t, Options{})
	s.openAIDialog()

	s.SubmitAIPrompt(context.Background(), "   ")
	d := s.Dialog()
	if d.State != DialogError {
		t.Fatalf("state %s", d.State)
	}
	if d.Err == "" {
		t.Error("missing error message")
	}

	// The user can retry from the error state.
	s.SubmitAIPrompt(context.Background(), "real prompt")
	waitFor(t, "retry", func() bool { return s.Dialog().State == DialogResult })
}

func TestAIDialogProviderError(t *testing.T) {
	s := newTestSession(t, Options{Provider: &fakeProvider{err: errors.New("backend down")}})
	s.openAIDialog()

	s.SubmitAIPrompt(context.Background(), "prompt")
	waitFor(t, "error state", func() bool { return s.Dialog().State == DialogError })
	if d := s.Dialog(); d.Err == "" {
		t.Error("missing error message")
	}
	// No result to insert; the document stays put.
	if err := s.InsertAIResult(); err != nil {
		t.Fatal(err)
	}
	if got := s.Doc().Text(); got != "" {
		t.Errorf("got %q", got)
	}
}

func TestAIDialogDismissDropsResult(t *testing.T) {
	block := make(chan struct{})
	p := &blockingProvider{release: block, text: "late"}
	s := newTestSession(t, Options{Provider: p})
	s.openAIDialog()

	s.SubmitAIPrompt(context.Background(), "prompt")
	s.DismissAIDialog()
	close(block)

	waitFor(t, "settle", func() bool { return s.Dialog().State == DialogIdle })
	time.Sleep(20 * time.Millisecond)
	if s.Dialog().State != DialogIdle {
		t.Errorf("late result reopened the dialog: %s", s.Dialog().State)
	}
	if got := s.Doc().Text(); got != "" {
		t.Errorf("got %q", got)
	}
}

type blockingProvider struct {
	release chan struct{}
	text    string
}

func (p *blockingProvider) Name() string { return "blocking" }

func (p *blockingProvider) Generate(context.Context, ai.Request) (string, error) {
	<-p.release
	return p.text, nil
}

func TestCollabToggleCommand(t *testing.T) {
	s := newTestSession(t, Options{})

	if s.Collab().Enabled() {
		t.Fatal("collaboration should start disabled")
	}
	if err := s.InsertText("/collab"); err != nil {
		t.Fatal(err)
	}
	if !s.HandleKey(suggest.KeyEnter) {
		t.Fatal("enter not handled")
	}
	if !s.Collab().Enabled() {
		t.Error("toggle did not enable collaboration")
	}
	if got := s.Doc().Text(); got != "" {
		t.Errorf("trigger text survived: %q", got)
	}

	s.ToggleCollab()
	if s.Collab().Enabled() {
		t.Error("toggle did not disable collaboration")
	}
}

func TestBubblePlacement(t *testing.T) {
	s := newTestSession(t, Options{})
	if err := s.InsertText("hello world"); err != nil {
		t.Fatal(err)
	}

	if s.BubblePlacement().Visible {
		t.Error("bubble visible for caret selection")
	}

	s.Doc().SetSelection(document.Selection{Anchor: 0, Head: 5})
	b := s.BubblePlacement()
	if !b.Visible {
		t.Fatal("bubble hidden for range selection")
	}
	// Head at column 5 of the default 8px grid.
	if b.Rect.X != 40 {
		t.Errorf("rect %+v", b.Rect)
	}
}

func TestSetCodeBlockLanguageTriggersFormat(t *testing.T) {
	formatted := make(chan string, 1)
	f := format.Func(func(_ context.Context, code string, lang format.Language) (string, error) {
		select {
		case formatted <- string(lang):
		default:
		}
		return code, nil
	})
	s := newTestSession(t, Options{Formatter: f})

	if err := s.InsertText("const x=1"); err != nil {
		t.Fatal(err)
	}
	if err := s.Apply(document.SetBlockType{At: 0, Kind: document.KindCodeBlock}); err != nil {
		t.Fatal(err)
	}
	id := s.Doc().Blocks()[0].ID

	if err := s.SetCodeBlockLanguage(id, "typescript"); err != nil {
		t.Fatal(err)
	}
	s.Pipeline().Wait()

	select {
	case lang := <-formatted:
		if lang != "ts" {
			t.Errorf("lang %q", lang)
		}
	default:
		t.Error("formatter never ran")
	}

	b, _ := s.Doc().BlockByID(id)
	if got, _ := b.Attr("language").(string); got != "typescript" {
		t.Errorf("language attr %v", b.Attr("language"))
	}
}

func TestCodeBlockCollapse(t *testing.T) {
	s := newTestSession(t, Options{})
	if err := s.Apply(document.SetBlockType{At: 0, Kind: document.KindCodeBlock}); err != nil {
		t.Fatal(err)
	}
	id := s.Doc().Blocks()[0].ID

	if err := s.SetCodeBlockCollapsed(id, true); err != nil {
		t.Fatal(err)
	}
	b, _ := s.Doc().BlockByID(id)
	if collapsed, _ := b.Attr("collapsed").(bool); !collapsed {
		t.Error("not collapsed")
	}

	if err := s.SetCodeBlockCollapsed(id, false); err != nil {
		t.Fatal(err)
	}
	b, _ = s.Doc().BlockByID(id)
	if b.Attr("collapsed") != nil {
		t.Error("collapse attr should clear")
	}
}

func TestImageCommandUsesPrompt(t *testing.T) {
	s := newTestSession(t, Options{
		PromptInput: func(label string) (string, bool) {
			return "https://example.com/cat.png", true
		},
	})

	if err := s.InsertText("/image"); err != nil {
		t.Fatal(err)
	}
	sess, ok := s.Slash().Session()
	if !ok || len(sess.Items) == 0 {
		t.Fatal("slash menu should list the image command")
	}
	if !s.HandleKey(suggest.KeyEnter) {
		t.Fatal("enter not handled")
	}

	var found bool
	for _, b := range s.Doc().Blocks() {
		if b.Kind == document.KindImage {
			found = true
			if src, _ := b.Attr("src").(string); src != "https://example.com/cat.png" {
				t.Errorf("src %v", b.Attr("src"))
			}
		}
	}
	if !found {
		t.Error("no image block inserted")
	}
}
