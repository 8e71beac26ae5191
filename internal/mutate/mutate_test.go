package mutate

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/tmarten/inkwell/internal/document"
	"github.com/tmarten/inkwell/internal/format"
)

// newCodeDoc builds a document whose single block is a code block with
// the given language and text.
func newCodeDoc(t *testing.T, lang, text string) (*document.Doc, document.NodeID) {
	t.Helper()
	d := document.NewFromText(text)
	_, err := d.Dispatch(document.Transaction{Origin: document.OriginLocal, Ops: []document.Op{
		document.SetBlockType{At: 0, Kind: document.KindCodeBlock, Attrs: map[string]any{"language": lang}},
	}})
	if err != nil {
		t.Fatal(err)
	}
	return d, d.Blocks()[0].ID
}

func upcase(_ context.Context, code string, _ format.Language) (string, error) {
	out := make([]rune, 0, len(code))
	for _, r := range code {
		if r >= 'a' && r <= 'z' {
			r = r - 'a' + 'A'
		}
		out = append(out, r)
	}
	return string(out), nil
}

func TestSequencer(t *testing.T) {
	s := NewSequencer()
	if s.Latest(1) != 0 {
		t.Error("fresh block should start at 0")
	}
	if s.Next(1) != 1 || s.Next(1) != 2 {
		t.Error("sequence should advance")
	}
	if s.Next(2) != 1 {
		t.Error("blocks sequence independently")
	}
	if s.Latest(1) != 2 {
		t.Errorf("latest %d", s.Latest(1))
	}
}

func TestFormatCommits(t *testing.T) {
	d, id := newCodeDoc(t, "ts", "const x = 1")
	p := NewPipeline(d, format.Func(upcase), nil)

	p.FormatCodeBlock(context.Background(), id)
	p.Wait()

	b, _ := d.BlockByID(id)
	if b.Text != "CONST X = 1" {
		t.Errorf("got %q", b.Text)
	}
}

func TestFormatTrimsTrailingNewline(t *testing.T) {
	d, id := newCodeDoc(t, "ts", "const x = 1")
	f := format.Func(func(_ context.Context, code string, _ format.Language) (string, error) {
		return code + ";\n", nil
	})
	p := NewPipeline(d, f, nil)

	p.FormatCodeBlock(context.Background(), id)
	p.Wait()

	b, _ := d.BlockByID(id)
	if b.Text != "const x = 1;" {
		t.Errorf("got %q", b.Text)
	}
}

func TestFormatTrimsOnlyOneTrailingNewline(t *testing.T) {
	d, id := newCodeDoc(t, "ts", "const x = 1")
	f := format.Func(func(_ context.Context, code string, _ format.Language) (string, error) {
		return code + ";\n\n", nil
	})
	p := NewPipeline(d, f, nil)

	p.FormatCodeBlock(context.Background(), id)
	p.Wait()

	// A blank line the formatter emitted on purpose survives; only the
	// conventional final newline is stripped.
	b, _ := d.BlockByID(id)
	if b.Text != "const x = 1;\n" {
		t.Errorf("got %q", b.Text)
	}
}

func TestFormatUnchangedSkipsCommit(t *testing.T) {
	d, id := newCodeDoc(t, "ts", "const x = 1")
	identity := format.Func(func(_ context.Context, code string, _ format.Language) (string, error) {
		return code, nil
	})
	p := NewPipeline(d, identity, nil)

	rev := d.Revision()
	p.FormatCodeBlock(context.Background(), id)
	p.Wait()

	if d.Revision() != rev {
		t.Error("identical output should not produce a transaction")
	}
}

func TestFormatErrorDiscards(t *testing.T) {
	d, id := newCodeDoc(t, "ts", "const x = 1")
	failing := format.Func(func(context.Context, string, format.Language) (string, error) {
		return "", errors.New("parse error")
	})
	p := NewPipeline(d, failing, nil)

	p.FormatCodeBlock(context.Background(), id)
	p.Wait()

	b, _ := d.BlockByID(id)
	if b.Text != "const x = 1" {
		t.Errorf("failed format should leave the block as typed, got %q", b.Text)
	}
}

func TestFormatUnsupportedLanguageIgnored(t *testing.T) {
	d, id := newCodeDoc(t, "python", "print(1)")
	var calls atomic.Int32
	f := format.Func(func(_ context.Context, code string, _ format.Language) (string, error) {
		calls.Add(1)
		return code, nil
	})
	p := NewPipeline(d, f, nil)

	p.FormatCodeBlock(context.Background(), id)
	p.Wait()

	if calls.Load() != 0 {
		t.Error("unsupported language should not reach the formatter")
	}
}

func TestStaleResultSuperseded(t *testing.T) {
	d, id := newCodeDoc(t, "ts", "const x = 1")
	release := make(chan struct{})
	var calls atomic.Int32
	slow := format.Func(func(_ context.Context, code string, _ format.Language) (string, error) {
		if calls.Add(1) == 1 {
			<-release
		}
		return "formatted " + code, nil
	})
	p := NewPipeline(d, slow, nil)

	// First request blocks in the formatter; a second request for the
	// same block supersedes it.
	p.FormatCodeBlock(context.Background(), id)
	p.FormatCodeBlock(context.Background(), id)
	close(release)
	p.Wait()

	b, _ := d.BlockByID(id)
	if b.Text != "formatted const x = 1" {
		t.Errorf("got %q", b.Text)
	}
	if calls.Load() != 2 {
		t.Errorf("formatter ran %d times", calls.Load())
	}
}

func TestEditedBlockDiscardsResult(t *testing.T) {
	d, id := newCodeDoc(t, "ts", "const x = 1")
	release := make(chan struct{})
	slow := format.Func(func(_ context.Context, code string, _ format.Language) (string, error) {
		<-release
		return "formatted", nil
	})
	p := NewPipeline(d, slow, nil)

	p.FormatCodeBlock(context.Background(), id)

	// The user keeps typing while the format is in flight.
	if _, err := d.Dispatch(document.Transaction{Origin: document.OriginLocal, Ops: []document.Op{
		document.InsertText{At: 0, Text: "x"},
	}}); err != nil {
		t.Fatal(err)
	}
	close(release)
	p.Wait()

	b, _ := d.BlockByID(id)
	if b.Text != "xconst x = 1" {
		t.Errorf("stale result overwrote the edit: %q", b.Text)
	}
}

func TestNonCodeBlockIgnored(t *testing.T) {
	d := document.NewFromText("plain text")
	id := d.Blocks()[0].ID
	var calls atomic.Int32
	f := format.Func(func(_ context.Context, code string, _ format.Language) (string, error) {
		calls.Add(1)
		return code, nil
	})
	p := NewPipeline(d, f, nil)

	p.FormatCodeBlock(context.Background(), id)
	p.Wait()

	if calls.Load() != 0 {
		t.Error("paragraphs should never be formatted")
	}
}

func TestNilFormatterIsNoop(t *testing.T) {
	d, id := newCodeDoc(t, "ts", "const x = 1")
	p := NewPipeline(d, nil, nil)
	p.FormatCodeBlock(context.Background(), id)
	p.Wait()

	b, _ := d.BlockByID(id)
	if b.Text != "const x = 1" {
		t.Errorf("got %q", b.Text)
	}
}
