package editor

import (
	"context"
	"errors"
	"strings"

	"github.com/tmarten/inkwell/internal/ai"
	"github.com/tmarten/inkwell/internal/document"
	"github.com/tmarten/inkwell/internal/event"
)

// DialogState is the AI dialog lifecycle.
type DialogState int

const (
	// DialogIdle means no dialog is open.
	DialogIdle DialogState = iota
	// DialogPrompting means the dialog is open awaiting a prompt.
	DialogPrompting
	// DialogLoading means a generation request is in flight.
	DialogLoading
	// DialogResult means generated text is ready to insert.
	DialogResult
	// DialogError means the last request failed; the user may retry.
	DialogError
)

// String implements fmt.Stringer.
func (s DialogState) String() string {
	switch s {
	case DialogIdle:
		return "idle"
	case DialogPrompting:
		return "prompting"
	case DialogLoading:
		return "loading"
	case DialogResult:
		return "result"
	case DialogError:
		return "error"
	default:
		return "unknown"
	}
}

// Dialog is a snapshot of the AI dialog.
type Dialog struct {
	State  DialogState
	Prompt string
	Result string
	Err    string

	insertAt document.Offset
}

// Dialog returns the current dialog snapshot.
func (s *Session) Dialog() Dialog {
	s.dialogMu.Lock()
	defer s.dialogMu.Unlock()
	return s.dialog
}

// openAIDialog is the "Ask AI" command entry point; the insertion point
// is the selection at open time.
func (s *Session) openAIDialog() {
	s.dialogMu.Lock()
	s.dialog = Dialog{
		State:    DialogPrompting,
		insertAt: s.doc.Selection().Head,
	}
	snap := s.dialog
	s.dialogMu.Unlock()
	s.publishDialog(snap)
}

// SubmitAIPrompt sends the prompt. An empty prompt fails immediately;
// otherwise the dialog enters loading and the result (or error) arrives
// asynchronously. Submissions are ignored while a request is already in
// flight or no dialog is open.
func (s *Session) SubmitAIPrompt(ctx context.Context, prompt string) {
	s.dialogMu.Lock()
	switch s.dialog.State {
	case DialogPrompting, DialogResult, DialogError:
	default:
		s.dialogMu.Unlock()
		return
	}

	s.dialog.Prompt = prompt
	if strings.TrimSpace(prompt) == "" {
		s.dialog.State = DialogError
		s.dialog.Err = "prompt is required"
		snap := s.dialog
		s.dialogMu.Unlock()
		s.publishDialog(snap)
		return
	}

	s.dialog.State = DialogLoading
	s.dialog.Result = ""
	s.dialog.Err = ""
	snap := s.dialog
	s.dialogMu.Unlock()
	s.publishDialog(snap)

	s.aiWG.Add(1)
	go func() {
		defer s.aiWG.Done()
		text, err := s.ai.Generate(ctx, ai.Request{
			Prompt:  prompt,
			Context: s.doc.Text(),
		})

		s.dialogMu.Lock()
		if s.dialog.State != DialogLoading {
			// Dismissed while in flight; drop the result.
			s.dialogMu.Unlock()
			return
		}
		switch {
		case errors.Is(err, ai.ErrEmptyPrompt):
			s.dialog.State = DialogError
			s.dialog.Err = "prompt is required"
		case err != nil:
			s.dialog.State = DialogError
			s.dialog.Err = err.Error()
		default:
			s.dialog.State = DialogResult
			s.dialog.Result = text
		}
		snap := s.dialog
		s.dialogMu.Unlock()
		s.publishDialog(snap)
	}()
}

// InsertAIResult inserts the generated text at the dialog's insertion
// point and closes the dialog. It is a no-op unless a result is ready.
func (s *Session) InsertAIResult() error {
	s.dialogMu.Lock()
	if s.dialog.State != DialogResult {
		s.dialogMu.Unlock()
		return nil
	}
	text := s.dialog.Result
	at := s.dialog.insertAt
	s.dialog = Dialog{}
	s.dialogMu.Unlock()
	s.publishDialog(Dialog{})

	if max := s.doc.Len(); at > max {
		at = max
	}
	return s.Apply(document.InsertText{At: at, Text: text})
}

// DismissAIDialog closes the dialog, discarding any in-flight request's
// result when it lands.
func (s *Session) DismissAIDialog() {
	s.dialogMu.Lock()
	open := s.dialog.State != DialogIdle
	s.dialog = Dialog{}
	s.dialogMu.Unlock()
	if open {
		s.publishDialog(Dialog{})
	}
}

func (s *Session) publishDialog(d Dialog) {
	s.bus.Publish(context.Background(), event.TopicAIDialog, d)
}
