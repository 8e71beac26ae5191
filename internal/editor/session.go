// Package editor assembles the editing session: document, command
// registry, suggestion engines, presence, collaboration, the mutation
// pipeline and the AI dialog, wired together over the event bus.
package editor

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/tmarten/inkwell/internal/ai"
	"github.com/tmarten/inkwell/internal/collab"
	"github.com/tmarten/inkwell/internal/command"
	"github.com/tmarten/inkwell/internal/config"
	"github.com/tmarten/inkwell/internal/document"
	"github.com/tmarten/inkwell/internal/event"
	"github.com/tmarten/inkwell/internal/format"
	"github.com/tmarten/inkwell/internal/logging"
	"github.com/tmarten/inkwell/internal/mutate"
	"github.com/tmarten/inkwell/internal/presence"
	"github.com/tmarten/inkwell/internal/suggest"
)

// Options configures a session. The zero value plus a Config produces a
// working headless session; hosts override the mapper and prompt hook,
// tests override the dialer, formatter and provider.
type Options struct {
	Config config.Config
	Logger *logging.Logger

	// Mapper positions popups and remote cursors. Defaults to the
	// fixed character grid.
	Mapper document.CaretMapper

	// Formatter overrides the code formatter built from Config.
	Formatter format.Formatter

	// Provider overrides the AI provider built from Config.
	Provider ai.Provider

	// Dialer overrides the collaboration transport.
	Dialer collab.Dialer

	// PromptInput asks the host for a string (image URL and similar).
	PromptInput func(label string) (string, bool)
}

// Session is one open editor.
type Session struct {
	cfg      config.Config
	log      *logging.Logger
	doc      *document.Doc
	bus      *event.Bus
	registry *command.Registry
	slash    *suggest.Engine
	emoji    *suggest.Engine
	tracker  *presence.Tracker
	collab   *collab.Session
	pipeline *mutate.Pipeline
	ai       *ai.Client
	mapper   document.CaretMapper

	promptInput func(label string) (string, bool)

	dialogMu sync.Mutex
	dialog   Dialog
	aiWG     sync.WaitGroup
}

// NewSession builds and wires a session.
func NewSession(opts Options) *Session {
	log := opts.Logger
	if log == nil {
		log = logging.Null()
	}
	mapper := opts.Mapper
	if mapper == nil {
		mapper = document.DefaultGridMapper()
	}

	s := &Session{
		cfg:         opts.Config,
		log:         log.WithComponent("editor"),
		doc:         document.New(),
		bus:         event.NewBus(),
		registry:    command.NewRegistry(),
		tracker:     presence.NewTracker(),
		mapper:      mapper,
		promptInput: opts.PromptInput,
	}

	formatter := opts.Formatter
	if formatter == nil {
		formatter = buildFormatter(opts.Config.Format)
	}
	s.pipeline = mutate.NewPipeline(s.doc, formatter, log)

	provider := opts.Provider
	if provider == nil {
		provider = buildProvider(opts.Config.AI)
	}
	s.ai = ai.NewClient(provider, opts.Config.AI.MaxContextRunes, log)
	log.Info("ai provider: %s", provider.Name())

	identity := presence.NewIdentity(opts.Config.Identity.Name, opts.Config.Identity.Color)
	s.collab = collab.NewSession(s.doc, s.tracker, s.bus, log, collab.Options{
		ServerURL: opts.Config.Collab.ServerURL,
		Room:      opts.Config.Collab.Room,
		Identity:  identity,
		Dialer:    opts.Dialer,
	})

	if err := s.registry.RegisterAll(command.Builtin(command.Deps{
		AskAI:         s.openAIDialog,
		ToggleCollab:  s.ToggleCollab,
		CollabEnabled: s.collab.Enabled,
		PromptInput:   s.prompt,
	})); err != nil {
		// The builtin catalog is static; registration cannot fail.
		panic(err)
	}

	s.slash = suggest.New(s.doc, suggest.Config{
		Name:        "slash-command",
		Char:        '/',
		StartOfLine: true,
		Source:      s.commandSource,
		Mapper:      mapper,
	})
	s.emoji = suggest.New(s.doc, suggest.Config{
		Name:   "emoji",
		Char:   ':',
		Source: emojiSource(s),
		Mapper: mapper,
	})

	s.doc.OnTransaction(func(res document.Result) {
		s.bus.Publish(context.Background(), event.TopicTransaction, res)
		s.slash.Update()
		s.emoji.Update()
	})
	s.doc.OnSelection(func(sel document.Selection) {
		s.bus.Publish(context.Background(), event.TopicSelection, sel)
		s.slash.Update()
		s.emoji.Update()
	})

	if opts.Config.Collab.Enabled {
		s.collab.Enable(context.Background())
	}
	return s
}

// buildFormatter constructs the code formatter from config. Disabled
// formatting returns nil, which the pipeline treats as a no-op.
func buildFormatter(cfg config.Format) format.Formatter {
	if !cfg.Enabled {
		return nil
	}
	var f *format.CommandFormatter
	if cfg.Command != "" {
		parts := strings.Fields(cfg.Command)
		f = &format.CommandFormatter{Path: parts[0], Args: parts[1:]}
	} else {
		f = format.NewPrettier()
	}
	if cfg.TimeoutSeconds > 0 {
		f.Timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	return f
}

// buildProvider constructs the AI provider from config. With no
// explicit provider, the first usable credential wins; with none, the
// offline provider keeps the dialog flow working.
func buildProvider(cfg config.AI) ai.Provider {
	switch strings.ToLower(cfg.Provider) {
	case "openai":
		return ai.NewOpenAI(cfg.OpenAIKey, cfg.Model)
	case "anthropic":
		return ai.NewAnthropic(cfg.AnthropicKey, cfg.Model)
	case "http":
		return ai.NewHTTP(cfg.Endpoint)
	case "offline":
		return ai.Offline{}
	}
	switch {
	case cfg.OpenAIKey != "":
		return ai.NewOpenAI(cfg.OpenAIKey, cfg.Model)
	case cfg.AnthropicKey != "":
		return ai.NewAnthropic(cfg.AnthropicKey, cfg.Model)
	case cfg.Endpoint != "":
		return ai.NewHTTP(cfg.Endpoint)
	default:
		return ai.Offline{}
	}
}

// Accessors for the wired components.

func (s *Session) Doc() *document.Doc           { return s.doc }
func (s *Session) Bus() *event.Bus              { return s.bus }
func (s *Session) Registry() *command.Registry  { return s.registry }
func (s *Session) Collab() *collab.Session      { return s.collab }
func (s *Session) Tracker() *presence.Tracker   { return s.tracker }
func (s *Session) Pipeline() *mutate.Pipeline   { return s.pipeline }
func (s *Session) Slash() *suggest.Engine       { return s.slash }
func (s *Session) Emoji() *suggest.Engine       { return s.emoji }
func (s *Session) Mapper() document.CaretMapper { return s.mapper }

// Apply implements command.Editor: it dispatches ops as one local
// transaction.
func (s *Session) Apply(ops ...document.Op) error {
	_, err := s.doc.Dispatch(document.Transaction{
		Origin: document.OriginLocal,
		Ops:    ops,
	})
	return err
}

// Selection implements command.Editor.
func (s *Session) Selection() document.Selection {
	return s.doc.Selection()
}

// BlockAt implements command.Editor.
func (s *Session) BlockAt(off document.Offset) (document.Block, bool) {
	return s.doc.BlockAt(off)
}

// InsertText types text at the selection, replacing a range selection.
func (s *Session) InsertText(text string) error {
	sel := s.doc.Selection()
	if sel.IsCaret() {
		return s.Apply(document.InsertText{At: sel.Head, Text: text})
	}
	return s.Apply(document.ReplaceRange{Range: sel.Span(), Text: text})
}

// DeleteBackward is backspace: it removes a range selection, or the
// rune before a caret. Backspace at the document start is a no-op.
func (s *Session) DeleteBackward() error {
	sel := s.doc.Selection()
	if !sel.IsCaret() {
		return s.Apply(document.DeleteRange{Range: sel.Span()})
	}
	if sel.Head == 0 {
		return nil
	}
	return s.Apply(document.DeleteRange{
		Range: document.Span{Start: sel.Head - 1, End: sel.Head},
	})
}

// HandleKey offers a key to the suggestion engines. The slash menu has
// first refusal, then the emoji picker; an unconsumed key falls through
// to normal input.
func (s *Session) HandleKey(k suggest.Key) bool {
	if s.slash.HandleKey(k) {
		return true
	}
	return s.emoji.HandleKey(k)
}

// ToggleCollab flips collaboration on or off.
func (s *Session) ToggleCollab() {
	if s.collab.Enabled() {
		s.collab.Disable()
		return
	}
	s.collab.Enable(context.Background())
}

// SetCodeBlockLanguage records the language on a code block and
// schedules a reformat.
func (s *Session) SetCodeBlockLanguage(id document.NodeID, lang string) error {
	if err := s.Apply(document.SetAttr{Block: id, Key: "language", Value: lang}); err != nil {
		return err
	}
	s.pipeline.FormatCodeBlock(context.Background(), id)
	return nil
}

// SetCodeBlockCollapsed folds or unfolds a code block.
func (s *Session) SetCodeBlockCollapsed(id document.NodeID, collapsed bool) error {
	var v any
	if collapsed {
		v = true
	}
	return s.Apply(document.SetAttr{Block: id, Key: "collapsed", Value: v})
}

// FormatCodeBlock schedules a reformat, typically on leaving the block.
func (s *Session) FormatCodeBlock(id document.NodeID) {
	s.pipeline.FormatCodeBlock(context.Background(), id)
}

// Bubble is the selection toolbar placement.
type Bubble struct {
	Rect    document.Rect
	Visible bool
}

// BubblePlacement returns where to draw the selection toolbar; it is
// hidden for caret selections.
func (s *Session) BubblePlacement() Bubble {
	sel := s.doc.Selection()
	if sel.IsCaret() {
		return Bubble{}
	}
	rect, ok := s.mapper.CaretRect(s.doc, sel.Head)
	if !ok {
		return Bubble{}
	}
	return Bubble{Rect: rect, Visible: true}
}

// Indicators returns the drawable remote cursors.
func (s *Session) Indicators() []presence.Indicator {
	return s.tracker.Indicators(s.doc, s.mapper)
}

// Close shuts the session down: collaboration disables losslessly and
// in-flight async work settles.
func (s *Session) Close() {
	s.collab.Disable()
	s.pipeline.Wait()
	s.aiWG.Wait()
}

// commandSource feeds the slash menu from the registry, filtered by the
// query.
func (s *Session) commandSource(query string) []suggest.Item {
	cmds := s.registry.All()
	items := make([]suggest.Item, 0, len(cmds))
	for _, c := range cmds {
		c := c
		items = append(items, suggest.Item{
			ID:          c.ID,
			Title:       c.DisplayTitle(),
			Description: c.Description,
			Keywords:    c.Keywords,
			Run: func(span document.Span) {
				if err := s.registry.Execute(c.ID, s, span); err != nil {
					s.log.Warn("command %s failed: %v", c.ID, err)
				}
			},
		})
	}
	return suggest.FilterItems(items, query)
}

func (s *Session) prompt(label string) (string, bool) {
	if s.promptInput == nil {
		return "", false
	}
	return s.promptInput(label)
}
