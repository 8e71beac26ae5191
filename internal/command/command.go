// Package command provides the declarative catalog of editor actions the
// slash menu and toolbar invoke. Commands are immutable metadata plus an
// executor; the catalog preserves registration order so an unfiltered
// menu lists commands the way they were declared.
package command

import (
	"fmt"
	"sync"

	"github.com/tmarten/inkwell/internal/document"
)

// Editor is the handle executors mutate the document through. All ops
// passed to Apply commit as a single transaction.
type Editor interface {
	// Apply dispatches the ops as one atomic local transaction.
	Apply(ops ...document.Op) error

	// Selection returns the current selection.
	Selection() document.Selection

	// BlockAt returns the block containing a flat offset.
	BlockAt(off document.Offset) (document.Block, bool)
}

// Command is one catalog entry.
type Command struct {
	// ID uniquely identifies the command.
	ID string

	// Title is the display name.
	Title string

	// Description is an optional one-line explanation.
	Description string

	// Keywords are extra terms the suggestion filter matches against.
	Keywords []string

	// TitleFunc, when set, supplies a dynamic display title (e.g. a
	// toggle reflecting live state). Title remains the stable name.
	TitleFunc func() string

	// Run executes the command. The span is the trigger text range
	// (e.g. "/h1"); executors delete it before transforming, and
	// deleting an already-empty span is a no-op.
	Run func(ed Editor, span document.Span) error
}

// DisplayTitle returns the dynamic title when one is configured, and
// the stable title otherwise.
func (c *Command) DisplayTitle() string {
	if c.TitleFunc != nil {
		return c.TitleFunc()
	}
	return c.Title
}

// Registry is an ordered command catalog.
type Registry struct {
	mu      sync.RWMutex
	ordered []*Command
	byID    map[string]*Command
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{byID: make(map[string]*Command)}
}

// Register adds a command. Re-registering an ID replaces the entry but
// keeps its original catalog position.
func (r *Registry) Register(cmd *Command) error {
	if cmd == nil {
		return fmt.Errorf("command cannot be nil")
	}
	if cmd.ID == "" {
		return fmt.Errorf("command ID cannot be empty")
	}
	if cmd.Title == "" {
		return fmt.Errorf("command title cannot be empty")
	}
	if cmd.Run == nil {
		return fmt.Errorf("command %q has no executor", cmd.ID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byID[cmd.ID]; exists {
		for i, c := range r.ordered {
			if c.ID == cmd.ID {
				r.ordered[i] = cmd
				break
			}
		}
	} else {
		r.ordered = append(r.ordered, cmd)
	}
	r.byID[cmd.ID] = cmd
	return nil
}

// RegisterAll adds multiple commands, stopping at the first error.
func (r *Registry) RegisterAll(cmds []*Command) error {
	for _, cmd := range cmds {
		if err := r.Register(cmd); err != nil {
			return err
		}
	}
	return nil
}

// Get retrieves a command by ID.
func (r *Registry) Get(id string) (*Command, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cmd, ok := r.byID[id]
	return cmd, ok
}

// All returns the commands in catalog order.
func (r *Registry) All() []*Command {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]*Command(nil), r.ordered...)
}

// Count returns the number of registered commands.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.ordered)
}

// Execute runs a command by ID against the editor and trigger span.
func (r *Registry) Execute(id string, ed Editor, span document.Span) error {
	cmd, ok := r.Get(id)
	if !ok {
		return fmt.Errorf("unknown command: %s", id)
	}
	return cmd.Run(ed, span)
}
