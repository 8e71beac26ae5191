// Package mutate runs asynchronous document rewrites, currently code
// block formatting. Each target block carries a monotonically growing
// sequence number; an async result only commits while it still holds
// the block's latest number, so rapid re-triggers soft-cancel older
// in-flight work instead of interrupting it.
package mutate

import (
	"context"
	"strings"
	"sync"

	"github.com/tmarten/inkwell/internal/document"
	"github.com/tmarten/inkwell/internal/format"
	"github.com/tmarten/inkwell/internal/logging"
)

// Sequencer hands out per-block sequence numbers. A worker captures the
// number at launch and compares it against Latest before committing.
type Sequencer struct {
	mu   sync.Mutex
	seqs map[document.NodeID]uint64
}

// NewSequencer returns an empty sequencer.
func NewSequencer() *Sequencer {
	return &Sequencer{seqs: make(map[document.NodeID]uint64)}
}

// Next advances and returns the block's sequence number.
func (s *Sequencer) Next(id document.NodeID) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seqs[id]++
	return s.seqs[id]
}

// Latest returns the block's current sequence number without advancing.
func (s *Sequencer) Latest(id document.NodeID) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seqs[id]
}

// Pipeline schedules and commits asynchronous mutations against one
// document.
type Pipeline struct {
	doc       *document.Doc
	formatter format.Formatter
	log       *logging.Logger
	seq       *Sequencer
	wg        sync.WaitGroup
}

// NewPipeline creates a pipeline. A nil formatter disables formatting;
// requests become no-ops.
func NewPipeline(doc *document.Doc, formatter format.Formatter, log *logging.Logger) *Pipeline {
	if log == nil {
		log = logging.Null()
	}
	return &Pipeline{
		doc:       doc,
		formatter: formatter,
		log:       log.WithComponent("mutate"),
		seq:       NewSequencer(),
	}
}

// FormatCodeBlock schedules an asynchronous reformat of a code block.
// The call returns immediately; the result commits later only if the
// request is still the block's latest and the block text has not moved
// underneath it. Failures and unsupported languages discard silently,
// leaving the block as typed.
func (p *Pipeline) FormatCodeBlock(ctx context.Context, id document.NodeID) {
	block, ok := p.doc.BlockByID(id)
	if !ok || block.Kind != document.KindCodeBlock {
		return
	}
	if p.formatter == nil {
		return
	}

	lang, ok := format.Normalize(attrString(block, "language"))
	if !ok || !p.formatter.Supported(lang) {
		return
	}

	seq := p.seq.Next(id)
	snapshot := block.Text

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.runFormat(ctx, id, seq, snapshot, lang)
	}()
}

func (p *Pipeline) runFormat(ctx context.Context, id document.NodeID, seq uint64, snapshot string, lang format.Language) {
	formatted, err := p.formatter.Format(ctx, snapshot, lang)
	if err != nil {
		p.log.Debug("format discarded: %v", err)
		return
	}
	formatted = strings.TrimSuffix(formatted, "\n")
	if formatted == snapshot {
		return
	}

	if p.seq.Latest(id) != seq {
		p.log.Debug("format superseded: block=%d seq=%d", id, seq)
		return
	}
	block, ok := p.doc.BlockByID(id)
	if !ok || block.Kind != document.KindCodeBlock || block.Text != snapshot {
		p.log.Debug("format stale: block=%d seq=%d", id, seq)
		return
	}
	span, ok := p.doc.BlockSpan(id)
	if !ok {
		return
	}

	_, err = p.doc.Dispatch(document.Transaction{
		Origin: document.OriginPipeline,
		Ops: []document.Op{
			document.ReplaceRange{Range: span, Text: formatted},
		},
	})
	if err != nil {
		p.log.Warn("format commit failed: %v", err)
		return
	}
	p.log.Debug("format committed: block=%d seq=%d", id, seq)
}

// Wait blocks until all in-flight mutations have finished or been
// discarded.
func (p *Pipeline) Wait() {
	p.wg.Wait()
}

func attrString(b document.Block, key string) string {
	s, _ := b.Attr(key).(string)
	return s
}
