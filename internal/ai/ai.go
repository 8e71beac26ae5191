// Package ai generates text for the editor's "Ask AI" command. A
// Client wraps a Provider, bounding the document context sent along
// with each prompt; providers cover the OpenAI and Anthropic SDKs, a
// generic JSON-over-HTTP endpoint, and an offline fallback used when no
// credentials are configured.
package ai

import (
	"context"
	"errors"
	"fmt"

	"github.com/tmarten/inkwell/internal/logging"
)

// Errors returned by the client.
var (
	ErrEmptyPrompt   = errors.New("empty prompt")
	ErrRequestFailed = errors.New("ai request failed")
)

// DefaultMaxContextRunes bounds the document context attached to a
// prompt.
const DefaultMaxContextRunes = 6000

// SystemPrompt frames every generation request.
const SystemPrompt = "You are a writing assistant embedded in a rich text editor. " +
	"Answer concisely in plain text suitable for direct insertion into the document."

// Request is one generation request: the user's prompt plus the
// surrounding document text for context.
type Request struct {
	Prompt  string
	Context string
}

// Provider generates text for a request.
type Provider interface {
	Generate(ctx context.Context, req Request) (string, error)
	Name() string
}

// Client validates and bounds requests before handing them to a
// provider.
type Client struct {
	provider Provider
	maxCtx   int
	log      *logging.Logger
}

// NewClient wraps a provider. maxContextRunes <= 0 selects the default.
func NewClient(p Provider, maxContextRunes int, log *logging.Logger) *Client {
	if maxContextRunes <= 0 {
		maxContextRunes = DefaultMaxContextRunes
	}
	if log == nil {
		log = logging.Null()
	}
	return &Client{provider: p, maxCtx: maxContextRunes, log: log.WithComponent("ai")}
}

// Generate sends the request. An empty prompt fails fast with
// ErrEmptyPrompt; provider failures wrap ErrRequestFailed.
func (c *Client) Generate(ctx context.Context, req Request) (string, error) {
	if req.Prompt == "" {
		return "", ErrEmptyPrompt
	}
	req.Context = truncateRunes(req.Context, c.maxCtx)

	c.log.Debug("request: provider=%s prompt_len=%d ctx_len=%d",
		c.provider.Name(), len(req.Prompt), len(req.Context))

	text, err := c.provider.Generate(ctx, req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrRequestFailed, err)
	}
	return text, nil
}

// ProviderName returns the wrapped provider's name.
func (c *Client) ProviderName() string { return c.provider.Name() }

func truncateRunes(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}

// userMessage renders a request as the user-turn content shared by the
// SDK providers.
func userMessage(req Request) string {
	if req.Context == "" {
		return req.Prompt
	}
	return fmt.Sprintf("Document context:\n%s\n\nRequest: %s", req.Context, req.Prompt)
}

// Offline is the provider used when no credentials are configured. It
// answers every request with a canned notice so the dialog flow still
// works end to end.
type Offline struct{}

// Name implements Provider.
func (Offline) Name() string { return "offline" }

// Generate implements Provider.
func (Offline) Generate(context.Context, Request) (string, error) {
	return "(AI unavailable: no API key configured. Set one in the config file to enable generation.)", nil
}
