package ai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// HTTP generates via a JSON endpoint speaking the editor's own wire
// shape: POST {"prompt","context"}, reply {"text"} or {"error"}. It
// lets a deployment point the editor at its own gateway instead of a
// vendor SDK.
type HTTP struct {
	endpoint string
	client   *http.Client
}

// NewHTTP builds an HTTP provider for the endpoint.
func NewHTTP(endpoint string) *HTTP {
	return &HTTP{
		endpoint: endpoint,
		client:   &http.Client{Timeout: 30 * time.Second},
	}
}

// Name implements Provider.
func (h *HTTP) Name() string { return "http" }

// Generate implements Provider.
func (h *HTTP) Generate(ctx context.Context, req Request) (string, error) {
	body, err := sjson.Set("", "prompt", req.Prompt)
	if err != nil {
		return "", err
	}
	body, err = sjson.Set(body, "context", req.Context)
	if err != nil {
		return "", err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, h.endpoint, strings.NewReader(body))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(httpReq)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", err
	}

	if msg := gjson.GetBytes(payload, "error"); msg.Exists() {
		return "", errors.New(msg.String())
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("endpoint returned %s", resp.Status)
	}

	text := gjson.GetBytes(payload, "text")
	if !text.Exists() {
		return "", errors.New("malformed response: missing text")
	}
	return text.String(), nil
}
