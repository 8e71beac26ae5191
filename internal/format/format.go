// Package format defines the code formatting surface used by the
// mutation pipeline. The pipeline only ever talks to the Formatter
// interface; the default implementation shells out to an external
// formatter binary so the supported language set follows whatever tool
// is installed.
package format

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// Language identifies a formattable code block language.
type Language string

const (
	LangTypeScript Language = "ts"
	LangTSX        Language = "tsx"
	LangJavaScript Language = "js"
	LangJSX        Language = "jsx"
)

// Errors returned by formatters.
var (
	ErrUnsupportedLanguage = errors.New("unsupported language")
	ErrFormatFailed        = errors.New("format failed")
)

// Normalize maps a language tag (including common aliases) to its
// canonical Language. It reports false for tags no formatter handles.
func Normalize(tag string) (Language, bool) {
	switch strings.ToLower(strings.TrimSpace(tag)) {
	case "ts", "typescript":
		return LangTypeScript, true
	case "tsx":
		return LangTSX, true
	case "js", "javascript", "ecmascript":
		return LangJavaScript, true
	case "jsx":
		return LangJSX, true
	default:
		return "", false
	}
}

// Formatter formats source code. Implementations return
// ErrUnsupportedLanguage for languages they do not handle; any other
// error means formatting failed and the input should be kept as-is.
type Formatter interface {
	Format(ctx context.Context, code string, lang Language) (string, error)
	Supported(lang Language) bool
}

// Func adapts a function to the Formatter interface. A Func supports
// every language; wrap it if you need a narrower set.
type Func func(ctx context.Context, code string, lang Language) (string, error)

// Format implements Formatter.
func (f Func) Format(ctx context.Context, code string, lang Language) (string, error) {
	return f(ctx, code, lang)
}

// Supported implements Formatter.
func (f Func) Supported(Language) bool { return true }

// DefaultTimeout bounds a single external formatter run.
const DefaultTimeout = 10 * time.Second

// CommandFormatter runs an external formatter binary, feeding the code
// on stdin and reading the result from stdout. The language is passed
// through the argument template as a file extension so tools like
// prettier can pick a parser.
type CommandFormatter struct {
	// Path is the formatter binary.
	Path string

	// Args are the arguments; the placeholder "{lang}" is replaced
	// with the language tag.
	Args []string

	// Timeout bounds one run; zero means DefaultTimeout.
	Timeout time.Duration
}

// NewPrettier returns a CommandFormatter invoking prettier via npx
// with a stdin filepath so the parser follows the language.
func NewPrettier() *CommandFormatter {
	return &CommandFormatter{
		Path: "npx",
		Args: []string{"--yes", "prettier", "--stdin-filepath", "code.{lang}"},
	}
}

// Supported implements Formatter.
func (c *CommandFormatter) Supported(lang Language) bool {
	switch lang {
	case LangTypeScript, LangTSX, LangJavaScript, LangJSX:
		return true
	default:
		return false
	}
}

// Format implements Formatter.
func (c *CommandFormatter) Format(ctx context.Context, code string, lang Language) (string, error) {
	if !c.Supported(lang) {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedLanguage, lang)
	}

	timeout := c.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	args := make([]string, len(c.Args))
	for i, a := range c.Args {
		args[i] = strings.ReplaceAll(a, "{lang}", string(lang))
	}

	cmd := exec.CommandContext(ctx, c.Path, args...)
	cmd.Stdin = strings.NewReader(code)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return "", fmt.Errorf("%w: %s", ErrFormatFailed, msg)
	}
	return stdout.String(), nil
}
