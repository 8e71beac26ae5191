package format

import (
	"context"
	"errors"
	"testing"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		tag  string
		want Language
		ok   bool
	}{
		{"ts", LangTypeScript, true},
		{"typescript", LangTypeScript, true},
		{"TypeScript", LangTypeScript, true},
		{"tsx", LangTSX, true},
		{"js", LangJavaScript, true},
		{"javascript", LangJavaScript, true},
		{"  jsx  ", LangJSX, true},
		{"python", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.tag, func(t *testing.T) {
			got, ok := Normalize(tt.tag)
			if ok != tt.ok || got != tt.want {
				t.Errorf("Normalize(%q) = %q, %v; want %q, %v", tt.tag, got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestFuncAdapter(t *testing.T) {
	f := Func(func(_ context.Context, code string, _ Language) (string, error) {
		return code + "!", nil
	})
	if !f.Supported(LangTypeScript) {
		t.Error("Func should support every language")
	}
	got, err := f.Format(context.Background(), "x", LangTypeScript)
	if err != nil {
		t.Fatal(err)
	}
	if got != "x!" {
		t.Errorf("got %q", got)
	}
}

func TestCommandFormatterSupported(t *testing.T) {
	c := NewPrettier()
	for _, lang := range []Language{LangTypeScript, LangTSX, LangJavaScript, LangJSX} {
		if !c.Supported(lang) {
			t.Errorf("%s should be supported", lang)
		}
	}
	if c.Supported(Language("go")) {
		t.Error("unknown language should not be supported")
	}

	_, err := c.Format(context.Background(), "x", Language("go"))
	if !errors.Is(err, ErrUnsupportedLanguage) {
		t.Errorf("expected ErrUnsupportedLanguage, got %v", err)
	}
}

func TestCommandFormatterRuns(t *testing.T) {
	// cat echoes stdin, standing in for a real formatter binary.
	c := &CommandFormatter{Path: "cat"}
	got, err := c.Format(context.Background(), "const x = 1\n", LangTypeScript)
	if err != nil {
		t.Skipf("cat unavailable: %v", err)
	}
	if got != "const x = 1\n" {
		t.Errorf("got %q", got)
	}
}

func TestCommandFormatterFailure(t *testing.T) {
	c := &CommandFormatter{Path: "false"}
	_, err := c.Format(context.Background(), "x", LangTypeScript)
	if !errors.Is(err, ErrFormatFailed) {
		t.Errorf("expected ErrFormatFailed, got %v", err)
	}
}
