package tui

import (
	"io"
	"os"

	"github.com/charmbracelet/glamour"
	"golang.org/x/term"
)

// Report styles accepted by NewRenderer.
const (
	StyleAuto  = "auto"
	StylePlain = "plain"
)

// NewRenderer returns a function that renders markdown using glamour.
// StyleAuto detects a light or dark background, StylePlain returns the markdown untouched
// and any other value names a glamour standard style ("dark", "light", "notty"...).
func NewRenderer(style string) func(string) (string, error) {
	if style == StylePlain {
		return func(markdown string) (string, error) {
			return markdown, nil
		}
	}

	opt := glamour.WithAutoStyle()
	if style != "" && style != StyleAuto {
		opt = glamour.WithStandardStyle(style)
	}
	r, err := glamour.NewTermRenderer(opt, glamour.WithWordWrap(100))
	if err != nil {
		return func(markdown string) (string, error) {
			return markdown, err
		}
	}
	return func(markdown string) (string, error) {
		return r.Render(markdown)
	}
}

// IsTerminal reports whether w is an interactive terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
