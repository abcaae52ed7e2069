package tui

import (
	"io"
	"os"

	"github.com/charmbracelet/glamour"
	"golang.org/x/term"
)

// IsTerminal reports whether w is an interactive terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// NewRenderer returns a function that renders markdown for w.
// Terminals get glamour output with an auto-detected style; anything else gets the
// markdown unchanged, so reports stay greppable when piped.
func NewRenderer(w io.Writer) func(string) (string, error) {
	if !IsTerminal(w) {
		return func(markdown string) (string, error) { return markdown, nil }
	}

	width := 100
	if f, ok := w.(*os.File); ok {
		if cols, _, err := term.GetSize(int(f.Fd())); err == nil && cols > 20 {
			width = cols
		}
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return func(markdown string) (string, error) { return markdown, nil }
	}
	return r.Render
}

// RenderStyled renders markdown with a fixed glamour style, regardless of the output.
func RenderStyled(markdown, style string) (string, error) {
	r, err := glamour.NewTermRenderer(glamour.WithStandardStyle(style))
	if err != nil {
		return "", err
	}
	return r.Render(markdown)
}
