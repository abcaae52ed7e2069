package tui

import (
	"fmt"
	"io"

	"github.com/muesli/termenv"
)

// PrintBanner writes the stagecraft banner to w.
func PrintBanner(w io.Writer) {
	p := termenv.NewOutput(w).ColorProfile()
	lines := []struct {
		text  string
		color string
	}{
		{"     _                                 __ _   ", "#38bdf8"},
		{" ___| |_ __ _  __ _  ___  ___ _ __ __ _/ _| |_ ", "#22d3ee"},
		{"/ __| __/ _` |/ _` |/ _ \\/ __| '__/ _` | |_| __|", "#2dd4bf"},
		{"\\__ \\ || (_| | (_| |  __/ (__| | | (_| |  _| |_ ", "#34d399"},
		{"|___/\\__\\__,_|\\__, |\\___|\\___|_|  \\__,_|_|  \\__|", "#4ade80"},
		{"              |___/                              ", "#a3e635"},
	}

	fmt.Fprintln(w)
	for _, l := range lines {
		fmt.Fprintln(w, termenv.String(l.text).Foreground(p.Color(l.color)))
	}
	fmt.Fprintln(w)
}
