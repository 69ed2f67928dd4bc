package tui

import (
	"fmt"
	"io"

	"github.com/muesli/termenv"
)

// PrintBanner writes the mpcgate banner followed by the version.
func PrintBanner(w io.Writer, version string) {
	p := termenv.ColorProfile()
	if !IsTerminal(w) {
		p = termenv.Ascii
	}
	lines := []struct {
		text  string
		color string
	}{
		{"  _ __ ___  _ __   ___ __ _  __ _| |_ ___ ", "#34d399"},
		{" | '_ ` _ \\| '_ \\ / __/ _` |/ _` | __/ _ \\", "#2dd4bf"},
		{" | | | | | | |_) | (_| (_| | (_| | ||  __/", "#22d3ee"},
		{" |_| |_| |_| .__/ \\___\\__, |\\__,_|\\__\\___|", "#38bdf8"},
		{"           |_|        |___/               ", "#60a5fa"},
	}

	fmt.Fprintln(w)
	for _, l := range lines {
		fmt.Fprintln(w, p.String(l.text).Foreground(p.Color(l.color)))
	}
	fmt.Fprintln(w, p.String("  "+version).Faint())
	fmt.Fprintln(w)
}
