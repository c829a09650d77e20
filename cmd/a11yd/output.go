package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"golang.org/x/term"

	"github.com/1broseidon/a11yd/internal/geometry"
	"github.com/1broseidon/a11yd/internal/window"
)

// wantJSON reports whether output should be JSON: when forced, or when
// stdout is not a terminal.
func wantJSON(forced bool) bool {
	return forced || !term.IsTerminal(int(os.Stdout.Fd()))
}

func printJSON(v any) int {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}

// terminalWidth returns the width of stdout, or 100 when unknown.
func terminalWidth() int {
	w, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || w <= 0 {
		return 100
	}
	return w
}

func formatID(id window.ID) string {
	if id == window.InvalidID {
		return "-"
	}
	return fmt.Sprintf("%d", id)
}

func formatRect(r geometry.Rect) string {
	return fmt.Sprintf("%dx%d+%d+%d", r.Width, r.Height, r.X, r.Y)
}

func windowFlags(d window.Descriptor) string {
	var flags []string
	if d.Active {
		flags = append(flags, "active")
	}
	if d.Focused {
		flags = append(flags, "focused")
	}
	if d.AccessibilityFocused {
		flags = append(flags, "a11y")
	}
	if d.PictureInPicture {
		flags = append(flags, "pip")
	}
	if len(flags) == 0 {
		return "-"
	}
	return strings.Join(flags, ",")
}

// truncate shortens s to max runes, marking the cut with "...".
func truncate(s string, max int) string {
	r := []rune(s)
	if max <= 3 || len(r) <= max {
		if max > 0 && len(r) > max {
			return string(r[:max])
		}
		return s
	}
	return string(r[:max-3]) + "..."
}

func printWindowTable(windows []window.Descriptor) {
	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTYPE\tLAYER\tBOUNDS\tPARENT\tFLAGS\tTITLE")
	// Leave room for the fixed columns.
	titleWidth := terminalWidth() - 70
	if titleWidth < 10 {
		titleWidth = 10
	}
	for _, d := range windows {
		fmt.Fprintf(tw, "%d\t%s\t%d\t%s\t%s\t%s\t%s\n",
			d.ID, d.Type, d.Layer, formatRect(d.Bounds), formatID(d.ParentID), windowFlags(d), truncate(d.Title, titleWidth))
	}
	tw.Flush()
}
