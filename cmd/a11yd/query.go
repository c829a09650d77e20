package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/1broseidon/a11yd/internal/ipc"
	"github.com/1broseidon/a11yd/internal/window"
)

func parseWindowID(s string) (window.ID, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n <= 0 {
		return window.InvalidID, fmt.Errorf("invalid window id %q", s)
	}
	return window.ID(n), nil
}

func runWindows(args []string) int {
	fs := flag.NewFlagSet("windows", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: a11yd windows [--json]")
		fmt.Fprintln(os.Stderr, "")
		fmt.Fprintln(os.Stderr, "List the window snapshot, topmost first. Requires an observer that")
		fmt.Fprintln(os.Stderr, "retrieves interactive windows.")
	}
	jsonOut := fs.Bool("json", false, "Output as JSON")
	if code, ok := parseFlags(fs, args); !ok {
		return code
	}

	data, err := ipc.NewClient().ListWindows()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	if wantJSON(*jsonOut) {
		return printJSON(data)
	}
	if !data.Present {
		fmt.Println("window list not available (untracked or no report yet)")
		return 0
	}
	printWindowTable(data.Windows)
	return 0
}

func runActive(args []string) int {
	fs := flag.NewFlagSet("active", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: a11yd active [--json]")
		fmt.Fprintln(os.Stderr, "")
		fmt.Fprintln(os.Stderr, "Print the active window id; '-' when there is none.")
	}
	jsonOut := fs.Bool("json", false, "Output as JSON")
	if code, ok := parseFlags(fs, args); !ok {
		return code
	}

	id, err := ipc.NewClient().ActiveWindow()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	if wantJSON(*jsonOut) {
		return printJSON(ipc.ActiveWindowData{WindowID: id})
	}
	fmt.Println(formatID(id))
	return 0
}

// windowCommand parses "<name> [--json] <id>".
func windowCommand(name, description string, args []string) (window.ID, bool, int, bool) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: a11yd %s [--json] <window-id>\n", name)
		fmt.Fprintln(os.Stderr, "")
		fmt.Fprintln(os.Stderr, description)
	}
	jsonOut := fs.Bool("json", false, "Output as JSON")
	if code, ok := parseFlags(fs, args); !ok {
		return 0, false, code, false
	}
	if fs.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "%s requires exactly one window id\n", name)
		fs.Usage()
		return 0, false, 2, false
	}
	id, err := parseWindowID(fs.Arg(0))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 0, false, 2, false
	}
	return id, wantJSON(*jsonOut), 0, true
}

func runWindow(args []string) int {
	id, asJSON, code, ok := windowCommand("window", "Describe one window of the snapshot.", args)
	if !ok {
		return code
	}
	d, found, err := ipc.NewClient().FindWindow(id)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	if asJSON {
		if !found {
			return printJSON(ipc.WindowData{})
		}
		return printJSON(ipc.WindowData{Found: true, Window: &d})
	}
	if !found {
		fmt.Fprintf(os.Stderr, "window %d not found\n", id)
		return 1
	}
	fmt.Printf("id:        %d\n", d.ID)
	fmt.Printf("type:      %s\n", d.Type)
	fmt.Printf("layer:     %d\n", d.Layer)
	fmt.Printf("bounds:    %s\n", formatRect(d.Bounds))
	fmt.Printf("title:     %s\n", d.Title)
	fmt.Printf("parent:    %s\n", formatID(d.ParentID))
	fmt.Printf("children:  %v\n", d.Children)
	fmt.Printf("flags:     %s\n", windowFlags(d))
	return 0
}

func runRegion(args []string) int {
	id, asJSON, code, ok := windowCommand("region", "Show the part of a window not covered by windows above it.", args)
	if !ok {
		return code
	}
	data, err := ipc.NewClient().InteractiveRegion(id)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	if asJSON {
		return printJSON(data)
	}
	if !data.Found {
		fmt.Fprintf(os.Stderr, "window %d not found\n", id)
		return 1
	}
	fmt.Printf("window:  %d\n", data.WindowID)
	fmt.Printf("area:    %d\n", data.Area)
	fmt.Printf("covered: %v\n", data.Changed)
	for _, r := range data.Rects {
		fmt.Printf("  %s\n", formatRect(r))
	}
	return 0
}

func runBounds(args []string) int {
	id, asJSON, code, ok := windowCommand("bounds", "Show the current bounds of a window.", args)
	if !ok {
		return code
	}
	bounds, found, err := ipc.NewClient().WindowBounds(id)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	if asJSON {
		return printJSON(ipc.BoundsData{WindowID: id, Found: found, Bounds: bounds})
	}
	if !found {
		fmt.Fprintf(os.Stderr, "window %d not found\n", id)
		return 1
	}
	fmt.Println(formatRect(bounds))
	return 0
}
