package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/1broseidon/a11yd/internal/dispatch"
	"github.com/1broseidon/a11yd/internal/event"
	"github.com/1broseidon/a11yd/internal/geometry"
	"github.com/1broseidon/a11yd/internal/ipc"
	"github.com/1broseidon/a11yd/internal/security"
	"github.com/1broseidon/a11yd/internal/window"
)

// parseSession maps a --session value onto a session id. Empty means the
// daemon's current session.
func parseSession(s string) (*int, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return nil, nil
	case "current":
		v := security.SessionCurrent
		return &v, nil
	case "current-or-self":
		v := security.SessionCurrentOrSelf
		return &v, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return nil, fmt.Errorf("invalid session %q", s)
	}
	return &n, nil
}

// parsePoints parses "x,y x,y ..." (or ';'-separated) into points.
func parsePoints(s string) ([]geometry.Point, error) {
	fields := strings.FieldsFunc(s, func(r rune) bool { return r == ' ' || r == ';' })
	points := make([]geometry.Point, 0, len(fields))
	for _, f := range fields {
		xs, ys, ok := strings.Cut(f, ",")
		if !ok {
			return nil, fmt.Errorf("invalid point %q (want x,y)", f)
		}
		x, err := strconv.Atoi(strings.TrimSpace(xs))
		if err != nil {
			return nil, fmt.Errorf("invalid point %q: %w", f, err)
		}
		y, err := strconv.Atoi(strings.TrimSpace(ys))
		if err != nil {
			return nil, fmt.Errorf("invalid point %q: %w", f, err)
		}
		points = append(points, geometry.Point{X: x, Y: y})
	}
	if len(points) == 0 {
		return nil, fmt.Errorf("no points given")
	}
	return points, nil
}

// readWindowInfos decodes a JSON array of window reports, topmost first.
func readWindowInfos(r io.Reader) ([]window.Info, error) {
	var infos []window.Info
	if err := json.NewDecoder(r).Decode(&infos); err != nil {
		return nil, fmt.Errorf("failed to parse window list: %w", err)
	}
	return infos, nil
}

func runSend(args []string) int {
	fs := flag.NewFlagSet("send", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: a11yd send [flags] <event-type>")
		fmt.Fprintln(os.Stderr, "")
		fmt.Fprintln(os.Stderr, "Send an accessibility event through the security gate. The caller's")
		fmt.Fprintln(os.Stderr, "identity is taken from the socket peer credentials.")
		fmt.Fprintln(os.Stderr, "")
		fmt.Fprintln(os.Stderr, "Flags:")
		fs.PrintDefaults()
		fmt.Fprintln(os.Stderr, "")
		fmt.Fprintln(os.Stderr, "Examples:")
		fmt.Fprintln(os.Stderr, "  a11yd send --window 3 view_focused")
		fmt.Fprintln(os.Stderr, "  a11yd send --window 3 --node 42 --action accessibility_focus view_accessibility_focused")
	}
	windowID := fs.Int("window", int(window.InvalidID), "Source window id")
	node := fs.Int64("node", int64(window.UndefinedNode), "Source node id")
	action := fs.String("action", "", "Action that caused the event")
	pkg := fs.String("package", "", "Reported package name")
	class := fs.String("class", "", "Source class name")
	text := fs.String("text", "", "Event text")
	session := fs.String("session", "", "Session id, 'current' or 'current-or-self' (default: current)")
	jsonOut := fs.Bool("json", false, "Output as JSON")
	if code, ok := parseFlags(fs, args); !ok {
		return code
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "send requires exactly one event type")
		fs.Usage()
		return 2
	}

	typ, err := event.ParseType(fs.Arg(0))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}
	act, err := event.ParseAction(*action)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}
	sess, err := parseSession(*session)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}

	ev := event.New(typ, window.ID(*windowID))
	ev.SourceNodeID = window.NodeID(*node)
	ev.Action = act
	ev.PackageName = *pkg
	ev.ClassName = *class
	if *text != "" {
		ev.Text = []string{*text}
	}

	res, err := ipc.NewClient().SendEvent(ev, sess)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	if wantJSON(*jsonOut) {
		return printJSON(res)
	}
	fmt.Printf("dispatched: %v\n", res.Dispatched)
	fmt.Printf("session:    %d\n", res.Session)
	fmt.Printf("package:    %s (%s)\n", res.Event.PackageName, res.Package)
	return 0
}

func runTouch(args []string) int {
	if len(args) != 1 || (args[0] != "start" && args[0] != "end") {
		fmt.Fprintln(os.Stderr, "Usage: a11yd touch start|end")
		if len(args) == 1 && (args[0] == "-h" || args[0] == "--help" || args[0] == "help") {
			return 0
		}
		return 2
	}
	if err := ipc.NewClient().TouchInteraction(args[0] == "start"); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}

func runPush(args []string) int {
	fs := flag.NewFlagSet("push", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: a11yd push [--file PATH]")
		fmt.Fprintln(os.Stderr, "")
		fmt.Fprintln(os.Stderr, "Replace the window list of a daemon running the push backend. The")
		fmt.Fprintln(os.Stderr, "list is a JSON array of window reports, topmost first, read from")
		fmt.Fprintln(os.Stderr, "--file or stdin.")
	}
	file := fs.String("file", "-", "JSON file with the window list ('-' for stdin)")
	if code, ok := parseFlags(fs, args); !ok {
		return code
	}

	var r io.Reader = os.Stdin
	if *file != "-" {
		f, err := os.Open(*file)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		defer f.Close()
		r = f
	}
	infos, err := readWindowInfos(r)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	if err := ipc.NewClient().PushWindows(infos); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	fmt.Printf("pushed %d windows\n", len(infos))
	return 0
}

func printTokenUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  a11yd token add [--session N] [--package NAME] <token>")
	fmt.Fprintln(w, "  a11yd token remove [--session N] <token>")
}

func runToken(args []string) int {
	if len(args) == 0 || args[0] == "help" || args[0] == "-h" || args[0] == "--help" {
		printTokenUsage(os.Stderr)
		return 2
	}

	fs := flag.NewFlagSet("token "+args[0], flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	fs.Usage = func() { printTokenUsage(os.Stderr) }
	session := fs.String("session", "", "Session id, 'current' or 'current-or-self'")
	pkg := fs.String("package", "", "Package the window reports for (add only)")
	if code, ok := parseFlags(fs, args[1:]); !ok {
		return code
	}
	if fs.NArg() != 1 {
		printTokenUsage(os.Stderr)
		return 2
	}
	raw, err := strconv.ParseUint(fs.Arg(0), 0, 64)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid token %q\n", fs.Arg(0))
		return 2
	}
	token := window.Token(raw)
	sess, err := parseSession(*session)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}
	client := ipc.NewClient()

	switch args[0] {
	case "add":
		data, err := client.AddWindow(token, *pkg, sess)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		fmt.Println(data.WindowID)
		if len(data.Packages) > 0 {
			fmt.Fprintf(os.Stderr, "reports for: %s\n", strings.Join(data.Packages, ", "))
		}
		return 0
	case "remove":
		id, removed, err := client.RemoveWindow(token, sess)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		if !removed {
			fmt.Fprintf(os.Stderr, "token %d was not registered\n", token)
			return 1
		}
		fmt.Println(id)
		return 0
	default:
		fmt.Fprintf(os.Stderr, "Unknown token subcommand: %s\n", args[0])
		return 2
	}
}

func runSession(args []string) int {
	if len(args) != 1 || args[0] == "-h" || args[0] == "--help" {
		fmt.Fprintln(os.Stderr, "Usage: a11yd session <n>")
		return 2
	}
	n, err := strconv.Atoi(args[0])
	if err != nil || n < 0 {
		fmt.Fprintf(os.Stderr, "invalid session %q\n", args[0])
		return 2
	}
	if err := ipc.NewClient().SwitchSession(n); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}

func runGesture(args []string) int {
	fs := flag.NewFlagSet("gesture", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: a11yd gesture [--duration D] <x,y> [x,y ...]")
		fmt.Fprintln(os.Stderr, "")
		fmt.Fprintln(os.Stderr, "Inject a single-pointer stroke. Requires the perform_gestures capability.")
	}
	duration := fs.Duration("duration", 300*time.Millisecond, "Stroke duration")
	if code, ok := parseFlags(fs, args); !ok {
		return code
	}
	points, err := parsePoints(strings.Join(fs.Args(), " "))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}
	if err := ipc.NewClient().PerformGesture(points, *duration); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}

func printObserversUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  a11yd observers list [--json]")
	fmt.Fprintln(w, "  a11yd observers register <id> <capability>[,<capability>...]")
	fmt.Fprintln(w, "  a11yd observers unregister <id>")
}

func runObservers(args []string) int {
	if len(args) == 0 {
		args = []string{"list"}
	}
	client := ipc.NewClient()

	switch args[0] {
	case "list":
		fs := flag.NewFlagSet("observers list", flag.ContinueOnError)
		fs.SetOutput(os.Stderr)
		jsonOut := fs.Bool("json", false, "Output as JSON")
		if code, ok := parseFlags(fs, args[1:]); !ok {
			return code
		}
		observers, err := client.ListObservers()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		if wantJSON(*jsonOut) {
			return printJSON(ipc.ObserversData{Observers: observers})
		}
		for _, o := range observers {
			origin := "dynamic"
			if o.Static {
				origin = "static"
			}
			fmt.Printf("%s\tuid=%d\t%s\t%s\n", o.ID, o.UID, origin, o.Capabilities)
		}
		return 0

	case "register":
		if len(args) != 3 {
			printObserversUsage(os.Stderr)
			return 2
		}
		caps := strings.Split(args[2], ",")
		if _, err := security.ParseCapabilities(caps); err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 2
		}
		o, err := client.RegisterObserver(args[1], caps)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		fmt.Printf("registered %s (uid %d): %s\n", o.ID, o.UID, o.Capabilities)
		return 0

	case "unregister":
		if len(args) != 2 {
			printObserversUsage(os.Stderr)
			return 2
		}
		if err := client.UnregisterObserver(args[1]); err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		return 0

	case "help", "-h", "--help":
		printObserversUsage(os.Stdout)
		return 0

	default:
		fmt.Fprintf(os.Stderr, "Unknown observers subcommand: %s\n", args[0])
		printObserversUsage(os.Stderr)
		return 2
	}
}

func runObserve(args []string) int {
	fs := flag.NewFlagSet("observe", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: a11yd observe [--json]")
		fmt.Fprintln(os.Stderr, "")
		fmt.Fprintln(os.Stderr, "Stream notifications until interrupted. What arrives depends on the")
		fmt.Fprintln(os.Stderr, "capabilities of the observers registered for the caller.")
	}
	jsonOut := fs.Bool("json", false, "Output as JSON lines")
	if code, ok := parseFlags(fs, args); !ok {
		return code
	}
	asJSON := wantJSON(*jsonOut)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	enc := json.NewEncoder(os.Stdout)
	err := ipc.NewClient().Subscribe(ctx, func(n dispatch.Notification) {
		if asJSON {
			enc.Encode(n)
			return
		}
		fmt.Println(formatNotification(n))
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}

func formatNotification(n dispatch.Notification) string {
	if n.Kind == dispatch.KindClearAccessibilityFocus || n.Event == nil {
		return fmt.Sprintf("%s window=%s", n.Kind, formatID(n.Window))
	}
	ev := n.Event
	line := fmt.Sprintf("%s %s window=%s session=%d",
		ev.Time.Format("15:04:05.000"), ev.Type, formatID(ev.WindowID), ev.Session)
	if ev.HasSource() {
		line += fmt.Sprintf(" node=%d", ev.SourceNodeID)
	}
	if ev.PackageName != "" {
		line += " package=" + ev.PackageName
	}
	if ev.Action != event.ActionNone {
		line += " action=" + ev.Action.String()
	}
	return line
}
