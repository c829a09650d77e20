package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"gopkg.in/yaml.v3"

	"github.com/1broseidon/a11yd/internal/config"
	"github.com/1broseidon/a11yd/internal/daemon"
	"github.com/1broseidon/a11yd/internal/ipc"
	"github.com/1broseidon/a11yd/internal/logging"
)

func main() {
	if len(os.Args) < 2 {
		printMainUsage(os.Stdout)
		os.Exit(0)
	}

	switch os.Args[1] {
	case "daemon":
		os.Exit(runDaemon(os.Args[2:]))
	case "status":
		os.Exit(runStatus(os.Args[2:]))
	case "reload":
		os.Exit(runReload(os.Args[2:]))
	case "windows":
		os.Exit(runWindows(os.Args[2:]))
	case "active":
		os.Exit(runActive(os.Args[2:]))
	case "window":
		os.Exit(runWindow(os.Args[2:]))
	case "region":
		os.Exit(runRegion(os.Args[2:]))
	case "bounds":
		os.Exit(runBounds(os.Args[2:]))
	case "send":
		os.Exit(runSend(os.Args[2:]))
	case "touch":
		os.Exit(runTouch(os.Args[2:]))
	case "push":
		os.Exit(runPush(os.Args[2:]))
	case "token":
		os.Exit(runToken(os.Args[2:]))
	case "observers":
		os.Exit(runObservers(os.Args[2:]))
	case "observe":
		os.Exit(runObserve(os.Args[2:]))
	case "session":
		os.Exit(runSession(os.Args[2:]))
	case "gesture":
		os.Exit(runGesture(os.Args[2:]))
	case "config":
		os.Exit(runConfig(os.Args[2:]))
	case "mcp":
		os.Exit(runMCP(os.Args[2:]))
	case "help", "-h", "--help":
		printMainUsage(os.Stdout)
		os.Exit(0)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printMainUsage(os.Stderr)
		os.Exit(2)
	}
}

func printMainUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: a11yd <command> [options]")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  daemon              Start the a11yd daemon (foreground)")
	fmt.Fprintln(w, "  status              Show daemon status")
	fmt.Fprintln(w, "  reload              Reload daemon configuration")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "  windows             List windows, topmost first")
	fmt.Fprintln(w, "  active              Show the active window id")
	fmt.Fprintln(w, "  window <id>         Describe a window")
	fmt.Fprintln(w, "  region <id>         Show the interactive region of a window")
	fmt.Fprintln(w, "  bounds <id>         Show the bounds of a window")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "  send <type>         Send an accessibility event")
	fmt.Fprintln(w, "  touch start|end     Start or end a touch interaction")
	fmt.Fprintln(w, "  push                Replace the window list (push backend)")
	fmt.Fprintln(w, "  token add|remove    Register or unregister a window token")
	fmt.Fprintln(w, "  session <n>         Switch the live session")
	fmt.Fprintln(w, "  gesture             Inject a pointer gesture")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "  observers           List, register or unregister observers")
	fmt.Fprintln(w, "  observe             Stream notifications")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "  config validate     Validate configuration")
	fmt.Fprintln(w, "  config print        Print configuration")
	fmt.Fprintln(w, "  config explain      Explain a config value")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "  mcp serve           Start MCP server (stdio transport)")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Run 'a11yd <command> --help' for command-specific options.")
}

// parseFlags parses args and maps the outcome to an exit code; ok is false
// when the caller should return code.
func parseFlags(fs *flag.FlagSet, args []string) (code int, ok bool) {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0, false
		}
		return 2, false
	}
	return 0, true
}

func loadConfig(path string) (*config.LoadResult, error) {
	if path == "" {
		return config.LoadWithSources()
	}
	return config.LoadFromPath(path)
}

func runDaemon(args []string) int {
	fs := flag.NewFlagSet("daemon", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: a11yd daemon [--config PATH]")
		fmt.Fprintln(os.Stderr, "")
		fmt.Fprintln(os.Stderr, "Run the coordination daemon in the foreground. SIGHUP reloads the")
		fmt.Fprintln(os.Stderr, "configuration; SIGINT and SIGTERM shut it down.")
		fmt.Fprintln(os.Stderr, "")
		fmt.Fprintln(os.Stderr, "Flags:")
		fs.PrintDefaults()
	}
	path := fs.String("config", "", "Config file path (default: $A11YD_CONFIG or ~/.config/a11yd/config.yaml)")
	if code, ok := parseFlags(fs, args); !ok {
		return code
	}
	if fs.NArg() != 0 {
		fmt.Fprintln(os.Stderr, "daemon takes no arguments")
		fs.Usage()
		return 2
	}

	res, err := loadConfig(*path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		return 1
	}
	cfg := res.Config

	logger := logging.New(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	for _, w := range res.Warnings {
		logger.Warn("config warning", "warning", w)
	}
	logger.Info("configuration loaded",
		"files", len(res.Files),
		"backend", cfg.Backend,
		"observers", len(cfg.Observers))

	d, err := daemon.New(cfg, daemon.Options{ConfigPath: *path, Logger: logger})
	if err != nil {
		logger.Error("failed to start daemon", "error", err)
		return 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigCh)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case sig := <-sigCh:
				if sig == syscall.SIGHUP {
					logger.Info("received SIGHUP, reloading config")
					_ = d.Reload()
					continue
				}
				logger.Info("received signal, shutting down", "signal", sig.String())
				cancel()
				return
			}
		}
	}()

	if err := d.Run(ctx); err != nil {
		logger.Error("daemon stopped with error", "error", err)
		return 1
	}
	return 0
}

func runStatus(args []string) int {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: a11yd status [--json]")
		fmt.Fprintln(os.Stderr, "")
		fmt.Fprintln(os.Stderr, "Show daemon status via IPC.")
	}
	jsonOut := fs.Bool("json", false, "Output as JSON")
	if code, ok := parseFlags(fs, args); !ok {
		return code
	}
	if fs.NArg() != 0 {
		fmt.Fprintln(os.Stderr, "status takes no arguments")
		fs.Usage()
		return 2
	}

	status, err := ipc.NewClient().GetStatus()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	if wantJSON(*jsonOut) {
		return printJSON(status)
	}
	e := status.Engine
	fmt.Printf("daemon_running:       %v\n", status.DaemonRunning)
	fmt.Printf("backend:              %s\n", status.Backend)
	fmt.Printf("session:              %d\n", e.Session)
	fmt.Printf("tracking:             %v\n", e.Tracking)
	fmt.Printf("snapshot_present:     %v\n", e.SnapshotPresent)
	fmt.Printf("window_count:         %d\n", e.WindowCount)
	fmt.Printf("active_window:        %s\n", formatID(e.Focus.ActiveWindow))
	fmt.Printf("focused_window:       %s\n", formatID(e.Focus.FocusedWindow))
	fmt.Printf("a11y_focused_window:  %s\n", formatID(e.Focus.AccessibilityFocusedWindow))
	fmt.Printf("touch_interaction:    %v\n", e.Focus.TouchInteraction)
	fmt.Printf("focus_only_in_active: %v\n", e.FocusOnlyInActiveWindow)
	fmt.Printf("injector_installed:   %v\n", e.InjectorInstalled)
	fmt.Printf("observers:            %d\n", status.Observers)
	fmt.Printf("subscribers:          %d\n", status.Subscribers)
	fmt.Printf("queue:                pending=%d delivered=%d failed=%d\n", status.Queue.Pending, status.Queue.Delivered, status.Queue.Failed)
	fmt.Printf("caller:               uid=%d pid=%d\n", status.Caller.UID, status.Caller.PID)
	fmt.Printf("caller_permissions:   %s\n", formatPermissions(status.Permissions))
	fmt.Printf("uptime_seconds:       %d\n", status.UptimeSeconds)
	return 0
}

func formatPermissions(p ipc.Permissions) string {
	if p.Trusted {
		return "trusted"
	}
	var names []string
	for _, perm := range []struct {
		name string
		ok   bool
	}{
		{"retrieve_windows", p.RetrieveWindows},
		{"retrieve_window_content", p.RetrieveWindowContent},
		{"control_magnification", p.ControlMagnification},
		{"perform_gestures", p.PerformGestures},
		{"capture_fingerprint_gestures", p.CaptureFingerprintGestures},
	} {
		if perm.ok {
			names = append(names, perm.name)
		}
	}
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, ",")
}

func runReload(args []string) int {
	fs := flag.NewFlagSet("reload", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: a11yd reload")
		fmt.Fprintln(os.Stderr, "")
		fmt.Fprintln(os.Stderr, "Ask the daemon to re-read its configuration file.")
	}
	if code, ok := parseFlags(fs, args); !ok {
		return code
	}
	if err := ipc.NewClient().Reload(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	fmt.Println("config reloaded")
	return 0
}

func runConfig(args []string) int {
	if len(args) == 0 || args[0] == "help" || args[0] == "-h" || args[0] == "--help" {
		fmt.Fprintln(os.Stderr, "Usage:")
		fmt.Fprintln(os.Stderr, "  a11yd config validate [--path PATH]")
		fmt.Fprintln(os.Stderr, "  a11yd config print [--path PATH] [--effective|--defaults]")
		fmt.Fprintln(os.Stderr, "  a11yd config explain [--path PATH] <yaml.path>")
		return 2
	}

	switch args[0] {
	case "validate":
		fs := flag.NewFlagSet("validate", flag.ContinueOnError)
		fs.SetOutput(os.Stderr)
		path := fs.String("path", "", "Config file path (default: ~/.config/a11yd/config.yaml)")
		if code, ok := parseFlags(fs, args[1:]); !ok {
			return code
		}

		res, err := loadConfig(*path)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		for _, w := range res.Warnings {
			fmt.Fprintf(os.Stderr, "warning: %s\n", w)
		}
		fmt.Println("config: ok")
		return 0

	case "print":
		fs := flag.NewFlagSet("print", flag.ContinueOnError)
		fs.SetOutput(os.Stderr)
		path := fs.String("path", "", "Config file path (default: ~/.config/a11yd/config.yaml)")
		printDefaults := fs.Bool("defaults", false, "Print built-in defaults (no files)")
		fs.Bool("effective", true, "Print effective config (default)")
		if code, ok := parseFlags(fs, args[1:]); !ok {
			return code
		}

		cfg := config.DefaultConfig()
		if !*printDefaults {
			res, err := loadConfig(*path)
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				return 1
			}
			cfg = res.Config
		}
		data, err := yaml.Marshal(cfg)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		fmt.Print(string(data))
		return 0

	case "explain":
		fs := flag.NewFlagSet("explain", flag.ContinueOnError)
		fs.SetOutput(os.Stderr)
		path := fs.String("path", "", "Config file path (default: ~/.config/a11yd/config.yaml)")
		if code, ok := parseFlags(fs, args[1:]); !ok {
			return code
		}
		if fs.NArg() < 1 {
			fmt.Fprintln(os.Stderr, "explain requires <yaml.path>")
			return 2
		}
		queryPath := fs.Arg(0)

		res, err := loadConfig(*path)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		value, src, err := config.Explain(res, queryPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		out, err := yaml.Marshal(value)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}

		fmt.Printf("path: %s\n", queryPath)
		fmt.Printf("source: %s\n", src)
		fmt.Printf("value:\n%s", string(out))
		return 0

	default:
		fmt.Fprintf(os.Stderr, "Unknown config subcommand: %s\n", args[0])
		return 2
	}
}
