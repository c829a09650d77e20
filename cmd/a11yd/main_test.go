package main

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/1broseidon/a11yd/internal/dispatch"
	"github.com/1broseidon/a11yd/internal/event"
	"github.com/1broseidon/a11yd/internal/geometry"
	"github.com/1broseidon/a11yd/internal/ipc"
	"github.com/1broseidon/a11yd/internal/security"
	"github.com/1broseidon/a11yd/internal/window"
)

func TestParseSession(t *testing.T) {
	tests := []struct {
		in      string
		want    *int
		wantErr bool
	}{
		{in: "", want: nil},
		{in: "current", want: intPtr(security.SessionCurrent)},
		{in: "current-or-self", want: intPtr(security.SessionCurrentOrSelf)},
		{in: "10", want: intPtr(10)},
		{in: "-1", wantErr: true},
		{in: "abc", wantErr: true},
	}
	for _, tt := range tests {
		got, err := parseSession(tt.in)
		if (err != nil) != tt.wantErr {
			t.Fatalf("parseSession(%q) err=%v, wantErr=%v", tt.in, err, tt.wantErr)
		}
		if !reflect.DeepEqual(got, tt.want) {
			t.Fatalf("parseSession(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func intPtr(v int) *int { return &v }

func TestParsePoints(t *testing.T) {
	got, err := parsePoints("10,20 30,40;50, 60")
	if err != nil {
		t.Fatalf("parsePoints: %v", err)
	}
	want := []geometry.Point{{X: 10, Y: 20}, {X: 30, Y: 40}, {X: 50, Y: 60}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("parsePoints = %v, want %v", got, want)
	}

	for _, bad := range []string{"", "10", "a,b", "1,2 3"} {
		if _, err := parsePoints(bad); err == nil {
			t.Errorf("parsePoints(%q) should fail", bad)
		}
	}
}

func TestParseWindowID(t *testing.T) {
	if id, err := parseWindowID(" 7 "); err != nil || id != 7 {
		t.Fatalf("parseWindowID = %d, %v", id, err)
	}
	for _, bad := range []string{"0", "-1", "x"} {
		if _, err := parseWindowID(bad); err == nil {
			t.Errorf("parseWindowID(%q) should fail", bad)
		}
	}
}

func TestReadWindowInfos(t *testing.T) {
	infos, err := readWindowInfos(strings.NewReader(`[
		{"token": 5, "type": "application", "layer": 0, "bounds": {"x": 0, "y": 0, "width": 10, "height": 10}, "focused": true},
		{"token": 6, "type": "overlay", "layer": 2, "bounds": {"x": 1, "y": 1, "width": 2, "height": 2}}
	]`))
	if err != nil {
		t.Fatalf("readWindowInfos: %v", err)
	}
	if len(infos) != 2 || infos[0].Token != 5 || !infos[0].Focused || infos[1].Type != window.TypeAccessibilityOverlay {
		t.Fatalf("unexpected infos %+v", infos)
	}
	if _, err := readWindowInfos(strings.NewReader(`{"token": 1}`)); err == nil {
		t.Fatal("expected error for non-array input")
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		max  int
		want string
	}{
		{"short", 10, "short"},
		{"exactly10!", 10, "exactly10!"},
		{"a longer window title", 10, "a longe..."},
		{"abcdef", 2, "ab"},
	}
	for _, tt := range tests {
		if got := truncate(tt.in, tt.max); got != tt.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tt.in, tt.max, got, tt.want)
		}
	}
}

func TestWindowFlags(t *testing.T) {
	if got := windowFlags(window.Descriptor{}); got != "-" {
		t.Fatalf("no flags = %q", got)
	}
	d := window.Descriptor{Active: true, Focused: true, AccessibilityFocused: true}
	if got := windowFlags(d); got != "active,focused,a11y" {
		t.Fatalf("flags = %q", got)
	}
}

func TestFormatPermissions(t *testing.T) {
	tests := []struct {
		in   ipc.Permissions
		want string
	}{
		{ipc.Permissions{}, "none"},
		{ipc.Permissions{Trusted: true, PerformGestures: true}, "trusted"},
		{ipc.Permissions{ControlMagnification: true, CaptureFingerprintGestures: true}, "control_magnification,capture_fingerprint_gestures"},
	}
	for _, tt := range tests {
		if got := formatPermissions(tt.in); got != tt.want {
			t.Errorf("formatPermissions(%+v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFormatNotification(t *testing.T) {
	ev := event.New(event.ViewFocused, 3)
	ev.Time = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	ev.PackageName = "org.example.app"
	ev.Action = event.ActionFocus
	got := formatNotification(dispatch.Notification{Kind: dispatch.KindEvent, Event: &ev, Window: 3})
	want := "03:04:05.000 view_focused window=3 session=0 package=org.example.app action=focus"
	if got != want {
		t.Fatalf("formatNotification = %q, want %q", got, want)
	}

	clear := formatNotification(dispatch.Notification{Kind: dispatch.KindClearAccessibilityFocus, Window: 9})
	if clear != "clear_accessibility_focus window=9" {
		t.Fatalf("clear notification = %q", clear)
	}
}

func TestRunConfigValidate(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.yaml")
	if err := os.WriteFile(good, []byte("backend: push\nlog_level: debug\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	bad := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(bad, []byte("backend: wayland\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	if rc := runConfig([]string{"validate", "--path", good}); rc != 0 {
		t.Fatalf("validate good rc=%d, want 0", rc)
	}
	if rc := runConfig([]string{"validate", "--path", bad}); rc != 1 {
		t.Fatalf("validate bad rc=%d, want 1", rc)
	}
	if rc := runConfig([]string{"explain", "--path", good, "backend"}); rc != 0 {
		t.Fatalf("explain rc=%d, want 0", rc)
	}
	if rc := runConfig([]string{"bogus"}); rc != 2 {
		t.Fatalf("unknown subcommand rc=%d, want 2", rc)
	}
}

func TestCommandArgumentErrors(t *testing.T) {
	if rc := runToken([]string{"add", "not-a-number"}); rc != 2 {
		t.Fatalf("token add rc=%d, want 2", rc)
	}
	if rc := runSession([]string{"x"}); rc != 2 {
		t.Fatalf("session rc=%d, want 2", rc)
	}
	if rc := runTouch([]string{"sideways"}); rc != 2 {
		t.Fatalf("touch rc=%d, want 2", rc)
	}
	if rc := runSend([]string{"not_an_event"}); rc != 2 {
		t.Fatalf("send rc=%d, want 2", rc)
	}
	if rc := runWindow([]string{}); rc != 2 {
		t.Fatalf("window rc=%d, want 2", rc)
	}
}
