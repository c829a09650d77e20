package security

import (
	"errors"
	"testing"

	"github.com/1broseidon/a11yd/internal/event"
	"github.com/1broseidon/a11yd/internal/window"
)

type fakePackages struct {
	owners  map[string]int
	widgets map[int][]string
}

func (f fakePackages) PackageUID(pkg string, session int) (int, bool) {
	uid, ok := f.owners[pkg]
	if !ok || uid/PerSessionRange != session {
		return 0, false
	}
	return uid, true
}

func (f fakePackages) PackagesForUID(uid int) []string {
	var out []string
	// Deterministic order for the test directory.
	for _, name := range []string{"org.example.mail", "org.example.shared", "org.example.clock"} {
		if f.owners[name] == uid {
			out = append(out, name)
		}
	}
	return out
}

func (f fakePackages) HostedWidgetPackages(uid int) []string {
	return f.widgets[uid]
}

type fakeSessions struct {
	parents map[int]int
	cross   map[int]bool
}

func (f fakeSessions) ProfileParent(session int) (int, bool) {
	p, ok := f.parents[session]
	return p, ok
}

func (f fakeSessions) HasCrossSessionPermission(caller Identity) bool {
	return f.cross[caller.UID]
}

func TestCapabilities(t *testing.T) {
	caps, err := ParseCapabilities([]string{"retrieve_window_content", "perform-gestures"})
	if err != nil {
		t.Fatalf("ParseCapabilities: %v", err)
	}
	if !CanRetrieveWindowContent(caps) || !CanPerformGestures(caps) {
		t.Fatalf("caps %v missing expected members", caps)
	}
	if CanRetrieveWindows(caps) {
		t.Fatal("CanRetrieveWindows needs interactive-window interest")
	}
	if !CanRetrieveWindows(caps | CapRetrieveInteractiveWindows) {
		t.Fatal("CanRetrieveWindows should pass with both capabilities")
	}
	if CanRetrieveWindows(CapRetrieveInteractiveWindows) {
		t.Fatal("interest alone must not grant window retrieval")
	}
	if _, err := ParseCapabilities([]string{"fly"}); err == nil {
		t.Fatal("expected error for unknown capability")
	}
}

func TestCanDispatchEvent(t *testing.T) {
	g := NewGate(nil, nil)
	app := Identity{UID: 10123, PID: 42}
	view := View{
		ActiveWindow: 5,
		HasWindow:    func(id window.ID) bool { return id == 1 || id == 2 },
	}

	tests := []struct {
		name   string
		caller Identity
		typ    event.Type
		window window.ID
		want   bool
	}{
		{name: "content change from unknown window", caller: app, typ: event.WindowContentChanged, window: 9, want: false},
		{name: "content change from active window", caller: app, typ: event.WindowContentChanged, window: 5, want: true},
		{name: "content change from snapshot window", caller: app, typ: event.WindowContentChanged, window: 2, want: true},
		{name: "allow-listed type from unknown window", caller: app, typ: event.Announcement, window: 9, want: true},
		{name: "system sees everything", caller: Identity{UID: DefaultSystemUID}, typ: event.ViewClicked, window: 9, want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev := event.New(tt.typ, tt.window)
			if got := g.CanDispatchEvent(tt.caller, ev, view); got != tt.want {
				t.Fatalf("CanDispatchEvent() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAllowListsAreDistinct(t *testing.T) {
	// Both lists enumerate their members; a few types sit on only one.
	if !DispatchAllowList.Contains(event.Announcement) || CanObserveFullSource(event.Announcement) {
		t.Fatal("announcement should be dispatched but redacted")
	}
	if DispatchAllowList.Contains(event.ViewClicked) || !CanObserveFullSource(event.ViewClicked) {
		t.Fatal("view_clicked should be gated but keep its source")
	}
	if got := len(DispatchAllowList.Types()); got != 13 {
		t.Fatalf("len(DispatchAllowList) = %d, want 13", got)
	}
	if got := len(SourceAllowList.Types()); got != 14 {
		t.Fatalf("len(SourceAllowList) = %d, want 14", got)
	}
}

func TestRedactSource(t *testing.T) {
	ev := event.New(event.Announcement, 1)
	ev.SourceNodeID = 77
	if got := RedactSource(ev); got.HasSource() {
		t.Fatal("announcement should lose its source")
	}

	ev.Type = event.ViewFocused
	if got := RedactSource(ev); got.SourceNodeID != 77 {
		t.Fatalf("SourceNodeID = %d, want 77", got.SourceNodeID)
	}
}

func TestResolveReportedPackage(t *testing.T) {
	pkgs := fakePackages{
		owners: map[string]int{
			"org.example.mail":   10050,
			"org.example.shared": 10050,
			"org.example.clock":  10060,
		},
		widgets: map[int][]string{10050: {"org.example.clock"}},
	}
	g := NewGate(pkgs, nil)
	mail := Identity{UID: 10050}

	tests := []struct {
		name    string
		caller  Identity
		pkg     string
		want    string
		wantRes PackageResolution
	}{
		{name: "empty", caller: mail, pkg: "", want: "", wantRes: PackageEmpty},
		{name: "system bypass", caller: Identity{UID: DefaultSystemUID}, pkg: "anything", want: "anything", wantRes: PackageTrusted},
		{name: "own package", caller: mail, pkg: "org.example.shared", want: "org.example.shared", wantRes: PackageOwned},
		{name: "hosted widget", caller: mail, pkg: "org.example.clock", want: "org.example.clock", wantRes: PackageHostedWidget},
		{name: "foreign package substituted", caller: mail, pkg: "org.example.bank", want: "org.example.mail", wantRes: PackageSubstituted},
		{name: "uid without packages", caller: Identity{UID: 10099}, pkg: "org.example.bank", want: "", wantRes: PackageUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, res := g.ResolveReportedPackage(tt.pkg, tt.caller, 0)
			if got != tt.want || res != tt.wantRes {
				t.Fatalf("ResolveReportedPackage() = (%q, %v), want (%q, %v)", got, res, tt.want, tt.wantRes)
			}
		})
	}
}

func TestValidReportedPackages(t *testing.T) {
	pkgs := fakePackages{widgets: map[int][]string{10050: {"org.example.clock"}}}
	g := NewGate(pkgs, nil)

	if got := g.ValidReportedPackages(Identity{UID: DefaultSystemUID}, "x", 10050); got != nil {
		t.Fatalf("system caller got %v, want nil (any package)", got)
	}
	got := g.ValidReportedPackages(Identity{UID: 10050}, "org.example.mail", 10050)
	if len(got) != 2 || got[0] != "org.example.mail" || got[1] != "org.example.clock" {
		t.Fatalf("ValidReportedPackages() = %v", got)
	}
}

func TestResolveCallingSession(t *testing.T) {
	sessions := fakeSessions{
		parents: map[int]int{10: 0},
		cross:   map[int]bool{UIDFor(3, 10200): true},
	}
	g := NewGate(nil, sessions)
	const current = 0

	tests := []struct {
		name      string
		caller    Identity
		requested int
		want      int
		wantErr   error
	}{
		{name: "root current sentinel", caller: Identity{UID: 0}, requested: SessionCurrent, want: current},
		{name: "shell concrete session", caller: Identity{UID: DefaultShellUID}, requested: 10, want: 0},
		{name: "same session", caller: Identity{UID: UIDFor(0, 10100)}, requested: 0, want: 0},
		{name: "profile redirected to parent", caller: Identity{UID: UIDFor(10, 10100)}, requested: 10, want: 0},
		{name: "profile child uses sentinel", caller: Identity{UID: UIDFor(10, 10100)}, requested: SessionCurrentOrSelf, want: current},
		{name: "cross session without permission", caller: Identity{UID: UIDFor(4, 10100)}, requested: SessionCurrent, wantErr: ErrPermissionDenied},
		{name: "cross session with permission", caller: Identity{UID: UIDFor(3, 10200)}, requested: SessionCurrent, want: current},
		{name: "cross session concrete target", caller: Identity{UID: UIDFor(3, 10200)}, requested: 0, wantErr: ErrInvalidSession},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := g.ResolveCallingSession(tt.caller, tt.requested, current)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("ResolveCallingSession() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestIsCrossSessionCaller(t *testing.T) {
	g := NewGate(nil, nil)
	const own = 100

	if !g.IsCrossSessionCaller(Identity{UID: 10100, PID: own}, 0, own) {
		t.Fatal("own process should be cross-session")
	}
	if !g.IsCrossSessionCaller(Identity{UID: DefaultShellUID, PID: 5}, 0, own) {
		t.Fatal("shell should be cross-session")
	}
	if !g.IsCrossSessionCaller(Identity{UID: 10100, PID: 5}, SessionCurrent, own) {
		t.Fatal("current sentinel should be cross-session")
	}
	if g.IsCrossSessionCaller(Identity{UID: 10100, PID: 5}, 0, own) {
		t.Fatal("plain app naming its session should be session-scoped")
	}
}

func TestIsTrusted(t *testing.T) {
	g := NewGate(nil, nil)
	tests := []struct {
		caller Identity
		want   bool
	}{
		{Identity{UID: RootUID}, true},
		{Identity{UID: DefaultSystemUID}, true},
		{Identity{UID: DefaultShellUID}, false},
		{Identity{UID: 10100}, false},
		{Identity{UID: UIDFor(1, DefaultSystemUID)}, false},
	}
	for _, tt := range tests {
		if got := g.IsTrusted(tt.caller); got != tt.want {
			t.Errorf("IsTrusted(%d) = %v, want %v", tt.caller.UID, got, tt.want)
		}
	}
}

func TestPackageResolutionString(t *testing.T) {
	if got := PackageRegistered.String(); got != "registered" {
		t.Fatalf("PackageRegistered = %q", got)
	}
	if got := PackageEmpty.String(); got != "empty" {
		t.Fatalf("PackageEmpty = %q", got)
	}
}
