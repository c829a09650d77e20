package ipc

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"github.com/1broseidon/a11yd/internal/dispatch"
	"github.com/1broseidon/a11yd/internal/engine"
	"github.com/1broseidon/a11yd/internal/geometry"
	"github.com/1broseidon/a11yd/internal/observer"
	"github.com/1broseidon/a11yd/internal/platform"
	"github.com/1broseidon/a11yd/internal/runtimepath"
	"github.com/1broseidon/a11yd/internal/security"
	"github.com/1broseidon/a11yd/internal/window"
)

const allCapabilities = security.CapRetrieveWindowContent |
	security.CapRetrieveInteractiveWindows |
	security.CapControlMagnification |
	security.CapPerformGestures |
	security.CapCaptureFingerprintGestures

// ServerConfig holds the collaborators of a server.
type ServerConfig struct {
	// SocketPath defaults to runtimepath.SocketPath().
	SocketPath string
	// SocketMode is applied to the socket after listening; zero means 0600.
	SocketMode os.FileMode
	Engine     *engine.Engine
	Observers  *observer.Registry
	// Push is set when the daemon runs the push backend.
	Push *platform.PushBackend
	Hub  *Hub
	// Queue is only read for statistics.
	Queue *dispatch.Queue
	// Backend names the window-manager backend for GET_STATUS.
	Backend string
	// Reload re-reads configuration on RELOAD.
	Reload func() error
	Logger *slog.Logger
}

// Server handles IPC requests from clients
type Server struct {
	socketPath string
	socketMode os.FileMode
	listener   net.Listener
	engine     *engine.Engine
	observers  *observer.Registry
	push       *platform.PushBackend
	hub        *Hub
	queue      *dispatch.Queue
	backend    string
	reload     func() error
	logger     *slog.Logger
	startTime  time.Time

	ctx          context.Context
	cancel       context.CancelFunc
	shuttingDown bool
	shutdownMu   sync.Mutex
}

// NewServer creates a new IPC server
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Engine == nil || cfg.Observers == nil {
		return nil, errors.New("ipc server requires an engine and an observer registry")
	}
	socketPath := cfg.SocketPath
	if socketPath == "" {
		var err error
		socketPath, err = runtimepath.SocketPath()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve IPC socket path: %w", err)
		}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	socketMode := cfg.SocketMode
	if socketMode == 0 {
		socketMode = 0600
	}
	hub := cfg.Hub
	if hub == nil {
		hub = NewHub(0, logger)
	}

	// Remove existing socket if present
	os.Remove(socketPath)

	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		socketPath: socketPath,
		socketMode: socketMode,
		engine:     cfg.Engine,
		observers:  cfg.Observers,
		push:       cfg.Push,
		hub:        hub,
		queue:      cfg.Queue,
		backend:    cfg.Backend,
		reload:     cfg.Reload,
		logger:     logger,
		startTime:  time.Now(),
		ctx:        ctx,
		cancel:     cancel,
	}, nil
}

// SocketPath returns the path the server listens on.
func (s *Server) SocketPath() string {
	return s.socketPath
}

// Start begins listening for IPC connections
func (s *Server) Start() error {
	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("failed to create IPC socket: %w", err)
	}
	s.listener = listener

	if err := os.Chmod(s.socketPath, s.socketMode); err != nil {
		listener.Close()
		return fmt.Errorf("failed to set socket permissions: %w", err)
	}

	s.logger.Info("IPC server listening", "socket", s.socketPath, "mode", fmt.Sprintf("%04o", s.socketMode))

	go s.acceptLoop()
	return nil
}

func (s *Server) acceptLoop() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			s.shutdownMu.Lock()
			if s.shuttingDown {
				s.shutdownMu.Unlock()
				return
			}
			s.shutdownMu.Unlock()
			s.logger.Warn("IPC accept error", "error", err)
			continue
		}

		go s.handleConnection(conn)
	}
}

// handleConnection handles a single IPC connection. Every connection carries
// one request; SUBSCRIBE keeps it open for streaming.
func (s *Server) handleConnection(conn net.Conn) {
	defer conn.Close()

	caller, err := peerIdentity(conn)
	if err != nil {
		s.logger.Warn("IPC peer credentials unavailable", "error", err)
		s.sendError(conn, "peer credentials unavailable")
		return
	}

	reader := bufio.NewReader(conn)
	data, err := reader.ReadBytes('\n')
	if err != nil && err != io.EOF {
		s.logger.Warn("IPC read error", "error", err)
		return
	}

	req, err := ParseRequest(data)
	if err != nil {
		s.sendError(conn, fmt.Sprintf("Invalid request: %v", err))
		return
	}

	if req.Command == CommandSubscribe {
		s.serveSubscription(conn, reader, caller)
		return
	}

	resp := s.handleCommand(s.ctx, caller, req)
	if err := writeLine(conn, resp); err != nil {
		s.logger.Warn("failed to send IPC response", "command", req.Command, "error", err)
	}
}

func writeLine(w io.Writer, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal: %w", err)
	}
	data = append(data, '\n')
	_, err = w.Write(data)
	return err
}

// handleCommand processes an IPC command and returns a response
func (s *Server) handleCommand(ctx context.Context, caller security.Identity, req *Request) *Response {
	s.logger.Debug("IPC request", "command", req.Command, "uid", caller.UID, "pid", caller.PID)

	var (
		data any
		err  error
	)
	switch req.Command {
	case CommandReload:
		err = s.handleReload(caller)
	case CommandGetStatus:
		data = s.handleGetStatus(caller)
	case CommandListWindows:
		data, err = s.handleListWindows(caller)
	case CommandGetActiveWindow:
		data = ActiveWindowData{WindowID: s.engine.ActiveWindowID()}
	case CommandFindWindow:
		data, err = s.handleFindWindow(caller, req.Payload)
	case CommandGetInteractiveRegion:
		data, err = s.handleInteractiveRegion(caller, req.Payload)
	case CommandGetWindowBounds:
		data, err = s.handleWindowBounds(caller, req.Payload)
	case CommandSendEvent:
		data, err = s.handleSendEvent(caller, req.Payload)
	case CommandTouchInteraction:
		err = s.handleTouch(caller, req.Payload)
	case CommandPushWindows:
		err = s.handlePushWindows(caller, req.Payload)
	case CommandAddWindow:
		data, err = s.handleAddWindow(caller, req.Payload)
	case CommandRemoveWindow:
		data, err = s.handleRemoveWindow(caller, req.Payload)
	case CommandRegisterObserver:
		data, err = s.handleRegisterObserver(caller, req.Payload)
	case CommandUnregisterObserver:
		err = s.handleUnregisterObserver(caller, req.Payload)
	case CommandListObservers:
		data = ObserversData{Observers: s.observers.List()}
	case CommandSwitchSession:
		err = s.handleSwitchSession(caller, req.Payload)
	case CommandPerformGesture:
		err = s.handlePerformGesture(ctx, caller, req.Payload)
	default:
		return NewErrorResponse(fmt.Sprintf("Unknown command: %s", req.Command))
	}
	if err != nil {
		if errors.Is(err, security.ErrPermissionDenied) {
			s.logger.Warn("IPC request denied", "command", req.Command, "uid", caller.UID, "error", err)
		}
		return NewErrorResponse(err.Error())
	}

	resp, err := NewOKResponse(data)
	if err != nil {
		return NewErrorResponse(err.Error())
	}
	return resp
}

// trusted reports whether caller acts with full authority.
func (s *Server) trusted(caller security.Identity) bool {
	return s.engine.Gate().IsTrusted(caller)
}

// capabilities returns what caller may do: everything for trusted callers,
// otherwise the union of its registered observers' capabilities.
func (s *Server) capabilities(caller security.Identity) security.Capabilities {
	if s.trusted(caller) {
		return allCapabilities
	}
	caps, _ := s.observers.CapabilitiesForUID(caller.UID)
	return caps
}

func (s *Server) requireTrusted(caller security.Identity, what string) error {
	if !s.trusted(caller) {
		return fmt.Errorf("%s: %w", what, security.ErrPermissionDenied)
	}
	return nil
}

func decode(payload json.RawMessage, v any) error {
	if len(payload) == 0 {
		return errors.New("missing payload")
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("invalid payload: %w", err)
	}
	return nil
}

func (s *Server) handleReload(caller security.Identity) error {
	if err := s.requireTrusted(caller, "reload"); err != nil {
		return err
	}
	if s.reload == nil {
		return errors.New("reload is not supported")
	}
	s.logger.Info("IPC: received RELOAD command")
	if err := s.reload(); err != nil {
		return fmt.Errorf("failed to reload config: %w", err)
	}
	return nil
}

func (s *Server) handleGetStatus(caller security.Identity) StatusData {
	status := StatusData{
		Engine:        s.engine.Status(),
		Caller:        caller,
		Permissions:   s.permissions(caller),
		Observers:     len(s.observers.List()),
		Subscribers:   s.hub.Len(),
		Backend:       s.backend,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		DaemonRunning: true,
	}
	if s.queue != nil {
		status.Queue = s.queue.Stats()
	}
	return status
}

func (s *Server) permissions(caller security.Identity) Permissions {
	caps := s.capabilities(caller)
	return Permissions{
		Trusted:                    s.trusted(caller),
		RetrieveWindows:            security.CanRetrieveWindows(caps),
		RetrieveWindowContent:      security.CanRetrieveWindowContent(caps),
		ControlMagnification:       security.CanControlMagnification(caps),
		PerformGestures:            security.CanPerformGestures(caps),
		CaptureFingerprintGestures: security.CanCaptureFingerprintGestures(caps),
	}
}

func (s *Server) handleListWindows(caller security.Identity) (WindowsData, error) {
	if !security.CanRetrieveWindows(s.capabilities(caller)) {
		return WindowsData{}, fmt.Errorf("list windows: %w", security.ErrPermissionDenied)
	}
	s.engine.WaitForWindowsAvailable(0)
	windows := s.engine.Windows()
	return WindowsData{Present: windows != nil, Windows: windows}, nil
}

// retrievableWindow decodes a window payload and checks that caller may look
// into windows at all. The boolean is false when the window is unknown or not
// retrievable; that is an absent result, not an error.
func (s *Server) retrievableWindow(caller security.Identity, payload json.RawMessage) (window.ID, bool, error) {
	var req WindowPayload
	if err := decode(payload, &req); err != nil {
		return window.InvalidID, false, err
	}
	if !security.CanRetrieveWindowContent(s.capabilities(caller)) {
		return window.InvalidID, false, fmt.Errorf("window %d: %w", req.WindowID, security.ErrPermissionDenied)
	}
	s.engine.WaitForWindowsAvailable(0)
	if !s.engine.IsRetrievalAllowedForWindow(caller, req.WindowID) {
		s.logger.Debug("window not retrievable", "window_id", req.WindowID, "uid", caller.UID)
		return req.WindowID, false, nil
	}
	return req.WindowID, true, nil
}

func (s *Server) handleFindWindow(caller security.Identity, payload json.RawMessage) (WindowData, error) {
	id, ok, err := s.retrievableWindow(caller, payload)
	if err != nil || !ok {
		return WindowData{}, err
	}
	d, ok := s.engine.FindWindow(id)
	if !ok {
		return WindowData{}, nil
	}
	return WindowData{Found: true, Window: &d}, nil
}

func (s *Server) handleInteractiveRegion(caller security.Identity, payload json.RawMessage) (RegionData, error) {
	id, ok, err := s.retrievableWindow(caller, payload)
	if err != nil {
		return RegionData{}, err
	}
	if !ok {
		return RegionData{WindowID: id, Rects: []geometry.Rect{}}, nil
	}
	region, changed := s.engine.InteractiveRegion(id)
	return RegionData{
		WindowID: id,
		Found:    true,
		Rects:    region.Rects(),
		Bounds:   region.Bounds(),
		Area:     region.Area(),
		Changed:  changed,
	}, nil
}

func (s *Server) handleWindowBounds(caller security.Identity, payload json.RawMessage) (BoundsData, error) {
	id, ok, err := s.retrievableWindow(caller, payload)
	if err != nil || !ok {
		return BoundsData{WindowID: id}, err
	}
	bounds, ok := s.engine.WindowBounds(id)
	if !ok {
		return BoundsData{WindowID: id}, nil
	}
	return BoundsData{WindowID: id, Found: true, Bounds: bounds}, nil
}

func (s *Server) handleSendEvent(caller security.Identity, payload json.RawMessage) (engine.SendResult, error) {
	var req SendEventPayload
	if err := decode(payload, &req); err != nil {
		return engine.SendResult{}, err
	}
	return s.engine.SendEvent(caller, req.Event, sessionOrCurrent(req.Session))
}

func (s *Server) handleTouch(caller security.Identity, payload json.RawMessage) error {
	if err := s.requireTrusted(caller, "touch interaction"); err != nil {
		return err
	}
	var req TouchPayload
	if err := decode(payload, &req); err != nil {
		return err
	}
	switch req.Phase {
	case "start":
		s.engine.OnTouchInteractionStart()
	case "end":
		s.engine.OnTouchInteractionEnd()
	default:
		return fmt.Errorf("unknown touch phase %q", req.Phase)
	}
	return nil
}

func (s *Server) handlePushWindows(caller security.Identity, payload json.RawMessage) error {
	if err := s.requireTrusted(caller, "push windows"); err != nil {
		return err
	}
	if s.push == nil {
		return fmt.Errorf("backend %q does not accept pushed windows", s.backend)
	}
	var req PushWindowsPayload
	if err := decode(payload, &req); err != nil {
		return err
	}
	s.push.Push(req.Windows)
	return nil
}

func (s *Server) handleAddWindow(caller security.Identity, payload json.RawMessage) (AddWindowData, error) {
	var req AddWindowPayload
	if err := decode(payload, &req); err != nil {
		return AddWindowData{}, err
	}
	reg, err := s.engine.AddWindow(caller, req.Token, req.Package, sessionOrCurrent(req.Session))
	if err != nil {
		return AddWindowData{}, err
	}
	return AddWindowData{WindowID: reg.WindowID, Package: reg.Package, Packages: reg.Packages}, nil
}

func (s *Server) handleRemoveWindow(caller security.Identity, payload json.RawMessage) (AddWindowData, error) {
	var req RemoveWindowPayload
	if err := decode(payload, &req); err != nil {
		return AddWindowData{}, err
	}
	id, ok, err := s.engine.RemoveWindow(caller, req.Token, sessionOrCurrent(req.Session))
	if err != nil {
		return AddWindowData{}, err
	}
	return AddWindowData{WindowID: id, Removed: ok}, nil
}

func (s *Server) handleRegisterObserver(caller security.Identity, payload json.RawMessage) (observer.Observer, error) {
	var req RegisterObserverPayload
	if err := decode(payload, &req); err != nil {
		return observer.Observer{}, err
	}
	caps, err := security.ParseCapabilities(req.Capabilities)
	if err != nil {
		return observer.Observer{}, err
	}
	uid := caller.UID
	if req.UID != nil && *req.UID != caller.UID {
		if err := s.requireTrusted(caller, "register observer for another uid"); err != nil {
			return observer.Observer{}, err
		}
		uid = *req.UID
	}

	o := observer.Observer{ID: req.ID, UID: uid, Capabilities: caps}
	if err := s.observers.Register(o); err != nil {
		return observer.Observer{}, err
	}
	s.logger.Info("observer registered", "observer", o.ID, "uid", o.UID, "capabilities", caps.String())
	return o, nil
}

func (s *Server) handleUnregisterObserver(caller security.Identity, payload json.RawMessage) error {
	var req UnregisterObserverPayload
	if err := decode(payload, &req); err != nil {
		return err
	}
	if o, ok := s.observers.Get(req.ID); ok && o.UID != caller.UID {
		if err := s.requireTrusted(caller, "unregister foreign observer"); err != nil {
			return err
		}
	}
	if err := s.observers.Unregister(req.ID); err != nil {
		return err
	}
	s.logger.Info("observer unregistered", "observer", req.ID)
	return nil
}

func (s *Server) handleSwitchSession(caller security.Identity, payload json.RawMessage) error {
	if err := s.requireTrusted(caller, "switch session"); err != nil {
		return err
	}
	var req SwitchSessionPayload
	if err := decode(payload, &req); err != nil {
		return err
	}
	if req.Session < 0 {
		return fmt.Errorf("session %d: %w", req.Session, security.ErrInvalidSession)
	}
	s.engine.SwitchSession(req.Session)
	return nil
}

func (s *Server) handlePerformGesture(ctx context.Context, caller security.Identity, payload json.RawMessage) error {
	var req GesturePayload
	if err := decode(payload, &req); err != nil {
		return err
	}
	g := platform.Gesture{
		Points:   req.Points,
		Duration: time.Duration(req.DurationMs) * time.Millisecond,
	}
	return s.engine.PerformGesture(ctx, s.capabilities(caller), g)
}

// serveSubscription acknowledges the request and streams notifications
// until the client disconnects or the server stops.
func (s *Server) serveSubscription(conn net.Conn, reader *bufio.Reader, caller security.Identity) {
	notifications, cancel := s.hub.Subscribe(func() security.Capabilities {
		return s.capabilities(caller)
	})
	defer cancel()

	ack, _ := NewOKResponse(nil)
	if err := writeLine(conn, ack); err != nil {
		return
	}
	s.logger.Info("subscriber attached", "uid", caller.UID, "pid", caller.PID)

	// Any read result, data or EOF, ends the subscription.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		_, _ = reader.ReadByte()
	}()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-gone:
			s.logger.Info("subscriber detached", "uid", caller.UID, "pid", caller.PID)
			return
		case n, ok := <-notifications:
			if !ok {
				return
			}
			if err := writeLine(conn, n); err != nil {
				s.logger.Debug("subscriber write failed", "error", err)
				return
			}
		}
	}
}

// sendError sends an error response
func (s *Server) sendError(conn net.Conn, errMsg string) {
	_ = writeLine(conn, NewErrorResponse(errMsg))
}

// Stop gracefully shuts down the IPC server
func (s *Server) Stop() {
	s.shutdownMu.Lock()
	s.shuttingDown = true
	s.shutdownMu.Unlock()

	s.cancel()
	if s.listener != nil {
		s.listener.Close()
	}
	os.Remove(s.socketPath)
}
