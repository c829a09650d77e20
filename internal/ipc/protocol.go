package ipc

import (
	"encoding/json"
	"fmt"

	"github.com/1broseidon/a11yd/internal/dispatch"
	"github.com/1broseidon/a11yd/internal/engine"
	"github.com/1broseidon/a11yd/internal/event"
	"github.com/1broseidon/a11yd/internal/geometry"
	"github.com/1broseidon/a11yd/internal/observer"
	"github.com/1broseidon/a11yd/internal/security"
	"github.com/1broseidon/a11yd/internal/window"
)

// CommandType represents different IPC command types
type CommandType string

const (
	CommandReload               CommandType = "RELOAD"
	CommandGetStatus            CommandType = "GET_STATUS"
	CommandListWindows          CommandType = "LIST_WINDOWS"
	CommandGetActiveWindow      CommandType = "GET_ACTIVE_WINDOW"
	CommandFindWindow           CommandType = "FIND_WINDOW"
	CommandGetInteractiveRegion CommandType = "GET_INTERACTIVE_REGION"
	CommandGetWindowBounds      CommandType = "GET_WINDOW_BOUNDS"
	CommandSendEvent            CommandType = "SEND_EVENT"
	CommandTouchInteraction     CommandType = "TOUCH_INTERACTION"
	CommandPushWindows          CommandType = "PUSH_WINDOWS"
	CommandAddWindow            CommandType = "ADD_WINDOW"
	CommandRemoveWindow         CommandType = "REMOVE_WINDOW"
	CommandRegisterObserver     CommandType = "REGISTER_OBSERVER"
	CommandUnregisterObserver   CommandType = "UNREGISTER_OBSERVER"
	CommandListObservers        CommandType = "LIST_OBSERVERS"
	CommandSwitchSession        CommandType = "SWITCH_SESSION"
	CommandPerformGesture       CommandType = "PERFORM_GESTURE"
	CommandSubscribe            CommandType = "SUBSCRIBE"
)

const (
	StatusOK    = "OK"
	StatusError = "ERROR"
)

// Request represents an IPC request from client to server
type Request struct {
	Command CommandType     `json:"command"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Response represents an IPC response from server to client
type Response struct {
	Status string          `json:"status"` // "OK" or "ERROR"
	Data   json.RawMessage `json:"data,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// StatusData represents the data returned by GET_STATUS
type StatusData struct {
	Engine        engine.Status     `json:"engine"`
	Caller        security.Identity `json:"caller"`
	Permissions   Permissions       `json:"permissions"`
	Observers     int               `json:"observers"`
	Subscribers   int               `json:"subscribers"`
	Queue         dispatch.Stats    `json:"queue"`
	Backend       string            `json:"backend"`
	UptimeSeconds int64             `json:"uptime_seconds"`
	DaemonRunning bool              `json:"daemon_running"`
}

// Permissions summarizes what the calling client may do.
type Permissions struct {
	Trusted                    bool `json:"trusted"`
	RetrieveWindows            bool `json:"retrieve_windows"`
	RetrieveWindowContent      bool `json:"retrieve_window_content"`
	ControlMagnification       bool `json:"control_magnification"`
	PerformGestures            bool `json:"perform_gestures"`
	CaptureFingerprintGestures bool `json:"capture_fingerprint_gestures"`
}

// WindowsData is returned by LIST_WINDOWS. Present is false while the
// window list is not tracked or no report arrived yet.
type WindowsData struct {
	Present bool                `json:"present"`
	Windows []window.Descriptor `json:"windows"`
}

// WindowPayload names a window.
type WindowPayload struct {
	WindowID window.ID `json:"window_id"`
}

type ActiveWindowData struct {
	WindowID window.ID `json:"window_id"`
}

// WindowData is returned by FIND_WINDOW. Found is false, and Window nil, when
// the window is unknown or not retrievable by the caller.
type WindowData struct {
	Found  bool               `json:"found"`
	Window *window.Descriptor `json:"window,omitempty"`
}

// RegionData is returned by GET_INTERACTIVE_REGION; Found follows WindowData.
type RegionData struct {
	WindowID window.ID       `json:"window_id"`
	Found    bool            `json:"found"`
	Rects    []geometry.Rect `json:"rects"`
	Bounds   geometry.Rect   `json:"bounds"`
	Area     int             `json:"area"`
	Changed  bool            `json:"changed"`
}

type BoundsData struct {
	WindowID window.ID     `json:"window_id"`
	Found    bool          `json:"found"`
	Bounds   geometry.Rect `json:"bounds"`
}

// SendEventPayload carries an event. A nil session means the current one.
type SendEventPayload struct {
	Event   event.Event `json:"event"`
	Session *int        `json:"session,omitempty"`
}

// TouchPayload starts or ends a touch interaction.
type TouchPayload struct {
	Phase string `json:"phase"` // "start" or "end"
}

// PushWindowsPayload replaces the window list of the push backend, topmost
// first.
type PushWindowsPayload struct {
	Windows []window.Info `json:"windows"`
}

// AddWindowPayload registers a producer token. Package is the package the
// window reports for; it is validated like an event's package.
type AddWindowPayload struct {
	Token   window.Token `json:"token"`
	Package string       `json:"package,omitempty"`
	Session *int         `json:"session,omitempty"`
}

type RemoveWindowPayload struct {
	Token   window.Token `json:"token"`
	Session *int         `json:"session,omitempty"`
}

// AddWindowData is returned by ADD_WINDOW and REMOVE_WINDOW. Packages lists
// what events from the window may report; it is omitted when any package is
// accepted.
type AddWindowData struct {
	WindowID window.ID `json:"window_id"`
	Package  string    `json:"package,omitempty"`
	Packages []string  `json:"packages,omitempty"`
	Removed  bool      `json:"removed,omitempty"`
}

// RegisterObserverPayload declares an observer. UID defaults to the caller;
// only the system may register on behalf of another UID.
type RegisterObserverPayload struct {
	ID           string   `json:"id"`
	UID          *int     `json:"uid,omitempty"`
	Capabilities []string `json:"capabilities"`
}

type UnregisterObserverPayload struct {
	ID string `json:"id"`
}

type ObserversData struct {
	Observers []observer.Observer `json:"observers"`
}

type SwitchSessionPayload struct {
	Session int `json:"session"`
}

type GesturePayload struct {
	Points     []geometry.Point `json:"points"`
	DurationMs int              `json:"duration_ms"`
}

// NewOKResponse creates a successful response with optional data
func NewOKResponse(data interface{}) (*Response, error) {
	var dataBytes json.RawMessage
	if data != nil {
		bytes, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal response data: %w", err)
		}
		dataBytes = bytes
	}

	return &Response{
		Status: StatusOK,
		Data:   dataBytes,
	}, nil
}

// NewErrorResponse creates an error response with a message
func NewErrorResponse(errMsg string) *Response {
	return &Response{
		Status: StatusError,
		Error:  errMsg,
	}
}

// ParseRequest parses a request from JSON bytes
func ParseRequest(data []byte) (*Request, error) {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("failed to parse request: %w", err)
	}
	return &req, nil
}

// Marshal converts a response to JSON bytes
func (r *Response) Marshal() ([]byte, error) {
	return json.Marshal(r)
}

func sessionOrCurrent(s *int) int {
	if s == nil {
		return security.SessionCurrent
	}
	return *s
}
