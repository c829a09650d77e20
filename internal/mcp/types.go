package mcp

// WindowInput names a window.
type WindowInput struct {
	WindowID int `json:"window_id" jsonschema:"Window id as returned by list_windows"`
}

// EmptyInput is the input for tools without arguments.
type EmptyInput struct{}

// RectOutput is a screen rectangle.
type RectOutput struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// WindowOutput describes one window of the snapshot.
type WindowOutput struct {
	ID                   int        `json:"id"`
	Type                 string     `json:"type"`
	Layer                int        `json:"layer"`
	Bounds               RectOutput `json:"bounds"`
	Title                string     `json:"title,omitempty"`
	ParentID             int        `json:"parent_id"`
	Children             []int      `json:"children,omitempty"`
	Focused              bool       `json:"focused"`
	Active               bool       `json:"active"`
	AccessibilityFocused bool       `json:"accessibility_focused"`
	PictureInPicture     bool       `json:"picture_in_picture"`
}

// FindWindowOutput is the output for the find_window tool. Found is false
// when the window is unknown or hidden from the caller.
type FindWindowOutput struct {
	Found  bool          `json:"found"`
	Window *WindowOutput `json:"window,omitempty"`
}

// ListWindowsOutput is the output for the list_windows tool.
type ListWindowsOutput struct {
	Present bool           `json:"present"`
	Windows []WindowOutput `json:"windows"`
}

// ActiveWindowOutput is the output for the get_active_window tool.
type ActiveWindowOutput struct {
	WindowID int  `json:"window_id"`
	Valid    bool `json:"valid"`
}

// RegionOutput is the output for the get_interactive_region tool.
type RegionOutput struct {
	WindowID int          `json:"window_id"`
	Found    bool         `json:"found"`
	Rects    []RectOutput `json:"rects"`
	Bounds   RectOutput   `json:"bounds"`
	Area     int          `json:"area"`
	Covered  bool         `json:"covered"`
}

// BoundsOutput is the output for the get_window_bounds tool.
type BoundsOutput struct {
	WindowID int        `json:"window_id"`
	Found    bool       `json:"found"`
	Bounds   RectOutput `json:"bounds"`
}

// ObserverOutput describes a registered observer.
type ObserverOutput struct {
	ID           string   `json:"id"`
	UID          int      `json:"uid"`
	Capabilities []string `json:"capabilities"`
	Static       bool     `json:"static"`
}

// ListObserversOutput is the output for the list_observers tool.
type ListObserversOutput struct {
	Observers []ObserverOutput `json:"observers"`
}

// StatusOutput is the output for the get_status tool.
type StatusOutput struct {
	Backend                 string `json:"backend"`
	Session                 int    `json:"session"`
	Tracking                bool   `json:"tracking"`
	SnapshotPresent         bool   `json:"snapshot_present"`
	WindowCount             int    `json:"window_count"`
	ActiveWindow            int    `json:"active_window"`
	FocusedWindow           int    `json:"focused_window"`
	AccessibilityFocused    int    `json:"accessibility_focused_window"`
	TouchInteraction        bool   `json:"touch_interaction"`
	FocusOnlyInActiveWindow bool   `json:"focus_only_in_active_window"`
	InjectorInstalled       bool   `json:"injector_installed"`
	Observers               int    `json:"observers"`
	Subscribers             int    `json:"subscribers"`
	PendingNotifications    int    `json:"pending_notifications"`
	UptimeSeconds           int64  `json:"uptime_seconds"`
}
