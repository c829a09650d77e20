package mcp

import (
	"context"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/1broseidon/a11yd/internal/geometry"
	"github.com/1broseidon/a11yd/internal/window"
)

func rectOutput(r geometry.Rect) RectOutput {
	return RectOutput{X: r.X, Y: r.Y, Width: r.Width, Height: r.Height}
}

func windowOutput(d window.Descriptor) WindowOutput {
	out := WindowOutput{
		ID:                   int(d.ID),
		Type:                 d.Type.String(),
		Layer:                d.Layer,
		Bounds:               rectOutput(d.Bounds),
		Title:                d.Title,
		ParentID:             int(d.ParentID),
		Focused:              d.Focused,
		Active:               d.Active,
		AccessibilityFocused: d.AccessibilityFocused,
		PictureInPicture:     d.PictureInPicture,
	}
	for _, c := range d.Children {
		out.Children = append(out.Children, int(c))
	}
	return out
}

func (s *Server) handleGetStatus(_ context.Context, _ *mcpsdk.CallToolRequest, _ EmptyInput) (*mcpsdk.CallToolResult, StatusOutput, error) {
	st, err := s.daemon.GetStatus()
	if err != nil {
		return nil, StatusOutput{}, err
	}
	return nil, StatusOutput{
		Backend:                 st.Backend,
		Session:                 st.Engine.Session,
		Tracking:                st.Engine.Tracking,
		SnapshotPresent:         st.Engine.SnapshotPresent,
		WindowCount:             st.Engine.WindowCount,
		ActiveWindow:            int(st.Engine.Focus.ActiveWindow),
		FocusedWindow:           int(st.Engine.Focus.FocusedWindow),
		AccessibilityFocused:    int(st.Engine.Focus.AccessibilityFocusedWindow),
		TouchInteraction:        st.Engine.Focus.TouchInteraction,
		FocusOnlyInActiveWindow: st.Engine.FocusOnlyInActiveWindow,
		InjectorInstalled:       st.Engine.InjectorInstalled,
		Observers:               st.Observers,
		Subscribers:             st.Subscribers,
		PendingNotifications:    st.Queue.Pending,
		UptimeSeconds:           st.UptimeSeconds,
	}, nil
}

func (s *Server) handleListWindows(_ context.Context, _ *mcpsdk.CallToolRequest, _ EmptyInput) (*mcpsdk.CallToolResult, ListWindowsOutput, error) {
	data, err := s.daemon.ListWindows()
	if err != nil {
		return nil, ListWindowsOutput{}, err
	}
	out := ListWindowsOutput{
		Present: data.Present,
		Windows: make([]WindowOutput, 0, len(data.Windows)),
	}
	for _, d := range data.Windows {
		out.Windows = append(out.Windows, windowOutput(d))
	}
	s.logger.Debug("mcp list_windows", "count", len(out.Windows), "present", out.Present)
	return nil, out, nil
}

func (s *Server) handleGetActiveWindow(_ context.Context, _ *mcpsdk.CallToolRequest, _ EmptyInput) (*mcpsdk.CallToolResult, ActiveWindowOutput, error) {
	id, err := s.daemon.ActiveWindow()
	if err != nil {
		return nil, ActiveWindowOutput{}, err
	}
	return nil, ActiveWindowOutput{WindowID: int(id), Valid: id != window.InvalidID}, nil
}

func (s *Server) handleFindWindow(_ context.Context, _ *mcpsdk.CallToolRequest, args WindowInput) (*mcpsdk.CallToolResult, FindWindowOutput, error) {
	d, found, err := s.daemon.FindWindow(window.ID(args.WindowID))
	if err != nil {
		return nil, FindWindowOutput{}, err
	}
	if !found {
		return nil, FindWindowOutput{}, nil
	}
	out := windowOutput(d)
	return nil, FindWindowOutput{Found: true, Window: &out}, nil
}

func (s *Server) handleGetInteractiveRegion(_ context.Context, _ *mcpsdk.CallToolRequest, args WindowInput) (*mcpsdk.CallToolResult, RegionOutput, error) {
	data, err := s.daemon.InteractiveRegion(window.ID(args.WindowID))
	if err != nil {
		return nil, RegionOutput{}, err
	}
	out := RegionOutput{
		WindowID: args.WindowID,
		Found:    data.Found,
		Rects:    make([]RectOutput, 0, len(data.Rects)),
		Bounds:   rectOutput(data.Bounds),
		Area:     data.Area,
		Covered:  data.Changed,
	}
	for _, r := range data.Rects {
		out.Rects = append(out.Rects, rectOutput(r))
	}
	return nil, out, nil
}

func (s *Server) handleGetWindowBounds(_ context.Context, _ *mcpsdk.CallToolRequest, args WindowInput) (*mcpsdk.CallToolResult, BoundsOutput, error) {
	bounds, found, err := s.daemon.WindowBounds(window.ID(args.WindowID))
	if err != nil {
		return nil, BoundsOutput{}, err
	}
	out := BoundsOutput{WindowID: args.WindowID, Found: found}
	if found {
		out.Bounds = rectOutput(bounds)
	}
	return nil, out, nil
}

func (s *Server) handleListObservers(_ context.Context, _ *mcpsdk.CallToolRequest, _ EmptyInput) (*mcpsdk.CallToolResult, ListObserversOutput, error) {
	observers, err := s.daemon.ListObservers()
	if err != nil {
		return nil, ListObserversOutput{}, err
	}
	out := ListObserversOutput{Observers: make([]ObserverOutput, 0, len(observers))}
	for _, o := range observers {
		out.Observers = append(out.Observers, ObserverOutput{
			ID:           o.ID,
			UID:          o.UID,
			Capabilities: o.Capabilities.Names(),
			Static:       o.Static,
		})
	}
	return nil, out, nil
}
