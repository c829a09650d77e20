package window

import "github.com/1broseidon/a11yd/internal/geometry"

// Populate converts a window-manager report into descriptors, preserving the
// reported Z-order (topmost first).
//
// Windows whose token has no registered ID are skipped. Parent and child
// references that do not resolve to a window of the same generation are
// dropped instead of failing the update. Only the topmost window reported as
// focused keeps its focused flag.
func Populate(infos []Info, lookup func(Token) ID) []Descriptor {
	descs := make([]Descriptor, 0, len(infos))
	present := make(map[ID]struct{}, len(infos))
	focusedSeen := false

	for _, info := range infos {
		id := lookup(info.Token)
		if id == InvalidID {
			continue
		}
		if _, dup := present[id]; dup {
			continue
		}
		present[id] = struct{}{}

		d := Descriptor{
			ID:               id,
			Type:             info.Type,
			Layer:            info.Layer,
			Bounds:           info.Bounds,
			Title:            info.Title,
			AnchorNode:       info.AnchorNode,
			ParentID:         InvalidID,
			PictureInPicture: info.PictureInPicture,
		}
		if info.Focused && !focusedSeen {
			d.Focused = true
			focusedSeen = true
		}
		if info.ParentToken != 0 {
			d.ParentID = lookup(info.ParentToken)
		}
		for _, child := range info.ChildTokens {
			if cid := lookup(child); cid != InvalidID {
				d.Children = append(d.Children, cid)
			}
		}
		descs = append(descs, d)
	}

	for i := range descs {
		if _, ok := present[descs[i].ParentID]; !ok {
			descs[i].ParentID = InvalidID
		}
		if len(descs[i].Children) == 0 {
			continue
		}
		kept := descs[i].Children[:0]
		for _, cid := range descs[i].Children {
			if _, ok := present[cid]; ok {
				kept = append(kept, cid)
			}
		}
		if len(kept) == 0 {
			kept = nil
		}
		descs[i].Children = kept
	}
	return descs
}

// Store holds the current snapshot generation. A nil generation means the
// engine is not tracking windows. Store is not safe for concurrent use; the
// engine guards it with its lock and hands out copies only.
type Store struct {
	windows []Descriptor
	byID    map[ID]int
}

// NewStore returns a store with an absent snapshot.
func NewStore() *Store {
	return &Store{}
}

// Present reports whether a snapshot (possibly empty) is installed.
func (s *Store) Present() bool {
	return s.windows != nil
}

// Replace installs descs as the new generation. The store takes ownership of
// the slice.
func (s *Store) Replace(descs []Descriptor) {
	if descs == nil {
		descs = []Descriptor{}
	}
	s.windows = descs
	s.byID = make(map[ID]int, len(descs))
	for i, d := range descs {
		s.byID[d.ID] = i
	}
}

// Clear drops the snapshot, leaving it absent.
func (s *Store) Clear() {
	s.windows = nil
	s.byID = nil
}

// Len returns the number of windows in the current generation.
func (s *Store) Len() int {
	return len(s.windows)
}

// Contains reports whether id is part of the current generation.
func (s *Store) Contains(id ID) bool {
	_, ok := s.byID[id]
	return ok
}

// Find returns a copy of the descriptor with the given id.
func (s *Store) Find(id ID) (Descriptor, bool) {
	i, ok := s.byID[id]
	if !ok {
		return Descriptor{}, false
	}
	return s.windows[i].Clone(), true
}

// Windows returns a copy of the current generation, or nil when absent.
func (s *Store) Windows() []Descriptor {
	if s.windows == nil {
		return nil
	}
	out := make([]Descriptor, len(s.windows))
	for i, d := range s.windows {
		out[i] = d.Clone()
	}
	return out
}

// PictureInPicture returns the first picture-in-picture window.
func (s *Store) PictureInPicture() (Descriptor, bool) {
	for _, d := range s.windows {
		if d.PictureInPicture {
			return d.Clone(), true
		}
	}
	return Descriptor{}, false
}

// InteractiveRegion returns the part of window id that is not covered by
// windows stacked above it. Accessibility overlays never cover anything. The
// boolean reports whether the region differs from the window's bounds; it is
// false when the window is unknown.
func (s *Store) InteractiveRegion(id ID) (geometry.Region, bool) {
	i, ok := s.byID[id]
	if !ok {
		return geometry.Region{}, false
	}

	region := geometry.NewRegion(s.windows[i].Bounds)
	changed := false
	// Everything before i is stacked above the window.
	for j := i - 1; j >= 0; j-- {
		above := s.windows[j]
		if above.Type == TypeAccessibilityOverlay {
			continue
		}
		if region.Subtract(above.Bounds) {
			changed = true
		}
	}
	return region, changed
}
