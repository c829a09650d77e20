package geometry

import (
	"reflect"
	"testing"
)

func TestRectIntersect(t *testing.T) {
	tests := []struct {
		name string
		a, b Rect
		want Rect
	}{
		{"overlap", Rect{0, 0, 100, 100}, Rect{50, 50, 100, 100}, Rect{50, 50, 50, 50}},
		{"contained", Rect{0, 0, 100, 100}, Rect{10, 10, 20, 20}, Rect{10, 10, 20, 20}},
		{"touching edges", Rect{0, 0, 50, 50}, Rect{50, 0, 50, 50}, Rect{}},
		{"disjoint", Rect{0, 0, 10, 10}, Rect{20, 20, 10, 10}, Rect{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.a.Intersect(tt.b)
			if got != tt.want {
				t.Errorf("Intersect(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestRegionSubtract_Corner(t *testing.T) {
	g := NewRegion(Rect{0, 0, 100, 100})
	if !g.Subtract(Rect{0, 0, 50, 50}) {
		t.Fatal("Subtract() = false, want true")
	}

	want := []Rect{
		{X: 0, Y: 50, Width: 100, Height: 50},
		{X: 50, Y: 0, Width: 50, Height: 50},
	}
	if got := g.Rects(); !reflect.DeepEqual(got, want) {
		t.Fatalf("Rects() = %v, want %v", got, want)
	}
	if got := g.Area(); got != 7500 {
		t.Errorf("Area() = %d, want 7500", got)
	}
	if g.Contains(25, 25) {
		t.Error("Contains(25, 25) = true, want false")
	}
	if !g.Contains(75, 25) || !g.Contains(25, 75) {
		t.Error("expected uncovered quadrants to remain in region")
	}
}

func TestRegionSubtract_Center(t *testing.T) {
	g := NewRegion(Rect{0, 0, 30, 30})
	g.Subtract(Rect{10, 10, 10, 10})

	if got := len(g.Rects()); got != 4 {
		t.Fatalf("len(Rects()) = %d, want 4", got)
	}
	if got := g.Area(); got != 800 {
		t.Errorf("Area() = %d, want 800", got)
	}
	if got := g.Bounds(); got != (Rect{0, 0, 30, 30}) {
		t.Errorf("Bounds() = %v, want full rect", got)
	}
}

func TestRegionSubtract_NoOverlap(t *testing.T) {
	g := NewRegion(Rect{0, 0, 10, 10})
	if g.Subtract(Rect{20, 20, 5, 5}) {
		t.Error("Subtract() of disjoint rect reported a change")
	}
	if g.Subtract(Rect{}) {
		t.Error("Subtract() of empty rect reported a change")
	}
	if got := g.Area(); got != 100 {
		t.Errorf("Area() = %d, want 100", got)
	}
}

func TestRegionSubtract_FullCover(t *testing.T) {
	g := NewRegion(Rect{10, 10, 10, 10})
	if !g.Subtract(Rect{0, 0, 100, 100}) {
		t.Fatal("Subtract() = false, want true")
	}
	if !g.IsEmpty() {
		t.Errorf("region not empty after full cover: %v", g.Rects())
	}
}
