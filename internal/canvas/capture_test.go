package canvas

import (
	"image"
	"testing"
)

func TestTapIsDiscarded(t *testing.T) {
	store := NewStore(NewSurface(50, 50))
	c := NewCapture(store)
	c.PointerDown(Pt(10, 10))
	if c.State() != Drawing {
		t.Fatalf("expected drawing state, got %v", c.State())
	}
	if c.PointerUp() {
		t.Fatalf("tap should not commit")
	}
	if store.Len() != 0 {
		t.Fatalf("expected no strokes, got %d", store.Len())
	}
	if !store.Surface().Blank() {
		t.Fatalf("tap should not paint")
	}
	if c.State() != Idle {
		t.Fatalf("expected idle after release, got %v", c.State())
	}
}

func TestPointerUpWithoutDownIsNoop(t *testing.T) {
	store := NewStore(NewSurface(10, 10))
	c := NewCapture(store)
	c.PointerMove(Pt(3, 3))
	if c.PointerUp() || store.Len() != 0 {
		t.Fatalf("release without press should do nothing")
	}
}

func TestCaptureSnapshotsAttributesAtPointerDown(t *testing.T) {
	store := NewStore(NewSurface(50, 50))
	c := NewCapture(store, WithWidth(3), WithTool(Eraser))
	c.PointerDown(Pt(5, 5))
	c.SetTool(Brush)
	if err := c.SetWidth(10); err != nil {
		t.Fatalf("SetWidth: %v", err)
	}
	c.PointerMove(Pt(20, 20))
	c.PointerUp()
	got := store.Strokes()
	if len(got) != 1 {
		t.Fatalf("expected one stroke, got %d", len(got))
	}
	if got[0].Tool != Eraser {
		t.Fatalf("expected eraser stroke, got %v", got[0].Tool)
	}
	if got[0].Width != 3*DefaultEraserScale {
		t.Fatalf("expected eraser width %v, got %v", 3*DefaultEraserScale, got[0].Width)
	}
}

func TestWidthScales(t *testing.T) {
	c := NewCapture(NewStore(NewSurface(1, 1)), WithWidth(5), WithScales(1, 3))
	if got := c.StrokeWidth(Brush); got != 5 {
		t.Fatalf("brush width = %v", got)
	}
	if got := c.StrokeWidth(Eraser); got != 15 {
		t.Fatalf("eraser width = %v", got)
	}
	if err := c.SetWidth(-1); err == nil {
		t.Fatalf("expected negative width to be rejected")
	}
}

func TestLassoTracksRectangleWithoutPainting(t *testing.T) {
	store := NewStore(NewSurface(50, 50))
	c := NewCapture(store, WithTool(Lasso))
	c.PointerDown(Pt(30, 40))
	if c.State() != Selecting {
		t.Fatalf("expected selecting state, got %v", c.State())
	}
	c.PointerMove(Pt(10, 5))
	c.PointerUp()
	sel, ok := c.Selection()
	if !ok {
		t.Fatalf("expected selection")
	}
	if want := image.Rect(10, 5, 30, 40); !sel.Rect().Eq(want) {
		t.Fatalf("unexpected selection %v, want %v", sel.Rect(), want)
	}
	if store.Len() != 0 || !store.Surface().Blank() {
		t.Fatalf("lasso must not create strokes or paint")
	}
}

func TestHandleMapsTouchEvents(t *testing.T) {
	store := NewStore(NewSurface(50, 50))
	changes := 0
	c := NewCapture(store, WithChange(func() { changes++ }))
	events := []PointerEvent{
		{Kind: "touchstart", X: 5, Y: 5},
		{Kind: "touchmove", X: 15, Y: 10},
		{Kind: "TouchMove", X: 25, Y: 20},
		{Kind: "touchend"},
	}
	for _, ev := range events {
		if err := c.Handle(ev); err != nil {
			t.Fatalf("Handle(%v): %v", ev.Kind, err)
		}
	}
	got := store.Strokes()
	if len(got) != 1 || len(got[0].Points) != 3 {
		t.Fatalf("expected one three-point stroke, got %+v", got)
	}
	if changes == 0 {
		t.Fatalf("expected change callbacks")
	}
	if err := c.Handle(PointerEvent{Kind: "wheel"}); err == nil {
		t.Fatalf("expected unknown event error")
	}
}

func TestPointerDownFinishesPreviousGesture(t *testing.T) {
	store := NewStore(NewSurface(50, 50))
	c := NewCapture(store)
	c.PointerDown(Pt(1, 1))
	c.PointerMove(Pt(10, 10))
	c.PointerDown(Pt(20, 20))
	if store.Len() != 1 {
		t.Fatalf("expected the interrupted stroke to be committed, got %d", store.Len())
	}
	if pending := c.Pending(); len(pending) != 1 || pending[0] != Pt(20, 20) {
		t.Fatalf("unexpected pending points %+v", pending)
	}
}
