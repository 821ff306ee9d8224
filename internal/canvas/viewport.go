package canvas

// Viewport is the visible window onto the tall drawing surface.
type Viewport struct {
	CanvasHeight float64 `json:"canvasHeight"`
	ViewHeight   float64 `json:"viewHeight"`
	Offset       float64 `json:"offset"`
}

// NewViewport returns a viewport scrolled to the top.
func NewViewport(canvasHeight, viewHeight float64) *Viewport {
	return &Viewport{CanvasHeight: canvasHeight, ViewHeight: viewHeight}
}

func (v *Viewport) maxOffset() float64 {
	return max(0, v.CanvasHeight-v.ViewHeight)
}

// ScrollTo moves the top of the view to y, clamped to the canvas.
func (v *Viewport) ScrollTo(y float64) float64 {
	v.Offset = min(max(0, y), v.maxOffset())
	return v.Offset
}

// Scroll moves the view by dy.
func (v *Viewport) Scroll(dy float64) float64 {
	return v.ScrollTo(v.Offset + dy)
}

// JumpTo positions the view for a click at ratio (0 top, 1 bottom) of the
// navigator bar.
func (v *Viewport) JumpTo(ratio float64) float64 {
	return v.ScrollTo(ratio * v.maxOffset())
}

// Resize updates the view height and re-clamps the offset.
func (v *Viewport) Resize(viewHeight float64) {
	v.ViewHeight = viewHeight
	v.ScrollTo(v.Offset)
}

// Indicator describes the navigator thumb as fractions of the bar height.
type Indicator struct {
	Top  float64 `json:"top"`
	Size float64 `json:"size"`
}

// Indicator returns the thumb placement for the current offset.
func (v *Viewport) Indicator() Indicator {
	if v.CanvasHeight <= 0 {
		return Indicator{Size: 1}
	}
	size := min(1, v.ViewHeight/v.CanvasHeight)
	m := v.maxOffset()
	if m == 0 {
		return Indicator{Size: size}
	}
	return Indicator{Top: v.Offset / m * (1 - size), Size: size}
}

// DragState is the phase of a drag gesture.
type DragState int

const (
	DragIdle DragState = iota
	Dragging
)

// Drag moves an item with the pointer while keeping the grab point under it.
// The grab offset lives in the machine so no handler holds stale copies.
type Drag struct {
	state  DragState
	grab   Point
	origin Point
}

// State returns the current phase.
func (d *Drag) State() DragState {
	return d.state
}

// Begin starts dragging an item whose top-left is at origin.
func (d *Drag) Begin(pointer, origin Point) {
	d.state = Dragging
	d.origin = origin
	d.grab = pointer.sub(origin)
}

// Move returns the item position for pointer. The bool is false when idle.
func (d *Drag) Move(pointer Point) (Point, bool) {
	if d.state != Dragging {
		return d.origin, false
	}
	d.origin = pointer.sub(d.grab)
	return d.origin, true
}

// End finishes the drag and returns the final position.
func (d *Drag) End() Point {
	d.state = DragIdle
	d.grab = Point{}
	return d.origin
}
