package canvas

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"strings"
)

// CaptureState is the phase of the current pointer gesture.
type CaptureState int

const (
	Idle CaptureState = iota
	Drawing
	Selecting
)

func (s CaptureState) String() string {
	switch s {
	case Drawing:
		return "drawing"
	case Selecting:
		return "selecting"
	}
	return "idle"
}

// Default width multipliers applied to the slider value.
const (
	DefaultBrushScale  = 1.0
	DefaultEraserScale = 4.0
)

// Selection is a lasso rectangle anchored where the pointer went down.
type Selection struct {
	Anchor  Point
	Current Point
}

// Rect returns the normalised rectangle spanned by the selection.
func (s Selection) Rect() image.Rectangle {
	return image.Rect(
		int(math.Round(s.Anchor.X)), int(math.Round(s.Anchor.Y)),
		int(math.Round(s.Current.X)), int(math.Round(s.Current.Y)),
	).Canon()
}

// Capture turns pointer events into strokes. Segments are painted onto the
// store's surface as the pointer moves; the finished stroke is recorded on
// release without repainting.
type Capture struct {
	store       *Store
	tool        Tool
	width       float64
	color       color.RGBA
	brushScale  float64
	eraserScale float64
	onChange    func()

	state     CaptureState
	pending   Stroke
	selection Selection
	selected  bool
}

// CaptureOption configures a Capture.
type CaptureOption func(*Capture)

// WithTool selects the initial tool.
func WithTool(t Tool) CaptureOption {
	return func(c *Capture) { c.tool = t }
}

// WithWidth sets the initial slider width.
func WithWidth(w float64) CaptureOption {
	return func(c *Capture) {
		if w > 0 {
			c.width = w
		}
	}
}

// WithColor sets the initial ink.
func WithColor(col color.RGBA) CaptureOption {
	return func(c *Capture) { c.color = col }
}

// WithScales sets the brush and eraser width multipliers.
func WithScales(brush, eraser float64) CaptureOption {
	return func(c *Capture) {
		if brush > 0 {
			c.brushScale = brush
		}
		if eraser > 0 {
			c.eraserScale = eraser
		}
	}
}

// WithChange registers a callback run after every visible change.
func WithChange(fn func()) CaptureOption {
	return func(c *Capture) { c.onChange = fn }
}

// NewCapture creates an idle capture writing into store.
func NewCapture(store *Store, opts ...CaptureOption) *Capture {
	c := &Capture{
		store:       store,
		tool:        Brush,
		width:       5,
		color:       DefaultColor,
		brushScale:  DefaultBrushScale,
		eraserScale: DefaultEraserScale,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Capture) Tool() Tool { return c.tool }
func (c *Capture) Width() float64 { return c.width }
func (c *Capture) Color() color.RGBA { return c.color }
func (c *Capture) State() CaptureState { return c.state }
func (c *Capture) SetTool(t Tool) { c.tool = t }
func (c *Capture) SetColor(col color.RGBA) { c.color = col }

// SetWidth changes the slider width used by the next gesture.
func (c *Capture) SetWidth(w float64) error {
	if !(w > 0) {
		return ErrBadWidth
	}
	c.width = w
	return nil
}

// StrokeWidth returns the rendered width for tool at the current slider value.
func (c *Capture) StrokeWidth(t Tool) float64 {
	if t == Eraser {
		return c.width * c.eraserScale
	}
	return c.width * c.brushScale
}

// Pending returns a copy of the in-progress stroke points.
func (c *Capture) Pending() []Point {
	return append([]Point(nil), c.pending.Points...)
}

// Selection returns the last lasso rectangle, if any.
func (c *Capture) Selection() (Selection, bool) {
	return c.selection, c.selected
}

// PointerDown starts a stroke or a selection. A gesture still in progress is
// finished first.
func (c *Capture) PointerDown(p Point) {
	if c.state != Idle {
		c.PointerUp()
	}
	switch c.tool {
	case Lasso:
		c.state = Selecting
		c.selection = Selection{Anchor: p, Current: p}
		c.selected = true
	default:
		c.state = Drawing
		c.pending = Stroke{
			Tool:   c.tool,
			Points: []Point{p},
			Width:  c.StrokeWidth(c.tool),
			Color:  c.color,
		}
	}
	c.changed()
}

// PointerMove extends the active gesture. While drawing the new segment is
// painted immediately with the attributes captured at pointer-down.
func (c *Capture) PointerMove(p Point) {
	switch c.state {
	case Drawing:
		prev := c.pending.Points[len(c.pending.Points)-1]
		c.pending.Points = append(c.pending.Points, p)
		c.store.Surface().DrawSegment(prev, p, c.pending.Tool, c.pending.Width, c.pending.Color)
		c.changed()
	case Selecting:
		c.selection.Current = p
		c.changed()
	}
}

// PointerUp ends the gesture. A stroke with at least two points is recorded;
// anything shorter is discarded. It reports whether a stroke was committed.
func (c *Capture) PointerUp() bool {
	state := c.state
	c.state = Idle
	switch state {
	case Drawing:
		st := c.pending
		c.pending = Stroke{}
		if len(st.Points) < 2 {
			return false
		}
		if err := c.store.record(st); err != nil {
			return false
		}
		c.changed()
		return true
	case Selecting:
		c.changed()
	}
	return false
}

// PointerEvent is a raw mouse, pen or touch event in surface coordinates.
type PointerEvent struct {
	Kind string  `json:"kind"`
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
}

type pointerAction int

const (
	actionDown pointerAction = iota
	actionMove
	actionUp
)

var pointerKinds = map[string]pointerAction{
	"down":        actionDown,
	"pointerdown": actionDown,
	"mousedown":   actionDown,
	"touchstart":  actionDown,
	"move":        actionMove,
	"pointermove": actionMove,
	"mousemove":   actionMove,
	"touchmove":   actionMove,
	"up":          actionUp,
	"pointerup":   actionUp,
	"mouseup":     actionUp,
	"touchend":    actionUp,
	"cancel":      actionUp,
	"touchcancel": actionUp,
}

// Handle dispatches ev to PointerDown, PointerMove or PointerUp.
func (c *Capture) Handle(ev PointerEvent) error {
	action, ok := pointerKinds[strings.ToLower(ev.Kind)]
	if !ok {
		return fmt.Errorf("unknown pointer event %q", ev.Kind)
	}
	p := Pt(ev.X, ev.Y)
	switch action {
	case actionDown:
		c.PointerDown(p)
	case actionMove:
		c.PointerMove(p)
	case actionUp:
		c.PointerUp()
	}
	return nil
}

// Reset abandons any gesture in progress and the last selection.
func (c *Capture) Reset() {
	c.state = Idle
	c.pending = Stroke{}
	c.selection = Selection{}
	c.selected = false
}

func (c *Capture) changed() {
	if c.onChange != nil {
		c.onChange()
	}
}
