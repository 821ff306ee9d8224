package canvas

import (
	"encoding/json"
	"fmt"
	"image/color"
	"strconv"
	"strings"

	"golang.org/x/image/colornames"
)

// Tool selects how pointer input affects the surface.
type Tool int

const (
	// Brush paints with source-over blending.
	Brush Tool = iota
	// Eraser removes ink with destination-out blending.
	Eraser
	// Lasso tracks a selection rectangle and never paints.
	Lasso
)

var toolNames = map[Tool]string{
	Brush:  "brush",
	Eraser: "eraser",
	Lasso:  "lasso",
}

func (t Tool) String() string {
	if name, ok := toolNames[t]; ok {
		return name
	}
	return fmt.Sprintf("tool(%d)", int(t))
}

// ParseTool converts a tool name into a Tool.
func ParseTool(s string) (Tool, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	for tool, name := range toolNames {
		if name == key {
			return tool, nil
		}
	}
	return Brush, fmt.Errorf("unknown tool %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (t Tool) MarshalText() ([]byte, error) {
	name, ok := toolNames[t]
	if !ok {
		return nil, fmt.Errorf("unknown tool %d", int(t))
	}
	return []byte(name), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *Tool) UnmarshalText(b []byte) error {
	tool, err := ParseTool(string(b))
	if err != nil {
		return err
	}
	*t = tool
	return nil
}

// Point is an absolute surface coordinate.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Pt is shorthand for Point{X: x, Y: y}.
func Pt(x, y float64) Point {
	return Point{X: x, Y: y}
}

// Stroke is one committed gesture together with the attributes it was drawn with.
type Stroke struct {
	Tool   Tool
	Points []Point
	Width  float64
	Color  color.RGBA
}

type strokeJSON struct {
	Tool   Tool    `json:"tool"`
	Points []Point `json:"points"`
	Width  float64 `json:"width"`
	Color  string  `json:"color,omitempty"`
}

// MarshalJSON encodes the stroke with its color as a hex string.
func (s Stroke) MarshalJSON() ([]byte, error) {
	return json.Marshal(strokeJSON{
		Tool:   s.Tool,
		Points: s.Points,
		Width:  s.Width,
		Color:  FormatColor(s.Color),
	})
}

// UnmarshalJSON decodes a stroke, accepting named or hex colors.
func (s *Stroke) UnmarshalJSON(b []byte) error {
	var raw strokeJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	col := DefaultColor
	if raw.Color != "" {
		c, err := ParseColor(raw.Color)
		if err != nil {
			return err
		}
		col = c
	}
	*s = Stroke{Tool: raw.Tool, Points: raw.Points, Width: raw.Width, Color: col}
	return nil
}

func (s Stroke) clone() Stroke {
	out := s
	out.Points = append([]Point(nil), s.Points...)
	return out
}

// DefaultColor is the ink used when nothing else is configured.
var DefaultColor = color.RGBA{R: 0xdf, G: 0x4b, B: 0x26, A: 0xff}

// WidthPreset names one of the toolbar stroke widths.
type WidthPreset struct {
	Name  string
	Width float64
}

var widthPresets = []WidthPreset{
	{Name: "thin", Width: 2},
	{Name: "medium", Width: 5},
	{Name: "thick", Width: 10},
}

// WidthPresets returns the selectable slider widths.
func WidthPresets() []WidthPreset {
	out := make([]WidthPreset, len(widthPresets))
	copy(out, widthPresets)
	return out
}

// ParseWidth accepts a preset name or a positive number.
func ParseWidth(s string) (float64, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	for _, p := range widthPresets {
		if p.Name == key {
			return p.Width, nil
		}
	}
	w, err := strconv.ParseFloat(key, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid width %q", s)
	}
	if w <= 0 {
		return 0, fmt.Errorf("width must be positive, got %v", w)
	}
	return w, nil
}

// ParseColor accepts CSS color names, #RRGGBB and #RRGGBBAA.
func ParseColor(s string) (color.RGBA, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	if key == "" {
		return color.RGBA{}, fmt.Errorf("color cannot be empty")
	}
	if c, ok := colornames.Map[key]; ok {
		return c, nil
	}
	if !strings.HasPrefix(key, "#") || (len(key) != 7 && len(key) != 9) {
		return color.RGBA{}, fmt.Errorf("invalid color %q", s)
	}
	val, err := strconv.ParseUint(key[1:], 16, 32)
	if err != nil {
		return color.RGBA{}, fmt.Errorf("invalid color %q", s)
	}
	if len(key) == 7 {
		return color.RGBA{R: uint8(val >> 16), G: uint8(val >> 8), B: uint8(val), A: 0xff}, nil
	}
	return color.RGBA{R: uint8(val >> 24), G: uint8(val >> 16), B: uint8(val >> 8), A: uint8(val)}, nil
}

// FormatColor renders c as #RRGGBB, or #RRGGBBAA when it is not opaque.
func FormatColor(c color.RGBA) string {
	if c.A == 0xff {
		return fmt.Sprintf("#%02X%02X%02X", c.R, c.G, c.B)
	}
	return fmt.Sprintf("#%02X%02X%02X%02X", c.R, c.G, c.B, c.A)
}
