package canvas

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrShortStroke reports a stroke with fewer than two points.
	ErrShortStroke = errors.New("stroke needs at least two points")
	// ErrBadWidth reports a stroke with a non-positive width.
	ErrBadWidth = errors.New("stroke width must be positive")
	// ErrBadPoint reports a NaN or infinite coordinate.
	ErrBadPoint = errors.New("stroke point is not finite")
)

// Store is the ordered stroke history. It is the source of truth for the
// Surface it owns: the surface always equals a replay of Strokes onto a clear
// buffer.
type Store struct {
	surface *Surface
	strokes []Stroke
	onClear []func()
}

// NewStore creates an empty history backed by surface.
func NewStore(surface *Surface) *Store {
	return &Store{surface: surface}
}

// Surface returns the raster cache.
func (s *Store) Surface() *Surface {
	return s.surface
}

// Commit paints st onto the surface and appends it to the history.
func (s *Store) Commit(st Stroke) error {
	if err := validate(st); err != nil {
		return err
	}
	st = st.clone()
	s.surface.DrawStroke(st)
	s.strokes = append(s.strokes, st)
	return nil
}

// record appends a stroke whose pixels are already on the surface.
func (s *Store) record(st Stroke) error {
	if err := validate(st); err != nil {
		return err
	}
	s.strokes = append(s.strokes, st.clone())
	return nil
}

// Undo drops the most recent stroke and rebuilds the surface from the rest.
// It reports whether anything was removed.
func (s *Store) Undo() bool {
	if len(s.strokes) == 0 {
		return false
	}
	s.strokes[len(s.strokes)-1] = Stroke{}
	s.strokes = s.strokes[:len(s.strokes)-1]
	s.rebuild()
	return true
}

// Clear empties the history, wipes the surface and notifies OnClear hooks.
func (s *Store) Clear() {
	s.strokes = nil
	s.surface.Clear()
	for _, fn := range s.onClear {
		fn()
	}
}

// OnClear registers fn to run after every Clear.
func (s *Store) OnClear(fn func()) {
	s.onClear = append(s.onClear, fn)
}

// Load replaces the history with strokes and rebuilds the surface.
func (s *Store) Load(strokes []Stroke) error {
	loaded := make([]Stroke, 0, len(strokes))
	for i, st := range strokes {
		if err := validate(st); err != nil {
			return fmt.Errorf("stroke %d: %w", i, err)
		}
		loaded = append(loaded, st.clone())
	}
	s.surface.Clear()
	for _, st := range loaded {
		s.surface.DrawStroke(st)
	}
	s.strokes = loaded
	return nil
}

// Strokes returns a copy of the history.
func (s *Store) Strokes() []Stroke {
	out := make([]Stroke, len(s.strokes))
	for i, st := range s.strokes {
		out[i] = st.clone()
	}
	return out
}

// Len returns the number of committed strokes.
func (s *Store) Len() int {
	return len(s.strokes)
}

// Replay draws the full history, in order, onto dst.
func (s *Store) Replay(dst *Surface) {
	for _, st := range s.strokes {
		dst.DrawStroke(st)
	}
}

func (s *Store) rebuild() {
	s.surface.Clear()
	s.Replay(s.surface)
}

func validate(st Stroke) error {
	if st.Tool == Lasso {
		return fmt.Errorf("lasso selections are not strokes")
	}
	if len(st.Points) < 2 {
		return ErrShortStroke
	}
	if !(st.Width > 0) || math.IsInf(st.Width, 0) {
		return ErrBadWidth
	}
	for _, p := range st.Points {
		if !finite(p) {
			return ErrBadPoint
		}
	}
	return nil
}
