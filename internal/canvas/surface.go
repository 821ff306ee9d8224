package canvas

import (
	"image"
	"image/color"
	"image/draw"
	"math"

	"golang.org/x/image/vector"
)

// kappa places cubic control points so four curves approximate a circle.
const kappa = 0.5522847498307936

// Surface is the off-screen pixel buffer strokes are composited onto. It is a
// cache of the stroke history: painted incrementally while drawing and rebuilt
// from the Store after undo or clear.
type Surface struct {
	img *image.RGBA
}

// NewSurface allocates a fully transparent surface.
func NewSurface(width, height int) *Surface {
	if width < 1 {
		width = 1
	}
	if height < 1 {
		height = 1
	}
	return &Surface{img: image.NewRGBA(image.Rect(0, 0, width, height))}
}

// Bounds returns the surface rectangle.
func (s *Surface) Bounds() image.Rectangle {
	return s.img.Bounds()
}

// Image returns the live buffer. Callers must not modify it.
func (s *Surface) Image() *image.RGBA {
	return s.img
}

// Snapshot returns a copy of the buffer.
func (s *Surface) Snapshot() *image.RGBA {
	out := image.NewRGBA(s.img.Bounds())
	copy(out.Pix, s.img.Pix)
	return out
}

// Clear resets every pixel to fully transparent.
func (s *Surface) Clear() {
	clear(s.img.Pix)
}

// Blank reports whether no pixel carries any alpha.
func (s *Surface) Blank() bool {
	for i := 3; i < len(s.img.Pix); i += 4 {
		if s.img.Pix[i] != 0 {
			return false
		}
	}
	return true
}

// DrawStroke composites every segment of st in order. It issues the same
// DrawSegment calls that incremental capture issued, so replay reproduces the
// incremental result exactly.
func (s *Surface) DrawStroke(st Stroke) {
	switch len(st.Points) {
	case 0:
		return
	case 1:
		s.DrawSegment(st.Points[0], st.Points[0], st.Tool, st.Width, st.Color)
		return
	}
	for i := 1; i < len(st.Points); i++ {
		s.DrawSegment(st.Points[i-1], st.Points[i], st.Tool, st.Width, st.Color)
	}
}

// DrawSegment rasterises a round-capped line from one point to another. Brush
// paints source-over; Eraser clears coverage with destination-out so erased
// pixels become transparent.
func (s *Surface) DrawSegment(from, to Point, tool Tool, width float64, col color.RGBA) {
	if tool == Lasso {
		return
	}
	mask, box := segmentMask(from, to, width, s.img.Bounds())
	if mask == nil {
		return
	}
	if tool == Eraser {
		s.eraseMask(mask, box)
		return
	}
	src := image.NewUniform(color.NRGBA{R: col.R, G: col.G, B: col.B, A: col.A})
	draw.DrawMask(s.img, box, src, image.Point{}, mask, image.Point{}, draw.Over)
}

func (s *Surface) eraseMask(mask *image.Alpha, box image.Rectangle) {
	w := box.Dx()
	for y := 0; y < box.Dy(); y++ {
		row := mask.Pix[y*mask.Stride : y*mask.Stride+w]
		off := s.img.PixOffset(box.Min.X, box.Min.Y+y)
		for x, cov := range row {
			if cov == 0 {
				continue
			}
			keep := 255 - uint32(cov)
			p := s.img.Pix[off+x*4 : off+x*4+4 : off+x*4+4]
			for i := range p {
				p[i] = uint8((uint32(p[i])*keep + 127) / 255)
			}
		}
	}
}

// segmentMask returns the coverage of a capsule of the given diameter along
// from-to, clipped to bounds. The mask origin maps to box.Min.
func segmentMask(from, to Point, width float64, bounds image.Rectangle) (*image.Alpha, image.Rectangle) {
	if !finite(from) || !finite(to) || math.IsNaN(width) {
		return nil, image.Rectangle{}
	}
	// A radius past the diagonal already covers the whole surface.
	diag := math.Hypot(float64(bounds.Dx()), float64(bounds.Dy()))
	r := math.Min(math.Max(width/2, 0.5), diag)
	from, to, ok := clipSegment(from, to, bounds, r+1)
	if !ok {
		return nil, image.Rectangle{}
	}
	box := image.Rect(
		int(math.Floor(math.Min(from.X, to.X)-r))-1,
		int(math.Floor(math.Min(from.Y, to.Y)-r))-1,
		int(math.Ceil(math.Max(from.X, to.X)+r))+1,
		int(math.Ceil(math.Max(from.Y, to.Y)+r))+1,
	).Intersect(bounds)
	if box.Empty() {
		return nil, box
	}
	origin := Pt(float64(box.Min.X), float64(box.Min.Y))
	z := vector.NewRasterizer(box.Dx(), box.Dy())
	capsule(z, from.sub(origin), to.sub(origin), r)
	mask := image.NewAlpha(image.Rect(0, 0, box.Dx(), box.Dy()))
	z.Draw(mask, mask.Bounds(), image.Opaque, image.Point{})
	return mask, box
}

// clipSegment trims a-b to bounds grown by margin (Liang-Barsky). Discs
// centred outside the grown rectangle cannot reach bounds, so the trimmed
// capsule covers the same pixels.
func clipSegment(a, b Point, bounds image.Rectangle, margin float64) (Point, Point, bool) {
	minX, minY := float64(bounds.Min.X)-margin, float64(bounds.Min.Y)-margin
	maxX, maxY := float64(bounds.Max.X)+margin, float64(bounds.Max.Y)+margin
	dx, dy := b.X-a.X, b.Y-a.Y
	t0, t1 := 0.0, 1.0
	for _, e := range [4][2]float64{
		{-dx, a.X - minX},
		{dx, maxX - a.X},
		{-dy, a.Y - minY},
		{dy, maxY - a.Y},
	} {
		p, q := e[0], e[1]
		if p == 0 {
			if q < 0 {
				return a, b, false
			}
			continue
		}
		t := q / p
		if p < 0 {
			if t > t1 {
				return a, b, false
			}
			t0 = math.Max(t0, t)
		} else {
			if t < t0 {
				return a, b, false
			}
			t1 = math.Min(t1, t)
		}
	}
	return Pt(a.X+t0*dx, a.Y+t0*dy), Pt(a.X+t1*dx, a.Y+t1*dy), true
}

func capsule(z *vector.Rasterizer, a, b Point, r float64) {
	d := Pt(1, 0)
	if l := math.Hypot(b.X-a.X, b.Y-a.Y); l > 1e-9 {
		d = Pt((b.X-a.X)/l, (b.Y-a.Y)/l)
	}
	n := Pt(-d.Y, d.X)
	start := a.add(n.scale(r))
	z.MoveTo(float32(start.X), float32(start.Y))
	lineTo(z, b.add(n.scale(r)))
	quarterArc(z, b, n, d, r)
	quarterArc(z, b, d, n.scale(-1), r)
	lineTo(z, a.add(n.scale(-r)))
	quarterArc(z, a, n.scale(-1), d.scale(-1), r)
	quarterArc(z, a, d.scale(-1), n, r)
	z.ClosePath()
}

// quarterArc draws the 90 degree arc around c from direction u to direction v.
func quarterArc(z *vector.Rasterizer, c, u, v Point, r float64) {
	k := kappa * r
	c1 := c.add(u.scale(r)).add(v.scale(k))
	c2 := c.add(v.scale(r)).add(u.scale(k))
	end := c.add(v.scale(r))
	z.CubeTo(float32(c1.X), float32(c1.Y), float32(c2.X), float32(c2.Y), float32(end.X), float32(end.Y))
}

func lineTo(z *vector.Rasterizer, p Point) {
	z.LineTo(float32(p.X), float32(p.Y))
}

func (p Point) add(q Point) Point { return Pt(p.X+q.X, p.Y+q.Y) }
func (p Point) sub(q Point) Point { return Pt(p.X-q.X, p.Y-q.Y) }
func (p Point) scale(f float64) Point { return Pt(p.X*f, p.Y*f) }

func finite(p Point) bool {
	return !math.IsNaN(p.X) && !math.IsNaN(p.Y) && !math.IsInf(p.X, 0) && !math.IsInf(p.Y, 0)
}
