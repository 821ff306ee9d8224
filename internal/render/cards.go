// Package render draws answer cards over exported canvas images.
package render

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"strings"
	"sync"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goitalic"
	"golang.org/x/image/font/gofont/gomono"
	"golang.org/x/image/font/gofont/goregular"

	"github.com/example/sketchtutor/internal/overlay"
	"github.com/example/sketchtutor/internal/theme"
)

// CardOptions sizes answer cards.
type CardOptions struct {
	Width        float64
	FontSize     float64
	Padding      float64
	CornerRadius float64
	ShadowRadius int
	ShadowOffset image.Point
}

// DefaultCardOptions matches the cards shown in the browser.
func DefaultCardOptions() CardOptions {
	return CardOptions{
		Width:        400,
		FontSize:     14,
		Padding:      8,
		CornerRadius: 6,
		ShadowRadius: 4,
		ShadowOffset: image.Pt(2, 3),
	}
}

func (o CardOptions) lineHeight() float64 {
	return math.Ceil(o.FontSize * 1.4)
}

type faces struct {
	text, inline, block font.Face
}

var (
	fontsOnce sync.Once
	fonts     [3]*truetype.Font
	fontsErr  error
)

func loadFaces(size float64) (*faces, error) {
	fontsOnce.Do(func() {
		for i, data := range [][]byte{goregular.TTF, goitalic.TTF, gomono.TTF} {
			f, err := truetype.Parse(data)
			if err != nil {
				fontsErr = fmt.Errorf("failed to parse font: %w", err)
				return
			}
			fonts[i] = f
		}
	})
	if fontsErr != nil {
		return nil, fontsErr
	}
	face := func(f *truetype.Font) font.Face {
		return truetype.NewFace(f, &truetype.Options{Size: size, DPI: 72, Hinting: font.HintingFull})
	}
	return &faces{text: face(fonts[0]), inline: face(fonts[1]), block: face(fonts[2])}, nil
}

func (f *faces) face(kind overlay.SegmentKind) font.Face {
	switch kind {
	case overlay.InlineMath:
		return f.inline
	case overlay.BlockMath:
		return f.block
	}
	return f.text
}

type run struct {
	text string
	kind overlay.SegmentKind
	x    float64
}

type line struct {
	runs  []run
	width float64
	block bool
}

// Card is a laid out answer ready to draw.
type Card struct {
	View  overlay.View
	Rect  image.Rectangle
	lines []line
	style textStyle
}

type textStyle int

const (
	styleAnswer textStyle = iota
	styleLoading
	styleError
)

// Layout measures every view and places it at its canvas position minus
// origin.
func Layout(views []overlay.View, origin image.Point, opts CardOptions) ([]Card, error) {
	f, err := loadFaces(opts.FontSize)
	if err != nil {
		return nil, err
	}
	dc := gg.NewContext(1, 1)
	inner := opts.Width - 2*opts.Padding
	cards := make([]Card, 0, len(views))
	for _, v := range views {
		c := Card{View: v}
		switch {
		case v.State == overlay.Failed && v.Text == "":
			c.style = styleError
			c.lines = wrap(dc, f, []overlay.Segment{{Kind: overlay.Text, Text: "Error: " + v.Error}}, inner)
		case v.Pending:
			c.style = styleLoading
			c.lines = []line{{runs: []run{{text: "Thinking..."}}}}
		default:
			c.lines = wrap(dc, f, v.Segments, inner)
		}
		h := 2*opts.Padding + float64(max(len(c.lines), 1))*opts.lineHeight()
		at := image.Pt(int(math.Round(v.Position.X)), int(math.Round(v.Position.Y))).Sub(origin)
		c.Rect = image.Rectangle{Min: at, Max: at.Add(image.Pt(int(math.Ceil(opts.Width)), int(math.Ceil(h))))}
		cards = append(cards, c)
	}
	return cards, nil
}

// wrap breaks segments into lines no wider than width. Block math always sits
// on its own line and inline math is never split.
func wrap(dc *gg.Context, f *faces, segs []overlay.Segment, width float64) []line {
	var lines []line
	var cur line
	flush := func() {
		lines = append(lines, cur)
		cur = line{}
	}
	add := func(text string, kind overlay.SegmentKind) {
		dc.SetFontFace(f.face(kind))
		w, _ := dc.MeasureString(text)
		if cur.width+w > width && cur.width > 0 {
			flush()
			text = strings.TrimLeft(text, " ")
			w, _ = dc.MeasureString(text)
		}
		if n := len(cur.runs); n > 0 && cur.runs[n-1].kind == kind {
			cur.runs[n-1].text += text
		} else {
			cur.runs = append(cur.runs, run{text: text, kind: kind, x: cur.width})
		}
		cur.width += w
	}
	for _, seg := range segs {
		switch seg.Kind {
		case overlay.BlockMath:
			if len(cur.runs) > 0 {
				flush()
			}
			dc.SetFontFace(f.block)
			w, _ := dc.MeasureString(seg.Text)
			lines = append(lines, line{runs: []run{{text: seg.Text, kind: seg.Kind}}, width: w, block: true})
		case overlay.InlineMath:
			add(seg.Text, seg.Kind)
		default:
			for i, para := range strings.Split(seg.Text, "\n") {
				if i > 0 {
					flush()
				}
				for _, word := range strings.SplitAfter(para, " ") {
					if word != "" {
						add(word, seg.Kind)
					}
				}
			}
		}
	}
	if len(cur.runs) > 0 || len(lines) == 0 {
		flush()
	}
	return lines
}

// Compose flattens src onto the theme background and draws every card over
// it. src covers the canvas region starting at origin. The result grows to fit
// cards that reach past src in any direction.
func Compose(src image.Image, origin image.Point, views []overlay.View, th *theme.Theme, opts CardOptions) (*image.RGBA, error) {
	if th == nil {
		th = theme.Default()
	}
	cards, err := Layout(views, origin, opts)
	if err != nil {
		return nil, err
	}
	f, err := loadFaces(opts.FontSize)
	if err != nil {
		return nil, err
	}
	srcBounds := src.Bounds().Sub(src.Bounds().Min)
	bounds := srcBounds
	shadowPad := image.Pt(opts.ShadowRadius, opts.ShadowRadius).Add(opts.ShadowOffset)
	for _, c := range cards {
		bounds = bounds.Union(image.Rectangle{Min: c.Rect.Min, Max: c.Rect.Max.Add(shadowPad)})
	}
	shift := image.Point{}.Sub(bounds.Min)

	dc := gg.NewContext(bounds.Dx(), bounds.Dy())
	dc.SetColor(th.Background)
	dc.Clear()
	dc.DrawImage(src, shift.X-src.Bounds().Min.X, shift.Y-src.Bounds().Min.Y)
	for _, c := range cards {
		img := drawCard(c, f, th, opts)
		res := ApplyShadow(img, ShadowOptions{Radius: opts.ShadowRadius, Offset: opts.ShadowOffset, Color: th.Shadow})
		at := c.Rect.Min.Add(shift).Sub(res.Offset)
		dc.DrawImage(res.Image, at.X, at.Y)
	}
	return toRGBA(dc.Image()), nil
}

func drawCard(c Card, f *faces, th *theme.Theme, opts CardOptions) *image.RGBA {
	w, h := c.Rect.Dx(), c.Rect.Dy()
	dc := gg.NewContext(w, h)
	dc.DrawRoundedRectangle(0.5, 0.5, float64(w)-1, float64(h)-1, opts.CornerRadius)
	dc.SetColor(th.CardBackground)
	dc.FillPreserve()
	dc.SetColor(th.CardBorder)
	dc.SetLineWidth(1)
	dc.Stroke()

	lh := opts.lineHeight()
	inner := opts.Width - 2*opts.Padding
	for i, ln := range c.lines {
		baseline := opts.Padding + float64(i)*lh + opts.FontSize
		left := opts.Padding
		if ln.block {
			left += math.Max(0, (inner-ln.width)/2)
		}
		for _, r := range ln.runs {
			dc.SetFontFace(f.face(r.kind))
			dc.SetColor(textColor(th, c.style, r.kind))
			dc.DrawString(r.text, left+r.x, baseline)
		}
	}
	return toRGBA(dc.Image())
}

func textColor(th *theme.Theme, style textStyle, kind overlay.SegmentKind) color.Color {
	switch {
	case style == styleError:
		return th.ErrorText
	case style == styleLoading:
		return th.LoadingText
	case kind != overlay.Text:
		return th.MathText
	}
	return th.CardText
}

func toRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok {
		return rgba
	}
	b := img.Bounds()
	out := image.NewRGBA(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			out.Set(x, y, img.At(x, y))
		}
	}
	return out
}
