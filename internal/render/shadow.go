package render

import (
	"image"
	"image/color"
	"image/draw"
)

// ShadowOptions configures the drop shadow behind an answer card. The shadow
// is painted in Color; its alpha sets the opacity.
type ShadowOptions struct {
	Radius int
	Offset image.Point
	Color  color.RGBA
}

// ShadowResult captures the output of ApplyShadow.
type ShadowResult struct {
	Image *image.RGBA
	// Offset is where the card's top-left corner ended up inside Image.
	Offset image.Point
}

// ApplyShadow composites card over a blurred copy of its alpha. The result
// has a zero origin and is large enough for both.
func ApplyShadow(card *image.RGBA, opts ShadowOptions) ShadowResult {
	if card == nil {
		return ShadowResult{}
	}
	if card.Bounds().Empty() || opts.Color.A == 0 {
		return ShadowResult{Image: card}
	}
	radius := max(opts.Radius, 0)

	srcBounds := card.Bounds()
	padded := srcBounds.Inset(-radius)
	shadowBounds := padded.Add(opts.Offset)
	composite := srcBounds.Union(shadowBounds)
	shift := srcBounds.Min.Sub(composite.Min)

	mask := image.NewGray(padded.Sub(padded.Min))
	for y := srcBounds.Min.Y; y < srcBounds.Max.Y; y++ {
		for x := srcBounds.Min.X; x < srcBounds.Max.X; x++ {
			if a := card.RGBAAt(x, y).A; a != 0 {
				mask.SetGray(x-padded.Min.X, y-padded.Min.Y, color.Gray{Y: a})
			}
		}
	}
	blurred := blurGray(mask, radius)

	dst := image.NewRGBA(composite.Sub(composite.Min))
	shade := color.NRGBA{R: opts.Color.R, G: opts.Color.G, B: opts.Color.B, A: opts.Color.A}
	draw.DrawMask(dst, blurred.Bounds().Add(shadowBounds.Min.Sub(composite.Min)), image.NewUniform(shade), image.Point{}, blurred, image.Point{}, draw.Over)
	draw.Draw(dst, srcBounds.Sub(composite.Min), card, srcBounds.Min, draw.Over)
	return ShadowResult{Image: dst, Offset: shift}
}

// blurGray is a separable box blur.
func blurGray(src *image.Gray, radius int) *image.Gray {
	if radius <= 0 {
		out := image.NewGray(src.Bounds())
		copy(out.Pix, src.Pix)
		return out
	}
	bounds := src.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	tmp := image.NewGray(bounds)
	dst := image.NewGray(bounds)

	prefix := make([]int, max(w, h)+1)
	for y := 0; y < h; y++ {
		row := src.Pix[y*src.Stride : y*src.Stride+w]
		for x, v := range row {
			prefix[x+1] = prefix[x] + int(v)
		}
		for x := 0; x < w; x++ {
			x0, x1 := max(x-radius, 0), min(x+radius, w-1)
			tmp.Pix[y*tmp.Stride+x] = uint8((prefix[x1+1] - prefix[x0]) / (x1 - x0 + 1))
		}
	}
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			prefix[y+1] = prefix[y] + int(tmp.Pix[y*tmp.Stride+x])
		}
		for y := 0; y < h; y++ {
			y0, y1 := max(y-radius, 0), min(y+radius, h-1)
			dst.Pix[y*dst.Stride+x] = uint8((prefix[y1+1] - prefix[y0]) / (y1 - y0 + 1))
		}
	}
	return dst
}
