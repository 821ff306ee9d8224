package canvas

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"image/png"
	"io"
	"strings"

	xdraw "golang.org/x/image/draw"
)

// Format selects the encoding used for exported images.
type Format string

const (
	PNG  Format = "png"
	JPEG Format = "jpeg"
)

// ParseFormat accepts png, jpeg and jpg.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "png":
		return PNG, nil
	case "jpg", "jpeg":
		return JPEG, nil
	}
	return "", fmt.Errorf("unsupported image format %q", s)
}

// MIME returns the media type for f.
func (f Format) MIME() string {
	if f == JPEG {
		return "image/jpeg"
	}
	return "image/png"
}

// ExportCropped returns a copy of the smallest region holding every pixel with
// alpha > 0 whose colour channels all exceed threshold, grown by padding and
// clamped to the surface. When no pixel qualifies the live buffer is returned
// uncropped and empty is true.
func (s *Surface) ExportCropped(padding int, threshold uint8) (img *image.RGBA, empty bool) {
	box, ok := s.InkBounds(padding, threshold)
	if !ok {
		return s.img, true
	}
	return Crop(s.img, box), false
}

// InkBounds returns the padded crop box used by ExportCropped.
func (s *Surface) InkBounds(padding int, threshold uint8) (image.Rectangle, bool) {
	box, ok := inkBounds(s.img, threshold)
	if !ok {
		return image.Rectangle{}, false
	}
	if padding > 0 {
		box = box.Inset(-padding)
	}
	return box.Intersect(s.img.Bounds()), true
}

// Crop copies region r of img into a new image whose origin is (0, 0).
func Crop(img *image.RGBA, r image.Rectangle) *image.RGBA {
	r = r.Intersect(img.Bounds())
	out := image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	draw.Draw(out, out.Bounds(), img, r.Min, draw.Src)
	return out
}

func inkBounds(img *image.RGBA, threshold uint8) (image.Rectangle, bool) {
	b := img.Bounds()
	minX, minY, maxX, maxY := b.Max.X, b.Max.Y, b.Min.X-1, b.Min.Y-1
	for y := b.Min.Y; y < b.Max.Y; y++ {
		off := img.PixOffset(b.Min.X, y)
		for x := b.Min.X; x < b.Max.X; x, off = x+1, off+4 {
			if !qualifies(img.Pix[off:off+4:off+4], threshold) {
				continue
			}
			minX = min(minX, x)
			maxX = max(maxX, x)
			minY = min(minY, y)
			maxY = max(maxY, y)
		}
	}
	if maxX < minX {
		return image.Rectangle{}, false
	}
	return image.Rect(minX, minY, maxX+1, maxY+1), true
}

// qualifies compares un-premultiplied channels against threshold.
func qualifies(p []byte, threshold uint8) bool {
	a := uint32(p[3])
	if a == 0 {
		return false
	}
	t := uint32(threshold)
	for _, c := range p[:3] {
		if uint32(c)*255/a <= t {
			return false
		}
	}
	return true
}

// LowestInk returns the first pixel with alpha > 0 scanning bottom-to-top and
// left-to-right.
func (s *Surface) LowestInk() (image.Point, bool) {
	b := s.img.Bounds()
	for y := b.Max.Y - 1; y >= b.Min.Y; y-- {
		off := s.img.PixOffset(b.Min.X, y)
		for x := b.Min.X; x < b.Max.X; x, off = x+1, off+4 {
			if s.img.Pix[off+3] != 0 {
				return image.Pt(x, y), true
			}
		}
	}
	return image.Point{}, false
}

// Invert returns a copy of img with its colour channels inverted and alpha
// preserved.
func Invert(img *image.RGBA) *image.RGBA {
	out := image.NewRGBA(img.Bounds())
	copy(out.Pix, img.Pix)
	for i := 0; i+3 < len(out.Pix); i += 4 {
		a := out.Pix[i+3]
		// premultiplied: (255 - c*255/a) * a/255 == a - c
		out.Pix[i] = a - min(out.Pix[i], a)
		out.Pix[i+1] = a - min(out.Pix[i+1], a)
		out.Pix[i+2] = a - min(out.Pix[i+2], a)
	}
	return out
}

// Flatten composites img over a solid background and rebases it at the origin.
func Flatten(img image.Image, bg color.Color) *image.RGBA {
	b := img.Bounds()
	out := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(out, out.Bounds(), image.NewUniform(bg), image.Point{}, draw.Src)
	draw.Draw(out, out.Bounds(), img, b.Min, draw.Over)
	return out
}

// Fit scales img down so neither side exceeds maxDim. Images already small
// enough are copied unchanged.
func Fit(img image.Image, maxDim int) *image.RGBA {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if maxDim <= 0 || (w <= maxDim && h <= maxDim) {
		out := image.NewRGBA(image.Rect(0, 0, w, h))
		draw.Draw(out, out.Bounds(), img, b.Min, draw.Src)
		return out
	}
	scale := float64(maxDim) / float64(max(w, h))
	nw := max(1, int(float64(w)*scale+0.5))
	nh := max(1, int(float64(h)*scale+0.5))
	out := image.NewRGBA(image.Rect(0, 0, nw, nh))
	xdraw.CatmullRom.Scale(out, out.Bounds(), img, b, xdraw.Src, nil)
	return out
}

// Encode writes img to w. Quality applies to JPEG only.
func Encode(w io.Writer, img image.Image, format Format, quality int) error {
	switch format {
	case JPEG:
		if quality <= 0 || quality > 100 {
			quality = jpeg.DefaultQuality
		}
		return jpeg.Encode(w, img, &jpeg.Options{Quality: quality})
	case PNG, "":
		return png.Encode(w, img)
	}
	return fmt.Errorf("unsupported image format %q", format)
}

// EncodeBytes is Encode into a byte slice.
func EncodeBytes(img image.Image, format Format, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, img, format, quality); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DataURL encodes img as a base64 data URL.
func DataURL(img image.Image, format Format, quality int) (string, error) {
	data, err := EncodeBytes(img, format, quality)
	if err != nil {
		return "", fmt.Errorf("encode %s: %w", format, err)
	}
	if format == "" {
		format = PNG
	}
	return "data:" + format.MIME() + ";base64," + base64.StdEncoding.EncodeToString(data), nil
}

// DecodeDataURL parses a data URL, or bare base64, into its image.
func DecodeDataURL(s string) (image.Image, error) {
	payload := strings.TrimSpace(s)
	if strings.HasPrefix(payload, "data:") {
		comma := strings.IndexByte(payload, ',')
		if comma < 0 {
			return nil, fmt.Errorf("malformed data URL")
		}
		payload = payload[comma+1:]
	}
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("decode base64: %w", err)
	}
	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return img, nil
}
