// Package clipboard moves sketches and answers through the system clipboard.
//
// Images travel as PNG. Builds with cgo on unix use the native clipboard
// library; builds without cgo talk to the X server directly for images and
// shell out to the platform tools for text.
package clipboard

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/png"
	"os"
)

var (
	errNoDisplay = errors.New("clipboard requires DISPLAY or WAYLAND_DISPLAY")
	// ErrEmpty is returned when the clipboard holds nothing of the requested kind.
	ErrEmpty = errors.New("clipboard is empty")
)

var getenv = os.Getenv

func hasDisplay() bool {
	return getenv("DISPLAY") != "" || getenv("WAYLAND_DISPLAY") != ""
}

func encodePNG(img image.Image) ([]byte, error) {
	if img == nil {
		return nil, fmt.Errorf("no image to copy")
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

func decodePNG(data []byte) (image.Image, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("read image: %w", ErrEmpty)
	}
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode clipboard image: %w", err)
	}
	return img, nil
}
