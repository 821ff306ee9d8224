package clipboard

import (
	"errors"
	"image"
	"image/color"
	"testing"
)

func TestPNGRoundTrip(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 3, 2))
	src.Set(1, 1, color.RGBA{R: 200, A: 255})
	data, err := encodePNG(src)
	if err != nil {
		t.Fatalf("encodePNG: %v", err)
	}
	img, err := decodePNG(data)
	if err != nil {
		t.Fatalf("decodePNG: %v", err)
	}
	if img.Bounds() != src.Bounds() {
		t.Fatalf("bounds = %v, want %v", img.Bounds(), src.Bounds())
	}
	if r, _, _, _ := img.At(1, 1).RGBA(); r>>8 != 200 {
		t.Fatalf("pixel red = %d, want 200", r>>8)
	}
}

func TestDecodeEmpty(t *testing.T) {
	if _, err := decodePNG(nil); !errors.Is(err, ErrEmpty) {
		t.Fatalf("expected ErrEmpty, got %v", err)
	}
	if _, err := encodePNG(nil); err == nil {
		t.Fatalf("expected error for nil image")
	}
}

func TestHasDisplay(t *testing.T) {
	orig := getenv
	t.Cleanup(func() { getenv = orig })
	getenv = func(k string) string {
		if k == "WAYLAND_DISPLAY" {
			return "wayland-0"
		}
		return ""
	}
	if !hasDisplay() {
		t.Fatalf("wayland display not detected")
	}
	getenv = func(string) string { return "" }
	if hasDisplay() {
		t.Fatalf("display detected with empty environment")
	}
}
