//go:build linux || freebsd || openbsd || netbsd || dragonfly

package clipboard

import (
	"errors"
	"image"
	"sync"
	"testing"
)

func withoutDisplay(t *testing.T) {
	t.Helper()
	orig := getenv
	getenv = func(string) string { return "" }
	t.Cleanup(func() {
		getenv = orig
		initOnce = sync.Once{}
		initErr = nil
	})
	initOnce = sync.Once{}
	initErr = nil
}

func TestWriteImageWithoutDisplay(t *testing.T) {
	withoutDisplay(t)
	err := WriteImage(image.NewRGBA(image.Rect(0, 0, 2, 2)))
	if !errors.Is(err, errNoDisplay) {
		t.Fatalf("expected errNoDisplay, got %v", err)
	}
}

func TestReadTextWithoutDisplay(t *testing.T) {
	withoutDisplay(t)
	if _, err := ReadText(); !errors.Is(err, errNoDisplay) {
		t.Fatalf("expected errNoDisplay, got %v", err)
	}
}
