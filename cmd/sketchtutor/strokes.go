package main

import (
	"encoding/json"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/example/sketchtutor/internal/canvas"
)

// readStrokes loads a JSON stroke array from path, or stdin for "-".
func readStrokes(path string) ([]canvas.Stroke, error) {
	var r io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open stroke file: %w", err)
		}
		defer f.Close()
		r = f
	}
	var strokes []canvas.Stroke
	if err := json.NewDecoder(r).Decode(&strokes); err != nil {
		return nil, fmt.Errorf("failed to decode stroke file %s: %w", path, err)
	}
	return strokes, nil
}

// readImage decodes the image at path. A data: URL is decoded in place.
func readImage(path string) (image.Image, error) {
	if strings.HasPrefix(path, "data:") {
		img, err := canvas.DecodeDataURL(path)
		if err != nil {
			return nil, fmt.Errorf("failed to decode image data URL: %w", err)
		}
		return img, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image %s: %w", path, err)
	}
	return img, nil
}

// outputKind picks the writer for path from its extension.
func outputKind(path string) (string, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".png", "":
		return "png", nil
	case ".jpg", ".jpeg":
		return "jpeg", nil
	case ".pdf":
		return "pdf", nil
	default:
		return "", fmt.Errorf("unsupported output format %q", ext)
	}
}

func writeImageFile(path string, img image.Image, format canvas.Format, quality int) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := canvas.Encode(f, img, format, quality); err != nil {
		f.Close()
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	return f.Close()
}
