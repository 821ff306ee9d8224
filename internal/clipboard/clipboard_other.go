//go:build !(linux || freebsd || openbsd || netbsd || dragonfly)

package clipboard

import (
	"errors"
	"fmt"
	"image"

	"github.com/atotto/clipboard"
)

var errImageUnsupported = errors.New("clipboard images are not supported on this platform")

// WriteImage always fails; only text is supported here.
func WriteImage(image.Image) error {
	return errImageUnsupported
}

// ReadImage always fails; only text is supported here.
func ReadImage() (image.Image, error) {
	return nil, errImageUnsupported
}

// WriteText publishes text.
func WriteText(text string) error {
	return clipboard.WriteAll(text)
}

// ReadText returns the text currently on the clipboard.
func ReadText() (string, error) {
	text, err := clipboard.ReadAll()
	if err != nil {
		return "", err
	}
	if text == "" {
		return "", fmt.Errorf("read text: %w", ErrEmpty)
	}
	return text, nil
}
