package theme

import (
	"embed"
	"fmt"
	"image/color"
	"io"
	"reflect"
	"strings"

	"github.com/example/sketchtutor/internal/canvas"
)

// EmbeddedThemes holds the themes shipped with the binary.
//
//go:embed defaults/*.theme
var EmbeddedThemes embed.FS

// Theme is the palette used when answer cards are drawn onto exported images.
type Theme struct {
	Name string

	// Page
	Background color.RGBA // Fill behind transparent canvas pixels

	// Answer cards
	CardBackground color.RGBA
	CardBorder     color.RGBA
	CardText       color.RGBA
	MathText       color.RGBA // Inline and block formulas
	LoadingText    color.RGBA // Placeholder while an answer is pending
	ErrorText      color.RGBA
	Shadow         color.RGBA
}

// Default returns the built-in light theme.
func Default() *Theme {
	return &Theme{
		Name:           "Default",
		Background:     color.RGBA{255, 255, 255, 255},
		CardBackground: color.RGBA{255, 255, 255, 240},
		CardBorder:     color.RGBA{204, 204, 204, 255},
		CardText:       color.RGBA{34, 34, 34, 255},
		MathText:       color.RGBA{20, 60, 140, 255},
		LoadingText:    color.RGBA{136, 136, 136, 255},
		ErrorText:      color.RGBA{190, 30, 30, 255},
		Shadow:         color.RGBA{0, 0, 0, 90},
	}
}

var rgbaType = reflect.TypeOf(color.RGBA{})

// Set assigns a colour field by case-insensitive name. Unknown keys are
// ignored so older binaries can read newer themes.
func (t *Theme) Set(key, value string) error {
	if strings.EqualFold(key, "Name") {
		t.Name = value
		return nil
	}
	val := reflect.ValueOf(t).Elem()
	typ := val.Type()
	for i := 0; i < typ.NumField(); i++ {
		f := typ.Field(i)
		if !strings.EqualFold(f.Name, key) || f.Type != rgbaType {
			continue
		}
		col, err := canvas.ParseColor(value)
		if err != nil {
			return fmt.Errorf("invalid color for key %s: %w", key, err)
		}
		val.Field(i).Set(reflect.ValueOf(col))
		return nil
	}
	return nil
}

// Write emits t in the "Key: #RRGGBB" form Parse reads.
func (t *Theme) Write(w io.Writer) error {
	if _, err := fmt.Fprintf(w, "Name: %s\n", t.Name); err != nil {
		return err
	}
	val := reflect.ValueOf(t).Elem()
	typ := val.Type()
	for i := 0; i < typ.NumField(); i++ {
		f := typ.Field(i)
		if f.Type != rgbaType {
			continue
		}
		col := val.Field(i).Interface().(color.RGBA)
		if _, err := fmt.Fprintf(w, "%s: %s\n", f.Name, canvas.FormatColor(col)); err != nil {
			return err
		}
	}
	return nil
}
