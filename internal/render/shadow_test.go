package render

import (
	"image"
	"image/color"
	"testing"
)

func TestApplyShadowExpandsBounds(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 10, 10))
	subject := image.Pt(5, 5)
	img.Set(subject.X, subject.Y, color.RGBA{R: 255, A: 255})

	opts := ShadowOptions{Radius: 4, Offset: image.Pt(8, 6), Color: color.RGBA{A: 128}}
	out := ApplyShadow(img, opts)
	if out.Image == nil {
		t.Fatal("expected output image")
	}
	expected := image.Rect(0, 0, 22, 20)
	if !out.Image.Bounds().Eq(expected) {
		t.Fatalf("unexpected bounds %v, want %v", out.Image.Bounds(), expected)
	}
	if out.Offset != (image.Point{}) {
		t.Fatalf("card should stay at the origin, offset %v", out.Offset)
	}
	shadowPt := subject.Add(opts.Offset)
	if out.Image.RGBAAt(shadowPt.X, shadowPt.Y).A == 0 {
		t.Fatalf("expected shadow alpha at %v", shadowPt)
	}
}

func TestApplyShadowNegativeOffsetShiftsCard(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	out := ApplyShadow(img, ShadowOptions{Radius: 1, Offset: image.Pt(-3, 0), Color: color.RGBA{A: 255}})
	if out.Offset != image.Pt(4, 1) {
		t.Fatalf("offset = %v, want (4,1)", out.Offset)
	}
}

func TestApplyShadowTransparentColour(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	fill := color.RGBA{R: 200, G: 100, B: 50, A: 255}
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			img.Set(x, y, fill)
		}
	}
	out := ApplyShadow(img, ShadowOptions{Radius: 12, Offset: image.Pt(20, 10)})
	if out.Image != img {
		t.Fatalf("a transparent shadow should leave the card untouched")
	}
}

func TestBlurGraySpreads(t *testing.T) {
	src := image.NewGray(image.Rect(0, 0, 5, 5))
	src.SetGray(2, 2, color.Gray{Y: 250})
	out := blurGray(src, 1)
	if out.GrayAt(2, 2).Y == 0 || out.GrayAt(1, 1).Y == 0 {
		t.Fatalf("blur did not spread: centre %d corner %d", out.GrayAt(2, 2).Y, out.GrayAt(1, 1).Y)
	}
	if out.GrayAt(0, 0).Y != 0 {
		t.Fatalf("blur reached too far")
	}
}
