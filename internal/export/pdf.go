// Package export writes the canvas and its answers as a vector PDF.
package export

import (
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/jung-kurt/gofpdf"

	"github.com/example/sketchtutor/internal/canvas"
	"github.com/example/sketchtutor/internal/overlay"
)

// Document is what ends up on the page. Coordinates are canvas pixels and are
// written one pixel per point.
type Document struct {
	Title    string
	Width    float64
	Strokes  []canvas.Stroke
	Overlays []overlay.View
}

// Options tunes the page layout.
type Options struct {
	Margin    float64
	CardWidth float64
	FontSize  float64
	MinHeight float64
}

// DefaultOptions matches the overlay cards shown in the browser.
func DefaultOptions() Options {
	return Options{Margin: 20, CardWidth: 400, FontSize: 12, MinHeight: 200}
}

// WritePDF renders doc as a single page sized to its content. Eraser strokes
// are painted in the page colour.
func WritePDF(w io.Writer, doc Document, opts Options) error {
	if opts.FontSize <= 0 {
		opts.FontSize = DefaultOptions().FontSize
	}
	if opts.CardWidth <= 0 {
		opts.CardWidth = DefaultOptions().CardWidth
	}
	lineHeight := opts.FontSize * 1.4

	measure := gofpdf.New("P", "pt", "A4", "")
	measure.SetFont("Helvetica", "", opts.FontSize)
	tr := measure.UnicodeTranslatorFromDescriptor("")
	lines := make([]int, len(doc.Overlays))
	for i, v := range doc.Overlays {
		lines[i] = len(measure.SplitText(tr(cardText(v)), opts.CardWidth))
	}

	width, height := pageSize(doc, lines, lineHeight, opts)
	pdf := gofpdf.NewCustom(&gofpdf.InitType{
		OrientationStr: "P",
		UnitStr:        "pt",
		Size:           gofpdf.SizeType{Wd: width, Ht: height},
	})
	pdf.SetMargins(0, 0, 0)
	pdf.SetAutoPageBreak(false, 0)
	if doc.Title != "" {
		pdf.SetTitle(doc.Title, true)
	}
	pdf.SetCreator("sketchtutor", true)
	pdf.AddPage()
	pdf.SetLineCapStyle("round")
	pdf.SetLineJoinStyle("round")

	for _, st := range doc.Strokes {
		drawStroke(pdf, st)
	}
	pdf.SetAlpha(1, "Normal")

	tr = pdf.UnicodeTranslatorFromDescriptor("")
	for i, v := range doc.Overlays {
		drawCard(pdf, tr, v, lines[i], lineHeight, opts)
	}

	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("write pdf: %w", err)
	}
	return nil
}

func pageSize(doc Document, lines []int, lineHeight float64, opts Options) (float64, float64) {
	width := doc.Width
	bottom := 0.0
	for _, st := range doc.Strokes {
		for _, p := range st.Points {
			width = math.Max(width, p.X+st.Width/2)
			bottom = math.Max(bottom, p.Y+st.Width/2)
		}
	}
	for i, v := range doc.Overlays {
		width = math.Max(width, v.Position.X+opts.CardWidth)
		bottom = math.Max(bottom, v.Position.Y+float64(max(lines[i], 1))*lineHeight)
	}
	return math.Max(width, 1), math.Max(bottom+opts.Margin, opts.MinHeight)
}

func drawStroke(pdf *gofpdf.Fpdf, st canvas.Stroke) {
	if st.Tool == canvas.Eraser {
		pdf.SetDrawColor(255, 255, 255)
		pdf.SetFillColor(255, 255, 255)
		pdf.SetAlpha(1, "Normal")
	} else {
		pdf.SetDrawColor(int(st.Color.R), int(st.Color.G), int(st.Color.B))
		pdf.SetFillColor(int(st.Color.R), int(st.Color.G), int(st.Color.B))
		pdf.SetAlpha(float64(st.Color.A)/255, "Normal")
	}
	pdf.SetLineWidth(st.Width)
	if len(st.Points) == 1 {
		p := st.Points[0]
		pdf.Circle(p.X, p.Y, st.Width/2, "F")
		return
	}
	for i := 1; i < len(st.Points); i++ {
		a, b := st.Points[i-1], st.Points[i]
		pdf.Line(a.X, a.Y, b.X, b.Y)
	}
}

func cardText(v overlay.View) string {
	switch {
	case v.State == overlay.Failed && v.Text == "":
		return "Error: " + v.Error
	case v.Pending:
		return "..."
	}
	var sb strings.Builder
	for _, seg := range v.Segments {
		switch seg.Kind {
		case overlay.BlockMath:
			sb.WriteString("\n" + seg.Text + "\n")
		default:
			sb.WriteString(seg.Text)
		}
	}
	return sb.String()
}

func drawCard(pdf *gofpdf.Fpdf, tr func(string) string, v overlay.View, lines int, lineHeight float64, opts Options) {
	x, y := v.Position.X, v.Position.Y
	pdf.SetDrawColor(200, 200, 200)
	pdf.SetFillColor(255, 255, 255)
	pdf.SetLineWidth(0.5)
	pdf.Rect(x, y, opts.CardWidth, float64(max(lines, 1))*lineHeight+4, "FD")

	pdf.SetLeftMargin(x + 2)
	pdf.SetRightMargin(math.Max(0, pageWidth(pdf)-x-opts.CardWidth))
	pdf.SetXY(x+2, y+2)
	switch {
	case v.State == overlay.Failed && v.Text == "":
		pdf.SetTextColor(180, 30, 30)
		pdf.SetFont("Helvetica", "I", opts.FontSize)
		pdf.Write(lineHeight, tr(cardText(v)))
		return
	case v.Pending:
		pdf.SetTextColor(120, 120, 120)
		pdf.SetFont("Helvetica", "I", opts.FontSize)
		pdf.Write(lineHeight, "...")
		return
	}
	pdf.SetTextColor(20, 20, 20)
	for _, seg := range v.Segments {
		switch seg.Kind {
		case overlay.Text:
			pdf.SetFont("Helvetica", "", opts.FontSize)
			pdf.Write(lineHeight, tr(seg.Text))
		case overlay.InlineMath:
			pdf.SetFont("Courier", "", opts.FontSize)
			pdf.Write(lineHeight, tr(seg.Text))
		case overlay.BlockMath:
			pdf.Ln(lineHeight)
			pdf.SetFont("Courier", "B", opts.FontSize)
			pdf.Write(lineHeight, tr(seg.Text))
			pdf.Ln(lineHeight)
		}
	}
}

func pageWidth(pdf *gofpdf.Fpdf) float64 {
	w, _ := pdf.GetPageSize()
	return w
}
