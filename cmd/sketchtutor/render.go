package main

import (
	"flag"
	"fmt"
	"image"
	"image/color"
	"os"

	"github.com/example/sketchtutor/internal/canvas"
	"github.com/example/sketchtutor/internal/clipboard"
	"github.com/example/sketchtutor/internal/export"
)

var writeClipboardImage = clipboard.WriteImage

type renderCmd struct {
	*root
	fs          *flag.FlagSet
	strokesPath string
	output      string
	crop        bool
	invert      bool
	toClipboard bool
	width       int
	height      int
}

func (c *renderCmd) FlagSet() *flag.FlagSet {
	return c.fs
}

func parseRenderCmd(args []string, r *root) (*renderCmd, error) {
	fs := flag.NewFlagSet("render", flag.ExitOnError)
	cmd := &renderCmd{root: r, fs: fs}
	fs.Usage = usageFunc(cmd)
	width, height := 0, 0
	if r != nil && r.config != nil {
		width, height = r.config.Canvas.Width, r.config.Canvas.Height
	}
	fs.StringVar(&cmd.strokesPath, "strokes", "", "stroke file to replay (- for stdin)")
	fs.StringVar(&cmd.output, "output", "", "output file (.png, .jpg or .pdf)")
	fs.BoolVar(&cmd.crop, "crop", false, "crop raster output to the ink with padding")
	fs.BoolVar(&cmd.invert, "invert", false, "invert raster output colours")
	fs.BoolVar(&cmd.toClipboard, "to-clipboard", false, "copy the rendered image to the clipboard")
	fs.BoolVar(&cmd.toClipboard, "to-clip", false, "alias for -to-clipboard")
	fs.IntVar(&cmd.width, "width", width, "canvas width in pixels")
	fs.IntVar(&cmd.height, "height", height, "canvas height in pixels")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if cmd.strokesPath == "" {
		return nil, &UsageError{of: cmd}
	}
	if cmd.output == "" && !cmd.toClipboard {
		return nil, fmt.Errorf("nothing to do: give -output or -to-clipboard")
	}
	if cmd.width <= 0 || cmd.height <= 0 {
		return nil, fmt.Errorf("canvas size must be positive, got %dx%d", cmd.width, cmd.height)
	}
	return cmd, nil
}

func (c *renderCmd) Run() error {
	strokes, err := readStrokes(c.strokesPath)
	if err != nil {
		return err
	}
	store := canvas.NewStore(canvas.NewSurface(c.width, c.height))
	if err := store.Load(strokes); err != nil {
		return fmt.Errorf("failed to load strokes: %w", err)
	}

	if c.output != "" {
		kind, err := outputKind(c.output)
		if err != nil {
			return err
		}
		if kind == "pdf" {
			err = c.writePDF(store.Strokes())
		} else {
			err = writeImageFile(c.output, c.raster(store.Surface()), canvas.Format(kind), c.config.Canvas.JPEGQuality)
		}
		if err != nil {
			return err
		}
		c.notifier.Export(c.output)
		fmt.Fprintf(os.Stderr, "wrote %s\n", c.output)
	}

	if c.toClipboard {
		if err := writeClipboardImage(c.raster(store.Surface())); err != nil {
			return fmt.Errorf("failed to copy image: %w", err)
		}
		c.notifier.Copy("sketch")
	}
	return nil
}

func (c *renderCmd) raster(s *canvas.Surface) image.Image {
	opts, _ := c.config.Canvas.SessionOptions()
	var img *image.RGBA
	if c.crop {
		img, _ = s.ExportCropped(opts.CropPadding, opts.CropThreshold)
	} else {
		img = s.Snapshot()
	}
	out := canvas.Flatten(img, color.White)
	if c.invert {
		out = canvas.Invert(out)
	}
	return out
}

func (c *renderCmd) writePDF(strokes []canvas.Stroke) error {
	f, err := os.Create(c.output)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", c.output, err)
	}
	doc := export.Document{Title: c.strokesPath, Width: float64(c.width), Strokes: strokes}
	if err := export.WritePDF(f, doc, export.DefaultOptions()); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
