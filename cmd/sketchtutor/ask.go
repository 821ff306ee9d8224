package main

import (
	"context"
	"flag"
	"fmt"
	"image"
	"image/color"
	"os"
	"os/signal"
	"strings"

	"go.uber.org/zap"

	"github.com/example/sketchtutor/internal/canvas"
	"github.com/example/sketchtutor/internal/clipboard"
	"github.com/example/sketchtutor/internal/relay"
	"github.com/example/sketchtutor/internal/render"
	"github.com/example/sketchtutor/internal/session"
)

var (
	readClipboardImage = clipboard.ReadImage
	writeClipboardText = clipboard.WriteText
)

type askCmd struct {
	*root
	fs            *flag.FlagSet
	strokesPath   string
	imagePath     string
	fromClipboard bool
	copyAnswer    bool
	output        string
	question      string
}

func (a *askCmd) FlagSet() *flag.FlagSet {
	return a.fs
}

func parseAskCmd(args []string, r *root) (*askCmd, error) {
	fs := flag.NewFlagSet("ask", flag.ExitOnError)
	cmd := &askCmd{root: r, fs: fs}
	fs.Usage = usageFunc(cmd)
	fs.StringVar(&cmd.strokesPath, "strokes", "", "stroke file to draw and attach (- for stdin)")
	fs.StringVar(&cmd.imagePath, "image", "", "PNG or JPEG (file or data: URL) of the work to attach")
	fs.BoolVar(&cmd.fromClipboard, "from-clipboard", false, "attach the image on the clipboard")
	fs.BoolVar(&cmd.fromClipboard, "from-clip", false, "alias for -from-clipboard")
	fs.BoolVar(&cmd.copyAnswer, "copy", false, "copy the answer text to the clipboard")
	fs.StringVar(&cmd.output, "output", "", "with -strokes, write the canvas with the answer card to this PNG")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	sources := 0
	for _, set := range []bool{cmd.strokesPath != "", cmd.imagePath != "", cmd.fromClipboard} {
		if set {
			sources++
		}
	}
	if sources > 1 {
		return nil, fmt.Errorf("use only one of -strokes, -image and -from-clipboard")
	}
	if cmd.output != "" && cmd.strokesPath == "" {
		return nil, fmt.Errorf("-output needs -strokes")
	}
	cmd.question = strings.TrimSpace(strings.Join(fs.Args(), " "))
	if cmd.question == "" && sources == 0 {
		return nil, &UsageError{of: cmd}
	}
	return cmd, nil
}

func (a *askCmd) Run() error {
	st, err := a.streamer()
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var (
		answer strings.Builder
		sketch image.Image
	)
	emit := func(tok string) error {
		answer.WriteString(tok)
		_, err := fmt.Fprint(a.out(), tok)
		return err
	}

	if a.strokesPath != "" {
		sketch, err = a.askAboutStrokes(ctx, st, emit)
	} else {
		sketch, err = a.askDirect(ctx, st, emit)
	}
	fmt.Fprintln(a.out())
	if err != nil {
		return err
	}

	text := answer.String()
	a.notifier.Answer(text, sketch)
	if a.copyAnswer {
		if err := writeClipboardText(text); err != nil {
			return fmt.Errorf("failed to copy answer: %w", err)
		}
		a.notifier.Copy("answer")
	}
	return nil
}

// askAboutStrokes replays the stroke file into a session so the answer is
// anchored below the work exactly as in the browser.
func (a *askCmd) askAboutStrokes(ctx context.Context, st relay.Streamer, fn func(string) error) (image.Image, error) {
	strokes, err := readStrokes(a.strokesPath)
	if err != nil {
		return nil, err
	}
	opts, err := a.config.Canvas.SessionOptions()
	if err != nil {
		return nil, fmt.Errorf("invalid [canvas] settings: %w", err)
	}
	sess := session.New("cli", opts, st, a.logger())
	defer sess.Close()
	if err := sess.Load(strokes); err != nil {
		return nil, fmt.Errorf("failed to load strokes: %w", err)
	}
	if _, err := sess.Ask(ctx, a.question, nil, fn); err != nil {
		return nil, fmt.Errorf("failed to get answer: %w", err)
	}

	frame := sess.Frame(true)
	sketch := canvas.Flatten(frame.Image, color.White)
	if a.output == "" {
		return sketch, nil
	}
	img, err := render.Compose(frame.Image, frame.Origin, frame.Overlays, a.activeTheme, render.DefaultCardOptions())
	if err != nil {
		return sketch, fmt.Errorf("failed to draw answer card: %w", err)
	}
	if err := writeImageFile(a.output, img, canvas.PNG, 0); err != nil {
		return sketch, err
	}
	a.notifier.Export(a.output)
	return sketch, nil
}

func (a *askCmd) askDirect(ctx context.Context, st relay.Streamer, fn func(string) error) (image.Image, error) {
	var (
		img image.Image
		err error
	)
	switch {
	case a.imagePath != "":
		img, err = readImage(a.imagePath)
	case a.fromClipboard:
		img, err = readClipboardImage()
		if err != nil {
			err = fmt.Errorf("failed to read clipboard image: %w", err)
		}
	}
	if err != nil {
		return nil, err
	}

	q := relay.Query{UserMessage: a.question}
	if img != nil {
		q.ImageBase64, err = a.encodeAttachment(img)
		if err != nil {
			return nil, err
		}
	}
	if err := q.Validate(); err != nil {
		return nil, err
	}
	a.logger().Debug("asking", zap.Bool("image", q.ImageBase64 != ""))
	ts, err := st.Stream(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("failed to open answer stream: %w", err)
	}
	if err := relay.Pipe(ctx, ts, fn); err != nil {
		return nil, fmt.Errorf("failed to get answer: %w", err)
	}
	return img, nil
}

// encodeAttachment prepares an image the same way session snapshots are.
func (a *askCmd) encodeAttachment(img image.Image) (string, error) {
	opts, err := a.config.Canvas.SessionOptions()
	if err != nil {
		return "", fmt.Errorf("invalid [canvas] settings: %w", err)
	}
	out := canvas.Flatten(img, color.White)
	if opts.Invert {
		out = canvas.Invert(out)
	}
	if opts.MaxImageDim > 0 {
		out = canvas.Fit(out, opts.MaxImageDim)
	}
	url, err := canvas.DataURL(out, opts.ImageFormat, opts.JPEGQuality)
	if err != nil {
		return "", fmt.Errorf("failed to encode image: %w", err)
	}
	return url, nil
}
