package main

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/example/sketchtutor/internal/canvas"
	"github.com/example/sketchtutor/internal/config"
	"github.com/example/sketchtutor/internal/discovery"
	"github.com/example/sketchtutor/internal/relay"
	"github.com/example/sketchtutor/internal/server"
	"github.com/example/sketchtutor/internal/session"
	"github.com/example/sketchtutor/internal/theme"
)

const strokeFile = `[{"tool":"brush","points":[{"x":20,"y":20},{"x":120,"y":80}],"width":6,"color":"#1a1a1a"}]`

func testRoot(t *testing.T) (*root, *bytes.Buffer) {
	t.Helper()
	cfg := config.New()
	cfg.LLM.Echo = true
	cfg.Canvas.Width, cfg.Canvas.Height = 300, 300
	var out bytes.Buffer
	return &root{program: "sketchtutor", config: cfg, stdout: &out, activeTheme: theme.Default()}, &out
}

func writeStrokes(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "work.json")
	if err := os.WriteFile(path, []byte(strokeFile), 0o644); err != nil {
		t.Fatalf("write stroke file: %v", err)
	}
	return path
}

func TestParseAskRejectsTwoSources(t *testing.T) {
	r, _ := testRoot(t)
	_, err := parseAskCmd([]string{"-image", "a.png", "-from-clipboard", "why?"}, r)
	if err == nil {
		t.Fatalf("expected error")
	}
	if want := "use only one of"; !strings.Contains(err.Error(), want) {
		t.Fatalf("expected error to mention %q, got %v", want, err)
	}
}

func TestParseAskOutputNeedsStrokes(t *testing.T) {
	r, _ := testRoot(t)
	_, err := parseAskCmd([]string{"-output", "out.png", "why?"}, r)
	if err == nil || !strings.Contains(err.Error(), "-output needs -strokes") {
		t.Fatalf("unexpected error %v", err)
	}
}

func TestParseAskNeedsSomething(t *testing.T) {
	r, _ := testRoot(t)
	_, err := parseAskCmd(nil, r)
	var uerr *UsageError
	if !errors.As(err, &uerr) {
		t.Fatalf("expected usage error, got %v", err)
	}
	if help := uerr.Error(); !strings.Contains(help, "-from-clipboard") {
		t.Fatalf("help should list flags:\n%s", help)
	}
}

func TestAskClipboardError(t *testing.T) {
	original := readClipboardImage
	sentinel := errors.New("no display")
	readClipboardImage = func() (image.Image, error) { return nil, sentinel }
	t.Cleanup(func() { readClipboardImage = original })

	r, _ := testRoot(t)
	cmd, err := parseAskCmd([]string{"-from-clipboard", "what is this?"}, r)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if err := cmd.Run(); err == nil {
		t.Fatalf("expected error")
	} else {
		if !errors.Is(err, sentinel) {
			t.Fatalf("expected wrapped error, got %v", err)
		}
		if want := "failed to read clipboard image"; !strings.Contains(err.Error(), want) {
			t.Fatalf("expected error to contain %q, got %v", want, err)
		}
	}
}

func TestAskStrokesStreamsAndWritesCard(t *testing.T) {
	r, out := testRoot(t)
	output := filepath.Join(t.TempDir(), "answer.png")
	cmd, err := parseAskCmd([]string{"-strokes", writeStrokes(t), "-output", output, "is", "this", "straight?"}, r)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if err := cmd.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got, want := out.String(), "You asked: is this straight? (with a sketch)\n"; got != want {
		t.Fatalf("stdout = %q, want %q", got, want)
	}
	f, err := os.Open(output)
	if err != nil {
		t.Fatalf("open output: %v", err)
	}
	defer f.Close()
	img, err := png.Decode(f)
	if err != nil {
		t.Fatalf("decode output: %v", err)
	}
	if img.Bounds().Dy() < 80 {
		t.Fatalf("output should hold the ink and the card, got %v", img.Bounds())
	}
}

func TestAskCopiesAnswer(t *testing.T) {
	original := writeClipboardText
	var copied string
	writeClipboardText = func(s string) error { copied = s; return nil }
	t.Cleanup(func() { writeClipboardText = original })

	r, _ := testRoot(t)
	cmd, err := parseAskCmd([]string{"-copy", "hello"}, r)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if err := cmd.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if copied != "You asked: hello" {
		t.Fatalf("copied %q", copied)
	}
}

func TestAskAcceptsDataURLImage(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	uri, err := canvas.DataURL(img, canvas.PNG, 0)
	if err != nil {
		t.Fatalf("DataURL: %v", err)
	}
	r, out := testRoot(t)
	cmd, err := parseAskCmd([]string{"-image", uri, "hi"}, r)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if err := cmd.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got, want := out.String(), "You asked: hi (with a sketch)\n"; got != want {
		t.Fatalf("stdout = %q, want %q", got, want)
	}
}

func TestAskThroughRelayServer(t *testing.T) {
	mgr := session.NewManager(session.DefaultOptions(), relay.Echo{}, nil)
	srv := httptest.NewServer(server.New(mgr, relay.Echo{}, server.DefaultOptions(), nil).Handler())
	t.Cleanup(func() {
		srv.Close()
		mgr.Close()
	})

	r, out := testRoot(t)
	r.config.LLM.Echo = false
	r.config.LLM.Relay = srv.URL
	cmd, err := parseAskCmd([]string{"hello"}, r)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if err := cmd.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got, want := out.String(), "You asked: hello\n"; got != want {
		t.Fatalf("stdout = %q, want %q", got, want)
	}
}

func TestAskWithoutKeyExplainsEcho(t *testing.T) {
	r, _ := testRoot(t)
	r.config.LLM.Echo = false
	r.config.LLM.APIKey = ""
	r.config.LLM.BaseURL = ""
	cmd, err := parseAskCmd([]string{"hello"}, r)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if err := cmd.Run(); err == nil || !strings.Contains(err.Error(), "-echo") {
		t.Fatalf("expected hint about -echo, got %v", err)
	}
}

func TestRenderWritesPNGAndPDF(t *testing.T) {
	r, _ := testRoot(t)
	dir := t.TempDir()
	strokes := writeStrokes(t)

	pngPath := filepath.Join(dir, "sketch.png")
	cmd, err := parseRenderCmd([]string{"-strokes", strokes, "-output", pngPath, "-crop"}, r)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if err := cmd.Run(); err != nil {
		t.Fatalf("Run png: %v", err)
	}
	f, err := os.Open(pngPath)
	if err != nil {
		t.Fatalf("open png: %v", err)
	}
	img, err := png.Decode(f)
	f.Close()
	if err != nil {
		t.Fatalf("decode png: %v", err)
	}
	if b := img.Bounds(); b.Dx() >= 300 {
		t.Fatalf("cropped render is full width: %v", b)
	}

	pdfPath := filepath.Join(dir, "sketch.pdf")
	cmd, err = parseRenderCmd([]string{"-strokes", strokes, "-output", pdfPath}, r)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if err := cmd.Run(); err != nil {
		t.Fatalf("Run pdf: %v", err)
	}
	data, err := os.ReadFile(pdfPath)
	if err != nil || !bytes.HasPrefix(data, []byte("%PDF-")) {
		t.Fatalf("pdf output invalid: %v", err)
	}
}

func TestRenderRejectsUnknownExtension(t *testing.T) {
	r, _ := testRoot(t)
	cmd, err := parseRenderCmd([]string{"-strokes", writeStrokes(t), "-output", "sketch.bmp"}, r)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if err := cmd.Run(); err == nil || !strings.Contains(err.Error(), "unsupported output format") {
		t.Fatalf("unexpected error %v", err)
	}
}

func TestRenderClipboardError(t *testing.T) {
	original := writeClipboardImage
	sentinel := errors.New("denied")
	writeClipboardImage = func(image.Image) error { return sentinel }
	t.Cleanup(func() { writeClipboardImage = original })

	r, _ := testRoot(t)
	cmd, err := parseRenderCmd([]string{"-strokes", writeStrokes(t), "-to-clipboard"}, r)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if err := cmd.Run(); !errors.Is(err, sentinel) {
		t.Fatalf("expected wrapped error, got %v", err)
	}
}

func TestParseRenderNeedsDestination(t *testing.T) {
	r, _ := testRoot(t)
	_, err := parseRenderCmd([]string{"-strokes", "work.json"}, r)
	if err == nil || !strings.Contains(err.Error(), "nothing to do") {
		t.Fatalf("unexpected error %v", err)
	}
}

func TestDiscoverPrintsServers(t *testing.T) {
	original := browseServers
	browseServers = func(context.Context, time.Duration) ([]discovery.Server, error) {
		return []discovery.Server{{Name: "classroom", Addr: "192.168.1.20:8080", Info: []string{"version=dev"}}}, nil
	}
	t.Cleanup(func() { browseServers = original })

	r, out := testRoot(t)
	cmd, err := parseDiscoverCmd([]string{"-timeout", "10ms"}, r)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if err := cmd.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got, want := out.String(), "classroom\thttp://192.168.1.20:8080\tversion=dev\n"; got != want {
		t.Fatalf("stdout = %q, want %q", got, want)
	}
}

func TestVersion(t *testing.T) {
	r, out := testRoot(t)
	if err := (&versionCmd{r: r}).Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := out.String(); got != "sketchtutor version dev\n" {
		t.Fatalf("version = %q", got)
	}
}

func TestLocalURL(t *testing.T) {
	tests := map[string]string{
		":8080":          "http://localhost:8080",
		"10.0.0.5:9000":  "http://10.0.0.5:9000",
		"tutor.lan:8080": "http://tutor.lan:8080",
	}
	for addr, want := range tests {
		if got := localURL(addr); got != want {
			t.Fatalf("localURL(%q) = %q, want %q", addr, got, want)
		}
	}
}

func TestConfigPrint(t *testing.T) {
	r, out := testRoot(t)
	cmd, err := parseConfigCmd([]string{"print"}, r)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if err := cmd.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !strings.Contains(out.String(), "[canvas]") {
		t.Fatalf("config print missing sections:\n%s", out.String())
	}
}
