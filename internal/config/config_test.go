package config

import (
	"image/color"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/example/sketchtutor/internal/canvas"
	"github.com/example/sketchtutor/internal/session"
	"github.com/example/sketchtutor/internal/theme"
)

func TestParse(t *testing.T) {
	input := `
theme = chalk
save_dir = /tmp/sketches

[server]
addr = 127.0.0.1:9000
advertise = true
name = "Room 4"

[llm]
base_url = http://localhost:11434/v1
model = llava
system_prompt = "Be brief: one hint only."
max_tokens = 300
temperature = 0.1
image_detail = LOW

[canvas]
width = 800
height = 6000
eraser_scale = 3
anchor_gap = 30
invert = true
image_format = jpg
overlap = reject
query_timeout = 45s

[notify]
answer = true
copy = true

[log]
level = debug

[theme.chalk]
CardText = #111111
Background: white
`
	cfg, err := Parse(strings.NewReader(input))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if cfg.Theme != "chalk" || cfg.SaveDir != "/tmp/sketches" {
		t.Errorf("root section: %q %q", cfg.Theme, cfg.SaveDir)
	}
	if cfg.Server != (Server{Addr: "127.0.0.1:9000", Advertise: true, Name: "Room 4", AllowOrigin: "*"}) {
		t.Errorf("server section: %+v", cfg.Server)
	}
	if cfg.LLM.Model != "llava" || cfg.LLM.SystemPrompt != "Be brief: one hint only." || cfg.LLM.MaxTokens != 300 ||
		cfg.LLM.Temperature != 0.1 || cfg.LLM.ImageDetail != "low" {
		t.Errorf("llm section: %+v", cfg.LLM)
	}
	if cfg.Canvas.Width != 800 || cfg.Canvas.EraserScale != 3 || !cfg.Canvas.Invert || cfg.Canvas.QueryTimeout != 45*time.Second {
		t.Errorf("canvas section: %+v", cfg.Canvas)
	}
	if cfg.Canvas.BrushScale != 1 {
		t.Errorf("unset canvas keys should keep defaults, got brush_scale %v", cfg.Canvas.BrushScale)
	}
	if cfg.Notify != (Notify{Answer: true, Copy: true}) {
		t.Errorf("notify section: %+v", cfg.Notify)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("log section: %+v", cfg.Log)
	}

	th, ok := cfg.Themes["chalk"]
	if !ok {
		t.Fatal("Expected theme 'chalk' to be loaded")
	}
	if th.CardText != (color.RGBA{0x11, 0x11, 0x11, 0xff}) || th.Background != (color.RGBA{255, 255, 255, 255}) {
		t.Errorf("Unexpected theme colours: %+v", th)
	}

	opts, err := cfg.Canvas.SessionOptions()
	if err != nil {
		t.Fatalf("SessionOptions: %v", err)
	}
	if opts.ImageFormat != canvas.JPEG || opts.Overlap != session.OverlapReject || opts.Height != 6000 || opts.AnchorGap != 30 {
		t.Errorf("unexpected session options %+v", opts)
	}
}

func TestParseErrors(t *testing.T) {
	tests := []string{
		"[canvas]\nwidth = wide\n",
		"[notify]\nanswer = maybe\n",
		"[llm]\nimage_detail = ultra\n",
		"[canvas]\nquery_timeout = soon\n",
		"[theme.x]\nCardText = #1\n",
	}
	for _, in := range tests {
		if _, err := Parse(strings.NewReader(in)); err == nil {
			t.Errorf("expected error for %q", in)
		}
	}
}

func TestSessionOptionsValidation(t *testing.T) {
	c := New().Canvas
	c.Overlap = "queue"
	if _, err := c.SessionOptions(); err == nil {
		t.Errorf("expected overlap error")
	}
	c = New().Canvas
	c.CropThreshold = 300
	if _, err := c.SessionOptions(); err == nil {
		t.Errorf("expected threshold error")
	}
	c = New().Canvas
	if opts, err := c.SessionOptions(); err != nil || !reflect.DeepEqual(opts, session.DefaultOptions()) {
		t.Errorf("defaults should convert unchanged: %+v %v", opts, err)
	}
}

func TestCircular(t *testing.T) {
	input := `theme = dark
save_dir = /home/user/sketches

[llm]
api_key = sk-test
relay = http://tutor.local:8080
system_prompt = "Say \"hi\" first"

[canvas]
overlap = reject

[notify]
answer = true
export = true
copy = false
title = Tutor
export_text = "Wrote %s"

[theme.custom]
Name = custom
Background = #000000
CardText = #FFFFFF80
`
	// 1. Parse initial input
	cfg, err := Parse(strings.NewReader(input))
	if err != nil {
		t.Fatalf("Initial parse failed: %v", err)
	}

	// 2. Generate string representation
	generated := cfg.String()

	// 3. Parse generated string
	cfg2, err := Parse(strings.NewReader(generated))
	if err != nil {
		t.Fatalf("Circular parse failed: %v\n%s", err, generated)
	}

	// 4. Compare everything
	if !reflect.DeepEqual(cfg, cfg2) {
		t.Errorf("round trip mismatch:\n%+v\n%+v\n%s", cfg, cfg2, generated)
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		EnvAPIKey:  "sk-env",
		EnvAddr:    ":7000",
		EnvTheme:   "light",
		EnvEcho:    "true",
		EnvBaseURL: "",
	}
	old := lookupEnv
	lookupEnv = func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}
	t.Cleanup(func() { lookupEnv = old })

	cfg := New()
	cfg.LLM.BaseURL = "http://file"
	cfg.ApplyEnv()
	if cfg.LLM.APIKey != "sk-env" || cfg.Server.Addr != ":7000" || cfg.Theme != "light" || !cfg.LLM.Echo {
		t.Errorf("env not applied: %+v", cfg)
	}
	if cfg.LLM.BaseURL != "http://file" {
		t.Errorf("empty env value should not clear file value")
	}
}

func TestLoaderPrefersOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "custom.rc")
	if err := os.WriteFile(path, []byte("[server]\naddr = :1234\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := NewLoader("v1.0.0", path).Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != ":1234" {
		t.Errorf("override not loaded: %+v", cfg.Server)
	}
}

func TestLoaderDevRC(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("HOME", t.TempDir())
	if err := os.WriteFile(filepath.Join(dir, ".sketchtutorrc"), []byte("theme = local\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Chdir(dir)
	cfg, err := NewLoader("dev", "").Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Theme != "local" {
		t.Errorf("dev rc not used, theme = %q", cfg.Theme)
	}
	cfg, err = NewLoader("v1.0.0", "").Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Theme != "" {
		t.Errorf("release builds must ignore the local rc")
	}
}

func TestClone(t *testing.T) {
	cfg := New()
	cfg.Themes["a"] = theme.Default()
	c := cfg.Clone()
	c.Themes["a"].Name = "changed"
	if cfg.Themes["a"].Name == "changed" {
		t.Errorf("Clone shares themes")
	}
}

func TestLoaderCandidates(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	want := filepath.Join(home, ".config", "sketchtutor", "config.rc")

	got := NewLoader("v1.0.0", "/etc/tutor.rc").Candidates()
	if len(got) != 2 || got[0] != "/etc/tutor.rc" || got[1] != want {
		t.Errorf("release candidates = %v", got)
	}
	got = NewLoader("dev", "").Candidates()
	if len(got) != 2 || filepath.Base(got[0]) != ".sketchtutorrc" || got[1] != want {
		t.Errorf("dev candidates = %v", got)
	}
}

func TestLoaderReportsBadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.rc")
	if err := os.WriteFile(path, []byte("[canvas]\nwidth = wide\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := NewLoader("v1.0.0", path).Load()
	if err == nil || !strings.Contains(err.Error(), path) {
		t.Fatalf("expected error naming %s, got %v", path, err)
	}
}
