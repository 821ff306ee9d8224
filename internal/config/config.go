package config

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/example/sketchtutor/internal/canvas"
	"github.com/example/sketchtutor/internal/session"
	"github.com/example/sketchtutor/internal/theme"
)

// Server holds the [server] section.
type Server struct {
	Addr        string
	Advertise   bool
	Name        string
	AllowOrigin string
}

// LLM holds the [llm] section.
type LLM struct {
	APIKey       string
	BaseURL      string
	Model        string
	SystemPrompt string
	MaxTokens    int
	Temperature  float64
	ImageDetail  string
	Echo         bool   // Answer locally without calling a model
	Relay        string // Answer through another tutor server's /query
}

// Canvas holds the [canvas] section.
type Canvas struct {
	Width         int
	Height        int
	ViewHeight    float64
	BrushScale    float64
	EraserScale   float64
	AnchorGap     float64
	CropPadding   int
	CropThreshold int
	Invert        bool
	MaxImageDim   int
	ImageFormat   string
	JPEGQuality   int
	Overlap       string
	QueryTimeout  time.Duration
}

// Notify holds notification settings.
type Notify struct {
	Answer bool
	Export bool
	Copy   bool
	// Title and the *Text templates replace the built-in wording when set.
	Title      string
	AnswerText string
	ExportText string
	CopyText   string
}

// Log holds the [log] section.
type Log struct {
	Level       string
	Development bool
}

// Config holds the application configuration.
type Config struct {
	Theme   string
	SaveDir string
	Server  Server
	LLM     LLM
	Canvas  Canvas
	Notify  Notify
	Log     Log
	Themes  map[string]*theme.Theme
}

// New creates a new Config with defaults.
func New() *Config {
	opts := session.DefaultOptions()
	return &Config{
		Theme: "", // Default to empty to allow fallback to Env/Default
		Server: Server{
			Addr:        ":8080",
			AllowOrigin: "*",
		},
		LLM: LLM{
			MaxTokens:   800,
			Temperature: 0.3,
			ImageDetail: "auto",
		},
		Canvas: Canvas{
			Width:         opts.Width,
			Height:        opts.Height,
			ViewHeight:    opts.ViewHeight,
			BrushScale:    opts.BrushScale,
			EraserScale:   opts.EraserScale,
			AnchorGap:     opts.AnchorGap,
			CropPadding:   opts.CropPadding,
			CropThreshold: int(opts.CropThreshold),
			Invert:        opts.Invert,
			MaxImageDim:   opts.MaxImageDim,
			ImageFormat:   string(opts.ImageFormat),
			JPEGQuality:   opts.JPEGQuality,
			Overlap:       string(opts.Overlap),
			QueryTimeout:  opts.QueryTimeout,
		},
		Log:    Log{Level: "info"},
		Themes: make(map[string]*theme.Theme),
	}
}

// String implements fmt.Stringer and returns the configuration in RC format.
func (c *Config) String() string {
	var sb strings.Builder

	// Root section
	if c.Theme != "" {
		fmt.Fprintf(&sb, "theme = %s\n", c.Theme)
	}
	if c.SaveDir != "" {
		fmt.Fprintf(&sb, "save_dir = %s\n", c.SaveDir)
	}
	sb.WriteString("\n")

	sb.WriteString("[server]\n")
	fmt.Fprintf(&sb, "addr = %s\n", c.Server.Addr)
	fmt.Fprintf(&sb, "advertise = %v\n", c.Server.Advertise)
	if c.Server.Name != "" {
		fmt.Fprintf(&sb, "name = %s\n", c.Server.Name)
	}
	fmt.Fprintf(&sb, "allow_origin = %s\n", c.Server.AllowOrigin)
	sb.WriteString("\n")

	sb.WriteString("[llm]\n")
	if c.LLM.APIKey != "" {
		fmt.Fprintf(&sb, "api_key = %s\n", c.LLM.APIKey)
	}
	if c.LLM.BaseURL != "" {
		fmt.Fprintf(&sb, "base_url = %s\n", c.LLM.BaseURL)
	}
	if c.LLM.Model != "" {
		fmt.Fprintf(&sb, "model = %s\n", c.LLM.Model)
	}
	if c.LLM.SystemPrompt != "" {
		fmt.Fprintf(&sb, "system_prompt = %q\n", c.LLM.SystemPrompt)
	}
	fmt.Fprintf(&sb, "max_tokens = %d\n", c.LLM.MaxTokens)
	fmt.Fprintf(&sb, "temperature = %v\n", c.LLM.Temperature)
	fmt.Fprintf(&sb, "image_detail = %s\n", c.LLM.ImageDetail)
	fmt.Fprintf(&sb, "echo = %v\n", c.LLM.Echo)
	if c.LLM.Relay != "" {
		fmt.Fprintf(&sb, "relay = %s\n", c.LLM.Relay)
	}
	sb.WriteString("\n")

	sb.WriteString("[canvas]\n")
	fmt.Fprintf(&sb, "width = %d\n", c.Canvas.Width)
	fmt.Fprintf(&sb, "height = %d\n", c.Canvas.Height)
	fmt.Fprintf(&sb, "view_height = %v\n", c.Canvas.ViewHeight)
	fmt.Fprintf(&sb, "brush_scale = %v\n", c.Canvas.BrushScale)
	fmt.Fprintf(&sb, "eraser_scale = %v\n", c.Canvas.EraserScale)
	fmt.Fprintf(&sb, "anchor_gap = %v\n", c.Canvas.AnchorGap)
	fmt.Fprintf(&sb, "crop_padding = %d\n", c.Canvas.CropPadding)
	fmt.Fprintf(&sb, "crop_threshold = %d\n", c.Canvas.CropThreshold)
	fmt.Fprintf(&sb, "invert = %v\n", c.Canvas.Invert)
	fmt.Fprintf(&sb, "max_image_dim = %d\n", c.Canvas.MaxImageDim)
	fmt.Fprintf(&sb, "image_format = %s\n", c.Canvas.ImageFormat)
	fmt.Fprintf(&sb, "jpeg_quality = %d\n", c.Canvas.JPEGQuality)
	fmt.Fprintf(&sb, "overlap = %s\n", c.Canvas.Overlap)
	fmt.Fprintf(&sb, "query_timeout = %s\n", c.Canvas.QueryTimeout)
	sb.WriteString("\n")

	sb.WriteString("[notify]\n")
	fmt.Fprintf(&sb, "answer = %v\n", c.Notify.Answer)
	fmt.Fprintf(&sb, "export = %v\n", c.Notify.Export)
	fmt.Fprintf(&sb, "copy = %v\n", c.Notify.Copy)
	for _, kv := range [][2]string{
		{"title", c.Notify.Title},
		{"answer_text", c.Notify.AnswerText},
		{"export_text", c.Notify.ExportText},
		{"copy_text", c.Notify.CopyText},
	} {
		if kv[1] != "" {
			fmt.Fprintf(&sb, "%s = %q\n", kv[0], kv[1])
		}
	}
	sb.WriteString("\n")

	sb.WriteString("[log]\n")
	fmt.Fprintf(&sb, "level = %s\n", c.Log.Level)
	fmt.Fprintf(&sb, "development = %v\n", c.Log.Development)
	sb.WriteString("\n")

	// Sort keys for deterministic output
	var themeNames []string
	for name := range c.Themes {
		themeNames = append(themeNames, name)
	}
	sort.Strings(themeNames)

	for _, name := range themeNames {
		fmt.Fprintf(&sb, "[theme.%s]\n", name)
		_ = c.Themes[name].Write(&sb)
		sb.WriteString("\n")
	}

	return sb.String()
}

// SessionOptions converts the [canvas] section for new sessions.
func (c Canvas) SessionOptions() (session.Options, error) {
	opts := session.DefaultOptions()
	if c.Width <= 0 || c.Height <= 0 {
		return opts, fmt.Errorf("canvas size must be positive, got %dx%d", c.Width, c.Height)
	}
	if c.CropThreshold < 0 || c.CropThreshold > 255 {
		return opts, fmt.Errorf("crop_threshold must be within 0-255, got %d", c.CropThreshold)
	}
	format, err := canvas.ParseFormat(c.ImageFormat)
	if err != nil {
		return opts, err
	}
	overlap, err := session.ParseOverlap(c.Overlap)
	if err != nil {
		return opts, err
	}
	opts.Width = c.Width
	opts.Height = c.Height
	opts.ViewHeight = c.ViewHeight
	opts.BrushScale = c.BrushScale
	opts.EraserScale = c.EraserScale
	opts.AnchorGap = c.AnchorGap
	opts.CropPadding = c.CropPadding
	opts.CropThreshold = uint8(c.CropThreshold)
	opts.Invert = c.Invert
	opts.MaxImageDim = c.MaxImageDim
	opts.ImageFormat = format
	opts.JPEGQuality = c.JPEGQuality
	opts.Overlap = overlap
	opts.QueryTimeout = c.QueryTimeout
	return opts, nil
}
