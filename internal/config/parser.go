package config

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/example/sketchtutor/internal/theme"
)

// Parse reads configuration from an io.Reader.
func Parse(r io.Reader) (*Config, error) {
	cfg := New()
	scanner := bufio.NewScanner(r)

	// Context for parsing
	var currentSection string
	var currentTheme *theme.Theme

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "//") {
			continue
		}

		// Handle Sections
		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			currentSection = strings.ToLower(strings.TrimSuffix(strings.TrimPrefix(line, "["), "]"))
			currentTheme = nil

			if strings.HasPrefix(currentSection, "theme.") {
				themeName := strings.TrimPrefix(currentSection, "theme.")
				// Start with defaults so missing keys are fine
				currentTheme = theme.Default()
				currentTheme.Name = themeName
				cfg.Themes[themeName] = currentTheme
			}
			continue
		}

		// Parse Key = Value or Key: Value
		var key, value string
		if k, v, ok := strings.Cut(line, "="); ok {
			key, value = k, v
		} else if k, v, ok := strings.Cut(line, ":"); ok {
			key, value = k, v
		} else {
			continue
		}
		key = strings.TrimSpace(key)
		value = unquote(strings.TrimSpace(value))

		var err error
		switch {
		case currentTheme != nil:
			err = currentTheme.Set(key, value)
		case currentSection == "":
			err = setRootField(cfg, key, value)
		case currentSection == "server":
			err = setServerField(&cfg.Server, key, value)
		case currentSection == "llm":
			err = setLLMField(&cfg.LLM, key, value)
		case currentSection == "canvas":
			err = setCanvasField(&cfg.Canvas, key, value)
		case currentSection == "notify":
			err = setNotifyField(&cfg.Notify, key, value)
		case currentSection == "log":
			err = setLogField(&cfg.Log, key, value)
		}
		if err != nil {
			if currentSection == "" {
				return nil, fmt.Errorf("error in root section: %w", err)
			}
			return nil, fmt.Errorf("error in section [%s]: %w", currentSection, err)
		}
	}

	return cfg, scanner.Err()
}

func unquote(value string) string {
	if len(value) >= 2 && strings.HasPrefix(value, "\"") && strings.HasSuffix(value, "\"") {
		if s, err := strconv.Unquote(value); err == nil {
			return s
		}
		return value[1 : len(value)-1]
	}
	return value
}

func setRootField(cfg *Config, key, value string) error {
	switch strings.ToLower(key) {
	case "theme":
		cfg.Theme = value
	case "save_dir":
		cfg.SaveDir = value
	}
	return nil
}

func setServerField(s *Server, key, value string) error {
	switch strings.ToLower(key) {
	case "addr":
		s.Addr = value
	case "advertise":
		return parseBool(&s.Advertise, key, value)
	case "name":
		s.Name = value
	case "allow_origin":
		s.AllowOrigin = value
	}
	return nil
}

func setLLMField(l *LLM, key, value string) error {
	switch strings.ToLower(key) {
	case "api_key":
		l.APIKey = value
	case "base_url":
		l.BaseURL = value
	case "relay":
		l.Relay = value
	case "model":
		l.Model = value
	case "system_prompt":
		l.SystemPrompt = value
	case "max_tokens":
		return parseInt(&l.MaxTokens, key, value)
	case "temperature":
		return parseFloat(&l.Temperature, key, value)
	case "image_detail":
		switch strings.ToLower(value) {
		case "auto", "low", "high":
			l.ImageDetail = strings.ToLower(value)
		default:
			return fmt.Errorf("invalid image_detail %q", value)
		}
	case "echo":
		return parseBool(&l.Echo, key, value)
	}
	return nil
}

func setCanvasField(c *Canvas, key, value string) error {
	switch strings.ToLower(key) {
	case "width":
		return parseInt(&c.Width, key, value)
	case "height":
		return parseInt(&c.Height, key, value)
	case "view_height":
		return parseFloat(&c.ViewHeight, key, value)
	case "brush_scale":
		return parseFloat(&c.BrushScale, key, value)
	case "eraser_scale":
		return parseFloat(&c.EraserScale, key, value)
	case "anchor_gap":
		return parseFloat(&c.AnchorGap, key, value)
	case "crop_padding":
		return parseInt(&c.CropPadding, key, value)
	case "crop_threshold":
		return parseInt(&c.CropThreshold, key, value)
	case "invert":
		return parseBool(&c.Invert, key, value)
	case "max_image_dim":
		return parseInt(&c.MaxImageDim, key, value)
	case "image_format":
		c.ImageFormat = value
	case "jpeg_quality":
		return parseInt(&c.JPEGQuality, key, value)
	case "overlap":
		c.Overlap = value
	case "query_timeout":
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration for key %s: %w", key, err)
		}
		c.QueryTimeout = d
	}
	return nil
}

func setNotifyField(n *Notify, key, value string) error {
	switch strings.ToLower(key) {
	case "answer":
		return parseBool(&n.Answer, key, value)
	case "export":
		return parseBool(&n.Export, key, value)
	case "copy":
		return parseBool(&n.Copy, key, value)
	case "title":
		n.Title = value
	case "answer_text":
		n.AnswerText = value
	case "export_text":
		n.ExportText = value
	case "copy_text":
		n.CopyText = value
	}
	return nil
}

func setLogField(l *Log, key, value string) error {
	switch strings.ToLower(key) {
	case "level":
		l.Level = value
	case "development":
		return parseBool(&l.Development, key, value)
	}
	return nil
}

func parseBool(dst *bool, key, value string) error {
	b, err := strconv.ParseBool(value)
	if err != nil {
		return fmt.Errorf("invalid boolean for key %s: %w", key, err)
	}
	*dst = b
	return nil
}

func parseInt(dst *int, key, value string) error {
	n, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("invalid integer for key %s: %w", key, err)
	}
	*dst = n
	return nil
}

func parseFloat(dst *float64, key, value string) error {
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fmt.Errorf("invalid number for key %s: %w", key, err)
	}
	*dst = f
	return nil
}
