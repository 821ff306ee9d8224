package config

import (
	"os"
	"strconv"

	"github.com/example/sketchtutor/internal/theme"
)

// Environment variables read by ApplyEnv.
const (
	EnvAPIKey   = "OPENAI_API_KEY"
	EnvBaseURL  = "SKETCHTUTOR_LLM_BASE_URL"
	EnvModel    = "SKETCHTUTOR_LLM_MODEL"
	EnvAddr     = "SKETCHTUTOR_ADDR"
	EnvTheme    = "SKETCHTUTOR_THEME"
	EnvLogLevel = "SKETCHTUTOR_LOG_LEVEL"
	EnvEcho     = "SKETCHTUTOR_ECHO"
	EnvRelay    = "SKETCHTUTOR_RELAY"

	EnvNotifyTitle = "SKETCHTUTOR_NOTIFY_TITLE"
)

// lookupEnv is swapped in tests.
var lookupEnv = os.LookupEnv

// ApplyEnv overrides file values with set environment variables. Flags are
// applied after this by the caller, so they win.
func (c *Config) ApplyEnv() {
	str := func(name string, dst *string) {
		if v, ok := lookupEnv(name); ok && v != "" {
			*dst = v
		}
	}
	str(EnvAPIKey, &c.LLM.APIKey)
	str(EnvBaseURL, &c.LLM.BaseURL)
	str(EnvModel, &c.LLM.Model)
	str(EnvRelay, &c.LLM.Relay)
	str(EnvAddr, &c.Server.Addr)
	str(EnvTheme, &c.Theme)
	str(EnvLogLevel, &c.Log.Level)
	str(EnvNotifyTitle, &c.Notify.Title)
	if v, ok := lookupEnv(EnvEcho); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			c.LLM.Echo = b
		}
	}
}

// Clone returns a deep copy of c.
func (c *Config) Clone() *Config {
	out := *c
	out.Themes = make(map[string]*theme.Theme, len(c.Themes))
	for k, t := range c.Themes {
		tc := *t
		out.Themes[k] = &tc
	}
	return &out
}
