package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// rcName is the per-directory file honoured by dev builds.
const rcName = ".sketchtutorrc"

// Loader finds and reads the rc file.
type Loader struct {
	Version      string // "dev" enables the per-directory rc file
	OverridePath string // -config or a link-time override
}

func NewLoader(version, overridePath string) *Loader {
	return &Loader{Version: version, OverridePath: overridePath}
}

// Load parses the first existing candidate file, or returns defaults when
// there is none.
func (l *Loader) Load() (*Config, error) {
	path := l.GetConfigPath()
	if path == "" {
		return New(), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	cfg, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Candidates lists the files Load considers, in order.
func (l *Loader) Candidates() []string {
	var paths []string
	if l.OverridePath != "" {
		paths = append(paths, l.OverridePath)
	}
	if l.Version == "dev" {
		if wd, err := os.Getwd(); err == nil {
			paths = append(paths, filepath.Join(wd, rcName))
		}
	}
	if p := DefaultPath(); p != "" {
		paths = append(paths, p)
	}
	return paths
}

// GetConfigPath returns the first candidate that exists, or "".
func (l *Loader) GetConfigPath() string {
	for _, p := range l.Candidates() {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// DefaultPath is ~/.config/sketchtutor/config.rc. config save writes here when
// no file exists yet.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "sketchtutor", "config.rc")
}
