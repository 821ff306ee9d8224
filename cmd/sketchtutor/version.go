package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/example/sketchtutor/internal/theme"
)

type versionCmd struct{ r *root }

func (v *versionCmd) Run() error {
	line := fmt.Sprintf("%s version %s", v.r.program, version)
	if commit != "" {
		line += " (" + commit
		if date != "" {
			line += ", " + date
		}
		line += ")"
	}
	fmt.Fprintln(v.r.out(), line)
	return nil
}

type themesCmd struct{ *root }

func (t *themesCmd) Run() error {
	names := theme.Embedded()
	for name := range t.config.Themes {
		names = append(names, name+" (config)")
	}
	sort.Strings(names)
	fmt.Fprintln(t.out(), strings.Join(names, "\n"))
	return nil
}
