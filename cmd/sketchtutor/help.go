package main

import (
	"bytes"
	"embed"
	"flag"
	"fmt"
	"os"
	"strings"
	"sync"
	"text/template"
)

//go:embed templates/*.txt
var helpFS embed.FS

// helpTemplates parses every embedded template once.
var helpTemplates = sync.OnceValues(func() (*template.Template, error) {
	return template.New("").Funcs(template.FuncMap{"flags": flagList}).ParseFS(helpFS, "templates/*.txt")
})

type flagInfo struct {
	Name     string
	DefValue string
	Usage    string
}

// flagList feeds the {{flags}} helper. Deprecated aliases such as
// -from-clip are listed under their long name only.
func flagList(fs *flag.FlagSet) []flagInfo {
	result := []flagInfo{}
	if fs == nil {
		return result
	}
	fs.VisitAll(func(f *flag.Flag) {
		if strings.HasPrefix(f.Usage, "alias for ") {
			return
		}
		result = append(result, flagInfo{f.Name, f.DefValue, f.Usage})
	})
	return result
}

// HelpData is implemented by every command with a help template.
type HelpData interface {
	Program() string
	Template() string
	FlagSet() *flag.FlagSet
}

// UsageError renders the help of the command it wraps as its message.
type UsageError struct {
	of HelpData
}

func (e *UsageError) Error() string {
	tmpl, err := helpTemplates()
	if err != nil {
		return fmt.Sprintf("help unavailable: %v", err)
	}
	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, e.of.Template(), e.of); err != nil {
		return fmt.Sprintf("help unavailable: %v", err)
	}
	return buf.String()
}

func usageFunc(h HelpData) func() {
	return func() {
		fmt.Fprint(os.Stderr, (&UsageError{of: h}).Error())
	}
}

func (r *root) Template() string {
	return "root.txt"
}

func (s *serveCmd) Template() string {
	return "serve.txt"
}

func (a *askCmd) Template() string {
	return "ask.txt"
}

func (c *renderCmd) Template() string {
	return "render.txt"
}

func (d *discoverCmd) Template() string {
	return "discover.txt"
}

func (m *monitorCmd) Template() string {
	return "monitor.txt"
}

func (c *configCmd) Template() string {
	return "config.txt"
}
