// Package notify raises desktop notifications for finished answers, exports
// and clipboard copies.
package notify

import (
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/example/sketchtutor/internal/logging"
	"github.com/example/sketchtutor/internal/platform"
)

// Event identifies a notification trigger.
type Event string

const (
	EventAnswer Event = "answer"
	EventExport Event = "export"
	EventCopy   Event = "copy"
)

// answerPreview is how much of an answer fits in a notification body.
const answerPreview = 200

// Preferences holds the notification title and one fmt template per event.
// An event with an empty template is never shown.
type Preferences struct {
	Title     string
	Templates map[Event]string
}

// DefaultPreferences returns the built-in title and templates.
func DefaultPreferences() Preferences {
	return Preferences{
		Title: platform.AppName,
		Templates: map[Event]string{
			EventAnswer: "%s",
			EventExport: "Saved %s",
			EventCopy:   "Copied %s to clipboard",
		},
	}
}

// Merge returns p with every non-blank value of o laid over it.
func (p Preferences) Merge(o Preferences) Preferences {
	out := Preferences{Title: p.Title, Templates: make(map[Event]string, len(p.Templates))}
	for k, v := range p.Templates {
		out.Templates[k] = v
	}
	if t := strings.TrimSpace(o.Title); t != "" {
		out.Title = t
	}
	for k, v := range o.Templates {
		if v = strings.TrimSpace(v); v != "" {
			out.Templates[k] = v
		}
	}
	return out
}

// Notifier sends OS-level notifications for the events switched on with
// Enable. A nil Notifier is silent.
type Notifier struct {
	prefs   Preferences
	enabled map[Event]bool
	log     *zap.Logger
	send    func(title, body string, opts platform.Options) error
}

// New returns a notifier with every event disabled.
func New(prefs Preferences, log *zap.Logger) *Notifier {
	if log == nil {
		log = zap.NewNop()
	}
	return &Notifier{
		prefs:   DefaultPreferences().Merge(prefs),
		enabled: make(map[Event]bool),
		log:     log,
		send:    platform.Notify,
	}
}

func (n *Notifier) Enable(event Event, on bool) {
	if n != nil {
		n.enabled[event] = on
	}
}

// Answer announces a finished answer. The sketch, when given, is shown as the
// notification icon for the lifetime of the call.
func (n *Notifier) Answer(answer string, sketch image.Image) {
	if !n.on(EventAnswer) {
		return
	}
	opts := platform.Options{TimeoutMillis: 10000}
	body := logging.Truncate(strings.Join(strings.Fields(answer), " "), answerPreview)
	if sketch == nil {
		n.show(EventAnswer, body, opts)
		return
	}
	err := withTempPNG(sketch, func(path string) {
		opts.IconPath = path
		n.show(EventAnswer, body, opts)
	})
	if err != nil {
		n.log.Warn("notification preview failed", zap.Error(err))
		n.show(EventAnswer, body, platform.Options{TimeoutMillis: opts.TimeoutMillis})
	}
}

// Export announces a written image or PDF. PNG files double as the icon.
func (n *Notifier) Export(path string) {
	if !n.on(EventExport) {
		return
	}
	var opts platform.Options
	abs, err := filepath.Abs(path)
	if err != nil {
		n.show(EventExport, path, opts)
		return
	}
	if strings.EqualFold(filepath.Ext(abs), ".png") {
		if _, err := os.Stat(abs); err == nil {
			opts.IconPath = abs
		}
	}
	n.show(EventExport, abs, opts)
}

// Copy announces a clipboard write of what, "image" when blank.
func (n *Notifier) Copy(what string) {
	if !n.on(EventCopy) {
		return
	}
	if strings.TrimSpace(what) == "" {
		what = "image"
	}
	n.show(EventCopy, what, platform.Options{})
}

func (n *Notifier) on(event Event) bool {
	return n != nil && n.enabled[event]
}

func (n *Notifier) show(event Event, detail string, opts platform.Options) {
	tmpl := n.prefs.Templates[event]
	if tmpl == "" {
		return
	}
	body := strings.TrimSpace(fmt.Sprintf(tmpl, strings.TrimSpace(detail)))
	if body == "" {
		return
	}
	if err := n.send(n.prefs.Title, body, opts); err != nil {
		n.log.Warn("notification failed", zap.String("event", string(event)), zap.Error(err))
	}
}

// withTempPNG writes img to a temporary file, calls fn with its path and
// removes the file afterwards.
func withTempPNG(img image.Image, fn func(path string)) error {
	f, err := os.CreateTemp("", "sketchtutor-preview-*.png")
	if err != nil {
		return err
	}
	path := f.Name()
	defer os.Remove(path)
	if err := png.Encode(f, img); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	fn(path)
	return nil
}
