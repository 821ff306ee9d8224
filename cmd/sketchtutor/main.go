package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/example/sketchtutor/internal/config"
	"github.com/example/sketchtutor/internal/logging"
	"github.com/example/sketchtutor/internal/notify"
	"github.com/example/sketchtutor/internal/relay"
	"github.com/example/sketchtutor/internal/theme"
)

var (
	version            = "dev"
	commit             = ""
	date               = ""
	configPathOverride = ""
)

type runnable interface{ Run() error }

type root struct {
	fs           *flag.FlagSet
	program      string
	config       *config.Config
	notifier     *notify.Notifier
	log          *zap.Logger
	stdout       io.Writer
	answerAlerts bool
	exportAlerts bool
	copyAlerts   bool
	themeName    string
	logLevel     string
	echo         bool
	relayURL     string
	activeTheme  *theme.Theme
}

func (r *root) Program() string {
	return r.program
}

func (r *root) FlagSet() *flag.FlagSet {
	return r.fs
}

func (r *root) subcommand(name string) *root {
	program := strings.TrimSpace(strings.Join([]string{r.program, name}, " "))
	return &root{
		program:     program,
		config:      r.config,
		notifier:    r.notifier,
		log:         r.log,
		stdout:      r.stdout,
		themeName:   r.themeName,
		activeTheme: r.activeTheme,
	}
}

func newRoot() *root {
	loader := config.NewLoader(version, configPathOverride)
	cfg, err := loader.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to load config: %v\n", err)
		cfg = config.New()
	}
	cfg.ApplyEnv()

	r := &root{
		fs:      flag.NewFlagSet("sketchtutor", flag.ExitOnError),
		program: "sketchtutor",
		config:  cfg,
		stdout:  os.Stdout,
	}
	r.fs.BoolVar(&r.answerAlerts, "notify-answer", cfg.Notify.Answer, "show a desktop notification when an answer completes")
	r.fs.BoolVar(&r.exportAlerts, "notify-export", cfg.Notify.Export, "show a desktop notification after writing an image or PDF")
	r.fs.BoolVar(&r.copyAlerts, "notify-copy", cfg.Notify.Copy, "show a desktop notification after copying to the clipboard")
	r.fs.StringVar(&r.themeName, "theme", cfg.Theme, "answer card theme (light, chalkboard, or a theme file)")
	r.fs.StringVar(&r.logLevel, "log-level", cfg.Log.Level, "log level (debug, info, warn, error)")
	r.fs.BoolVar(&r.echo, "echo", cfg.LLM.Echo, "answer by echoing the question instead of calling a model")
	r.fs.StringVar(&r.relayURL, "relay", cfg.LLM.Relay, "answer through another tutor server, e.g. http://host:8080")
	r.fs.Usage = usageFunc(r)
	return r
}

func (r *root) Run(args []string) error {
	if err := r.fs.Parse(args); err != nil {
		return err
	}
	if r.fs.NArg() < 1 {
		return &UsageError{of: r}
	}

	log, err := logging.New(r.logLevel, r.config.Log.Development)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()
	r.log = log
	r.config.LLM.Echo = r.echo
	r.config.LLM.Relay = r.relayURL

	r.notifier = notify.New(notifyPreferences(r.config.Notify), log)
	r.notifier.Enable(notify.EventAnswer, r.answerAlerts)
	r.notifier.Enable(notify.EventExport, r.exportAlerts)
	r.notifier.Enable(notify.EventCopy, r.copyAlerts)

	r.activeTheme = r.loadTheme()

	cmdName := r.fs.Arg(0)
	subArgs := r.fs.Args()[1:]

	var cmd runnable
	switch cmdName {
	case "serve":
		cmd, err = parseServeCmd(subArgs, r.subcommand("serve"))
	case "ask":
		cmd, err = parseAskCmd(subArgs, r.subcommand("ask"))
	case "render":
		cmd, err = parseRenderCmd(subArgs, r.subcommand("render"))
	case "discover":
		cmd, err = parseDiscoverCmd(subArgs, r.subcommand("discover"))
	case "monitor":
		cmd, err = parseMonitorCmd(subArgs, r.subcommand("monitor"))
	case "themes":
		cmd = &themesCmd{root: r}
	case "config":
		cmd, err = parseConfigCmd(subArgs, r.subcommand("config"))
	case "version":
		cmd = &versionCmd{r: r}
	default:
		err = &UsageError{of: r}
	}
	if err != nil {
		return err
	}
	return cmd.Run()
}

// loadTheme resolves the theme flag against config themes, theme files and
// the embedded set, falling back to the default.
func (r *root) loadTheme() *theme.Theme {
	loader := theme.NewLoader()
	loader.Inline = r.config.Themes
	t, err := loader.Load(r.themeName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to load theme '%s': %v. using default.\n", r.themeName, err)
		return theme.Default()
	}
	return t
}

// streamer builds the answer source from the [llm] section.
func (r *root) streamer() (relay.Streamer, error) {
	llm := r.config.LLM
	if llm.Echo {
		return relay.Echo{}, nil
	}
	if llm.Relay != "" {
		return relay.NewRemote(llm.Relay, nil, r.logger())
	}
	st, err := relay.NewOpenAI(relay.Options{
		APIKey:       llm.APIKey,
		BaseURL:      llm.BaseURL,
		Model:        llm.Model,
		SystemPrompt: llm.SystemPrompt,
		MaxTokens:    llm.MaxTokens,
		Temperature:  float32(llm.Temperature),
		ImageDetail:  llm.ImageDetail,
	}, r.log)
	if err != nil {
		return nil, fmt.Errorf("configure model: %w (set %s or use -echo)", err, config.EnvAPIKey)
	}
	return st, nil
}

func (r *root) logger() *zap.Logger {
	if r == nil || r.log == nil {
		return zap.NewNop()
	}
	return r.log
}

func (r *root) out() io.Writer {
	if r == nil || r.stdout == nil {
		return os.Stdout
	}
	return r.stdout
}

func main() {
	r := newRoot()
	if err := r.Run(os.Args[1:]); err != nil {
		var uerr *UsageError
		if errors.As(err, &uerr) {
			fmt.Fprintln(os.Stderr, uerr.Error())
		} else {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	}
}

func notifyPreferences(n config.Notify) notify.Preferences {
	return notify.Preferences{
		Title: n.Title,
		Templates: map[notify.Event]string{
			notify.EventAnswer: n.AnswerText,
			notify.EventExport: n.ExportText,
			notify.EventCopy:   n.CopyText,
		},
	}
}
