package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/example/sketchtutor/internal/monitor"
)

type monitorCmd struct {
	*root
	fs        *flag.FlagSet
	url       string
	sessionID string
}

func (m *monitorCmd) FlagSet() *flag.FlagSet {
	return m.fs
}

func parseMonitorCmd(args []string, r *root) (*monitorCmd, error) {
	fs := flag.NewFlagSet("monitor", flag.ExitOnError)
	cmd := &monitorCmd{root: r, fs: fs}
	fs.Usage = usageFunc(cmd)
	addr := ":8080"
	if r != nil && r.config != nil {
		addr = r.config.Server.Addr
	}
	fs.StringVar(&cmd.url, "url", localURL(addr), "base URL of the tutor server")
	fs.StringVar(&cmd.sessionID, "session", "", "session to follow")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if !strings.HasPrefix(cmd.url, "http://") && !strings.HasPrefix(cmd.url, "https://") {
		return nil, fmt.Errorf("url must start with http:// or https://, got %q", cmd.url)
	}
	return cmd, nil
}

// localURL turns a listen address into a URL on this machine.
func localURL(addr string) string {
	if strings.HasPrefix(addr, ":") {
		addr = "localhost" + addr
	}
	return "http://" + addr
}

func (m *monitorCmd) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	return monitor.Run(ctx, monitor.Options{BaseURL: m.url, SessionID: m.sessionID}, m.logger())
}
