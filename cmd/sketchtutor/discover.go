package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/example/sketchtutor/internal/discovery"
)

var browseServers = discovery.Browse

type discoverCmd struct {
	*root
	fs      *flag.FlagSet
	timeout time.Duration
}

func (d *discoverCmd) FlagSet() *flag.FlagSet {
	return d.fs
}

func parseDiscoverCmd(args []string, r *root) (*discoverCmd, error) {
	fs := flag.NewFlagSet("discover", flag.ExitOnError)
	cmd := &discoverCmd{root: r, fs: fs}
	fs.Usage = usageFunc(cmd)
	fs.DurationVar(&cmd.timeout, "timeout", 3*time.Second, "how long to listen for answers")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if cmd.timeout <= 0 {
		return nil, fmt.Errorf("timeout must be positive")
	}
	return cmd, nil
}

func (d *discoverCmd) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	servers, err := browseServers(ctx, d.timeout)
	if err != nil {
		return fmt.Errorf("failed to browse: %w", err)
	}
	if len(servers) == 0 {
		fmt.Fprintln(os.Stderr, "no tutor servers found")
		return nil
	}
	for _, s := range servers {
		fmt.Fprintf(d.out(), "%s\t%s\t%s\n", s.Name, s.URL(), strings.Join(s.Info, " "))
	}
	return nil
}
