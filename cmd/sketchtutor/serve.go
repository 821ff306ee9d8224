package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/example/sketchtutor/internal/discovery"
	"github.com/example/sketchtutor/internal/server"
	"github.com/example/sketchtutor/internal/session"
)

type serveCmd struct {
	*root
	fs        *flag.FlagSet
	addr      string
	advertise bool
	name      string
	origin    string
}

func (s *serveCmd) FlagSet() *flag.FlagSet {
	return s.fs
}

func parseServeCmd(args []string, r *root) (*serveCmd, error) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	cfg := r.config.Server
	cmd := &serveCmd{root: r, fs: fs}
	fs.Usage = usageFunc(cmd)
	fs.StringVar(&cmd.addr, "addr", cfg.Addr, "address to listen on")
	fs.BoolVar(&cmd.advertise, "advertise", cfg.Advertise, "announce the server over mDNS")
	fs.StringVar(&cmd.name, "name", cfg.Name, "instance name to advertise (default: host name)")
	fs.StringVar(&cmd.origin, "allow-origin", cfg.AllowOrigin, "Access-Control-Allow-Origin value; empty disables CORS")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, &UsageError{of: cmd}
	}
	return cmd, nil
}

func (s *serveCmd) Run() error {
	log := s.logger()
	opts, err := s.config.Canvas.SessionOptions()
	if err != nil {
		return fmt.Errorf("invalid [canvas] settings: %w", err)
	}
	st, err := s.streamer()
	if err != nil {
		return err
	}

	srvOpts := server.DefaultOptions()
	srvOpts.AllowOrigin = s.origin
	srvOpts.Theme = s.activeTheme
	srvOpts.JPEGQuality = opts.JPEGQuality
	srv := server.New(session.NewManager(opts, st, log), st, srvOpts, log)

	l, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.addr, err)
	}

	if s.advertise {
		port := l.Addr().(*net.TCPAddr).Port
		adv, err := discovery.Advertise(s.name, port, "version="+version, "path=/api/sessions")
		if err != nil {
			log.Warn("mdns advertise failed", zap.Error(err))
		} else {
			defer adv.Shutdown()
			log.Info("advertising over mdns", zap.String("name", s.name), zap.Int("port", port))
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return srv.Serve(ctx, l)
}
