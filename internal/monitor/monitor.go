package monitor

import (
	"context"
	"errors"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/example/sketchtutor/internal/server"
)

// Options selects what to follow.
type Options struct {
	BaseURL   string
	SessionID string
}

// Run follows a session until the user quits or ctx ends. Without a
// SessionID a new session is created first.
func Run(ctx context.Context, opts Options, log *zap.Logger) error {
	if log == nil {
		log = zap.NewNop()
	}
	c := &Client{BaseURL: opts.BaseURL}
	id := opts.SessionID
	if id == "" {
		var err error
		if id, err = c.CreateSession(ctx); err != nil {
			return err
		}
		log.Info("session created", zap.String("session", id))
	}
	conn, err := c.Dial(ctx, id)
	if err != nil {
		return err
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	messages := make(chan server.ServerMessage, 64)
	errc := make(chan error, 1)
	go func() {
		for {
			msg, err := conn.Next()
			if err != nil {
				errc <- err
				return
			}
			select {
			case messages <- msg:
			case <-ctx.Done():
				return
			}
		}
	}()

	m := newModel(id, conn, messages, errc)
	final, err := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx)).Run()
	if err != nil {
		if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
			return nil
		}
		return err
	}
	if fm, ok := final.(*model); ok && fm.err != nil && ctx.Err() == nil {
		log.Debug("monitor stopped", zap.Error(fm.err))
	}
	return nil
}
