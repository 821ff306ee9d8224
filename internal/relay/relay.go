// Package relay opens streamed answers from a chat model for a prompt and an
// optional snapshot of the student's canvas.
package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrNoAPIKey is returned when the upstream requires a key and none is set.
var ErrNoAPIKey = errors.New("no API key configured")

// Query is the request body the canvas sends.
type Query struct {
	UserMessage string `json:"userMessage"`
	ImageBase64 string `json:"imageBase64,omitempty"`
}

// Validate rejects queries with nothing to ask.
func (q Query) Validate() error {
	if strings.TrimSpace(q.UserMessage) == "" && q.ImageBase64 == "" {
		return errors.New("query needs a message or an image")
	}
	return nil
}

// ImageURL returns the image as a data URL, adding a PNG prefix to bare base64.
func (q Query) ImageURL() string {
	if q.ImageBase64 == "" || strings.HasPrefix(q.ImageBase64, "data:") {
		return q.ImageBase64
	}
	return "data:image/png;base64," + q.ImageBase64
}

// TokenStream yields answer tokens in arrival order. Recv returns io.EOF when
// the upstream finished normally.
type TokenStream interface {
	Recv() (string, error)
	Close() error
}

// Streamer opens one answer stream per query.
type Streamer interface {
	Stream(ctx context.Context, q Query) (TokenStream, error)
}

// Pipe reads ts until it ends, handing each token to fn. It closes ts.
func Pipe(ctx context.Context, ts TokenStream, fn func(string) error) error {
	defer ts.Close()
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		tok, err := ts.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("receive token: %w", err)
		}
		if tok == "" {
			continue
		}
		if err := fn(tok); err != nil {
			return err
		}
	}
}
