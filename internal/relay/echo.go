package relay

import (
	"context"
	"io"
	"strings"
	"time"
)

// Echo answers without a model by streaming the question back word by word.
// It backs offline demos and tests.
type Echo struct {
	Prefix string
	Delay  time.Duration
	// Err, when set, is returned by Stream instead of a stream.
	Err error
}

// Stream implements Streamer.
func (e Echo) Stream(ctx context.Context, q Query) (TokenStream, error) {
	if e.Err != nil {
		return nil, e.Err
	}
	if err := q.Validate(); err != nil {
		return nil, err
	}
	prefix := e.Prefix
	if prefix == "" {
		prefix = "You asked:"
	}
	text := prefix + " " + strings.TrimSpace(q.UserMessage)
	if q.ImageBase64 != "" {
		text += " (with a sketch)"
	}
	return &scripted{ctx: ctx, tokens: splitKeepSpace(text), delay: e.Delay}, nil
}

// Script is a Streamer that replays fixed tokens and then an optional error.
type Script struct {
	Tokens []string
	Delay  time.Duration
	// After is returned by Recv once the tokens run out; nil means io.EOF.
	After error
}

// Stream implements Streamer.
func (s Script) Stream(ctx context.Context, _ Query) (TokenStream, error) {
	return &scripted{ctx: ctx, tokens: append([]string(nil), s.Tokens...), delay: s.Delay, after: s.After}, nil
}

type scripted struct {
	ctx    context.Context
	tokens []string
	delay  time.Duration
	after  error
}

func (s *scripted) Recv() (string, error) {
	if s.delay > 0 {
		select {
		case <-s.ctx.Done():
			return "", s.ctx.Err()
		case <-time.After(s.delay):
		}
	}
	if err := s.ctx.Err(); err != nil {
		return "", err
	}
	if len(s.tokens) == 0 {
		if s.after != nil {
			return "", s.after
		}
		return "", io.EOF
	}
	tok := s.tokens[0]
	s.tokens = s.tokens[1:]
	return tok, nil
}

func (s *scripted) Close() error { return nil }

func splitKeepSpace(text string) []string {
	var out []string
	for _, w := range strings.SplitAfter(text, " ") {
		if w != "" {
			out = append(out, w)
		}
	}
	return out
}
