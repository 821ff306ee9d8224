// Package stream reads and writes the text/event-stream framing used to relay
// answers token by token.
package stream

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Event is one server-sent event.
type Event struct {
	Name string
	Data string
	ID   string
}

// Decoder splits an event stream into events. Reads may end anywhere, including
// in the middle of a line; a line is only interpreted once it is complete.
type Decoder struct {
	r *bufio.Reader
}

// NewDecoder wraps r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: bufio.NewReader(r)}
}

// Next returns the next event. At the end of the stream a trailing event
// without its blank line is still returned, then io.EOF.
func (d *Decoder) Next() (Event, error) {
	var (
		ev   Event
		data []string
		seen bool
	)
	for {
		line, err := d.r.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return Event{}, err
		}
		eof := errors.Is(err, io.EOF)
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			if seen {
				ev.Data = strings.Join(data, "\n")
				return ev, nil
			}
			if eof {
				return Event{}, io.EOF
			}
			continue
		}
		if !strings.HasPrefix(line, ":") {
			field, value, _ := strings.Cut(line, ":")
			value = strings.TrimPrefix(value, " ")
			switch field {
			case "event":
				ev.Name = value
				seen = true
			case "data":
				data = append(data, value)
				seen = true
			case "id":
				ev.ID = value
				seen = true
			}
		}
		if eof {
			if !seen {
				return Event{}, io.EOF
			}
			ev.Data = strings.Join(data, "\n")
			return ev, nil
		}
	}
}

// ChunkKind classifies an event for the consumer.
type ChunkKind int

const (
	// Skip marks events that carry nothing usable, including malformed ones.
	Skip ChunkKind = iota
	Token
	Done
	Failure
)

// Chunk is the interpretation of one event.
type Chunk struct {
	Kind ChunkKind
	Text string
}

// Delta is the payload of a delta event.
type Delta struct {
	Text string `json:"text"`
}

// Problem is the payload of an error event.
type Problem struct {
	Error string `json:"error"`
}

type assistantDelta struct {
	Delta struct {
		Content []struct {
			Text struct {
				Value string `json:"value"`
			} `json:"text"`
		} `json:"content"`
	} `json:"delta"`
}

type chatChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

// Interpret extracts at most one token from ev. It understands delta, done and
// error events written by Writer, assistant thread.message.delta events and
// bare chat completion chunks. Anything it cannot parse is skipped.
func Interpret(ev Event) Chunk {
	if strings.TrimSpace(ev.Data) == "[DONE]" {
		return Chunk{Kind: Done}
	}
	switch ev.Name {
	case EventDone, "thread.run.completed":
		return Chunk{Kind: Done}
	case EventError, "thread.run.failed":
		var p Problem
		if err := json.Unmarshal([]byte(ev.Data), &p); err != nil || p.Error == "" {
			return Chunk{Kind: Failure, Text: strings.TrimSpace(ev.Data)}
		}
		return Chunk{Kind: Failure, Text: p.Error}
	case EventDelta:
		var d Delta
		if err := json.Unmarshal([]byte(ev.Data), &d); err != nil || d.Text == "" {
			return Chunk{}
		}
		return Chunk{Kind: Token, Text: d.Text}
	case "thread.message.delta":
		var d assistantDelta
		if err := json.Unmarshal([]byte(ev.Data), &d); err != nil || len(d.Delta.Content) == 0 {
			return Chunk{}
		}
		return token(d.Delta.Content[0].Text.Value)
	case "", "message":
		var c chatChunk
		if err := json.Unmarshal([]byte(ev.Data), &c); err != nil || len(c.Choices) == 0 {
			return Chunk{}
		}
		return token(c.Choices[0].Delta.Content)
	}
	return Chunk{}
}

func token(s string) Chunk {
	if s == "" {
		return Chunk{}
	}
	return Chunk{Kind: Token, Text: s}
}

// ErrRemote wraps a failure reported inside the stream.
var ErrRemote = errors.New("remote stream error")

// TokenReader pulls answer tokens out of an event stream.
type TokenReader struct {
	dec  *Decoder
	done bool
}

// NewTokenReader reads events from r.
func NewTokenReader(r io.Reader) *TokenReader {
	return &TokenReader{dec: NewDecoder(r)}
}

// Recv returns the next token. It returns io.EOF after a done event or at the
// end of the stream, and an ErrRemote error for an error event.
func (t *TokenReader) Recv() (string, error) {
	for !t.done {
		ev, err := t.dec.Next()
		if err != nil {
			t.done = true
			return "", err
		}
		c := Interpret(ev)
		switch c.Kind {
		case Token:
			return c.Text, nil
		case Done:
			t.done = true
		case Failure:
			t.done = true
			return "", fmt.Errorf("%w: %s", ErrRemote, c.Text)
		}
	}
	return "", io.EOF
}
