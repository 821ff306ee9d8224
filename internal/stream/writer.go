package stream

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// Event names written by Writer.
const (
	EventDelta = "delta"
	EventDone  = "done"
	EventError = "error"
)

// Writer emits server-sent events and flushes after each one.
type Writer struct {
	w       io.Writer
	flusher http.Flusher
}

// NewWriter prepares rw for streaming: it sets the event-stream headers and
// sends the 200 status.
func NewWriter(rw http.ResponseWriter) *Writer {
	h := rw.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	rw.WriteHeader(http.StatusOK)
	w := &Writer{w: rw}
	if f, ok := rw.(http.Flusher); ok {
		w.flusher = f
	}
	w.flush()
	return w
}

// Send writes one event with v encoded as JSON data.
func (w *Writer) Send(name string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", name, err)
	}
	if _, err := fmt.Fprintf(w.w, "event: %s\ndata: %s\n\n", name, data); err != nil {
		return err
	}
	w.flush()
	return nil
}

// Delta sends one token.
func (w *Writer) Delta(text string) error {
	return w.Send(EventDelta, Delta{Text: text})
}

// Done ends the stream successfully. meta is sent as the event data.
func (w *Writer) Done(meta any) error {
	if meta == nil {
		meta = struct{}{}
	}
	return w.Send(EventDone, meta)
}

// Fail reports err to the client.
func (w *Writer) Fail(err error) error {
	return w.Send(EventError, Problem{Error: err.Error()})
}

func (w *Writer) flush() {
	if w.flusher != nil {
		w.flusher.Flush()
	}
}
