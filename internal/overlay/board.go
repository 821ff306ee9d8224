// Package overlay tracks streamed answers pinned to canvas coordinates.
package overlay

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/example/sketchtutor/internal/canvas"
)

var (
	// ErrUnknownRecord reports an ID that was never issued or has been replaced or reset.
	ErrUnknownRecord = errors.New("unknown overlay record")
	// ErrClosed reports a write to a record that already finished or failed.
	ErrClosed = errors.New("overlay record closed")
)

// ID identifies one dispatched query.
type ID string

// State is the lifecycle of a record.
type State int

const (
	Pending State = iota
	Done
	Failed
)

func (s State) String() string {
	switch s {
	case Done:
		return "done"
	case Failed:
		return "failed"
	}
	return "pending"
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

type record struct {
	id       ID
	position canvas.Point
	text     strings.Builder
	state    State
	err      string
}

// View is the presentation snapshot of one record. Pending is true while the
// request is in flight and no text has arrived, which renders as a loading
// indicator at Position.
type View struct {
	ID       ID           `json:"id"`
	Position canvas.Point `json:"position"`
	Text     string       `json:"text"`
	State    State        `json:"state"`
	Pending  bool         `json:"pending"`
	Error    string       `json:"error,omitempty"`
	Segments []Segment    `json:"segments,omitempty"`
}

func (r *record) view() View {
	text := r.text.String()
	return View{
		ID:       r.id,
		Position: r.position,
		Text:     text,
		State:    r.state,
		Pending:  r.state == Pending && text == "",
		Error:    r.err,
		Segments: Segments(text),
	}
}

// EventKind says what changed on the board.
type EventKind string

const (
	EventDispatch EventKind = "dispatch"
	EventUpdate   EventKind = "update"
	EventReset    EventKind = "reset"
)

// Event is delivered to listeners after every mutation.
// Replaced is the ID a dispatch took the place of, if any.
type Event struct {
	Kind     EventKind `json:"kind"`
	View     View      `json:"view"`
	Replaced ID        `json:"replaced,omitempty"`
}

// Board is the ordered list of response records. It is safe for concurrent
// use; each stream writes only to the record it was dispatched with.
type Board struct {
	mu      sync.Mutex
	records []*record
	index   map[ID]*record
	newID   func() ID

	emitMu    sync.Mutex
	listeners []func(Event)
}

// Option configures a Board.
type Option func(*Board)

// WithIDs overrides ID generation.
func WithIDs(fn func() ID) Option {
	return func(b *Board) { b.newID = fn }
}

// NewBoard creates an empty board.
func NewBoard(opts ...Option) *Board {
	b := &Board{
		index: make(map[ID]*record),
		newID: func() ID { return ID(uuid.NewString()) },
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// OnChange registers fn to receive every event in mutation order. Listeners
// must not call back into the board.
func (b *Board) OnChange(fn func(Event)) {
	b.emitMu.Lock()
	b.listeners = append(b.listeners, fn)
	b.emitMu.Unlock()
}

// Dispatch creates a pending record anchored at anchor and returns its ID. If
// the latest record has no text it is replaced in place and its ID retired.
func (b *Board) Dispatch(anchor canvas.Point) ID {
	b.mu.Lock()
	r := &record{id: b.newID(), position: anchor}
	var replaced ID
	if n := len(b.records); n > 0 && b.records[n-1].text.Len() == 0 {
		replaced = b.records[n-1].id
		delete(b.index, replaced)
		b.records[n-1] = r
	} else {
		b.records = append(b.records, r)
	}
	b.index[r.id] = r
	b.emitLocked(Event{Kind: EventDispatch, View: r.view(), Replaced: replaced})
	return r.id
}

// Append adds chunk to the text of record id.
func (b *Board) Append(id ID, chunk string) error {
	b.mu.Lock()
	r, err := b.openLocked(id)
	if err != nil {
		b.mu.Unlock()
		return err
	}
	if chunk == "" {
		b.mu.Unlock()
		return nil
	}
	r.text.WriteString(chunk)
	b.emitLocked(Event{Kind: EventUpdate, View: r.view()})
	return nil
}

// Finish marks record id complete.
func (b *Board) Finish(id ID) error {
	b.mu.Lock()
	r, err := b.openLocked(id)
	if err != nil {
		b.mu.Unlock()
		return err
	}
	r.state = Done
	b.emitLocked(Event{Kind: EventUpdate, View: r.view()})
	return nil
}

// Fail marks record id failed so it no longer renders as loading.
func (b *Board) Fail(id ID, cause error) error {
	b.mu.Lock()
	r, err := b.openLocked(id)
	if err != nil {
		b.mu.Unlock()
		return err
	}
	r.state = Failed
	if cause != nil {
		r.err = cause.Error()
	} else {
		r.err = "request failed"
	}
	b.emitLocked(Event{Kind: EventUpdate, View: r.view()})
	return nil
}

// Reset removes every record.
func (b *Board) Reset() {
	b.mu.Lock()
	b.records = nil
	b.index = make(map[ID]*record)
	b.emitLocked(Event{Kind: EventReset})
}

// Views returns every record in dispatch order.
func (b *Board) Views() []View {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]View, len(b.records))
	for i, r := range b.records {
		out[i] = r.view()
	}
	return out
}

// View returns the record bound to id.
func (b *Board) View(id ID) (View, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	r, ok := b.index[id]
	if !ok {
		return View{}, false
	}
	return r.view(), true
}

// Len returns the number of records.
func (b *Board) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.records)
}

// InFlight counts records still waiting for their stream to end.
func (b *Board) InFlight() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, r := range b.records {
		if r.state == Pending {
			n++
		}
	}
	return n
}

func (b *Board) openLocked(id ID) (*record, error) {
	r, ok := b.index[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownRecord, id)
	}
	if r.state != Pending {
		return nil, fmt.Errorf("%w: %s is %s", ErrClosed, id, r.state)
	}
	return r, nil
}

// emitLocked releases b.mu and delivers ev while holding emitMu, so listeners
// observe events in mutation order.
func (b *Board) emitLocked(ev Event) {
	b.emitMu.Lock()
	b.mu.Unlock()
	defer b.emitMu.Unlock()
	for _, fn := range b.listeners {
		fn(ev)
	}
}
