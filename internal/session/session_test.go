package session

import (
	"context"
	"errors"
	"image/color"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/example/sketchtutor/internal/canvas"
	"github.com/example/sketchtutor/internal/overlay"
	"github.com/example/sketchtutor/internal/relay"
)

type recorder struct {
	relay.Streamer
	mu      sync.Mutex
	queries []relay.Query
}

func (r *recorder) Stream(ctx context.Context, q relay.Query) (relay.TokenStream, error) {
	r.mu.Lock()
	r.queries = append(r.queries, q)
	r.mu.Unlock()
	return r.Streamer.Stream(ctx, q)
}

func (r *recorder) last(t *testing.T) relay.Query {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.queries) == 0 {
		t.Fatalf("no query reached the streamer")
	}
	return r.queries[len(r.queries)-1]
}

func testOptions() Options {
	opts := DefaultOptions()
	opts.Width, opts.Height, opts.ViewHeight = 300, 400, 100
	return opts
}

func newTestSession(t *testing.T, st relay.Streamer) *Session {
	t.Helper()
	s := New("test", testOptions(), st, nil)
	t.Cleanup(s.Close)
	return s
}

func drawLine(t *testing.T, s *Session, from, to canvas.Point) {
	t.Helper()
	for _, ev := range []canvas.PointerEvent{
		{Kind: "pointerdown", X: from.X, Y: from.Y},
		{Kind: "pointermove", X: (from.X + to.X) / 2, Y: (from.Y + to.Y) / 2},
		{Kind: "pointermove", X: to.X, Y: to.Y},
		{Kind: "pointerup"},
	} {
		if err := s.Pointer(ev); err != nil {
			t.Fatalf("Pointer(%v): %v", ev, err)
		}
	}
}

func TestAskStreamsIntoAnchoredRecord(t *testing.T) {
	rec := &recorder{Streamer: relay.Script{Tokens: []string{"Check ", "the ", `sign: \(x^2\)`}}}
	s := newTestSession(t, rec)
	drawLine(t, s, canvas.Pt(50, 50), canvas.Pt(150, 120))

	anchor := s.Anchor()
	if anchor.Y < 120+20 {
		t.Fatalf("anchor %v should sit below the ink", anchor)
	}
	var streamed strings.Builder
	id, err := s.Ask(context.Background(), "is this right?", nil, func(tok string) error {
		streamed.WriteString(tok)
		return nil
	})
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	v, ok := s.board.View(id)
	if !ok {
		t.Fatalf("record %s missing", id)
	}
	if v.Text != `Check the sign: \(x^2\)` || v.State != overlay.Done || v.Pending {
		t.Fatalf("unexpected view %+v", v)
	}
	if v.Position != anchor {
		t.Fatalf("position %v, want %v", v.Position, anchor)
	}
	if streamed.String() != v.Text {
		t.Fatalf("callback saw %q", streamed.String())
	}
	q := rec.last(t)
	if !strings.HasPrefix(q.ImageBase64, "data:image/png;base64,") {
		t.Fatalf("expected a png snapshot, got %.40q", q.ImageBase64)
	}
}

func TestEmptyCanvasSendsNoImage(t *testing.T) {
	rec := &recorder{Streamer: relay.Script{Tokens: []string{"hi"}}}
	s := newTestSession(t, rec)
	id, err := s.Ask(context.Background(), "hello", nil, nil)
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if q := rec.last(t); q.ImageBase64 != "" {
		t.Fatalf("blank canvas should not attach an image")
	}
	v, _ := s.board.View(id)
	if v.Position != canvas.Pt(0, 20) {
		t.Fatalf("blank canvas anchor %v", v.Position)
	}
}

func TestDarkInkSendsWholeCanvas(t *testing.T) {
	rec := &recorder{Streamer: relay.Script{Tokens: []string{"ok"}}}
	s := newTestSession(t, rec)
	s.SetColor(color.RGBA{A: 255})
	drawLine(t, s, canvas.Pt(100, 100), canvas.Pt(200, 200))
	if _, err := s.Ask(context.Background(), "what is this?", nil, nil); err != nil {
		t.Fatalf("Ask: %v", err)
	}
	q := rec.last(t)
	if q.ImageBase64 == "" {
		t.Fatalf("black ink below the crop threshold must still be attached")
	}
	img, err := canvas.DecodeDataURL(q.ImageBase64)
	if err != nil {
		t.Fatalf("DecodeDataURL: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 300 || b.Dy() != 400 {
		t.Fatalf("expected the uncropped canvas, got %v", b)
	}
	if r, _, _, _ := img.At(150, 150).RGBA(); r > 0x4000 {
		t.Fatalf("ink missing from snapshot at the stroke")
	}
}

func TestCloseWhileQuerying(t *testing.T) {
	s := New("close", testOptions(), relay.Script{Tokens: []string{"a", "b"}, Delay: time.Millisecond}, nil)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Query(context.Background(), "hi", nil)
			if err != nil && !errors.Is(err, ErrClosed) {
				t.Errorf("Query: %v", err)
			}
		}()
	}
	s.Close()
	wg.Wait()
	if _, err := s.Query(context.Background(), "late", nil); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed after Close, got %v", err)
	}
}

func TestEmptyQueryRejected(t *testing.T) {
	s := newTestSession(t, relay.Script{})
	if _, err := s.Ask(context.Background(), "  ", nil, nil); err == nil {
		t.Fatalf("expected an error for an empty query on a blank canvas")
	}
	if s.board.Len() != 0 {
		t.Fatalf("rejected query must not leave a record")
	}
}

func TestFailedDispatchIsTerminal(t *testing.T) {
	boom := errors.New("upstream unavailable")
	s := newTestSession(t, relay.Echo{Err: boom})
	id, err := s.Ask(context.Background(), "help", nil, nil)
	if !errors.Is(err, boom) {
		t.Fatalf("expected upstream error, got %v", err)
	}
	v, _ := s.board.View(id)
	if v.State != overlay.Failed || v.Pending || !strings.Contains(v.Error, "unavailable") {
		t.Fatalf("record should be failed, got %+v", v)
	}
}

func TestStreamErrorKeepsPartialText(t *testing.T) {
	s := newTestSession(t, relay.Script{Tokens: []string{"partial"}, After: errors.New("reset")})
	id, err := s.Ask(context.Background(), "help", nil, nil)
	if err == nil {
		t.Fatalf("expected stream error")
	}
	v, _ := s.board.View(id)
	if v.State != overlay.Failed || v.Text != "partial" {
		t.Fatalf("unexpected view %+v", v)
	}
}

func TestClearResetsStrokesAndOverlays(t *testing.T) {
	s := newTestSession(t, relay.Script{Tokens: []string{"ok"}})
	drawLine(t, s, canvas.Pt(10, 10), canvas.Pt(60, 60))
	if _, err := s.Ask(context.Background(), "q", nil, nil); err != nil {
		t.Fatalf("Ask: %v", err)
	}
	s.Clear()
	if n := len(s.Strokes()); n != 0 {
		t.Fatalf("strokes after clear = %d", n)
	}
	if n := len(s.Overlays()); n != 0 {
		t.Fatalf("overlays after clear = %d", n)
	}
	if !s.Frame(false).Empty {
		t.Fatalf("surface should be blank after clear")
	}
}

func TestClearDuringStreamDropsLateTokens(t *testing.T) {
	s := newTestSession(t, relay.Script{Tokens: []string{"a", "b", "c"}, Delay: 20 * time.Millisecond})
	if _, err := s.Query(context.Background(), "q", nil); err != nil {
		t.Fatalf("Query: %v", err)
	}
	s.Clear()
	s.Close()
	if n := len(s.Overlays()); n != 0 {
		t.Fatalf("late tokens recreated %d records", n)
	}
}

func TestOverlapReject(t *testing.T) {
	opts := testOptions()
	opts.Overlap = OverlapReject
	s := New("test", opts, relay.Script{Tokens: []string{"slow"}, Delay: time.Hour}, nil)
	first, err := s.Query(context.Background(), "one", nil)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if _, err := s.Query(context.Background(), "two", nil); !errors.Is(err, ErrBusy) {
		t.Fatalf("expected ErrBusy, got %v", err)
	}
	s.Close()
	v, _ := s.board.View(first)
	if v.State != overlay.Failed {
		t.Fatalf("closing should fail the in-flight record, got %v", v.State)
	}
	if _, err := s.Query(context.Background(), "three", nil); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestQueryStopsWithCallerContext(t *testing.T) {
	s := newTestSession(t, relay.Script{Tokens: []string{"slow"}, Delay: time.Hour})
	ctx, cancel := context.WithCancel(context.Background())
	id, err := s.Query(ctx, "q", nil)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	cancel()
	s.wg.Wait()
	v, ok := s.View(id)
	if !ok || v.State != overlay.Failed {
		t.Fatalf("record should fail when the caller goes away, got %+v", v)
	}
}

func TestOverlapAllowBindsByID(t *testing.T) {
	s := newTestSession(t, relay.Script{Tokens: []string{"x", "y"}, Delay: 50 * time.Millisecond})
	drawLine(t, s, canvas.Pt(10, 10), canvas.Pt(60, 60))
	a, err := s.Query(context.Background(), "one", nil)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	b, err := s.Query(context.Background(), "two", &canvas.Point{X: 5, Y: 300})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	s.wg.Wait()
	views := s.Overlays()
	// The first record had no text yet, so the second replaced it.
	if len(views) != 1 || views[0].ID != b {
		t.Fatalf("expected only %s, got %+v", b, views)
	}
	if _, ok := s.board.View(a); ok {
		t.Fatalf("replaced record %s should be gone", a)
	}
	if views[0].Text != "xy" || views[0].Position != canvas.Pt(5, 300) {
		t.Fatalf("unexpected view %+v", views[0])
	}
}

func TestUndoAbandonsGesture(t *testing.T) {
	s := newTestSession(t, relay.Script{})
	drawLine(t, s, canvas.Pt(10, 10), canvas.Pt(60, 60))
	if err := s.Pointer(canvas.PointerEvent{Kind: "down", X: 100, Y: 100}); err != nil {
		t.Fatalf("Pointer: %v", err)
	}
	if !s.Undo() {
		t.Fatalf("Undo reported nothing removed")
	}
	if st := s.State(); st.Strokes != 0 || st.Capture != canvas.Idle.String() {
		t.Fatalf("unexpected state %+v", st)
	}
	if s.Undo() {
		t.Fatalf("Undo on empty history should be a no-op")
	}
}

func TestThumbDrag(t *testing.T) {
	s := newTestSession(t, relay.Script{})
	s.ThumbDown(0.125)
	if got := s.ThumbMove(0.5); got != 150 {
		t.Fatalf("offset after drag = %v, want 150", got)
	}
	if got := s.ThumbUp(); got != 150 {
		t.Fatalf("offset after release = %v, want 150", got)
	}
	if got := s.ThumbMove(0.9); got != 150 {
		t.Fatalf("move after release should not scroll, got %v", got)
	}
	if got := s.JumpTo(1); got != 300 {
		t.Fatalf("JumpTo(1) = %v", got)
	}
}

func TestSubscribe(t *testing.T) {
	s := newTestSession(t, relay.Script{Tokens: []string{"a"}})
	var kinds []overlay.EventKind
	stop := s.Subscribe(func(ev overlay.Event) { kinds = append(kinds, ev.Kind) })
	if _, err := s.Ask(context.Background(), "q", nil, nil); err != nil {
		t.Fatalf("Ask: %v", err)
	}
	stop()
	s.Clear()
	want := []overlay.EventKind{overlay.EventDispatch, overlay.EventUpdate, overlay.EventUpdate}
	if len(kinds) != len(want) {
		t.Fatalf("events %v, want %v", kinds, want)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Fatalf("events %v, want %v", kinds, want)
		}
	}
}

func TestFrameCrop(t *testing.T) {
	s := newTestSession(t, relay.Script{})
	drawLine(t, s, canvas.Pt(100, 100), canvas.Pt(140, 100))
	f := s.Frame(true)
	if f.Empty {
		t.Fatalf("frame should not be empty")
	}
	if f.Origin.X > 100-20 || f.Origin.Y > 100-20 {
		t.Fatalf("origin %v should include padding", f.Origin)
	}
	if b := f.Image.Bounds(); b.Dx() >= 300 || b.Dy() >= 400 {
		t.Fatalf("frame not cropped: %v", b)
	}
	if len(f.Strokes) != 1 {
		t.Fatalf("frame strokes = %d", len(f.Strokes))
	}
}

func TestManager(t *testing.T) {
	m := NewManager(testOptions(), relay.Echo{}, nil)
	defer m.Close()
	a := m.Create()
	b := m.Create()
	if a.ID() == b.ID() {
		t.Fatalf("session IDs collide")
	}
	if got, err := m.Get(a.ID()); err != nil || got != a {
		t.Fatalf("Get = %v, %v", got, err)
	}
	if m.Len() != 2 || len(m.List()) != 2 {
		t.Fatalf("expected two sessions")
	}
	if err := m.Delete(a.ID()); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := m.Get(a.ID()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := m.Delete(a.ID()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
}

func TestParseOverlap(t *testing.T) {
	for in, want := range map[string]Overlap{"": OverlapAllow, "allow": OverlapAllow, "Reject": OverlapReject} {
		got, err := ParseOverlap(in)
		if err != nil || got != want {
			t.Fatalf("ParseOverlap(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParseOverlap("queue"); err == nil {
		t.Fatalf("expected error")
	}
}
