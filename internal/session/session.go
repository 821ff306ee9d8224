// Package session ties one student's canvas, stroke history and answer
// overlays together and serialises access to them.
package session

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/example/sketchtutor/internal/canvas"
	"github.com/example/sketchtutor/internal/logging"
	"github.com/example/sketchtutor/internal/overlay"
	"github.com/example/sketchtutor/internal/relay"
)

var (
	// ErrBusy is returned by Query when the reject overlap policy is active
	// and another answer is still streaming.
	ErrBusy = errors.New("an answer is already streaming")
	// ErrNotFound reports an unknown session ID.
	ErrNotFound = errors.New("session not found")
	// ErrClosed reports use of a session after Close.
	ErrClosed = errors.New("session closed")
)

// Overlap decides what happens to a query sent while another is streaming.
type Overlap string

const (
	OverlapAllow  Overlap = "allow"
	OverlapReject Overlap = "reject"
)

// ParseOverlap accepts allow or reject.
func ParseOverlap(s string) (Overlap, error) {
	switch o := Overlap(strings.ToLower(strings.TrimSpace(s))); o {
	case OverlapAllow, OverlapReject:
		return o, nil
	case "":
		return OverlapAllow, nil
	}
	return "", fmt.Errorf("invalid overlap policy %q", s)
}

// Options sizes the canvas and tunes the snapshot sent with each query.
type Options struct {
	Width         int
	Height        int
	ViewHeight    float64
	BrushScale    float64
	EraserScale   float64
	AnchorGap     float64
	CropPadding   int
	CropThreshold uint8
	Invert        bool
	MaxImageDim   int
	ImageFormat   canvas.Format
	JPEGQuality   int
	Overlap       Overlap
	QueryTimeout  time.Duration
}

// DefaultOptions returns the settings used when nothing is configured.
func DefaultOptions() Options {
	return Options{
		Width:        1000,
		Height:       10000,
		ViewHeight:   800,
		BrushScale:   canvas.DefaultBrushScale,
		EraserScale:  canvas.DefaultEraserScale,
		AnchorGap:    20,
		CropPadding:  20,
		MaxImageDim:  1024,
		ImageFormat:  canvas.PNG,
		JPEGQuality:  85,
		Overlap:      OverlapAllow,
		QueryTimeout: 2 * time.Minute,
	}
}

// Session is one canvas with its history and overlays. All methods are safe
// for concurrent use.
type Session struct {
	id      string
	opts    Options
	relay   relay.Streamer
	log     *zap.Logger
	created time.Time

	mu       sync.Mutex
	store    *canvas.Store
	capture  *canvas.Capture
	viewport *canvas.Viewport
	thumb    canvas.Drag
	board    *overlay.Board

	subMu   sync.Mutex
	subs    map[int]func(overlay.Event)
	nextSub int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a blank session answering queries with st.
func New(id string, opts Options, st relay.Streamer, log *zap.Logger) *Session {
	if log == nil {
		log = zap.NewNop()
	}
	surface := canvas.NewSurface(opts.Width, opts.Height)
	store := canvas.NewStore(surface)
	s := &Session{
		id:       id,
		opts:     opts,
		relay:    st,
		log:      log.With(zap.String("session", id)),
		created:  time.Now(),
		store:    store,
		capture:  canvas.NewCapture(store, canvas.WithScales(opts.BrushScale, opts.EraserScale)),
		viewport: canvas.NewViewport(float64(opts.Height), opts.ViewHeight),
		board:    overlay.NewBoard(),
		subs:     make(map[int]func(overlay.Event)),
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	store.OnClear(s.board.Reset)
	s.board.OnChange(s.publish)
	return s
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Created returns when the session was opened.
func (s *Session) Created() time.Time { return s.created }

// Subscribe registers fn for overlay events until the returned func is
// called. fn runs on the mutating goroutine and must not call back into the
// session.
func (s *Session) Subscribe(fn func(overlay.Event)) func() {
	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.subMu.Unlock()
	return func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}
}

func (s *Session) publish(ev overlay.Event) {
	s.subMu.Lock()
	fns := make([]func(overlay.Event), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.subMu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
}

// Pointer feeds a raw pointer event to input capture.
func (s *Session) Pointer(ev canvas.PointerEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.capture.Handle(ev)
}

// SetTool selects the tool for the next gesture.
func (s *Session) SetTool(t canvas.Tool) {
	s.mu.Lock()
	s.capture.SetTool(t)
	s.mu.Unlock()
}

// SetWidth sets the slider width for the next gesture.
func (s *Session) SetWidth(w float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.capture.SetWidth(w)
}

// SetColor sets the brush colour for the next gesture.
func (s *Session) SetColor(c color.RGBA) {
	s.mu.Lock()
	s.capture.SetColor(c)
	s.mu.Unlock()
}

// Undo abandons any gesture in progress and removes the last stroke.
func (s *Session) Undo() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.capture.Reset()
	return s.store.Undo()
}

// Clear wipes strokes and overlays together.
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.capture.Reset()
	s.store.Clear()
	s.log.Debug("canvas cleared")
}

// Load replaces the stroke history. Overlays are kept.
func (s *Session) Load(strokes []canvas.Stroke) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.capture.Reset()
	if err := s.store.Load(strokes); err != nil {
		return fmt.Errorf("load strokes: %w", err)
	}
	return nil
}

// Strokes returns the committed history.
func (s *Session) Strokes() []canvas.Stroke {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.Strokes()
}

// Overlays returns every answer record in dispatch order.
func (s *Session) Overlays() []overlay.View {
	return s.board.Views()
}

// View returns the current view of one answer record.
func (s *Session) View(id overlay.ID) (overlay.View, bool) {
	return s.board.View(id)
}

// Scroll moves the view by dy and returns the new offset.
func (s *Session) Scroll(dy float64) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewport.Scroll(dy)
}

// JumpTo handles a click at ratio of the navigator bar.
func (s *Session) JumpTo(ratio float64) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewport.JumpTo(ratio)
}

// ResizeView records the browser's visible height.
func (s *Session) ResizeView(h float64) {
	s.mu.Lock()
	s.viewport.Resize(h)
	s.mu.Unlock()
}

// ThumbDown starts dragging the navigator thumb at ratio of the bar.
func (s *Session) ThumbDown(ratio float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.thumb.Begin(canvas.Pt(0, ratio), canvas.Pt(0, s.viewport.Indicator().Top))
}

// ThumbMove follows the pointer while the thumb is held.
func (s *Session) ThumbMove(ratio float64) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	top, ok := s.thumb.Move(canvas.Pt(0, ratio))
	if !ok {
		return s.viewport.Offset
	}
	return s.scrollThumbLocked(top.Y)
}

// ThumbUp releases the thumb.
func (s *Session) ThumbUp() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.thumb.State() != canvas.Dragging {
		return s.viewport.Offset
	}
	return s.scrollThumbLocked(s.thumb.End().Y)
}

func (s *Session) scrollThumbLocked(top float64) float64 {
	track := 1 - s.viewport.Indicator().Size
	if track <= 0 {
		return s.viewport.ScrollTo(0)
	}
	return s.viewport.JumpTo(min(1, max(0, top/track)))
}

// State is a summary of the session for clients.
type State struct {
	ID        string           `json:"id"`
	Strokes   int              `json:"strokes"`
	Tool      canvas.Tool      `json:"tool"`
	Width     float64          `json:"width"`
	Color     string           `json:"color"`
	Capture   string           `json:"capture"`
	Viewport  canvas.Viewport  `json:"viewport"`
	Indicator canvas.Indicator `json:"indicator"`
	Overlays  int              `json:"overlays"`
	InFlight  int              `json:"inFlight"`
	Created   time.Time        `json:"created"`
}

// State returns the current summary.
func (s *Session) State() State {
	s.mu.Lock()
	st := State{
		ID:        s.id,
		Strokes:   s.store.Len(),
		Tool:      s.capture.Tool(),
		Width:     s.capture.Width(),
		Color:     canvas.FormatColor(s.capture.Color()),
		Capture:   s.capture.State().String(),
		Viewport:  *s.viewport,
		Indicator: s.viewport.Indicator(),
		Created:   s.created,
	}
	s.mu.Unlock()
	st.Overlays = s.board.Len()
	st.InFlight = s.board.InFlight()
	return st
}

// Anchor returns where the next answer is placed: AnchorGap pixels below the
// lowest inked pixel, or at the top left when nothing is drawn.
func (s *Session) Anchor() canvas.Point {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.anchorLocked()
}

func (s *Session) anchorLocked() canvas.Point {
	p, ok := s.store.Surface().LowestInk()
	if !ok {
		return canvas.Pt(0, s.opts.AnchorGap)
	}
	return canvas.Pt(float64(p.X), float64(p.Y)+s.opts.AnchorGap)
}

// Frame is a consistent copy of the canvas for export.
type Frame struct {
	Image    *image.RGBA
	Origin   image.Point
	Bounds   image.Rectangle
	Empty    bool
	Strokes  []canvas.Stroke
	Overlays []overlay.View
}

// Frame copies the canvas. With crop set only the padded ink region is
// copied; Origin is its top-left in canvas coordinates.
func (s *Session) Frame(crop bool) Frame {
	s.mu.Lock()
	surface := s.store.Surface()
	f := Frame{Bounds: surface.Bounds(), Strokes: s.store.Strokes()}
	box, ok := surface.InkBounds(s.opts.CropPadding, s.opts.CropThreshold)
	f.Empty = !ok
	if crop && ok {
		f.Image = canvas.Crop(surface.Image(), box)
		f.Origin = box.Min
	} else {
		f.Image = surface.Snapshot()
	}
	s.mu.Unlock()
	f.Overlays = s.board.Views()
	return f
}

// QueryImage renders the snapshot attached to a query: the cropped ink on
// white, optionally inverted and scaled down, as a data URL. When no pixel
// passes the crop threshold the whole canvas is sent. It returns "" only for a
// blank canvas.
func (s *Session) QueryImage() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queryImageLocked()
}

func (s *Session) queryImageLocked() (string, error) {
	surface := s.store.Surface()
	if surface.Blank() {
		return "", nil
	}
	img, _ := surface.ExportCropped(s.opts.CropPadding, s.opts.CropThreshold)
	out := canvas.Flatten(img, color.White)
	if s.opts.Invert {
		out = canvas.Invert(out)
	}
	if s.opts.MaxImageDim > 0 {
		out = canvas.Fit(out, s.opts.MaxImageDim)
	}
	format := s.opts.ImageFormat
	if format == "" {
		format = canvas.PNG
	}
	return canvas.DataURL(out, format, s.opts.JPEGQuality)
}

// dispatch snapshots the canvas and places a pending record for message. With
// background set it also registers the stream with wg so Close waits for it.
func (s *Session) dispatch(message string, anchor *canvas.Point, background bool) (overlay.ID, relay.Query, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx.Err() != nil {
		return "", relay.Query{}, ErrClosed
	}
	if s.opts.Overlap == OverlapReject && s.board.InFlight() > 0 {
		return "", relay.Query{}, ErrBusy
	}
	img, err := s.queryImageLocked()
	if err != nil {
		return "", relay.Query{}, fmt.Errorf("snapshot canvas: %w", err)
	}
	q := relay.Query{UserMessage: message, ImageBase64: img}
	if err := q.Validate(); err != nil {
		return "", relay.Query{}, err
	}
	at := s.anchorLocked()
	if anchor != nil {
		at = *anchor
	}
	id := s.board.Dispatch(at)
	if background {
		s.wg.Add(1)
	}
	s.log.Info("query dispatched",
		zap.String("record", string(id)),
		zap.String("message_preview", logging.Truncate(message, 40)),
		zap.Bool("image", img != ""),
		zap.Float64("x", at.X),
		zap.Float64("y", at.Y))
	return id, q, nil
}

// Ask places a record for message and streams the answer into it, calling fn
// with each token as well. It returns when the stream ends. The record always
// ends finished or failed unless it was cleared meanwhile.
func (s *Session) Ask(ctx context.Context, message string, anchor *canvas.Point, fn func(string) error) (overlay.ID, error) {
	id, q, err := s.dispatch(message, anchor, false)
	if err != nil {
		return "", err
	}
	return id, s.run(ctx, id, q, fn)
}

// Query is Ask without waiting: the answer streams in the background until
// it completes, QueryTimeout passes, ctx is cancelled or the session closes.
func (s *Session) Query(ctx context.Context, message string, anchor *canvas.Point) (overlay.ID, error) {
	id, q, err := s.dispatch(message, anchor, true)
	if err != nil {
		return "", err
	}
	ctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(s.ctx, cancel)
	expire := context.CancelFunc(func() {})
	if s.opts.QueryTimeout > 0 {
		ctx, expire = context.WithTimeout(ctx, s.opts.QueryTimeout)
	}
	go func() {
		defer s.wg.Done()
		defer stop()
		defer cancel()
		defer expire()
		if err := s.run(ctx, id, q, nil); err != nil {
			s.log.Warn("answer stream failed", zap.String("record", string(id)), zap.Error(err))
		}
	}()
	return id, nil
}

func (s *Session) run(ctx context.Context, id overlay.ID, q relay.Query, fn func(string) error) error {
	start := time.Now()
	ts, err := s.relay.Stream(ctx, q)
	if err != nil {
		s.fail(id, err)
		return fmt.Errorf("open answer stream: %w", err)
	}
	err = relay.Pipe(ctx, ts, func(tok string) error {
		if err := s.board.Append(id, tok); err != nil {
			return err
		}
		if fn != nil {
			return fn(tok)
		}
		return nil
	})
	switch {
	case errors.Is(err, overlay.ErrUnknownRecord), errors.Is(err, overlay.ErrClosed):
		s.log.Debug("record gone before answer finished", zap.String("record", string(id)))
		return nil
	case err != nil:
		s.fail(id, err)
		return err
	}
	if err := s.board.Finish(id); err != nil {
		s.log.Debug("record gone before answer finished", zap.String("record", string(id)))
		return nil
	}
	s.log.Info("answer complete", zap.String("record", string(id)), zap.Duration("duration", time.Since(start)))
	return nil
}

func (s *Session) fail(id overlay.ID, cause error) {
	if err := s.board.Fail(id, cause); err != nil {
		s.log.Debug("could not mark record failed", zap.String("record", string(id)), zap.Error(err))
	}
}

// Close cancels streaming answers and waits for them to settle.
func (s *Session) Close() {
	s.mu.Lock()
	s.cancel()
	s.mu.Unlock()
	s.wg.Wait()
}
