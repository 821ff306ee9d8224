package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/example/sketchtutor/internal/canvas"
	"github.com/example/sketchtutor/internal/overlay"
	"github.com/example/sketchtutor/internal/session"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxMessageSize = 16 << 20
	sendBuffer     = 256
)

// Message types on the session socket.
const (
	MsgPointer  = "pointer"
	MsgTool     = "tool"
	MsgWidth    = "width"
	MsgColor    = "color"
	MsgUndo     = "undo"
	MsgClear    = "clear"
	MsgQuery    = "query"
	MsgScroll   = "scroll"
	MsgThumb    = "thumb"
	MsgResize   = "resize"
	MsgState    = "state"
	MsgOverlay  = "overlay"
	MsgOverlays = "overlays"
	MsgError    = "error"
)

var errUnknownMessage = errors.New("unknown message type")

// ClientMessage is what the browser sends over the socket. Only the fields
// for Type are read.
type ClientMessage struct {
	Type    string          `json:"type"`
	Kind    string          `json:"kind,omitempty"`
	X       float64         `json:"x,omitempty"`
	Y       float64         `json:"y,omitempty"`
	Tool    string          `json:"tool,omitempty"`
	Width   json.RawMessage `json:"width,omitempty"`
	Color   string          `json:"color,omitempty"`
	Message string          `json:"message,omitempty"`
	Anchor  *canvas.Point   `json:"anchor,omitempty"`
	DY      *float64        `json:"dy,omitempty"`
	Ratio   *float64        `json:"ratio,omitempty"`
	Height  float64         `json:"height,omitempty"`
	Phase   string          `json:"phase,omitempty"`
}

// ServerMessage is pushed to every socket of a session.
type ServerMessage struct {
	Type     string         `json:"type"`
	Overlay  *overlay.Event `json:"overlay,omitempty"`
	Overlays []overlay.View `json:"overlays,omitempty"`
	State    *session.State `json:"state,omitempty"`
	ID       overlay.ID     `json:"id,omitempty"`
	Error    string         `json:"error,omitempty"`
}

// client is one websocket attached to a session.
type client struct {
	conn *websocket.Conn
	sess *session.Session
	log  *zap.Logger
	send chan ServerMessage

	closeOnce sync.Once
	done      chan struct{}
}

func (c *client) close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// push queues msg without blocking. A client that cannot keep up is dropped.
func (c *client) push(msg ServerMessage) {
	select {
	case <-c.done:
	case c.send <- msg:
	default:
		c.log.Warn("websocket client too slow, disconnecting")
		c.close()
	}
}

func (c *client) pushState() {
	st := c.sess.State()
	c.push(ServerMessage{Type: MsgState, State: &st})
}

func (c *client) pushError(err error) {
	c.push(ServerMessage{Type: MsgError, Error: err.Error()})
}

func (s *Server) handleSocket(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade", zap.Error(err))
		return
	}
	c := &client{
		conn: conn,
		sess: sess,
		log:  s.log.With(zap.String("session", sess.ID()), zap.String("remote", r.RemoteAddr)),
		send: make(chan ServerMessage, sendBuffer),
		done: make(chan struct{}),
	}
	c.log.Info("websocket connected")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	unsubscribe := sess.Subscribe(func(ev overlay.Event) {
		c.push(ServerMessage{Type: MsgOverlay, Overlay: &ev})
	})
	defer unsubscribe()

	c.pushState()
	c.push(ServerMessage{Type: MsgOverlays, Overlays: sess.Overlays()})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.writeLoop()
	}()
	c.readLoop(ctx)
	c.close()
	wg.Wait()
	c.log.Info("websocket disconnected")
}

// writeLoop owns all writes to the socket. Closing the connection on exit
// unblocks readLoop.
func (c *client) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	defer c.conn.Close()
	for {
		select {
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(msg); err != nil {
				c.log.Debug("websocket write", zap.Error(err))
				c.close()
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.close()
				return
			}
		}
	}
}

// readLoop applies inbound messages until the socket closes. Queries started
// here are cancelled with ctx when the socket goes away.
func (c *client) readLoop(ctx context.Context) {
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		var msg ClientMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.Debug("websocket read", zap.Error(err))
			}
			return
		}
		select {
		case <-c.done:
			return
		default:
		}
		if err := c.apply(ctx, msg); err != nil {
			c.pushError(err)
		}
	}
}

// apply performs one client message. Pointer moves produce no reply; every
// other change is answered with the new state.
func (c *client) apply(ctx context.Context, msg ClientMessage) error {
	s := c.sess
	switch strings.ToLower(msg.Type) {
	case MsgPointer:
		if err := s.Pointer(canvas.PointerEvent{Kind: msg.Kind, X: msg.X, Y: msg.Y}); err != nil {
			return err
		}
		if strings.Contains(strings.ToLower(msg.Kind), "move") {
			return nil
		}
	case MsgTool:
		t, err := canvas.ParseTool(msg.Tool)
		if err != nil {
			return err
		}
		s.SetTool(t)
	case MsgWidth:
		w, err := parseWidth(msg.Width)
		if err != nil {
			return err
		}
		if err := s.SetWidth(w); err != nil {
			return err
		}
	case MsgColor:
		col, err := canvas.ParseColor(msg.Color)
		if err != nil {
			return err
		}
		s.SetColor(col)
	case MsgUndo:
		s.Undo()
	case MsgClear:
		s.Clear()
	case MsgQuery:
		id, err := s.Query(ctx, msg.Message, msg.Anchor)
		if err != nil {
			return err
		}
		c.push(ServerMessage{Type: MsgQuery, ID: id})
		return nil
	case MsgScroll:
		switch {
		case msg.Ratio != nil:
			s.JumpTo(*msg.Ratio)
		case msg.DY != nil:
			s.Scroll(*msg.DY)
		default:
			return fmt.Errorf("scroll needs dy or ratio")
		}
	case MsgThumb:
		if msg.Ratio == nil && msg.Phase != "up" {
			return fmt.Errorf("thumb %s needs ratio", msg.Phase)
		}
		switch msg.Phase {
		case "down":
			s.ThumbDown(*msg.Ratio)
		case "move":
			s.ThumbMove(*msg.Ratio)
		case "up":
			s.ThumbUp()
		default:
			return fmt.Errorf("unknown thumb phase %q", msg.Phase)
		}
	case MsgResize:
		s.ResizeView(msg.Height)
	case MsgState:
	default:
		return fmt.Errorf("%w %q", errUnknownMessage, msg.Type)
	}
	c.pushState()
	return nil
}

// parseWidth accepts a number or a preset name.
func parseWidth(raw json.RawMessage) (float64, error) {
	if len(raw) == 0 {
		return 0, fmt.Errorf("width is required")
	}
	var name string
	if err := json.Unmarshal(raw, &name); err == nil {
		return canvas.ParseWidth(name)
	}
	var w float64
	if err := json.Unmarshal(raw, &w); err != nil {
		return 0, fmt.Errorf("invalid width %s", raw)
	}
	return w, nil
}
