package server

import (
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"io"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/example/sketchtutor/internal/canvas"
	"github.com/example/sketchtutor/internal/export"
	"github.com/example/sketchtutor/internal/logging"
	"github.com/example/sketchtutor/internal/overlay"
	"github.com/example/sketchtutor/internal/relay"
	"github.com/example/sketchtutor/internal/render"
	"github.com/example/sketchtutor/internal/session"
	"github.com/example/sketchtutor/internal/stream"
)

// maxBodyBytes bounds JSON request bodies. A query carries a base64 image.
const maxBodyBytes = 16 << 20

type sessionHandler func(w http.ResponseWriter, r *http.Request, sess *session.Session)

func (s *Server) withSession(h sessionHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, err := s.sessions.Get(r.PathValue("id"))
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		h(w, r, sess)
	}
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decode request body: %w", err)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "sessions": s.sessions.Len()})
}

// handleQuery relays one stateless query: the browser sends its own snapshot
// and draws the answer itself.
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var q relay.Query
	if err := decodeBody(r, &q); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := q.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	log := s.log.With(zap.String("remote", r.RemoteAddr))
	log.Info("relay query",
		zap.String("message_preview", logging.Truncate(q.UserMessage, 40)),
		zap.Bool("image", q.ImageBase64 != ""))

	ts, err := s.relay.Stream(r.Context(), q)
	if err != nil {
		log.Error("open upstream stream", zap.Error(err))
		writeError(w, http.StatusBadGateway, fmt.Errorf("upstream: %w", err))
		return
	}
	sw := stream.NewWriter(w)
	tokens := 0
	err = relay.Pipe(r.Context(), ts, func(tok string) error {
		tokens++
		return sw.Delta(tok)
	})
	if err != nil {
		log.Warn("relay stream ended early", zap.Int("tokens", tokens), zap.Error(err))
		_ = sw.Fail(err)
		return
	}
	_ = sw.Done(nil)
	log.Debug("relay stream complete", zap.Int("tokens", tokens))
}

type sessionInfo struct {
	ID    string        `json:"id"`
	State session.State `json:"state"`
}

func (s *Server) handleListSessions(w http.ResponseWriter, _ *http.Request) {
	list := s.sessions.List()
	out := make([]sessionInfo, 0, len(list))
	for _, sess := range list {
		out = append(out, sessionInfo{ID: sess.ID(), State: sess.State()})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateSession(w http.ResponseWriter, _ *http.Request) {
	sess := s.sessions.Create()
	w.Header().Set("Location", "/api/sessions/"+sess.ID())
	writeJSON(w, http.StatusCreated, map[string]string{"id": sess.ID()})
}

func (s *Server) handleSessionState(w http.ResponseWriter, _ *http.Request, sess *session.Session) {
	writeJSON(w, http.StatusOK, sess.State())
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.Delete(r.PathValue("id")); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetStrokes(w http.ResponseWriter, _ *http.Request, sess *session.Session) {
	writeJSON(w, http.StatusOK, sess.Strokes())
}

func (s *Server) handlePutStrokes(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	var strokes []canvas.Stroke
	if err := decodeBody(r, &strokes); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := sess.Load(strokes); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, sess.State())
}

func (s *Server) handleOverlays(w http.ResponseWriter, _ *http.Request, sess *session.Session) {
	writeJSON(w, http.StatusOK, sess.Overlays())
}

func queryFlag(r *http.Request, name string) bool {
	v, err := strconv.ParseBool(r.URL.Query().Get(name))
	return err == nil && v
}

// handleImage renders the canvas, optionally cropped to the ink, inverted
// and with answer cards drawn over it.
func (s *Server) handleImage(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	format, err := canvas.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	img, err := s.compose(sess.Frame(queryFlag(r, "crop")), queryFlag(r, "overlays"), queryFlag(r, "invert"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	data, err := canvas.EncodeBytes(img, format, s.opts.JPEGQuality)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Content-Type", format.MIME())
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	_, _ = w.Write(data)
}

func (s *Server) compose(f session.Frame, overlays, invert bool) (*image.RGBA, error) {
	var (
		out *image.RGBA
		err error
	)
	if overlays {
		out, err = render.Compose(f.Image, f.Origin, f.Overlays, s.opts.Theme, s.opts.Cards)
		if err != nil {
			return nil, fmt.Errorf("draw answer cards: %w", err)
		}
	} else {
		out = canvas.Flatten(f.Image, color.White)
	}
	if invert {
		out = canvas.Invert(out)
	}
	return out, nil
}

func (s *Server) handleExportPDF(w http.ResponseWriter, _ *http.Request, sess *session.Session) {
	f := sess.Frame(false)
	doc := export.Document{
		Title:    "sketchtutor " + sess.ID(),
		Width:    float64(f.Bounds.Dx()),
		Strokes:  f.Strokes,
		Overlays: f.Overlays,
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "sketch-"+sess.ID()+".pdf"))
	if err := export.WritePDF(w, doc, s.opts.PDF); err != nil {
		s.log.Error("export pdf", zap.String("session", sess.ID()), zap.Error(err))
	}
}

type queryRequest struct {
	Message string        `json:"message"`
	Anchor  *canvas.Point `json:"anchor,omitempty"`
}

type queryDone struct {
	ID   overlay.ID   `json:"id"`
	View overlay.View `json:"view"`
}

// handleSessionQuery snapshots the session canvas, places an answer record
// and streams the answer both into the record and to the caller.
func (s *Server) handleSessionQuery(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	var req queryRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	var sw *stream.Writer
	id, err := sess.Ask(r.Context(), req.Message, req.Anchor, func(tok string) error {
		if sw == nil {
			sw = stream.NewWriter(w)
		}
		return sw.Delta(tok)
	})
	if sw == nil {
		if err != nil {
			status := statusFor(err)
			if id != "" {
				status = http.StatusBadGateway
			}
			writeError(w, status, err)
			return
		}
		sw = stream.NewWriter(w)
	}
	if err != nil {
		_ = sw.Fail(err)
		return
	}
	view, _ := sess.View(id)
	_ = sw.Done(queryDone{ID: id, View: view})
}
