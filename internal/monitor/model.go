package monitor

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/example/sketchtutor/internal/canvas"
	"github.com/example/sketchtutor/internal/overlay"
	"github.com/example/sketchtutor/internal/server"
	"github.com/example/sketchtutor/internal/session"
)

type serverMsg struct{ msg server.ServerMessage }
type errMsg struct{ err error }

type sender interface {
	Send(server.ClientMessage) error
}

func waitForMessage(ch <-chan server.ServerMessage, errc <-chan error) tea.Cmd {
	return func() tea.Msg {
		select {
		case msg, ok := <-ch:
			if !ok {
				return errMsg{fmt.Errorf("connection closed")}
			}
			return serverMsg{msg: msg}
		case err := <-errc:
			return errMsg{err: err}
		}
	}
}

var (
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63"))
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	mathStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	cardStyle    = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).PaddingLeft(1).PaddingRight(1)
	pendingColor = lipgloss.Color("244")
	doneColor    = lipgloss.Color("70")
	failedColor  = lipgloss.Color("196")
)

type model struct {
	sessionID string
	conn      sender
	messages  <-chan server.ServerMessage
	errc      <-chan error

	state    *session.State
	order    []overlay.ID
	overlays map[overlay.ID]overlay.View
	status   string
	err      error

	vp     viewport.Model
	input  textinput.Model
	asking bool
	width  int
	height int
}

func newModel(id string, conn sender, messages <-chan server.ServerMessage, errc <-chan error) *model {
	ti := textinput.New()
	ti.Prompt = "ask> "
	ti.Placeholder = "question about the canvas (Enter to send, Esc to cancel)"
	return &model{
		sessionID: id,
		conn:      conn,
		messages:  messages,
		errc:      errc,
		overlays:  make(map[overlay.ID]overlay.View),
		vp:        viewport.New(80, 20),
		input:     ti,
	}
}

func (m *model) Init() tea.Cmd {
	return waitForMessage(m.messages, m.errc)
}

func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.vp.Width = msg.Width
		m.vp.Height = max(3, msg.Height-5)
		m.input.Width = max(10, msg.Width-len(m.input.Prompt)-1)
		m.refresh()
		return m, nil
	case serverMsg:
		m.apply(msg.msg)
		m.refresh()
		return m, waitForMessage(m.messages, m.errc)
	case errMsg:
		m.err = msg.err
		return m, tea.Quit
	case tea.KeyMsg:
		if m.asking {
			return m.updateInput(msg)
		}
		return m.updateKeys(msg)
	}
	return m, nil
}

func (m *model) updateKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "a", "?":
		m.asking = true
		return m, m.input.Focus()
	case "u":
		m.send(server.ClientMessage{Type: server.MsgUndo})
	case "c":
		m.send(server.ClientMessage{Type: server.MsgClear})
	case "w":
		m.send(server.ClientMessage{Type: server.MsgWidth, Width: json.RawMessage(strconv.Quote(m.nextWidth()))})
	case "up", "k":
		m.vp.LineUp(1)
	case "down", "j":
		m.vp.LineDown(1)
	}
	return m, nil
}

func (m *model) updateInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.asking = false
		m.input.Blur()
		m.input.SetValue("")
		return m, nil
	case tea.KeyEnter:
		question := strings.TrimSpace(m.input.Value())
		m.asking = false
		m.input.Blur()
		m.input.SetValue("")
		if question != "" {
			m.send(server.ClientMessage{Type: server.MsgQuery, Message: question})
		}
		return m, nil
	case tea.KeyCtrlC:
		return m, tea.Quit
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// nextWidth is the preset after the current width, wrapping around. Widths
// off the preset list start again at the first one.
func (m *model) nextWidth() string {
	presets := canvas.WidthPresets()
	next := 0
	if m.state != nil {
		for i, p := range presets {
			if p.Width == m.state.Width {
				next = (i + 1) % len(presets)
				break
			}
		}
	}
	return presets[next].Name
}

func (m *model) send(msg server.ClientMessage) {
	if err := m.conn.Send(msg); err != nil {
		m.status = "send failed: " + err.Error()
		return
	}
	m.status = "sent " + msg.Type
}

// apply folds one server message into the local mirror of the session.
func (m *model) apply(msg server.ServerMessage) {
	switch msg.Type {
	case server.MsgState:
		m.state = msg.State
	case server.MsgOverlays:
		m.order = m.order[:0]
		m.overlays = make(map[overlay.ID]overlay.View, len(msg.Overlays))
		for _, v := range msg.Overlays {
			m.order = append(m.order, v.ID)
			m.overlays[v.ID] = v
		}
	case server.MsgOverlay:
		if msg.Overlay != nil {
			m.applyEvent(*msg.Overlay)
		}
	case server.MsgQuery:
		m.status = "query " + string(msg.ID) + " dispatched"
	case server.MsgError:
		m.status = "error: " + msg.Error
	}
}

func (m *model) applyEvent(ev overlay.Event) {
	switch ev.Kind {
	case overlay.EventReset:
		m.order = nil
		m.overlays = make(map[overlay.ID]overlay.View)
	case overlay.EventDispatch:
		if ev.Replaced != "" {
			delete(m.overlays, ev.Replaced)
			for i, id := range m.order {
				if id == ev.Replaced {
					m.order = append(m.order[:i], m.order[i+1:]...)
					break
				}
			}
		}
		m.order = append(m.order, ev.View.ID)
		m.overlays[ev.View.ID] = ev.View
	case overlay.EventUpdate:
		if _, ok := m.overlays[ev.View.ID]; !ok {
			m.order = append(m.order, ev.View.ID)
		}
		m.overlays[ev.View.ID] = ev.View
	}
}

func (m *model) refresh() {
	m.vp.SetContent(m.renderOverlays())
	m.vp.GotoBottom()
}

func (m *model) renderOverlays() string {
	if len(m.order) == 0 {
		return mutedStyle.Render("No answers yet. Press a to ask.")
	}
	width := max(20, m.vp.Width-4)
	var out strings.Builder
	for _, id := range m.order {
		v := m.overlays[id]
		border := pendingColor
		var body string
		switch {
		case v.State == overlay.Failed:
			border = failedColor
			body = v.Text
			if body != "" {
				body += "\n"
			}
			body += errorStyle.Render("Error: " + v.Error)
		case v.Pending:
			body = mutedStyle.Render("Thinking...")
		default:
			if v.State == overlay.Done {
				border = doneColor
			}
			body = renderSegments(v.Segments)
		}
		title := mutedStyle.Render(fmt.Sprintf("at (%.0f, %.0f)", v.Position.X, v.Position.Y))
		out.WriteString(cardStyle.BorderForeground(border).Width(width).Render(title + "\n" + body))
		out.WriteString("\n")
	}
	return out.String()
}

func renderSegments(segs []overlay.Segment) string {
	var sb strings.Builder
	for _, seg := range segs {
		switch seg.Kind {
		case overlay.InlineMath:
			sb.WriteString(mathStyle.Render(seg.Text))
		case overlay.BlockMath:
			sb.WriteString("\n  " + mathStyle.Render(seg.Text) + "\n")
		default:
			sb.WriteString(seg.Text)
		}
	}
	return sb.String()
}

func (m *model) header() string {
	line := headerStyle.Render("session " + m.sessionID)
	if st := m.state; st != nil {
		line += mutedStyle.Render(fmt.Sprintf("  strokes %d  tool %s  width %.0f  colour %s  offset %.0f/%.0f  streaming %d",
			st.Strokes, st.Tool, st.Width, st.Color, st.Viewport.Offset, st.Viewport.CanvasHeight, st.InFlight))
	}
	return line
}

func (m *model) View() string {
	var b strings.Builder
	b.WriteString(m.header())
	b.WriteString("\n")
	b.WriteString(m.vp.View())
	b.WriteString("\n")
	if m.asking {
		b.WriteString(m.input.View())
	} else {
		b.WriteString(mutedStyle.Render("a ask  u undo  c clear  w width  ↑/↓ scroll  q quit"))
	}
	if m.status != "" {
		b.WriteString("\n" + mutedStyle.Render(m.status))
	}
	return b.String()
}
