// Package monitor is a terminal client that follows a live session over its
// websocket.
package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/example/sketchtutor/internal/server"
)

// Client talks to one tutor server.
type Client struct {
	BaseURL string
	HTTP    *http.Client
}

func (c *Client) httpClient() *http.Client {
	if c.HTTP != nil {
		return c.HTTP
	}
	return http.DefaultClient
}

func (c *Client) endpoint(path string) string {
	return strings.TrimRight(c.BaseURL, "/") + path
}

// CreateSession opens a blank session and returns its ID.
func (c *Client) CreateSession(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("/api/sessions"), nil)
	if err != nil {
		return "", err
	}
	resp, err := c.httpClient().Do(req)
	if err != nil {
		return "", fmt.Errorf("create session: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("create session: server returned %s", resp.Status)
	}
	var body struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("decode session: %w", err)
	}
	return body.ID, nil
}

// Conn is an open session socket. Send is safe for concurrent use.
type Conn struct {
	ws *websocket.Conn
	mu sync.Mutex
}

// Dial connects to the websocket of session id.
func (c *Client) Dial(ctx context.Context, id string) (*Conn, error) {
	u, err := url.Parse(c.endpoint("/api/sessions/" + url.PathEscape(id) + "/ws"))
	if err != nil {
		return nil, fmt.Errorf("parse server url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	ws, resp, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("connect to session %s: %s", id, resp.Status)
		}
		return nil, fmt.Errorf("connect to session %s: %w", id, err)
	}
	return &Conn{ws: ws}, nil
}

// Next blocks for the next server message.
func (c *Conn) Next() (server.ServerMessage, error) {
	var msg server.ServerMessage
	err := c.ws.ReadJSON(&msg)
	return msg, err
}

// Send writes msg to the server.
func (c *Conn) Send(msg server.ClientMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteJSON(msg)
}

// Close ends the connection.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	return c.ws.Close()
}
