package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/example/sketchtutor/internal/stream"
)

// Remote answers through the /query endpoint of another tutor server, or any
// endpoint speaking the same event stream.
type Remote struct {
	endpoint string
	client   *http.Client
	log      *zap.Logger
}

// NewRemote targets the server at baseURL. A URL without a path gets /query.
func NewRemote(baseURL string, client *http.Client, log *zap.Logger) (*Remote, error) {
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return nil, fmt.Errorf("invalid relay URL: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("invalid relay URL %q: need http(s)://host", baseURL)
	}
	if strings.Trim(u.Path, "/") == "" {
		u.Path = "/query"
	}
	if client == nil {
		client = http.DefaultClient
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Remote{endpoint: u.String(), client: client, log: log}, nil
}

// Stream implements Streamer.
func (r *Remote) Stream(ctx context.Context, q Query) (TokenStream, error) {
	body, err := json.Marshal(q)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("relay request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, fmt.Errorf("relay %s: %s", resp.Status, remoteError(resp.Body))
	}
	r.log.Debug("relay stream opened", zap.String("endpoint", r.endpoint), zap.Bool("image", q.ImageBase64 != ""))
	return &remoteStream{TokenReader: stream.NewTokenReader(resp.Body), body: resp.Body}, nil
}

func remoteError(r io.Reader) string {
	data, _ := io.ReadAll(io.LimitReader(r, 4096))
	var p stream.Problem
	if err := json.Unmarshal(data, &p); err == nil && p.Error != "" {
		return p.Error
	}
	if msg := strings.TrimSpace(string(data)); msg != "" {
		return msg
	}
	return "no details"
}

type remoteStream struct {
	*stream.TokenReader
	body io.Closer
}

func (s *remoteStream) Close() error {
	return s.body.Close()
}
