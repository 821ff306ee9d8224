package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"

	"github.com/example/sketchtutor/internal/stream"
)

func TestRemoteStreamsServerEvents(t *testing.T) {
	var got Query
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/query" {
			http.NotFound(w, r)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		sw := stream.NewWriter(w)
		for _, tok := range []string{"Half ", `of \(x\)`} {
			_ = sw.Delta(tok)
		}
		_ = sw.Done(nil)
	}))
	t.Cleanup(srv.Close)

	rm, err := NewRemote(srv.URL, srv.Client(), nil)
	if err != nil {
		t.Fatalf("NewRemote: %v", err)
	}
	q := Query{UserMessage: "what is x/2?", ImageBase64: "data:image/png;base64,AAAA"}
	ts, err := rm.Stream(context.Background(), q)
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	var toks []string
	if err := Pipe(context.Background(), ts, func(s string) error {
		toks = append(toks, s)
		return nil
	}); err != nil {
		t.Fatalf("Pipe: %v", err)
	}
	if want := []string{"Half ", `of \(x\)`}; !reflect.DeepEqual(toks, want) {
		t.Fatalf("tokens = %q, want %q", toks, want)
	}
	if got != q {
		t.Fatalf("server saw %+v", got)
	}
}

func TestRemoteAcceptsAssistantEvents(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		for _, tok := range []string{"a", "b"} {
			fmt.Fprintf(w, "event: thread.message.delta\ndata: {\"delta\":{\"content\":[{\"text\":{\"value\":%q}}]}}\n\n", tok)
		}
		fmt.Fprint(w, "event: thread.run.completed\ndata: {}\n\n")
	}))
	t.Cleanup(srv.Close)

	rm, err := NewRemote(srv.URL+"/assistant/stream", srv.Client(), nil)
	if err != nil {
		t.Fatalf("NewRemote: %v", err)
	}
	ts, err := rm.Stream(context.Background(), Query{UserMessage: "hi"})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	var sb strings.Builder
	if err := Pipe(context.Background(), ts, func(s string) error {
		sb.WriteString(s)
		return nil
	}); err != nil || sb.String() != "ab" {
		t.Fatalf("got %q, %v", sb.String(), err)
	}
}

func TestRemoteErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/fails" {
			w.Header().Set("Content-Type", "text/event-stream")
			fmt.Fprint(w, "event: delta\ndata: {\"text\":\"par\"}\n\nevent: error\ndata: {\"error\":\"quota\"}\n\n")
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadGateway)
		fmt.Fprint(w, `{"error":"upstream: no key"}`)
	}))
	t.Cleanup(srv.Close)

	rm, _ := NewRemote(srv.URL, srv.Client(), nil)
	if _, err := rm.Stream(context.Background(), Query{UserMessage: "hi"}); err == nil || !strings.Contains(err.Error(), "upstream: no key") {
		t.Fatalf("expected the server's error, got %v", err)
	}

	rm, _ = NewRemote(srv.URL+"/fails", srv.Client(), nil)
	ts, err := rm.Stream(context.Background(), Query{UserMessage: "hi"})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	err = Pipe(context.Background(), ts, func(string) error { return nil })
	if !errors.Is(err, stream.ErrRemote) {
		t.Fatalf("expected ErrRemote, got %v", err)
	}
}

func TestNewRemoteValidatesURL(t *testing.T) {
	for _, in := range []string{"", "localhost:8080", "ftp://host/x", "http://"} {
		if _, err := NewRemote(in, nil, nil); err == nil {
			t.Errorf("NewRemote(%q) should fail", in)
		}
	}
	rm, err := NewRemote("http://tutor.local:8080/", nil, nil)
	if err != nil || rm.endpoint != "http://tutor.local:8080/query" {
		t.Fatalf("endpoint = %v, %v", rm, err)
	}
}
