package discovery

import (
	"net"
	"testing"

	"github.com/hashicorp/mdns"
)

func TestFromEntry(t *testing.T) {
	e := &mdns.ServiceEntry{
		Name:       "Study Room._sketchtutor._tcp.local.",
		Host:       "study.local.",
		AddrV4:     net.IPv4(192, 168, 1, 20),
		Port:       8080,
		InfoFields: []string{"sketchtutor"},
	}
	s, ok := fromEntry(e)
	if !ok {
		t.Fatalf("entry rejected")
	}
	if s.Name != "Study Room" || s.Host != "study.local" || s.Addr != "192.168.1.20:8080" {
		t.Fatalf("unexpected server %+v", s)
	}
	if s.URL() != "http://192.168.1.20:8080" {
		t.Fatalf("URL = %q", s.URL())
	}
}

func TestFromEntryRejectsIncomplete(t *testing.T) {
	for _, e := range []*mdns.ServiceEntry{
		nil,
		{Name: "x", AddrV4: net.IPv4(10, 0, 0, 1)},
		{Name: "x", Port: 80},
	} {
		if _, ok := fromEntry(e); ok {
			t.Fatalf("expected %+v to be rejected", e)
		}
	}
}

func TestFromEntryFallsBackToAddr(t *testing.T) {
	s, ok := fromEntry(&mdns.ServiceEntry{Name: "a", Addr: net.ParseIP("10.0.0.2"), Port: 9000})
	if !ok || s.Addr != "10.0.0.2:9000" {
		t.Fatalf("unexpected %+v %v", s, ok)
	}
}
