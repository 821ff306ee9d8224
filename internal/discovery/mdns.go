// Package discovery advertises tutor servers on the local network and finds
// them again over mDNS.
package discovery

import (
	"context"
	"fmt"
	"net"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/hashicorp/mdns"
)

// ServiceType is the DNS-SD service tutor servers register under.
const ServiceType = "_sketchtutor._tcp"

// Server is one advertised tutor.
type Server struct {
	Name string
	Host string
	Addr string
	Info []string
}

// URL returns the http base URL of s.
func (s Server) URL() string {
	return "http://" + s.Addr
}

// Advertiser announces a running server until Shutdown.
type Advertiser struct {
	server *mdns.Server
}

// Advertise registers port under name. An empty name uses the hostname.
func Advertise(name string, port int, info ...string) (*Advertiser, error) {
	if name == "" {
		host, err := os.Hostname()
		if err != nil {
			return nil, fmt.Errorf("could not get hostname: %w", err)
		}
		name = host
	}
	if len(info) == 0 {
		info = []string{"sketchtutor"}
	}
	service, err := mdns.NewMDNSService(name, ServiceType, "", "", port, nil, info)
	if err != nil {
		return nil, fmt.Errorf("failed to create mDNS service: %w", err)
	}
	server, err := mdns.NewServer(&mdns.Config{Zone: service})
	if err != nil {
		return nil, fmt.Errorf("failed to start mDNS server: %w", err)
	}
	return &Advertiser{server: server}, nil
}

// Shutdown stops answering queries.
func (a *Advertiser) Shutdown() error {
	return a.server.Shutdown()
}

// Browse queries the network for timeout and returns every tutor that
// answered, sorted by name.
func Browse(ctx context.Context, timeout time.Duration) ([]Server, error) {
	entries := make(chan *mdns.ServiceEntry, 16)
	found := map[string]Server{}
	done := make(chan struct{})
	go func() {
		defer close(done)
		for e := range entries {
			if s, ok := fromEntry(e); ok {
				found[s.Addr] = s
			}
		}
	}()

	params := mdns.DefaultParams(ServiceType)
	params.Entries = entries
	params.Timeout = timeout
	params.DisableIPv6 = true
	errc := make(chan error, 1)
	go func() { errc <- mdns.Query(params) }()

	var err error
	select {
	case err = <-errc:
	case <-ctx.Done():
		err = ctx.Err()
		// Query stops on its own once timeout passes.
		go func() { <-errc; close(entries) }()
		return nil, err
	}
	close(entries)
	<-done
	if err != nil {
		return nil, fmt.Errorf("mdns query: %w", err)
	}
	out := make([]Server, 0, len(found))
	for _, s := range found {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func fromEntry(e *mdns.ServiceEntry) (Server, bool) {
	if e == nil || e.Port == 0 {
		return Server{}, false
	}
	ip := e.AddrV4
	if ip == nil {
		ip = e.Addr
	}
	if ip == nil {
		return Server{}, false
	}
	name := strings.TrimSuffix(e.Name, "."+ServiceType+".local.")
	return Server{
		Name: name,
		Host: strings.TrimSuffix(e.Host, "."),
		Addr: net.JoinHostPort(ip.String(), fmt.Sprint(e.Port)),
		Info: e.InfoFields,
	}, true
}
