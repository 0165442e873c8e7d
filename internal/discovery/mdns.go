// Package discovery announces the chat server on the local network over mDNS
// and lets clients find it without typing an address.
package discovery

import (
	"context"
	"fmt"
	"time"

	"github.com/grandcat/zeroconf"

	"github.com/Douniahlt/Chat-securise/internal/logger"
)

const (
	ServiceType = "_minichat._tcp"
	Domain      = "local."
)

// Advertiser registers the server as a zeroconf service until stopped.
type Advertiser struct {
	log    *logger.Logger
	server *zeroconf.Server
}

// Advertise announces instance on port over mDNS. Call Stop when the server
// shuts down.
func Advertise(instance string, port int, log *logger.Logger) (*Advertiser, error) {
	srv, err := zeroconf.Register(instance, ServiceType, Domain, port, []string{"txtv=1"}, nil)
	if err != nil {
		return nil, fmt.Errorf("register mdns service: %w", err)
	}
	a := &Advertiser{log: log.WithComponent("mdns"), server: srv}
	a.log.Info("advertising service", "instance", instance, "type", ServiceType, "port", port)
	return a, nil
}

func (a *Advertiser) Stop() {
	a.server.Shutdown()
	a.log.Info("stopped advertising")
}

// Endpoint is a discovered server address.
type Endpoint struct {
	Host string
	Port int
}

// Lookup browses for the first advertised server and returns its endpoint.
// It fails when timeout elapses without a usable answer.
func Lookup(ctx context.Context, timeout time.Duration, log *logger.Logger) (*Endpoint, error) {
	l := log.WithComponent("mdns")
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("create mdns resolver: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry)
	if err := resolver.Browse(ctx, ServiceType, Domain, entries); err != nil {
		return nil, fmt.Errorf("browse mdns: %w", err)
	}

	for {
		select {
		case entry, ok := <-entries:
			if !ok {
				return nil, fmt.Errorf("no %s service found within %s", ServiceType, timeout)
			}
			if entry == nil {
				continue
			}
			if len(entry.AddrIPv4) > 0 {
				ep := &Endpoint{Host: entry.AddrIPv4[0].String(), Port: entry.Port}
				l.Info("found server", "instance", entry.Instance, "host", ep.Host, "port", ep.Port)
				return ep, nil
			}
			if len(entry.AddrIPv6) > 0 {
				ep := &Endpoint{Host: entry.AddrIPv6[0].String(), Port: entry.Port}
				l.Info("found server", "instance", entry.Instance, "host", ep.Host, "port", ep.Port)
				return ep, nil
			}
		case <-ctx.Done():
			return nil, fmt.Errorf("no %s service found within %s", ServiceType, timeout)
		}
	}
}
