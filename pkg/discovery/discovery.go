// Package discovery advertises a broker on the local network over mDNS and
// lets clients find one without knowing its address.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"

	"github.com/grandcat/zeroconf"
)

const (
	Service = "_smk._tcp"
	Domain  = "local."
)

// ErrNotFound is returned by Lookup when no broker answered in time.
var ErrNotFound = errors.New("discovery: no broker found")

// Advertisement is a running mDNS registration.
type Advertisement struct {
	srv *zeroconf.Server
	log *slog.Logger
}

// Advertise registers the broker listening on port. logger may be nil.
func Advertise(port int, logger *slog.Logger) (*Advertisement, error) {
	if logger == nil {
		logger = slog.Default()
	}
	name := InstanceName(hostname())
	srv, err := zeroconf.Register(name, Service, Domain, port, []string{"txtv=0", "proto=line"}, nil)
	if err != nil {
		return nil, fmt.Errorf("register mDNS service: %w", err)
	}
	logger.Info("mDNS service registered", "instance", name, "service", Service, "port", port)
	return &Advertisement{srv: srv, log: logger}, nil
}

// Close withdraws the registration.
func (a *Advertisement) Close() {
	a.srv.Shutdown()
	a.log.Info("mDNS service withdrawn")
}

// Lookup browses for a broker until ctx ends and returns the host:port of
// the first one that resolves to an address.
func Lookup(ctx context.Context, logger *slog.Logger) (string, error) {
	if logger == nil {
		logger = slog.Default()
	}
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return "", fmt.Errorf("init mDNS resolver: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry)
	found := make(chan string, 1)
	go func() {
		for e := range entries {
			addr, ok := EntryAddr(e)
			if !ok {
				continue
			}
			logger.Info("mDNS discovered broker", "instance", e.Instance, "addr", addr)
			select {
			case found <- addr:
			default:
			}
			cancel()
		}
	}()

	if err := resolver.Browse(ctx, Service, Domain, entries); err != nil {
		return "", fmt.Errorf("browse mDNS: %w", err)
	}
	<-ctx.Done()

	select {
	case addr := <-found:
		return addr, nil
	default:
		return "", ErrNotFound
	}
}

// EntryAddr picks a dialable address from a resolved entry, preferring
// IPv4.
func EntryAddr(e *zeroconf.ServiceEntry) (string, bool) {
	if e == nil || e.Port <= 0 {
		return "", false
	}
	var ip net.IP
	switch {
	case len(e.AddrIPv4) > 0:
		ip = e.AddrIPv4[0]
	case len(e.AddrIPv6) > 0:
		ip = e.AddrIPv6[0]
	default:
		return "", false
	}
	return net.JoinHostPort(ip.String(), strconv.Itoa(e.Port)), true
}

// InstanceName is the advertised instance for a host.
func InstanceName(host string) string {
	if host == "" {
		host = "unknown"
	}
	return "smk-" + host
}

func hostname() string {
	h, _ := os.Hostname()
	return h
}
