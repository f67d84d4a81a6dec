// Package dns resolves discovered device addresses to hostnames with a
// reverse (PTR) query sent straight to a DNS server. Many NVRs and cameras
// register their DHCP hostname ("IPC-HFW2431", "DS-2CD2043") with the local
// resolver, which helps tell devices apart in a report.
package dns

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	mdns "github.com/miekg/dns"
)

// DefaultTimeout is the default timeout for DNS lookups.
const DefaultTimeout = 2 * time.Second

// ResolvConf is read for a server when Resolver.Server is empty.
var ResolvConf = "/etc/resolv.conf"

// ErrNoServer is returned when no DNS server is configured or found.
var ErrNoServer = errors.New("no DNS server available")

// DebugLogger is a callback for debug logging.
// Set this to receive debug messages from DNS operations.
var DebugLogger func(format string, args ...interface{})

func debugLog(format string, args ...interface{}) {
	if DebugLogger != nil {
		DebugLogger(format, args...)
	}
}

// Result contains the result of a reverse DNS lookup.
type Result struct {
	IP       string
	Hostname string   // Primary hostname (first result)
	All      []string // All returned hostnames
	Error    error
}

// Resolver performs reverse DNS lookups.
type Resolver struct {
	Timeout time.Duration
	// Server is "host" or "host:port"; empty means the first nameserver in ResolvConf.
	Server string
}

// NewResolver creates a new DNS resolver with defaults.
func NewResolver() *Resolver {
	return &Resolver{Timeout: DefaultTimeout}
}

// LookupAddr performs a reverse DNS (PTR) lookup for the given IP address.
func (r *Resolver) LookupAddr(ctx context.Context, ip string) (*Result, error) {
	res := &Result{IP: ip}

	arpa, err := mdns.ReverseAddr(ip)
	if err != nil {
		res.Error = err
		return res, err
	}
	server, err := r.server()
	if err != nil {
		res.Error = err
		return res, err
	}

	msg := new(mdns.Msg)
	msg.SetQuestion(arpa, mdns.TypePTR)

	client := &mdns.Client{Timeout: r.Timeout}
	in, _, err := client.ExchangeContext(ctx, msg, server)
	if err != nil {
		res.Error = err
		debugLog("%s: lookup via %s failed: %v", ip, server, err)
		return res, err
	}
	if in.Rcode != mdns.RcodeSuccess {
		res.Error = fmt.Errorf("PTR %s: %s", arpa, mdns.RcodeToString[in.Rcode])
		debugLog("%s: %v", ip, res.Error)
		return res, res.Error
	}

	for _, rr := range in.Answer {
		if ptr, ok := rr.(*mdns.PTR); ok {
			res.All = append(res.All, strings.TrimSuffix(ptr.Ptr, "."))
		}
	}
	if len(res.All) > 0 {
		res.Hostname = res.All[0]
		debugLog("%s -> %s", ip, res.Hostname)
	}
	return res, nil
}

func (r *Resolver) server() (string, error) {
	if r.Server != "" {
		if _, _, err := net.SplitHostPort(r.Server); err != nil {
			return net.JoinHostPort(r.Server, "53"), nil
		}
		return r.Server, nil
	}
	cfg, err := mdns.ClientConfigFromFile(ResolvConf)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNoServer, err)
	}
	if len(cfg.Servers) == 0 {
		return "", ErrNoServer
	}
	return net.JoinHostPort(cfg.Servers[0], cfg.Port), nil
}
