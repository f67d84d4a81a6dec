// Package probe implements the per-host checks of a scan: a liveness probe
// (TCP connect with ICMP and optional ARP fallbacks) and a TCP connect probe
// for every catalog port.
//
// Probes never return errors to the caller. Each outcome is a value that
// records how the host or port answered, so a refused port and a probe that
// could not run are told apart even though both end up "not found".
package probe

import (
	"context"
	"errors"
	"net"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/marcuoli/go-camscan/pkg/camscan/arp"
	"github.com/marcuoli/go-camscan/pkg/camscan/catalog"
)

const (
	// DefaultLivenessPort is dialed first to decide whether a host is up.
	DefaultLivenessPort = 80
	// DefaultLivenessTimeout bounds the liveness TCP dial.
	DefaultLivenessTimeout = 500 * time.Millisecond
	// DefaultPingTimeout bounds the ICMP fallback.
	DefaultPingTimeout = 1 * time.Second
	// DefaultTimeout bounds each catalog port dial.
	DefaultTimeout = 1 * time.Second
)

// DebugLogger is a callback for debug logging.
// Set this to receive debug messages from probe operations.
var DebugLogger func(format string, args ...interface{})

func debugLog(format string, args ...interface{}) {
	if DebugLogger != nil {
		DebugLogger(format, args...)
	}
}

// Dialer opens TCP connections. *net.Dialer satisfies it.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// DialerFunc adapts a function to Dialer.
type DialerFunc func(ctx context.Context, network, address string) (net.Conn, error)

// DialContext calls f.
func (f DialerFunc) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	return f(ctx, network, address)
}

// ARPResolver resolves a host's MAC address on the local link.
type ARPResolver interface {
	LookupAddr(ctx context.Context, ip string) (*arp.Result, error)
}

// Method identifies which check declared a host alive.
type Method string

const (
	MethodTCP  Method = "tcp"
	MethodICMP Method = "icmp"
	MethodARP  Method = "arp"
)

// Liveness is the outcome of a liveness probe.
type Liveness struct {
	Alive  bool
	Method Method
	MAC    string // set when the ARP fallback answered
	Err    error  // every failed check, joined; nil when Alive
}

// Status classifies a port probe.
type Status int

const (
	StatusOpen Status = iota
	StatusClosed
	StatusFiltered
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusOpen:
		return "open"
	case StatusClosed:
		return "closed"
	case StatusFiltered:
		return "filtered"
	default:
		return "error"
	}
}

// PortResult is the outcome of one catalog port probe.
type PortResult struct {
	Port   int
	Label  string
	Status Status
	Err    error
}

// Prober runs liveness and port probes. The zero value is not usable; use NewProber.
type Prober struct {
	Dialer Dialer
	// Pinger is the ICMP fallback. Nil disables it.
	Pinger Pinger
	// ARP is the last-resort liveness fallback. Nil disables it.
	ARP ARPResolver

	LivenessPort    int
	LivenessTimeout time.Duration
	PingTimeout     time.Duration
	Timeout         time.Duration
}

// NewProber returns a Prober dialing the real network with the system ping as fallback.
func NewProber() *Prober {
	return &Prober{
		Dialer:          &net.Dialer{KeepAlive: -1},
		Pinger:          ExecPinger{},
		LivenessPort:    DefaultLivenessPort,
		LivenessTimeout: DefaultLivenessTimeout,
		PingTimeout:     DefaultPingTimeout,
		Timeout:         DefaultTimeout,
	}
}

// Alive reports whether ip answers. A TCP connect to LivenessPort is tried
// first, then the Pinger, then the ARP resolver.
func (p *Prober) Alive(ctx context.Context, ip string) Liveness {
	var errs []error

	err := p.connect(ctx, ip, p.LivenessPort, p.LivenessTimeout)
	if err == nil {
		return Liveness{Alive: true, Method: MethodTCP}
	}
	debugLog("%s: tcp/%d: %v", ip, p.LivenessPort, err)
	errs = append(errs, err)

	if p.Pinger != nil {
		err := p.Pinger.Ping(ctx, ip, p.PingTimeout)
		if err == nil {
			return Liveness{Alive: true, Method: MethodICMP}
		}
		debugLog("%s: ping: %v", ip, err)
		errs = append(errs, err)
	}

	if p.ARP != nil {
		res, err := p.ARP.LookupAddr(ctx, ip)
		if err == nil && res != nil && res.IsUp {
			return Liveness{Alive: true, Method: MethodARP, MAC: res.MACAddress}
		}
		if err != nil {
			debugLog("%s: arp: %v", ip, err)
			errs = append(errs, err)
		}
	}

	return Liveness{Err: errors.Join(errs...)}
}

// Ports probes every catalog port on ip concurrently. Results are ordered by port.
func (p *Prober) Ports(ctx context.Context, ip string, c catalog.Catalog) []PortResult {
	ports := c.Ports()
	results := make([]PortResult, len(ports))

	var wg sync.WaitGroup
	for i, port := range ports {
		wg.Add(1)
		go func(idx, port int) {
			defer wg.Done()
			err := p.connect(ctx, ip, port, p.Timeout)
			results[idx] = PortResult{Port: port, Label: c[port], Status: classify(err), Err: err}
			if err == nil {
				debugLog("%s:%d open (%s)", ip, port, c[port])
			}
		}(i, port)
	}
	wg.Wait()

	return results
}

// Open filters results down to the open ports, keeping their order.
func Open(results []PortResult) []PortResult {
	var open []PortResult
	for _, r := range results {
		if r.Status == StatusOpen {
			open = append(open, r)
		}
	}
	return open
}

func (p *Prober) connect(ctx context.Context, ip string, port int, timeout time.Duration) error {
	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	conn, err := p.Dialer.DialContext(dialCtx, "tcp", net.JoinHostPort(ip, strconv.Itoa(port)))
	if err != nil {
		return err
	}
	conn.Close()
	return nil
}

func classify(err error) Status {
	if err == nil {
		return StatusOpen
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		return StatusClosed
	}
	var ne net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout()) {
		return StatusFiltered
	}
	return StatusError
}
