package camscan

import (
	"time"

	"go.uber.org/zap"

	"github.com/marcuoli/go-camscan/internal/scheduler"
	"github.com/marcuoli/go-camscan/pkg/camscan/arp"
	"github.com/marcuoli/go-camscan/pkg/camscan/catalog"
	"github.com/marcuoli/go-camscan/pkg/camscan/dns"
	"github.com/marcuoli/go-camscan/pkg/camscan/probe"
)

// DefaultProgressEvery is how many hosts pass between verbose progress lines.
const DefaultProgressEvery = 50

// Options configures a scan. A Scanner copies its Options when a scan
// starts, so changes made while scanning apply to the next scan.
type Options struct {
	// Timeout bounds each catalog port connection attempt.
	Timeout time.Duration
	// MaxConcurrent bounds the hosts probed at the same time.
	MaxConcurrent int
	// Verbose enables progress lines and per-host probe errors in the log.
	Verbose bool
	// Catalog lists the ports to probe. Nil means catalog.Default().
	Catalog catalog.Catalog

	// LivenessPort is dialed first to decide whether a host is up.
	LivenessPort int
	// LivenessTimeout bounds the liveness dial.
	LivenessTimeout time.Duration
	// PingFallback pings hosts that refuse the liveness dial.
	PingFallback bool
	// PingTimeout bounds the ping fallback.
	PingTimeout time.Duration

	// ARP enables the ARP liveness fallback and MAC capture (local subnet, needs privileges).
	ARP bool
	// ResolveHostnames adds the PTR name of every found device.
	ResolveHostnames bool
	// DNSServer is used for PTR lookups; empty reads /etc/resolv.conf.
	DNSServer string
	// LookupVendor adds the OUI vendor of devices with a known MAC.
	LookupVendor bool

	// RateLimit caps host dispatches per second. Zero is unlimited.
	RateLimit float64
	// ProgressEvery sets the verbose progress interval in hosts.
	ProgressEvery int

	// Logger receives scan lifecycle logs. Nil discards them.
	Logger *zap.Logger
	// Dialer replaces the network dialer, mostly for tests.
	Dialer probe.Dialer
	// Pinger replaces the system ping used by the fallback.
	Pinger probe.Pinger
	// ARPResolver replaces the arping resolver used when ARP is set.
	ARPResolver probe.ARPResolver
}

// DefaultOptions returns options matching the classic sweep: one second
// per port, 200 hosts in flight, TCP/80 then ping for liveness.
func DefaultOptions() Options {
	return Options{
		Timeout:         probe.DefaultTimeout,
		MaxConcurrent:   scheduler.DefaultMaxConcurrent,
		Catalog:         catalog.Default(),
		LivenessPort:    probe.DefaultLivenessPort,
		LivenessTimeout: probe.DefaultLivenessTimeout,
		PingFallback:    true,
		PingTimeout:     probe.DefaultPingTimeout,
		ProgressEvery:   DefaultProgressEvery,
	}
}

// normalize fills unset fields with defaults and takes a private copy of the catalog.
func (o Options) normalize() Options {
	if o.Timeout <= 0 {
		o.Timeout = probe.DefaultTimeout
	}
	if o.MaxConcurrent <= 0 {
		o.MaxConcurrent = scheduler.DefaultMaxConcurrent
	}
	if o.Catalog == nil {
		o.Catalog = catalog.Default()
	} else {
		o.Catalog = o.Catalog.Clone()
	}
	if o.LivenessPort <= 0 {
		o.LivenessPort = probe.DefaultLivenessPort
	}
	if o.LivenessTimeout <= 0 {
		o.LivenessTimeout = probe.DefaultLivenessTimeout
	}
	if o.PingTimeout <= 0 {
		o.PingTimeout = probe.DefaultPingTimeout
	}
	if o.ProgressEvery <= 0 {
		o.ProgressEvery = DefaultProgressEvery
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}

func (o Options) prober() *probe.Prober {
	p := probe.NewProber()
	if o.Dialer != nil {
		p.Dialer = o.Dialer
	}
	switch {
	case !o.PingFallback:
		p.Pinger = nil
	case o.Pinger != nil:
		p.Pinger = o.Pinger
	}
	switch {
	case o.ARP && o.ARPResolver != nil:
		p.ARP = o.ARPResolver
	case o.ARP:
		p.ARP = arp.NewResolver()
	}
	p.LivenessPort = o.LivenessPort
	p.LivenessTimeout = o.LivenessTimeout
	p.PingTimeout = o.PingTimeout
	p.Timeout = o.Timeout
	return p
}

func (o Options) resolver() *dns.Resolver {
	if !o.ResolveHostnames {
		return nil
	}
	r := dns.NewResolver()
	r.Server = o.DNSServer
	return r
}
