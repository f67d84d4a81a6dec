//go:build linux || darwin || freebsd || netbsd || openbsd

// Package arp resolves the MAC address of hosts on the local link.
// A scan uses it as the last liveness fallback (cameras that drop both TCP/80
// and ICMP still answer ARP) and to attach a MAC to each discovered device.
// Sending ARP requests needs raw socket privileges (root or CAP_NET_RAW).
package arp

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/j-keck/arping"
)

const (
	// DefaultTimeout is the default timeout for ARP lookups.
	DefaultTimeout = 1 * time.Second
)

// Errors
var (
	// ErrNotSupported is returned when ARP is called on unsupported platforms.
	ErrNotSupported = errors.New("ARP lookup is not supported on this platform")
	// ErrInvalidIP is returned when an invalid IP address is provided.
	ErrInvalidIP = errors.New("invalid IP address")
	// ErrIPv6NotSupported is returned when attempting ARP on an IPv6 address.
	ErrIPv6NotSupported = errors.New("ARP is not supported for IPv6 addresses")
)

// DebugLogger is a callback for debug logging.
// Set this to receive debug messages from ARP operations.
var DebugLogger func(format string, args ...interface{})

func debugLog(format string, args ...interface{}) {
	if DebugLogger != nil {
		DebugLogger(format, args...)
	}
}

// arping keeps its timeout in a package variable.
var (
	timeoutMu  sync.Mutex
	curTimeout time.Duration
)

func setTimeout(d time.Duration) {
	timeoutMu.Lock()
	defer timeoutMu.Unlock()
	if d != curTimeout {
		arping.SetTimeout(d)
		curTimeout = d
	}
}

// Result contains the result of an ARP lookup.
type Result struct {
	IP         string
	MACAddress string
	IsUp       bool
	Duration   time.Duration
	Error      error
}

// Resolver performs ARP lookups.
type Resolver struct {
	Timeout time.Duration
	// Interface pins requests to one interface; empty lets arping pick by route.
	Interface string
}

// NewResolver creates a new ARP resolver with defaults.
func NewResolver() *Resolver {
	return &Resolver{Timeout: DefaultTimeout}
}

// LookupAddr sends an ARP request for ip and returns its MAC address.
func (r *Resolver) LookupAddr(ctx context.Context, ip string) (*Result, error) {
	result := &Result{IP: ip}

	parsedIP := net.ParseIP(ip)
	if parsedIP == nil {
		result.Error = ErrInvalidIP
		return result, ErrInvalidIP
	}
	if parsedIP.To4() == nil {
		result.Error = ErrIPv6NotSupported
		return result, ErrIPv6NotSupported
	}

	debugLog("Looking up ARP for %s", ip)
	setTimeout(r.Timeout)

	type arpResponse struct {
		mac net.HardwareAddr
		dur time.Duration
		err error
	}
	responseChan := make(chan arpResponse, 1)
	start := time.Now()

	go func() {
		var resp arpResponse
		if r.Interface != "" {
			resp.mac, resp.dur, resp.err = arping.PingOverIfaceByName(parsedIP, r.Interface)
		} else {
			resp.mac, resp.dur, resp.err = arping.Ping(parsedIP)
		}
		responseChan <- resp
	}()

	select {
	case <-ctx.Done():
		result.Duration = time.Since(start)
		result.Error = ctx.Err()
		debugLog("%s: context cancelled", ip)
		return result, ctx.Err()
	case resp := <-responseChan:
		result.Duration = resp.dur
		if resp.err != nil {
			result.Error = resp.err
			debugLog("%s: error: %v", ip, resp.err)
			return result, resp.err
		}
		result.MACAddress = resp.mac.String()
		result.IsUp = true
		debugLog("%s -> MAC: %s (%.2fms)", ip, result.MACAddress, float64(resp.dur.Microseconds())/1000)
		return result, nil
	}
}

// IsSupported returns true if ARP is supported on this platform.
func IsSupported() bool {
	return true
}
