// Package camscan discovers network cameras and recorders on a LAN. A
// Scanner sweeps an address range in the background, probing each host
// for liveness and then for a catalog of well-known camera service ports
// (vendor SDK ports, RTSP, ONVIF, web consoles), and reports the hosts
// that expose at least one of them.
//
// The sweep runs with a bounded number of hosts in flight. Callers start it
// with ScanNetwork, poll it with Wait or IsScanning, and read the final
// device list with Results once it is done.
package camscan

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Method identifies the component that produced a debug message.
type Method string

const (
	MethodScan   Method = "scan"
	MethodProbe  Method = "probe"
	MethodARP    Method = "arp"
	MethodDNS    Method = "dns"
	MethodVendor Method = "vendor" // MAC vendor lookup (OUI)
	MethodCamera Method = "camera"
)

// State is the lifecycle state of a Scanner.
type State int

const (
	StateIdle State = iota
	StateScanning
	StateCompleted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateScanning:
		return "scanning"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	default:
		return "State(" + strconv.Itoa(int(s)) + ")"
	}
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// OpenPort is a catalog port that accepted a connection.
type OpenPort struct {
	Port  int    `json:"port"`
	Label string `json:"label"`
}

func (p OpenPort) String() string {
	return fmt.Sprintf("%d:%s", p.Port, p.Label)
}

// DeviceResult is a host with at least one open catalog port.
type DeviceResult struct {
	IP    string     `json:"ip"`
	Ports []OpenPort `json:"ports"`

	// Set only when the matching enrichment option is enabled.
	MAC      string `json:"mac,omitempty"`
	Vendor   string `json:"vendor,omitempty"`
	Hostname string `json:"hostname,omitempty"`
}

// HasPort reports whether port is among the device's open ports.
func (d DeviceResult) HasPort(port int) bool {
	for _, p := range d.Ports {
		if p.Port == port {
			return true
		}
	}
	return false
}

// PortList renders the open ports as "port:label" pairs joined by ", ".
func (d DeviceResult) PortList() string {
	parts := make([]string, len(d.Ports))
	for i, p := range d.Ports {
		parts[i] = p.String()
	}
	return strings.Join(parts, ", ")
}

func (d DeviceResult) clone() DeviceResult {
	d.Ports = append([]OpenPort(nil), d.Ports...)
	return d
}

// Snapshot is a point-in-time view of a scan.
type Snapshot struct {
	ID         string    `json:"id,omitempty"`
	Range      string    `json:"range,omitempty"`
	State      State     `json:"state"`
	Total      int       `json:"total"`
	Scanned    int       `json:"scanned"`
	Found      int       `json:"found"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Err        error     `json:"-"`
	Error      string    `json:"error,omitempty"`
}

// Duration returns how long the scan ran, or has been running.
func (s Snapshot) Duration() time.Duration {
	if s.StartedAt.IsZero() {
		return 0
	}
	if s.FinishedAt.IsZero() {
		return time.Since(s.StartedAt)
	}
	return s.FinishedAt.Sub(s.StartedAt)
}
