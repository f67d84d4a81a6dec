// Package network expands range descriptors into the host addresses to probe.
//
// Accepted descriptors:
//   - CIDR prefixes, host bits allowed ("192.168.1.7/24" scans 192.168.1.0/24)
//   - a single address ("192.168.1.7")
//   - inclusive ranges ("192.168.1.10-192.168.1.20")
package network

import (
	"errors"
	"fmt"
	"net/netip"
	"strings"

	"go4.org/netipx"
)

// MaxHosts is the largest number of addresses a single descriptor may expand to.
const MaxHosts = 1 << 20

var (
	// ErrInvalidRange matches every error returned for an unusable descriptor.
	ErrInvalidRange = errors.New("invalid network range")
	// ErrRangeTooLarge is returned when a descriptor covers more than MaxHosts addresses.
	ErrRangeTooLarge = fmt.Errorf("range covers more than %d addresses", MaxHosts)
)

// RangeError describes why a descriptor could not be expanded.
type RangeError struct {
	Range string
	Err   error
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("invalid network range %q: %v", e.Range, e.Err)
}

func (e *RangeError) Unwrap() error { return e.Err }

// Is reports ErrInvalidRange for any RangeError.
func (e *RangeError) Is(target error) bool { return target == ErrInvalidRange }

// Expand returns the usable host addresses of desc in ascending order.
// IPv4 prefixes shorter than /31 drop the network and broadcast addresses;
// IPv6 prefixes shorter than /127 drop the subnet-router anycast address.
// Explicit ranges and single addresses are returned as written.
func Expand(desc string) ([]netip.Addr, error) {
	desc = strings.TrimSpace(desc)
	hosts, err := expand(desc)
	if err != nil {
		return nil, &RangeError{Range: desc, Err: err}
	}
	return hosts, nil
}

// ExpandStrings is Expand with the addresses rendered as strings.
func ExpandStrings(desc string) ([]string, error) {
	hosts, err := Expand(desc)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(hosts))
	for i, h := range hosts {
		out[i] = h.String()
	}
	return out, nil
}

// Count returns the number of usable host addresses in desc.
func Count(desc string) (int, error) {
	hosts, err := Expand(desc)
	if err != nil {
		return 0, err
	}
	return len(hosts), nil
}

func expand(desc string) ([]netip.Addr, error) {
	switch {
	case desc == "":
		return nil, errors.New("empty descriptor")
	case strings.Contains(desc, "/"):
		p, err := netip.ParsePrefix(desc)
		if err != nil {
			return nil, err
		}
		p = p.Masked()
		hostBits := p.Addr().BitLen() - p.Bits()
		if hostBits > 20 {
			return nil, ErrRangeTooLarge
		}
		r := netipx.RangeOfPrefix(p)
		skipFirst := hostBits >= 2
		skipLast := hostBits >= 2 && p.Addr().Is4()
		return walk(r.From(), r.To(), skipFirst, skipLast, 1<<hostBits)
	case strings.Contains(desc, "-"):
		r, err := netipx.ParseIPRange(desc)
		if err != nil {
			return nil, err
		}
		return walk(r.From(), r.To(), false, false, 0)
	default:
		a, err := netip.ParseAddr(desc)
		if err != nil {
			return nil, err
		}
		if a.Zone() != "" {
			return nil, errors.New("zoned addresses are not supported")
		}
		return []netip.Addr{a.Unmap()}, nil
	}
}

func walk(from, to netip.Addr, skipFirst, skipLast bool, sizeHint int) ([]netip.Addr, error) {
	if skipFirst {
		from = from.Next()
	}
	if skipLast {
		to = to.Prev()
	}
	hosts := make([]netip.Addr, 0, sizeHint)
	for a := from; a.IsValid() && a.Compare(to) <= 0; a = a.Next() {
		if len(hosts) == MaxHosts {
			return nil, ErrRangeTooLarge
		}
		hosts = append(hosts, a)
	}
	return hosts, nil
}
