//go:build windows

// Package arp resolves the MAC address of hosts on the local link.
// This file provides stubs for Windows, where raw ARP requests are not available.
package arp

import (
	"context"
	"errors"
	"time"
)

const (
	// DefaultTimeout is the default timeout for ARP lookups.
	DefaultTimeout = 1 * time.Second
)

// Errors
var (
	// ErrNotSupported is returned when ARP is called on unsupported platforms.
	ErrNotSupported = errors.New("ARP lookup is not supported on Windows")
	// ErrInvalidIP is returned when an invalid IP address is provided.
	ErrInvalidIP = errors.New("invalid IP address")
	// ErrIPv6NotSupported is returned when attempting ARP on an IPv6 address.
	ErrIPv6NotSupported = errors.New("ARP is not supported for IPv6 addresses")
)

// DebugLogger is a callback for debug logging.
// Set this to receive debug messages from ARP operations.
var DebugLogger func(format string, args ...interface{})

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
	Timeout   time.Duration
	Interface string
}

// NewResolver creates a new ARP resolver with defaults.
func NewResolver() *Resolver {
	return &Resolver{Timeout: DefaultTimeout}
}

// LookupAddr returns ErrNotSupported on Windows.
func (r *Resolver) LookupAddr(ctx context.Context, ip string) (*Result, error) {
	return &Result{IP: ip, Error: ErrNotSupported}, ErrNotSupported
}

// IsSupported returns false on Windows.
func IsSupported() bool {
	return false
}
