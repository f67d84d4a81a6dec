// Package camscan: Debug logging support.
package camscan

import (
	"sync"

	"github.com/marcuoli/go-camscan/pkg/camscan/arp"
	"github.com/marcuoli/go-camscan/pkg/camscan/dns"
	"github.com/marcuoli/go-camscan/pkg/camscan/oui"
	"github.com/marcuoli/go-camscan/pkg/camscan/probe"
)

// DebugLevel represents the verbosity level for debug logging.
type DebugLevel int

const (
	// DebugOff disables all debug logging.
	DebugOff DebugLevel = iota
	// DebugBasic logs scan lifecycle and per-device messages.
	DebugBasic
	// DebugVerbose adds per-host and per-port probe messages.
	DebugVerbose
)

// DebugLogger is a callback function for debug logging.
// The method parameter indicates which component generated the message.
type DebugLogger func(method Method, format string, args ...interface{})

var (
	debugLogger DebugLogger
	debugLevel  DebugLevel
	debugMu     sync.RWMutex
)

// SetDebugLogger sets a custom debug logger callback.
// Pass nil to disable debug logging.
func SetDebugLogger(logger DebugLogger) {
	debugMu.Lock()
	defer debugMu.Unlock()
	debugLogger = logger
}

// SetDebugLevel sets the debug verbosity level.
func SetDebugLevel(level DebugLevel) {
	debugMu.Lock()
	defer debugMu.Unlock()
	debugLevel = level
}

// GetDebugLevel returns the current debug level.
func GetDebugLevel() DebugLevel {
	debugMu.RLock()
	defer debugMu.RUnlock()
	return debugLevel
}

func logAt(min DebugLevel, method Method, format string, args ...interface{}) {
	debugMu.RLock()
	logger := debugLogger
	level := debugLevel
	debugMu.RUnlock()

	if logger != nil && level >= min {
		logger(method, format, args...)
	}
}

// debugLog logs a message if debug logging is enabled.
func debugLog(method Method, format string, args ...interface{}) {
	logAt(DebugBasic, method, format, args...)
}

// debugLogVerbose logs a message if verbose debug logging is enabled.
func debugLogVerbose(method Method, format string, args ...interface{}) {
	logAt(DebugVerbose, method, format, args...)
}

func init() {
	// Probe messages fire for every host and port, so they are verbose only.
	probe.DebugLogger = func(format string, args ...interface{}) {
		debugLogVerbose(MethodProbe, format, args...)
	}
	arp.DebugLogger = func(format string, args ...interface{}) {
		debugLogVerbose(MethodARP, format, args...)
	}
	dns.DebugLogger = func(format string, args ...interface{}) {
		debugLog(MethodDNS, format, args...)
	}
	oui.DebugLogger = func(format string, args ...interface{}) {
		debugLog(MethodVendor, format, args...)
	}
}
