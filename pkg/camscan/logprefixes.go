// Package camscan: Log prefix constants for consistent log tagging.
// Consumers may use them in their SetDebugLogger callback; they are not required.
package camscan

// Log prefix constants. Format follows [Component] or [Component:Subcomponent].
const (
	LogPrefixScan   = "[Scan]"
	LogPrefixProbe  = "[Scan:Probe]"
	LogPrefixARP    = "[Scan:ARP]"
	LogPrefixDNS    = "[Scan:DNS]"
	LogPrefixOUI    = "[Scan:OUI]"
	LogPrefixCamera = "[Scan:Camera]"

	// Debug prefix - use as "[DEBUG][Scan:*]" format
	LogPrefixDebug = "[DEBUG]"
)

// MethodToPrefix returns the log prefix for a given method.
func MethodToPrefix(method Method) string {
	switch method {
	case MethodProbe:
		return LogPrefixProbe
	case MethodARP:
		return LogPrefixARP
	case MethodDNS:
		return LogPrefixDNS
	case MethodVendor:
		return LogPrefixOUI
	case MethodCamera:
		return LogPrefixCamera
	default:
		return LogPrefixScan
	}
}
