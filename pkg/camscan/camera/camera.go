// Package camera talks to devices found by a scan. It decides which
// protocol a device speaks from its open ports and offers two clients:
// the Dahua HTTP API (digest authenticated CGI endpoints) and ONVIF
// (SOAP device and media services). Both fetch the serial number and a
// JPEG snapshot.
package camera

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/netip"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/icholy/digest"

	"github.com/marcuoli/go-camscan/pkg/camscan"
)

// DefaultTimeout bounds every HTTP exchange with a device.
const DefaultTimeout = 10 * time.Second

// maxBody caps the size of a response read into memory.
const maxBody = 16 << 20

var (
	// ErrUnsupportedDevice is returned when no client fits a device's ports.
	ErrUnsupportedDevice = errors.New("unsupported device")
	// ErrNoProfiles is returned when an ONVIF device has no media profile.
	ErrNoProfiles = errors.New("no media profiles")
	// ErrNoSerial is returned when a device answers without a serial number.
	ErrNoSerial = errors.New("serial number not found")
	// ErrEmptySnapshot is returned when there is no image data to save.
	ErrEmptySnapshot = errors.New("empty snapshot")
)

// DebugLogger is a callback for debug logging.
// Set this to receive debug messages from camera operations.
var DebugLogger func(format string, args ...interface{})

func debugLog(format string, args ...interface{}) {
	if DebugLogger != nil {
		DebugLogger(format, args...)
	}
}

// StatusError reports an unexpected HTTP status from a device.
type StatusError struct {
	URL        string
	StatusCode int
	Message    string // SOAP fault reason, when present
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: HTTP %d: %s", e.URL, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: HTTP %d", e.URL, e.StatusCode)
}

// Kind is the protocol family of a device.
type Kind int

const (
	KindUnknown Kind = iota
	KindDahua
	KindONVIF
)

func (k Kind) String() string {
	switch k {
	case KindDahua:
		return "dahua"
	case KindONVIF:
		return "onvif"
	default:
		return "unknown"
	}
}

// Credentials authenticate against a device.
type Credentials struct {
	Username string
	Password string
}

// Client retrieves identity and images from a device.
type Client interface {
	SerialNumber(ctx context.Context) (string, error)
	Snapshot(ctx context.Context, channel int) ([]byte, error)
}

// Classify picks the protocol of a device from its open ports. A
// Dahua-labelled port wins over ONVIF, since Dahua units also speak ONVIF.
func Classify(d camscan.DeviceResult) Kind {
	if _, ok := findPort(d, "dahua"); ok {
		return KindDahua
	}
	if _, ok := findPort(d, "onvif"); ok {
		return KindONVIF
	}
	return KindUnknown
}

// NewClient returns the client matching Classify(d).
func NewClient(d camscan.DeviceResult, creds Credentials) (Client, error) {
	switch Classify(d) {
	case KindDahua:
		// The CGI API is served by the web console, not the SDK port.
		return NewDahuaClient(d.IP, creds), nil
	case KindONVIF:
		p, _ := findPort(d, "onvif")
		return NewONVIFClient(net.JoinHostPort(d.IP, strconv.Itoa(p.Port)), creds), nil
	default:
		return nil, fmt.Errorf("%w: %s (%s)", ErrUnsupportedDevice, d.IP, d.PortList())
	}
}

// baseURL returns the http root of host ("ip", "ip:port" or "[ipv6]:port").
// A bare IPv6 address is bracketed.
func baseURL(host string) string {
	if addr, err := netip.ParseAddr(host); err == nil && addr.Is6() {
		host = "[" + host + "]"
	}
	return (&url.URL{Scheme: "http", Host: host}).String()
}

func findPort(d camscan.DeviceResult, label string) (camscan.OpenPort, bool) {
	for _, p := range d.Ports {
		if strings.Contains(strings.ToLower(p.Label), label) {
			return p, true
		}
	}
	return camscan.OpenPort{}, false
}

// SaveSnapshot writes image data to path, creating parent directories.
func SaveSnapshot(path string, data []byte) error {
	if len(data) == 0 {
		return ErrEmptySnapshot
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return err
	}
	debugLog("snapshot saved to %s (%d bytes)", path, len(data))
	return nil
}

func newHTTPClient(creds Credentials) *http.Client {
	return &http.Client{
		Transport: &digest.Transport{
			Username: creds.Username,
			Password: creds.Password,
		},
		Timeout: DefaultTimeout,
	}
}

// fetch performs req and returns the body of a 200 response.
func fetch(hc *http.Client, req *http.Request) ([]byte, error) {
	resp, err := hc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return body, &StatusError{URL: req.URL.Redacted(), StatusCode: resp.StatusCode}
	}
	return body, nil
}

func get(ctx context.Context, hc *http.Client, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	return fetch(hc, req)
}
