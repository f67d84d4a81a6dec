package camera

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strings"
)

var serialRe = regexp.MustCompile(`sn=([A-Z0-9]+)`)

// DahuaClient uses the Dahua CGI API over HTTP digest auth.
type DahuaClient struct {
	// BaseURL is the web console root, e.g. "http://192.168.1.108".
	BaseURL string
	HTTP    *http.Client
}

// NewDahuaClient creates a client for host ("ip", "ip:port" or "[ipv6]:port").
func NewDahuaClient(host string, creds Credentials) *DahuaClient {
	return &DahuaClient{
		BaseURL: baseURL(host),
		HTTP:    newHTTPClient(creds),
	}
}

// SerialNumber reads the device serial from magicBox.cgi.
func (c *DahuaClient) SerialNumber(ctx context.Context) (string, error) {
	body, err := get(ctx, c.HTTP, c.url("/cgi-bin/magicBox.cgi?action=getSerialNo"))
	if err != nil {
		return "", err
	}
	m := serialRe.FindSubmatch(body)
	if m == nil {
		return "", ErrNoSerial
	}
	debugLog("dahua %s: serial %s", c.BaseURL, m[1])
	return string(m[1]), nil
}

// Snapshot fetches a JPEG from channel (1-based; values below 1 mean 1).
func (c *DahuaClient) Snapshot(ctx context.Context, channel int) ([]byte, error) {
	if channel < 1 {
		channel = 1
	}
	data, err := get(ctx, c.HTTP, c.url(fmt.Sprintf("/cgi-bin/snapshot.cgi?channel=%d", channel)))
	if err != nil {
		return nil, err
	}
	debugLog("dahua %s: snapshot channel %d (%d bytes)", c.BaseURL, channel, len(data))
	return data, nil
}

func (c *DahuaClient) url(path string) string {
	return strings.TrimSuffix(c.BaseURL, "/") + path
}
