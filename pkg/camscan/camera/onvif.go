package camera

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/clbanning/mxj"
	"github.com/google/uuid"
)

const (
	nsDevice = "http://www.onvif.org/ver10/device/wsdl"
	nsMedia  = "http://www.onvif.org/ver10/media/wsdl"
)

// DeviceInformation is the GetDeviceInformation response.
type DeviceInformation struct {
	Manufacturer    string
	Model           string
	FirmwareVersion string
	SerialNumber    string
	HardwareID      string
}

// ONVIFClient speaks the ONVIF device and media services.
type ONVIFClient struct {
	// DeviceURL is the device service endpoint.
	DeviceURL string
	HTTP      *http.Client

	mu       sync.Mutex
	mediaURL string
}

// NewONVIFClient creates a client for host ("ip" or "ip:port").
func NewONVIFClient(host string, creds Credentials) *ONVIFClient {
	return &ONVIFClient{
		DeviceURL: baseURL(host) + "/onvif/device_service",
		HTTP:      newHTTPClient(creds),
	}
}

// DeviceInformation returns the manufacturer, model and serial number.
func (c *ONVIFClient) DeviceInformation(ctx context.Context) (*DeviceInformation, error) {
	m, err := c.call(ctx, c.DeviceURL, nsDevice, "GetDeviceInformation",
		`<tds:GetDeviceInformation xmlns:tds="`+nsDevice+`"/>`)
	if err != nil {
		return nil, err
	}
	const base = "Envelope.Body.GetDeviceInformationResponse."
	info := &DeviceInformation{}
	info.Manufacturer = textAt(m, base+"Manufacturer")
	info.Model = textAt(m, base+"Model")
	info.FirmwareVersion = textAt(m, base+"FirmwareVersion")
	info.SerialNumber = textAt(m, base+"SerialNumber")
	info.HardwareID = textAt(m, base+"HardwareId")
	debugLog("onvif %s: %s %s serial %s", c.DeviceURL, info.Manufacturer, info.Model, info.SerialNumber)
	return info, nil
}

// SerialNumber returns the serial from DeviceInformation.
func (c *ONVIFClient) SerialNumber(ctx context.Context) (string, error) {
	info, err := c.DeviceInformation(ctx)
	if err != nil {
		return "", err
	}
	if info.SerialNumber == "" {
		return "", ErrNoSerial
	}
	return info.SerialNumber, nil
}

// Profiles returns the media profile tokens in device order.
func (c *ONVIFClient) Profiles(ctx context.Context) ([]string, error) {
	media, err := c.media(ctx)
	if err != nil {
		return nil, err
	}
	m, err := c.call(ctx, media, nsMedia, "GetProfiles",
		`<trt:GetProfiles xmlns:trt="`+nsMedia+`"/>`)
	if err != nil {
		return nil, err
	}
	values, _ := m.ValuesForPath("Envelope.Body.GetProfilesResponse.Profiles")
	var tokens []string
	for _, v := range values {
		if p, ok := v.(map[string]interface{}); ok {
			if tok, ok := p["-token"].(string); ok && tok != "" {
				tokens = append(tokens, tok)
			}
		}
	}
	if len(tokens) == 0 {
		return nil, ErrNoProfiles
	}
	return tokens, nil
}

// SnapshotURI returns the JPEG snapshot URI of a media profile.
func (c *ONVIFClient) SnapshotURI(ctx context.Context, token string) (string, error) {
	media, err := c.media(ctx)
	if err != nil {
		return "", err
	}
	m, err := c.call(ctx, media, nsMedia, "GetSnapshotUri",
		`<trt:GetSnapshotUri xmlns:trt="`+nsMedia+`"><trt:ProfileToken>`+xmlEscape(token)+`</trt:ProfileToken></trt:GetSnapshotUri>`)
	if err != nil {
		return "", err
	}
	uri := textAt(m, "Envelope.Body.GetSnapshotUriResponse.MediaUri.Uri")
	if uri == "" {
		return "", fmt.Errorf("profile %s: no snapshot uri", token)
	}
	return uri, nil
}

// Snapshot fetches a JPEG through the snapshot URI of the channel-th
// profile (1-based). Out of range channels use the first profile.
func (c *ONVIFClient) Snapshot(ctx context.Context, channel int) ([]byte, error) {
	tokens, err := c.Profiles(ctx)
	if err != nil {
		return nil, err
	}
	token := tokens[0]
	if channel >= 1 && channel <= len(tokens) {
		token = tokens[channel-1]
	}
	uri, err := c.SnapshotURI(ctx, token)
	if err != nil {
		return nil, err
	}
	data, err := get(ctx, c.HTTP, uri)
	if err != nil {
		return nil, err
	}
	debugLog("onvif %s: snapshot profile %s (%d bytes)", c.DeviceURL, token, len(data))
	return data, nil
}

// media returns the media service address, asking GetCapabilities once.
// Devices that do not answer are assumed to serve media on the device endpoint.
func (c *ONVIFClient) media(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.mediaURL != "" {
		return c.mediaURL, nil
	}

	c.mediaURL = c.DeviceURL
	m, err := c.call(ctx, c.DeviceURL, nsDevice, "GetCapabilities",
		`<tds:GetCapabilities xmlns:tds="`+nsDevice+`"><tds:Category>Media</tds:Category></tds:GetCapabilities>`)
	if err != nil {
		var se *StatusError
		if !errors.As(err, &se) {
			c.mediaURL = ""
			return "", err
		}
		debugLog("onvif %s: GetCapabilities: %v", c.DeviceURL, err)
		return c.mediaURL, nil
	}
	if xaddr := textAt(m, "Envelope.Body.GetCapabilitiesResponse.Capabilities.Media.XAddr"); xaddr != "" {
		c.mediaURL = xaddr
	}
	return c.mediaURL, nil
}

// call posts one SOAP request and parses the response envelope.
func (c *ONVIFClient) call(ctx context.Context, endpoint, ns, action, body string) (mxj.Map, error) {
	envelope := `<?xml version="1.0" encoding="UTF-8"?>` +
		`<s:Envelope xmlns:s="http://www.w3.org/2003/05/soap-envelope" xmlns:a="http://www.w3.org/2005/08/addressing">` +
		`<s:Header><a:MessageID>uuid:` + uuid.NewString() + `</a:MessageID></s:Header>` +
		`<s:Body>` + body + `</s:Body></s:Envelope>`

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader([]byte(envelope)))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", `application/soap+xml; charset=utf-8; action="`+ns+"/"+action+`"`)

	resp, err := fetch(c.HTTP, req)
	if err != nil {
		var se *StatusError
		if errors.As(err, &se) {
			se.Message = faultReason(resp)
		}
		return nil, fmt.Errorf("%s: %w", action, err)
	}
	m, err := mxj.NewMapXml(resp)
	if err != nil {
		return nil, fmt.Errorf("%s: parse response: %w", action, err)
	}
	return m, nil
}

func faultReason(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	m, err := mxj.NewMapXml(body)
	if err != nil {
		return ""
	}
	if text := textAt(m, "Envelope.Body.Fault.Reason.Text"); text != "" {
		return text
	}
	// SOAP 1.1 faults
	return textAt(m, "Envelope.Body.Fault.faultstring")
}

// textAt returns the character data at path, also for elements with attributes.
func textAt(m mxj.Map, path string) string {
	v, err := m.ValueForPath(path)
	if err != nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case map[string]interface{}:
		if s, ok := t["#text"].(string); ok {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

var xmlReplacer = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;", "'", "&apos;")

func xmlEscape(s string) string {
	return xmlReplacer.Replace(s)
}
