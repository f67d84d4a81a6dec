// Package catalog holds the table of TCP ports probed on every live host
// and the service or vendor label reported for each.
package catalog

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"sigs.k8s.io/yaml"
)

// ErrInvalidPort is returned for ports outside 1-65535 or entries without a label.
var ErrInvalidPort = errors.New("invalid catalog port")

// Catalog maps a TCP port to its label.
type Catalog map[int]string

var defaultCatalog = Catalog{
	// Web and management
	80:   "HTTP",
	443:  "HTTPS",
	8080: "Alt HTTP",

	// RTSP streaming
	554:   "RTSP",
	8554:  "Alt RTSP",
	10554: "RTSP",

	// Hikvision
	8000:  "Hikvision",
	34567: "Hikvision",
	8899:  "Hikvision Backdoor",

	// Dahua
	37777: "Dahua",
	37778: "Dahua Mobile",
	37779: "Dahua",

	9000: "ONVIF",
	8200: "TP-Link",

	// Other manufacturers
	8001: "Mobile Service",
	8008: "AXIS",
	9001: "Samsung",
	5000: "FLIR",
	5001: "FLIR",
	7000: "Pelco",
	7001: "Pelco",
}

// Default returns a fresh copy of the built-in camera port table.
func Default() Catalog {
	return defaultCatalog.Clone()
}

// Clone returns a copy of c.
func (c Catalog) Clone() Catalog {
	out := make(Catalog, len(c))
	for p, l := range c {
		out[p] = l
	}
	return out
}

// Ports returns the catalog ports in ascending order.
func (c Catalog) Ports() []int {
	ports := make([]int, 0, len(c))
	for p := range c {
		ports = append(ports, p)
	}
	sort.Ints(ports)
	return ports
}

// Label returns the label for port, or "" if the port is not in the catalog.
func (c Catalog) Label(port int) string {
	return c[port]
}

// Merge returns a copy of c with the entries of o added or overriding.
func (c Catalog) Merge(o Catalog) Catalog {
	out := c.Clone()
	for p, l := range o {
		out[p] = l
	}
	return out
}

// Validate checks that every port is in range and labelled.
func (c Catalog) Validate() error {
	if len(c) == 0 {
		return fmt.Errorf("%w: catalog is empty", ErrInvalidPort)
	}
	for p, l := range c {
		if p <= 0 || p > 65535 {
			return fmt.Errorf("%w: %d", ErrInvalidPort, p)
		}
		if strings.TrimSpace(l) == "" {
			return fmt.Errorf("%w: %d has no label", ErrInvalidPort, p)
		}
	}
	return nil
}

// Parse reads an inline catalog such as "37777=Dahua,554=RTSP".
func Parse(s string) (Catalog, error) {
	c := make(Catalog)
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		portStr, label, ok := strings.Cut(part, "=")
		if !ok {
			return nil, fmt.Errorf("catalog entry %q: expected port=label", part)
		}
		port, err := strconv.Atoi(strings.TrimSpace(portStr))
		if err != nil {
			return nil, fmt.Errorf("catalog entry %q: %w", part, err)
		}
		c[port] = strings.TrimSpace(label)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// File is the on-disk form of a catalog override, in YAML or JSON:
//
//	replace: false
//	ports:
//	  37777: Dahua
//	  8443: Hikvision HTTPS
type File struct {
	// Replace discards the built-in table instead of extending it.
	Replace bool    `json:"replace"`
	Ports   Catalog `json:"ports"`
}

// Load reads a catalog file and applies it on top of base.
func Load(path string, base Catalog) (Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return Decode(data, base)
}

// Decode is Load for in-memory YAML or JSON.
func Decode(data []byte, base Catalog) (Catalog, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	var c Catalog
	if f.Replace {
		c = f.Ports.Clone()
	} else {
		c = base.Merge(f.Ports)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}
