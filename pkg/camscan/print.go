package camscan

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

// PrintResults writes the results report to standard output.
func (s *Scanner) PrintResults() {
	s.WriteResults(os.Stdout)
}

// WriteResults writes a table of device address to "port:label" pairs, or,
// when nothing was found, a list of likely reasons.
func (s *Scanner) WriteResults(w io.Writer) {
	results := s.Results()
	if len(results) == 0 {
		timeout := s.reportTimeout()
		fmt.Fprintln(w, "\nNo CCTV devices found. Possible reasons:")
		fmt.Fprintln(w, "- Devices are not on the scanned network range")
		fmt.Fprintln(w, "- Devices are behind firewalls blocking our probes")
		fmt.Fprintln(w, "- Network requires authentication")
		fmt.Fprintf(w, "- Try increasing timeout (currently %gs)\n", timeout.Seconds())
		fmt.Fprintln(w, "- Try scanning a different network range")
		return
	}

	rule := strings.Repeat("-", 70)
	fmt.Fprintln(w, "\nDiscovered Devices:")
	fmt.Fprintln(w, rule)
	fmt.Fprintf(w, "%-15s | %-50s\n", "IP", "Open Ports")
	fmt.Fprintln(w, rule)
	for _, d := range results {
		fmt.Fprintf(w, "%-15s | %-50s\n", d.IP, d.PortList())
		if extra := d.details(); extra != "" {
			fmt.Fprintf(w, "%-15s | %s\n", "", extra)
		}
	}
}

func (d DeviceResult) details() string {
	var parts []string
	if d.Hostname != "" {
		parts = append(parts, d.Hostname)
	}
	if d.MAC != "" {
		mac := d.MAC
		if d.Vendor != "" {
			mac += " (" + d.Vendor + ")"
		}
		parts = append(parts, mac)
	}
	return strings.Join(parts, ", ")
}

// reportTimeout is the port timeout of the last scan, or of the next one
// when no scan was started.
func (s *Scanner) reportTimeout() time.Duration {
	if st := s.current(); st != nil {
		return st.timeout
	}
	return s.GetOptions().normalize().Timeout
}
