package camscan

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

func TestWriteResults_Empty(t *testing.T) {
	s := newTestScanner(openDialer(), pingNone)
	s.Options.Timeout = 2500 * time.Millisecond
	if err := s.ScanNetwork("203.0.113.0/30"); err != nil {
		t.Fatalf("ScanNetwork failed: %v", err)
	}
	waitDone(t, s)

	var buf bytes.Buffer
	s.WriteResults(&buf)
	out := buf.String()

	if !strings.Contains(out, "No CCTV devices found. Possible reasons:") {
		t.Errorf("Expected diagnostic block, got:\n%s", out)
	}
	if !strings.Contains(out, "(currently 2.5s)") {
		t.Errorf("Expected configured timeout in hints, got:\n%s", out)
	}
	if strings.Contains(out, "Discovered Devices") {
		t.Errorf("Empty results must not print a table:\n%s", out)
	}
}

func TestWriteResults_TimeoutOfLastScan(t *testing.T) {
	s := newTestScanner(openDialer(), pingNone)

	var buf bytes.Buffer
	s.WriteResults(&buf)
	if !strings.Contains(buf.String(), "(currently 1s)") {
		t.Errorf("Expected default timeout before any scan, got:\n%s", buf.String())
	}

	opts := s.GetOptions()
	opts.Timeout = 1500 * time.Millisecond
	s.SetOptions(opts)
	if err := s.ScanNetwork("203.0.113.1"); err != nil {
		t.Fatalf("ScanNetwork failed: %v", err)
	}
	waitDone(t, s)

	opts.Timeout = 3 * time.Second
	s.SetOptions(opts)

	buf.Reset()
	s.WriteResults(&buf)
	if !strings.Contains(buf.String(), "(currently 1.5s)") {
		t.Errorf("Expected the finished scan's timeout, got:\n%s", buf.String())
	}
}

func TestWriteResults_Table(t *testing.T) {
	s := newTestScanner(openDialer("203.0.113.1:37777", "203.0.113.1:80"), pingAll)
	if err := s.ScanNetwork("203.0.113.0/30"); err != nil {
		t.Fatalf("ScanNetwork failed: %v", err)
	}
	waitDone(t, s)

	var buf bytes.Buffer
	s.WriteResults(&buf)
	lines := strings.Split(strings.TrimPrefix(buf.String(), "\n"), "\n")

	if lines[0] != "Discovered Devices:" {
		t.Errorf("Unexpected header %q", lines[0])
	}
	if lines[1] != strings.Repeat("-", 70) {
		t.Errorf("Unexpected rule %q", lines[1])
	}
	if got := strings.TrimRight(lines[2], " "); got != "IP              | Open Ports" {
		t.Errorf("Unexpected column header %q", got)
	}
	if got := strings.TrimRight(lines[4], " "); got != "203.0.113.1     | 80:HTTP, 37777:Dahua" {
		t.Errorf("Unexpected row %q", got)
	}
}

func TestDeviceResult_Details(t *testing.T) {
	tests := []struct {
		dev  DeviceResult
		want string
	}{
		{DeviceResult{}, ""},
		{DeviceResult{Hostname: "nvr.lan"}, "nvr.lan"},
		{DeviceResult{MAC: "00:11:22:33:44:55"}, "00:11:22:33:44:55"},
		{DeviceResult{Hostname: "nvr.lan", MAC: "3c:ef:8c:00:00:01", Vendor: "Dahua"}, "nvr.lan, 3c:ef:8c:00:00:01 (Dahua)"},
	}
	for _, tt := range tests {
		if got := tt.dev.details(); got != tt.want {
			t.Errorf("details(%+v) = %q, want %q", tt.dev, got, tt.want)
		}
	}
}

func TestDeviceResult_HasPort(t *testing.T) {
	d := DeviceResult{Ports: []OpenPort{{Port: 554, Label: "RTSP"}, {Port: 37777, Label: "Dahua"}}}
	if !d.HasPort(37777) || d.HasPort(80) {
		t.Errorf("HasPort mismatch for %+v", d)
	}
	if got := d.PortList(); got != "554:RTSP, 37777:Dahua" {
		t.Errorf("PortList = %q", got)
	}
}
