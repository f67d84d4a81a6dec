package catalog

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestDefault(t *testing.T) {
	c := Default()
	if len(c) != 21 {
		t.Errorf("Expected 21 default ports, got %d", len(c))
	}
	checks := map[int]string{
		37777: "Dahua",
		37778: "Dahua Mobile",
		8899:  "Hikvision Backdoor",
		9000:  "ONVIF",
		554:   "RTSP",
		80:    "HTTP",
	}
	for port, want := range checks {
		if got := c.Label(port); got != want {
			t.Errorf("Label(%d) = %q, want %q", port, got, want)
		}
	}
	if err := c.Validate(); err != nil {
		t.Errorf("default catalog invalid: %v", err)
	}
}

func TestDefault_IsCopy(t *testing.T) {
	c := Default()
	c[37777] = "changed"
	delete(c, 80)
	if Default().Label(37777) != "Dahua" || Default().Label(80) != "HTTP" {
		t.Error("mutating Default() result changed the built-in table")
	}
}

func TestPorts_Sorted(t *testing.T) {
	ports := Catalog{9000: "ONVIF", 80: "HTTP", 554: "RTSP"}.Ports()
	want := []int{80, 554, 9000}
	for i := range want {
		if ports[i] != want[i] {
			t.Fatalf("Ports() = %v, want %v", ports, want)
		}
	}
}

func TestParse(t *testing.T) {
	c, err := Parse("37777=Dahua, 554 = RTSP ,")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(c) != 2 || c[37777] != "Dahua" || c[554] != "RTSP" {
		t.Errorf("unexpected catalog %v", c)
	}
}

func TestParse_Invalid(t *testing.T) {
	tests := []string{
		"",
		"37777",
		"abc=Dahua",
		"0=Zero",
		"70000=Big",
		"80=",
	}
	for _, s := range tests {
		t.Run(s, func(t *testing.T) {
			if _, err := Parse(s); err == nil {
				t.Errorf("Expected error for %q", s)
			}
		})
	}
}

func TestDecode_Merge(t *testing.T) {
	data := []byte("ports:\n  37777: Dahua DVR\n  8443: Hikvision HTTPS\n")
	c, err := Decode(data, Default())
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if c[37777] != "Dahua DVR" {
		t.Errorf("override not applied: %q", c[37777])
	}
	if c[8443] != "Hikvision HTTPS" {
		t.Errorf("addition not applied: %q", c[8443])
	}
	if c[80] != "HTTP" {
		t.Errorf("built-in entry lost: %q", c[80])
	}
}

func TestDecode_Replace(t *testing.T) {
	data := []byte(`{"replace": true, "ports": {"554": "RTSP"}}`)
	c, err := Decode(data, Default())
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if len(c) != 1 || c[554] != "RTSP" {
		t.Errorf("Expected only 554, got %v", c)
	}
}

func TestDecode_Invalid(t *testing.T) {
	if _, err := Decode([]byte("replace: true\nports: {}\n"), Default()); !errors.Is(err, ErrInvalidPort) {
		t.Errorf("Expected ErrInvalidPort for empty replacement, got %v", err)
	}
	if _, err := Decode([]byte("ports: [1, 2"), Default()); err == nil {
		t.Error("Expected error for malformed document")
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ports.yaml")
	if err := os.WriteFile(path, []byte("ports:\n  9999: Custom\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	c, err := Load(path, Default())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if c[9999] != "Custom" {
		t.Errorf("Expected Custom for 9999, got %q", c[9999])
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), Default()); err == nil {
		t.Error("Expected error for missing file")
	}
}
