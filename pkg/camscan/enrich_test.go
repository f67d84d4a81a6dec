package camscan

import (
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	mdns "github.com/miekg/dns"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/marcuoli/go-camscan/pkg/camscan/arp"
	"github.com/marcuoli/go-camscan/pkg/camscan/oui"
)

// startPTRServer runs a local DNS server answering PTR queries from names.
func startPTRServer(t *testing.T, names map[string]string) string {
	t.Helper()
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	handler := mdns.HandlerFunc(func(w mdns.ResponseWriter, req *mdns.Msg) {
		m := new(mdns.Msg)
		m.SetReply(req)
		q := req.Question[0]
		if name, ok := names[q.Name]; ok && q.Qtype == mdns.TypePTR {
			m.Answer = append(m.Answer, &mdns.PTR{
				Hdr: mdns.RR_Header{Name: q.Name, Rrtype: mdns.TypePTR, Class: mdns.ClassINET, Ttl: 60},
				Ptr: name,
			})
		} else {
			m.Rcode = mdns.RcodeNameError
		}
		_ = w.WriteMsg(m)
	})

	started := make(chan struct{})
	srv := &mdns.Server{PacketConn: pc, Handler: handler, NotifyStartedFunc: func() { close(started) }}
	go func() { _ = srv.ActivateAndServe() }()
	<-started
	t.Cleanup(func() { _ = srv.Shutdown() })
	return pc.LocalAddr().String()
}

// fakeARP answers with the MAC listed for an address and counts lookups.
type fakeARP struct {
	macs map[string]string

	mu    sync.Mutex
	calls map[string]int
}

func (f *fakeARP) LookupAddr(ctx context.Context, ip string) (*arp.Result, error) {
	f.mu.Lock()
	if f.calls == nil {
		f.calls = make(map[string]int)
	}
	f.calls[ip]++
	f.mu.Unlock()

	mac, ok := f.macs[ip]
	if !ok {
		return &arp.Result{IP: ip}, errors.New("no ARP reply")
	}
	return &arp.Result{IP: ip, MACAddress: mac, IsUp: true}, nil
}

func (f *fakeARP) count(ip string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[ip]
}

func useOUIDatabase(t *testing.T, content string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "oui.txt")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	old := oui.DatabasePath()
	if err := oui.SetDatabase(path); err != nil {
		t.Fatalf("SetDatabase failed: %v", err)
	}
	t.Cleanup(func() { _ = oui.SetDatabase(old) })
}

func TestScanNetwork_ResolvesHostnames(t *testing.T) {
	server := startPTRServer(t, map[string]string{
		"1.113.0.203.in-addr.arpa.": "cam1.lan.",
	})
	core, logs := observer.New(zap.DebugLevel)
	s := newTestScanner(openDialer("203.0.113.1:37777", "203.0.113.2:554"), pingAll)
	s.Options.ResolveHostnames = true
	s.Options.DNSServer = server
	s.Options.Verbose = true
	s.Options.Logger = zap.New(core)

	if err := s.ScanNetwork("203.0.113.0/30"); err != nil {
		t.Fatalf("ScanNetwork failed: %v", err)
	}
	waitDone(t, s)

	results := s.Results()
	if len(results) != 2 {
		t.Fatalf("Expected 2 devices, got %+v", results)
	}
	if results[0].IP != "203.0.113.1" || results[0].Hostname != "cam1.lan" {
		t.Errorf("Expected cam1.lan for 203.0.113.1, got %+v", results[0])
	}
	if results[1].Hostname != "" {
		t.Errorf("Expected no hostname for 203.0.113.2, got %q", results[1].Hostname)
	}

	failed := logs.FilterMessage("reverse lookup failed").All()
	if len(failed) != 1 || failed[0].ContextMap()["ip"] != "203.0.113.2" {
		t.Errorf("Expected one failed lookup for 203.0.113.2, got %v", failed)
	}
}

func TestScanNetwork_NoHostnamesByDefault(t *testing.T) {
	s := newTestScanner(openDialer("203.0.113.1:37777"), pingAll)
	s.Options.DNSServer = "127.0.0.1:1"

	if err := s.ScanNetwork("203.0.113.1"); err != nil {
		t.Fatalf("ScanNetwork failed: %v", err)
	}
	waitDone(t, s)

	results := s.Results()
	if len(results) != 1 || results[0].Hostname != "" {
		t.Errorf("Expected one device without hostname, got %+v", results)
	}
}

func TestScanNetwork_MACAndVendor(t *testing.T) {
	useOUIDatabase(t, `OUI/MA-L			Organization
company_id			Organization
				Address

BC-AD-28   (hex)		Hangzhou Hikvision Digital Technology Co.,Ltd.
BCAD28     (base 16)		Hangzhou Hikvision Digital Technology Co.,Ltd.
				No.555 Qianmo Road
				Hangzhou  Zhejiang  310052
				CN

`)
	resolver := &fakeARP{macs: map[string]string{
		"203.0.113.1": "bc:ad:28:11:22:33",
		"203.0.113.3": "00:00:5e:00:53:01",
	}}
	pingOnly2 := func(ctx context.Context, ip string, timeout time.Duration) error {
		if ip == "203.0.113.2" {
			return nil
		}
		return errors.New("exit status 1")
	}

	core, logs := observer.New(zap.DebugLevel)
	s := newTestScanner(openDialer(
		"203.0.113.1:80", "203.0.113.1:37777",
		"203.0.113.2:554",
		"203.0.113.3:37777",
	), pingOnly2)
	s.Options.ARP = true
	s.Options.ARPResolver = resolver
	s.Options.LookupVendor = true
	s.Options.Verbose = true
	s.Options.Logger = zap.New(core)

	if err := s.ScanNetwork("203.0.113.0/29"); err != nil {
		t.Fatalf("ScanNetwork failed: %v", err)
	}
	waitDone(t, s)

	results := s.Results()
	if len(results) != 3 {
		t.Fatalf("Expected 3 devices, got %+v", results)
	}

	tests := []struct {
		ip     string
		mac    string
		vendor string
		lookup int
	}{
		// alive over TCP, MAC added afterwards
		{"203.0.113.1", "bc:ad:28:11:22:33", "Hangzhou Hikvision Digital Technology Co.,Ltd.", 1},
		// alive by ping, no ARP reply
		{"203.0.113.2", "", "", 1},
		// alive by ARP, MAC kept from liveness
		{"203.0.113.3", "00:00:5e:00:53:01", "", 1},
	}
	for i, tt := range tests {
		t.Run(tt.ip, func(t *testing.T) {
			d := results[i]
			if d.IP != tt.ip || d.MAC != tt.mac || d.Vendor != tt.vendor {
				t.Errorf("Got %+v, want ip=%s mac=%q vendor=%q", d, tt.ip, tt.mac, tt.vendor)
			}
			if n := resolver.count(tt.ip); n != tt.lookup {
				t.Errorf("ARP lookups for %s = %d, want %d", tt.ip, n, tt.lookup)
			}
		})
	}

	failed := logs.FilterMessage("arp lookup failed").All()
	if len(failed) != 1 || failed[0].ContextMap()["ip"] != "203.0.113.2" {
		t.Errorf("Expected one failed ARP lookup for 203.0.113.2, got %v", failed)
	}
}

func TestScanNetwork_ARPResolverNeedsARP(t *testing.T) {
	resolver := &fakeARP{macs: map[string]string{"203.0.113.1": "bc:ad:28:11:22:33"}}
	s := newTestScanner(openDialer("203.0.113.1:37777"), pingAll)
	s.Options.ARPResolver = resolver

	if err := s.ScanNetwork("203.0.113.1"); err != nil {
		t.Fatalf("ScanNetwork failed: %v", err)
	}
	waitDone(t, s)

	if results := s.Results(); len(results) != 1 || results[0].MAC != "" {
		t.Errorf("Expected no MAC without ARP, got %+v", results)
	}
	if n := resolver.count("203.0.113.1"); n != 0 {
		t.Errorf("Expected no ARP lookups, got %d", n)
	}
}
