// Package dns tests for reverse lookups.
package dns

import (
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	mdns "github.com/miekg/dns"
)

// startServer runs a local DNS server answering PTR queries from names.
func startServer(t *testing.T, names map[string]string) string {
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

func TestNewResolver(t *testing.T) {
	r := NewResolver()
	if r.Timeout != DefaultTimeout {
		t.Errorf("Expected timeout %v, got %v", DefaultTimeout, r.Timeout)
	}
}

func TestLookupAddr(t *testing.T) {
	addr := startServer(t, map[string]string{
		"21.1.168.192.in-addr.arpa.": "ipc-hfw2431.lan.",
	})
	r := NewResolver()
	r.Server = addr
	r.Timeout = time.Second

	res, err := r.LookupAddr(context.Background(), "192.168.1.21")
	if err != nil {
		t.Fatalf("LookupAddr failed: %v", err)
	}
	if res.Hostname != "ipc-hfw2431.lan" {
		t.Errorf("Hostname = %q, want ipc-hfw2431.lan", res.Hostname)
	}
	if len(res.All) != 1 {
		t.Errorf("Expected 1 name, got %v", res.All)
	}
}

func TestLookupAddr_NXDomain(t *testing.T) {
	addr := startServer(t, nil)
	r := NewResolver()
	r.Server = addr
	r.Timeout = time.Second

	res, err := r.LookupAddr(context.Background(), "192.168.1.99")
	if err == nil {
		t.Fatal("Expected error for NXDOMAIN")
	}
	if res.Hostname != "" {
		t.Errorf("Expected empty hostname, got %q", res.Hostname)
	}
}

func TestLookupAddr_InvalidIP(t *testing.T) {
	r := NewResolver()
	r.Server = "127.0.0.1:1"
	if _, err := r.LookupAddr(context.Background(), "not-an-ip"); err == nil {
		t.Error("Expected error for invalid IP")
	}
}

func TestServer(t *testing.T) {
	r := &Resolver{Server: "10.0.0.53"}
	if s, _ := r.server(); s != "10.0.0.53:53" {
		t.Errorf("server() = %q, want 10.0.0.53:53", s)
	}
	r.Server = "10.0.0.53:5353"
	if s, _ := r.server(); s != "10.0.0.53:5353" {
		t.Errorf("server() = %q, want 10.0.0.53:5353", s)
	}
}

func TestServer_ResolvConf(t *testing.T) {
	old := ResolvConf
	t.Cleanup(func() { ResolvConf = old })

	path := filepath.Join(t.TempDir(), "resolv.conf")
	if err := os.WriteFile(path, []byte("nameserver 192.0.2.53\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	ResolvConf = path
	if s, err := (&Resolver{}).server(); err != nil || s != "192.0.2.53:53" {
		t.Errorf("server() = %q, %v", s, err)
	}

	ResolvConf = filepath.Join(t.TempDir(), "missing")
	if _, err := (&Resolver{}).server(); !errors.Is(err, ErrNoServer) {
		t.Errorf("Expected ErrNoServer, got %v", err)
	}
}
