package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mattn/go-isatty"
	"go.uber.org/zap"

	"github.com/marcuoli/go-camscan/internal/api"
	"github.com/marcuoli/go-camscan/pkg/camscan"
	"github.com/marcuoli/go-camscan/pkg/camscan/camera"
	"github.com/marcuoli/go-camscan/pkg/camscan/catalog"
	"github.com/marcuoli/go-camscan/pkg/camscan/oui"
)

// buildCatalog applies a catalog file and then inline overrides to the default table.
func buildCatalog(file, inline string, replace bool) (catalog.Catalog, error) {
	c := catalog.Default()
	if file != "" {
		var err error
		if c, err = catalog.Load(file, c); err != nil {
			return nil, err
		}
	}
	if inline != "" {
		extra, err := catalog.Parse(inline)
		if err != nil {
			return nil, err
		}
		if replace {
			return extra, nil
		}
		c = c.Merge(extra)
	}
	return c, nil
}

// newLogger returns a development logger with -v, a JSON logger for the API
// server, and otherwise a console logger that only reports warnings so the
// progress line and the results table stay readable.
func newLogger(verbose, serve bool) (*zap.Logger, error) {
	switch {
	case verbose:
		return zap.NewDevelopment()
	case serve:
		return zap.NewProduction()
	}
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "console"
	cfg.EncoderConfig = zap.NewDevelopmentEncoderConfig()
	cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	cfg.DisableStacktrace = true
	cfg.Sampling = nil
	return cfg.Build()
}

// debugFormat tags a debug message as "[DEBUG][Scan:*] ...".
func debugFormat(method camscan.Method, format string) string {
	return camscan.LogPrefixDebug + camscan.MethodToPrefix(method) + " " + format
}

func main() {
	var (
		cidr        string
		timeout     time.Duration
		workers     int
		verbose     bool
		portsStr    string
		portsFile   string
		replace     bool
		useARP      bool
		resolve     bool
		dnsServer   string
		ouiDB       string
		rate        float64
		poll        time.Duration
		serve       string
		user        string
		pass        string
		snapshotDir string
	)

	flag.StringVar(&cidr, "cidr", "", "Range to scan: CIDR, single IP or a-b (e.g. 192.168.1.0/24)")
	flag.DurationVar(&timeout, "timeout", time.Second, "Per-port dial timeout")
	flag.IntVar(&workers, "workers", 200, "Maximum hosts probed concurrently")
	flag.BoolVar(&verbose, "v", false, "Verbose output")
	flag.StringVar(&portsStr, "ports", "", "Extra catalog ports, e.g. 37777=Dahua,8443=HTTPS")
	flag.StringVar(&portsFile, "ports-file", "", "YAML/JSON catalog file")
	flag.BoolVar(&replace, "replace-ports", false, "Use only the -ports entries instead of extending the catalog")
	flag.BoolVar(&useARP, "arp", false, "ARP liveness fallback and MAC capture (local subnet, needs root)")
	flag.BoolVar(&resolve, "resolve", false, "Reverse DNS lookup of found devices")
	flag.StringVar(&dnsServer, "dns-server", "", "DNS server for -resolve (default from /etc/resolv.conf)")
	flag.StringVar(&ouiDB, "oui-db", "", "Path to an IEEE oui.txt for MAC vendor names")
	flag.Float64Var(&rate, "rate", 0, "Maximum hosts started per second (0 = unlimited)")
	flag.DurationVar(&poll, "poll", 5*time.Second, "Progress interval")
	flag.StringVar(&serve, "serve", "", "Serve the HTTP API on this address instead of scanning once")
	flag.StringVar(&user, "user", "", "Camera username; enables serial and snapshot retrieval")
	flag.StringVar(&pass, "pass", "", "Camera password (default $CAMSCAN_PASSWORD)")
	flag.StringVar(&snapshotDir, "snapshot-dir", "", "Save one snapshot per camera into this directory")
	flag.Parse()

	logger, err := newLogger(verbose, serve != "")
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	sugar := logger.Sugar()
	camscan.SetDebugLogger(func(method camscan.Method, format string, args ...interface{}) {
		sugar.Debugf(debugFormat(method, format), args...)
	})
	camera.DebugLogger = func(format string, args ...interface{}) {
		sugar.Debugf(debugFormat(camscan.MethodCamera, format), args...)
	}
	if verbose {
		camscan.SetDebugLevel(camscan.DebugVerbose)
	}

	ports, err := buildCatalog(portsFile, portsStr, replace)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid ports: %v\n", err)
		os.Exit(2)
	}

	s := camscan.New()
	s.Options.Timeout = timeout
	s.Options.MaxConcurrent = workers
	s.Options.Verbose = verbose
	s.Options.Catalog = ports
	s.Options.ARP = useARP
	s.Options.ResolveHostnames = resolve
	s.Options.DNSServer = dnsServer
	s.Options.RateLimit = rate
	s.Options.Logger = logger
	if ouiDB != "" {
		if err := oui.SetDatabase(ouiDB); err != nil {
			fmt.Fprintf(os.Stderr, "oui: %v\n", err)
			os.Exit(2)
		}
		s.Options.LookupVendor = true
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if serve != "" {
		if !verbose {
			gin.SetMode(gin.ReleaseMode)
		}
		if err := runServer(ctx, serve, s, logger); err != nil {
			logger.Error("server", zap.Error(err))
			os.Exit(1)
		}
		return
	}

	if cidr == "" {
		fmt.Fprintln(os.Stderr, "error: -cidr is required")
		flag.Usage()
		os.Exit(2)
	}

	if err := s.ScanNetworkContext(ctx, cidr); err != nil {
		fmt.Fprintf(os.Stderr, "invalid range: %v\n", err)
		os.Exit(2)
	}
	_, total := s.Progress()
	fmt.Printf("Scanning %d IPs on %s...\n", total, cidr)

	tty := isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())
	for s.IsScanning() {
		s.Wait(poll)
		printProgress(os.Stdout, s, tty)
	}
	if tty {
		fmt.Println()
	}

	snap := s.Snapshot()
	switch {
	case errors.Is(snap.Err, context.Canceled):
		fmt.Println("\nScan cancelled by user")
	case snap.Err != nil:
		fmt.Printf("\nScan error: %v\n", snap.Err)
	default:
		fmt.Printf("\nScan completed in %.2f seconds\n", snap.Duration().Seconds())
		fmt.Printf("Scanned %d/%d IPs\n", snap.Scanned, snap.Total)
		fmt.Printf("Found %d potential CCTV devices\n", snap.Found)
	}
	s.PrintResults()

	if user != "" {
		if pass == "" {
			pass = os.Getenv("CAMSCAN_PASSWORD")
		}
		inspect(ctx, os.Stdout, s.Results(), camera.Credentials{Username: user, Password: pass}, snapshotDir, logger)
	}
	if snap.Err != nil {
		os.Exit(1)
	}
}

func printProgress(w io.Writer, s *camscan.Scanner, tty bool) {
	scanned, total := s.Progress()
	if tty {
		fmt.Fprintf(w, "\rProgress: %d/%d IPs scanned", scanned, total)
		return
	}
	fmt.Fprintf(w, "Progress: %d/%d IPs scanned\n", scanned, total)
}

// inspect contacts every recognised camera for its serial number and,
// with dir set, saves a snapshot named after its address.
func inspect(ctx context.Context, w io.Writer, devices []camscan.DeviceResult, creds camera.Credentials, dir string, logger *zap.Logger) {
	for _, d := range devices {
		client, err := camera.NewClient(d, creds)
		if err != nil {
			continue
		}
		kind := camera.Classify(d)
		log := logger.With(zap.String("ip", d.IP), zap.Stringer("kind", kind))

		sn, err := client.SerialNumber(ctx)
		if err != nil {
			log.Warn("serial number", zap.Error(err))
			continue
		}
		fmt.Fprintf(w, "CCTV(ip=%s, SN=%s, kind=%s)\n", d.IP, sn, kind)

		if dir == "" {
			continue
		}
		data, err := client.Snapshot(ctx, 1)
		if err != nil {
			log.Warn("snapshot", zap.Error(err))
			continue
		}
		path := filepath.Join(dir, d.IP+".jpg")
		if err := camera.SaveSnapshot(path, data); err != nil {
			log.Warn("save snapshot", zap.Error(err))
			continue
		}
		fmt.Fprintf(w, "Snapshot saved to %s\n", path)
	}
}

func runServer(ctx context.Context, addr string, s *camscan.Scanner, logger *zap.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           api.NewHandler(s, logger).Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	logger.Info("api listening", zap.String("addr", addr), zap.String("version", camscan.VersionInfo()))

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}
