package camscan

import (
	"context"
	"net/netip"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/marcuoli/go-camscan/internal/scheduler"
	"github.com/marcuoli/go-camscan/pkg/camscan/dns"
	"github.com/marcuoli/go-camscan/pkg/camscan/network"
	"github.com/marcuoli/go-camscan/pkg/camscan/oui"
	"github.com/marcuoli/go-camscan/pkg/camscan/probe"
)

// Scanner runs one background scan at a time. Options may be set directly
// before the Scanner is shared; afterwards use SetOptions.
type Scanner struct {
	Options Options

	mu  sync.Mutex
	cur *scanState
}

// New creates a new Scanner with DefaultOptions.
func New() *Scanner {
	return &Scanner{Options: DefaultOptions()}
}

// scanState is the state of one scan. The counter is updated by the
// workers; everything else is written once, when the scan finishes.
type scanState struct {
	id      string
	rng     string
	total   int
	timeout time.Duration
	started time.Time
	scanned atomic.Int64
	done    chan struct{}

	mu       sync.RWMutex
	state    State
	results  []DeviceResult
	err      error
	finished time.Time
}

func newScanState(rng string, total int, timeout time.Duration) *scanState {
	return &scanState{
		id:      uuid.NewString(),
		rng:     rng,
		total:   total,
		timeout: timeout,
		started: time.Now(),
		done:    make(chan struct{}),
		state:   StateScanning,
	}
}

func (st *scanState) advance(n int) int {
	return int(st.scanned.Add(int64(n)))
}

func (st *scanState) finish(results []DeviceResult, err error) {
	st.mu.Lock()
	st.results = results
	st.err = err
	st.finished = time.Now()
	if err != nil {
		st.state = StateFailed
	} else {
		st.state = StateCompleted
	}
	st.mu.Unlock()
	close(st.done)
}

func (st *scanState) snapshot() Snapshot {
	st.mu.RLock()
	defer st.mu.RUnlock()
	s := Snapshot{
		ID:         st.id,
		Range:      st.rng,
		State:      st.state,
		Total:      st.total,
		Scanned:    int(st.scanned.Load()),
		Found:      len(st.results),
		StartedAt:  st.started,
		FinishedAt: st.finished,
		Err:        st.err,
	}
	if st.err != nil {
		s.Error = st.err.Error()
	}
	return s
}

// ScanNetwork starts scanning rng in the background and returns at once.
// It fails with ErrAlreadyScanning while a scan runs, and with an error
// matching ErrInvalidRange when rng cannot be expanded.
func (s *Scanner) ScanNetwork(rng string) error {
	return s.ScanNetworkContext(context.Background(), rng)
}

// ScanNetworkContext is like ScanNetwork; cancelling ctx stops the scan,
// which then ends in StateFailed with the context's error.
func (s *Scanner) ScanNetworkContext(ctx context.Context, rng string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cur != nil && s.cur.snapshot().State == StateScanning {
		return ErrAlreadyScanning
	}

	hosts, err := network.Expand(rng)
	if err != nil {
		return err
	}
	opts := s.Options.normalize()
	if err := opts.Catalog.Validate(); err != nil {
		return err
	}

	st := newScanState(rng, len(hosts), opts.Timeout)
	s.cur = st
	debugLog(MethodScan, "scan %s started: %s (%d hosts)", st.id, rng, len(hosts))

	r := &scanRun{
		state:    st,
		opts:     opts,
		prober:   opts.prober(),
		resolver: opts.resolver(),
		log: opts.Logger.With(
			zap.String("component", "scanner"),
			zap.String("scan_id", st.id),
		),
	}
	go r.run(ctx, hosts)
	return nil
}

// SetOptions replaces the options used by the next scan. A running scan
// keeps the options it started with.
func (s *Scanner) SetOptions(o Options) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Options = o
}

// GetOptions returns a copy of the options the next scan will use.
func (s *Scanner) GetOptions() Options {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Options
}

// Wait blocks until the current scan finishes or timeout elapses, and
// reports whether it finished. A non-positive timeout waits indefinitely.
// Wait does not stop the scan. It returns false if no scan was started.
func (s *Scanner) Wait(timeout time.Duration) bool {
	if timeout <= 0 {
		return s.WaitContext(context.Background())
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return s.WaitContext(ctx)
}

// WaitContext is like Wait but gives up when ctx is done.
func (s *Scanner) WaitContext(ctx context.Context) bool {
	st := s.current()
	if st == nil {
		return false
	}
	select {
	case <-st.done:
		return true
	case <-ctx.Done():
		return false
	}
}

// IsScanning reports whether a scan is running.
func (s *Scanner) IsScanning() bool {
	return s.Snapshot().State == StateScanning
}

// Results returns a copy of the devices found by the last finished scan,
// sorted by address. It is empty while a scan is running.
func (s *Scanner) Results() []DeviceResult {
	st := s.current()
	if st == nil {
		return nil
	}
	st.mu.RLock()
	defer st.mu.RUnlock()
	out := make([]DeviceResult, len(st.results))
	for i, d := range st.results {
		out[i] = d.clone()
	}
	return out
}

// Progress returns the hosts scanned so far and the total for the current scan.
func (s *Scanner) Progress() (scanned, total int) {
	st := s.current()
	if st == nil {
		return 0, 0
	}
	return int(st.scanned.Load()), st.total
}

// Snapshot returns the state of the current scan. Without one it is StateIdle.
func (s *Scanner) Snapshot() Snapshot {
	st := s.current()
	if st == nil {
		return Snapshot{State: StateIdle}
	}
	return st.snapshot()
}

func (s *Scanner) current() *scanState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cur
}

// scanRun drives a single scan.
type scanRun struct {
	state    *scanState
	opts     Options
	prober   *probe.Prober
	resolver *dns.Resolver
	log      *zap.Logger
	sched    *scheduler.Scheduler
	found    chan DeviceResult
}

func (r *scanRun) run(parent context.Context, hosts []netip.Addr) {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	sched := scheduler.New(r.opts.MaxConcurrent, r.opts.RateLimit)
	r.sched = sched
	r.log.Info("scan started",
		zap.String("range", r.state.rng),
		zap.Int("hosts", r.state.total),
		zap.Int("max_concurrent", sched.Max()),
		zap.Duration("timeout", r.opts.Timeout),
		zap.Int("ports", len(r.opts.Catalog)),
	)

	sched.OnError(func(err error) {
		r.log.Error("scan aborted", zap.Error(err))
		cancel()
	})

	r.found = make(chan DeviceResult)
	var results []DeviceResult
	collected := make(chan struct{})
	go func() {
		defer close(collected)
		for d := range r.found {
			results = append(results, d)
		}
	}()

	var dispatchErr error
	dispatched := 0
	for _, addr := range hosts {
		addr := addr
		if err := sched.Go(ctx, func(ctx context.Context) { r.host(ctx, addr) }); err != nil {
			dispatchErr = err
			break
		}
		dispatched++
	}
	sched.Wait()
	close(r.found)
	<-collected

	if rest := r.state.total - dispatched; rest > 0 {
		r.state.advance(rest)
	}

	err := sched.Err()
	if err == nil {
		err = dispatchErr
	}
	if err == nil {
		err = parent.Err()
	}

	sort.Slice(results, func(i, j int) bool {
		a, _ := netip.ParseAddr(results[i].IP)
		b, _ := netip.ParseAddr(results[j].IP)
		return a.Less(b)
	})
	r.state.finish(results, err)

	snap := r.state.snapshot()
	fields := []zap.Field{
		zap.Duration("duration", snap.Duration()),
		zap.Int("scanned", snap.Scanned),
		zap.Int("total", snap.Total),
		zap.Int("found", snap.Found),
		zap.Int("peak_in_flight", sched.Peak()),
	}
	if err != nil {
		r.log.Warn("scan failed", append(fields, zap.Error(err))...)
		debugLog(MethodScan, "scan %s failed: %v", snap.ID, err)
		return
	}
	r.log.Info("scan completed", fields...)
	debugLog(MethodScan, "scan %s completed: %d devices", snap.ID, snap.Found)
}

// host runs the probe sequence for one address.
func (r *scanRun) host(ctx context.Context, addr netip.Addr) {
	defer r.advance()

	ip := addr.String()
	live := r.prober.Alive(ctx, ip)
	if !live.Alive {
		if r.opts.Verbose {
			r.log.Debug("host not alive", zap.String("ip", ip), zap.Error(live.Err))
		}
		return
	}

	results := r.prober.Ports(ctx, ip, r.opts.Catalog)
	open := probe.Open(results)
	if r.opts.Verbose {
		for _, pr := range results {
			if pr.Status == probe.StatusError {
				r.log.Debug("port probe failed", zap.String("ip", ip), zap.Int("port", pr.Port), zap.Error(pr.Err))
			}
		}
	}
	if len(open) == 0 {
		return
	}

	dev := DeviceResult{IP: ip, MAC: live.MAC}
	for _, pr := range open {
		dev.Ports = append(dev.Ports, OpenPort{Port: pr.Port, Label: pr.Label})
	}
	r.enrich(ctx, &dev)

	debugLog(MethodScan, "device %s: %s", ip, dev.PortList())
	r.found <- dev
}

// enrich adds MAC, vendor and hostname to a found device. Failures only cost the field.
func (r *scanRun) enrich(ctx context.Context, dev *DeviceResult) {
	if dev.MAC == "" && r.prober.ARP != nil {
		res, err := r.prober.ARP.LookupAddr(ctx, dev.IP)
		switch {
		case err != nil:
			r.verboseErr("arp lookup failed", dev.IP, err)
		case res.IsUp:
			dev.MAC = res.MACAddress
		}
	}
	if dev.MAC != "" && r.opts.LookupVendor {
		dev.Vendor = oui.LookupName(dev.MAC)
	}
	if r.resolver != nil {
		res, err := r.resolver.LookupAddr(ctx, dev.IP)
		if err != nil {
			r.verboseErr("reverse lookup failed", dev.IP, err)
		} else {
			dev.Hostname = res.Hostname
		}
	}
}

func (r *scanRun) advance() {
	n := r.state.advance(1)
	if r.opts.Verbose && n%r.opts.ProgressEvery == 0 {
		r.log.Info("progress",
			zap.Int("scanned", n),
			zap.Int("total", r.state.total),
			zap.Int("in_flight", r.sched.InFlight()),
		)
	}
}

func (r *scanRun) verboseErr(msg, ip string, err error) {
	if r.opts.Verbose {
		r.log.Debug(msg, zap.String("ip", ip), zap.Error(err))
	}
}
