package probe

import (
	"context"
	"math"
	"os/exec"
	"runtime"
	"strconv"
	"time"
)

// Pinger sends a single ICMP echo and returns nil if the host replied.
type Pinger interface {
	Ping(ctx context.Context, ip string, timeout time.Duration) error
}

// PingerFunc adapts a function to Pinger.
type PingerFunc func(ctx context.Context, ip string, timeout time.Duration) error

// Ping calls f.
func (f PingerFunc) Ping(ctx context.Context, ip string, timeout time.Duration) error {
	return f(ctx, ip, timeout)
}

// ExecPinger runs the system ping command. The exit status decides liveness,
// so no raw socket privileges are needed.
type ExecPinger struct {
	// Command overrides the executable (default "ping").
	Command string
}

// Ping runs one echo request against ip.
func (e ExecPinger) Ping(ctx context.Context, ip string, timeout time.Duration) error {
	name := e.Command
	if name == "" {
		name = "ping"
	}
	secs := int(math.Ceil(timeout.Seconds()))
	if secs < 1 {
		secs = 1
	}

	// the command's own deadline plus a second of process overhead
	ctx, cancel := context.WithTimeout(ctx, time.Duration(secs+1)*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, name, pingArgs(runtime.GOOS, ip, secs)...)
	return cmd.Run()
}

func pingArgs(goos, ip string, secs int) []string {
	switch goos {
	case "windows":
		return []string{"-n", "1", "-w", strconv.Itoa(secs * 1000), ip}
	case "darwin", "freebsd", "netbsd", "openbsd":
		return []string{"-c", "1", "-t", strconv.Itoa(secs), ip}
	default:
		return []string{"-c", "1", "-W", strconv.Itoa(secs), ip}
	}
}
