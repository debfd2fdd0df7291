// Package reach answers whether a network host is up.
package reach

import (
	"context"
	"fmt"
	"math"
	"os"
	"time"

	logger "github.com/d2r2/go-logger"

	"github.com/starryalley/gate_bridge/pkg/cmds"
)

var lg = logger.NewPackageLogger("reach", logger.InfoLevel)

// Prober checks host reachability once.
type Prober interface {
	Probe(ctx context.Context, host string) bool
}

// ExecPinger probes with the system ping utility and reads only its exit status.
type ExecPinger struct {
	Bin     string        // defaults to "ping"
	Timeout time.Duration // per-reply wait passed as -W, whole seconds
	run     func(ctx context.Context, cmd string) error
}

// NewExecPinger returns a pinger that waits up to timeout for one echo reply.
func NewExecPinger(timeout time.Duration) *ExecPinger {
	return &ExecPinger{Bin: "ping", Timeout: timeout, run: cmds.RunCmd}
}

// Command returns the ping command line for host.
func (p *ExecPinger) Command(host string) string {
	secs := int(math.Ceil(p.Timeout.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return fmt.Sprintf("%s -c 1 -W %d %s", p.Bin, secs, host)
}

// Probe implements Prober.
func (p *ExecPinger) Probe(ctx context.Context, host string) bool {
	if err := p.run(ctx, p.Command(host)); err != nil {
		lg.Debugf("ping %s: %v", host, err)
		return false
	}
	return true
}

// New picks a prober by method name: "exec" or "icmp".
func New(method string, timeout time.Duration) (Prober, error) {
	switch method {
	case "", "exec":
		return NewExecPinger(timeout), nil
	case "icmp":
		return &ICMPPinger{Timeout: timeout, ID: os.Getpid() & 0xffff}, nil
	}
	return nil, fmt.Errorf("unknown ping method %q", method)
}
