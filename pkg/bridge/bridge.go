// Package bridge runs the periodic poll: it reports gate changes and keeps
// the plug switch in line with host reachability.
package bridge

import (
	"context"
	"sync"
	"time"

	logger "github.com/d2r2/go-logger"

	"github.com/starryalley/gate_bridge/pkg/gate"
	"github.com/starryalley/gate_bridge/pkg/notifier"
)

var lg = logger.NewPackageLogger("bridge", logger.InfoLevel)

// GateReader is the gate cell written by the feed listener.
type GateReader interface {
	Changes() []gate.Change
	Updated() time.Time
}

// Notifier shows the gate reading in the chat.
type Notifier interface {
	Notify(ctx context.Context, open bool) (notifier.Result, error)
}

// Prober checks host reachability.
type Prober interface {
	Probe(ctx context.Context, host string) bool
}

// Plug switches the plug data point.
type Plug interface {
	SetState(ctx context.Context, deviceID string, value bool) error
}

// GateObserver receives every gate change after the chat was notified.
type GateObserver interface {
	GateChanged(ctx context.Context, open bool, at time.Time)
}

// Bridge holds the poll loop state. Tick must not run concurrently.
type Bridge struct {
	gate      GateReader
	notifier  Notifier
	prober    Prober
	plug      Plug
	host      string
	plugID    string
	observers []GateObserver
	now       func() time.Time

	lastSeen bool
	seen     bool
}

// New creates a bridge probing host and switching plugID.
func New(g GateReader, n Notifier, p Prober, plug Plug, host, plugID string, observers ...GateObserver) *Bridge {
	return &Bridge{
		gate:      g,
		notifier:  n,
		prober:    p,
		plug:      plug,
		host:      host,
		plugID:    plugID,
		observers: observers,
		now:       time.Now,
	}
}

// Observe adds a gate observer.
func (b *Bridge) Observe(o GateObserver) {
	b.observers = append(b.observers, o)
}

// Tick runs one poll iteration. Every failure is logged and the next tick
// starts fresh.
func (b *Bridge) Tick(ctx context.Context) {
	b.checkGate(ctx)
	b.checkHost(ctx)
}

func (b *Bridge) checkGate(ctx context.Context) {
	changes := b.gate.Changes()
	if len(changes) == 0 {
		if !b.seen {
			lg.Debugf("No gate reading yet")
		}
		return
	}

	prev, prevSeen := b.lastSeen, b.seen
	final := changes[len(changes)-1]
	b.lastSeen, b.seen = final.Open, true
	lg.Infof("Gate is %s, reported %v ago, %d change(s) since last poll",
		gate.Text(final.Open), b.now().Sub(b.gate.Updated()).Round(time.Second), len(changes))

	if !prevSeen || final.Open != prev {
		res, err := b.notifier.Notify(ctx, final.Open)
		if err != nil {
			lg.Errorf("Failed to notify gate state: %v", err)
		} else {
			lg.Debugf("Status message %d %s", res.MessageID, res.Action)
			for _, cerr := range res.Cleanup {
				lg.Warningf("Status message cleanup: %v", cerr)
			}
		}
	} else {
		lg.Infof("Gate went %s and back within one poll", gate.Text(!final.Open))
	}

	for _, c := range changes {
		for _, o := range b.observers {
			o.GateChanged(ctx, c.Open, c.At)
		}
	}
}

func (b *Bridge) checkHost(ctx context.Context) {
	reachable := b.prober.Probe(ctx, b.host)
	lg.Debugf("%s reachable: %v", b.host, reachable)
	if err := b.plug.SetState(ctx, b.plugID, reachable); err != nil {
		lg.Errorf("Failed to set plug %s to %v: %v", b.plugID, reachable, err)
	}
}

// Guarded serializes ticks for a periodic driver. No tick runs after Close
// returns.
type Guarded struct {
	bridge *Bridge
	ctx    context.Context

	mu     sync.Mutex
	closed bool
}

// Guard returns a guarded ticker running b with ctx.
func (b *Bridge) Guard(ctx context.Context) *Guarded {
	return &Guarded{bridge: b, ctx: ctx}
}

// Tick runs one poll unless the guard is closed.
func (g *Guarded) Tick() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed || g.ctx.Err() != nil {
		return
	}
	g.bridge.Tick(g.ctx)
}

// Close waits for a running tick and blocks later ones.
func (g *Guarded) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.closed = true
}
