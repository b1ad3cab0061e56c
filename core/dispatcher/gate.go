package dispatcher

import (
	"sync"

	"github.com/faasforge/faascore/domain/function"
)

// concurrencyGate enforces one function's configurable concurrency cap,
// rejecting with 429 too_many_concurrent once exceeded, the same
// counting-not-token-bucket shape as a classic AllowConcurrent/Release
// semaphore, keyed per
// function instead of per process-wide resource name.
type concurrencyGate struct {
	mu      sync.Mutex
	max     int // 0 = unlimited
	current int
}

func newConcurrencyGate(max int) *concurrencyGate {
	return &concurrencyGate{max: max}
}

// acquire reports whether the caller may proceed; false means the cap is
// already saturated and release must not be called.
func (g *concurrencyGate) acquire() bool {
	if g.max <= 0 {
		return true
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.current >= g.max {
		return false
	}
	g.current++
	return true
}

func (g *concurrencyGate) release() {
	if g.max <= 0 {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.current > 0 {
		g.current--
	}
}

// gateFor returns (creating if absent) the gate for d's function, resizing
// it if the descriptor's configured cap has changed since the gate was
// created — the resolver's cache can hand back an updated descriptor
// without the gate ever being rebuilt.
func (d *Dispatcher) gateFor(d2 *function.Descriptor) *concurrencyGate {
	if v, ok := d.gates.Load(d2.ID); ok {
		g := v.(*concurrencyGate)
		g.mu.Lock()
		g.max = d2.Concurrency
		g.mu.Unlock()
		return g
	}
	g := newConcurrencyGate(d2.Concurrency)
	actual, _ := d.gates.LoadOrStore(d2.ID, g)
	return actual.(*concurrencyGate)
}
