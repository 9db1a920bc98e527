// Package snapshot is the Optimized Snapshot Layer (C4): a read path
// for sync-resolvable singletons that never takes the registry's lock
// (the slot lookup goes through the interner's mutex), published as an immutable,
// slot-indexed array and swapped atomically after a debounced rebuild.
//
// Grounded on internal/di/highperf_container.go, whose
// resolve() checks c.singletons.Load() (an atomic.Pointer to a plain
// map) before ever touching c.mu.RLock() — generalized here to a dense
// array indexed by internal/typekey's slot IDs, which is cheaper to
// probe than a map lookup and matches the "dense integer slot" data
// model this system's registry is built on.
package snapshot

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/corewire/di/internal/registry"
	"github.com/corewire/di/internal/typekey"
)

// DefaultDebounce and the clamp bounds match the documented defaults.
const (
	DefaultDebounce = 100 * time.Millisecond
	MinDebounce     = 50 * time.Millisecond
	MaxDebounce     = 1000 * time.Millisecond
)

func clampDebounce(d time.Duration) time.Duration {
	if d < MinDebounce {
		return MinDebounce
	}
	if d > MaxDebounce {
		return MaxDebounce
	}
	return d
}

// cell is one slot in the dense snapshot array: the factory entry
// registered for that slot (nil if the slot belongs to a non-sync
// variant or has been released) and any CAS-filled cached singleton.
type cell struct {
	entry    *registry.Entry
	key      typekey.Key
	instance atomic.Value // holds the cached singleton, once constructed
}

// snap is one immutable, published view of the sync-resolvable world.
type snap struct {
	cells      []*cell
	generation uint64
}

// Layer is the snapshot cache sitting in front of internal/registry for
// the sync hot path: readers never take the registry's lock, and
// writers publish a rebuilt snapshot after a debounce.
type Layer struct {
	enabled atomic.Bool
	current atomic.Pointer[snap]

	registry *registry.Registry
	interner *typekey.Interner
	debounce time.Duration

	writeMu  sync.Mutex
	pending  atomic.Bool
	timer    *time.Timer
	timerMu  sync.Mutex
	gen      atomic.Uint64
	stopCh   chan struct{}
	stopOnce sync.Once
}

// New builds a Layer wired to reg and in, starts disabled (matching
// the registry's default — optimization is opt-in via EnableOptimization
// at the façade), and registers itself as reg's change hook.
func New(reg *registry.Registry, in *typekey.Interner, debounce time.Duration) *Layer {
	l := &Layer{
		registry: reg,
		interner: in,
		debounce: clampDebounce(debounce),
		stopCh:   make(chan struct{}),
	}
	empty := &snap{cells: make([]*cell, 0)}
	l.current.Store(empty)
	reg.OnChange(l.scheduleRebuild)
	return l
}

// Enable turns the lock-free read path on and forces an immediate rebuild.
func (l *Layer) Enable() {
	l.enabled.Store(true)
	l.rebuild()
}

// Disable turns the lock-free read path off; reads fall through to the registry.
func (l *Layer) Disable() { l.enabled.Store(false) }

// Enabled reports the current toggle state.
func (l *Layer) Enabled() bool { return l.enabled.Load() }

// Close stops the debounce timer goroutine, if one is pending.
func (l *Layer) Close() {
	l.stopOnce.Do(func() { close(l.stopCh) })
}

// scheduleRebuild coalesces bursts of registry writes into a single
// rebuild after debounce has elapsed, rather than rebuilding on every
// single registration.
func (l *Layer) scheduleRebuild() {
	if !l.enabled.Load() {
		return
	}
	l.timerMu.Lock()
	defer l.timerMu.Unlock()

	if l.timer != nil {
		l.timer.Stop()
	}
	l.timer = time.AfterFunc(l.debounce, func() {
		select {
		case <-l.stopCh:
			return
		default:
		}
		l.rebuild()
	})
}

// rebuild copies the registry's current sync-resolvable entries into a
// fresh dense array and atomically publishes it. Only one rebuild runs
// at a time; concurrent triggers are serialized by writeMu, and each
// of them still rebuilds.
func (l *Layer) rebuild() {
	l.writeMu.Lock()
	defer l.writeMu.Unlock()

	entries := l.registry.SyncEntries()
	size := l.interner.Len()
	cells := make([]*cell, size)
	for key, entry := range entries {
		slot, ok := l.interner.Lookup(key)
		if !ok {
			continue
		}
		if int(slot) >= len(cells) {
			grown := make([]*cell, slot+1)
			copy(grown, cells)
			cells = grown
		}
		cells[slot] = &cell{entry: entry, key: key}
	}

	next := &snap{cells: cells, generation: l.gen.Add(1)}
	l.current.Store(next)
}

// Get serves a sync resolution off the published snapshot without ever
// taking the registry's lock. It returns ok=false whenever the fast
// path cannot serve the request (disabled, unknown slot, no cached or
// cacheable singleton) so the caller falls through to the registry. A
// factory error is returned with ok=true, so the caller surfaces it
// instead of invoking the factory a second time through the registry.
func (l *Layer) Get(ctx context.Context, key typekey.Key, resolve registry.ResolveFunc) (any, bool, error) {
	if !l.enabled.Load() {
		return nil, false, nil
	}

	slot, ok := l.interner.Lookup(key)
	if !ok {
		return nil, false, nil
	}

	s := l.current.Load()
	if int(slot) >= len(s.cells) {
		return nil, false, nil
	}
	c := s.cells[slot]
	if c == nil || c.entry == nil {
		return nil, false, nil
	}

	if cached := c.instance.Load(); cached != nil {
		return cached.(box).v, true, nil
	}
	if !c.entry.CacheSingleton {
		return nil, false, nil
	}

	v, err := c.entry.Sync(ctx, resolve)
	if err != nil {
		return nil, true, err
	}
	// CAS-style fill: the first successful store wins, later ones are
	// no-ops, and none of this bumps the snapshot's generation counter.
	c.instance.CompareAndSwap(nil, box{v: v})
	return c.instance.Load().(box).v, true, nil
}

// box wraps an any value so atomic.Value.Load() can distinguish "never
// stored" (nil) from "stored a literal nil interface".
type box struct{ v any }

// Generation returns the currently published snapshot's generation
// counter, for tests and diagnostics.
func (l *Layer) Generation() uint64 { return l.current.Load().generation }

// Len returns the size of the currently published dense array.
func (l *Layer) Len() int { return len(l.current.Load().cells) }
