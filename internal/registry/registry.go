// Package registry is the Unified Registry (C2): the authoritative
// store of factories for every registered type, and the resolution
// entry point that the scope manager (internal/scope) and diagnostics
// engine (internal/diagnostics) are consulted from.
//
// Grounded on internal/di/highperf_container.go (the
// per-lifecycle resolve switch) and on
// pegasusheavy-go-dependency-injector/di/container.go's resolve/
// invokeFactory chain-passing shape, generalized from a reflection-
// driven constructor-parameter walk to factories that call back into
// the container explicitly.
package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/corewire/di/internal/diagnostics"
	"github.com/corewire/di/internal/scope"
	"github.com/corewire/di/internal/typekey"
)

// Variant tags which of the five factory shapes an Entry holds.
type Variant int

const (
	SyncFactory Variant = iota
	AsyncFactory
	AsyncOnce
	ScopedSync
	ScopedAsync
)

func (v Variant) String() string {
	switch v {
	case SyncFactory:
		return "SyncFactory"
	case AsyncFactory:
		return "AsyncFactory"
	case AsyncOnce:
		return "AsyncOnce"
	case ScopedSync:
		return "ScopedSync"
	case ScopedAsync:
		return "ScopedAsync"
	default:
		return "Unknown"
	}
}

// ResolveFunc is handed to a factory so it can resolve its own
// dependencies. Which mode it operates in (sync-only or suspension
// capable) depends on which top-level call produced it; registry.go
// never auto-wires constructor parameters by reflection — factories
// call back explicitly, the same shape as
// FactoryFunc func(Container) (interface{}, error).
type ResolveFunc func(ctx context.Context, key typekey.Key) (any, error)

// SyncFunc constructs a value without suspending.
type SyncFunc func(ctx context.Context, resolve ResolveFunc) (any, error)

// AsyncFunc constructs a value in a suspension-permitting context.
type AsyncFunc func(ctx context.Context, resolve ResolveFunc) (any, error)

// Entry is one tagged factory-variant registration.
type Entry struct {
	Variant Variant

	Sync      SyncFunc  // SyncFactory
	Async     AsyncFunc // AsyncFactory, AsyncOnce, ScopedAsync
	ScopeKind scope.Kind // ScopedSync, ScopedAsync

	// CacheSingleton marks a SyncFactory/AsyncFactory's result eligible
	// for the snapshot layer's lock-free singleton cache (internal/snapshot).
	CacheSingleton bool

	group   singleflight.Group // AsyncOnce: joins concurrent first callers
	memoSet boolFlag           // AsyncOnce: true once a value has been memoized
	memo    any                // AsyncOnce: the memoized value
	memoMu  sync.Mutex
}

// boolFlag is a tiny alias so zero-value Entry literals read naturally.
type boolFlag = bool

type meta struct {
	count  int
	lastAt time.Time
}

// Registry holds the five authoritative factory tables plus the
// per-TypeKey metadata every variant shares.
type Registry struct {
	mu sync.RWMutex

	tables map[Variant]map[typekey.Key]*Entry
	meta   map[typekey.Key]*meta

	scopes   *scope.Manager
	diag     *diagnostics.Engine
	onChange func() // hook the snapshot layer installs to trigger a rebuild
}

// New creates an empty Registry.
func New(scopes *scope.Manager, diag *diagnostics.Engine) *Registry {
	r := &Registry{
		tables: map[Variant]map[typekey.Key]*Entry{
			SyncFactory:  make(map[typekey.Key]*Entry),
			AsyncFactory: make(map[typekey.Key]*Entry),
			AsyncOnce:    make(map[typekey.Key]*Entry),
			ScopedSync:   make(map[typekey.Key]*Entry),
			ScopedAsync:  make(map[typekey.Key]*Entry),
		},
		meta:   make(map[typekey.Key]*meta),
		scopes: scopes,
		diag:   diag,
	}
	return r
}

// OnChange installs the callback invoked after every register/release
// while the write lock is held, used by internal/snapshot to rebuild.
func (r *Registry) OnChange(fn func()) { r.onChange = fn }

// Register upserts entry for key, replacing whatever was previously
// registered for key in any variant (Invariant 2: at most one entry
// per TypeKey). Returns the updated registration count.
func (r *Registry) Register(key typekey.Key, entry *Entry) int {
	r.mu.Lock()
	_, replacing := r.tables[entry.Variant][key]
	for v, table := range r.tables {
		if v != entry.Variant {
			if _, ok := table[key]; ok {
				replacing = true
			}
			delete(table, key)
		}
	}
	r.tables[entry.Variant][key] = entry

	m, ok := r.meta[key]
	if !ok {
		m = &meta{}
		r.meta[key] = m
	}
	m.count++
	m.lastAt = time.Now()
	count := m.count

	if r.onChange != nil {
		r.onChange()
	}
	r.mu.Unlock()

	// A replaced registration invalidates any instance a still-active
	// scope cached from the old factory; otherwise resolveScoped would
	// keep serving it instead of invoking the new one.
	if replacing {
		r.scopes.ReleaseByType(key)
	}

	r.diag.RegisteredEvent(key, entry.Variant.String(), scopeKindName(entry))
	return count
}

func scopeKindName(e *Entry) string {
	if e.Variant == ScopedSync || e.Variant == ScopedAsync {
		return string(e.ScopeKind)
	}
	return ""
}

// Release removes every variant registered for key and clears any
// scoped caches entangled with it.
func (r *Registry) Release(key typekey.Key) {
	r.mu.Lock()
	for _, table := range r.tables {
		delete(table, key)
	}
	if r.onChange != nil {
		r.onChange()
	}
	r.mu.Unlock()

	r.scopes.ReleaseByType(key)
	r.diag.ReleasedEvent(key)
}

// ReleaseAll clears every registration and every scoped cache entry.
func (r *Registry) ReleaseAll() {
	r.mu.Lock()
	keys := make([]typekey.Key, 0, len(r.meta))
	for k := range r.meta {
		keys = append(keys, k)
	}
	for v := range r.tables {
		r.tables[v] = make(map[typekey.Key]*Entry)
	}
	r.meta = make(map[typekey.Key]*meta)
	if r.onChange != nil {
		r.onChange()
	}
	r.mu.Unlock()

	for _, k := range keys {
		r.scopes.ReleaseByType(k)
	}
}

// Outcome classifies a resolution result.
type Outcome int

const (
	Hit Outcome = iota
	TrueMiss
	WrongContext
)

func (r *Registry) entryFor(key typekey.Key, variant Variant) (*Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.tables[variant][key]
	return e, ok
}

// lookup returns whichever of the five tables holds key, in the
// resolveAsync priority order: suspension-capable variants first.
func (r *Registry) lookup(key typekey.Key) (*Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, v := range []Variant{ScopedAsync, AsyncOnce, AsyncFactory, ScopedSync, SyncFactory} {
		if e, ok := r.tables[v][key]; ok {
			return e, true
		}
	}
	return nil, false
}

// Resolve is the synchronous resolution path: it must fail with
// WrongContext if the only registered entry requires suspension.
func (r *Registry) Resolve(ctx context.Context, key typekey.Key) (any, Outcome, error) {
	entry, found := r.lookup(key)
	if !found {
		r.recordMiss(key, false)
		return nil, TrueMiss, nil
	}

	switch entry.Variant {
	case SyncFactory:
		v, err := r.invokeSync(ctx, key, entry)
		return v, outcomeFor(err == nil), err

	case ScopedSync:
		v, err := r.resolveScoped(ctx, key, entry, false)
		return v, outcomeFor(err == nil), err

	default:
		r.recordMiss(key, true)
		return nil, WrongContext, nil
	}
}

// ResolveAsync is the suspension-capable path: ScopedAsync, AsyncOnce,
// AsyncFactory, ScopedSync, SyncFactory, first hit wins.
func (r *Registry) ResolveAsync(ctx context.Context, key typekey.Key) (any, Outcome, error) {
	entry, found := r.lookup(key)
	if !found {
		r.recordMiss(key, false)
		return nil, TrueMiss, nil
	}

	switch entry.Variant {
	case ScopedAsync:
		v, err := r.resolveScoped(ctx, key, entry, true)
		return v, outcomeFor(err == nil), err
	case AsyncOnce:
		v, err := r.invokeOnce(ctx, key, entry)
		return v, outcomeFor(err == nil), err
	case AsyncFactory:
		v, err := r.invokeAsync(ctx, key, entry)
		return v, outcomeFor(err == nil), err
	case ScopedSync:
		v, err := r.resolveScoped(ctx, key, entry, false)
		return v, outcomeFor(err == nil), err
	case SyncFactory:
		v, err := r.invokeSync(ctx, key, entry)
		return v, outcomeFor(err == nil), err
	default:
		r.recordMiss(key, false)
		return nil, TrueMiss, nil
	}
}

func outcomeFor(ok bool) Outcome {
	if ok {
		return Hit
	}
	return TrueMiss
}

// resolveSyncForFactory is the ResolveFunc bound for factories invoked
// from the sync path: nested resolves stay sync-only.
func (r *Registry) resolveSyncForFactory(ctx context.Context) ResolveFunc {
	return func(ctx context.Context, key typekey.Key) (any, error) {
		v, outcome, err := r.Resolve(ctx, key)
		if err != nil {
			return nil, err
		}
		if outcome != Hit {
			return nil, fmt.Errorf("di: no sync-resolvable registration for %s", key)
		}
		return v, nil
	}
}

func (r *Registry) resolveAsyncForFactory() ResolveFunc {
	return func(ctx context.Context, key typekey.Key) (any, error) {
		v, outcome, err := r.ResolveAsync(ctx, key)
		if err != nil {
			return nil, err
		}
		if outcome != Hit {
			return nil, fmt.Errorf("di: no registration for %s", key)
		}
		return v, nil
	}
}

// cycleErr is returned when a resolve re-enters a type already under
// construction on the same task's stack, rather than recursing forever.
func cycleErr(key typekey.Key) error {
	return fmt.Errorf("di: cyclic dependency detected resolving %s", key)
}

func (r *Registry) invokeSync(ctx context.Context, key typekey.Key, entry *Entry) (any, error) {
	cyclic := diagnostics.InStack(ctx, key)
	nextCtx, parent, hasParent := diagnostics.PushResolving(ctx, key)
	if hasParent {
		r.diag.NestedResolveEvent(parent, key)
	}
	if cyclic {
		return nil, cycleErr(key)
	}
	v, err := entry.Sync(nextCtx, r.resolveSyncForFactory(nextCtx))
	if err != nil {
		return nil, err
	}
	r.diag.ResolvedEvent(key)
	return v, nil
}

func (r *Registry) invokeAsync(ctx context.Context, key typekey.Key, entry *Entry) (any, error) {
	cyclic := diagnostics.InStack(ctx, key)
	nextCtx, parent, hasParent := diagnostics.PushResolving(ctx, key)
	if hasParent {
		r.diag.NestedResolveEvent(parent, key)
	}
	if cyclic {
		return nil, cycleErr(key)
	}
	v, err := entry.Async(nextCtx, r.resolveAsyncForFactory())
	if err != nil {
		return nil, err
	}
	r.diag.ResolvedEvent(key)
	return v, nil
}

// invokeOnce implements AsyncOnce: a permanent memo guarded by a
// singleflight.Group so concurrent first callers join the same
// in-flight construction (Invariant 4 / the Once semantics of §5).
func (r *Registry) invokeOnce(ctx context.Context, key typekey.Key, entry *Entry) (any, error) {
	entry.memoMu.Lock()
	if entry.memoSet {
		v := entry.memo
		entry.memoMu.Unlock()
		r.diag.ResolvedEvent(key)
		return v, nil
	}
	entry.memoMu.Unlock()

	cyclic := diagnostics.InStack(ctx, key)
	nextCtx, parent, hasParent := diagnostics.PushResolving(ctx, key)
	if hasParent {
		r.diag.NestedResolveEvent(parent, key)
	}
	if cyclic {
		return nil, cycleErr(key)
	}

	v, err, _ := entry.group.Do(key.String(), func() (any, error) {
		return entry.Async(nextCtx, r.resolveAsyncForFactory())
	})
	if err != nil {
		// Construction failed: the memo stays empty, the next caller retries.
		return nil, err
	}

	entry.memoMu.Lock()
	if !entry.memoSet {
		entry.memo = v
		entry.memoSet = true
	}
	v = entry.memo
	entry.memoMu.Unlock()

	r.diag.ResolvedEvent(key)
	return v, nil
}

func (r *Registry) resolveScoped(ctx context.Context, key typekey.Key, entry *Entry, async bool) (any, error) {
	kind := entry.ScopeKind
	instanceID, active := scope.CurrentID(ctx, kind)

	if active {
		if v, ok := r.scopes.Get(key, scope.ID{Kind: kind, Instance: instanceID}); ok {
			r.diag.ResolvedEvent(key)
			return v, nil
		}
	}

	cyclic := diagnostics.InStack(ctx, key)
	nextCtx, parent, hasParent := diagnostics.PushResolving(ctx, key)
	if hasParent {
		r.diag.NestedResolveEvent(parent, key)
	}
	if cyclic {
		return nil, cycleErr(key)
	}

	var v any
	var err error
	if async {
		v, err = entry.Async(nextCtx, r.resolveAsyncForFactory())
	} else {
		v, err = entry.Sync(nextCtx, r.resolveSyncForFactory(nextCtx))
	}
	if err != nil {
		return nil, err
	}

	if active {
		r.scopes.Put(key, scope.ID{Kind: kind, Instance: instanceID}, v)
	} else {
		r.diag.ScopeFallbackEvent(key, string(kind))
	}

	r.diag.ResolvedEvent(key)
	return v, nil
}

// recordMiss builds the structured miss record and hands it to
// diagnostics to log and fold into derived state.
func (r *Registry) recordMiss(key typekey.Key, wrongContext bool) {
	r.mu.RLock()
	detail := diagnostics.MissDetail{RequestedType: key.Name()}
	_, detail.HadSync = r.tables[SyncFactory][key]
	_, detail.HadAsync = r.tables[AsyncFactory][key]
	_, detail.HadAsyncOnce = r.tables[AsyncOnce][key]
	_, detail.HadScopedSync = r.tables[ScopedSync][key]
	_, detail.HadScopedAsync = r.tables[ScopedAsync][key]

	var names []string
	for _, table := range r.tables {
		for k := range table {
			names = append(names, k.Name())
		}
	}
	sort.Strings(names)
	detail.TotalRegistered = len(names)
	if len(names) > 5 {
		detail.SampleNames = names[:5]
	} else {
		detail.SampleNames = names
	}
	detail.Suggestions = diagnostics.Suggest(key.Name(), names, 2)
	if m, ok := r.meta[key]; ok {
		detail.HistoricalRegCount = m.count
	}
	r.mu.RUnlock()

	_ = wrongContext
	r.diag.Miss(key, detail)
}

// Len returns the total number of registered TypeKeys (for health_report).
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := make(map[typekey.Key]bool)
	for _, table := range r.tables {
		for k := range table {
			seen[k] = true
		}
	}
	return len(seen)
}

// Has reports whether any variant is registered for key.
func (r *Registry) Has(key typekey.Key) bool {
	_, ok := r.lookup(key)
	return ok
}

// SyncEntries returns a point-in-time copy of every SyncFactory entry,
// keyed by TypeKey, for internal/snapshot to index by slot. Only
// SyncFactory entries participate in the snapshot hot path; every other
// variant, ScopedSync included, always falls through.
func (r *Registry) SyncEntries() map[typekey.Key]*Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[typekey.Key]*Entry, len(r.tables[SyncFactory]))
	for k, e := range r.tables[SyncFactory] {
		out[k] = e
	}
	return out
}
