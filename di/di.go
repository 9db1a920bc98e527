// Package di is the Container Façade (C6): it aggregates the TypeKey
// interner, the unified registry, the scope manager, the snapshot
// layer and the diagnostics engine behind a single generic public
// surface, and owns the process-wide default instance other packages
// bootstrap into.
//
// Grounded on internal/di package (container.go /
// highperf_container.go), whose Container wraps exactly this set of
// collaborators behind Register/Resolve/Release methods — generalized
// from reflection-driven constructor wiring to explicit factory
// callbacks that take the container and resolve their own dependencies.
package di

import (
	"context"
	"fmt"

	"github.com/corewire/di/internal/buildmode"
	"github.com/corewire/di/internal/config"
	"github.com/corewire/di/internal/diagnostics"
	"github.com/corewire/di/internal/registry"
	"github.com/corewire/di/internal/scope"
	"github.com/corewire/di/internal/snapshot"
	"github.com/corewire/di/internal/typekey"
)

// Container is the resolution core: a type-indexed registry, its
// scope and snapshot machinery, and the diagnostics engine watching it.
type Container struct {
	cfg      *config.Config
	interner *typekey.Interner
	registry *registry.Registry
	scopes   *scope.Manager
	diag     *diagnostics.Engine
	snap     *snapshot.Layer
	keyPaths *keyPathIndex
}

// New builds a standalone Container from cfg (nil uses config.Default()).
// Most callers should use Bootstrap instead, which installs the result
// as the process-wide default; New is for tests and multi-container use.
func New(cfg *config.Config) *Container {
	if cfg == nil {
		cfg = config.Default()
	}

	scopes := scope.New()
	diag := diagnostics.New(diagnostics.Config{
		MonitoringEnabled:     cfg.Monitoring.Enabled,
		LogLevel:              cfg.DiagnosticsLogLevel(),
		BatchInterval:         cfg.BatchInterval(),
		MaxBatchSize:          cfg.Diagnostics.MaxBatchSize,
		HealthInterval:        cfg.HealthInterval(),
		OptimizationInterval:  cfg.OptimizationInterval(),
		OptimizationThreshold: cfg.Diagnostics.OptimizationThreshold,
	})
	reg := registry.New(scopes, diag)
	interner := typekey.New()
	snap := snapshot.New(reg, interner, cfg.DebounceDuration())

	c := &Container{
		cfg: cfg, interner: interner, registry: reg, scopes: scopes,
		diag: diag, snap: snap, keyPaths: newKeyPathIndex(),
	}
	if cfg.Optimization.Enabled {
		snap.Enable()
	}
	return c
}

// Close stops the container's background goroutines (the diagnostics
// drain loop and any pending snapshot debounce timer).
func (c *Container) Close() {
	c.snap.Close()
	c.diag.Close()
}

// regOptions carries the per-registration tags Register/RegisterAsync/
// RegisterScoped/RegisterOnce accept.
type regOptions struct {
	transient bool
	scopeKind scope.Kind
}

// RegisterOption tags a single registration call.
type RegisterOption func(*regOptions)

// Transient opts a SyncFactory/AsyncFactory registration out of the
// snapshot layer's singleton cache: every resolution invokes the factory.
func Transient() RegisterOption {
	return func(o *regOptions) { o.transient = true }
}

// WithScopeKind overrides the default Request scope kind for
// RegisterScoped/RegisterScopedAsync.
func WithScopeKind(kind scope.Kind) RegisterOption {
	return func(o *regOptions) { o.scopeKind = kind }
}

func applyOptions(opts []RegisterOption) regOptions {
	o := regOptions{scopeKind: scope.Request}
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

// Factory constructs a T, resolving its own dependencies (if any)
// through c via Resolve/ResolveAsync on ctx — this system never
// auto-wires constructor parameters by reflection.
type Factory[T any] func(ctx context.Context, c *Container) (T, error)

// Register installs a SyncFactory for T. While optimization is enabled,
// the snapshot layer caches its first result as a singleton once a
// rebuild has picked the registration up (pass Transient() to opt out);
// with optimization disabled every Resolve invokes the factory.
func Register[T any](c *Container, factory Factory[T], opts ...RegisterOption) {
	o := applyOptions(opts)
	key := typekey.Of[T]()
	c.interner.SlotFor(key)
	c.registry.Register(key, &registry.Entry{
		Variant:        registry.SyncFactory,
		CacheSingleton: !o.transient,
		Sync: func(ctx context.Context, _ registry.ResolveFunc) (any, error) {
			return factory(ctx, c)
		},
	})
}

// RegisterAsync installs an AsyncFactory for T: every ResolveAsync call
// invokes it; it is never visible to the synchronous Resolve path.
func RegisterAsync[T any](c *Container, factory Factory[T], opts ...RegisterOption) {
	key := typekey.Of[T]()
	c.interner.SlotFor(key)
	c.registry.Register(key, &registry.Entry{
		Variant: registry.AsyncFactory,
		Async: func(ctx context.Context, _ registry.ResolveFunc) (any, error) {
			return factory(ctx, c)
		},
	})
}

// RegisterOnce installs an AsyncOnce for T: the first successful
// invocation is permanently memoized, concurrent first callers join
// the same in-flight construction, and a failed attempt is retried by
// the next caller rather than poisoning the cell.
func RegisterOnce[T any](c *Container, factory Factory[T], opts ...RegisterOption) {
	key := typekey.Of[T]()
	c.interner.SlotFor(key)
	c.registry.Register(key, &registry.Entry{
		Variant: registry.AsyncOnce,
		Async: func(ctx context.Context, _ registry.ResolveFunc) (any, error) {
			return factory(ctx, c)
		},
	})
}

// RegisterScoped installs a ScopedSync for T under kind (default
// scope.Request; override with WithScopeKind). Resolving it outside an
// active scope of that kind constructs a fresh, uncached value and
// records a scope-fallback diagnostic.
func RegisterScoped[T any](c *Container, factory Factory[T], opts ...RegisterOption) {
	o := applyOptions(opts)
	key := typekey.Of[T]()
	c.interner.SlotFor(key)
	c.registry.Register(key, &registry.Entry{
		Variant:   registry.ScopedSync,
		ScopeKind: o.scopeKind,
		Sync: func(ctx context.Context, _ registry.ResolveFunc) (any, error) {
			return factory(ctx, c)
		},
	})
}

// RegisterScopedAsync is the suspension-capable counterpart of RegisterScoped.
func RegisterScopedAsync[T any](c *Container, factory Factory[T], opts ...RegisterOption) {
	o := applyOptions(opts)
	key := typekey.Of[T]()
	c.interner.SlotFor(key)
	c.registry.Register(key, &registry.Entry{
		Variant:   registry.ScopedAsync,
		ScopeKind: o.scopeKind,
		Async: func(ctx context.Context, _ registry.ResolveFunc) (any, error) {
			return factory(ctx, c)
		},
	})
}

// Resolve is the synchronous path: it consults the snapshot layer
// first (when optimization is enabled) and falls through to the
// registry on a miss.
func Resolve[T any](ctx context.Context, c *Container) (T, error) {
	var zero T
	key := typekey.Of[T]()

	resolveFn := func(ctx context.Context, k typekey.Key) (any, error) {
		v, outcome, err := c.registry.Resolve(ctx, k)
		if err != nil {
			return nil, err
		}
		if outcome != registry.Hit {
			return nil, ErrNotRegistered
		}
		return v, nil
	}

	if v, ok, err := c.snap.Get(ctx, key, resolveFn); ok {
		if err != nil {
			return zero, err
		}
		return v.(T), nil
	}

	v, outcome, err := c.registry.Resolve(ctx, key)
	if err != nil {
		return zero, err
	}
	switch outcome {
	case registry.Hit:
		return v.(T), nil
	case registry.WrongContext:
		return zero, ErrWrongContext
	default:
		return zero, ErrNotRegistered
	}
}

// ResolveOrDefault resolves T, returning fallback instead of an error
// on any miss (true miss or wrong context).
func ResolveOrDefault[T any](ctx context.Context, c *Container, fallback T) T {
	v, err := Resolve[T](ctx, c)
	if err != nil {
		return fallback
	}
	return v
}

// ResolveRequired resolves T for composition-root wiring where a miss is
// a programmer error: in debug builds it aborts via panic; in release
// builds the miss is surfaced to the caller as an ordinary error instead.
func ResolveRequired[T any](ctx context.Context, c *Container) (T, error) {
	v, err := Resolve[T](ctx, c)
	if err != nil {
		if buildmode.Debug() {
			panic(fmt.Sprintf("di: ResolveRequired[%T] failed: %v", v, err))
		}
		return v, err
	}
	return v, nil
}

// ResolveAsync is the suspension-capable path: it can serve any variant.
func ResolveAsync[T any](ctx context.Context, c *Container) (T, error) {
	var zero T
	key := typekey.Of[T]()
	v, outcome, err := c.registry.ResolveAsync(ctx, key)
	if err != nil {
		return zero, err
	}
	if outcome != registry.Hit {
		return zero, ErrNotRegistered
	}
	return v.(T), nil
}

// ResolveAny resolves by a typekey.Key known only at runtime (e.g. from
// a KeyPath lookup, or built from a reflect.Type with typekey.OfType)
// through the suspension-capable path, returning the boxed value unconverted.
func ResolveAny(ctx context.Context, c *Container, key typekey.Key) (any, error) {
	v, outcome, err := c.registry.ResolveAsync(ctx, key)
	if err != nil {
		return nil, err
	}
	if outcome != registry.Hit {
		return nil, ErrNotRegistered
	}
	return v, nil
}

// Release removes every variant registered for T and any scoped cache
// entries entangled with it.
func Release[T any](c *Container) {
	c.registry.Release(typekey.Of[T]())
}

// ReleaseAll clears every registration in c.
func (c *Container) ReleaseAll() {
	c.registry.ReleaseAll()
}

// EnterScope returns a context marking instance as the active scope of
// kind; pair with LeaveScope or defer c.LeaveScope(ctx, kind, instance).
func (c *Container) EnterScope(ctx context.Context, kind scope.Kind, instance string) context.Context {
	return scope.Enter(ctx, kind, instance)
}

// LeaveScope returns a context with the (kind, instance) scope frame
// popped; it does not release cached instances — call ReleaseScope for that.
func (c *Container) LeaveScope(ctx context.Context, kind scope.Kind, instance string) context.Context {
	return scope.Leave(ctx, kind, instance)
}

// ReleaseScope drops every cached (TypeKey, ScopeID) instance for
// (kind, instance) and returns how many were dropped.
func (c *Container) ReleaseScope(kind scope.Kind, instance string) int {
	return c.scopes.ReleaseScope(kind, instance)
}

// EnableOptimization turns the snapshot layer's read path on.
func (c *Container) EnableOptimization() { c.snap.Enable() }

// DisableOptimization turns the snapshot layer off; all resolutions
// fall through to the registry.
func (c *Container) DisableOptimization() { c.snap.Disable() }

// OptimizationEnabled reports the snapshot layer's current toggle state.
func (c *Container) OptimizationEnabled() bool { return c.snap.Enabled() }

// AwaitPendingWork blocks until every diagnostics event enqueued before
// this call has been folded into derived state, without waiting for
// the next batch interval — used by tests and the CLI's stats/health commands.
func (c *Container) AwaitPendingWork() { c.diag.Await() }

// Stats returns the per-type resolution usage counts.
func (c *Container) Stats() map[string]int64 { return c.diag.Stats() }

// Graph returns the dependency graph built from nested resolves.
func (c *Container) Graph() map[string][]string { return c.diag.Graph() }

// DetectedCycles returns every detected cyclic dependency path.
func (c *Container) DetectedCycles() []string { return c.diag.DetectedCycles() }

// HealthReport computes the aggregate health score over the registry's
// current size and the snapshot layer's toggle state.
func (c *Container) HealthReport() diagnostics.HealthReport {
	return c.diag.HealthReport(c.snap.Enabled(), c.registry.Len())
}

// Len returns the number of distinct TypeKeys currently registered.
func (c *Container) Len() int { return c.registry.Len() }

// Has reports whether any variant is registered for T.
func Has[T any](c *Container) bool { return c.registry.Has(typekey.Of[T]()) }
