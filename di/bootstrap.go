package di

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/corewire/di/internal/buildmode"
	"github.com/corewire/di/internal/config"
)

// defaultContainer is the process-wide default instance, installed by
// Bootstrap and swapped atomically so concurrent Default() callers
// never observe a half-initialized container. Grounded on
// internal/primitive/global.go's global-instance pattern (var Default
// *Primitive, sync.Once-guarded Init), generalized to an atomic.Pointer
// swap so Reset (debug builds only) can safely replace the instance
// while other goroutines are mid-resolve.
var (
	defaultContainer atomic.Pointer[Container]
	bootstrapOnce     sync.Once
)

// SyncConfigurator registers factories into a freshly constructed
// container before it is published as the default. It must not suspend.
type SyncConfigurator func(c *Container) error

// AsyncConfigurator is the suspension-capable counterpart of
// SyncConfigurator, for registrations that themselves need to await
// something (a remote config fetch, a warm connection) before the
// container is published.
type AsyncConfigurator func(ctx context.Context, c *Container) error

func abortOrClose(c *Container, err error, label string) {
	if buildmode.Debug() {
		panic(fmt.Sprintf("di: %s bootstrap configuration failed: %v", label, err))
	}
	c.Close()
}

// Bootstrap constructs a fresh container from cfg (nil uses
// config.Default()), runs every configure closure against it in order,
// and publishes it as the process-wide default only once all of them
// succeed — so no other goroutine can observe a partially registered
// default container. Subsequent calls are no-ops (returning the
// existing default) unless Reset has run first (debug builds only).
//
// A configure failure aborts the process in debug builds; in release
// builds the container is discarded, Bootstrap returns nil, and the
// default stays unbootstrapped: the one-time bootstrap is used up, so
// later Bootstrap calls do not retry and also return nil.
func Bootstrap(cfg *config.Config, configure ...SyncConfigurator) *Container {
	var c *Container
	bootstrapOnce.Do(func() {
		nc := New(cfg)
		for _, fn := range configure {
			if err := fn(nc); err != nil {
				abortOrClose(nc, err, "sync")
				return
			}
		}
		defaultContainer.Store(nc)
		c = nc
	})
	if c == nil {
		c = defaultContainer.Load()
	}
	return c
}

// BootstrapAsync is Bootstrap's suspension-capable counterpart: configure
// may block on ctx. ok is false only when configure ran and failed in a
// release build, leaving the default container unbootstrapped; in debug
// builds a configure failure aborts instead of returning.
func BootstrapAsync(ctx context.Context, cfg *config.Config, configure AsyncConfigurator) (c *Container, ok bool) {
	ok = true
	bootstrapOnce.Do(func() {
		nc := New(cfg)
		if configure != nil {
			if err := configure(ctx, nc); err != nil {
				abortOrClose(nc, err, "async")
				ok = false
				return
			}
		}
		defaultContainer.Store(nc)
		c = nc
	})
	if c == nil && ok {
		c = defaultContainer.Load()
	}
	return c, ok
}

// BootstrapMixed runs sync then async configurators against a freshly
// constructed container before publishing it, for composition roots that
// need both plain registrations and ones requiring a suspension point.
func BootstrapMixed(ctx context.Context, cfg *config.Config, sync SyncConfigurator, async AsyncConfigurator) (c *Container, ok bool) {
	ok = true
	bootstrapOnce.Do(func() {
		nc := New(cfg)
		if sync != nil {
			if err := sync(nc); err != nil {
				abortOrClose(nc, err, "sync")
				ok = false
				return
			}
		}
		if async != nil {
			if err := async(ctx, nc); err != nil {
				abortOrClose(nc, err, "async")
				ok = false
				return
			}
		}
		defaultContainer.Store(nc)
		c = nc
	})
	if c == nil && ok {
		c = defaultContainer.Load()
	}
	return c, ok
}

// BootstrapIfNeeded returns the default container, bootstrapping it
// with config.Default() and the given configurators on first use.
// Useful for libraries that want to register into the default container
// without owning startup order.
func BootstrapIfNeeded(configure ...SyncConfigurator) *Container {
	if c := defaultContainer.Load(); c != nil {
		return c
	}
	return Bootstrap(nil, configure...)
}

// Default returns the process-wide default container, or nil if
// Bootstrap has not run yet.
func Default() *Container {
	return defaultContainer.Load()
}

// IsBootstrapped reports whether Bootstrap has installed a default container.
func IsBootstrapped() bool {
	return defaultContainer.Load() != nil
}

// Reset tears down and clears the process-wide default container so a
// fresh Bootstrap call can install a new one. Only available in debug
// builds (the dicontainer_debug build tag) — a release binary can
// never un-bootstrap itself at runtime.
func Reset() error {
	if !buildmode.Debug() {
		return ErrResetDisabled
	}
	if c := defaultContainer.Swap(nil); c != nil {
		c.Close()
	}
	bootstrapOnce = sync.Once{}
	return nil
}
