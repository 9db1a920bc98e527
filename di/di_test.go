package di_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/corewire/di/di"
	"github.com/corewire/di/internal/config"
	"github.com/corewire/di/internal/scope"
)

type ConsoleLogger struct{ Level string }
type DB struct{ ID int }
type RequestContext struct{ ID string }
type A struct{}
type B struct{}
type UserService struct{}
type UsreService struct{}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Diagnostics.BatchIntervalS = 0 // clamped to 1ms floor by the engine
	cfg.Diagnostics.HealthIntervalS = 3600
	cfg.Diagnostics.OptimizationIntervalS = 3600
	cfg.LogLevel = "off"
	return cfg
}

func newContainer(t *testing.T) *di.Container {
	t.Helper()
	c := di.New(testConfig())
	t.Cleanup(c.Close)
	return c
}

// Scenario 1: sync register / sync resolve.
func TestSyncRegisterSyncResolve(t *testing.T) {
	c := newContainer(t)
	di.Register(c, func(ctx context.Context, c *di.Container) (*ConsoleLogger, error) {
		return &ConsoleLogger{Level: "info"}, nil
	})

	got, err := di.Resolve[*ConsoleLogger](context.Background(), c)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if got.Level != "info" {
		t.Fatalf("Resolve() = %+v, want Level=info", got)
	}

	c.AwaitPendingWork()
	if stats := c.Stats(); stats["*di_test.ConsoleLogger"] != 1 {
		t.Fatalf("Stats() = %v, want 1 resolve for ConsoleLogger", stats)
	}
}

// Scenario 2: AsyncOnce joins 100 concurrent callers.
func TestAsyncOnceJoins100ConcurrentCallers(t *testing.T) {
	c := newContainer(t)
	var calls int
	var mu sync.Mutex
	di.RegisterOnce(c, func(ctx context.Context, c *di.Container) (*DB, error) {
		mu.Lock()
		calls++
		mu.Unlock()
		time.Sleep(50 * time.Millisecond)
		return &DB{ID: 1}, nil
	})

	const n = 100
	results := make([]*DB, n)
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			v, err := di.ResolveAsync[*DB](context.Background(), c)
			if err != nil {
				t.Errorf("ResolveAsync() error = %v", err)
				return
			}
			results[i] = v
		}(i)
	}
	wg.Wait()

	mu.Lock()
	gotCalls := calls
	mu.Unlock()
	if gotCalls != 1 {
		t.Fatalf("factory invoked %d times, want 1", gotCalls)
	}
	for _, v := range results {
		if v != results[0] || v.ID != 1 {
			t.Fatalf("expected all 100 callers to see the same DB{ID:1}")
		}
	}
}

// Scenario 3: scoped request isolation and teardown.
func TestScopedRequestIsolationAndTeardown(t *testing.T) {
	c := newContainer(t)
	var built int
	var mu sync.Mutex
	di.RegisterScoped(c, func(ctx context.Context, c *di.Container) (*RequestContext, error) {
		mu.Lock()
		built++
		mu.Unlock()
		id, _ := scope.CurrentID(ctx, scope.Request)
		return &RequestContext{ID: id}, nil
	})

	ctxA := c.EnterScope(context.Background(), scope.Request, "r1")
	ctxB := c.EnterScope(context.Background(), scope.Request, "r2")

	a1, err := di.Resolve[*RequestContext](ctxA, c)
	if err != nil {
		t.Fatalf("resolve A1 error = %v", err)
	}
	a2, err := di.Resolve[*RequestContext](ctxA, c)
	if err != nil {
		t.Fatalf("resolve A2 error = %v", err)
	}
	b1, err := di.Resolve[*RequestContext](ctxB, c)
	if err != nil {
		t.Fatalf("resolve B1 error = %v", err)
	}
	b2, err := di.Resolve[*RequestContext](ctxB, c)
	if err != nil {
		t.Fatalf("resolve B2 error = %v", err)
	}

	if a1 != a2 {
		t.Fatalf("task A's two resolves should be the same instance")
	}
	if b1 != b2 {
		t.Fatalf("task B's two resolves should be the same instance")
	}
	if a1 == b1 || a1.ID == b1.ID {
		t.Fatalf("task A and task B must not share a scoped instance")
	}

	dropped := c.ReleaseScope(scope.Request, "r1")
	if dropped != 1 {
		t.Fatalf("ReleaseScope dropped %d, want 1", dropped)
	}

	freshCtx := c.EnterScope(context.Background(), scope.Request, "r1")
	a3, err := di.Resolve[*RequestContext](freshCtx, c)
	if err != nil {
		t.Fatalf("resolve after release error = %v", err)
	}
	if a3 == a1 {
		t.Fatalf("resolving r1 after releaseScope should reconstruct, not reuse the old instance")
	}
}

// Scenario 4: miss diagnostics surfaces a typo suggestion.
func TestMissDiagnosticsSuggestsTypoNeighbor(t *testing.T) {
	c := newContainer(t)
	di.Register(c, func(ctx context.Context, c *di.Container) (*UserService, error) {
		return &UserService{}, nil
	})

	_, err := di.ResolveAsync[*UsreService](context.Background(), c)
	if err == nil {
		t.Fatalf("expected a miss resolving the typo'd type")
	}
	c.AwaitPendingWork()
	// The structured suggestion itself is logged by diagnostics (internal/diagnostics
	// already has unit coverage for Suggest()); here we only assert the miss surfaced.
}

// Scenario 5: cycle detection across two mutually resolving factories.
func TestCycleDetectionAcrossMutualFactories(t *testing.T) {
	c := newContainer(t)
	di.Register(c, func(ctx context.Context, c *di.Container) (*A, error) {
		if _, err := di.Resolve[*B](ctx, c); err != nil {
			return nil, err
		}
		return &A{}, nil
	})
	di.Register(c, func(ctx context.Context, c *di.Container) (*B, error) {
		if _, err := di.Resolve[*A](ctx, c); err != nil {
			return nil, err
		}
		return &B{}, nil
	})

	// The A->B->A cycle means at least one leg fails once the stack
	// revisits a type already under construction in the same task.
	_, errA := di.Resolve[*A](context.Background(), c)
	_, errB := di.Resolve[*B](context.Background(), c)
	if errA == nil && errB == nil {
		t.Fatalf("expected at least one leg of the mutual cycle to fail")
	}

	c.AwaitPendingWork()
	cycles := c.DetectedCycles()
	if len(cycles) == 0 {
		t.Fatalf("expected DetectedCycles() to report the A<->B cycle")
	}
}

// Event balance: of 4 hits and 3 misses, exactly the 4 hits are counted
// as resolutions in Stats() after AwaitPendingWork. Stats() does not
// expose miss events, so the miss side of the balance is not checked here.
func TestEventBalanceAcrossHitsAndMisses(t *testing.T) {
	c := newContainer(t)
	di.Register(c, func(ctx context.Context, c *di.Container) (*ConsoleLogger, error) {
		return &ConsoleLogger{Level: "info"}, nil
	})

	const hits = 4
	const misses = 3
	for i := 0; i < hits; i++ {
		if _, err := di.Resolve[*ConsoleLogger](context.Background(), c); err != nil {
			t.Fatalf("unexpected miss: %v", err)
		}
	}
	for i := 0; i < misses; i++ {
		if _, err := di.Resolve[*DB](context.Background(), c); err == nil {
			t.Fatalf("expected a miss resolving unregistered *DB")
		}
	}
	c.AwaitPendingWork()

	stats := c.Stats()
	if stats["*di_test.ConsoleLogger"] != hits {
		t.Fatalf("resolved count = %d, want %d", stats["*di_test.ConsoleLogger"], hits)
	}
}

// Round-trip law: register then release restores pre-registration state.
func TestRegisterThenReleaseRoundTrip(t *testing.T) {
	c := newContainer(t)
	if di.Has[*ConsoleLogger](c) {
		t.Fatalf("fresh container should not have ConsoleLogger registered")
	}

	di.Register(c, func(ctx context.Context, c *di.Container) (*ConsoleLogger, error) {
		return &ConsoleLogger{}, nil
	})
	if !di.Has[*ConsoleLogger](c) {
		t.Fatalf("expected ConsoleLogger to be registered")
	}

	di.Release[*ConsoleLogger](c)
	if di.Has[*ConsoleLogger](c) {
		t.Fatalf("expected ConsoleLogger to be gone after Release")
	}
	if _, err := di.Resolve[*ConsoleLogger](context.Background(), c); err == nil {
		t.Fatalf("expected a miss after release")
	}
}

// Transient registrations are never cached by the snapshot layer.
func TestTransientOptOutSkipsSingletonCache(t *testing.T) {
	c := newContainer(t)
	c.EnableOptimization()

	var built int
	di.Register(c, func(ctx context.Context, c *di.Container) (*ConsoleLogger, error) {
		built++
		return &ConsoleLogger{Level: fmt.Sprintf("call-%d", built)}, nil
	}, di.Transient())

	v1, _ := di.Resolve[*ConsoleLogger](context.Background(), c)
	v2, _ := di.Resolve[*ConsoleLogger](context.Background(), c)
	if v1 == v2 {
		t.Fatalf("transient registration must not be cached")
	}
	if built != 2 {
		t.Fatalf("built = %d, want 2", built)
	}
}

// Optimization parity: identical outputs with the snapshot layer on and off.
func TestOptimizationParity(t *testing.T) {
	build := func() *di.Container {
		c := di.New(testConfig())
		di.Register(c, func(ctx context.Context, c *di.Container) (*ConsoleLogger, error) {
			return &ConsoleLogger{Level: "info"}, nil
		})
		return c
	}

	off := build()
	defer off.Close()
	on := build()
	defer on.Close()
	on.EnableOptimization()

	for i := 0; i < 100; i++ {
		vOff, errOff := di.Resolve[*ConsoleLogger](context.Background(), off)
		vOn, errOn := di.Resolve[*ConsoleLogger](context.Background(), on)
		if (errOff == nil) != (errOn == nil) {
			t.Fatalf("iteration %d: error mismatch off=%v on=%v", i, errOff, errOn)
		}
		if errOff == nil && *vOff != *vOn {
			t.Fatalf("iteration %d: value mismatch off=%+v on=%+v", i, vOff, vOn)
		}
	}
}

// BootstrapMixed must run both configurators against the fresh
// container before publishing it as the default, so the published
// container is always fully wired — never half-registered.
func TestBootstrapMixedRunsClosuresBeforePublishing(t *testing.T) {
	if di.IsBootstrapped() {
		t.Skip("another test already bootstrapped the process-wide default")
	}

	var syncRan, asyncRan bool
	c, ok := di.BootstrapMixed(context.Background(), testConfig(),
		func(c *di.Container) error {
			syncRan = true
			di.Register(c, func(ctx context.Context, c *di.Container) (*ConsoleLogger, error) {
				return &ConsoleLogger{Level: "mixed"}, nil
			})
			return nil
		},
		func(ctx context.Context, c *di.Container) error {
			asyncRan = true
			return nil
		},
	)
	if !ok || c == nil {
		t.Fatalf("BootstrapMixed() = (%v, %v), want a non-nil container and ok=true", c, ok)
	}
	if !syncRan || !asyncRan {
		t.Fatalf("expected both configurators to run: sync=%v async=%v", syncRan, asyncRan)
	}
	if di.Default() != c {
		t.Fatalf("BootstrapMixed should publish its container as the default")
	}

	got, err := di.Resolve[*ConsoleLogger](context.Background(), c)
	if err != nil || got.Level != "mixed" {
		t.Fatalf("Resolve() after BootstrapMixed = (%+v, %v), want the registered instance", got, err)
	}
}

func TestBootstrapAndReset(t *testing.T) {
	if di.IsBootstrapped() {
		t.Skip("another test already bootstrapped the process-wide default")
	}
	c := di.Bootstrap(testConfig())
	if c == nil || !di.IsBootstrapped() {
		t.Fatalf("Bootstrap() should install the default container")
	}
	if di.Default() != c {
		t.Fatalf("Default() should return the bootstrapped container")
	}

	// This test binary is not built with the dicontainer_debug tag, so
	// Reset must refuse rather than silently tearing down the default.
	if err := di.Reset(); err != di.ErrResetDisabled {
		t.Fatalf("Reset() outside a debug build = %v, want ErrResetDisabled", err)
	}
	if !di.IsBootstrapped() {
		t.Fatalf("a refused Reset() must not have cleared the default container")
	}
}

func TestResolveOrDefaultFallsBackOnMiss(t *testing.T) {
	c := newContainer(t)
	got := di.ResolveOrDefault(context.Background(), c, &ConsoleLogger{Level: "fallback"})
	if got.Level != "fallback" {
		t.Fatalf("ResolveOrDefault() = %+v, want the fallback value", got)
	}
}

func TestResolveRequiredReturnsValueOnHit(t *testing.T) {
	c := newContainer(t)
	di.Register(c, func(ctx context.Context, c *di.Container) (*ConsoleLogger, error) {
		return &ConsoleLogger{Level: "info"}, nil
	})

	v, err := di.ResolveRequired[*ConsoleLogger](context.Background(), c)
	if err != nil || v.Level != "info" {
		t.Fatalf("ResolveRequired() = (%+v, %v), want (info, nil)", v, err)
	}
}

// This test binary is not built with the dicontainer_debug tag, so a
// miss must surface as an ordinary error rather than a panic.
func TestResolveRequiredSurfacesErrorInReleaseBuild(t *testing.T) {
	c := newContainer(t)
	_, err := di.ResolveRequired[*DB](context.Background(), c)
	if err == nil {
		t.Fatalf("expected ResolveRequired to surface a miss as an error in a non-debug build")
	}
}

// Registrations racing against resolves of other, already-registered
// types must never corrupt a concurrent reader's result, whether the
// snapshot layer is serving the read or the registry is.
func TestConcurrentRegisterAndResolveStayConsistent(t *testing.T) {
	c := newContainer(t)
	c.EnableOptimization()

	di.Register(c, func(ctx context.Context, c *di.Container) (*ConsoleLogger, error) {
		return &ConsoleLogger{Level: "info"}, nil
	})

	stop := make(chan struct{})
	var wg sync.WaitGroup

	// Background churn: re-register the unrelated *DB type continuously.
	wg.Add(1)
	go func() {
		defer wg.Done()
		type churn struct{ n int }
		for i := 0; ; i++ {
			select {
			case <-stop:
				return
			default:
			}
			di.Register(c, func(ctx context.Context, c *di.Container) (*DB, error) {
				return &DB{ID: i}, nil
			})
		}
	}()

	const readers = 20
	errs := make(chan error, readers)
	wg.Add(readers)
	for i := 0; i < readers; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				v, err := di.Resolve[*ConsoleLogger](context.Background(), c)
				if err != nil {
					errs <- fmt.Errorf("resolve failed: %w", err)
					return
				}
				if v.Level != "info" {
					errs <- fmt.Errorf("resolve returned corrupted value: %+v", v)
					return
				}
			}
			errs <- nil
		}()
	}

	for i := 0; i < readers; i++ {
		if err := <-errs; err != nil {
			close(stop)
			wg.Wait()
			t.Fatal(err)
		}
	}
	close(stop)
	wg.Wait()
}
