package diagnostics_test

import (
	"testing"
	"time"

	"github.com/corewire/di/internal/diagnostics"
	"github.com/corewire/di/internal/typekey"
)

type Logger interface{}
type UserService struct{}

func fastConfig() diagnostics.Config {
	cfg := diagnostics.DefaultConfig()
	cfg.BatchInterval = 5 * time.Millisecond
	cfg.HealthInterval = time.Hour
	cfg.OptimizationInterval = time.Hour
	cfg.LogLevel = diagnostics.LogOff
	return cfg
}

func TestResolvedIncrementsUsage(t *testing.T) {
	e := diagnostics.New(fastConfig())
	defer e.Close()

	key := typekey.Of[Logger]()
	e.ResolvedEvent(key)
	e.Await()

	stats := e.Stats()
	if stats[key.Name()] != 1 {
		t.Fatalf("stats[%s] = %d, want 1", key.Name(), stats[key.Name()])
	}
}

func TestEventBalance(t *testing.T) {
	e := diagnostics.New(fastConfig())
	defer e.Close()

	key := typekey.Of[Logger]()
	const resolved = 7
	const misses = 3
	for i := 0; i < resolved; i++ {
		e.ResolvedEvent(key)
	}
	for i := 0; i < misses; i++ {
		e.Miss(key, diagnostics.MissDetail{RequestedType: key.Name()})
	}
	e.Await()

	stats := e.Stats()
	if stats[key.Name()] != resolved {
		t.Fatalf("resolved count = %d, want %d", stats[key.Name()], resolved)
	}
}

func TestOptimizationThreshold(t *testing.T) {
	cfg := fastConfig()
	cfg.OptimizationThreshold = 3
	e := diagnostics.New(cfg)
	defer e.Close()

	key := typekey.Of[UserService]()
	for i := 0; i < 3; i++ {
		e.ResolvedEvent(key)
	}
	e.Await()

	opt := e.OptimizedTypes()
	if len(opt) != 1 || opt[0] != key.Name() {
		t.Fatalf("OptimizedTypes() = %v, want [%s]", opt, key.Name())
	}
}

func TestCycleDetection(t *testing.T) {
	e := diagnostics.New(fastConfig())
	defer e.Close()

	a := typekey.Of[struct{ A int }]()
	b := typekey.Of[struct{ B int }]()

	e.NestedResolveEvent(a, b)
	e.NestedResolveEvent(b, a)
	e.Await()

	cycles := e.DetectedCycles()
	if len(cycles) == 0 {
		t.Fatalf("expected at least one detected cycle")
	}
}

// The rendered path must close the loop back to where it started
// (A -> B -> A), not repeat the last edge's target (A -> B -> B).
func TestCycleDetectionPathClosesLoop(t *testing.T) {
	e := diagnostics.New(fastConfig())
	defer e.Close()

	a := typekey.Of[struct{ A int }]()
	b := typekey.Of[struct{ B int }]()

	e.NestedResolveEvent(a, b)
	e.NestedResolveEvent(b, a)
	e.Await()

	cycles := e.DetectedCycles()
	if len(cycles) == 0 {
		t.Fatalf("expected at least one detected cycle")
	}

	want := a.Name() + " -> " + b.Name() + " -> " + a.Name()
	for _, c := range cycles {
		if c == want {
			return
		}
	}
	t.Fatalf("DetectedCycles() = %v, want an entry equal to %q", cycles, want)
}

func TestCycleIdempotence(t *testing.T) {
	e := diagnostics.New(fastConfig())
	defer e.Close()

	a := typekey.Of[struct{ A int }]()
	b := typekey.Of[struct{ B int }]()

	e.NestedResolveEvent(a, b)
	e.NestedResolveEvent(b, a)
	e.Await()
	first := e.DetectedCycles()

	// Detecting the same cycle again must not duplicate the entry.
	e.NestedResolveEvent(a, b)
	e.NestedResolveEvent(b, a)
	e.Await()
	second := e.DetectedCycles()

	if len(first) != len(second) {
		t.Fatalf("cycle count changed on re-detection: %v -> %v", first, second)
	}
}

func TestDuplicateRegistrationPenalizesHealth(t *testing.T) {
	e := diagnostics.New(fastConfig())
	defer e.Close()

	key := typekey.Of[UserService]()
	e.RegisteredEvent(key, "SyncFactory", "")
	e.RegisteredEvent(key, "AsyncFactory", "")
	e.Await()

	report := e.HealthReport(true, 1)
	if len(report.Duplicates) != 1 {
		t.Fatalf("Duplicates = %v, want 1 entry", report.Duplicates)
	}
	if report.Score != 95 {
		t.Fatalf("Score = %d, want 95", report.Score)
	}
}

func TestReleasedClearsDuplicateFlag(t *testing.T) {
	e := diagnostics.New(fastConfig())
	defer e.Close()

	key := typekey.Of[UserService]()
	e.RegisteredEvent(key, "SyncFactory", "")
	e.RegisteredEvent(key, "AsyncFactory", "")
	e.ReleasedEvent(key)
	e.Await()

	report := e.HealthReport(true, 0)
	if len(report.Duplicates) != 0 {
		t.Fatalf("Duplicates after release = %v, want none", report.Duplicates)
	}
}

func TestMonitoringDisabledSuppressesEvents(t *testing.T) {
	cfg := fastConfig()
	cfg.MonitoringEnabled = false
	e := diagnostics.New(cfg)
	defer e.Close()

	key := typekey.Of[Logger]()
	e.ResolvedEvent(key)
	e.Await()

	if stats := e.Stats(); stats[key.Name()] != 0 {
		t.Fatalf("monitoring disabled but usage recorded: %v", stats)
	}
}

func TestSuggestFindsTypoNeighbors(t *testing.T) {
	suggestions := diagnostics.Suggest("UsreService", []string{"UserService", "OtherThing"}, 2)
	if len(suggestions) != 1 || suggestions[0] != "UserService" {
		t.Fatalf("Suggest() = %v, want [UserService]", suggestions)
	}
}
