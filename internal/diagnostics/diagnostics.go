// Package diagnostics implements the auto-diagnostics engine: a
// single-consumer event queue, the derived usage/graph/cycle state it
// feeds, and the batched drain pipeline that updates that state on its
// own cadence. Grounded on internal/di/metrics.go
// (atomic counters drained into a point-in-time snapshot) and
// internal/config/watcher.go (a ticker-driven loop that periodically
// folds queued changes into derived state and notifies subscribers).
package diagnostics

import (
	"context"
	"log"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/corewire/di/internal/typekey"
)

// Kind identifies the shape of an Event.
type Kind int

const (
	Registered Kind = iota
	Resolved
	Released
	NestedResolve
	Miss
	ScopeFallback
	HealthCheckTick
	OptimizationTick
)

func (k Kind) String() string {
	switch k {
	case Registered:
		return "Registered"
	case Resolved:
		return "Resolved"
	case Released:
		return "Released"
	case NestedResolve:
		return "NestedResolve"
	case Miss:
		return "Miss"
	case ScopeFallback:
		return "ScopeFallback"
	case HealthCheckTick:
		return "HealthCheckTick"
	case OptimizationTick:
		return "OptimizationTick"
	default:
		return "Unknown"
	}
}

// Event is one entry in the diagnostics queue.
type Event struct {
	Kind      Kind
	Type      string // requested/registered type name
	Variant   string // factory variant, for Registered events
	ScopeKind string // for Registered (scope kind used) and ScopeFallback
	Parent    string // for NestedResolve: the resolver in progress
}

// LogLevel gates which events reach the stdlib logger, independent of
// whether they are recorded into derived state.
type LogLevel int

const (
	LogOff LogLevel = iota
	LogErrors
	LogRegistration
	LogOptimization
	LogAll
)

// Config controls the engine's cadence and thresholds.
type Config struct {
	MonitoringEnabled     bool
	LogLevel              LogLevel
	BatchInterval         time.Duration
	MaxBatchSize          int
	HealthInterval        time.Duration
	OptimizationInterval  time.Duration
	OptimizationThreshold int64
}

// DefaultConfig returns the engine defaults: monitoring on, LogAll, a 2s
// batch interval with batches of up to 50 events, 30s health and
// optimization intervals, and an optimization threshold of 10. The
// values are the same in debug and release builds.
func DefaultConfig() Config {
	return Config{
		MonitoringEnabled:     true,
		LogLevel:              LogAll,
		BatchInterval:         2 * time.Second,
		MaxBatchSize:          50,
		HealthInterval:        30 * time.Second,
		OptimizationInterval:  30 * time.Second,
		OptimizationThreshold: 10,
	}
}

// MissDetail is the structured record a Miss event carries, built by
// the registry (which alone knows its authoritative maps) and handed
// to the engine to log and fold into derived state.
type MissDetail struct {
	RequestedType      string
	HadSync            bool
	HadAsync           bool
	HadAsyncOnce       bool
	HadScopedSync      bool
	HadScopedAsync     bool
	OptimizationOn     bool
	TotalRegistered    int
	SampleNames        []string
	Suggestions        []string
	HistoricalRegCount int
}

// HealthReport is the result of health_report().
type HealthReport struct {
	Score           int
	Duplicates      []string
	Inconsistencies []string
	DroppedEvents   int64
}

// Engine is the single-consumer diagnostics pipeline.
type Engine struct {
	cfg   Config
	queue chan Event
	flush chan chan struct{}
	stop  chan struct{}
	done  chan struct{}

	dropped atomic.Int64

	mu                sync.RWMutex
	usage             map[string]int64
	graph             map[string]map[string]bool // parent type -> child types
	cyclic            map[string]bool
	cyclePaths        map[string]bool
	optimized         map[string]bool
	registrationCount map[string]int
	variantsSeen      map[string]map[string]bool // type -> variants registered (duplicate detection)
	duplicates        map[string]bool
	scopeKindsSeen    map[string]map[string]bool // type -> scope kinds seen over time (inconsistency)
	inconsistent      map[string]bool
	missCount         map[string]int64
	scopeFallback     map[string]int64
}

// New creates an Engine and starts its background drain loop.
func New(cfg Config) *Engine {
	e := &Engine{
		cfg:               cfg,
		queue:             make(chan Event, 4096),
		flush:             make(chan chan struct{}),
		stop:              make(chan struct{}),
		done:              make(chan struct{}),
		usage:             make(map[string]int64),
		graph:             make(map[string]map[string]bool),
		cyclic:            make(map[string]bool),
		cyclePaths:        make(map[string]bool),
		optimized:         make(map[string]bool),
		registrationCount: make(map[string]int),
		variantsSeen:      make(map[string]map[string]bool),
		duplicates:        make(map[string]bool),
		scopeKindsSeen:     make(map[string]map[string]bool),
		inconsistent:      make(map[string]bool),
		missCount:         make(map[string]int64),
		scopeFallback:     make(map[string]int64),
	}
	go e.loop()
	return e
}

// Close stops the background loop after draining whatever is queued.
func (e *Engine) Close() {
	close(e.stop)
	<-e.done
}

// emit is the non-blocking fire-and-forget send every resolve/register
// performs. A full queue drops the event and counts it for the next
// health tick, rather than ever blocking the caller.
func (e *Engine) emit(ev Event) {
	if !e.cfg.MonitoringEnabled {
		return
	}
	select {
	case e.queue <- ev:
	default:
		e.dropped.Add(1)
	}
}

func (e *Engine) RegisteredEvent(key typekey.Key, variant string, scopeKind string) {
	e.emit(Event{Kind: Registered, Type: key.Name(), Variant: variant, ScopeKind: scopeKind})
	e.logAt(LogRegistration, "di: registered %s as %s", key.Name(), variant)
}

func (e *Engine) ResolvedEvent(key typekey.Key) {
	e.emit(Event{Kind: Resolved, Type: key.Name()})
}

func (e *Engine) ReleasedEvent(key typekey.Key) {
	e.emit(Event{Kind: Released, Type: key.Name()})
}

func (e *Engine) NestedResolveEvent(parent, child typekey.Key) {
	e.emit(Event{Kind: NestedResolve, Parent: parent.Name(), Type: child.Name()})
}

func (e *Engine) ScopeFallbackEvent(key typekey.Key, kind string) {
	e.emit(Event{Kind: ScopeFallback, Type: key.Name(), ScopeKind: kind})
	e.logAt(LogAll, "di: scope fallback for %s (no active %s scope)", key.Name(), kind)
}

// Miss records a missing-registration event and logs the detailed
// diagnostic line an operator needs to debug a miss.
func (e *Engine) Miss(key typekey.Key, detail MissDetail) {
	e.emit(Event{Kind: Miss, Type: key.Name()})
	e.logAt(LogErrors, "di: miss for %s (registered=%d, similar=%v, history=%d)",
		detail.RequestedType, detail.TotalRegistered, detail.Suggestions, detail.HistoricalRegCount)
}

func (e *Engine) logAt(level LogLevel, format string, args ...any) {
	if e.cfg.LogLevel == LogOff {
		return
	}
	if e.cfg.LogLevel == LogErrors && level != LogErrors {
		return
	}
	if e.cfg.LogLevel < level && e.cfg.LogLevel != LogAll {
		return
	}
	log.Printf(format, args...)
}

// Await blocks until every event enqueued before this call has been
// folded into derived state, without waiting for the next batch_interval tick.
func (e *Engine) Await() {
	ack := make(chan struct{})
	select {
	case e.flush <- ack:
		<-ack
	case <-e.done:
	}
}

func (e *Engine) loop() {
	batchTicker := time.NewTicker(maxDuration(e.cfg.BatchInterval, time.Millisecond))
	healthTicker := time.NewTicker(maxDuration(e.cfg.HealthInterval, time.Millisecond))
	optTicker := time.NewTicker(maxDuration(e.cfg.OptimizationInterval, time.Millisecond))
	defer batchTicker.Stop()
	defer healthTicker.Stop()
	defer optTicker.Stop()
	defer close(e.done)

	var batch []Event
	drain := func() {
		if len(batch) == 0 {
			return
		}
		e.applyBatch(batch)
		batch = batch[:0]
	}
	drainQueued := func() {
		for {
			select {
			case ev := <-e.queue:
				batch = append(batch, ev)
			default:
				return
			}
		}
	}

	for {
		select {
		case ev := <-e.queue:
			batch = append(batch, ev)
			if len(batch) >= e.cfg.MaxBatchSize {
				drain()
			}
		case <-batchTicker.C:
			drain()
		case <-healthTicker.C:
			drain()
			e.runHealthTick()
		case <-optTicker.C:
			drain()
			e.runOptimizationTick()
		case ack := <-e.flush:
			drainQueued()
			drain()
			close(ack)
		case <-e.stop:
			drainQueued()
			drain()
			return
		}
	}
}

func maxDuration(d, floor time.Duration) time.Duration {
	if d < floor {
		return floor
	}
	return d
}

func (e *Engine) applyBatch(events []Event) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, ev := range events {
		switch ev.Kind {
		case Registered:
			e.registrationCount[ev.Type]++
			variants := e.variantsSeen[ev.Type]
			if variants == nil {
				variants = make(map[string]bool)
				e.variantsSeen[ev.Type] = variants
			}
			variants[ev.Variant] = true
			if len(variants) > 1 {
				e.duplicates[ev.Type] = true
			}
			if ev.ScopeKind != "" {
				kinds := e.scopeKindsSeen[ev.Type]
				if kinds == nil {
					kinds = make(map[string]bool)
					e.scopeKindsSeen[ev.Type] = kinds
				}
				kinds[ev.ScopeKind] = true
				if len(kinds) > 1 {
					e.inconsistent[ev.Type] = true
				}
			}
		case Resolved:
			e.usage[ev.Type]++
			if e.usage[ev.Type] >= e.cfg.OptimizationThreshold {
				e.optimized[ev.Type] = true
			}
		case Released:
			delete(e.variantsSeen, ev.Type)
			delete(e.duplicates, ev.Type)
		case NestedResolve:
			children := e.graph[ev.Parent]
			if children == nil {
				children = make(map[string]bool)
				e.graph[ev.Parent] = children
			}
			if children[ev.Type] {
				// A known edge closes no cycle that is not already recorded.
				continue
			}
			children[ev.Type] = true

			if e.reaches(ev.Type, ev.Parent) {
				e.cyclic[ev.Parent] = true
				e.cyclic[ev.Type] = true
				if path, ok := e.findPath(ev.Type, ev.Parent); ok {
					e.cyclePaths[renderCycle(append(path, ev.Type))] = true
				}
			}
		case Miss:
			e.missCount[ev.Type]++
		case ScopeFallback:
			e.scopeFallback[ev.Type]++
		}
	}
}

// reaches reports whether to is reachable from from in the dependency
// graph, used to detect that adding parent->child would close a cycle.
func (e *Engine) reaches(from, to string) bool {
	if from == to {
		return true
	}
	visited := make(map[string]bool)
	var walk func(string) bool
	walk = func(n string) bool {
		if visited[n] {
			return false
		}
		visited[n] = true
		for child := range e.graph[n] {
			if child == to || walk(child) {
				return true
			}
		}
		return false
	}
	return walk(from)
}

func (e *Engine) findPath(from, to string) ([]string, bool) {
	visited := make(map[string]bool)
	var path []string
	var walk func(string) bool
	walk = func(n string) bool {
		if visited[n] {
			return false
		}
		visited[n] = true
		path = append(path, n)
		if n == to {
			return true
		}
		for child := range e.graph[n] {
			if walk(child) {
				return true
			}
		}
		path = path[:len(path)-1]
		return false
	}
	if walk(from) {
		return path, true
	}
	return nil, false
}

func renderCycle(path []string) string {
	out := ""
	for i, n := range path {
		if i > 0 {
			out += " -> "
		}
		out += n
	}
	return out
}

func (e *Engine) runHealthTick() {
	e.emit(Event{Kind: HealthCheckTick})
}

func (e *Engine) runOptimizationTick() {
	e.emit(Event{Kind: OptimizationTick})
}

// Graph returns a snapshot of the dependency graph, parent -> sorted children.
func (e *Engine) Graph() map[string][]string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make(map[string][]string, len(e.graph))
	for parent, children := range e.graph {
		names := make([]string, 0, len(children))
		for c := range children {
			names = append(names, c)
		}
		sort.Strings(names)
		out[parent] = names
	}
	return out
}

// Stats returns usage_count per registered type name.
func (e *Engine) Stats() map[string]int64 {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make(map[string]int64, len(e.usage))
	for k, v := range e.usage {
		out[k] = v
	}
	return out
}

// OptimizedTypes returns the set of type names flagged "optimized".
func (e *Engine) OptimizedTypes() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]string, 0, len(e.optimized))
	for k := range e.optimized {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// DetectedCycles returns the set of detected cycle path strings.
func (e *Engine) DetectedCycles() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]string, 0, len(e.cyclePaths))
	for path := range e.cyclePaths {
		out = append(out, path)
	}
	sort.Strings(out)
	return out
}

// HealthReport computes the aggregate health score described in §4.5:
// duplicates cost 5 points each; a large registry with optimization
// disabled costs another 5. optimizationEnabled and registeredCount are
// supplied by the caller (the façade), which alone knows the snapshot
// layer's toggle and the registry's size.
func (e *Engine) HealthReport(optimizationEnabled bool, registeredCount int) HealthReport {
	e.mu.RLock()
	defer e.mu.RUnlock()

	dupes := make([]string, 0, len(e.duplicates))
	for d := range e.duplicates {
		dupes = append(dupes, d)
	}
	sort.Strings(dupes)

	inconsistencies := make([]string, 0, len(e.inconsistent))
	for d := range e.inconsistent {
		inconsistencies = append(inconsistencies, d)
	}
	sort.Strings(inconsistencies)

	score := 100
	score -= 5 * len(dupes)
	const largeRegistryThreshold = 50
	if !optimizationEnabled && registeredCount > largeRegistryThreshold {
		score -= 5
	}
	if score < 0 {
		score = 0
	}

	return HealthReport{
		Score:           score,
		Duplicates:      dupes,
		Inconsistencies: inconsistencies,
		DroppedEvents:   e.dropped.Load(),
	}
}

// resolveFrame is one entry of the task-local resolution stack, carried
// on the context under resolveCtxKey and used to build the
// nested-resolve dependency graph. It lives
// here (not in the registry) because the graph it feeds is diagnostics
// state; the registry only pushes and pops.
type resolveFrame struct {
	key    typekey.Key
	parent *resolveFrame
}

type resolveCtxKey struct{}

// PushResolving returns a context recording that key is now being
// resolved, and the parent (if any) that triggered it — used by the
// registry to emit NestedResolve edges and to detect same-task reentrancy.
func PushResolving(ctx context.Context, key typekey.Key) (context.Context, typekey.Key, bool) {
	top, _ := ctx.Value(resolveCtxKey{}).(*resolveFrame)
	var parent typekey.Key
	hasParent := top != nil
	if hasParent {
		parent = top.key
	}
	next := context.WithValue(ctx, resolveCtxKey{}, &resolveFrame{key: key, parent: top})
	return next, parent, hasParent
}

// InStack reports whether key is already being resolved on ctx's stack,
// which is how an implementation MAY guard against runaway recursion
// with a depth/membership check.
func InStack(ctx context.Context, key typekey.Key) bool {
	top, _ := ctx.Value(resolveCtxKey{}).(*resolveFrame)
	for f := top; f != nil; f = f.parent {
		if f.key == key {
			return true
		}
	}
	return false
}
