// Package scope tracks active scope identifiers per scope kind for the
// calling logical task, and owns the scoped-instance cache keyed by
// (TypeKey, ScopeID).
//
// Go has no goroutine-local storage, so "task-local" is modeled the way
// the primitive module threads cancellation through its executor: the
// caller carries an explicit context.Context, and Enter/Leave return a
// derived context rather than mutating shared state. Scopes therefore
// never propagate to a detached goroutine unless that goroutine is
// handed the same context.
package scope

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/corewire/di/internal/typekey"
)

// Kind identifies a category of scope. Singleton, Session, and Request
// are predefined; callers may define additional kinds freely — Kind is
// just a string.
type Kind string

const (
	Singleton Kind = "singleton"
	Session   Kind = "session"
	Request   Kind = "request"
)

// ID names one instance of a scope kind, e.g. (Request, "r-492").
type ID struct {
	Kind Kind
	Instance string
}

// NewID returns an ID for kind with a fresh opaque instance token.
func NewID(kind Kind) ID {
	return ID{Kind: kind, Instance: uuid.NewString()}
}

func (id ID) String() string { return string(id.Kind) + ":" + id.Instance }

// frame is one entry of the immutable per-context scope stack.
type frame struct {
	kind   Kind
	id     string
	parent *frame
}

type ctxKey struct{}

func topFrame(ctx context.Context) *frame {
	f, _ := ctx.Value(ctxKey{}).(*frame)
	return f
}

// Enter pushes id as the current scope of kind for the returned
// context. The original ctx is untouched; callers that never adopt the
// returned context never observe the scope.
func Enter(ctx context.Context, kind Kind, id string) context.Context {
	return context.WithValue(ctx, ctxKey{}, &frame{kind: kind, id: id, parent: topFrame(ctx)})
}

// Leave pops the current scope of kind if it matches id exactly; it is
// a no-op (returns ctx unchanged) if the top of the stack for kind does
// not match: leaving an inactive scope is a no-op.
func Leave(ctx context.Context, kind Kind, id string) context.Context {
	var above []*frame
	for f := topFrame(ctx); f != nil; f = f.parent {
		if f.kind != kind {
			above = append(above, f)
			continue
		}
		if f.id != id {
			return ctx
		}
		// Rebuild the frames of other kinds that sat above the popped one.
		rest := f.parent
		for i := len(above) - 1; i >= 0; i-- {
			rest = &frame{kind: above[i].kind, id: above[i].id, parent: rest}
		}
		return context.WithValue(ctx, ctxKey{}, rest)
	}
	return ctx
}

// CurrentID returns the nearest active scope id of kind on ctx's stack.
func CurrentID(ctx context.Context, kind Kind) (string, bool) {
	for f := topFrame(ctx); f != nil; f = f.parent {
		if f.kind == kind {
			return f.id, true
		}
	}
	return "", false
}

// cacheKey is the scoped-instance cache key: (TypeKey, ScopeID).
type cacheKey struct {
	typ   typekey.Key
	scope ID
}

// kindState holds the cached instances for one scope kind, guarded by
// its own lock so concurrent scopes of different kinds never contend.
type kindState struct {
	mu   sync.RWMutex
	data map[cacheKey]any
}

// Manager owns the scoped-instance cache. Factories hold no reference
// back to the Manager: a released scope drops its values unconditionally.
type Manager struct {
	mu     sync.Mutex // guards creation of new kindState entries only
	states map[Kind]*kindState
}

// New creates an empty Manager.
func New() *Manager {
	return &Manager{states: make(map[Kind]*kindState)}
}

func (m *Manager) stateFor(kind Kind) *kindState {
	m.mu.Lock()
	st, ok := m.states[kind]
	if !ok {
		st = &kindState{data: make(map[cacheKey]any)}
		m.states[kind] = st
	}
	m.mu.Unlock()
	return st
}

// Get returns the cached instance for (typ, id), if any.
func (m *Manager) Get(typ typekey.Key, id ID) (any, bool) {
	st := m.stateFor(id.Kind)
	st.mu.RLock()
	defer st.mu.RUnlock()
	v, ok := st.data[cacheKey{typ: typ, scope: id}]
	return v, ok
}

// Put caches instance for (typ, id).
func (m *Manager) Put(typ typekey.Key, id ID, instance any) {
	st := m.stateFor(id.Kind)
	st.mu.Lock()
	st.data[cacheKey{typ: typ, scope: id}] = instance
	st.mu.Unlock()
}

// ReleaseScope drops every cached entry for (kind, instance) and
// returns the number of entries dropped.
func (m *Manager) ReleaseScope(kind Kind, instance string) int {
	st := m.stateFor(kind)
	st.mu.Lock()
	defer st.mu.Unlock()

	dropped := 0
	for key := range st.data {
		if key.scope.Kind == kind && key.scope.Instance == instance {
			delete(st.data, key)
			dropped++
		}
	}
	return dropped
}

// ReleaseScoped drops one specific (typ, kind, instance) entry and
// reports whether anything was dropped.
func (m *Manager) ReleaseScoped(typ typekey.Key, kind Kind, instance string) bool {
	st := m.stateFor(kind)
	st.mu.Lock()
	defer st.mu.Unlock()

	key := cacheKey{typ: typ, scope: ID{Kind: kind, Instance: instance}}
	if _, ok := st.data[key]; !ok {
		return false
	}
	delete(st.data, key)
	return true
}

// ReleaseByType drops every cached instance of typ across every scope
// kind and instance, regardless of which kind it was cached under.
// Used when a TypeKey's registration is replaced or released, so a
// still-active scope cannot keep serving an instance built by the old
// factory.
func (m *Manager) ReleaseByType(typ typekey.Key) int {
	m.mu.Lock()
	states := make([]*kindState, 0, len(m.states))
	for _, st := range m.states {
		states = append(states, st)
	}
	m.mu.Unlock()

	dropped := 0
	for _, st := range states {
		st.mu.Lock()
		for key := range st.data {
			if key.typ == typ {
				delete(st.data, key)
				dropped++
			}
		}
		st.mu.Unlock()
	}
	return dropped
}

// Clear drops every cached instance for every kind.
func (m *Manager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states = make(map[Kind]*kindState)
}
