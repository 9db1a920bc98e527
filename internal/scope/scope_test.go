package scope_test

import (
	"context"
	"testing"

	"github.com/corewire/di/internal/scope"
	"github.com/corewire/di/internal/typekey"
)

type RequestContext struct{ ID string }

func TestEnterLeaveCurrentID(t *testing.T) {
	ctx := context.Background()
	if _, ok := scope.CurrentID(ctx, scope.Request); ok {
		t.Fatalf("expected no active scope on a fresh context")
	}

	ctx = scope.Enter(ctx, scope.Request, "r1")
	id, ok := scope.CurrentID(ctx, scope.Request)
	if !ok || id != "r1" {
		t.Fatalf("CurrentID = (%q, %v), want (r1, true)", id, ok)
	}

	after := scope.Leave(ctx, scope.Request, "r1")
	if _, ok := scope.CurrentID(after, scope.Request); ok {
		t.Fatalf("expected scope to be gone after matching Leave")
	}
}

func TestLeaveIsNoOpOnMismatch(t *testing.T) {
	ctx := scope.Enter(context.Background(), scope.Request, "r1")
	after := scope.Leave(ctx, scope.Request, "different")

	id, ok := scope.CurrentID(after, scope.Request)
	if !ok || id != "r1" {
		t.Fatalf("mismatched Leave should be a no-op, got (%q, %v)", id, ok)
	}
}

func TestNestedScopesOfDifferentKinds(t *testing.T) {
	ctx := context.Background()
	ctx = scope.Enter(ctx, scope.Session, "s1")
	ctx = scope.Enter(ctx, scope.Request, "r1")

	if id, ok := scope.CurrentID(ctx, scope.Session); !ok || id != "s1" {
		t.Fatalf("session id = (%q, %v), want (s1, true)", id, ok)
	}
	if id, ok := scope.CurrentID(ctx, scope.Request); !ok || id != "r1" {
		t.Fatalf("request id = (%q, %v), want (r1, true)", id, ok)
	}
}

func TestEnterDoesNotMutateOriginalContext(t *testing.T) {
	base := context.Background()
	derived := scope.Enter(base, scope.Request, "r1")

	if _, ok := scope.CurrentID(base, scope.Request); ok {
		t.Fatalf("original context observed the derived scope")
	}
	if _, ok := scope.CurrentID(derived, scope.Request); !ok {
		t.Fatalf("derived context did not observe its own scope")
	}
}

func TestScopeIsolation(t *testing.T) {
	m := scope.New()
	typ := typekey.Of[RequestContext]()

	a := scope.ID{Kind: scope.Request, Instance: "r1"}
	b := scope.ID{Kind: scope.Request, Instance: "r2"}

	m.Put(typ, a, &RequestContext{ID: "a"})
	m.Put(typ, b, &RequestContext{ID: "b"})

	gotA, ok := m.Get(typ, a)
	if !ok || gotA.(*RequestContext).ID != "a" {
		t.Fatalf("scope a returned %v", gotA)
	}
	gotB, ok := m.Get(typ, b)
	if !ok || gotB.(*RequestContext).ID != "b" {
		t.Fatalf("scope b returned %v", gotB)
	}
}

func TestReleaseScopeTeardown(t *testing.T) {
	m := scope.New()
	typ := typekey.Of[RequestContext]()
	id := scope.ID{Kind: scope.Request, Instance: "r1"}

	m.Put(typ, id, &RequestContext{ID: "a"})

	dropped := m.ReleaseScope(scope.Request, "r1")
	if dropped != 1 {
		t.Fatalf("ReleaseScope dropped %d, want 1", dropped)
	}

	if _, ok := m.Get(typ, id); ok {
		t.Fatalf("instance still cached after ReleaseScope")
	}
}

func TestReleaseScopedDropsOnlyOneEntry(t *testing.T) {
	m := scope.New()
	typA := typekey.Of[RequestContext]()
	type Other struct{}
	typB := typekey.Of[Other]()
	id := scope.ID{Kind: scope.Request, Instance: "r1"}

	m.Put(typA, id, &RequestContext{ID: "a"})
	m.Put(typB, id, &Other{})

	if !m.ReleaseScoped(typA, scope.Request, "r1") {
		t.Fatalf("ReleaseScoped reported false for an existing entry")
	}
	if _, ok := m.Get(typA, id); ok {
		t.Fatalf("typA instance still cached")
	}
	if _, ok := m.Get(typB, id); !ok {
		t.Fatalf("typB instance should remain cached")
	}

	if m.ReleaseScoped(typA, scope.Request, "r1") {
		t.Fatalf("ReleaseScoped on an absent entry should report false")
	}
}

func TestReleaseByTypeDropsAcrossKindsAndInstances(t *testing.T) {
	m := scope.New()
	typA := typekey.Of[RequestContext]()
	type Other struct{}
	typB := typekey.Of[Other]()

	m.Put(typA, scope.ID{Kind: scope.Request, Instance: "r1"}, &RequestContext{ID: "a"})
	m.Put(typA, scope.ID{Kind: scope.Session, Instance: "s1"}, &RequestContext{ID: "b"})
	m.Put(typB, scope.ID{Kind: scope.Request, Instance: "r1"}, &Other{})

	dropped := m.ReleaseByType(typA)
	if dropped != 2 {
		t.Fatalf("ReleaseByType dropped %d, want 2", dropped)
	}

	if _, ok := m.Get(typA, scope.ID{Kind: scope.Request, Instance: "r1"}); ok {
		t.Fatalf("typA request-scoped instance still cached")
	}
	if _, ok := m.Get(typA, scope.ID{Kind: scope.Session, Instance: "s1"}); ok {
		t.Fatalf("typA session-scoped instance still cached")
	}
	if _, ok := m.Get(typB, scope.ID{Kind: scope.Request, Instance: "r1"}); !ok {
		t.Fatalf("typB instance should be unaffected by ReleaseByType(typA)")
	}
}
