// Package typekey maps a static Go type to a stable, hashable,
// process-local identifier and assigns each identifier a dense integer
// slot on first registration.
package typekey

import (
	"reflect"
	"sync"
	"sync/atomic"
)

// noSlot marks a TypeKey that has not yet been assigned a slot.
const noSlot = ^uint32(0)

// Key is the process-local identity of a type. Equality and hashing are
// by the underlying reflect.Type pointer, not by name: two distinct
// types that happen to share a display name never collide.
type Key struct {
	rt reflect.Type
}

// Of returns the Key for T. Calling Of[T]() repeatedly returns a Key
// that compares equal by ==, since reflect.Type values for the same
// type are canonical.
func Of[T any]() Key {
	var zero T
	return Key{rt: reflect.TypeOf(&zero).Elem()}
}

// OfType returns the Key for a reflect.Type known at runtime, used by
// callers that only carry a dynamic type (e.g. the resolveAny path).
// A pointer type is normalized to its element type: for a value x of
// type X, OfType(reflect.TypeOf(&x)) returns Of[X](), never Of[*X]().
func OfType(rt reflect.Type) Key {
	if rt == nil {
		return Key{}
	}
	if rt.Kind() == reflect.Ptr {
		rt = rt.Elem()
	}
	return Key{rt: rt}
}

// Valid reports whether the key identifies a real type.
func (k Key) Valid() bool { return k.rt != nil }

// Name returns a human-readable type name for diagnostics.
func (k Key) Name() string {
	if k.rt == nil {
		return "<invalid>"
	}
	return k.rt.String()
}

// Type returns the underlying reflect.Type.
func (k Key) Type() reflect.Type { return k.rt }

// String implements fmt.Stringer for log lines and error messages.
func (k Key) String() string { return k.Name() }

// Interner assigns monotonically increasing, never-reused slot IDs to
// Keys, on first use. Thread-safe: SlotFor and Lookup both take the
// interner's mutex on every call, so a reader on the snapshot path
// (internal/snapshot) can briefly wait behind a concurrent first
// assignment. Len and KeyAt read the published slot table without locking.
type Interner struct {
	mu      sync.Mutex
	slots   map[Key]uint32
	nextID  atomic.Uint32
	entries atomic.Pointer[[]Key] // slot ID -> Key, for reverse lookup
}

// New creates an empty Interner.
func New() *Interner {
	in := &Interner{slots: make(map[Key]uint32)}
	empty := make([]Key, 0, 16)
	in.entries.Store(&empty)
	return in
}

// SlotFor returns the dense slot ID for key, assigning one if this is
// the first time key has been seen. The returned ID never changes for
// a given key (Invariant 1 of the registry data model) and is never
// reused, even after the key's registration is released.
func (in *Interner) SlotFor(key Key) uint32 {
	in.mu.Lock()
	defer in.mu.Unlock()

	if id, ok := in.slots[key]; ok {
		return id
	}

	id := in.nextID.Add(1) - 1
	in.slots[key] = id

	prev := *in.entries.Load()
	next := make([]Key, len(prev), len(prev)+1)
	copy(next, prev)
	next = append(next, key)
	in.entries.Store(&next)

	return id
}

// Lookup returns the slot already assigned to key without assigning a
// new one, for the snapshot read path, which must never allocate a
// slot. Like SlotFor, it takes the interner's mutex.
func (in *Interner) Lookup(key Key) (uint32, bool) {
	in.mu.Lock()
	defer in.mu.Unlock()
	id, ok := in.slots[key]
	return id, ok
}

// Len returns the number of interned keys, used to size snapshot arrays.
func (in *Interner) Len() int {
	return len(*in.entries.Load())
}

// KeyAt returns the Key interned at slot id, for diagnostics rendering.
func (in *Interner) KeyAt(id uint32) (Key, bool) {
	entries := *in.entries.Load()
	if int(id) >= len(entries) {
		return Key{}, false
	}
	return entries[id], true
}
