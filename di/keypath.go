package di

import (
	"context"
	"fmt"
	"sync"

	"github.com/corewire/di/internal/typekey"
)

// keyPathIndex is a secondary index from an opaque string token to a
// TypeKey, used only to provide an alternative lookup — it is never
// the primary key, and resolving by path is always a wrapper around
// the same registry the typed API goes through.
type keyPathIndex struct {
	mu    sync.RWMutex
	paths map[string]typekey.Key
}

func newKeyPathIndex() *keyPathIndex {
	return &keyPathIndex{paths: make(map[string]typekey.Key)}
}

// BindKeyPath associates path with T's TypeKey, overwriting any prior binding.
func BindKeyPath[T any](c *Container, path string) {
	c.keyPaths.mu.Lock()
	defer c.keyPaths.mu.Unlock()
	c.keyPaths.paths[path] = typekey.Of[T]()
}

// ResolveKeyPath looks up the TypeKey bound to path and resolves it
// through the suspension-capable path, since a KeyPath caller has no
// static type to demand sync-only resolution.
func ResolveKeyPath(ctx context.Context, c *Container, path string) (any, error) {
	c.keyPaths.mu.RLock()
	key, ok := c.keyPaths.paths[path]
	c.keyPaths.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("di: no KeyPath bound for %q", path)
	}
	return ResolveAny(ctx, c, key)
}
