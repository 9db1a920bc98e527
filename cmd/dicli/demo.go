package main

import (
	"context"
	"fmt"

	"github.com/corewire/di/di"
	"github.com/corewire/di/internal/config"
	"github.com/corewire/di/internal/scope"
)

// The core has no persistence or network surface, so there is nothing
// for an inspection CLI to attach to out of process. demoContainer
// builds a small illustrative wiring —
// a logger, a database behind it, and a scoped request context — and
// runs a handful of resolves so stats/graph/health have something real
// to report on.
type Logger struct{ Name string }
type Database struct{ DSN string }
type RequestContext struct{ ID string }

func demoContainer(cfg *config.Config) *di.Container {
	c := di.New(cfg)

	di.Register(c, func(ctx context.Context, c *di.Container) (*Logger, error) {
		return &Logger{Name: "dicli"}, nil
	})
	di.Register(c, func(ctx context.Context, c *di.Container) (*Database, error) {
		if _, err := di.Resolve[*Logger](ctx, c); err != nil {
			return nil, err
		}
		return &Database{DSN: "memory://demo"}, nil
	})
	di.RegisterScoped(c, func(ctx context.Context, c *di.Container) (*RequestContext, error) {
		id, _ := scope.CurrentID(ctx, scope.Request)
		return &RequestContext{ID: id}, nil
	})

	ctx := c.EnterScope(context.Background(), scope.Request, "demo-1")
	if _, err := di.Resolve[*Database](ctx, c); err != nil {
		fmt.Println("demo wiring resolve error:", err)
	}
	if _, err := di.Resolve[*RequestContext](ctx, c); err != nil {
		fmt.Println("demo wiring resolve error:", err)
	}
	c.AwaitPendingWork()
	return c
}
