// Package flight shares one run of a keyed operation among every caller
// that asks for the same key while it is running.
//
// A run gets a context detached from the caller that started it, keeping
// its values (trace spans) but not its cancellation. Callers that stop
// waiting simply leave; the run context is cancelled only when the last
// waiting caller has left, or by CancelAll.
package flight

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sync/singleflight"
)

// ErrLeft is returned to a caller whose context ended before the run
// finished. It wraps the context's error.
var ErrLeft = errors.New("stopped waiting")

// Group deduplicates runs by key. The zero value is ready to use.
type Group[T any] struct {
	// OnShare is called when a caller joins a run that is already waited on.
	OnShare func(key string)
	// OnAbandon is called when the last waiting caller leaves before the
	// run finished.
	OnAbandon func(key string)

	sf    singleflight.Group
	mu    sync.Mutex
	calls map[string]*call
}

type call struct {
	ctx     context.Context
	cancel  context.CancelFunc
	waiters int
}

// Do runs fn for key, or waits for the run already in flight. shared
// reports whether the result was delivered to more than one caller.
func (g *Group[T]) Do(ctx context.Context, key string, fn func(ctx context.Context) (T, error)) (val T, shared bool, err error) {
	c := g.join(ctx, key)

	ch := g.sf.DoChan(key, func() (any, error) {
		return fn(c.ctx)
	})

	select {
	case res := <-ch:
		g.leave(key, c)
		if res.Err != nil {
			return val, res.Shared, res.Err
		}
		return res.Val.(T), res.Shared, nil
	case <-ctx.Done():
		if g.leave(key, c) && g.OnAbandon != nil {
			g.OnAbandon(key)
		}
		return val, false, fmt.Errorf("%w: %w", ErrLeft, ctx.Err())
	}
}

func (g *Group[T]) join(ctx context.Context, key string) *call {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.calls == nil {
		g.calls = make(map[string]*call)
	}
	c, ok := g.calls[key]
	if ok {
		if g.OnShare != nil {
			g.OnShare(key)
		}
	} else {
		runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		c = &call{ctx: runCtx, cancel: cancel}
		g.calls[key] = c
	}
	c.waiters++
	return c
}

// leave drops one waiter. The last one cancels the run context and forgets
// the key so later callers start a fresh run. It reports whether this was
// the last waiter.
func (g *Group[T]) leave(key string, c *call) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	c.waiters--
	if c.waiters > 0 {
		return false
	}
	if g.calls[key] == c {
		delete(g.calls, key)
		g.sf.Forget(key)
	}
	c.cancel()
	return true
}

// InFlight reports whether any caller is waiting on key.
func (g *Group[T]) InFlight(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.calls[key]
	return ok
}

// Waiters returns how many callers are waiting on key.
func (g *Group[T]) Waiters(key string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	if c, ok := g.calls[key]; ok {
		return c.waiters
	}
	return 0
}

// CancelAll cancels every run that has waiters and returns their keys,
// sorted. Waiters receive whatever their run returns once cancelled.
func (g *Group[T]) CancelAll() []string {
	g.mu.Lock()
	defer g.mu.Unlock()

	keys := make([]string, 0, len(g.calls))
	for key, c := range g.calls {
		c.cancel()
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
