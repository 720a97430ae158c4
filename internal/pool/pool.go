package pool

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"github.com/phuslu/log"
	"golang.org/x/sync/semaphore"
)

// Pool bounds the number of outbound calls in flight across the process.
// Only leaf work should hold a slot; goroutines that wait on other pool work
// must not, or nested fan-outs can exhaust the pool and deadlock.
type Pool struct {
	sem  *semaphore.Weighted
	size int
}

func New(size int) *Pool {
	if size < 1 {
		size = 1
	}
	return &Pool{sem: semaphore.NewWeighted(int64(size)), size: size}
}

func (p *Pool) Size() int { return p.size }

// Group is one fan-out whose results the caller joins after Wait.
type Group struct {
	pool *Pool
	ctx  context.Context
	wg   sync.WaitGroup
}

func (p *Pool) Group(ctx context.Context) *Group {
	return &Group{pool: p, ctx: ctx}
}

// Go runs fn once a slot is free. A panic inside fn is logged and the task
// is treated as having produced nothing. If the context ends before a slot
// frees up, fn is skipped.
func (g *Group) Go(name string, fn func(ctx context.Context)) {
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		if err := g.pool.sem.Acquire(g.ctx, 1); err != nil {
			log.Warn().Err(err).Str("task", name).Msg("pool task skipped")
			return
		}
		defer g.pool.sem.Release(1)
		defer recoverTask(name)
		fn(g.ctx)
	}()
}

func (g *Group) Wait() {
	g.wg.Wait()
}

// SafeGo runs fn on a new goroutine outside the pool and recovers panics.
// If wg is not nil it tracks the goroutine.
func SafeGo(wg *sync.WaitGroup, name string, fn func()) {
	if wg != nil {
		wg.Add(1)
	}
	go func() {
		if wg != nil {
			defer wg.Done()
		}
		defer recoverTask(name)
		fn()
	}()
}

func recoverTask(name string) {
	if r := recover(); r != nil {
		buf := make([]byte, 4096)
		n := runtime.Stack(buf, false)
		log.Error().
			Str("task", name).
			Str("panic", fmt.Sprintf("%v", r)).
			Str("stack", string(buf[:n])).
			Msg("recovered from panic")
	}
}
