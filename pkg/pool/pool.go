// Package pool provides typed object pooling for buffers reused on the
// line hot path.
//
// Example usage:
//
//	fields := pool.New(
//	    func() *[]string { s := make([]string, 0, 16); return &s },
//	    func(s *[]string) { *s = (*s)[:0] },
//	)
//	buf := fields.Get()
//	defer fields.Put(buf)
package pool

import (
	"sync"
	"sync/atomic"
)

// Pool is a type-safe wrapper of sync.Pool that resets objects on Put and
// tracks usage. The pool is safe for concurrent use.
//
// Pointer types are recommended for T so Put does not allocate.
type Pool[T any] struct {
	pool  sync.Pool
	reset func(T)
	stats struct {
		allocated atomic.Int64
		inUse     atomic.Int64
		gets      atomic.Int64
	}
}

// New creates a pool. newFn builds an object when the pool is empty; reset,
// if not nil, clears an object before it is pooled again.
func New[T any](newFn func() T, reset func(T)) *Pool[T] {
	p := &Pool[T]{reset: reset}
	p.pool.New = func() interface{} {
		p.stats.allocated.Add(1)
		return newFn()
	}
	return p
}

// Get returns a pooled object or a new one.
func (p *Pool[T]) Get() T {
	p.stats.gets.Add(1)
	p.stats.inUse.Add(1)
	return p.pool.Get().(T)
}

// Put resets obj and returns it to the pool.
func (p *Pool[T]) Put(obj T) {
	if p.reset != nil {
		p.reset(obj)
	}
	p.stats.inUse.Add(-1)
	p.pool.Put(obj)
}

// Stats reports the objects created, the objects checked out, and the
// number of Get calls served from the pool rather than by allocation.
func (p *Pool[T]) Stats() (allocated, inUse, hits int64) {
	allocated = p.stats.allocated.Load()
	gets := p.stats.gets.Load()
	hits = gets - allocated
	if hits < 0 {
		hits = 0
	}
	return allocated, p.stats.inUse.Load(), hits
}

// NewStringSlicePool returns a pool of string slices with capacity for at
// least size elements, truncated to zero length on Put.
func NewStringSlicePool(size int) *Pool[*[]string] {
	return New(
		func() *[]string {
			s := make([]string, 0, size)
			return &s
		},
		func(s *[]string) {
			clear(*s)
			*s = (*s)[:0]
		},
	)
}
