package inflight

import (
	"context"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// permitSet admits a write per free permit and frees it on completion.
type permitSet struct {
	cfg    Config
	action Action
	sem    *semaphore.Weighted

	completed   atomic.Int64
	errs        atomic.Int64
	outstanding atomic.Int64
	tooMany     sync.Once
}

func newPermitSet(cfg Config, action Action) *permitSet {
	return &permitSet{cfg: cfg, action: action, sem: semaphore.NewWeighted(int64(cfg.Size))}
}

func (p *permitSet) Add(ctx context.Context, op Op) bool {
	if p.cfg.exhausted(p.errs.Load()) {
		return false
	}
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return false
	}
	rows := rowsOf(op.Lines)
	p.outstanding.Add(1)
	op.Submit().OnComplete(func(err error) {
		defer p.sem.Release(1)
		defer p.outstanding.Add(-1)

		if err == nil {
			p.completed.Add(int64(rows))
			p.action.OnSuccess(rows)
			return
		}
		if cancelled(err) {
			return
		}
		n := p.errs.Add(1)
		p.action.OnFailure(err, op.Lines)
		if p.cfg.exhausted(n) {
			p.tooMany.Do(p.action.OnTooManyFailures)
		}
	})
	return true
}

// Cleanup takes every permit, which only succeeds once all callbacks ran,
// then hands them back.
func (p *permitSet) Cleanup(ctx context.Context) bool {
	size := int64(p.cfg.Size)
	if err := p.sem.Acquire(ctx, size); err != nil {
		return false
	}
	p.sem.Release(size)
	return !p.cfg.exhausted(p.errs.Load())
}

func (p *permitSet) Completed() int64 { return p.completed.Load() }

func (p *permitSet) Errors() int64 { return p.errs.Load() }

func (p *permitSet) Outstanding() int { return int(p.outstanding.Load()) }
