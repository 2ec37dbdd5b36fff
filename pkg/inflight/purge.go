package inflight

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/DerMene/cassandra-loader/pkg/errors"
	"github.com/DerMene/cassandra-loader/pkg/session"
)

type pending struct {
	future session.Future
	lines  []string
}

// purgeList waits out its whole list of writes in submission order each
// time it fills up.
type purgeList struct {
	cfg    Config
	action Action

	mu      sync.Mutex
	ops     []pending
	aborted bool

	completed atomic.Int64
	errs      atomic.Int64
}

func newPurgeList(cfg Config, action Action) *purgeList {
	return &purgeList{cfg: cfg, action: action, ops: make([]pending, 0, cfg.Size)}
}

func (p *purgeList) Add(ctx context.Context, op Op) bool {
	if p.isAborted() || ctx.Err() != nil {
		return false
	}
	if p.Outstanding() >= p.cfg.Size && !p.purge(ctx) {
		return false
	}
	f := op.Submit()
	p.mu.Lock()
	p.ops = append(p.ops, pending{future: f, lines: op.Lines})
	p.mu.Unlock()
	return true
}

func (p *purgeList) Cleanup(ctx context.Context) bool {
	ok := p.purge(ctx)
	return ok && !p.isAborted()
}

// purge waits for each listed write in turn. It stops early when ctx ends
// or the error budget runs out, leaving the unvisited writes listed.
func (p *purgeList) purge(ctx context.Context) bool {
	p.mu.Lock()
	ops := p.ops
	p.mu.Unlock()

	for i, op := range ops {
		err := p.wait(ctx, op)
		if ctx.Err() != nil {
			p.setOps(ops[i:])
			return false
		}
		if err == nil {
			p.completed.Add(int64(rowsOf(op.lines)))
			p.action.OnSuccess(rowsOf(op.lines))
			continue
		}
		if cancelled(err) {
			continue
		}
		n := p.errs.Add(1)
		p.action.OnFailure(err, op.lines)
		if p.cfg.exhausted(n) {
			p.mu.Lock()
			first := !p.aborted
			p.aborted = true
			p.ops = ops[i+1:]
			p.mu.Unlock()
			if first {
				p.action.OnTooManyFailures()
			}
			return false
		}
	}
	p.setOps(ops[:0])
	return true
}

func (p *purgeList) wait(ctx context.Context, op pending) error {
	var timeout <-chan time.Time
	if p.cfg.QueryTimeout > 0 {
		timer := time.NewTimer(p.cfg.QueryTimeout)
		defer timer.Stop()
		timeout = timer.C
	}
	select {
	case <-op.future.Done():
		return op.future.Err()
	case <-timeout:
		return errors.Newf(errors.ErrorTypeTimeout, "write did not complete within %s", p.cfg.QueryTimeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *purgeList) setOps(ops []pending) {
	p.mu.Lock()
	p.ops = ops
	p.mu.Unlock()
}

func (p *purgeList) isAborted() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.aborted
}

func (p *purgeList) Completed() int64 { return p.completed.Load() }

func (p *purgeList) Errors() int64 { return p.errs.Load() }

func (p *purgeList) Outstanding() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.ops)
}
