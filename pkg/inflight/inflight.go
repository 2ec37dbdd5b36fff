// Package inflight bounds the number of outstanding asynchronous writes of a
// task, counts their outcomes and enforces the insert error budget.
//
// Two strategies share the Manager contract. The purge strategy collects up
// to Size writes and, once full, waits for every one of them before
// accepting more. The permit strategy holds a weighted semaphore of Size
// permits; each write takes a permit on submission and returns it from its
// completion callback.
package inflight

import (
	"context"
	"strings"
	"time"

	"github.com/DerMene/cassandra-loader/pkg/errors"
	"github.com/DerMene/cassandra-loader/pkg/session"
)

// Strategy selects a Manager implementation.
type Strategy string

const (
	// StrategyPurge drains all outstanding writes whenever the bound is hit
	StrategyPurge Strategy = "purge"
	// StrategyPermit releases a slot as soon as any write completes
	StrategyPermit Strategy = "permit"
)

// ParseStrategy converts a configured name to a Strategy.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(strings.ToLower(strings.TrimSpace(s))) {
	case StrategyPurge:
		return StrategyPurge, nil
	case StrategyPermit, "":
		return StrategyPermit, nil
	}
	return "", errors.Newf(errors.ErrorTypeConfig, "unknown in-flight strategy %q, options are: purge, permit", s)
}

// Config bounds a Manager.
type Config struct {
	// Size is the maximum number of outstanding writes
	Size int
	// QueryTimeout bounds the wait for one write during a purge; 0 waits
	// without limit
	QueryTimeout time.Duration
	// MaxInsertErrors is the failed write count at which the task aborts;
	// negative means unlimited and 0 behaves like 1
	MaxInsertErrors int64
}

func (c Config) exhausted(errs int64) bool {
	if c.MaxInsertErrors < 0 {
		return false
	}
	max := c.MaxInsertErrors
	if max == 0 {
		max = 1
	}
	return errs >= max
}

// Op is one write and the input lines it carries. The manager calls Submit
// once a slot is free, so the write is never started beyond the bound.
type Op struct {
	Submit func() session.Future
	// Lines holds one raw line per row of the write
	Lines []string
}

// rowsOf counts a write without lines as one row.
func rowsOf(lines []string) int {
	if len(lines) == 0 {
		return 1
	}
	return len(lines)
}

// cancelled reports whether a write was abandoned because its context was
// cancelled. Such writes count neither as completed nor as failed.
func cancelled(err error) bool {
	return errors.Is(err, context.Canceled)
}

// Action receives write outcomes. Calls may come from several goroutines.
type Action interface {
	// OnSuccess is called when a write of rows rows succeeded
	OnSuccess(rows int)
	// OnFailure is called with the error and the lines of a failed write
	OnFailure(err error, lines []string)
	// OnTooManyFailures is called once when the error budget is exhausted
	OnTooManyFailures()
}

// Manager tracks the outstanding writes of one task. Add and Cleanup are
// called from the submitting goroutine only.
type Manager interface {
	// Add submits a write, blocking while the bound is reached. It returns
	// false without submitting once the error budget is exhausted or ctx
	// ends; the caller must then abort.
	Add(ctx context.Context, op Op) bool
	// Cleanup waits for every outstanding write and returns false if the
	// error budget was exhausted or ctx ended.
	Cleanup(ctx context.Context) bool
	// Completed returns the number of rows written successfully
	Completed() int64
	// Errors returns the number of failed writes
	Errors() int64
	// Outstanding returns the number of writes not yet accounted for
	Outstanding() int
}

// New returns the Manager for strategy. An empty strategy selects permit.
func New(strategy Strategy, cfg Config, action Action) (Manager, error) {
	if cfg.Size < 1 {
		return nil, errors.Newf(errors.ErrorTypeConfig, "in-flight bound must be positive, got %d", cfg.Size)
	}
	if action == nil {
		action = NopAction{}
	}
	switch strategy {
	case StrategyPurge:
		return newPurgeList(cfg, action), nil
	case StrategyPermit, "":
		return newPermitSet(cfg, action), nil
	}
	return nil, errors.Newf(errors.ErrorTypeConfig, "unknown in-flight strategy %q", strategy)
}

// NopAction ignores every outcome.
type NopAction struct{}

// OnSuccess implements Action.
func (NopAction) OnSuccess(int) {}

// OnFailure implements Action.
func (NopAction) OnFailure(error, []string) {}

// OnTooManyFailures implements Action.
func (NopAction) OnTooManyFailures() {}
