package inflight

import (
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/DerMene/cassandra-loader/pkg/metrics"
)

// DefaultProgressPeriod is the row count between Progress lines.
const DefaultProgressPeriod = 100000

// PrintingAction reports outcomes to a task's LOG and BADINSERT channels.
// Either writer may be nil.
type PrintingAction struct {
	Log       io.Writer
	BadInsert io.Writer
	// Period is the row count between Progress lines; 0 uses
	// DefaultProgressPeriod
	Period int64
	Logger *zap.Logger

	mu      sync.Mutex
	rows    atomic.Int64
	stopped atomic.Bool
}

// OnSuccess implements Action.
func (a *PrintingAction) OnSuccess(rows int) {
	metrics.RowsWritten.WithLabelValues(metrics.ModeLoad).Add(float64(rows))

	period := a.Period
	if period <= 0 {
		period = DefaultProgressPeriod
	}
	n := a.rows.Add(int64(rows))
	if n/period == (n-int64(rows))/period {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.Log != nil {
		fmt.Fprintf(a.Log, "Progress:  %d\n", n)
	}
}

// OnFailure implements Action.
func (a *PrintingAction) OnFailure(err error, lines []string) {
	metrics.Errors.WithLabelValues(metrics.ModeLoad, "insert").Inc()
	if a.Logger != nil {
		a.Logger.Debug("insert failed", zap.Error(err), zap.Int("rows", len(lines)))
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.Log != nil {
		fmt.Fprintf(a.Log, "Error inserting: %s\n", err)
		for _, l := range lines {
			fmt.Fprintf(a.Log, "  %s\n", l)
		}
	}
	if a.BadInsert != nil {
		for _, l := range lines {
			fmt.Fprintln(a.BadInsert, l)
		}
	}
}

// OnTooManyFailures implements Action. Only the first call writes.
func (a *PrintingAction) OnTooManyFailures() {
	if !a.stopped.CompareAndSwap(false, true) {
		return
	}
	if a.Logger != nil {
		a.Logger.Error("too many insert errors, stopping")
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.Log != nil {
		fmt.Fprintln(a.Log, "Too many INSERT errors ... Stopping")
	}
}
