package pipeline

import (
	"context"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
	"go.uber.org/zap"
)

// Progress aggregates live counters across the tasks of one run. Tasks
// update it from their own goroutines and from write completions; a nil
// Progress ignores updates.
type Progress struct {
	mode   string
	tasks  int
	logger *zap.Logger

	lines        *xsync.Counter
	written      *xsync.Counter
	parseErrors  *xsync.Counter
	insertErrors *xsync.Counter
	finished     *xsync.Counter

	startTime time.Time
}

// ProgressSnapshot is a point-in-time copy of the counters.
type ProgressSnapshot struct {
	Lines         int64         `json:"lines"`
	Written       int64         `json:"written"`
	ParseErrors   int64         `json:"parse_errors"`
	InsertErrors  int64         `json:"insert_errors"`
	TasksFinished int64         `json:"tasks_finished"`
	Elapsed       time.Duration `json:"elapsed"`
	// ThroughputRPS is written rows per second since the start
	ThroughputRPS float64 `json:"throughput_rps"`
}

// NewProgress creates the counters of a run of tasks tasks.
func NewProgress(mode string, tasks int, logger *zap.Logger) *Progress {
	return &Progress{
		mode:         mode,
		tasks:        tasks,
		logger:       logger.With(zap.String("component", "progress")),
		lines:        xsync.NewCounter(),
		written:      xsync.NewCounter(),
		parseErrors:  xsync.NewCounter(),
		insertErrors: xsync.NewCounter(),
		finished:     xsync.NewCounter(),
		startTime:    time.Now(),
	}
}

// AddLines records lines read.
func (p *Progress) AddLines(n int64) {
	if p != nil {
		p.lines.Add(n)
	}
}

// AddWritten records rows written.
func (p *Progress) AddWritten(n int64) {
	if p != nil {
		p.written.Add(n)
	}
}

// AddParseError records one rejected line.
func (p *Progress) AddParseError() {
	if p != nil {
		p.parseErrors.Inc()
	}
}

// AddInsertError records one failed write.
func (p *Progress) AddInsertError() {
	if p != nil {
		p.insertErrors.Inc()
	}
}

// TaskFinished records one finished task.
func (p *Progress) TaskFinished() {
	if p != nil {
		p.finished.Inc()
	}
}

// Snapshot returns the current counters.
func (p *Progress) Snapshot() ProgressSnapshot {
	s := ProgressSnapshot{
		Lines:         p.lines.Value(),
		Written:       p.written.Value(),
		ParseErrors:   p.parseErrors.Value(),
		InsertErrors:  p.insertErrors.Value(),
		TasksFinished: p.finished.Value(),
		Elapsed:       time.Since(p.startTime),
	}
	if secs := s.Elapsed.Seconds(); secs > 0 {
		s.ThroughputRPS = float64(s.Written) / secs
	}
	return s
}

// Report logs a progress update every interval until ctx ends. A
// non-positive interval disables it.
func (p *Progress) Report(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			p.log("progress update")
		case <-ctx.Done():
			return
		}
	}
}

// Finish logs the final counters.
func (p *Progress) Finish() {
	p.log("processing completed")
}

func (p *Progress) log(msg string) {
	s := p.Snapshot()
	p.logger.Info(msg,
		zap.String("mode", p.mode),
		zap.Int64("tasks_finished", s.TasksFinished),
		zap.Int("tasks", p.tasks),
		zap.Int64("lines", s.Lines),
		zap.Int64("written", s.Written),
		zap.Int64("parse_errors", s.ParseErrors),
		zap.Int64("insert_errors", s.InsertErrors),
		zap.Duration("elapsed", s.Elapsed),
		zap.Float64("throughput_rps", s.ThroughputRPS))
}
