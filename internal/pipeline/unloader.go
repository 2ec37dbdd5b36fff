package pipeline

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/DerMene/cassandra-loader/pkg/compression"
	"github.com/DerMene/cassandra-loader/pkg/config"
	"github.com/DerMene/cassandra-loader/pkg/logger"
	"github.com/DerMene/cassandra-loader/pkg/metrics"
	"github.com/DerMene/cassandra-loader/pkg/observability"
	"github.com/DerMene/cassandra-loader/pkg/partition"
	"github.com/DerMene/cassandra-loader/pkg/session"
)

// Unloader writes a table to delimited files.
type Unloader struct {
	Config  *config.Config
	Session session.Session
	// Stdout receives the rows when the output is standard output; nil
	// writes to os.Stdout
	Stdout io.Writer
}

// NewUnloader returns an Unloader for cfg over s.
func NewUnloader(cfg *config.Config, s session.Session) *Unloader {
	return &Unloader{Config: cfg, Session: s}
}

// Run scans the table and returns the run summary.
//
// With one worker a single task scans the configured range, or the whole
// table without a token predicate when none is configured, into stdout or
// <stem>.0. With N workers the range, defaulting to the full ring, is split
// into N contiguous ranges written to <stem>.0 through <stem>.N-1.
func (u *Unloader) Run(ctx context.Context) (*Summary, error) {
	cfg := u.Config
	start := time.Now()
	monitor := NewResourceMonitor()
	log := logger.WithContext(ctx).With(zap.String("mode", metrics.ModeUnload))

	rc, chain, err := buildCodec(ctx, cfg, u.Session, false)
	if err != nil {
		return nil, err
	}
	cl, err := cfg.Consistency()
	if err != nil {
		return nil, err
	}
	ring, explicit, err := cfg.TokenRange()
	if err != nil {
		return nil, err
	}
	alg, err := cfg.OutputCompression()
	if err != nil {
		return nil, err
	}

	workers := cfg.UnloadThreads()
	var ranges []*partition.TokenRange
	if workers == 1 {
		if explicit {
			ranges = []*partition.TokenRange{&ring}
		} else {
			ranges = []*partition.TokenRange{nil}
		}
	} else {
		split, err := partition.Split(ring.Begin, ring.End, workers)
		if err != nil {
			return nil, err
		}
		for i := range split {
			ranges = append(ranges, &split[i])
		}
	}

	table := chain.Schema().QualifiedTable()
	tracer := observability.NewTaskTracer(metrics.ModeUnload)
	ctx, span := tracer.StartRun(ctx, table, len(ranges))
	progress := NewProgress(metrics.ModeUnload, len(ranges), log)
	reportCtx, stopReport := context.WithCancel(ctx)
	go progress.Report(reportCtx, cfg.Observability.ProgressInterval)

	stdout := u.Stdout
	if stdout == nil {
		stdout = os.Stdout
	}
	tasks := make([]Task[UnloadResult], len(ranges))
	for i, r := range ranges {
		t := &UnloadTask{
			Index:       i,
			Session:     u.Session,
			Codec:       rc,
			Range:       r,
			Where:       cfg.Unload.Where,
			Consistency: cl,
			RetryPolicy: cfg.RetryPolicy(),
			PageSize:    cfg.Advanced.PageSize,
			Compression: alg,
			Level:       cfg.CompressionLevel(),
			Progress:    progress,
			Tracer:      tracer,
		}
		if cfg.UnloadToStdout() {
			t.Output = stdout
		} else {
			t.Path = OutputPath(cfg.Unload.File, i, alg)
		}
		tasks[i] = t
	}
	log.Info("starting unload",
		zap.String("table", table),
		zap.Int("tasks", len(tasks)),
		zap.Bool("ranged", ranges[0] != nil))

	results := Dispatch(ctx, workers, tasks)
	stopReport()
	progress.Finish()

	summary := summarizeUnload(table, results, time.Since(start))
	summary.Resources = monitor.Usage()
	runErr := runError(summary)
	span.SetAttribute("run.unloaded", summary.Unloaded)
	span.SetAttribute("run.failed", summary.Failed)
	span.End(runErr)

	log.Info("unload completed",
		zap.Int64("total_rows", summary.Unloaded),
		zap.Int("tasks", summary.Tasks),
		zap.Int("failed", summary.Failed),
		zap.Duration("duration", summary.Duration))
	if err := writeSummary(cfg.Observability.SummaryFile, summary); err != nil {
		log.Warn("cannot write summary", zap.Error(err))
	}
	return summary, runErr
}

// OutputPath names the output of worker index: <stem>.<index>, plus the
// compression extension.
func OutputPath(stem string, index int, alg compression.Algorithm) string {
	return fmt.Sprintf("%s.%d%s", stem, index, compression.Extension(alg))
}
