package pipeline

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/DerMene/cassandra-loader/pkg/codec"
	"github.com/DerMene/cassandra-loader/pkg/config"
	"github.com/DerMene/cassandra-loader/pkg/errors"
	"github.com/DerMene/cassandra-loader/pkg/json"
	"github.com/DerMene/cassandra-loader/pkg/logger"
	"github.com/DerMene/cassandra-loader/pkg/metrics"
	"github.com/DerMene/cassandra-loader/pkg/observability"
	"github.com/DerMene/cassandra-loader/pkg/ratelimit"
	"github.com/DerMene/cassandra-loader/pkg/record"
	"github.com/DerMene/cassandra-loader/pkg/session"
)

// Loader loads every input of a run into one table.
type Loader struct {
	Config  *config.Config
	Session session.Session
	// Stdin is read when the input is standard input; nil reads os.Stdin
	Stdin io.Reader
}

// NewLoader returns a Loader for cfg over s.
func NewLoader(cfg *config.Config, s session.Session) *Loader {
	return &Loader{Config: cfg, Session: s}
}

// Run loads the inputs and returns the run summary. The error is non-nil
// when setup failed or any task did not succeed; the summary still holds
// the counts produced.
func (l *Loader) Run(ctx context.Context) (*Summary, error) {
	cfg := l.Config
	start := time.Now()
	monitor := NewResourceMonitor()
	log := logger.WithContext(ctx).With(zap.String("mode", metrics.ModeLoad))

	rc, chain, err := buildCodec(ctx, cfg, l.Session, true)
	if err != nil {
		return nil, err
	}
	if cfg.Load.NullsUnset {
		if v := l.Session.ProtocolVersion(); v > 0 && v < 4 {
			return nil, errors.Newf(errors.ErrorTypeConfig,
				"cannot use nulls unset with protocol version less than 4 (%d)", v)
		}
	}

	stmt, err := l.Session.Prepare(ctx, chain.InsertCQL())
	if err != nil {
		return nil, statementError(err, chain.InsertCQL(), "")
	}
	cl, err := cfg.Consistency()
	if err != nil {
		return nil, err
	}
	stmt.WithConsistency(cl).WithRetryPolicy(cfg.RetryPolicy())

	strategy, err := cfg.InflightStrategy()
	if err != nil {
		return nil, err
	}
	inputs, err := Inputs(cfg.Load.File, cfg.Load.FilePattern)
	if err != nil {
		return nil, err
	}
	rateOut, closeRate, err := openRateOutput(cfg.Load.RateFile)
	if err != nil {
		return nil, err
	}
	defer closeRate()

	table := chain.Schema().QualifiedTable()
	log.Info("starting load",
		zap.String("table", table),
		zap.Int("inputs", len(inputs)),
		zap.Int("threads", cfg.Load.NumThreads),
		zap.String("strategy", string(strategy)),
		zap.Int("futures", cfg.Load.NumFutures),
		zap.Int("batch_size", cfg.Load.BatchSize))

	tracer := observability.NewTaskTracer(metrics.ModeLoad)
	ctx, span := tracer.StartRun(ctx, table, len(inputs))
	progress := NewProgress(metrics.ModeLoad, len(inputs), log)
	reportCtx, stopReport := context.WithCancel(ctx)
	go progress.Report(reportCtx, cfg.Observability.ProgressInterval)

	opts := LoadOptions{
		BatchSize:      cfg.Load.BatchSize,
		SkipRows:       cfg.Load.SkipRows,
		MaxRows:        cfg.Load.MaxRows,
		MaxErrors:      cfg.Load.MaxErrors,
		NullsUnset:     cfg.Load.NullsUnset,
		BadDir:         cfg.Load.BadDir,
		SuccessDir:     cfg.Load.SuccessDir,
		FailureDir:     cfg.Load.FailureDir,
		ProgressPeriod: cfg.Load.ProgressRate,
	}
	tasks := make([]Task[Result], len(inputs))
	for i, in := range inputs {
		tasks[i] = &LoadTask{
			Name:     in,
			Stdin:    l.Stdin,
			Session:  l.Session,
			Stmt:     stmt,
			Codec:    rc,
			Strategy: strategy,
			Inflight: cfg.InflightConfig(),
			Limit: &ratelimit.Config{
				Rate:         cfg.Load.Rate,
				ProgressRate: cfg.Load.ProgressRate,
				Output:       rateOut,
				Name:         in,
			},
			Options:  opts,
			Progress: progress,
			Tracer:   tracer,
		}
	}

	results := Dispatch(ctx, cfg.Load.NumThreads, tasks)
	stopReport()
	progress.Finish()

	summary := summarizeLoad(table, results, time.Since(start))
	summary.Resources = monitor.Usage()
	runErr := runError(summary)
	span.SetAttribute("run.inserted", summary.Inserted)
	span.SetAttribute("run.failed", summary.Failed)
	span.End(runErr)

	for _, r := range results {
		if !r.OK() {
			log.Error("task failed", zap.String("input", r.Name), zap.String("outcome", string(r.Outcome)),
				zap.Int64("code", r.Code()), zap.Error(r.Err))
		}
	}
	log.Info("load completed",
		zap.Int("tasks", summary.Tasks),
		zap.Int("failed", summary.Failed),
		zap.Int64("inserted", summary.Inserted),
		zap.Int64("parse_errors", summary.ParseErrors),
		zap.Int64("insert_errors", summary.InsertErrors),
		zap.Duration("duration", summary.Duration))

	if err := writeSummary(cfg.Observability.SummaryFile, summary); err != nil {
		log.Warn("cannot write summary", zap.Error(err))
	}
	return summary, runErr
}

// buildCodec parses the schema, reads the column types and builds the line
// codec. Skip columns apply to loads only.
func buildCodec(ctx context.Context, cfg *config.Config, s session.Session, withSkips bool) (*record.Codec, *codec.Chain, error) {
	schema, err := codec.ParseSchema(cfg.Format.Schema)
	if err != nil {
		return nil, nil, err
	}
	types, err := s.Columns(ctx, schema.Keyspace, schema.Table)
	if err != nil {
		return nil, nil, err
	}
	var skip []string
	if withSkips {
		if skip, err = cfg.SkipColumns(); err != nil {
			return nil, nil, err
		}
	}
	opts, err := cfg.CodecOptions()
	if err != nil {
		return nil, nil, err
	}
	chain, err := codec.NewChain(schema, types, skip, opts)
	if err != nil {
		return nil, nil, err
	}
	rcfg, err := cfg.RecordConfig()
	if err != nil {
		return nil, nil, err
	}
	rc, err := record.New(chain, rcfg)
	if err != nil {
		return nil, nil, err
	}
	return rc, chain, nil
}

// openRateOutput opens the rate report target: empty discards, "stderr"
// is standard error, anything else a file.
func openRateOutput(name string) (io.Writer, func(), error) {
	switch {
	case name == "":
		return nil, func() {}, nil
	case strings.EqualFold(name, config.Stderr):
		return os.Stderr, func() {}, nil
	}
	f, err := os.Create(name)
	if err != nil {
		return nil, nil, errors.Wrap(err, errors.ErrorTypeFile, "cannot create rate file")
	}
	return f, func() { f.Close() }, nil
}

// runError summarizes failed tasks as one error typed after the first
// failure.
func runError(s *Summary) error {
	if s.Failed == 0 {
		return nil
	}
	var first error
	for _, r := range s.Loads {
		if !r.OK() {
			first = r.Err
			break
		}
	}
	for _, r := range s.Unloads {
		if first == nil && !r.OK() {
			first = r.Err
		}
	}
	msg := fmt.Sprintf("%d of %d tasks failed", s.Failed, s.Tasks)
	if first == nil {
		return errors.New(errors.ErrorTypeInternal, msg)
	}
	typ := errors.ErrorTypeInternal
	var e *errors.Error
	if errors.As(first, &e) {
		typ = e.Type
	}
	return errors.Wrap(first, typ, msg)
}

func writeSummary(path string, s *Summary) error {
	if path == "" {
		return nil
	}
	return json.WriteFile(path, s)
}
