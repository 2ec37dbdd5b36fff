package pipeline

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/DerMene/cassandra-loader/pkg/errors"
	"github.com/DerMene/cassandra-loader/pkg/inflight"
	"github.com/DerMene/cassandra-loader/pkg/logger"
	"github.com/DerMene/cassandra-loader/pkg/metrics"
	"github.com/DerMene/cassandra-loader/pkg/observability"
	"github.com/DerMene/cassandra-loader/pkg/ratelimit"
	"github.com/DerMene/cassandra-loader/pkg/record"
	"github.com/DerMene/cassandra-loader/pkg/session"
)

// LoadOptions are the per-input settings of a load task.
type LoadOptions struct {
	// BatchSize groups writes into unlogged batches when above 1
	BatchSize int
	// SkipRows ignores the first lines of the input
	SkipRows int64
	// MaxRows stops after this many data rows; negative reads everything
	MaxRows int64
	// MaxErrors is the parse error budget; negative is unlimited
	MaxErrors  int64
	NullsUnset bool
	// BadDir receives the BADPARSE, BADINSERT and LOG channels
	BadDir     string
	SuccessDir string
	FailureDir string
	// ProgressPeriod is the row count between LOG progress lines
	ProgressPeriod int64
}

// LoadTask loads one input into the table behind Stmt.
type LoadTask struct {
	// Name is the input path or StdinName
	Name string
	// Stdin is read when Name is StdinName; nil reads os.Stdin
	Stdin    io.Reader
	Session  session.Session
	Stmt     *session.Statement
	Codec    *record.Codec
	Strategy inflight.Strategy
	Inflight inflight.Config
	// Limit configures the limiter built when the task starts; nil
	// disables throttling and rate reporting.
	Limit    *ratelimit.Config
	Options  LoadOptions
	Progress *Progress
	Tracer   *observability.TaskTracer
}

// Run loads the input. Line-level failures are counted in the Result; only
// setup and I/O failures set Result.Err without an abort outcome.
func (t *LoadTask) Run(ctx context.Context) (res Result) {
	start := time.Now()
	res.Name = t.Name

	ctx = logger.ContextWithTask(ctx, "load", t.Name)
	log := logger.WithContext(ctx)
	tracer := t.Tracer
	if tracer == nil {
		tracer = observability.NewTaskTracer(metrics.ModeLoad)
	}
	ctx, span := tracer.StartTask(ctx, t.Name)

	metrics.ActiveTasks.WithLabelValues(metrics.ModeLoad).Inc()
	defer func() {
		res.Duration = time.Since(start)
		metrics.ActiveTasks.WithLabelValues(metrics.ModeLoad).Dec()
		metrics.Tasks.WithLabelValues(metrics.ModeLoad, string(res.Outcome)).Inc()
		metrics.TaskDuration.WithLabelValues(metrics.ModeLoad, string(res.Outcome)).Observe(res.Duration.Seconds())
		t.Progress.TaskFinished()

		span.SetAttribute("task.outcome", string(res.Outcome))
		span.SetAttribute("task.lines", res.Lines)
		span.SetAttribute("task.inserted", res.Inserted)
		span.SetAttribute("task.parse_errors", res.ParseErrors)
		span.SetAttribute("task.insert_errors", res.InsertErrors)
		span.End(res.Err)
	}()
	var limiter *ratelimit.Limiter
	if t.Limit != nil {
		limiter = ratelimit.New(*t.Limit)
		defer limiter.Stop()
	}

	sc, err := openSideChannels(t.Options.BadDir, t.Name)
	if err != nil {
		return t.failed(res, log, err)
	}
	in, err := openInput(t.Name, t.Stdin)
	if err != nil {
		sc.Close()
		return t.failed(res, log, err)
	}

	res = t.load(ctx, res, in, sc, limiter, log)

	if err := in.Close(); err != nil && res.Err == nil {
		res.Outcome, res.Err = OutcomeFailed, errors.Wrap(err, errors.ErrorTypeFile, "cannot close input")
	}
	if err := sc.Close(); err != nil && res.Err == nil {
		res.Outcome, res.Err = OutcomeFailed, errors.Wrap(err, errors.ErrorTypeFile, "cannot write side channels")
	}
	t.route(res, log)
	return res
}

func (t *LoadTask) failed(res Result, log *zap.Logger, err error) Result {
	log.Error("load task failed", zap.Error(err))
	res.Outcome = OutcomeFailed
	res.Err = err
	return res
}

// load runs the read, parse, bind and submit loop, then drains.
func (t *LoadTask) load(ctx context.Context, res Result, in io.Reader, sc *sideChannels, limiter *ratelimit.Limiter, log *zap.Logger) Result {
	logLine := func(format string, args ...interface{}) {
		if w := sc.Log(); w != nil {
			fmt.Fprintf(w, format+"\n", args...)
		}
	}
	logLine("*** Processing %s", t.Name)
	log.Info("processing input")

	sess := t.Session
	if limiter != nil {
		sess = ratelimit.Wrap(sess, limiter)
	}
	action := &progressAction{
		Action: &inflight.PrintingAction{
			Log:       sc.Log(),
			BadInsert: sc.BadInsert(),
			Period:    t.Options.ProgressPeriod,
			Logger:    log,
		},
		progress: t.Progress,
	}
	mgr, err := inflight.New(t.Strategy, t.Inflight, action)
	if err != nil {
		return t.failed(res, log, err)
	}

	batchSize := t.Options.BatchSize
	var (
		batch      *session.Batch
		batchLines []string
		skip       = t.Options.SkipRows
		dataRows   int64
	)
	res.Outcome = OutcomeSuccess
	lines := newLineReader(in)

	submit := func(w session.Write, ls []string) bool {
		if mgr.Add(ctx, t.op(ctx, sess, w, ls)) {
			return true
		}
		res.Outcome, res.Err = t.rejected(ctx, mgr)
		return false
	}

	for {
		if err := ctx.Err(); err != nil {
			res.Outcome, res.Err = OutcomeCancelled, err
			break
		}
		if limit := t.Options.MaxRows; limit >= 0 && dataRows >= limit {
			break
		}
		line, ok, err := lines.Next()
		if err != nil {
			res.Outcome, res.Err = OutcomeFailed, err
			break
		}
		if !ok {
			break
		}
		res.Lines++
		metrics.LinesRead.WithLabelValues(metrics.ModeLoad).Inc()
		t.Progress.AddLines(1)

		if skip > 0 {
			skip--
			continue
		}
		if strings.TrimSpace(line) == "" {
			continue
		}
		dataRows++

		row, err := t.Codec.Parse(line)
		if err != nil {
			res.ParseErrors++
			metrics.Errors.WithLabelValues(metrics.ModeLoad, "parse").Inc()
			t.Progress.AddParseError()
			logLine("Error parsing line %d in %s: %s", res.Lines, t.Name, err)
			log.Debug("parse failed", zap.Int64("line", res.Lines), zap.Error(err))
			if w := sc.BadParse(); w != nil {
				fmt.Fprintln(w, line)
			}
			if budgetExhausted(t.Options.MaxErrors, res.ParseErrors) {
				logLine("Maximum number of errors exceeded (%d) for %s", res.ParseErrors, t.Name)
				log.Error("maximum number of parse errors exceeded", zap.Int64("parse_errors", res.ParseErrors))
				res.Outcome = OutcomeParseErrorAbort
				res.Err = errors.Newf(errors.ErrorTypeParse, "maximum number of errors exceeded (%d)", res.ParseErrors)
				break
			}
			continue
		}
		res.Parsed++

		bound := t.Stmt.Bind(row, t.Options.NullsUnset)
		if batchSize <= 1 {
			if !submit(bound, []string{line}) {
				break
			}
			continue
		}
		if batch == nil {
			batch = session.NewBatch(batchSize)
		}
		batch.Add(bound)
		batchLines = append(batchLines, line)
		if batch.Size() >= batchSize {
			w, ls := batch, batchLines
			batch, batchLines = nil, nil
			if !submit(w, ls) {
				break
			}
		}
	}
	if res.Outcome == OutcomeSuccess && batch != nil && batch.Size() > 0 {
		submit(batch, batchLines)
	}

	drained := mgr.Cleanup(ctx)
	if res.Outcome == OutcomeSuccess && !drained {
		res.Outcome, res.Err = t.rejected(ctx, mgr)
	}
	res.Inserted = mgr.Completed()
	res.InsertErrors = mgr.Errors()
	if limiter != nil {
		limiter.Report()
		res.Rate = limiter.Rate()
	}

	logLine("*** DONE: %s  number of lines processed: %d (%d inserted)", t.Name, res.Lines, res.Inserted)
	log.Info("input done",
		zap.String("outcome", string(res.Outcome)),
		zap.Int64("lines", res.Lines),
		zap.Int64("inserted", res.Inserted),
		zap.Int64("parse_errors", res.ParseErrors),
		zap.Int64("insert_errors", res.InsertErrors),
		zap.Float64("rate", res.Rate))
	return res
}

// op wraps one write for the manager. The write starts only once the
// manager has a slot for it.
func (t *LoadTask) op(ctx context.Context, sess session.Session, w session.Write, lines []string) inflight.Op {
	return inflight.Op{
		Lines: lines,
		Submit: func() session.Future {
			metrics.InFlight.Inc()
			timer := metrics.NewTimer()
			f := sess.ExecuteAsync(ctx, w)
			f.OnComplete(func(error) {
				metrics.InFlight.Dec()
				metrics.WriteLatency.Observe(timer.Stop().Seconds())
			})
			return f
		},
	}
}

// rejected classifies a refusal by the manager.
func (t *LoadTask) rejected(ctx context.Context, mgr inflight.Manager) (Outcome, error) {
	if err := ctx.Err(); err != nil {
		return OutcomeCancelled, err
	}
	return OutcomeInsertErrorAbort, errors.Newf(errors.ErrorTypeInsert, "too many insert errors (%d)", mgr.Errors())
}

// route moves a finished input to the success or failure directory.
// Standard input and cancelled tasks are never moved.
func (t *LoadTask) route(res Result, log *zap.Logger) {
	if t.Name == StdinName || res.Outcome == OutcomeCancelled {
		return
	}
	dir := t.Options.FailureDir
	if res.OK() {
		dir = t.Options.SuccessDir
	}
	if dir == "" {
		return
	}
	dst, err := moveFile(t.Name, dir)
	if err != nil {
		log.Warn("cannot move input", zap.String("dir", dir), zap.Error(err))
		return
	}
	log.Debug("input moved", zap.String("to", dst))
}

// budgetExhausted reports whether count errors reach limit. A negative
// limit is unlimited and a zero limit tolerates no error.
func budgetExhausted(limit, count int64) bool {
	if limit < 0 {
		return false
	}
	if limit == 0 {
		limit = 1
	}
	return count >= limit
}

// progressAction feeds write outcomes into the run's Progress.
type progressAction struct {
	inflight.Action
	progress *Progress
}

func (a *progressAction) OnSuccess(rows int) {
	a.progress.AddWritten(int64(rows))
	a.Action.OnSuccess(rows)
}

func (a *progressAction) OnFailure(err error, lines []string) {
	a.progress.AddInsertError()
	a.Action.OnFailure(err, lines)
}
