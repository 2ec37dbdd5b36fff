package pipeline

import (
	"bufio"
	"context"
	"io"
	"os"
	"strings"
	"time"

	"github.com/gocql/gocql"
	"go.uber.org/zap"

	"github.com/DerMene/cassandra-loader/pkg/codec"
	"github.com/DerMene/cassandra-loader/pkg/compression"
	"github.com/DerMene/cassandra-loader/pkg/errors"
	"github.com/DerMene/cassandra-loader/pkg/logger"
	"github.com/DerMene/cassandra-loader/pkg/metrics"
	"github.com/DerMene/cassandra-loader/pkg/observability"
	"github.com/DerMene/cassandra-loader/pkg/partition"
	"github.com/DerMene/cassandra-loader/pkg/record"
	"github.com/DerMene/cassandra-loader/pkg/retry"
	"github.com/DerMene/cassandra-loader/pkg/session"
)

// UnloadTask writes the rows of one token range to one output.
type UnloadTask struct {
	Index   int
	Session session.Session
	Codec   *record.Codec
	// Range bounds the scan; nil scans without a token predicate
	Range *partition.TokenRange
	// Where is conjoined to the token predicate
	Where       string
	Consistency gocql.Consistency
	RetryPolicy *retry.Policy
	PageSize    int
	// Output receives the lines when set; it is flushed, not closed
	Output io.Writer
	// Path is created when Output is nil
	Path        string
	Compression compression.Algorithm
	Level       compression.Level
	Progress    *Progress
	Tracer      *observability.TaskTracer
}

// SelectCQL builds the scan statement. With ranged set the statement takes
// the two token bounds as arguments.
func SelectCQL(chain *codec.Chain, partitionKey []string, ranged bool, where string) string {
	var b strings.Builder
	b.WriteString("SELECT ")
	b.WriteString(chain.SelectColumns())
	b.WriteString(" FROM ")
	b.WriteString(chain.Schema().QualifiedTable())

	where = strings.TrimSpace(where)
	if ranged {
		keys := make([]string, len(partitionKey))
		for i, k := range partitionKey {
			keys[i] = codec.QuoteIdentifier(k)
		}
		pk := strings.Join(keys, ",")
		b.WriteString(" WHERE Token(" + pk + ") > ? AND Token(" + pk + ") <= ?")
		if where != "" {
			b.WriteString(" AND " + where)
		}
	} else if where != "" {
		b.WriteString(" WHERE " + where)
	}
	return b.String()
}

func (t *UnloadTask) name() string {
	if t.Output != nil {
		return "stdout"
	}
	return t.Path
}

// Run scans the range and writes one line per row.
func (t *UnloadTask) Run(ctx context.Context) (res UnloadResult) {
	start := time.Now()
	res.Name = t.name()
	res.Output = t.name()
	if t.Range != nil {
		res.Range = t.Range.String()
	}

	ctx = logger.ContextWithTask(ctx, "unload", res.Name)
	log := logger.WithContext(ctx).With(zap.Int("index", t.Index), zap.String("range", res.Range))
	tracer := t.Tracer
	if tracer == nil {
		tracer = observability.NewTaskTracer(metrics.ModeUnload)
	}
	ctx, span := tracer.StartTask(ctx, res.Name)

	metrics.ActiveTasks.WithLabelValues(metrics.ModeUnload).Inc()
	defer func() {
		res.Duration = time.Since(start)
		metrics.ActiveTasks.WithLabelValues(metrics.ModeUnload).Dec()
		metrics.Tasks.WithLabelValues(metrics.ModeUnload, string(res.Outcome)).Inc()
		metrics.TaskDuration.WithLabelValues(metrics.ModeUnload, string(res.Outcome)).Observe(res.Duration.Seconds())
		t.Progress.TaskFinished()

		span.SetAttribute("task.outcome", string(res.Outcome))
		span.SetAttribute("task.range", res.Range)
		span.SetAttribute("task.rows", res.Rows)
		span.End(res.Err)
		if res.Err != nil {
			log.Error("unload task failed", zap.Error(res.Err))
		}
	}()

	rows, err := t.query(ctx, log)
	if err != nil {
		res.Outcome, res.Err = OutcomeFailed, err
		return res
	}

	out, closeOut, err := t.open()
	if err != nil {
		rows.Close()
		res.Outcome, res.Err = OutcomeFailed, err
		return res
	}

	res.Outcome = OutcomeSuccess
	res.Rows, res.Errors, err = t.copyRows(ctx, rows, out, log)
	if cerr := rows.Close(); err == nil {
		err = cerr
	}
	if cerr := closeOut(); err == nil {
		err = cerr
	}
	if err != nil {
		res.Outcome, res.Err = OutcomeFailed, err
		if ctx.Err() != nil {
			res.Outcome = OutcomeCancelled
		}
	}
	log.Info("unload done", zap.Int64("rows", res.Rows), zap.Int64("errors", res.Errors))
	return res
}

// query prepares and runs the scan. Statement failures are setup errors
// carrying the statement text.
func (t *UnloadTask) query(ctx context.Context, log *zap.Logger) (session.Rows, error) {
	schema := t.Codec.Chain().Schema()
	var pk []string
	if t.Range != nil {
		var err error
		pk, err = t.Session.PartitionKey(ctx, schema.Keyspace, schema.Table)
		if err != nil {
			return nil, err
		}
		if len(pk) == 0 {
			return nil, errors.Newf(errors.ErrorTypeSetup, "table %s has no partition key", schema.QualifiedTable())
		}
	}
	cql := SelectCQL(t.Codec.Chain(), pk, t.Range != nil, t.Where)
	log.Debug("unload statement", zap.String("cql", cql))

	stmt, err := t.Session.Prepare(ctx, cql)
	if err != nil {
		return nil, statementError(err, cql, t.Where)
	}
	stmt.WithConsistency(t.Consistency)
	stmt.PageSize = t.PageSize

	var args []interface{}
	if t.Range != nil {
		args = []interface{}{t.Range.Begin, t.Range.End}
	}
	policy := t.RetryPolicy
	if policy == nil {
		policy = retry.NoRetry()
	}
	var rows session.Rows
	err = policy.Execute(ctx, func() error {
		var qerr error
		rows, qerr = t.Session.Query(ctx, stmt, args...)
		return qerr
	})
	if err != nil {
		return nil, statementError(err, cql, t.Where)
	}
	return rows, nil
}

func statementError(err error, cql, where string) error {
	e := errors.Wrap(err, errors.ErrorTypeSetup, "error creating statement").WithDetail("cql", cql)
	if where != "" {
		e.WithDetail("where", where)
	}
	return e
}

// open returns the output writer and a function flushing and closing it.
func (t *UnloadTask) open() (io.Writer, func() error, error) {
	if t.Output != nil {
		bw := bufio.NewWriter(t.Output)
		return bw, bw.Flush, nil
	}
	f, err := os.Create(t.Path)
	if err != nil {
		return nil, nil, errors.Wrap(err, errors.ErrorTypeFile, "cannot create output")
	}
	cw, err := compression.NewWriter(f, t.Compression, t.Level)
	if err != nil {
		f.Close()
		return nil, nil, errors.Wrap(err, errors.ErrorTypeFile, "cannot compress output")
	}
	bw := bufio.NewWriter(cw)
	closeAll := func() error {
		err := bw.Flush()
		if cerr := cw.Close(); err == nil {
			err = cerr
		}
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return errors.Wrap(err, errors.ErrorTypeFile, "cannot write output")
		}
		return nil
	}
	return bw, closeAll, nil
}

// copyRows formats every row and writes it as one line. Rows that cannot
// be formatted are counted and skipped.
func (t *UnloadTask) copyRows(ctx context.Context, rows session.Rows, out io.Writer, log *zap.Logger) (n, bad int64, err error) {
	targets := t.Codec.Chain().Targets()
	row := make(codec.Row, len(targets))
	for {
		if err := ctx.Err(); err != nil {
			return n, bad, err
		}
		raw, ok := rows.Next()
		if !ok {
			return n, bad, nil
		}
		metrics.LinesRead.WithLabelValues(metrics.ModeUnload).Inc()

		line, ferr := t.format(targets, row, raw)
		if ferr != nil {
			bad++
			metrics.Errors.WithLabelValues(metrics.ModeUnload, "format").Inc()
			log.Warn("cannot format row", zap.Error(ferr))
			continue
		}
		if _, err := io.WriteString(out, line); err != nil {
			return n, bad, errors.Wrap(err, errors.ErrorTypeFile, "cannot write output")
		}
		if _, err := io.WriteString(out, "\n"); err != nil {
			return n, bad, errors.Wrap(err, errors.ErrorTypeFile, "cannot write output")
		}
		n++
		metrics.RowsWritten.WithLabelValues(metrics.ModeUnload).Inc()
		t.Progress.AddLines(1)
		t.Progress.AddWritten(1)
	}
}

func (t *UnloadTask) format(targets []codec.Column, row codec.Row, raw []interface{}) (string, error) {
	if len(raw) != len(targets) {
		return "", errors.Newf(errors.ErrorTypeInternal, "row has %d columns, expected %d", len(raw), len(targets))
	}
	for i, col := range targets {
		v, err := codec.FromNative(col.Type, raw[i])
		if err != nil {
			return "", errors.Wrap(err, errors.ErrorTypeParse, "column "+col.Name)
		}
		row[i] = v
	}
	return t.Codec.Format(row)
}
