package pipeline

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DerMene/cassandra-loader/pkg/compression"
	"github.com/DerMene/cassandra-loader/pkg/errors"
	"github.com/DerMene/cassandra-loader/pkg/ratelimit"
	"github.com/DerMene/cassandra-loader/pkg/session"
	"github.com/DerMene/cassandra-loader/pkg/testutil"
)

func TestLoadTwoRows(t *testing.T) {
	for _, s := range strategies {
		t.Run(string(s), func(t *testing.T) {
			f := newFixture(t)
			task := f.loadTask(StdinName, s)
			task.Stdin = strings.NewReader("1,true,3.5\n2,false,4.25\n")

			res := task.Run(context.Background())
			require.NoError(t, res.Err)
			assert.Equal(t, OutcomeSuccess, res.Outcome)
			assert.Equal(t, int64(2), res.Inserted)
			assert.Equal(t, int64(2), res.Code())
			assert.Equal(t, int64(2), res.Lines)
			assert.Equal(t, int64(2), f.ms.Writes())
			assert.ElementsMatch(t, []interface{}{int32(1), int32(2)}, f.values("a"))
			assert.ElementsMatch(t, []interface{}{true, false}, f.values("b"))
			assert.ElementsMatch(t, []interface{}{float32(3.5), float32(4.25)}, f.values("c"))
		})
	}
}

func TestLoadParseErrorAbort(t *testing.T) {
	f := newFixture(t)
	dir := t.TempDir()
	bad := t.TempDir()
	in := testutil.WriteLines(t, dir, "data.csv", "x,true,3.5", "2,false,4.25")

	task := f.loadTask(in, "")
	task.Options.MaxErrors = 1
	task.Options.BadDir = bad
	res := task.Run(context.Background())

	assert.Equal(t, OutcomeParseErrorAbort, res.Outcome)
	assert.Equal(t, CodeParseErrorAbort, res.Code())
	assert.True(t, errors.IsType(res.Err, errors.ErrorTypeParse))
	assert.Equal(t, int64(1), res.ParseErrors)
	assert.Equal(t, int64(0), res.Inserted)
	assert.Equal(t, int64(0), f.ms.Writes())
	assert.Equal(t, []string{"x,true,3.5"}, testutil.ReadLines(t, filepath.Join(bad, "data.csv.BADPARSE")))

	log := testutil.ReadLines(t, filepath.Join(bad, "data.csv.LOG"))
	require.NotEmpty(t, log)
	assert.Equal(t, "*** Processing "+in, log[0])
	assert.Contains(t, strings.Join(log, "\n"), "Error parsing line 1 in "+in)
	assert.Contains(t, strings.Join(log, "\n"), "Maximum number of errors exceeded (1) for "+in)
}

func TestLoadParseErrorsWithinBudget(t *testing.T) {
	f := newFixture(t)
	task := f.loadTask(StdinName, "")
	task.Stdin = strings.NewReader("1,true,3.5\n1,true\nx,y,z\n2,false,1\n")
	task.Options.MaxErrors = 3

	res := task.Run(context.Background())
	assert.Equal(t, OutcomeSuccess, res.Outcome)
	assert.Equal(t, int64(2), res.ParseErrors)
	assert.Equal(t, int64(2), res.Parsed)
	assert.Equal(t, int64(2), res.Inserted)
}

func failA(value int32) func(session.Write) error {
	return func(w session.Write) error {
		if b, ok := w.(*session.Bound); ok && b.Values[0] == value {
			return errors.New(errors.ErrorTypeInsert, "write rejected")
		}
		return nil
	}
}

func TestLoadInsertErrorBoundary(t *testing.T) {
	input := "1,true,1\n2,true,2\n3,true,3\n"
	for _, s := range strategies {
		t.Run(string(s)+"/max 1 aborts", func(t *testing.T) {
			f := newFixture(t)
			f.ms.FailWrites(failA(2))
			task := f.loadTask(StdinName, s)
			task.Stdin = strings.NewReader(input)
			task.Inflight.MaxInsertErrors = 1

			res := task.Run(context.Background())
			assert.Equal(t, OutcomeInsertErrorAbort, res.Outcome)
			assert.Equal(t, CodeInsertErrorAbort, res.Code())
			assert.Equal(t, int64(1), res.InsertErrors)
			assert.True(t, errors.IsType(res.Err, errors.ErrorTypeInsert))
		})
		t.Run(string(s)+"/max 2 tolerates one", func(t *testing.T) {
			f := newFixture(t)
			f.ms.FailWrites(failA(2))
			task := f.loadTask(StdinName, s)
			task.Stdin = strings.NewReader(input)
			task.Inflight.MaxInsertErrors = 2

			res := task.Run(context.Background())
			assert.Equal(t, OutcomeSuccess, res.Outcome)
			assert.Equal(t, int64(1), res.InsertErrors)
			assert.Equal(t, int64(2), res.Inserted)
			assert.ElementsMatch(t, []interface{}{int32(1), int32(3)}, f.values("a"))
		})
	}
}

func TestLoadBadInsertChannel(t *testing.T) {
	f := newFixture(t)
	f.ms.FailWrites(failA(2))
	dir := t.TempDir()
	bad := t.TempDir()
	in := testutil.WriteLines(t, dir, "in.csv", "1,true,1", "2,true,2")

	task := f.loadTask(in, "")
	task.Options.BadDir = bad
	res := task.Run(context.Background())

	assert.Equal(t, OutcomeSuccess, res.Outcome)
	assert.Equal(t, []string{"2,true,2"}, testutil.ReadLines(t, filepath.Join(bad, "in.csv.BADINSERT")))
	log := strings.Join(testutil.ReadLines(t, filepath.Join(bad, "in.csv.LOG")), "\n")
	assert.Contains(t, log, "Error inserting: insert: write rejected")
	assert.Contains(t, log, "*** DONE: "+in+"  number of lines processed: 2 (1 inserted)")
	assert.Empty(t, testutil.ReadLines(t, filepath.Join(bad, "in.csv.BADPARSE")))
}

func TestLoadBatching(t *testing.T) {
	f := newFixture(t)
	var mu sync.Mutex
	var sizes []int
	f.ms.FailWrites(func(w session.Write) error {
		mu.Lock()
		defer mu.Unlock()
		sizes = append(sizes, w.Size())
		return nil
	})

	task := f.loadTask(StdinName, "")
	task.Stdin = strings.NewReader("1,true,1\n2,true,2\n3,true,3\n4,true,4\n5,true,5\n")
	task.Options.BatchSize = 2

	res := task.Run(context.Background())
	require.Equal(t, OutcomeSuccess, res.Outcome)
	assert.Equal(t, int64(5), res.Inserted)
	assert.Equal(t, int64(3), f.ms.Writes())
	assert.ElementsMatch(t, []int{2, 2, 1}, sizes)
	assert.Len(t, f.ms.Rows("ks", "t"), 5)
}

func TestLoadSkipAndMaxRows(t *testing.T) {
	f := newFixture(t)
	task := f.loadTask(StdinName, "")
	task.Stdin = strings.NewReader("a,b,c\n\n1,true,1\n2,true,2\n3,true,3\n")
	task.Options.SkipRows = 1
	task.Options.MaxRows = 2

	res := task.Run(context.Background())
	require.Equal(t, OutcomeSuccess, res.Outcome)
	assert.Equal(t, int64(2), res.Inserted)
	assert.Equal(t, int64(4), res.Lines)
	assert.Equal(t, int64(0), res.ParseErrors)
	assert.ElementsMatch(t, []interface{}{int32(1), int32(2)}, f.values("a"))
}

func TestLoadNullsUnset(t *testing.T) {
	for _, unset := range []bool{false, true} {
		f := newFixture(t)
		task := f.loadTask(StdinName, "")
		task.Stdin = strings.NewReader("1,,1\n2,NULL,2\n")
		task.Options.NullsUnset = unset

		res := task.Run(context.Background())
		require.Equal(t, OutcomeSuccess, res.Outcome)
		for _, row := range f.ms.Rows("ks", "t") {
			v, present := row["b"]
			assert.Equal(t, !unset, present, "nulls unset %v", unset)
			assert.Nil(t, v)
		}
	}
}

func TestLoadMovesFiles(t *testing.T) {
	f := newFixture(t)
	dir := t.TempDir()
	success := t.TempDir()
	failure := t.TempDir()

	good := testutil.WriteLines(t, dir, "good.csv", "1,true,1")
	bad := testutil.WriteLines(t, dir, "bad.csv", "x,true,1")
	for _, in := range []string{good, bad} {
		task := f.loadTask(in, "")
		task.Options.MaxErrors = 1
		task.Options.SuccessDir = success
		task.Options.FailureDir = failure
		task.Run(context.Background())
	}

	assert.NoFileExists(t, good)
	assert.NoFileExists(t, bad)
	assert.FileExists(t, filepath.Join(success, "good.csv"))
	assert.FileExists(t, filepath.Join(failure, "bad.csv"))
}

func TestLoadCompressedInput(t *testing.T) {
	f := newFixture(t)
	path := filepath.Join(t.TempDir(), "data.csv.zst")
	var buf bytes.Buffer
	w, err := compression.NewWriter(&buf, compression.Zstd, compression.Default)
	require.NoError(t, err)
	_, err = w.Write([]byte("1,true,1\n2,false,2\n"))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o600))

	res := f.loadTask(path, "").Run(context.Background())
	require.NoError(t, res.Err)
	assert.Equal(t, int64(2), res.Inserted)
}

func TestLoadMissingInput(t *testing.T) {
	f := newFixture(t)
	res := f.loadTask(filepath.Join(t.TempDir(), "nope.csv"), "").Run(context.Background())
	assert.Equal(t, OutcomeFailed, res.Outcome)
	assert.Equal(t, CodeFailed, res.Code())
	assert.True(t, errors.IsType(res.Err, errors.ErrorTypeFile))
}

func TestLoadCancelled(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	task := f.loadTask(StdinName, "")
	task.Stdin = strings.NewReader("1,true,1\n")
	res := task.Run(ctx)
	assert.Equal(t, OutcomeCancelled, res.Outcome)
	assert.ErrorIs(t, res.Err, context.Canceled)
	assert.Equal(t, int64(0), f.ms.Writes())
}

func TestLoadCancelledWhileThrottled(t *testing.T) {
	for _, strategy := range strategies {
		t.Run(string(strategy), func(t *testing.T) {
			f := newFixture(t)
			dir := t.TempDir()
			bad := t.TempDir()
			in := testutil.WriteLines(t, dir, "in.csv", "1,true,1", "2,true,2", "3,true,3")

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			time.AfterFunc(50*time.Millisecond, cancel)

			task := f.loadTask(in, strategy)
			task.Inflight.MaxInsertErrors = 0
			task.Options.BadDir = bad
			task.Limit = &ratelimit.Config{Rate: 1, Name: "in.csv"}
			res := task.Run(ctx)

			assert.Equal(t, OutcomeCancelled, res.Outcome)
			assert.Equal(t, CodeFailed, res.Code())
			assert.ErrorIs(t, res.Err, context.Canceled)
			assert.Equal(t, int64(0), res.InsertErrors)
			assert.LessOrEqual(t, res.Inserted, int64(1))
			assert.Empty(t, testutil.ReadLines(t, filepath.Join(bad, "in.csv.BADINSERT")))
		})
	}
}

func TestLoadWithLimiterAndProgress(t *testing.T) {
	f := newFixture(t)
	var rates bytes.Buffer
	progress := NewProgress("load", 1, testutil.TestLogger(t))

	task := f.loadTask(StdinName, "")
	task.Stdin = strings.NewReader("1,true,1\n2,true,2\n3,true,3\n")
	task.Limit = &ratelimit.Config{ProgressRate: 2, Output: &rates, Name: "stdin"}
	task.Progress = progress

	res := task.Run(context.Background())
	require.Equal(t, OutcomeSuccess, res.Outcome)
	assert.Contains(t, rates.String(), "Lines Processed: \t2")
	assert.Contains(t, rates.String(), "Lines Processed: \t3")
	assert.Greater(t, res.Rate, 0.0)

	snap := progress.Snapshot()
	assert.Equal(t, int64(3), snap.Lines)
	assert.Equal(t, int64(3), snap.Written)
	assert.Equal(t, int64(1), snap.TasksFinished)
}

func TestBudgetExhausted(t *testing.T) {
	assert.False(t, budgetExhausted(-1, 1000))
	assert.True(t, budgetExhausted(0, 1))
	assert.False(t, budgetExhausted(1, 0))
	assert.True(t, budgetExhausted(1, 1))
	assert.False(t, budgetExhausted(3, 2))
	assert.True(t, budgetExhausted(3, 3))
}
