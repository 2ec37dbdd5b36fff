package ratelimit

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DerMene/cassandra-loader/pkg/codec"
	"github.com/DerMene/cassandra-loader/pkg/errors"
	"github.com/DerMene/cassandra-loader/pkg/session"
	"github.com/DerMene/cassandra-loader/pkg/testutil"
)

func TestUnlimited(t *testing.T) {
	l := New(Config{})
	defer l.Stop()

	start := time.Now()
	for i := 0; i < 10000; i++ {
		require.NoError(t, l.Acquire(context.Background(), 1))
	}
	assert.Less(t, time.Since(start), time.Second)
}

func TestAcquireThrottles(t *testing.T) {
	// burst is rate/10 = 10, so 30 operations need about 200ms
	l := New(Config{Rate: 100})
	defer l.Stop()

	start := time.Now()
	for i := 0; i < 30; i++ {
		require.NoError(t, l.Acquire(context.Background(), 1))
	}
	assert.GreaterOrEqual(t, time.Since(start), 150*time.Millisecond)
}

func TestAcquireLargerThanBurst(t *testing.T) {
	l := New(Config{Rate: 1000})
	defer l.Stop()

	require.NoError(t, l.Acquire(context.Background(), 250))
}

func TestAcquireCancelled(t *testing.T) {
	l := New(Config{Rate: 1})
	defer l.Stop()
	require.NoError(t, l.Acquire(context.Background(), 1))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := l.Acquire(ctx, 1)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeRateLimit))
}

func TestProgressLines(t *testing.T) {
	var out bytes.Buffer
	l := New(Config{ProgressRate: 10, Output: &out})
	defer l.Stop()

	l.Done(4)
	l.Done(4)
	assert.Empty(t, out.String())
	l.Done(4)
	l.Done(25)
	assert.Equal(t, int64(37), l.Count())

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "Lines Processed: \t12  Rate: \t"), lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "Lines Processed: \t37  Rate: \t"), lines[1])

	l.Report()
	assert.Contains(t, out.String(), "Lines Processed: \t37")
}

func TestSessionCountsSuccessfulRows(t *testing.T) {
	mem := testutil.NewMemorySession()
	mem.AddTable("ks", "t", []testutil.Column{{Name: "a", Type: "int"}}, "a")
	mem.FailWrites(func(w session.Write) error {
		if w.Size() == 1 {
			return errors.New(errors.ErrorTypeInsert, "rejected")
		}
		return nil
	})

	l := New(Config{})
	s := Wrap(mem, l)
	defer s.Close()

	stmt, err := s.Prepare(context.Background(), "INSERT INTO ks.t(a) VALUES (?)")
	require.NoError(t, err)

	batch := session.NewBatch(2)
	batch.Add(stmt.Bind(codec.Row{codec.Int(1)}, false))
	batch.Add(stmt.Bind(codec.Row{codec.Int(2)}, false))
	require.NoError(t, s.ExecuteAsync(context.Background(), batch).Wait(time.Second))

	single := stmt.Bind(codec.Row{codec.Int(3)}, false)
	require.Error(t, s.ExecuteAsync(context.Background(), single).Wait(time.Second))

	testutil.AssertEventually(t, func() bool { return l.Count() == 2 }, time.Second, "two rows counted")
	assert.Len(t, mem.Rows("ks", "t"), 2)
}

func TestSessionCancelledWaitIsNotAWriteError(t *testing.T) {
	mem := testutil.NewMemorySession()
	mem.AddTable("ks", "t", []testutil.Column{{Name: "a", Type: "int"}}, "a")

	l := New(Config{Rate: 1})
	s := Wrap(mem, l)
	defer s.Close()

	stmt, err := s.Prepare(context.Background(), "INSERT INTO ks.t(a) VALUES (?)")
	require.NoError(t, err)
	require.NoError(t, s.ExecuteAsync(context.Background(), stmt.Bind(codec.Row{codec.Int(1)}, false)).Wait(time.Second))

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)
	err = s.ExecuteAsync(ctx, stmt.Bind(codec.Row{codec.Int(2)}, false)).Wait(time.Second)
	require.ErrorIs(t, err, context.Canceled)
	assert.False(t, errors.IsType(err, errors.ErrorTypeRateLimit))
	assert.Len(t, mem.Rows("ks", "t"), 1)
}
