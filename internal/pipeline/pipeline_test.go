package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/DerMene/cassandra-loader/pkg/codec"
	"github.com/DerMene/cassandra-loader/pkg/delim"
	"github.com/DerMene/cassandra-loader/pkg/inflight"
	"github.com/DerMene/cassandra-loader/pkg/record"
	"github.com/DerMene/cassandra-loader/pkg/session"
	"github.com/DerMene/cassandra-loader/pkg/testutil"
)

// fixture is a MemorySession holding ks.t(a int, b boolean, c float)
// partitioned by a.
type fixture struct {
	ms    *testutil.MemorySession
	codec *record.Codec
	stmt  *session.Statement
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	ms := testutil.NewMemorySession()
	ms.AddTable("ks", "t", []testutil.Column{
		{Name: "a", Type: "int"},
		{Name: "b", Type: "boolean"},
		{Name: "c", Type: "float"},
	}, "a")

	schema, err := codec.ParseSchema("ks.t(a, b, c)")
	require.NoError(t, err)
	types, err := ms.Columns(ctx, "ks", "t")
	require.NoError(t, err)
	chain, err := codec.NewChain(schema, types, nil, codec.DefaultOptions())
	require.NoError(t, err)
	rc, err := record.New(chain, record.Config{Dialect: delim.DefaultDialect(), NullString: "NULL"})
	require.NoError(t, err)
	stmt, err := ms.Prepare(ctx, chain.InsertCQL())
	require.NoError(t, err)
	return &fixture{ms: ms, codec: rc, stmt: stmt}
}

func (f *fixture) loadTask(name string, strategy inflight.Strategy) *LoadTask {
	return &LoadTask{
		Name:     name,
		Session:  f.ms,
		Stmt:     f.stmt,
		Codec:    f.codec,
		Strategy: strategy,
		Inflight: inflight.Config{Size: 8, QueryTimeout: 2 * time.Second, MaxInsertErrors: 10},
		Options:  LoadOptions{BatchSize: 1, MaxRows: -1, MaxErrors: 10},
	}
}

func (f *fixture) values(column string) []interface{} {
	var out []interface{}
	for _, r := range f.ms.Rows("ks", "t") {
		out = append(out, r[column])
	}
	return out
}

var strategies = []inflight.Strategy{inflight.StrategyPermit, inflight.StrategyPurge}
