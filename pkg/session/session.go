// Package session defines the database capability the loader needs and a
// gocql-backed implementation of it.
//
// The pipeline only prepares statements, executes writes asynchronously and
// runs ranged reads; everything else about the cluster stays behind the
// Session interface so tasks can run against an in-memory session in tests.
package session

import (
	"context"
	"time"

	"github.com/gocql/gocql"

	"github.com/DerMene/cassandra-loader/pkg/codec"
)

// Session is the database capability used by load and unload tasks.
// Implementations must be safe for concurrent use.
type Session interface {
	// Prepare validates and returns a statement for cql
	Prepare(ctx context.Context, cql string) (*Statement, error)
	// ExecuteAsync submits a write and returns immediately
	ExecuteAsync(ctx context.Context, w Write) Future
	// Query runs a read and streams its rows
	Query(ctx context.Context, stmt *Statement, args ...interface{}) (Rows, error)
	// Columns returns the CQL type of every column of a table by name
	Columns(ctx context.Context, keyspace, table string) (map[string]string, error)
	// PartitionKey returns the partition key column names in order
	PartitionKey(ctx context.Context, keyspace, table string) ([]string, error)
	// ProtocolVersion returns the native protocol version, 0 if unknown
	ProtocolVersion() int
	Close()
}

// RetryPolicy decides whether a failed request is attempted again.
type RetryPolicy interface {
	// Retry is called after the given failed attempt (1-based) and returns
	// the delay before the next attempt and whether there is one
	Retry(attempt int, err error) (time.Duration, bool)
}

// Statement is a prepared statement with its execution settings.
type Statement struct {
	CQL         string
	Consistency gocql.Consistency
	RetryPolicy RetryPolicy
	// PageSize bounds the rows fetched per round trip on reads; 0 keeps
	// the driver default
	PageSize int
}

// WithConsistency sets the consistency level and returns s.
func (s *Statement) WithConsistency(c gocql.Consistency) *Statement {
	s.Consistency = c
	return s
}

// WithRetryPolicy sets the retry policy and returns s.
func (s *Statement) WithRetryPolicy(p RetryPolicy) *Statement {
	s.RetryPolicy = p
	return s
}

// Bind binds a row positionally. With nullsUnset, null positions are left
// unset instead of being written as null.
func (s *Statement) Bind(row codec.Row, nullsUnset bool) *Bound {
	b := &Bound{Stmt: s, Values: row.Natives()}
	if nullsUnset {
		b.Unset = make([]bool, len(row))
		for i, v := range row {
			b.Unset[i] = v.IsNull()
		}
	}
	return b
}

// Write is a request submitted with ExecuteAsync.
type Write interface {
	// Size returns the number of rows written
	Size() int
}

// Bound is a statement with its values.
type Bound struct {
	Stmt   *Statement
	Values []interface{}
	// Unset marks positions sent as unset; nil when none are
	Unset []bool
}

// Size implements Write.
func (b *Bound) Size() int { return 1 }

// IsUnset reports whether position i is sent as unset.
func (b *Bound) IsUnset(i int) bool {
	return i < len(b.Unset) && b.Unset[i]
}

// Batch groups bound statements into one unlogged batch.
type Batch struct {
	Entries []*Bound
}

// NewBatch returns an empty batch with room for n entries.
func NewBatch(n int) *Batch {
	return &Batch{Entries: make([]*Bound, 0, n)}
}

// Add appends b to the batch.
func (b *Batch) Add(bound *Bound) { b.Entries = append(b.Entries, bound) }

// Size implements Write.
func (b *Batch) Size() int { return len(b.Entries) }

// Rows iterates over the result of a read.
type Rows interface {
	// Next returns the next row, one driver value per selected column;
	// null columns are nil
	Next() ([]interface{}, bool)
	// Close releases the iterator and returns any error met while reading
	Close() error
}
