package testutil

import (
	"context"
	"fmt"
	"hash/fnv"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/DerMene/cassandra-loader/pkg/errors"
	"github.com/DerMene/cassandra-loader/pkg/session"
)

// Column declares a column of a MemoryTable.
type Column struct {
	Name string
	Type string
}

// MemoryTable is a table held by a MemorySession.
type MemoryTable struct {
	Columns      []Column
	PartitionKey []string
	rows         []map[string]interface{}
}

// MemorySession implements session.Session in memory. Inserts issued with
// "INSERT INTO ks.t(cols) VALUES (...)" land in the named table; selects of
// the form written by the unload task read them back, filtered by Token.
type MemorySession struct {
	mu       sync.Mutex
	tables   map[string]*MemoryTable
	protocol int
	latency  time.Duration
	failFn   func(session.Write) error
	queryErr error

	writes      atomic.Int64
	attempts    atomic.Int64
	inFlight    atomic.Int64
	maxInFlight atomic.Int64
	statements  []string
}

// NewMemorySession returns an empty session speaking protocol version 4.
func NewMemorySession() *MemorySession {
	return &MemorySession{tables: make(map[string]*MemoryTable), protocol: 4}
}

// AddTable declares keyspace.table.
func (m *MemorySession) AddTable(keyspace, table string, columns []Column, partitionKey ...string) *MemoryTable {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := &MemoryTable{Columns: columns, PartitionKey: partitionKey}
	m.tables[keyspace+"."+table] = t
	return t
}

// SetProtocolVersion changes the reported protocol version.
func (m *MemorySession) SetProtocolVersion(v int) { m.protocol = v }

// SetLatency delays the completion of every write attempt.
func (m *MemorySession) SetLatency(d time.Duration) { m.latency = d }

// FailWrites installs fn, called on every write attempt; a non-nil result
// fails that attempt.
func (m *MemorySession) FailWrites(fn func(session.Write) error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failFn = fn
}

// FailQueries makes every subsequent Query fail with err.
func (m *MemorySession) FailQueries(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queryErr = err
}

// Writes returns the number of writes submitted.
func (m *MemorySession) Writes() int64 { return m.writes.Load() }

// Attempts returns the number of write attempts, retries included.
func (m *MemorySession) Attempts() int64 { return m.attempts.Load() }

// MaxInFlight returns the highest number of writes outstanding at once.
func (m *MemorySession) MaxInFlight() int64 { return m.maxInFlight.Load() }

// Statements returns the text of every prepared statement.
func (m *MemorySession) Statements() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.statements...)
}

// Rows returns the rows stored in keyspace.table in insertion order.
func (m *MemorySession) Rows(keyspace, table string) []map[string]interface{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tables[keyspace+"."+table]
	if !ok {
		return nil
	}
	out := make([]map[string]interface{}, len(t.rows))
	copy(out, t.rows)
	return out
}

// Insert stores a row directly, bypassing statements.
func (m *MemorySession) Insert(keyspace, table string, row map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := m.tables[keyspace+"."+table]
	t.rows = append(t.rows, row)
}

// Prepare implements session.Session.
func (m *MemorySession) Prepare(_ context.Context, cql string) (*session.Statement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statements = append(m.statements, cql)
	return &session.Statement{CQL: cql}, nil
}

// ExecuteAsync implements session.Session. Failed attempts are retried
// according to the statement's retry policy.
func (m *MemorySession) ExecuteAsync(ctx context.Context, w session.Write) session.Future {
	m.writes.Add(1)
	n := m.inFlight.Add(1)
	for {
		max := m.maxInFlight.Load()
		if n <= max || m.maxInFlight.CompareAndSwap(max, n) {
			break
		}
	}

	res := session.NewResult()
	go func() {
		defer m.inFlight.Add(-1)
		res.Complete(m.execute(ctx, w))
	}()
	return res
}

func (m *MemorySession) execute(ctx context.Context, w session.Write) error {
	policy := retryPolicyOf(w)
	for attempt := 1; ; attempt++ {
		m.attempts.Add(1)
		if m.latency > 0 {
			select {
			case <-time.After(m.latency):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		m.mu.Lock()
		fail := m.failFn
		m.mu.Unlock()
		var err error
		if fail != nil {
			err = fail(w)
		}
		if err == nil {
			return m.apply(w)
		}
		if policy == nil {
			return err
		}
		delay, ok := policy.Retry(attempt, err)
		if !ok {
			return err
		}
		time.Sleep(delay)
	}
}

func retryPolicyOf(w session.Write) session.RetryPolicy {
	switch w := w.(type) {
	case *session.Bound:
		return w.Stmt.RetryPolicy
	case *session.Batch:
		if len(w.Entries) > 0 {
			return w.Entries[0].Stmt.RetryPolicy
		}
	}
	return nil
}

var insertRE = regexp.MustCompile(`(?i)^\s*INSERT\s+INTO\s+([^\s(]+)\s*\(([^)]*)\)`)

func (m *MemorySession) apply(w session.Write) error {
	var bounds []*session.Bound
	switch w := w.(type) {
	case *session.Bound:
		bounds = []*session.Bound{w}
	case *session.Batch:
		bounds = w.Entries
	default:
		return fmt.Errorf("unsupported write %T", w)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range bounds {
		match := insertRE.FindStringSubmatch(b.Stmt.CQL)
		if match == nil {
			return errors.Newf(errors.ErrorTypeQuery, "unsupported statement %q", b.Stmt.CQL)
		}
		t, ok := m.tables[unquote(match[1])]
		if !ok {
			return errors.Newf(errors.ErrorTypeQuery, "unconfigured table %s", match[1])
		}
		cols := splitNames(match[2])
		if len(cols) != len(b.Values) {
			return errors.Newf(errors.ErrorTypeQuery, "%d columns but %d values", len(cols), len(b.Values))
		}
		row := make(map[string]interface{}, len(cols))
		for i, c := range cols {
			if b.IsUnset(i) {
				continue
			}
			row[c] = b.Values[i]
		}
		t.rows = append(t.rows, row)
	}
	return nil
}

var selectRE = regexp.MustCompile(`(?i)^\s*SELECT\s+(.+?)\s+FROM\s+(\S+)(?:\s+WHERE\s+(.*))?$`)

// Query implements session.Session. A Token range predicate is applied
// using Token; any other WHERE text is accepted and ignored.
func (m *MemorySession) Query(_ context.Context, stmt *session.Statement, args ...interface{}) (session.Rows, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.queryErr != nil {
		return nil, errors.Wrap(m.queryErr, errors.ErrorTypeSetup, "failed to prepare "+stmt.CQL)
	}

	match := selectRE.FindStringSubmatch(stmt.CQL)
	if match == nil {
		return nil, errors.Newf(errors.ErrorTypeSetup, "failed to prepare %s: unsupported statement", stmt.CQL)
	}
	t, ok := m.tables[unquote(match[2])]
	if !ok {
		return nil, errors.Newf(errors.ErrorTypeSetup, "failed to prepare %s: unconfigured table", stmt.CQL)
	}
	cols := splitNames(match[1])
	ranged := strings.Contains(strings.ToLower(match[3]), "token(")
	if ranged && len(args) != 2 {
		return nil, errors.Newf(errors.ErrorTypeSetup, "failed to prepare %s: expected 2 token bounds", stmt.CQL)
	}

	rows := &memoryRows{}
	for _, r := range t.rows {
		if ranged {
			tok := Token(partitionValues(t, r)...)
			if tok <= args[0].(int64) || tok > args[1].(int64) {
				continue
			}
		}
		out := make([]interface{}, len(cols))
		for i, c := range cols {
			out[i] = r[c]
		}
		rows.rows = append(rows.rows, out)
	}
	return rows, nil
}

func partitionValues(t *MemoryTable, row map[string]interface{}) []interface{} {
	vals := make([]interface{}, len(t.PartitionKey))
	for i, k := range t.PartitionKey {
		vals[i] = row[k]
	}
	return vals
}

// Token returns the stand-in token MemorySession assigns to a partition
// key.
func Token(values ...interface{}) int64 {
	h := fnv.New64a()
	for _, v := range values {
		fmt.Fprintf(h, "%v|", v)
	}
	return int64(h.Sum64())
}

type memoryRows struct {
	rows [][]interface{}
	pos  int
}

func (r *memoryRows) Next() ([]interface{}, bool) {
	if r.pos >= len(r.rows) {
		return nil, false
	}
	row := r.rows[r.pos]
	r.pos++
	return row, true
}

func (r *memoryRows) Close() error { return nil }

// Columns implements session.Session.
func (m *MemorySession) Columns(_ context.Context, keyspace, table string) (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tables[keyspace+"."+table]
	if !ok {
		return nil, errors.Newf(errors.ErrorTypeSetup, "table %s.%s does not exist", keyspace, table)
	}
	out := make(map[string]string, len(t.Columns))
	for _, c := range t.Columns {
		out[c.Name] = c.Type
	}
	return out, nil
}

// PartitionKey implements session.Session.
func (m *MemorySession) PartitionKey(_ context.Context, keyspace, table string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tables[keyspace+"."+table]
	if !ok {
		return nil, errors.Newf(errors.ErrorTypeSetup, "table %s.%s does not exist", keyspace, table)
	}
	return append([]string(nil), t.PartitionKey...), nil
}

// ProtocolVersion implements session.Session.
func (m *MemorySession) ProtocolVersion() int { return m.protocol }

// Close implements session.Session.
func (m *MemorySession) Close() {}

func splitNames(s string) []string {
	parts := strings.Split(s, ",")
	for i, p := range parts {
		parts[i] = unquote(strings.TrimSpace(p))
	}
	return parts
}

func unquote(id string) string {
	return strings.ReplaceAll(id, `"`, "")
}
