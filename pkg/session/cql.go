package session

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/gocql/gocql"
	"go.uber.org/zap"

	"github.com/DerMene/cassandra-loader/pkg/errors"
	"github.com/DerMene/cassandra-loader/pkg/logger"
)

// TLSConfig names the PEM material handed to the driver.
type TLSConfig struct {
	CertPath   string
	KeyPath    string
	CAPath     string
	VerifyHost bool
}

// Config configures a CQLSession.
type Config struct {
	Hosts    []string
	Port     int
	Username string
	Password string
	// ProtocolVersion pins the native protocol; 0 lets the driver negotiate
	ProtocolVersion int
	Timeout         time.Duration
	ConnectTimeout  time.Duration
	NumConns        int
	// LocalDC enables datacenter-aware routing when set
	LocalDC string
	TLS     *TLSConfig
}

// CQLSession implements Session over a gocql session.
type CQLSession struct {
	session *gocql.Session
	cfg     Config
	log     *zap.Logger
}

// Open connects to the cluster.
func Open(cfg Config) (*CQLSession, error) {
	cluster := gocql.NewCluster(cfg.Hosts...)
	if cfg.Port > 0 {
		cluster.Port = cfg.Port
	}
	if cfg.ProtocolVersion > 0 {
		cluster.ProtoVersion = cfg.ProtocolVersion
	}
	if cfg.Timeout > 0 {
		cluster.Timeout = cfg.Timeout
	}
	if cfg.ConnectTimeout > 0 {
		cluster.ConnectTimeout = cfg.ConnectTimeout
	}
	if cfg.NumConns > 0 {
		cluster.NumConns = cfg.NumConns
	}
	if cfg.Username != "" {
		cluster.Authenticator = gocql.PasswordAuthenticator{
			Username: cfg.Username,
			Password: cfg.Password,
		}
	}
	if cfg.TLS != nil {
		cluster.SslOpts = &gocql.SslOptions{
			CertPath:               cfg.TLS.CertPath,
			KeyPath:                cfg.TLS.KeyPath,
			CaPath:                 cfg.TLS.CAPath,
			EnableHostVerification: cfg.TLS.VerifyHost,
		}
	}
	if cfg.LocalDC != "" {
		cluster.PoolConfig.HostSelectionPolicy = gocql.TokenAwareHostPolicy(gocql.DCAwareRoundRobinPolicy(cfg.LocalDC))
	} else {
		cluster.PoolConfig.HostSelectionPolicy = gocql.TokenAwareHostPolicy(gocql.RoundRobinHostPolicy())
	}

	log := logger.With(zap.String("component", "session"))
	s, err := cluster.CreateSession()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "failed to connect to "+strings.Join(cfg.Hosts, ","))
	}
	log.Info("connected to cluster",
		zap.Strings("hosts", cfg.Hosts),
		zap.Int("port", cluster.Port),
		zap.Int("protocol_version", cfg.ProtocolVersion))

	return &CQLSession{session: s, cfg: cfg, log: log}, nil
}

// Prepare returns a statement for cql. gocql prepares lazily on first
// execution, so statement errors surface from ExecuteAsync or Query.
func (s *CQLSession) Prepare(ctx context.Context, cql string) (*Statement, error) {
	if strings.TrimSpace(cql) == "" {
		return nil, errors.New(errors.ErrorTypeSetup, "empty statement")
	}
	return &Statement{CQL: cql, Consistency: gocql.LocalOne}, nil
}

// ExecuteAsync runs the write on its own goroutine.
func (s *CQLSession) ExecuteAsync(ctx context.Context, w Write) Future {
	res := NewResult()
	go func() {
		res.Complete(s.execute(ctx, w))
	}()
	return res
}

func (s *CQLSession) execute(ctx context.Context, w Write) error {
	switch w := w.(type) {
	case *Bound:
		q := s.session.Query(w.Stmt.CQL, bindValues(w)...).
			WithContext(ctx).
			Consistency(w.Stmt.Consistency)
		if p, ok := w.Stmt.RetryPolicy.(gocql.RetryPolicy); ok {
			q = q.RetryPolicy(p)
		}
		return q.Exec()
	case *Batch:
		if len(w.Entries) == 0 {
			return nil
		}
		b := s.session.NewBatch(gocql.UnloggedBatch).WithContext(ctx)
		for _, e := range w.Entries {
			b.Query(e.Stmt.CQL, bindValues(e)...)
		}
		first := w.Entries[0].Stmt
		b.SetConsistency(first.Consistency)
		if p, ok := first.RetryPolicy.(gocql.RetryPolicy); ok {
			b.RetryPolicy(p)
		}
		return s.session.ExecuteBatch(b)
	default:
		return errors.Newf(errors.ErrorTypeInternal, "unsupported write %T", w)
	}
}

func bindValues(b *Bound) []interface{} {
	if b.Unset == nil {
		return b.Values
	}
	values := make([]interface{}, len(b.Values))
	for i, v := range b.Values {
		if b.IsUnset(i) {
			values[i] = gocql.UnsetValue
			continue
		}
		values[i] = v
	}
	return values
}

// Query runs a read. The first page is fetched before returning so a bad
// statement fails here as a setup error carrying the statement text.
func (s *CQLSession) Query(ctx context.Context, stmt *Statement, args ...interface{}) (Rows, error) {
	q := s.session.Query(stmt.CQL, args...).WithContext(ctx).Consistency(stmt.Consistency)
	if stmt.PageSize > 0 {
		q = q.PageSize(stmt.PageSize)
	}
	if p, ok := stmt.RetryPolicy.(gocql.RetryPolicy); ok {
		q = q.RetryPolicy(p)
	}

	rows := &cqlRows{iter: q.Iter()}
	rows.dest = scanDest(rows.iter.Columns())
	if !rows.scan() {
		if err := rows.iter.Close(); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeSetup, "failed to prepare "+stmt.CQL)
		}
		rows.closed = true
	}
	return rows, nil
}

type cqlRows struct {
	iter    *gocql.Iter
	dest    []reflect.Value
	pending []interface{}
	closed  bool
}

// scanDest allocates a **T per column so null columns scan to nil.
func scanDest(cols []gocql.ColumnInfo) []reflect.Value {
	dest := make([]reflect.Value, len(cols))
	for i, c := range cols {
		elem := reflect.ValueOf(c.TypeInfo.New()).Type()
		dest[i] = reflect.New(elem)
	}
	return dest
}

func (r *cqlRows) scan() bool {
	ptrs := make([]interface{}, len(r.dest))
	for i, d := range r.dest {
		d.Elem().Set(reflect.Zero(d.Elem().Type()))
		ptrs[i] = d.Interface()
	}
	if !r.iter.Scan(ptrs...) {
		r.pending = nil
		return false
	}
	row := make([]interface{}, len(r.dest))
	for i, d := range r.dest {
		p := d.Elem()
		if p.IsNil() {
			continue
		}
		row[i] = p.Elem().Interface()
	}
	r.pending = row
	return true
}

func (r *cqlRows) Next() ([]interface{}, bool) {
	if r.pending == nil {
		return nil, false
	}
	row := r.pending
	r.scan()
	return row, true
}

func (r *cqlRows) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	if err := r.iter.Close(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeQuery, "read failed")
	}
	return nil
}

func (s *CQLSession) table(keyspace, table string) (*gocql.TableMetadata, error) {
	ks, err := s.session.KeyspaceMetadata(keyspace)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeSetup, "failed to read metadata of keyspace "+keyspace)
	}
	t, ok := ks.Tables[table]
	if !ok {
		return nil, errors.Newf(errors.ErrorTypeSetup, "table %s.%s does not exist", keyspace, table)
	}
	return t, nil
}

// Columns implements Session.
func (s *CQLSession) Columns(ctx context.Context, keyspace, table string) (map[string]string, error) {
	t, err := s.table(keyspace, table)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(t.Columns))
	for name, col := range t.Columns {
		out[name] = columnType(col)
	}
	return out, nil
}

// PartitionKey implements Session.
func (s *CQLSession) PartitionKey(ctx context.Context, keyspace, table string) ([]string, error) {
	t, err := s.table(keyspace, table)
	if err != nil {
		return nil, err
	}
	keys := make([]string, len(t.PartitionKey))
	for i, col := range t.PartitionKey {
		keys[i] = col.Name
	}
	return keys, nil
}

// ProtocolVersion implements Session.
func (s *CQLSession) ProtocolVersion() int { return s.cfg.ProtocolVersion }

// Close implements Session.
func (s *CQLSession) Close() {
	s.session.Close()
	s.log.Debug("session closed")
}

// columnType returns the CQL type text of a column. Schema tables of
// Cassandra 3 and later carry it verbatim; older clusters report a
// marshaller class name, in which case the parsed type info is rendered.
func columnType(col *gocql.ColumnMetadata) string {
	if col.Validator != "" && !strings.Contains(col.Validator, ".") {
		return col.Validator
	}
	return typeInfoString(col.Type)
}

func typeInfoString(t gocql.TypeInfo) string {
	if t == nil {
		return ""
	}
	switch ct := t.(type) {
	case gocql.CollectionType:
		switch ct.Type() {
		case gocql.TypeMap:
			return fmt.Sprintf("map<%s, %s>", typeInfoString(ct.Key), typeInfoString(ct.Elem))
		case gocql.TypeSet:
			return fmt.Sprintf("set<%s>", typeInfoString(ct.Elem))
		case gocql.TypeList:
			return fmt.Sprintf("list<%s>", typeInfoString(ct.Elem))
		}
	}
	return strings.ToLower(t.Type().String())
}
