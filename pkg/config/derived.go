package config

import (
	"strings"

	"github.com/gocql/gocql"

	"github.com/DerMene/cassandra-loader/pkg/codec"
	"github.com/DerMene/cassandra-loader/pkg/compression"
	"github.com/DerMene/cassandra-loader/pkg/delim"
	"github.com/DerMene/cassandra-loader/pkg/errors"
	"github.com/DerMene/cassandra-loader/pkg/inflight"
	"github.com/DerMene/cassandra-loader/pkg/logger"
	"github.com/DerMene/cassandra-loader/pkg/observability"
	"github.com/DerMene/cassandra-loader/pkg/partition"
	"github.com/DerMene/cassandra-loader/pkg/record"
	"github.com/DerMene/cassandra-loader/pkg/retry"
	"github.com/DerMene/cassandra-loader/pkg/session"
)

// Dialect returns the delimiter, quote and escape characters.
func (c *Config) Dialect() (delim.Dialect, error) {
	d := delim.DefaultDialect()
	var err error
	if d.Delimiter, err = delim.ParseDelimiter(c.Format.Delimiter); err != nil {
		return d, errors.Wrap(err, errors.ErrorTypeConfig, "bad delimiter")
	}
	if d.Quote, err = delim.ParseChar("quote", c.Format.Quote, delim.DefaultQuote); err != nil {
		return d, errors.Wrap(err, errors.ErrorTypeConfig, "bad quote")
	}
	if d.Escape, err = delim.ParseChar("escape", c.Format.Escape, delim.DefaultEscape); err != nil {
		return d, errors.Wrap(err, errors.ErrorTypeConfig, "bad escape")
	}
	if err := d.Validate(); err != nil {
		return d, errors.Wrap(err, errors.ErrorTypeConfig, "invalid delimiter settings")
	}
	return d, nil
}

// CodecOptions returns the value codec options.
func (c *Config) CodecOptions() (codec.Options, error) {
	opts := codec.DefaultOptions()
	if c.Format.DecimalDelim == "," {
		opts.DecimalSeparator = ','
	}
	if c.Format.BoolStyle != "" {
		style, err := codec.ParseBoolStyle(c.Format.BoolStyle)
		if err != nil {
			return opts, errors.Wrap(err, errors.ErrorTypeConfig, "bad boolean style")
		}
		opts.BoolStyle = style
	}
	opts.TimestampLayout = codec.TimestampLayout(c.Format.DateFormat)
	return opts, nil
}

// RecordConfig returns the line codec settings.
func (c *Config) RecordConfig() (record.Config, error) {
	d, err := c.Dialect()
	if err != nil {
		return record.Config{}, err
	}
	return record.Config{
		Dialect:           d,
		NullString:        c.Format.NullString,
		MaxCharsPerColumn: c.Format.MaxCharsPerColumn,
	}, nil
}

// SkipColumns returns the skip column names, lower cased unless quoted.
func (c *Config) SkipColumns() ([]string, error) {
	if strings.TrimSpace(c.Load.SkipCols) == "" {
		return nil, nil
	}
	return codec.ParseColumnList(c.Load.SkipCols)
}

// Consistency parses the configured consistency level.
func (c *Config) Consistency() (cl gocql.Consistency, err error) {
	name := c.Connection.Consistency
	if name == "" {
		return gocql.LocalOne, nil
	}
	cl, err = gocql.ParseConsistencyWrapper(strings.ToUpper(name))
	if err != nil {
		return cl, errors.Wrap(err, errors.ErrorTypeConfig, "bad consistency level "+name)
	}
	return cl, nil
}

// SessionConfig returns the driver settings.
func (c *Config) SessionConfig() session.Config {
	cfg := session.Config{
		Hosts:           c.Connection.Hosts,
		Port:            c.Connection.Port,
		Username:        c.Connection.Username,
		Password:        c.Connection.Password,
		ProtocolVersion: c.Connection.ProtocolVersion,
		Timeout:         c.Reliability.QueryTimeout,
		ConnectTimeout:  c.Connection.ConnectTimeout,
		NumConns:        c.Advanced.NumConns,
		LocalDC:         c.Connection.LocalDC,
	}
	t := c.Connection.TLS
	if t.Enabled || t.CertPath != "" || t.CAPath != "" {
		cfg.TLS = &session.TLSConfig{
			CertPath:   t.CertPath,
			KeyPath:    t.KeyPath,
			CAPath:     t.CAPath,
			VerifyHost: t.VerifyHost,
		}
	}
	return cfg
}

// RetryPolicy returns the write retry policy.
func (c *Config) RetryPolicy() *retry.Policy {
	if c.Reliability.NumRetries <= 0 {
		return retry.NoRetry()
	}
	p := retry.New(c.Reliability.NumRetries)
	if c.Reliability.RetryDelay > 0 {
		p = p.WithDelay(c.Reliability.RetryDelay, c.Reliability.MaxRetryDelay)
	}
	return p
}

// InflightStrategy parses the in-flight strategy name.
func (c *Config) InflightStrategy() (inflight.Strategy, error) {
	return inflight.ParseStrategy(c.Load.Strategy)
}

// InflightConfig returns the per task in-flight settings.
func (c *Config) InflightConfig() inflight.Config {
	return inflight.Config{
		Size:            c.Load.NumFutures,
		QueryTimeout:    c.Reliability.QueryTimeout,
		MaxInsertErrors: c.Reliability.MaxInsertErrors,
	}
}

// TokenRange returns the configured unload range. ok is false when no
// range was given and the scan is unranged.
func (c *Config) TokenRange() (r partition.TokenRange, ok bool, err error) {
	u := c.Unload
	if u.BeginToken == "" && u.EndToken == "" {
		return partition.FullRing(), false, nil
	}
	begin, err := partition.ParseToken(u.BeginToken)
	if err != nil {
		return r, false, err
	}
	end, err := partition.ParseToken(u.EndToken)
	if err != nil {
		return r, false, err
	}
	if end < begin {
		return r, false, invalid("end token %d is before begin token %d", end, begin)
	}
	return partition.TokenRange{Begin: begin, End: end}, true, nil
}

// OutputCompression returns the unload output compression.
func (c *Config) OutputCompression() (compression.Algorithm, error) {
	if c.Unload.Compression == "" {
		return compression.None, nil
	}
	a, err := compression.ParseAlgorithm(c.Unload.Compression)
	if err != nil {
		return a, errors.Wrap(err, errors.ErrorTypeConfig, "bad compression")
	}
	return a, nil
}

// CompressionLevel returns the unload output compression level.
func (c *Config) CompressionLevel() compression.Level {
	if c.Advanced.CompressionLevel <= 0 {
		return compression.Default
	}
	return compression.Level(c.Advanced.CompressionLevel)
}

// TracingConfig returns the tracer settings.
func (c *Config) TracingConfig(version string) observability.TracingConfig {
	t := observability.DefaultTracingConfig()
	if version != "" {
		t.ServiceVersion = version
	}
	if c.Observability.TraceExporter != "" {
		t.Exporter = c.Observability.TraceExporter
	}
	t.OutputPath = c.Observability.TraceOutput
	return t
}

// LoggerConfig returns the logger settings. Logs go to stderr so stdout
// stays free for unloaded rows.
func (c *Config) LoggerConfig() logger.Config {
	return logger.Config{
		Level:       c.Observability.LogLevel,
		Encoding:    c.Observability.LogFormat,
		OutputPaths: []string{"stderr"},
	}
}
