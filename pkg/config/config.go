// Package config holds the settings of a load or unload run.
//
// The configuration is organized into logical sections:
//   - Connection: hosts, credentials, TLS and consistency
//   - Format: schema and the delimited line format shared by both directions
//   - Load: input files, error budgets, batching and throughput
//   - Unload: output stem, token range and filter
//   - Reliability: query timeout, retries and the insert error budget
//   - Observability: logging, metrics, tracing and the run summary
//   - Advanced: driver tuning
//
// Example usage:
//
//	cfg := config.New()
//	cfg.Connection.Hosts = []string{"10.0.0.1"}
//	cfg.Format.Schema = "ks.t(a, b, c)"
//	cfg.Load.File = "data.csv"
//
//	if err := cfg.Validate(config.ModeLoad); err != nil {
//	    log.Fatal(err)
//	}
package config

import (
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/DerMene/cassandra-loader/pkg/errors"
)

// Mode selects the direction of a run.
type Mode string

const (
	// ModeLoad reads delimited files into a table
	ModeLoad Mode = "load"
	// ModeUnload writes a table to delimited files
	ModeUnload Mode = "unload"
)

const (
	// Stdin names standard input as the load source
	Stdin = "stdin"
	// Stdout names standard output as the unload target
	Stdout = "stdout"
	// Stderr names standard error as the rate report target
	Stderr = "stderr"
	// Unlimited disables an error budget or the row cap
	Unlimited = -1
)

// Config is the configuration of one run.
type Config struct {
	// Connection settings for the cluster
	Connection ConnectionConfig `yaml:"connection" json:"connection"`

	// Format describes the table and the line format
	Format FormatConfig `yaml:"format" json:"format"`

	// Load settings, used by ModeLoad
	Load LoadConfig `yaml:"load" json:"load"`

	// Unload settings, used by ModeUnload
	Unload UnloadConfig `yaml:"unload" json:"unload"`

	// Reliability settings for writes and queries
	Reliability ReliabilityConfig `yaml:"reliability" json:"reliability"`

	// Observability settings for monitoring and debugging
	Observability ObservabilityConfig `yaml:"observability" json:"observability"`

	// Advanced driver tuning
	Advanced AdvancedConfig `yaml:"advanced" json:"advanced"`
}

// ConnectionConfig contains cluster connection settings.
type ConnectionConfig struct {
	// Hosts are the contact points
	Hosts []string `yaml:"hosts" json:"hosts"`
	// Port is the native protocol port
	Port     int    `yaml:"port" json:"port"`
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
	// ProtocolVersion pins the native protocol; 0 negotiates
	ProtocolVersion int `yaml:"protocol_version" json:"protocol_version"`
	// Consistency is the level of every write and read (e.g. LOCAL_ONE)
	Consistency string `yaml:"consistency" json:"consistency"`
	// LocalDC routes requests to one datacenter when set
	LocalDC        string        `yaml:"local_dc" json:"local_dc"`
	ConnectTimeout time.Duration `yaml:"connect_timeout" json:"connect_timeout"`
	// TLS material, PEM encoded
	TLS TLSConfig `yaml:"tls" json:"tls"`
}

// TLSConfig names PEM files handed to the driver.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled" json:"enabled"`
	CertPath string `yaml:"cert_path" json:"cert_path"`
	KeyPath  string `yaml:"key_path" json:"key_path"`
	CAPath   string `yaml:"ca_path" json:"ca_path"`
	// VerifyHost checks the server certificate against the host name
	VerifyHost bool `yaml:"verify_host" json:"verify_host"`
}

// FormatConfig describes the table and how lines are written.
type FormatConfig struct {
	// Schema is "keyspace.table(col1, col2, ...)"
	Schema string `yaml:"schema" json:"schema"`
	// Delimiter is one character; `\t` selects tab
	Delimiter string `yaml:"delimiter" json:"delimiter"`
	Quote     string `yaml:"quote" json:"quote"`
	Escape    string `yaml:"escape" json:"escape"`
	// NullString reads and writes as null, matched without regard to case
	NullString string `yaml:"null_string" json:"null_string"`
	// DateFormat is a date pattern (yyyy-MM-dd HH:mm:ss) or Go layout for
	// timestamp columns
	DateFormat string `yaml:"date_format" json:"date_format"`
	// DecimalDelim is "." or ","
	DecimalDelim string `yaml:"decimal_delim" json:"decimal_delim"`
	// BoolStyle is one of 1_0, T_F, Y_N, TRUE_FALSE, YES_NO
	BoolStyle string `yaml:"bool_style" json:"bool_style"`
	// MaxCharsPerColumn rejects longer fields
	MaxCharsPerColumn int `yaml:"max_chars_per_column" json:"max_chars_per_column"`
}

// LoadConfig contains the settings of a load run.
type LoadConfig struct {
	// File is "stdin", a file or a directory
	File string `yaml:"file" json:"file"`
	// FilePattern filters directory entries with a glob
	FilePattern string `yaml:"file_pattern" json:"file_pattern"`
	// SkipRows ignores the first lines of every input
	SkipRows int64 `yaml:"skip_rows" json:"skip_rows"`
	// SkipCols names schema columns present in the file but not loaded
	SkipCols string `yaml:"skip_cols" json:"skip_cols"`
	// MaxRows stops each input after this many data rows; -1 reads all
	MaxRows int64 `yaml:"max_rows" json:"max_rows"`
	// MaxErrors is the parse error budget per input; -1 is unlimited
	MaxErrors int64 `yaml:"max_errors" json:"max_errors"`
	// BadDir receives the BADPARSE, BADINSERT and LOG files
	BadDir     string `yaml:"bad_dir" json:"bad_dir"`
	SuccessDir string `yaml:"success_dir" json:"success_dir"`
	FailureDir string `yaml:"failure_dir" json:"failure_dir"`
	// NullsUnset leaves null columns unset instead of writing tombstones
	NullsUnset bool `yaml:"nulls_unset" json:"nulls_unset"`
	// NumFutures bounds the outstanding writes of one task
	NumFutures int `yaml:"num_futures" json:"num_futures"`
	// BatchSize groups writes into unlogged batches when above 1
	BatchSize int `yaml:"batch_size" json:"batch_size"`
	// Strategy is the in-flight strategy, "permit" or "purge"
	Strategy string `yaml:"strategy" json:"strategy"`
	// Rate caps rows per second per task; 0 is unlimited
	Rate float64 `yaml:"rate" json:"rate"`
	// ProgressRate writes a rate line every this many rows
	ProgressRate int64 `yaml:"progress_rate" json:"progress_rate"`
	// RateFile receives rate lines: a path or "stderr"
	RateFile   string `yaml:"rate_file" json:"rate_file"`
	NumThreads int    `yaml:"num_threads" json:"num_threads"`
}

// UnloadConfig contains the settings of an unload run.
type UnloadConfig struct {
	// File is the output stem or "stdout"
	File string `yaml:"file" json:"file"`
	// BeginToken and EndToken bound the scanned ring; both or neither
	BeginToken string `yaml:"begin_token" json:"begin_token"`
	EndToken   string `yaml:"end_token" json:"end_token"`
	// Where is conjoined to the token predicate
	Where      string `yaml:"where" json:"where"`
	NumThreads int    `yaml:"num_threads" json:"num_threads"`
	// Compression of the output files (none, gzip, zstd, lz4, snappy, s2)
	Compression string `yaml:"compression" json:"compression"`
}

// ReliabilityConfig contains retry and timeout settings.
type ReliabilityConfig struct {
	// QueryTimeout bounds every write and the wait for it
	QueryTimeout time.Duration `yaml:"query_timeout" json:"query_timeout"`
	// NumRetries is the number of resubmissions of a transiently failed write
	NumRetries    int           `yaml:"num_retries" json:"num_retries"`
	RetryDelay    time.Duration `yaml:"retry_delay" json:"retry_delay"`
	MaxRetryDelay time.Duration `yaml:"max_retry_delay" json:"max_retry_delay"`
	// MaxInsertErrors is the failed write budget per task; -1 is unlimited
	MaxInsertErrors int64 `yaml:"max_insert_errors" json:"max_insert_errors"`
}

// ObservabilityConfig contains monitoring and observability settings.
type ObservabilityConfig struct {
	// LogLevel sets logging verbosity (debug, info, warn, error)
	LogLevel string `yaml:"log_level" json:"log_level"`
	// LogFormat is "console" or "json"
	LogFormat string `yaml:"log_format" json:"log_format"`
	// MetricsAddr serves /metrics when set
	MetricsAddr string `yaml:"metrics_addr" json:"metrics_addr"`
	// TraceExporter is "none" or "stdout"
	TraceExporter string `yaml:"trace_exporter" json:"trace_exporter"`
	// TraceOutput receives exported spans; empty means stderr
	TraceOutput string `yaml:"trace_output" json:"trace_output"`
	// ProgressInterval between aggregate progress log lines; 0 disables
	ProgressInterval time.Duration `yaml:"progress_interval" json:"progress_interval"`
	// SummaryFile receives the JSON run summary when set
	SummaryFile string `yaml:"summary_file" json:"summary_file"`
}

// AdvancedConfig contains driver tuning.
type AdvancedConfig struct {
	// NumConns per host
	NumConns int `yaml:"num_conns" json:"num_conns"`
	// PageSize of unload reads
	PageSize int `yaml:"page_size" json:"page_size"`
	// CompressionLevel of unload output (1-9)
	CompressionLevel int `yaml:"compression_level" json:"compression_level"`
}

// New returns a Config with the defaults of the command line tool.
func New() *Config {
	return &Config{
		Connection: ConnectionConfig{
			Hosts:          []string{"127.0.0.1"},
			Port:           9042,
			Consistency:    "LOCAL_ONE",
			ConnectTimeout: 5 * time.Second,
		},
		Format: FormatConfig{
			Delimiter:         ",",
			Quote:             `"`,
			Escape:            `\`,
			DecimalDelim:      ".",
			BoolStyle:         "TRUE_FALSE",
			MaxCharsPerColumn: 4096,
		},
		Load: LoadConfig{
			MaxRows:      Unlimited,
			MaxErrors:    10,
			NumFutures:   1000,
			BatchSize:    1,
			Strategy:     "permit",
			Rate:         50000,
			ProgressRate: 100000,
			NumThreads:   runtime.NumCPU(),
		},
		Unload: UnloadConfig{
			NumThreads: 5,
		},
		Reliability: ReliabilityConfig{
			QueryTimeout:    2 * time.Second,
			NumRetries:      1,
			RetryDelay:      100 * time.Millisecond,
			MaxRetryDelay:   5 * time.Second,
			MaxInsertErrors: 10,
		},
		Observability: ObservabilityConfig{
			LogLevel:         "info",
			LogFormat:        "console",
			TraceExporter:    "none",
			ProgressInterval: 10 * time.Second,
		},
		Advanced: AdvancedConfig{
			NumConns:         2,
			PageSize:         5000,
			CompressionLevel: 5,
		},
	}
}

// Validate checks the configuration for mode. File system checks are
// included so a run fails before connecting.
func (c *Config) Validate(mode Mode) error {
	if err := c.validateCommon(); err != nil {
		return err
	}
	switch mode {
	case ModeLoad:
		return c.validateLoad()
	case ModeUnload:
		return c.validateUnload()
	}
	return invalid("unknown mode %q", mode)
}

func (c *Config) validateCommon() error {
	if len(c.Connection.Hosts) == 0 {
		return invalid("at least one host is required")
	}
	if c.Format.Schema == "" {
		return invalid("schema is required")
	}
	if c.Connection.Port <= 0 || c.Connection.Port > 65535 {
		return invalid("port must be between 1 and 65535, got %d", c.Connection.Port)
	}
	if c.Connection.Username == "" && c.Connection.Password != "" {
		return invalid("if you supply the password, you must supply the username")
	}
	if c.Connection.Username != "" && c.Connection.Password == "" {
		return invalid("if you supply the username, you must supply the password")
	}
	if (c.Connection.TLS.CertPath == "") != (c.Connection.TLS.KeyPath == "") {
		return invalid("TLS certificate and key must be supplied together")
	}
	if c.Format.DecimalDelim != "." && c.Format.DecimalDelim != "," {
		return invalid("decimal delimiter must be '.' or ',', got %q", c.Format.DecimalDelim)
	}
	if c.Format.MaxCharsPerColumn < 0 {
		return invalid("max chars per column must be non-negative")
	}
	if _, err := c.Dialect(); err != nil {
		return err
	}
	if _, err := c.CodecOptions(); err != nil {
		return err
	}
	if _, err := c.Consistency(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateLoad() error {
	l := c.Load
	r := c.Reliability
	switch {
	case l.File == "":
		return invalid("an input file or directory is required")
	case l.NumThreads < 1:
		return invalid("number of threads must be positive (%d)", l.NumThreads)
	case l.NumFutures <= 0:
		return invalid("number of futures must be positive (%d)", l.NumFutures)
	case l.BatchSize <= 0:
		return invalid("batch size must be positive (%d)", l.BatchSize)
	case r.QueryTimeout <= 0:
		return invalid("query timeout must be positive")
	case r.MaxInsertErrors < Unlimited:
		return invalid("maximum number of insert errors must be non-negative")
	case r.NumRetries < 0:
		return invalid("number of retries must be non-negative")
	case l.SkipRows < 0:
		return invalid("number of rows to skip must be non-negative")
	case l.MaxRows == 0 || l.MaxRows < Unlimited:
		return invalid("maximum number of rows to load must be positive")
	case l.MaxErrors < Unlimited:
		return invalid("maximum number of parse errors must be non-negative")
	case l.ProgressRate < 0:
		return invalid("progress rate must be non-negative")
	case l.Rate < 0:
		return invalid("rate must be non-negative")
	}
	if _, err := c.InflightStrategy(); err != nil {
		return err
	}

	stdin := strings.EqualFold(l.File, Stdin)
	if !stdin {
		info, err := os.Stat(l.File)
		if err != nil || (!info.Mode().IsRegular() && !info.IsDir()) {
			return invalid("the input needs to be a file or a directory: %s", l.File)
		}
		if info.IsDir() {
			entries, err := os.ReadDir(l.File)
			if err != nil || len(entries) == 0 {
				return invalid("the directory supplied is empty: %s", l.File)
			}
		}
	}
	for _, d := range []struct{ name, path string }{{"success", l.SuccessDir}, {"failure", l.FailureDir}} {
		if d.path == "" {
			continue
		}
		if stdin {
			return invalid("cannot specify a %s directory with stdin", d.name)
		}
		if info, err := os.Stat(d.path); err != nil || !info.IsDir() {
			return invalid("%s directory must be a directory: %s", d.name, d.path)
		}
	}
	if l.BadDir != "" {
		if info, err := os.Stat(l.BadDir); err != nil || !info.IsDir() {
			return invalid("bad directory must be a directory: %s", l.BadDir)
		}
	}
	if l.NullsUnset && c.Connection.ProtocolVersion > 0 && c.Connection.ProtocolVersion < 4 {
		return invalid("cannot use nulls unset with protocol version less than 4")
	}
	return nil
}

func (c *Config) validateUnload() error {
	u := c.Unload
	if u.File == "" {
		return invalid("an output file stem or stdout is required")
	}
	if u.NumThreads < 1 {
		return invalid("number of threads must be positive (%d)", u.NumThreads)
	}
	if (u.BeginToken == "") != (u.EndToken == "") {
		return invalid("begin and end token must be supplied together")
	}
	if _, _, err := c.TokenRange(); err != nil {
		return err
	}
	if _, err := c.OutputCompression(); err != nil {
		return err
	}
	return nil
}

// UnloadToStdout reports whether unload output goes to standard output.
func (c *Config) UnloadToStdout() bool {
	return strings.EqualFold(c.Unload.File, Stdout)
}

// UnloadThreads returns the unload worker count; stdout forces one.
func (c *Config) UnloadThreads() int {
	if c.UnloadToStdout() {
		return 1
	}
	return c.Unload.NumThreads
}

// LoadFromStdin reports whether load input is standard input.
func (c *Config) LoadFromStdin() bool {
	return strings.EqualFold(c.Load.File, Stdin)
}

func invalid(format string, args ...interface{}) error {
	return errors.Newf(errors.ErrorTypeConfig, format, args...)
}
