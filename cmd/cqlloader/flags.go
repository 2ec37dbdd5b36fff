package main

import (
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/DerMene/cassandra-loader/pkg/config"
)

const envPrefix = "CQLLOADER"

// option binds one flag to one configuration field.
type option struct {
	name   string
	define func(fs *pflag.FlagSet, defaults *config.Config)
	apply  func(v *viper.Viper, cfg *config.Config)
}

func stringOpt(name, short, usage string, field func(*config.Config) *string) option {
	return option{
		name:   name,
		define: func(fs *pflag.FlagSet, d *config.Config) { fs.StringP(name, short, *field(d), usage) },
		apply:  func(v *viper.Viper, c *config.Config) { *field(c) = v.GetString(name) },
	}
}

func intOpt(name, usage string, field func(*config.Config) *int) option {
	return option{
		name:   name,
		define: func(fs *pflag.FlagSet, d *config.Config) { fs.Int(name, *field(d), usage) },
		apply:  func(v *viper.Viper, c *config.Config) { *field(c) = v.GetInt(name) },
	}
}

func int64Opt(name, usage string, field func(*config.Config) *int64) option {
	return option{
		name:   name,
		define: func(fs *pflag.FlagSet, d *config.Config) { fs.Int64(name, *field(d), usage) },
		apply:  func(v *viper.Viper, c *config.Config) { *field(c) = v.GetInt64(name) },
	}
}

func floatOpt(name, usage string, field func(*config.Config) *float64) option {
	return option{
		name:   name,
		define: func(fs *pflag.FlagSet, d *config.Config) { fs.Float64(name, *field(d), usage) },
		apply:  func(v *viper.Viper, c *config.Config) { *field(c) = v.GetFloat64(name) },
	}
}

func boolOpt(name, usage string, field func(*config.Config) *bool) option {
	return option{
		name:   name,
		define: func(fs *pflag.FlagSet, d *config.Config) { fs.Bool(name, *field(d), usage) },
		apply:  func(v *viper.Viper, c *config.Config) { *field(c) = v.GetBool(name) },
	}
}

func durationOpt(name, usage string, field func(*config.Config) *time.Duration) option {
	return option{
		name:   name,
		define: func(fs *pflag.FlagSet, d *config.Config) { fs.Duration(name, *field(d), usage) },
		apply:  func(v *viper.Viper, c *config.Config) { *field(c) = v.GetDuration(name) },
	}
}

// listOpt accepts repeated flags and comma separated values, so the
// environment form "a,b" works like the flag form.
func listOpt(name, usage string, field func(*config.Config) *[]string) option {
	return option{
		name:   name,
		define: func(fs *pflag.FlagSet, d *config.Config) { fs.StringSlice(name, *field(d), usage) },
		apply: func(v *viper.Viper, c *config.Config) {
			var out []string
			for _, s := range v.GetStringSlice(name) {
				for _, part := range strings.Split(s, ",") {
					if part = strings.TrimSpace(part); part != "" {
						out = append(out, part)
					}
				}
			}
			*field(c) = out
		},
	}
}

var commonOptions = []option{
	listOpt("host", "contact points", func(c *config.Config) *[]string { return &c.Connection.Hosts }),
	intOpt("port", "native protocol port", func(c *config.Config) *int { return &c.Connection.Port }),
	stringOpt("user", "", "user name", func(c *config.Config) *string { return &c.Connection.Username }),
	stringOpt("pw", "", "password", func(c *config.Config) *string { return &c.Connection.Password }),
	intOpt("protocol-version", "native protocol version, 0 negotiates", func(c *config.Config) *int { return &c.Connection.ProtocolVersion }),
	stringOpt("consistency-level", "", "consistency of every write and read", func(c *config.Config) *string { return &c.Connection.Consistency }),
	stringOpt("local-dc", "", "route requests to this datacenter", func(c *config.Config) *string { return &c.Connection.LocalDC }),
	durationOpt("connect-timeout", "connection timeout", func(c *config.Config) *time.Duration { return &c.Connection.ConnectTimeout }),
	boolOpt("ssl", "connect over TLS", func(c *config.Config) *bool { return &c.Connection.TLS.Enabled }),
	stringOpt("ssl-cert", "", "client certificate (PEM)", func(c *config.Config) *string { return &c.Connection.TLS.CertPath }),
	stringOpt("ssl-key", "", "client key (PEM)", func(c *config.Config) *string { return &c.Connection.TLS.KeyPath }),
	stringOpt("ssl-ca", "", "trusted CA certificates (PEM)", func(c *config.Config) *string { return &c.Connection.TLS.CAPath }),
	boolOpt("ssl-verify-host", "verify the server host name", func(c *config.Config) *bool { return &c.Connection.TLS.VerifyHost }),

	stringOpt("schema", "", `table and columns, "keyspace.table(col1, col2, ...)"`, func(c *config.Config) *string { return &c.Format.Schema }),
	stringOpt("delim", "", `field delimiter, \t for tab`, func(c *config.Config) *string { return &c.Format.Delimiter }),
	stringOpt("quote", "", "quote character", func(c *config.Config) *string { return &c.Format.Quote }),
	stringOpt("escape", "", "escape character", func(c *config.Config) *string { return &c.Format.Escape }),
	stringOpt("null-string", "", "text read and written as null", func(c *config.Config) *string { return &c.Format.NullString }),
	stringOpt("date-format", "", "timestamp pattern, e.g. yyyy-MM-dd HH:mm:ss", func(c *config.Config) *string { return &c.Format.DateFormat }),
	stringOpt("decimal-delim", "", `decimal separator, "." or ","`, func(c *config.Config) *string { return &c.Format.DecimalDelim }),
	stringOpt("bool-style", "", "1_0, T_F, Y_N, TRUE_FALSE or YES_NO", func(c *config.Config) *string { return &c.Format.BoolStyle }),
	intOpt("max-chars-per-column", "longest accepted field", func(c *config.Config) *int { return &c.Format.MaxCharsPerColumn }),

	durationOpt("query-timeout", "timeout of every request", func(c *config.Config) *time.Duration { return &c.Reliability.QueryTimeout }),
	intOpt("num-retries", "resubmissions of a transiently failed request", func(c *config.Config) *int { return &c.Reliability.NumRetries }),
	durationOpt("retry-delay", "first retry delay", func(c *config.Config) *time.Duration { return &c.Reliability.RetryDelay }),
	durationOpt("max-retry-delay", "longest retry delay", func(c *config.Config) *time.Duration { return &c.Reliability.MaxRetryDelay }),

	stringOpt("log-level", "", "debug, info, warn or error", func(c *config.Config) *string { return &c.Observability.LogLevel }),
	stringOpt("log-format", "", "console or json", func(c *config.Config) *string { return &c.Observability.LogFormat }),
	stringOpt("metrics-addr", "", "serve Prometheus metrics on this address", func(c *config.Config) *string { return &c.Observability.MetricsAddr }),
	stringOpt("trace-exporter", "", "none or stdout", func(c *config.Config) *string { return &c.Observability.TraceExporter }),
	stringOpt("trace-output", "", "file receiving exported spans", func(c *config.Config) *string { return &c.Observability.TraceOutput }),
	durationOpt("progress-interval", "period of progress log lines, 0 disables", func(c *config.Config) *time.Duration { return &c.Observability.ProgressInterval }),
	stringOpt("summary-file", "", "write the run summary as JSON", func(c *config.Config) *string { return &c.Observability.SummaryFile }),
	intOpt("num-conns", "connections per host", func(c *config.Config) *int { return &c.Advanced.NumConns }),
}

var loadOptions = []option{
	stringOpt("file", "f", `"stdin", a file or a directory`, func(c *config.Config) *string { return &c.Load.File }),
	stringOpt("file-pattern", "", "glob selecting directory entries", func(c *config.Config) *string { return &c.Load.FilePattern }),
	int64Opt("skip-rows", "lines skipped at the start of every input", func(c *config.Config) *int64 { return &c.Load.SkipRows }),
	stringOpt("skip-cols", "", "comma separated schema columns not loaded", func(c *config.Config) *string { return &c.Load.SkipCols }),
	int64Opt("max-rows", "rows loaded per input, -1 for all", func(c *config.Config) *int64 { return &c.Load.MaxRows }),
	int64Opt("max-errors", "parse errors tolerated per input, -1 for unlimited", func(c *config.Config) *int64 { return &c.Load.MaxErrors }),
	int64Opt("max-insert-errors", "insert errors tolerated per input, -1 for unlimited", func(c *config.Config) *int64 { return &c.Reliability.MaxInsertErrors }),
	stringOpt("bad-dir", "", "directory for BADPARSE, BADINSERT and LOG files", func(c *config.Config) *string { return &c.Load.BadDir }),
	stringOpt("success-dir", "", "move loaded inputs here", func(c *config.Config) *string { return &c.Load.SuccessDir }),
	stringOpt("failure-dir", "", "move failed inputs here", func(c *config.Config) *string { return &c.Load.FailureDir }),
	boolOpt("nulls-unset", "leave null columns unset", func(c *config.Config) *bool { return &c.Load.NullsUnset }),
	intOpt("num-futures", "outstanding writes per input", func(c *config.Config) *int { return &c.Load.NumFutures }),
	intOpt("batch-size", "rows per unlogged batch", func(c *config.Config) *int { return &c.Load.BatchSize }),
	stringOpt("strategy", "", "in-flight strategy, permit or purge", func(c *config.Config) *string { return &c.Load.Strategy }),
	floatOpt("rate", "rows per second per input, 0 for unlimited", func(c *config.Config) *float64 { return &c.Load.Rate }),
	int64Opt("progress-rate", "rows between rate lines", func(c *config.Config) *int64 { return &c.Load.ProgressRate }),
	stringOpt("rate-file", "", `rate line target, a file or "stderr"`, func(c *config.Config) *string { return &c.Load.RateFile }),
	intOpt("num-threads", "inputs loaded concurrently", func(c *config.Config) *int { return &c.Load.NumThreads }),
}

var unloadOptions = []option{
	stringOpt("file", "f", `"stdout" or an output file stem`, func(c *config.Config) *string { return &c.Unload.File }),
	stringOpt("begin-token", "", "exclusive lower token bound", func(c *config.Config) *string { return &c.Unload.BeginToken }),
	stringOpt("end-token", "", "inclusive upper token bound", func(c *config.Config) *string { return &c.Unload.EndToken }),
	stringOpt("where", "", "extra predicate conjoined to the token range", func(c *config.Config) *string { return &c.Unload.Where }),
	intOpt("num-threads", "ranges scanned concurrently", func(c *config.Config) *int { return &c.Unload.NumThreads }),
	stringOpt("compression", "", "none, gzip, zstd, lz4, snappy or s2", func(c *config.Config) *string { return &c.Unload.Compression }),
	intOpt("compression-level", "1 fastest to 9 smallest", func(c *config.Config) *int { return &c.Advanced.CompressionLevel }),
	intOpt("page-size", "rows per result page", func(c *config.Config) *int { return &c.Advanced.PageSize }),
}

func optionsFor(mode config.Mode) []option {
	opts := append([]option(nil), commonOptions...)
	if mode == config.ModeLoad {
		return append(opts, loadOptions...)
	}
	return append(opts, unloadOptions...)
}

func defineFlags(fs *pflag.FlagSet, mode config.Mode) {
	defaults := config.New()
	for _, o := range optionsFor(mode) {
		o.define(fs, defaults)
	}
}

// resolveConfig layers defaults, the --config file, the environment and
// the command line, then validates the result for mode.
func resolveConfig(cmd *cobra.Command, mode config.Mode) (*config.Config, error) {
	cfg := config.New()
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		if err := config.Load(path, cfg); err != nil {
			return nil, err
		}
	}

	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return nil, err
	}
	for _, o := range optionsFor(mode) {
		if v.IsSet(o.name) {
			o.apply(v, cfg)
		}
	}

	// numFutures is a per run figure on the command line
	if mode == config.ModeLoad && v.IsSet("num-threads") && cfg.Load.NumThreads > 0 {
		cfg.Load.NumFutures = max(1, cfg.Load.NumFutures/cfg.Load.NumThreads)
	}

	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}
	return cfg, nil
}
