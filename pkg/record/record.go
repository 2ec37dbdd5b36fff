// Package record converts whole delimited lines to typed rows and back by
// driving a codec chain over the fields of a delim.Dialect.
package record

import (
	"strings"
	"unicode/utf8"

	"github.com/DerMene/cassandra-loader/pkg/codec"
	"github.com/DerMene/cassandra-loader/pkg/delim"
	"github.com/DerMene/cassandra-loader/pkg/errors"
	"github.com/DerMene/cassandra-loader/pkg/pool"
)

// Config holds the line format settings.
type Config struct {
	Dialect delim.Dialect
	// NullString is the sentinel that reads and writes as null; it is
	// matched without regard to case
	NullString string
	// MaxCharsPerColumn rejects longer fields when positive
	MaxCharsPerColumn int
}

// Codec parses and formats lines for one chain. It holds no per-line state
// and may be shared between goroutines.
type Codec struct {
	chain *codec.Chain
	cfg   Config
	lines *pool.Pool[*[]string]
}

// New returns a Codec for chain.
func New(chain *codec.Chain, cfg Config) (*Codec, error) {
	if err := cfg.Dialect.Validate(); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "invalid delimiter settings")
	}
	return &Codec{chain: chain, cfg: cfg, lines: pool.NewStringSlicePool(len(chain.Targets()))}, nil
}

// Chain returns the chain the codec drives.
func (c *Codec) Chain() *codec.Chain { return c.chain }

// Parse converts line into a row. A line whose field count differs from the
// chain width is rejected as a whole.
func (c *Codec) Parse(line string) (codec.Row, error) {
	fields, err := c.cfg.Dialect.Split(line)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeParse, "malformed line")
	}
	if len(fields) != c.chain.Width() {
		return nil, errors.Newf(errors.ErrorTypeParse,
			"row has different number of fields (%d) than expected (%d)", len(fields), c.chain.Width())
	}
	for i := range fields {
		f := &fields[i]
		if c.cfg.MaxCharsPerColumn > 0 && utf8.RuneCountInString(f.Text) > c.cfg.MaxCharsPerColumn {
			return nil, errors.Newf(errors.ErrorTypeParse,
				"field %d is longer than %d characters", i+1, c.cfg.MaxCharsPerColumn)
		}
		if !f.Null && c.isNullString(f.Text) {
			f.Null = true
		}
	}
	return c.chain.Parse(fields)
}

func (c *Codec) isNullString(s string) bool {
	return c.cfg.NullString != "" && strings.EqualFold(c.cfg.NullString, s)
}

// Format renders row as one line without a trailing newline. Null values
// are written as the null string.
func (c *Codec) Format(row codec.Row) (string, error) {
	fields, err := c.chain.Format(row)
	if err != nil {
		return "", err
	}
	d := c.cfg.Dialect
	buf := c.lines.Get()
	defer c.lines.Put(buf)
	out := *buf
	for _, f := range fields {
		switch {
		case f.Null:
			out = append(out, c.cfg.NullString)
		case f.Text == "":
			// an unquoted empty field reads back as null
			out = append(out, d.QuoteField(""))
		default:
			out = append(out, d.QuoteIfNeeded(f.Text))
		}
	}
	*buf = out
	return d.Join(out), nil
}
