package codec

import (
	"strings"

	"github.com/DerMene/cassandra-loader/pkg/delim"
	"github.com/DerMene/cassandra-loader/pkg/errors"
)

// Column is one entry of a Chain.
type Column struct {
	Name  string
	Type  *Type
	Skip  bool
	Codec Codec
}

// Chain is the ordered list of column codecs for one schema. It is built
// once per run and is safe for concurrent use.
type Chain struct {
	schema  *Schema
	columns []Column
	targets []Column
}

// NewChain builds the chain for schema. types maps column names to their CQL
// type as reported by table metadata. Columns named in skip are read from
// the line as text and never bound; they need not exist in the table.
func NewChain(schema *Schema, types map[string]string, skip []string, opts Options) (*Chain, error) {
	skipSet := make(map[string]bool, len(skip))
	for _, s := range skip {
		skipSet[s] = true
	}
	for s := range skipSet {
		if !containsString(schema.Columns, s) {
			return nil, errors.Newf(errors.ErrorTypeConfig,
				"skip column %q is not in the schema column list", s)
		}
	}

	text := &Type{Kind: KindText, Name: "text"}
	ch := &Chain{schema: schema}
	for _, name := range schema.Columns {
		if skipSet[name] {
			ch.columns = append(ch.columns, Column{Name: name, Type: text, Skip: true, Codec: textCodec{typ: text}})
			continue
		}
		cql, ok := types[name]
		if !ok {
			return nil, errors.Newf(errors.ErrorTypeConfig,
				"column %q not found in table %s", name, schema.QualifiedTable())
		}
		t, err := ParseType(cql)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeCapability, "column "+name)
		}
		c, err := New(t, opts)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeCapability, "column "+name)
		}
		col := Column{Name: name, Type: t, Codec: c}
		ch.columns = append(ch.columns, col)
		ch.targets = append(ch.targets, col)
	}
	if len(ch.targets) == 0 {
		return nil, errors.New(errors.ErrorTypeConfig, "schema has no columns to load")
	}
	return ch, nil
}

// Schema returns the schema the chain was built from.
func (c *Chain) Schema() *Schema { return c.schema }

// Width returns the number of fields a line must have, skip columns included.
func (c *Chain) Width() int { return len(c.columns) }

// Columns returns every column in line order.
func (c *Chain) Columns() []Column { return c.columns }

// Targets returns the non-skip columns in line order.
func (c *Chain) Targets() []Column { return c.targets }

// Parse converts one line's fields into a row. Fields marked null become
// null values without running the column codec; skip columns are parsed
// and dropped.
func (c *Chain) Parse(fields []delim.Field) (Row, error) {
	if len(fields) != len(c.columns) {
		return nil, errors.Newf(errors.ErrorTypeParse,
			"row has different number of fields (%d) than expected (%d)", len(fields), len(c.columns))
	}
	row := make(Row, 0, len(c.targets))
	for i, col := range c.columns {
		f := fields[i]
		if col.Skip {
			continue
		}
		if f.Null {
			row = append(row, Null(col.Type.Kind))
			continue
		}
		v, err := col.Codec.Parse(f.Text)
		if err != nil {
			return nil, withColumn(err, col.Name)
		}
		row = append(row, v)
	}
	return row, nil
}

// Format renders a row of target values. Null values come back as null
// fields for the caller to render.
func (c *Chain) Format(row Row) ([]delim.Field, error) {
	if len(row) != len(c.targets) {
		return nil, errors.Newf(errors.ErrorTypeInternal,
			"row has %d values, expected %d", len(row), len(c.targets))
	}
	out := make([]delim.Field, len(row))
	for i, v := range row {
		if v.IsNull() {
			out[i] = delim.Field{Null: true}
			continue
		}
		s, err := c.targets[i].Codec.Format(v)
		if err != nil {
			return nil, withColumn(err, c.targets[i].Name)
		}
		out[i] = delim.Field{Text: s}
	}
	return out, nil
}

// SelectColumns returns the quoted target column names joined for a SELECT.
func (c *Chain) SelectColumns() string {
	return strings.Join(c.quotedTargets(), ", ")
}

func (c *Chain) quotedTargets() []string {
	names := make([]string, len(c.targets))
	for i, col := range c.targets {
		names[i] = QuoteIdentifier(col.Name)
	}
	return names
}

// InsertCQL returns the INSERT statement binding every target column.
func (c *Chain) InsertCQL() string {
	marks := strings.TrimSuffix(strings.Repeat("?,", len(c.targets)), ",")
	return "INSERT INTO " + c.schema.QualifiedTable() + "(" +
		strings.Join(c.quotedTargets(), ",") + ") VALUES (" + marks + ")"
}

func withColumn(err error, column string) error {
	var e *errors.Error
	if errors.As(err, &e) {
		e.WithDetail("column", column)
		return err
	}
	return errors.Wrap(err, errors.ErrorTypeParse, "column "+column)
}

func containsString(list []string, s string) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}
