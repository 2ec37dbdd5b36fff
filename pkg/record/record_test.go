package record

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DerMene/cassandra-loader/pkg/codec"
	"github.com/DerMene/cassandra-loader/pkg/delim"
	"github.com/DerMene/cassandra-loader/pkg/errors"
)

var testTypes = map[string]string{
	"a":    "int",
	"b":    "boolean",
	"c":    "float",
	"name": "text",
	"tags": "set<text>",
}

func newCodec(t *testing.T, schema string, cfg Config, skip ...string) *Codec {
	t.Helper()
	s, err := codec.ParseSchema(schema)
	require.NoError(t, err)
	ch, err := codec.NewChain(s, testTypes, skip, codec.DefaultOptions())
	require.NoError(t, err)
	if cfg.Dialect == (delim.Dialect{}) {
		cfg.Dialect = delim.DefaultDialect()
	}
	c, err := New(ch, cfg)
	require.NoError(t, err)
	return c
}

func TestParse(t *testing.T) {
	c := newCodec(t, "ks.t(a, b, c)", Config{})

	row, err := c.Parse("1,true,3.5")
	require.NoError(t, err)
	assert.True(t, row.Equal(codec.Row{codec.Int(1), codec.Boolean(true), codec.Float(3.5)}))

	row, err = c.Parse(" 2 , FALSE ,")
	require.NoError(t, err)
	assert.Equal(t, int64(2), row[0].Int64())
	assert.True(t, row[2].IsNull())
}

func TestParseFieldCount(t *testing.T) {
	c := newCodec(t, "ks.t(a, b, c)", Config{})

	for _, line := range []string{"1,true", "1,true,3.5,extra"} {
		row, err := c.Parse(line)
		assert.Nil(t, row)
		require.Error(t, err)
		assert.True(t, errors.IsType(err, errors.ErrorTypeParse))
		assert.Contains(t, err.Error(), "row has different number of fields")
	}
}

func TestNullString(t *testing.T) {
	c := newCodec(t, "ks.t(a, name)", Config{NullString: "NULL"})

	row, err := c.Parse("null,NuLl")
	require.NoError(t, err)
	assert.True(t, row[0].IsNull())
	assert.True(t, row[1].IsNull())

	row, err = c.Parse(`1,""`)
	require.NoError(t, err)
	assert.False(t, row[1].IsNull())
	assert.Equal(t, "", row[1].Str())

	line, err := c.Format(codec.Row{codec.Null(codec.KindInt), codec.Text("")})
	require.NoError(t, err)
	assert.Equal(t, `NULL,""`, line)
}

func TestFormatQuotes(t *testing.T) {
	c := newCodec(t, "ks.t(a, name, tags)", Config{})

	row := codec.Row{
		codec.Int(5),
		codec.Text(`say "hi", ok`),
		codec.Set(codec.Text("x"), codec.Text("y")),
	}
	line, err := c.Format(row)
	require.NoError(t, err)
	assert.Equal(t, `5,"say \"hi\", ok","{x,y}"`, line)

	back, err := c.Parse(line)
	require.NoError(t, err)
	assert.True(t, row.Equal(back))
}

func TestRoundTripDialects(t *testing.T) {
	dialects := map[string]delim.Dialect{
		"comma": delim.DefaultDialect(),
		"tab":   {Delimiter: '\t', Quote: '"', Escape: '\\'},
		"pipe":  {Delimiter: '|', Quote: '\'', Escape: '\''},
	}
	rows := []codec.Row{
		{codec.Int(1), codec.Text("plain"), codec.Set(codec.Text("a"))},
		{codec.Int(-2), codec.Text(" padded "), codec.Set()},
		{codec.Null(codec.KindInt), codec.Text("it's|tab\there"), codec.Null(codec.KindSet)},
	}

	for name, d := range dialects {
		t.Run(name, func(t *testing.T) {
			c := newCodec(t, "ks.t(a, name, tags)", Config{Dialect: d})
			for _, row := range rows {
				line, err := c.Format(row)
				require.NoError(t, err)
				back, err := c.Parse(line)
				require.NoError(t, err, line)
				assert.True(t, row.Equal(back), "line %q", line)
			}
		})
	}
}

func TestSkipColumns(t *testing.T) {
	c := newCodec(t, "ks.t(a, junk, b)", Config{}, "junk")

	row, err := c.Parse("1,anything at all,true")
	require.NoError(t, err)
	assert.Len(t, row, 2)
}

func TestMaxCharsPerColumn(t *testing.T) {
	c := newCodec(t, "ks.t(a, name)", Config{MaxCharsPerColumn: 4})

	_, err := c.Parse("1,abcd")
	require.NoError(t, err)
	_, err = c.Parse("1,abcde")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "longer than 4 characters")
}

func TestNewRejectsBadDialect(t *testing.T) {
	s, err := codec.ParseSchema("ks.t(a)")
	require.NoError(t, err)
	ch, err := codec.NewChain(s, testTypes, nil, codec.DefaultOptions())
	require.NoError(t, err)

	_, err = New(ch, Config{Dialect: delim.Dialect{Delimiter: '"', Quote: '"', Escape: '\\'}})
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
}
