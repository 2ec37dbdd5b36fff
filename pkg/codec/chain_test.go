package codec

import (
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DerMene/cassandra-loader/pkg/delim"
	"github.com/DerMene/cassandra-loader/pkg/errors"
)

func testChain(t *testing.T, schema string, skip ...string) *Chain {
	t.Helper()
	s, err := ParseSchema(schema)
	require.NoError(t, err)
	types := map[string]string{
		"a":         "int",
		"b":         "boolean",
		"c":         "float",
		"MixedCase": "text",
		"tags":      "set<text>",
	}
	ch, err := NewChain(s, types, skip, DefaultOptions())
	require.NoError(t, err)
	return ch
}

func fields(texts ...string) []delim.Field {
	out := make([]delim.Field, len(texts))
	for i, s := range texts {
		out[i] = delim.Field{Text: s, Null: s == ""}
	}
	return out
}

func TestParseSchema(t *testing.T) {
	s, err := ParseSchema(`KS.Tbl(a, "MixedCase" , B)`)
	require.NoError(t, err)
	assert.Equal(t, "ks", s.Keyspace)
	assert.Equal(t, "tbl", s.Table)
	assert.Equal(t, []string{"a", "MixedCase", "b"}, s.Columns)
	assert.Equal(t, "ks.tbl", s.QualifiedTable())

	s, err = ParseSchema(`"MyKs"."My Table"(a)`)
	require.NoError(t, err)
	assert.Equal(t, `"MyKs"."My Table"`, s.QualifiedTable())

	for _, bad := range []string{"ks.t", "t(a)", "ks.t(a,a)", "ks.t(a,,b)", `ks.t("a)`} {
		_, err := ParseSchema(bad)
		require.Error(t, err, bad)
		assert.True(t, errors.IsType(err, errors.ErrorTypeConfig), bad)
	}
}

func TestChainBuild(t *testing.T) {
	ch := testChain(t, `ks.t(a, junk, b, c, "MixedCase")`, "junk")

	assert.Equal(t, 5, ch.Width())
	require.Len(t, ch.Targets(), 4)
	assert.True(t, ch.Columns()[1].Skip)
	assert.Equal(t, `a, b, c, "MixedCase"`, ch.SelectColumns())
	assert.Equal(t, `INSERT INTO ks.t(a,b,c,"MixedCase") VALUES (?,?,?,?)`, ch.InsertCQL())
}

func TestChainBuildErrors(t *testing.T) {
	s, err := ParseSchema("ks.t(a, nope)")
	require.NoError(t, err)

	_, err = NewChain(s, map[string]string{"a": "int"}, nil, DefaultOptions())
	require.Error(t, err)
	assert.Contains(t, err.Error(), `column "nope" not found`)

	_, err = NewChain(s, map[string]string{"a": "int"}, []string{"other"}, DefaultOptions())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not in the schema column list")

	_, err = NewChain(s, map[string]string{"a": "int", "nope": "duration"}, nil, DefaultOptions())
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeCapability))
}

func TestChainParseAndFormat(t *testing.T) {
	ch := testChain(t, "ks.t(a, junk, b, c)", "junk")

	row, err := ch.Parse(fields("1", "ignored", "true", "3.5"))
	require.NoError(t, err)
	assert.True(t, row.Equal(Row{Int(1), Boolean(true), Float(3.5)}))

	row, err = ch.Parse(fields("2", "", "", "4.25"))
	require.NoError(t, err)
	assert.True(t, row[1].IsNull())
	assert.Equal(t, KindBoolean, row[1].Kind())

	out, err := ch.Format(row)
	require.NoError(t, err)
	assert.Equal(t, []delim.Field{{Text: "2"}, {Null: true}, {Text: "4.25"}}, out)
}

func TestChainParseErrors(t *testing.T) {
	ch := testChain(t, "ks.t(a, b, c)")

	_, err := ch.Parse(fields("1", "true"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "row has different number of fields (2) than expected (3)")

	_, err = ch.Parse(fields("x", "true", "3.5"))
	require.Error(t, err)
	var e *errors.Error
	require.True(t, errors.As(err, &e))
	column, ok := e.Detail("column")
	require.True(t, ok)
	assert.Equal(t, "a", column)
}

func TestFromNative(t *testing.T) {
	ch := testChain(t, "ks.t(a, b, c, tags)")
	targets := ch.Targets()

	var nilInt *int
	one := 1
	tests := []struct {
		name string
		col  int
		in   interface{}
		want Value
	}{
		{"int", 0, 1, Int(1)},
		{"int pointer", 0, &one, Int(1)},
		{"nil pointer", 0, nilInt, Null(KindInt)},
		{"nil", 1, nil, Null(KindBoolean)},
		{"float", 2, float32(2.5), Float(2.5)},
		{"set", 3, []string{"x", "y"}, Set(Text("x"), Text("y"))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := FromNative(targets[tt.col].Type, tt.in)
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(v), "got %+v", v)
		})
	}

	v, err := FromNative(MustParseType("map<text, bigint>"), map[string]int64{"k": 9})
	require.NoError(t, err)
	assert.True(t, Map([]Value{Text("k")}, []Value{BigInt(9)}).Equal(v))

	v, err = FromNative(MustParseType("varint"), big.NewInt(5))
	require.NoError(t, err)
	assert.Equal(t, "5", v.BigInt().String())

	ts := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	v, err = FromNative(MustParseType("date"), ts)
	require.NoError(t, err)
	assert.True(t, Date(ts).Equal(v))

	_, err = FromNative(MustParseType("int"), "1")
	assert.Error(t, err)
}

func TestChainRowRoundTrip(t *testing.T) {
	ch := testChain(t, `ks.t(a, b, c, "MixedCase", tags)`)
	in := fields("7", "FALSE", "0.5", "hello", `{"x,y",z}`)

	row, err := ch.Parse(in)
	require.NoError(t, err)
	out, err := ch.Format(row)
	require.NoError(t, err)
	again, err := ch.Parse(out)
	require.NoError(t, err)
	assert.True(t, row.Equal(again))
	assert.Equal(t, `{"x,y",z}`, out[4].Text)
}
