package pipeline

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DerMene/cassandra-loader/pkg/compression"
	"github.com/DerMene/cassandra-loader/pkg/errors"
	"github.com/DerMene/cassandra-loader/pkg/partition"
	"github.com/DerMene/cassandra-loader/pkg/testutil"
)

// seed stores n rows and returns the lines an unload writes for them.
func (f *fixture) seed(n int) []string {
	var want []string
	for i := 1; i <= n; i++ {
		c := float32(i) / 2
		f.ms.Insert("ks", "t", map[string]interface{}{"a": int32(i), "b": i%2 == 0, "c": c})
		b := "FALSE"
		if i%2 == 0 {
			b = "TRUE"
		}
		want = append(want, strconv.Itoa(i)+","+b+","+strconv.FormatFloat(float64(c), 'f', -1, 32))
	}
	return want
}

func TestSelectCQL(t *testing.T) {
	f := newFixture(t)
	chain := f.codec.Chain()

	assert.Equal(t, "SELECT a, b, c FROM ks.t WHERE Token(a) > ? AND Token(a) <= ?",
		SelectCQL(chain, []string{"a"}, true, ""))
	assert.Equal(t, `SELECT a, b, c FROM ks.t WHERE Token(a,"Part") > ? AND Token(a,"Part") <= ? AND b = true`,
		SelectCQL(chain, []string{"a", "Part"}, true, " b = true "))
	assert.Equal(t, "SELECT a, b, c FROM ks.t WHERE b = true", SelectCQL(chain, nil, false, "b = true"))
	assert.Equal(t, "SELECT a, b, c FROM ks.t", SelectCQL(chain, nil, false, ""))
}

func TestUnloadToWriter(t *testing.T) {
	f := newFixture(t)
	want := f.seed(3)

	var out bytes.Buffer
	task := &UnloadTask{Session: f.ms, Codec: f.codec, Output: &out}
	res := task.Run(context.Background())

	require.NoError(t, res.Err)
	assert.Equal(t, OutcomeSuccess, res.Outcome)
	assert.Equal(t, int64(3), res.Rows)
	assert.Equal(t, "stdout", res.Output)
	assert.Equal(t, want, strings.Split(strings.TrimSuffix(out.String(), "\n"), "\n"))
	assert.Contains(t, f.ms.Statements(), "SELECT a, b, c FROM ks.t")
}

func TestUnloadRangesCoverTable(t *testing.T) {
	f := newFixture(t)
	want := f.seed(9)
	dir := t.TempDir()

	ranges, err := partition.Split(partition.MinToken, partition.MaxToken, 3)
	require.NoError(t, err)

	var got []string
	var total int64
	for i := range ranges {
		task := &UnloadTask{
			Index:   i,
			Session: f.ms,
			Codec:   f.codec,
			Range:   &ranges[i],
			Path:    OutputPath(filepath.Join(dir, "out"), i, compression.None),
		}
		res := task.Run(context.Background())
		require.NoError(t, res.Err)
		assert.Equal(t, ranges[i].String(), res.Range)
		total += res.Rows
		got = append(got, testutil.ReadLines(t, filepath.Join(dir, "out."+strconv.Itoa(i)))...)
	}

	assert.Equal(t, int64(len(want)), total)
	sort.Strings(got)
	sort.Strings(want)
	assert.Equal(t, want, got)
}

func TestUnloadCompressedOutput(t *testing.T) {
	f := newFixture(t)
	want := f.seed(2)
	path := OutputPath(filepath.Join(t.TempDir(), "out"), 0, compression.Gzip)
	assert.True(t, strings.HasSuffix(path, "out.0.gz"))

	task := &UnloadTask{Session: f.ms, Codec: f.codec, Path: path,
		Compression: compression.Gzip, Level: compression.Default}
	res := task.Run(context.Background())
	require.NoError(t, res.Err)

	fh, err := os.Open(path)
	require.NoError(t, err)
	defer fh.Close()
	r, err := compression.NewReader(fh, compression.Gzip)
	require.NoError(t, err)
	defer r.Close()
	var buf bytes.Buffer
	_, err = buf.ReadFrom(r)
	require.NoError(t, err)
	assert.Equal(t, strings.Join(want, "\n")+"\n", buf.String())
}

func TestUnloadStatementFailure(t *testing.T) {
	f := newFixture(t)
	f.ms.FailQueries(errors.New(errors.ErrorTypeQuery, "line 1:40 no viable alternative"))

	var out bytes.Buffer
	task := &UnloadTask{Session: f.ms, Codec: f.codec, Output: &out, Where: "b = = true"}
	res := task.Run(context.Background())

	assert.Equal(t, OutcomeFailed, res.Outcome)
	require.Error(t, res.Err)
	assert.True(t, errors.IsType(res.Err, errors.ErrorTypeSetup))
	var e *errors.Error
	require.True(t, errors.As(res.Err, &e))
	cql, ok := e.Detail("cql")
	require.True(t, ok)
	assert.Equal(t, "SELECT a, b, c FROM ks.t WHERE b = = true", cql)
	assert.Empty(t, out.String())
}

func TestUnloadMissingOutputDir(t *testing.T) {
	f := newFixture(t)
	task := &UnloadTask{Session: f.ms, Codec: f.codec, Path: filepath.Join(t.TempDir(), "nope", "out.0")}
	res := task.Run(context.Background())
	assert.Equal(t, OutcomeFailed, res.Outcome)
	assert.True(t, errors.IsType(res.Err, errors.ErrorTypeFile))
}
