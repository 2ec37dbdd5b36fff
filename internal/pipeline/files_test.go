package pipeline

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DerMene/cassandra-loader/pkg/testutil"
)

func TestInputs(t *testing.T) {
	dir := t.TempDir()
	b := testutil.WriteLines(t, dir, "b.csv", "x")
	a := testutil.WriteLines(t, dir, "a.csv", "x")
	testutil.WriteLines(t, dir, "c.txt", "x")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o755))

	files, err := Inputs(dir, "")
	require.NoError(t, err)
	assert.Equal(t, []string{a, b, filepath.Join(dir, "c.txt")}, files)

	files, err = Inputs(dir, "*.csv")
	require.NoError(t, err)
	assert.Equal(t, []string{a, b}, files)

	files, err = Inputs(a, "*.txt")
	require.NoError(t, err)
	assert.Equal(t, []string{a}, files)

	files, err = Inputs("STDIN", "")
	require.NoError(t, err)
	assert.Equal(t, []string{StdinName}, files)

	_, err = Inputs(dir, "*.json")
	assert.Error(t, err)
	_, err = Inputs(dir, "[")
	assert.Error(t, err)
	_, err = Inputs(filepath.Join(dir, "missing"), "")
	assert.Error(t, err)
}

func TestLineReader(t *testing.T) {
	long := strings.Repeat("x", 200*1024)
	r := newLineReader(strings.NewReader("a\r\n\n" + long + "\nlast"))

	var got []string
	for {
		line, ok, err := r.Next()
		require.NoError(t, err)
		if !ok {
			break
		}
		got = append(got, line)
	}
	assert.Equal(t, []string{"a", "", long, "last"}, got)
}

func TestMoveFile(t *testing.T) {
	src := testutil.WriteLines(t, t.TempDir(), "in.csv", "1,2")
	dst, err := moveFile(src, t.TempDir())
	require.NoError(t, err)
	assert.NoFileExists(t, src)
	assert.Equal(t, []string{"1,2"}, testutil.ReadLines(t, dst))

	_, err = moveFile(src, t.TempDir())
	assert.Error(t, err)
}

func TestSideChannelsDisabled(t *testing.T) {
	sc, err := openSideChannels("", "in.csv")
	require.NoError(t, err)
	assert.Nil(t, sc.Log())
	assert.Nil(t, sc.BadParse())
	assert.Nil(t, sc.BadInsert())
	assert.NoError(t, sc.Close())

	_, err = openSideChannels(filepath.Join(t.TempDir(), "missing"), "in.csv")
	assert.Error(t, err)
}
