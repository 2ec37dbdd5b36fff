package pipeline

import (
	"bytes"
	"context"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DerMene/cassandra-loader/pkg/config"
	"github.com/DerMene/cassandra-loader/pkg/errors"
	"github.com/DerMene/cassandra-loader/pkg/json"
	"github.com/DerMene/cassandra-loader/pkg/testutil"
)

func runConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.New()
	cfg.Format.Schema = "ks.t(a, b, c)"
	cfg.Load.NumThreads = 2
	cfg.Load.NumFutures = 4
	cfg.Load.Rate = 0
	cfg.Observability.ProgressInterval = 0
	return cfg
}

func TestLoaderRunDirectory(t *testing.T) {
	f := newFixture(t)
	dir := t.TempDir()
	testutil.WriteLines(t, dir, "one.csv", "1,true,1", "2,false,2")
	testutil.WriteLines(t, dir, "two.csv", "3,true,3")
	testutil.WriteLines(t, dir, "skip.txt", "4,true,4")

	cfg := runConfig(t)
	cfg.Load.File = dir
	cfg.Load.FilePattern = "*.csv"
	cfg.Observability.SummaryFile = filepath.Join(t.TempDir(), "summary.json")

	summary, err := NewLoader(cfg, f.ms).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Tasks)
	assert.Equal(t, 0, summary.Failed)
	assert.Equal(t, int64(3), summary.Inserted)
	assert.Equal(t, int64(3), summary.Lines)
	assert.NotNil(t, summary.Resources)
	assert.ElementsMatch(t, []interface{}{int32(1), int32(2), int32(3)}, f.values("a"))

	var written map[string]interface{}
	require.NoError(t, json.ReadFile(cfg.Observability.SummaryFile, &written))
	assert.Equal(t, "load", written["mode"])
	assert.Equal(t, float64(3), written["inserted"])
}

func TestLoaderRunReportsFailedTasks(t *testing.T) {
	f := newFixture(t)
	cfg := runConfig(t)
	cfg.Load.File = config.Stdin
	cfg.Load.MaxErrors = 1

	l := NewLoader(cfg, f.ms)
	l.Stdin = strings.NewReader("1,true,1\nbad\n")
	summary, err := l.Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeParse))
	assert.Contains(t, err.Error(), "1 of 1 tasks failed")
	require.NotNil(t, summary)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, int64(1), summary.ParseErrors)
	assert.Equal(t, CodeParseErrorAbort, summary.Loads[0].Code())
}

func TestLoaderRejectsNullsUnsetOnOldProtocol(t *testing.T) {
	f := newFixture(t)
	f.ms.SetProtocolVersion(3)
	cfg := runConfig(t)
	cfg.Load.File = config.Stdin
	cfg.Load.NullsUnset = true

	_, err := NewLoader(cfg, f.ms).Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
	assert.Len(t, f.ms.Statements(), 1, "only the fixture statement is prepared")
}

func TestLoaderSkipColumns(t *testing.T) {
	f := newFixture(t)
	cfg := runConfig(t)
	cfg.Format.Schema = "ks.t(a, junk, b, c)"
	cfg.Load.SkipCols = "junk"
	cfg.Load.File = config.Stdin

	l := NewLoader(cfg, f.ms)
	l.Stdin = strings.NewReader("1,whatever,true,1\n")
	summary, err := l.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), summary.Inserted)
	stmts := f.ms.Statements()
	require.NotEmpty(t, stmts)
	assert.Equal(t, "INSERT INTO ks.t(a,b,c) VALUES (?,?,?)", stmts[len(stmts)-1])
	assert.Equal(t, []interface{}{int32(1)}, f.values("a"))
}

func TestUnloaderRunSplitsRing(t *testing.T) {
	f := newFixture(t)
	want := f.seed(8)
	stem := filepath.Join(t.TempDir(), "dump")

	cfg := runConfig(t)
	cfg.Unload.File = stem
	cfg.Unload.NumThreads = 4

	summary, err := NewUnloader(cfg, f.ms).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, summary.Tasks)
	assert.Equal(t, int64(8), summary.Unloaded)

	var got []string
	for i := 0; i < 4; i++ {
		assert.Equal(t, OutputPath(stem, i, ""), summary.Unloads[i].Output)
		got = append(got, testutil.ReadLines(t, summary.Unloads[i].Output)...)
	}
	sort.Strings(got)
	sort.Strings(want)
	assert.Equal(t, want, got)
}

func TestUnloaderRunStdout(t *testing.T) {
	f := newFixture(t)
	want := f.seed(3)

	cfg := runConfig(t)
	cfg.Unload.File = config.Stdout
	cfg.Unload.NumThreads = 5
	cfg.Unload.Where = "a > 0"

	var out bytes.Buffer
	u := NewUnloader(cfg, f.ms)
	u.Stdout = &out
	summary, err := u.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Tasks)
	assert.Equal(t, want, strings.Split(strings.TrimSuffix(out.String(), "\n"), "\n"))
	assert.Contains(t, f.ms.Statements(), "SELECT a, b, c FROM ks.t WHERE a > 0")
}

func TestUnloaderRunExplicitRange(t *testing.T) {
	f := newFixture(t)
	f.seed(4)
	stem := filepath.Join(t.TempDir(), "dump")

	cfg := runConfig(t)
	cfg.Unload.File = stem
	cfg.Unload.NumThreads = 1
	cfg.Unload.BeginToken = "-10"
	cfg.Unload.EndToken = "10"

	summary, err := NewUnloader(cfg, f.ms).Run(context.Background())
	require.NoError(t, err)
	require.Len(t, summary.Unloads, 1)
	assert.Equal(t, "(-10, 10]", summary.Unloads[0].Range)
	assert.Equal(t, stem+".0", summary.Unloads[0].Output)
	assert.Contains(t, f.ms.Statements(), "SELECT a, b, c FROM ks.t WHERE Token(a) > ? AND Token(a) <= ?")
}
