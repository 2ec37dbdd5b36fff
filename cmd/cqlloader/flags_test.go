package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DerMene/cassandra-loader/pkg/config"
	"github.com/DerMene/cassandra-loader/pkg/errors"
)

func parsed(t *testing.T, mode config.Mode, args ...string) (*config.Config, error) {
	t.Helper()
	root := newRootCommand()
	cmd, _, err := root.Find([]string{string(mode)})
	require.NoError(t, err)
	require.NoError(t, cmd.ParseFlags(args))
	return resolveConfig(cmd, mode)
}

func TestLoadFlags(t *testing.T) {
	input := filepath.Join(t.TempDir(), "in.csv")
	require.NoError(t, os.WriteFile(input, []byte("1\n"), 0o644))

	cfg, err := parsed(t, config.ModeLoad,
		"--host", "10.0.0.1,10.0.0.2",
		"--schema", "ks.t(a)",
		"-f", input,
		"--batch-size", "4",
		"--max-errors", "-1",
		"--query-timeout", "3s",
		"--nulls-unset",
	)
	require.NoError(t, err)
	assert.Equal(t, []string{"10.0.0.1", "10.0.0.2"}, cfg.Connection.Hosts)
	assert.Equal(t, input, cfg.Load.File)
	assert.Equal(t, 4, cfg.Load.BatchSize)
	assert.Equal(t, int64(config.Unlimited), cfg.Load.MaxErrors)
	assert.Equal(t, 3*time.Second, cfg.Reliability.QueryTimeout)
	assert.True(t, cfg.Load.NullsUnset)
	assert.Equal(t, 9042, cfg.Connection.Port, "unset flags keep defaults")
	assert.Equal(t, 1000, cfg.Load.NumFutures)
}

func TestNumThreadsDividesFutures(t *testing.T) {
	cfg, err := parsed(t, config.ModeLoad, "--schema", "ks.t(a)", "-f", "stdin", "--num-threads", "4")
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.Load.NumThreads)
	assert.Equal(t, 250, cfg.Load.NumFutures)
}

func TestEnvironmentOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
connection:
  hosts: [file-host]
format:
  schema: ks.t(a)
unload:
  file: stdout
  num_threads: 3
`), 0o644))
	t.Setenv("CQLLOADER_HOST", "env-a,env-b")
	t.Setenv("CQLLOADER_PAGE_SIZE", "100")

	cfg, err := parsed(t, config.ModeUnload, "--config", path, "--where", "a > 1")
	require.NoError(t, err)
	assert.Equal(t, []string{"env-a", "env-b"}, cfg.Connection.Hosts)
	assert.Equal(t, 100, cfg.Advanced.PageSize)
	assert.Equal(t, "a > 1", cfg.Unload.Where)
	assert.Equal(t, 3, cfg.Unload.NumThreads)
	assert.Equal(t, 1, cfg.UnloadThreads())
}

func TestResolveConfigValidates(t *testing.T) {
	_, err := parsed(t, config.ModeUnload, "--schema", "ks.t(a)", "-f", "out", "--begin-token", "5")
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))

	_, err = parsed(t, config.ModeLoad, "--schema", "ks.t(a)", "-f", "stdin", "--user", "u", "--pw", "p", "--num-futures", "0")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "number of futures must be positive")
}

func TestVersionCommand(t *testing.T) {
	root := newRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"version"})
	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "cqlloader v"+version)
}
