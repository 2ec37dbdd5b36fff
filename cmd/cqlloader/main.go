// Command cqlloader loads delimited files into a Cassandra table and
// unloads tables to delimited files.
package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/DerMene/cassandra-loader/pkg/config"
)

var version = "0.1.0"

func main() {
	// .env.local wins over .env; neither overrides the real environment
	for _, f := range []string{".env.local", ".env"} {
		_ = godotenv.Load(f)
	}

	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "cqlloader",
		Short: "Bulk load and unload Cassandra tables as delimited files",
		Long: `cqlloader moves delimited text in and out of a Cassandra table.

Every flag can also be set through the environment as CQLLOADER_<FLAG>
(e.g. CQLLOADER_BATCH_SIZE=8) or in the YAML file named by --config.
Flags override the environment, which overrides the file.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("config", "", "YAML or JSON configuration file")

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "cqlloader v%s\n", version)
			fmt.Fprintf(out, "Go version: %s\n", runtime.Version())
			fmt.Fprintf(out, "OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	})
	root.AddCommand(newModeCommand(config.ModeLoad))
	root.AddCommand(newModeCommand(config.ModeUnload))
	return root
}

func newModeCommand(mode config.Mode) *cobra.Command {
	cmd := &cobra.Command{
		Use:  string(mode),
		Args: cobra.NoArgs,
	}
	switch mode {
	case config.ModeLoad:
		cmd.Short = "Load delimited files into a table"
		cmd.Example = `  cqlloader load --host 10.0.0.1 --schema "ks.t(a, b, c)" -f data.csv
  cat data.csv | cqlloader load --schema "ks.t(a, b, c)" -f stdin --bad-dir /tmp/bad`
	case config.ModeUnload:
		cmd.Short = "Unload a table to delimited files"
		cmd.Example = `  cqlloader unload --schema "ks.t(a, b, c)" -f stdout
  cqlloader unload --schema "ks.t(a, b, c)" -f /data/t --num-threads 8 --compression zstd`
	}
	defineFlags(cmd.Flags(), mode)
	cmd.RunE = func(cmd *cobra.Command, _ []string) error {
		cfg, err := resolveConfig(cmd, mode)
		if err != nil {
			return err
		}
		return run(cmd.Context(), cfg, mode)
	}
	return cmd
}
