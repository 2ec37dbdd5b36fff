package config_test

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/DerMene/cassandra-loader/pkg/config"
)

func ExampleNew() {
	cfg := config.New()

	fmt.Printf("Port: %d\n", cfg.Connection.Port)
	fmt.Printf("Consistency: %s\n", cfg.Connection.Consistency)
	fmt.Printf("Futures: %d\n", cfg.Load.NumFutures)
	fmt.Printf("Unload threads: %d\n", cfg.Unload.NumThreads)
	// Output:
	// Port: 9042
	// Consistency: LOCAL_ONE
	// Futures: 1000
	// Unload threads: 5
}

func ExampleConfig_Validate() {
	cfg := config.New()
	cfg.Format.Schema = "ks.t(a, b)"
	cfg.Unload.File = "stdout"
	cfg.Unload.BeginToken = "0"

	if err := cfg.Validate(config.ModeUnload); err != nil {
		fmt.Println(err)
	}
	// Output:
	// config: begin and end token must be supplied together
}

func ExampleLoad() {
	dir, _ := os.MkdirTemp("", "config-example")
	defer os.RemoveAll(dir)

	_ = os.Setenv("EXAMPLE_CASSANDRA_HOST", "10.1.2.3")
	path := filepath.Join(dir, "load.yaml")
	_ = os.WriteFile(path, []byte(`
connection:
  hosts: ["${EXAMPLE_CASSANDRA_HOST}"]
format:
  schema: ks.t(a, b)
  delimiter: '\t'
reliability:
  query_timeout: 5s
`), 0o600)

	cfg := config.New()
	if err := config.Load(path, cfg); err != nil {
		fmt.Println(err)
		return
	}
	fmt.Println(cfg.Connection.Hosts[0])
	fmt.Println(cfg.Reliability.QueryTimeout)
	fmt.Println(cfg.Connection.Port)
	// Output:
	// 10.1.2.3
	// 5s
	// 9042
}
