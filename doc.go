// Package cassandraloader moves delimited text in and out of Cassandra
// tables at high throughput.
//
// # Architecture
//
// A load reads one or more inputs, each on its own task. Every line is split
// by a delim.Dialect, converted to typed values by a codec.Chain, bound to a
// prepared INSERT and written asynchronously. An inflight.Manager bounds the
// outstanding writes of a task and counts failures against the insert error
// budget; a ratelimit.Limiter caps rows per second and reports progress.
// Lines that fail to parse or insert are copied to BADPARSE and BADINSERT
// files next to a per input LOG.
//
// An unload splits the token ring into contiguous ranges with the partition
// package and scans each range on its own task, formatting rows with the
// same chain so unloaded files load back unchanged.
//
// # Packages
//
//   - pkg/codec: CQL types, per type text codecs and the column chain
//   - pkg/delim: delimited line dialect and tokenizer
//   - pkg/record: whole line parsing and formatting
//   - pkg/inflight: bounded asynchronous writes (permit and purge strategies)
//   - pkg/ratelimit: admission rate and progress reporting
//   - pkg/retry: write retry policy
//   - pkg/partition: token range splitting
//   - pkg/session: the cluster capability and its gocql implementation
//   - internal/pipeline: load and unload tasks and their dispatcher
//   - cmd/cqlloader: the command line tool
//
// # Quick Start
//
//	cqlloader load --host 10.0.0.1 --schema "ks.t(a, b, c)" -f data.csv
//	cqlloader unload --host 10.0.0.1 --schema "ks.t(a, b, c)" -f out --num-threads 8
package cassandraloader
