// Package metrics exposes Prometheus collectors for load and unload runs.
//
// Collectors are registered on the default registry at init through
// promauto. Every counter carries a "mode" label ("load" or "unload") so a
// single process serving both directions keeps them apart.
//
// # Basic Usage
//
//	timer := metrics.NewTimer()
//	n := runTask()
//	metrics.RowsWritten.WithLabelValues(metrics.ModeLoad).Add(float64(n))
//	metrics.TaskDuration.WithLabelValues(metrics.ModeLoad, "success").Observe(timer.Stop().Seconds())
//
// Serve starts an HTTP listener exposing the registry at /metrics.
package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/DerMene/cassandra-loader/pkg/logger"
)

// Mode label values.
const (
	ModeLoad   = "load"
	ModeUnload = "unload"
)

var (
	// LinesRead counts input lines consumed by load tasks and rows fetched by
	// unload tasks.
	// Labels: mode
	LinesRead = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cqlloader_lines_read_total",
			Help: "Total number of lines read from input or rows read from the cluster",
		},
		[]string{"mode"},
	)

	// RowsWritten counts rows acknowledged by the cluster on load and rows
	// written to output files on unload.
	// Labels: mode
	RowsWritten = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cqlloader_rows_written_total",
			Help: "Total number of rows written",
		},
		[]string{"mode"},
	)

	// Errors counts rejected rows by kind.
	// Labels: mode, kind (parse/insert/format)
	Errors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cqlloader_errors_total",
			Help: "Total number of rows rejected",
		},
		[]string{"mode", "kind"},
	)

	// Tasks counts finished tasks by outcome.
	// Labels: mode, outcome
	Tasks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cqlloader_tasks_total",
			Help: "Total number of tasks finished",
		},
		[]string{"mode", "outcome"},
	)

	// ActiveTasks tracks running tasks.
	// Labels: mode
	ActiveTasks = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "cqlloader_active_tasks",
			Help: "Number of tasks currently running",
		},
		[]string{"mode"},
	)

	// InFlight tracks outstanding asynchronous writes.
	InFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cqlloader_inflight_writes",
			Help: "Number of writes submitted and not yet completed",
		},
	)

	// TaskDuration tracks task wall time in seconds.
	// Labels: mode, outcome
	TaskDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cqlloader_task_duration_seconds",
			Help:    "Task duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 10),
		},
		[]string{"mode", "outcome"},
	)

	// WriteLatency tracks the time from submission to completion of one write.
	WriteLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name: "cqlloader_write_latency_seconds",
			Help: "Write latency in seconds",
			Buckets: []float64{
				0.0005, // 500us
				0.001,
				0.005,
				0.01,
				0.05,
				0.1,
				0.5,
				1,
				5, // past the default query timeout
			},
		},
	)
)

// Timer measures one operation.
type Timer struct {
	start time.Time
}

// NewTimer starts a timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Stop returns the time elapsed since NewTimer. It may be called repeatedly.
func (t *Timer) Stop() time.Duration {
	return time.Since(t.start)
}

// Serve exposes the default registry on addr at /metrics until ctx ends.
// It returns once the listener is bound so the caller sees address errors.
func Serve(ctx context.Context, addr string) (net.Addr, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	log := logger.With(zap.String("component", "metrics"))
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics listener stopped", zap.Error(err))
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info("serving metrics", zap.String("addr", ln.Addr().String()))
	return ln.Addr(), nil
}
