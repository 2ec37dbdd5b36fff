// Package ratelimit caps the rate at which rows are submitted and reports
// the achieved throughput.
package ratelimit

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/rcrowley/go-metrics"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/DerMene/cassandra-loader/pkg/errors"
	"github.com/DerMene/cassandra-loader/pkg/logger"
)

// Config configures a Limiter.
type Config struct {
	// Rate is the target in operations per second; 0 disables limiting
	Rate float64
	// ProgressRate writes a progress line every this many operations; 0
	// disables progress lines
	ProgressRate int64
	// Output receives progress and final lines; nil discards them
	Output io.Writer
	// Name identifies the limiter in logs
	Name string
}

// Limiter is a token bucket admission gate with a completion meter.
type Limiter struct {
	cfg     Config
	limiter *rate.Limiter
	meter   metrics.Meter
	count   atomic.Int64
	log     *zap.Logger

	mu      sync.Mutex
	stopped bool
}

// New returns a limiter for cfg.
func New(cfg Config) *Limiter {
	lim := rate.NewLimiter(rate.Inf, 0)
	if cfg.Rate > 0 {
		burst := int(cfg.Rate / 10)
		if burst < 1 {
			burst = 1
		}
		lim = rate.NewLimiter(rate.Limit(cfg.Rate), burst)
	}
	return &Limiter{
		cfg:     cfg,
		limiter: lim,
		meter:   metrics.NewMeter(),
		log:     logger.With(zap.String("component", "rate_limiter"), zap.String("name", cfg.Name)),
	}
}

// Acquire blocks until n operations may proceed or ctx ends. Requests
// larger than the burst are admitted in burst-sized slices.
func (l *Limiter) Acquire(ctx context.Context, n int) error {
	if l.cfg.Rate <= 0 {
		return ctx.Err()
	}
	burst := l.limiter.Burst()
	for n > 0 {
		take := n
		if take > burst {
			take = burst
		}
		if err := l.limiter.WaitN(ctx, take); err != nil {
			return errors.Wrap(err, errors.ErrorTypeRateLimit, "rate limiter wait interrupted")
		}
		n -= take
	}
	return nil
}

// Done records n completed operations and writes a progress line whenever
// the running count crosses a multiple of the progress rate.
func (l *Limiter) Done(n int) {
	if n <= 0 {
		return
	}
	l.meter.Mark(int64(n))
	after := l.count.Add(int64(n))
	before := after - int64(n)
	if p := l.cfg.ProgressRate; p > 0 && after/p > before/p {
		l.write(after)
	}
}

// Count returns the number of completed operations.
func (l *Limiter) Count() int64 { return l.count.Load() }

// Rate returns the mean completion rate in operations per second.
func (l *Limiter) Rate() float64 { return l.meter.RateMean() }

// Report writes the final progress line.
func (l *Limiter) Report() {
	l.write(l.count.Load())
}

func (l *Limiter) write(count int64) {
	r := l.meter.RateMean()
	l.log.Info("rate progress", zap.Int64("lines_processed", count), zap.Float64("rate", r))

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cfg.Output != nil {
		fmt.Fprintf(l.cfg.Output, "Lines Processed: \t%d  Rate: \t%f\n", count, r)
	}
}

// Stop releases the meter. The limiter must not be used afterwards.
func (l *Limiter) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.stopped {
		l.stopped = true
		l.meter.Stop()
	}
}
