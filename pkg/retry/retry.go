// Package retry decides whether failed requests are attempted again.
package retry

import (
	"context"
	"math"
	"math/rand"
	"net"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gocql/gocql"
	"go.uber.org/zap"

	"github.com/DerMene/cassandra-loader/pkg/errors"
	"github.com/DerMene/cassandra-loader/pkg/logger"
)

// Policy retries transient failures a bounded number of times with
// exponential backoff. It implements gocql.RetryPolicy and
// session.RetryPolicy.
type Policy struct {
	// NumRetries is the number of attempts after the first
	NumRetries      int
	InitialDelay    time.Duration
	MaxDelay        time.Duration
	Multiplier      float64
	RandomizeFactor float64
}

// New returns a policy allowing numRetries retries.
func New(numRetries int) *Policy {
	return &Policy{
		NumRetries:      numRetries,
		InitialDelay:    100 * time.Millisecond,
		MaxDelay:        5 * time.Second,
		Multiplier:      2.0,
		RandomizeFactor: 0.25,
	}
}

// NoRetry returns a policy that never retries.
func NoRetry() *Policy {
	return &Policy{}
}

// Retry reports whether the request that failed on the given 1-based
// attempt is tried again, and after which delay.
func (p *Policy) Retry(attempt int, err error) (time.Duration, bool) {
	if attempt > p.NumRetries || !IsTransient(err) {
		return 0, false
	}
	return p.Delay(attempt - 1), true
}

// Delay returns the backoff before retry number attempt (0-based).
func (p *Policy) Delay(attempt int) time.Duration {
	if p.InitialDelay <= 0 {
		return 0
	}
	mult := p.Multiplier
	if mult < 1 {
		mult = 1
	}
	delay := float64(p.InitialDelay) * math.Pow(mult, float64(attempt))
	if p.MaxDelay > 0 && delay > float64(p.MaxDelay) {
		delay = float64(p.MaxDelay)
	}
	if p.RandomizeFactor > 0 {
		delta := delay * p.RandomizeFactor
		delay = delay - delta + rand.Float64()*2*delta
	}
	return time.Duration(delay)
}

// Attempt implements gocql.RetryPolicy. It waits out the backoff delay
// before allowing the next attempt.
func (p *Policy) Attempt(q gocql.RetryableQuery) bool {
	attempts := q.Attempts()
	if attempts > p.NumRetries {
		return false
	}
	delay := p.Delay(attempts - 1)
	if delay <= 0 {
		return true
	}
	ctx := q.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// GetRetryType implements gocql.RetryPolicy.
func (p *Policy) GetRetryType(err error) gocql.RetryType {
	if IsTransient(err) {
		return gocql.Retry
	}
	return gocql.Rethrow
}

// Execute runs fn until it succeeds, fails permanently, or the retries are
// used up. Only transient errors are retried.
func (p *Policy) Execute(ctx context.Context, fn func() error) error {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = p.InitialDelay
	eb.MaxInterval = p.MaxDelay
	eb.Multiplier = p.Multiplier
	eb.RandomizationFactor = p.RandomizeFactor
	eb.MaxElapsedTime = 0
	if eb.InitialInterval <= 0 {
		eb.InitialInterval = time.Millisecond
	}
	if eb.MaxInterval < eb.InitialInterval {
		eb.MaxInterval = eb.InitialInterval
	}
	if eb.Multiplier < 1 {
		eb.Multiplier = 1
	}

	var retries uint64
	if p.NumRetries > 0 {
		retries = uint64(p.NumRetries)
	}
	b := backoff.WithContext(backoff.WithMaxRetries(eb, retries), ctx)

	op := func() error {
		err := fn()
		if err != nil && !IsTransient(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, next time.Duration) {
		logger.WithContext(ctx).Warn("retrying after transient error",
			zap.Error(err),
			zap.Duration("delay", next))
	}
	return backoff.RetryNotify(op, b, notify)
}

// WithDelay returns a copy of p with new delay bounds.
func (p *Policy) WithDelay(initial, max time.Duration) *Policy {
	c := *p
	c.InitialDelay = initial
	c.MaxDelay = max
	return &c
}

// transientCodes are the server error codes worth another attempt.
var transientCodes = map[int]bool{
	gocql.ErrCodeServer:        true,
	gocql.ErrCodeUnavailable:   true,
	gocql.ErrCodeOverloaded:    true,
	gocql.ErrCodeBootstrapping: true,
	gocql.ErrCodeWriteTimeout:  true,
	gocql.ErrCodeReadTimeout:   true,
	gocql.ErrCodeTruncate:      true,
}

// IsTransient reports whether err is a timeout, an availability failure or
// a connection problem. Parse, setup and query syntax errors are never
// transient.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.IsType(err, errors.ErrorTypeParse) || errors.IsType(err, errors.ErrorTypeSetup) {
		return false
	}
	if errors.IsRetryable(err) {
		return true
	}

	var reqErr gocql.RequestError
	if errors.As(err, &reqErr) {
		return transientCodes[reqErr.Code()]
	}
	if errors.Is(err, gocql.ErrTimeoutNoResponse) ||
		errors.Is(err, gocql.ErrNoConnections) ||
		errors.Is(err, gocql.ErrConnectionClosed) ||
		errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
