package ratelimit

import (
	"context"

	"github.com/DerMene/cassandra-loader/pkg/session"
)

// Session gates every asynchronous write of the wrapped session through a
// Limiter and marks completed rows on it.
type Session struct {
	session.Session
	limiter *Limiter
}

// Wrap returns s rate limited by l.
func Wrap(s session.Session, l *Limiter) *Session {
	return &Session{Session: s, limiter: l}
}

// ExecuteAsync waits for admission of every row of w before submitting it.
// A wait cut short by ctx completes with the context's error, so the write
// is abandoned instead of reported as rejected.
func (s *Session) ExecuteAsync(ctx context.Context, w session.Write) session.Future {
	n := w.Size()
	if err := s.limiter.Acquire(ctx, n); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return session.Completed(ctxErr)
		}
		return session.Completed(err)
	}
	f := s.Session.ExecuteAsync(ctx, w)
	f.OnComplete(func(err error) {
		if err == nil {
			s.limiter.Done(n)
		}
	})
	return f
}

// Close stops the limiter. The wrapped session is shared and stays open.
func (s *Session) Close() {
	s.limiter.Stop()
}
