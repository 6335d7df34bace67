package application

import (
	"context"
	"log/slog"
	"time"
)

// revalidateRequest represents a manual revalidation trigger.
type revalidateRequest struct {
	done chan Session
}

// SessionRevalidator periodically re-fetches the identity of an authenticated
// session so a credential the backend no longer accepts unwinds to
// Unauthenticated without user action.
type SessionRevalidator struct {
	session      SessionSource
	interval     time.Duration
	logger       *slog.Logger
	revalidateCh chan revalidateRequest
}

// NewSessionRevalidator creates a revalidator. An interval <= 0 disables the
// periodic tick; manual Revalidate requests are still served.
func NewSessionRevalidator(session SessionSource, interval time.Duration, logger *slog.Logger) *SessionRevalidator {
	return &SessionRevalidator{
		session:      session,
		interval:     interval,
		logger:       logger,
		revalidateCh: make(chan revalidateRequest),
	}
}

// Start runs the revalidation loop. It blocks until ctx is canceled.
func (r *SessionRevalidator) Start(ctx context.Context) {
	var tick <-chan time.Time
	if r.interval > 0 {
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("session revalidator stopped")
			return
		case <-tick:
			r.revalidate(ctx)
		case req := <-r.revalidateCh:
			req.done <- r.revalidate(ctx)
		}
	}
}

// Revalidate triggers an immediate identity fetch and returns the resulting
// session. It blocks until the fetch completes or ctx is canceled.
func (r *SessionRevalidator) Revalidate(ctx context.Context) (Session, error) {
	done := make(chan Session, 1)

	select {
	case r.revalidateCh <- revalidateRequest{done: done}:
	case <-ctx.Done():
		return Session{}, ctx.Err()
	}

	select {
	case sess := <-done:
		return sess, nil
	case <-ctx.Done():
		return Session{}, ctx.Err()
	}
}

func (r *SessionRevalidator) revalidate(ctx context.Context) Session {
	before := r.session.Current()
	if !before.Authenticated() {
		return before
	}

	start := time.Now()
	r.session.FetchIdentity(ctx)
	after := r.session.Current()

	r.logger.Debug("session revalidated",
		"authenticated", after.Authenticated(),
		"duration", time.Since(start).Round(time.Millisecond),
	)
	if !after.Authenticated() {
		r.logger.Info("session no longer valid, logged out")
	}
	return after
}
