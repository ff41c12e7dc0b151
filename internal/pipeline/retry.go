package pipeline

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/couchcryptid/flood-ground-truth-etl/internal/domain"
)

// retry runs fn until it succeeds, fails with a non-transient error, or the
// policy's attempts run out. The last error is returned unchanged, so an
// exhausted transient failure is still classified as transient.
func (p *Pipeline) retry(ctx context.Context, op string, fn func(context.Context) error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.opts.Retry.InitialInterval
	b.MaxInterval = p.opts.Retry.MaxInterval
	b.MaxElapsedTime = 0
	b.Reset()

	policy := backoff.WithContext(
		backoff.WithMaxRetries(b, uint64(p.opts.Retry.MaxAttempts-1)),
		ctx,
	)

	attempt := 0
	return backoff.RetryNotify(func() error {
		attempt++
		err := fn(ctx)
		if err != nil && !domain.IsTransient(err) {
			return backoff.Permanent(err)
		}
		return err
	}, policy, func(err error, wait time.Duration) {
		p.metrics.RetriesTotal.WithLabelValues(op).Inc()
		p.logger.Warn("transient failure, retrying",
			"operation", op, "attempt", attempt, "wait", wait, "error", err)
	})
}
