package migrate

import (
	"context"
	"errors"
	"math/rand"
	"net"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/pigeonworks-llc/ledgersync/pkg/source"
)

// retryPolicy bounds how persistently a transient failure is retried.
type retryPolicy struct {
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
}

func defaultRetryPolicy() retryPolicy {
	return retryPolicy{
		maxAttempts: 4,
		baseDelay:   500 * time.Millisecond,
		maxDelay:    15 * time.Second,
	}
}

// isTransient classifies an error as worth retrying. Anything else fails the
// mutation immediately.
func isTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var apiErr *source.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Retryable()
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked
	}

	return false
}

// withRetry runs fn, retrying transient failures with exponential backoff and
// jitter. The last error is returned once attempts are exhausted or the error
// is not transient.
func (p retryPolicy) withRetry(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 0; attempt < p.maxAttempts; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if !isTransient(err) {
			return err
		}
		if attempt == p.maxAttempts-1 {
			break
		}

		delay := p.baseDelay << uint(attempt)
		if delay > p.maxDelay {
			delay = p.maxDelay
		}
		delay += time.Duration(rand.Int63n(int64(delay) / 2))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return err
}
