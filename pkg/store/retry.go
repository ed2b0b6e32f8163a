package store

import (
	"strings"
	"time"

	"github.com/cenkalti/backoff"
)

// retryPolicy bounds how hard a journal write is retried. retries counts
// attempts after the first; zero means try once.
type retryPolicy struct {
	retries int
	initial time.Duration
	ceiling time.Duration
}

var defaultRetry = retryPolicy{
	retries: 3,
	initial: 50 * time.Millisecond,
	ceiling: 500 * time.Millisecond,
}

// Substrings modernc.org/sqlite puts in errors for lock contention and WAL
// short reads: SQLITE_BUSY (5), SQLITE_LOCKED (6) and
// SQLITE_IOERR_SHORT_READ (522).
var transientMarkers = []string{
	"SQLITE_BUSY",
	"SQLITE_LOCKED",
	"IOERR_SHORT_READ",
	"database is locked",
	"database table is locked",
	"(5)",
	"(6)",
	"(522)",
}

// isTransientSQLiteErr reports whether err is worth retrying.
func isTransientSQLiteErr(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, m := range transientMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}

// newBackOff returns an exponential schedule with jitter, doubling from
// p.initial up to p.ceiling, limited to p.retries retries.
func newBackOff(p retryPolicy) backoff.BackOff {
	if p.retries <= 0 {
		return &backoff.StopBackOff{}
	}
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = p.initial
	exp.MaxInterval = p.ceiling
	exp.Multiplier = 2
	exp.RandomizationFactor = 0.5
	exp.MaxElapsedTime = 0
	exp.Reset()
	return backoff.WithMaxRetries(exp, uint64(p.retries))
}

// retryOp runs fn, retrying transient SQLite errors under p. Other errors
// are returned at once.
func retryOp(p retryPolicy, fn func() error) error {
	return backoff.Retry(func() error {
		err := fn()
		if err != nil && !isTransientSQLiteErr(err) {
			return backoff.Permanent(err)
		}
		return err
	}, newBackOff(p))
}
