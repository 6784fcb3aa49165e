package kernel

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/tillgate/tillgate/pkg/errx"
)

// maxTxAttempts bounds the retry loop for serialization conflicts.
const maxTxAttempts = 3

// WithinTx runs fn inside a serializable transaction, retrying up to
// maxTxAttempts times when Postgres aborts it with a serialization failure or
// deadlock. Counter allocation and invite-token consumption must go through
// here so that two concurrent attempts never both commit against the same
// counter or token.
func WithinTx(ctx context.Context, db *sqlx.DB, fn func(tx *sqlx.Tx) error) error {
	var lastErr error

	for attempt := 1; attempt <= maxTxAttempts; attempt++ {
		tx, err := db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
		if err != nil {
			return errx.Wrap(err, "failed to begin transaction", errx.TypeInternal)
		}

		err = fn(tx)
		if err == nil {
			if commitErr := tx.Commit(); commitErr != nil {
				if isRetryable(commitErr) {
					lastErr = commitErr
					continue
				}
				return errx.Wrap(commitErr, "failed to commit transaction", errx.TypeInternal)
			}
			return nil
		}

		_ = tx.Rollback()

		if isRetryable(err) {
			lastErr = err
			continue
		}
		return err
	}

	return errx.Wrap(lastErr, "transaction retries exhausted", errx.TypeInternal).
		WithDetail("attempts", maxTxAttempts)
}

// isRetryable reports whether the store aborted the transaction for a reason
// that a fresh attempt can resolve (serialization failure or deadlock).
func isRetryable(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "40001" || pqErr.Code == "40P01"
	}
	return false
}

// IsUniqueViolation reports whether err is a Postgres unique-constraint
// violation, optionally on a specific constraint name.
func IsUniqueViolation(err error, constraint string) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	if pqErr.Code != "23505" {
		return false
	}
	return constraint == "" || pqErr.Constraint == constraint
}
