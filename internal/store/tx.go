package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/roach88/boarding/internal/model"
)

// querier is satisfied by *sql.DB and *sql.Tx so read helpers can run
// either inside a transaction or as standalone snapshot reads.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Tx is an open write transaction. All methods operate on the same
// snapshot and commit or roll back together.
type Tx struct {
	tx *sql.Tx
}

// WithTx runs fn inside one immediate transaction. The transaction commits
// when fn returns nil and rolls back otherwise.
//
// If the database is busy, the whole transaction is retried up to the
// configured attempt limit, so fn may run more than once and must not
// leak partial results into variables without resetting them first.
// Exhausted retries return a model.Error with CodeConcurrentConflict.
func (s *Store) WithTx(ctx context.Context, fn func(*Tx) error) error {
	var lastErr error
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		err := s.runTx(ctx, fn)
		if err == nil {
			return nil
		}
		if !isBusy(err) {
			return err
		}
		lastErr = err
		s.logger.Debug("transaction busy, retrying",
			"attempt", attempt,
			"max_attempts", s.maxAttempts,
			"error", err,
		)

		if attempt == s.maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * s.retryBackoff):
		}
	}

	return &model.Error{
		Code:    model.CodeConcurrentConflict,
		Message: fmt.Sprintf("transaction retries exhausted after %d attempts", s.maxAttempts),
		Err:     lastErr,
	}
}

func (s *Store) runTx(ctx context.Context, fn func(*Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	if err := fn(&Tx{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// isBusy reports whether err is a transient lock conflict.
func isBusy(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked
	}
	return false
}
