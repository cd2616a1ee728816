package db

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
)

// Store wraps a MySQL connection pool and layers the transaction and
// multi-statement helpers the repositories and the migrator build on.
// It embeds *sqlx.DB, so plain queries go straight to the pool.
type Store struct {
	*sqlx.DB
}

// Open connects to MySQL using the given DSN, applies the pool limit and
// verifies connectivity with a ping before returning.
func Open(ctx context.Context, dsn string, connLimit int) (*Store, error) {
	pool, err := sqlx.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	pool.SetMaxOpenConns(connLimit)
	pool.SetMaxIdleConns(connLimit)
	// Recycle pooled connections well inside typical MySQL wait_timeout values.
	pool.SetConnMaxLifetime(3 * time.Minute)

	if err := pool.PingContext(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Store{DB: pool}, nil
}

// Transaction runs fn inside a single database transaction. The
// transaction commits when fn returns nil and rolls back otherwise.
// Repository calls made with the context passed to fn join the same
// transaction via TxFromContext. Nesting is not supported: calling
// Transaction with a context that already carries an open transaction
// fails with ErrTxInProgress.
func (s *Store) Transaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if TxFromContext(ctx) != nil {
		return ErrTxInProgress
	}

	tx, err := s.BeginTxx(ctx, nil)
	if err != nil {
		return Wrap("begin transaction", err)
	}
	defer tx.Rollback()

	if err := fn(WithTx(ctx, tx)); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return Wrap("commit transaction", err)
	}
	return nil
}

// ExecMulti executes a script of semicolon-separated statements
// sequentially on a single pooled connection. Blank fragments are
// skipped. The connection is returned to the pool on success and on
// failure alike.
func (s *Store) ExecMulti(ctx context.Context, script string) error {
	conn, err := s.Connx(ctx)
	if err != nil {
		return Wrap("acquire connection", err)
	}
	defer conn.Close()

	for _, stmt := range splitStatements(script) {
		if _, err := conn.ExecContext(ctx, stmt); err != nil {
			return Wrap("exec statement", err)
		}
	}
	return nil
}

// splitStatements splits a SQL script on semicolons and drops blank
// fragments. Semicolons inside string literals are not recognized, so
// scripts must not embed them.
func splitStatements(script string) []string {
	parts := strings.Split(script, ";")
	stmts := make([]string, 0, len(parts))
	for _, part := range parts {
		if stmt := strings.TrimSpace(part); stmt != "" {
			stmts = append(stmts, stmt)
		}
	}
	return stmts
}
