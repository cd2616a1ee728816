package db

import (
	"context"

	"github.com/jmoiron/sqlx"
)

type contextKey string

// txKey is the context key for an open transaction.
const txKey contextKey = "db_tx"

// WithTx returns a context carrying an open transaction. Store.Transaction
// attaches it before invoking the callback so repository calls made inside
// the callback all run on the same transaction.
func WithTx(ctx context.Context, tx *sqlx.Tx) context.Context {
	return context.WithValue(ctx, txKey, tx)
}

// TxFromContext retrieves the transaction from the context, or nil when
// the context does not carry one.
func TxFromContext(ctx context.Context) *sqlx.Tx {
	tx, ok := ctx.Value(txKey).(*sqlx.Tx)
	if !ok {
		return nil
	}
	return tx
}
