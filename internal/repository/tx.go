package repository

import (
	"context"
	"database/sql"
	"fmt"
)

// execer は*sql.DBと*sql.Txに共通する書き込み操作。
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// withTx はfnをトランザクション内で実行する。
// fnがエラーを返した場合はロールバックし、そのエラーをopで分類して返す。
func withTx(ctx context.Context, db TxBeginner, op string, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return Classify(op, fmt.Errorf("failed to begin transaction: %w", err))
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return Classify(op, err)
	}
	if err := tx.Commit(); err != nil {
		return Classify(op, fmt.Errorf("failed to commit transaction: %w", err))
	}
	return nil
}

// affectedOne は更新件数が0の場合にKindNotFoundを返す。
func affectedOne(op string, result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return Classify(op, err)
	}
	if n == 0 {
		return notFound(op)
	}
	return nil
}
