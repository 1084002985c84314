package infrastructure

import (
	"context"

	"Poolfund/internal/domain/shared"

	"gorm.io/gorm"
)

type txKey struct{}

// Transactor opens a gorm transaction and carries it in the context.
type Transactor struct {
	DB *gorm.DB
}

var _ shared.Transactor = (*Transactor)(nil)

func NewTransactor(db *gorm.DB) *Transactor {
	return &Transactor{DB: db}
}

func (t *Transactor) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*gorm.DB); ok {
		return fn(ctx)
	}
	return t.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(context.WithValue(ctx, txKey{}, tx))
	})
}

// conn returns the transaction carried by ctx, or db when there is none.
// Repositories must go through it: with SQLite a single connection is shared
// and a query outside the open transaction would block on it.
func conn(ctx context.Context, db *gorm.DB) *gorm.DB {
	if tx, ok := ctx.Value(txKey{}).(*gorm.DB); ok {
		return tx.WithContext(ctx)
	}
	return db.WithContext(ctx)
}
