package dbctx

import (
	"context"

	"gorm.io/gorm"
)

// Context bundles a request context with an optional GORM transaction.
// Repositories use Tx when it is set and fall back to their own handle.
type Context struct {
	Ctx context.Context
	Tx  *gorm.DB
}

func Background() Context {
	return Context{Ctx: context.Background()}
}

// DB picks the transaction when present, otherwise fallback, bound to Ctx.
func (c Context) DB(fallback *gorm.DB) *gorm.DB {
	db := c.Tx
	if db == nil {
		db = fallback
	}
	if c.Ctx != nil {
		return db.WithContext(c.Ctx)
	}
	return db
}

// Transaction runs fn inside one transaction on db. Callbacks registered with
// AfterCommit during fn run only once the commit succeeds.
func Transaction(ctx context.Context, db *gorm.DB, fn func(dbc Context) error) error {
	hookCtx, flush := WithCommitHooks(ctx)
	err := db.WithContext(hookCtx).Transaction(func(tx *gorm.DB) error {
		return fn(Context{Ctx: hookCtx, Tx: tx})
	})
	flush(err == nil)
	return err
}
