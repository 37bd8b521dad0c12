package dbctx

import (
	"context"

	"gorm.io/gorm"
)

// Context bundles a request context with an optional GORM transaction.
type Context struct {
	Ctx context.Context
	Tx  *gorm.DB
}

// Background is a Context with no transaction bound.
func Background() Context { return Context{Ctx: context.Background()} }

// With wraps ctx without a transaction.
func With(ctx context.Context) Context { return Context{Ctx: ctx} }

// Conn returns the bound transaction, or base when none is set, scoped to Ctx.
func (c Context) Conn(base *gorm.DB) *gorm.DB {
	conn := c.Tx
	if conn == nil {
		conn = base
	}
	ctx := c.Ctx
	if ctx == nil {
		ctx = context.Background()
	}
	return conn.WithContext(ctx)
}

// Context returns Ctx, or context.Background when unset.
func (c Context) Context() context.Context {
	if c.Ctx == nil {
		return context.Background()
	}
	return c.Ctx
}
