// Package repomanager wires repositories to their backing storage and runs
// units of work transactionally.
package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/gophauth/internal/dbx"
	"github.com/dmitrijs2005/gophauth/internal/server/repositories/accounts"
)

// RepositoryManager vends repositories bound to a DB handle or transaction.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Accounts(db dbx.DBTX) accounts.Repository
}

// Store is what the session service depends on: a repository for single
// statements and a transaction runner for multi-statement flows.
type Store interface {
	// Accounts returns a repository that is not bound to a transaction.
	Accounts() accounts.Repository

	// WithTx runs fn in one transaction. An error or panic from fn rolls
	// everything back.
	WithTx(ctx context.Context, fn func(ctx context.Context, repo accounts.Repository) error) error
}
