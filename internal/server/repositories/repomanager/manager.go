package repomanager

import (
	"context"
	"database/sql"

	"github.com/avekshin/authkeeper/internal/dbx"
	"github.com/avekshin/authkeeper/internal/server/repositories/accounts"
	"github.com/avekshin/authkeeper/internal/server/repositories/challenges"
)

type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Accounts(db dbx.DBTX) accounts.Repository
	Challenges(db dbx.DBTX) challenges.Repository
}
