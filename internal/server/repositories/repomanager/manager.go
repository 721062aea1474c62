package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/zappro/internal/dbx"
	"github.com/dmitrijs2005/zappro/internal/server/repositories/users"
)

type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Users(db dbx.DBTX) users.Repository
}
