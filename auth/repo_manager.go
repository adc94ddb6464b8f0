package auth

import (
	"context"
	"database/sql"

	"github.com/uptrace/bun"
)

// RepositoryManager exposes all repositories
type RepositoryManager interface {
	RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error
	Users() Users
	Roles() Roles
}

// Repositories is the bun backed RepositoryManager
type Repositories struct {
	db    *bun.DB
	users Users
	roles Roles
}

var _ RepositoryManager = (*Repositories)(nil)

func NewRepositoryManager(db *bun.DB) *Repositories {
	return &Repositories{
		db:    db,
		users: NewUsersRepository(db),
		roles: NewRolesRepository(db),
	}
}

func (m *Repositories) RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return m.db.RunInTx(ctx, opts, f)
	}
}

func (m *Repositories) Users() Users {
	return m.users
}

func (m *Repositories) Roles() Roles {
	return m.roles
}
