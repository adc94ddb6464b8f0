package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/uptrace/bun"
)

const pgUniqueViolation = "23505"

// ListOptions paginates list queries. Page is 1 based.
type ListOptions struct {
	Page     int
	PageSize int
}

const (
	defaultPageSize = 10
	maxPageSize     = 100
)

func (o ListOptions) normalize() ListOptions {
	if o.Page < 1 {
		o.Page = 1
	}
	if o.PageSize < 1 {
		o.PageSize = defaultPageSize
	}
	if o.PageSize > maxPageSize {
		o.PageSize = maxPageSize
	}
	return o
}

// Users is the credential store for identities
type Users interface {
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	GetByIDTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	GetWithGrants(ctx context.Context, id uuid.UUID) (*User, error)
	LoadGrants(ctx context.Context, user *User) error

	ExistsByEmailOrUsername(ctx context.Context, email, username string) (bool, error)
	ExistsByEmailOrUsernameTx(ctx context.Context, tx bun.IDB, email, username string) (bool, error)

	Create(ctx context.Context, user *User) (*User, error)
	CreateTx(ctx context.Context, tx bun.IDB, user *User) (*User, error)

	TrackSuccessfulLogin(ctx context.Context, id uuid.UUID, at time.Time) error
	Deactivate(ctx context.Context, id uuid.UUID) error
	SoftDelete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, opts ListOptions) ([]*User, int, error)
}

type users struct {
	repository.Repository[*User]
	db *bun.DB
}

var _ Users = (*users)(nil)

// NewUsersRepository returns a bun backed Users store. Plain lookups and
// inserts go through the generic repository, the role graph and soft
// delete updates are custom queries.
func NewUsersRepository(db *bun.DB) Users {
	repo := repository.NewRepository[*User](db, repository.ModelHandlers[*User]{
		NewRecord: func() *User { return &User{} },
		GetID: func(u *User) uuid.UUID {
			if u == nil {
				return uuid.Nil
			}
			return u.ID
		},
		SetID: func(u *User, id uuid.UUID) {
			if u != nil {
				u.ID = id
			}
		},
		GetIdentifier: func() string {
			return "email"
		},
	})

	return &users{
		Repository: repo,
		db:         db,
	}
}

func (a *users) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	return a.GetByIDTx(ctx, a.db, id)
}

func (a *users) GetByIDTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*User, error) {
	record, err := a.Repository.GetByIDTx(ctx, tx, id.String())
	if err != nil {
		return nil, mapUserErr(err)
	}
	return record, nil
}

func (a *users) GetByEmail(ctx context.Context, email string) (*User, error) {
	record, err := a.Repository.GetByIdentifier(ctx, normalizeEmail(email))
	if err != nil {
		return nil, mapUserErr(err)
	}
	return record, nil
}

// GetWithGrants loads the user together with its roles and their permissions
func (a *users) GetWithGrants(ctx context.Context, id uuid.UUID) (*User, error) {
	user, err := a.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := a.LoadGrants(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

func (a *users) LoadGrants(ctx context.Context, user *User) error {
	if user == nil {
		return ErrIdentityNotFound
	}
	graph, err := rolesForUsers(ctx, a.db, []uuid.UUID{user.ID})
	if err != nil {
		return err
	}
	user.Roles = graph[user.ID]
	return nil
}

func (a *users) ExistsByEmailOrUsername(ctx context.Context, email, username string) (bool, error) {
	return a.ExistsByEmailOrUsernameTx(ctx, a.db, email, username)
}

// ExistsByEmailOrUsernameTx includes soft deleted rows, they still hold
// their unique values
func (a *users) ExistsByEmailOrUsernameTx(ctx context.Context, tx bun.IDB, email, username string) (bool, error) {
	q := tx.NewSelect().
		Model((*User)(nil)).
		WhereAllWithDeleted().
		WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
			q = q.Where("?TableAlias.email = ?", normalizeEmail(email))
			if u := strings.TrimSpace(username); u != "" {
				q = q.WhereOr("?TableAlias.username = ?", u)
			}
			return q
		})

	exists, err := q.Exists(ctx)
	if err != nil {
		return false, goerrors.Wrap(err, goerrors.CategoryInternal, "check existing identity")
	}
	return exists, nil
}

func (a *users) Create(ctx context.Context, user *User) (*User, error) {
	return a.CreateTx(ctx, a.db, user)
}

func (a *users) CreateTx(ctx context.Context, tx bun.IDB, user *User) (*User, error) {
	prepareUserDefaults(user)

	record, err := a.Repository.CreateTx(ctx, tx, user)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("create user: %w", ErrDuplicateIdentity)
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "create user")
	}
	return record, nil
}

func (a *users) TrackSuccessfulLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	at = at.UTC()
	res, err := a.db.NewUpdate().
		Model((*User)(nil)).
		Set("last_login_at = ?", at).
		Set("updated_at = ?", at).
		Where("id = ?", id).
		Where("deleted_at IS NULL").
		Exec(ctx)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "track login")
	}
	return expectAffected(res)
}

func (a *users) Deactivate(ctx context.Context, id uuid.UUID) error {
	now := time.Now().UTC()
	res, err := a.db.NewUpdate().
		Model((*User)(nil)).
		Set("is_active = ?", false).
		Set("updated_at = ?", now).
		Where("id = ?", id).
		Where("deleted_at IS NULL").
		Exec(ctx)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "deactivate user")
	}
	return expectAffected(res)
}

// SoftDelete marks the row deleted and inactive. Rows are never removed.
func (a *users) SoftDelete(ctx context.Context, id uuid.UUID) error {
	now := time.Now().UTC()
	res, err := a.db.NewUpdate().
		Model((*User)(nil)).
		Set("deleted_at = ?", now).
		Set("is_active = ?", false).
		Set("updated_at = ?", now).
		Where("id = ?", id).
		Where("deleted_at IS NULL").
		Exec(ctx)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "delete user")
	}
	return expectAffected(res)
}

func (a *users) List(ctx context.Context, opts ListOptions) ([]*User, int, error) {
	opts = opts.normalize()

	records := []*User{}
	total, err := a.db.NewSelect().
		Model(&records).
		Order("created_at DESC", "username ASC").
		Limit(opts.PageSize).
		Offset((opts.Page - 1) * opts.PageSize).
		ScanAndCount(ctx)
	if err != nil {
		return nil, 0, goerrors.Wrap(err, goerrors.CategoryInternal, "list users")
	}

	if len(records) == 0 {
		return records, total, nil
	}

	ids := make([]uuid.UUID, 0, len(records))
	for _, u := range records {
		ids = append(ids, u.ID)
	}

	graph, err := rolesForUsers(ctx, a.db, ids)
	if err != nil {
		return nil, 0, err
	}
	for _, u := range records {
		u.Roles = graph[u.ID]
	}

	return records, total, nil
}

func prepareUserDefaults(user *User) {
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	user.Email = normalizeEmail(user.Email)
	user.Username = strings.TrimSpace(user.Username)

	now := time.Now().UTC()
	if user.CreatedAt == nil {
		user.CreatedAt = &now
	}
	if user.UpdatedAt == nil {
		user.UpdatedAt = &now
	}
}

func mapUserErr(err error) error {
	if repository.IsRecordNotFound(err) || errors.Is(err, sql.ErrNoRows) {
		return ErrIdentityNotFound
	}
	return goerrors.Wrap(err, goerrors.CategoryInternal, "load user")
}

func expectAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrIdentityNotFound
	}
	return nil
}

// isUniqueViolation looks through repository wrapping for the driver error
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}

	var rich *goerrors.Error
	for e := err; e != nil; {
		msg := strings.ToLower(e.Error())
		if strings.Contains(msg, "unique constraint failed") ||
			strings.Contains(msg, "duplicate key value") {
			return true
		}
		if !goerrors.As(e, &rich) || rich.Source == nil || rich.Source == e {
			return false
		}
		e = rich.Source
	}
	return false
}
