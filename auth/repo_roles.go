package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Roles stores roles, permissions, assignments and grants
type Roles interface {
	GetByCode(ctx context.Context, code string) (*Role, error)
	GetByCodeTx(ctx context.Context, tx bun.IDB, code string) (*Role, error)
	List(ctx context.Context) ([]*Role, error)
	AssignToUser(ctx context.Context, userID, roleID uuid.UUID) error
	AssignToUserTx(ctx context.Context, tx bun.IDB, userID, roleID uuid.UUID) error
	EnsureCatalog(ctx context.Context, catalog Catalog) error
}

type roles struct {
	repository.Repository[*Role]
	db *bun.DB
}

var _ Roles = (*roles)(nil)

// NewRolesRepository returns a bun backed Roles store, roles are looked up
// by code
func NewRolesRepository(db *bun.DB) Roles {
	repo := repository.NewRepository[*Role](db, repository.ModelHandlers[*Role]{
		NewRecord: func() *Role { return &Role{} },
		GetID: func(r *Role) uuid.UUID {
			if r == nil {
				return uuid.Nil
			}
			return r.ID
		},
		SetID: func(r *Role, id uuid.UUID) {
			if r != nil {
				r.ID = id
			}
		},
		GetIdentifier: func() string {
			return "code"
		},
	})

	return &roles{
		Repository: repo,
		db:         db,
	}
}

func (r *roles) GetByCode(ctx context.Context, code string) (*Role, error) {
	return r.GetByCodeTx(ctx, r.db, code)
}

func (r *roles) GetByCodeTx(ctx context.Context, tx bun.IDB, code string) (*Role, error) {
	record, err := r.Repository.GetByIdentifierTx(ctx, tx, strings.TrimSpace(code))
	if err != nil {
		if repository.IsRecordNotFound(err) || errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrRoleNotFound, code)
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "load role").
			WithMetadata(map[string]any{"code": code})
	}
	return record, nil
}

// List returns every role with its permissions, ordered by code
func (r *roles) List(ctx context.Context) ([]*Role, error) {
	records := []*Role{}
	if err := r.db.NewSelect().Model(&records).Order("code ASC").Scan(ctx); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "list roles")
	}
	if err := attachPermissions(ctx, r.db, records); err != nil {
		return nil, err
	}
	return records, nil
}

func (r *roles) AssignToUser(ctx context.Context, userID, roleID uuid.UUID) error {
	return r.AssignToUserTx(ctx, r.db, userID, roleID)
}

// AssignToUserTx is idempotent
func (r *roles) AssignToUserTx(ctx context.Context, tx bun.IDB, userID, roleID uuid.UUID) error {
	now := time.Now().UTC()
	assignment := &UserRole{
		UserID:    userID,
		RoleID:    roleID,
		CreatedAt: &now,
	}
	_, err := tx.NewInsert().
		Model(assignment).
		On("CONFLICT (user_id, role_id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "assign role")
	}
	return nil
}

// EnsureCatalog inserts missing permissions, roles and grants. Existing rows
// are left untouched so it is safe to run on every start.
func (r *roles) EnsureCatalog(ctx context.Context, catalog Catalog) error {
	if err := catalog.Validate(); err != nil {
		return err
	}

	return r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		now := time.Now().UTC()

		if len(catalog.Permissions) > 0 {
			perms := make([]*Permission, 0, len(catalog.Permissions))
			for _, def := range catalog.Permissions {
				perms = append(perms, &Permission{
					ID:        uuid.New(),
					Code:      def.Code,
					Name:      def.Name,
					CreatedAt: &now,
				})
			}
			if _, err := tx.NewInsert().Model(&perms).On("CONFLICT (code) DO NOTHING").Exec(ctx); err != nil {
				return goerrors.Wrap(err, goerrors.CategoryInternal, "seed permissions")
			}
		}

		if len(catalog.Roles) > 0 {
			records := make([]*Role, 0, len(catalog.Roles))
			for _, def := range catalog.Roles {
				records = append(records, &Role{
					ID:          uuid.New(),
					Code:        def.Code,
					Name:        def.Name,
					Description: def.Description,
					CreatedAt:   &now,
					UpdatedAt:   &now,
				})
			}
			if _, err := tx.NewInsert().Model(&records).On("CONFLICT (code) DO NOTHING").Exec(ctx); err != nil {
				return goerrors.Wrap(err, goerrors.CategoryInternal, "seed roles")
			}
		}

		storedPerms := []*Permission{}
		if err := tx.NewSelect().Model(&storedPerms).Scan(ctx); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "reload permissions")
		}
		storedRoles := []*Role{}
		if err := tx.NewSelect().Model(&storedRoles).Scan(ctx); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "reload roles")
		}

		permByCode := make(map[string]uuid.UUID, len(storedPerms))
		for _, p := range storedPerms {
			permByCode[p.Code] = p.ID
		}
		roleByCode := make(map[string]uuid.UUID, len(storedRoles))
		for _, rl := range storedRoles {
			roleByCode[rl.Code] = rl.ID
		}

		grants := []*RolePermission{}
		for _, def := range catalog.Roles {
			for _, code := range def.Permissions {
				grants = append(grants, &RolePermission{
					RoleID:       roleByCode[def.Code],
					PermissionID: permByCode[code],
					CreatedAt:    &now,
				})
			}
		}
		if len(grants) == 0 {
			return nil
		}
		if _, err := tx.NewInsert().Model(&grants).On("CONFLICT (role_id, permission_id) DO NOTHING").Exec(ctx); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "seed grants")
		}
		return nil
	})
}

// rolesForUsers loads the role and permission graph of several users with
// two queries
func rolesForUsers(ctx context.Context, db bun.IDB, userIDs []uuid.UUID) (map[uuid.UUID][]*Role, error) {
	out := make(map[uuid.UUID][]*Role, len(userIDs))
	if len(userIDs) == 0 {
		return out, nil
	}

	assignments := []*UserRole{}
	err := db.NewSelect().
		Model(&assignments).
		Relation("Role").
		Where("?TableAlias.user_id IN (?)", bun.In(userIDs)).
		Scan(ctx)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "load role assignments")
	}

	byID := map[uuid.UUID]*Role{}
	for _, a := range assignments {
		if a.Role == nil || a.Role.ID == uuid.Nil {
			continue
		}
		role, ok := byID[a.Role.ID]
		if !ok {
			role = a.Role
			byID[role.ID] = role
		}
		out[a.UserID] = append(out[a.UserID], role)
	}

	unique := make([]*Role, 0, len(byID))
	for _, role := range byID {
		unique = append(unique, role)
	}
	if err := attachPermissions(ctx, db, unique); err != nil {
		return nil, err
	}

	for id := range out {
		slices.SortFunc(out[id], func(a, b *Role) int {
			return strings.Compare(a.Code, b.Code)
		})
	}
	return out, nil
}

func attachPermissions(ctx context.Context, db bun.IDB, records []*Role) error {
	if len(records) == 0 {
		return nil
	}

	ids := make([]uuid.UUID, 0, len(records))
	byID := make(map[uuid.UUID]*Role, len(records))
	for _, role := range records {
		role.Permissions = nil
		ids = append(ids, role.ID)
		byID[role.ID] = role
	}

	grants := []*RolePermission{}
	err := db.NewSelect().
		Model(&grants).
		Relation("Permission").
		Where("?TableAlias.role_id IN (?)", bun.In(ids)).
		Scan(ctx)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "load role grants")
	}

	for _, g := range grants {
		role, ok := byID[g.RoleID]
		if !ok || g.Permission == nil || g.Permission.ID == uuid.Nil {
			continue
		}
		role.Permissions = append(role.Permissions, g.Permission)
	}

	for _, role := range records {
		slices.SortFunc(role.Permissions, func(a, b *Permission) int {
			return strings.Compare(a.Code, b.Code)
		})
	}
	return nil
}
