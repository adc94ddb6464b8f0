package auth

import (
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// User is the identity model. Rows are soft deleted only.
type User struct {
	bun.BaseModel `bun:"table:users,alias:usr"`
	ID            uuid.UUID  `bun:"id,pk,type:uuid" json:"id"`
	Username      string     `bun:"username,notnull,unique" json:"username"`
	Email         string     `bun:"email,notnull,unique" json:"email"`
	PasswordHash  string     `bun:"password_hash,notnull" json:"-"`
	FirstName     string     `bun:"first_name,notnull" json:"firstName"`
	LastName      string     `bun:"last_name,notnull" json:"lastName"`
	Phone         string     `bun:"phone,nullzero" json:"phone,omitempty"`
	IsActive      bool       `bun:"is_active,notnull,default:true" json:"isActive"`
	LastLoginAt   *time.Time `bun:"last_login_at" json:"lastLoginAt,omitempty"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"createdAt,omitempty"`
	UpdatedAt     *time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp" json:"updatedAt,omitempty"`
	DeletedAt     *time.Time `bun:"deleted_at,soft_delete,nullzero" json:"-"`

	Roles []*Role `bun:"-" json:"roles,omitempty"`
}

var _ Identity = (*User)(nil)

// UserID implements Identity
func (u *User) UserID() string {
	if u == nil || u.ID == uuid.Nil {
		return ""
	}
	return u.ID.String()
}

// UserEmail implements Identity
func (u *User) UserEmail() string {
	if u == nil {
		return ""
	}
	return u.Email
}

// RoleCodes returns the distinct, sorted codes of the loaded roles
func (u *User) RoleCodes() []string {
	codes := make([]string, 0, len(u.Roles))
	for _, r := range u.Roles {
		if r != nil {
			codes = append(codes, r.Code)
		}
	}
	return dedupeStrings(codes)
}

// PermissionCodes returns the union of permission codes over the loaded roles
func (u *User) PermissionCodes() []string {
	codes := []string{}
	for _, r := range u.Roles {
		if r == nil {
			continue
		}
		for _, p := range r.Permissions {
			if p != nil {
				codes = append(codes, p.Code)
			}
		}
	}
	return dedupeStrings(codes)
}

// Role groups permissions
type Role struct {
	bun.BaseModel `bun:"table:roles,alias:rol"`
	ID            uuid.UUID  `bun:"id,pk,type:uuid" json:"id"`
	Code          string     `bun:"code,notnull,unique" json:"code"`
	Name          string     `bun:"name,notnull" json:"name"`
	Description   string     `bun:"description,nullzero" json:"description,omitempty"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"createdAt,omitempty"`
	UpdatedAt     *time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp" json:"updatedAt,omitempty"`

	Permissions []*Permission `bun:"-" json:"permissions,omitempty"`
}

// PermissionCodes returns the sorted permission codes granted to the role
func (r *Role) PermissionCodes() []string {
	codes := make([]string, 0, len(r.Permissions))
	for _, p := range r.Permissions {
		if p != nil {
			codes = append(codes, p.Code)
		}
	}
	return dedupeStrings(codes)
}

// Permission is a named capability such as USERS_READ
type Permission struct {
	bun.BaseModel `bun:"table:permissions,alias:perm"`
	ID            uuid.UUID  `bun:"id,pk,type:uuid" json:"id"`
	Code          string     `bun:"code,notnull,unique" json:"code"`
	Name          string     `bun:"name,notnull" json:"name"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"createdAt,omitempty"`
}

// UserRole is a role assignment
type UserRole struct {
	bun.BaseModel `bun:"table:user_roles,alias:ur"`
	UserID        uuid.UUID  `bun:"user_id,pk,type:uuid"`
	RoleID        uuid.UUID  `bun:"role_id,pk,type:uuid"`
	Role          *Role      `bun:"rel:belongs-to,join:role_id=id"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

// RolePermission is a permission grant
type RolePermission struct {
	bun.BaseModel `bun:"table:role_permissions,alias:rp"`
	RoleID        uuid.UUID   `bun:"role_id,pk,type:uuid"`
	PermissionID  uuid.UUID   `bun:"permission_id,pk,type:uuid"`
	Permission    *Permission `bun:"rel:belongs-to,join:permission_id=id"`
	CreatedAt     *time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

// Models lists every table model in creation order
func Models() []any {
	return []any{
		(*User)(nil),
		(*Role)(nil),
		(*Permission)(nil),
		(*UserRole)(nil),
		(*RolePermission)(nil),
	}
}

func dedupeStrings(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v != "" {
			out = append(out, v)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
