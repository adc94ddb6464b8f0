package auth

import "slices"

// IdentityContext is the authenticated caller attached to a request. Fields
// are unexported and accessors hand out copies, so downstream handlers cannot
// change what the middleware resolved.
type IdentityContext struct {
	id          string
	email       string
	roles       []string
	permissions []string
}

// NewIdentityContext builds an identity with distinct, sorted codes
func NewIdentityContext(id, email string, roles, permissions []string) IdentityContext {
	return IdentityContext{
		id:          id,
		email:       email,
		roles:       dedupeStrings(roles),
		permissions: dedupeStrings(permissions),
	}
}

// IdentityFromUser derives the identity from a user with its role graph loaded
func IdentityFromUser(user *User) IdentityContext {
	if user == nil {
		return IdentityContext{}
	}
	return IdentityContext{
		id:          user.UserID(),
		email:       user.Email,
		roles:       user.RoleCodes(),
		permissions: user.PermissionCodes(),
	}
}

func (i IdentityContext) ID() string    { return i.id }
func (i IdentityContext) Email() string { return i.email }

// Roles returns a copy of the role codes
func (i IdentityContext) Roles() []string {
	return slices.Clone(i.roles)
}

// Permissions returns a copy of the permission codes
func (i IdentityContext) Permissions() []string {
	return slices.Clone(i.permissions)
}

// IsZero reports whether no identity was resolved
func (i IdentityContext) IsZero() bool {
	return i.id == ""
}

// HasRole reports whether the identity holds the role code
func (i IdentityContext) HasRole(code string) bool {
	_, found := slices.BinarySearch(i.roles, code)
	return found
}

// HasPermission reports whether the identity holds the permission code
func (i IdentityContext) HasPermission(code string) bool {
	_, found := slices.BinarySearch(i.permissions, code)
	return found
}

// HasAnyPermission reports whether the identity holds at least one of codes
func (i IdentityContext) HasAnyPermission(codes ...string) bool {
	for _, code := range codes {
		if i.HasPermission(code) {
			return true
		}
	}
	return false
}
