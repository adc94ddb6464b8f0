package auth_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/goliatone/go-wms/auth"
)

func TestIdentityContext_Immutable(t *testing.T) {
	roles := []string{"USER", "ADMIN", "USER"}
	perms := []string{"USERS_READ", "ORDERS_READ"}

	id := auth.NewIdentityContext("u-1", "a@x.com", roles, perms)
	assert.Equal(t, []string{"ADMIN", "USER"}, id.Roles())

	roles[0] = "HACKED"
	perms[0] = "ROLES_WRITE"
	id.Permissions()[0] = "ROLES_WRITE"

	assert.Equal(t, []string{"ORDERS_READ", "USERS_READ"}, id.Permissions())
	assert.True(t, id.HasRole("ADMIN"))
	assert.False(t, id.HasPermission("ROLES_WRITE"))
	assert.True(t, id.HasAnyPermission("ROLES_WRITE", "ORDERS_READ"))
	assert.False(t, id.HasAnyPermission())
}

func TestIdentityFromUser(t *testing.T) {
	user := &auth.User{
		Email: "a@x.com",
		Roles: []*auth.Role{
			{Code: "MANAGER", Permissions: []*auth.Permission{{Code: "ORDERS_READ"}, {Code: "ORDERS_WRITE"}}},
			{Code: "USER", Permissions: []*auth.Permission{{Code: "ORDERS_READ"}}},
		},
	}
	user.ID = mustUUID(t, "0c1d7f8e-3b7a-4f61-9d7f-4f6f3c1e2a10")

	id := auth.IdentityFromUser(user)
	assert.Equal(t, user.ID.String(), id.ID())
	assert.Equal(t, []string{"MANAGER", "USER"}, id.Roles())
	assert.Equal(t, []string{"ORDERS_READ", "ORDERS_WRITE"}, id.Permissions())

	assert.True(t, auth.IdentityFromUser(nil).IsZero())
}

func TestIdentityContextRoundTrip(t *testing.T) {
	_, ok := auth.IdentityFromContext(context.Background())
	assert.False(t, ok)

	ctx := auth.WithIdentity(context.Background(), auth.IdentityContext{})
	_, ok = auth.IdentityFromContext(ctx)
	assert.False(t, ok, "zero identity counts as anonymous")

	ctx = auth.WithIdentity(context.Background(), auth.NewIdentityContext("u-1", "a@x.com", nil, []string{"USERS_READ"}))
	got, ok := auth.IdentityFromContext(ctx)
	assert.True(t, ok)
	assert.Equal(t, "u-1", got.ID())
	assert.True(t, auth.Can(ctx, "USERS_READ"))
	assert.False(t, auth.Can(ctx, "USERS_WRITE"))
	assert.False(t, auth.Can(context.Background(), "USERS_READ"))
}
