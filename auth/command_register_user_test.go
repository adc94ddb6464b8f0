package auth_test

import (
	"context"
	"testing"

	"github.com/goliatone/go-command"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goliatone/go-wms/auth"
)

func TestRegisterUserHandler_Execute(t *testing.T) {
	db := newTestDB(t, true)
	repo := auth.NewRepositoryManager(db)

	var handler command.Commander[auth.RegisterUserMessage] = auth.NewRegisterUserHandler(
		repo,
		auth.NewBcryptHasher(4),
		auth.NewCodeRoleProvider(repo.Roles(), auth.RoleUser),
	).WithLogger(quietLogger)

	var got *auth.User
	err := handler.Execute(context.Background(), auth.RegisterUserMessage{
		Email:      "cmd@example.com",
		Password:   "Secret123",
		OnResponse: func(u *auth.User) { got = u },
	})
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "cmd", got.Username)
	assert.Equal(t, []string{auth.RoleUser}, got.RoleCodes())

	err = handler.Execute(context.Background(), auth.RegisterUserMessage{
		Email:    "cmd@example.com",
		Password: "Secret123",
	})
	assert.ErrorIs(t, err, auth.ErrDuplicateIdentity)
}

func TestRegisterUserHandler_CancelledContext(t *testing.T) {
	repo := auth.NewRepositoryManager(newTestDB(t, false))
	handler := auth.NewRegisterUserHandler(repo, auth.NewBcryptHasher(4), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := handler.Execute(ctx, auth.RegisterUserMessage{
		Email:      "late@example.com",
		Password:   "Secret123",
		OnResponse: func(*auth.User) { called = true },
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)

	exists, err := repo.Users().ExistsByEmailOrUsername(context.Background(), "late@example.com", "")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestRegisterUserMessage_Type(t *testing.T) {
	assert.Equal(t, "user.register", auth.RegisterUserMessage{}.Type())
}
