package auth_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	goerrors "github.com/goliatone/go-errors"
	"github.com/stretchr/testify/assert"

	"github.com/goliatone/go-wms/auth"
)

func TestErrorTaxonomy(t *testing.T) {
	tests := []struct {
		err      *goerrors.Error
		code     string
		status   int
		category goerrors.Category
	}{
		{auth.ErrMissingToken, auth.TextCodeMissingToken, http.StatusUnauthorized, goerrors.CategoryAuth},
		{auth.ErrInvalidToken, auth.TextCodeInvalidToken, http.StatusUnauthorized, goerrors.CategoryAuth},
		{auth.ErrExpiredToken, auth.TextCodeExpiredToken, http.StatusUnauthorized, goerrors.CategoryAuth},
		{auth.ErrUnauthenticated, auth.TextCodeUnauthenticated, http.StatusUnauthorized, goerrors.CategoryAuth},
		{auth.ErrForbidden, auth.TextCodeForbidden, http.StatusForbidden, goerrors.CategoryAuthz},
		{auth.ErrInvalidCredentials, auth.TextCodeInvalidCredentials, http.StatusUnauthorized, goerrors.CategoryAuth},
		{auth.ErrDuplicateIdentity, auth.TextCodeDuplicateIdentity, http.StatusBadRequest, goerrors.CategoryConflict},
		{auth.ErrIdentityNotFound, auth.TextCodeIdentityNotFound, http.StatusUnauthorized, goerrors.CategoryAuth},
		{auth.ErrValidation, auth.TextCodeValidation, http.StatusBadRequest, goerrors.CategoryValidation},
		{auth.ErrRoleNotFound, auth.TextCodeRoleNotFound, http.StatusNotFound, goerrors.CategoryNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			assert.Equal(t, tt.code, tt.err.TextCode)
			assert.Equal(t, tt.status, tt.err.Code)
			assert.Equal(t, tt.category, tt.err.Category)

			wrapped := fmt.Errorf("handler: %w", tt.err)
			assert.Equal(t, tt.code, auth.ErrorCode(wrapped))
			assert.Equal(t, tt.status, auth.HTTPStatus(wrapped))
			assert.ErrorIs(t, wrapped, tt.err)
		})
	}
}

func TestRichError_LooksThroughWrapping(t *testing.T) {
	inner := fmt.Errorf("%w: role ghost", auth.ErrRoleNotFound)
	outer := goerrors.Wrap(inner, goerrors.CategoryInternal, "assign default role")

	rich := auth.RichError(outer)
	assert.Equal(t, auth.TextCodeRoleNotFound, rich.TextCode)
	assert.Equal(t, http.StatusNotFound, rich.Code)
}

func TestRichError_UnknownIsInternal(t *testing.T) {
	for _, err := range []error{
		errors.New("pq: connection refused"),
		goerrors.Wrap(errors.New("disk full"), goerrors.CategoryInternal, "create user"),
		context.DeadlineExceeded,
	} {
		rich := auth.RichError(err)
		assert.Equal(t, auth.TextCodeInternal, rich.TextCode)
		assert.Equal(t, http.StatusInternalServerError, rich.Code)
		assert.Equal(t, goerrors.CategoryInternal, rich.Category)
		assert.Equal(t, "internal server error", rich.Message)
	}
}

func TestPublicMessage_HidesDetails(t *testing.T) {
	err := fmt.Errorf("%w: signature is invalid for key 0xdeadbeef", auth.ErrInvalidToken)
	assert.Equal(t, auth.ErrInvalidToken.Message, auth.PublicMessage(err))
	assert.NotContains(t, auth.PublicMessage(err), "deadbeef")
	assert.Equal(t, "internal server error", auth.PublicMessage(errors.New("pq: connection refused")))
}

func TestIsAuthError(t *testing.T) {
	assert.True(t, auth.IsAuthError(fmt.Errorf("x: %w", auth.ErrForbidden)))
	assert.True(t, auth.IsAuthError(fmt.Errorf("x: %w", auth.ErrExpiredToken)))
	assert.False(t, auth.IsAuthError(fmt.Errorf("x: %w", auth.ErrDuplicateIdentity)))
	assert.False(t, auth.IsAuthError(errors.New("other")))
	assert.False(t, auth.IsAuthError(nil))
	assert.True(t, auth.IsTokenExpiredError(fmt.Errorf("x: %w", auth.ErrExpiredToken)))
}
