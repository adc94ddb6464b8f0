package auth_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goliatone/go-wms/auth"
)

func guardApp(identity *auth.IdentityContext, codes ...string) *fiber.App {
	app := fiber.New(fiber.Config{ErrorHandler: auth.ErrorHandler(nil)})
	app.Use(func(c *fiber.Ctx) error {
		if identity != nil {
			c.SetUserContext(auth.WithIdentity(c.UserContext(), *identity))
		}
		return c.Next()
	})
	app.Get("/", auth.Require(codes...), func(c *fiber.Ctx) error {
		return c.SendString("ok")
	})
	return app
}

func guardStatus(t *testing.T, app *fiber.App) (int, string) {
	t.Helper()
	res, err := app.Test(httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	body, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	return res.StatusCode, string(body)
}

func TestRequire(t *testing.T) {
	reader := auth.NewIdentityContext("u-1", "r@x.com", []string{"USER"}, []string{auth.PermUsersRead})
	writer := auth.NewIdentityContext("u-2", "w@x.com", []string{"USER"}, []string{auth.PermUsersWrite})

	status, body := guardStatus(t, guardApp(&reader, auth.PermUsersRead))
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", body)

	status, body = guardStatus(t, guardApp(&writer, auth.PermUsersRead))
	assert.Equal(t, http.StatusForbidden, status)
	assert.Contains(t, body, `"code":"Forbidden"`)

	status, _ = guardStatus(t, guardApp(&writer, auth.PermUsersRead, auth.PermUsersWrite))
	assert.Equal(t, http.StatusOK, status, "any of the codes is enough")

	status, body = guardStatus(t, guardApp(nil, auth.PermUsersRead))
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Contains(t, body, `"code":"Unauthenticated"`)

	status, _ = guardStatus(t, guardApp(&reader))
	assert.Equal(t, http.StatusForbidden, status, "no codes denies")
}
