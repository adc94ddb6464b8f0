package auth_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goliatone/go-wms/auth"
)

type apiResponse struct {
	Success bool            `json:"success"`
	Code    string          `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Errors  map[string]any  `json:"errors"`
}

type testAPI struct {
	app    *fiber.App
	auther *auth.Auther
	repo   *auth.Repositories
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	db := newTestDB(t, true)
	auther, repo, _ := newTestAuther(t, db)

	app := fiber.New(fiber.Config{ErrorHandler: auth.ErrorHandler(quietLogger)})
	requireAuth := auther.RequireAuth()

	auth.NewAuthController(auther).WithLogger(quietLogger).RegisterRoutes(app, requireAuth)
	auth.NewAdminController(repo).WithLogger(quietLogger).RegisterRoutes(app, requireAuth)

	return &testAPI{app: app, auther: auther, repo: repo}
}

func (a *testAPI) do(t *testing.T, method, path string, body any, token string) (int, apiResponse) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	res, err := a.app.Test(req, -1)
	require.NoError(t, err)

	var out apiResponse
	require.NoError(t, json.NewDecoder(res.Body).Decode(&out))
	return res.StatusCode, out
}

func (a *testAPI) login(t *testing.T, email, password string) auth.LoginResponse {
	t.Helper()
	status, res := a.do(t, http.MethodPost, "/auth/login", map[string]string{
		"email":    email,
		"password": password,
	}, "")
	require.Equal(t, http.StatusOK, status, res.Message)

	var out auth.LoginResponse
	require.NoError(t, json.Unmarshal(res.Data, &out))
	return out
}

func TestAuthController_RegisterLoginMe(t *testing.T) {
	api := newTestAPI(t)

	status, res := api.do(t, http.MethodPost, "/auth/register", map[string]string{
		"email":     "a@x.com",
		"password":  "Secret123",
		"firstName": "Ada",
		"phone":     "+1 650 253 0000",
	}, "")
	require.Equal(t, http.StatusCreated, status, res.Message)
	assert.True(t, res.Success)
	assert.Equal(t, "User registered successfully", res.Message)

	var registered auth.RegisteredUser
	require.NoError(t, json.Unmarshal(res.Data, &registered))
	assert.Equal(t, "a@x.com", registered.Email)

	login := api.login(t, "a@x.com", "Secret123")
	assert.Equal(t, registered.ID, login.User.ID)
	assert.Equal(t, []string{auth.RoleUser}, login.User.Roles)

	claims, err := newTestTokens(t, testAuthConfig()).VerifyAccessToken(login.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", claims.UserEmail())

	status, res = api.do(t, http.MethodGet, "/auth/me", nil, login.AccessToken)
	require.Equal(t, http.StatusOK, status)

	var me auth.Profile
	require.NoError(t, json.Unmarshal(res.Data, &me))
	assert.Equal(t, "Ada", me.FirstName)
	assert.Equal(t, "+16502530000", me.Phone)
	assert.Equal(t, []string{auth.RoleUser}, me.Roles)
	assert.Contains(t, me.Permissions, auth.PermInventoryRead)
}

func TestAuthController_RegisterValidation(t *testing.T) {
	api := newTestAPI(t)

	status, res := api.do(t, http.MethodPost, "/auth/register", map[string]string{
		"email":    "not-an-email",
		"password": "short",
		"username": "x",
	}, "")
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "ValidationFailed", res.Code)
	assert.Contains(t, res.Errors, "email")
	assert.Contains(t, res.Errors, "password")
	assert.Contains(t, res.Errors, "username")

	status, res = api.do(t, http.MethodPost, "/auth/register", map[string]string{
		"email":    "p@x.com",
		"password": "Secret123",
		"phone":    "12",
	}, "")
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, res.Errors, "phone")
}

func TestAuthController_RegisterDuplicate(t *testing.T) {
	api := newTestAPI(t)
	body := map[string]string{"email": "a@x.com", "password": "Secret123"}

	status, _ := api.do(t, http.MethodPost, "/auth/register", body, "")
	require.Equal(t, http.StatusCreated, status)

	status, res := api.do(t, http.MethodPost, "/auth/register", body, "")
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "DuplicateIdentity", res.Code)
	assert.False(t, res.Success)
}

func TestAuthController_LoginFailure(t *testing.T) {
	api := newTestAPI(t)
	registerUser(t, api.auther, "a@x.com", "Secret123")

	status, wrong := api.do(t, http.MethodPost, "/auth/login", map[string]string{"email": "a@x.com", "password": "bad-password"}, "")
	assert.Equal(t, http.StatusUnauthorized, status)

	status, unknown := api.do(t, http.MethodPost, "/auth/login", map[string]string{"email": "b@x.com", "password": "bad-password"}, "")
	assert.Equal(t, http.StatusUnauthorized, status)

	assert.Equal(t, wrong, unknown)
	assert.Equal(t, "InvalidCredentials", wrong.Code)
}

func TestAuthController_MeTokenErrors(t *testing.T) {
	api := newTestAPI(t)
	user := registerUser(t, api.auther, "a@x.com", "Secret123")

	status, res := api.do(t, http.MethodGet, "/auth/me", nil, "")
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "MissingToken", res.Code)

	status, res = api.do(t, http.MethodGet, "/auth/me", nil, "garbage")
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "InvalidToken", res.Code)

	past := time.Now().Add(-2 * time.Hour)
	expired, err := newTestTokens(t, testAuthConfig(), auth.WithTokenClock(func() time.Time { return past })).
		IssueAccessToken(user)
	require.NoError(t, err)

	status, res = api.do(t, http.MethodGet, "/auth/me", nil, expired)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "ExpiredToken", res.Code)
}

func TestAuthController_RefreshAndLogout(t *testing.T) {
	api := newTestAPI(t)
	registerUser(t, api.auther, "a@x.com", "Secret123")
	login := api.login(t, "a@x.com", "Secret123")

	status, res := api.do(t, http.MethodPost, "/auth/refresh", map[string]string{}, "")
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "MissingToken", res.Code)

	status, res = api.do(t, http.MethodPost, "/auth/refresh", map[string]string{"refreshToken": login.AccessToken}, "")
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "InvalidToken", res.Code)

	status, res = api.do(t, http.MethodPost, "/auth/refresh", map[string]string{"refreshToken": login.RefreshToken}, "")
	require.Equal(t, http.StatusOK, status)

	var refreshed auth.RefreshResponse
	require.NoError(t, json.Unmarshal(res.Data, &refreshed))

	status, _ = api.do(t, http.MethodGet, "/auth/me", nil, refreshed.AccessToken)
	assert.Equal(t, http.StatusOK, status)

	status, res = api.do(t, http.MethodPost, "/auth/logout", nil, login.AccessToken)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Logout successful", res.Message)

	// tokens are stateless and stay valid after logout
	status, _ = api.do(t, http.MethodGet, "/auth/me", nil, login.AccessToken)
	assert.Equal(t, http.StatusOK, status)
}

func TestAuthController_DeactivatedIdentityIsRejected(t *testing.T) {
	api := newTestAPI(t)
	user := registerUser(t, api.auther, "a@x.com", "Secret123")
	login := api.login(t, "a@x.com", "Secret123")
	api.auther.Wait()

	require.NoError(t, api.repo.Users().Deactivate(t.Context(), user.ID))

	status, res := api.do(t, http.MethodGet, "/auth/me", nil, login.AccessToken)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "IdentityNotFound", res.Code)
}

func TestOptionalAuth(t *testing.T) {
	db := newTestDB(t, true)
	auther, _, _ := newTestAuther(t, db)
	user := registerUser(t, auther, "a@x.com", "Secret123")

	app := fiber.New(fiber.Config{ErrorHandler: auth.ErrorHandler(quietLogger)})
	app.Get("/whoami", auther.OptionalAuth(), func(c *fiber.Ctx) error {
		identity, ok := auth.IdentityFromFiber(c)
		if !ok {
			return c.SendString("anonymous")
		}
		return c.SendString(identity.ID())
	})

	token, err := newTestTokens(t, testAuthConfig()).IssueAccessToken(user)
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
		want   string
	}{
		{name: "no header", want: "anonymous"},
		{name: "garbage token", header: "Bearer garbage", want: "anonymous"},
		{name: "valid token", header: "Bearer " + token, want: user.UserID()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			res, err := app.Test(req, -1)
			require.NoError(t, err)
			assert.Equal(t, http.StatusOK, res.StatusCode)

			body, err := io.ReadAll(res.Body)
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(body))
		})
	}
}
