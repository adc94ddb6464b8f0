package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-wms/auth"
	"github.com/goliatone/go-wms/internal/config"
	"github.com/goliatone/go-wms/internal/logging"
	"github.com/goliatone/go-wms/internal/server"
	"github.com/goliatone/go-wms/internal/storage"
)

type envelope struct {
	Success bool            `json:"success"`
	Code    string          `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Path    string          `json:"path"`
}

func newTestServer(t *testing.T, mutate func(*config.Config)) (*server.Server, *bun.DB) {
	t.Helper()
	ctx := context.Background()

	cfg := config.Defaults()
	cfg.Auth.PasswordHashCost = 4
	cfg.RateLimit.RPS = 0
	if mutate != nil {
		mutate(&cfg)
	}

	db, err := storage.Open(ctx, storage.Config{Driver: storage.DriverSQLite})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = storage.Migrate(ctx, db)
	require.NoError(t, err)
	require.NoError(t, storage.Seed(ctx, db, auth.DefaultCatalog()))

	srv, err := server.New(cfg, db, logging.New(io.Discard, "error", "text"))
	require.NoError(t, err)
	t.Cleanup(srv.Authenticator().Wait)
	return srv, db
}

func doJSON(t *testing.T, srv *server.Server, method, path string, body any, token string) (*http.Response, envelope) {
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

	res, err := srv.App().Test(req, -1)
	require.NoError(t, err)

	var env envelope
	raw, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	if len(raw) > 0 && raw[0] == '{' {
		require.NoError(t, json.Unmarshal(raw, &env))
	}
	return res, env
}

func loginToken(t *testing.T, srv *server.Server, email, password string) string {
	t.Helper()
	res, env := doJSON(t, srv, http.MethodPost, "/api/v1/auth/login", map[string]string{
		"email":    email,
		"password": password,
	}, "")
	require.Equal(t, http.StatusOK, res.StatusCode, env.Message)

	var data struct {
		AccessToken string `json:"accessToken"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	return data.AccessToken
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	res, err := srv.App().Test(httptest.NewRequest(http.MethodGet, "/health", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, res.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(res.Body).Decode(&body))
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "development", body["environment"])
	assert.Contains(t, body, "uptime")
}

func TestNotFound(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	res, env := doJSON(t, srv, http.MethodGet, "/api/v1/nope", nil, "")
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
	assert.False(t, env.Success)
	assert.Equal(t, "Route not found", env.Message)
	assert.Equal(t, "/api/v1/nope", env.Path)
}

func TestRegisterLoginMe(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	res, env := doJSON(t, srv, http.MethodPost, "/api/v1/auth/register", map[string]string{
		"email":    "a@x.com",
		"password": "Secret123",
	}, "")
	require.Equal(t, http.StatusCreated, res.StatusCode, env.Message)

	token := loginToken(t, srv, "a@x.com", "Secret123")

	res, env = doJSON(t, srv, http.MethodGet, "/api/v1/auth/me", nil, token)
	require.Equal(t, http.StatusOK, res.StatusCode)

	var me struct {
		Email       string   `json:"email"`
		Roles       []string `json:"roles"`
		Permissions []string `json:"permissions"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &me))
	assert.Equal(t, "a@x.com", me.Email)
	assert.Equal(t, []string{auth.RoleUser}, me.Roles)
	assert.Contains(t, me.Permissions, auth.PermProductsRead)
	assert.NotContains(t, me.Permissions, auth.PermUsersRead)

	res, env = doJSON(t, srv, http.MethodGet, "/api/v1/auth/me", nil, "")
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
	assert.Equal(t, auth.ErrorCode(auth.ErrMissingToken), env.Code)
}

func TestAdminRoutes_Guarded(t *testing.T) {
	srv, db := newTestServer(t, nil)
	ctx := context.Background()

	res, env := doJSON(t, srv, http.MethodPost, "/api/v1/auth/register", map[string]string{
		"email":    "boss@x.com",
		"password": "Secret123",
	}, "")
	require.Equal(t, http.StatusCreated, res.StatusCode, env.Message)

	token := loginToken(t, srv, "boss@x.com", "Secret123")

	res, env = doJSON(t, srv, http.MethodGet, "/api/v1/admin/users", nil, token)
	assert.Equal(t, http.StatusForbidden, res.StatusCode)
	assert.Equal(t, auth.ErrorCode(auth.ErrForbidden), env.Code)

	repo := auth.NewRepositoryManager(db)
	user, err := repo.Users().GetByEmail(ctx, "boss@x.com")
	require.NoError(t, err)
	admin, err := repo.Roles().GetByCode(ctx, auth.RoleAdmin)
	require.NoError(t, err)
	require.NoError(t, repo.Roles().AssignToUser(ctx, user.ID, admin.ID))

	// grants are resolved per request, the same token now passes
	res, env = doJSON(t, srv, http.MethodGet, "/api/v1/admin/users?page=1&pageSize=5", nil, token)
	require.Equal(t, http.StatusOK, res.StatusCode)

	var page struct {
		Items []struct {
			Email string   `json:"email"`
			Roles []string `json:"roles"`
		} `json:"items"`
		Pagination struct {
			Total int `json:"total"`
		} `json:"pagination"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &page))
	require.Len(t, page.Items, 1)
	assert.Equal(t, 1, page.Pagination.Total)
	assert.ElementsMatch(t, []string{auth.RoleAdmin, auth.RoleUser}, page.Items[0].Roles)

	res, _ = doJSON(t, srv, http.MethodGet, "/api/v1/admin/roles", nil, token)
	assert.Equal(t, http.StatusOK, res.StatusCode)
}

func TestRateLimit_CredentialEndpoints(t *testing.T) {
	srv, _ := newTestServer(t, func(cfg *config.Config) {
		cfg.RateLimit.RPS = 0.001
		cfg.RateLimit.Burst = 1
	})

	body := map[string]string{"email": "nobody@x.com", "password": "Secret123"}

	res, _ := doJSON(t, srv, http.MethodPost, "/api/v1/auth/login", body, "")
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)

	res, env := doJSON(t, srv, http.MethodPost, "/api/v1/auth/login", body, "")
	assert.Equal(t, http.StatusTooManyRequests, res.StatusCode)
	assert.Equal(t, "TooManyRequests", env.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	_, _ = doJSON(t, srv, http.MethodPost, "/api/v1/auth/login", map[string]string{
		"email":    "nobody@x.com",
		"password": "Secret123",
	}, "")

	res, err := srv.App().Test(httptest.NewRequest(http.MethodGet, "/metrics", nil), -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, res.StatusCode)

	raw, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "wms_http_requests_total")
	assert.Contains(t, string(raw), `wms_auth_events_total{event="auth.login.failure"}`)
}
