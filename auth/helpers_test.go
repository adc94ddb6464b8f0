package auth_test

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"golang.org/x/crypto/bcrypt"

	"github.com/goliatone/go-wms/auth"
	"github.com/goliatone/go-wms/internal/storage"
)

var quietLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func mustUUID(t *testing.T, s string) uuid.UUID {
	t.Helper()
	id, err := uuid.Parse(s)
	require.NoError(t, err)
	return id
}

// newTestDB returns a migrated in-memory database, seeded with the default
// catalog when seed is true
func newTestDB(t *testing.T, seed bool) *bun.DB {
	t.Helper()
	ctx := context.Background()

	db, err := storage.Open(ctx, storage.Config{Driver: storage.DriverSQLite})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = storage.Migrate(ctx, db)
	require.NoError(t, err)

	if seed {
		require.NoError(t, storage.Seed(ctx, db, auth.DefaultCatalog()))
	}
	return db
}

func testAuthConfig() auth.Config {
	cfg := testTokenConfig()
	cfg.PasswordHashCost = bcrypt.MinCost
	return cfg
}

type recordedEvents struct {
	events []auth.ActivityEvent
}

func (r *recordedEvents) Record(_ context.Context, e auth.ActivityEvent) error {
	r.events = append(r.events, e)
	return nil
}

func (r *recordedEvents) types() []auth.ActivityEventType {
	out := make([]auth.ActivityEventType, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.EventType)
	}
	return out
}

func newTestAuther(t *testing.T, db *bun.DB) (*auth.Auther, *auth.Repositories, *recordedEvents) {
	t.Helper()
	cfg := testAuthConfig()
	repo := auth.NewRepositoryManager(db)
	events := &recordedEvents{}

	auther, err := auth.NewAuthenticator(repo, newTestTokens(t, cfg), cfg)
	require.NoError(t, err)
	auther = auther.
		WithLogger(quietLogger).
		WithActivitySink(events)
	t.Cleanup(auther.Wait)
	return auther, repo, events
}

func registerUser(t *testing.T, auther *auth.Auther, email, password string) *auth.User {
	t.Helper()
	user, err := auther.Register(context.Background(), auth.RegisterUserMessage{
		Email:    email,
		Password: password,
	})
	require.NoError(t, err)
	return user
}
