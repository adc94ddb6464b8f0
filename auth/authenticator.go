package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"

	"github.com/goliatone/go-wms/middleware/jwtware"
)

const trackLoginTimeout = 5 * time.Second

// LoginResult is returned by a successful login
type LoginResult struct {
	User         *User
	AccessToken  string
	RefreshToken string
}

// Auther runs the registration and login flows and builds the request
// middleware
type Auther struct {
	config   Config
	repo     RepositoryManager
	tokens   *TokenServiceImpl
	hasher   PasswordAuthenticator
	roles    DefaultRoleProvider
	logger   Logger
	activity ActivitySink
	now      func() time.Time

	pending   sync.WaitGroup
	dummyOnce sync.Once
	dummyHash string
}

// NewAuthenticator returns a new authenticator. Default roles are looked up by
// cfg.DefaultRoleCode.
func NewAuthenticator(repo RepositoryManager, tokens *TokenServiceImpl, cfg Config) (*Auther, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if repo == nil || tokens == nil {
		return nil, goerrors.New("authenticator requires a repository manager and a token service", goerrors.CategoryInternal).
			WithTextCode(TextCodeInternal)
	}

	return &Auther{
		config:   cfg,
		repo:     repo,
		tokens:   tokens,
		hasher:   NewBcryptHasher(cfg.PasswordHashCost),
		roles:    NewCodeRoleProvider(repo.Roles(), cfg.DefaultRoleCode),
		logger:   defLogger{},
		activity: noopActivitySink{},
		now:      time.Now,
	}, nil
}

func (s *Auther) WithLogger(logger Logger) *Auther {
	s.logger = normalizeLogger(logger)
	return s
}

func (s *Auther) WithActivitySink(sink ActivitySink) *Auther {
	s.activity = normalizeActivitySink(sink)
	return s
}

func (s *Auther) WithPasswordAuthenticator(hasher PasswordAuthenticator) *Auther {
	if hasher != nil {
		s.hasher = hasher
	}
	return s
}

func (s *Auther) WithDefaultRoleProvider(provider DefaultRoleProvider) *Auther {
	if provider == nil {
		provider = NoDefaultRoles
	}
	s.roles = provider
	return s
}

func (s *Auther) WithClock(now func() time.Time) *Auther {
	if now != nil {
		s.now = now
	}
	return s
}

// Config returns the configuration the authenticator was built with
func (s *Auther) Config() Config {
	return s.config
}

// Register creates a new identity
func (s *Auther) Register(ctx context.Context, msg RegisterUserMessage) (*User, error) {
	handler := NewRegisterUserHandler(s.repo, s.hasher, s.roles).
		WithLogger(s.logger).
		WithActivitySink(s.activity)

	var user *User
	msg.OnResponse = func(u *User) { user = u }
	if err := handler.Execute(ctx, msg); err != nil {
		return nil, err
	}
	return user, nil
}

// Login verifies credentials and issues an access and a refresh token. Every
// credential failure returns ErrInvalidCredentials.
func (s *Auther) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	email = normalizeEmail(email)

	user, err := s.repo.Users().GetByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, ErrIdentityNotFound) {
			s.logger.Error("Login lookup identity error", "error", err)
			return nil, err
		}
		s.burnPasswordCheck(password)
		s.loginFailed(ctx, "", "not_found")
		return nil, ErrInvalidCredentials
	}

	if err := s.hasher.ComparePasswordAndHash(password, user.PasswordHash); err != nil {
		if !errors.Is(err, ErrMismatchedHashAndPassword) {
			s.logger.Error("Login verify identity error", "error", err, "user_id", user.UserID())
		}
		s.loginFailed(ctx, user.UserID(), "password_mismatch")
		return nil, ErrInvalidCredentials
	}

	if !user.IsActive {
		s.loginFailed(ctx, user.UserID(), "inactive")
		return nil, ErrInvalidCredentials
	}

	if err := s.repo.Users().LoadGrants(ctx, user); err != nil {
		s.logger.Error("Login load grants error", "error", err, "user_id", user.UserID())
		return nil, err
	}

	access, err := s.tokens.IssueAccessToken(user)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "issue access token")
	}
	refresh, err := s.tokens.IssueRefreshToken(user)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "issue refresh token")
	}

	s.trackLogin(user.ID, s.now())

	s.record(ctx, ActivityEvent{
		EventType: ActivityEventLoginSuccess,
		UserID:    user.UserID(),
	})

	return &LoginResult{
		User:         user,
		AccessToken:  access,
		RefreshToken: refresh,
	}, nil
}

// Refresh exchanges a refresh token for a new access token. The subject must
// still be an active identity.
func (s *Auther) Refresh(ctx context.Context, refreshToken string) (string, error) {
	claims, err := s.tokens.VerifyRefreshToken(refreshToken)
	if err != nil {
		return "", err
	}

	user, err := s.activeUser(ctx, claims.UserID())
	if err != nil {
		return "", err
	}

	token, err := s.tokens.IssueAccessToken(user)
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "issue access token")
	}

	s.record(ctx, ActivityEvent{
		EventType: ActivityEventTokenRefreshed,
		UserID:    user.UserID(),
	})
	return token, nil
}

// Logout only records the event. Tokens stay valid until they expire.
func (s *Auther) Logout(ctx context.Context, identity IdentityContext) {
	s.record(ctx, ActivityEvent{
		EventType: ActivityEventLogout,
		UserID:    identity.ID(),
	})
}

// Me loads the caller with roles and permissions
func (s *Auther) Me(ctx context.Context, userID string) (*User, error) {
	id, err := uuid.Parse(userID)
	if err != nil {
		return nil, ErrIdentityNotFound
	}
	return s.repo.Users().GetWithGrants(ctx, id)
}

// ResolveIdentity loads the identity behind a token subject. Missing,
// deleted or inactive identities fail with ErrIdentityNotFound.
func (s *Auther) ResolveIdentity(ctx context.Context, userID string) (IdentityContext, error) {
	user, err := s.activeUser(ctx, userID)
	if err != nil {
		return IdentityContext{}, err
	}
	return IdentityFromUser(user), nil
}

func (s *Auther) activeUser(ctx context.Context, userID string) (*User, error) {
	id, err := uuid.Parse(strings.TrimSpace(userID))
	if err != nil {
		return nil, fmt.Errorf("%w: malformed subject", ErrInvalidToken)
	}

	user, err := s.repo.Users().GetWithGrants(ctx, id)
	if err != nil {
		return nil, err
	}
	if !user.IsActive {
		return nil, ErrIdentityNotFound
	}
	return user, nil
}

// Wait blocks until background last-login writes finish
func (s *Auther) Wait() {
	s.pending.Wait()
}

// RequireAuth rejects requests without a valid token for an active identity
// and attaches the IdentityContext otherwise
func (s *Auther) RequireAuth() fiber.Handler {
	return jwtware.New(jwtware.Config{
		TokenLookup:         s.config.TokenLookup,
		AuthScheme:          s.config.AuthScheme,
		TokenValidator:      s.tokens,
		ValidationListeners: []jwtware.ValidationListener{s.attachIdentity},
		ErrorHandler: func(_ *fiber.Ctx, err error) error {
			return normalizeAuthError(err)
		},
	})
}

// OptionalAuth attaches the identity when a valid token is present and lets
// every request through
func (s *Auther) OptionalAuth() fiber.Handler {
	return jwtware.New(jwtware.Config{
		TokenLookup:         s.config.TokenLookup,
		AuthScheme:          s.config.AuthScheme,
		TokenValidator:      s.tokens,
		ValidationListeners: []jwtware.ValidationListener{s.attachIdentity},
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			if !errors.Is(err, jwtware.ErrJWTMissingOrMalformed) {
				s.logger.Warn("optional auth ignored token", "path", c.Path(), "error", err)
			}
			return c.Next()
		},
	})
}

func (s *Auther) attachIdentity(c *fiber.Ctx, claims jwtware.AuthClaims) error {
	identity, err := s.ResolveIdentity(c.UserContext(), claims.UserID())
	if err != nil {
		return err
	}
	c.SetUserContext(WithIdentity(c.UserContext(), identity))
	return nil
}

func normalizeAuthError(err error) error {
	if errors.Is(err, jwtware.ErrJWTMissingOrMalformed) {
		return ErrMissingToken
	}
	if IsAuthError(err) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrInvalidToken, err)
}

func (s *Auther) trackLogin(id uuid.UUID, at time.Time) {
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		ctx, cancel := context.WithTimeout(context.Background(), trackLoginTimeout)
		defer cancel()
		if err := s.repo.Users().TrackSuccessfulLogin(ctx, id, at); err != nil {
			s.logger.Warn("track successful login failed", "user_id", id.String(), "error", err)
		}
	}()
}

// burnPasswordCheck spends a bcrypt comparison so unknown emails take as long
// as wrong passwords
func (s *Auther) burnPasswordCheck(password string) {
	s.dummyOnce.Do(func() {
		hash, err := s.hasher.HashPassword("wms-unknown-identity")
		if err != nil {
			s.logger.Error("dummy hash generation failed", "error", err)
			return
		}
		s.dummyHash = hash
	})
	if s.dummyHash == "" {
		return
	}
	_ = s.hasher.ComparePasswordAndHash(password, s.dummyHash)
}

func (s *Auther) loginFailed(ctx context.Context, userID, reason string) {
	s.logger.Debug("login rejected", "user_id", userID, "reason", reason)
	s.record(ctx, ActivityEvent{
		EventType: ActivityEventLoginFailure,
		UserID:    userID,
		Metadata:  map[string]any{"reason": reason},
	})
}

func (s *Auther) record(ctx context.Context, event ActivityEvent) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = s.now().UTC()
	}
	if err := s.activity.Record(ctx, event); err != nil {
		s.logger.Warn("activity sink failed", "event", string(event.EventType), "error", err)
	}
}
