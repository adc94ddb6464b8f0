package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-command"
	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// RegisterUserMessage is a validated registration request
type RegisterUserMessage struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	Password  string `json:"password"`

	OnResponse func(user *User) `json:"-"`
}

func (e RegisterUserMessage) Type() string { return "user.register" }

// RegisterUserHandler creates identities and assigns default roles. The
// created user is handed to the message OnResponse callback.
type RegisterUserHandler struct {
	repo     RepositoryManager
	hasher   PasswordAuthenticator
	roles    DefaultRoleProvider
	logger   Logger
	activity ActivitySink
	timeout  time.Duration
}

var _ command.Commander[RegisterUserMessage] = (*RegisterUserHandler)(nil)

// NewRegisterUserHandler wires a handler. A nil role provider assigns nothing.
func NewRegisterUserHandler(repo RepositoryManager, hasher PasswordAuthenticator, roles DefaultRoleProvider) *RegisterUserHandler {
	if hasher == nil {
		hasher = NewBcryptHasher(DefaultPasswordHashCost)
	}
	if roles == nil {
		roles = NoDefaultRoles
	}
	return &RegisterUserHandler{
		repo:     repo,
		hasher:   hasher,
		roles:    roles,
		logger:   defLogger{},
		activity: noopActivitySink{},
		timeout:  10 * time.Second,
	}
}

func (h *RegisterUserHandler) WithLogger(logger Logger) *RegisterUserHandler {
	h.logger = normalizeLogger(logger)
	return h
}

func (h *RegisterUserHandler) WithActivitySink(sink ActivitySink) *RegisterUserHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

// Execute registers the user. Duplicate email or username fails with
// ErrDuplicateIdentity.
func (h *RegisterUserHandler) Execute(ctx context.Context, event RegisterUserMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during user registration",
		)
	default:
	}

	user, err := h.execute(ctx, event)
	if err != nil {
		return err
	}
	if event.OnResponse != nil {
		event.OnResponse(user)
	}
	return nil
}

func (h *RegisterUserHandler) execute(ctx context.Context, event RegisterUserMessage) (*User, error) {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	email := normalizeEmail(event.Email)
	username := strings.TrimSpace(event.Username)

	exists, err := h.repo.Users().ExistsByEmailOrUsername(ctx, email, username)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrDuplicateIdentity
	}

	if username == "" {
		if username, err = h.deriveUsername(ctx, email); err != nil {
			return nil, err
		}
	}

	hash, err := h.hasher.HashPassword(event.Password)
	if err != nil {
		if errors.Is(err, ErrNoEmptyString) {
			return nil, fmt.Errorf("%w: %v", ErrValidation, err)
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash password")
	}

	user := &User{
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		FirstName:    strings.TrimSpace(event.FirstName),
		LastName:     strings.TrimSpace(event.LastName),
		Phone:        event.Phone,
		IsActive:     true,
	}

	err = h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if user, err = h.repo.Users().CreateTx(ctx, tx, user); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	h.assignDefaultRoles(ctx, user)

	h.record(ctx, ActivityEvent{
		EventType: ActivityEventRegistered,
		UserID:    user.UserID(),
		Metadata:  map[string]any{"roles": user.RoleCodes()},
	})

	return user, nil
}

// assignDefaultRoles is best effort: the identity exists either way and
// failures are only logged
func (h *RegisterUserHandler) assignDefaultRoles(ctx context.Context, user *User) {
	defaults, err := h.roles.DefaultRoles(ctx)
	if err != nil {
		h.logger.Warn("resolve default roles failed", "user_id", user.UserID(), "error", err)
		return
	}

	for _, role := range defaults {
		if role == nil {
			continue
		}
		if err := h.repo.Roles().AssignToUser(ctx, user.ID, role.ID); err != nil {
			h.logger.Warn("assign default role failed", "user_id", user.UserID(), "role", role.Code, "error", err)
			continue
		}
		user.Roles = append(user.Roles, role)
	}
}

func (h *RegisterUserHandler) record(ctx context.Context, event ActivityEvent) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	if err := h.activity.Record(ctx, event); err != nil {
		h.logger.Warn("activity sink failed", "event", string(event.EventType), "error", err)
	}
}

// deriveUsername uses the local part of the email. A taken name gets a
// short random suffix.
func (h *RegisterUserHandler) deriveUsername(ctx context.Context, email string) (string, error) {
	base, _, _ := strings.Cut(email, "@")
	if base == "" {
		base = "user"
	}

	taken, err := h.repo.Users().ExistsByEmailOrUsername(ctx, "", base)
	if err != nil {
		return "", err
	}
	if !taken {
		return base, nil
	}
	return base + "-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:6], nil
}
