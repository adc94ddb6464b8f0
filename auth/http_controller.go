package auth

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/gofiber/fiber/v2"
)

var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9._-]+$`)

// AuthService is what the controller needs from the authenticator
type AuthService interface {
	Register(ctx context.Context, msg RegisterUserMessage) (*User, error)
	Login(ctx context.Context, email, password string) (*LoginResult, error)
	Refresh(ctx context.Context, refreshToken string) (string, error)
	Logout(ctx context.Context, identity IdentityContext)
	Me(ctx context.Context, userID string) (*User, error)
}

var _ AuthService = (*Auther)(nil)

type AuthControllerRoutes struct {
	Register string
	Login    string
	Refresh  string
	Logout   string
	Me       string
}

type AuthController struct {
	Service     AuthService
	Logger      Logger
	PhoneRegion string
	Routes      *AuthControllerRoutes
}

func NewAuthController(service AuthService) *AuthController {
	return &AuthController{
		Service:     service,
		Logger:      defLogger{},
		PhoneRegion: DefaultPhoneRegion,
		Routes: &AuthControllerRoutes{
			Register: "/register",
			Login:    "/login",
			Refresh:  "/refresh",
			Logout:   "/logout",
			Me:       "/me",
		},
	}
}

func (a *AuthController) WithLogger(logger Logger) *AuthController {
	a.Logger = normalizeLogger(logger)
	return a
}

func (a *AuthController) WithPhoneRegion(region string) *AuthController {
	if region != "" {
		a.PhoneRegion = region
	}
	return a
}

// RegisterRoutes mounts the auth endpoints under /auth. requireAuth guards
// logout and me.
func (a *AuthController) RegisterRoutes(router fiber.Router, requireAuth fiber.Handler) {
	g := router.Group("/auth")
	g.Post(a.Routes.Register, a.Register)
	g.Post(a.Routes.Login, a.Login)
	g.Post(a.Routes.Refresh, a.Refresh)
	g.Post(a.Routes.Logout, requireAuth, a.Logout)
	g.Get(a.Routes.Me, requireAuth, a.Me)
}

// RegistrationPayload is the registration request body
type RegistrationPayload struct {
	Username  string `json:"username" form:"username"`
	Email     string `json:"email" form:"email"`
	Password  string `json:"password" form:"password"`
	FirstName string `json:"firstName" form:"firstName"`
	LastName  string `json:"lastName" form:"lastName"`
	Phone     string `json:"phone" form:"phone"`
}

// Validate will validate the payload
func (r RegistrationPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Username, validation.Length(3, 50), validation.Match(usernamePattern)),
		validation.Field(&r.Email, validation.Required, validation.Length(3, 254), is.Email),
		validation.Field(&r.Password, validation.Required, validation.By(passwordLength(8, 72))),
		validation.Field(&r.FirstName, validation.Length(0, 100)),
		validation.Field(&r.LastName, validation.Length(0, 100)),
		validation.Field(&r.Phone, validation.Length(0, 32)),
	)
}

// LoginPayload is the login request body
type LoginPayload struct {
	Email    string `json:"email" form:"email"`
	Password string `json:"password" form:"password"`
}

// Validate will validate the payload
func (r LoginPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required),
		validation.Field(&r.Password, validation.Required),
	)
}

// RefreshPayload is the refresh request body
type RefreshPayload struct {
	RefreshToken string `json:"refreshToken" form:"refreshToken"`
}

type RegisteredUser struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

type UserSummary struct {
	ID        string   `json:"id"`
	Username  string   `json:"username"`
	Email     string   `json:"email"`
	FirstName string   `json:"firstName"`
	LastName  string   `json:"lastName"`
	Roles     []string `json:"roles"`
}

type LoginResponse struct {
	User         UserSummary `json:"user"`
	AccessToken  string      `json:"accessToken"`
	RefreshToken string      `json:"refreshToken"`
}

type RefreshResponse struct {
	AccessToken string `json:"accessToken"`
}

type Profile struct {
	ID          string     `json:"id"`
	Username    string     `json:"username"`
	Email       string     `json:"email"`
	FirstName   string     `json:"firstName"`
	LastName    string     `json:"lastName"`
	Phone       string     `json:"phone,omitempty"`
	IsActive    bool       `json:"isActive"`
	LastLoginAt *time.Time `json:"lastLoginAt,omitempty"`
	CreatedAt   *time.Time `json:"createdAt,omitempty"`
	Roles       []string   `json:"roles"`
	Permissions []string   `json:"permissions"`
}

func (a *AuthController) Register(c *fiber.Ctx) error {
	payload := new(RegistrationPayload)
	if err := c.BodyParser(payload); err != nil {
		a.Logger.Debug("register user parse payload", "error", err)
		return fmt.Errorf("%w: unable to parse body: %v", ErrValidation, err)
	}

	if err := payload.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrValidation, err)
	}

	phone, err := NormalizePhone(payload.Phone, a.PhoneRegion)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrValidation, validation.Errors{"phone": err})
	}

	user, err := a.Service.Register(c.UserContext(), RegisterUserMessage{
		FirstName: payload.FirstName,
		LastName:  payload.LastName,
		Username:  payload.Username,
		Email:     payload.Email,
		Phone:     phone,
		Password:  payload.Password,
	})
	if err != nil {
		return err
	}

	return RespondOK(c, fiber.StatusCreated, "User registered successfully", RegisteredUser{
		ID:       user.UserID(),
		Username: user.Username,
		Email:    user.Email,
	})
}

func (a *AuthController) Login(c *fiber.Ctx) error {
	payload := new(LoginPayload)
	if err := c.BodyParser(payload); err != nil {
		a.Logger.Debug("login parse payload", "error", err)
		return fmt.Errorf("%w: unable to parse body: %v", ErrValidation, err)
	}

	if err := payload.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrValidation, err)
	}

	res, err := a.Service.Login(c.UserContext(), payload.Email, payload.Password)
	if err != nil {
		return err
	}

	return RespondOK(c, fiber.StatusOK, "Login successful", LoginResponse{
		User:         summarizeUser(res.User),
		AccessToken:  res.AccessToken,
		RefreshToken: res.RefreshToken,
	})
}

func (a *AuthController) Refresh(c *fiber.Ctx) error {
	payload := new(RefreshPayload)
	if err := c.BodyParser(payload); err != nil {
		a.Logger.Debug("refresh parse payload", "error", err)
	}

	if strings.TrimSpace(payload.RefreshToken) == "" {
		return RespondError(c, fiber.StatusBadRequest, ErrMissingToken)
	}

	token, err := a.Service.Refresh(c.UserContext(), payload.RefreshToken)
	if err != nil {
		return err
	}

	return RespondOK(c, fiber.StatusOK, "Token refreshed successfully", RefreshResponse{
		AccessToken: token,
	})
}

// Logout is acknowledged only. Clients discard their tokens.
func (a *AuthController) Logout(c *fiber.Ctx) error {
	identity, ok := IdentityFromFiber(c)
	if !ok {
		return ErrUnauthenticated
	}
	a.Service.Logout(c.UserContext(), identity)
	return RespondOK(c, fiber.StatusOK, "Logout successful", nil)
}

func (a *AuthController) Me(c *fiber.Ctx) error {
	identity, ok := IdentityFromFiber(c)
	if !ok {
		return ErrUnauthenticated
	}

	user, err := a.Service.Me(c.UserContext(), identity.ID())
	if err != nil {
		if errors.Is(err, ErrIdentityNotFound) {
			return RespondError(c, fiber.StatusNotFound, err)
		}
		return err
	}

	return RespondOK(c, fiber.StatusOK, "", Profile{
		ID:          user.UserID(),
		Username:    user.Username,
		Email:       user.Email,
		FirstName:   user.FirstName,
		LastName:    user.LastName,
		Phone:       user.Phone,
		IsActive:    user.IsActive,
		LastLoginAt: user.LastLoginAt,
		CreatedAt:   user.CreatedAt,
		Roles:       user.RoleCodes(),
		Permissions: user.PermissionCodes(),
	})
}

func summarizeUser(user *User) UserSummary {
	return UserSummary{
		ID:        user.UserID(),
		Username:  user.Username,
		Email:     user.Email,
		FirstName: user.FirstName,
		LastName:  user.LastName,
		Roles:     user.RoleCodes(),
	}
}

func passwordLength(min, max int) validation.RuleFunc {
	return func(value any) error {
		s, _ := value.(string)
		if len(s) < min || len(s) > max {
			return fmt.Errorf("the length must be between %d and %d bytes", min, max)
		}
		return nil
	}
}
