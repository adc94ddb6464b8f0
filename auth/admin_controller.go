package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// AdminController manages identities and roles behind permission guards
type AdminController struct {
	Repo     RepositoryManager
	Logger   Logger
	Activity ActivitySink
}

func NewAdminController(repo RepositoryManager) *AdminController {
	return &AdminController{
		Repo:     repo,
		Logger:   defLogger{},
		Activity: noopActivitySink{},
	}
}

func (a *AdminController) WithLogger(logger Logger) *AdminController {
	a.Logger = normalizeLogger(logger)
	return a
}

func (a *AdminController) WithActivitySink(sink ActivitySink) *AdminController {
	a.Activity = normalizeActivitySink(sink)
	return a
}

// RegisterRoutes mounts the admin endpoints under /admin
func (a *AdminController) RegisterRoutes(router fiber.Router, requireAuth fiber.Handler) {
	g := router.Group("/admin", requireAuth)
	g.Get("/users", Require(PermUsersRead), a.ListUsers)
	g.Post("/users/:id/roles", Require(PermUsersWrite), a.AssignRole)
	g.Post("/users/:id/deactivate", Require(PermUsersWrite), a.DeactivateUser)
	g.Delete("/users/:id", Require(PermUsersWrite), a.DeleteUser)
	g.Get("/roles", Require(PermRolesRead), a.ListRoles)
}

type AdminUser struct {
	ID          string     `json:"id"`
	Username    string     `json:"username"`
	Email       string     `json:"email"`
	FirstName   string     `json:"firstName"`
	LastName    string     `json:"lastName"`
	IsActive    bool       `json:"isActive"`
	LastLoginAt *time.Time `json:"lastLoginAt,omitempty"`
	CreatedAt   *time.Time `json:"createdAt,omitempty"`
	Roles       []string   `json:"roles"`
}

type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"pageSize"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

type UserPage struct {
	Items      []AdminUser `json:"items"`
	Pagination Pagination  `json:"pagination"`
}

type RoleView struct {
	ID          string   `json:"id"`
	Code        string   `json:"code"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Permissions []string `json:"permissions"`
}

// AssignRolePayload is the role assignment request body
type AssignRolePayload struct {
	RoleCode string `json:"roleCode" form:"roleCode"`
}

// Validate will validate the payload
func (r AssignRolePayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.RoleCode, validation.Required, validation.Length(1, 50)),
	)
}

func (a *AdminController) ListUsers(c *fiber.Ctx) error {
	opts := ListOptions{
		Page:     c.QueryInt("page", 1),
		PageSize: c.QueryInt("pageSize", defaultPageSize),
	}.normalize()

	records, total, err := a.Repo.Users().List(c.UserContext(), opts)
	if err != nil {
		return err
	}

	items := make([]AdminUser, 0, len(records))
	for _, u := range records {
		items = append(items, AdminUser{
			ID:          u.UserID(),
			Username:    u.Username,
			Email:       u.Email,
			FirstName:   u.FirstName,
			LastName:    u.LastName,
			IsActive:    u.IsActive,
			LastLoginAt: u.LastLoginAt,
			CreatedAt:   u.CreatedAt,
			Roles:       u.RoleCodes(),
		})
	}

	totalPages := (total + opts.PageSize - 1) / opts.PageSize

	return RespondOK(c, fiber.StatusOK, "", UserPage{
		Items: items,
		Pagination: Pagination{
			Page:       opts.Page,
			PageSize:   opts.PageSize,
			Total:      total,
			TotalPages: totalPages,
		},
	})
}

func (a *AdminController) AssignRole(c *fiber.Ctx) error {
	id, err := userIDParam(c)
	if err != nil {
		return err
	}

	payload := new(AssignRolePayload)
	if err := c.BodyParser(payload); err != nil {
		return fmt.Errorf("%w: unable to parse body: %v", ErrValidation, err)
	}
	if err := payload.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrValidation, err)
	}

	ctx := c.UserContext()
	user, err := a.Repo.Users().GetByID(ctx, id)
	if err != nil {
		return a.notFound(c, err)
	}

	role, err := a.Repo.Roles().GetByCode(ctx, strings.ToUpper(strings.TrimSpace(payload.RoleCode)))
	if err != nil {
		return err
	}

	if err := a.Repo.Roles().AssignToUser(ctx, user.ID, role.ID); err != nil {
		return err
	}

	a.record(c, ActivityEvent{
		EventType: ActivityEventRoleAssigned,
		UserID:    user.UserID(),
		Metadata:  map[string]any{"role": role.Code},
	})

	return RespondOK(c, fiber.StatusOK, "Role assigned", fiber.Map{
		"userId": user.UserID(),
		"role":   role.Code,
	})
}

func (a *AdminController) DeactivateUser(c *fiber.Ctx) error {
	id, err := userIDParam(c)
	if err != nil {
		return err
	}

	if err := a.Repo.Users().Deactivate(c.UserContext(), id); err != nil {
		return a.notFound(c, err)
	}

	a.record(c, ActivityEvent{EventType: ActivityEventDeactivated, UserID: id.String()})
	return RespondOK(c, fiber.StatusOK, "User deactivated", nil)
}

func (a *AdminController) DeleteUser(c *fiber.Ctx) error {
	id, err := userIDParam(c)
	if err != nil {
		return err
	}

	if identity, ok := IdentityFromFiber(c); ok && identity.ID() == id.String() {
		return fmt.Errorf("%w: cannot delete your own account", ErrValidation)
	}

	if err := a.Repo.Users().SoftDelete(c.UserContext(), id); err != nil {
		return a.notFound(c, err)
	}

	a.record(c, ActivityEvent{EventType: ActivityEventDeleted, UserID: id.String()})
	return RespondOK(c, fiber.StatusOK, "User deleted", nil)
}

func (a *AdminController) ListRoles(c *fiber.Ctx) error {
	records, err := a.Repo.Roles().List(c.UserContext())
	if err != nil {
		return err
	}

	out := make([]RoleView, 0, len(records))
	for _, r := range records {
		out = append(out, RoleView{
			ID:          r.ID.String(),
			Code:        r.Code,
			Name:        r.Name,
			Description: r.Description,
			Permissions: r.PermissionCodes(),
		})
	}
	return RespondOK(c, fiber.StatusOK, "", out)
}

func (a *AdminController) notFound(c *fiber.Ctx, err error) error {
	if errors.Is(err, ErrIdentityNotFound) {
		return RespondError(c, fiber.StatusNotFound, err)
	}
	return err
}

func (a *AdminController) record(c *fiber.Ctx, event ActivityEvent) {
	if identity, ok := IdentityFromFiber(c); ok {
		event.ActorID = identity.ID()
	}
	event.OccurredAt = time.Now().UTC()
	if err := a.Activity.Record(c.UserContext(), event); err != nil {
		a.Logger.Warn("activity sink failed", "event", string(event.EventType), "error", err)
	}
}

func userIDParam(c *fiber.Ctx) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %w", ErrValidation, validation.Errors{"id": err})
	}
	return id, nil
}
