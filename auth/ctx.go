package auth

import (
	"context"

	"github.com/gofiber/fiber/v2"
)

var identityCtxKey = &contextKey{"identity"}

type contextKey struct {
	name string
}

// WithIdentity sets the IdentityContext in the given context
func WithIdentity(ctx context.Context, identity IdentityContext) context.Context {
	return context.WithValue(ctx, identityCtxKey, identity)
}

// IdentityFromContext finds the identity in the context. The second value is
// false for anonymous requests.
func IdentityFromContext(ctx context.Context) (IdentityContext, bool) {
	if ctx == nil {
		return IdentityContext{}, false
	}
	identity, ok := ctx.Value(identityCtxKey).(IdentityContext)
	if !ok || identity.IsZero() {
		return IdentityContext{}, false
	}
	return identity, true
}

// IdentityFromFiber reads the identity attached by the auth middleware
func IdentityFromFiber(c *fiber.Ctx) (IdentityContext, bool) {
	return IdentityFromContext(c.UserContext())
}

// Can is a convenience function to check a permission directly from the standard context
func Can(ctx context.Context, permission string) bool {
	identity, ok := IdentityFromContext(ctx)
	if !ok {
		return false
	}
	return identity.HasPermission(permission)
}
