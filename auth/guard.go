package auth

import (
	"fmt"
	"slices"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// Require lets the request through when the caller holds ANY of the given
// permission codes. Requests without an identity fail with ErrUnauthenticated,
// the rest with ErrForbidden. Require() with no codes denies everyone.
func Require(permissions ...string) fiber.Handler {
	codes := slices.Clone(permissions)
	return func(c *fiber.Ctx) error {
		identity, ok := IdentityFromFiber(c)
		if !ok {
			return ErrUnauthenticated
		}
		if !identity.HasAnyPermission(codes...) {
			return fmt.Errorf("%w: requires one of [%s]", ErrForbidden, strings.Join(codes, ", "))
		}
		return c.Next()
	}
}
