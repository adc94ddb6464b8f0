// Package auth provides the identity core of the warehouse backend (JWT
// issuance, bun backed repositories, fiber handlers) plus the guards other
// feature modules mount in front of their routes.
//
// Identities and grants:
//   - Users hold zero or more Roles and Roles hold Permissions. Grants are
//     loaded per request by RequireAuth, so role changes apply to tokens that
//     are already in circulation.
//   - Catalog describes the seeded roles and permissions. DefaultCatalog ships
//     ADMIN, MANAGER and USER; Roles.EnsureCatalog applies it idempotently.
//
// Guards:
//   - RequireAuth verifies the bearer token and attaches an IdentityContext to
//     the request context. Require(codes...) passes when the identity holds any
//     of the codes and denies when none are given.
//
// Activity sinks:
//   - ActivitySink receives register, login, refresh, logout and admin events.
//     Sinks run best-effort (errors are logged) so metrics or audit storage never
//     block authentication.
//
// Errors:
//   - Every failure maps to a sentinel in errors.go. ErrorHandler turns them
//     into the JSON error envelope with a stable code and status.
package auth
