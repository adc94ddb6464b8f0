package auth

import (
	goerrors "github.com/goliatone/go-errors"
)

// Text codes carried in error envelopes
const (
	TextCodeMissingToken       = "MissingToken"
	TextCodeInvalidToken       = "InvalidToken"
	TextCodeExpiredToken       = "ExpiredToken"
	TextCodeUnauthenticated    = "Unauthenticated"
	TextCodeForbidden          = "Forbidden"
	TextCodeInvalidCredentials = "InvalidCredentials"
	TextCodeDuplicateIdentity  = "DuplicateIdentity"
	TextCodeIdentityNotFound   = "IdentityNotFound"
	TextCodeValidation         = "ValidationFailed"
	TextCodeRoleNotFound       = "RoleNotFound"
	TextCodeInsecureConfig     = "InsecureConfig"
	TextCodeInternal           = "InternalError"
)

// ErrMissingToken is returned when a request carries no usable bearer token
var ErrMissingToken = goerrors.New("missing or malformed token", goerrors.CategoryAuth).
	WithTextCode(TextCodeMissingToken).
	WithCode(goerrors.CodeUnauthorized)

// ErrInvalidToken is returned for tokens with a bad signature or shape
var ErrInvalidToken = goerrors.New("invalid token", goerrors.CategoryAuth).
	WithTextCode(TextCodeInvalidToken).
	WithCode(goerrors.CodeUnauthorized)

// ErrExpiredToken is returned for correctly signed tokens past their expiry
var ErrExpiredToken = goerrors.New("token has expired", goerrors.CategoryAuth).
	WithTextCode(TextCodeExpiredToken).
	WithCode(goerrors.CodeUnauthorized)

// ErrUnauthenticated is returned by guards when no identity is attached
var ErrUnauthenticated = goerrors.New("authentication required", goerrors.CategoryAuth).
	WithTextCode(TextCodeUnauthenticated).
	WithCode(goerrors.CodeUnauthorized)

// ErrForbidden is returned when the identity lacks every required permission
var ErrForbidden = goerrors.New("insufficient permissions", goerrors.CategoryAuthz).
	WithTextCode(TextCodeForbidden).
	WithCode(goerrors.CodeForbidden)

// ErrInvalidCredentials is the single answer for any failed login
var ErrInvalidCredentials = goerrors.New("invalid email or password", goerrors.CategoryAuth).
	WithTextCode(TextCodeInvalidCredentials).
	WithCode(goerrors.CodeUnauthorized)

// ErrDuplicateIdentity is returned when the email or username is taken
var ErrDuplicateIdentity = goerrors.New("user with this email or username already exists", goerrors.CategoryConflict).
	WithTextCode(TextCodeDuplicateIdentity).
	WithCode(goerrors.CodeBadRequest)

// ErrIdentityNotFound is the error we return for non found or inactive identities
var ErrIdentityNotFound = goerrors.New("identity not found", goerrors.CategoryAuth).
	WithTextCode(TextCodeIdentityNotFound).
	WithCode(goerrors.CodeUnauthorized)

// ErrValidation wraps payload validation failures
var ErrValidation = goerrors.New("validation failed", goerrors.CategoryValidation).
	WithTextCode(TextCodeValidation).
	WithCode(goerrors.CodeBadRequest)

// ErrRoleNotFound is returned when a role code does not exist
var ErrRoleNotFound = goerrors.New("role not found", goerrors.CategoryNotFound).
	WithTextCode(TextCodeRoleNotFound).
	WithCode(goerrors.CodeNotFound)

// ErrInsecureConfig is returned by Config.Validate for unusable secrets
var ErrInsecureConfig = goerrors.New("insecure auth configuration", goerrors.CategoryValidation).
	WithTextCode(TextCodeInsecureConfig).
	WithCode(goerrors.CodeInternal)

// ErrNoEmptyString is returned when hashing an empty password
var ErrNoEmptyString = goerrors.New("password must not be empty", goerrors.CategoryBadInput).
	WithTextCode(TextCodeValidation).
	WithCode(goerrors.CodeBadRequest)

// ErrMismatchedHashAndPassword is returned when a password does not match its hash
var ErrMismatchedHashAndPassword = goerrors.New("password does not match hash", goerrors.CategoryAuth).
	WithTextCode(TextCodeInvalidCredentials).
	WithCode(goerrors.CodeUnauthorized)

// RichError returns the first error in the chain that carries a response
// code. Anything else is reported as an internal error wrapping err.
func RichError(err error) *goerrors.Error {
	var rich *goerrors.Error
	for e := err; e != nil && goerrors.As(e, &rich); e = rich.Source {
		if rich.Code > 0 {
			return rich
		}
	}
	return goerrors.Wrap(err, goerrors.CategoryInternal, "internal server error").
		WithTextCode(TextCodeInternal).
		WithCode(goerrors.CodeInternal)
}

// ErrorCode returns the stable code used in error payloads
func ErrorCode(err error) string {
	return RichError(err).TextCode
}

// HTTPStatus maps an error to its response status. Unknown errors are 500.
func HTTPStatus(err error) int {
	return RichError(err).Code
}

// PublicMessage returns the message safe to send to clients. Wrapped
// details stay in the logs.
func PublicMessage(err error) string {
	return RichError(err).Message
}

// IsTokenExpiredError will check for expired tokens
func IsTokenExpiredError(err error) bool {
	return goerrors.Is(err, ErrExpiredToken)
}

// IsAuthError reports whether err is an authentication or authorization
// failure
func IsAuthError(err error) bool {
	if err == nil {
		return false
	}
	switch RichError(err).Category {
	case goerrors.CategoryAuth, goerrors.CategoryAuthz:
		return true
	}
	return false
}
