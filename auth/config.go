package auth

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

const (
	// DefaultAccessTokenSecret is the development fallback. Rejected in production.
	DefaultAccessTokenSecret = "your-secret-key"
	// DefaultRefreshTokenSecret is the development fallback. Rejected in production.
	DefaultRefreshTokenSecret = "your-refresh-secret"

	DefaultAccessTokenTTL  = 7 * 24 * time.Hour
	DefaultRefreshTokenTTL = 30 * 24 * time.Hour

	DefaultIssuer      = "go-wms"
	DefaultTokenLookup = "header:Authorization"
	DefaultAuthScheme  = "Bearer"
	DefaultPhoneRegion = "US"

	EnvironmentProduction  = "production"
	EnvironmentDevelopment = "development"
)

// Config holds auth options. Build it once at startup and pass it to the
// constructors that need it.
type Config struct {
	Environment        string
	AccessTokenSecret  string
	AccessTokenTTL     time.Duration
	RefreshTokenSecret string
	RefreshTokenTTL    time.Duration
	Issuer             string
	TokenLookup        string
	AuthScheme         string
	PasswordHashCost   int
	DefaultRoleCode    string
	PhoneRegion        string
}

// DefaultConfig returns a development configuration
func DefaultConfig() Config {
	return Config{
		Environment:        EnvironmentDevelopment,
		AccessTokenSecret:  DefaultAccessTokenSecret,
		AccessTokenTTL:     DefaultAccessTokenTTL,
		RefreshTokenSecret: DefaultRefreshTokenSecret,
		RefreshTokenTTL:    DefaultRefreshTokenTTL,
		Issuer:             DefaultIssuer,
		TokenLookup:        DefaultTokenLookup,
		AuthScheme:         DefaultAuthScheme,
		PasswordHashCost:   DefaultPasswordHashCost,
		DefaultRoleCode:    RoleUser,
		PhoneRegion:        DefaultPhoneRegion,
	}
}

// WithDefaults fills every zero field from DefaultConfig. Secrets are only
// filled outside production.
func (c Config) WithDefaults() Config {
	def := DefaultConfig()
	if strings.TrimSpace(c.Environment) == "" {
		c.Environment = def.Environment
	}
	if !c.IsProduction() {
		if c.AccessTokenSecret == "" {
			c.AccessTokenSecret = def.AccessTokenSecret
		}
		if c.RefreshTokenSecret == "" {
			c.RefreshTokenSecret = def.RefreshTokenSecret
		}
	}
	if c.AccessTokenTTL == 0 {
		c.AccessTokenTTL = def.AccessTokenTTL
	}
	if c.RefreshTokenTTL == 0 {
		c.RefreshTokenTTL = def.RefreshTokenTTL
	}
	if c.Issuer == "" {
		c.Issuer = def.Issuer
	}
	if c.TokenLookup == "" {
		c.TokenLookup = def.TokenLookup
	}
	if c.AuthScheme == "" {
		c.AuthScheme = def.AuthScheme
	}
	if c.PasswordHashCost == 0 {
		c.PasswordHashCost = def.PasswordHashCost
	}
	if c.DefaultRoleCode == "" {
		c.DefaultRoleCode = def.DefaultRoleCode
	}
	if c.PhoneRegion == "" {
		c.PhoneRegion = def.PhoneRegion
	}
	return c
}

// IsProduction reports whether the configuration targets production
func (c Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.Environment), EnvironmentProduction)
}

// UsesFallbackSecrets reports whether either secret is a shipped fallback
func (c Config) UsesFallbackSecrets() bool {
	return c.AccessTokenSecret == DefaultAccessTokenSecret ||
		c.RefreshTokenSecret == DefaultRefreshTokenSecret
}

// Validate checks the configuration. Secrets must be present and distinct,
// in production they must also be set explicitly.
func (c Config) Validate() error {
	if c.AccessTokenSecret == "" {
		return fmt.Errorf("%w: access token secret is required", ErrInsecureConfig)
	}
	if c.RefreshTokenSecret == "" {
		return fmt.Errorf("%w: refresh token secret is required", ErrInsecureConfig)
	}
	if c.AccessTokenSecret == c.RefreshTokenSecret {
		return fmt.Errorf("%w: access and refresh token secrets must differ", ErrInsecureConfig)
	}
	if c.AccessTokenTTL <= 0 {
		return fmt.Errorf("auth config: access token ttl must be positive, got %s", c.AccessTokenTTL)
	}
	if c.RefreshTokenTTL <= 0 {
		return fmt.Errorf("auth config: refresh token ttl must be positive, got %s", c.RefreshTokenTTL)
	}
	if c.PasswordHashCost < bcrypt.MinCost || c.PasswordHashCost > bcrypt.MaxCost {
		return fmt.Errorf("auth config: password hash cost must be within [%d, %d], got %d",
			bcrypt.MinCost, bcrypt.MaxCost, c.PasswordHashCost)
	}

	if !c.IsProduction() {
		return nil
	}

	if c.AccessTokenSecret == DefaultAccessTokenSecret {
		return fmt.Errorf("%w: access token secret must be set explicitly in production", ErrInsecureConfig)
	}
	if c.RefreshTokenSecret == DefaultRefreshTokenSecret {
		return fmt.Errorf("%w: refresh token secret must be set explicitly in production", ErrInsecureConfig)
	}
	return nil
}
