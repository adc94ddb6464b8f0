package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	goerrors "github.com/goliatone/go-errors"

	"github.com/goliatone/go-wms/middleware/jwtware"
)

var hmacMethods = []string{
	jwt.SigningMethodHS256.Alg(),
	jwt.SigningMethodHS384.Alg(),
	jwt.SigningMethodHS512.Alg(),
}

// TokenService issues and verifies access and refresh tokens. It keeps no
// state: issued tokens stay valid until they expire.
type TokenService interface {
	IssueAccessToken(identity Identity) (string, error)
	IssueRefreshToken(identity Identity) (string, error)
	Verify(token string, secret []byte) (*JWTClaims, error)
	Validate(token string) (jwtware.AuthClaims, error)
	Refresh(refreshToken string) (string, error)
}

// TokenServiceImpl implements the TokenService interface
type TokenServiceImpl struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	issuer        string
	logger        Logger
	now           func() time.Time
}

var _ TokenService = (*TokenServiceImpl)(nil)

// TokenServiceOption configures a TokenServiceImpl
type TokenServiceOption func(*TokenServiceImpl)

// WithTokenLogger sets the logger
func WithTokenLogger(logger Logger) TokenServiceOption {
	return func(ts *TokenServiceImpl) {
		ts.logger = normalizeLogger(logger)
	}
}

// WithTokenClock overrides the clock used for issuing and validating
func WithTokenClock(now func() time.Time) TokenServiceOption {
	return func(ts *TokenServiceImpl) {
		if now != nil {
			ts.now = now
		}
	}
}

// NewTokenService creates a new TokenService instance. It fails when cfg
// does not pass Config.Validate.
func NewTokenService(cfg Config, opts ...TokenServiceOption) (*TokenServiceImpl, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	ts := &TokenServiceImpl{
		accessSecret:  []byte(cfg.AccessTokenSecret),
		refreshSecret: []byte(cfg.RefreshTokenSecret),
		accessTTL:     cfg.AccessTokenTTL,
		refreshTTL:    cfg.RefreshTokenTTL,
		issuer:        cfg.Issuer,
		logger:        defLogger{},
		now:           time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(ts)
		}
	}
	return ts, nil
}

// IssueAccessToken signs a short lived token with the access secret
func (ts *TokenServiceImpl) IssueAccessToken(identity Identity) (string, error) {
	return ts.issue(identity, ts.accessSecret, ts.accessTTL)
}

// IssueRefreshToken signs a long lived token with the refresh secret
func (ts *TokenServiceImpl) IssueRefreshToken(identity Identity) (string, error) {
	return ts.issue(identity, ts.refreshSecret, ts.refreshTTL)
}

func (ts *TokenServiceImpl) issue(identity Identity, secret []byte, ttl time.Duration) (string, error) {
	if identity == nil || identity.UserID() == "" {
		return "", fmt.Errorf("issue token: %w", ErrIdentityNotFound)
	}

	now := ts.now()
	claims := &JWTClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    ts.issuer,
			Subject:   identity.UserID(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		UID:   identity.UserID(),
		Email: identity.UserEmail(),
	}

	ensureTokenID(&claims.RegisteredClaims)

	return ts.sign(claims, secret)
}

func (ts *TokenServiceImpl) sign(claims *JWTClaims, secret []byte) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	signed, err := token.SignedString(secret)
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to sign JWT")
	}
	return signed, nil
}

// Verify parses a token signed with secret. Expiry is enforced even when the
// signature is valid.
func (ts *TokenServiceImpl) Verify(tokenString string, secret []byte) (*JWTClaims, error) {
	if strings.TrimSpace(tokenString) == "" {
		return nil, ErrMissingToken
	}

	parserOptions := []jwt.ParserOption{
		jwt.WithValidMethods(hmacMethods),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(ts.now),
	}
	if ts.issuer != "" {
		parserOptions = append(parserOptions, jwt.WithIssuer(ts.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			ts.logger.Error("TokenService verify encountered unexpected signing method", "alg", t.Header["alg"])
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return secret, nil
	}, parserOptions...)

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		ts.logger.Debug("TokenService rejected token", "error", err)
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*JWTClaims)
	if !ok || !token.Valid || claims.UserID() == "" {
		ts.logger.Error("TokenService verify could not decode claims")
		return nil, ErrInvalidToken
	}

	return claims, nil
}

// VerifyAccessToken verifies a token against the access secret
func (ts *TokenServiceImpl) VerifyAccessToken(tokenString string) (*JWTClaims, error) {
	return ts.Verify(tokenString, ts.accessSecret)
}

// VerifyRefreshToken verifies a token against the refresh secret
func (ts *TokenServiceImpl) VerifyRefreshToken(tokenString string) (*JWTClaims, error) {
	return ts.Verify(tokenString, ts.refreshSecret)
}

// Validate implements jwtware.TokenValidator using the access secret
func (ts *TokenServiceImpl) Validate(tokenString string) (jwtware.AuthClaims, error) {
	claims, err := ts.VerifyAccessToken(tokenString)
	if err != nil {
		return nil, err
	}
	return claims, nil
}

// Refresh mints a new access token for the subject of a valid refresh token
func (ts *TokenServiceImpl) Refresh(refreshToken string) (string, error) {
	claims, err := ts.VerifyRefreshToken(refreshToken)
	if err != nil {
		return "", err
	}
	return ts.IssueAccessToken(claims)
}
