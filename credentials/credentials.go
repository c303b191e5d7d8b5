package credentials

import (
	"context"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	apperrors "github.com/jrsteele09/dortmed-client/internal/errors"
)

// NowTimeFunc returns the current time. It can be overridden in tests.
var NowTimeFunc = time.Now

// Credentials is the backend-issued token pair held for one authenticated session.
// IssuedAt and ExpiresAt are read from the access token's claims when it is a JWT; the
// signature is not checked, the backend remains the authority on validity.
type Credentials struct {
	AccessToken  string
	RefreshToken string
	IssuedAt     time.Time
	ExpiresAt    time.Time // zero when the token carries no exp claim
}

// New builds Credentials from a token pair.
func New(accessToken, refreshToken string) Credentials {
	c := Credentials{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		IssuedAt:     NowTimeFunc(),
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(accessToken, claims); err != nil {
		return c
	}
	if iat, err := claims.GetIssuedAt(); err == nil && iat != nil {
		c.IssuedAt = iat.Time
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		c.ExpiresAt = exp.Time
	}
	return c
}

// CanRefresh reports whether a refresh token is present.
func (c Credentials) CanRefresh() bool {
	return strings.TrimSpace(c.RefreshToken) != ""
}

// Expired reports whether the access token's exp claim is in the past. Tokens without
// an exp claim are never considered expired locally.
func (c Credentials) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && !now.Before(c.ExpiresAt)
}

// Values returns the persisted representation.
func (c Credentials) Values() map[string]string {
	return map[string]string{
		KeyAccessToken:  c.AccessToken,
		KeyRefreshToken: c.RefreshToken,
	}
}

// Load reads persisted credentials. It returns apperrors.ErrNotFound when no access
// token is stored.
func Load(ctx context.Context, repo Repo) (*Credentials, error) {
	access, err := repo.Get(ctx, KeyAccessToken)
	if err != nil {
		return nil, err
	}
	if access == "" {
		return nil, apperrors.ErrNotFound
	}
	refresh, err := repo.Get(ctx, KeyRefreshToken)
	if err != nil && !apperrors.Is(err, apperrors.ErrNotFound) {
		return nil, err
	}
	c := New(access, refresh)
	return &c, nil
}
