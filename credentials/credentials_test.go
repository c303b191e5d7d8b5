package credentials_test

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jrsteele09/dortmed-client/credentials"
	credentialsrepofake "github.com/jrsteele09/dortmed-client/credentials/repofake"
	apperrors "github.com/jrsteele09/dortmed-client/internal/errors"
	"github.com/stretchr/testify/require"
)

func signedToken(t *testing.T, iat, exp time.Time) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "user-1",
		"iat": iat.Unix(),
		"exp": exp.Unix(),
	})
	s, err := tok.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return s
}

func TestNew_DerivesTimesFromJWT(t *testing.T) {
	iat := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	exp := iat.Add(30 * time.Minute)

	c := credentials.New(signedToken(t, iat, exp), "rt-1")
	require.True(t, c.IssuedAt.Equal(iat))
	require.True(t, c.ExpiresAt.Equal(exp))
	require.True(t, c.CanRefresh())
	require.False(t, c.Expired(iat.Add(time.Minute)))
	require.True(t, c.Expired(exp))
}

func TestNew_OpaqueToken(t *testing.T) {
	fixed := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	credentials.NowTimeFunc = func() time.Time { return fixed }
	defer func() { credentials.NowTimeFunc = time.Now }()

	c := credentials.New("opaque-token", " ")
	require.Equal(t, fixed, c.IssuedAt)
	require.True(t, c.ExpiresAt.IsZero())
	require.False(t, c.Expired(fixed.Add(1000*time.Hour)))
	require.False(t, c.CanRefresh())
}

func TestLoad(t *testing.T) {
	ctx := context.Background()
	repo := credentialsrepofake.NewFakeCredentialsRepo()

	_, err := credentials.Load(ctx, repo)
	require.ErrorIs(t, err, apperrors.ErrNotFound)

	require.NoError(t, repo.Upsert(ctx, credentials.New("at-1", "rt-1").Values()))
	c, err := credentials.Load(ctx, repo)
	require.NoError(t, err)
	require.Equal(t, "at-1", c.AccessToken)
	require.Equal(t, "rt-1", c.RefreshToken)
}

func TestValidateKeys(t *testing.T) {
	require.NoError(t, credentials.ValidateKeys(map[string]string{"user": "{}"}))
	require.Error(t, credentials.ValidateKeys(map[string]string{"session": "x"}))
}
