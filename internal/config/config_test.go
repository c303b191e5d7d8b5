package config_test

import (
	"testing"
	"time"

	"github.com/jrsteele09/dortmed-client/internal/config"
	"github.com/stretchr/testify/require"
)

func TestNew_Defaults(t *testing.T) {
	c, err := config.New()
	require.NoError(t, err)

	require.Equal(t, "http://localhost:8000/api", c.GetAPIURL())
	require.Equal(t, "ws://localhost:8000/api", c.GetWSURL())
	require.Equal(t, 30*time.Second, c.GetRequestTimeout())
	require.Equal(t, "/login", c.GetLoginPath())
	require.Empty(t, c.GetLogoutPath())
	require.Equal(t, config.StoreFile, c.GetStoreType())
	require.Equal(t, config.ProviderFirebase, c.GetIdentityProvider())
}

func TestNew_FromEnvironment(t *testing.T) {
	t.Setenv("API_URL", "https://api.dortmed.example/api/")
	t.Setenv("REFRESH_TIMEOUT", "2s")
	t.Setenv("STORE", "redis")
	t.Setenv("LOGOUT_PATH", "/auth/logout")

	c, err := config.New()
	require.NoError(t, err)

	require.Equal(t, "https://api.dortmed.example/api", c.GetAPIURL())
	require.Equal(t, "wss://api.dortmed.example/api", c.GetWSURL())
	require.Equal(t, 2*time.Second, c.GetRefreshTimeout())
	require.Equal(t, config.StoreRedis, c.GetStoreType())
	require.Equal(t, "/auth/logout", c.GetLogoutPath())
}

func TestNew_InvalidDuration(t *testing.T) {
	t.Setenv("REQUEST_TIMEOUT", "soon")
	_, err := config.New()
	require.Error(t, err)
}
