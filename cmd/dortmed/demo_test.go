package main

import (
	"context"
	"testing"
	"time"

	"github.com/jrsteele09/dortmed-client/internal/config"
	"github.com/stretchr/testify/require"
)

func TestRunDemo(t *testing.T) {
	t.Setenv("STORE", "file")
	t.Setenv("STORE_FILE", t.TempDir()+"/session.json")

	c, err := config.New()
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	require.NoError(t, runDemo(ctx, c))
}

func TestNewApp_UnknownStore(t *testing.T) {
	t.Setenv("STORE", "tape")

	c, err := config.New()
	require.NoError(t, err)
	_, err = newApp(context.Background(), c)
	require.Error(t, err)
}

func TestNewApp_MemoryStore(t *testing.T) {
	t.Setenv("STORE", "memory")
	t.Setenv("FIREBASE_API_KEY", "key")

	c, err := config.New()
	require.NoError(t, err)
	a, err := newApp(context.Background(), c)
	require.NoError(t, err)
	defer a.Close()
	require.NotNil(t, a.chatDialer)
	require.False(t, a.client.Session().Active())
}
