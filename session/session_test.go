package session_test

import (
	"context"
	"testing"

	"github.com/jrsteele09/dortmed-client/credentials"
	credentialsrepofake "github.com/jrsteele09/dortmed-client/credentials/repofake"
	apperrors "github.com/jrsteele09/dortmed-client/internal/errors"
	"github.com/jrsteele09/dortmed-client/profile"
	"github.com/jrsteele09/dortmed-client/session"
	"github.com/jrsteele09/dortmed-client/transport"
	"github.com/stretchr/testify/require"
)

func newSession(t *testing.T, repo credentials.Repo, opts ...session.Option) (*session.Session, *session.Client) {
	t.Helper()
	sess, err := session.New(repo, opts...)
	require.NoError(t, err)
	client, err := session.NewClient(transport.New("http://127.0.0.1:1"), sess)
	require.NoError(t, err)
	return sess, client
}

func TestSession_ProfileRequiresCredentials(t *testing.T) {
	sess, _ := newSession(t, credentialsrepofake.NewFakeCredentialsRepo())

	err := sess.SetProfile(context.Background(), &profile.Profile{ID: "u-1", Role: profile.RolePatient})
	require.ErrorIs(t, err, apperrors.ErrNoSession)
	require.Nil(t, sess.Profile())
}

func TestSession_EstablishDropsPreviousProfile(t *testing.T) {
	repo := credentialsrepofake.NewFakeCredentialsRepo()
	sess, client := newSession(t, repo)
	ctx := context.Background()

	require.NoError(t, client.Establish(ctx, credentials.New("a1", "r1")))
	require.NoError(t, sess.SetProfile(ctx, &profile.Profile{ID: "u-1", Role: profile.RolePatient}))
	require.NotNil(t, sess.Profile())

	require.NoError(t, client.Establish(ctx, credentials.New("a2", "r2")))
	require.Nil(t, sess.Profile())
	_, err := repo.Get(ctx, credentials.KeyUser)
	require.ErrorIs(t, err, apperrors.ErrNotFound)

	require.Error(t, client.Establish(ctx, credentials.Credentials{}))
}

func TestSession_ProfileIsACopy(t *testing.T) {
	sess, client := newSession(t, credentialsrepofake.NewFakeCredentialsRepo())
	ctx := context.Background()
	require.NoError(t, client.Establish(ctx, credentials.New("a1", "r1")))

	p := &profile.Profile{ID: "u-1", Role: profile.RolePatient, FeatureFlags: map[string]bool{"chat": true}}
	require.NoError(t, sess.SetProfile(ctx, p))
	p.FeatureFlags["chat"] = false

	got := sess.Profile()
	require.True(t, got.FeatureEnabled("chat"))
	got.FeatureFlags["chat"] = false
	require.True(t, sess.Profile().FeatureEnabled("chat"))
}

func TestSession_Restore(t *testing.T) {
	ctx := context.Background()
	repo := credentialsrepofake.NewFakeCredentialsRepo()

	sess, _ := newSession(t, repo)
	ok, err := sess.Restore(ctx)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, repo.Upsert(ctx, map[string]string{
		credentials.KeyAccessToken:  "a1",
		credentials.KeyRefreshToken: "r1",
		credentials.KeyUser:         `{"id":"u-1","role":"physician","feature_flags":{}}`,
	}))
	ok, err = sess.Restore(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	creds, active := sess.Credentials()
	require.True(t, active)
	require.Equal(t, "r1", creds.RefreshToken)
	require.Equal(t, profile.RolePhysician, sess.Profile().Role)
}

func TestSession_RestoreIgnoresBadProfile(t *testing.T) {
	ctx := context.Background()
	repo := credentialsrepofake.NewFakeCredentialsRepo()
	require.NoError(t, repo.Upsert(ctx, map[string]string{
		credentials.KeyAccessToken: "a1",
		credentials.KeyUser:        `{"id":"u-1","role":"nurse"}`,
	}))

	sess, _ := newSession(t, repo)
	ok, err := sess.Restore(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Nil(t, sess.Profile())
}

func TestSession_SubscribeAndPush(t *testing.T) {
	ctx := context.Background()
	sess, client := newSession(t, credentialsrepofake.NewFakeCredentialsRepo(), session.WithLoginPath("/signin"))

	var pushes []session.PushMessage
	var ended []session.Ended
	unsubscribe := sess.Subscribe(func(e session.Event) {
		switch ev := e.(type) {
		case session.PushMessage:
			pushes = append(pushes, ev)
		case session.Ended:
			ended = append(ended, ev)
		}
	})

	msg := session.PushMessage{Title: "Appointment", Body: "Starts in 10 minutes"}
	require.False(t, sess.DeliverPush(msg))

	require.NoError(t, client.Establish(ctx, credentials.New("a1", "r1")))
	require.False(t, sess.DeliverPush(msg))

	require.NoError(t, sess.SetProfile(ctx, &profile.Profile{ID: "u-1", Role: profile.RolePatient}))
	require.True(t, sess.DeliverPush(msg))
	require.Equal(t, []session.PushMessage{msg}, pushes)

	require.NoError(t, client.Logout(ctx))
	require.Len(t, ended, 1)
	require.Equal(t, "/signin", ended[0].Redirect)

	unsubscribe()
	unsubscribe()
	require.NoError(t, client.Establish(ctx, credentials.New("a1", "r1")))
	require.NoError(t, client.Logout(ctx))
	require.Len(t, ended, 1)
}

func TestSession_NewValidation(t *testing.T) {
	_, err := session.New(nil)
	require.Error(t, err)
}
