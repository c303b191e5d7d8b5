package chat_test

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jrsteele09/dortmed-client/chat"
	"github.com/jrsteele09/dortmed-client/credentials"
	credentialsrepofake "github.com/jrsteele09/dortmed-client/credentials/repofake"
	apperrors "github.com/jrsteele09/dortmed-client/internal/errors"
	"github.com/jrsteele09/dortmed-client/internal/fakebackend"
	"github.com/jrsteele09/dortmed-client/profile"
	"github.com/jrsteele09/dortmed-client/session"
	"github.com/jrsteele09/dortmed-client/transport"
	"github.com/stretchr/testify/require"
)

const email = "ada@example.com"

type testFixture struct {
	backend *fakebackend.Backend
	client  *session.Client
	dialer  *chat.Dialer
}

func setupTestFixture(t *testing.T) *testFixture {
	t.Helper()
	b, err := fakebackend.New()
	require.NoError(t, err)
	server := httptest.NewServer(b.Handler())
	t.Cleanup(server.Close)

	b.AddAccount(fakebackend.Account{UID: "u-1", Email: email, EmailVerified: true, HasProfile: true, Role: profile.RolePatient})

	sess, err := session.New(credentialsrepofake.NewFakeCredentialsRepo())
	require.NoError(t, err)
	client, err := session.NewClient(transport.New(server.URL+fakebackend.APIPrefix), sess)
	require.NoError(t, err)

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + fakebackend.APIPrefix
	dialer, err := chat.NewDialer(wsURL, sess)
	require.NoError(t, err)

	return &testFixture{backend: b, client: client, dialer: dialer}
}

func (f *testFixture) login(t *testing.T) {
	t.Helper()
	access, refresh, err := f.backend.IssueSession(email)
	require.NoError(t, err)
	require.NoError(t, f.client.Establish(context.Background(), credentials.New(access, refresh)))
}

func receive(t *testing.T, c *chat.Conn) chat.Message {
	t.Helper()
	select {
	case m, ok := <-c.Messages():
		require.True(t, ok, "connection closed")
		return m
	case <-time.After(2 * time.Second):
		t.Fatal("no message received")
	}
	return chat.Message{}
}

func TestDial_SendAndReceive(t *testing.T) {
	f := setupTestFixture(t)
	f.login(t)
	ctx := context.Background()

	conn, err := f.dialer.Dial(ctx, "c-42")
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.Send(ctx, "hello doctor"))
	m := receive(t, conn)
	require.Equal(t, "c-42", m.ConversationID)
	require.Equal(t, "u-1", m.SenderID)
	require.Equal(t, "hello doctor", m.Content)
	require.False(t, m.Timestamp.IsZero())

	require.NoError(t, conn.Send(ctx, "second"))
	require.Equal(t, "second", receive(t, conn).Content)
}

func TestConn_SendAfterClose(t *testing.T) {
	f := setupTestFixture(t)
	f.login(t)
	ctx := context.Background()

	conn, err := f.dialer.Dial(ctx, "c-1")
	require.NoError(t, err)
	require.NoError(t, conn.Close())
	require.NoError(t, conn.Close())

	require.ErrorIs(t, conn.Send(ctx, "late"), apperrors.ErrNotConnected)
	require.Eventually(t, func() bool {
		select {
		case _, ok := <-conn.Messages():
			return !ok
		default:
			return false
		}
	}, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, conn.Err())
}

func TestDial_RequiresSession(t *testing.T) {
	f := setupTestFixture(t)

	_, err := f.dialer.Dial(context.Background(), "c-1")
	require.ErrorIs(t, err, apperrors.ErrNoSession)
	require.Zero(t, f.backend.Calls(fakebackend.CallChat))
}

func TestDial_RejectedToken(t *testing.T) {
	f := setupTestFixture(t)
	require.NoError(t, f.client.Establish(context.Background(), credentials.New("not-a-token", "")))

	_, err := f.dialer.Dial(context.Background(), "c-1")
	require.Error(t, err)
	require.True(t, chat.IsForbidden(err))
	require.Equal(t, 1, f.backend.Calls(fakebackend.CallChat))
}

func TestConn_ClosedOnLogout(t *testing.T) {
	f := setupTestFixture(t)
	f.login(t)
	ctx := context.Background()

	conn, err := f.dialer.Dial(ctx, "c-7")
	require.NoError(t, err)

	require.NoError(t, f.client.Logout(ctx))
	select {
	case <-conn.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("connection still open after logout")
	}
	require.ErrorIs(t, conn.Send(ctx, "anyone?"), apperrors.ErrNotConnected)
}

func TestNewDialer_Validation(t *testing.T) {
	sess, err := session.New(credentialsrepofake.NewFakeCredentialsRepo())
	require.NoError(t, err)

	_, err = chat.NewDialer("http://localhost/api", sess)
	require.Error(t, err)
	_, err = chat.NewDialer("ws://localhost/api", nil)
	require.Error(t, err)

	d, err := chat.NewDialer("wss://api.dortmed.example/api/", sess)
	require.NoError(t, err)
	require.Equal(t, "wss://api.dortmed.example/api/chat/ws/c%201?token=a.b.c", d.URL("c 1", "a.b.c"))
}
