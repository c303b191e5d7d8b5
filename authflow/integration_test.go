package authflow_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jrsteele09/dortmed-client/authflow"
	credentialsrepofake "github.com/jrsteele09/dortmed-client/credentials/repofake"
	"github.com/jrsteele09/dortmed-client/identity/firebase"
	apperrors "github.com/jrsteele09/dortmed-client/internal/errors"
	"github.com/jrsteele09/dortmed-client/internal/fakebackend"
	"github.com/jrsteele09/dortmed-client/profile"
	"github.com/jrsteele09/dortmed-client/session"
	"github.com/jrsteele09/dortmed-client/transport"
	"github.com/stretchr/testify/require"
)

type stackFixture struct {
	backend *fakebackend.Backend
	repo    *credentialsrepofake.FakeCredentialsRepo
	client  *session.Client
	flow    *authflow.Flow
}

func setupStackFixture(t *testing.T, opts ...fakebackend.Option) *stackFixture {
	t.Helper()
	b, err := fakebackend.New(opts...)
	require.NoError(t, err)
	server := httptest.NewServer(b.Handler())
	t.Cleanup(server.Close)

	provider, err := firebase.New("test-key", transport.New(server.URL+fakebackend.ToolkitPrefix))
	require.NoError(t, err)

	repo := credentialsrepofake.NewFakeCredentialsRepo()
	sess, err := session.New(repo)
	require.NoError(t, err)
	client, err := session.NewClient(transport.New(server.URL+fakebackend.APIPrefix), sess,
		session.WithLogoutPath(fakebackend.RouteLogout))
	require.NoError(t, err)
	flow, err := authflow.New(provider, client)
	require.NoError(t, err)

	return &stackFixture{backend: b, repo: repo, client: client, flow: flow}
}

func TestStack_LoginRefreshLogout(t *testing.T) {
	f := setupStackFixture(t)
	f.backend.AddAccount(fakebackend.Account{
		UID:           "u-1",
		Email:         email,
		Password:      password,
		EmailVerified: true,
		HasProfile:    true,
		Role:          profile.RolePhysician,
		Plan:          profile.PlanPremium,
		FeatureFlags:  map[string]bool{"ai_diagnosis": true},
		OTP:           validOTP,
	})
	ctx := context.Background()

	state, err := f.flow.Submit(ctx, email, password)
	require.NoError(t, err)
	require.Equal(t, authflow.StateAwaitingSecondFactor, state)

	state, err = f.flow.SubmitCode(ctx, validOTP)
	require.NoError(t, err)
	require.Equal(t, authflow.StateAuthenticated, state)
	require.Equal(t, 2, f.backend.Calls(fakebackend.CallSignIn))
	require.Equal(t, 2, f.backend.Calls(fakebackend.CallVerifyLogin))
	require.True(t, f.flow.Profile().FeatureEnabled("ai_diagnosis"))
	require.Equal(t, profile.PlanPremium, f.flow.Profile().SubscriptionPlan)

	f.backend.ExpireAccessTokens()
	var me map[string]any
	require.NoError(t, f.client.GetJSON(ctx, authflow.MePath, &me))
	require.Equal(t, "u-1", me["id"])
	require.Equal(t, 1, f.backend.Calls(fakebackend.CallRefresh))
	require.Equal(t, authflow.StateAuthenticated, f.flow.State())

	require.NoError(t, f.flow.Logout(ctx))
	require.Equal(t, 1, f.backend.Calls(fakebackend.CallLogout))
	require.Zero(t, f.repo.Len())
	require.Equal(t, authflow.StateLoggedOut, f.flow.State())
}

func TestStack_RefreshRevoked(t *testing.T) {
	f := setupStackFixture(t)
	f.backend.AddAccount(fakebackend.Account{UID: "u-1", Email: email, Password: password, EmailVerified: true, HasProfile: true, Role: profile.RolePatient})
	ctx := context.Background()

	_, err := f.flow.Submit(ctx, email, password)
	require.NoError(t, err)

	f.backend.ExpireAccessTokens()
	f.backend.RevokeRefreshTokens()
	_, err = f.client.Request(ctx, http.MethodGet, authflow.MePath, nil)
	require.ErrorIs(t, err, apperrors.ErrSessionExpired)
	require.Equal(t, authflow.StateLoggedOut, f.flow.State())
	require.Zero(t, f.repo.Len())
}

func TestStack_IdentityTokenSession(t *testing.T) {
	f := setupStackFixture(t, fakebackend.WithoutSessionTokens())
	f.backend.AddAccount(fakebackend.Account{UID: "u-1", Email: email, Password: password, EmailVerified: true, HasProfile: true, Role: profile.RolePatient})

	state, err := f.flow.Submit(context.Background(), email, password)
	require.NoError(t, err)
	require.Equal(t, authflow.StateAuthenticated, state)
	require.Equal(t, "/patient/dashboard", f.flow.Home())
}

func TestStack_RegisterThenLogin(t *testing.T) {
	f := setupStackFixture(t)
	ctx := context.Background()

	profileData := map[string]string{"specialty": "cardiology"}
	require.NoError(t, f.flow.Register(ctx, authflow.Registration{
		Email:    "grace@example.com",
		Password: "s3cret-pass",
		Role:     profile.RolePhysician,
		Profile:  profileData,
	}))
	require.Equal(t, 1, f.backend.Calls(fakebackend.CallSignUp))
	require.Equal(t, 1, f.backend.Calls(fakebackend.CallSendOob))
	require.Equal(t, 1, f.backend.Calls(fakebackend.CallSetupProfile))

	state, err := f.flow.Submit(ctx, "grace@example.com", "s3cret-pass")
	require.ErrorIs(t, err, apperrors.ErrEmailNotVerified)
	require.Equal(t, authflow.StateFailed, state)
	require.Zero(t, f.backend.Calls(fakebackend.CallVerifyLogin))

	require.True(t, f.backend.VerifyEmail("grace@example.com"))
	state, err = f.flow.Submit(ctx, "grace@example.com", "s3cret-pass")
	require.NoError(t, err)
	require.Equal(t, authflow.StateAuthenticated, state)

	p := f.flow.Profile()
	require.Equal(t, profile.RolePhysician, p.Role)
	var stored map[string]string
	require.NoError(t, json.Unmarshal(p.PhysicianProfile, &stored))
	require.Equal(t, profileData, stored)
}
