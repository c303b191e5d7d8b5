package authflow

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/jrsteele09/dortmed-client/credentials"
	"github.com/jrsteele09/dortmed-client/identity"
	apperrors "github.com/jrsteele09/dortmed-client/internal/errors"
	"github.com/jrsteele09/dortmed-client/profile"
	"github.com/jrsteele09/dortmed-client/session"
	"github.com/jrsteele09/dortmed-client/transport"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Backend routes used by the flow.
const (
	VerifyLoginPath  = "/auth/verify-login"
	MePath           = "/auth/me"
	SetupProfilePath = "/auth/setup-profile"
)

// Flow drives a login from password check through second factor to a loaded profile.
// Operations are serialized; State may be read at any time.
type Flow struct {
	provider identity.Provider
	client   *session.Client
	log      zerolog.Logger

	opLock  sync.Mutex
	state   atomic.Int32
	attempt *loginAttempt
}

type Option func(*Flow)

func WithLogger(l zerolog.Logger) Option {
	return func(f *Flow) {
		f.log = l
	}
}

func New(provider identity.Provider, client *session.Client, opts ...Option) (*Flow, error) {
	if provider == nil {
		return nil, apperrors.New("[authflow.New] identity provider is required")
	}
	if client == nil {
		return nil, apperrors.New("[authflow.New] session client is required")
	}
	f := &Flow{
		provider: provider,
		client:   client,
		log:      log.Logger,
	}
	for _, opt := range opts {
		opt(f)
	}

	// A session torn down elsewhere (failed refresh) logs an authenticated flow out.
	client.Session().Subscribe(func(e session.Event) {
		if _, ok := e.(session.Ended); ok {
			if f.state.CompareAndSwap(int32(StateAuthenticated), int32(StateLoggedOut)) {
				f.log.Info().Msg("session ended, flow logged out")
			}
		}
	})
	return f, nil
}

// State returns the current state.
func (f *Flow) State() State {
	return State(f.state.Load())
}

// Profile returns the loaded profile, or nil.
func (f *Flow) Profile() *profile.Profile {
	return f.client.Session().Profile()
}

// Home is the landing route for the current state.
func (f *Flow) Home() string {
	if p := f.Profile(); p != nil && f.State() == StateAuthenticated {
		return p.Role.Home()
	}
	return f.client.Session().LoginPath()
}

func (f *Flow) setState(s State) {
	prev := State(f.state.Swap(int32(s)))
	if prev != s {
		f.log.Debug().Str("from", prev.String()).Str("to", s.String()).Msg("auth flow transition")
	}
}

// Submit checks email and password with the identity provider and, when the provider
// accepts them, asks the backend to verify the login. The returned state is
// StateAwaitingSecondFactor when the account requires a one-time code.
func (f *Flow) Submit(ctx context.Context, email, password string) (State, error) {
	f.opLock.Lock()
	defer f.opLock.Unlock()

	if !f.State().canSubmit() {
		return f.State(), apperrors.Wrapf(apperrors.ErrInvalidState, "[Submit] in state %s", f.State())
	}
	f.attempt.wipe()
	f.attempt = newLoginAttempt(email, password)
	f.setState(StateSubmittingCredentials)

	id, err := f.signIn(ctx)
	if err != nil {
		return f.fail(ctx, err)
	}
	return f.verify(ctx, id.IDToken, "")
}

// SubmitCode completes a login that is awaiting its second factor. The provider sign-in
// is repeated so the backend receives a freshly issued identity token.
func (f *Flow) SubmitCode(ctx context.Context, code string) (State, error) {
	f.opLock.Lock()
	defer f.opLock.Unlock()

	if f.State() != StateAwaitingSecondFactor || f.attempt == nil {
		return f.State(), apperrors.Wrapf(apperrors.ErrInvalidState, "[SubmitCode] in state %s", f.State())
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return f.State(), apperrors.Wrapf(apperrors.ErrInvalidSecondFactor, "[SubmitCode] code is empty")
	}
	f.setState(StateAuthenticating)

	id, err := f.signIn(ctx)
	if err != nil {
		return f.fail(ctx, err)
	}
	return f.verify(ctx, id.IDToken, code)
}

// signIn runs the provider check for the current attempt and applies the email
// verification gate.
func (f *Flow) signIn(ctx context.Context) (*identity.Identity, error) {
	id, err := f.provider.SignIn(ctx, f.attempt.email, string(f.attempt.password))
	if err != nil {
		if apperrors.Is(err, apperrors.ErrInvalidCredentials) {
			return nil, err
		}
		return nil, apperrors.Wrapf(err, "[signIn] identity provider")
	}
	if !id.EmailVerified {
		return nil, apperrors.Wrapf(apperrors.ErrEmailNotVerified, "[signIn] %s", id.Email)
	}
	return id, nil
}

type verifyLoginResponse struct {
	Status       string `json:"status"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

func (f *Flow) verify(ctx context.Context, idToken, otp string) (State, error) {
	form := url.Values{}
	if otp != "" {
		form.Set("otp", otp)
	}
	resp, err := f.client.Transport().Do(ctx, transport.Request{
		Method:      http.MethodPost,
		Path:        VerifyLoginPath,
		Form:        form,
		BearerToken: idToken,
	})

	switch {
	case err == nil:
		var body verifyLoginResponse
		if len(resp.Body) > 0 {
			if err := resp.Decode(&body); err != nil {
				return f.fail(ctx, apperrors.Wrapf(err, "[verify] login response"))
			}
		}
		creds := credentials.New(body.AccessToken, body.RefreshToken)
		if body.AccessToken == "" {
			// Backends that keep no session of their own accept the identity token itself.
			creds = credentials.New(idToken, "")
		}
		return f.complete(ctx, creds)

	case apperrors.Detail(err) == apperrors.SecondFactorRequiredDetail:
		f.setState(StateAwaitingSecondFactor)
		if otp != "" {
			return f.State(), apperrors.Wrapf(apperrors.ErrInvalidSecondFactor, "[verify] code was not accepted")
		}
		return f.State(), nil

	case otp != "" && apperrors.KindOf(err) == apperrors.KindUnauthorized:
		f.setState(StateAwaitingSecondFactor)
		return f.State(), fmt.Errorf("%w: %w", apperrors.ErrInvalidSecondFactor, err)

	default:
		return f.fail(ctx, err)
	}
}

// complete installs the session and loads the profile. A profile failure after the
// session exists tears the session down.
func (f *Flow) complete(ctx context.Context, creds credentials.Credentials) (State, error) {
	f.setState(StateAuthenticating)

	if err := f.client.Establish(ctx, creds); err != nil {
		return f.fail(ctx, apperrors.Wrapf(err, "[complete] establish session"))
	}
	if _, err := f.loadProfile(ctx); err != nil {
		f.teardown(ctx)
		return f.fail(ctx, err)
	}

	f.attempt.wipe()
	f.attempt = nil
	f.setState(StateAuthenticated)
	f.log.Info().Msg("login complete")
	return f.State(), nil
}

func (f *Flow) loadProfile(ctx context.Context) (*profile.Profile, error) {
	resp, err := f.client.Request(ctx, http.MethodGet, MePath, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", apperrors.ErrProfileFetch, err)
	}
	p, err := profile.Decode(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", apperrors.ErrProfileFetch, err)
	}
	if err := f.client.Session().SetProfile(ctx, p); err != nil {
		return nil, fmt.Errorf("%w: %w", apperrors.ErrProfileFetch, err)
	}
	return p, nil
}

// fail ends the attempt: the password is wiped and the provider identity dropped.
func (f *Flow) fail(ctx context.Context, err error) (State, error) {
	f.attempt.wipe()
	f.attempt = nil
	if signOutErr := f.provider.SignOut(ctx); signOutErr != nil {
		f.log.Warn().Err(signOutErr).Msg("provider sign-out failed")
	}
	f.setState(StateFailed)
	f.log.Info().Err(err).Msg("login failed")
	return f.State(), err
}

// teardown ends the session if one is still held.
func (f *Flow) teardown(ctx context.Context) {
	if !f.client.Session().Active() {
		return
	}
	if err := f.client.Logout(ctx); err != nil {
		f.log.Err(err).Msg("session teardown failed")
	}
}

// Resume restores a persisted session on start and revalidates it against the backend.
// Without a stored session the flow stays idle.
func (f *Flow) Resume(ctx context.Context) (State, error) {
	f.opLock.Lock()
	defer f.opLock.Unlock()

	if f.State() != StateIdle {
		return f.State(), apperrors.Wrapf(apperrors.ErrInvalidState, "[Resume] in state %s", f.State())
	}
	ok, err := f.client.Session().Restore(ctx)
	if err != nil {
		return f.State(), err
	}
	if !ok {
		return f.State(), nil
	}

	f.setState(StateAuthenticating)
	if _, err := f.loadProfile(ctx); err != nil {
		f.teardown(ctx)
		f.setState(StateLoggedOut)
		return f.State(), err
	}
	f.setState(StateAuthenticated)
	return f.State(), nil
}

// RefreshProfile re-fetches the profile and replaces the snapshot wholesale. A failure
// tears the session down.
func (f *Flow) RefreshProfile(ctx context.Context) (*profile.Profile, error) {
	f.opLock.Lock()
	defer f.opLock.Unlock()

	if f.State() != StateAuthenticated {
		return nil, apperrors.Wrapf(apperrors.ErrInvalidState, "[RefreshProfile] in state %s", f.State())
	}
	p, err := f.loadProfile(ctx)
	if err != nil {
		f.teardown(ctx)
		f.setState(StateLoggedOut)
		return nil, err
	}
	return p.Clone(), nil
}

// Logout ends the session, signs out of the provider and discards any pending attempt.
// It is valid from every state.
func (f *Flow) Logout(ctx context.Context) error {
	f.opLock.Lock()
	defer f.opLock.Unlock()

	f.attempt.wipe()
	f.attempt = nil
	err := f.client.Logout(ctx)
	if signOutErr := f.provider.SignOut(ctx); signOutErr != nil {
		f.log.Warn().Err(signOutErr).Msg("provider sign-out failed")
	}
	f.setState(StateLoggedOut)
	return err
}

// Registration is a new account request. Profile is the role specific payload the
// backend stores as the patient or physician record.
type Registration struct {
	Email    string
	Password string
	Role     profile.Role
	Profile  any
}

// Register creates the identity, sends the verification email, creates the backend
// profile and signs out again. The account is usable only after the email is verified,
// so the flow never becomes authenticated here.
func (f *Flow) Register(ctx context.Context, reg Registration) error {
	f.opLock.Lock()
	defer f.opLock.Unlock()

	if !f.State().canSubmit() {
		return apperrors.Wrapf(apperrors.ErrInvalidState, "[Register] in state %s", f.State())
	}
	if reg.Role != profile.RolePatient && reg.Role != profile.RolePhysician {
		return fmt.Errorf("[Register] role %s cannot self-register", reg.Role)
	}

	id, err := f.provider.CreateUser(ctx, reg.Email, reg.Password)
	if err != nil {
		return apperrors.Wrapf(err, "[Register] create identity")
	}
	defer func() {
		if err := f.provider.SignOut(ctx); err != nil {
			f.log.Warn().Err(err).Msg("provider sign-out failed")
		}
	}()

	if err := f.provider.SendEmailVerification(ctx, id); err != nil {
		return apperrors.Wrapf(err, "[Register] send verification email")
	}

	payload := map[string]any{"role": reg.Role.String(), "profile": reg.Profile}
	if reg.Profile == nil {
		payload["profile"] = map[string]any{}
	}
	_, err = f.client.Transport().Do(ctx, transport.Request{
		Method:      http.MethodPost,
		Path:        SetupProfilePath,
		JSON:        payload,
		BearerToken: id.IDToken,
	})
	if err != nil {
		return apperrors.Wrapf(err, "[Register] setup profile")
	}
	f.log.Info().Str("role", reg.Role.String()).Msg("registration complete, awaiting email verification")
	return nil
}
