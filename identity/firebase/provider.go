package firebase

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jrsteele09/dortmed-client/identity"
	apperrors "github.com/jrsteele09/dortmed-client/internal/errors"
	"github.com/jrsteele09/dortmed-client/transport"
)

// DefaultBaseURL is the Identity Toolkit REST root.
const DefaultBaseURL = "https://identitytoolkit.googleapis.com/v1"

var _ identity.Provider = (*Provider)(nil)

// NowTimeFunc returns the current time. It can be overridden in tests.
var NowTimeFunc = time.Now

// Provider signs in against the Identity Toolkit REST API with an API key. Sign-out is
// local: the provider forgets the signed-in identity.
type Provider struct {
	apiKey    string
	transport *transport.Client

	lock    sync.RWMutex
	current *identity.Identity
}

// New creates a provider. t must be rooted at the Identity Toolkit base URL.
func New(apiKey string, t *transport.Client) (*Provider, error) {
	if apiKey == "" {
		return nil, apperrors.New("[firebase.New] api key is required")
	}
	if t == nil {
		return nil, apperrors.New("[firebase.New] transport is required")
	}
	return &Provider{apiKey: apiKey, transport: t}, nil
}

type tokenResponse struct {
	LocalID      string `json:"localId"`
	Email        string `json:"email"`
	IDToken      string `json:"idToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    string `json:"expiresIn"`
}

type lookupResponse struct {
	Users []struct {
		LocalID       string `json:"localId"`
		Email         string `json:"email"`
		EmailVerified bool   `json:"emailVerified"`
	} `json:"users"`
}

// SignIn verifies the password and looks up the account's verification status.
func (p *Provider) SignIn(ctx context.Context, email, password string) (*identity.Identity, error) {
	var tok tokenResponse
	err := p.call(ctx, "accounts:signInWithPassword", map[string]any{
		"email":             email,
		"password":          password,
		"returnSecureToken": true,
	}, &tok)
	if err != nil {
		return nil, apperrors.Wrapf(err, "[SignIn]")
	}

	var lookup lookupResponse
	if err := p.call(ctx, "accounts:lookup", map[string]any{"idToken": tok.IDToken}, &lookup); err != nil {
		return nil, apperrors.Wrapf(err, "[SignIn] lookup")
	}
	if len(lookup.Users) == 0 {
		return nil, apperrors.Wrapf(apperrors.ErrInvalidCredentials, "[SignIn] account %s not found", email)
	}

	id := p.identityFrom(tok)
	id.EmailVerified = lookup.Users[0].EmailVerified
	p.setCurrent(id)
	return id, nil
}

// CreateUser registers a new account and signs it in.
func (p *Provider) CreateUser(ctx context.Context, email, password string) (*identity.Identity, error) {
	var tok tokenResponse
	err := p.call(ctx, "accounts:signUp", map[string]any{
		"email":             email,
		"password":          password,
		"returnSecureToken": true,
	}, &tok)
	if err != nil {
		return nil, apperrors.Wrapf(err, "[CreateUser]")
	}
	id := p.identityFrom(tok)
	p.setCurrent(id)
	return id, nil
}

// SendEmailVerification asks the provider to mail a verification link to id's address.
func (p *Provider) SendEmailVerification(ctx context.Context, id *identity.Identity) error {
	if id == nil || id.IDToken == "" {
		return apperrors.Wrapf(apperrors.ErrNoSession, "[SendEmailVerification]")
	}
	err := p.call(ctx, "accounts:sendOobCode", map[string]any{
		"requestType": "VERIFY_EMAIL",
		"idToken":     id.IDToken,
	}, nil)
	return apperrors.Wrapf(err, "[SendEmailVerification]")
}

func (p *Provider) SignOut(_ context.Context) error {
	p.setCurrent(nil)
	return nil
}

// Current returns the signed-in identity, or nil.
func (p *Provider) Current() *identity.Identity {
	p.lock.RLock()
	defer p.lock.RUnlock()
	if p.current == nil {
		return nil
	}
	cp := *p.current
	return &cp
}

func (p *Provider) setCurrent(id *identity.Identity) {
	p.lock.Lock()
	defer p.lock.Unlock()
	p.current = id
}

func (p *Provider) identityFrom(tok tokenResponse) *identity.Identity {
	id := &identity.Identity{
		UID:          tok.LocalID,
		Email:        tok.Email,
		IDToken:      tok.IDToken,
		RefreshToken: tok.RefreshToken,
	}
	if secs, err := strconv.Atoi(tok.ExpiresIn); err == nil {
		id.ExpiresAt = NowTimeFunc().Add(time.Duration(secs) * time.Second)
	}
	return id
}

func (p *Provider) call(ctx context.Context, method string, body any, out any) error {
	resp, err := p.transport.Do(ctx, transport.Request{
		Method: http.MethodPost,
		Path:   method,
		Query:  url.Values{"key": {p.apiKey}},
		JSON:   body,
	})
	if err != nil {
		return mapError(err)
	}
	if out == nil {
		return nil
	}
	return resp.Decode(out)
}

type errorBody struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// mapError turns Identity Toolkit error codes into the provider-neutral sentinels.
func mapError(err error) error {
	var apiErr *apperrors.APIError
	if !apperrors.As(err, &apiErr) {
		return err
	}
	var body errorBody
	if json.Unmarshal(apiErr.Body, &body) != nil || body.Error.Message == "" {
		return err
	}

	// Messages look like "WEAK_PASSWORD : Password should be at least 6 characters".
	code, _, _ := strings.Cut(body.Error.Message, " ")
	switch code {
	case "EMAIL_NOT_FOUND", "INVALID_PASSWORD", "INVALID_LOGIN_CREDENTIALS", "INVALID_EMAIL", "USER_DISABLED", "MISSING_PASSWORD":
		return apperrors.Wrapf(apperrors.ErrInvalidCredentials, "%s", code)
	case "EMAIL_EXISTS":
		return apperrors.Wrapf(apperrors.ErrEmailInUse, "%s", code)
	default:
		return apperrors.Wrapf(err, "%s", code)
	}
}
