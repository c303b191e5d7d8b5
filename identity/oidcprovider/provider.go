// Package oidcprovider signs users in against an OpenID Connect issuer with the
// resource owner password grant. The verified ID token is what the backend receives.
package oidcprovider

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"sync"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/jrsteele09/dortmed-client/identity"
	apperrors "github.com/jrsteele09/dortmed-client/internal/errors"
	"github.com/jrsteele09/dortmed-client/transport"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

var _ identity.Provider = (*Provider)(nil)

type Provider struct {
	oauth         *oauth2.Config
	verifier      *oidc.IDTokenVerifier
	revocationURL string
	httpClient    *http.Client
	transport     *transport.Client
	log           zerolog.Logger

	lock    sync.RWMutex
	current *identity.Identity
}

type Option func(*Provider)

// WithHTTPClient sets the client used for discovery, key fetches and token calls.
func WithHTTPClient(hc *http.Client) Option {
	return func(p *Provider) {
		p.httpClient = hc
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(p *Provider) {
		p.log = l
	}
}

// New discovers the issuer's endpoints and keys.
func New(ctx context.Context, issuer, clientID, clientSecret string, opts ...Option) (*Provider, error) {
	if issuer == "" {
		return nil, apperrors.New("[oidcprovider.New] issuer is required")
	}
	if clientID == "" {
		return nil, apperrors.New("[oidcprovider.New] client id is required")
	}

	p := &Provider{
		httpClient: http.DefaultClient,
		log:        log.Logger,
	}
	for _, opt := range opts {
		opt(p)
	}

	provider, err := oidc.NewProvider(p.clientContext(ctx), issuer)
	if err != nil {
		return nil, apperrors.Wrapf(err, "[oidcprovider.New] failed to create OIDC provider")
	}

	var discovery struct {
		RevocationEndpoint string `json:"revocation_endpoint"`
	}
	if err := provider.Claims(&discovery); err != nil {
		return nil, apperrors.Wrapf(err, "[oidcprovider.New] read discovery document")
	}

	p.oauth = &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint:     provider.Endpoint(),
		Scopes:       []string{oidc.ScopeOpenID, "profile", "email", oidc.ScopeOfflineAccess},
	}
	p.verifier = provider.Verifier(&oidc.Config{ClientID: clientID})
	p.revocationURL = discovery.RevocationEndpoint
	p.transport = transport.New("", transport.WithHTTPClient(p.httpClient), transport.WithLogger(p.log))
	return p, nil
}

func (p *Provider) clientContext(ctx context.Context) context.Context {
	return oidc.ClientContext(ctx, p.httpClient)
}

// SignIn exchanges the password for tokens and verifies the returned ID token.
func (p *Provider) SignIn(ctx context.Context, email, password string) (*identity.Identity, error) {
	ctx = p.clientContext(ctx)

	token, err := p.oauth.PasswordCredentialsToken(ctx, email, password)
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) && retrieveErr.ErrorCode == "invalid_grant" {
			return nil, apperrors.Wrapf(apperrors.ErrInvalidCredentials, "[SignIn] %s", retrieveErr.ErrorDescription)
		}
		return nil, apperrors.Wrapf(err, "[SignIn] token exchange failed")
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok {
		return nil, apperrors.New("[SignIn] no ID token in response")
	}
	idToken, err := p.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, apperrors.Wrapf(err, "[SignIn] ID token verification failed")
	}

	var claims struct {
		Sub           string `json:"sub"`
		Email         string `json:"email"`
		EmailVerified bool   `json:"email_verified"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return nil, apperrors.Wrapf(err, "[SignIn] failed to extract claims")
	}

	id := &identity.Identity{
		UID:           claims.Sub,
		Email:         claims.Email,
		EmailVerified: claims.EmailVerified,
		IDToken:       rawIDToken,
		RefreshToken:  token.RefreshToken,
		ExpiresAt:     idToken.Expiry,
	}
	p.lock.Lock()
	p.current = id
	p.lock.Unlock()
	return id, nil
}

// SignOut forgets the signed-in identity and revokes its refresh token when the issuer
// publishes a revocation endpoint. The local sign-out happens even if revocation fails.
func (p *Provider) SignOut(ctx context.Context) error {
	p.lock.Lock()
	current := p.current
	p.current = nil
	p.lock.Unlock()

	if current == nil || current.RefreshToken == "" || p.revocationURL == "" {
		return nil
	}
	_, err := p.transport.Do(ctx, transport.Request{
		Method: http.MethodPost,
		Path:   p.revocationURL,
		Form: url.Values{
			"token":           {current.RefreshToken},
			"token_type_hint": {"refresh_token"},
			"client_id":       {p.oauth.ClientID},
			"client_secret":   {p.oauth.ClientSecret},
		},
	})
	return apperrors.Wrapf(err, "[SignOut] revoke refresh token")
}

// CreateUser is not part of OpenID Connect; accounts are provisioned at the issuer.
func (p *Provider) CreateUser(context.Context, string, string) (*identity.Identity, error) {
	return nil, apperrors.Wrapf(apperrors.ErrUnsupported, "[CreateUser] oidc issuer")
}

// SendEmailVerification is not part of OpenID Connect.
func (p *Provider) SendEmailVerification(context.Context, *identity.Identity) error {
	return apperrors.Wrapf(apperrors.ErrUnsupported, "[SendEmailVerification] oidc issuer")
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
