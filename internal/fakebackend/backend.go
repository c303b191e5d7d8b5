// Package fakebackend is an in-process stand-in for the DortMed API together with the
// identity providers it trusts: an Identity Toolkit compatible endpoint set and an
// OIDC issuer. Tests and the demo command run the whole login stack against it.
package fakebackend

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"github.com/jrsteele09/dortmed-client/profile"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	contentTypeJSON = "application/json"

	// DefaultClientID is the OIDC client the issuer accepts and the audience of its tokens.
	DefaultClientID = "dortmed-client"

	tokenTypeID     = "id"
	tokenTypeAccess = "access"
	idTokenTTL      = time.Hour
)

var (
	errUnauthenticated = errors.New("not authenticated")
	errUnknownAccount  = errors.New("unknown account")
)

// NowTimeFunc returns the current time. It can be overridden in tests.
var NowTimeFunc = time.Now

// Account is a user known to both the identity provider and, once HasProfile is set,
// the backend. OTP enables the second factor; any other submitted code is rejected.
type Account struct {
	UID           string
	Email         string
	Password      string
	EmailVerified bool
	HasProfile    bool
	Role          profile.Role
	Plan          profile.Plan
	FeatureFlags  map[string]bool
	OTP           string
	ProfileData   json.RawMessage
}

type Backend struct {
	keys               *KeyPair
	clientID           string
	clientSecret       string
	accessTTL          time.Duration
	issueSessionTokens bool
	log                zerolog.Logger
	upgrader           websocket.Upgrader
	router             chi.Router

	lock     sync.Mutex
	accounts map[string]*Account // keyed by email
	access   map[string]string   // access token -> uid
	refresh  map[string]string   // refresh token -> uid
	devices  map[string][]string // uid -> push tokens
	calls    map[string]int
}

type Option func(*Backend)

// WithAccessTTL sets the lifetime of issued access tokens.
func WithAccessTTL(d time.Duration) Option {
	return func(b *Backend) {
		b.accessTTL = d
	}
}

// WithoutSessionTokens makes verify-login answer only with a status, leaving the client
// to use its identity token as the access token.
func WithoutSessionTokens() Option {
	return func(b *Backend) {
		b.issueSessionTokens = false
	}
}

// WithClient sets the OIDC client credentials the issuer accepts.
func WithClient(id, secret string) Option {
	return func(b *Backend) {
		b.clientID = id
		b.clientSecret = secret
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(b *Backend) {
		b.log = l
	}
}

func New(opts ...Option) (*Backend, error) {
	keys, err := GenerateRSAKeyPair(uuid.NewString())
	if err != nil {
		return nil, err
	}
	b := &Backend{
		keys:               keys,
		clientID:           DefaultClientID,
		accessTTL:          15 * time.Minute,
		issueSessionTokens: true,
		log:                log.Logger,
		accounts:           make(map[string]*Account),
		access:             make(map[string]string),
		refresh:            make(map[string]string),
		devices:            make(map[string][]string),
		calls:              make(map[string]int),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.initRoutes()
	return b, nil
}

// Handler serves every route of the fake.
func (b *Backend) Handler() http.Handler {
	return b.router
}

// AddAccount registers an account. A missing UID is generated.
func (b *Backend) AddAccount(a Account) Account {
	b.lock.Lock()
	defer b.lock.Unlock()

	if a.UID == "" {
		a.UID = uuid.NewString()
	}
	if a.Plan == "" {
		a.Plan = profile.PlanFreemium
	}
	stored := a
	b.accounts[strings.ToLower(a.Email)] = &stored
	return stored
}

// Account returns a copy of the account registered for email.
func (b *Backend) Account(email string) (Account, bool) {
	b.lock.Lock()
	defer b.lock.Unlock()
	a, ok := b.accounts[strings.ToLower(email)]
	if !ok {
		return Account{}, false
	}
	return *a, true
}

// VerifyEmail marks the account's address as verified, as following the mailed link would.
func (b *Backend) VerifyEmail(email string) bool {
	b.lock.Lock()
	defer b.lock.Unlock()
	a, ok := b.accounts[strings.ToLower(email)]
	if ok {
		a.EmailVerified = true
	}
	return ok
}

// ExpireAccessTokens invalidates every issued access token so the next call gets a 401.
func (b *Backend) ExpireAccessTokens() {
	b.lock.Lock()
	defer b.lock.Unlock()
	b.access = make(map[string]string)
}

// RevokeRefreshTokens invalidates every issued refresh token.
func (b *Backend) RevokeRefreshTokens() {
	b.lock.Lock()
	defer b.lock.Unlock()
	b.refresh = make(map[string]string)
}

// IssueSession mints an access/refresh pair for email without a login round trip.
func (b *Backend) IssueSession(email string) (string, string, error) {
	b.lock.Lock()
	defer b.lock.Unlock()
	a, ok := b.accounts[strings.ToLower(email)]
	if !ok {
		return "", "", errUnknownAccount
	}
	return b.mintSession(a)
}

// Calls returns how many times the named route was hit.
func (b *Backend) Calls(name string) int {
	b.lock.Lock()
	defer b.lock.Unlock()
	return b.calls[name]
}

// Devices returns the push tokens registered for uid.
func (b *Backend) Devices(uid string) []string {
	b.lock.Lock()
	defer b.lock.Unlock()
	return append([]string(nil), b.devices[uid]...)
}

func (b *Backend) count(name string) {
	b.lock.Lock()
	defer b.lock.Unlock()
	b.calls[name]++
}

func (b *Backend) accountByUID(uid string) (*Account, bool) {
	for _, a := range b.accounts {
		if a.UID == uid {
			return a, true
		}
	}
	return nil, false
}

// mintIDToken issues an identity token. Every call yields a distinct token.
func (b *Backend) mintIDToken(issuer string, a *Account) (string, error) {
	now := NowTimeFunc()
	return b.keys.Sign(jwt.MapClaims{
		"iss":            issuer,
		"aud":            b.clientID,
		"sub":            a.UID,
		"email":          a.Email,
		"email_verified": a.EmailVerified,
		"iat":            now.Unix(),
		"exp":            now.Add(idTokenTTL).Unix(),
		"jti":            uuid.NewString(),
		"typ":            tokenTypeID,
	})
}

// mintSession issues an access/refresh pair. Callers hold b.lock.
func (b *Backend) mintSession(a *Account) (string, string, error) {
	now := NowTimeFunc()
	access, err := b.keys.Sign(jwt.MapClaims{
		"sub": a.UID,
		"iat": now.Unix(),
		"exp": now.Add(b.accessTTL).Unix(),
		"jti": uuid.NewString(),
		"typ": tokenTypeAccess,
	})
	if err != nil {
		return "", "", err
	}
	refresh := uuid.NewString()
	b.access[access] = a.UID
	b.refresh[refresh] = a.UID
	return access, refresh, nil
}

// authenticate resolves a bearer credential: an issued access token, or any identity
// token signed by this fake.
func (b *Backend) authenticate(token string) (*Account, error) {
	if token == "" {
		return nil, errUnauthenticated
	}

	b.lock.Lock()
	defer b.lock.Unlock()

	if uid, ok := b.access[token]; ok {
		if a, ok := b.accountByUID(uid); ok {
			return a, nil
		}
		return nil, errUnknownAccount
	}

	claims, err := b.keys.Parse(token)
	if err != nil || claims["typ"] != tokenTypeID {
		return nil, errUnauthenticated
	}
	sub, _ := claims.GetSubject()
	a, ok := b.accountByUID(sub)
	if !ok {
		return nil, errUnknownAccount
	}
	return a, nil
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "Bearer ") {
		return h[7:]
	}
	return ""
}

// issuer derives the OIDC issuer URL from the request.
func issuer(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + r.Host + IssuerPrefix
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeDetail writes the backend's {"detail": ...} error shape.
func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

// writeJSONError writes an OAuth2 error response
func writeJSONError(w http.ResponseWriter, errorCode, description string, statusCode int) {
	writeJSON(w, statusCode, map[string]string{
		"error":             errorCode,
		"error_description": description,
	})
}
