package fakebackend

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type toolkitRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	IDToken     string `json:"idToken"`
	RequestType string `json:"requestType"`
}

// ToolkitHandler serves the Identity Toolkit account methods the client uses.
func (b *Backend) ToolkitHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("key") == "" {
			writeToolkitError(w, http.StatusBadRequest, "API key not valid. Please pass a valid API key.")
			return
		}
		var req toolkitRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeToolkitError(w, http.StatusBadRequest, "INVALID_JSON")
			return
		}

		switch chi.URLParam(r, "method") {
		case "accounts:signInWithPassword":
			b.toolkitSignIn(w, r, req)
		case "accounts:signUp":
			b.toolkitSignUp(w, r, req)
		case "accounts:lookup":
			b.toolkitLookup(w, req)
		case "accounts:sendOobCode":
			b.toolkitSendOob(w, req)
		default:
			writeToolkitError(w, http.StatusNotFound, "METHOD_NOT_FOUND")
		}
	}
}

func (b *Backend) toolkitSignIn(w http.ResponseWriter, r *http.Request, req toolkitRequest) {
	b.count(CallSignIn)

	b.lock.Lock()
	defer b.lock.Unlock()
	a, ok := b.accounts[strings.ToLower(req.Email)]
	if !ok || a.Password != req.Password {
		writeToolkitError(w, http.StatusBadRequest, "INVALID_LOGIN_CREDENTIALS")
		return
	}
	b.writeToolkitTokens(w, r, a)
}

func (b *Backend) toolkitSignUp(w http.ResponseWriter, r *http.Request, req toolkitRequest) {
	b.count(CallSignUp)
	if len(req.Password) < 6 {
		writeToolkitError(w, http.StatusBadRequest, "WEAK_PASSWORD : Password should be at least 6 characters")
		return
	}

	b.lock.Lock()
	defer b.lock.Unlock()
	key := strings.ToLower(req.Email)
	if _, exists := b.accounts[key]; exists {
		writeToolkitError(w, http.StatusBadRequest, "EMAIL_EXISTS")
		return
	}
	a := &Account{UID: uuid.NewString(), Email: req.Email, Password: req.Password}
	b.accounts[key] = a
	b.writeToolkitTokens(w, r, a)
}

func (b *Backend) toolkitLookup(w http.ResponseWriter, req toolkitRequest) {
	claims, err := b.keys.Parse(req.IDToken)
	if err != nil {
		writeToolkitError(w, http.StatusBadRequest, "INVALID_ID_TOKEN")
		return
	}
	sub, _ := claims.GetSubject()

	b.lock.Lock()
	defer b.lock.Unlock()
	a, ok := b.accountByUID(sub)
	if !ok {
		writeToolkitError(w, http.StatusBadRequest, "USER_NOT_FOUND")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"users": []map[string]any{{
			"localId":       a.UID,
			"email":         a.Email,
			"emailVerified": a.EmailVerified,
		}},
	})
}

func (b *Backend) toolkitSendOob(w http.ResponseWriter, req toolkitRequest) {
	b.count(CallSendOob)
	if req.RequestType != "VERIFY_EMAIL" {
		writeToolkitError(w, http.StatusBadRequest, "INVALID_REQ_TYPE")
		return
	}
	claims, err := b.keys.Parse(req.IDToken)
	if err != nil {
		writeToolkitError(w, http.StatusBadRequest, "INVALID_ID_TOKEN")
		return
	}
	email, _ := claims["email"].(string)
	writeJSON(w, http.StatusOK, map[string]string{"email": email})
}

// writeToolkitTokens answers a sign-in or sign-up. Callers hold b.lock.
func (b *Backend) writeToolkitTokens(w http.ResponseWriter, r *http.Request, a *Account) {
	idToken, err := b.mintIDToken(issuer(r), a)
	if err != nil {
		writeToolkitError(w, http.StatusInternalServerError, "INTERNAL_ERROR")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"localId":      a.UID,
		"email":        a.Email,
		"idToken":      idToken,
		"refreshToken": uuid.NewString(),
		"expiresIn":    strconv.Itoa(int(idTokenTTL.Seconds())),
		"registered":   true,
	})
}

func writeToolkitError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]any{
			"code":    status,
			"message": message,
			"errors":  []any{},
		},
	})
}

func (b *Backend) WellKnownOpenIDConfig() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		baseURL := issuer(r)
		writeJSON(w, http.StatusOK, map[string]any{
			"issuer":                                baseURL,
			"authorization_endpoint":                baseURL + "/authorize",
			"token_endpoint":                        baseURL + RouteOIDCToken,
			"jwks_uri":                              baseURL + RouteWellKnownJWKS,
			"revocation_endpoint":                   baseURL + RouteOIDCRevoke,
			"response_types_supported":              []string{"code"},
			"subject_types_supported":               []string{"public"},
			"id_token_signing_alg_values_supported": []string{"RS256"},
			"grant_types_supported":                 []string{"password", "refresh_token"},
			"scopes_supported":                      []string{"openid", "profile", "email", "offline_access"},
			"claims_supported":                      []string{"sub", "iss", "aud", "exp", "iat", "email", "email_verified"},
		})
	}
}

func (b *Backend) JWKS() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, JWKS{Keys: []JWK{b.keys.ToJWK()}})
	}
}

// clientAuthenticated accepts client credentials in the Authorization header or the form.
func (b *Backend) clientAuthenticated(r *http.Request) bool {
	id, secret, ok := r.BasicAuth()
	if !ok {
		id = r.PostForm.Get("client_id")
		secret = r.PostForm.Get("client_secret")
	}
	return id == b.clientID && secret == b.clientSecret
}

// Token implements the resource owner password grant.
func (b *Backend) Token() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		b.count(CallOIDCToken)
		if err := r.ParseForm(); err != nil {
			writeJSONError(w, "invalid_request", "Failed to parse form data", http.StatusBadRequest)
			return
		}
		if !b.clientAuthenticated(r) {
			writeJSONError(w, "invalid_client", "Client authentication failed", http.StatusUnauthorized)
			return
		}
		if r.PostForm.Get("grant_type") != "password" {
			writeJSONError(w, "unsupported_grant_type", "Only the password grant is supported", http.StatusBadRequest)
			return
		}

		b.lock.Lock()
		defer b.lock.Unlock()
		a, ok := b.accounts[strings.ToLower(r.PostForm.Get("username"))]
		if !ok || a.Password != r.PostForm.Get("password") {
			writeJSONError(w, "invalid_grant", "Invalid user credentials", http.StatusBadRequest)
			return
		}
		idToken, err := b.mintIDToken(issuer(r), a)
		if err != nil {
			writeJSONError(w, "server_error", err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"access_token":  uuid.NewString(),
			"token_type":    "Bearer",
			"expires_in":    int(idTokenTTL.Seconds()),
			"refresh_token": uuid.NewString(),
			"id_token":      idToken,
			"scope":         r.PostForm.Get("scope"),
		})
	}
}

// Revoke accepts any token, as RFC 7009 allows for unknown tokens.
func (b *Backend) Revoke() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		b.count(CallOIDCRevoke)
		if err := r.ParseForm(); err != nil || r.PostForm.Get("token") == "" {
			writeJSONError(w, "invalid_request", "token is required", http.StatusBadRequest)
			return
		}
		if !b.clientAuthenticated(r) {
			writeJSONError(w, "invalid_client", "Client authentication failed", http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}
