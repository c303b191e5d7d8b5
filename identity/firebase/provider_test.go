package firebase_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/jrsteele09/dortmed-client/identity/firebase"
	apperrors "github.com/jrsteele09/dortmed-client/internal/errors"
	"github.com/jrsteele09/dortmed-client/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const apiKey = "test-key"

type toolkit struct {
	lock      sync.Mutex
	verified  bool
	oobTokens []string
}

func (tk *toolkit) setVerified(v bool) {
	tk.lock.Lock()
	defer tk.lock.Unlock()
	tk.verified = v
}

func (tk *toolkit) sentTo() []string {
	tk.lock.Lock()
	defer tk.lock.Unlock()
	return append([]string(nil), tk.oobTokens...)
}

func setupTestFixture(t *testing.T) (*firebase.Provider, *toolkit) {
	t.Helper()
	tk := &toolkit{verified: true}

	writeErr := func(w http.ResponseWriter, msg string) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"code":400,"message":"` + msg + `","errors":[]}}`))
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/accounts:signInWithPassword", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, apiKey, r.URL.Query().Get("key"))
		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		switch {
		case body["email"] != "ada@example.com":
			writeErr(w, "EMAIL_NOT_FOUND")
		case body["password"] != "correct-horse":
			writeErr(w, "INVALID_LOGIN_CREDENTIALS")
		default:
			_, _ = w.Write([]byte(`{"localId":"uid-1","email":"ada@example.com","idToken":"id-1","refreshToken":"fr-1","expiresIn":"3600","registered":true}`))
		}
	})
	mux.HandleFunc("/v1/accounts:lookup", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "id-1", body["idToken"])
		tk.lock.Lock()
		verified := tk.verified
		tk.lock.Unlock()
		resp := map[string]any{"users": []map[string]any{{"localId": "uid-1", "email": "ada@example.com", "emailVerified": verified}}}
		_ = json.NewEncoder(w).Encode(resp)
	})
	mux.HandleFunc("/v1/accounts:signUp", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		switch {
		case body["email"] == "ada@example.com":
			writeErr(w, "EMAIL_EXISTS")
		case len(body["password"].(string)) < 6:
			writeErr(w, "WEAK_PASSWORD : Password should be at least 6 characters")
		default:
			_, _ = w.Write([]byte(`{"localId":"uid-2","email":"new@example.com","idToken":"id-2","refreshToken":"fr-2","expiresIn":"3600"}`))
		}
	})
	mux.HandleFunc("/v1/accounts:sendOobCode", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "VERIFY_EMAIL", body["requestType"])
		tk.lock.Lock()
		tk.oobTokens = append(tk.oobTokens, body["idToken"])
		tk.lock.Unlock()
		_, _ = w.Write([]byte(`{"email":"new@example.com"}`))
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	p, err := firebase.New(apiKey, transport.New(server.URL+"/v1"))
	require.NoError(t, err)
	return p, tk
}

func TestProvider_SignIn(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	firebase.NowTimeFunc = func() time.Time { return now }
	defer func() { firebase.NowTimeFunc = time.Now }()

	p, tk := setupTestFixture(t)

	t.Run("verified account", func(t *testing.T) {
		id, err := p.SignIn(context.Background(), "ada@example.com", "correct-horse")
		require.NoError(t, err)
		require.Equal(t, "uid-1", id.UID)
		require.Equal(t, "id-1", id.IDToken)
		require.True(t, id.EmailVerified)
		require.Equal(t, now.Add(time.Hour), id.ExpiresAt)
		require.Equal(t, "uid-1", p.Current().UID)
	})

	t.Run("unverified account", func(t *testing.T) {
		tk.setVerified(false)
		defer tk.setVerified(true)

		id, err := p.SignIn(context.Background(), "ada@example.com", "correct-horse")
		require.NoError(t, err)
		require.False(t, id.EmailVerified)
	})

	t.Run("bad password", func(t *testing.T) {
		_, err := p.SignIn(context.Background(), "ada@example.com", "wrong")
		require.ErrorIs(t, err, apperrors.ErrInvalidCredentials)
		require.Contains(t, err.Error(), "INVALID_LOGIN_CREDENTIALS")
	})

	t.Run("unknown email", func(t *testing.T) {
		_, err := p.SignIn(context.Background(), "bob@example.com", "whatever")
		require.ErrorIs(t, err, apperrors.ErrInvalidCredentials)
	})

	t.Run("sign out forgets identity", func(t *testing.T) {
		require.NoError(t, p.SignOut(context.Background()))
		require.Nil(t, p.Current())
	})
}

func TestProvider_CreateUser(t *testing.T) {
	p, tk := setupTestFixture(t)

	id, err := p.CreateUser(context.Background(), "new@example.com", "s3cret-pass")
	require.NoError(t, err)
	require.Equal(t, "uid-2", id.UID)
	require.False(t, id.EmailVerified)

	require.NoError(t, p.SendEmailVerification(context.Background(), id))
	require.Equal(t, []string{"id-2"}, tk.sentTo())

	_, err = p.CreateUser(context.Background(), "ada@example.com", "s3cret-pass")
	require.ErrorIs(t, err, apperrors.ErrEmailInUse)

	_, err = p.CreateUser(context.Background(), "weak@example.com", "123")
	require.Error(t, err)
	require.Contains(t, err.Error(), "WEAK_PASSWORD")
	var apiErr *apperrors.APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusBadRequest, apiErr.Status)

	require.ErrorIs(t, p.SendEmailVerification(context.Background(), nil), apperrors.ErrNoSession)
}

func TestNew_Validation(t *testing.T) {
	_, err := firebase.New("", transport.New(firebase.DefaultBaseURL))
	require.Error(t, err)
	_, err = firebase.New(apiKey, nil)
	require.Error(t, err)
}
