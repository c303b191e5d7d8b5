package fakebackend

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/jrsteele09/dortmed-client/profile"
)

const (
	detailSecondFactorRequired = "2FA_REQUIRED"
	detailInvalidSecondFactor  = "Invalid 2FA code."
	detailNotAuthenticated     = "Could not validate credentials"
)

func (b *Backend) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"status":              "Operational",
			"database_connection": "Operational",
			"ai_service_status":   "Operational",
			"ocr_service_status":  "Operational",
		})
	}
}

// requireAccount resolves the bearer account or writes the error response.
func (b *Backend) requireAccount(w http.ResponseWriter, r *http.Request) (*Account, bool) {
	a, err := b.authenticate(bearerToken(r))
	switch {
	case errors.Is(err, errUnknownAccount):
		writeDetail(w, http.StatusNotFound, "User not found.")
		return nil, false
	case err != nil:
		writeDetail(w, http.StatusUnauthorized, detailNotAuthenticated)
		return nil, false
	}
	return a, true
}

// VerifyLoginHandler performs the second factor check after the identity provider
// accepted the password.
func (b *Backend) VerifyLoginHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		b.count(CallVerifyLogin)
		a, ok := b.requireAccount(w, r)
		if !ok {
			return
		}
		if err := r.ParseForm(); err != nil {
			writeDetail(w, http.StatusBadRequest, "Invalid form body.")
			return
		}

		b.lock.Lock()
		defer b.lock.Unlock()

		if !a.HasProfile {
			writeDetail(w, http.StatusNotFound, "User profile not found.")
			return
		}
		if a.OTP != "" {
			otp := r.PostForm.Get("otp")
			if otp == "" {
				writeDetail(w, http.StatusUnauthorized, detailSecondFactorRequired)
				return
			}
			if otp != a.OTP {
				writeDetail(w, http.StatusUnauthorized, detailInvalidSecondFactor)
				return
			}
		}

		resp := map[string]string{"status": "Login successful"}
		if b.issueSessionTokens {
			access, refresh, err := b.mintSession(a)
			if err != nil {
				writeDetail(w, http.StatusInternalServerError, err.Error())
				return
			}
			resp["access_token"] = access
			resp["refresh_token"] = refresh
			resp["token_type"] = "bearer"
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func (b *Backend) MeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		b.count(CallMe)
		a, ok := b.requireAccount(w, r)
		if !ok {
			return
		}

		b.lock.Lock()
		defer b.lock.Unlock()
		if !a.HasProfile {
			writeDetail(w, http.StatusNotFound, "User profile not found.")
			return
		}
		writeJSON(w, http.StatusOK, toProfile(a))
	}
}

// TokenRefreshHandler rotates a refresh token into a new pair.
func (b *Backend) TokenRefreshHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		b.count(CallRefresh)
		if err := r.ParseForm(); err != nil {
			writeDetail(w, http.StatusBadRequest, "Invalid form body.")
			return
		}
		presented := r.PostForm.Get("refresh_token")

		b.lock.Lock()
		defer b.lock.Unlock()

		uid, ok := b.refresh[presented]
		if !ok || presented == "" {
			writeDetail(w, http.StatusUnauthorized, "Invalid refresh token")
			return
		}
		delete(b.refresh, presented)
		a, ok := b.accountByUID(uid)
		if !ok {
			writeDetail(w, http.StatusUnauthorized, "Invalid refresh token")
			return
		}
		access, refresh, err := b.mintSession(a)
		if err != nil {
			writeDetail(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{
			"access_token":  access,
			"refresh_token": refresh,
			"token_type":    "bearer",
		})
	}
}

// LogoutHandler drops every token issued to the caller.
func (b *Backend) LogoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		b.count(CallLogout)
		a, ok := b.requireAccount(w, r)
		if !ok {
			return
		}

		b.lock.Lock()
		defer b.lock.Unlock()
		for tok, uid := range b.access {
			if uid == a.UID {
				delete(b.access, tok)
			}
		}
		for tok, uid := range b.refresh {
			if uid == a.UID {
				delete(b.refresh, tok)
			}
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

type setupProfileRequest struct {
	Role    string          `json:"role"`
	Profile json.RawMessage `json:"profile"`
}

// SetupProfileHandler creates the backend record for a freshly registered identity.
func (b *Backend) SetupProfileHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		b.count(CallSetupProfile)
		a, ok := b.requireAccount(w, r)
		if !ok {
			return
		}

		var req setupProfileRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeDetail(w, http.StatusUnprocessableEntity, "Invalid request body.")
			return
		}
		role, err := profile.ParseRole(req.Role)
		if err != nil || role == profile.RoleAdmin {
			writeDetail(w, http.StatusBadRequest, "Invalid role for profile setup.")
			return
		}

		b.lock.Lock()
		defer b.lock.Unlock()
		if a.HasProfile {
			writeDetail(w, http.StatusConflict, "User profile already exists.")
			return
		}
		a.HasProfile = true
		a.Role = role
		a.Plan = profile.PlanFreemium
		a.ProfileData = req.Profile
		writeJSON(w, http.StatusCreated, toProfile(a))
	}
}

func (b *Backend) RegisterDeviceHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		b.count(CallRegisterDevice)
		a, ok := b.requireAccount(w, r)
		if !ok {
			return
		}

		var req struct {
			FCMToken string `json:"fcm_token"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.FCMToken == "" {
			writeDetail(w, http.StatusUnprocessableEntity, "fcm_token is required.")
			return
		}

		b.lock.Lock()
		defer b.lock.Unlock()
		for _, existing := range b.devices[a.UID] {
			if existing == req.FCMToken {
				writeJSON(w, http.StatusOK, map[string]string{"message": "Device already registered."})
				return
			}
		}
		b.devices[a.UID] = append(b.devices[a.UID], req.FCMToken)
		writeJSON(w, http.StatusOK, map[string]string{"message": "Device registered successfully."})
	}
}

// toProfile renders the /auth/me document. Callers hold b.lock.
func toProfile(a *Account) profile.Profile {
	flags := make(map[string]bool, len(a.FeatureFlags))
	for k, v := range a.FeatureFlags {
		flags[k] = v
	}
	p := profile.Profile{
		ID:               a.UID,
		Email:            a.Email,
		Role:             a.Role,
		IsActive:         true,
		IsVerified:       a.EmailVerified,
		SubscriptionPlan: a.Plan,
		FeatureFlags:     flags,
		IsTFAEnabled:     a.OTP != "",
	}
	switch a.Role {
	case profile.RolePatient:
		p.PatientProfile = a.ProfileData
	case profile.RolePhysician:
		p.PhysicianProfile = a.ProfileData
	}
	return p
}
