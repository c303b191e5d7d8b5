package identity

import (
	"context"
	"time"
)

// Identity is a signed-in account at the external identity provider. IDToken is
// short-lived and is obtained again for every backend exchange.
type Identity struct {
	UID           string
	Email         string
	EmailVerified bool
	IDToken       string
	RefreshToken  string
	ExpiresAt     time.Time
}

// Provider verifies passwords and issues identity tokens. The backend never sees a
// password; it only sees the IDToken a Provider returns.
//
// SignIn returns apperrors.ErrInvalidCredentials when the provider rejects the email or
// password. CreateUser returns apperrors.ErrEmailInUse for an existing account.
type Provider interface {
	SignIn(ctx context.Context, email, password string) (*Identity, error)
	SignOut(ctx context.Context) error
	CreateUser(ctx context.Context, email, password string) (*Identity, error)
	SendEmailVerification(ctx context.Context, id *Identity) error
}
