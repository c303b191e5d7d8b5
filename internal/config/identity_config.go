package config

type ProviderType string

const (
	ProviderFirebase ProviderType = "firebase"
	ProviderOIDC     ProviderType = "oidc"
)

type IdentityConfig interface {
	GetIdentityProvider() ProviderType
	GetFirebaseAPIKey() string
	GetFirebaseURL() string
	GetOIDCIssuer() string
	GetOIDCClientID() string
	GetOIDCClientSecret() string
}

type Identity struct {
	Provider         ProviderType `env:"IDENTITY_PROVIDER" envDefault:"firebase"`
	FirebaseAPIKey   string       `env:"FIREBASE_API_KEY"`
	FirebaseURL      string       `env:"FIREBASE_URL" envDefault:"https://identitytoolkit.googleapis.com/v1"`
	OIDCIssuer       string       `env:"OIDC_ISSUER"`
	OIDCClientID     string       `env:"OIDC_CLIENT_ID"`
	OIDCClientSecret string       `env:"OIDC_CLIENT_SECRET"`
}

var _ IdentityConfig = Identity{}

func (i Identity) GetIdentityProvider() ProviderType {
	return i.Provider
}

func (i Identity) GetFirebaseAPIKey() string {
	return i.FirebaseAPIKey
}

func (i Identity) GetFirebaseURL() string {
	return i.FirebaseURL
}

func (i Identity) GetOIDCIssuer() string {
	return i.OIDCIssuer
}

func (i Identity) GetOIDCClientID() string {
	return i.OIDCClientID
}

func (i Identity) GetOIDCClientSecret() string {
	return i.OIDCClientSecret
}
