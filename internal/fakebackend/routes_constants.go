package fakebackend

// Route path constants
const (
	APIPrefix     = "/api"
	ToolkitPrefix = "/identitytoolkit/v1"
	IssuerPrefix  = "/oidc"

	// Backend API routes
	RouteVerifyLogin    = "/auth/verify-login"
	RouteMe             = "/auth/me"
	RouteTokenRefresh   = "/auth/token/refresh"
	RouteLogout         = "/auth/logout"
	RouteSetupProfile   = "/auth/setup-profile"
	RouteHealth         = "/health"
	RouteRegisterDevice = "/notifications/register-device"
	RouteChatWS         = "/chat/ws/{conversationID}"

	// Identity Toolkit routes, e.g. /accounts:signInWithPassword
	RouteToolkitMethod = "/{method}"

	// OIDC issuer routes
	RouteWellKnownOpenIDConfig = "/.well-known/openid-configuration"
	RouteWellKnownJWKS         = "/.well-known/jwks.json"
	RouteOIDCToken             = "/token"
	RouteOIDCRevoke            = "/revoke"

	RouteMetrics = "/metrics"
)

// Call counter names reported by Backend.Calls.
const (
	CallVerifyLogin    = "verify-login"
	CallMe             = "me"
	CallRefresh        = "refresh"
	CallLogout         = "logout"
	CallSetupProfile   = "setup-profile"
	CallRegisterDevice = "register-device"
	CallChat           = "chat"
	CallSignIn         = "sign-in"
	CallSignUp         = "sign-up"
	CallSendOob        = "send-oob"
	CallOIDCToken      = "oidc-token"
	CallOIDCRevoke     = "oidc-revoke"
)
