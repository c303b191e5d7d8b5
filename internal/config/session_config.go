package config

import "time"

type SessionConfig interface {
	GetRequestTimeout() time.Duration
	GetRefreshTimeout() time.Duration
	GetLogoutPath() string
	GetLoginPath() string
	GetCircuitBreakerEnabled() bool
}

type Session struct {
	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT" envDefault:"30s"`
	RefreshTimeout time.Duration `env:"REFRESH_TIMEOUT" envDefault:"15s"`
	LogoutPath     string        `env:"LOGOUT_PATH"`
	LoginPath      string        `env:"LOGIN_PATH" envDefault:"/login"`
	CircuitBreaker bool          `env:"CIRCUIT_BREAKER" envDefault:"false"`
}

var _ SessionConfig = Session{}

func (s Session) GetRequestTimeout() time.Duration {
	return s.RequestTimeout
}

func (s Session) GetRefreshTimeout() time.Duration {
	return s.RefreshTimeout
}

// GetLogoutPath is the backend route that invalidates the remote session. Empty means
// the backend exposes none and logout is local only.
func (s Session) GetLogoutPath() string {
	return s.LogoutPath
}

func (s Session) GetLoginPath() string {
	return s.LoginPath
}

func (s Session) GetCircuitBreakerEnabled() bool {
	return s.CircuitBreaker
}
