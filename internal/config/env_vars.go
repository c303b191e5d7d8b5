package config

import (
	"net/url"
	"strings"
)

type EnvVars struct {
	AppName  string `env:"APP_NAME" envDefault:"DortMed"`
	Env      string `env:"ENV" envDefault:"DEV"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
	APIURL   string `env:"API_URL" envDefault:"http://localhost:8000/api"`
	WSURL    string `env:"WS_URL"`
}

var _ EnvConfig = EnvVars{}

func (e EnvVars) GetAppName() string {
	return e.AppName
}

func (e EnvVars) GetEnv() string {
	return e.Env
}

func (e EnvVars) GetLogLevel() string {
	return e.LogLevel
}

// GetAPIURL returns the backend base URL without a trailing slash.
func (e EnvVars) GetAPIURL() string {
	return strings.TrimRight(e.APIURL, "/")
}

// GetWSURL returns the websocket base URL. When WS_URL is unset it is derived from
// API_URL by swapping http(s) for ws(s).
func (e EnvVars) GetWSURL() string {
	if e.WSURL != "" {
		return strings.TrimRight(e.WSURL, "/")
	}
	return DeriveWSURL(e.GetAPIURL())
}

// DeriveWSURL maps an http(s) base URL to the matching ws(s) URL.
func DeriveWSURL(apiURL string) string {
	u, err := url.Parse(apiURL)
	if err != nil {
		return apiURL
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	}
	return strings.TrimRight(u.String(), "/")
}
