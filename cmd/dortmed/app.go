package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/jrsteele09/dortmed-client/authflow"
	"github.com/jrsteele09/dortmed-client/chat"
	"github.com/jrsteele09/dortmed-client/credentials"
	"github.com/jrsteele09/dortmed-client/credentials/filestore"
	"github.com/jrsteele09/dortmed-client/credentials/redisstore"
	credentialsrepofake "github.com/jrsteele09/dortmed-client/credentials/repofake"
	"github.com/jrsteele09/dortmed-client/identity"
	"github.com/jrsteele09/dortmed-client/identity/firebase"
	"github.com/jrsteele09/dortmed-client/identity/oidcprovider"
	"github.com/jrsteele09/dortmed-client/internal/config"
	"github.com/jrsteele09/dortmed-client/notifications"
	"github.com/jrsteele09/dortmed-client/session"
	"github.com/jrsteele09/dortmed-client/transport"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// app holds the wired client stack for one command.
type app struct {
	api        *transport.Client
	client     *session.Client
	flow       *authflow.Flow
	chatDialer *chat.Dialer
	notifier   *notifications.Notifier
	closers    []func() error
}

func newApp(ctx context.Context, c config.Config) (*app, error) {
	a := &app{}

	opts := []transport.Option{
		transport.WithTimeout(c.GetRequestTimeout()),
		transport.WithLogger(log.Logger),
		transport.WithUserAgent(c.GetAppName() + "-cli"),
	}
	if c.GetCircuitBreakerEnabled() {
		opts = append(opts, transport.WithCircuitBreaker(transport.DefaultBreakerConfig()))
	}
	a.api = transport.New(c.GetAPIURL(), opts...)

	repo, err := a.newRepo(c)
	if err != nil {
		return nil, err
	}
	sess, err := session.New(repo, session.WithLoginPath(c.GetLoginPath()), session.WithLogger(log.Logger))
	if err != nil {
		return nil, err
	}
	a.client, err = session.NewClient(a.api, sess,
		session.WithLogoutPath(c.GetLogoutPath()),
		session.WithRefreshTimeout(c.GetRefreshTimeout()),
		session.WithClientLogger(log.Logger))
	if err != nil {
		return nil, err
	}

	provider, err := newProvider(ctx, c)
	if err != nil {
		return nil, err
	}
	if a.flow, err = authflow.New(provider, a.client, authflow.WithLogger(log.Logger)); err != nil {
		return nil, err
	}
	if a.chatDialer, err = chat.NewDialer(c.GetWSURL(), sess, chat.WithLogger(log.Logger)); err != nil {
		return nil, err
	}
	if a.notifier, err = notifications.New(a.client, notifications.WithLogger(log.Logger)); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *app) newRepo(c config.StorageConfig) (credentials.Repo, error) {
	switch c.GetStoreType() {
	case config.StoreFile:
		return filestore.New(c.GetStoreFile(), filestore.WithHexKey(c.GetStoreKey()))
	case config.StoreRedis:
		rdb := redis.NewClient(&redis.Options{Addr: c.GetRedisAddr()})
		a.closers = append(a.closers, rdb.Close)
		return redisstore.New(rdb, c.GetRedisPrefix()), nil
	case config.StoreMemory:
		return credentialsrepofake.NewFakeCredentialsRepo(), nil
	default:
		return nil, fmt.Errorf("unknown store type %q", c.GetStoreType())
	}
}

// newProvider builds the identity provider. ctx must outlive the provider: the OIDC
// key set keeps using it for key refreshes.
func newProvider(ctx context.Context, c config.Config) (identity.Provider, error) {
	switch c.GetIdentityProvider() {
	case config.ProviderFirebase:
		t := transport.New(c.GetFirebaseURL(),
			transport.WithTimeout(c.GetRequestTimeout()),
			transport.WithLogger(log.Logger))
		return firebase.New(c.GetFirebaseAPIKey(), t)
	case config.ProviderOIDC:
		hc := &http.Client{Timeout: c.GetRequestTimeout()}
		return oidcprovider.New(ctx, c.GetOIDCIssuer(), c.GetOIDCClientID(), c.GetOIDCClientSecret(),
			oidcprovider.WithHTTPClient(hc),
			oidcprovider.WithLogger(log.Logger))
	default:
		return nil, fmt.Errorf("unknown identity provider %q", c.GetIdentityProvider())
	}
}

func (a *app) Close() {
	for _, closer := range a.closers {
		if err := closer(); err != nil {
			log.Warn().Err(err).Msg("close failed")
		}
	}
}
