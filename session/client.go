package session

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/jrsteele09/dortmed-client/credentials"
	apperrors "github.com/jrsteele09/dortmed-client/internal/errors"
	"github.com/jrsteele09/dortmed-client/internal/metrics"
	"github.com/jrsteele09/dortmed-client/transport"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

const (
	RefreshPath = "/auth/token/refresh"

	defaultRefreshTimeout = 15 * time.Second
)

// Client performs authenticated backend calls on behalf of a Session. An expiry signal
// triggers one shared refresh and a single replay of the failed call; a failed refresh
// ends the session.
type Client struct {
	transport      *transport.Client
	session        *Session
	logoutPath     string
	refreshTimeout time.Duration
	log            zerolog.Logger

	refreshGroup singleflight.Group
}

type ClientOption func(*Client)

// WithLogoutPath sets the backend route that invalidates the remote session. Without
// it logout is local only.
func WithLogoutPath(path string) ClientOption {
	return func(c *Client) {
		c.logoutPath = path
	}
}

// WithRefreshTimeout bounds the shared refresh call.
func WithRefreshTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.refreshTimeout = d
		}
	}
}

func WithClientLogger(l zerolog.Logger) ClientOption {
	return func(c *Client) {
		c.log = l
	}
}

func NewClient(t *transport.Client, s *Session, opts ...ClientOption) (*Client, error) {
	if t == nil {
		return nil, apperrors.New("[NewClient] transport is required")
	}
	if s == nil {
		return nil, apperrors.New("[NewClient] session is required")
	}
	c := &Client{
		transport:      t,
		session:        s,
		refreshTimeout: defaultRefreshTimeout,
		log:            log.Logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) Session() *Session {
	return c.session
}

func (c *Client) Transport() *transport.Client {
	return c.transport
}

// Establish installs credentials obtained by a completed login.
func (c *Client) Establish(ctx context.Context, creds credentials.Credentials) error {
	return c.session.establish(ctx, creds)
}

// Do issues r with the current bearer token. A 401 on the first attempt is answered
// with a refresh and one replay; the replay's outcome is returned as is. Network
// errors and every other status are returned unchanged.
func (c *Client) Do(ctx context.Context, r transport.Request) (*transport.Response, error) {
	for attempt := 0; ; attempt++ {
		creds, gen, active := c.session.snapshot()
		r.BearerToken = ""
		if active {
			r.BearerToken = creds.AccessToken
		}

		resp, err := c.transport.Do(ctx, r)
		if !ShouldRetry(attempt, apperrors.KindOf(err)) {
			return resp, err
		}
		if !active {
			// Nothing to refresh or tear down.
			return nil, err
		}
		if err := c.refresh(ctx, creds.AccessToken, gen); err != nil {
			return nil, err
		}
	}
}

// Request is Do for a method, path and optional body. A url.Values body is sent
// form-encoded; anything else as JSON.
func (c *Client) Request(ctx context.Context, method, path string, body any) (*transport.Response, error) {
	r := transport.Request{Method: method, Path: path}
	switch b := body.(type) {
	case nil:
	case url.Values:
		r.Form = b
	default:
		r.JSON = b
	}
	return c.Do(ctx, r)
}

// GetJSON fetches path and decodes the response into out.
func (c *Client) GetJSON(ctx context.Context, path string, out any) error {
	resp, err := c.Request(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	return resp.Decode(out)
}

// PostJSON posts in as JSON and decodes the response into out when out is not nil.
func (c *Client) PostJSON(ctx context.Context, path string, in, out any) error {
	resp, err := c.Request(ctx, http.MethodPost, path, in)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return resp.Decode(out)
}

// PostForm posts form and decodes the response into out when out is not nil.
func (c *Client) PostForm(ctx context.Context, path string, form url.Values, out any) error {
	if form == nil {
		form = url.Values{}
	}
	return c.PostJSON(ctx, path, form, out)
}

// Logout invalidates the remote session when a logout route is configured, then clears
// all local state and emits Ended. In-flight calls are not cancelled. A failed remote
// call does not prevent the local teardown.
func (c *Client) Logout(ctx context.Context) error {
	creds, _, active := c.session.snapshot()
	if active && c.logoutPath != "" {
		_, err := c.transport.Do(ctx, transport.Request{
			Method:      http.MethodPost,
			Path:        c.logoutPath,
			BearerToken: creds.AccessToken,
		})
		if err != nil {
			c.log.Warn().Err(err).Msg("remote logout failed")
		}
	}
	_, err := c.session.teardown(context.WithoutCancel(ctx), ReasonLoggedOut, 0, true)
	return err
}

type refreshResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
}

// refresh obtains new credentials for the session generation gen whose token stale was
// rejected. All callers share one in-flight refresh. A caller whose context ends stops
// waiting; the refresh itself keeps running.
func (c *Client) refresh(ctx context.Context, stale string, gen uint64) error {
	refreshCtx := context.WithoutCancel(ctx)
	// One flight per session generation; a newer session never joins an older refresh.
	ch := c.refreshGroup.DoChan(strconv.FormatUint(gen, 10), func() (any, error) {
		return nil, c.doRefresh(refreshCtx, stale, gen)
	})

	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) doRefresh(ctx context.Context, stale string, gen uint64) error {
	creds, curGen, active := c.session.snapshot()
	switch {
	case !active || curGen != gen:
		return apperrors.ErrSessionExpired
	case creds.AccessToken != stale:
		// Another caller already refreshed this session.
		return nil
	case !creds.CanRefresh():
		metrics.RefreshTotal.WithLabelValues("missing_token").Inc()
		c.log.Info().Msg("no refresh token, ending session")
		return c.expire(ctx, gen, apperrors.New("no refresh token"))
	}

	ctx, cancel := context.WithTimeout(ctx, c.refreshTimeout)
	defer cancel()

	c.log.Debug().Msg("refreshing credentials")
	resp, err := c.transport.Do(ctx, transport.Request{
		Method: http.MethodPost,
		Path:   RefreshPath,
		Form:   url.Values{"refresh_token": {creds.RefreshToken}},
	})
	if _, curGen, active := c.session.snapshot(); !active || curGen != gen {
		// The session this refresh belonged to has already ended.
		return apperrors.ErrSessionExpired
	}
	if err != nil {
		metrics.RefreshTotal.WithLabelValues("failure").Inc()
		return c.expire(ctx, gen, err)
	}

	var body refreshResponse
	if err := resp.Decode(&body); err != nil {
		metrics.RefreshTotal.WithLabelValues("failure").Inc()
		return c.expire(ctx, gen, err)
	}
	if body.AccessToken == "" {
		metrics.RefreshTotal.WithLabelValues("failure").Inc()
		return c.expire(ctx, gen, apperrors.New("refresh response carried no access token"))
	}
	if body.RefreshToken == "" {
		body.RefreshToken = creds.RefreshToken
	}

	if !c.session.replace(ctx, gen, credentials.New(body.AccessToken, body.RefreshToken)) {
		return apperrors.ErrSessionExpired
	}
	metrics.RefreshTotal.WithLabelValues("success").Inc()
	c.log.Debug().Msg("credentials refreshed")
	return nil
}

func (c *Client) expire(ctx context.Context, gen uint64, cause error) error {
	c.log.Warn().Err(cause).Msg("credential refresh failed")
	if _, err := c.session.teardown(context.WithoutCancel(ctx), ReasonExpired, gen, false); err != nil {
		c.log.Err(err).Msg("session teardown incomplete")
	}
	return fmt.Errorf("%w: %v", apperrors.ErrSessionExpired, cause)
}
