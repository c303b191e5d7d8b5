// Package notifications registers the device for push delivery and feeds foreground
// push messages into the session's event stream.
package notifications

import (
	"context"
	"strings"

	apperrors "github.com/jrsteele09/dortmed-client/internal/errors"
	"github.com/jrsteele09/dortmed-client/session"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const RegisterDevicePath = "/notifications/register-device"

type Notifier struct {
	client *session.Client
	log    zerolog.Logger
}

type Option func(*Notifier)

func WithLogger(l zerolog.Logger) Option {
	return func(n *Notifier) {
		n.log = l
	}
}

func New(client *session.Client, opts ...Option) (*Notifier, error) {
	if client == nil {
		return nil, apperrors.New("[notifications.New] session client is required")
	}
	n := &Notifier{
		client: client,
		log:    log.Logger,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n, nil
}

type registerDeviceRequest struct {
	FCMToken string `json:"fcm_token"`
}

type registerDeviceResponse struct {
	Message string `json:"message"`
}

// RegisterDevice records the device's push token with the backend for the current user.
// It returns the backend's confirmation message.
func (n *Notifier) RegisterDevice(ctx context.Context, token string) (string, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", apperrors.New("[RegisterDevice] push token is required")
	}
	if !n.client.Session().Active() {
		return "", apperrors.Wrapf(apperrors.ErrNoSession, "[RegisterDevice]")
	}

	var resp registerDeviceResponse
	if err := n.client.PostJSON(ctx, RegisterDevicePath, registerDeviceRequest{FCMToken: token}, &resp); err != nil {
		return "", apperrors.Wrapf(err, "[RegisterDevice]")
	}
	n.log.Info().Msg("push device registered")
	return resp.Message, nil
}

// Pump forwards messages from src to the session's subscribers until src is closed or
// ctx ends. Messages that arrive while no profile is loaded are dropped.
func (n *Notifier) Pump(ctx context.Context, src <-chan session.PushMessage) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-src:
			if !ok {
				return nil
			}
			if !n.client.Session().DeliverPush(msg) {
				n.log.Debug().Str("title", msg.Title).Msg("push message dropped, no profile loaded")
			}
		}
	}
}

// OnMessage calls fn for every delivered push message. The returned function stops it.
func (n *Notifier) OnMessage(fn func(session.PushMessage)) func() {
	return n.client.Session().Subscribe(func(e session.Event) {
		if msg, ok := e.(session.PushMessage); ok {
			fn(msg)
		}
	})
}
