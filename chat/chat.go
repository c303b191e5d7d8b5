// Package chat connects to a conversation's WebSocket. A connection is never
// re-established automatically; once it closes, callers dial again.
package chat

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	apperrors "github.com/jrsteele09/dortmed-client/internal/errors"
	"github.com/jrsteele09/dortmed-client/session"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	chatPath     = "/chat/ws/"
	writeTimeout = 10 * time.Second
	bufferSize   = 32
)

// Message is one chat message as delivered by the backend.
type Message struct {
	ConversationID string    `json:"conversation_id"`
	SenderID       string    `json:"sender_id"`
	Content        string    `json:"content"`
	Timestamp      time.Time `json:"timestamp"`
}

type outgoing struct {
	Content string `json:"content"`
}

// Dialer opens chat connections authenticated with the session's access token.
type Dialer struct {
	wsURL   string
	session *session.Session
	dialer  *websocket.Dialer
	log     zerolog.Logger
}

type Option func(*Dialer)

func WithDialer(d *websocket.Dialer) Option {
	return func(cd *Dialer) {
		cd.dialer = d
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(cd *Dialer) {
		cd.log = l
	}
}

// NewDialer creates a Dialer for the websocket base URL (e.g. "wss://host/api").
func NewDialer(wsURL string, s *session.Session, opts ...Option) (*Dialer, error) {
	if s == nil {
		return nil, apperrors.New("[chat.NewDialer] session is required")
	}
	u, err := url.Parse(wsURL)
	if err != nil {
		return nil, apperrors.Wrapf(err, "[chat.NewDialer] parse %q", wsURL)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, apperrors.New("[chat.NewDialer] websocket url must use ws or wss")
	}
	d := &Dialer{
		wsURL:   strings.TrimRight(wsURL, "/"),
		session: s,
		dialer:  websocket.DefaultDialer,
		log:     log.Logger,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// URL returns the connection URL for a conversation. The access token travels as the
// token query parameter.
func (d *Dialer) URL(conversationID, token string) string {
	return d.wsURL + chatPath + url.PathEscape(conversationID) + "?" + url.Values{"token": {token}}.Encode()
}

// Dial connects to a conversation. It fails with ErrNoSession when no session is held.
func (d *Dialer) Dial(ctx context.Context, conversationID string) (*Conn, error) {
	creds, ok := d.session.Credentials()
	if !ok {
		return nil, apperrors.Wrapf(apperrors.ErrNoSession, "[chat.Dial]")
	}
	if conversationID == "" {
		return nil, apperrors.New("[chat.Dial] conversation id is required")
	}

	target := d.URL(conversationID, creds.AccessToken)
	ws, resp, err := d.dialer.DialContext(ctx, target, nil)
	if err != nil {
		if resp != nil {
			return nil, apperrors.Wrapf(&apperrors.APIError{Status: resp.StatusCode}, "[chat.Dial] handshake")
		}
		return nil, &apperrors.NetworkError{Op: "dial", URL: d.wsURL + chatPath + conversationID, Err: err}
	}

	c := &Conn{
		conversationID: conversationID,
		ws:             ws,
		messages:       make(chan Message, bufferSize),
		done:           make(chan struct{}),
		log:            d.log.With().Str("conversation_id", conversationID).Logger(),
	}
	c.unsubscribe = d.session.Subscribe(func(e session.Event) {
		if _, ok := e.(session.Ended); ok {
			go c.Close()
		}
	})
	go c.readLoop()
	c.log.Info().Msg("chat connected")
	return c, nil
}

// Conn is an open chat connection. Messages arrive on Messages until the connection
// closes, at which point the channel is closed and Err reports why.
type Conn struct {
	conversationID string
	ws             *websocket.Conn
	messages       chan Message
	done           chan struct{}
	unsubscribe    func()
	log            zerolog.Logger

	writeLock sync.Mutex
	closeOnce sync.Once

	errLock sync.Mutex
	err     error
}

// ConversationID returns the conversation this connection belongs to.
func (c *Conn) ConversationID() string {
	return c.conversationID
}

// Messages returns the receive channel.
func (c *Conn) Messages() <-chan Message {
	return c.messages
}

// Send writes a message. It fails with ErrNotConnected once the connection is closed.
func (c *Conn) Send(ctx context.Context, content string) error {
	select {
	case <-c.done:
		return apperrors.ErrNotConnected
	default:
	}

	c.writeLock.Lock()
	defer c.writeLock.Unlock()

	deadline := time.Now().Add(writeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := c.ws.SetWriteDeadline(deadline); err != nil {
		return apperrors.Wrapf(apperrors.ErrNotConnected, "[chat.Send] %v", err)
	}
	if err := c.ws.WriteJSON(outgoing{Content: content}); err != nil {
		c.shutdown(err)
		return apperrors.Wrapf(apperrors.ErrNotConnected, "[chat.Send] %v", err)
	}
	return nil
}

// Close closes the connection. It is safe to call more than once.
func (c *Conn) Close() error {
	c.writeLock.Lock()
	_ = c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	c.writeLock.Unlock()
	c.shutdown(nil)
	return nil
}

// Done is closed when the connection has shut down.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// Err returns the error that ended the connection, or nil for a normal close.
func (c *Conn) Err() error {
	c.errLock.Lock()
	defer c.errLock.Unlock()
	return c.err
}

func (c *Conn) shutdown(cause error) {
	c.closeOnce.Do(func() {
		if cause != nil && !websocket.IsCloseError(cause, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			c.errLock.Lock()
			c.err = cause
			c.errLock.Unlock()
		}
		close(c.done)
		_ = c.ws.Close()
		c.log.Info().Err(cause).Msg("chat closed")
	})
}

func (c *Conn) readLoop() {
	defer func() {
		c.unsubscribe()
		close(c.messages)
	}()
	for {
		var m Message
		if err := c.ws.ReadJSON(&m); err != nil {
			c.shutdown(err)
			return
		}
		select {
		case c.messages <- m:
		case <-c.done:
			return
		}
	}
}

// IsForbidden reports whether err is a rejected handshake.
func IsForbidden(err error) bool {
	var apiErr *apperrors.APIError
	return apperrors.As(err, &apiErr) && apiErr.Status == http.StatusForbidden
}
