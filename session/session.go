package session

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/jrsteele09/dortmed-client/credentials"
	apperrors "github.com/jrsteele09/dortmed-client/internal/errors"
	"github.com/jrsteele09/dortmed-client/internal/metrics"
	"github.com/jrsteele09/dortmed-client/profile"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const defaultLoginPath = "/login"

// Session is the process-wide holder of the current Credentials and Profile. It is
// created once and passed to the components that need it. Credentials are written only
// by the Client (login and refresh); the profile only through SetProfile.
type Session struct {
	repo      credentials.Repo
	loginPath string
	log       zerolog.Logger

	lock       sync.RWMutex
	creds      *credentials.Credentials
	profile    *profile.Profile
	generation uint64

	subLock  sync.RWMutex
	handlers map[uint64]Handler
	nextID   uint64
}

type Option func(*Session)

// WithLoginPath sets the redirect carried by Ended events.
func WithLoginPath(path string) Option {
	return func(s *Session) {
		if path != "" {
			s.loginPath = path
		}
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(s *Session) {
		s.log = l
	}
}

// New creates an empty session backed by repo.
func New(repo credentials.Repo, opts ...Option) (*Session, error) {
	if repo == nil {
		return nil, apperrors.New("[session.New] credentials repo is required")
	}
	s := &Session{
		repo:      repo,
		loginPath: defaultLoginPath,
		log:       log.Logger,
		handlers:  make(map[uint64]Handler),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Credentials returns a copy of the current credentials.
func (s *Session) Credentials() (credentials.Credentials, bool) {
	creds, _, ok := s.snapshot()
	return creds, ok
}

// Profile returns a copy of the current profile, or nil when none is loaded.
func (s *Session) Profile() *profile.Profile {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.profile.Clone()
}

// Active reports whether credentials are held.
func (s *Session) Active() bool {
	_, ok := s.Credentials()
	return ok
}

// LoginPath is the login entry point.
func (s *Session) LoginPath() string {
	return s.loginPath
}

func (s *Session) snapshot() (credentials.Credentials, uint64, bool) {
	s.lock.RLock()
	defer s.lock.RUnlock()
	if s.creds == nil {
		return credentials.Credentials{}, s.generation, false
	}
	return *s.creds, s.generation, true
}

// establish installs credentials for a new session, dropping any previous profile.
func (s *Session) establish(ctx context.Context, c credentials.Credentials) error {
	if c.AccessToken == "" {
		return apperrors.New("[session.establish] access token is required")
	}

	s.lock.Lock()
	if err := s.repo.Clear(ctx); err != nil {
		s.lock.Unlock()
		return apperrors.Wrapf(err, "[session.establish] clear previous session")
	}
	if err := s.repo.Upsert(ctx, c.Values()); err != nil {
		s.lock.Unlock()
		return apperrors.Wrapf(err, "[session.establish] persist credentials")
	}
	s.creds = &c
	s.profile = nil
	s.generation++
	s.lock.Unlock()

	s.emit(Established{})
	return nil
}

// replace swaps in refreshed credentials if gen is still the current session. It
// reports false when the session was torn down or replaced in the meantime.
func (s *Session) replace(ctx context.Context, gen uint64, c credentials.Credentials) bool {
	s.lock.Lock()
	if s.creds == nil || s.generation != gen {
		s.lock.Unlock()
		return false
	}
	if err := s.repo.Upsert(ctx, c.Values()); err != nil {
		// The in-memory pair is still valid for this process.
		s.log.Warn().Err(err).Msg("failed to persist refreshed credentials")
	}
	s.creds = &c
	s.lock.Unlock()

	s.emit(CredentialsRefreshed{})
	return true
}

// SetProfile replaces the profile snapshot. A profile cannot exist without credentials.
func (s *Session) SetProfile(ctx context.Context, p *profile.Profile) error {
	if p == nil {
		return apperrors.New("[SetProfile] profile is required")
	}
	doc, err := json.Marshal(p)
	if err != nil {
		return apperrors.Wrapf(err, "[SetProfile] encode profile")
	}

	s.lock.Lock()
	if s.creds == nil {
		s.lock.Unlock()
		return apperrors.ErrNoSession
	}
	if err := s.repo.Upsert(ctx, map[string]string{credentials.KeyUser: string(doc)}); err != nil {
		s.lock.Unlock()
		return apperrors.Wrapf(err, "[SetProfile] persist profile")
	}
	s.profile = p.Clone()
	s.lock.Unlock()

	s.emit(ProfileUpdated{Profile: p.Clone()})
	return nil
}

// Restore loads a persisted session into memory. It reports false when nothing usable
// is stored. The persisted profile copy is loaded when it still decodes.
func (s *Session) Restore(ctx context.Context) (bool, error) {
	creds, err := credentials.Load(ctx, s.repo)
	if apperrors.Is(err, apperrors.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, apperrors.Wrapf(err, "[Restore] load credentials")
	}

	var p *profile.Profile
	if raw, err := s.repo.Get(ctx, credentials.KeyUser); err == nil && raw != "" {
		if p, err = profile.Decode([]byte(raw)); err != nil {
			s.log.Warn().Err(err).Msg("discarding stored profile")
		}
	}

	s.lock.Lock()
	s.creds = creds
	s.profile = p
	s.generation++
	s.lock.Unlock()

	s.emit(Established{})
	return true, nil
}

// teardown clears memory and then the store, and emits Ended afterwards. When force is
// false the teardown only applies if gen is still the live session, so concurrent
// failures of one session produce a single Ended event.
func (s *Session) teardown(ctx context.Context, reason Reason, gen uint64, force bool) (bool, error) {
	s.lock.Lock()
	if !force && (s.creds == nil || s.generation != gen) {
		s.lock.Unlock()
		return false, nil
	}
	s.creds = nil
	s.profile = nil
	s.generation++
	err := s.repo.Clear(ctx)
	s.lock.Unlock()

	if err != nil {
		s.log.Err(err).Str("reason", reason.String()).Msg("failed to clear persisted session")
	}
	metrics.TeardownTotal.WithLabelValues(reason.String()).Inc()
	s.log.Info().Str("reason", reason.String()).Msg("session ended")

	s.emit(Ended{Reason: reason, Redirect: s.loginPath})
	return true, apperrors.Wrapf(err, "[teardown] clear store")
}

// Subscribe registers h for session events and returns a function that removes it.
func (s *Session) Subscribe(h Handler) func() {
	s.subLock.Lock()
	defer s.subLock.Unlock()

	id := s.nextID
	s.nextID++
	s.handlers[id] = h

	var once sync.Once
	return func() {
		once.Do(func() {
			s.subLock.Lock()
			defer s.subLock.Unlock()
			delete(s.handlers, id)
		})
	}
}

// DeliverPush forwards a push message to subscribers while a profile is loaded. It
// reports whether the message was delivered.
func (s *Session) DeliverPush(msg PushMessage) bool {
	s.lock.RLock()
	loaded := s.profile != nil
	s.lock.RUnlock()
	if !loaded {
		return false
	}
	s.emit(msg)
	return true
}

func (s *Session) emit(e Event) {
	s.subLock.RLock()
	handlers := make([]Handler, 0, len(s.handlers))
	for _, h := range s.handlers {
		handlers = append(handlers, h)
	}
	s.subLock.RUnlock()

	s.log.Debug().Str("event", e.eventName()).Int("subscribers", len(handlers)).Msg("session event")
	for _, h := range handlers {
		h(e)
	}
}
