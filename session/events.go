package session

import "github.com/jrsteele09/dortmed-client/profile"

// Reason says why a session ended.
type Reason int

const (
	ReasonExpired Reason = iota + 1
	ReasonLoggedOut
)

func (r Reason) String() string {
	switch r {
	case ReasonExpired:
		return "expired"
	case ReasonLoggedOut:
		return "logged_out"
	default:
		return "unknown"
	}
}

// Event is delivered to subscribers of a Session.
type Event interface {
	eventName() string
}

// Established is emitted when credentials are first installed, by login or by restore.
type Established struct{}

// CredentialsRefreshed is emitted after a successful token refresh.
type CredentialsRefreshed struct{}

// ProfileUpdated carries the new profile snapshot.
type ProfileUpdated struct {
	Profile *profile.Profile
}

// Ended is the teardown signal. Redirect is the login entry point the application should
// navigate to.
type Ended struct {
	Reason   Reason
	Redirect string
}

// PushMessage is a foreground push notification.
type PushMessage struct {
	Title string
	Body  string
	Data  map[string]string
}

func (Established) eventName() string          { return "established" }
func (CredentialsRefreshed) eventName() string { return "credentials_refreshed" }
func (ProfileUpdated) eventName() string       { return "profile_updated" }
func (Ended) eventName() string                { return "ended" }
func (PushMessage) eventName() string          { return "push_message" }

// Handler receives session events. Handlers run on the goroutine that caused the event
// and must not block.
type Handler func(Event)
