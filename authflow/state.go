package authflow

// State is a login flow state.
type State int32

const (
	StateIdle State = iota
	StateSubmittingCredentials
	StateAwaitingSecondFactor
	StateAuthenticating
	StateAuthenticated
	StateFailed
	StateLoggedOut
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSubmittingCredentials:
		return "submitting_credentials"
	case StateAwaitingSecondFactor:
		return "awaiting_second_factor"
	case StateAuthenticating:
		return "authenticating"
	case StateAuthenticated:
		return "authenticated"
	case StateFailed:
		return "failed"
	case StateLoggedOut:
		return "logged_out"
	default:
		return "unknown"
	}
}

// canSubmit reports whether a credential submission may start from s.
func (s State) canSubmit() bool {
	switch s {
	case StateIdle, StateAwaitingSecondFactor, StateFailed, StateLoggedOut:
		return true
	default:
		return false
	}
}

// loginAttempt lives for one login interaction. The password is kept only so the
// second factor submission can sign in again for a fresh identity token.
type loginAttempt struct {
	email    string
	password []byte
}

func newLoginAttempt(email, password string) *loginAttempt {
	return &loginAttempt{email: email, password: []byte(password)}
}

func (a *loginAttempt) wipe() {
	if a == nil {
		return
	}
	for i := range a.password {
		a.password[i] = 0
	}
	a.password = nil
	a.email = ""
}
