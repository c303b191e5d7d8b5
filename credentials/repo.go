package credentials

import (
	"context"
	"fmt"
)

// Persisted keys. Teardown removes all three together.
const (
	KeyAccessToken  = "access_token"
	KeyRefreshToken = "refresh_token"
	KeyUser         = "user"
)

// Keys lists every persisted key.
var Keys = []string{KeyAccessToken, KeyRefreshToken, KeyUser}

// Repo is client-side persistent storage for the session so a restart does not force a
// full re-login. Get returns apperrors.ErrNotFound for a missing key. Clear must remove
// every key in one atomic step.
type Repo interface {
	Upsert(ctx context.Context, values map[string]string) error
	Get(ctx context.Context, key string) (string, error)
	Clear(ctx context.Context) error
}

// ValidateKeys rejects keys outside Keys.
func ValidateKeys(values map[string]string) error {
	for k := range values {
		switch k {
		case KeyAccessToken, KeyRefreshToken, KeyUser:
		default:
			return fmt.Errorf("unknown session key %q", k)
		}
	}
	return nil
}
