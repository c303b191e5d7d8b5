package session

import apperrors "github.com/jrsteele09/dortmed-client/internal/errors"

// ShouldRetry decides whether a failed call is replayed. Only the first attempt is
// replayed, and only when it failed with an expiry signal.
func ShouldRetry(attempt int, kind apperrors.Kind) bool {
	return attempt == 0 && kind == apperrors.KindUnauthorized
}
