package errors_test

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	apperrors "github.com/jrsteele09/dortmed-client/internal/errors"
	"github.com/stretchr/testify/require"
)

func TestKindOf(t *testing.T) {
	t.Run("nil", func(t *testing.T) {
		require.Equal(t, apperrors.KindNone, apperrors.KindOf(nil))
	})

	t.Run("network error", func(t *testing.T) {
		err := &apperrors.NetworkError{Op: "GET", URL: "http://x/y", Err: context.DeadlineExceeded}
		require.Equal(t, apperrors.KindNetwork, apperrors.KindOf(err))
		require.ErrorIs(t, err, context.DeadlineExceeded)
	})

	t.Run("wrapped 401", func(t *testing.T) {
		err := fmt.Errorf("call failed: %w", &apperrors.APIError{Status: http.StatusUnauthorized})
		require.Equal(t, apperrors.KindUnauthorized, apperrors.KindOf(err))
	})

	t.Run("403 is not an expiry signal", func(t *testing.T) {
		err := &apperrors.APIError{Status: http.StatusForbidden, Detail: "Invalid authentication token"}
		require.Equal(t, apperrors.KindOther, apperrors.KindOf(err))
	})
}

func TestDetail(t *testing.T) {
	err := apperrors.Wrapf(&apperrors.APIError{Status: 401, Detail: apperrors.SecondFactorRequiredDetail}, "verify login")
	require.Equal(t, "2FA_REQUIRED", apperrors.Detail(err))
	require.Equal(t, "", apperrors.Detail(apperrors.ErrNetwork))
	require.Contains(t, err.Error(), "api error 401: 2FA_REQUIRED")
}

func TestWrapfNil(t *testing.T) {
	require.NoError(t, apperrors.Wrapf(nil, "nothing"))
}
