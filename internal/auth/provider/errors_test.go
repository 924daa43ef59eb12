package provider

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"golang.org/x/oauth2"
)

func retrieveError(code, desc string, status int) *oauth2.RetrieveError {
	return &oauth2.RetrieveError{
		Response:         &http.Response{StatusCode: status},
		ErrorCode:        code,
		ErrorDescription: desc,
	}
}

func TestClassifyTokenError(t *testing.T) {
	t.Run("nil passes through", func(t *testing.T) {
		require.NoError(t, ClassifyTokenError(nil))
	})

	t.Run("invalid_grant is terminal", func(t *testing.T) {
		err := ClassifyTokenError(retrieveError("invalid_grant", "AADSTS70008: expired", 400))

		var grantErr *GrantError
		require.ErrorAs(t, err, &grantErr)
		assert.Equal(t, "invalid_grant", grantErr.ProviderCode)
		assert.Contains(t, grantErr.ProviderMessage, "AADSTS70008")
	})

	t.Run("interaction_required is terminal", func(t *testing.T) {
		err := ClassifyTokenError(retrieveError("interaction_required", "", 400))

		var grantErr *GrantError
		require.ErrorAs(t, err, &grantErr)
	})

	t.Run("server errors are transient", func(t *testing.T) {
		err := ClassifyTokenError(retrieveError("temporarily_unavailable", "", 503))

		var transientErr *TransientError
		require.ErrorAs(t, err, &transientErr)
	})

	t.Run("deadline exceeded is transient", func(t *testing.T) {
		err := ClassifyTokenError(context.DeadlineExceeded)

		var transientErr *TransientError
		require.ErrorAs(t, err, &transientErr)
	})

	t.Run("plain network failure is transient", func(t *testing.T) {
		err := ClassifyTokenError(errors.New("dial tcp: connection refused"))

		var transientErr *TransientError
		require.ErrorAs(t, err, &transientErr)
	})

	t.Run("transient errors keep their cause", func(t *testing.T) {
		cause := errors.New("boom")
		err := ClassifyTokenError(cause)
		require.ErrorIs(t, err, cause)
	})
}
