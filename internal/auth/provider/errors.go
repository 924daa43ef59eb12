package provider

import (
	"context"
	"errors"
	"fmt"
	"net"

	"golang.org/x/oauth2"
)

// Error codes the provider may return on the token endpoint that mean
// the grant itself is dead and user interaction is the only way out.
var interactionCodes = map[string]bool{
	"invalid_grant":        true,
	"interaction_required": true,
	"consent_required":     true,
	"login_required":       true,
}

// GrantError is a terminal token-endpoint rejection: the refresh token
// or authorization code was refused and retrying cannot help.
type GrantError struct {
	ProviderCode    string
	ProviderMessage string
}

func (e *GrantError) Error() string {
	return fmt.Sprintf("provider rejected grant (%s): %s", e.ProviderCode, e.ProviderMessage)
}

// TransientError is a reachability or server-side failure; the caller
// may retry with backoff.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("provider temporarily unavailable: %v", e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// ClassifyTokenError maps the oauth2 library's failure surface into the
// closed GrantError/TransientError taxonomy. This is the only place in
// the codebase that inspects library-specific error shapes.
func ClassifyTokenError(err error) error {
	if err == nil {
		return nil
	}

	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		code := retrieveErr.ErrorCode
		if interactionCodes[code] {
			return &GrantError{
				ProviderCode:    code,
				ProviderMessage: retrieveErr.ErrorDescription,
			}
		}
		// Anything else from the token endpoint (5xx, throttling,
		// invalid_client after a portal misconfiguration) leaves the
		// stored grant possibly still good, so it stays retryable
		// rather than forcing the user back through consent.
		return &TransientError{Err: err}
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return &TransientError{Err: err}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return &TransientError{Err: err}
	}

	return &TransientError{Err: err}
}
