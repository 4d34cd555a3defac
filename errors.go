package sessionkit

import (
	"errors"
	"net/http"

	"github.com/sessionkit/sessionkit/internal/action"
	"github.com/sessionkit/sessionkit/internal/machine"
)

var (
	// ErrUserAlreadySignedIn is an exported constant or variable used by the session engine.
	ErrUserAlreadySignedIn = machine.ErrAlreadySignedIn
	// ErrUserUnauthenticated is an exported constant or variable used by the session engine.
	ErrUserUnauthenticated = machine.ErrUnauthenticated
	// ErrClientStopped is an exported constant or variable used by the session engine.
	ErrClientStopped = machine.ErrStopped
	// ErrEmailNeedsVerification is an exported constant or variable used by the session engine.
	ErrEmailNeedsVerification = errors.New("email needs verification")
	// ErrNotImplemented is an exported constant or variable used by the session engine.
	ErrNotImplemented = errors.New("not implemented")
	// ErrClientNotStarted is an exported constant or variable used by the session engine.
	ErrClientNotStarted = errors.New("client not started")
	// ErrBuilderUsed is an exported constant or variable used by the session engine.
	ErrBuilderUsed = errors.New("builder already used")
	// ErrTransportMissing is an exported constant or variable used by the session engine.
	ErrTransportMissing = errors.New("no backend URL or transport configured")
	// ErrSignInParamsInvalid is an exported constant or variable used by the session engine.
	ErrSignInParamsInvalid = errors.New("sign-in params match no supported shape")
)

// localAPIError converts a precondition sentinel into the APIError data shape
// callers branch on. These never involved a network round trip.
func localAPIError(err error) *APIError {
	switch {
	case errors.Is(err, machine.ErrAlreadySignedIn):
		return &APIError{Message: "user already signed in", Status: http.StatusBadRequest}
	case errors.Is(err, machine.ErrUnauthenticated), errors.Is(err, action.ErrUnauthenticated):
		return &APIError{Message: "user unauthenticated", Status: http.StatusUnauthorized}
	case errors.Is(err, ErrEmailNeedsVerification):
		return &APIError{Message: "email needs verification", Status: http.StatusUnauthorized}
	case errors.Is(err, ErrNotImplemented):
		return &APIError{Message: "not implemented", Status: http.StatusNotImplemented}
	case err != nil:
		return &APIError{Message: err.Error(), Status: http.StatusInternalServerError}
	}
	return nil
}
