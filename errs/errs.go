// Package errs defines the error categories shared by every eyescan package.
//
// Each package declares its own precise sentinel errors and wraps exactly one of the categories below,
// so callers can match either the precise error or the whole category with errors.Is:
//
//	if errors.Is(err, errs.ErrConflict) {
//	    // a second session on an owned target, a duplicate watch, a start while running, ...
//	}
//
// Categories:
//   - ErrValidation: bad parameter value, unknown property name, modifiability violation.
//   - ErrPermission: the property's permission set does not allow the operation.
//   - ErrConflict: the call would create a second owner of an exclusive resource or an illegal transition.
//   - ErrRemote: transport failure, hardware rejection or malformed response from the remote service.
//   - ErrStaleReference: the object has been deleted.
package errs

import "errors"

var (
	// ErrValidation indicates that a value or name was rejected locally before any remote call.
	ErrValidation = errors.New("validation error")

	// ErrPermission indicates that an operation is not allowed by the property's permissions.
	ErrPermission = errors.New("permission error")

	// ErrConflict indicates that the call conflicts with an existing owner or the current state.
	ErrConflict = errors.New("conflict error")

	// ErrRemote indicates a failure reported by, or while talking to, the remote debug service.
	ErrRemote = errors.New("remote error")

	// ErrStaleReference indicates an operation on an object that has already been deleted.
	ErrStaleReference = errors.New("stale reference")
)
