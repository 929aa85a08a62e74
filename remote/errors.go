package remote

import (
	"errors"
	"fmt"

	"github.com/arloliu/go-eyescan/errs"
)

var (
	// ErrTransport indicates that the request did not reach the service or the reply was lost.
	ErrTransport = fmt.Errorf("%w: transport failure", errs.ErrRemote)

	// ErrRejected indicates that the service or the hardware refused the request, e.g. PLL not locked.
	ErrRejected = fmt.Errorf("%w: rejected by remote", errs.ErrRemote)

	// ErrMalformed indicates a reply that does not match the request.
	ErrMalformed = fmt.Errorf("%w: malformed response", errs.ErrRemote)

	// ErrStreamClosed indicates that the event stream closed while a scan was running.
	ErrStreamClosed = fmt.Errorf("%w: event stream closed", errs.ErrRemote)
)

// Error is a failure of one remote operation.
//
// errors.Is(err, errs.ErrRemote) holds for every *Error regardless of the cause.
type Error struct {
	// Op is the remote operation: "commit", "refresh", "start_scan", "stop_scan" or "scan".
	Op string
	// ObjectID is the object the operation addressed, if any.
	ObjectID string
	// Err is the cause.
	Err error
}

func (e *Error) Error() string {
	if e.ObjectID == "" {
		return fmt.Sprintf("remote %s: %v", e.Op, e.Err)
	}

	return fmt.Sprintf("remote %s %s: %v", e.Op, e.ObjectID, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is makes every *Error match errs.ErrRemote.
func (e *Error) Is(target error) bool {
	return target == errs.ErrRemote
}

// Wrap wraps err into an *Error for op on objectID. It returns nil for a nil err and
// keeps an existing *Error as is.
func Wrap(op, objectID string, err error) error {
	if err == nil {
		return nil
	}

	var re *Error
	if errors.As(err, &re) {
		return err
	}

	return &Error{Op: op, ObjectID: objectID, Err: err}
}

// IsTransient reports whether err is a transport failure that may succeed on retry.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransport)
}
