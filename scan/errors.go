package scan

import (
	"fmt"

	"github.com/arloliu/go-eyescan/errs"
)

var (
	// ErrUnknownKind indicates an unsupported scan kind.
	ErrUnknownKind = fmt.Errorf("%w: unknown scan kind", errs.ErrValidation)

	// ErrUnknownParameter indicates a parameter name the scan kind does not define.
	ErrUnknownParameter = fmt.Errorf("%w: unknown scan parameter", errs.ErrValidation)

	// ErrNotModifiable indicates a write to a parameter whose modifiable flag is false.
	ErrNotModifiable = fmt.Errorf("%w: scan parameter is not modifiable", errs.ErrValidation)

	// ErrInvalidParameter indicates a value outside the parameter's domain or of the wrong type.
	ErrInvalidParameter = fmt.Errorf("%w: invalid scan parameter value", errs.ErrValidation)

	// ErrNoTarget indicates a create call without any target.
	ErrNoTarget = fmt.Errorf("%w: no scan target", errs.ErrValidation)
)

var (
	// ErrTargetOwned indicates a target that another session already owns.
	ErrTargetOwned = fmt.Errorf("%w: target already owned by a scan session", errs.ErrConflict)

	// ErrAlreadyRunning indicates a Start on a session that is in progress.
	ErrAlreadyRunning = fmt.Errorf("%w: scan already running", errs.ErrConflict)

	// ErrNotRunning indicates a Stop on a session that is not in progress.
	ErrNotRunning = fmt.Errorf("%w: scan not running", errs.ErrConflict)

	// ErrNotStarted indicates a request for data of a session that never started.
	ErrNotStarted = fmt.Errorf("%w: scan not started", errs.ErrConflict)
)

var (
	// ErrDeleted indicates an operation on a deleted session.
	ErrDeleted = fmt.Errorf("%w: scan session deleted", errs.ErrStaleReference)

	// ErrRemoteAbort indicates a scan the remote service aborted without giving a reason.
	ErrRemoteAbort = fmt.Errorf("%w: scan aborted by remote", errs.ErrRemote)

	// ErrRegistryClosed indicates an operation after the registry has been closed.
	ErrRegistryClosed = fmt.Errorf("%w: scan registry closed", errs.ErrConflict)
)
