package property

import (
	"fmt"
	"strings"

	"github.com/arloliu/go-eyescan/errs"
	"github.com/arloliu/go-eyescan/internal/util"
)

var (
	// ErrUnknownProperty indicates a name that is not registered for the object.
	ErrUnknownProperty = fmt.Errorf("%w: unknown property", errs.ErrValidation)

	// ErrInvalidValue indicates a value of the wrong type or outside the property's domain.
	ErrInvalidValue = fmt.Errorf("%w: invalid value", errs.ErrValidation)

	// ErrInvalidDef indicates a malformed property declaration.
	ErrInvalidDef = fmt.Errorf("%w: invalid property definition", errs.ErrValidation)

	// ErrPermissionDenied indicates an operation the property's permission set does not allow.
	ErrPermissionDenied = fmt.Errorf("%w: permission denied", errs.ErrPermission)
)

// CommitError reports the properties that failed to commit. Every other property of the
// same call was committed.
type CommitError struct {
	ObjectID  string
	Committed []string
	Failed    map[string]error
}

func (e *CommitError) Error() string {
	parts := make([]string, 0, len(e.Failed))
	for _, name := range util.SortedKeys(e.Failed) {
		parts = append(parts, fmt.Sprintf("%s: %v", name, e.Failed[name]))
	}

	return fmt.Sprintf("commit %s: %d of %d properties failed: %s",
		e.ObjectID, len(e.Failed), len(e.Failed)+len(e.Committed), strings.Join(parts, "; "))
}

// Unwrap returns the per-property failures, in name order.
func (e *CommitError) Unwrap() []error {
	out := make([]error, 0, len(e.Failed))
	for _, name := range util.SortedKeys(e.Failed) {
		out = append(out, e.Failed[name])
	}

	return out
}
