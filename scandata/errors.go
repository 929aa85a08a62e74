package scandata

import (
	"fmt"

	"github.com/arloliu/go-eyescan/errs"
)

var (
	// ErrInvalidRange indicates a sweep range string that does not parse or is out of bounds.
	ErrInvalidRange = fmt.Errorf("%w: invalid sweep range", errs.ErrValidation)

	// ErrInvalidStep indicates a non-positive sweep step.
	ErrInvalidStep = fmt.Errorf("%w: invalid sweep step", errs.ErrValidation)

	// ErrEmptyGrid indicates a range/step combination that contains no sweep coordinate.
	ErrEmptyGrid = fmt.Errorf("%w: sweep grid is empty", errs.ErrValidation)

	// ErrInvalidTargetBER indicates a target BER outside (0, 1).
	ErrInvalidTargetBER = fmt.Errorf("%w: target BER must be in (0, 1)", errs.ErrValidation)

	// ErrInvalidOpenAreaMode indicates an unknown open area mode.
	ErrInvalidOpenAreaMode = fmt.Errorf("%w: invalid open area mode", errs.ErrValidation)
)
