package eyescan

import (
	"fmt"

	"github.com/arloliu/go-eyescan/errs"
)

var (
	// ErrInvalidOption indicates an engine option with a bad value.
	ErrInvalidOption = fmt.Errorf("%w: invalid engine option", errs.ErrValidation)

	// ErrEndpointExists indicates an endpoint ID that is already registered.
	ErrEndpointExists = fmt.Errorf("%w: endpoint already exists", errs.ErrConflict)

	// ErrLinkBusy indicates a link whose receiver is being scanned.
	ErrLinkBusy = fmt.Errorf("%w: link has an active scan", errs.ErrConflict)

	// ErrNotLink indicates an endpoint passed where a link is required.
	ErrNotLink = fmt.Errorf("%w: endpoint is not a link", errs.ErrValidation)

	// ErrLinkMismatch indicates link creation with unequal receiver and transmitter lists.
	ErrLinkMismatch = fmt.Errorf("%w: receiver and transmitter counts differ", errs.ErrValidation)

	// ErrEngineClosed indicates an operation on a closed engine.
	ErrEngineClosed = fmt.Errorf("%w: engine closed", errs.ErrConflict)
)
