package watch

import (
	"fmt"

	"github.com/arloliu/go-eyescan/errs"
)

var (
	// ErrAlreadyWatched indicates a property that already has an active watch.
	ErrAlreadyWatched = fmt.Errorf("%w: property already watched", errs.ErrConflict)

	// ErrInvalidWatch indicates a watch without names or without a listener.
	ErrInvalidWatch = fmt.Errorf("%w: invalid watch", errs.ErrValidation)

	// ErrClosed indicates an operation on a closed watchlist.
	ErrClosed = fmt.Errorf("%w: watchlist closed", errs.ErrConflict)
)
