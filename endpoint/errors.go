package endpoint

import (
	"fmt"

	"github.com/arloliu/go-eyescan/errs"
)

var (
	// ErrInvalidEndpoint indicates a bad endpoint declaration, e.g. a link without a receiver.
	ErrInvalidEndpoint = fmt.Errorf("%w: invalid endpoint", errs.ErrValidation)

	// ErrUnknownAlias indicates an alias that names no property of the endpoint.
	ErrUnknownAlias = fmt.Errorf("%w: unknown alias", errs.ErrValidation)

	// ErrUnsupportedTarget indicates an endpoint kind that cannot run a scan.
	ErrUnsupportedTarget = fmt.Errorf("%w: endpoint kind cannot be scanned", errs.ErrValidation)

	// ErrStaleReference indicates an operation on a deleted endpoint.
	ErrStaleReference = fmt.Errorf("%w: endpoint", errs.ErrStaleReference)
)
