package ports

import (
	"context"

	"github.com/alejandrodnm/polyweather/internal/domain"
)

// Executor places orders. Signing and settlement stay behind it.
type Executor interface {
	// Execute submits the order and reports whether it filled. Errors wrap
	// domain.ErrExecution; an error means nothing was opened.
	Execute(ctx context.Context, order domain.Order) (domain.Fill, error)

	// Paper reports whether fills are simulated.
	Paper() bool
}
