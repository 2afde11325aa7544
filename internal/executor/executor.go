// Package executor defines the adapter seam to downstream market
// connectivity.
//
// The pipeline sees one operation: Execute, which either returns a fill or
// an error classified as transient (retryable) or permanent. Two
// implementations ship with the platform: a simulated executor for
// development and testing, and an HTTP client speaking to a venue gateway.
package executor

import (
	"context"
	"errors"

	"github.com/arontabacinik/itirp/pkg/types"
)

// Executor performs the downstream market call for one approved order.
type Executor interface {
	Execute(ctx context.Context, order types.Order) (types.Fill, error)
}

// IsTransient reports whether err is retryable: a classified transient
// execution error, or a context deadline (per-attempt timeout).
func IsTransient(err error) bool {
	var execErr *types.ExecError
	if errors.As(err, &execErr) {
		return execErr.Transient
	}
	return errors.Is(err, context.DeadlineExceeded)
}
