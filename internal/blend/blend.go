// Package blend answers enrollment requests from the remote aggregation
// service first and the local engine second, tagging every answer with the
// backend that produced it.
package blend

import (
	"context"

	errs "github.com/usaschooldata/schooldata/internal/errors"
	"github.com/usaschooldata/schooldata/internal/logctx"
	"github.com/usaschooldata/schooldata/pkg/types"
)

// Result is a value tagged with the backend that produced it.
type Result[T any] struct {
	Value  T                `json:"data"`
	Source types.DataSource `json:"source"`
}

// Readiness reports whether the local engine can serve a request. A nil
// return means ready.
type Readiness func(ctx context.Context) error

// Resolve runs remote and, when it fails, local. A nil remote goes
// straight to local. Local runs only when ready reports no fatal error.
//
// When both fail the remote failure is returned and the local one logged,
// except a local YearAvailabilityError, which is returned because the
// caller can act on it.
func Resolve[T any](ctx context.Context, op string, remote, local func(context.Context) (T, error), ready Readiness) (Result[T], error) {
	logger := logctx.FromContext(ctx)

	var remoteErr error
	if remote != nil {
		v, err := remote(ctx)
		if err == nil {
			return Result[T]{Value: v, Source: types.SourceRemote}, nil
		}
		remoteErr = err
		logger.Warn().Err(err).Str("operation", op).Msg("remote failed, falling back to local engine")
	}

	if ready != nil {
		if err := ready(ctx); err != nil {
			if remoteErr != nil {
				logger.Warn().Err(err).Str("operation", op).Msg("local engine unavailable")
				return Result[T]{}, remoteErr
			}
			return Result[T]{}, err
		}
	}

	v, err := local(ctx)
	if err == nil {
		return Result[T]{Value: v, Source: types.SourceLocal}, nil
	}
	if remoteErr == nil {
		return Result[T]{}, err
	}
	if _, ok := errs.AsYearUnavailable(err); ok {
		return Result[T]{}, err
	}
	logger.Warn().Err(err).Str("operation", op).Msg("local fallback failed")
	return Result[T]{}, remoteErr
}
