package repository

import (
	"context"
	"errors"

	svcErr "github.com/oggyb/soundmatch/internal/errors"
)

// ErrVersionConflict is returned from inside a transaction when a
// version-guarded update matched no row.
var ErrVersionConflict = errors.New("version conflict")

// WithRetry runs fn up to attempts times while it fails with a version
// conflict or a transient storage error. Domain errors return immediately.
func WithRetry(ctx context.Context, op string, attempts int, fn func() error) error {
	var err error
	for i := 0; i < attempts; i++ {
		err = fn()
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrVersionConflict) && !svcErr.IsTransient(err) {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
	}
	return svcErr.Storage(op, err)
}
