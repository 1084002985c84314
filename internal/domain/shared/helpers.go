package shared

import (
	"context"
	"errors"
	"strings"

	appErrors "Poolfund/internal/errors"
)

const DefaultConflictRetries = 3

func IsUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "23505") ||
		strings.Contains(errStr, "duplicate") ||
		strings.Contains(errStr, "unique constraint")
}

// RetryOnConflict re-runs fn while it fails with CONCURRENCY_CONFLICT, at most
// attempts times. The last conflict is returned once attempts run out.
func RetryOnConflict(ctx context.Context, attempts int, fn func(ctx context.Context) error) error {
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for i := 0; i < attempts; i++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		err = fn(ctx)
		if err == nil || !errors.Is(err, appErrors.ErrConcurrencyConflict) {
			return err
		}
	}
	return err
}

func TrimPtr(s *string) *string {
	if s == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*s)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
