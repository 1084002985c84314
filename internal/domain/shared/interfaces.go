package shared

import (
	"context"
	"time"
)

// Transactor runs fn inside a database transaction carried by the returned context.
// Repositories pick the transaction up from ctx, so every call made with that ctx
// joins it. Nested calls reuse the outer transaction.
type Transactor interface {
	WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// Clock returns the current time. Services default to time.Now in UTC.
type Clock func() time.Time

func (c Clock) Now() time.Time {
	if c == nil {
		return time.Now().UTC()
	}
	return c().UTC()
}

// NoopTransactor runs fn directly. Used by unit tests with in-memory fakes.
type NoopTransactor struct{}

func (NoopTransactor) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}
