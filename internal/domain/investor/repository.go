package investor

import (
	"context"

	"Poolfund/internal/pkg"

	"github.com/oklog/ulid/v2"
)

type ListFilters struct {
	Status *Status
}

type Repository interface {
	Create(ctx context.Context, inv *Investor) error
	Update(ctx context.Context, inv *Investor) error
	GetByID(ctx context.Context, id ulid.ULID) (*Investor, error)
	// GetByPoolAndUser returns INVESTOR_NOT_FOUND when the user never invested in the pool.
	GetByPoolAndUser(ctx context.Context, poolID, userID ulid.ULID) (*Investor, error)
	ListByPool(ctx context.Context, poolID ulid.ULID, filters *ListFilters, pagination *pkg.PaginationParams) ([]*Investor, int64, error)
	// ListActiveByPool returns every active entry ordered by joinedAt, then id.
	ListActiveByPool(ctx context.Context, poolID ulid.ULID) ([]*Investor, error)
	ListByUser(ctx context.Context, userID ulid.ULID, pagination *pkg.PaginationParams) ([]*Investor, int64, error)
}
