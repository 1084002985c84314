package infrastructure

import (
	"context"
	"errors"
	"time"

	"Poolfund/internal/domain/investor"
	"Poolfund/internal/domain/shared"
	appErrors "Poolfund/internal/errors"
	"Poolfund/internal/pkg"

	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const investorsTable = "pool_investors"

type InvestorRepository struct {
	DB *gorm.DB
}

var _ investor.Repository = (*InvestorRepository)(nil)

type investorDB struct {
	Id               string          `gorm:"type:varchar(26);primaryKey"`
	PoolId           string          `gorm:"type:varchar(26);not null;uniqueIndex:idx_pool_investors_pool_user"`
	UserId           string          `gorm:"type:varchar(26);not null;uniqueIndex:idx_pool_investors_pool_user;index"`
	InvestmentAmount decimal.Decimal `gorm:"type:numeric(18,2);not null"`
	SharesOwned      int64           `gorm:"not null"`
	Status           string          `gorm:"type:varchar(20);index;not null"`
	PaymentMethodId  *string         `gorm:"size:100"`
	JoinedAt         time.Time       `gorm:"not null"`
	CancelledAt      *time.Time
	CancelReason     *string `gorm:"size:500"`
	UpdatedAt        time.Time
}

func (investorDB) TableName() string { return investorsTable }

func toDomainInvestor(row *investorDB) (*investor.Investor, error) {
	id, err := pkg.ParseID(row.Id)
	if err != nil {
		return nil, err
	}
	poolID, err := pkg.ParseID(row.PoolId)
	if err != nil {
		return nil, err
	}
	userID, err := pkg.ParseID(row.UserId)
	if err != nil {
		return nil, err
	}
	return &investor.Investor{
		Id:               id,
		PoolId:           poolID,
		UserId:           userID,
		InvestmentAmount: pkg.RoundMoney(row.InvestmentAmount),
		SharesOwned:      row.SharesOwned,
		Status:           investor.Status(row.Status),
		PaymentMethodId:  row.PaymentMethodId,
		JoinedAt:         row.JoinedAt.UTC(),
		CancelledAt:      utcPtr(row.CancelledAt),
		CancelReason:     row.CancelReason,
		UpdatedAt:        row.UpdatedAt.UTC(),
	}, nil
}

func toDBInvestor(inv *investor.Investor) *investorDB {
	return &investorDB{
		Id:               inv.Id.String(),
		PoolId:           inv.PoolId.String(),
		UserId:           inv.UserId.String(),
		InvestmentAmount: inv.InvestmentAmount,
		SharesOwned:      inv.SharesOwned,
		Status:           string(inv.Status),
		PaymentMethodId:  inv.PaymentMethodId,
		JoinedAt:         inv.JoinedAt,
		CancelledAt:      inv.CancelledAt,
		CancelReason:     inv.CancelReason,
		UpdatedAt:        inv.UpdatedAt,
	}
}

// Create maps a (pool_id, user_id) collision to CONCURRENCY_CONFLICT so the
// caller retries and finds the existing entry.
func (r *InvestorRepository) Create(ctx context.Context, inv *investor.Investor) error {
	if err := conn(ctx, r.DB).Table(investorsTable).Create(toDBInvestor(inv)).Error; err != nil {
		if shared.IsUniqueConstraintError(err) {
			return appErrors.ErrConcurrencyConflict.WithError(err)
		}
		return appErrors.NewDatabaseError(err)
	}
	return nil
}

func (r *InvestorRepository) Update(ctx context.Context, inv *investor.Investor) error {
	result := conn(ctx, r.DB).Table(investorsTable).
		Where("id = ?", inv.Id.String()).
		Select("*").
		Omit("id", "pool_id", "user_id").
		Updates(toDBInvestor(inv))
	if result.Error != nil {
		return appErrors.NewDatabaseError(result.Error)
	}
	if result.RowsAffected == 0 {
		return appErrors.ErrInvestorNotFound
	}
	return nil
}

func (r *InvestorRepository) GetByID(ctx context.Context, id ulid.ULID) (*investor.Investor, error) {
	var row investorDB
	err := conn(ctx, r.DB).Table(investorsTable).Where("id = ?", id.String()).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, appErrors.ErrInvestorNotFound
		}
		return nil, appErrors.NewDatabaseError(err)
	}
	return toDomainInvestor(&row)
}

func (r *InvestorRepository) GetByPoolAndUser(ctx context.Context, poolID, userID ulid.ULID) (*investor.Investor, error) {
	var row investorDB
	err := conn(ctx, r.DB).Table(investorsTable).
		Where("pool_id = ? AND user_id = ?", poolID.String(), userID.String()).
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, appErrors.ErrInvestorNotFound
		}
		return nil, appErrors.NewDatabaseError(err)
	}
	return toDomainInvestor(&row)
}

func (r *InvestorRepository) ListByPool(ctx context.Context, poolID ulid.ULID, filters *investor.ListFilters, pagination *pkg.PaginationParams) ([]*investor.Investor, int64, error) {
	query := conn(ctx, r.DB).Table(investorsTable).Where("pool_id = ?", poolID.String())
	if filters != nil && filters.Status != nil {
		query = query.Where("status = ?", string(*filters.Status))
	}

	investors, total, err := pkg.Paginate(query, pagination, pkg.Order{Column: "joined_at"}, toDomainInvestor)
	if err != nil {
		return nil, 0, appErrors.NewDatabaseError(err)
	}
	return investors, total, nil
}

func (r *InvestorRepository) ListActiveByPool(ctx context.Context, poolID ulid.ULID) ([]*investor.Investor, error) {
	var rows []investorDB
	err := conn(ctx, r.DB).Table(investorsTable).
		Where("pool_id = ? AND status = ?", poolID.String(), string(investor.StatusActive)).
		Order("joined_at ASC, id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, appErrors.NewDatabaseError(err)
	}

	out := make([]*investor.Investor, 0, len(rows))
	for i := range rows {
		inv, err := toDomainInvestor(&rows[i])
		if err != nil {
			return nil, err
		}
		out = append(out, inv)
	}
	return out, nil
}

func (r *InvestorRepository) ListByUser(ctx context.Context, userID ulid.ULID, pagination *pkg.PaginationParams) ([]*investor.Investor, int64, error) {
	query := conn(ctx, r.DB).Table(investorsTable).Where("user_id = ?", userID.String())

	investors, total, err := pkg.Paginate(query, pagination, pkg.Order{Column: "joined_at", Desc: true}, toDomainInvestor)
	if err != nil {
		return nil, 0, appErrors.NewDatabaseError(err)
	}
	return investors, total, nil
}
