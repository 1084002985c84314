package infrastructure

import (
	"context"
	"errors"
	"time"

	"Poolfund/internal/domain/distribution"
	appErrors "Poolfund/internal/errors"
	"Poolfund/internal/pkg"

	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	distributionsTable = "distributions"
	payoutsTable       = "distribution_payouts"
)

type DistributionRepository struct {
	DB *gorm.DB
}

var _ distribution.Repository = (*DistributionRepository)(nil)

type distributionDB struct {
	Id                  string          `gorm:"type:varchar(26);primaryKey"`
	PoolId              string          `gorm:"type:varchar(26);index;not null"`
	Type                string          `gorm:"type:varchar(20);not null"`
	Period              string          `gorm:"size:40"`
	GrossAmount         decimal.Decimal `gorm:"type:numeric(18,2);not null"`
	Fees                decimal.Decimal `gorm:"type:numeric(18,2);not null;default:0"`
	Taxes               decimal.Decimal `gorm:"type:numeric(18,2);not null;default:0"`
	NetAmount           decimal.Decimal `gorm:"type:numeric(18,2);not null"`
	DistributedAmount   decimal.Decimal `gorm:"type:numeric(18,2);not null"`
	RetainedAmount      decimal.Decimal `gorm:"type:numeric(18,2);not null;default:0"`
	Status              string          `gorm:"type:varchar(20);index;not null"`
	Notes               *string         `gorm:"type:text"`
	FailureReason       *string         `gorm:"size:500"`
	ProcessingStartedAt *time.Time
	LeaseToken          *string `gorm:"type:varchar(26)"`
	CompletedAt         *time.Time
	CreatedBy           string `gorm:"type:varchar(26);not null"`
	CreatedAt           time.Time
	UpdatedAt           time.Time `gorm:"index"`
}

func (distributionDB) TableName() string { return distributionsTable }

type payoutDB struct {
	Id                 string          `gorm:"type:varchar(26);primaryKey"`
	DistributionId     string          `gorm:"type:varchar(26);not null;uniqueIndex:idx_payouts_distribution_investor"`
	PoolId             string          `gorm:"type:varchar(26);index;not null"`
	InvestorId         string          `gorm:"type:varchar(26);not null;uniqueIndex:idx_payouts_distribution_investor"`
	UserId             string          `gorm:"type:varchar(26);index;not null"`
	SharesSnapshot     int64           `gorm:"not null"`
	PercentageSnapshot decimal.Decimal `gorm:"type:numeric(9,4);not null"`
	Amount             decimal.Decimal `gorm:"type:numeric(18,2);not null"`
	Status             string          `gorm:"type:varchar(20);index;not null"`
	Attempts           int             `gorm:"not null;default:0"`
	ExternalReference  *string         `gorm:"size:200"`
	LastError          *string         `gorm:"size:1000"`
	PaidAt             *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

func (payoutDB) TableName() string { return payoutsTable }

func toDomainDistribution(row *distributionDB) (*distribution.Distribution, error) {
	id, err := pkg.ParseID(row.Id)
	if err != nil {
		return nil, err
	}
	poolID, err := pkg.ParseID(row.PoolId)
	if err != nil {
		return nil, err
	}
	createdBy, err := pkg.ParseID(row.CreatedBy)
	if err != nil {
		return nil, err
	}
	return &distribution.Distribution{
		Id:                  id,
		PoolId:              poolID,
		Type:                distribution.Type(row.Type),
		Period:              row.Period,
		GrossAmount:         pkg.RoundMoney(row.GrossAmount),
		Fees:                pkg.RoundMoney(row.Fees),
		Taxes:               pkg.RoundMoney(row.Taxes),
		NetAmount:           pkg.RoundMoney(row.NetAmount),
		DistributedAmount:   pkg.RoundMoney(row.DistributedAmount),
		RetainedAmount:      pkg.RoundMoney(row.RetainedAmount),
		Status:              distribution.Status(row.Status),
		Notes:               row.Notes,
		FailureReason:       row.FailureReason,
		ProcessingStartedAt: utcPtr(row.ProcessingStartedAt),
		CompletedAt:         utcPtr(row.CompletedAt),
		CreatedBy:           createdBy,
		CreatedAt:           row.CreatedAt.UTC(),
		UpdatedAt:           row.UpdatedAt.UTC(),
	}, nil
}

func toDBDistribution(d *distribution.Distribution) *distributionDB {
	return &distributionDB{
		Id:                  d.Id.String(),
		PoolId:              d.PoolId.String(),
		Type:                string(d.Type),
		Period:              d.Period,
		GrossAmount:         d.GrossAmount,
		Fees:                d.Fees,
		Taxes:               d.Taxes,
		NetAmount:           d.NetAmount,
		DistributedAmount:   d.DistributedAmount,
		RetainedAmount:      d.RetainedAmount,
		Status:              string(d.Status),
		Notes:               d.Notes,
		FailureReason:       d.FailureReason,
		ProcessingStartedAt: d.ProcessingStartedAt,
		CompletedAt:         d.CompletedAt,
		CreatedBy:           d.CreatedBy.String(),
		CreatedAt:           d.CreatedAt,
		UpdatedAt:           d.UpdatedAt,
	}
}

func toDomainPayout(row *payoutDB) (*distribution.Payout, error) {
	id, err := pkg.ParseID(row.Id)
	if err != nil {
		return nil, err
	}
	distributionID, err := pkg.ParseID(row.DistributionId)
	if err != nil {
		return nil, err
	}
	poolID, err := pkg.ParseID(row.PoolId)
	if err != nil {
		return nil, err
	}
	investorID, err := pkg.ParseID(row.InvestorId)
	if err != nil {
		return nil, err
	}
	userID, err := pkg.ParseID(row.UserId)
	if err != nil {
		return nil, err
	}
	return &distribution.Payout{
		Id:                 id,
		DistributionId:     distributionID,
		PoolId:             poolID,
		InvestorId:         investorID,
		UserId:             userID,
		SharesSnapshot:     row.SharesSnapshot,
		PercentageSnapshot: row.PercentageSnapshot.Truncate(4),
		Amount:             pkg.RoundMoney(row.Amount),
		Status:             distribution.Status(row.Status),
		Attempts:           row.Attempts,
		ExternalReference:  row.ExternalReference,
		LastError:          row.LastError,
		PaidAt:             utcPtr(row.PaidAt),
		CreatedAt:          row.CreatedAt.UTC(),
		UpdatedAt:          row.UpdatedAt.UTC(),
	}, nil
}

func toDBPayout(p *distribution.Payout) *payoutDB {
	return &payoutDB{
		Id:                 p.Id.String(),
		DistributionId:     p.DistributionId.String(),
		PoolId:             p.PoolId.String(),
		InvestorId:         p.InvestorId.String(),
		UserId:             p.UserId.String(),
		SharesSnapshot:     p.SharesSnapshot,
		PercentageSnapshot: p.PercentageSnapshot,
		Amount:             p.Amount,
		Status:             string(p.Status),
		Attempts:           p.Attempts,
		ExternalReference:  p.ExternalReference,
		LastError:          p.LastError,
		PaidAt:             p.PaidAt,
		CreatedAt:          p.CreatedAt,
		UpdatedAt:          p.UpdatedAt,
	}
}

func (r *DistributionRepository) Create(ctx context.Context, d *distribution.Distribution) error {
	db := conn(ctx, r.DB)
	if err := db.Table(distributionsTable).Create(toDBDistribution(d)).Error; err != nil {
		return appErrors.NewDatabaseError(err)
	}
	if len(d.Payouts) == 0 {
		return nil
	}

	rows := make([]*payoutDB, 0, len(d.Payouts))
	for _, p := range d.Payouts {
		rows = append(rows, toDBPayout(p))
	}
	if err := db.Table(payoutsTable).CreateInBatches(rows, 100).Error; err != nil {
		return appErrors.NewDatabaseError(err)
	}
	return nil
}

func (r *DistributionRepository) GetByID(ctx context.Context, id ulid.ULID) (*distribution.Distribution, error) {
	var row distributionDB
	err := conn(ctx, r.DB).Table(distributionsTable).Where("id = ?", id.String()).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, appErrors.ErrDistributionNotFound.WithDetails(map[string]interface{}{"distributionId": id.String()})
		}
		return nil, appErrors.NewDatabaseError(err)
	}
	return toDomainDistribution(&row)
}

func (r *DistributionRepository) ListByPool(ctx context.Context, poolID ulid.ULID, filters *distribution.ListFilters, pagination *pkg.PaginationParams) ([]*distribution.Distribution, int64, error) {
	query := conn(ctx, r.DB).Table(distributionsTable).Where("pool_id = ?", poolID.String())
	if filters != nil && filters.Status != nil {
		query = query.Where("status = ?", string(*filters.Status))
	}

	items, total, err := pkg.Paginate(query, pagination, pkg.Order{Column: "created_at", Desc: true}, toDomainDistribution)
	if err != nil {
		return nil, 0, appErrors.NewDatabaseError(err)
	}
	return items, total, nil
}

func (r *DistributionRepository) ListPayouts(ctx context.Context, distributionID ulid.ULID) ([]*distribution.Payout, error) {
	var rows []payoutDB
	err := conn(ctx, r.DB).Table(payoutsTable).
		Where("distribution_id = ?", distributionID.String()).
		Order("id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, appErrors.NewDatabaseError(err)
	}

	out := make([]*distribution.Payout, 0, len(rows))
	for i := range rows {
		p, err := toDomainPayout(&rows[i])
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func (r *DistributionRepository) Claim(ctx context.Context, id ulid.ULID, leaseToken string, now, staleBefore time.Time) (bool, error) {
	result := conn(ctx, r.DB).Table(distributionsTable).
		Where("id = ?", id.String()).
		Where("(status IN ? OR (status = ? AND (processing_started_at IS NULL OR processing_started_at < ?)))",
			[]string{string(distribution.StatusPending), string(distribution.StatusFailed)},
			string(distribution.StatusProcessing), staleBefore).
		Updates(map[string]interface{}{
			"status":                string(distribution.StatusProcessing),
			"lease_token":           leaseToken,
			"processing_started_at": now,
			"updated_at":            now,
		})
	if result.Error != nil {
		return false, appErrors.NewDatabaseError(result.Error)
	}
	return result.RowsAffected == 1, nil
}

func (r *DistributionRepository) RenewLease(ctx context.Context, id ulid.ULID, leaseToken string, now time.Time) (bool, error) {
	result := conn(ctx, r.DB).Table(distributionsTable).
		Where("id = ? AND status = ? AND lease_token = ?", id.String(), string(distribution.StatusProcessing), leaseToken).
		Updates(map[string]interface{}{
			"processing_started_at": now,
			"updated_at":            now,
		})
	if result.Error != nil {
		return false, appErrors.NewDatabaseError(result.Error)
	}
	return result.RowsAffected == 1, nil
}

func (r *DistributionRepository) ClaimPayout(ctx context.Context, payoutID ulid.ULID, now, staleBefore time.Time) (bool, error) {
	result := conn(ctx, r.DB).Table(payoutsTable).
		Where("id = ?", payoutID.String()).
		Where("(status IN ? OR (status = ? AND updated_at < ?))",
			[]string{string(distribution.StatusPending), string(distribution.StatusFailed)},
			string(distribution.StatusProcessing), staleBefore).
		Updates(map[string]interface{}{
			"status":     string(distribution.StatusProcessing),
			"attempts":   gorm.Expr("attempts + 1"),
			"updated_at": now,
		})
	if result.Error != nil {
		return false, appErrors.NewDatabaseError(result.Error)
	}
	return result.RowsAffected == 1, nil
}

func (r *DistributionRepository) CompletePayout(ctx context.Context, payoutID ulid.ULID, reference *string, paidAt time.Time) error {
	err := conn(ctx, r.DB).Table(payoutsTable).
		Where("id = ?", payoutID.String()).
		Updates(map[string]interface{}{
			"status":             string(distribution.StatusCompleted),
			"external_reference": reference,
			"last_error":         nil,
			"paid_at":            paidAt,
			"updated_at":         paidAt,
		}).Error
	if err != nil {
		return appErrors.NewDatabaseError(err)
	}
	return nil
}

func (r *DistributionRepository) FailPayout(ctx context.Context, payoutID ulid.ULID, reason string, now time.Time) error {
	err := conn(ctx, r.DB).Table(payoutsTable).
		Where("id = ? AND status <> ?", payoutID.String(), string(distribution.StatusCompleted)).
		Updates(map[string]interface{}{
			"status":     string(distribution.StatusFailed),
			"last_error": reason,
			"updated_at": now,
		}).Error
	if err != nil {
		return appErrors.NewDatabaseError(err)
	}
	return nil
}

func (r *DistributionRepository) Finish(ctx context.Context, d *distribution.Distribution, leaseToken string) (bool, error) {
	result := conn(ctx, r.DB).Table(distributionsTable).
		Where("id = ? AND status = ? AND lease_token = ?", d.Id.String(), string(distribution.StatusProcessing), leaseToken).
		Updates(map[string]interface{}{
			"status":         string(d.Status),
			"failure_reason": d.FailureReason,
			"completed_at":   d.CompletedAt,
			"lease_token":    nil,
			"updated_at":     d.UpdatedAt,
		})
	if result.Error != nil {
		return false, appErrors.NewDatabaseError(result.Error)
	}
	return result.RowsAffected == 1, nil
}

func (r *DistributionRepository) CountOpen(ctx context.Context, poolID, excludeID ulid.ULID) (int64, error) {
	var count int64
	err := conn(ctx, r.DB).Table(distributionsTable).
		Where("pool_id = ? AND id <> ? AND status <> ?", poolID.String(), excludeID.String(), string(distribution.StatusCompleted)).
		Count(&count).Error
	if err != nil {
		return 0, appErrors.NewDatabaseError(err)
	}
	return count, nil
}

func (r *DistributionRepository) ListResumable(ctx context.Context, staleBefore time.Time, limit int) ([]ulid.ULID, error) {
	var ids []string
	err := conn(ctx, r.DB).Table(distributionsTable).
		Where("status = ?", string(distribution.StatusPending)).
		Or("status = ? AND (processing_started_at IS NULL OR processing_started_at < ?)", string(distribution.StatusProcessing), staleBefore).
		Or("status = ? AND updated_at < ?", string(distribution.StatusFailed), staleBefore).
		Order("created_at ASC, id ASC").
		Limit(limit).
		Pluck("id", &ids).Error
	if err != nil {
		return nil, appErrors.NewDatabaseError(err)
	}

	out := make([]ulid.ULID, 0, len(ids))
	for _, s := range ids {
		id, err := pkg.ParseID(s)
		if err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, nil
}
