package infrastructure

import (
	"context"
	"errors"
	"strings"
	"time"

	"Poolfund/internal/domain/investor"
	"Poolfund/internal/domain/pool"
	appErrors "Poolfund/internal/errors"
	"Poolfund/internal/pkg"

	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	poolsTable             = "pools"
	poolEventsTable        = "pool_events"
	refundObligationsTable = "refund_obligations"
)

type PoolRepository struct {
	DB *gorm.DB
}

var _ pool.Repository = (*PoolRepository)(nil)

type poolDB struct {
	Id                       string           `gorm:"type:varchar(26);primaryKey"`
	Name                     string           `gorm:"size:200;not null"`
	Slug                     string           `gorm:"size:80;uniqueIndex;not null"`
	Description              string           `gorm:"type:text"`
	Location                 string           `gorm:"size:200;index"`
	ManagerId                string           `gorm:"type:varchar(26);index;not null"`
	TargetAmount             decimal.Decimal  `gorm:"type:numeric(18,2);not null"`
	RaisedAmount             decimal.Decimal  `gorm:"type:numeric(18,2);not null;default:0"`
	MinInvestment            decimal.Decimal  `gorm:"type:numeric(18,2);not null"`
	MaxInvestment            *decimal.Decimal `gorm:"type:numeric(18,2)"`
	SharePrice               decimal.Decimal  `gorm:"type:numeric(18,2);not null"`
	TotalShares              int64            `gorm:"not null"`
	ManagementFee            decimal.Decimal  `gorm:"type:numeric(5,2);not null;default:0"`
	ExpectedReturn           *decimal.Decimal `gorm:"type:numeric(7,2)"`
	RiskLevel                string           `gorm:"type:varchar(20);not null"`
	InvestmentType           string           `gorm:"type:varchar(20);not null"`
	DistributionFrequency    string           `gorm:"type:varchar(20);not null"`
	Status                   string           `gorm:"type:varchar(20);index;not null"`
	StartDate                *time.Time
	FundingDeadline          *time.Time
	ClosedEarly              bool `gorm:"not null;default:false"`
	FinalDistributionCreated bool `gorm:"not null;default:false"`
	CancelReason             *string `gorm:"size:500"`
	CancelledAt              *time.Time
	FundedAt                 *time.Time
	CompletedAt              *time.Time
	Version                  int64 `gorm:"not null;default:1"`
	CreatedAt                time.Time
	UpdatedAt                time.Time
}

func (poolDB) TableName() string { return poolsTable }

type poolEventDB struct {
	Id         string `gorm:"type:varchar(26);primaryKey"`
	PoolId     string `gorm:"type:varchar(26);index;not null"`
	FromStatus string `gorm:"type:varchar(20);not null"`
	ToStatus   string `gorm:"type:varchar(20);not null"`
	Action     string `gorm:"type:varchar(30);not null"`
	ActorId    string `gorm:"type:varchar(26)"`
	Reason     string `gorm:"size:500"`
	CreatedAt  time.Time
}

func (poolEventDB) TableName() string { return poolEventsTable }

type refundObligationDB struct {
	Id         string          `gorm:"type:varchar(26);primaryKey"`
	PoolId     string          `gorm:"type:varchar(26);index;not null"`
	InvestorId string          `gorm:"type:varchar(26);index;not null"`
	UserId     string          `gorm:"type:varchar(26);index;not null"`
	Amount     decimal.Decimal `gorm:"type:numeric(18,2);not null"`
	Reason     string          `gorm:"size:500"`
	Status     string          `gorm:"type:varchar(20);not null"`
	CreatedAt  time.Time
}

func (refundObligationDB) TableName() string { return refundObligationsTable }

func toDomainPool(row *poolDB) (*pool.Pool, error) {
	id, err := pkg.ParseID(row.Id)
	if err != nil {
		return nil, err
	}
	managerID, err := pkg.ParseID(row.ManagerId)
	if err != nil {
		return nil, err
	}
	return &pool.Pool{
		Id:                       id,
		Name:                     row.Name,
		Slug:                     row.Slug,
		Description:              row.Description,
		Location:                 row.Location,
		ManagerId:                managerID,
		TargetAmount:             pkg.RoundMoney(row.TargetAmount),
		RaisedAmount:             pkg.RoundMoney(row.RaisedAmount),
		MinInvestment:            pkg.RoundMoney(row.MinInvestment),
		MaxInvestment:            roundMoneyPtr(row.MaxInvestment),
		SharePrice:               pkg.RoundMoney(row.SharePrice),
		TotalShares:              row.TotalShares,
		ManagementFee:            row.ManagementFee,
		ExpectedReturn:           row.ExpectedReturn,
		RiskLevel:                pool.RiskLevel(row.RiskLevel),
		InvestmentType:           pool.InvestmentType(row.InvestmentType),
		DistributionFrequency:    pool.DistributionFrequency(row.DistributionFrequency),
		Status:                   pool.Status(row.Status),
		StartDate:                utcPtr(row.StartDate),
		FundingDeadline:          utcPtr(row.FundingDeadline),
		ClosedEarly:              row.ClosedEarly,
		FinalDistributionCreated: row.FinalDistributionCreated,
		CancelReason:             row.CancelReason,
		CancelledAt:              utcPtr(row.CancelledAt),
		FundedAt:                 utcPtr(row.FundedAt),
		CompletedAt:              utcPtr(row.CompletedAt),
		Version:                  row.Version,
		CreatedAt:                row.CreatedAt.UTC(),
		UpdatedAt:                row.UpdatedAt.UTC(),
	}, nil
}

func toDBPool(p *pool.Pool) *poolDB {
	return &poolDB{
		Id:                       p.Id.String(),
		Name:                     p.Name,
		Slug:                     p.Slug,
		Description:              p.Description,
		Location:                 p.Location,
		ManagerId:                p.ManagerId.String(),
		TargetAmount:             p.TargetAmount,
		RaisedAmount:             p.RaisedAmount,
		MinInvestment:            p.MinInvestment,
		MaxInvestment:            p.MaxInvestment,
		SharePrice:               p.SharePrice,
		TotalShares:              p.TotalShares,
		ManagementFee:            p.ManagementFee,
		ExpectedReturn:           p.ExpectedReturn,
		RiskLevel:                string(p.RiskLevel),
		InvestmentType:           string(p.InvestmentType),
		DistributionFrequency:    string(p.DistributionFrequency),
		Status:                   string(p.Status),
		StartDate:                p.StartDate,
		FundingDeadline:          p.FundingDeadline,
		ClosedEarly:              p.ClosedEarly,
		FinalDistributionCreated: p.FinalDistributionCreated,
		CancelReason:             p.CancelReason,
		CancelledAt:              p.CancelledAt,
		FundedAt:                 p.FundedAt,
		CompletedAt:              p.CompletedAt,
		Version:                  p.Version,
		CreatedAt:                p.CreatedAt,
		UpdatedAt:                p.UpdatedAt,
	}
}

// mutableColumns lists every column a guarded update may write, zero values included.
func mutableColumns(row *poolDB) map[string]interface{} {
	return map[string]interface{}{
		"name":                       row.Name,
		"description":                row.Description,
		"location":                   row.Location,
		"target_amount":              row.TargetAmount,
		"raised_amount":              row.RaisedAmount,
		"min_investment":             row.MinInvestment,
		"max_investment":             row.MaxInvestment,
		"share_price":                row.SharePrice,
		"total_shares":               row.TotalShares,
		"management_fee":             row.ManagementFee,
		"expected_return":            row.ExpectedReturn,
		"risk_level":                 row.RiskLevel,
		"investment_type":            row.InvestmentType,
		"distribution_frequency":     row.DistributionFrequency,
		"status":                     row.Status,
		"start_date":                 row.StartDate,
		"funding_deadline":           row.FundingDeadline,
		"closed_early":               row.ClosedEarly,
		"final_distribution_created": row.FinalDistributionCreated,
		"cancel_reason":              row.CancelReason,
		"cancelled_at":               row.CancelledAt,
		"funded_at":                  row.FundedAt,
		"completed_at":               row.CompletedAt,
		"updated_at":                 row.UpdatedAt,
	}
}

func toDomainEvent(row *poolEventDB) (*pool.Event, error) {
	id, err := pkg.ParseID(row.Id)
	if err != nil {
		return nil, err
	}
	poolID, err := pkg.ParseID(row.PoolId)
	if err != nil {
		return nil, err
	}
	var actorID ulid.ULID
	if row.ActorId != "" {
		if actorID, err = pkg.ParseID(row.ActorId); err != nil {
			return nil, err
		}
	}
	return &pool.Event{
		Id:         id,
		PoolId:     poolID,
		FromStatus: pool.Status(row.FromStatus),
		ToStatus:   pool.Status(row.ToStatus),
		Action:     pool.Action(row.Action),
		ActorId:    actorID,
		Reason:     row.Reason,
		CreatedAt:  row.CreatedAt.UTC(),
	}, nil
}

func toDomainRefund(row *refundObligationDB) (*pool.RefundObligation, error) {
	id, err := pkg.ParseID(row.Id)
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
	return &pool.RefundObligation{
		Id:         id,
		PoolId:     poolID,
		InvestorId: investorID,
		UserId:     userID,
		Amount:     pkg.RoundMoney(row.Amount),
		Reason:     row.Reason,
		Status:     pool.RefundStatus(row.Status),
		CreatedAt:  row.CreatedAt.UTC(),
	}, nil
}

func toDBRefund(o *pool.RefundObligation) *refundObligationDB {
	return &refundObligationDB{
		Id:         o.Id.String(),
		PoolId:     o.PoolId.String(),
		InvestorId: o.InvestorId.String(),
		UserId:     o.UserId.String(),
		Amount:     o.Amount,
		Reason:     o.Reason,
		Status:     string(o.Status),
		CreatedAt:  o.CreatedAt,
	}
}

func (r *PoolRepository) Create(ctx context.Context, p *pool.Pool) error {
	if err := conn(ctx, r.DB).Table(poolsTable).Create(toDBPool(p)).Error; err != nil {
		return appErrors.NewDatabaseError(err)
	}
	return nil
}

func (r *PoolRepository) GetByID(ctx context.Context, id ulid.ULID) (*pool.Pool, error) {
	var row poolDB
	err := conn(ctx, r.DB).Table(poolsTable).Where("id = ?", id.String()).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, appErrors.ErrPoolNotFound.WithDetails(map[string]interface{}{"poolId": id.String()})
		}
		return nil, appErrors.NewDatabaseError(err)
	}
	return toDomainPool(&row)
}

var poolSortColumns = map[pool.SortField]string{
	pool.SortCreatedAt:      "created_at",
	pool.SortTargetAmount:   "target_amount",
	pool.SortExpectedReturn: "expected_return",
	pool.SortRaisedAmount:   "raised_amount",
}

func (r *PoolRepository) List(ctx context.Context, filters *pool.ListFilters, pagination *pkg.PaginationParams) ([]*pool.Pool, int64, error) {
	query := conn(ctx, r.DB).Table(poolsTable)

	order := pkg.Order{Column: "created_at", Desc: true}
	if filters != nil {
		if filters.Status != nil {
			query = query.Where("status = ?", string(*filters.Status))
		}
		if filters.RiskLevel != nil {
			query = query.Where("risk_level = ?", string(*filters.RiskLevel))
		}
		if filters.InvestmentType != nil {
			query = query.Where("investment_type = ?", string(*filters.InvestmentType))
		}
		if filters.MinInvestment != nil {
			query = query.Where("min_investment >= ?", *filters.MinInvestment)
		}
		if filters.MaxInvestment != nil {
			query = query.Where("min_investment <= ?", *filters.MaxInvestment)
		}
		if filters.ManagerId != nil {
			query = query.Where("manager_id = ?", filters.ManagerId.String())
		}
		if loc := strings.TrimSpace(filters.Location); loc != "" {
			query = query.Where("LOWER(location) LIKE ?", "%"+strings.ToLower(loc)+"%")
		}
		if search := strings.TrimSpace(filters.Search); search != "" {
			like := "%" + strings.ToLower(search) + "%"
			query = query.Where("(LOWER(name) LIKE ? OR LOWER(description) LIKE ?)", like, like)
		}
		if column, ok := poolSortColumns[filters.SortBy]; ok {
			order = pkg.Order{Column: column, Desc: filters.SortDesc}
		}
	}

	pools, total, err := pkg.Paginate(query, pagination, order, toDomainPool)
	if err != nil {
		return nil, 0, appErrors.NewDatabaseError(err)
	}
	return pools, total, nil
}

func (r *PoolRepository) UpdateGuarded(ctx context.Context, p *pool.Pool, expectedVersion int64) error {
	columns := mutableColumns(toDBPool(p))
	columns["version"] = expectedVersion + 1

	result := conn(ctx, r.DB).Table(poolsTable).
		Where("id = ? AND version = ?", p.Id.String(), expectedVersion).
		Updates(columns)
	if result.Error != nil {
		return appErrors.NewDatabaseError(result.Error)
	}
	if result.RowsAffected == 0 {
		return appErrors.ErrConcurrencyConflict.WithDetails(map[string]interface{}{
			"poolId":          p.Id.String(),
			"expectedVersion": expectedVersion,
		})
	}
	p.Version = expectedVersion + 1
	return nil
}

func (r *PoolRepository) GetStats(ctx context.Context, id ulid.ULID) (*pool.Stats, error) {
	var stats struct {
		SharesSold    int64
		InvestorCount int64
	}
	err := conn(ctx, r.DB).Table(investorsTable).
		Select("COALESCE(SUM(shares_owned), 0) AS shares_sold, COUNT(*) AS investor_count").
		Where("pool_id = ? AND status = ?", id.String(), string(investor.StatusActive)).
		Scan(&stats).Error
	if err != nil {
		return nil, appErrors.NewDatabaseError(err)
	}
	return &pool.Stats{SharesSold: stats.SharesSold, InvestorCount: stats.InvestorCount}, nil
}

func (r *PoolRepository) CreateEvent(ctx context.Context, e *pool.Event) error {
	row := &poolEventDB{
		Id:         e.Id.String(),
		PoolId:     e.PoolId.String(),
		FromStatus: string(e.FromStatus),
		ToStatus:   string(e.ToStatus),
		Action:     string(e.Action),
		Reason:     e.Reason,
		CreatedAt:  e.CreatedAt,
	}
	if !pkg.IsZeroID(e.ActorId) {
		row.ActorId = e.ActorId.String()
	}
	if err := conn(ctx, r.DB).Table(poolEventsTable).Create(row).Error; err != nil {
		return appErrors.NewDatabaseError(err)
	}
	return nil
}

func (r *PoolRepository) ListEvents(ctx context.Context, poolID ulid.ULID) ([]*pool.Event, error) {
	var rows []poolEventDB
	err := conn(ctx, r.DB).Table(poolEventsTable).
		Where("pool_id = ?", poolID.String()).
		Order("created_at ASC, id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, appErrors.NewDatabaseError(err)
	}
	events := make([]*pool.Event, 0, len(rows))
	for i := range rows {
		e, err := toDomainEvent(&rows[i])
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, nil
}

func (r *PoolRepository) CreateRefundObligation(ctx context.Context, o *pool.RefundObligation) error {
	if err := conn(ctx, r.DB).Table(refundObligationsTable).Create(toDBRefund(o)).Error; err != nil {
		return appErrors.NewDatabaseError(err)
	}
	return nil
}

func (r *PoolRepository) CreateRefundObligations(ctx context.Context, poolID ulid.ULID, reason string, at time.Time) (int, error) {
	var investors []investorDB
	err := conn(ctx, r.DB).Table(investorsTable).
		Where("pool_id = ? AND status = ?", poolID.String(), string(investor.StatusActive)).
		Order("joined_at ASC, id ASC").
		Find(&investors).Error
	if err != nil {
		return 0, appErrors.NewDatabaseError(err)
	}
	if len(investors) == 0 {
		return 0, nil
	}

	rows := make([]*refundObligationDB, 0, len(investors))
	for _, inv := range investors {
		rows = append(rows, &refundObligationDB{
			Id:         pkg.NewIDString(),
			PoolId:     poolID.String(),
			InvestorId: inv.Id,
			UserId:     inv.UserId,
			Amount:     inv.InvestmentAmount,
			Reason:     reason,
			Status:     string(pool.RefundPending),
			CreatedAt:  at,
		})
	}
	if err := conn(ctx, r.DB).Table(refundObligationsTable).Create(&rows).Error; err != nil {
		return 0, appErrors.NewDatabaseError(err)
	}
	return len(rows), nil
}

func (r *PoolRepository) ListRefundObligations(ctx context.Context, poolID ulid.ULID) ([]*pool.RefundObligation, error) {
	var rows []refundObligationDB
	err := conn(ctx, r.DB).Table(refundObligationsTable).
		Where("pool_id = ?", poolID.String()).
		Order("created_at ASC, id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, appErrors.NewDatabaseError(err)
	}
	out := make([]*pool.RefundObligation, 0, len(rows))
	for i := range rows {
		o, err := toDomainRefund(&rows[i])
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, nil
}

func roundMoneyPtr(d *decimal.Decimal) *decimal.Decimal {
	if d == nil {
		return nil
	}
	rounded := pkg.RoundMoney(*d)
	return &rounded
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	utc := t.UTC()
	return &utc
}
