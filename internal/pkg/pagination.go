package pkg

import (
	"gorm.io/gorm"
)

const (
	DefaultPageLimit = 10
	MaxPageLimit     = 50
)

// PaginationParams is a 1-based page request. The zero value means the first
// page at DefaultPageLimit.
type PaginationParams struct {
	Page  int
	Limit int
}

// Offset is the number of rows before the page; the receiver is not modified.
func (p *PaginationParams) Offset() int {
	n := NormalizePagination(p)
	return (n.Page - 1) * n.Limit
}

// NormalizePagination returns a clamped copy of p. A nil p means the first page.
func NormalizePagination(p *PaginationParams) *PaginationParams {
	out := PaginationParams{Page: 1, Limit: DefaultPageLimit}
	if p != nil {
		if p.Page > 1 {
			out.Page = p.Page
		}
		if p.Limit > 0 {
			out.Limit = min(p.Limit, MaxPageLimit)
		}
	}
	return &out
}

// PageMeta is the "meta" block of a paginated response envelope.
type PageMeta struct {
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"totalPages"`
}

// NewPageMeta reports at least one page, even for an empty result.
func NewPageMeta(p *PaginationParams, total int64) *PageMeta {
	n := NormalizePagination(p)
	pages := int((total + int64(n.Limit) - 1) / int64(n.Limit))
	return &PageMeta{
		Page:       n.Page,
		Limit:      n.Limit,
		Total:      total,
		TotalPages: max(pages, 1),
	}
}

// Order sorts by Column and then by id in the same direction, so rows with
// equal sort keys keep a stable position across pages.
type Order struct {
	Column string
	Desc   bool
}

func (o Order) Clause() string {
	dir := " ASC"
	if o.Desc {
		dir = " DESC"
	}
	if o.Column == "" || o.Column == "id" {
		return "id" + dir
	}
	return o.Column + dir + ", id" + dir
}

// Paginate counts query, then loads one page in order and converts each row D
// to a domain T.
func Paginate[T any, D any](
	query *gorm.DB,
	pagination *PaginationParams,
	order Order,
	converter func(*D) (*T, error),
) ([]*T, int64, error) {
	page := NormalizePagination(pagination)

	var total int64
	if err := query.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []*T{}, 0, nil
	}

	var rows []D
	err := query.Order(order.Clause()).
		Offset(page.Offset()).
		Limit(page.Limit).
		Find(&rows).Error
	if err != nil {
		return nil, 0, err
	}

	out := make([]*T, 0, len(rows))
	for i := range rows {
		item, err := converter(&rows[i])
		if err != nil {
			return nil, 0, err
		}
		out = append(out, item)
	}
	return out, total, nil
}
