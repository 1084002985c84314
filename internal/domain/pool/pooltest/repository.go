// Package pooltest provides an in-memory pool.Repository for service tests.
package pooltest

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"Poolfund/internal/domain/pool"
	appErrors "Poolfund/internal/errors"
	"Poolfund/internal/pkg"

	"github.com/oklog/ulid/v2"
)

type Repository struct {
	mu      sync.Mutex
	pools   map[ulid.ULID]pool.Pool
	Events  []*pool.Event
	Refunds []*pool.RefundObligation

	// StatsFn supplies ledger-derived stats. Zero stats are returned when nil.
	StatsFn func(poolID ulid.ULID) *pool.Stats
	// RefundSourceFn lists the obligations CreateRefundObligations should record.
	RefundSourceFn func(poolID ulid.ULID) []*pool.RefundObligation
	// Conflicts makes the next n guarded updates fail as if another writer won.
	Conflicts int
	// OnConflict runs when a forced conflict fires, e.g. to simulate the other writer.
	OnConflict func(r *Repository)
	Updates    int
}

func NewRepository(pools ...*pool.Pool) *Repository {
	r := &Repository{pools: make(map[ulid.ULID]pool.Pool)}
	for _, p := range pools {
		r.pools[p.Id] = *p
	}
	return r
}

func (r *Repository) Create(_ context.Context, p *pool.Pool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pools[p.Id] = *p
	return nil
}

func (r *Repository) GetByID(_ context.Context, id ulid.ULID) (*pool.Pool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.pools[id]
	if !ok {
		return nil, appErrors.ErrPoolNotFound
	}
	return &p, nil
}

// Get returns the stored pool, bypassing error handling. Test helper.
func (r *Repository) Get(id ulid.ULID) pool.Pool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pools[id]
}

// Put overwrites the stored pool. Test helper.
func (r *Repository) Put(p pool.Pool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pools[p.Id] = p
}

func (r *Repository) List(_ context.Context, filters *pool.ListFilters, pagination *pkg.PaginationParams) ([]*pool.Pool, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*pool.Pool
	for _, stored := range r.pools {
		p := stored
		if filters.Status != nil && p.Status != *filters.Status {
			continue
		}
		if filters.RiskLevel != nil && p.RiskLevel != *filters.RiskLevel {
			continue
		}
		if filters.Search != "" && !strings.Contains(strings.ToLower(p.Name), strings.ToLower(filters.Search)) {
			continue
		}
		out = append(out, &p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })

	pagination = pkg.NormalizePagination(pagination)
	total := int64(len(out))
	start := pagination.Offset()
	if start > len(out) {
		start = len(out)
	}
	end := start + pagination.Limit
	if end > len(out) {
		end = len(out)
	}
	return out[start:end], total, nil
}

func (r *Repository) UpdateGuarded(_ context.Context, p *pool.Pool, expectedVersion int64) error {
	r.mu.Lock()
	if r.Conflicts > 0 {
		r.Conflicts--
		hook := r.OnConflict
		r.mu.Unlock()
		if hook != nil {
			hook(r)
		}
		return appErrors.ErrConcurrencyConflict
	}
	defer r.mu.Unlock()

	stored, ok := r.pools[p.Id]
	if !ok || stored.Version != expectedVersion {
		return appErrors.ErrConcurrencyConflict
	}
	p.Version = expectedVersion + 1
	r.pools[p.Id] = *p
	r.Updates++
	return nil
}

func (r *Repository) GetStats(_ context.Context, id ulid.ULID) (*pool.Stats, error) {
	if r.StatsFn != nil {
		return r.StatsFn(id), nil
	}
	return &pool.Stats{}, nil
}

func (r *Repository) CreateEvent(_ context.Context, e *pool.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Events = append(r.Events, e)
	return nil
}

func (r *Repository) ListEvents(_ context.Context, poolID ulid.ULID) ([]*pool.Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*pool.Event
	for _, e := range r.Events {
		if e.PoolId == poolID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *Repository) CreateRefundObligation(_ context.Context, o *pool.RefundObligation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Refunds = append(r.Refunds, o)
	return nil
}

func (r *Repository) CreateRefundObligations(_ context.Context, poolID ulid.ULID, reason string, at time.Time) (int, error) {
	if r.RefundSourceFn == nil {
		return 0, nil
	}
	obligations := r.RefundSourceFn(poolID)
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, o := range obligations {
		o.Reason = reason
		o.CreatedAt = at
		o.Status = pool.RefundPending
		r.Refunds = append(r.Refunds, o)
	}
	return len(obligations), nil
}

func (r *Repository) ListRefundObligations(_ context.Context, poolID ulid.ULID) ([]*pool.RefundObligation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*pool.RefundObligation
	for _, o := range r.Refunds {
		if o.PoolId == poolID {
			out = append(out, o)
		}
	}
	return out, nil
}

// Notifier records notifications for assertions.
type Notifier struct {
	mu   sync.Mutex
	Sent []pool.Notification
}

func (n *Notifier) Notify(_ context.Context, msg pool.Notification) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Sent = append(n.Sent, msg)
}

func (n *Notifier) Kinds() []pool.NotificationKind {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]pool.NotificationKind, 0, len(n.Sent))
	for _, s := range n.Sent {
		out = append(out, s.Kind)
	}
	return out
}
