package distribution

import (
	"context"
	"fmt"
	"sync"
	"time"

	"Poolfund/internal/domain/pool"
	"Poolfund/internal/domain/shared"
	appErrors "Poolfund/internal/errors"
	"Poolfund/internal/logger"
	"Poolfund/internal/metrics"
	"Poolfund/internal/pkg"

	"github.com/oklog/ulid/v2"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultConcurrency   = 4
	DefaultLeaseTimeout  = 5 * time.Minute
	DefaultPayoutTimeout = 10 * time.Second
	sweepBatchSize       = 50
)

type ProcessorConfig struct {
	Concurrency   int
	LeaseTimeout  time.Duration
	PayoutTimeout time.Duration
}

// Processor drives payouts of a distribution to the disburser. A run can be
// repeated any number of times: completed payouts are skipped and every
// disbursement is keyed by payout id.
type Processor struct {
	Repository Repository
	Pools      pool.Repository
	Transactor shared.Transactor
	Disburser  Disburser
	Notifier   pool.Notifier
	Clock      shared.Clock
	Config     ProcessorConfig
}

func NewProcessor(repo Repository, pools pool.Repository, tx shared.Transactor, disburser Disburser, notifier pool.Notifier, cfg ProcessorConfig) *Processor {
	if notifier == nil {
		notifier = pool.NopNotifier{}
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.LeaseTimeout <= 0 {
		cfg.LeaseTimeout = DefaultLeaseTimeout
	}
	if cfg.PayoutTimeout <= 0 {
		cfg.PayoutTimeout = DefaultPayoutTimeout
	}
	return &Processor{
		Repository: repo,
		Pools:      pools,
		Transactor: tx,
		Disburser:  disburser,
		Notifier:   notifier,
		Config:     cfg,
	}
}

// Process claims the distribution and pays every payout that has not cleared.
// A completed distribution is returned unchanged. A distribution held by
// another live run yields CONCURRENCY_CONFLICT, as does a run that loses its
// lease or finds payouts still in flight under an earlier run.
func (p *Processor) Process(ctx context.Context, id ulid.ULID) (*Distribution, error) {
	d, err := p.Repository.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if d.Status == StatusCompleted {
		return p.withPayouts(ctx, d)
	}

	now := p.Clock.Now()
	lease := &runLease{token: pkg.NewIDString()}
	claimed, err := p.Repository.Claim(ctx, id, lease.token, now, now.Add(-p.Config.LeaseTimeout))
	if err != nil {
		return nil, err
	}
	if !claimed {
		return nil, p.leaseConflict(id, "Distribution is already being processed")
	}
	d.Status = StatusProcessing
	d.ProcessingStartedAt = &now

	payouts, err := p.Repository.ListPayouts(ctx, id)
	if err != nil {
		return nil, err
	}

	var g errgroup.Group
	g.SetLimit(p.Config.Concurrency)

	for _, po := range payouts {
		if po.IsCompleted() {
			continue
		}
		po := po
		g.Go(func() error {
			if lease.isLost() {
				return nil
			}
			if err := p.pay(ctx, d, po); err != nil {
				return err
			}
			return p.renew(ctx, id, lease)
		})
	}
	if err := g.Wait(); err != nil {
		// left in processing; the sweeper resumes it once the lease expires
		logger.Error().
			Err(err).
			Str("distribution_id", id.String()).
			Msg("payout run aborted")
		return nil, err
	}
	if lease.isLost() {
		return nil, p.leaseConflict(id, "Distribution was taken over by another run")
	}

	// outcome comes from storage so payouts settled by other runs count too
	settled, err := p.Repository.ListPayouts(ctx, id)
	if err != nil {
		return nil, err
	}
	var failed, inFlight int
	for _, po := range settled {
		switch po.Status {
		case StatusFailed:
			failed++
		case StatusPending, StatusProcessing:
			inFlight++
		}
	}
	if inFlight > 0 {
		return nil, p.leaseConflict(id, "Payouts are still in flight under an earlier run")
	}

	finishedAt := p.Clock.Now()
	d.UpdatedAt = finishedAt
	if failed == 0 {
		d.Status = StatusCompleted
		d.CompletedAt = &finishedAt
		d.FailureReason = nil
	} else {
		reason := fmt.Sprintf("%d of %d payouts failed", failed, len(settled))
		d.Status = StatusFailed
		d.FailureReason = &reason
	}

	if err := p.finish(ctx, d, lease.token); err != nil {
		return nil, err
	}

	logger.Info().
		Str("distribution_id", id.String()).
		Str("status", string(d.Status)).
		Int("payouts", len(settled)).
		Int("failed", failed).
		Msg("distribution processed")

	return p.withPayouts(ctx, d)
}

// Sweep resumes pending, failed and stale distributions. It returns how many were attempted.
func (p *Processor) Sweep(ctx context.Context) (int, error) {
	ids, err := p.Repository.ListResumable(ctx, p.Clock.Now().Add(-p.Config.LeaseTimeout), sweepBatchSize)
	if err != nil {
		return 0, err
	}

	attempted := 0
	for _, id := range ids {
		if ctx.Err() != nil {
			return attempted, ctx.Err()
		}
		attempted++
		if _, err := p.Process(ctx, id); err != nil {
			if appErrors.HasCode(err, appErrors.ErrConcurrencyConflict.Code) {
				continue
			}
			logger.Warn().
				Err(err).
				Str("distribution_id", id.String()).
				Msg("sweep could not process distribution")
		}
	}
	return attempted, nil
}

// pay disburses one payout. Disbursement failures are recorded on the payout;
// only storage errors are returned. A payout another run still has in flight
// is left alone.
func (p *Processor) pay(ctx context.Context, d *Distribution, po *Payout) error {
	now := p.Clock.Now()
	claimed, err := p.Repository.ClaimPayout(ctx, po.Id, now, now.Add(-p.payoutStaleAfter()))
	if err != nil {
		return err
	}
	if !claimed {
		return nil
	}

	if !po.Amount.IsPositive() {
		return p.Repository.CompletePayout(ctx, po.Id, nil, p.Clock.Now())
	}

	callCtx, cancel := context.WithTimeout(ctx, p.Config.PayoutTimeout)
	defer cancel()

	start := time.Now()
	res, err := p.Disburser.Disburse(callCtx, PayoutInstruction{
		IdempotencyKey: po.Id.String(),
		PayoutId:       po.Id,
		DistributionId: d.Id,
		PoolId:         d.PoolId,
		UserId:         po.UserId,
		Amount:         po.Amount,
		Type:           d.Type,
	})
	metrics.RecordPayout(err == nil, time.Since(start))

	if err != nil {
		logger.Warn().
			Err(err).
			Str("payout_id", po.Id.String()).
			Str("distribution_id", d.Id.String()).
			Msg("disbursement failed")
		return p.Repository.FailPayout(ctx, po.Id, err.Error(), p.Clock.Now())
	}

	var ref *string
	if res != nil && res.Reference != "" {
		ref = &res.Reference
	}
	return p.Repository.CompletePayout(ctx, po.Id, ref, p.Clock.Now())
}

// payoutStaleAfter is how long a payout may sit in processing before another
// run may send it again. A live call never outlasts PayoutTimeout.
func (p *Processor) payoutStaleAfter() time.Duration {
	return p.Config.LeaseTimeout + p.Config.PayoutTimeout
}

func (p *Processor) renew(ctx context.Context, id ulid.ULID, lease *runLease) error {
	lease.mu.Lock()
	defer lease.mu.Unlock()
	if lease.lost {
		return nil
	}
	ok, err := p.Repository.RenewLease(ctx, id, lease.token, p.Clock.Now())
	if err != nil {
		return err
	}
	if !ok {
		lease.lost = true
		logger.Warn().
			Str("distribution_id", id.String()).
			Msg("payout run lost its lease")
	}
	return nil
}

func (p *Processor) leaseConflict(id ulid.ULID, message string) error {
	metrics.RecordConcurrencyConflict("distribution_claim")
	return appErrors.ErrConcurrencyConflict.
		WithMessage(message).
		WithDetails(map[string]interface{}{"distributionId": id.String()})
}

// runLease is the claim one Process call holds on a distribution.
type runLease struct {
	token string
	mu    sync.Mutex
	lost  bool
}

func (l *runLease) isLost() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lost
}

// finish stores the outcome and, once the pool has no open distributions
// left, moves it from distributing back to active.
func (p *Processor) finish(ctx context.Context, d *Distribution, leaseToken string) error {
	var (
		event   *pool.Event
		settled *pool.Pool
		lost    bool
	)

	err := shared.RetryOnConflict(ctx, shared.DefaultConflictRetries, func(ctx context.Context) error {
		event, settled, lost = nil, nil, false
		return p.Transactor.WithinTransaction(ctx, func(ctx context.Context) error {
			owned, err := p.Repository.Finish(ctx, d, leaseToken)
			if err != nil {
				return err
			}
			if !owned {
				lost = true
				return nil
			}
			if d.Status != StatusCompleted {
				return nil
			}

			pl, err := p.Pools.GetByID(ctx, d.PoolId)
			if err != nil {
				return err
			}
			if pl.Status != pool.StatusDistributing {
				return nil
			}
			open, err := p.Repository.CountOpen(ctx, d.PoolId, d.Id)
			if err != nil {
				return err
			}
			if open > 0 {
				return nil
			}

			expected := pl.Version
			if event, err = pl.Apply(pool.ActionEndDistribution, "distribution completed", p.Clock.Now()); err != nil {
				return err
			}
			event.ActorId = d.CreatedBy
			if err := pool.Persist(ctx, p.Pools, pl, expected, event); err != nil {
				return err
			}
			settled = pl
			return nil
		})
	})
	if err != nil {
		return err
	}

	if lost {
		return p.leaseConflict(d.Id, "Distribution was taken over by another run")
	}

	if event != nil {
		p.Notifier.Notify(ctx, pool.NotificationFor(settled, event, false))
	}
	return nil
}

func (p *Processor) withPayouts(ctx context.Context, d *Distribution) (*Distribution, error) {
	payouts, err := p.Repository.ListPayouts(ctx, d.Id)
	if err != nil {
		return nil, err
	}
	d.Payouts = payouts
	return d, nil
}
