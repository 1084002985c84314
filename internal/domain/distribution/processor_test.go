package distribution_test

import (
	"context"
	"testing"
	"time"

	"Poolfund/internal/domain/distribution"
	"Poolfund/internal/domain/pool"
	"Poolfund/internal/domain/shared"
	appErrors "Poolfund/internal/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProcessPaysEveryoneAndReleasesPool(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 10, 2, 3, 5)
	d, err := f.create(t, distribution.TypeDividend, "1000", "0", "0")
	require.NoError(t, err)
	require.Equal(t, pool.StatusDistributing, f.pools.Get(f.pool.Id).Status)

	done, err := f.svc.Process(context.Background(), d.Id, f.manager)
	require.NoError(t, err)

	assert.Equal(t, distribution.StatusCompleted, done.Status)
	require.NotNil(t, done.CompletedAt)
	require.Len(t, done.Payouts, 3)
	for _, p := range done.Payouts {
		assert.Equal(t, distribution.StatusCompleted, p.Status)
		assert.Equal(t, 1, p.Attempts)
		require.NotNil(t, p.ExternalReference)
		assert.Equal(t, "tx-"+p.Id.String(), *p.ExternalReference)
		assert.Equal(t, 1, f.disburser.callsFor(p.Id))
	}
	assert.Equal(t, pool.StatusActive, f.pools.Get(f.pool.Id).Status)
}

func TestProcessRetryPaysOnlyUnfinishedPayouts(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 10, 2, 3, 5)
	unlucky := f.investors.entries[1].UserId
	f.disburser.setFailing(unlucky, true)

	d, err := f.create(t, distribution.TypeDividend, "1000", "0", "0")
	require.NoError(t, err)

	first, err := f.processor.Process(context.Background(), d.Id)
	require.NoError(t, err)
	assert.Equal(t, distribution.StatusFailed, first.Status)
	require.NotNil(t, first.FailureReason)
	assert.Equal(t, "1 of 3 payouts failed", *first.FailureReason)
	assert.Equal(t, pool.StatusDistributing, f.pools.Get(f.pool.Id).Status)

	for _, p := range first.Payouts {
		if p.UserId == unlucky {
			assert.Equal(t, distribution.StatusFailed, p.Status)
			require.NotNil(t, p.LastError)
			assert.Contains(t, *p.LastError, "provider unavailable")
		} else {
			assert.Equal(t, distribution.StatusCompleted, p.Status)
		}
	}

	f.disburser.setFailing(unlucky, false)
	second, err := f.processor.Process(context.Background(), d.Id)
	require.NoError(t, err)
	assert.Equal(t, distribution.StatusCompleted, second.Status)
	assert.Nil(t, second.FailureReason)

	for _, p := range second.Payouts {
		assert.Equal(t, distribution.StatusCompleted, p.Status)
		if p.UserId == unlucky {
			assert.Equal(t, 2, f.disburser.callsFor(p.Id))
			assert.Equal(t, 2, p.Attempts)
			assert.Nil(t, p.LastError)
		} else {
			assert.Equal(t, 1, f.disburser.callsFor(p.Id))
		}
	}
	assert.Equal(t, 4, f.disburser.total())
	assert.Equal(t, pool.StatusActive, f.pools.Get(f.pool.Id).Status)

	// a third run is a no-op
	third, err := f.processor.Process(context.Background(), d.Id)
	require.NoError(t, err)
	assert.Equal(t, distribution.StatusCompleted, third.Status)
	assert.Equal(t, 4, f.disburser.total())
}

func TestProcessRespectsLiveLease(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 10, 10)
	d, err := f.create(t, distribution.TypeDividend, "100", "0", "0")
	require.NoError(t, err)

	stored, err := f.repo.GetByID(context.Background(), d.Id)
	require.NoError(t, err)
	started := now.Add(-time.Minute)
	stored.Status = distribution.StatusProcessing
	stored.ProcessingStartedAt = &started
	f.repo.put(*stored)

	_, err = f.processor.Process(context.Background(), d.Id)
	assert.True(t, appErrors.HasCode(err, "CONCURRENCY_CONFLICT"))
	assert.Equal(t, 0, f.disburser.total())

	// once the lease is stale another run may take over
	stale := now.Add(-distribution.DefaultLeaseTimeout - time.Second)
	stored.ProcessingStartedAt = &stale
	f.repo.put(*stored)

	done, err := f.processor.Process(context.Background(), d.Id)
	require.NoError(t, err)
	assert.Equal(t, distribution.StatusCompleted, done.Status)
	assert.Equal(t, 1, f.disburser.total())
}

func TestProcessCompletesZeroPayoutsWithoutDisbursing(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 2, 1, 1)
	d, err := f.create(t, distribution.TypeInterest, "0.01", "0", "0")
	require.NoError(t, err)

	done, err := f.processor.Process(context.Background(), d.Id)
	require.NoError(t, err)
	assert.Equal(t, distribution.StatusCompleted, done.Status)
	assert.Equal(t, 1, f.disburser.total())
	for _, p := range done.Payouts {
		assert.Equal(t, distribution.StatusCompleted, p.Status)
	}
}

func TestProcessKeepsPoolDistributingWhileOthersOpen(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 10, 10)
	first, err := f.create(t, distribution.TypeDividend, "100", "0", "0")
	require.NoError(t, err)
	second, err := f.create(t, distribution.TypeInterest, "50", "0", "0")
	require.NoError(t, err)

	_, err = f.processor.Process(context.Background(), first.Id)
	require.NoError(t, err)
	assert.Equal(t, pool.StatusDistributing, f.pools.Get(f.pool.Id).Status)

	_, err = f.processor.Process(context.Background(), second.Id)
	require.NoError(t, err)
	assert.Equal(t, pool.StatusActive, f.pools.Get(f.pool.Id).Status)
}

func TestProcessRequiresManager(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 10, 10)
	d, err := f.create(t, distribution.TypeDividend, "100", "0", "0")
	require.NoError(t, err)

	_, err = f.svc.Process(context.Background(), d.Id, f.investors.entries[0].UserId)
	assert.True(t, appErrors.HasCode(err, "FORBIDDEN"))
	assert.Equal(t, 0, f.disburser.total())
}

func TestSweepResumesPendingDistributions(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 10, 4, 6)
	first, err := f.create(t, distribution.TypeDividend, "100", "0", "0")
	require.NoError(t, err)
	second, err := f.create(t, distribution.TypeDividend, "200", "0", "0")
	require.NoError(t, err)

	attempted, err := f.processor.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, attempted)

	for _, want := range []*distribution.Distribution{first, second} {
		d, err := f.repo.GetByID(context.Background(), want.Id)
		require.NoError(t, err)
		assert.Equal(t, distribution.StatusCompleted, d.Status)
	}
	assert.Equal(t, 4, f.disburser.total())

	attempted, err = f.processor.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, attempted)
}

func TestProcessOverrunningLeaseNeverPaysTwice(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 10, 4, 6)
	d, err := f.create(t, distribution.TypeDividend, "1000", "0", "0")
	require.NoError(t, err)

	clock := &steppedClock{now: now}
	cfg := distribution.ProcessorConfig{Concurrency: 1, LeaseTimeout: time.Minute, PayoutTimeout: 10 * time.Second}

	gate := newGatedDisburser(f.disburser)
	slow := distribution.NewProcessor(f.repo, f.pools, shared.NoopTransactor{}, gate, f.notifier, cfg)
	slow.Clock = clock.Now
	sweeper := distribution.NewProcessor(f.repo, f.pools, shared.NoopTransactor{}, f.disburser, f.notifier, cfg)
	sweeper.Clock = clock.Now

	slowErr := make(chan error, 1)
	go func() {
		_, err := slow.Process(context.Background(), d.Id)
		slowErr <- err
	}()
	<-gate.entered

	// the slow run's lease expires while its first payout is still with the provider
	clock.advance(cfg.LeaseTimeout + 5*time.Second)
	attempted, err := sweeper.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, attempted)

	stored, err := f.repo.GetByID(context.Background(), d.Id)
	require.NoError(t, err)
	assert.Equal(t, distribution.StatusProcessing, stored.Status, "a payout still in flight keeps the distribution open")

	close(gate.release)
	err = <-slowErr
	assert.True(t, appErrors.HasCode(err, "CONCURRENCY_CONFLICT"), "the run that lost its lease must not record an outcome")

	payouts, err := f.repo.ListPayouts(context.Background(), d.Id)
	require.NoError(t, err)
	require.Len(t, payouts, 2)
	for _, p := range payouts {
		assert.Equal(t, distribution.StatusCompleted, p.Status)
		assert.Equal(t, 1, f.disburser.callsFor(p.Id))
	}

	stored, err = f.repo.GetByID(context.Background(), d.Id)
	require.NoError(t, err)
	assert.Equal(t, distribution.StatusProcessing, stored.Status)

	// a later sweep settles the distribution without sending anything again
	clock.advance(2 * cfg.LeaseTimeout)
	attempted, err = sweeper.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, attempted)

	stored, err = f.repo.GetByID(context.Background(), d.Id)
	require.NoError(t, err)
	assert.Equal(t, distribution.StatusCompleted, stored.Status)
	assert.Equal(t, 2, f.disburser.total())
	assert.Equal(t, pool.StatusActive, f.pools.Get(f.pool.Id).Status)
}

func TestProcessLeavesInFlightPayoutToItsRun(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 10, 10)
	d, err := f.create(t, distribution.TypeDividend, "100", "0", "0")
	require.NoError(t, err)

	payouts, err := f.repo.ListPayouts(context.Background(), d.Id)
	require.NoError(t, err)
	require.Len(t, payouts, 1)

	// an earlier run claimed the payout a moment ago and then lost the distribution lease
	claimed, err := f.repo.ClaimPayout(context.Background(), payouts[0].Id, now.Add(-time.Second), now.Add(-time.Hour))
	require.NoError(t, err)
	require.True(t, claimed)

	_, err = f.processor.Process(context.Background(), d.Id)
	assert.True(t, appErrors.HasCode(err, "CONCURRENCY_CONFLICT"))
	assert.Equal(t, 0, f.disburser.total())

	// a payout stuck past the lease and the call timeout is sent again
	stuck := f.repo.payout(payouts[0].Id)
	stuck.UpdatedAt = now.Add(-distribution.DefaultLeaseTimeout - distribution.DefaultPayoutTimeout - time.Second)
	f.repo.putPayout(stuck)
	stored, err := f.repo.GetByID(context.Background(), d.Id)
	require.NoError(t, err)
	stale := now.Add(-distribution.DefaultLeaseTimeout - time.Second)
	stored.ProcessingStartedAt = &stale
	f.repo.put(*stored)

	done, err := f.processor.Process(context.Background(), d.Id)
	require.NoError(t, err)
	assert.Equal(t, distribution.StatusCompleted, done.Status)
	assert.Equal(t, 1, f.disburser.total())
	assert.Equal(t, 2, done.Payouts[0].Attempts)
}
