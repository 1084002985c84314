package pool

import (
	"testing"
	"time"

	appErrors "Poolfund/internal/errors"

	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readyPool(status Status) *Pool {
	return &Pool{
		Id:                       ulid.Make(),
		Name:                     "Harbor View",
		TargetAmount:             decimal.NewFromInt(100000),
		RaisedAmount:             decimal.NewFromInt(100000),
		MinInvestment:            decimal.NewFromInt(500),
		SharePrice:               decimal.NewFromInt(100),
		TotalShares:              1000,
		Status:                   status,
		FinalDistributionCreated: true,
		Version:                  1,
	}
}

func TestLifecycleTableIsExhaustive(t *testing.T) {
	t.Parallel()

	allowed := map[Status]map[Action]Status{
		StatusDraft:        {ActionPublish: StatusSeeking},
		StatusSeeking:      {ActionFund: StatusFunded, ActionCloseEarly: StatusFunded, ActionCancel: StatusCancelled},
		StatusFunded:       {ActionActivate: StatusActive, ActionCancel: StatusCancelled},
		StatusActive:       {ActionStartDistribution: StatusDistributing, ActionCancel: StatusCancelled, ActionComplete: StatusCompleted},
		StatusDistributing: {ActionEndDistribution: StatusActive, ActionCancel: StatusCancelled, ActionComplete: StatusCompleted},
	}

	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	for _, from := range AllStatuses {
		for _, action := range AllActions {
			if action == ActionReopen {
				continue
			}
			from, action := from, action
			t.Run(string(from)+"/"+string(action), func(t *testing.T) {
				t.Parallel()

				p := readyPool(from)
				event, err := p.Apply(action, "exit", now)

				want, ok := allowed[from][action]
				if !ok {
					require.Error(t, err)
					appErr, isApp := appErrors.AsAppError(err)
					require.True(t, isApp)
					assert.Equal(t, "INVALID_TRANSITION", appErr.Code)
					assert.Equal(t, string(from), appErr.Details["currentStatus"])
					assert.Equal(t, string(action.Target()), appErr.Details["requestedStatus"])
					assert.Equal(t, from, p.Status, "status must not change on rejection")
					return
				}

				require.NoError(t, err)
				assert.Equal(t, want, p.Status)
				assert.Equal(t, from, event.FromStatus)
				assert.Equal(t, want, event.ToStatus)
				assert.Equal(t, action, event.Action)
			})
		}
	}
}

func TestReopenOnlyFromFundedBelowTarget(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC()

	p := readyPool(StatusFunded)
	p.RaisedAmount = decimal.NewFromInt(99000)
	_, err := p.Apply(ActionReopen, "", now)
	require.NoError(t, err)
	assert.Equal(t, StatusSeeking, p.Status)
	assert.Nil(t, p.FundedAt)

	closed := readyPool(StatusFunded)
	closed.RaisedAmount = decimal.NewFromInt(1000)
	closed.ClosedEarly = true
	_, err = closed.Apply(ActionReopen, "", now)
	assert.True(t, appErrors.HasCode(err, "INVALID_TRANSITION"))

	full := readyPool(StatusFunded)
	_, err = full.Apply(ActionReopen, "", now)
	assert.True(t, appErrors.HasCode(err, "INVALID_TRANSITION"))

	for _, st := range []Status{StatusDraft, StatusSeeking, StatusActive, StatusDistributing, StatusCompleted, StatusCancelled} {
		q := readyPool(st)
		q.RaisedAmount = decimal.NewFromInt(10)
		_, err := q.Apply(ActionReopen, "", now)
		assert.True(t, appErrors.HasCode(err, "INVALID_TRANSITION"), st)
	}
}

func TestGuards(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC()

	tests := []struct {
		name     string
		setup    func(p *Pool)
		status   Status
		action   Action
		reason   string
		wantCode string
	}{
		{
			name:     "publish requires share price",
			status:   StatusDraft,
			setup:    func(p *Pool) { p.SharePrice = decimal.Zero },
			action:   ActionPublish,
			wantCode: "VALIDATION_ERROR",
		},
		{
			name:     "publish requires total shares",
			status:   StatusDraft,
			setup:    func(p *Pool) { p.TotalShares = 0 },
			action:   ActionPublish,
			wantCode: "VALIDATION_ERROR",
		},
		{
			name:     "fund requires target reached",
			status:   StatusSeeking,
			setup:    func(p *Pool) { p.RaisedAmount = decimal.NewFromInt(99999) },
			action:   ActionFund,
			wantCode: "INVALID_TRANSITION",
		},
		{
			name:     "close early requires investments",
			status:   StatusSeeking,
			setup:    func(p *Pool) { p.RaisedAmount = decimal.Zero },
			action:   ActionCloseEarly,
			wantCode: "INVALID_TRANSITION",
		},
		{
			name:     "cancel requires reason",
			status:   StatusActive,
			action:   ActionCancel,
			reason:   "   ",
			wantCode: "VALIDATION_ERROR",
		},
		{
			name:     "complete requires final distribution",
			status:   StatusDistributing,
			setup:    func(p *Pool) { p.FinalDistributionCreated = false },
			action:   ActionComplete,
			wantCode: "INVALID_TRANSITION",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p := readyPool(tt.status)
			if tt.setup != nil {
				tt.setup(p)
			}
			_, err := p.Apply(tt.action, tt.reason, now)
			require.Error(t, err)
			appErr, ok := appErrors.AsAppError(err)
			require.True(t, ok)
			assert.Equal(t, tt.wantCode, appErr.Code)
			assert.Equal(t, tt.status, p.Status)
		})
	}
}

func TestApplySideEffects(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

	p := readyPool(StatusSeeking)
	p.RaisedAmount = decimal.NewFromInt(40000)
	_, err := p.Apply(ActionCloseEarly, "", now)
	require.NoError(t, err)
	assert.True(t, p.ClosedEarly)
	require.NotNil(t, p.FundedAt)

	c := readyPool(StatusFunded)
	_, err = c.Apply(ActionCancel, "  property inspection failed ", now)
	require.NoError(t, err)
	require.NotNil(t, c.CancelReason)
	assert.Equal(t, "property inspection failed", *c.CancelReason)
	assert.Equal(t, now, *c.CancelledAt)

	d := readyPool(StatusActive)
	_, err = d.Apply(ActionComplete, "", now)
	require.NoError(t, err)
	assert.Equal(t, now, *d.CompletedAt)
	assert.True(t, d.Status.IsTerminal())
}

func TestActionForStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		current Status
		target  Status
		want    Action
	}{
		{StatusDraft, StatusSeeking, ActionPublish},
		{StatusSeeking, StatusFunded, ActionCloseEarly},
		{StatusFunded, StatusActive, ActionActivate},
		{StatusDistributing, StatusActive, ActionEndDistribution},
		{StatusActive, StatusDistributing, ActionStartDistribution},
		{StatusActive, StatusCompleted, ActionComplete},
		{StatusSeeking, StatusCancelled, ActionCancel},
		{StatusDraft, StatusActive, ActionActivate},
	}
	for _, tt := range tests {
		got, err := ActionForStatus(tt.current, tt.target)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "%s -> %s", tt.current, tt.target)
	}

	_, err := ActionForStatus(StatusSeeking, StatusDraft)
	assert.True(t, appErrors.HasCode(err, "INVALID_TRANSITION"))
}

func TestFundingProgress(t *testing.T) {
	t.Parallel()

	p := &Pool{TargetAmount: decimal.NewFromInt(3), RaisedAmount: decimal.NewFromInt(1)}
	assert.Equal(t, "33.33", p.FundingProgress().StringFixed(2))
	assert.True(t, p.RemainingCapacity().Equal(decimal.NewFromInt(2)))

	details := NewDetails(&Pool{TotalShares: 10, TargetAmount: decimal.NewFromInt(10)}, &Stats{SharesSold: 4, InvestorCount: 2})
	assert.Equal(t, int64(6), details.SharesAvailable)
}
